package ports

import (
	"context"
	"time"

	"github.com/keenbingwood-bot/redflag2601/internal/core/domain"
)

// WindowResult descreve o estado da janela após uma tentativa.
// Count já inclui o evento atual quando Admitted é true.
// Oldest é zero quando não há eventos na janela.
type WindowResult struct {
	Admitted bool
	Count    int
	Oldest   time.Time
}

// WindowStore registra eventos em uma janela deslizante de forma atômica por chave.
type WindowStore interface {
	RecordAndCount(ctx context.Context, key string, now time.Time, window time.Duration, capacity int) (WindowResult, error)
}

// DecisionRecorder guarda estatísticas das decisões. Falhas não devem derrubar a requisição.
type DecisionRecorder interface {
	Record(ctx context.Context, ev domain.DecisionEvent) error
}
