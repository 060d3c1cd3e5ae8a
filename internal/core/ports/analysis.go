package ports

import (
	"context"

	"github.com/keenbingwood-bot/redflag2601/internal/core/domain"
)

type AnalysisProvider interface {
	Analyze(ctx context.Context, jobDescription string) (domain.Analysis, error)
}

// ContentFetcher retorna o texto de uma URL ou domain.ErrProtectedURL quando o site bloqueia a leitura.
type ContentFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

type ScanRepository interface {
	Save(ctx context.Context, scan domain.Scan) (domain.Scan, error)
	FindByID(ctx context.Context, id string) (domain.Scan, error)
}
