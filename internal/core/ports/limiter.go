// Package ports define contratos que conectam o domínio a implementações externas.
package ports

import (
	"context"

	"github.com/keenbingwood-bot/redflag2601/internal/core/domain"
)

type RateLimiter interface {
	Check(ctx context.Context, identity string) (domain.Decision, error)
	Bucket() domain.Bucket
}

type Admission interface {
	Admit(ctx context.Context, identity string) (domain.Decision, error)
}
