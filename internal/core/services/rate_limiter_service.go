package services

import (
	"context"
	"fmt"
	"time"

	"github.com/keenbingwood-bot/redflag2601/internal/core/domain"
	"github.com/keenbingwood-bot/redflag2601/internal/core/ports"
)

const defaultStoreTimeout = 2 * time.Second

// RateLimiterService aplica a janela deslizante de um único bucket.
type RateLimiterService struct {
	storage      ports.WindowStore
	bucket       domain.Bucket
	nowFn        func() time.Time
	storeTimeout time.Duration
}

var _ ports.RateLimiter = (*RateLimiterService)(nil)

type Option func(*RateLimiterService)

func WithClock(nowFn func() time.Time) Option {
	return func(s *RateLimiterService) {
		if nowFn != nil {
			s.nowFn = nowFn
		}
	}
}

// WithStoreTimeout limita o tempo de espera pelo storage. Valores <= 0 mantêm o padrão.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *RateLimiterService) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

// NewRateLimiterService cria uma nova instância do serviço para o bucket informado.
func NewRateLimiterService(storage ports.WindowStore, bucket domain.Bucket, opts ...Option) (*RateLimiterService, error) {
	if storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if err := bucket.Validate(); err != nil {
		return nil, err
	}

	s := &RateLimiterService{
		storage:      storage,
		bucket:       bucket,
		nowFn:        time.Now,
		storeTimeout: defaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *RateLimiterService) Bucket() domain.Bucket {
	return s.bucket
}

// Check registra uma tentativa para a identidade e devolve a decisão de admissão.
// Rejeição por cota não é erro; falhas do storage retornam domain.ErrStoreUnavailable.
func (s *RateLimiterService) Check(ctx context.Context, identity string) (domain.Decision, error) {
	identity = domain.NormalizeIdentity(identity)
	now := s.nowFn()

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	res, err := s.storage.RecordAndCount(storeCtx, s.bucket.Key(identity), now, s.bucket.Window, s.bucket.Capacity)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("%w: bucket %s: %v", domain.ErrStoreUnavailable, s.bucket.Name, err)
	}

	return s.decide(res, now), nil
}

func (s *RateLimiterService) decide(res ports.WindowResult, now time.Time) domain.Decision {
	remaining := s.bucket.Capacity - res.Count
	if remaining < 0 {
		remaining = 0
	}
	if remaining > s.bucket.Capacity {
		remaining = s.bucket.Capacity
	}

	reset := now.Add(s.bucket.Window)
	if !res.Oldest.IsZero() {
		if candidate := res.Oldest.Add(s.bucket.Window); candidate.After(now) {
			reset = candidate
		}
	}

	return domain.Decision{
		Admitted:  res.Admitted,
		Bucket:    s.bucket.Name,
		Capacity:  s.bucket.Capacity,
		Remaining: remaining,
		Reset:     reset,
	}
}
