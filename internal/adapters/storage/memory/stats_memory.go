package memory

import (
	"context"
	"sync"

	"github.com/keenbingwood-bot/redflag2601/internal/core/domain"
	"github.com/keenbingwood-bot/redflag2601/internal/core/ports"
)

type Counters struct {
	Admitted   int64
	Rejected   int64
	StoreError int64
}

// StatsStore conta decisões por bucket em memória. Não faz expiração.
type StatsStore struct {
	mu       sync.Mutex
	byBucket map[string]Counters
}

var _ ports.DecisionRecorder = (*StatsStore)(nil)

func NewStatsStore() *StatsStore {
	return &StatsStore{byBucket: make(map[string]Counters)}
}

func (s *StatsStore) Record(_ context.Context, ev domain.DecisionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.byBucket[ev.Bucket]
	switch ev.Outcome {
	case domain.OutcomeAdmitted:
		c.Admitted++
	case domain.OutcomeRejected:
		c.Rejected++
	case domain.OutcomeStoreError:
		c.StoreError++
	}
	s.byBucket[ev.Bucket] = c
	return nil
}

func (s *StatsStore) Bucket(name string) Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byBucket[name]
}
