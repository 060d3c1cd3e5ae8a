package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/keenbingwood-bot/redflag2601/internal/core/domain"
	"github.com/keenbingwood-bot/redflag2601/internal/core/ports"
)

// StatsStore registra contagens de decisões em hashes do Redis.
//
// Chaves: <prefix>:<bucket>:total (cumulativa) e <prefix>:<bucket>:minute:<yyyymmddhhmm> (com TTL).
// Identidades não são gravadas para não explodir a cardinalidade.
type StatsStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ ports.DecisionRecorder = (*StatsStore)(nil)

type StatsOption func(*StatsStore)

func WithStatsPrefix(prefix string) StatsOption {
	return func(s *StatsStore) { s.prefix = strings.Trim(prefix, ":") }
}

func WithStatsTTL(d time.Duration) StatsOption {
	return func(s *StatsStore) { s.ttl = d }
}

func NewStatsStore(client *redis.Client, opts ...StatsOption) *StatsStore {
	s := &StatsStore{
		client: client,
		prefix: "redflag:ratelimit:analytics",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *StatsStore) Record(ctx context.Context, ev domain.DecisionEvent) error {
	if s == nil || s.client == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := string(ev.Outcome)

	totalKey := s.TotalKey(ev.Bucket)
	minuteKey := fmt.Sprintf("%s:%s:minute:%s", s.prefix, ev.Bucket, at.UTC().Format("200601021504"))

	pipe := s.client.Pipeline()
	pipe.HIncrBy(ctx, totalKey, field, 1)
	pipe.HIncrBy(ctx, minuteKey, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, minuteKey, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *StatsStore) TotalKey(bucket string) string {
	return s.prefix + ":" + bucket + ":total"
}
