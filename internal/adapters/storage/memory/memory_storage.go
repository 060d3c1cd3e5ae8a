// Package memory disponibiliza a implementação do storage em memória, para instância única e testes.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/keenbingwood-bot/redflag2601/internal/core/ports"
)

// Storage mantém os eventos de cada chave em memória, protegidos por mutex.
// Não compartilha estado entre processos.
type Storage struct {
	mu           sync.Mutex
	entries      map[string]*entry
	cleanupEvery time.Duration
	nowFn        func() time.Time
}

type entry struct {
	events []time.Time
	window time.Duration
}

var _ ports.WindowStore = (*Storage)(nil)

type Option func(*Storage)

func WithCleanupEvery(d time.Duration) Option {
	return func(s *Storage) { s.cleanupEvery = d }
}

func WithClock(nowFn func() time.Time) Option {
	return func(s *Storage) {
		if nowFn != nil {
			s.nowFn = nowFn
		}
	}
}

func New(opts ...Option) *Storage {
	s := &Storage{
		entries:      make(map[string]*entry),
		cleanupEvery: time.Minute,
		nowFn:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Storage) RecordAndCount(ctx context.Context, key string, now time.Time, window time.Duration, capacity int) (ports.WindowResult, error) {
	if err := ctx.Err(); err != nil {
		return ports.WindowResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok {
		ent = &entry{}
		s.entries[key] = ent
	}
	ent.window = window
	ent.evict(now)

	res := ports.WindowResult{Count: len(ent.events)}
	if len(ent.events) < capacity {
		ent.insert(now)
		res.Admitted = true
		res.Count++
	}
	if len(ent.events) > 0 {
		res.Oldest = ent.events[0]
	}
	return res, nil
}

// insert mantém os eventos ordenados; chamadas concorrentes podem chegar com now fora de ordem.
func (e *entry) insert(at time.Time) {
	i := sort.Search(len(e.events), func(i int) bool { return e.events[i].After(at) })
	e.events = append(e.events, time.Time{})
	copy(e.events[i+1:], e.events[i:])
	e.events[i] = at
}

// evict descarta eventos com idade >= window.
func (e *entry) evict(now time.Time) {
	cutoff := now.Add(-e.window)
	i := 0
	for i < len(e.events) && !e.events[i].After(cutoff) {
		i++
	}
	if i > 0 {
		e.events = append(e.events[:0], e.events[i:]...)
	}
}

// Cleanup remove chaves cujos eventos já saíram da janela.
func (s *Storage) Cleanup() {
	now := s.nowFn()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		ent.evict(now)
		if len(ent.events) == 0 {
			delete(s.entries, k)
		}
	}
}

// Len retorna a quantidade de chaves mantidas.
func (s *Storage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// StartJanitor inicia uma goroutine que limpa chaves expiradas periodicamente.
// Pare cancelando o contexto.
func (s *Storage) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}
