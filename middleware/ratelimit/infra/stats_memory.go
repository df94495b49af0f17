package infra

import (
	"context"
	"maps"
	"sync"

	"media-analytics-api/middleware/ratelimit/domain"
)

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes e desenvolvimento.
//
// Não faz expiração e não é indicada para produção.
type MemoryStatsStore struct {
	mu       sync.Mutex
	total    domain.Counters
	byPolicy map[string]domain.Counters
	byRoute  map[string]domain.Counters
	byKey    map[domain.Identity]domain.Counters

	trackKeys bool
}

var (
	_ domain.StatsStore  = (*MemoryStatsStore)(nil)
	_ domain.StatsReader = (*MemoryStatsStore)(nil)
)

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byPolicy: make(map[string]domain.Counters),
		byRoute:  make(map[string]domain.Counters),
		byKey:    make(map[domain.Identity]domain.Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	route := routeName(ev.Method, ev.Path)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.Add(ev.Outcome, 1)
	bump(s.byPolicy, ev.Policy, ev.Outcome)
	if route != "" {
		bump(s.byRoute, route, ev.Outcome)
	}
	if s.trackKeys && ev.Identity != "" {
		bump(s.byKey, ev.Identity, ev.Outcome)
	}
	return nil
}

func bump[K comparable](m map[K]domain.Counters, k K, o domain.Outcome) {
	c := m[k]
	c.Add(o, 1)
	m[k] = c
}

func (s *MemoryStatsStore) Summary(context.Context) (domain.StatsSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.StatsSummary{
		Total:    s.total,
		ByPolicy: maps.Clone(s.byPolicy),
		ByRoute:  maps.Clone(s.byRoute),
	}, nil
}

func (s *MemoryStatsStore) Total() domain.Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByKey() map[domain.Identity]domain.Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.byKey)
}
