package infra

import (
	"context"
	"sync"
	"time"

	"media-analytics-api/middleware/ratelimit/domain"
)

// MemoryCounterStore é uma implementação de domain.CounterStore em memória,
// com expiração por chave e limpeza periódica.
//
// Só serve para uma instância (dev/testes): o estado não é compartilhado entre processos.
type MemoryCounterStore struct {
	mu           sync.Mutex
	entries      map[string]*counterEntry
	now          func() time.Time
	cleanupEvery time.Duration
}

type counterEntry struct {
	value int64
	// zero => sem expiração
	expiresAt time.Time
}

var _ domain.CounterStore = (*MemoryCounterStore)(nil)

type MemoryStoreOption func(*MemoryCounterStore)

func WithCleanupEvery(d time.Duration) MemoryStoreOption {
	return func(s *MemoryCounterStore) { s.cleanupEvery = d }
}

// WithClock troca o relógio (testes de virada de janela sem sleep).
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryCounterStore) { s.now = now }
}

func NewMemoryCounterStore(opts ...MemoryStoreOption) *MemoryCounterStore {
	s := &MemoryCounterStore{
		entries:      make(map[string]*counterEntry),
		now:          time.Now,
		cleanupEvery: time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryCounterStore) CleanupEvery() time.Duration { return s.cleanupEvery }

// live retorna a entrada se ela existir e não tiver expirado. Chamar com lock.
func (s *MemoryCounterStore) live(key string, now time.Time) *counterEntry {
	ent, ok := s.entries[key]
	if !ok {
		return nil
	}
	if !ent.expiresAt.IsZero() && !now.Before(ent.expiresAt) {
		delete(s.entries, key)
		return nil
	}
	return ent
}

func (s *MemoryCounterStore) IncrementAndCreate(ctx context.Context, key string, ttl time.Duration) (domain.Increment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Increment{}, err
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if ent := s.live(key, now); ent != nil {
		ent.value++
		return domain.Increment{Value: ent.value}, nil
	}

	ent := &counterEntry{value: 1}
	if ttl > 0 {
		ent.expiresAt = now.Add(ttl)
	}
	s.entries[key] = ent
	return domain.Increment{Value: 1, Created: true, Expiring: ttl > 0}, nil
}

func (s *MemoryCounterStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if ent := s.live(key, now); ent != nil {
		ent.expiresAt = now.Add(ttl)
	}
	return nil
}

func (s *MemoryCounterStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent := s.live(key, now)
	switch {
	case ent == nil:
		return domain.TTLMissing, nil
	case ent.expiresAt.IsZero():
		return domain.TTLPersistent, nil
	default:
		return ent.expiresAt.Sub(now), nil
	}
}

// Len retorna quantas chaves ainda estão no mapa (inclusive expiradas não limpas).
func (s *MemoryCounterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Cleanup remove as chaves expiradas.
func (s *MemoryCounterStore) Cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range s.entries {
		s.live(k, now)
	}
}

// StartJanitor inicia uma goroutine que limpa chaves expiradas periodicamente.
// Pare cancelando o contexto.
func (s *MemoryCounterStore) StartJanitor(ctx context.Context) {
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
