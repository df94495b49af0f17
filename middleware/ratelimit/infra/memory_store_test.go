package infra

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"media-analytics-api/middleware/ratelimit/application"
	"media-analytics-api/middleware/ratelimit/domain"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryCounterStore_CreateIncrementExpire(t *testing.T) {
	clk := newManualClock()
	s := NewMemoryCounterStore(WithClock(clk.Now))
	ctx := context.Background()

	inc, err := s.IncrementAndCreate(ctx, "k", 10*time.Second)
	if err != nil || inc.Value != 1 || !inc.Created || !inc.Expiring {
		t.Fatalf("expected created counter, got %+v err=%v", inc, err)
	}
	inc, _ = s.IncrementAndCreate(ctx, "k", 10*time.Second)
	if inc.Value != 2 || inc.Created {
		t.Fatalf("expected increment, got %+v", inc)
	}

	clk.Advance(4 * time.Second)
	if ttl, _ := s.TTL(ctx, "k"); ttl != 6*time.Second {
		t.Fatalf("expected ttl=6s, got %s", ttl)
	}

	clk.Advance(6 * time.Second)
	if ttl, _ := s.TTL(ctx, "k"); ttl != domain.TTLMissing {
		t.Fatalf("expected key gone at expiry, got %s", ttl)
	}
	inc, _ = s.IncrementAndCreate(ctx, "k", 10*time.Second)
	if inc.Value != 1 || !inc.Created {
		t.Fatalf("expected new window, got %+v", inc)
	}
}

func TestMemoryCounterStore_PersistentKeyCanBeRepaired(t *testing.T) {
	clk := newManualClock()
	s := NewMemoryCounterStore(WithClock(clk.Now))
	ctx := context.Background()

	inc, _ := s.IncrementAndCreate(ctx, "k", 0)
	if inc.Expiring {
		t.Fatalf("zero ttl must create a persistent counter")
	}
	if ttl, _ := s.TTL(ctx, "k"); ttl != domain.TTLPersistent {
		t.Fatalf("expected TTLPersistent, got %s", ttl)
	}

	if err := s.Expire(ctx, "k", time.Second); err != nil {
		t.Fatalf("expire: %v", err)
	}
	if ttl, _ := s.TTL(ctx, "k"); ttl != time.Second {
		t.Fatalf("expected ttl=1s, got %s", ttl)
	}

	// expire de chave inexistente é no-op
	if err := s.Expire(ctx, "other", time.Second); err != nil {
		t.Fatalf("expire missing: %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("expire must not create keys, len=%d", s.Len())
	}
}

func TestMemoryCounterStore_CanceledContext(t *testing.T) {
	s := NewMemoryCounterStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.IncrementAndCreate(ctx, "k", time.Second); err == nil {
		t.Fatalf("expected context error")
	}
	if s.Len() != 0 {
		t.Fatalf("canceled call must not touch state")
	}
}

func TestMemoryCounterStore_CleanupRemovesExpired(t *testing.T) {
	clk := newManualClock()
	s := NewMemoryCounterStore(WithClock(clk.Now))
	ctx := context.Background()

	_, _ = s.IncrementAndCreate(ctx, "short", time.Second)
	_, _ = s.IncrementAndCreate(ctx, "long", time.Hour)
	clk.Advance(2 * time.Second)

	s.Cleanup()
	if s.Len() != 1 {
		t.Fatalf("expected 1 key after cleanup, got %d", s.Len())
	}
}

func TestMemoryCounterStore_JanitorRunsUntilCanceled(t *testing.T) {
	clk := newManualClock()
	s := NewMemoryCounterStore(WithClock(clk.Now), WithCleanupEvery(5*time.Millisecond))
	_, _ = s.IncrementAndCreate(context.Background(), "k", time.Second)
	clk.Advance(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.StartJanitor(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for s.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("janitor did not remove expired key")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMemoryCounterStore_JanitorDisabled(t *testing.T) {
	s := NewMemoryCounterStore(WithCleanupEvery(0))
	if s.CleanupEvery() != 0 {
		t.Fatalf("expected cleanup disabled")
	}
	// não deve iniciar goroutine nem entrar em pânico
	s.StartJanitor(context.Background())
}

func TestMemoryCounterStore_ServiceConcurrency(t *testing.T) {
	s := NewMemoryCounterStore()
	svc := application.Service{Store: s, Timeout: time.Second}
	p := domain.Policy{ID: "auth", MaxRequests: 4, Window: time.Minute}

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dec, err := svc.Check(context.Background(), "ip:203.0.113.9", p)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if dec.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if allowed.Load() != 4 {
		t.Fatalf("expected exactly 4 allowed, got %d", allowed.Load())
	}
}
