package application

import (
	"context"
	"time"

	"media-analytics-api/middleware/ratelimit/domain"
)

// ConcurrencyService concentra a regra de aquisição/liberação de vagas com timeout,
// sem saber nada sobre HTTP.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire tenta adquirir uma vaga.
//   - Se `AcquireTimeout <= 0`, espera indefinidamente (até ctx cancelar).
//   - Se `AcquireTimeout > 0`, espera até o timeout.
//
// Retorna domain.ErrNoSlot quando nenhuma vaga foi adquirida; nesse caso o
// release retornado é um no-op e pode ser chamado mesmo assim.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), error) {
	noop := func() {}
	if s.Pool == nil {
		return noop, nil
	}

	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	release, ok := s.Pool.Acquire(ctx)
	if !ok {
		return noop, domain.ErrNoSlot
	}
	return release, nil
}
