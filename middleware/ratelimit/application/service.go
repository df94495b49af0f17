package application

import (
	"context"
	"fmt"
	"time"

	"media-analytics-api/middleware/ratelimit/domain"

	log "github.com/sirupsen/logrus"
)

// DefaultTimeout é o prazo de uma checagem inteira quando Service.Timeout <= 0.
const DefaultTimeout = 250 * time.Millisecond

// Service é o rate limiter de janela fixa.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
// Não guarda estado mutável: toda a sincronização é delegada ao incremento
// atômico do store, então várias instâncias podem dividir o mesmo store.
type Service struct {
	Store   domain.CounterStore
	Prefix  string
	Timeout time.Duration
}

// Check decide ALLOW ou DENY para a requisição atual de identity sob policy.
//
// Erros possíveis (use errors.Is):
//   - domain.ErrInvalidPolicy / domain.ErrInvalidIdentity, antes de tocar o store
//   - domain.ErrStoreUnavailable, para qualquer falha ou timeout do store
//
// Em caso de erro a Decision retornada é zero e não deve ser usada.
func (s Service) Check(ctx context.Context, identity domain.Identity, policy domain.Policy) (domain.Decision, error) {
	if err := policy.Validate(); err != nil {
		return domain.Decision{}, err
	}
	if identity == "" {
		return domain.Decision{}, fmt.Errorf("%w: empty identity for policy %s", domain.ErrInvalidIdentity, policy.ID)
	}
	if s.Store == nil {
		return domain.Decision{}, fmt.Errorf("%w: no store configured", domain.ErrStoreUnavailable)
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	key := domain.CounterKey(s.Prefix, policy, identity)

	inc, err := s.Store.IncrementAndCreate(ctx, key, policy.Window)
	if err != nil {
		return domain.Decision{}, unavailable("increment", key, err)
	}

	// Lacuna residual: o store criou a chave mas não conseguiu aplicar o TTL
	// no mesmo passo. Até o Expire abaixo a chave não expira; se ele falhar
	// (ou o processo morrer aqui) o reparo acontece no próximo bloqueio.
	if inc.Created && !inc.Expiring {
		if err := s.Store.Expire(ctx, key, policy.Window); err != nil {
			return domain.Decision{}, unavailable("expire", key, err)
		}
	}

	dec := domain.Decision{
		Allowed: inc.Value <= policy.MaxRequests,
		Count:   inc.Value,
		Limit:   policy.MaxRequests,
	}
	if dec.Allowed {
		dec.Remaining = policy.MaxRequests - inc.Value
		return dec, nil
	}

	dec.RetryAfter = s.retryAfter(ctx, key, policy)
	return dec, nil
}

// retryAfter estima o tempo até a janela virar. TTL é best-effort: falhas aqui
// não transformam um DENY em erro.
func (s Service) retryAfter(ctx context.Context, key string, policy domain.Policy) time.Duration {
	ttl, err := s.Store.TTL(ctx, key)
	if err != nil {
		log.WithError(err).WithField("key", key).Debug("rate limit: ttl lookup failed, using full window")
		return policy.Window
	}

	switch {
	case ttl > 0:
		return ttl
	case ttl == domain.TTLPersistent:
		// chave presa sem expiração (ver lacuna residual em Check): repara
		if errExpire := s.Store.Expire(ctx, key, policy.Window); errExpire != nil {
			log.WithError(errExpire).WithField("key", key).Warn("rate limit: could not repair counter without ttl")
		} else {
			log.WithField("key", key).Warn("rate limit: repaired counter without ttl")
		}
		return policy.Window
	default:
		// a janela virou entre o incremento e a leitura do TTL
		return policy.Window
	}
}

func unavailable(op, key string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", domain.ErrStoreUnavailable, op, key, err)
}
