package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"media-analytics-api/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// DefaultWatchAttempts limita o loop de retry-on-conflict.
const DefaultWatchAttempts = 5

// RedisWatchCounterStore emula o incremento atômico com transação otimista
// (WATCH/GET/MULTI/EXEC), para instâncias Redis com scripting desabilitado.
//
// Se outra requisição mexer na chave entre o GET e o EXEC, o EXEC falha
// (redis.TxFailedErr) e a tentativa é refeita. Nenhuma das duas requisições
// chega a criar um contador duplicado.
type RedisWatchCounterStore struct {
	rdb         redis.UniversalClient
	maxAttempts int

	// beforeExec é chamado entre o GET e o EXEC; usado em testes para forçar conflito.
	beforeExec func(key string)
}

var _ domain.CounterStore = (*RedisWatchCounterStore)(nil)

type WatchStoreOption func(*RedisWatchCounterStore)

func WithMaxAttempts(n int) WatchStoreOption {
	return func(s *RedisWatchCounterStore) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func NewRedisWatchCounterStore(rdb redis.UniversalClient, opts ...WatchStoreOption) *RedisWatchCounterStore {
	s := &RedisWatchCounterStore{rdb: rdb, maxAttempts: DefaultWatchAttempts}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisWatchCounterStore) IncrementAndCreate(ctx context.Context, key string, ttl time.Duration) (domain.Increment, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		inc, err := s.tryIncrement(ctx, key, ttl)
		if err == nil {
			return inc, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return domain.Increment{}, err
		}
		log.WithFields(log.Fields{"key": key, "attempt": attempt}).Debug(domain.ErrRaceObserved.Error())
		if ctx.Err() != nil {
			return domain.Increment{}, ctx.Err()
		}
	}
	return domain.Increment{}, fmt.Errorf("redis watch counter: %w after %d attempts", domain.ErrRaceObserved, s.maxAttempts)
}

func (s *RedisWatchCounterStore) tryIncrement(ctx context.Context, key string, ttl time.Duration) (domain.Increment, error) {
	var inc domain.Increment
	errWatch := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		_, errGet := tx.Get(ctx, key).Int64()
		if errGet != nil && !errors.Is(errGet, redis.Nil) {
			return errGet
		}
		exists := errGet == nil

		if s.beforeExec != nil {
			s.beforeExec(key)
		}

		var incr *redis.IntCmd
		_, errExec := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if exists {
				// INCR preserva o TTL existente
				incr = pipe.Incr(ctx, key)
			} else {
				pipe.Set(ctx, key, 1, ttl)
			}
			return nil
		})
		if errExec != nil {
			return errExec
		}

		if exists {
			inc = domain.Increment{Value: incr.Val()}
		} else {
			inc = domain.Increment{Value: 1, Created: true, Expiring: true}
		}
		return nil
	}, key)
	return inc, errWatch
}

func (s *RedisWatchCounterStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.rdb.PExpire(ctx, key, ttl).Err()
}

func (s *RedisWatchCounterStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	return pttl(ctx, s.rdb, key)
}
