package infra

import (
	"context"
	"fmt"
	"time"

	"media-analytics-api/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// incrementScript cria-ou-incrementa e aplica o TTL na criação, tudo dentro de
// um único EVAL (o Redis executa scripts de forma atômica).
// Retorna {valor, criado}.
var incrementScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
local created = 0
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  created = 1
end
return {current, created}
`)

// RedisCounterStore implementa domain.CounterStore sobre Redis usando script Lua.
//
// É o store padrão: o incremento e o TTL da criação acontecem no mesmo passo,
// então não existe a lacuna de chave sem expiração.
type RedisCounterStore struct {
	rdb redis.Cmdable
}

var _ domain.CounterStore = (*RedisCounterStore)(nil)

// NewRedisCounterStore aceita *redis.Client, *redis.ClusterClient ou Ring.
func NewRedisCounterStore(rdb redis.Cmdable) *RedisCounterStore {
	return &RedisCounterStore{rdb: rdb}
}

func (s *RedisCounterStore) IncrementAndCreate(ctx context.Context, key string, ttl time.Duration) (domain.Increment, error) {
	res, err := incrementScript.Run(ctx, s.rdb, []string{key}, ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return domain.Increment{}, err
	}
	if len(res) != 2 {
		return domain.Increment{}, fmt.Errorf("redis counter: unexpected script reply %v", res)
	}
	return domain.Increment{
		Value:    res[0],
		Created:  res[1] == 1,
		Expiring: true,
	}, nil
}

func (s *RedisCounterStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.rdb.PExpire(ctx, key, ttl).Err()
}

func (s *RedisCounterStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	return pttl(ctx, s.rdb, key)
}

// pttl normaliza a resposta do PTTL para as sentinelas do domain.
// go-redis devolve -1/-2 como durações cruas (sem escala).
func pttl(ctx context.Context, c redis.Cmdable, key string) (time.Duration, error) {
	d, err := c.PTTL(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	switch d {
	case -2:
		return domain.TTLMissing, nil
	case -1:
		return domain.TTLPersistent, nil
	}
	return d, nil
}
