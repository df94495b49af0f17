package infra

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// Limites de socket do client compartilhado pelos stores. O prazo efetivo de
// cada chamada vem do contexto (ContextTimeoutEnabled); estes são o teto.
const (
	redisDialTimeout = time.Second
	redisIOTimeout   = time.Second
)

// NewRedisClient cria o client usado pelos stores de contador e estatística.
//
// Sem ContextTimeoutEnabled o go-redis ignora o deadline do contexto no socket
// e uma instância que aceita conexão mas não responde segura a requisição por
// ReadTimeout x tentativas.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:                  addr,
		Password:              password,
		DB:                    db,
		DialTimeout:           redisDialTimeout,
		ReadTimeout:           redisIOTimeout,
		WriteTimeout:          redisIOTimeout,
		PoolTimeout:           redisIOTimeout,
		MaxRetries:            1,
		ContextTimeoutEnabled: true,
	})
}
