package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"time"
)

// DefaultKeyPrefix é o namespace das chaves de contador no store.
const DefaultKeyPrefix = "ratelimit"

// Identity identifica o principal limitado (ex: "ip:10.0.0.5", "user:42").
//
// É opaca para o limiter. Quem constrói a identidade garante que chamadores
// distintos nunca colidam e que o mesmo chamador gere sempre a mesma string.
type Identity string

// CounterKey deriva a chave do contador de forma determinística a partir de
// (política, identidade). A política já foi validada e não contém ':'.
func CounterKey(prefix string, p Policy, id Identity) string {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return prefix + ":" + p.ID + ":" + string(id)
}

// Decision é o resultado de uma checagem. Nunca é persistida.
type Decision struct {
	Allowed bool
	// Count é o valor do contador após o incremento desta requisição.
	Count     int64
	Limit     int64
	Remaining int64
	// RetryAfter é o tempo estimado até a janela virar.
	// Zero quando permitido; sempre > 0 quando bloqueado.
	RetryAfter time.Duration
}

// RetryAfterSeconds arredonda RetryAfter para cima em segundos inteiros,
// como esperado pelo header Retry-After. Retorna 0 quando não há recomendação.
func (d Decision) RetryAfterSeconds() int64 {
	if d.RetryAfter <= 0 {
		return 0
	}
	secs := int64(d.RetryAfter / time.Second)
	if d.RetryAfter%time.Second != 0 {
		secs++
	}
	return secs
}

// Increment é o resultado de CounterStore.IncrementAndCreate.
type Increment struct {
	Value int64
	// Created indica que a chave não existia e foi criada com valor 1.
	Created bool
	// Expiring indica que o store já aplicou o TTL no mesmo passo atômico.
	// Quando Created && !Expiring, o chamador precisa chamar Expire.
	Expiring bool
}

// Sentinelas retornadas por CounterStore.TTL.
const (
	// TTLMissing: a chave não existe (a janela já virou).
	TTLMissing time.Duration = -2
	// TTLPersistent: a chave existe mas não tem expiração.
	TTLPersistent time.Duration = -1
)

// CounterStore é o store chave/valor compartilhado com TTL.
//
// Todas as operações são chamadas de rede: podem bloquear, falhar ou estourar
// o prazo do ctx. Implementações mapeiam qualquer falha para um erro que
// o serviço embrulha em ErrStoreUnavailable.
type CounterStore interface {
	// IncrementAndCreate cria o contador com 1 se ausente, ou incrementa se
	// presente, numa única operação indivisível. ttl é aplicado na criação
	// quando o store consegue fazê-lo no mesmo passo (Increment.Expiring).
	IncrementAndCreate(ctx context.Context, key string, ttl time.Duration) (Increment, error)
	// Expire define/renova o TTL da chave. Idempotente.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// TTL retorna o tempo restante, ou TTLMissing / TTLPersistent.
	TTL(ctx context.Context, key string) (time.Duration, error)
}
