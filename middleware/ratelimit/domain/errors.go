package domain

import "errors"

var (
	// ErrInvalidPolicy: política com limite ou janela não positivos (ou ID inválido).
	// Fatal para a checagem; o chamador precisa corrigir a configuração.
	ErrInvalidPolicy = errors.New("invalid rate limit policy")

	// ErrInvalidIdentity: identidade vazia. Sem identidade o limiter viraria
	// um contador global compartilhado por todos os clientes.
	ErrInvalidIdentity = errors.New("invalid rate limit identity")

	// ErrStoreUnavailable: falha de conexão, timeout ou erro de comando no store.
	// A rota decide o fallback (fail-open ou fail-closed).
	ErrStoreUnavailable = errors.New("rate limit store unavailable")

	// ErrRaceObserved: diagnóstico interno de stores sem incremento atômico,
	// quando uma transação otimista perde a corrida. Nunca chega ao usuário
	// sozinho; se as tentativas acabarem vira ErrStoreUnavailable.
	ErrRaceObserved = errors.New("rate limit counter race observed")
)

// IsStoreUnavailable reporta se err (ou algo que ele embrulha) é ErrStoreUnavailable.
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
