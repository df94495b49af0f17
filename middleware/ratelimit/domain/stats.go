package domain

import (
	"context"
	"time"
)

// DefaultStatsPrefix é o namespace das estatísticas. Fica fora de
// DefaultKeyPrefix para que nenhuma política caia dentro dele.
const DefaultStatsPrefix = "ratelimit-stats"

// Outcome é o desfecho de uma checagem do ponto de vista da rota.
type Outcome string

const (
	OutcomeAllowed    Outcome = "allowed"
	OutcomeDenied     Outcome = "denied"
	OutcomeFailOpen   Outcome = "fail_open"
	OutcomeFailClosed Outcome = "fail_closed"
)

// StatsEvent representa um evento de decisão do rate limit.
//
// Ele é propositalmente "agnóstico de HTTP": Method/Path são strings genéricas.
//
// Observação: cuidado com cardinalidade (ex.: salvar Identity/Path sem controle pode
// explodir o número de chaves no Redis).
type StatsEvent struct {
	Identity Identity
	Policy   string
	Outcome  Outcome
	Count    int64

	Method string
	Path   string

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas do rate limit.
//
// O middleware trata erro como best-effort (não derruba a request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}

// Counters agrega desfechos.
type Counters struct {
	Allowed    int64 `json:"allowed"`
	Denied     int64 `json:"denied"`
	FailOpen   int64 `json:"fail_open"`
	FailClosed int64 `json:"fail_closed"`
}

// Add incrementa o campo correspondente ao desfecho.
func (c *Counters) Add(o Outcome, n int64) {
	switch o {
	case OutcomeAllowed:
		c.Allowed += n
	case OutcomeDenied:
		c.Denied += n
	case OutcomeFailOpen:
		c.FailOpen += n
	case OutcomeFailClosed:
		c.FailClosed += n
	}
}

// StatsSummary é a visão agregada exposta pela API.
type StatsSummary struct {
	Total    Counters            `json:"total"`
	ByPolicy map[string]Counters `json:"by_policy"`
	ByRoute  map[string]Counters `json:"by_route"`
}

// StatsReader é implementado pelos stores que sabem devolver o agregado.
type StatsReader interface {
	Summary(ctx context.Context) (StatsSummary, error)
}
