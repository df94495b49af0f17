package ratelimit

import (
	"context"
	"net/http"
	"time"

	"media-analytics-api/middleware/ratelimit/application"
	"media-analytics-api/middleware/ratelimit/domain"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// DeniedMessage é o corpo de erro devolvido junto com o 429.
const DeniedMessage = "Rate limit exceeded. Try again later."

// Checker é o que o middleware precisa do limiter (application.Service satisfaz).
type Checker interface {
	Check(ctx context.Context, identity domain.Identity, policy domain.Policy) (domain.Decision, error)
}

type Options struct {
	Limiter     Checker
	Policy      domain.Policy
	Identity    IdentityFunc
	FailureMode domain.FailureMode
	Stats       domain.StatsStore

	// StatsTimeout limita a gravação de estatística; padrão application.DefaultTimeout.
	StatsTimeout time.Duration
	// RouteFn nomeia a rota nas estatísticas; padrão é r.URL.Path.
	// Com chi, passe o pattern para não explodir a cardinalidade.
	RouteFn             func(r *http.Request) string
	AddRateLimitHeaders bool
}

type deniedBody struct {
	Error             string `json:"error"`
	Count             int64  `json:"count"`
	RetryAfterSeconds int64  `json:"retry_after_seconds"`
}

// Middleware limita as requisições da rota por (Policy, identidade do cliente).
//
//   - permitido: segue para next
//   - bloqueado: 429 + Retry-After
//   - store indisponível: segue (FailOpen) ou 503 (FailClosed)
//   - política/identidade inválida: 500
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.Limiter == nil {
		// sem limiter configurado toda checagem vira store indisponível
		opts.Limiter = application.Service{}
	}
	if opts.Identity == nil {
		opts.Identity = ClientAddrIdentity(false)
	}
	if opts.RouteFn == nil {
		opts.RouteFn = func(r *http.Request) string { return r.URL.Path }
	}
	if opts.StatsTimeout <= 0 {
		opts.StatsTimeout = application.DefaultTimeout
	}

	// no máximo um aviso a cada 10s por rota enquanto o store estiver fora
	warnUnavailable := &rate.Sometimes{First: 1, Interval: 10 * time.Second}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := opts.Identity(r)

			dec, err := opts.Limiter.Check(r.Context(), id, opts.Policy)
			switch {
			case err == nil:
			case domain.IsStoreUnavailable(err):
				if opts.FailureMode == domain.FailOpen {
					warnUnavailable.Do(func() {
						log.WithError(err).WithField("policy", opts.Policy.ID).Warn("rate limit: store unavailable, failing open")
					})
					record(r, opts, id, domain.OutcomeFailOpen, 0)
					next.ServeHTTP(w, r)
					return
				}
				warnUnavailable.Do(func() {
					log.WithError(err).WithField("policy", opts.Policy.ID).Warn("rate limit: store unavailable, failing closed")
				})
				record(r, opts, id, domain.OutcomeFailClosed, 0)
				writeError(w, http.StatusServiceUnavailable, "rate limiter unavailable")
				return
			default:
				log.WithError(err).WithFields(log.Fields{"policy": opts.Policy.ID, "identity": id}).Error("rate limit: misconfigured check")
				writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
				return
			}

			if opts.AddRateLimitHeaders {
				h := w.Header()
				h.Set("X-RateLimit-Limit", formatInt(dec.Limit))
				h.Set("X-RateLimit-Remaining", formatInt(dec.Remaining))
				h.Set("X-RateLimit-Policy", formatInt(opts.Policy.MaxRequests)+";w="+formatInt(windowSeconds(opts.Policy.Window)))
			}

			if !dec.Allowed {
				record(r, opts, id, domain.OutcomeDenied, dec.Count)
				secs := dec.RetryAfterSeconds()
				w.Header().Set("Retry-After", formatInt(secs))
				writeJSON(w, http.StatusTooManyRequests, deniedBody{
					Error:             DeniedMessage,
					Count:             dec.Count,
					RetryAfterSeconds: secs,
				})
				return
			}

			record(r, opts, id, domain.OutcomeAllowed, dec.Count)
			next.ServeHTTP(w, r)
		})
	}
}

// windowSeconds arredonda para cima: janela de 500ms anuncia w=1, nunca w=0.
func windowSeconds(d time.Duration) int64 {
	return int64((d + time.Second - 1) / time.Second)
}

// record é best-effort: falha de estatística nunca muda a resposta, e o prazo
// próprio impede que um store lento segure a requisição.
func record(r *http.Request, opts Options, id domain.Identity, o domain.Outcome, count int64) {
	if opts.Stats == nil {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), opts.StatsTimeout)
	defer cancel()

	err := opts.Stats.Record(ctx, domain.StatsEvent{
		Identity: id,
		Policy:   opts.Policy.ID,
		Outcome:  o,
		Count:    count,
		Method:   r.Method,
		Path:     opts.RouteFn(r),
		At:       time.Now(),
	})
	if err != nil {
		log.WithError(err).Debug("rate limit: stats record failed")
	}
}
