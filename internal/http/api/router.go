// Package api expõe a API HTTP de mídia e analytics atrás do rate limiter.
package api

import (
	"context"
	"net/http"
	"time"

	"media-analytics-api/internal/analytics"
	"media-analytics-api/internal/config"
	"media-analytics-api/middleware/ratelimit"
	"media-analytics-api/middleware/ratelimit/domain"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"
)

type Deps struct {
	DB       *gorm.DB
	Limiter  ratelimit.Checker
	Policies map[string]config.RoutePolicy

	// Stats é opcional; StatsReader nil desliga GET /v1/ratelimit/stats.
	Stats       domain.StatsStore
	StatsReader domain.StatsReader
	// StatsTimeout limita cada gravação de estatística (padrão do middleware se <= 0).
	StatsTimeout time.Duration

	JWTSecret string
	JWTExpiry time.Duration

	TrustXFF    bool
	AddHeaders  bool
	Concurrency ratelimit.ConcurrencyOptions

	// Ping checa dependências no /healthz (opcional), com prazo HealthTimeout.
	Ping          func(ctx context.Context) error
	HealthTimeout time.Duration
}

const defaultHealthTimeout = time.Second

type api struct {
	deps      Deps
	analytics analytics.Service
}

// NewRouter monta as rotas. Cada política nomeada é compartilhada por todas
// as rotas que a usam (ex.: register e login somam no mesmo contador "auth").
func NewRouter(deps Deps) http.Handler {
	a := &api{deps: deps, analytics: analytics.Service{DB: deps.DB}}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(ratelimit.ConcurrencyMiddleware(deps.Concurrency))

	r.Get("/healthz", a.health)

	r.Route("/v1", func(r chi.Router) {
		r.With(a.limit(config.PolicyAuth, a.clientIdentity())).Post("/auth/register", a.register)
		r.With(a.limit(config.PolicyAuth, a.clientIdentity())).Post("/auth/login", a.login)

		r.With(a.requireAuth, a.limit(config.PolicyMediaWrite, userIdentity)).Post("/media", a.createMedia)
		r.With(a.limit(config.PolicyViews, a.clientIdentity())).Get("/media/{id}", a.getMedia)
		r.With(a.optionalAuth, a.limit(config.PolicyViews, a.viewerIdentity())).Post("/media/{id}/views", a.recordView)
		r.With(a.requireAuth, a.limit(config.PolicyAnalytics, userIdentity)).Get("/media/{id}/analytics", a.mediaAnalytics)
		r.With(a.requireAuth, a.limit(config.PolicyAnalytics, userIdentity)).Get("/analytics/top", a.topMedia)
		r.With(a.requireAuth, a.limit(config.PolicyAnalytics, userIdentity)).Get("/ratelimit/stats", a.rateLimitStats)
	})

	return r
}

func (a *api) limit(policy string, identity ratelimit.IdentityFunc) func(http.Handler) http.Handler {
	rp := a.deps.Policies[policy]
	return ratelimit.Middleware(ratelimit.Options{
		Limiter:             a.deps.Limiter,
		Policy:              rp.Policy,
		Identity:            identity,
		FailureMode:         rp.FailureMode,
		Stats:               a.deps.Stats,
		StatsTimeout:        a.deps.StatsTimeout,
		RouteFn:             routePattern,
		AddRateLimitHeaders: a.deps.AddHeaders,
	})
}

// routePattern usa o pattern do chi ("/v1/media/{id}") para não criar uma
// entrada de estatística por id.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	if a.deps.Ping != nil {
		timeout := a.deps.HealthTimeout
		if timeout <= 0 {
			timeout = defaultHealthTimeout
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := a.deps.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
