package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"media-analytics-api/internal/security"
	"media-analytics-api/middleware/ratelimit"
	"media-analytics-api/middleware/ratelimit/domain"

	log "github.com/sirupsen/logrus"
)

type userKey struct{}

// UserFromContext devolve o usuário autenticado pela requisição, se houver.
func UserFromContext(ctx context.Context) (uint64, bool) {
	id, ok := ctx.Value(userKey{}).(uint64)
	return id, ok
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func (a *api) authenticate(r *http.Request) (uint64, error) {
	claims, err := security.ParseToken(a.deps.JWTSecret, bearerToken(r))
	if err != nil {
		return 0, err
	}
	return claims.UserID()
}

// requireAuth exige "Authorization: Bearer <token>" válido.
func (a *api) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if bearerToken(r) == "" {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		id, err := a.authenticate(r)
		if err != nil {
			log.WithError(err).Debug("api: token rejected")
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, id)))
	})
}

// optionalAuth aceita requisição anônima; token presente precisa ser válido.
func (a *api) optionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if bearerToken(r) == "" {
			next.ServeHTTP(w, r)
			return
		}
		a.requireAuth(next).ServeHTTP(w, r)
	})
}

// userIdentity identifica pelo usuário autenticado ("user:<id>").
func userIdentity(r *http.Request) domain.Identity {
	id, ok := UserFromContext(r.Context())
	if !ok {
		return ""
	}
	return domain.Identity("user:" + strconv.FormatUint(id, 10))
}

func (a *api) clientIdentity() ratelimit.IdentityFunc {
	return ratelimit.ClientAddrIdentity(a.deps.TrustXFF)
}

// viewerIdentity prefere o usuário e cai para o endereço do cliente.
func (a *api) viewerIdentity() ratelimit.IdentityFunc {
	return ratelimit.FirstIdentity(userIdentity, a.clientIdentity())
}
