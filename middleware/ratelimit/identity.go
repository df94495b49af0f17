package ratelimit

import (
	"net"
	"net/http"
	"strings"

	"media-analytics-api/middleware/ratelimit/domain"
)

// IdentityFunc extrai a identidade do cliente da requisição.
// Retornar "" significa "não sei"; FirstIdentity tenta a próxima.
type IdentityFunc func(r *http.Request) domain.Identity

// ClientAddrIdentity identifica pelo endereço do cliente ("ip:<addr>").
// Nunca retorna vazio.
func ClientAddrIdentity(trustXFF bool) IdentityFunc {
	return func(r *http.Request) domain.Identity {
		return domain.Identity("ip:" + clientAddr(r, trustXFF))
	}
}

// HeaderIdentity identifica pelo valor do header ("key:<valor>").
// Sem header, usa fallback (se houver).
func HeaderIdentity(header string, fallback IdentityFunc) IdentityFunc {
	return func(r *http.Request) domain.Identity {
		if header != "" {
			if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
				return domain.Identity("key:" + v)
			}
		}
		if fallback != nil {
			return fallback(r)
		}
		return ""
	}
}

// FirstIdentity retorna a primeira identidade não vazia.
func FirstIdentity(fns ...IdentityFunc) IdentityFunc {
	return func(r *http.Request) domain.Identity {
		for _, fn := range fns {
			if fn == nil {
				continue
			}
			if id := fn(r); id != "" {
				return id
			}
		}
		return ""
	}
}

func clientAddr(r *http.Request, trustXFF bool) string {
	if trustXFF {
		// pega o primeiro IP do X-Forwarded-For (cliente original)
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}

	// fallback: RemoteAddr
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
