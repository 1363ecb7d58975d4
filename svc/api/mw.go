package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"punt/cfg"
	"punt/metrics"
	"punt/pkg/domain"
	"punt/svc/lim"
	"punt/svc/svc"
	"punt/svc/util"
)

type identityKey struct{}

// Identity returns the caller identity resolved by the Auth middleware.
// Every request carries one; only authenticated requests have an OwnerID.
func Identity(ctx context.Context) domain.Identity {
	if ident, ok := ctx.Value(identityKey{}).(domain.Identity); ok {
		return ident
	}
	return domain.Identity{}
}

type Mw struct {
	lim    *lim.Limiter
	tokens *svc.Tokens
	cfg    *cfg.Cfg
}

func NewMw(limiter *lim.Limiter, tokens *svc.Tokens, c *cfg.Cfg) *Mw {
	return &Mw{lim: limiter, tokens: tokens, cfg: c}
}

func (m *Mw) RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := util.NewRequestID()
		ctx := util.SetRequestID(r.Context(), requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Mw) ContextTimeout(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), m.cfg.ContextTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Mw) SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none';")
		w.Header().Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		next.ServeHTTP(w, r)
	})
}

func (m *Mw) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				requestID := util.GetRequestID(r.Context())
				util.Error().
					Interface("panic", rvr).
					Str("request_id", requestID).
					Msg("panic recovered")
				if w.Header().Get("Content-Type") == "" {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error":      "internal server error",
						"request_id": requestID,
					})
				}
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (m *Mw) CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowed := false
		for _, a := range m.cfg.AllowedOrigins {
			if a == "*" || origin == a {
				allowed = true
				break
			}
		}
		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-TTL, X-Burn-After-Read, X-Private, X-Language")
			w.Header().Set("Access-Control-Max-Age", "300")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Auth resolves the caller identity. A valid bearer token yields an
// authenticated identity; anything else falls back to the network address.
// A present-but-invalid token is a hard 401, never a silent downgrade to
// anonymous.
func (m *Mw) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addr := lim.GetRealIP(r, m.cfg.TrustedProxies)
		ident := domain.Identity{Addr: addr}
		if header := r.Header.Get("Authorization"); header != "" {
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				writeErr(w, domain.ErrUnauthorized, util.GetRequestID(r.Context()))
				return
			}
			resolved, err := m.tokens.Validate(r.Context(), token)
			if err != nil {
				if !errors.Is(err, domain.ErrUnauthorized) {
					util.Error().Err(err).Msg("token validation failed")
					err = domain.ErrInternalServer
				}
				writeErr(w, err, util.GetRequestID(r.Context()))
				return
			}
			ident.OwnerID = resolved.OwnerID
		}
		ctx := context.WithValue(r.Context(), identityKey{}, ident)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth rejects requests whose identity has no owner. Mount after Auth.
func (m *Mw) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !Identity(r.Context()).Authenticated() {
			writeErr(w, domain.ErrUnauthorized, util.GetRequestID(r.Context()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Quota gates an endpoint on the named operation's window. The matching
// Increment happens in the handler, after the guarded operation succeeds.
func (m *Mw) Quota(op lim.Op) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ident := Identity(r.Context())
			result := m.lim.Check(r.Context(), ident, op)
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", result.Limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", result.Remaining))
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", result.ResetAt.Unix()))
			if !result.Allowed {
				metrics.QuotaRejections.WithLabelValues(string(op)).Inc()
				util.Warn().
					Str("identity", ident.Key()).
					Str("op", string(op)).
					Msg("quota exceeded")
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(time.Until(result.ResetAt).Seconds())))
				writeErr(w, domain.ErrRateLimited, util.GetRequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m *Mw) BasicAuthMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.cfg.MetricsUser == "" && m.cfg.MetricsPass.Value() == "" {
			next.ServeHTTP(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		userMatch := 0
		passMatch := 0
		if ok {
			userMatch = subtle.ConstantTimeCompare([]byte(user), []byte(m.cfg.MetricsUser))
			passMatch = subtle.ConstantTimeCompare([]byte(pass), []byte(m.cfg.MetricsPass.Value()))
		}
		if !ok || userMatch != 1 || passMatch != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="metrics"`)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("Unauthorized\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
