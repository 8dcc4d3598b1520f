package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/pagesmith/pagesmith/internal/security"
)

// authMiddleware validates a Bearer token or Basic credentials using
// constant-time comparison. Failed attempts are counted in the auth failure
// bucket; once it is full every request is refused until the window moves.
// Both audit and limiter may be nil.
func authMiddleware(cfg AuthConfig, audit *security.AuditLogger, limiter *security.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter != nil && limiter.Exhausted(security.BucketAuth) {
				emitAuthEvent(audit, security.EventRateLimit, r, "too many failed attempts")
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}

			if method, ok := authenticate(cfg, r); ok {
				emitAuthEvent(audit, security.EventAuthSuccess, r, method)
				next.ServeHTTP(w, r)
				return
			}

			if limiter != nil {
				_ = limiter.Allow(security.BucketAuth)
			}
			detail := "invalid credentials"
			if r.Header.Get("Authorization") == "" {
				detail = "missing authorization header"
			}
			emitAuthEvent(audit, security.EventAuthFailure, r, detail)
			w.Header().Set("WWW-Authenticate", `Bearer realm="pagesmith"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
		})
	}
}

func authenticate(cfg AuthConfig, r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", false
	}
	if cfg.BearerToken != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok && constantTimeEqual(token, cfg.BearerToken) {
			return "bearer", true
		}
	}
	if cfg.BasicUser != "" && cfg.BasicPass != "" {
		user, pass, ok := r.BasicAuth()
		if ok && constantTimeEqual(user, cfg.BasicUser) && constantTimeEqual(pass, cfg.BasicPass) {
			return "basic", true
		}
	}
	return "", false
}

func emitAuthEvent(audit *security.AuditLogger, eventType security.EventType, r *http.Request, detail string) {
	audit.Log(security.AuditEvent{
		Type:   eventType,
		Remote: r.RemoteAddr,
		Detail: detail,
		Metadata: map[string]string{
			"method": r.Method,
			"path":   r.URL.Path,
		},
	})
}

// constantTimeEqual compares two strings in constant time.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
