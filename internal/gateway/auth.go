package gateway

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/skillminer/memoryd/internal/security"
)

var errUnauthorized = errors.New("unauthorized")

type principalKey struct{}

// principal names who made a request: "bearer" or "basic:<user>".
// Anonymous when auth is not configured.
func principal(ctx context.Context) string {
	if p, ok := ctx.Value(principalKey{}).(string); ok {
		return p
	}
	return "anonymous"
}

// authenticate checks r against the configured credentials. A bearer token
// is tried before basic auth; both compare in constant time.
func (a AuthConfig) authenticate(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok && a.BearerToken != "" {
		if secureEqual(token, a.BearerToken) {
			return "bearer", true
		}
	}
	if a.BasicUser == "" || a.BasicPass == "" {
		return "", false
	}
	user, pass, ok := r.BasicAuth()
	// Evaluate both comparisons so timing does not reveal which one failed.
	userOK, passOK := secureEqual(user, a.BasicUser), secureEqual(pass, a.BasicPass)
	if ok && userOK && passOK {
		return "basic:" + user, true
	}
	return "", false
}

// authMiddleware guards /status and /api. Every attempt is charged to the
// auth bucket before credentials are looked at.
func (g *Gateway) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := g.rateLimiter.Allow(security.BucketAuth); err != nil {
			g.audit(r, security.AuditEvent{Type: security.EventRateLimit, Detail: security.BucketAuth})
			writeError(w, http.StatusTooManyRequests, err)
			return
		}

		who, ok := g.config.Auth.authenticate(r)
		if !ok {
			detail := "invalid credentials"
			if r.Header.Get("Authorization") == "" {
				detail = "missing authorization header"
			}
			g.audit(r, security.AuditEvent{Type: security.EventAuthFailure, Detail: detail})
			w.Header().Set("WWW-Authenticate", `Bearer realm="memoryd"`)
			writeError(w, http.StatusUnauthorized, errUnauthorized)
			return
		}

		r = r.WithContext(context.WithValue(r.Context(), principalKey{}, who))
		g.audit(r, security.AuditEvent{Type: security.EventAuthSuccess})
		next.ServeHTTP(w, r)
	})
}

// limit charges each request to bucket.
func (g *Gateway) limit(bucket string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := g.rateLimiter.Allow(bucket); err != nil {
				g.audit(r, security.AuditEvent{Type: security.EventRateLimit, Detail: bucket})
				writeError(w, http.StatusTooManyRequests, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func secureEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
