package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/openharvest/outreach-platform/internal/identity"
	"github.com/openharvest/outreach-platform/internal/session"
)

type contextKey string

const sessionClaimsKey contextKey = "sessionClaims"

// SessionAuth validates the bearer session token and rejects revoked
// tokens. Role checks are layered on with RequireRole; hiding controls
// in the UI is presentation, this is the security boundary.
func SessionAuth(tokens *identity.TokenIssuer, revoker session.Revoker) func(http.Handler) http.Handler {
	if revoker == nil {
		revoker = session.NopRevoker{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}

			claims, err := tokens.Parse(strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				http.Error(w, "invalid session token", http.StatusUnauthorized)
				return
			}

			revoked, err := revoker.IsRevoked(r.Context(), claims.ID)
			if err != nil {
				http.Error(w, "session check unavailable", http.StatusServiceUnavailable)
				return
			}
			if revoked {
				http.Error(w, "session has been signed out", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), sessionClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole allows the request through only when the session role is
// one of the given roles.
func RequireRole(roles ...identity.Role) func(http.Handler) http.Handler {
	allowed := make(map[identity.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := SessionFromContext(r.Context())
			if !ok {
				http.Error(w, "missing session", http.StatusUnauthorized)
				return
			}
			if _, ok := allowed[claims.Role]; !ok {
				http.Error(w, "insufficient privileges", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SessionFromContext returns the validated session claims, if any.
func SessionFromContext(ctx context.Context) (*identity.SessionClaims, bool) {
	claims, ok := ctx.Value(sessionClaimsKey).(*identity.SessionClaims)
	return claims, ok
}

// WithSession injects claims into a context; exported for handler
// tests.
func WithSession(ctx context.Context, claims *identity.SessionClaims) context.Context {
	return context.WithValue(ctx, sessionClaimsKey, claims)
}
