// Package identity resolves the authenticated user behind each request.
package identity

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/goalgetter/goalgetter/internal/domain"
	"github.com/goalgetter/goalgetter/internal/store"
)

type contextKey int

const userKey contextKey = iota

// UserFromContext returns the authenticated user, or nil when the request
// carried no valid token.
func UserFromContext(ctx context.Context) *domain.User {
	if u, ok := ctx.Value(userKey).(*domain.User); ok {
		return u
	}
	return nil
}

// WithUser returns a context carrying the authenticated user. Exposed for
// handler tests.
func WithUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// tokenFromRequest reads the API token from the Authorization header, falling
// back to the token query parameter for websocket clients that cannot set
// headers.
func tokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(after)
		}
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// Middleware authenticates requests by API token and injects the resolved
// user into the request context.
func Middleware(users store.UserStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if token == "" {
				unauthorized(w, "missing API token")
				return
			}

			user, err := users.GetUserByToken(r.Context(), token)
			if err != nil {
				http.Error(w, `{"error":"failed to resolve user"}`, http.StatusInternalServerError)
				return
			}
			if user == nil {
				unauthorized(w, "invalid API token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}

// IPFromRequest returns a normalized remote IP for rate limiting.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
