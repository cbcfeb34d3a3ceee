package middleware

import (
	"context"
	"net/http"

	"github.com/vonshlovens/spokesync/internal/domain"
)

// KeyHeader is the shared-secret header sent by hubs
const KeyHeader = "X-Syndication-Key"

type authenticator interface {
	Authenticate(ctx context.Context, key string) (*domain.Connection, error)
}

type sourceKey struct{}

// Auth rejects requests whose key matches no active inbound connection.
// The matched connection is stored on the request context.
func Auth(auth authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			src, err := auth.Authenticate(r.Context(), r.Header.Get(KeyHeader))
			if err != nil || src == nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte("{}"))
				return
			}
			ctx := context.WithValue(r.Context(), sourceKey{}, src)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SourceFromContext returns the authenticated source connection, if any
func SourceFromContext(ctx context.Context) *domain.Connection {
	c, _ := ctx.Value(sourceKey{}).(*domain.Connection)
	return c
}
