package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vonshlovens/spokesync/internal/domain"
)

type keyAuth map[string]*domain.Connection

func (k keyAuth) Authenticate(_ context.Context, key string) (*domain.Connection, error) {
	if c, ok := k[key]; ok {
		return c, nil
	}
	return nil, domain.ErrUnauthorized
}

func TestAuth(t *testing.T) {
	hub := &domain.Connection{ID: "hub-1", Role: domain.RoleInbound, Status: domain.ConnectionActive}
	auth := keyAuth{"s3cret": hub}

	tests := []struct {
		name   string
		key    string
		status int
	}{
		{"valid key", "s3cret", http.StatusOK},
		{"wrong key", "nope", http.StatusUnauthorized},
		{"missing key", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *domain.Connection
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = SourceFromContext(r.Context())
			})

			req := httptest.NewRequest(http.MethodPost, "/receive", nil)
			if tt.key != "" {
				req.Header.Set(KeyHeader, tt.key)
			}
			rec := httptest.NewRecorder()
			Auth(auth)(handler).ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, rec.Code)
			}
			if tt.status == http.StatusOK {
				if got != hub {
					t.Errorf("expected source in context, got %v", got)
				}
				return
			}
			if got != nil {
				t.Error("handler should not run without a valid key")
			}
			if body := rec.Body.String(); body != "{}" {
				t.Errorf("expected empty JSON body, got %q", body)
			}
		})
	}
}
