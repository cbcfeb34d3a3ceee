package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestBodyLimit(t *testing.T) {
	var readErr error
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	})

	req := httptest.NewRequest(http.MethodPost, "/receive", strings.NewReader(strings.Repeat("a", 64)))
	BodyLimit(16)(handler).ServeHTTP(httptest.NewRecorder(), req)

	if readErr == nil {
		t.Fatal("expected oversized body to fail")
	}

	req = httptest.NewRequest(http.MethodPost, "/receive", strings.NewReader("small"))
	BodyLimit(16)(handler).ServeHTTP(httptest.NewRecorder(), req)
	if readErr != nil {
		t.Fatalf("unexpected error: %v", readErr)
	}
}
