package middleware

import "net/http"

// Middleware wraps an http.Handler
type Middleware func(http.Handler) http.Handler

// Chain combines middleware so that Chain(a, b)(h) == a(b(h)); a runs first
func Chain(mws ...Middleware) Middleware {
	return func(final http.Handler) http.Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			final = mws[i](final)
		}
		return final
	}
}
