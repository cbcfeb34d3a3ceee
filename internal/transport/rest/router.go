package rest

import (
	"log/slog"
	"net/http"

	"github.com/vonshlovens/spokesync/internal/transport/middleware"
)

// NewRouter mounts the API. /receive, /update and /status require the
// syndication key; / and /media/{id} are public.
func NewRouter(h *Handler, auth middleware.Middleware, maxBody int64, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	write := middleware.Chain(auth, middleware.BodyLimit(maxBody))
	mux.Handle("POST /receive", write(http.HandlerFunc(h.Receive)))
	mux.Handle("POST /update", write(http.HandlerFunc(h.Update)))
	mux.Handle("PUT /update", write(http.HandlerFunc(h.Update)))
	mux.Handle("GET /status", auth(http.HandlerFunc(h.Status)))

	mux.HandleFunc("GET /media/{id}", h.Media)
	mux.HandleFunc("GET /{$}", h.Root)

	return middleware.Chain(
		middleware.RequestID,
		middleware.Logger(logger),
		middleware.Recovery(logger),
	)(mux)
}
