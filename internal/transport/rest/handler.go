package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/vonshlovens/spokesync/internal/domain"
	"github.com/vonshlovens/spokesync/internal/transport/middleware"
)

type receiverService interface {
	Create(ctx context.Context, source *domain.Connection, p *domain.Payload) (*domain.ReceiveResponse, error)
	Update(ctx context.Context, source *domain.Connection, p *domain.Payload) (*domain.ReceiveResponse, error)
}

type mediaStore interface {
	GetMedia(ctx context.Context, id int64) (*domain.MediaItem, error)
}

type statsProvider interface {
	Stats(ctx context.Context) (domain.ActivityStat, error)
}

// Info describes this site on GET /status
type Info struct {
	Version string
	Role    string
	SiteURL string
}

// Handler serves the receiving API and the public media library
type Handler struct {
	receiver receiverService
	media    mediaStore
	stats    statsProvider
	info     Info
	log      *slog.Logger
}

// NewHandler creates a Handler
func NewHandler(recv receiverService, media mediaStore, stats statsProvider, info Info, logger *slog.Logger) *Handler {
	return &Handler{
		receiver: recv,
		media:    media,
		stats:    stats,
		info:     info,
		log:      logger.With("handler", "rest"),
	}
}

// Receive handles POST /receive
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	h.handlePayload(w, r, h.receiver.Create, http.StatusCreated)
}

// Update handles POST|PUT /update. A degraded update that created the
// document still answers 200.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	h.handlePayload(w, r, h.receiver.Update, http.StatusOK)
}

type receiveFunc func(context.Context, *domain.Connection, *domain.Payload) (*domain.ReceiveResponse, error)

func (h *Handler) handlePayload(w http.ResponseWriter, r *http.Request, fn receiveFunc, okStatus int) {
	source := middleware.SourceFromContext(r.Context())
	if source == nil {
		writeJSON(w, http.StatusUnauthorized, struct{}{})
		return
	}

	var p domain.Payload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := fn(r.Context(), source, &p)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, okStatus, resp)
}

// Status handles GET /status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Stats(r.Context())
	if err != nil {
		h.log.WarnContext(r.Context(), "failed to load activity stats", slog.String("error", err.Error()))
	}
	writeJSON(w, http.StatusOK, domain.StatusResponse{
		Status:  "ok",
		Version: h.info.Version,
		Role:    h.info.Role,
		SiteURL: h.info.SiteURL,
		Stats:   stats,
	})
}

// Root handles GET / and only proves the process is up
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, domain.ReceiveResponse{
			Message: "invalid payload",
			Errors:  ve.Errors,
		})
	case errors.Is(err, domain.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, struct{}{})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		h.log.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, domain.ReceiveResponse{Message: msg})
}
