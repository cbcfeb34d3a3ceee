package rest

import (
	"bytes"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/vonshlovens/spokesync/internal/domain"
)

// Media handles GET /media/{id}. Items are public so spokes can fetch them
// without credentials.
func (h *Handler) Media(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.NotFound(w, r)
		return
	}

	item, err := h.media.GetMedia(r.Context(), id)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			h.log.ErrorContext(r.Context(), "failed to load media", slog.Int64("media_id", id), slog.String("error", err.Error()))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		http.NotFound(w, r)
		return
	}

	if item.MimeType != "" {
		w.Header().Set("Content-Type", item.MimeType)
	}
	if item.Filename != "" {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": item.Filename}))
	}
	if item.ContentHash != "" {
		w.Header().Set("ETag", strconv.Quote(item.ContentHash))
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")

	http.ServeContent(w, r, item.Filename, item.CreatedAt, bytes.NewReader(item.Data))
}
