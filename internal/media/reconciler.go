package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"

	"github.com/vonshlovens/spokesync/internal/domain"
	"github.com/vonshlovens/spokesync/internal/hash"
)

// Store is the destination media library
type Store interface {
	GetMediaBySourceURL(ctx context.Context, sourceURL string) (*domain.MediaItem, error)
	UpsertMediaBySourceURL(ctx context.Context, item *domain.MediaItem) (int64, error)
}

// Config controls media fetching
type Config struct {
	SiteURL  string
	Timeout  time.Duration
	MaxBytes int64
	Workers  int
}

// Reconciler moves media between the source and the local library and
// rewrites references in document bodies
type Reconciler struct {
	store  Store
	client *http.Client
	cfg    Config
	logger *slog.Logger
}

// NewReconciler creates a media reconciler
func NewReconciler(store Store, client *http.Client, cfg Config, logger *slog.Logger) *Reconciler {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Reconciler{
		store:  store,
		client: client,
		cfg:    cfg,
		logger: logger.With("component", "media"),
	}
}

// Materialize fetches the media items a source site serves at /media/{id}
// and registers them locally
func (r *Reconciler) Materialize(ctx context.Context, ids []int64, sourceBaseURL string) (map[int64]domain.MediaReference, []*domain.MediaFetchError) {
	refs := make([]domain.MediaRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, domain.MediaRef{ID: id, URL: domain.MediaURL(sourceBaseURL, id)})
	}
	return r.MaterializeRefs(ctx, refs)
}

// MaterializeRefs fetches each referenced item. A failed item is reported
// and left out of the map; the others still go through.
func (r *Reconciler) MaterializeRefs(ctx context.Context, refs []domain.MediaRef) (map[int64]domain.MediaReference, []*domain.MediaFetchError) {
	var (
		mu       sync.Mutex
		out      = make(map[int64]domain.MediaReference, len(refs))
		failures []*domain.MediaFetchError
		seen     = make(map[int64]bool, len(refs))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)

	for _, ref := range refs {
		if ref.ID <= 0 || seen[ref.ID] {
			continue
		}
		seen[ref.ID] = true

		g.Go(func() error {
			mr, err := r.materialize(gctx, ref)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				fe := &domain.MediaFetchError{ID: ref.ID, URL: ref.URL, Err: err}
				r.logger.Warn("media fetch failed", "source_id", ref.ID, "url", ref.URL, "error", err)
				failures = append(failures, fe)
				return nil
			}
			out[ref.ID] = mr
			return nil
		})
	}
	_ = g.Wait()

	return out, failures
}

// Rewrite applies an id mapping to body, including literal source URLs.
// Unmapped ids are kept and logged.
func (r *Reconciler) Rewrite(body string, refs map[int64]domain.MediaReference) string {
	idMap := make(map[int64]int64, len(refs))
	urls := make(map[string]string, len(refs))
	for src, ref := range refs {
		idMap[src] = ref.DestinationID
		urls[ref.SourceURL] = ref.DestinationURL
	}

	out, unmapped := RewriteBody(body, idMap)
	for _, id := range unmapped {
		r.logger.Warn("media reference left unmapped, it will render as a broken embed", "source_id", id)
	}
	return ReplaceURLs(out, urls)
}

func (r *Reconciler) materialize(ctx context.Context, ref domain.MediaRef) (domain.MediaReference, error) {
	mr := domain.MediaReference{SourceID: ref.ID, SourceURL: ref.URL}

	existing, err := r.store.GetMediaBySourceURL(ctx, ref.URL)
	switch {
	case err == nil:
		mr.DestinationID = existing.ID
		mr.DestinationURL = domain.MediaURL(r.cfg.SiteURL, existing.ID)
		return mr, nil
	case !errors.Is(err, domain.ErrNotFound):
		return mr, err
	}

	item, err := r.fetch(ctx, ref)
	if err != nil {
		return mr, err
	}

	id, err := r.store.UpsertMediaBySourceURL(ctx, item)
	if err != nil {
		return mr, fmt.Errorf("failed to store media: %w", err)
	}

	mr.DestinationID = id
	mr.DestinationURL = domain.MediaURL(r.cfg.SiteURL, id)
	r.logger.Debug("media materialized", "source_id", ref.ID, "local_id", id, "bytes", item.Size)
	return mr, nil
}

func (r *Reconciler) fetch(ctx context.Context, ref domain.MediaRef) (*domain.MediaItem, error) {
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	limit := r.cfg.MaxBytes
	if limit <= 0 {
		limit = 50 << 20
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("media exceeds %d bytes", limit)
	}

	return &domain.MediaItem{
		SourceURL:   ref.URL,
		Filename:    filename(ref, resp),
		MimeType:    mimeType(resp, data),
		Size:        int64(len(data)),
		ContentHash: hash.Bytes(data),
		Data:        data,
	}, nil
}

func filename(ref domain.MediaRef, resp *http.Response) string {
	if ref.Filename != "" {
		return ref.Filename
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil && params["filename"] != "" {
			return path.Base(params["filename"])
		}
	}
	if u, err := url.Parse(ref.URL); err == nil {
		if base := path.Base(u.Path); base != "" && base != "/" && base != "." {
			return base
		}
	}
	return fmt.Sprintf("media-%d", ref.ID)
}

func mimeType(resp *http.Response, data []byte) string {
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil && mt != "application/octet-stream" {
			return mt
		}
	}
	return mimetype.Detect(data).String()
}
