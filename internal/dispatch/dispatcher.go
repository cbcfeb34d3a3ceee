package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vonshlovens/spokesync/internal/activity"
	"github.com/vonshlovens/spokesync/internal/delivery"
	"github.com/vonshlovens/spokesync/internal/domain"
	"github.com/vonshlovens/spokesync/internal/keylock"
	"github.com/vonshlovens/spokesync/internal/media"
	"github.com/vonshlovens/spokesync/internal/registry"
	"github.com/vonshlovens/spokesync/internal/transform"
)

// Config tunes the dispatcher
type Config struct {
	// SiteURL is this hub's public URL; media is served from {SiteURL}/media/{id}
	SiteURL string
	Workers int
}

// Dispatcher pushes documents to destinations and tracks the outcome of each
type Dispatcher struct {
	registry *registry.Registry
	tracker  *delivery.Tracker
	pipeline *transform.Pipeline
	client   *Client
	activity *activity.Log
	logger   *slog.Logger
	cfg      Config

	docLocks *keylock.Map[int64]
}

// New creates a dispatcher
func New(
	reg *registry.Registry,
	tracker *delivery.Tracker,
	pipeline *transform.Pipeline,
	client *Client,
	log *activity.Log,
	cfg Config,
	logger *slog.Logger,
) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Dispatcher{
		registry: reg,
		tracker:  tracker,
		pipeline: pipeline,
		client:   client,
		activity: log,
		logger:   logger.With("component", "dispatch"),
		cfg:      cfg,
		docLocks: keylock.New[int64](),
	}
}

// Dispatch sends doc to every destination, each independently. A second call
// for the same document waits for the first to finish; the only error is the
// caller's context ending while waiting.
func (d *Dispatcher) Dispatch(ctx context.Context, doc *domain.Document, destinationIDs []string) (map[string]domain.Result, error) {
	release, err := d.docLocks.Lock(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("waiting for dispatch lock on document %d: %w", doc.ID, err)
	}
	defer release()

	var (
		mu      sync.Mutex
		results = make(map[string]domain.Result, len(destinationIDs))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Workers)

	seen := make(map[string]bool, len(destinationIDs))
	for _, id := range destinationIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		g.Go(func() error {
			res := d.dispatchOne(gctx, doc, id)
			mu.Lock()
			results[id] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	d.logger.Info("dispatch complete", "document_id", doc.ID, "path", doc.Path, "summary", Summarize(results))
	return results, nil
}

// Update dispatches doc only to destinations that already hold a copy and are
// still selected. Destinations that were deselected are left untouched.
func (d *Dispatcher) Update(ctx context.Context, doc *domain.Document, selected []string) (map[string]domain.Result, error) {
	records, err := d.tracker.ForDocument(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load deliveries: %w", err)
	}

	want := make(map[string]bool, len(selected))
	for _, id := range selected {
		want[id] = true
	}

	var targets []string
	for _, rec := range records {
		if rec.HasRemote() && want[rec.DestinationID] {
			targets = append(targets, rec.DestinationID)
		}
	}
	if len(targets) == 0 {
		return map[string]domain.Result{}, nil
	}
	return d.Dispatch(ctx, doc, targets)
}

// DocumentLoader loads documents for retries
type DocumentLoader interface {
	GetDocument(ctx context.Context, id int64) (*domain.Document, error)
}

// Retry re-dispatches failed deliveries still under maxRetries, one
// dispatch per document. Documents that no longer exist are skipped.
func (d *Dispatcher) Retry(ctx context.Context, loader DocumentLoader, maxRetries int) (map[int64]map[string]domain.Result, error) {
	failed, err := d.tracker.Failed(ctx, maxRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed deliveries: %w", err)
	}

	byDoc := make(map[int64][]string)
	var order []int64
	for _, rec := range failed {
		if _, ok := byDoc[rec.DocumentID]; !ok {
			order = append(order, rec.DocumentID)
		}
		byDoc[rec.DocumentID] = append(byDoc[rec.DocumentID], rec.DestinationID)
	}

	out := make(map[int64]map[string]domain.Result, len(order))
	for _, docID := range order {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		doc, err := loader.GetDocument(ctx, docID)
		if errors.Is(err, domain.ErrNotFound) {
			d.logger.Warn("skipping retry for missing document", "document_id", docID)
			continue
		}
		if err != nil {
			return out, fmt.Errorf("failed to load document %d: %w", docID, err)
		}

		res, err := d.Dispatch(ctx, doc, byDoc[docID])
		if err != nil {
			return out, err
		}
		out[docID] = res
	}
	return out, nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, doc *domain.Document, destID string) domain.Result {
	res := domain.Result{DestinationID: destID}
	logger := d.logger.With("document_id", doc.ID, "destination_id", destID)

	conn, err := d.registry.Get(ctx, destID)
	if err != nil {
		res.Outcome = domain.OutcomeSkipped
		if errors.Is(err, domain.ErrNotFound) {
			res.Err = &domain.FatalConfigurationError{DestinationID: destID}
		} else {
			res.Err = fmt.Errorf("failed to load destination: %w", err)
		}
		d.activity.Error(ctx, domain.ActionDispatch, res.Err.Error(),
			activity.WithDocument(doc.ID), activity.WithDestination(destID))
		return res
	}
	if !conn.IsActive() {
		logger.Debug("skipping destination that is not active", "status", conn.Status)
		res.Outcome = domain.OutcomeSkipped
		return res
	}

	rec, err := d.tracker.Lookup(ctx, doc.ID, destID)
	if err != nil {
		return d.fail(ctx, doc, conn, res, err)
	}
	res.Operation = domain.OpCreate
	if rec.HasRemote() {
		res.Operation = domain.OpUpdate
	}

	d.client.EnsureAwake(ctx, conn)

	if err := d.tracker.Begin(ctx, doc.ID, destID); err != nil {
		logger.Warn("failed to mark delivery pending", "error", err)
	}

	payload := d.pipeline.Transform(ctx, doc, conn)
	d.attachMedia(payload)

	resp, err := d.client.Send(ctx, conn, res.Operation, payload)
	if err != nil && res.Operation == domain.OpUpdate && IsNotFound(err) {
		d.activity.Info(ctx, domain.ActionDispatch, "remote copy missing, recreating",
			activity.WithDocument(doc.ID),
			activity.WithDestination(destID),
			activity.With("remote_id", rec.RemoteID))
		res.Operation = domain.OpCreate
		res.Degraded = true
		resp, err = d.client.Send(ctx, conn, domain.OpCreate, payload)
	}
	if err != nil {
		return d.fail(ctx, doc, conn, res, err)
	}

	res.Outcome = domain.OutcomeDelivered
	res.RemoteID = resp.PostID
	res.RemoteURL = resp.PostURL
	if res.RemoteID == 0 && rec != nil {
		res.RemoteID = rec.RemoteID
		if res.RemoteURL == "" {
			res.RemoteURL = rec.RemoteURL
		}
	}
	if res.RemoteID == 0 {
		logger.Warn("destination did not report a post id; the next dispatch will create again")
	}

	if err := d.tracker.Succeed(ctx, doc.ID, destID, res.RemoteID, res.RemoteURL); err != nil {
		logger.Error("failed to record delivery", "error", err)
	}
	if err := d.registry.Touch(ctx, destID); err != nil {
		logger.Warn("failed to record last contact", "error", err)
	}

	d.activity.Success(ctx, domain.ActionDispatch, fmt.Sprintf("%s delivered to %s", doc.Title, domain.DisplayName(conn, destID)),
		activity.WithDocument(doc.ID),
		activity.WithDestination(destID),
		activity.With("operation", string(res.Operation)),
		activity.With("remote_id", res.RemoteID),
		activity.With("remote_url", res.RemoteURL))
	return res
}

func (d *Dispatcher) fail(ctx context.Context, doc *domain.Document, conn *domain.Connection, res domain.Result, cause error) domain.Result {
	res.Outcome = domain.OutcomeFailed
	res.Err = cause

	retries, err := d.tracker.Fail(ctx, doc.ID, conn.ID, cause)
	if err != nil {
		d.logger.Error("failed to record failed delivery", "document_id", doc.ID, "destination_id", conn.ID, "error", err)
	}

	opts := []activity.Option{
		activity.WithDocument(doc.ID),
		activity.WithDestination(conn.ID),
		activity.With("operation", string(res.Operation)),
		activity.With("retry_count", retries),
		activity.With("error", cause.Error()),
	}
	var te *domain.TransientDeliveryError
	if errors.As(cause, &te) && te.Status != 0 {
		opts = append(opts, activity.With("status", te.Status))
	}
	d.activity.Error(ctx, domain.ActionDispatch,
		fmt.Sprintf("%s failed for %s", doc.Title, domain.DisplayName(conn, conn.ID)), opts...)
	return res
}

// attachMedia lists every media item the body references in the gallery so
// the receiver can fetch them, and fills in hub URLs where they are missing
func (d *Dispatcher) attachMedia(p *domain.Payload) {
	have := make(map[int64]bool, len(p.Gallery))
	for i := range p.Gallery {
		if p.Gallery[i].URL == "" {
			p.Gallery[i].URL = domain.MediaURL(d.cfg.SiteURL, p.Gallery[i].ID)
		}
		have[p.Gallery[i].ID] = true
	}
	for _, id := range media.HarvestReferences(p.Content) {
		if have[id] {
			continue
		}
		have[id] = true
		p.Gallery = append(p.Gallery, domain.MediaRef{ID: id, URL: domain.MediaURL(d.cfg.SiteURL, id)})
	}
	if p.FeaturedImage != nil && p.FeaturedImage.URL == "" {
		p.FeaturedImage.URL = domain.MediaURL(d.cfg.SiteURL, p.FeaturedImage.ID)
	}
}

// Summarize counts outcomes for logging
func Summarize(results map[string]domain.Result) map[domain.Outcome]int {
	out := make(map[domain.Outcome]int, 3)
	for _, r := range results {
		out[r.Outcome]++
	}
	return out
}
