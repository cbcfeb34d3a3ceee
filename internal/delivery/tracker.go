package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vonshlovens/spokesync/internal/activity"
	"github.com/vonshlovens/spokesync/internal/domain"
)

// Store persists delivery records
type Store interface {
	GetDelivery(ctx context.Context, documentID int64, destinationID string) (*domain.DeliveryRecord, error)
	MarkDeliveryPending(ctx context.Context, documentID int64, destinationID string, at time.Time) error
	MarkDeliverySucceeded(ctx context.Context, documentID int64, destinationID string, remoteID int64, remoteURL string, at time.Time) error
	MarkDeliveryFailed(ctx context.Context, documentID int64, destinationID, message string, at time.Time) (int, error)
	ListDeliveriesForDocument(ctx context.Context, documentID int64) ([]*domain.DeliveryRecord, error)
	ListFailedDeliveries(ctx context.Context, maxRetries int) ([]*domain.DeliveryRecord, error)
	SweepStuckDeliveries(ctx context.Context, cutoff time.Time, message string) ([]*domain.DeliveryRecord, error)
	PruneDeliveries(ctx context.Context, cutoff time.Time) (int64, error)
	DeliveryReport(ctx context.Context, statuses []domain.DeliveryStatus, limit int) ([]*domain.DeliveryReport, error)
}

// StuckMessage is the error stored on records the sweep gives up on
const StuckMessage = "delivery stuck in pending; marked failed by reconciliation sweep"

// maxErrorLen bounds the error text kept on a record
const maxErrorLen = 4096

// Tracker records one delivery state per (document, destination) pair
type Tracker struct {
	store    Store
	activity *activity.Log
	logger   *slog.Logger
	now      func() time.Time
}

// NewTracker creates a delivery state tracker
func NewTracker(store Store, log *activity.Log, logger *slog.Logger) *Tracker {
	return &Tracker{
		store:    store,
		activity: log,
		logger:   logger.With("component", "delivery"),
		now:      time.Now,
	}
}

// Lookup returns the record for a pair, or nil when the document was never sent there
func (t *Tracker) Lookup(ctx context.Context, documentID int64, destinationID string) (*domain.DeliveryRecord, error) {
	rec, err := t.store.GetDelivery(ctx, documentID, destinationID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up delivery: %w", err)
	}
	return rec, nil
}

// Begin marks an attempt in flight
func (t *Tracker) Begin(ctx context.Context, documentID int64, destinationID string) error {
	return t.store.MarkDeliveryPending(ctx, documentID, destinationID, t.now())
}

// Succeed records a delivered copy
func (t *Tracker) Succeed(ctx context.Context, documentID int64, destinationID string, remoteID int64, remoteURL string) error {
	return t.store.MarkDeliverySucceeded(ctx, documentID, destinationID, remoteID, remoteURL, t.now())
}

// Fail records a failed attempt and returns the retry count so far
func (t *Tracker) Fail(ctx context.Context, documentID int64, destinationID string, cause error) (int, error) {
	msg := "unknown error"
	if cause != nil {
		msg = domain.CleanText(cause.Error(), maxErrorLen)
	}
	return t.store.MarkDeliveryFailed(ctx, documentID, destinationID, msg, t.now())
}

// ForDocument returns every record of a document
func (t *Tracker) ForDocument(ctx context.Context, documentID int64) ([]*domain.DeliveryRecord, error) {
	return t.store.ListDeliveriesForDocument(ctx, documentID)
}

// Failed returns failed records still eligible for retry
func (t *Tracker) Failed(ctx context.Context, maxRetries int) ([]*domain.DeliveryRecord, error) {
	return t.store.ListFailedDeliveries(ctx, maxRetries)
}

// SweepStuck marks pending records older than threshold as failed and logs each one
func (t *Tracker) SweepStuck(ctx context.Context, threshold time.Duration) (int, error) {
	swept, err := t.store.SweepStuckDeliveries(ctx, t.now().Add(-threshold), StuckMessage)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stuck deliveries: %w", err)
	}

	for _, rec := range swept {
		t.activity.Error(ctx, domain.ActionSweep, "delivery stuck, marked failed",
			activity.WithDocument(rec.DocumentID),
			activity.WithDestination(rec.DestinationID),
			activity.With("last_attempt_at", rec.LastAttemptAt.Format(time.RFC3339)),
			activity.With("retry_count", rec.RetryCount),
		)
	}
	if len(swept) > 0 {
		t.logger.Warn("reconciliation sweep marked stuck deliveries failed", "count", len(swept))
	}
	return len(swept), nil
}

// Prune deletes settled records older than the retention horizon
func (t *Tracker) Prune(ctx context.Context, horizon time.Duration) (int64, error) {
	n, err := t.store.PruneDeliveries(ctx, t.now().Add(-horizon))
	if err != nil {
		return 0, fmt.Errorf("failed to prune deliveries: %w", err)
	}
	if n > 0 {
		t.logger.Info("pruned delivery records", "count", n, "horizon", horizon)
	}
	return n, nil
}

// Report lists records for operators, naming removed destinations as deleted
func (t *Tracker) Report(ctx context.Context, statuses []domain.DeliveryStatus, limit int) ([]*domain.DeliveryReport, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := t.store.DeliveryReport(ctx, statuses, limit)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		if r.DestinationName == "" {
			r.DestinationName = domain.DisplayName(nil, r.DestinationID)
		}
	}
	return rows, nil
}
