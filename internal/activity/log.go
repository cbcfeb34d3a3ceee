package activity

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vonshlovens/spokesync/internal/domain"
)

// Store persists activity entries
type Store interface {
	InsertActivity(ctx context.Context, e *domain.ActivityEntry) error
	RecentActivity(ctx context.Context, severity domain.Severity, limit int) ([]*domain.ActivityEntry, error)
	ActivityStats(ctx context.Context, since time.Time) (domain.ActivityStat, error)
	PruneActivity(ctx context.Context, cutoff time.Time) (int64, error)
}

// Log is the append-only activity log. Every entry is mirrored to slog.
type Log struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// New creates an activity log
func New(store Store, logger *slog.Logger) *Log {
	return &Log{
		store:  store,
		logger: logger.With("component", "activity"),
		now:    time.Now,
	}
}

// Option decorates an entry
type Option func(*domain.ActivityEntry)

// WithDocument attaches a document id
func WithDocument(id int64) Option {
	return func(e *domain.ActivityEntry) {
		if id > 0 {
			e.DocumentID = &id
		}
	}
}

// WithDestination attaches a connection id
func WithDestination(id string) Option {
	return func(e *domain.ActivityEntry) {
		if id != "" {
			e.DestinationID = &id
		}
	}
}

// With adds a key/value pair to the structured payload
func With(key string, value any) Option {
	return func(e *domain.ActivityEntry) {
		if e.Payload == nil {
			e.Payload = make(map[string]any)
		}
		e.Payload[key] = value
	}
}

// Record appends an entry. The store write is best effort: a failure is
// logged and returned but never blocks the caller's own work.
func (l *Log) Record(ctx context.Context, e domain.ActivityEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now()
	}

	l.logger.Log(ctx, level(e.Severity), e.Message, attrs(&e)...)

	if err := l.store.InsertActivity(ctx, &e); err != nil {
		l.logger.Warn("failed to persist activity entry", "action", e.Action, "error", err)
		return err
	}
	return nil
}

func (l *Log) record(ctx context.Context, sev domain.Severity, action, message string, opts []Option) {
	e := domain.ActivityEntry{Severity: sev, Action: action, Message: message}
	for _, opt := range opts {
		opt(&e)
	}
	_ = l.Record(ctx, e)
}

// Success records a successful outcome
func (l *Log) Success(ctx context.Context, action, message string, opts ...Option) {
	l.record(ctx, domain.SeveritySuccess, action, message, opts)
}

// Error records a failure
func (l *Log) Error(ctx context.Context, action, message string, opts ...Option) {
	l.record(ctx, domain.SeverityError, action, message, opts)
}

// Warning records a degraded outcome
func (l *Log) Warning(ctx context.Context, action, message string, opts ...Option) {
	l.record(ctx, domain.SeverityWarning, action, message, opts)
}

// Info records an informational fact
func (l *Log) Info(ctx context.Context, action, message string, opts ...Option) {
	l.record(ctx, domain.SeverityInfo, action, message, opts)
}

// Recent returns the newest entries, optionally only one severity
func (l *Log) Recent(ctx context.Context, severity domain.Severity, limit int) ([]*domain.ActivityEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	return l.store.RecentActivity(ctx, severity, limit)
}

// Stats summarises the last 24 hours
func (l *Log) Stats(ctx context.Context) (domain.ActivityStat, error) {
	return l.store.ActivityStats(ctx, l.now().Add(-24*time.Hour))
}

// Prune removes entries older than the retention horizon
func (l *Log) Prune(ctx context.Context, horizon time.Duration) (int64, error) {
	n, err := l.store.PruneActivity(ctx, l.now().Add(-horizon))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		l.logger.Info("pruned activity entries", "count", n, "horizon", horizon)
	}
	return n, nil
}

func level(s domain.Severity) slog.Level {
	switch s {
	case domain.SeverityError:
		return slog.LevelError
	case domain.SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

func attrs(e *domain.ActivityEntry) []any {
	out := []any{"action", e.Action, "severity", string(e.Severity)}
	if e.DocumentID != nil {
		out = append(out, "document_id", *e.DocumentID)
	}
	if e.DestinationID != nil {
		out = append(out, "destination_id", *e.DestinationID)
	}
	for k, v := range e.Payload {
		out = append(out, k, v)
	}
	return out
}
