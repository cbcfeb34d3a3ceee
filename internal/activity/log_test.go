package activity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vonshlovens/spokesync/internal/domain"
)

type fakeStore struct {
	mu      sync.Mutex
	entries []*domain.ActivityEntry
	failErr error
	cutoff  time.Time
}

func (f *fakeStore) InsertActivity(_ context.Context, e *domain.ActivityEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeStore) RecentActivity(_ context.Context, severity domain.Severity, limit int) ([]*domain.ActivityEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.ActivityEntry
	for i := len(f.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if severity == "" || f.entries[i].Severity == severity {
			out = append(out, f.entries[i])
		}
	}
	return out, nil
}

func (f *fakeStore) ActivityStats(_ context.Context, since time.Time) (domain.ActivityStat, error) {
	return domain.ActivityStat{}, nil
}

func (f *fakeStore) PruneActivity(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 2, nil
}

func newTestLog(store Store) *Log {
	l := New(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	l.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return l
}

func TestLog_RecordFillsIdentity(t *testing.T) {
	store := &fakeStore{}
	l := newTestLog(store)

	l.Error(context.Background(), domain.ActionDispatch, "delivery failed",
		WithDocument(7), WithDestination("dest-1"), With("status", 500))

	require.Len(t, store.entries, 1)
	e := store.entries[0]
	assert.NotEqual(t, [16]byte{}, [16]byte(e.ID))
	assert.Equal(t, domain.SeverityError, e.Severity)
	assert.Equal(t, int64(7), *e.DocumentID)
	assert.Equal(t, "dest-1", *e.DestinationID)
	assert.Equal(t, 500, e.Payload["status"])
	assert.Equal(t, 2026, e.CreatedAt.Year())
}

func TestLog_OptionalIDsStayNil(t *testing.T) {
	store := &fakeStore{}
	l := newTestLog(store)

	l.Info(context.Background(), domain.ActionSweep, "nothing to do", WithDocument(0), WithDestination(""))

	require.Len(t, store.entries, 1)
	assert.Nil(t, store.entries[0].DocumentID)
	assert.Nil(t, store.entries[0].DestinationID)
}

func TestLog_StoreFailureIsReturnedNotFatal(t *testing.T) {
	store := &fakeStore{failErr: errors.New("db down")}
	l := newTestLog(store)

	err := l.Record(context.Background(), domain.ActivityEntry{Severity: domain.SeverityInfo, Message: "x"})
	assert.Error(t, err)

	// helpers swallow the error
	l.Success(context.Background(), domain.ActionReceive, "ok")
}

func TestLog_RecentAndPrune(t *testing.T) {
	store := &fakeStore{}
	l := newTestLog(store)
	ctx := context.Background()

	l.Success(ctx, domain.ActionReceive, "a")
	l.Error(ctx, domain.ActionReceive, "b")
	l.Success(ctx, domain.ActionReceive, "c")

	errs, err := l.Recent(ctx, domain.SeverityError, 0)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "b", errs[0].Message)

	n, err := l.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, l.now().Add(-24*time.Hour), store.cutoff)
}
