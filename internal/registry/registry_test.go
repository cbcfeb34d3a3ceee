package registry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vonshlovens/spokesync/internal/activity"
	"github.com/vonshlovens/spokesync/internal/domain"
	"github.com/vonshlovens/spokesync/internal/testutil"
)

func newTestRegistry(t *testing.T) (*Registry, *testutil.MemStore) {
	t.Helper()
	store := testutil.NewMemStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := New(store, activity.New(store, logger), logger)
	r.now = testutil.NewClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)).Now
	return r, store
}

func TestRegistry_Add(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)

	c, err := r.Add(ctx, AddParams{Name: "Spoke A", BaseURL: "https://a.example/", Secret: "s3cret", Role: domain.RoleOutbound})
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "https://a.example", c.BaseURL)
	assert.Equal(t, domain.ConnectionActive, c.Status)
	assert.Equal(t, domain.DefaultSyncSettings(), c.Sync)

	_, err = r.Add(ctx, AddParams{BaseURL: "https://a.example", Secret: "x", Role: domain.RoleOutbound})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	// same URL is fine under the other role
	in, err := r.Add(ctx, AddParams{BaseURL: "https://a.example", Role: domain.RoleInbound})
	require.NoError(t, err)
	assert.Len(t, in.Secret, 64)
}

func TestRegistry_AddValidation(t *testing.T) {
	r, _ := newTestRegistry(t)

	tests := []struct {
		name  string
		p     AddParams
		field string
	}{
		{"relative url", AddParams{BaseURL: "/spoke", Secret: "x", Role: domain.RoleOutbound}, "base_url"},
		{"ftp url", AddParams{BaseURL: "ftp://a.example", Secret: "x", Role: domain.RoleOutbound}, "base_url"},
		{"bad role", AddParams{BaseURL: "https://a.example", Secret: "x", Role: "sideways"}, "role"},
		{"outbound without secret", AddParams{BaseURL: "https://a.example", Role: domain.RoleOutbound}, "secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Add(context.Background(), tt.p)
			var ve *domain.ValidationError
			require.True(t, errors.As(err, &ve), "want ValidationError, got %v", err)
			assert.Equal(t, tt.field, ve.Errors[0].Field)
		})
	}
}

func TestRegistry_Resolve(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	c, err := r.Add(ctx, AddParams{Name: "Blog", BaseURL: "https://blog.example", Secret: "x", Role: domain.RoleOutbound})
	require.NoError(t, err)

	for _, ref := range []string{c.ID, "blog", "https://blog.example/"} {
		got, err := r.Resolve(ctx, domain.RoleOutbound, ref)
		require.NoError(t, err, ref)
		assert.Equal(t, c.ID, got.ID)
	}

	_, err = r.Resolve(ctx, domain.RoleOutbound, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRegistry_StatusTransitions(t *testing.T) {
	ctx := context.Background()
	r, store := newTestRegistry(t)
	c, err := r.Add(ctx, AddParams{BaseURL: "https://a.example", Secret: "x", Role: domain.RoleOutbound})
	require.NoError(t, err)

	err = r.SetStatus(ctx, c.ID, domain.ConnectionError)
	assert.ErrorIs(t, err, domain.ErrValidation)

	require.NoError(t, r.RecordTestResult(ctx, c.ID, errors.New("connection refused")))
	got, _ := r.Get(ctx, c.ID)
	assert.Equal(t, domain.ConnectionError, got.Status)
	assert.Nil(t, got.LastContactAt)

	require.NoError(t, r.RecordTestResult(ctx, c.ID, nil))
	got, _ = r.Get(ctx, c.ID)
	assert.Equal(t, domain.ConnectionActive, got.Status)
	require.NotNil(t, got.LastContactAt)

	require.NoError(t, r.SetStatus(ctx, c.ID, domain.ConnectionInactive))
	require.NoError(t, r.RecordTestResult(ctx, c.ID, nil))
	got, _ = r.Get(ctx, c.ID)
	assert.Equal(t, domain.ConnectionInactive, got.Status, "a passing test does not reactivate a disabled connection")

	assert.Len(t, store.ActivityWith(domain.SeverityError), 1)
}

func TestRegistry_UpdateKeepsStatus(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	c, err := r.Add(ctx, AddParams{BaseURL: "https://a.example", Secret: "x", Role: domain.RoleOutbound})
	require.NoError(t, err)
	require.NoError(t, r.SetStatus(ctx, c.ID, domain.ConnectionInactive))

	c.Status = domain.ConnectionActive
	c.AI = domain.AISettings{Enabled: true, Tone: "friendly"}
	c.BaseURL = "https://a.example///"
	require.NoError(t, r.Update(ctx, c))

	got, _ := r.Get(ctx, c.ID)
	assert.Equal(t, domain.ConnectionInactive, got.Status)
	assert.Equal(t, "https://a.example", got.BaseURL)
	assert.True(t, got.AI.Enabled)
}

func TestRegistry_Authenticate(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)

	hub, err := r.Add(ctx, AddParams{BaseURL: "https://hub.example", Secret: "hub-key", Role: domain.RoleInbound})
	require.NoError(t, err)
	off, err := r.Add(ctx, AddParams{BaseURL: "https://off.example", Secret: "off-key", Role: domain.RoleInbound})
	require.NoError(t, err)
	require.NoError(t, r.SetStatus(ctx, off.ID, domain.ConnectionInactive))
	_, err = r.Add(ctx, AddParams{BaseURL: "https://spoke.example", Secret: "out-key", Role: domain.RoleOutbound})
	require.NoError(t, err)

	got, err := r.Authenticate(ctx, "hub-key")
	require.NoError(t, err)
	assert.Equal(t, hub.ID, got.ID)

	for _, key := range []string{"", "wrong", "off-key", "out-key", "hub-ke"} {
		_, err := r.Authenticate(ctx, key)
		assert.ErrorIs(t, err, domain.ErrUnauthorized, "key %q", key)
	}
}

func TestRegistry_RemoveKeepsHistory(t *testing.T) {
	ctx := context.Background()
	r, store := newTestRegistry(t)
	c, err := r.Add(ctx, AddParams{BaseURL: "https://a.example", Secret: "x", Role: domain.RoleOutbound})
	require.NoError(t, err)

	require.NoError(t, r.Remove(ctx, c.ID))
	_, err = r.Get(ctx, c.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, r.Remove(ctx, c.ID), domain.ErrNotFound)

	var removed bool
	for _, e := range store.Activity() {
		if e.Message == "connection removed" && e.DestinationID != nil && *e.DestinationID == c.ID {
			removed = true
		}
	}
	assert.True(t, removed)
}
