package registry

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vonshlovens/spokesync/internal/activity"
	"github.com/vonshlovens/spokesync/internal/domain"
)

// Store persists connections
type Store interface {
	InsertConnection(ctx context.Context, c *domain.Connection) error
	UpdateConnection(ctx context.Context, c *domain.Connection) error
	GetConnection(ctx context.Context, id string) (*domain.Connection, error)
	ListConnections(ctx context.Context, role domain.Role) ([]*domain.Connection, error)
	DeleteConnection(ctx context.Context, id string) error
	SetConnectionStatus(ctx context.Context, id string, status domain.ConnectionStatus) error
	TouchConnection(ctx context.Context, id string, at time.Time) error
}

// Registry manages destination and source connections
type Registry struct {
	store    Store
	activity *activity.Log
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a connection registry
func New(store Store, log *activity.Log, logger *slog.Logger) *Registry {
	return &Registry{
		store:    store,
		activity: log,
		logger:   logger.With("component", "registry"),
		now:      time.Now,
	}
}

// AddParams describes a new connection
type AddParams struct {
	Name    string
	BaseURL string
	Secret  string
	Role    domain.Role
	Sync    *domain.SyncSettings
	AI      domain.AISettings
}

// Add registers a connection. Inbound connections get a generated secret when none is given.
func (r *Registry) Add(ctx context.Context, p AddParams) (*domain.Connection, error) {
	base, err := ValidateBaseURL(p.BaseURL)
	if err != nil {
		return nil, err
	}
	if !p.Role.Valid() {
		return nil, domain.NewValidationError("role", "must be outbound or inbound")
	}

	secret := strings.TrimSpace(p.Secret)
	if secret == "" {
		if p.Role == domain.RoleOutbound {
			return nil, domain.NewValidationError("secret", "is required for outbound connections")
		}
		if secret, err = GenerateSecret(); err != nil {
			return nil, err
		}
	}

	existing, err := r.store.ListConnections(ctx, p.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	for _, c := range existing {
		if domain.NormalizeBaseURL(c.BaseURL) == base {
			return nil, fmt.Errorf("%s connection for %s: %w", p.Role, base, domain.ErrAlreadyExists)
		}
	}

	c := &domain.Connection{
		ID:      uuid.NewString(),
		Name:    strings.TrimSpace(p.Name),
		BaseURL: base,
		Secret:  secret,
		Role:    p.Role,
		Status:  domain.ConnectionActive,
		Sync:    domain.DefaultSyncSettings(),
		AI:      p.AI,
	}
	if p.Sync != nil {
		c.Sync = *p.Sync
	}

	if err := r.store.InsertConnection(ctx, c); err != nil {
		return nil, err
	}

	r.activity.Info(ctx, domain.ActionRegistry, "connection added",
		activity.WithDestination(c.ID),
		activity.With("role", string(c.Role)),
		activity.With("base_url", c.BaseURL))
	return c, nil
}

// Get returns a connection by id
func (r *Registry) Get(ctx context.Context, id string) (*domain.Connection, error) {
	return r.store.GetConnection(ctx, id)
}

// Resolve finds a connection by id, or by name or base URL within a role
func (r *Registry) Resolve(ctx context.Context, role domain.Role, ref string) (*domain.Connection, error) {
	c, err := r.store.GetConnection(ctx, ref)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	conns, err := r.store.ListConnections(ctx, role)
	if err != nil {
		return nil, err
	}
	needle := strings.TrimSpace(ref)
	for _, c := range conns {
		if strings.EqualFold(c.Name, needle) || domain.NormalizeBaseURL(c.BaseURL) == domain.NormalizeBaseURL(needle) {
			return c, nil
		}
	}
	return nil, fmt.Errorf("connection %q: %w", ref, domain.ErrNotFound)
}

// List returns connections of one role, or all when role is empty
func (r *Registry) List(ctx context.Context, role domain.Role) ([]*domain.Connection, error) {
	return r.store.ListConnections(ctx, role)
}

// Update saves edited settings of a connection. Status changes go through SetStatus.
func (r *Registry) Update(ctx context.Context, c *domain.Connection) error {
	base, err := ValidateBaseURL(c.BaseURL)
	if err != nil {
		return err
	}
	c.BaseURL = base

	current, err := r.store.GetConnection(ctx, c.ID)
	if err != nil {
		return err
	}
	c.Status = current.Status
	return r.store.UpdateConnection(ctx, c)
}

// Remove deletes a connection. Delivery and activity history keep its id.
func (r *Registry) Remove(ctx context.Context, id string) error {
	if err := r.store.DeleteConnection(ctx, id); err != nil {
		return err
	}
	r.activity.Info(ctx, domain.ActionRegistry, "connection removed", activity.WithDestination(id))
	return nil
}

// SetStatus activates or deactivates a connection. The error status is only
// reachable through RecordTestResult.
func (r *Registry) SetStatus(ctx context.Context, id string, status domain.ConnectionStatus) error {
	if status != domain.ConnectionActive && status != domain.ConnectionInactive {
		return domain.NewValidationError("status", "must be active or inactive")
	}
	return r.store.SetConnectionStatus(ctx, id, status)
}

// RecordTestResult stores the outcome of an explicit connection test
func (r *Registry) RecordTestResult(ctx context.Context, id string, testErr error) error {
	if testErr != nil {
		if err := r.store.SetConnectionStatus(ctx, id, domain.ConnectionError); err != nil {
			return err
		}
		r.activity.Error(ctx, domain.ActionRegistry, "connection test failed",
			activity.WithDestination(id), activity.With("error", testErr.Error()))
		return nil
	}

	c, err := r.store.GetConnection(ctx, id)
	if err != nil {
		return err
	}
	if c.Status == domain.ConnectionError {
		if err := r.store.SetConnectionStatus(ctx, id, domain.ConnectionActive); err != nil {
			return err
		}
	}
	r.activity.Success(ctx, domain.ActionRegistry, "connection test passed", activity.WithDestination(id))
	return r.Touch(ctx, id)
}

// Touch records a successful contact
func (r *Registry) Touch(ctx context.Context, id string) error {
	return r.store.TouchConnection(ctx, id, r.now())
}

// Authenticate matches a presented key against every active inbound secret in
// constant time and returns the matching source
func (r *Registry) Authenticate(ctx context.Context, key string) (*domain.Connection, error) {
	if key == "" {
		return nil, domain.ErrUnauthorized
	}

	conns, err := r.store.ListConnections(ctx, domain.RoleInbound)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}

	var match *domain.Connection
	for _, c := range conns {
		ok := subtle.ConstantTimeCompare([]byte(key), []byte(c.Secret)) == 1
		if ok && c.IsActive() && match == nil {
			match = c
		}
	}
	if match == nil {
		return nil, domain.ErrUnauthorized
	}
	return match, nil
}

// ValidateBaseURL checks that raw is an absolute http(s) URL and normalizes it
func ValidateBaseURL(raw string) (string, error) {
	base := domain.NormalizeBaseURL(raw)
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", domain.NewValidationError("base_url", "must be an absolute http(s) URL")
	}
	return base, nil
}

// GenerateSecret returns a random 64-character hex secret
func GenerateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
