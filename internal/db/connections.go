package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vonshlovens/spokesync/internal/domain"
)

const connectionColumns = `
	id, name, base_url, secret, role, status, last_contact_at,
	sync_settings, ai_settings, created_at, updated_at`

func scanConnection(row rowScanner) (*domain.Connection, error) {
	c := &domain.Connection{}
	var syncJSON, aiJSON []byte

	if err := row.Scan(
		&c.ID, &c.Name, &c.BaseURL, &c.Secret, &c.Role, &c.Status,
		&c.LastContactAt, &syncJSON, &aiJSON, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if len(syncJSON) > 0 {
		if err := json.Unmarshal(syncJSON, &c.Sync); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sync settings: %w", err)
		}
	}
	if len(aiJSON) > 0 {
		if err := json.Unmarshal(aiJSON, &c.AI); err != nil {
			return nil, fmt.Errorf("failed to unmarshal ai settings: %w", err)
		}
	}
	return c, nil
}

func encodeSettings(c *domain.Connection) ([]byte, []byte, error) {
	syncJSON, err := json.Marshal(c.Sync)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal sync settings: %w", err)
	}
	aiJSON, err := json.Marshal(c.AI)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal ai settings: %w", err)
	}
	return syncJSON, aiJSON, nil
}

// InsertConnection stores a new connection
func (db *DB) InsertConnection(ctx context.Context, c *domain.Connection) error {
	syncJSON, aiJSON, err := encodeSettings(c)
	if err != nil {
		return err
	}

	err = db.Pool.QueryRow(ctx, `
		INSERT INTO connections (
			id, name, base_url, secret, role, status, sync_settings, ai_settings
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`,
		c.ID, c.Name, c.BaseURL, c.Secret, c.Role, c.Status, syncJSON, aiJSON,
	).Scan(&c.CreatedAt, &c.UpdatedAt)

	return mapError(err, "connection", c.BaseURL)
}

// UpdateConnection rewrites the mutable fields of a connection
func (db *DB) UpdateConnection(ctx context.Context, c *domain.Connection) error {
	syncJSON, aiJSON, err := encodeSettings(c)
	if err != nil {
		return err
	}

	tag, err := db.Pool.Exec(ctx, `
		UPDATE connections SET
			name = $2,
			base_url = $3,
			secret = $4,
			status = $5,
			sync_settings = $6,
			ai_settings = $7,
			updated_at = NOW()
		WHERE id = $1
	`,
		c.ID, c.Name, c.BaseURL, c.Secret, c.Status, syncJSON, aiJSON,
	)
	if err != nil {
		return mapError(err, "connection", c.ID)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("connection %s: %w", c.ID, domain.ErrNotFound)
	}
	return nil
}

// GetConnection retrieves a connection by id
func (db *DB) GetConnection(ctx context.Context, id string) (*domain.Connection, error) {
	row := db.Pool.QueryRow(ctx, "SELECT "+connectionColumns+" FROM connections WHERE id = $1", id)
	c, err := scanConnection(row)
	if err != nil {
		return nil, mapError(err, "connection", id)
	}
	return c, nil
}

// ListConnections returns the connections of a role, or all of them when role is empty
func (db *DB) ListConnections(ctx context.Context, role domain.Role) ([]*domain.Connection, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+connectionColumns+` FROM connections
		WHERE $1 = '' OR role = $1
		ORDER BY created_at
	`, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conns []*domain.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, c)
	}

	return conns, rows.Err()
}

// DeleteConnection removes a connection; deliveries and activity keep its id
func (db *DB) DeleteConnection(ctx context.Context, id string) error {
	tag, err := db.Pool.Exec(ctx, "DELETE FROM connections WHERE id = $1", id)
	if err != nil {
		return mapError(err, "connection", id)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("connection %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// SetConnectionStatus changes the lifecycle status of a connection
func (db *DB) SetConnectionStatus(ctx context.Context, id string, status domain.ConnectionStatus) error {
	tag, err := db.Pool.Exec(ctx,
		"UPDATE connections SET status = $2, updated_at = NOW() WHERE id = $1",
		id, status,
	)
	if err != nil {
		return mapError(err, "connection", id)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("connection %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// TouchConnection records the last successful contact with a connection
func (db *DB) TouchConnection(ctx context.Context, id string, at time.Time) error {
	_, err := db.Pool.Exec(ctx,
		"UPDATE connections SET last_contact_at = $2 WHERE id = $1",
		id, at,
	)
	return err
}
