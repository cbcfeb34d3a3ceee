package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vonshlovens/spokesync/internal/domain"
)

// InsertActivity appends an entry to the activity log
func (db *DB) InsertActivity(ctx context.Context, e *domain.ActivityEntry) error {
	var payload []byte
	if len(e.Payload) > 0 {
		var err error
		if payload, err = json.Marshal(e.Payload); err != nil {
			return fmt.Errorf("failed to marshal activity payload: %w", err)
		}
	}

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO activity_log (
			id, created_at, severity, action, message, payload, document_id, destination_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		e.ID, e.CreatedAt, e.Severity, e.Action, e.Message, payload,
		e.DocumentID, e.DestinationID,
	)
	return err
}

// RecentActivity returns the newest entries, optionally filtered by severity
func (db *DB) RecentActivity(ctx context.Context, severity domain.Severity, limit int) ([]*domain.ActivityEntry, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, created_at, severity, action, message, payload, document_id, destination_id
		FROM activity_log
		WHERE $1 = '' OR severity = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, string(severity), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.ActivityEntry
	for rows.Next() {
		e := &domain.ActivityEntry{}
		var payload []byte
		if err := rows.Scan(
			&e.ID, &e.CreatedAt, &e.Severity, &e.Action, &e.Message,
			&payload, &e.DocumentID, &e.DestinationID,
		); err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal activity payload: %w", err)
			}
		}
		out = append(out, e)
	}

	return out, rows.Err()
}

// ActivityStats counts documents and recent receipts and errors
func (db *DB) ActivityStats(ctx context.Context, since time.Time) (domain.ActivityStat, error) {
	var s domain.ActivityStat
	err := db.Pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM documents),
			(SELECT COUNT(*) FROM activity_log
				WHERE created_at >= $1 AND severity = 'success' AND action IN ('receive', 'update')),
			(SELECT COUNT(*) FROM activity_log
				WHERE created_at >= $1 AND severity = 'error')
	`, since).Scan(&s.Documents, &s.Received24h, &s.Errors24h)
	return s, err
}

// PruneActivity deletes entries older than cutoff
func (db *DB) PruneActivity(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := db.Pool.Exec(ctx, "DELETE FROM activity_log WHERE created_at < $1", cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
