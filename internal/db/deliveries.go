package db

import (
	"context"
	"fmt"
	"time"

	"github.com/vonshlovens/spokesync/internal/domain"
)

const deliveryColumns = `
	document_id, destination_id, status, last_attempt_at, last_error,
	retry_count, remote_id, remote_url, created_at, updated_at`

func scanDelivery(row rowScanner) (*domain.DeliveryRecord, error) {
	r := &domain.DeliveryRecord{}
	if err := row.Scan(
		&r.DocumentID, &r.DestinationID, &r.Status, &r.LastAttemptAt,
		&r.LastError, &r.RetryCount, &r.RemoteID, &r.RemoteURL,
		&r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return r, nil
}

// GetDelivery returns the record for a (document, destination) pair
func (db *DB) GetDelivery(ctx context.Context, documentID int64, destinationID string) (*domain.DeliveryRecord, error) {
	row := db.Pool.QueryRow(ctx,
		"SELECT "+deliveryColumns+" FROM deliveries WHERE document_id = $1 AND destination_id = $2",
		documentID, destinationID,
	)
	r, err := scanDelivery(row)
	if err != nil {
		return nil, mapError(err, "delivery", fmt.Sprintf("%d/%s", documentID, destinationID))
	}
	return r, nil
}

// MarkDeliveryPending records an in-flight attempt, keeping any known remote id
func (db *DB) MarkDeliveryPending(ctx context.Context, documentID int64, destinationID string, at time.Time) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO deliveries (document_id, destination_id, status, last_attempt_at)
		VALUES ($1, $2, 'pending', $3)
		ON CONFLICT (document_id, destination_id) DO UPDATE SET
			status = 'pending',
			last_attempt_at = EXCLUDED.last_attempt_at,
			updated_at = NOW()
	`, documentID, destinationID, at)
	return mapError(err, "delivery", documentID)
}

// MarkDeliverySucceeded records a delivered copy and its remote id
func (db *DB) MarkDeliverySucceeded(ctx context.Context, documentID int64, destinationID string, remoteID int64, remoteURL string, at time.Time) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO deliveries (
			document_id, destination_id, status, last_attempt_at, remote_id, remote_url
		) VALUES ($1, $2, 'delivered', $3, $4, $5)
		ON CONFLICT (document_id, destination_id) DO UPDATE SET
			status = 'delivered',
			last_attempt_at = EXCLUDED.last_attempt_at,
			last_error = '',
			retry_count = 0,
			remote_id = EXCLUDED.remote_id,
			remote_url = EXCLUDED.remote_url,
			updated_at = NOW()
	`, documentID, destinationID, at, remoteID, remoteURL)
	return mapError(err, "delivery", documentID)
}

// MarkDeliveryFailed records a failed attempt and returns the new retry count
func (db *DB) MarkDeliveryFailed(ctx context.Context, documentID int64, destinationID, message string, at time.Time) (int, error) {
	var retries int
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO deliveries (
			document_id, destination_id, status, last_attempt_at, last_error, retry_count
		) VALUES ($1, $2, 'failed', $3, $4, 1)
		ON CONFLICT (document_id, destination_id) DO UPDATE SET
			status = 'failed',
			last_attempt_at = EXCLUDED.last_attempt_at,
			last_error = EXCLUDED.last_error,
			retry_count = deliveries.retry_count + 1,
			updated_at = NOW()
		RETURNING retry_count
	`, documentID, destinationID, at, message).Scan(&retries)
	if err != nil {
		return 0, mapError(err, "delivery", documentID)
	}
	return retries, nil
}

// ListDeliveriesForDocument returns every record of a document
func (db *DB) ListDeliveriesForDocument(ctx context.Context, documentID int64) ([]*domain.DeliveryRecord, error) {
	return db.queryDeliveries(ctx,
		"SELECT "+deliveryColumns+" FROM deliveries WHERE document_id = $1 ORDER BY created_at",
		documentID,
	)
}

// ListFailedDeliveries returns failed records still under the retry cap
func (db *DB) ListFailedDeliveries(ctx context.Context, maxRetries int) ([]*domain.DeliveryRecord, error) {
	return db.queryDeliveries(ctx, `
		SELECT `+deliveryColumns+` FROM deliveries
		WHERE status = 'failed' AND retry_count < $1
		ORDER BY document_id, last_attempt_at
	`, maxRetries)
}

// SweepStuckDeliveries flips pending records older than cutoff to failed
func (db *DB) SweepStuckDeliveries(ctx context.Context, cutoff time.Time, message string) ([]*domain.DeliveryRecord, error) {
	return db.queryDeliveries(ctx, `
		UPDATE deliveries SET
			status = 'failed',
			last_error = $2,
			retry_count = retry_count + 1,
			updated_at = NOW()
		WHERE status = 'pending' AND last_attempt_at < $1
		RETURNING `+deliveryColumns,
		cutoff, message,
	)
}

// PruneDeliveries deletes records whose last attempt is older than cutoff
func (db *DB) PruneDeliveries(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := db.Pool.Exec(ctx,
		"DELETE FROM deliveries WHERE last_attempt_at < $1 AND status <> 'pending'",
		cutoff,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeliveryReport lists records with the document title and destination name.
// DestinationName is empty when the connection no longer exists.
func (db *DB) DeliveryReport(ctx context.Context, statuses []domain.DeliveryStatus, limit int) ([]*domain.DeliveryReport, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT d.document_id, d.destination_id, d.status, d.last_attempt_at,
			d.last_error, d.retry_count, d.remote_id, d.remote_url,
			d.created_at, d.updated_at,
			doc.title, COALESCE(NULLIF(c.name, ''), c.base_url, '')
		FROM deliveries d
		JOIN documents doc ON doc.id = d.document_id
		LEFT JOIN connections c ON c.id = d.destination_id
		WHERE cardinality($1::text[]) = 0 OR d.status = ANY($1)
		ORDER BY d.last_attempt_at DESC
		LIMIT $2
	`, names, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.DeliveryReport
	for rows.Next() {
		r := &domain.DeliveryReport{}
		if err := rows.Scan(
			&r.DocumentID, &r.DestinationID, &r.Status, &r.LastAttemptAt,
			&r.LastError, &r.RetryCount, &r.RemoteID, &r.RemoteURL,
			&r.CreatedAt, &r.UpdatedAt, &r.DocumentTitle, &r.DestinationName,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}

	return out, rows.Err()
}

func (db *DB) queryDeliveries(ctx context.Context, query string, args ...any) ([]*domain.DeliveryRecord, error) {
	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.DeliveryRecord
	for rows.Next() {
		r, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}

	return out, rows.Err()
}
