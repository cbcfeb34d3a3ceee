package db

import (
	"context"

	"github.com/vonshlovens/spokesync/internal/domain"
)

const mediaColumns = `id, path, source_url, filename, mime_type, size_bytes, content_hash, created_at`

func scanMedia(row rowScanner, withData bool) (*domain.MediaItem, error) {
	item := &domain.MediaItem{}
	var path, sourceURL *string

	dest := []any{
		&item.ID, &path, &sourceURL, &item.Filename, &item.MimeType,
		&item.Size, &item.ContentHash, &item.CreatedAt,
	}
	if withData {
		dest = append(dest, &item.Data)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	item.Path = deref(path)
	item.SourceURL = deref(sourceURL)
	return item, nil
}

// UpsertMediaByPath stores a vault attachment in the media library
func (db *DB) UpsertMediaByPath(ctx context.Context, item *domain.MediaItem) (int64, error) {
	var id int64
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO media (
			path, filename, mime_type, size_bytes, content_hash, data
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (path) DO UPDATE SET
			filename = EXCLUDED.filename,
			mime_type = EXCLUDED.mime_type,
			size_bytes = EXCLUDED.size_bytes,
			content_hash = EXCLUDED.content_hash,
			data = EXCLUDED.data,
			updated_at = NOW()
		RETURNING id
	`,
		item.Path, item.Filename, item.MimeType, item.Size, item.ContentHash, item.Data,
	).Scan(&id)
	if err != nil {
		return 0, mapError(err, "media", item.Path)
	}

	item.ID = id
	return id, nil
}

// UpsertMediaBySourceURL stores a fetched media item. Re-fetching the same
// source URL reuses the existing row.
func (db *DB) UpsertMediaBySourceURL(ctx context.Context, item *domain.MediaItem) (int64, error) {
	var id int64
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO media (
			source_url, filename, mime_type, size_bytes, content_hash, data
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (source_url) DO UPDATE SET
			filename = EXCLUDED.filename,
			mime_type = EXCLUDED.mime_type,
			size_bytes = EXCLUDED.size_bytes,
			content_hash = EXCLUDED.content_hash,
			data = EXCLUDED.data,
			updated_at = NOW()
		RETURNING id
	`,
		item.SourceURL, item.Filename, item.MimeType, item.Size, item.ContentHash, item.Data,
	).Scan(&id)
	if err != nil {
		return 0, mapError(err, "media", item.SourceURL)
	}

	item.ID = id
	return id, nil
}

// GetMedia retrieves a media item including its bytes
func (db *DB) GetMedia(ctx context.Context, id int64) (*domain.MediaItem, error) {
	row := db.Pool.QueryRow(ctx, "SELECT "+mediaColumns+", data FROM media WHERE id = $1", id)
	item, err := scanMedia(row, true)
	if err != nil {
		return nil, mapError(err, "media", id)
	}
	return item, nil
}

// GetMediaBySourceURL looks up a previously fetched item without its bytes
func (db *DB) GetMediaBySourceURL(ctx context.Context, sourceURL string) (*domain.MediaItem, error) {
	row := db.Pool.QueryRow(ctx, "SELECT "+mediaColumns+" FROM media WHERE source_url = $1", sourceURL)
	item, err := scanMedia(row, false)
	if err != nil {
		return nil, mapError(err, "media", sourceURL)
	}
	return item, nil
}

// FindMediaByName resolves a vault embed target: an exact path, or the
// shortest path ending in /name
func (db *DB) FindMediaByName(ctx context.Context, name string) (*domain.MediaItem, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT `+mediaColumns+` FROM media
		WHERE path = $1 OR path LIKE '%/' || $1
		ORDER BY length(path)
		LIMIT 1
	`, name)
	item, err := scanMedia(row, false)
	if err != nil {
		return nil, mapError(err, "media", name)
	}
	return item, nil
}

// DeleteMediaByPath removes a vault attachment
func (db *DB) DeleteMediaByPath(ctx context.Context, path string) error {
	_, err := db.Pool.Exec(ctx, "DELETE FROM media WHERE path = $1", path)
	return err
}

// BatchDeleteMedia deletes multiple vault attachments by path
func (db *DB) BatchDeleteMedia(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	_, err := db.Pool.Exec(ctx, "DELETE FROM media WHERE path = ANY($1)", paths)
	return err
}

// GetAllMediaHashes returns a map of path -> content_hash for vault attachments
func (db *DB) GetAllMediaHashes(ctx context.Context) (map[string]string, error) {
	return db.pathHashes(ctx, "SELECT path, content_hash FROM media WHERE path IS NOT NULL")
}

// GetAllMediaPaths returns all vault attachment paths
func (db *DB) GetAllMediaPaths(ctx context.Context) ([]string, error) {
	return db.paths(ctx, "SELECT path FROM media WHERE path IS NOT NULL")
}
