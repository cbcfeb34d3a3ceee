package db

import (
	"context"
	"fmt"

	"github.com/vonshlovens/spokesync/internal/domain"
)

const documentColumns = `
	id, path, title, body, excerpt, status, slug, post_type,
	published_at, modified_at, author_id, author_name, author_email,
	author_login, categories, tags, featured_media_id, gallery_media_ids,
	seo_meta, theme_meta, destinations, ai_skip, origin_url, origin_id,
	content_hash, created_at, updated_at`

func scanDocument(row rowScanner) (*domain.Document, error) {
	doc := &domain.Document{}
	var (
		path               *string
		featured           *int64
		gallery            []int64
		seoJSON, themeJSON []byte
		aiSkip             []string
		originURL          *string
		originID           *int64
	)

	if err := row.Scan(
		&doc.ID, &path, &doc.Title, &doc.Body, &doc.Excerpt, &doc.Status,
		&doc.Slug, &doc.PostType, &doc.PublishedAt, &doc.ModifiedAt,
		&doc.AuthorID, &doc.Author.Name, &doc.Author.Email, &doc.Author.Login,
		&doc.Categories, &doc.Tags, &featured, &gallery, &seoJSON, &themeJSON,
		&doc.Destinations, &aiSkip, &originURL, &originID, &doc.ContentHash,
		&doc.CreatedAt, &doc.UpdatedAt,
	); err != nil {
		return nil, err
	}

	doc.Path = deref(path)
	if featured != nil {
		doc.FeaturedMedia = &domain.MediaRef{ID: *featured}
	}
	for _, id := range gallery {
		doc.Gallery = append(doc.Gallery, domain.MediaRef{ID: id})
	}
	doc.AISkip = skipMap(aiSkip)
	if originURL != nil && originID != nil {
		doc.Identity = &domain.Identity{OriginURL: *originURL, OriginID: *originID}
	}

	var err error
	if doc.SEOMeta, err = decodeMeta(seoJSON); err != nil {
		return nil, err
	}
	if doc.ThemeMeta, err = decodeMeta(themeJSON); err != nil {
		return nil, err
	}
	return doc, nil
}

type documentArgs struct {
	path      *string
	featured  *int64
	gallery   []int64
	seo       []byte
	theme     []byte
	originURL *string
	originID  *int64
}

func documentParams(doc *domain.Document) (*documentArgs, error) {
	a := &documentArgs{
		path:    nullString(doc.Path),
		gallery: mediaIDs(doc.Gallery),
	}
	if doc.FeaturedMedia != nil {
		id := doc.FeaturedMedia.ID
		a.featured = &id
	}
	if doc.Identity != nil {
		a.originURL = &doc.Identity.OriginURL
		a.originID = &doc.Identity.OriginID
	}

	var err error
	if a.seo, err = encodeMeta(doc.SEOMeta); err != nil {
		return nil, err
	}
	if a.theme, err = encodeMeta(doc.ThemeMeta); err != nil {
		return nil, err
	}
	return a, nil
}

// UpsertDocumentByPath inserts or updates an authored document keyed by its vault path
func (db *DB) UpsertDocumentByPath(ctx context.Context, doc *domain.Document) (int64, error) {
	a, err := documentParams(doc)
	if err != nil {
		return 0, err
	}

	var id int64
	err = db.Pool.QueryRow(ctx, `
		INSERT INTO documents (
			path, title, body, excerpt, status, slug, post_type, published_at,
			modified_at, author_name, author_email, author_login, categories,
			tags, featured_media_id, gallery_media_ids, seo_meta, theme_meta,
			destinations, ai_skip, content_hash
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21
		)
		ON CONFLICT (path) DO UPDATE SET
			title = EXCLUDED.title,
			body = EXCLUDED.body,
			excerpt = EXCLUDED.excerpt,
			status = EXCLUDED.status,
			slug = EXCLUDED.slug,
			post_type = EXCLUDED.post_type,
			published_at = EXCLUDED.published_at,
			modified_at = EXCLUDED.modified_at,
			author_name = EXCLUDED.author_name,
			author_email = EXCLUDED.author_email,
			author_login = EXCLUDED.author_login,
			categories = EXCLUDED.categories,
			tags = EXCLUDED.tags,
			featured_media_id = EXCLUDED.featured_media_id,
			gallery_media_ids = EXCLUDED.gallery_media_ids,
			seo_meta = EXCLUDED.seo_meta,
			theme_meta = EXCLUDED.theme_meta,
			destinations = EXCLUDED.destinations,
			ai_skip = EXCLUDED.ai_skip,
			content_hash = EXCLUDED.content_hash,
			deleted_at = NULL,
			updated_at = NOW()
		RETURNING id
	`,
		a.path, doc.Title, doc.Body, doc.Excerpt, doc.Status, doc.Slug,
		doc.PostType, doc.PublishedAt, doc.ModifiedAt, doc.Author.Name,
		doc.Author.Email, doc.Author.Login, orEmpty(doc.Categories),
		orEmpty(doc.Tags), a.featured, a.gallery, a.seo, a.theme,
		orEmpty(doc.Destinations), skipList(doc.AISkip), doc.ContentHash,
	).Scan(&id)
	if err != nil {
		return 0, mapError(err, "document", doc.Path)
	}

	doc.ID = id
	return id, nil
}

// InsertReceivedDocument stores a document received from another site.
// A second insert of the same identity fails with domain.ErrAlreadyExists.
func (db *DB) InsertReceivedDocument(ctx context.Context, doc *domain.Document) (int64, error) {
	if doc.Identity == nil {
		return 0, fmt.Errorf("received document without identity: %w", domain.ErrValidation)
	}
	a, err := documentParams(doc)
	if err != nil {
		return 0, err
	}

	var id int64
	err = db.Pool.QueryRow(ctx, `
		INSERT INTO documents (
			title, body, excerpt, status, slug, post_type, published_at,
			modified_at, author_id, author_name, author_email, author_login,
			seo_meta, theme_meta, origin_url, origin_id, content_hash
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17
		)
		RETURNING id, created_at, updated_at
	`,
		doc.Title, doc.Body, doc.Excerpt, doc.Status, doc.Slug, doc.PostType,
		doc.PublishedAt, doc.ModifiedAt, doc.AuthorID, doc.Author.Name,
		doc.Author.Email, doc.Author.Login, a.seo, a.theme, a.originURL,
		a.originID, doc.ContentHash,
	).Scan(&id, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return 0, mapError(err, "document", *doc.Identity)
	}

	doc.ID = id
	return id, nil
}

// UpdateDocumentContent rewrites the core fields of a received document
func (db *DB) UpdateDocumentContent(ctx context.Context, doc *domain.Document) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE documents SET
			title = $2,
			body = $3,
			excerpt = $4,
			status = $5,
			slug = $6,
			post_type = $7,
			published_at = $8,
			modified_at = $9,
			author_id = $10,
			author_name = $11,
			author_email = $12,
			author_login = $13,
			content_hash = $14,
			updated_at = NOW()
		WHERE id = $1
	`,
		doc.ID, doc.Title, doc.Body, doc.Excerpt, doc.Status, doc.Slug,
		doc.PostType, doc.PublishedAt, doc.ModifiedAt, doc.AuthorID,
		doc.Author.Name, doc.Author.Email, doc.Author.Login, doc.ContentHash,
	)
	if err != nil {
		return mapError(err, "document", doc.ID)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %d: %w", doc.ID, domain.ErrNotFound)
	}
	return nil
}

// UpdateDocumentTerms replaces categories and tags
func (db *DB) UpdateDocumentTerms(ctx context.Context, id int64, categories, tags []string) error {
	_, err := db.Pool.Exec(ctx,
		"UPDATE documents SET categories = $2, tags = $3, updated_at = NOW() WHERE id = $1",
		id, orEmpty(categories), orEmpty(tags),
	)
	return mapError(err, "document", id)
}

// UpdateDocumentFeatured sets or clears the featured media item
func (db *DB) UpdateDocumentFeatured(ctx context.Context, id int64, mediaID *int64) error {
	_, err := db.Pool.Exec(ctx,
		"UPDATE documents SET featured_media_id = $2, updated_at = NOW() WHERE id = $1",
		id, mediaID,
	)
	return mapError(err, "document", id)
}

// UpdateDocumentGallery stores the rewritten body together with the local gallery ids
func (db *DB) UpdateDocumentGallery(ctx context.Context, id int64, body string, gallery []int64) error {
	if gallery == nil {
		gallery = []int64{}
	}
	_, err := db.Pool.Exec(ctx,
		"UPDATE documents SET body = $2, gallery_media_ids = $3, updated_at = NOW() WHERE id = $1",
		id, body, gallery,
	)
	return mapError(err, "document", id)
}

// UpdateDocumentMeta stores the merged SEO and theme bags
func (db *DB) UpdateDocumentMeta(ctx context.Context, id int64, seo, theme domain.Meta) error {
	seoJSON, err := encodeMeta(seo)
	if err != nil {
		return err
	}
	themeJSON, err := encodeMeta(theme)
	if err != nil {
		return err
	}

	_, err = db.Pool.Exec(ctx,
		"UPDATE documents SET seo_meta = $2, theme_meta = $3, updated_at = NOW() WHERE id = $1",
		id, seoJSON, themeJSON,
	)
	return mapError(err, "document", id)
}

// GetDocument retrieves a document by id
func (db *DB) GetDocument(ctx context.Context, id int64) (*domain.Document, error) {
	row := db.Pool.QueryRow(ctx, "SELECT "+documentColumns+" FROM documents WHERE id = $1 AND deleted_at IS NULL", id)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, mapError(err, "document", id)
	}
	return doc, nil
}

// GetDocumentByPath retrieves an authored document by its vault path
func (db *DB) GetDocumentByPath(ctx context.Context, path string) (*domain.Document, error) {
	row := db.Pool.QueryRow(ctx, "SELECT "+documentColumns+" FROM documents WHERE path = $1 AND deleted_at IS NULL", path)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, mapError(err, "document", path)
	}
	return doc, nil
}

// GetDocumentByIdentity finds a received document by its origin pair
func (db *DB) GetDocumentByIdentity(ctx context.Context, identity domain.Identity) (*domain.Document, error) {
	row := db.Pool.QueryRow(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE origin_url = $1 AND origin_id = $2",
		identity.OriginURL, identity.OriginID,
	)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, mapError(err, "document", identity)
	}
	return doc, nil
}

// DeleteDocumentByPath soft-deletes an authored document
func (db *DB) DeleteDocumentByPath(ctx context.Context, path string) error {
	return db.BatchDeleteDocuments(ctx, []string{path})
}

// BatchDeleteDocuments soft-deletes multiple authored documents by path.
// The rows keep their ids, so a restored file updates the copies already
// delivered instead of creating new ones.
func (db *DB) BatchDeleteDocuments(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	_, err := db.Pool.Exec(ctx,
		"UPDATE documents SET deleted_at = NOW() WHERE path = ANY($1) AND deleted_at IS NULL",
		paths,
	)
	return err
}

// GetAllDocumentHashes returns a map of path -> content_hash for authored documents
func (db *DB) GetAllDocumentHashes(ctx context.Context) (map[string]string, error) {
	return db.pathHashes(ctx, "SELECT path, content_hash FROM documents WHERE path IS NOT NULL AND deleted_at IS NULL")
}

// GetAllDocumentPaths returns all authored document paths
func (db *DB) GetAllDocumentPaths(ctx context.Context) ([]string, error) {
	return db.paths(ctx, "SELECT path FROM documents WHERE path IS NOT NULL AND deleted_at IS NULL")
}

// CountDocuments returns the number of stored documents
func (db *DB) CountDocuments(ctx context.Context) (int, error) {
	var n int
	err := db.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM documents WHERE deleted_at IS NULL").Scan(&n)
	return n, err
}

func (db *DB) pathHashes(ctx context.Context, query string) (map[string]string, error) {
	rows, err := db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hashes := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, err
		}
		hashes[path] = hash
	}

	return hashes, rows.Err()
}

func (db *DB) paths(ctx context.Context, query string) ([]string, error) {
	rows, err := db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}

	return paths, rows.Err()
}
