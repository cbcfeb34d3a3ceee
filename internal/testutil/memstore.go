package testutil

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vonshlovens/spokesync/internal/domain"
)

type deliveryKey struct {
	doc  int64
	dest string
}

// MemStore is an in-memory stand-in for *db.DB. It implements the store
// interfaces of the registry, delivery, activity, media and receiver
// packages with the same conflict and not-found semantics as the SQL.
//
// Set Fail[method] to make that method return an error.
type MemStore struct {
	mu sync.Mutex

	Fail map[string]error

	connections map[string]*domain.Connection
	documents   map[int64]*domain.Document
	trashed     map[int64]bool
	deliveries  map[deliveryKey]*domain.DeliveryRecord
	activity    []*domain.ActivityEntry
	authors     []*domain.LocalAuthor
	media       map[int64]*domain.MediaItem

	nextDoc    int64
	nextAuthor int64
	nextMedia  int64
}

// NewMemStore creates an empty store
func NewMemStore() *MemStore {
	return &MemStore{
		Fail:        make(map[string]error),
		connections: make(map[string]*domain.Connection),
		documents:   make(map[int64]*domain.Document),
		trashed:     make(map[int64]bool),
		deliveries:  make(map[deliveryKey]*domain.DeliveryRecord),
		media:       make(map[int64]*domain.MediaItem),
	}
}

func (s *MemStore) fail(method string) error {
	return s.Fail[method]
}

// Connections

func (s *MemStore) InsertConnection(_ context.Context, c *domain.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("InsertConnection"); err != nil {
		return err
	}
	for _, existing := range s.connections {
		if existing.Role == c.Role && existing.BaseURL == c.BaseURL {
			return fmt.Errorf("connection %s: %w", c.BaseURL, domain.ErrAlreadyExists)
		}
	}
	cp := *c
	s.connections[c.ID] = &cp
	return nil
}

func (s *MemStore) UpdateConnection(_ context.Context, c *domain.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.connections[c.ID]; !ok {
		return fmt.Errorf("connection %s: %w", c.ID, domain.ErrNotFound)
	}
	for _, existing := range s.connections {
		if existing.ID != c.ID && existing.Role == c.Role && existing.BaseURL == c.BaseURL {
			return fmt.Errorf("connection %s: %w", c.BaseURL, domain.ErrAlreadyExists)
		}
	}
	cp := *c
	s.connections[c.ID] = &cp
	return nil
}

func (s *MemStore) GetConnection(_ context.Context, id string) (*domain.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetConnection"); err != nil {
		return nil, err
	}
	c, ok := s.connections[id]
	if !ok {
		return nil, fmt.Errorf("connection %s: %w", id, domain.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (s *MemStore) ListConnections(_ context.Context, role domain.Role) ([]*domain.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Connection
	for _, c := range s.connections {
		if role == "" || c.Role == role {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemStore) DeleteConnection(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.connections[id]; !ok {
		return fmt.Errorf("connection %s: %w", id, domain.ErrNotFound)
	}
	delete(s.connections, id)
	return nil
}

func (s *MemStore) SetConnectionStatus(_ context.Context, id string, status domain.ConnectionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connections[id]
	if !ok {
		return fmt.Errorf("connection %s: %w", id, domain.ErrNotFound)
	}
	c.Status = status
	return nil
}

func (s *MemStore) TouchConnection(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connections[id]
	if !ok {
		return fmt.Errorf("connection %s: %w", id, domain.ErrNotFound)
	}
	c.LastContactAt = &at
	return nil
}

// Deliveries

func (s *MemStore) GetDelivery(_ context.Context, documentID int64, destinationID string) (*domain.DeliveryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.deliveries[deliveryKey{documentID, destinationID}]
	if !ok {
		return nil, fmt.Errorf("delivery %d/%s: %w", documentID, destinationID, domain.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (s *MemStore) delivery(documentID int64, destinationID string, at time.Time) *domain.DeliveryRecord {
	k := deliveryKey{documentID, destinationID}
	r, ok := s.deliveries[k]
	if !ok {
		r = &domain.DeliveryRecord{DocumentID: documentID, DestinationID: destinationID, CreatedAt: at}
		s.deliveries[k] = r
	}
	r.LastAttemptAt = at
	r.UpdatedAt = at
	return r
}

func (s *MemStore) MarkDeliveryPending(_ context.Context, documentID int64, destinationID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("MarkDeliveryPending"); err != nil {
		return err
	}
	s.delivery(documentID, destinationID, at).Status = domain.DeliveryPending
	return nil
}

func (s *MemStore) MarkDeliverySucceeded(_ context.Context, documentID int64, destinationID string, remoteID int64, remoteURL string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.delivery(documentID, destinationID, at)
	r.Status = domain.DeliveryDelivered
	r.LastError = ""
	r.RetryCount = 0
	r.RemoteID = remoteID
	r.RemoteURL = remoteURL
	return nil
}

func (s *MemStore) MarkDeliveryFailed(_ context.Context, documentID int64, destinationID, message string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.delivery(documentID, destinationID, at)
	r.Status = domain.DeliveryFailed
	r.LastError = message
	r.RetryCount++
	return r.RetryCount, nil
}

func (s *MemStore) ListDeliveriesForDocument(_ context.Context, documentID int64) ([]*domain.DeliveryRecord, error) {
	return s.selectDeliveries(func(r *domain.DeliveryRecord) bool { return r.DocumentID == documentID }), nil
}

func (s *MemStore) ListFailedDeliveries(_ context.Context, maxRetries int) ([]*domain.DeliveryRecord, error) {
	return s.selectDeliveries(func(r *domain.DeliveryRecord) bool {
		return r.Status == domain.DeliveryFailed && r.RetryCount < maxRetries
	}), nil
}

func (s *MemStore) SweepStuckDeliveries(_ context.Context, cutoff time.Time, message string) ([]*domain.DeliveryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.DeliveryRecord
	for _, r := range s.deliveries {
		if r.Status == domain.DeliveryPending && r.LastAttemptAt.Before(cutoff) {
			r.Status = domain.DeliveryFailed
			r.LastError = message
			r.RetryCount++
			cp := *r
			out = append(out, &cp)
		}
	}
	sortDeliveries(out)
	return out, nil
}

func (s *MemStore) PruneDeliveries(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, r := range s.deliveries {
		if r.Status != domain.DeliveryPending && r.LastAttemptAt.Before(cutoff) {
			delete(s.deliveries, k)
			n++
		}
	}
	return n, nil
}

func (s *MemStore) DeliveryReport(_ context.Context, statuses []domain.DeliveryStatus, limit int) ([]*domain.DeliveryReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.DeliveryReport
	for _, r := range s.deliveries {
		if len(statuses) > 0 && !slices.Contains(statuses, r.Status) {
			continue
		}
		rep := &domain.DeliveryReport{DeliveryRecord: *r}
		if d, ok := s.documents[r.DocumentID]; ok {
			rep.DocumentTitle = d.Title
		}
		if c, ok := s.connections[r.DestinationID]; ok {
			rep.DestinationName = c.Name
			if rep.DestinationName == "" {
				rep.DestinationName = c.BaseURL
			}
		}
		out = append(out, rep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastAttemptAt.After(out[j].LastAttemptAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeliveryCount returns the number of records held for a document
func (s *MemStore) DeliveryCount(documentID int64) int {
	return len(s.selectDeliveries(func(r *domain.DeliveryRecord) bool { return r.DocumentID == documentID }))
}

func (s *MemStore) selectDeliveries(keep func(*domain.DeliveryRecord) bool) []*domain.DeliveryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.DeliveryRecord
	for _, r := range s.deliveries {
		if keep(r) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sortDeliveries(out)
	return out
}

func sortDeliveries(rs []*domain.DeliveryRecord) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].DocumentID != rs[j].DocumentID {
			return rs[i].DocumentID < rs[j].DocumentID
		}
		return rs[i].DestinationID < rs[j].DestinationID
	})
}

// Activity

func (s *MemStore) InsertActivity(_ context.Context, e *domain.ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("InsertActivity"); err != nil {
		return err
	}
	cp := *e
	s.activity = append(s.activity, &cp)
	return nil
}

func (s *MemStore) RecentActivity(_ context.Context, severity domain.Severity, limit int) ([]*domain.ActivityEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.ActivityEntry
	for i := len(s.activity) - 1; i >= 0; i-- {
		e := s.activity[i]
		if severity != "" && e.Severity != severity {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemStore) ActivityStats(_ context.Context, since time.Time) (domain.ActivityStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := domain.ActivityStat{Documents: len(s.documents)}
	for _, e := range s.activity {
		if e.CreatedAt.Before(since) {
			continue
		}
		if e.Severity == domain.SeveritySuccess && (e.Action == domain.ActionReceive || e.Action == domain.ActionUpdate) {
			st.Received24h++
		}
		if e.Severity == domain.SeverityError {
			st.Errors24h++
		}
	}
	return st, nil
}

func (s *MemStore) PruneActivity(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.activity[:0]
	var n int64
	for _, e := range s.activity {
		if e.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	s.activity = kept
	return n, nil
}

// Activity returns every entry recorded so far, oldest first
func (s *MemStore) Activity() []*domain.ActivityEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.activity)
}

// ActivityWith returns entries of one severity
func (s *MemStore) ActivityWith(severity domain.Severity) []*domain.ActivityEntry {
	var out []*domain.ActivityEntry
	for _, e := range s.Activity() {
		if e.Severity == severity {
			out = append(out, e)
		}
	}
	return out
}

// Documents

// PutDocument stores an authored document, assigning an id when missing
func (s *MemStore) PutDocument(doc *domain.Document) *domain.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.ID == 0 {
		s.nextDoc++
		doc.ID = s.nextDoc
	} else if doc.ID > s.nextDoc {
		s.nextDoc = doc.ID
	}
	cp := cloneDocument(doc)
	s.documents[doc.ID] = cp
	return doc
}

func (s *MemStore) GetDocument(_ context.Context, id int64) (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[id]
	if !ok || s.trashed[id] {
		return nil, fmt.Errorf("document %d: %w", id, domain.ErrNotFound)
	}
	return cloneDocument(d), nil
}

func (s *MemStore) GetDocumentByIdentity(_ context.Context, identity domain.Identity) (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.documents {
		if d.Identity != nil && *d.Identity == identity {
			return cloneDocument(d), nil
		}
	}
	return nil, fmt.Errorf("document %v: %w", identity, domain.ErrNotFound)
}

func (s *MemStore) InsertReceivedDocument(_ context.Context, doc *domain.Document) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.Identity == nil {
		return 0, fmt.Errorf("received document without identity: %w", domain.ErrValidation)
	}
	if err := s.fail("InsertReceivedDocument"); err != nil {
		return 0, err
	}
	for _, d := range s.documents {
		if d.Identity != nil && *d.Identity == *doc.Identity {
			return 0, fmt.Errorf("document %v: %w", *doc.Identity, domain.ErrAlreadyExists)
		}
	}
	s.nextDoc++
	doc.ID = s.nextDoc
	cp := cloneDocument(doc)
	cp.FeaturedMedia = nil
	cp.Gallery = nil
	cp.Categories = nil
	cp.Tags = nil
	s.documents[doc.ID] = cp
	return doc.ID, nil
}

func (s *MemStore) UpdateDocumentContent(_ context.Context, doc *domain.Document) error {
	return s.withDocument(doc.ID, "UpdateDocumentContent", func(d *domain.Document) {
		d.Title = doc.Title
		d.Body = doc.Body
		d.Excerpt = doc.Excerpt
		d.Status = doc.Status
		d.Slug = doc.Slug
		d.PostType = doc.PostType
		d.PublishedAt = doc.PublishedAt
		d.ModifiedAt = doc.ModifiedAt
		d.AuthorID = doc.AuthorID
		d.Author = doc.Author
		d.ContentHash = doc.ContentHash
	})
}

func (s *MemStore) UpdateDocumentTerms(_ context.Context, id int64, categories, tags []string) error {
	return s.withDocument(id, "UpdateDocumentTerms", func(d *domain.Document) {
		d.Categories = slices.Clone(categories)
		d.Tags = slices.Clone(tags)
	})
}

func (s *MemStore) UpdateDocumentFeatured(_ context.Context, id int64, mediaID *int64) error {
	return s.withDocument(id, "UpdateDocumentFeatured", func(d *domain.Document) {
		d.FeaturedMedia = nil
		if mediaID != nil {
			d.FeaturedMedia = &domain.MediaRef{ID: *mediaID}
		}
	})
}

func (s *MemStore) UpdateDocumentGallery(_ context.Context, id int64, body string, gallery []int64) error {
	return s.withDocument(id, "UpdateDocumentGallery", func(d *domain.Document) {
		d.Body = body
		d.Gallery = nil
		for _, g := range gallery {
			d.Gallery = append(d.Gallery, domain.MediaRef{ID: g})
		}
	})
}

func (s *MemStore) UpdateDocumentMeta(_ context.Context, id int64, seo, theme domain.Meta) error {
	return s.withDocument(id, "UpdateDocumentMeta", func(d *domain.Document) {
		d.SEOMeta = seo.Clone()
		d.ThemeMeta = theme.Clone()
	})
}

func (s *MemStore) withDocument(id int64, method string, apply func(*domain.Document)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(method); err != nil {
		return err
	}
	d, ok := s.documents[id]
	if !ok {
		return fmt.Errorf("document %d: %w", id, domain.ErrNotFound)
	}
	apply(d)
	return nil
}

// DocumentCount returns the number of stored documents that are not deleted
func (s *MemStore) DocumentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.documents) - len(s.trashed)
}

func cloneDocument(d *domain.Document) *domain.Document {
	cp := *d
	cp.Categories = slices.Clone(d.Categories)
	cp.Tags = slices.Clone(d.Tags)
	cp.Gallery = slices.Clone(d.Gallery)
	cp.SEOMeta = d.SEOMeta.Clone()
	cp.ThemeMeta = d.ThemeMeta.Clone()
	if d.FeaturedMedia != nil {
		fm := *d.FeaturedMedia
		cp.FeaturedMedia = &fm
	}
	if d.Identity != nil {
		id := *d.Identity
		cp.Identity = &id
	}
	return &cp
}

// Authors

// AddAuthor registers a local author account
func (s *MemStore) AddAuthor(login, email, displayName string) *domain.LocalAuthor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addAuthor(login, email, displayName)
}

func (s *MemStore) addAuthor(login, email, displayName string) *domain.LocalAuthor {
	s.nextAuthor++
	a := &domain.LocalAuthor{ID: s.nextAuthor, Login: login, Email: email, DisplayName: displayName}
	s.authors = append(s.authors, a)
	return a
}

func (s *MemStore) FindAuthorByEmail(_ context.Context, email string) (*domain.LocalAuthor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.authors {
		if a.Email != "" && strings.EqualFold(a.Email, email) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("author %s: %w", email, domain.ErrNotFound)
}

func (s *MemStore) FindAuthorByLogin(_ context.Context, login string) (*domain.LocalAuthor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.authors {
		if a.Login == login {
			cp := *a
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("author %s: %w", login, domain.ErrNotFound)
}

func (s *MemStore) EnsureAuthor(_ context.Context, login, email, displayName string) (*domain.LocalAuthor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.authors {
		if a.Login == login {
			cp := *a
			return &cp, nil
		}
	}
	cp := *s.addAuthor(login, email, displayName)
	return &cp, nil
}

// Media

func (s *MemStore) GetMedia(_ context.Context, id int64) (*domain.MediaItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.media[id]
	if !ok {
		return nil, fmt.Errorf("media %d: %w", id, domain.ErrNotFound)
	}
	cp := *m
	return &cp, nil
}

func (s *MemStore) GetMediaBySourceURL(_ context.Context, sourceURL string) (*domain.MediaItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.media {
		if m.SourceURL == sourceURL {
			cp := *m
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("media %s: %w", sourceURL, domain.ErrNotFound)
}

func (s *MemStore) UpsertMediaBySourceURL(_ context.Context, item *domain.MediaItem) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.media {
		if m.SourceURL == item.SourceURL {
			cp := *item
			cp.ID = id
			s.media[id] = &cp
			return id, nil
		}
	}
	s.nextMedia++
	cp := *item
	cp.ID = s.nextMedia
	s.media[cp.ID] = &cp
	return cp.ID, nil
}

// PutMedia stores a media item, assigning an id when missing
func (s *MemStore) PutMedia(item *domain.MediaItem) *domain.MediaItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == 0 {
		s.nextMedia++
		item.ID = s.nextMedia
	} else if item.ID > s.nextMedia {
		s.nextMedia = item.ID
	}
	cp := *item
	s.media[item.ID] = &cp
	return item
}

// Vault documents and attachments

func (s *MemStore) UpsertDocumentByPath(_ context.Context, doc *domain.Document) (int64, error) {
	if err := s.fail("UpsertDocumentByPath"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, d := range s.documents {
		if d.Path == doc.Path && d.Identity == nil {
			doc.ID = id
			doc.CreatedAt = d.CreatedAt
			s.documents[id] = cloneDocument(doc)
			delete(s.trashed, id)
			return id, nil
		}
	}
	s.nextDoc++
	doc.ID = s.nextDoc
	s.documents[doc.ID] = cloneDocument(doc)
	return doc.ID, nil
}

func (s *MemStore) GetDocumentByPath(_ context.Context, path string) (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, d := range s.documents {
		if d.Path == path && d.Identity == nil && !s.trashed[id] {
			return cloneDocument(d), nil
		}
	}
	return nil, fmt.Errorf("document %s: %w", path, domain.ErrNotFound)
}

func (s *MemStore) DeleteDocumentByPath(ctx context.Context, path string) error {
	return s.BatchDeleteDocuments(ctx, []string{path})
}

// BatchDeleteDocuments soft-deletes vault documents. Their ids and
// delivery records survive so a restored path reuses both.
func (s *MemStore) BatchDeleteDocuments(_ context.Context, paths []string) error {
	if err := s.fail("BatchDeleteDocuments"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, d := range s.documents {
		if d.Identity == nil && slices.Contains(paths, d.Path) {
			s.trashed[id] = true
		}
	}
	return nil
}

func (s *MemStore) GetAllDocumentHashes(_ context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string)
	for id, d := range s.documents {
		if d.Path != "" && d.Identity == nil && !s.trashed[id] {
			out[d.Path] = d.ContentHash
		}
	}
	return out, nil
}

func (s *MemStore) UpsertMediaByPath(_ context.Context, item *domain.MediaItem) (int64, error) {
	if err := s.fail("UpsertMediaByPath"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.media {
		if m.Path != "" && m.Path == item.Path {
			cp := *item
			cp.ID = id
			s.media[id] = &cp
			item.ID = id
			return id, nil
		}
	}
	s.nextMedia++
	cp := *item
	cp.ID = s.nextMedia
	s.media[cp.ID] = &cp
	item.ID = cp.ID
	return cp.ID, nil
}

// FindMediaByName matches an exact path or the shortest path ending in /name
func (s *MemStore) FindMediaByName(_ context.Context, name string) (*domain.MediaItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *domain.MediaItem
	for _, m := range s.media {
		if m.Path == "" || (m.Path != name && !strings.HasSuffix(m.Path, "/"+name)) {
			continue
		}
		if best == nil || len(m.Path) < len(best.Path) {
			best = m
		}
	}
	if best == nil {
		return nil, fmt.Errorf("media %s: %w", name, domain.ErrNotFound)
	}
	cp := *best
	cp.Data = nil
	return &cp, nil
}

func (s *MemStore) DeleteMediaByPath(ctx context.Context, path string) error {
	return s.BatchDeleteMedia(ctx, []string{path})
}

func (s *MemStore) BatchDeleteMedia(_ context.Context, paths []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.media {
		if m.Path != "" && slices.Contains(paths, m.Path) {
			delete(s.media, id)
		}
	}
	return nil
}

func (s *MemStore) GetAllMediaHashes(_ context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string)
	for _, m := range s.media {
		if m.Path != "" {
			out[m.Path] = m.ContentHash
		}
	}
	return out, nil
}
