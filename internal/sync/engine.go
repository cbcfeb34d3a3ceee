package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/schollz/progressbar/v3"

	"github.com/vonshlovens/spokesync/internal/config"
	"github.com/vonshlovens/spokesync/internal/domain"
	"github.com/vonshlovens/spokesync/internal/hash"
	"github.com/vonshlovens/spokesync/internal/parser"
	"github.com/vonshlovens/spokesync/internal/watcher"
)

// Store is the part of the database the engine writes vault files to
type Store interface {
	UpsertDocumentByPath(ctx context.Context, doc *domain.Document) (int64, error)
	GetDocumentByPath(ctx context.Context, path string) (*domain.Document, error)
	DeleteDocumentByPath(ctx context.Context, path string) error
	BatchDeleteDocuments(ctx context.Context, paths []string) error
	GetAllDocumentHashes(ctx context.Context) (map[string]string, error)

	UpsertMediaByPath(ctx context.Context, item *domain.MediaItem) (int64, error)
	FindMediaByName(ctx context.Context, name string) (*domain.MediaItem, error)
	DeleteMediaByPath(ctx context.Context, path string) error
	BatchDeleteMedia(ctx context.Context, paths []string) error
	GetAllMediaHashes(ctx context.Context) (map[string]string, error)
}

// Dispatcher sends a stored document to its destinations
type Dispatcher interface {
	Dispatch(ctx context.Context, doc *domain.Document, destinationIDs []string) (map[string]domain.Result, error)
	Update(ctx context.Context, doc *domain.Document, selected []string) (map[string]domain.Result, error)
}

// Resolver maps a destination reference from frontmatter to a connection
type Resolver interface {
	Resolve(ctx context.Context, role domain.Role, ref string) (*domain.Connection, error)
}

// Option configures an Engine
type Option func(*Engine)

// WithDispatch dispatches every synced note that selects destinations
func WithDispatch(resolver Resolver, dispatcher Dispatcher) Option {
	return func(e *Engine) {
		e.resolver = resolver
		e.dispatcher = dispatcher
	}
}

// WithStateDir overrides where the local sync state is kept
func WithStateDir(dir string) Option {
	return func(e *Engine) { e.stateDir = dir }
}

// WithProgress sets where progress bars are drawn; io.Discard hides them
func WithProgress(w io.Writer) Option {
	return func(e *Engine) { e.progress = w }
}

// Engine handles file synchronization logic
type Engine struct {
	store      Store
	config     *config.Config
	filter     watcher.Filter
	state      *StateTracker
	stateDir   string
	parser     *parser.Parser
	resolver   Resolver
	dispatcher Dispatcher
	progress   io.Writer

	retryMu    sync.Mutex
	retryQueue map[string]int // path -> retry count

	maxBinarySize int64
}

// NewEngine creates a new sync engine
func NewEngine(store Store, cfg *config.Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:         store,
		config:        cfg,
		filter:        watcher.Filter{Ignore: cfg.IgnorePatterns, Include: cfg.IncludePatterns},
		parser:        parser.NewParser(),
		progress:      os.Stderr,
		retryQueue:    make(map[string]int),
		maxBinarySize: int64(cfg.Sync.MaxBinarySizeMB) * 1024 * 1024,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.stateDir == "" {
		dir, err := config.GetStateDir()
		if err != nil {
			return nil, err
		}
		e.stateDir = dir
	}
	state, err := NewStateTracker(e.stateDir, cfg.VaultPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create state tracker: %w", err)
	}
	e.state = state

	return e, nil
}

// SyncFile syncs a single file based on event type
func (e *Engine) SyncFile(ctx context.Context, relPath string, eventType watcher.EventType) error {
	start := time.Now()

	var err error
	switch eventType {
	case watcher.EventDelete:
		err = e.RemoveFile(ctx, relPath)
	case watcher.EventCreate, watcher.EventModify:
		err = e.upsertFile(ctx, relPath)
	}
	if err != nil {
		e.queueRetry(relPath)
		return err
	}

	slog.Debug("sync completed", "path", relPath, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// upsertFile creates or updates a file in the database
func (e *Engine) upsertFile(ctx context.Context, relPath string) error {
	absPath := filepath.Join(e.config.VaultPath, filepath.FromSlash(relPath))

	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File no longer exists
		}
		return fmt.Errorf("failed to stat file: %w", err)
	}

	if info.IsDir() || e.filter.Skip(relPath) {
		return nil
	}

	sum, err := hash.File(absPath)
	if err != nil {
		return fmt.Errorf("failed to hash file: %w", err)
	}

	if !e.state.NeedsSync(relPath, sum) {
		slog.Debug("file unchanged, skipping", "path", relPath)
		return nil
	}

	fileState := &FileState{
		Hash:         sum,
		LastSynced:   time.Now(),
		LastModified: info.ModTime(),
		SizeBytes:    info.Size(),
	}

	if watcher.IsDocument(relPath) {
		id, err := e.syncNote(ctx, relPath, absPath, sum, info)
		if err != nil {
			return err
		}
		fileState.DocumentID = &id
	} else {
		synced, err := e.syncAttachment(ctx, relPath, absPath, sum, info.Size())
		if err != nil || !synced {
			return err
		}
	}

	e.state.SetFileState(relPath, fileState)

	slog.Info("file synced", "path", relPath, "hash", sum[:8])
	return nil
}

// syncNote parses a markdown note, stores it as a document and dispatches it
func (e *Engine) syncNote(ctx context.Context, relPath, absPath, sum string, info fs.FileInfo) (int64, error) {
	note, err := e.parser.ParseFile(absPath)
	if err != nil {
		return 0, fmt.Errorf("failed to parse note: %w", err)
	}
	if !parser.IsValidUTF8(note.RawContent) {
		slog.Warn("note is not valid UTF-8", "path", relPath)
	}

	doc := note.Document(relPath)
	doc.ContentHash = sum
	if doc.ModifiedAt == nil {
		mod := info.ModTime()
		doc.ModifiedAt = &mod
	}

	media := newMediaLookup(e.store, e.config.SiteURL)
	doc.Body = parser.RewriteEmbeds(doc.Body, func(name string) (int64, bool) {
		ref, ok := media.find(ctx, name)
		if !ok {
			return 0, false
		}
		return ref.ID, true
	}, func(id int64) string {
		return domain.MediaURL(e.config.SiteURL, id)
	})

	fm := note.Frontmatter
	if fm.FeaturedImage != "" {
		if ref, ok := media.find(ctx, fm.FeaturedImage); ok {
			doc.FeaturedMedia = &ref
		}
	}
	for _, name := range fm.Gallery {
		if ref, ok := media.find(ctx, name); ok {
			doc.Gallery = append(doc.Gallery, ref)
		}
	}
	for _, name := range media.missing {
		slog.Warn("embedded attachment not found", "path", relPath, "attachment", name)
	}

	id, err := e.store.UpsertDocumentByPath(ctx, doc)
	if err != nil {
		return 0, fmt.Errorf("failed to store document: %w", err)
	}
	doc.ID = id

	if err := e.dispatch(ctx, doc); err != nil {
		return id, err
	}
	return id, nil
}

// dispatch sends doc to the destinations its frontmatter selects
func (e *Engine) dispatch(ctx context.Context, doc *domain.Document) error {
	if e.dispatcher == nil || len(doc.Destinations) == 0 {
		return nil
	}

	ids, err := e.destinationIDs(ctx, doc)
	if err != nil || len(ids) == 0 {
		return err
	}

	// Per-destination failures are recorded by the dispatcher; only a
	// cancelled context comes back as an error.
	_, err = e.dispatcher.Dispatch(ctx, doc, ids)
	return err
}

// destinationIDs resolves the frontmatter destinations of doc to connection ids
func (e *Engine) destinationIDs(ctx context.Context, doc *domain.Document) ([]string, error) {
	ids := make([]string, 0, len(doc.Destinations))
	for _, ref := range doc.Destinations {
		conn, err := e.resolver.Resolve(ctx, domain.RoleOutbound, ref)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				slog.Warn("unknown destination", "path", doc.Path, "destination", ref)
				continue
			}
			return nil, fmt.Errorf("failed to resolve destination %q: %w", ref, err)
		}
		ids = append(ids, conn.ID)
	}
	return ids, nil
}

// DispatchPath re-sends an already synced note to its selected destinations,
// or to the given ones when refs is not empty
func (e *Engine) DispatchPath(ctx context.Context, relPath string, refs ...string) error {
	doc, err := e.loadForDispatch(ctx, relPath, refs)
	if err != nil {
		return err
	}
	return e.dispatch(ctx, doc)
}

// UpdatePath refreshes the copies of an already synced note. Only
// destinations that hold a copy and are still selected receive it.
func (e *Engine) UpdatePath(ctx context.Context, relPath string, refs ...string) error {
	doc, err := e.loadForDispatch(ctx, relPath, refs)
	if err != nil {
		return err
	}
	ids, err := e.destinationIDs(ctx, doc)
	if err != nil || len(ids) == 0 {
		return err
	}
	_, err = e.dispatcher.Update(ctx, doc, ids)
	return err
}

func (e *Engine) loadForDispatch(ctx context.Context, relPath string, refs []string) (*domain.Document, error) {
	if e.dispatcher == nil {
		return nil, errors.New("dispatch is not configured")
	}
	doc, err := e.store.GetDocumentByPath(ctx, filepath.ToSlash(relPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	if len(refs) > 0 {
		doc.Destinations = refs
	}
	if len(doc.Destinations) == 0 {
		return nil, fmt.Errorf("document %s selects no destinations", relPath)
	}
	return doc, nil
}

// syncAttachment stores a vault attachment in the media library. It reports
// false when the file was skipped.
func (e *Engine) syncAttachment(ctx context.Context, relPath, absPath, sum string, size int64) (bool, error) {
	if size > e.maxBinarySize {
		slog.Warn("attachment too large, skipping",
			"path", relPath,
			"size_mb", size/(1024*1024),
			"max_mb", e.config.Sync.MaxBinarySizeMB)
		return false, nil
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return false, fmt.Errorf("failed to read attachment: %w", err)
	}

	item := &domain.MediaItem{
		Path:        relPath,
		Filename:    filepath.Base(relPath),
		MimeType:    mimetype.Detect(data).String(),
		Size:        size,
		ContentHash: sum,
		Data:        data,
	}
	if _, err := e.store.UpsertMediaByPath(ctx, item); err != nil {
		return false, fmt.Errorf("failed to store attachment: %w", err)
	}
	return true, nil
}

// RemoveFile removes a file from the database. Documents already delivered
// stay on their destinations.
func (e *Engine) RemoveFile(ctx context.Context, relPath string) error {
	var err error
	if watcher.IsDocument(relPath) {
		err = e.store.DeleteDocumentByPath(ctx, relPath)
	} else {
		err = e.store.DeleteMediaByPath(ctx, relPath)
	}
	if err != nil {
		return err
	}

	e.state.RemoveFileState(relPath)
	slog.Info("file removed", "path", relPath)
	return nil
}

// FullReconcile performs a full sync of the vault
func (e *Engine) FullReconcile(ctx context.Context) error {
	slog.Info("starting full reconciliation")
	start := time.Now()

	var localFiles []string
	err := filepath.WalkDir(e.config.VaultPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip unreadable entries
		}

		relPath, _ := filepath.Rel(e.config.VaultPath, path)
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if e.filter.SkipDir(relPath) {
				return filepath.SkipDir
			}
			return nil
		}
		if !e.filter.Skip(relPath) {
			localFiles = append(localFiles, relPath)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk vault: %w", err)
	}

	dbDocHashes, err := e.store.GetAllDocumentHashes(ctx)
	if err != nil {
		return fmt.Errorf("failed to get document hashes: %w", err)
	}
	dbMediaHashes, err := e.store.GetAllMediaHashes(ctx)
	if err != nil {
		return fmt.Errorf("failed to get media hashes: %w", err)
	}

	dbHashes := make(map[string]string, len(dbDocHashes)+len(dbMediaHashes))
	for k, v := range dbDocHashes {
		dbHashes[k] = v
	}
	for k, v := range dbMediaHashes {
		dbHashes[k] = v
	}

	localHashes := make(map[string]string, len(localFiles))
	var toSync []string

	bar := e.newBar(len(localFiles), "Scanning files", progressbar.OptionClearOnFinish())
	for _, relPath := range localFiles {
		bar.Add(1)

		sum, err := hash.File(filepath.Join(e.config.VaultPath, filepath.FromSlash(relPath)))
		if err != nil {
			slog.Warn("failed to hash file", "path", relPath, "error", err)
			continue
		}
		localHashes[relPath] = sum

		if dbHash, exists := dbHashes[relPath]; !exists || dbHash != sum {
			toSync = append(toSync, relPath)
		}
	}
	bar.Finish()

	// A database that lost rows the local state still lists must be rewritten
	for _, relPath := range toSync {
		e.state.RemoveFileState(relPath)
	}

	// Attachments first, so notes can resolve their embeds
	sort.SliceStable(toSync, func(i, j int) bool {
		return !watcher.IsDocument(toSync[i]) && watcher.IsDocument(toSync[j])
	})

	var toDelete []string
	for dbPath := range dbHashes {
		if _, exists := localHashes[dbPath]; !exists {
			toDelete = append(toDelete, dbPath)
		}
	}

	failed := 0
	if len(toSync) > 0 {
		bar = e.newBar(len(toSync), "Syncing files")
		for _, relPath := range toSync {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := e.upsertFile(ctx, relPath); err != nil {
				slog.Error("failed to sync file", "path", relPath, "error", err)
				e.queueRetry(relPath)
				failed++
			}
			bar.Add(1)
		}
		bar.Finish()
	}

	if len(toDelete) > 0 {
		var docs, media []string
		for _, path := range toDelete {
			if watcher.IsDocument(path) {
				docs = append(docs, path)
			} else {
				media = append(media, path)
			}
		}

		if len(docs) > 0 {
			if err := e.store.BatchDeleteDocuments(ctx, docs); err != nil {
				slog.Error("failed to batch delete documents", "error", err)
			}
		}
		if len(media) > 0 {
			if err := e.store.BatchDeleteMedia(ctx, media); err != nil {
				slog.Error("failed to batch delete media", "error", err)
			}
		}

		for _, path := range toDelete {
			e.state.RemoveFileState(path)
		}

		slog.Info("deleted removed files", "count", len(toDelete))
	}

	e.state.SetLastFullSync(time.Now())
	if err := e.state.Save(); err != nil {
		slog.Warn("failed to save state", "error", err)
	}

	slog.Info("full reconciliation completed",
		"synced", len(toSync)-failed,
		"failed", failed,
		"deleted", len(toDelete),
		"duration_s", time.Since(start).Seconds())

	return nil
}

func (e *Engine) newBar(total int, description string, extra ...progressbar.Option) *progressbar.ProgressBar {
	opts := append([]progressbar.Option{
		progressbar.OptionSetWriter(e.progress),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
	}, extra...)
	return progressbar.NewOptions(total, opts...)
}

func (e *Engine) queueRetry(relPath string) {
	e.retryMu.Lock()
	defer e.retryMu.Unlock()
	if _, queued := e.retryQueue[relPath]; !queued {
		e.retryQueue[relPath] = 0
	}
}

// RetryFailed retries failed sync operations
func (e *Engine) RetryFailed(ctx context.Context) {
	maxRetries := e.config.Sync.RetryAttempts

	e.retryMu.Lock()
	pending := make(map[string]int, len(e.retryQueue))
	for path, count := range e.retryQueue {
		pending[path] = count
	}
	e.retryMu.Unlock()

	delay := time.Duration(e.config.Sync.RetryDelayMs) * time.Millisecond
	attempted := 0
	for path, count := range pending {
		if count >= maxRetries {
			slog.Error("max retries exceeded", "path", path)
			e.dropRetry(path)
			continue
		}

		if attempted > 0 && delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
		attempted++

		var err error
		if _, statErr := os.Stat(filepath.Join(e.config.VaultPath, filepath.FromSlash(path))); os.IsNotExist(statErr) {
			err = e.RemoveFile(ctx, path)
		} else {
			err = e.upsertFile(ctx, path)
		}

		if err != nil {
			slog.Warn("retry failed", "path", path, "attempt", count+1, "error", err)
			e.retryMu.Lock()
			e.retryQueue[path] = count + 1
			e.retryMu.Unlock()
			continue
		}
		e.dropRetry(path)
		slog.Info("retry succeeded", "path", path)
	}
}

func (e *Engine) dropRetry(path string) {
	e.retryMu.Lock()
	delete(e.retryQueue, path)
	e.retryMu.Unlock()
}

// SaveState persists the current state to disk
func (e *Engine) SaveState() error {
	return e.state.Save()
}

// GetPendingRetries returns count of files pending retry
func (e *Engine) GetPendingRetries() int {
	e.retryMu.Lock()
	defer e.retryMu.Unlock()
	return len(e.retryQueue)
}

// mediaLookup resolves attachment names once per note
type mediaLookup struct {
	store   Store
	siteURL string
	found   map[string]*domain.MediaRef
	missing []string
}

func newMediaLookup(store Store, siteURL string) *mediaLookup {
	return &mediaLookup{store: store, siteURL: siteURL, found: make(map[string]*domain.MediaRef)}
}

func (m *mediaLookup) find(ctx context.Context, name string) (domain.MediaRef, bool) {
	if ref, seen := m.found[name]; seen {
		if ref == nil {
			return domain.MediaRef{}, false
		}
		return *ref, true
	}

	item, err := m.store.FindMediaByName(ctx, name)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Warn("failed to look up attachment", "attachment", name, "error", err)
		}
		m.found[name] = nil
		m.missing = append(m.missing, name)
		return domain.MediaRef{}, false
	}

	ref := &domain.MediaRef{
		ID:       item.ID,
		URL:      domain.MediaURL(m.siteURL, item.ID),
		Filename: item.Filename,
	}
	m.found[name] = ref
	return *ref, true
}
