package receiver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/vonshlovens/spokesync/internal/activity"
	"github.com/vonshlovens/spokesync/internal/domain"
	"github.com/vonshlovens/spokesync/internal/hash"
	"github.com/vonshlovens/spokesync/internal/keylock"
	"github.com/vonshlovens/spokesync/internal/media"
)

// Store is the local document library of a spoke
type Store interface {
	GetDocumentByIdentity(ctx context.Context, identity domain.Identity) (*domain.Document, error)
	InsertReceivedDocument(ctx context.Context, doc *domain.Document) (int64, error)
	UpdateDocumentContent(ctx context.Context, doc *domain.Document) error
	UpdateDocumentTerms(ctx context.Context, id int64, categories, tags []string) error
	UpdateDocumentFeatured(ctx context.Context, id int64, mediaID *int64) error
	UpdateDocumentGallery(ctx context.Context, id int64, body string, gallery []int64) error
	UpdateDocumentMeta(ctx context.Context, id int64, seo, theme domain.Meta) error

	FindAuthorByEmail(ctx context.Context, email string) (*domain.LocalAuthor, error)
	FindAuthorByLogin(ctx context.Context, login string) (*domain.LocalAuthor, error)
	EnsureAuthor(ctx context.Context, login, email, displayName string) (*domain.LocalAuthor, error)
}

// Config holds the site-wide receiving policy
type Config struct {
	SiteURL            string
	DefaultAuthor      string
	DownloadImages     bool
	AllowSEOOverride   bool
	AllowThemeOverride bool
}

// Receiver turns inbound payloads into local documents, keyed on the
// (origin url, origin id) identity pair
type Receiver struct {
	store    Store
	media    *media.Reconciler
	activity *activity.Log
	validate *validator.Validate
	locks    *keylock.Map[domain.Identity]
	cfg      Config
	logger   *slog.Logger
}

// New creates a receiver
func New(store Store, reconciler *media.Reconciler, log *activity.Log, cfg Config, logger *slog.Logger) *Receiver {
	return &Receiver{
		store:    store,
		media:    reconciler,
		activity: log,
		validate: newValidator(),
		locks:    keylock.New[domain.Identity](),
		cfg:      cfg,
		logger:   logger.With("component", "receiver"),
	}
}

// Create stores a new document from source. Receiving an identity that
// already exists updates that document instead of duplicating it.
func (r *Receiver) Create(ctx context.Context, source *domain.Connection, p *domain.Payload) (*domain.ReceiveResponse, error) {
	identity, release, err := r.begin(ctx, p)
	if err != nil {
		return nil, err
	}
	defer release()

	existing, err := r.lookup(ctx, identity)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		r.logger.Info("identity already received, updating instead", "origin_url", identity.OriginURL, "origin_id", identity.OriginID)
		return r.update(ctx, source, p, existing)
	}
	return r.create(ctx, source, p, identity)
}

// Update overwrites the document matching the payload's identity, creating
// it when the local copy does not exist
func (r *Receiver) Update(ctx context.Context, source *domain.Connection, p *domain.Payload) (*domain.ReceiveResponse, error) {
	identity, release, err := r.begin(ctx, p)
	if err != nil {
		return nil, err
	}
	defer release()

	existing, err := r.lookup(ctx, identity)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		r.activity.Info(ctx, domain.ActionUpdate, "update target missing, creating",
			activity.WithDestination(source.ID),
			activity.With("origin_url", identity.OriginURL),
			activity.With("origin_id", identity.OriginID))
		return r.create(ctx, source, p, identity)
	}
	return r.update(ctx, source, p, existing)
}

func (r *Receiver) begin(ctx context.Context, p *domain.Payload) (domain.Identity, func(), error) {
	if err := r.validatePayload(p); err != nil {
		return domain.Identity{}, nil, err
	}
	identity, err := p.Identity()
	if err != nil {
		return domain.Identity{}, nil, domain.NewValidationError("origin_id", err.Error())
	}

	release, err := r.locks.Lock(ctx, identity)
	if err != nil {
		return domain.Identity{}, nil, err
	}
	return identity, release, nil
}

func (r *Receiver) lookup(ctx context.Context, identity domain.Identity) (*domain.Document, error) {
	doc, err := r.store.GetDocumentByIdentity(ctx, identity)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up document: %w", err)
	}
	return doc, nil
}

func (r *Receiver) create(ctx context.Context, source *domain.Connection, p *domain.Payload, identity domain.Identity) (*domain.ReceiveResponse, error) {
	doc := &domain.Document{Identity: &identity}
	r.applyCore(ctx, doc, source, p)

	if _, err := r.store.InsertReceivedDocument(ctx, doc); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			// Another process inserted the same identity first
			existing, lerr := r.lookup(ctx, identity)
			if lerr == nil && existing != nil {
				return r.update(ctx, source, p, existing)
			}
		}
		r.activity.Error(ctx, domain.ActionReceive, "failed to store received document",
			activity.WithDestination(source.ID), activity.With("error", err.Error()))
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	warnings := r.applyExtras(ctx, doc, source, p)

	r.activity.Success(ctx, domain.ActionReceive, "received "+doc.Title,
		activity.WithDocument(doc.ID),
		activity.WithDestination(source.ID),
		activity.With("origin_url", identity.OriginURL),
		activity.With("origin_id", identity.OriginID),
		activity.With("warnings", warnings))

	return &domain.ReceiveResponse{
		Success: true,
		PostID:  doc.ID,
		PostURL: r.Permalink(doc),
		Created: true,
	}, nil
}

func (r *Receiver) update(ctx context.Context, source *domain.Connection, p *domain.Payload, doc *domain.Document) (*domain.ReceiveResponse, error) {
	r.applyCore(ctx, doc, source, p)

	if err := r.store.UpdateDocumentContent(ctx, doc); err != nil {
		r.activity.Error(ctx, domain.ActionUpdate, "failed to update received document",
			activity.WithDocument(doc.ID), activity.WithDestination(source.ID), activity.With("error", err.Error()))
		return nil, fmt.Errorf("failed to update document: %w", err)
	}

	warnings := r.applyExtras(ctx, doc, source, p)

	r.activity.Success(ctx, domain.ActionUpdate, "updated "+doc.Title,
		activity.WithDocument(doc.ID),
		activity.WithDestination(source.ID),
		activity.With("warnings", warnings))

	return &domain.ReceiveResponse{
		Success: true,
		PostID:  doc.ID,
		PostURL: r.Permalink(doc),
	}, nil
}

// applyCore copies the always-overwritten fields onto doc
func (r *Receiver) applyCore(ctx context.Context, doc *domain.Document, source *domain.Connection, p *domain.Payload) {
	doc.Title = p.Title
	doc.Body = p.Content
	doc.Excerpt = p.Excerpt
	doc.Slug = p.Slug
	doc.PostType = p.PostType
	if doc.PostType == "" {
		doc.PostType = "post"
	}
	doc.PublishedAt = p.PublishedAt
	doc.ModifiedAt = p.ModifiedAt
	doc.Author = p.Author
	doc.ContentHash = hash.String(p.Title + "\x00" + p.Content)

	// without auto-publish an incoming publish only lands as a draft; a copy
	// the local operator already published stays published
	local := doc.Status
	doc.Status = domain.DocumentStatus(p.Status)
	if doc.Status == domain.StatusPublished && !source.Sync.AutoPublish && local != domain.StatusPublished {
		doc.Status = domain.StatusDraft
	}

	if a := r.resolveAuthor(ctx, p.Author); a != nil {
		doc.AuthorID = &a.ID
	}
}

// resolveAuthor matches by email, then login, then the configured default.
// It never fails the receipt; a nil result leaves the document without author.
func (r *Receiver) resolveAuthor(ctx context.Context, a domain.Author) *domain.LocalAuthor {
	if a.Email != "" {
		if found, err := r.store.FindAuthorByEmail(ctx, a.Email); err == nil {
			return found
		}
	}
	if a.Login != "" {
		if found, err := r.store.FindAuthorByLogin(ctx, a.Login); err == nil {
			return found
		}
	}

	found, err := r.store.EnsureAuthor(ctx, r.cfg.DefaultAuthor, "", r.cfg.DefaultAuthor)
	if err != nil {
		r.logger.Warn("failed to resolve default author", "login", r.cfg.DefaultAuthor, "error", err)
		return nil
	}
	return found
}

// applyExtras runs the optional sub-steps. Each one is independent: a failure
// is recorded as a warning and the rest still run.
func (r *Receiver) applyExtras(ctx context.Context, doc *domain.Document, source *domain.Connection, p *domain.Payload) []string {
	var warnings []string
	warn := func(step string, err error) {
		msg := step + ": " + err.Error()
		warnings = append(warnings, msg)
		r.activity.Warning(ctx, domain.ActionReceive, step+" failed",
			activity.WithDocument(doc.ID),
			activity.WithDestination(source.ID),
			activity.With("error", err.Error()))
	}

	if len(p.Categories) > 0 || len(p.Tags) > 0 {
		if err := r.store.UpdateDocumentTerms(ctx, doc.ID, p.Categories, p.Tags); err != nil {
			warn("terms", err)
		}
	}

	refs := r.materialize(ctx, p, warn)

	if p.FeaturedImage != nil && r.cfg.DownloadImages {
		if ref, ok := refs[p.FeaturedImage.ID]; ok {
			id := ref.DestinationID
			if err := r.store.UpdateDocumentFeatured(ctx, doc.ID, &id); err != nil {
				warn("featured image", err)
			}
		}
	}

	if len(p.Gallery) > 0 && r.cfg.DownloadImages {
		body := r.media.Rewrite(doc.Body, refs)
		gallery := make([]int64, 0, len(p.Gallery))
		for _, g := range p.Gallery {
			if ref, ok := refs[g.ID]; ok {
				gallery = append(gallery, ref.DestinationID)
			}
		}
		if err := r.store.UpdateDocumentGallery(ctx, doc.ID, body, gallery); err != nil {
			warn("gallery", err)
		} else {
			doc.Body = body
		}
	}

	allowSEO := r.cfg.AllowSEOOverride || source.Sync.AllowSEOOverride
	allowTheme := r.cfg.AllowThemeOverride || source.Sync.AllowThemeOverride
	seo, seoKeys := domain.MergeMeta(doc.SEOMeta, p.SEOMeta, allowSEO)
	theme, themeKeys := domain.MergeMeta(doc.ThemeMeta, p.ThemeMeta, allowTheme)
	if len(seoKeys) > 0 || len(themeKeys) > 0 {
		if err := r.store.UpdateDocumentMeta(ctx, doc.ID, seo, theme); err != nil {
			warn("metadata", err)
		} else {
			doc.SEOMeta, doc.ThemeMeta = seo, theme
			r.logger.Debug("metadata merged", "document_id", doc.ID, "seo_keys", seoKeys, "theme_keys", themeKeys)
		}
	}

	return warnings
}

// materialize fetches the featured image and gallery items in one pass
func (r *Receiver) materialize(ctx context.Context, p *domain.Payload, warn func(string, error)) map[int64]domain.MediaReference {
	if !r.cfg.DownloadImages || r.media == nil {
		return nil
	}

	refs := make([]domain.MediaRef, 0, len(p.Gallery)+1)
	if p.FeaturedImage != nil {
		refs = append(refs, *p.FeaturedImage)
	}
	refs = append(refs, p.Gallery...)
	if len(refs) == 0 {
		return nil
	}

	out, failures := r.media.MaterializeRefs(ctx, refs)
	for _, f := range failures {
		warn("media "+strconv.FormatInt(f.ID, 10), f)
	}
	return out
}

// Permalink returns the public URL of a local document
func (r *Receiver) Permalink(doc *domain.Document) string {
	if doc.Slug != "" {
		return domain.JoinURL(r.cfg.SiteURL, doc.Slug)
	}
	return domain.NormalizeBaseURL(r.cfg.SiteURL) + "/?p=" + strconv.FormatInt(doc.ID, 10)
}
