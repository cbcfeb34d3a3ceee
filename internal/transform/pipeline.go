package transform

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/vonshlovens/spokesync/internal/activity"
	"github.com/vonshlovens/spokesync/internal/ai"
	"github.com/vonshlovens/spokesync/internal/domain"
)

// Rewriter rewrites one piece of text for a destination
type Rewriter interface {
	Rewrite(ctx context.Context, text string, settings domain.AISettings) (string, error)
}

// Pipeline turns a canonical document into a destination-specific payload
type Pipeline struct {
	originURL string
	rewriter  Rewriter
	maxWords  int
	activity  *activity.Log
	logger    *slog.Logger
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithRewriter enables the AI stage. maxWords <= 0 disables the length guard.
func WithRewriter(r Rewriter, maxWords int) Option {
	return func(p *Pipeline) {
		p.rewriter = r
		p.maxWords = maxWords
	}
}

// WithActivity records degraded rewrites in the activity log
func WithActivity(l *activity.Log) Option {
	return func(p *Pipeline) { p.activity = l }
}

// New creates a pipeline for documents originating at originURL
func New(originURL string, logger *slog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		originURL: domain.NormalizeBaseURL(originURL),
		logger:    logger.With("component", "transform"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Transform builds the payload for one destination. Stages run in a fixed
// order: field selection, metadata passthrough, AI rewriting, smart links.
// No stage failure escapes; a failed rewrite leaves the field unchanged.
func (p *Pipeline) Transform(ctx context.Context, doc *domain.Document, conn *domain.Connection) *domain.Payload {
	payload := p.selectFields(doc, conn)

	payload.SEOMeta = doc.SEOMeta.Clone()
	payload.ThemeMeta = doc.ThemeMeta.Clone()

	if p.rewriter != nil && conn.AI.Enabled && !doc.SkipsAI(conn) {
		p.rewriteFields(ctx, doc, conn, payload)
	}

	payload.Title = ResolveSmartLinks(payload.Title, conn)
	payload.Content = ResolveSmartLinks(payload.Content, conn)
	payload.Excerpt = ResolveSmartLinks(payload.Excerpt, conn)

	return payload
}

func (p *Pipeline) selectFields(doc *domain.Document, conn *domain.Connection) *domain.Payload {
	payload := &domain.Payload{
		OriginURL:   p.originURL,
		OriginID:    domain.NewFlexID(doc.ID),
		Title:       doc.Title,
		Content:     doc.Body,
		Excerpt:     doc.Excerpt,
		Status:      string(doc.Status),
		Slug:        doc.Slug,
		PostType:    doc.PostType,
		PublishedAt: doc.PublishedAt,
		ModifiedAt:  doc.ModifiedAt,
		Author:      doc.Author,
		Gallery:     slices.Clone(doc.Gallery),
	}
	if payload.Status == "" {
		payload.Status = string(domain.StatusDraft)
	}

	if conn.Sync.Categories {
		payload.Categories = slices.Clone(doc.Categories)
	}
	if conn.Sync.Tags {
		payload.Tags = slices.Clone(doc.Tags)
	}
	if conn.Sync.FeaturedImage && doc.FeaturedMedia != nil {
		fm := *doc.FeaturedMedia
		payload.FeaturedImage = &fm
	}
	return payload
}

func (p *Pipeline) rewriteFields(ctx context.Context, doc *domain.Document, conn *domain.Connection, payload *domain.Payload) {
	fields := []struct {
		name string
		ptr  *string
	}{
		{"title", &payload.Title},
		{"content", &payload.Content},
		{"excerpt", &payload.Excerpt},
	}

	for _, f := range fields {
		if *f.ptr == "" {
			continue
		}
		if p.maxWords > 0 {
			if n := ai.WordCount(*f.ptr); n > p.maxWords {
				p.logger.Debug("skipping rewrite above word limit",
					"field", f.name, "words", n, "max_words", p.maxWords, "destination_id", conn.ID)
				continue
			}
		}

		out, err := p.rewriter.Rewrite(ctx, *f.ptr, conn.AI)
		if err != nil {
			p.warn(ctx, doc, conn, f.name, err)
			continue
		}
		*f.ptr = out
	}
}

func (p *Pipeline) warn(ctx context.Context, doc *domain.Document, conn *domain.Connection, field string, err error) {
	provider := "unknown"
	var pe *domain.ProviderError
	if errors.As(err, &pe) {
		provider = pe.Provider
	}

	if p.activity == nil {
		p.logger.Warn("AI rewrite failed, sending original text",
			"field", field, "provider", provider, "destination_id", conn.ID, "error", err)
		return
	}
	p.activity.Warning(ctx, domain.ActionTransform, "AI rewrite failed for "+field+", sending original text",
		activity.WithDocument(doc.ID),
		activity.WithDestination(conn.ID),
		activity.With("provider", provider),
		activity.With("error", err.Error()))
}
