package domain

import (
	"strings"
	"time"
)

// DocumentStatus is the publishing state of a document
type DocumentStatus string

const (
	StatusDraft     DocumentStatus = "draft"
	StatusScheduled DocumentStatus = "scheduled"
	StatusPublished DocumentStatus = "published"
)

// ParseDocumentStatus maps loose authoring values onto a status, defaulting to draft
func ParseDocumentStatus(s string) DocumentStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "published", "publish":
		return StatusPublished
	case "scheduled", "future":
		return StatusScheduled
	default:
		return StatusDraft
	}
}

// Author identifies the writer of a document on the originating site
type Author struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
	Login string `json:"login,omitempty"`
}

// MediaRef points at a media item by id together with its public URL
type MediaRef struct {
	ID       int64  `json:"id" validate:"gt=0"`
	URL      string `json:"url" validate:"required,url"`
	Filename string `json:"filename,omitempty"`
}

// Identity is the (origin-url, origin-id) pair a received document is keyed on
type Identity struct {
	OriginURL string
	OriginID  int64
}

// Document is the canonical content unit that gets syndicated
type Document struct {
	ID            int64
	Path          string
	Title         string
	Body          string
	Excerpt       string
	Status        DocumentStatus
	Slug          string
	PostType      string
	PublishedAt   *time.Time
	ModifiedAt    *time.Time
	Author        Author
	Categories    []string
	Tags          []string
	FeaturedMedia *MediaRef
	Gallery       []MediaRef
	SEOMeta       Meta
	ThemeMeta     Meta

	// Destinations selected by the author for this document
	Destinations []string
	// AISkip forces AI rewriting off for a destination id or name
	AISkip map[string]bool

	// Identity is only set on copies received from another site
	Identity *Identity

	ContentHash string
	AuthorID    *int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SkipsAI reports whether AI rewriting is forced off for the given connection
func (d *Document) SkipsAI(c *Connection) bool {
	if d.AISkip == nil || c == nil {
		return false
	}
	return d.AISkip[c.ID] || (c.Name != "" && d.AISkip[c.Name])
}

// LocalAuthor is an author account on the receiving site
type LocalAuthor struct {
	ID          int64
	Login       string
	Email       string
	DisplayName string
}
