package domain

import (
	"strings"
	"time"
)

// Role tells whether a connection is a destination we push to or a source we accept from
type Role string

const (
	RoleOutbound Role = "outbound"
	RoleInbound  Role = "inbound"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleOutbound || r == RoleInbound
}

// ConnectionStatus is the lifecycle status of a connection
type ConnectionStatus string

const (
	ConnectionActive   ConnectionStatus = "active"
	ConnectionInactive ConnectionStatus = "inactive"
	ConnectionError    ConnectionStatus = "error"
)

// Valid reports whether s is a known status
func (s ConnectionStatus) Valid() bool {
	switch s {
	case ConnectionActive, ConnectionInactive, ConnectionError:
		return true
	}
	return false
}

// SyncSettings holds the per-connection propagation toggles
type SyncSettings struct {
	Categories         bool `json:"categories"`
	Tags               bool `json:"tags"`
	FeaturedImage      bool `json:"featured_image"`
	AutoPublish        bool `json:"auto_publish"`
	AllowSEOOverride   bool `json:"allow_seo_override"`
	AllowThemeOverride bool `json:"allow_theme_override"`
}

// DefaultSyncSettings returns the toggles a newly registered connection starts with
func DefaultSyncSettings() SyncSettings {
	return SyncSettings{
		Categories:    true,
		Tags:          true,
		FeaturedImage: true,
		AutoPublish:   true,
	}
}

// AISettings configures AI rewriting for one destination
type AISettings struct {
	Enabled      bool   `json:"enabled"`
	Tone         string `json:"tone,omitempty"`
	Audience     string `json:"audience,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// Connection is a registered destination (outbound) or source (inbound) site
type Connection struct {
	ID            string
	Name          string
	BaseURL       string
	Secret        string
	Role          Role
	Status        ConnectionStatus
	LastContactAt *time.Time
	Sync          SyncSettings
	AI            AISettings
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsActive reports whether the connection may be used for traffic
func (c *Connection) IsActive() bool {
	return c != nil && c.Status == ConnectionActive
}

// Endpoint joins the connection base URL with an API path
func (c *Connection) Endpoint(path string) string {
	return JoinURL(c.BaseURL, path)
}

// NormalizeBaseURL trims whitespace and trailing slashes so base URLs compare equal
func NormalizeBaseURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

// JoinURL joins a base URL and a path with exactly one slash between them
func JoinURL(base, path string) string {
	base = NormalizeBaseURL(base)
	if path == "" {
		return base
	}
	return base + "/" + strings.TrimLeft(path, "/")
}

// DisplayName renders a connection name for reports, tolerating deleted connections
func DisplayName(c *Connection, id string) string {
	if c == nil {
		return "deleted (" + id + ")"
	}
	if c.Name != "" {
		return c.Name
	}
	return c.BaseURL
}
