package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FlexID is an identifier that may arrive as a JSON number or a string
type FlexID string

// UnmarshalJSON accepts numbers, strings and null without failing the whole payload
func (f *FlexID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	switch {
	case s == "null":
		*f = ""
	case strings.HasPrefix(s, `"`):
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*f = FlexID(strings.TrimSpace(str))
	default:
		*f = FlexID(s)
	}
	return nil
}

// MarshalJSON writes numeric ids as numbers
func (f FlexID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(f), 10, 64); err == nil {
		return []byte(f), nil
	}
	return json.Marshal(string(f))
}

// Int64 parses the id
func (f FlexID) Int64() (int64, error) {
	id, err := strconv.ParseInt(string(f), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("origin id %q is not numeric: %w", string(f), err)
	}
	return id, nil
}

// NewFlexID formats a numeric id
func NewFlexID(id int64) FlexID {
	return FlexID(strconv.FormatInt(id, 10))
}

// Payload is the JSON body a hub sends to a spoke's /receive and /update endpoints
type Payload struct {
	OriginURL   string     `json:"origin_url" validate:"required,url"`
	OriginID    FlexID     `json:"origin_id" validate:"required,number,ne=0"`
	Title       string     `json:"title" validate:"required"`
	Content     string     `json:"content"`
	Excerpt     string     `json:"excerpt,omitempty"`
	Status      string     `json:"status" validate:"required,oneof=draft scheduled published"`
	Slug        string     `json:"slug,omitempty" validate:"omitempty,max=200"`
	PostType    string     `json:"post_type,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	ModifiedAt  *time.Time `json:"modified_at,omitempty"`
	Author      Author     `json:"author"`
	Categories  []string   `json:"categories,omitempty"`
	Tags        []string   `json:"tags,omitempty"`

	FeaturedImage *MediaRef  `json:"featured_image,omitempty"`
	Gallery       []MediaRef `json:"gallery,omitempty" validate:"dive"`

	SEOMeta   Meta `json:"seo_meta,omitempty"`
	ThemeMeta Meta `json:"theme_meta,omitempty"`
}

// Identity returns the idempotency key carried by the payload
func (p *Payload) Identity() (Identity, error) {
	id, err := p.OriginID.Int64()
	if err != nil {
		return Identity{}, err
	}
	return Identity{OriginURL: NormalizeBaseURL(p.OriginURL), OriginID: id}, nil
}

// ReceiveResponse is the JSON body a spoke answers with
type ReceiveResponse struct {
	Success bool         `json:"success"`
	PostID  int64        `json:"post_id,omitempty"`
	PostURL string       `json:"post_url,omitempty"`
	Created bool         `json:"created,omitempty"`
	Message string       `json:"message,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// StatusResponse is served by GET /status and used for wake probes
type StatusResponse struct {
	Status  string       `json:"status"`
	Version string       `json:"version"`
	Role    string       `json:"role"`
	SiteURL string       `json:"site_url"`
	Stats   ActivityStat `json:"stats"`
}
