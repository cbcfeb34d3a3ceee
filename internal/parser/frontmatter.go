package parser

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vonshlovens/spokesync/internal/domain"
)

var (
	// frontmatterRegex matches YAML frontmatter between --- delimiters
	frontmatterRegex = regexp.MustCompile(`(?s)^---\r?\n(.*?)\r?\n?---\r?\n?`)

	// Common date formats used in vault notes
	dateFormats = []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04",
		"2006-01-02",
		"January 2, 2006",
		"Jan 2, 2006",
		"02-01-2006",
		"02/01/2006",
	}
)

// Frontmatter holds the publishing fields of a note
type Frontmatter struct {
	Title    *string
	Status   string
	Publish  *bool
	Slug     string
	Excerpt  string
	PostType string
	Date     *time.Time
	Modified *time.Time
	Author   domain.Author

	Categories []string
	Tags       []string

	// Vault attachment names, resolved to media ids when the note is synced
	FeaturedImage string
	Gallery       []string

	// Destinations lists connection names, ids or URLs to syndicate to
	Destinations []string
	AISkip       []string

	SEO   domain.Meta
	Theme domain.Meta

	Extra map[string]any
}

// ParseFrontmatter extracts and parses YAML frontmatter from content.
// Malformed YAML is treated as no frontmatter.
func ParseFrontmatter(content string) (*Frontmatter, string, error) {
	fm := &Frontmatter{Extra: make(map[string]any)}

	match := frontmatterRegex.FindStringSubmatch(content)
	if match == nil {
		return fm, content, nil
	}
	body := content[len(match[0]):]

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(match[1]), &doc); err != nil {
		return fm, content, nil
	}
	if len(doc.Content) == 0 {
		return fm, body, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fm, content, nil
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		key := strings.ToLower(strings.TrimSpace(root.Content[i].Value))
		if err := fm.set(key, root.Content[i+1]); err != nil {
			return nil, "", fmt.Errorf("frontmatter field %s: %w", key, err)
		}
	}
	return fm, body, nil
}

func (fm *Frontmatter) set(key string, v *yaml.Node) error {
	switch key {
	case "title":
		s := scalar(v)
		fm.Title = &s
	case "status":
		fm.Status = scalar(v)
	case "publish", "published":
		var b bool
		if err := v.Decode(&b); err == nil {
			fm.Publish = &b
		}
	case "slug", "permalink":
		fm.Slug = strings.Trim(scalar(v), "/")
	case "excerpt", "description", "summary":
		fm.Excerpt = scalar(v)
	case "type", "post_type":
		fm.PostType = scalar(v)
	case "date", "created", "publish_date":
		fm.Date = parseTime(v)
	case "modified", "updated":
		fm.Modified = parseTime(v)
	case "author":
		fm.Author = parseAuthor(v)
	case "categories", "category":
		fm.Categories = stringList(v)
	case "tags", "tag":
		fm.Tags = stringList(v)
	case "featured_image", "cover", "image":
		fm.FeaturedImage = embedName(scalar(v))
	case "gallery":
		for _, s := range stringList(v) {
			fm.Gallery = append(fm.Gallery, embedName(s))
		}
	case "syndicate", "destinations":
		fm.Destinations = stringList(v)
	case "ai_skip", "no_ai":
		fm.AISkip = stringList(v)
	case "seo":
		m, err := orderedMeta(v)
		if err != nil {
			return err
		}
		fm.SEO = m
	case "theme":
		m, err := orderedMeta(v)
		if err != nil {
			return err
		}
		fm.Theme = m
	default:
		var val any
		if err := v.Decode(&val); err == nil {
			fm.Extra[key] = val
		}
	}
	return nil
}

func scalar(v *yaml.Node) string {
	if v.Kind != yaml.ScalarNode || v.Tag == "!!null" {
		return ""
	}
	return strings.TrimSpace(v.Value)
}

// stringList accepts a scalar, a comma separated scalar or a sequence
func stringList(v *yaml.Node) []string {
	var out []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}

	switch v.Kind {
	case yaml.ScalarNode:
		for _, part := range strings.Split(scalar(v), ",") {
			add(part)
		}
	case yaml.SequenceNode:
		for _, item := range v.Content {
			add(scalar(item))
		}
	case yaml.MappingNode:
		// {spoke-a: true, spoke-b: false} selects the true keys
		for i := 0; i+1 < len(v.Content); i += 2 {
			var on bool
			if err := v.Content[i+1].Decode(&on); err == nil && on {
				add(v.Content[i].Value)
			}
		}
	}
	return out
}

func parseAuthor(v *yaml.Node) domain.Author {
	if v.Kind == yaml.ScalarNode {
		s := scalar(v)
		// "Ann Example <ann@example.com>"
		if open := strings.LastIndex(s, "<"); open >= 0 && strings.HasSuffix(s, ">") {
			return domain.Author{
				Name:  strings.TrimSpace(s[:open]),
				Email: strings.TrimSpace(s[open+1 : len(s)-1]),
			}
		}
		return domain.Author{Name: s}
	}

	var a struct {
		Name     string `yaml:"name"`
		Email    string `yaml:"email"`
		Login    string `yaml:"login"`
		Username string `yaml:"username"`
	}
	if err := v.Decode(&a); err != nil {
		return domain.Author{}
	}
	if a.Login == "" {
		a.Login = a.Username
	}
	return domain.Author{Name: a.Name, Email: a.Email, Login: a.Login}
}

func parseTime(v *yaml.Node) *time.Time {
	str := scalar(v)
	if str == "" {
		return nil
	}
	for _, format := range dateFormats {
		if t, err := time.Parse(format, str); err == nil {
			return &t
		}
	}
	// unparseable dates are left empty rather than failing the note
	return nil
}

// orderedMeta converts a YAML mapping into a metadata bag, keeping key order
func orderedMeta(v *yaml.Node) (domain.Meta, error) {
	if v.Kind != yaml.MappingNode {
		return nil, nil
	}
	var m domain.Meta
	for i := 0; i+1 < len(v.Content); i += 2 {
		var val any
		if err := v.Content[i+1].Decode(&val); err != nil {
			return nil, err
		}
		raw, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		m.Set(v.Content[i].Value, raw)
	}
	return m, nil
}

// embedName strips wiki embed syntax: "![[cat.png]]" and "[[cat.png|200]]" become "cat.png"
func embedName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "!")
	if strings.HasPrefix(s, "[[") && strings.HasSuffix(s, "]]") {
		s = s[2 : len(s)-2]
	}
	if i := strings.IndexAny(s, "|#"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// HasFrontmatter checks if content has YAML frontmatter
func HasFrontmatter(content string) bool {
	return frontmatterRegex.MatchString(content)
}
