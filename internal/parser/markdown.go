package parser

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/vonshlovens/spokesync/internal/domain"
)

var (
	// inlineTagRegex matches #tag-name (but not #123 or inside code blocks)
	inlineTagRegex = regexp.MustCompile(`(?:^|[^&\w])#([a-zA-Z][a-zA-Z0-9_/-]*)`)

	// codeBlockRegex matches fenced code blocks
	codeBlockRegex = regexp.MustCompile("(?s)```.*?```")

	// inlineCodeRegex matches inline code
	inlineCodeRegex = regexp.MustCompile("`[^`]+`")
)

// Note is a parsed vault note
type Note struct {
	Frontmatter *Frontmatter
	Body        string
	RawContent  string
	// Embeds lists attachment names referenced with ![[...]] in the body
	Embeds     []string
	InlineTags []string
}

// Parser handles parsing of markdown notes
type Parser struct{}

// NewParser creates a new Parser instance
func NewParser() *Parser {
	return &Parser{}
}

// ParseFile reads and parses a markdown file
func (p *Parser) ParseFile(path string) (*Note, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return p.ParseContent(string(content), path)
}

// ParseContent parses markdown content
func (p *Parser) ParseContent(content string, path string) (*Note, error) {
	fm, body, err := ParseFrontmatter(content)
	if err != nil {
		return nil, err
	}

	note := &Note{
		Frontmatter: fm,
		Body:        body,
		RawContent:  content,
		Embeds:      ExtractEmbeds(body),
		InlineTags:  extractInlineTags(body),
	}

	// If title not in frontmatter, use the filename
	if fm.Title == nil || *fm.Title == "" {
		filename := filepath.Base(path)
		title := strings.TrimSuffix(filename, filepath.Ext(filename))
		fm.Title = &title
	}

	return note, nil
}

// Document maps the note onto a document stored at the vault-relative path.
// Featured image and gallery are left for the caller to resolve.
func (n *Note) Document(path string) *domain.Document {
	fm := n.Frontmatter
	doc := &domain.Document{
		Path:         filepath.ToSlash(path),
		Title:        *fm.Title,
		Body:         n.Body,
		Excerpt:      fm.Excerpt,
		Status:       status(fm),
		Slug:         fm.Slug,
		PostType:     fm.PostType,
		PublishedAt:  fm.Date,
		ModifiedAt:   fm.Modified,
		Author:       fm.Author,
		Categories:   fm.Categories,
		Tags:         MergeTags(fm.Tags, n.InlineTags),
		SEOMeta:      fm.SEO,
		ThemeMeta:    fm.Theme,
		Destinations: fm.Destinations,
	}
	if doc.Slug == "" {
		doc.Slug = Slugify(doc.Title)
	}
	if doc.PostType == "" {
		doc.PostType = "post"
	}
	if len(fm.AISkip) > 0 {
		doc.AISkip = make(map[string]bool, len(fm.AISkip))
		for _, ref := range fm.AISkip {
			doc.AISkip[ref] = true
		}
	}
	return doc
}

// status prefers an explicit status field, then the publish flag
func status(fm *Frontmatter) domain.DocumentStatus {
	if fm.Status != "" {
		return domain.ParseDocumentStatus(fm.Status)
	}
	if fm.Publish != nil && *fm.Publish {
		return domain.StatusPublished
	}
	return domain.StatusDraft
}

// Slugify lowercases s and joins its words with hyphens
func Slugify(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		default:
			pendingDash = true
		}
	}
	return b.String()
}

// stripCode removes fenced and inline code so their contents are not parsed
func stripCode(content string) string {
	content = codeBlockRegex.ReplaceAllString(content, "")
	return inlineCodeRegex.ReplaceAllString(content, "")
}

// extractInlineTags finds all #tags in the content, excluding code blocks
func extractInlineTags(content string) []string {
	matches := inlineTagRegex.FindAllStringSubmatch(stripCode(content), -1)
	seen := make(map[string]bool)
	var tags []string

	for _, match := range matches {
		if len(match) > 1 {
			tag := strings.ToLower(strings.TrimSpace(match[1]))
			if tag != "" && !seen[tag] {
				seen[tag] = true
				tags = append(tags, tag)
			}
		}
	}

	return tags
}

// MergeTags combines frontmatter tags and inline tags, removing duplicates
func MergeTags(frontmatterTags, inlineTags []string) []string {
	seen := make(map[string]bool)
	var merged []string

	for _, list := range [][]string{frontmatterTags, inlineTags} {
		for _, tag := range list {
			tag = strings.ToLower(strings.TrimSpace(tag))
			if tag != "" && !seen[tag] {
				seen[tag] = true
				merged = append(merged, tag)
			}
		}
	}

	return merged
}

// IsValidUTF8 checks if content is valid UTF-8
func IsValidUTF8(content string) bool {
	return utf8.ValidString(content)
}
