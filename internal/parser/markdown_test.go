package parser

import (
	"reflect"
	"testing"

	"github.com/vonshlovens/spokesync/internal/domain"
)

func TestExtractInlineTags(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected []string
	}{
		{
			name:     "simple tag",
			content:  "Some text #mytag here",
			expected: []string{"mytag"},
		},
		{
			name:     "tag at start",
			content:  "#starttag more text",
			expected: []string{"starttag"},
		},
		{
			name:     "multiple tags",
			content:  "#tag1 and #tag2 and #tag3",
			expected: []string{"tag1", "tag2", "tag3"},
		},
		{
			name:     "tag with hyphen",
			content:  "#my-tag-here",
			expected: []string{"my-tag-here"},
		},
		{
			name:     "tag with slash",
			content:  "#parent/child",
			expected: []string{"parent/child"},
		},
		{
			name:     "ignore numbers",
			content:  "Issue #123 is fixed",
			expected: nil,
		},
		{
			name:     "ignore in inline code",
			content:  "Use `#hashtag` in code",
			expected: nil,
		},
		{
			name:     "ignore in code block",
			content:  "```\n#code-tag\n```",
			expected: nil,
		},
		{
			name:     "html entity should not match",
			content:  "&#123; encoded",
			expected: nil,
		},
		{
			name:     "duplicate tags",
			content:  "#tag and #tag again",
			expected: []string{"tag"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := extractInlineTags(tt.content)
			if len(result) != len(tt.expected) {
				t.Errorf("expected %d tags, got %d: %v", len(tt.expected), len(result), result)
				return
			}
			for i, tag := range result {
				if tag != tt.expected[i] {
					t.Errorf("expected tag %q, got %q", tt.expected[i], tag)
				}
			}
		})
	}
}

func TestMergeTags(t *testing.T) {
	tests := []struct {
		name     string
		fm       []string
		inline   []string
		expected int
	}{
		{
			name:     "no duplicates",
			fm:       []string{"tag1", "tag2"},
			inline:   []string{"tag3", "tag4"},
			expected: 4,
		},
		{
			name:     "with duplicates",
			fm:       []string{"tag1", "tag2"},
			inline:   []string{"tag2", "tag3"},
			expected: 3,
		},
		{
			name:     "case insensitive",
			fm:       []string{"Tag1"},
			inline:   []string{"tag1"},
			expected: 1,
		},
		{
			name:     "empty frontmatter",
			fm:       nil,
			inline:   []string{"tag1"},
			expected: 1,
		},
		{
			name:     "empty inline",
			fm:       []string{"tag1"},
			inline:   nil,
			expected: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := MergeTags(tt.fm, tt.inline)
			if len(result) != tt.expected {
				t.Errorf("expected %d tags, got %d: %v", tt.expected, len(result), result)
			}
		})
	}
}

func TestParserParseContent(t *testing.T) {
	p := NewParser()

	content := `---
title: My Note
tags:
  - frontmatter-tag
---
This is my note with ![[cover.png]] and ![[Other Note]].

It also has #inline-tag and #another-tag.
`

	note, err := p.ParseContent(content, "test.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if note.Frontmatter.Title == nil || *note.Frontmatter.Title != "My Note" {
		t.Errorf("expected title 'My Note', got %v", note.Frontmatter.Title)
	}

	if len(note.Embeds) != 1 || note.Embeds[0] != "cover.png" {
		t.Errorf("expected [cover.png] embeds, got %v", note.Embeds)
	}

	if len(note.InlineTags) != 2 {
		t.Errorf("expected 2 inline tags, got %d", len(note.InlineTags))
	}

	if note.RawContent != content {
		t.Error("raw content doesn't match input")
	}
}

func TestParserParseContent_TitleFromFilename(t *testing.T) {
	note, err := NewParser().ParseContent("No frontmatter here", "posts/Hello World.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *note.Frontmatter.Title != "Hello World" {
		t.Errorf("expected title from filename, got %q", *note.Frontmatter.Title)
	}
}

func TestNoteDocument(t *testing.T) {
	content := `---
title: Launch Day!
publish: true
categories: [News]
tags: [release]
syndicate: [spoke-a]
ai_skip: [spoke-b]
---
We shipped #release #launch
`

	note, err := NewParser().ParseContent(content, "posts/launch.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	doc := note.Document("posts/launch.md")

	if doc.Path != "posts/launch.md" || doc.Title != "Launch Day!" {
		t.Errorf("unexpected path/title: %q %q", doc.Path, doc.Title)
	}
	if doc.Status != domain.StatusPublished {
		t.Errorf("expected published, got %s", doc.Status)
	}
	if doc.Slug != "launch-day" {
		t.Errorf("expected slug from title, got %q", doc.Slug)
	}
	if doc.PostType != "post" {
		t.Errorf("expected default post type, got %q", doc.PostType)
	}
	if !reflect.DeepEqual(doc.Tags, []string{"release", "launch"}) {
		t.Errorf("unexpected tags %v", doc.Tags)
	}
	if !reflect.DeepEqual(doc.Destinations, []string{"spoke-a"}) {
		t.Errorf("unexpected destinations %v", doc.Destinations)
	}
	if !doc.AISkip["spoke-b"] {
		t.Errorf("expected spoke-b to skip AI, got %v", doc.AISkip)
	}
}

func TestDocumentStatus(t *testing.T) {
	yes, no := true, false
	tests := []struct {
		name   string
		fm     Frontmatter
		expect domain.DocumentStatus
	}{
		{"nothing set", Frontmatter{}, domain.StatusDraft},
		{"publish flag", Frontmatter{Publish: &yes}, domain.StatusPublished},
		{"publish false", Frontmatter{Publish: &no}, domain.StatusDraft},
		{"status wins over flag", Frontmatter{Status: "draft", Publish: &yes}, domain.StatusDraft},
		{"scheduled", Frontmatter{Status: "future"}, domain.StatusScheduled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := status(&tt.fm); got != tt.expect {
				t.Errorf("status() = %s, want %s", got, tt.expect)
			}
		})
	}
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Hello World":            "hello-world",
		"  Go 1.25: what's new?": "go-1-25-what-s-new",
		"Café au lait":           "café-au-lait",
		"---":                    "",
	}
	for in, want := range tests {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsValidUTF8(t *testing.T) {
	tests := []struct {
		content  string
		expected bool
	}{
		{"Hello World", true},
		{"日本語", true},
		{"", true},
		{string([]byte{0xff, 0xfe}), false},
	}

	for _, tt := range tests {
		result := IsValidUTF8(tt.content)
		if result != tt.expected {
			t.Errorf("IsValidUTF8(%q) = %v, want %v", tt.content, result, tt.expected)
		}
	}
}
