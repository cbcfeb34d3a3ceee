package parser

import (
	"reflect"
	"strconv"
	"testing"
)

func TestExtractEmbeds(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected []string
	}{
		{"single image", "Look: ![[cat.png]]", []string{"cat.png"}},
		{"sized and anchored", "![[cat.png|300]] ![[doc.pdf#page=2]]", []string{"cat.png", "doc.pdf"}},
		{"duplicates", "![[a.jpg]] ![[a.jpg|100]]", []string{"a.jpg"}},
		{"note transclusion ignored", "![[Other Note]] ![[other.md]]", nil},
		{"plain wikilink ignored", "[[cat.png]]", nil},
		{"code ignored", "`![[cat.png]]`\n```\n![[dog.png]]\n```", nil},
		{"nested path", "![[assets/img/dog.webp]]", []string{"assets/img/dog.webp"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractEmbeds(tt.content); !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("ExtractEmbeds() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRewriteEmbeds(t *testing.T) {
	ids := map[string]int64{"cat.png": 7, "report.pdf": 8, "a&b.jpg": 9}
	resolve := func(name string) (int64, bool) {
		id, ok := ids[name]
		return id, ok
	}
	mediaURL := func(id int64) string {
		return "https://hub.example/media/" + strconv.FormatInt(id, 10)
	}

	tests := []struct {
		name     string
		body     string
		expected string
	}{
		{
			name:     "image",
			body:     "Hi ![[cat.png]]!",
			expected: `Hi <img class="wp-image-7" src="https://hub.example/media/7" alt="cat">!`,
		},
		{
			name:     "image with width",
			body:     "![[cat.png|300x200]]",
			expected: `<img class="wp-image-7" src="https://hub.example/media/7" alt="cat" width="300">`,
		},
		{
			name:     "attachment link",
			body:     "![[report.pdf|Annual report]]",
			expected: `<a href="https://hub.example/media/8">Annual report</a>`,
		},
		{
			name:     "attachment link without label",
			body:     "![[report.pdf]]",
			expected: `<a href="https://hub.example/media/8">report.pdf</a>`,
		},
		{
			name:     "escapes alt text",
			body:     "![[a&b.jpg]]",
			expected: `<img class="wp-image-9" src="https://hub.example/media/9" alt="a&amp;b">`,
		},
		{
			name:     "unresolved stays literal",
			body:     "![[missing.png]]",
			expected: "![[missing.png]]",
		},
		{
			name:     "note transclusion stays literal",
			body:     "![[Other Note]]",
			expected: "![[Other Note]]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RewriteEmbeds(tt.body, resolve, mediaURL); got != tt.expected {
				t.Errorf("RewriteEmbeds() =\n%s\nwant\n%s", got, tt.expected)
			}
		})
	}
}

func TestIsImage(t *testing.T) {
	tests := map[string]bool{
		"a.PNG":      true,
		"b.jpeg":     true,
		"dir/c.webp": true,
		"d.pdf":      false,
		"e":          false,
	}
	for name, want := range tests {
		if got := IsImage(name); got != want {
			t.Errorf("IsImage(%q) = %v, want %v", name, got, want)
		}
	}
}
