package domain

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short", "  boom  ", 10, "boom"},
		{"ascii cut", strings.Repeat("x", 12), 10, strings.Repeat("x", 10) + "..."},
		{"rune at the limit", strings.Repeat("x", 9) + "é…", 10, strings.Repeat("x", 9) + "..."},
		{"nul bytes", "a\x00b", 0, "ab"},
		{"invalid utf8", "caf\xe9 au lait", 0, "caf au lait"},
		{"no limit", strings.Repeat("é", 50), 0, strings.Repeat("é", 50)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CleanText(tt.in, tt.max)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}
