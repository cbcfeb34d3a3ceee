package watcher

import "testing"

func TestFilter(t *testing.T) {
	f := Filter{
		Ignore:  []string{".obsidian", ".trash/**", "**/*.tmp"},
		Include: []string{"posts/**", "attachments/**"},
	}

	tests := []struct {
		path    string
		skip    bool
		skipDir bool
	}{
		{"posts/hello.md", false, false},
		{"attachments/cat.png", false, false},
		{"notes/private.md", true, false},
		{".obsidian/workspace.json", true, true},
		{".obsidian", true, true},
		{".trash/old.md", true, true},
		{"posts/draft.tmp", true, true},
	}

	for _, tt := range tests {
		if got := f.Skip(tt.path); got != tt.skip {
			t.Errorf("Skip(%q) = %v, want %v", tt.path, got, tt.skip)
		}
		if got := f.SkipDir(tt.path); got != tt.skipDir {
			t.Errorf("SkipDir(%q) = %v, want %v", tt.path, got, tt.skipDir)
		}
	}

	if f.SkipDir(".") {
		t.Error("the vault root is never skipped")
	}
}

func TestFilter_NoIncludeMeansEverything(t *testing.T) {
	var f Filter
	if f.Skip("anything/at/all.md") {
		t.Error("empty filter should skip nothing")
	}
}

func TestIsDocument(t *testing.T) {
	for path, want := range map[string]bool{
		"post.md":        true,
		"Post.MD":        true,
		"cat.png":        false,
		"notes/md":       false,
		"archive.md.bak": false,
	} {
		if got := IsDocument(path); got != want {
			t.Errorf("IsDocument(%q) = %v, want %v", path, got, want)
		}
	}
}
