package watcher

import (
	"testing"
	"time"
)

func next(t *testing.T, d *Debouncer, within time.Duration) FileEvent {
	t.Helper()
	select {
	case event := <-d.Events():
		return event
	case <-time.After(within):
		t.Fatal("timed out waiting for event")
		return FileEvent{}
	}
}

func TestDebouncer_SingleEvent(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	d.Add("post.md", EventCreate)

	event := next(t, d, time.Second)
	if event.Path != "post.md" {
		t.Errorf("expected path 'post.md', got %q", event.Path)
	}
	if event.EventType != EventCreate {
		t.Errorf("expected EventCreate, got %v", event.EventType)
	}
	if !event.IsDocument() {
		t.Error("expected a markdown path to be a document")
	}
}

func TestDebouncer_CoalesceWrites(t *testing.T) {
	d := NewDebouncer(100 * time.Millisecond)
	defer d.Stop()

	d.Add("post.md", EventModify)
	d.Add("post.md", EventModify)
	d.Add("post.md", EventModify)

	count := 0
	timeout := time.After(400 * time.Millisecond)
loop:
	for {
		select {
		case <-d.Events():
			count++
		case <-timeout:
			break loop
		}
	}

	if count != 1 {
		t.Errorf("expected 1 coalesced event, got %d", count)
	}
}

func TestDebouncer_Coalesce(t *testing.T) {
	tests := []struct {
		name     string
		sequence []EventType
		expected EventType
	}{
		{"delete wins", []EventType{EventCreate, EventDelete}, EventDelete},
		{"create then modify", []EventType{EventCreate, EventModify}, EventCreate},
		{"replace on save", []EventType{EventDelete, EventCreate}, EventModify},
		{"modify then delete", []EventType{EventModify, EventModify, EventDelete}, EventDelete},
		{"delete then modify", []EventType{EventDelete, EventModify}, EventModify},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDebouncer(50 * time.Millisecond)
			defer d.Stop()

			for _, e := range tt.sequence {
				d.Add("post.md", e)
			}
			if got := next(t, d, time.Second).EventType; got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestDebouncer_MultipleFiles(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	d.Add("one.md", EventCreate)
	d.Add("images/cat.png", EventModify)

	received := make(map[string]bool)
	for range 2 {
		received[next(t, d, time.Second).Path] = true
	}
	if !received["one.md"] || !received["images/cat.png"] {
		t.Errorf("expected both files, got %v", received)
	}
}

func TestDebouncer_Flush(t *testing.T) {
	d := NewDebouncer(5 * time.Second)
	defer d.Stop()

	d.Add("post.md", EventCreate)
	if d.PendingCount() != 1 {
		t.Errorf("expected 1 pending, got %d", d.PendingCount())
	}

	d.Flush()

	if event := next(t, d, 100*time.Millisecond); event.Path != "post.md" {
		t.Errorf("expected path 'post.md', got %q", event.Path)
	}
	if d.PendingCount() != 0 {
		t.Errorf("expected 0 pending after flush, got %d", d.PendingCount())
	}
}

func TestDebouncer_StopClosesChannel(t *testing.T) {
	d := NewDebouncer(time.Hour)
	d.Add("post.md", EventCreate)

	d.Stop()
	d.Stop()
	d.Add("late.md", EventCreate)

	if _, ok := <-d.Events(); ok {
		t.Error("expected closed channel without pending events")
	}
}

func TestEventType_String(t *testing.T) {
	tests := []struct {
		event    EventType
		expected string
	}{
		{EventCreate, "CREATE"},
		{EventModify, "MODIFY"},
		{EventDelete, "DELETE"},
		{EventType(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if tt.event.String() != tt.expected {
			t.Errorf("EventType(%d).String() = %q, want %q", tt.event, tt.event.String(), tt.expected)
		}
	}
}
