package watcher

import (
	"sync"
	"time"
)

// EventType is what happened to a vault file
type EventType int

const (
	EventCreate EventType = iota
	EventModify
	EventDelete
)

func (e EventType) String() string {
	switch e {
	case EventCreate:
		return "CREATE"
	case EventModify:
		return "MODIFY"
	case EventDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is a debounced change to one vault path
type FileEvent struct {
	Path      string
	EventType EventType
	Timestamp time.Time
}

// IsDocument reports whether the event concerns a markdown document
func (e FileEvent) IsDocument() bool {
	return IsDocument(e.Path)
}

// Debouncer coalesces bursts of events per path into one event emitted once
// the path has been quiet for the delay
type Debouncer struct {
	delay  time.Duration
	mu     sync.Mutex
	events map[string]*pendingEvent

	output  chan FileEvent
	stopCh  chan struct{}
	sendMu  sync.RWMutex
	stopped bool
}

type pendingEvent struct {
	event FileEvent
	timer *time.Timer
}

// NewDebouncer creates a debouncer
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:  delay,
		events: make(map[string]*pendingEvent),
		output: make(chan FileEvent, 100),
		stopCh: make(chan struct{}),
	}
}

// Events returns the channel of debounced events. It is closed by Stop.
func (d *Debouncer) Events() <-chan FileEvent {
	return d.output
}

// Add records an event for path and restarts its quiet timer
func (d *Debouncer) Add(path string, eventType EventType) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	now := time.Now()
	pending, exists := d.events[path]
	if !exists {
		d.events[path] = &pendingEvent{
			event: FileEvent{Path: path, EventType: eventType, Timestamp: now},
			timer: time.AfterFunc(d.delay, func() { d.emit(path) }),
		}
		return
	}

	pending.timer.Stop()
	pending.event.EventType = coalesce(pending.event.EventType, eventType)
	pending.event.Timestamp = now
	pending.timer = time.AfterFunc(d.delay, func() { d.emit(path) })
}

// coalesce merges a new event into a pending one:
//
//	CREATE + MODIFY = CREATE
//	DELETE + CREATE = MODIFY   (editors that save by replacing the file)
//	any    + DELETE = DELETE
func coalesce(prev, next EventType) EventType {
	switch {
	case next == EventDelete:
		return EventDelete
	case prev == EventDelete:
		return EventModify
	case prev == EventCreate:
		return EventCreate
	default:
		return next
	}
}

func (d *Debouncer) emit(path string) {
	d.mu.Lock()
	pending, exists := d.events[path]
	if exists {
		delete(d.events, path)
	}
	d.mu.Unlock()
	if !exists {
		return
	}

	d.sendMu.RLock()
	defer d.sendMu.RUnlock()
	select {
	case <-d.stopCh:
	default:
		select {
		case d.output <- pending.event:
		case <-d.stopCh:
		}
	}
}

// Flush emits every pending event now
func (d *Debouncer) Flush() {
	d.mu.Lock()
	paths := make([]string, 0, len(d.events))
	for path, pending := range d.events {
		pending.timer.Stop()
		paths = append(paths, path)
	}
	d.mu.Unlock()

	for _, path := range paths {
		d.emit(path)
	}
}

// Stop drops pending events and closes the output channel
func (d *Debouncer) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	for _, pending := range d.events {
		pending.timer.Stop()
	}
	d.events = make(map[string]*pendingEvent)
	d.mu.Unlock()

	close(d.stopCh)
	d.sendMu.Lock()
	close(d.output)
	d.sendMu.Unlock()
}

// PendingCount returns the number of paths waiting to be emitted
func (d *Debouncer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.events)
}
