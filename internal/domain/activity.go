package domain

import (
	"time"

	"github.com/google/uuid"
)

// Severity classifies an activity entry
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// ActivityEntry is one append-only line of the activity log
type ActivityEntry struct {
	ID            uuid.UUID
	CreatedAt     time.Time
	Severity      Severity
	Action        string
	Message       string
	Payload       map[string]any
	DocumentID    *int64
	DestinationID *string
}

// ActivityStat summarises recent activity for status pages
type ActivityStat struct {
	Documents   int `json:"documents"`
	Received24h int `json:"received_24h"`
	Errors24h   int `json:"errors_24h"`
}

// Activity actions
const (
	ActionDispatch  = "dispatch"
	ActionReceive   = "receive"
	ActionUpdate    = "update"
	ActionMedia     = "media"
	ActionTransform = "transform"
	ActionSweep     = "sweep"
	ActionRegistry  = "registry"
)
