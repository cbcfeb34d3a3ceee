package domain

import "time"

// DeliveryStatus is the state of one (document, destination) delivery
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// DeliveryRecord tracks the last attempt to push a document to a destination
type DeliveryRecord struct {
	DocumentID    int64
	DestinationID string
	Status        DeliveryStatus
	LastAttemptAt time.Time
	LastError     string
	RetryCount    int
	RemoteID      int64
	RemoteURL     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasRemote reports whether the destination already holds a copy
func (r *DeliveryRecord) HasRemote() bool {
	return r != nil && r.RemoteID > 0
}

// Operation is the kind of request sent to a destination
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
)

// Outcome summarises what happened for one destination
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// Result is the per-destination outcome of a dispatch
type Result struct {
	DestinationID string
	Operation     Operation
	Outcome       Outcome
	RemoteID      int64
	RemoteURL     string
	// Degraded is set when an update fell back to a create
	Degraded bool
	Err      error
}

// DeliveryReport is an operator-facing row with the destination name resolved
type DeliveryReport struct {
	DeliveryRecord
	DocumentTitle   string
	DestinationName string
}
