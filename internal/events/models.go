// Package events records contact lifecycle facts for downstream consumers
// (CRM sync, marketing pipelines). Events are written to a transactional
// outbox inside the reconcile transaction and drained to Kafka by a background
// publisher, so a reconcile never fails because a broker is down.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type enumerates the published event kinds.
type Type string

const (
	// TypeContactCreated fires for every row the reconciliation engine
	// inserts, whether a fresh primary or a new-information secondary.
	TypeContactCreated Type = "contact.created"
	// TypeClusterMerged fires once per primary demoted into another cluster.
	TypeClusterMerged Type = "cluster.merged"
)

// Event is one contact lifecycle fact.
type Event struct {
	ID               uuid.UUID `json:"id"`
	Type             Type      `json:"type"`
	ContactID        int64     `json:"contactId"`
	PrimaryContactID int64     `json:"primaryContactId"`
	Email            string    `json:"email,omitempty"`
	PhoneNumber      string    `json:"phoneNumber,omitempty"`
	OccurredAt       time.Time `json:"occurredAt"`
}

// Recorder appends events. Implementations must participate in the caller's
// transaction when one is present in context.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// Entry is an outbox row awaiting publication.
type Entry struct {
	ID        uuid.UUID
	EventType Type
	Payload   []byte
	CreatedAt time.Time
}

// Outbox is the publisher-facing side of the event store.
type Outbox interface {
	ListUnpublished(ctx context.Context, limit int) ([]Entry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
}

// NoopRecorder drops every event. Used when eventing is disabled.
type NoopRecorder struct{}

func (NoopRecorder) Record(context.Context, Event) error { return nil }
