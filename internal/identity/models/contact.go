package models

import "time"

// LinkPrecedence marks a contact as the canonical head of its cluster or as a
// secondary linked to one.
type LinkPrecedence string

const (
	LinkPrecedencePrimary   LinkPrecedence = "primary"
	LinkPrecedenceSecondary LinkPrecedence = "secondary"
)

// Contact is a single checkout submission's contact row. Clusters are stars:
// every secondary's LinkedID points directly at the cluster's primary, and the
// primary has LinkedID = nil.
type Contact struct {
	ID             int64
	Email          string // empty means absent
	PhoneNumber    string // empty means absent
	LinkPrecedence LinkPrecedence
	LinkedID       *int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// IsPrimary reports whether the contact heads its cluster.
func (c *Contact) IsPrimary() bool {
	return c.LinkPrecedence == LinkPrecedencePrimary
}

// PrimaryID returns the id of the contact's cluster primary as currently
// stored: LinkedID when linked, otherwise the contact's own id.
func (c *Contact) PrimaryID() int64 {
	if c.LinkedID != nil {
		return *c.LinkedID
	}
	return c.ID
}

// OlderThan reports whether c precedes other in the canonical cluster order:
// ascending CreatedAt, with the smaller ID breaking timestamp ties.
func (c *Contact) OlderThan(other *Contact) bool {
	if !c.CreatedAt.Equal(other.CreatedAt) {
		return c.CreatedAt.Before(other.CreatedAt)
	}
	return c.ID < other.ID
}

// NewContact is the insert payload for the contact store.
type NewContact struct {
	Email          string
	PhoneNumber    string
	LinkPrecedence LinkPrecedence
	LinkedID       *int64
}

// ContactUpdate is a partial update. SetLinkedID distinguishes "leave linked_id
// alone" from "write it" — nil is a meaningful target value when promoting a
// contact back to primary.
type ContactUpdate struct {
	LinkPrecedence *LinkPrecedence
	LinkedID       *int64
	SetLinkedID    bool
}

// ClusterView is the canonical, deduplicated view of one identity cluster as
// returned to callers.
type ClusterView struct {
	PrimaryContactID    int64    `json:"primaryContactId"`
	Emails              []string `json:"emails"`
	PhoneNumbers        []string `json:"phoneNumbers"`
	SecondaryContactIDs []int64  `json:"secondaryContactIds"`
}
