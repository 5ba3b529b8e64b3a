package contact

import (
	"context"
	"sort"
	"sync"
	"time"

	"linkage/internal/identity/models"
	"linkage/pkg/platform/sentinel"
)

// MemoryStore is the in-memory contact store. It backs unit tests and the
// no-database demo mode. Concurrency safety comes from the store-level mutex in
// the memory StoreTx adapter; the internal RWMutex only guards against misuse
// outside a transaction.
type MemoryStore struct {
	mu       sync.RWMutex
	contacts map[int64]*models.Contact
	nextID   int64
	now      func() time.Time
}

// NewMemory creates an empty in-memory contact store.
func NewMemory() *MemoryStore {
	return NewMemoryWithClock(time.Now)
}

// NewMemoryWithClock creates a store with an injectable clock. Tests use this
// to force identical CreatedAt timestamps and exercise the id tie-break.
func NewMemoryWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		contacts: make(map[int64]*models.Contact),
		now:      now,
	}
}

// FindMatching returns non-deleted contacts whose email or phone equals the
// given values, ordered by (created_at, id). Both inputs empty yields an empty
// result without scanning.
func (s *MemoryStore) FindMatching(_ context.Context, email, phone string) ([]*models.Contact, error) {
	if email == "" && phone == "" {
		return []*models.Contact{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []*models.Contact
	for _, c := range s.contacts {
		if c.DeletedAt != nil {
			continue
		}
		if (email != "" && c.Email == email) || (phone != "" && c.PhoneNumber == phone) {
			matches = append(matches, copyContact(c))
		}
	}

	sortCanonical(matches)
	return matches, nil
}

// FindGroupByIDs expands seedIDs to the transitive closure of the id↔linked_id
// relation and returns the full rows ordered by (created_at, id). Expansion
// iterates to a fixpoint so it resolves correctly even if the stored graph
// momentarily holds a secondary→secondary chain instead of a strict star.
func (s *MemoryStore) FindGroupByIDs(_ context.Context, seedIDs []int64) ([]*models.Contact, error) {
	if len(seedIDs) == 0 {
		return []*models.Contact{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	visited := make(map[int64]struct{}, len(seedIDs))
	for _, id := range seedIDs {
		visited[id] = struct{}{}
	}

	for expanded := true; expanded; {
		expanded = false
		for _, c := range s.contacts {
			if c.DeletedAt != nil {
				continue
			}
			_, selfIn := visited[c.ID]
			linkedIn := c.LinkedID != nil && memberOf(visited, *c.LinkedID)
			if !selfIn && !linkedIn {
				continue
			}
			if !selfIn {
				visited[c.ID] = struct{}{}
				expanded = true
			}
			if c.LinkedID != nil && !memberOf(visited, *c.LinkedID) {
				visited[*c.LinkedID] = struct{}{}
				expanded = true
			}
		}
	}

	group := make([]*models.Contact, 0, len(visited))
	for id := range visited {
		c, ok := s.contacts[id]
		if !ok || c.DeletedAt != nil {
			continue
		}
		group = append(group, copyContact(c))
	}

	sortCanonical(group)
	return group, nil
}

// Create inserts a new contact row with a monotonically assigned id.
func (s *MemoryStore) Create(_ context.Context, in models.NewContact) (*models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	now := s.now()

	c := &models.Contact{
		ID:             s.nextID,
		Email:          in.Email,
		PhoneNumber:    in.PhoneNumber,
		LinkPrecedence: in.LinkPrecedence,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if in.LinkedID != nil {
		linked := *in.LinkedID
		c.LinkedID = &linked
	}

	s.contacts[c.ID] = c
	return copyContact(c), nil
}

// Update applies a partial update to one contact. Missing or soft-deleted rows
// return sentinel.ErrNotFound.
func (s *MemoryStore) Update(_ context.Context, id int64, update models.ContactUpdate) (*models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contacts[id]
	if !ok || c.DeletedAt != nil {
		return nil, sentinel.ErrNotFound
	}

	if update.LinkPrecedence != nil {
		c.LinkPrecedence = *update.LinkPrecedence
	}
	if update.SetLinkedID {
		if update.LinkedID != nil {
			linked := *update.LinkedID
			c.LinkedID = &linked
		} else {
			c.LinkedID = nil
		}
	}
	c.UpdatedAt = s.now()

	return copyContact(c), nil
}

// SoftDelete marks a contact deleted. Reconciliation never calls this; it
// exists so tests can verify deleted rows are excluded from matching.
func (s *MemoryStore) SoftDelete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contacts[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	now := s.now()
	c.DeletedAt = &now
	return nil
}

// Snapshot captures the full store state and returns a restore func. The
// memory transaction adapter uses it to discard partial writes when the
// reconcile callback fails.
func (s *MemoryStore) Snapshot() func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := make(map[int64]*models.Contact, len(s.contacts))
	for id, c := range s.contacts {
		saved[id] = copyContact(c)
	}
	savedNextID := s.nextID

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.contacts = saved
		s.nextID = savedNextID
	}
}

func memberOf(set map[int64]struct{}, id int64) bool {
	_, ok := set[id]
	return ok
}

func sortCanonical(contacts []*models.Contact) {
	sort.Slice(contacts, func(i, j int) bool {
		return contacts[i].OlderThan(contacts[j])
	})
}

func copyContact(c *models.Contact) *models.Contact {
	out := *c
	if c.LinkedID != nil {
		linked := *c.LinkedID
		out.LinkedID = &linked
	}
	if c.DeletedAt != nil {
		deleted := *c.DeletedAt
		out.DeletedAt = &deleted
	}
	return &out
}
