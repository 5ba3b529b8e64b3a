// Package service implements identity reconciliation: deciding how an
// (email, phoneNumber) submission affects the contact graph and producing the
// canonical cluster view. All graph traversal goes through the Store as
// repeated keyed lookups so it stays valid across transaction boundaries.
package service

import (
	"context"
	"errors"
	"log/slog"

	"linkage/internal/events"
	"linkage/internal/identity/metrics"
	"linkage/internal/identity/models"
	dErrors "linkage/pkg/domain-errors"
	"linkage/pkg/platform/sentinel"
	pstrings "linkage/pkg/platform/strings"
)

// Store is the transactional contact accessor the engine runs against. All
// four operations execute inside the scope opened by StoreTx; none commits.
type Store interface {
	// FindMatching returns non-deleted contacts whose email or phone equals
	// the given values, ordered by (created_at, id).
	FindMatching(ctx context.Context, email, phone string) ([]*models.Contact, error)
	// FindGroupByIDs expands seed ids to the full transitive-closure group
	// over the id↔linked_id relation, ordered by (created_at, id).
	FindGroupByIDs(ctx context.Context, seedIDs []int64) ([]*models.Contact, error)
	Create(ctx context.Context, in models.NewContact) (*models.Contact, error)
	Update(ctx context.Context, id int64, update models.ContactUpdate) (*models.Contact, error)
}

// Service is the reconciliation engine. One Reconcile call is one transaction:
// either all of its demotions and inserts land, or none do.
type Service struct {
	tx       StoreTx
	recorder events.Recorder
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates the reconciliation service. metrics may be nil in tests.
func New(tx StoreTx, recorder events.Recorder, m *metrics.Metrics, logger *slog.Logger) *Service {
	if recorder == nil {
		recorder = events.NoopRecorder{}
	}
	return &Service{tx: tx, recorder: recorder, metrics: m, logger: logger}
}

// Reconcile resolves the cluster for a pre-validated submission. At least one
// of email/phone is non-empty; the HTTP boundary enforces that before calling.
func (s *Service) Reconcile(ctx context.Context, email, phone string) (*models.ClusterView, error) {
	var view *models.ClusterView

	err := s.tx.RunInTx(ctx, func(ctx context.Context, store Store) error {
		v, err := s.reconcile(ctx, store, email, phone)
		if err != nil {
			return err
		}
		view = v
		return nil
	})
	if err != nil {
		s.observeOutcome(metrics.OutcomeError)
		return nil, err
	}
	return view, nil
}

func (s *Service) reconcile(ctx context.Context, store Store, email, phone string) (*models.ClusterView, error) {
	matches, err := store.FindMatching(ctx, email, phone)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStore, "find matching contacts")
	}

	// No match: the submission starts a fresh cluster.
	if len(matches) == 0 {
		created, err := store.Create(ctx, models.NewContact{
			Email:          email,
			PhoneNumber:    phone,
			LinkPrecedence: models.LinkPrecedencePrimary,
		})
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeStore, "create primary contact")
		}
		if err := s.recordCreated(ctx, created, created.ID); err != nil {
			return nil, err
		}

		s.observeOutcome(metrics.OutcomeCreatedPrimary)
		s.observeCreated(created)
		return buildView(created.ID, []*models.Contact{created})
	}

	// Seed the closure with every match and the primary it currently points
	// at, so a submission bridging two clusters pulls both into one group.
	seen := make(map[int64]struct{}, len(matches)*2)
	var seedIDs []int64
	for _, m := range matches {
		for _, id := range []int64{m.ID, m.PrimaryID()} {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				seedIDs = append(seedIDs, id)
			}
		}
	}

	group, err := store.FindGroupByIDs(ctx, seedIDs)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStore, "resolve contact group")
	}
	if len(group) == 0 {
		// Unreachable while invariant 1 holds: the matches themselves are in
		// the seed set and not deleted.
		return nil, dErrors.New(dErrors.CodeInconsistent, "resolved empty group from non-empty seeds")
	}

	canonical := selectPrimary(group)

	// Demote every other current primary onto the canonical one. This is the
	// merge: two independently created clusters flatten into a single star.
	// Secondaries of a demoted primary would otherwise form a chain, so any
	// secondary not pointing straight at the canonical primary is relinked in
	// the same pass.
	for _, c := range group {
		if c.ID == canonical.ID {
			continue
		}
		if c.IsPrimary() {
			if err := s.demote(ctx, store, c, canonical.ID); err != nil {
				return nil, err
			}
			continue
		}
		if c.LinkedID == nil || *c.LinkedID != canonical.ID {
			if _, err := store.Update(ctx, c.ID, models.ContactUpdate{
				LinkedID:    &canonical.ID,
				SetLinkedID: true,
			}); err != nil {
				return nil, s.wrapUpdateErr(err, "relink chained secondary")
			}
		}
	}

	// The canonical primary itself may be stored as a secondary (discovered
	// through a chain, or demoted by an earlier bug). Rewrite it to canonical
	// state when anything differs.
	if !canonical.IsPrimary() || canonical.LinkedID != nil {
		primary := models.LinkPrecedencePrimary
		if _, err := store.Update(ctx, canonical.ID, models.ContactUpdate{
			LinkPrecedence: &primary,
			LinkedID:       nil,
			SetLinkedID:    true,
		}); err != nil {
			return nil, s.wrapUpdateErr(err, "promote canonical primary")
		}
	}

	// Re-fetch the now-consistent group anchored at the canonical primary
	// before deciding whether the submission adds anything.
	group, err = store.FindGroupByIDs(ctx, []int64{canonical.ID})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStore, "refetch contact group")
	}

	outcome := metrics.OutcomeRedundant
	if hasNewInformation(group, email, phone) {
		created, err := store.Create(ctx, models.NewContact{
			Email:          email,
			PhoneNumber:    phone,
			LinkPrecedence: models.LinkPrecedenceSecondary,
			LinkedID:       &canonical.ID,
		})
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeStore, "create secondary contact")
		}
		if err := s.recordCreated(ctx, created, canonical.ID); err != nil {
			return nil, err
		}
		s.observeCreated(created)
		outcome = metrics.OutcomeCreatedSecondary

		group, err = store.FindGroupByIDs(ctx, []int64{canonical.ID})
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeStore, "refetch contact group after insert")
		}
	}

	view, err := buildView(canonical.ID, group)
	if err != nil {
		return nil, err
	}

	s.observeOutcome(outcome)
	if s.metrics != nil {
		s.metrics.GroupSize.Observe(float64(len(group)))
	}
	return view, nil
}

// selectPrimary picks the canonical primary: the earliest-created contact
// among those stored as primary, falling back to the whole group if none is
// (invariant 3 says that cannot happen, but the group walk must not trust it).
// Ties on CreatedAt resolve to the smaller id.
func selectPrimary(group []*models.Contact) *models.Contact {
	candidates := make([]*models.Contact, 0, len(group))
	for _, c := range group {
		if c.IsPrimary() {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		candidates = group
	}

	oldest := candidates[0]
	for _, c := range candidates[1:] {
		if c.OlderThan(oldest) {
			oldest = c
		}
	}
	return oldest
}

func (s *Service) demote(ctx context.Context, store Store, c *models.Contact, canonicalID int64) error {
	secondary := models.LinkPrecedenceSecondary
	if _, err := store.Update(ctx, c.ID, models.ContactUpdate{
		LinkPrecedence: &secondary,
		LinkedID:       &canonicalID,
		SetLinkedID:    true,
	}); err != nil {
		return s.wrapUpdateErr(err, "demote merged primary")
	}

	if err := s.recorder.Record(ctx, events.Event{
		Type:             events.TypeClusterMerged,
		ContactID:        c.ID,
		PrimaryContactID: canonicalID,
	}); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStore, "record merge event")
	}

	if s.metrics != nil {
		s.metrics.ClustersMerged.Inc()
	}
	return nil
}

// hasNewInformation reports whether the submission carries an email or phone
// the group does not already know.
func hasNewInformation(group []*models.Contact, email, phone string) bool {
	knownEmails := make(map[string]struct{}, len(group))
	knownPhones := make(map[string]struct{}, len(group))
	for _, c := range group {
		if c.Email != "" {
			knownEmails[c.Email] = struct{}{}
		}
		if c.PhoneNumber != "" {
			knownPhones[c.PhoneNumber] = struct{}{}
		}
	}

	if email != "" {
		if _, ok := knownEmails[email]; !ok {
			return true
		}
	}
	if phone != "" {
		if _, ok := knownPhones[phone]; !ok {
			return true
		}
	}
	return false
}

// buildView assembles the canonical response from a group already ordered by
// (created_at, id). The primary's own values lead the email/phone lists.
func buildView(primaryID int64, group []*models.Contact) (*models.ClusterView, error) {
	var primary *models.Contact
	secondaries := make([]*models.Contact, 0, len(group))
	for _, c := range group {
		if c.ID == primaryID {
			primary = c
		} else {
			secondaries = append(secondaries, c)
		}
	}
	if primary == nil {
		return nil, dErrors.New(dErrors.CodeInconsistent, "primary contact missing from resolved group")
	}

	emails := make([]string, 0, len(group))
	phones := make([]string, 0, len(group))
	secondaryIDs := make([]int64, 0, len(secondaries))

	emails = append(emails, primary.Email)
	phones = append(phones, primary.PhoneNumber)
	for _, c := range secondaries {
		emails = append(emails, c.Email)
		phones = append(phones, c.PhoneNumber)
		secondaryIDs = append(secondaryIDs, c.ID)
	}

	return &models.ClusterView{
		PrimaryContactID:    primaryID,
		Emails:              pstrings.Dedupe(emails),
		PhoneNumbers:        pstrings.Dedupe(phones),
		SecondaryContactIDs: secondaryIDs,
	}, nil
}

func (s *Service) recordCreated(ctx context.Context, c *models.Contact, primaryID int64) error {
	err := s.recorder.Record(ctx, events.Event{
		Type:             events.TypeContactCreated,
		ContactID:        c.ID,
		PrimaryContactID: primaryID,
		Email:            c.Email,
		PhoneNumber:      c.PhoneNumber,
	})
	return dErrors.Wrap(err, dErrors.CodeStore, "record contact event")
}

// wrapUpdateErr distinguishes a vanished row (an invariant break: the engine
// only updates rows it read in this transaction) from ordinary store failures.
func (s *Service) wrapUpdateErr(err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInconsistent, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeStore, msg)
}

func (s *Service) observeOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveOutcome(outcome)
	}
}

func (s *Service) observeCreated(c *models.Contact) {
	if s.metrics != nil {
		s.metrics.ObserveContactCreated(string(c.LinkPrecedence))
	}
}
