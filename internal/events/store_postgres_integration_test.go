//go:build integration

package events_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"linkage/internal/events"
	"linkage/internal/identity/store/contact"
	txcontext "linkage/pkg/platform/tx"
	"linkage/pkg/testutil/containers"
)

type PostgresOutboxSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	outbox   *events.PostgresOutbox
}

func TestPostgresOutboxSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresOutboxSuite))
}

func (s *PostgresOutboxSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())

	ctx := context.Background()
	s.Require().NoError(contact.EnsureSchema(ctx, s.postgres.DB))
	s.outbox = events.NewPostgresOutbox(s.postgres.DB)
}

func (s *PostgresOutboxSuite) SetupTest() {
	ctx := context.Background()
	err := s.postgres.TruncateTables(ctx, "contact_outbox")
	s.Require().NoError(err)
}

func (s *PostgresOutboxSuite) TestRecordListMarkRoundTrip() {
	ctx := context.Background()

	ids := make([]uuid.UUID, 0, 3)
	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		event := events.Event{
			ID:               uuid.New(),
			Type:             events.TypeContactCreated,
			ContactID:        1,
			PrimaryContactID: 1,
			Email:            email,
		}
		s.Require().NoError(s.outbox.Record(ctx, event))
		ids = append(ids, event.ID)
	}

	entries, err := s.outbox.ListUnpublished(ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(entries, 2, "limit caps the batch")
	s.Equal(ids[0], entries[0].ID, "oldest first")
	s.Equal(ids[1], entries[1].ID)

	s.Require().NoError(s.outbox.MarkPublished(ctx, []uuid.UUID{ids[0], ids[1]}))

	remaining, err := s.outbox.ListUnpublished(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(remaining, 1)
	s.Equal(ids[2], remaining[0].ID)

	// Publishing twice is harmless.
	s.Require().NoError(s.outbox.MarkPublished(ctx, ids))
}

func (s *PostgresOutboxSuite) TestRecordJoinsContextTransaction() {
	ctx := context.Background()

	tx, err := s.postgres.DB.BeginTx(ctx, nil)
	s.Require().NoError(err)
	txCtx := txcontext.WithTx(ctx, tx)

	err = s.outbox.Record(txCtx, events.Event{
		Type:             events.TypeClusterMerged,
		ContactID:        2,
		PrimaryContactID: 1,
	})
	s.Require().NoError(err)

	s.Require().NoError(tx.Rollback())

	entries, err := s.outbox.ListUnpublished(ctx, 10)
	s.Require().NoError(err)
	s.Empty(entries, "rolled-back transactions leave no outbox rows")
}
