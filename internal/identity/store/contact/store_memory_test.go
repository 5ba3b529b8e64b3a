package contact

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkage/internal/identity/models"
	"linkage/pkg/platform/sentinel"
)

func seedStore(t *testing.T) (*MemoryStore, []*models.Contact) {
	t.Helper()
	base := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	tick := base
	store := NewMemoryWithClock(func() time.Time {
		now := tick
		tick = tick.Add(time.Second)
		return now
	})
	ctx := context.Background()

	p1, err := store.Create(ctx, models.NewContact{Email: "p1@example.com", PhoneNumber: "100", LinkPrecedence: models.LinkPrecedencePrimary})
	require.NoError(t, err)
	s1, err := store.Create(ctx, models.NewContact{Email: "s1@example.com", LinkPrecedence: models.LinkPrecedenceSecondary, LinkedID: &p1.ID})
	require.NoError(t, err)
	p2, err := store.Create(ctx, models.NewContact{Email: "p2@example.com", PhoneNumber: "200", LinkPrecedence: models.LinkPrecedencePrimary})
	require.NoError(t, err)

	return store, []*models.Contact{p1, s1, p2}
}

func TestMemoryFindMatching(t *testing.T) {
	store, seeded := seedStore(t)
	ctx := context.Background()

	t.Run("both inputs empty returns empty set", func(t *testing.T) {
		got, err := store.FindMatching(ctx, "", "")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("matches email OR phone", func(t *testing.T) {
		got, err := store.FindMatching(ctx, "s1@example.com", "200")
		require.NoError(t, err)
		require.Len(t, got, 2)
		// Ordered by (created_at, id): s1 precedes p2.
		assert.Equal(t, seeded[1].ID, got[0].ID)
		assert.Equal(t, seeded[2].ID, got[1].ID)
	})

	t.Run("excludes soft-deleted rows", func(t *testing.T) {
		require.NoError(t, store.SoftDelete(ctx, seeded[2].ID))
		got, err := store.FindMatching(ctx, "p2@example.com", "")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestMemoryFindGroupByIDs(t *testing.T) {
	store, seeded := seedStore(t)
	ctx := context.Background()

	t.Run("empty seeds yield empty group", func(t *testing.T) {
		got, err := store.FindGroupByIDs(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("expands across the link relation both ways", func(t *testing.T) {
		// Seeding with the secondary must pull in its primary and vice versa.
		fromSecondary, err := store.FindGroupByIDs(ctx, []int64{seeded[1].ID})
		require.NoError(t, err)
		fromPrimary, err := store.FindGroupByIDs(ctx, []int64{seeded[0].ID})
		require.NoError(t, err)

		require.Len(t, fromSecondary, 2)
		require.Len(t, fromPrimary, 2)
		assert.Equal(t, fromPrimary[0].ID, fromSecondary[0].ID)
	})

	t.Run("walks chains to a fixpoint", func(t *testing.T) {
		p1 := seeded[0]
		s1 := seeded[1]
		// Illegal chain: leaf → s1 → p1.
		leaf, err := store.Create(ctx, models.NewContact{Email: "leaf@example.com", LinkPrecedence: models.LinkPrecedenceSecondary, LinkedID: &s1.ID})
		require.NoError(t, err)

		group, err := store.FindGroupByIDs(ctx, []int64{leaf.ID})
		require.NoError(t, err)
		require.Len(t, group, 3)
		assert.Equal(t, p1.ID, group[0].ID, "ordering starts at the oldest row")
	})
}

func TestMemoryUpdateTriState(t *testing.T) {
	store, seeded := seedStore(t)
	ctx := context.Background()
	p1, s1 := seeded[0], seeded[1]

	t.Run("omitting linked id leaves it untouched", func(t *testing.T) {
		secondary := models.LinkPrecedenceSecondary
		updated, err := store.Update(ctx, s1.ID, models.ContactUpdate{LinkPrecedence: &secondary})
		require.NoError(t, err)
		require.NotNil(t, updated.LinkedID)
		assert.Equal(t, p1.ID, *updated.LinkedID)
	})

	t.Run("supplying nil linked id clears it", func(t *testing.T) {
		primary := models.LinkPrecedencePrimary
		updated, err := store.Update(ctx, s1.ID, models.ContactUpdate{
			LinkPrecedence: &primary,
			LinkedID:       nil,
			SetLinkedID:    true,
		})
		require.NoError(t, err)
		assert.Nil(t, updated.LinkedID)
		assert.Equal(t, models.LinkPrecedencePrimary, updated.LinkPrecedence)
	})

	t.Run("missing row returns sentinel", func(t *testing.T) {
		_, err := store.Update(ctx, 9999, models.ContactUpdate{})
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("updates bump UpdatedAt but never CreatedAt", func(t *testing.T) {
		secondary := models.LinkPrecedenceSecondary
		updated, err := store.Update(ctx, p1.ID, models.ContactUpdate{LinkPrecedence: &secondary})
		require.NoError(t, err)
		assert.Equal(t, p1.CreatedAt, updated.CreatedAt)
		assert.True(t, updated.UpdatedAt.After(updated.CreatedAt))
	})
}

func TestMemorySnapshotRestoresState(t *testing.T) {
	store, seeded := seedStore(t)
	ctx := context.Background()

	restore := store.Snapshot()

	secondary := models.LinkPrecedenceSecondary
	_, err := store.Update(ctx, seeded[2].ID, models.ContactUpdate{
		LinkPrecedence: &secondary,
		LinkedID:       &seeded[0].ID,
		SetLinkedID:    true,
	})
	require.NoError(t, err)
	_, err = store.Create(ctx, models.NewContact{Email: "extra@example.com", LinkPrecedence: models.LinkPrecedencePrimary})
	require.NoError(t, err)

	restore()

	group, err := store.FindGroupByIDs(ctx, []int64{seeded[2].ID})
	require.NoError(t, err)
	require.Len(t, group, 1)
	assert.Equal(t, models.LinkPrecedencePrimary, group[0].LinkPrecedence)

	matches, err := store.FindMatching(ctx, "extra@example.com", "")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMemoryCreateAssignsMonotonicIDs(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	prev := int64(0)
	for range 5 {
		c, err := store.Create(ctx, models.NewContact{Email: "x@example.com", LinkPrecedence: models.LinkPrecedencePrimary})
		require.NoError(t, err)
		assert.Greater(t, c.ID, prev)
		prev = c.ID
	}
}
