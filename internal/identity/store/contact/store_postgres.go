package contact

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"linkage/internal/identity/models"
	"linkage/pkg/platform/sentinel"
)

// PostgresStore issues contact reads and writes against an externally-owned
// transaction. It never commits or rolls back; PostgresTxRunner owns the
// transaction lifecycle.
//
// Matching and closure queries take row locks (FOR UPDATE) so two concurrent
// reconciliations over the same cluster serialize on the seed rows instead of
// both reading the before-state and producing duplicate secondaries.
type PostgresStore struct {
	tx *sql.Tx
}

// NewPostgresTx binds a store to an open transaction.
func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{tx: tx}
}

const contactColumns = "id, email, phone_number, link_precedence, linked_id, created_at, updated_at, deleted_at"

// FindMatching returns non-deleted contacts whose email or phone equals the
// given values, ordered by (created_at, id), with the rows locked for update.
func (s *PostgresStore) FindMatching(ctx context.Context, email, phone string) ([]*models.Contact, error) {
	var conds []string
	var args []any
	if email != "" {
		args = append(args, email)
		conds = append(conds, fmt.Sprintf("email = $%d", len(args)))
	}
	if phone != "" {
		args = append(args, phone)
		conds = append(conds, fmt.Sprintf("phone_number = $%d", len(args)))
	}
	if len(conds) == 0 {
		return []*models.Contact{}, nil
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM contact
		WHERE deleted_at IS NULL AND (%s)
		ORDER BY created_at ASC, id ASC
		FOR UPDATE
	`, contactColumns, strings.Join(conds, " OR "))

	rows, err := s.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query matching contacts: %w", err)
	}
	defer rows.Close()

	return scanContacts(rows)
}

// FindGroupByIDs computes the transitive closure of the id↔linked_id relation
// starting from seedIDs by repeated keyed lookups, then returns the full rows
// for the visited set ordered by (created_at, id). The fixpoint loop keeps the
// result correct even if a secondary→secondary chain has crept into storage.
func (s *PostgresStore) FindGroupByIDs(ctx context.Context, seedIDs []int64) ([]*models.Contact, error) {
	if len(seedIDs) == 0 {
		return []*models.Contact{}, nil
	}

	visited := make(map[int64]struct{}, len(seedIDs))
	for _, id := range seedIDs {
		visited[id] = struct{}{}
	}

	for expanded := true; expanded; {
		expanded = false

		rows, err := s.tx.QueryContext(ctx, `
			SELECT id, linked_id
			FROM contact
			WHERE deleted_at IS NULL AND (id = ANY($1) OR linked_id = ANY($1))
			FOR UPDATE
		`, pq.Array(idSlice(visited)))
		if err != nil {
			return nil, fmt.Errorf("expand contact group: %w", err)
		}

		for rows.Next() {
			var id int64
			var linkedID sql.NullInt64
			if err := rows.Scan(&id, &linkedID); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan group edge: %w", err)
			}
			if _, ok := visited[id]; !ok {
				visited[id] = struct{}{}
				expanded = true
			}
			if linkedID.Valid {
				if _, ok := visited[linkedID.Int64]; !ok {
					visited[linkedID.Int64] = struct{}{}
					expanded = true
				}
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("iterate group edges: %w", err)
		}
		rows.Close()
	}

	rows, err := s.tx.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM contact
		WHERE deleted_at IS NULL AND id = ANY($1)
		ORDER BY created_at ASC, id ASC
	`, contactColumns), pq.Array(idSlice(visited)))
	if err != nil {
		return nil, fmt.Errorf("fetch contact group: %w", err)
	}
	defer rows.Close()

	return scanContacts(rows)
}

// Create inserts a new contact row and returns it with the store-assigned id
// and timestamps.
func (s *PostgresStore) Create(ctx context.Context, in models.NewContact) (*models.Contact, error) {
	row := s.tx.QueryRowContext(ctx, fmt.Sprintf(`
		INSERT INTO contact (email, phone_number, link_precedence, linked_id)
		VALUES ($1, $2, $3, $4)
		RETURNING %s
	`, contactColumns),
		nullIfEmpty(in.Email),
		nullIfEmpty(in.PhoneNumber),
		string(in.LinkPrecedence),
		nullableID(in.LinkedID),
	)

	c, err := scanContact(row)
	if err != nil {
		return nil, fmt.Errorf("insert contact: %w", err)
	}
	return c, nil
}

// Update applies a partial update; only supplied fields change. Missing or
// soft-deleted rows return sentinel.ErrNotFound.
func (s *PostgresStore) Update(ctx context.Context, id int64, update models.ContactUpdate) (*models.Contact, error) {
	sets := []string{"updated_at = now()"}
	args := []any{id}

	if update.LinkPrecedence != nil {
		args = append(args, string(*update.LinkPrecedence))
		sets = append(sets, fmt.Sprintf("link_precedence = $%d", len(args)))
	}
	if update.SetLinkedID {
		args = append(args, nullableID(update.LinkedID))
		sets = append(sets, fmt.Sprintf("linked_id = $%d", len(args)))
	}

	row := s.tx.QueryRowContext(ctx, fmt.Sprintf(`
		UPDATE contact
		SET %s
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING %s
	`, strings.Join(sets, ", "), contactColumns), args...)

	c, err := scanContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update contact %d: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("update contact %d: %w", id, err)
	}
	return c, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (*models.Contact, error) {
	var (
		c         models.Contact
		email     sql.NullString
		phone     sql.NullString
		prec      string
		linkedID  sql.NullInt64
		deletedAt sql.NullTime
	)
	err := row.Scan(&c.ID, &email, &phone, &prec, &linkedID, &c.CreatedAt, &c.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	c.Email = email.String
	c.PhoneNumber = phone.String
	c.LinkPrecedence = models.LinkPrecedence(prec)
	if linkedID.Valid {
		c.LinkedID = &linkedID.Int64
	}
	if deletedAt.Valid {
		c.DeletedAt = &deletedAt.Time
	}
	return &c, nil
}

func scanContacts(rows *sql.Rows) ([]*models.Contact, error) {
	contacts := []*models.Contact{}
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}
	return contacts, nil
}

func idSlice(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}
