package contact

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements is applied in order at startup. Every statement is
// idempotent so repeated boots against the same database are safe.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS contact (
		id              BIGSERIAL PRIMARY KEY,
		email           TEXT,
		phone_number    TEXT,
		link_precedence TEXT NOT NULL CHECK (link_precedence IN ('primary', 'secondary')),
		linked_id       BIGINT REFERENCES contact(id),
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		deleted_at      TIMESTAMPTZ,
		CHECK ((link_precedence = 'secondary') = (linked_id IS NOT NULL))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_contact_email ON contact (email) WHERE deleted_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_contact_phone ON contact (phone_number) WHERE deleted_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_contact_linked_id ON contact (linked_id) WHERE deleted_at IS NULL`,
	`CREATE TABLE IF NOT EXISTS contact_outbox (
		id           UUID PRIMARY KEY,
		event_type   TEXT NOT NULL,
		payload      JSONB NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		published_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_contact_outbox_unpublished
		ON contact_outbox (created_at) WHERE published_at IS NULL`,
}

// EnsureSchema creates the contact and outbox tables if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply contact schema: %w", err)
		}
	}
	return nil
}
