package contact

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"linkage/internal/identity/service"
	dErrors "linkage/pkg/domain-errors"
	txcontext "linkage/pkg/platform/tx"
)

const (
	defaultTxTimeout = 5 * time.Second
	// Serializable transactions over the same cluster abort each other with
	// SQLSTATE 40001; a small bounded retry absorbs those conflicts.
	maxSerializationRetries = 3
	retryBackoff            = 25 * time.Millisecond
)

// PostgresTxRunner runs each reconcile in a serializable Postgres
// transaction. Serializable isolation (plus the FOR UPDATE locks the store
// takes on seed rows) is what upholds the cluster invariants when two
// concurrent calls race to merge the same contacts.
type PostgresTxRunner struct {
	db      *sql.DB
	logger  *slog.Logger
	timeout time.Duration
}

// NewPostgresTxRunner creates the transactional boundary for the service.
func NewPostgresTxRunner(db *sql.DB, logger *slog.Logger) *PostgresTxRunner {
	return &PostgresTxRunner{db: db, logger: logger}
}

// RunInTx opens a transaction, binds a store to it, and commits when fn
// succeeds. The transaction also rides fn's context so the event outbox joins
// the same scope.
func (t *PostgresTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context, store service.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	for attempt := 0; ; attempt++ {
		err := t.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if attempt < maxSerializationRetries && isSerializationFailure(err) && ctx.Err() == nil {
			t.logger.WarnContext(ctx, "reconcile transaction conflicted, retrying",
				"attempt", attempt+1,
			)
			time.Sleep(retryBackoff << attempt)
			continue
		}
		return err
	}
}

func (t *PostgresTxRunner) runOnce(ctx context.Context, fn func(ctx context.Context, store service.Store) error) error {
	tx, err := t.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeStore, "begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	txCtx := txcontext.WithTx(ctx, tx)

	if err := fn(txCtx, NewPostgresTx(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStore, "commit transaction")
	}
	return nil
}

// isSerializationFailure reports whether err carries a Postgres serialization
// (40001) or deadlock (40P01) SQLSTATE anywhere in its chain.
func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}
