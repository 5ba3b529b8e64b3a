package service

import (
	"context"
	"sync"
	"time"

	dErrors "linkage/pkg/domain-errors"
)

// StoreTx provides the transactional boundary for one reconcile call. The
// engine's whole read-decide-write sequence runs inside fn; implementations
// must guarantee that either all of fn's writes land or none do, and that
// concurrent reconciles over the same rows serialize: read-committed alone
// lets two calls both read the before-state and produce duplicate secondaries.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}

// defaultTxTimeout bounds a reconcile transaction when the caller set no
// deadline of its own.
const defaultTxTimeout = 5 * time.Second

// memoryStoreTx serializes all transactions behind one mutex. Reconcile can
// touch any subset of rows (a merge spans two clusters), so per-key sharding
// cannot bound the write set; whole-store serialization is the in-memory
// equivalent of the serializable isolation the Postgres adapter requests.
type memoryStoreTx struct {
	mu      sync.Mutex
	store   Store
	timeout time.Duration
}

// NewMemoryTx wraps a store in a coarse-lock transactional boundary. Used by
// unit tests and the no-database demo mode.
func NewMemoryTx(store Store) StoreTx {
	return &memoryStoreTx{store: store}
}

func (t *memoryStoreTx) RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
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

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	// Stores that can snapshot get rollback-on-error, matching the all-or-
	// nothing guarantee of the Postgres adapter.
	var restore func()
	if snap, ok := t.store.(Snapshotter); ok {
		restore = snap.Snapshot()
	}

	if err := fn(ctx, t.store); err != nil {
		if restore != nil {
			restore()
		}
		return err
	}
	return nil
}

// Snapshotter is implemented by stores that support cheap state capture, so
// the memory transaction can discard partial writes on failure.
type Snapshotter interface {
	Snapshot() (restore func())
}
