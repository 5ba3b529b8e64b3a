package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so the reconciliation service can translate them into coded domain
// errors without knowing which backend produced them.
//
// These represent factual states about rows, not validation failures:
// - ErrNotFound: contact row does not exist (or is soft-deleted)
// - ErrConflict: write lost to a concurrent transaction
// - ErrUnavailable: store temporarily unreachable
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
