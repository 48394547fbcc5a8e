package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Store persists artifacts with first-writer-wins semantics per key.
type Store interface {
	// Get returns the artifact for key, or nil when absent.
	Get(ctx context.Context, db *gorm.DB, key Key) (*Artifact, error)

	// PutIfAbsent inserts the artifact unless its key is already
	// occupied. It never overwrites: on conflict the outcome carries the
	// row that won.
	PutIfAbsent(ctx context.Context, db *gorm.DB, artifact *Artifact) (PutOutcome, error)
}

// ErrConflictRowMissing means the insert hit the unique index but the
// winning row could not be read back. Callers treat it as a persistence
// failure.
var ErrConflictRowMissing = errors.New("artifact_conflict_row_missing")
