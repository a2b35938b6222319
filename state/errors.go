/*
errors.go - Error taxonomy of the state manipulator

PURPOSE:
  All state errors in one place. Callers branch with errors.Is on the
  sentinels; the structured types carry the details for messages.

ERROR CATEGORIES:
  1. NotFound - returned by mutations that target an unknown or deleted id.
     Read lookups never return it: they report absence with a bool.
  2. Conflict - a unique key is already taken by an active entity.
  3. ReferentialIntegrity - a mutation references something that does not
     exist, or would orphan an active entity.
  4. Invalid - field validation failed.
  5. ReplayFailure - a log entry cannot be applied. Fatal for the view
     being built; the live state is never touched.

  Conflict, ReferentialIntegrity and Invalid are detected before anything is
  appended, so a rejected mutation leaves no trace in the log.

SEE ALSO:
  - state.go: mutations
  - snapshot.go: replay
*/
package state

import (
	"errors"
	"fmt"

	"github.com/warp/kpsmart/eventlog"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a mutation targets an unknown or deleted entity.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict is returned when a unique key is already in use.
	ErrConflict = errors.New("conflict")

	// ErrReferentialIntegrity is returned when a mutation references a
	// missing entity or would leave a dangling reference.
	ErrReferentialIntegrity = errors.New("referential integrity violation")

	// ErrInvalid is returned when field validation fails.
	ErrInvalid = errors.New("invalid entity")

	// ErrReplayFailure is returned when the log cannot be folded into state.
	ErrReplayFailure = errors.New("replay failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the missing entity.
type NotFoundError struct {
	Kind eventlog.Kind
	ID   uint64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError names the key that is already taken.
type ConflictError struct {
	Kind eventlog.Kind
	Key  string
	// ExistingID is the entity holding the key.
	ExistingID uint64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s %s already exists (id %d)", e.Kind, e.Key, e.ExistingID)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// IntegrityError describes a broken reference.
type IntegrityError struct {
	Kind   eventlog.Kind
	Ref    string
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("referential integrity: %s references %s: %s", e.Kind, e.Ref, e.Reason)
}

func (e *IntegrityError) Unwrap() error { return ErrReferentialIntegrity }

// ReplayError identifies the event that could not be applied.
type ReplayError struct {
	EventID uint64
	Err     error
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("replay failure at event %d: %v", e.EventID, e.Err)
}

// Unwrap exposes both the sentinel and the cause.
func (e *ReplayError) Unwrap() []error { return []error{ErrReplayFailure, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrReferentialIntegrity) ||
		errors.Is(err, ErrInvalid) ||
		errors.Is(err, ErrNotFound)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
