package eventlog

import (
	"context"
	"errors"
)

// =============================================================================
// STORE - Persistence collaborator (append-only)
// =============================================================================

// Store persists events in append order.
// IMPORTANT: Store is APPEND-ONLY. No Update, No Delete. Ever.
//
// Implementations must round-trip every field of an Event exactly.
type Store interface {
	// Append persists an event whose ID has already been assigned.
	// Returns ErrDuplicateEvent if the id exists.
	Append(ctx context.Context, evt Event) error

	// List returns up to limit events with id > afterID, ascending.
	List(ctx context.Context, afterID uint64, limit int) ([]Event, error)

	// Last returns the highest id stored, or 0 for an empty store.
	Last(ctx context.Context) (uint64, error)
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrDuplicateEvent is returned when an event id is already stored.
	ErrDuplicateEvent = errors.New("duplicate event id")

	// ErrEventOutOfRange is returned when an event id is beyond the log.
	ErrEventOutOfRange = errors.New("event id out of range")

	// ErrInvalidEvent is returned when an event is missing its op or kind.
	ErrInvalidEvent = errors.New("invalid event")
)
