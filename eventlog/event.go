/*
Package eventlog provides the append-only event log of entity mutations.

PURPOSE:
  The log is the source of truth for the whole mail network. Every create,
  update and soft delete of a location, carrier, route, price or delivery is
  recorded as one immutable Event. Current state and every historical state
  are derived by folding events in id order - nothing else is authoritative.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. GAPLESS: ids start at 1 and each append takes the next id.
  3. SERIALIZED: appends hold one global lock, so replay order is the append order.
  4. IMMUTABLE: entries are never modified after append, so readers need no lock.

KEY TYPES:
  Event:  one log entry (id, timestamp, op, kind, entity id, payload)
  Store:  persistence collaborator (memory, SQLite, Badger)
  Log:    id assignment, append lock, lazy bounded replay

SEE ALSO:
  - store.go: Store interface
  - log.go: Log implementation
  - eventlog/store/memory.go: in-memory Store
  - store/sqlite, store/badger: durable Stores
*/
package eventlog

import (
	"encoding/json"
	"time"
)

// =============================================================================
// OPERATION AND KIND
// =============================================================================

// Op is the mutation an event records.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

func (o Op) Valid() bool {
	return o == OpCreate || o == OpUpdate || o == OpDelete
}

// Kind is the entity type an event targets.
type Kind string

const (
	KindLocation      Kind = "location"
	KindCarrier       Kind = "carrier"
	KindRoute         Kind = "route"
	KindCustomerPrice Kind = "customer_price"
	KindDomesticPrice Kind = "domestic_price"
	KindMailDelivery  Kind = "mail_delivery"
)

// Kinds lists every entity kind.
var Kinds = []Kind{KindLocation, KindCarrier, KindRoute, KindCustomerPrice, KindDomesticPrice, KindMailDelivery}

func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// =============================================================================
// EVENT
// =============================================================================

// Event is an immutable entry of the log.
type Event struct {
	// ID is the position in the log, starting at 1. Assigned by Log.Append.
	ID uint64 `json:"id"`
	// Timestamp is when the event was appended. Assigned by Log.Append.
	Timestamp time.Time `json:"timestamp"`
	Op        Op        `json:"op"`
	Kind      Kind      `json:"kind"`
	// EntityID is the id of the affected entity within its kind.
	EntityID uint64 `json:"entity_id"`
	// CorrelationID ties an event to the request that produced it.
	CorrelationID string `json:"correlation_id,omitempty"`
	// Payload is the full new state of the entity. Empty for deletes.
	Payload json.RawMessage `json:"payload,omitempty"`
}
