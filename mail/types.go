/*
Package mail defines the domain model of the KPSmart mail network.

PURPOSE:
  Locations, carriers, routes, customer prices and mail deliveries, plus the
  cost, price and shipping-duration arithmetic derived from them. This package
  knows nothing about the event log or storage: it is the vocabulary the state
  and report packages are written in.

KEY CONCEPTS IN THIS FILE (types.go):
  - Entity: the storage identity every persisted type embeds
  - Location, Carrier: the two leaf entities
  - Priority, TransportMeans: enumerations used by routes and prices

DESIGN PRINCIPLES:
  1. Values, not pointers: every mutation produces a new version of an entity
  2. Precision: weights, volumes and money use decimal.Decimal
  3. Frozen derivations: a delivery's cost and price are computed once

SEE ALSO:
  - route.go: Route, Leg and departure schedules
  - price.go: CustomerPrice and DomesticCustomerPrice
  - delivery.go: MailDelivery construction
*/
package mail

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ENTITY - Shared storage identity
// =============================================================================

// Entity is embedded by every persisted type.
type Entity struct {
	// ID is unique per entity kind and stable across versions.
	ID uint64
	// RelateEventID is the event that created or last mutated this version.
	RelateEventID uint64
	// Disabled marks a soft-deleted entity. It stays resolvable by id.
	Disabled bool
}

// Active reports whether the entity has not been soft-deleted.
func (e Entity) Active() bool { return !e.Disabled }

// =============================================================================
// LOCATION
// =============================================================================

// Location is a place mail can be sent from or to. Identified by name.
type Location struct {
	Entity
	Name          string `validate:"required,max=128"`
	International bool
}

func (l Location) String() string { return l.Name }

// =============================================================================
// CARRIER
// =============================================================================

// Carrier transports mail over routes.
type Carrier struct {
	Entity
	Name string `validate:"required,max=128"`
}

func (c Carrier) String() string { return c.Name }

// =============================================================================
// TRANSPORT MEANS
// =============================================================================

type TransportMeans string

const (
	TransportAir  TransportMeans = "Air"
	TransportLand TransportMeans = "Land"
	TransportSea  TransportMeans = "Sea"
)

func (t TransportMeans) Valid() bool {
	switch t {
	case TransportAir, TransportLand, TransportSea:
		return true
	}
	return false
}

// ParseTransportMeans accepts the canonical names case-insensitively.
func ParseTransportMeans(s string) (TransportMeans, error) {
	for _, t := range []TransportMeans{TransportAir, TransportLand, TransportSea} {
		if strings.EqualFold(s, string(t)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown transport means %q", s)
}

// =============================================================================
// PRIORITY
// =============================================================================

// Priority determines which routes a delivery may use and which price tier applies.
type Priority string

const (
	DomesticAir          Priority = "Domestic_Air"
	DomesticLand         Priority = "Domestic_Land"
	InternationalAir     Priority = "International_Air"
	InternationalSurface Priority = "International_Surface"
)

// Priorities lists every priority in display order.
var Priorities = []Priority{DomesticAir, DomesticLand, InternationalAir, InternationalSurface}

func (p Priority) Valid() bool {
	switch p {
	case DomesticAir, DomesticLand, InternationalAir, InternationalSurface:
		return true
	}
	return false
}

func (p Priority) IsDomestic() bool { return p == DomesticAir || p == DomesticLand }
func (p Priority) IsAir() bool      { return p == DomesticAir || p == InternationalAir }

// Allows reports whether a route using t can carry mail of this priority.
// Air priorities fly; the others go by land or sea.
func (p Priority) Allows(t TransportMeans) bool {
	if p.IsAir() {
		return t == TransportAir
	}
	return t == TransportLand || t == TransportSea
}

func (p Priority) String() string { return string(p) }

func ParsePriority(s string) (Priority, error) {
	for _, p := range Priorities {
		if strings.EqualFold(s, string(p)) {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown priority %q", s)
}

// =============================================================================
// HELPERS
// =============================================================================

// MustDecimal parses s and panics on malformed input. Intended for literals.
func MustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
