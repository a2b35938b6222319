package mail

import (
	"time"

	"github.com/shopspring/decimal"
)

// RouteKey is the composite unique key of a route.
type RouteKey struct {
	Start     string
	End       string
	Transport TransportMeans
	CarrierID uint64
}

// Route is a scheduled carrier service between two locations.
type Route struct {
	Entity
	Start     string         `validate:"required"`
	End       string         `validate:"required,nefield=Start"`
	Transport TransportMeans `validate:"required"`
	CarrierID uint64         `validate:"required"`

	// Cost charged by the carrier per unit of weight and volume.
	WeightCost decimal.Decimal `validate:"gte=0"`
	VolumeCost decimal.Decimal `validate:"gte=0"`

	// Duration is the transit time of one trip.
	Duration       time.Duration `validate:"gte=0"`
	// Frequency is the time between departures. Zero means the route
	// departs on demand.
	Frequency      time.Duration `validate:"gte=0"`
	// FirstDeparture anchors the departure schedule.
	FirstDeparture time.Time
}

func (r Route) Key() RouteKey {
	return RouteKey{Start: r.Start, End: r.End, Transport: r.Transport, CarrierID: r.CarrierID}
}

// Cost is what the carrier charges to move the given weight and volume.
func (r Route) Cost(weight, volume decimal.Decimal) decimal.Decimal {
	return weight.Mul(r.WeightCost).Add(volume.Mul(r.VolumeCost))
}

// NextDeparture returns the first scheduled departure at or after at.
// FirstDeparture only fixes the phase: the schedule repeats every
// Frequency in both directions.
func (r Route) NextDeparture(at time.Time) time.Time {
	if r.Frequency <= 0 || r.FirstDeparture.IsZero() {
		return at
	}
	offset := at.Sub(r.FirstDeparture) % r.Frequency
	if offset == 0 {
		return at
	}
	if offset < 0 {
		offset += r.Frequency
	}
	return at.Add(r.Frequency - offset)
}

// =============================================================================
// LEG - One route segment of a delivery, with resolved endpoints
// =============================================================================

type Leg struct {
	Route Route
	From  Location
	To    Location
}

// International reports whether either endpoint of the leg is international.
func (l Leg) International() bool {
	return l.From.International || l.To.International
}

// ShippingDuration walks the legs from submittedAt: each leg waits for its
// next departure and then takes its transit duration.
func ShippingDuration(legs []Leg, submittedAt time.Time) time.Duration {
	at := submittedAt
	for _, leg := range legs {
		at = leg.Route.NextDeparture(at).Add(leg.Route.Duration)
	}
	return at.Sub(submittedAt)
}
