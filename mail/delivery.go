package mail

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNoLegs is returned when a delivery has no route.
	ErrNoLegs = errors.New("delivery has no route legs")

	// ErrBrokenChain is returned when consecutive legs do not connect.
	ErrBrokenChain = errors.New("route legs do not connect")

	// ErrNoPrice is returned when no customer price covers a delivery.
	ErrNoPrice = errors.New("no customer price for delivery")
)

// Pricer looks up the customer price for an overall journey.
type Pricer interface {
	Price(start, end string, priority Priority) (Price, bool)
}

// MailDelivery is one item of mail sent over one or more legs.
//
// ShippingDuration, Cost and Price are computed once by NewMailDelivery
// from the routes and prices current at submission, and never re-derived.
type MailDelivery struct {
	Entity
	Legs             []Leg
	Priority         Priority
	Weight           decimal.Decimal
	Volume           decimal.Decimal
	SubmittedAt      time.Time
	ShippingDuration time.Duration
	Cost             decimal.Decimal
	Price            decimal.Decimal
}

// NewMailDelivery validates the leg chain and computes the derived fields.
func NewMailDelivery(legs []Leg, priority Priority, weight, volume decimal.Decimal, submittedAt time.Time, pricer Pricer) (MailDelivery, error) {
	if len(legs) == 0 {
		return MailDelivery{}, ErrNoLegs
	}
	for i := 1; i < len(legs); i++ {
		if legs[i-1].Route.End != legs[i].Route.Start {
			return MailDelivery{}, fmt.Errorf("%w: leg %d ends at %s, leg %d starts at %s",
				ErrBrokenChain, i-1, legs[i-1].Route.End, i, legs[i].Route.Start)
		}
	}

	m := MailDelivery{
		Legs:        append([]Leg(nil), legs...),
		Priority:    priority,
		Weight:      weight,
		Volume:      volume,
		SubmittedAt: submittedAt,
	}
	m.ShippingDuration = ShippingDuration(m.Legs, submittedAt)

	cost := decimal.Zero
	for _, leg := range m.Legs {
		cost = cost.Add(leg.Route.Cost(weight, volume))
	}
	m.Cost = cost

	price, ok := pricer.Price(m.Start(), m.End(), priority)
	if !ok {
		return MailDelivery{}, fmt.Errorf("%w: %s -> %s (%s)", ErrNoPrice, m.Start(), m.End(), priority)
	}
	m.Price = price.Cost(weight, volume)
	return m, nil
}

// Start is the origin of the first leg.
func (m MailDelivery) Start() string {
	if len(m.Legs) == 0 {
		return ""
	}
	return m.Legs[0].Route.Start
}

// End is the destination of the last leg.
func (m MailDelivery) End() string {
	if len(m.Legs) == 0 {
		return ""
	}
	return m.Legs[len(m.Legs)-1].Route.End
}

// International reports whether every leg of the delivery is international.
func (m MailDelivery) International() bool {
	if len(m.Legs) == 0 {
		return false
	}
	for _, leg := range m.Legs {
		if !leg.International() {
			return false
		}
	}
	return true
}

// RouteIDs returns the route id of each leg in order.
func (m MailDelivery) RouteIDs() []uint64 {
	ids := make([]uint64, len(m.Legs))
	for i, leg := range m.Legs {
		ids[i] = leg.Route.ID
	}
	return ids
}
