/*
projection.go - Folding events into entity state

PURPOSE:
  A projection is the state of the network after applying a prefix of the
  event log, in order, starting from empty. The live State and every
  historical View are projections; they differ only in who owns them.

FOLD RULES:
  create  decode the record, stamp id and relate event id, insert
  update  replace the active row with a new version under the same id
  delete  set Disabled and move the relate event id; the row stays

  Locations are create-only. Any other op on them is a corrupt log.

  The fold never validates business rules: those ran before the event was
  appended. It only rejects events that cannot be applied at all (unknown
  entity, gap in ids, undecodable payload).

REVENUE TIMELINE:
  Every mail delivery event that moves a total appends one cumulative
  (revenue, expenditure) point. Create adds the delivery, update swaps old
  for new, delete subtracts. Kept here so reports stay a pure function of a projection.

SEE ALSO:
  - table.go: per-kind rows and key indexes
  - records.go: payload schemas
*/
package state

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/kpsmart/eventlog"
	"github.com/warp/kpsmart/mail"
)

// RevenuePoint is the cumulative revenue and expenditure after one mail
// delivery event.
type RevenuePoint struct {
	EventID     uint64
	Timestamp   time.Time
	Revenue     decimal.Decimal
	Expenditure decimal.Decimal
}

type projection struct {
	eventID uint64

	locations  *table[string, mail.Location]
	carriers   *table[string, mail.Carrier]
	routes     *table[mail.RouteKey, mail.Route]
	prices     *table[mail.PriceKey, mail.CustomerPrice]
	domestic   *table[mail.Priority, mail.DomesticCustomerPrice]
	deliveries *table[struct{}, mail.MailDelivery]

	timeline []RevenuePoint
}

func newProjection() *projection {
	p := &projection{
		locations: newTable(eventlog.KindLocation,
			func(l *mail.Location) *mail.Entity { return &l.Entity },
			func(l mail.Location) (string, bool) { return l.Name, true }),
		carriers: newTable(eventlog.KindCarrier,
			func(c *mail.Carrier) *mail.Entity { return &c.Entity },
			func(c mail.Carrier) (string, bool) { return c.Name, true }),
		routes: newTable(eventlog.KindRoute,
			func(r *mail.Route) *mail.Entity { return &r.Entity },
			func(r mail.Route) (mail.RouteKey, bool) { return r.Key(), true }),
		prices: newTable(eventlog.KindCustomerPrice,
			func(c *mail.CustomerPrice) *mail.Entity { return &c.Entity },
			func(c mail.CustomerPrice) (mail.PriceKey, bool) { return c.Key(), true }),
		domestic: newTable(eventlog.KindDomesticPrice,
			func(d *mail.DomesticCustomerPrice) *mail.Entity { return &d.Entity },
			func(d mail.DomesticCustomerPrice) (mail.Priority, bool) { return d.Priority, true }),
		deliveries: newTable(eventlog.KindMailDelivery,
			func(m *mail.MailDelivery) *mail.Entity { return &m.Entity },
			noKey[mail.MailDelivery]),
	}
	p.deliveries.clone = func(m mail.MailDelivery) mail.MailDelivery {
		m.Legs = append([]mail.Leg(nil), m.Legs...)
		return m
	}
	return p
}

// =============================================================================
// APPLY
// =============================================================================

// apply folds one event. Ids must follow on from the last applied event.
func (p *projection) apply(evt eventlog.Event) error {
	if evt.ID != p.eventID+1 {
		return fmt.Errorf("expected event %d, got %d", p.eventID+1, evt.ID)
	}

	var err error
	switch evt.Kind {
	case eventlog.KindLocation:
		err = p.applyLocation(evt)
	case eventlog.KindCarrier:
		err = applySimple(p.carriers, evt, CarrierRecord.carrier)
	case eventlog.KindRoute:
		err = applySimple(p.routes, evt, RouteRecord.route)
	case eventlog.KindCustomerPrice:
		err = applySimple(p.prices, evt, CustomerPriceRecord.customerPrice)
	case eventlog.KindDomesticPrice:
		err = applySimple(p.domestic, evt, DomesticPriceRecord.domesticPrice)
	case eventlog.KindMailDelivery:
		err = p.applyMailDelivery(evt)
	default:
		err = fmt.Errorf("unknown entity kind %q", evt.Kind)
	}
	if err != nil {
		return err
	}

	p.eventID = evt.ID
	return nil
}

func (p *projection) applyLocation(evt eventlog.Event) error {
	if evt.Op != eventlog.OpCreate {
		return fmt.Errorf("locations are immutable: %s of location %d", evt.Op, evt.EntityID)
	}
	rec, err := decodePayload[LocationRecord](evt.Payload)
	if err != nil {
		return err
	}
	return p.locations.create(evt.EntityID, evt.ID, rec.location(mail.Entity{}))
}

// applySimple folds kinds whose record maps directly onto the entity.
func applySimple[K comparable, T, R any](t *table[K, T], evt eventlog.Event, build func(R, mail.Entity) T) error {
	switch evt.Op {
	case eventlog.OpCreate, eventlog.OpUpdate:
		rec, err := decodePayload[R](evt.Payload)
		if err != nil {
			return err
		}
		v := build(rec, mail.Entity{})
		if evt.Op == eventlog.OpCreate {
			return t.create(evt.EntityID, evt.ID, v)
		}
		_, err = t.update(evt.EntityID, evt.ID, v)
		return err
	case eventlog.OpDelete:
		_, err := t.remove(evt.EntityID, evt.ID)
		return err
	}
	return fmt.Errorf("unknown op %q", evt.Op)
}

func (p *projection) applyMailDelivery(evt eventlog.Event) error {
	revenueBefore, expenditureBefore := p.totals()
	revenue, expenditure := revenueBefore, expenditureBefore

	switch evt.Op {
	case eventlog.OpCreate, eventlog.OpUpdate:
		rec, err := decodePayload[MailDeliveryRecord](evt.Payload)
		if err != nil {
			return err
		}
		legs, err := p.resolveLegs(rec.RouteIDs)
		if err != nil {
			return err
		}
		m := rec.mailDelivery(mail.Entity{}, legs)

		if evt.Op == eventlog.OpCreate {
			if err := p.deliveries.create(evt.EntityID, evt.ID, m); err != nil {
				return err
			}
		} else {
			old, err := p.deliveries.update(evt.EntityID, evt.ID, m)
			if err != nil {
				return err
			}
			revenue, expenditure = revenue.Sub(old.Price), expenditure.Sub(old.Cost)
		}
		revenue, expenditure = revenue.Add(m.Price), expenditure.Add(m.Cost)
	case eventlog.OpDelete:
		old, err := p.deliveries.remove(evt.EntityID, evt.ID)
		if err != nil {
			return err
		}
		revenue, expenditure = revenue.Sub(old.Price), expenditure.Sub(old.Cost)
	default:
		return fmt.Errorf("unknown op %q", evt.Op)
	}

	// Only events that move a total are points on the timeline.
	if revenue.Equal(revenueBefore) && expenditure.Equal(expenditureBefore) {
		return nil
	}
	p.timeline = append(p.timeline, RevenuePoint{
		EventID:     evt.ID,
		Timestamp:   evt.Timestamp,
		Revenue:     revenue,
		Expenditure: expenditure,
	})
	return nil
}

// resolveLegs looks routes up by id, deleted ones included: a delivery
// keeps the routes it was sent over.
func (p *projection) resolveLegs(routeIDs []uint64) ([]mail.Leg, error) {
	legs := make([]mail.Leg, 0, len(routeIDs))
	for _, id := range routeIDs {
		route, ok := p.routes.get(id)
		if !ok {
			return nil, fmt.Errorf("route %d does not exist", id)
		}
		leg, err := p.leg(route)
		if err != nil {
			return nil, err
		}
		legs = append(legs, leg)
	}
	return legs, nil
}

func (p *projection) leg(route mail.Route) (mail.Leg, error) {
	from, ok := p.locations.lookup(route.Start)
	if !ok {
		return mail.Leg{}, fmt.Errorf("route %d: location %q does not exist", route.ID, route.Start)
	}
	to, ok := p.locations.lookup(route.End)
	if !ok {
		return mail.Leg{}, fmt.Errorf("route %d: location %q does not exist", route.ID, route.End)
	}
	return mail.Leg{Route: route, From: from, To: to}, nil
}

func (p *projection) totals() (revenue, expenditure decimal.Decimal) {
	if n := len(p.timeline); n > 0 {
		return p.timeline[n-1].Revenue, p.timeline[n-1].Expenditure
	}
	return decimal.Zero, decimal.Zero
}

// =============================================================================
// QUERIES - The ReadOnly surface, unlocked
// =============================================================================

func (p *projection) EventID() uint64        { return p.eventID }
func (p *projection) NumberOfEvents() uint64 { return p.eventID }

func (p *projection) Location(name string) (mail.Location, bool) { return p.locations.lookup(name) }
func (p *projection) LocationByID(id uint64) (mail.Location, bool) {
	return p.locations.get(id)
}
func (p *projection) Locations() []mail.Location { return p.locations.all() }

func (p *projection) Carrier(id uint64) (mail.Carrier, bool) { return p.carriers.get(id) }
func (p *projection) CarrierByName(name string) (mail.Carrier, bool) {
	return p.carriers.lookup(name)
}
func (p *projection) Carriers() []mail.Carrier { return p.carriers.all() }

func (p *projection) Route(id uint64) (mail.Route, bool) { return p.routes.get(id) }
func (p *projection) RouteByKey(start, end string, transport mail.TransportMeans, carrierID uint64) (mail.Route, bool) {
	return p.routes.lookup(mail.RouteKey{Start: start, End: end, Transport: transport, CarrierID: carrierID})
}
func (p *projection) Routes() []mail.Route { return p.routes.all() }

// RoutesForPriority returns the active routes mail of priority pr may use.
func (p *projection) RoutesForPriority(pr mail.Priority) []mail.Route {
	var out []mail.Route
	for _, r := range p.routes.all() {
		if p.routeAllows(r, pr) {
			out = append(out, r)
		}
	}
	return out
}

func (p *projection) RoutesBetween(start, end string, pr mail.Priority) []mail.Route {
	var out []mail.Route
	for _, r := range p.RoutesForPriority(pr) {
		if r.Start == start && r.End == end {
			out = append(out, r)
		}
	}
	return out
}

// RoutesConnectedTo returns the active routes starting or ending at name.
func (p *projection) RoutesConnectedTo(name string) []mail.Route {
	var out []mail.Route
	for _, r := range p.routes.all() {
		if r.Start == name || r.End == name {
			out = append(out, r)
		}
	}
	return out
}

func (p *projection) routeAllows(r mail.Route, pr mail.Priority) bool {
	if !pr.Allows(r.Transport) {
		return false
	}
	if !pr.IsDomestic() {
		return true
	}
	return p.isDomestic(r.Start) && p.isDomestic(r.End)
}

func (p *projection) isDomestic(name string) bool {
	l, ok := p.locations.lookup(name)
	return ok && !l.International
}

func (p *projection) CustomerPrice(id uint64) (mail.CustomerPrice, bool) { return p.prices.get(id) }
func (p *projection) CustomerPriceByKey(start, end string, pr mail.Priority) (mail.CustomerPrice, bool) {
	return p.prices.lookup(mail.PriceKey{Start: start, End: end, Priority: pr})
}
func (p *projection) CustomerPrices() []mail.CustomerPrice { return p.prices.all() }

func (p *projection) DomesticPrice(pr mail.Priority) (mail.DomesticCustomerPrice, bool) {
	return p.domestic.lookup(pr)
}
func (p *projection) DomesticPrices() []mail.DomesticCustomerPrice { return p.domestic.all() }

// Price resolves the price charged for mail from start to end:
//  1. the domestic price of pr, when both ends are domestic and pr is domestic
//  2. the customer price for exactly (start, end, pr)
//  3. the customer price for (any origin, end, pr)
func (p *projection) Price(start, end string, pr mail.Priority) (mail.Price, bool) {
	if pr.IsDomestic() && p.isDomestic(start) && p.isDomestic(end) {
		if d, ok := p.domestic.lookup(pr); ok {
			return d, true
		}
	}
	if c, ok := p.CustomerPriceByKey(start, end, pr); ok {
		return c, true
	}
	if c, ok := p.CustomerPriceByKey("", end, pr); ok {
		return c, true
	}
	return nil, false
}

func (p *projection) MailDelivery(id uint64) (mail.MailDelivery, bool) { return p.deliveries.get(id) }
func (p *projection) MailDeliveries() []mail.MailDelivery            { return p.deliveries.all() }

func (p *projection) RevenueTimeline() []RevenuePoint {
	return append([]RevenuePoint(nil), p.timeline...)
}
