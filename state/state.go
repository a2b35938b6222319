/*
Package state is the state manipulator of the mail network.

PURPOSE:
  State is the live projection of the event log. Every mutation goes
  through it: it checks the request against the current state, appends one
  event, and folds that event in. Reads see either the live State or a
  View rebuilt as of an earlier event.

MUTATION PIPELINE (under the write lock):
  1. Validate fields (validator tags on the mail types)
  2. Check referential integrity and unique keys against live state
  3. Append the event to the log
  4. Apply the event to the live projection

  A mutation that fails in 1 or 2 appends nothing. A log write failure in
  3 leaves the projection untouched. The State must be the log's only
  writer: step 4 expects the event to follow the last one applied. If
  step 4 fails the State refuses every later mutation with a ReplayError
  until it is reopened from the log.

SAVE SEMANTICS:
  Save is create-or-update. An entity whose id is known (and active) is
  updated under the same id; id 0 or an unknown id creates a new entity
  with the next id for its kind. Updating a soft-deleted entity is
  NotFound.

CONCURRENCY:
  Reads take a read lock. AtEvent replays from the log without touching
  the live projection, so it never blocks writers.

SEE ALSO:
  - projection.go: the fold
  - snapshot.go: historical views
  - errors.go: error taxonomy
*/
package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/kpsmart/eventlog"
	"github.com/warp/kpsmart/mail"
)

// Log is what State needs from the event log.
type Log interface {
	eventlog.Reader
	Append(ctx context.Context, evt eventlog.Event) (eventlog.Event, error)
}

// State is the live, mutable projection of the event log.
type State struct {
	mu     sync.RWMutex
	log    Log
	p      *projection
	logger *slog.Logger
	now    func() time.Time
	// broken is set when an appended event could not be applied. The log
	// is then ahead of the projection and no further mutation is accepted.
	broken *ReplayError
}

type Option func(*State)

func WithLogger(logger *slog.Logger) Option {
	return func(s *State) { s.logger = logger }
}

// WithNow sets the clock used for mail submitted without a date.
func WithNow(now func() time.Time) Option {
	return func(s *State) { s.now = now }
}

// Open rebuilds the live state by replaying the whole log.
func Open(ctx context.Context, log Log, opts ...Option) (*State, error) {
	s := &State{
		log:    log,
		logger: slog.New(slog.DiscardHandler),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}

	p, err := replay(ctx, log, log.NumberOfEvents())
	if err != nil {
		s.logger.Error("rebuild state from log", "error", err)
		return nil, err
	}
	s.p = p
	s.logger.Info("state rebuilt", "events", p.eventID)
	return s, nil
}

// =============================================================================
// CORRELATION
// =============================================================================

type correlationKey struct{}

// WithCorrelationID tags the events appended under ctx with id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

func correlationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// =============================================================================
// COMMIT - Append then apply
// =============================================================================

func (s *State) commit(ctx context.Context, op eventlog.Op, kind eventlog.Kind, id uint64, rec any) (eventlog.Event, error) {
	if s.broken != nil {
		return eventlog.Event{}, fmt.Errorf("%s %s %d: state is behind its log, reopen to recover: %w", op, kind, id, s.broken)
	}
	evt := eventlog.Event{Op: op, Kind: kind, EntityID: id, CorrelationID: correlationID(ctx)}
	if rec != nil {
		payload, err := encodePayload(rec)
		if err != nil {
			return eventlog.Event{}, err
		}
		evt.Payload = payload
	}

	stored, err := s.log.Append(ctx, evt)
	if err != nil {
		return eventlog.Event{}, fmt.Errorf("%s %s %d: %w", op, kind, id, err)
	}
	if err := s.p.apply(stored); err != nil {
		s.logger.Error("apply appended event", "event_id", stored.ID, "kind", kind, "op", op, "error", err)
		s.broken = &ReplayError{EventID: stored.ID, Err: err}
		return eventlog.Event{}, s.broken
	}

	s.logger.Debug("state mutated", "kind", kind, "op", op, "entity_id", id, "event_id", stored.ID)
	return stored, nil
}

// target decides between create and update for an entity with the given
// id. It returns the id to use and the op.
func target[K comparable, T any](t *table[K, T], id uint64) (uint64, eventlog.Op, error) {
	if id == 0 {
		return t.nextID(), eventlog.OpCreate, nil
	}
	row, ok := t.rows[id]
	if !ok {
		return t.nextID(), eventlog.OpCreate, nil
	}
	if t.meta(row).Disabled {
		return 0, "", &NotFoundError{Kind: t.kind, ID: id}
	}
	return id, eventlog.OpUpdate, nil
}

// checkKey fails with a conflict if an active entity other than id holds k.
func checkKey[K comparable, T any](t *table[K, T], id uint64, k K, display string) error {
	if holder, ok := t.holder(k); ok && holder != id {
		return &ConflictError{Kind: t.kind, Key: display, ExistingID: holder}
	}
	return nil
}

func (s *State) requireLocation(kind eventlog.Kind, name string) error {
	if _, ok := s.p.locations.lookup(name); !ok {
		return &IntegrityError{Kind: kind, Ref: "location " + name, Reason: "does not exist"}
	}
	return nil
}

// =============================================================================
// LOCATIONS
// =============================================================================

// SaveLocation creates a location. Locations are immutable: saving a name
// that already exists is a conflict.
func (s *State) SaveLocation(ctx context.Context, l mail.Location) (mail.Location, error) {
	if err := validateEntity(l); err != nil {
		return mail.Location{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := checkKey(s.p.locations, 0, l.Name, l.Name); err != nil {
		return mail.Location{}, err
	}
	id := s.p.locations.nextID()
	if _, err := s.commit(ctx, eventlog.OpCreate, eventlog.KindLocation, id, locationRecord(l)); err != nil {
		return mail.Location{}, err
	}
	saved, _ := s.p.locations.get(id)
	return saved, nil
}

// =============================================================================
// CARRIERS
// =============================================================================

func (s *State) SaveCarrier(ctx context.Context, c mail.Carrier) (mail.Carrier, error) {
	if err := validateEntity(c); err != nil {
		return mail.Carrier{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, op, err := target(s.p.carriers, c.ID)
	if err != nil {
		return mail.Carrier{}, err
	}
	if err := checkKey(s.p.carriers, id, c.Name, c.Name); err != nil {
		return mail.Carrier{}, err
	}
	if _, err := s.commit(ctx, op, eventlog.KindCarrier, id, carrierRecord(c)); err != nil {
		return mail.Carrier{}, err
	}
	saved, _ := s.p.carriers.get(id)
	return saved, nil
}

// DeleteCarrier soft-deletes a carrier. It fails while an active route
// still uses the carrier.
func (s *State) DeleteCarrier(ctx context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.p.carriers.active(id); !ok {
		return &NotFoundError{Kind: eventlog.KindCarrier, ID: id}
	}
	for _, r := range s.p.routes.all() {
		if r.CarrierID == id {
			return &IntegrityError{
				Kind:   eventlog.KindCarrier,
				Ref:    fmt.Sprintf("route %d", r.ID),
				Reason: "carrier is still in use",
			}
		}
	}
	_, err := s.commit(ctx, eventlog.OpDelete, eventlog.KindCarrier, id, nil)
	return err
}

// =============================================================================
// ROUTES
// =============================================================================

func (s *State) SaveRoute(ctx context.Context, r mail.Route) (mail.Route, error) {
	if err := validateEntity(r); err != nil {
		return mail.Route{}, err
	}
	if !r.Transport.Valid() {
		return mail.Route{}, fmt.Errorf("%w: unknown transport %q", ErrInvalid, r.Transport)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, op, err := target(s.p.routes, r.ID)
	if err != nil {
		return mail.Route{}, err
	}
	if err := s.requireLocation(eventlog.KindRoute, r.Start); err != nil {
		return mail.Route{}, err
	}
	if err := s.requireLocation(eventlog.KindRoute, r.End); err != nil {
		return mail.Route{}, err
	}
	if _, ok := s.p.carriers.active(r.CarrierID); !ok {
		return mail.Route{}, &IntegrityError{
			Kind:   eventlog.KindRoute,
			Ref:    fmt.Sprintf("carrier %d", r.CarrierID),
			Reason: "does not exist",
		}
	}
	display := fmt.Sprintf("%s->%s %s carrier %d", r.Start, r.End, r.Transport, r.CarrierID)
	if err := checkKey(s.p.routes, id, r.Key(), display); err != nil {
		return mail.Route{}, err
	}

	if _, err := s.commit(ctx, op, eventlog.KindRoute, id, routeRecord(r)); err != nil {
		return mail.Route{}, err
	}
	saved, _ := s.p.routes.get(id)
	return saved, nil
}

// DeleteRoute soft-deletes a route. Deliveries already sent over it keep
// their legs.
func (s *State) DeleteRoute(ctx context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.p.routes.active(id); !ok {
		return &NotFoundError{Kind: eventlog.KindRoute, ID: id}
	}
	_, err := s.commit(ctx, eventlog.OpDelete, eventlog.KindRoute, id, nil)
	return err
}

// =============================================================================
// PRICES
// =============================================================================

func (s *State) SaveCustomerPrice(ctx context.Context, cp mail.CustomerPrice) (mail.CustomerPrice, error) {
	if err := validateEntity(cp); err != nil {
		return mail.CustomerPrice{}, err
	}
	if !cp.Priority.Valid() {
		return mail.CustomerPrice{}, fmt.Errorf("%w: unknown priority %q", ErrInvalid, cp.Priority)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, op, err := target(s.p.prices, cp.ID)
	if err != nil {
		return mail.CustomerPrice{}, err
	}
	if cp.Start != "" {
		if err := s.requireLocation(eventlog.KindCustomerPrice, cp.Start); err != nil {
			return mail.CustomerPrice{}, err
		}
	}
	if err := s.requireLocation(eventlog.KindCustomerPrice, cp.End); err != nil {
		return mail.CustomerPrice{}, err
	}
	display := fmt.Sprintf("%s->%s %s", cp.Start, cp.End, cp.Priority)
	if err := checkKey(s.p.prices, id, cp.Key(), display); err != nil {
		return mail.CustomerPrice{}, err
	}

	if _, err := s.commit(ctx, op, eventlog.KindCustomerPrice, id, customerPriceRecord(cp)); err != nil {
		return mail.CustomerPrice{}, err
	}
	saved, _ := s.p.prices.get(id)
	return saved, nil
}

func (s *State) DeleteCustomerPrice(ctx context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.p.prices.active(id); !ok {
		return &NotFoundError{Kind: eventlog.KindCustomerPrice, ID: id}
	}
	_, err := s.commit(ctx, eventlog.OpDelete, eventlog.KindCustomerPrice, id, nil)
	return err
}

// SaveDomesticPrice sets the price for one domestic priority. There is at
// most one active domestic price per priority.
func (s *State) SaveDomesticPrice(ctx context.Context, dp mail.DomesticCustomerPrice) (mail.DomesticCustomerPrice, error) {
	if err := validateEntity(dp); err != nil {
		return mail.DomesticCustomerPrice{}, err
	}
	if !dp.Priority.IsDomestic() {
		return mail.DomesticCustomerPrice{}, fmt.Errorf("%w: %s is not a domestic priority", ErrInvalid, dp.Priority)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, op, err := target(s.p.domestic, dp.ID)
	if err != nil {
		return mail.DomesticCustomerPrice{}, err
	}
	if err := checkKey(s.p.domestic, id, dp.Priority, dp.Priority.String()); err != nil {
		return mail.DomesticCustomerPrice{}, err
	}

	if _, err := s.commit(ctx, op, eventlog.KindDomesticPrice, id, domesticPriceRecord(dp)); err != nil {
		return mail.DomesticCustomerPrice{}, err
	}
	saved, _ := s.p.domestic.get(id)
	return saved, nil
}

// =============================================================================
// MAIL
// =============================================================================

// MailRequest asks for mail to be sent over the given routes, in order.
// A non-zero ID of an active delivery replaces that delivery.
type MailRequest struct {
	ID       uint64
	RouteIDs []uint64        `validate:"required,min=1"`
	Priority mail.Priority   `validate:"required"`
	Weight   decimal.Decimal `validate:"gt=0"`
	Volume   decimal.Decimal `validate:"gte=0"`
	// SubmittedAt defaults to now.
	SubmittedAt time.Time
}

// SubmitMail records a delivery. Cost, price and shipping duration are
// computed from the routes and prices current at submission and are never
// re-derived afterwards.
func (s *State) SubmitMail(ctx context.Context, req MailRequest) (mail.MailDelivery, error) {
	if err := validateEntity(req); err != nil {
		return mail.MailDelivery{}, err
	}
	if !req.Priority.Valid() {
		return mail.MailDelivery{}, fmt.Errorf("%w: unknown priority %q", ErrInvalid, req.Priority)
	}
	submittedAt := req.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, op, err := target(s.p.deliveries, req.ID)
	if err != nil {
		return mail.MailDelivery{}, err
	}
	legs, err := s.mailLegs(req)
	if err != nil {
		return mail.MailDelivery{}, err
	}

	m, err := mail.NewMailDelivery(legs, req.Priority, req.Weight, req.Volume, submittedAt.UTC(), s.p)
	switch {
	case errors.Is(err, mail.ErrBrokenChain), errors.Is(err, mail.ErrNoPrice):
		return mail.MailDelivery{}, &IntegrityError{Kind: eventlog.KindMailDelivery, Ref: "routes", Reason: err.Error()}
	case err != nil:
		return mail.MailDelivery{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if _, err := s.commit(ctx, op, eventlog.KindMailDelivery, id, mailDeliveryRecord(m)); err != nil {
		return mail.MailDelivery{}, err
	}
	saved, _ := s.p.deliveries.get(id)
	return saved, nil
}

// mailLegs resolves the requested routes. Each must be active and usable
// at the requested priority.
func (s *State) mailLegs(req MailRequest) ([]mail.Leg, error) {
	legs := make([]mail.Leg, 0, len(req.RouteIDs))
	for _, routeID := range req.RouteIDs {
		ref := fmt.Sprintf("route %d", routeID)
		route, ok := s.p.routes.active(routeID)
		if !ok {
			return nil, &IntegrityError{Kind: eventlog.KindMailDelivery, Ref: ref, Reason: "does not exist"}
		}
		if !s.p.routeAllows(route, req.Priority) {
			return nil, &IntegrityError{
				Kind:   eventlog.KindMailDelivery,
				Ref:    ref,
				Reason: fmt.Sprintf("%s route cannot carry %s mail", route.Transport, req.Priority),
			}
		}
		leg, err := s.p.leg(route)
		if err != nil {
			return nil, &IntegrityError{Kind: eventlog.KindMailDelivery, Ref: ref, Reason: err.Error()}
		}
		legs = append(legs, leg)
	}
	return legs, nil
}

func (s *State) DeleteMailDelivery(ctx context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.p.deliveries.active(id); !ok {
		return &NotFoundError{Kind: eventlog.KindMailDelivery, ID: id}
	}
	_, err := s.commit(ctx, eventlog.OpDelete, eventlog.KindMailDelivery, id, nil)
	return err
}

// =============================================================================
// READS - ReadOnly over the live projection
// =============================================================================

func read[V any](s *State, fn func(*projection) V) V {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.p)
}

func lookup[V any](s *State, fn func(*projection) (V, bool)) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.p)
}

func (s *State) EventID() uint64 { return read(s, (*projection).EventID) }

func (s *State) NumberOfEvents() uint64 { return read(s, (*projection).NumberOfEvents) }

func (s *State) Location(name string) (mail.Location, bool) {
	return lookup(s, func(p *projection) (mail.Location, bool) { return p.Location(name) })
}

func (s *State) LocationByID(id uint64) (mail.Location, bool) {
	return lookup(s, func(p *projection) (mail.Location, bool) { return p.LocationByID(id) })
}

func (s *State) Locations() []mail.Location { return read(s, (*projection).Locations) }

func (s *State) Carrier(id uint64) (mail.Carrier, bool) {
	return lookup(s, func(p *projection) (mail.Carrier, bool) { return p.Carrier(id) })
}

func (s *State) CarrierByName(name string) (mail.Carrier, bool) {
	return lookup(s, func(p *projection) (mail.Carrier, bool) { return p.CarrierByName(name) })
}

func (s *State) Carriers() []mail.Carrier { return read(s, (*projection).Carriers) }

func (s *State) Route(id uint64) (mail.Route, bool) {
	return lookup(s, func(p *projection) (mail.Route, bool) { return p.Route(id) })
}

func (s *State) RouteByKey(start, end string, transport mail.TransportMeans, carrierID uint64) (mail.Route, bool) {
	return lookup(s, func(p *projection) (mail.Route, bool) {
		return p.RouteByKey(start, end, transport, carrierID)
	})
}

func (s *State) Routes() []mail.Route { return read(s, (*projection).Routes) }

func (s *State) RoutesForPriority(pr mail.Priority) []mail.Route {
	return read(s, func(p *projection) []mail.Route { return p.RoutesForPriority(pr) })
}

func (s *State) RoutesBetween(start, end string, pr mail.Priority) []mail.Route {
	return read(s, func(p *projection) []mail.Route { return p.RoutesBetween(start, end, pr) })
}

func (s *State) RoutesConnectedTo(name string) []mail.Route {
	return read(s, func(p *projection) []mail.Route { return p.RoutesConnectedTo(name) })
}

func (s *State) CustomerPrice(id uint64) (mail.CustomerPrice, bool) {
	return lookup(s, func(p *projection) (mail.CustomerPrice, bool) { return p.CustomerPrice(id) })
}

func (s *State) CustomerPriceByKey(start, end string, pr mail.Priority) (mail.CustomerPrice, bool) {
	return lookup(s, func(p *projection) (mail.CustomerPrice, bool) {
		return p.CustomerPriceByKey(start, end, pr)
	})
}

func (s *State) CustomerPrices() []mail.CustomerPrice { return read(s, (*projection).CustomerPrices) }

func (s *State) DomesticPrice(pr mail.Priority) (mail.DomesticCustomerPrice, bool) {
	return lookup(s, func(p *projection) (mail.DomesticCustomerPrice, bool) { return p.DomesticPrice(pr) })
}

func (s *State) DomesticPrices() []mail.DomesticCustomerPrice {
	return read(s, (*projection).DomesticPrices)
}

func (s *State) Price(start, end string, pr mail.Priority) (mail.Price, bool) {
	return lookup(s, func(p *projection) (mail.Price, bool) { return p.Price(start, end, pr) })
}

func (s *State) MailDelivery(id uint64) (mail.MailDelivery, bool) {
	return lookup(s, func(p *projection) (mail.MailDelivery, bool) { return p.MailDelivery(id) })
}

func (s *State) MailDeliveries() []mail.MailDelivery { return read(s, (*projection).MailDeliveries) }

func (s *State) RevenueTimeline() []RevenuePoint { return read(s, (*projection).RevenueTimeline) }
