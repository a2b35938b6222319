/*
Package scenario seeds a state with demo networks.

PURPOSE:

	Provides pre-built networks that populate an empty event log with
	realistic data for demos and manual testing of the reports. Each
	scenario goes through the same mutations an operator would use, so
	every entity it creates is an ordinary event in the log.

AVAILABLE SCENARIOS:

	wellington-rome: One international air route and a single delivery
	nz-network:      Domestic and international routes, multi-leg mail,
	                 a price change and a deleted delivery

USAGE:

	if err := scenario.Load(ctx, st, "nz-network"); err != nil {
	    return err
	}

ADDING NEW SCENARIOS:
 1. Add an entry to 'scenarios' with ID, name, description
 2. Write the loader: func(l *loader)

NOTE:

	The log is append-only, so a scenario can only be loaded into a state
	with no events.
*/
package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/warp/kpsmart/mail"
	"github.com/warp/kpsmart/state"
)

var (
	ErrUnknown  = errors.New("unknown scenario")
	ErrNotEmpty = errors.New("state already has events")
)

type Scenario struct {
	ID          string
	Name        string
	Description string
	load        func(l *loader)
}

var scenarios = []Scenario{
	{
		ID:          "wellington-rome",
		Name:        "Wellington to Rome",
		Description: "One international air route carrying a single delivery",
		load:        loadWellingtonRome,
	},
	{
		ID:          "nz-network",
		Name:        "New Zealand Network",
		Description: "Domestic land and air routes, a Sydney connection, multi-leg mail and a price change",
		load:        loadNZNetwork,
	},
}

// List returns the available scenarios.
func List() []Scenario {
	return append([]Scenario(nil), scenarios...)
}

// Load seeds s with the scenario named id.
func Load(ctx context.Context, s *state.State, id string) error {
	sc, ok := lo.Find(scenarios, func(sc Scenario) bool { return sc.ID == id })
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknown, id)
	}
	if n := s.NumberOfEvents(); n > 0 {
		return fmt.Errorf("%w: %d", ErrNotEmpty, n)
	}

	l := &loader{ctx: ctx, s: s}
	sc.load(l)
	if l.err != nil {
		return fmt.Errorf("load scenario %s: %w", id, l.err)
	}
	return nil
}

// loader runs mutations until the first failure; later calls are no-ops.
type loader struct {
	ctx context.Context
	s   *state.State
	err error
}

func (l *loader) location(name string, international bool) {
	if l.err != nil {
		return
	}
	_, l.err = l.s.SaveLocation(l.ctx, mail.Location{Name: name, International: international})
}

func (l *loader) carrier(name string) uint64 {
	if l.err != nil {
		return 0
	}
	c, err := l.s.SaveCarrier(l.ctx, mail.Carrier{Name: name})
	l.err = err
	return c.ID
}

func (l *loader) route(r mail.Route) uint64 {
	if l.err != nil {
		return 0
	}
	saved, err := l.s.SaveRoute(l.ctx, r)
	l.err = err
	return saved.ID
}

func (l *loader) price(cp mail.CustomerPrice) {
	if l.err != nil {
		return
	}
	_, l.err = l.s.SaveCustomerPrice(l.ctx, cp)
}

func (l *loader) domesticPrice(dp mail.DomesticCustomerPrice) uint64 {
	if l.err != nil {
		return 0
	}
	saved, err := l.s.SaveDomesticPrice(l.ctx, dp)
	l.err = err
	return saved.ID
}

func (l *loader) mail(req state.MailRequest) uint64 {
	if l.err != nil {
		return 0
	}
	m, err := l.s.SubmitMail(l.ctx, req)
	l.err = err
	return m.ID
}

func (l *loader) deleteMail(id uint64) {
	if l.err != nil {
		return
	}
	l.err = l.s.DeleteMailDelivery(l.ctx, id)
}

func d(s string) decimal.Decimal { return mail.MustDecimal(s) }

func day(month time.Month, dayOfMonth int) time.Time {
	return time.Date(2025, month, dayOfMonth, 9, 0, 0, 0, time.UTC)
}

func loadWellingtonRome(l *loader) {
	l.location("Wellington", false)
	l.location("Rome", true)
	carrier := l.carrier("CarrierX")
	route := l.route(mail.Route{
		Start: "Wellington", End: "Rome", Transport: mail.TransportAir, CarrierID: carrier,
		WeightCost: d("2"), Duration: 30 * time.Hour, Frequency: 24 * time.Hour,
	})
	l.price(mail.CustomerPrice{
		Start: "Wellington", End: "Rome", Priority: mail.InternationalAir,
		WeightPrice: d("5"), VolumePrice: d("1"),
	})
	l.mail(state.MailRequest{
		RouteIDs: []uint64{route}, Priority: mail.InternationalAir,
		Weight: d("10"), Volume: d("2"), SubmittedAt: day(time.March, 3),
	})
}

func loadNZNetwork(l *loader) {
	l.location("Wellington", false)
	l.location("Auckland", false)
	l.location("Christchurch", false)
	l.location("Sydney", true)

	post := l.carrier("NZ Post")
	airNZ := l.carrier("Air New Zealand")

	chchWlg := l.route(mail.Route{
		Start: "Christchurch", End: "Wellington", Transport: mail.TransportLand, CarrierID: post,
		WeightCost: d("1"), VolumeCost: d("0.5"), Duration: 8 * time.Hour, Frequency: 24 * time.Hour,
	})
	wlgAklLand := l.route(mail.Route{
		Start: "Wellington", End: "Auckland", Transport: mail.TransportLand, CarrierID: post,
		WeightCost: d("1.5"), VolumeCost: d("0.5"), Duration: 10 * time.Hour, Frequency: 24 * time.Hour,
	})
	wlgAklAir := l.route(mail.Route{
		Start: "Wellington", End: "Auckland", Transport: mail.TransportAir, CarrierID: airNZ,
		WeightCost: d("3"), VolumeCost: d("1"), Duration: time.Hour, Frequency: 6 * time.Hour,
	})
	aklSyd := l.route(mail.Route{
		Start: "Auckland", End: "Sydney", Transport: mail.TransportAir, CarrierID: airNZ,
		WeightCost: d("4"), VolumeCost: d("2"), Duration: 3 * time.Hour, Frequency: 12 * time.Hour,
	})

	land := l.domesticPrice(mail.DomesticCustomerPrice{Priority: mail.DomesticLand, WeightPrice: d("3"), VolumePrice: d("1")})
	l.domesticPrice(mail.DomesticCustomerPrice{Priority: mail.DomesticAir, WeightPrice: d("6"), VolumePrice: d("2")})
	l.price(mail.CustomerPrice{End: "Sydney", Priority: mail.InternationalAir, WeightPrice: d("12"), VolumePrice: d("4")})

	l.mail(state.MailRequest{
		RouteIDs: []uint64{chchWlg, wlgAklLand}, Priority: mail.DomesticLand,
		Weight: d("5"), Volume: d("1"), SubmittedAt: day(time.January, 14),
	})
	express := l.mail(state.MailRequest{
		RouteIDs: []uint64{wlgAklAir}, Priority: mail.DomesticAir,
		Weight: d("2"), Volume: d("1"), SubmittedAt: day(time.February, 2),
	})
	l.mail(state.MailRequest{
		RouteIDs: []uint64{wlgAklAir, aklSyd}, Priority: mail.InternationalAir,
		Weight: d("3"), Volume: d("1"), SubmittedAt: day(time.February, 20),
	})

	l.domesticPrice(mail.DomesticCustomerPrice{
		Entity: mail.Entity{ID: land}, Priority: mail.DomesticLand, WeightPrice: d("4"), VolumePrice: d("1"),
	})
	l.mail(state.MailRequest{
		RouteIDs: []uint64{chchWlg, wlgAklLand}, Priority: mail.DomesticLand,
		Weight: d("5"), Volume: d("1"), SubmittedAt: day(time.March, 5),
	})
	l.deleteMail(express)
}
