package report

import (
	"cmp"
	"slices"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/warp/kpsmart/mail"
)

// =============================================================================
// DONUT SLICES
// =============================================================================

const (
	Domestic      = "Domestic"
	International = "International"
)

// Slice is one segment of a stacked chart. Y is the sum of the values of
// every slice before it, so a renderer can draw it without re-summing.
type Slice struct {
	Name          string
	International bool
	Value         decimal.Decimal
	Y             decimal.Decimal
}

func byPrice(m mail.MailDelivery) decimal.Decimal { return m.Price }
func byCost(m mail.MailDelivery) decimal.Decimal  { return m.Cost }

// RevenueByDomesticInternational is the inner ring of the revenue chart:
// always two slices, Domestic then International.
func (e *Engine) RevenueByDomesticInternational() []Slice {
	return e.byScope(byPrice)
}

func (e *Engine) ExpenditureByDomesticInternational() []Slice {
	return e.byScope(byCost)
}

// RevenueByRoute is the outer ring of the revenue chart: one slice per
// pair, pairs between domestic endpoints first, then the pairs touching an
// international location.
func (e *Engine) RevenueByRoute() []Slice {
	return e.byRoute(byPrice)
}

func (e *Engine) ExpenditureByRoute() []Slice {
	return e.byRoute(byCost)
}

func (e *Engine) byScope(value func(mail.MailDelivery) decimal.Decimal) []Slice {
	deliveries := e.state.MailDeliveries()
	international := lo.Filter(deliveries, func(m mail.MailDelivery, _ int) bool { return m.International() })
	domestic := lo.Reject(deliveries, func(m mail.MailDelivery, _ int) bool { return m.International() })

	return stack([]Slice{
		{Name: Domestic, Value: sum(domestic, value)},
		{Name: International, International: true, Value: sum(international, value)},
	})
}

// crossesBorder reports whether the overall endpoints of m include an
// international location. Every delivery of a pair agrees on it, so it
// gives each pair a single scope on the outer ring.
func crossesBorder(m mail.MailDelivery) bool {
	if len(m.Legs) == 0 {
		return false
	}
	return m.Legs[0].From.International || m.Legs[len(m.Legs)-1].To.International
}

func (e *Engine) byRoute(value func(mail.MailDelivery) decimal.Decimal) []Slice {
	deliveries := e.state.MailDeliveries()
	groups := lo.GroupBy(deliveries, pairOf)
	international := make(map[Pair]bool, len(groups))
	for _, m := range deliveries {
		international[pairOf(m)] = crossesBorder(m)
	}

	pairs := lo.Keys(groups)
	slices.SortFunc(pairs, func(a, b Pair) int {
		return cmp.Or(compareBool(international[a], international[b]), cmp.Compare(a.String(), b.String()))
	})

	return stack(lo.Map(pairs, func(p Pair, _ int) Slice {
		return Slice{Name: p.String(), International: international[p], Value: sum(groups[p], value)}
	}))
}

// stack fills in the running offsets.
func stack(out []Slice) []Slice {
	y := decimal.Zero
	for i := range out {
		out[i].Y = y
		y = y.Add(out[i].Value)
	}
	return out
}

// compareBool orders false before true.
func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}
