/*
Package report aggregates revenue, expenditure and mail volume.

PURPOSE:
  The report engine is a pure function of a state.ReadOnly: it never
  mutates, and two engines over equal states report equal results. Give it
  the live State for current figures, or a View for figures as of an
  earlier event.

GROUPING RULES:
  - Deliveries drive grouping. A pair of locations with routes but no mail
    has no row; nothing is zero-filled.
  - A delivery's pair is its overall (start, end), not its individual legs.
  - Soft-deleted deliveries are excluded everywhere except the revenue
    timeline, where their deletion is itself a point.

NO DATA:
  Mean delivery times over no deliveries are NaN. Use NoData to test for
  it; render it as "no data", never as 0.

SEE ALSO:
  - timeline.go: revenue over time and monthly buckets
  - donut.go: chart slices
*/
package report

import (
	"cmp"
	"math"
	"slices"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/warp/kpsmart/mail"
	"github.com/warp/kpsmart/state"
)

// Engine computes reports over one state.
type Engine struct {
	state state.ReadOnly
}

func New(s state.ReadOnly) *Engine {
	return &Engine{state: s}
}

// NumberOfEvents is the length of the log prefix the state reflects.
func (e *Engine) NumberOfEvents() uint64 {
	return e.state.NumberOfEvents()
}

// NoData reports whether an average was taken over no deliveries.
func NoData(hours float64) bool {
	return math.IsNaN(hours)
}

// =============================================================================
// AMOUNTS OF MAIL
// =============================================================================

// Pair is an overall origin and destination.
type Pair struct {
	Start string
	End   string
}

func (p Pair) String() string { return p.Start + " to " + p.End }

func comparePairs(a, b Pair) int {
	return cmp.Or(cmp.Compare(a.Start, b.Start), cmp.Compare(a.End, b.End))
}

type AmountOfMail struct {
	Pair
	Items  int
	Weight decimal.Decimal
	Volume decimal.Decimal
}

// AmountsOfMail totals the items, weight and volume sent between each pair
// of locations, ordered by pair.
func (e *Engine) AmountsOfMail() []AmountOfMail {
	groups := lo.GroupBy(e.state.MailDeliveries(), pairOf)
	pairs := lo.Keys(groups)
	slices.SortFunc(pairs, comparePairs)

	return lo.Map(pairs, func(p Pair, _ int) AmountOfMail {
		ms := groups[p]
		return AmountOfMail{
			Pair:   p,
			Items:  len(ms),
			Weight: sum(ms, func(m mail.MailDelivery) decimal.Decimal { return m.Weight }),
			Volume: sum(ms, func(m mail.MailDelivery) decimal.Decimal { return m.Volume }),
		}
	})
}

// =============================================================================
// REVENUE AND EXPENDITURE
// =============================================================================

type groupKey struct {
	Pair
	Priority mail.Priority
}

func compareGroups(a, b groupKey) int {
	return cmp.Or(comparePairs(a.Pair, b.Pair), cmp.Compare(priorityRank(a.Priority), priorityRank(b.Priority)))
}

func priorityRank(p mail.Priority) int {
	return slices.Index(mail.Priorities, p)
}

// RevenueExpenditure is the money made and spent on one (pair, priority).
type RevenueExpenditure struct {
	Pair
	Priority    mail.Priority
	Items       int
	Revenue     decimal.Decimal
	Expenditure decimal.Decimal
	// AverageDeliveryTime is the mean shipping duration in hours.
	AverageDeliveryTime float64
}

// Critical reports whether the group costs more than it earns.
func (r RevenueExpenditure) Critical() bool {
	return r.Expenditure.GreaterThan(r.Revenue)
}

// RevenueExpenditure groups deliveries by (start, end, priority), ordered by
// pair and then by priority.
func (e *Engine) RevenueExpenditure() []RevenueExpenditure {
	groups := lo.GroupBy(e.state.MailDeliveries(), func(m mail.MailDelivery) groupKey {
		return groupKey{Pair: pairOf(m), Priority: m.Priority}
	})
	keys := lo.Keys(groups)
	slices.SortFunc(keys, compareGroups)

	return lo.Map(keys, func(k groupKey, _ int) RevenueExpenditure {
		ms := groups[k]
		return RevenueExpenditure{
			Pair:                k.Pair,
			Priority:            k.Priority,
			Items:               len(ms),
			Revenue:             revenue(ms),
			Expenditure:         expenditure(ms),
			AverageDeliveryTime: averageHours(ms),
		}
	})
}

// CriticalRoutes are the groups whose expenditure exceeds their revenue.
func (e *Engine) CriticalRoutes() []RevenueExpenditure {
	return lo.Filter(e.RevenueExpenditure(), func(r RevenueExpenditure, _ int) bool {
		return r.Critical()
	})
}

func (e *Engine) TotalRevenue() decimal.Decimal {
	return revenue(e.state.MailDeliveries())
}

func (e *Engine) TotalExpenditure() decimal.Decimal {
	return expenditure(e.state.MailDeliveries())
}

// AverageDeliveryTime is the mean shipping duration in hours over every
// delivery. NaN when there are none.
func (e *Engine) AverageDeliveryTime() float64 {
	return averageHours(e.state.MailDeliveries())
}

// =============================================================================
// HELPERS
// =============================================================================

func pairOf(m mail.MailDelivery) Pair {
	return Pair{Start: m.Start(), End: m.End()}
}

func sum[T any](items []T, value func(T) decimal.Decimal) decimal.Decimal {
	return lo.Reduce(items, func(total decimal.Decimal, item T, _ int) decimal.Decimal {
		return total.Add(value(item))
	}, decimal.Zero)
}

func revenue(ms []mail.MailDelivery) decimal.Decimal {
	return sum(ms, func(m mail.MailDelivery) decimal.Decimal { return m.Price })
}

func expenditure(ms []mail.MailDelivery) decimal.Decimal {
	return sum(ms, func(m mail.MailDelivery) decimal.Decimal { return m.Cost })
}

func averageHours(ms []mail.MailDelivery) float64 {
	if len(ms) == 0 {
		return math.NaN()
	}
	var total float64
	for _, m := range ms {
		total += m.ShippingDuration.Hours()
	}
	return total / float64(len(ms))
}
