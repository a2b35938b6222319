package report

import (
	"slices"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/warp/kpsmart/mail"
	"github.com/warp/kpsmart/state"
)

// =============================================================================
// REVENUE OVER TIME
// =============================================================================

// TimePoint is the running revenue and expenditure right after one mail
// delivery event.
type TimePoint struct {
	EventID     uint64
	Date        time.Time
	Revenue     decimal.Decimal
	Expenditure decimal.Decimal
}

// RevenueExpenditureOverTime has one point per event that created, changed
// or deleted a delivery, in log order.
func (e *Engine) RevenueExpenditureOverTime() []TimePoint {
	return lo.Map(e.state.RevenueTimeline(), func(p state.RevenuePoint, _ int) TimePoint {
		return TimePoint{EventID: p.EventID, Date: p.Timestamp, Revenue: p.Revenue, Expenditure: p.Expenditure}
	})
}

// LastRevenueExpenditureOverTime is the last n points, still in log order.
func (e *Engine) LastRevenueExpenditureOverTime(n int) []TimePoint {
	if n <= 0 {
		return nil
	}
	return lo.Subset(e.RevenueExpenditureOverTime(), -n, uint(n))
}

// =============================================================================
// MONTHLY SUMMARY
// =============================================================================

type MonthSummary struct {
	// Name is the month as "January 2025".
	Name string
	// Month is the first instant of the month, UTC.
	Month       time.Time
	Revenue     decimal.Decimal
	Expenditure decimal.Decimal
	// EventCount is the number of deliveries submitted in the month.
	EventCount int
	Weight     decimal.Decimal
	Volume     decimal.Decimal
}

// MonthlySummary buckets deliveries by the calendar month (UTC) they were
// submitted in, oldest first.
func (e *Engine) MonthlySummary() []MonthSummary {
	groups := lo.GroupBy(e.state.MailDeliveries(), func(m mail.MailDelivery) time.Time {
		at := m.SubmittedAt.UTC()
		return time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, time.UTC)
	})
	months := lo.Keys(groups)
	slices.SortFunc(months, func(a, b time.Time) int { return a.Compare(b) })

	return lo.Map(months, func(month time.Time, _ int) MonthSummary {
		ms := groups[month]
		return MonthSummary{
			Name:        month.Format("January 2006"),
			Month:       month,
			Revenue:     revenue(ms),
			Expenditure: expenditure(ms),
			EventCount:  len(ms),
			Weight:      sum(ms, func(m mail.MailDelivery) decimal.Decimal { return m.Weight }),
			Volume:      sum(ms, func(m mail.MailDelivery) decimal.Decimal { return m.Volume }),
		}
	})
}
