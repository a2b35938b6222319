package mail_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/kpsmart/mail"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type fixedPricer struct {
	prices map[mail.PriceKey]mail.Price
}

func (f fixedPricer) Price(start, end string, p mail.Priority) (mail.Price, bool) {
	price, ok := f.prices[mail.PriceKey{Start: start, End: end, Priority: p}]
	return price, ok
}

var (
	wellington = mail.Location{Entity: mail.Entity{ID: 1}, Name: "Wellington"}
	auckland   = mail.Location{Entity: mail.Entity{ID: 2}, Name: "Auckland"}
	sydney     = mail.Location{Entity: mail.Entity{ID: 3}, Name: "Sydney", International: true}
	rome       = mail.Location{Entity: mail.Entity{ID: 4}, Name: "Rome", International: true}
)

func leg(id uint64, from, to mail.Location, weightCost string, duration time.Duration) mail.Leg {
	return mail.Leg{
		Route: mail.Route{
			Entity:     mail.Entity{ID: id},
			Start:      from.Name,
			End:        to.Name,
			Transport:  mail.TransportAir,
			CarrierID:  1,
			WeightCost: mail.MustDecimal(weightCost),
			VolumeCost: decimal.Zero,
			Duration:   duration,
		},
		From: from,
		To:   to,
	}
}

// =============================================================================
// COST AND PRICE
// =============================================================================

func TestNewMailDelivery_SingleLeg_CostAndPrice(t *testing.T) {
	// GIVEN: Wellington -> Rome at 2/weight unit, customer price 5/weight + 1/volume
	// WHEN: Sending 10 weight, 2 volume
	// THEN: cost = 20, price = 52

	pricer := fixedPricer{prices: map[mail.PriceKey]mail.Price{
		{Start: "Wellington", End: "Rome", Priority: mail.InternationalAir}: mail.CustomerPrice{
			Start: "Wellington", End: "Rome", Priority: mail.InternationalAir,
			WeightPrice: mail.MustDecimal("5"), VolumePrice: mail.MustDecimal("1"),
		},
	}}
	submitted := time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)

	m, err := mail.NewMailDelivery(
		[]mail.Leg{leg(1, wellington, rome, "2", 30*time.Hour)},
		mail.InternationalAir, mail.MustDecimal("10"), mail.MustDecimal("2"), submitted, pricer)
	require.NoError(t, err)

	assert.True(t, m.Cost.Equal(mail.MustDecimal("20")), "cost = %s", m.Cost)
	assert.True(t, m.Price.Equal(mail.MustDecimal("52")), "price = %s", m.Price)
	assert.Equal(t, 30*time.Hour, m.ShippingDuration)
	assert.Equal(t, "Wellington", m.Start())
	assert.Equal(t, "Rome", m.End())
}

func TestNewMailDelivery_MultiLeg_SumsLegCosts(t *testing.T) {
	pricer := fixedPricer{prices: map[mail.PriceKey]mail.Price{
		{Start: "Auckland", End: "Rome", Priority: mail.InternationalAir}: mail.CustomerPrice{
			WeightPrice: mail.MustDecimal("4"), VolumePrice: mail.MustDecimal("0.5"),
		},
	}}

	m, err := mail.NewMailDelivery(
		[]mail.Leg{
			leg(1, auckland, sydney, "1.5", 3*time.Hour),
			leg(2, sydney, rome, "3", 22*time.Hour),
		},
		mail.InternationalAir, mail.MustDecimal("2"), mail.MustDecimal("4"), time.Now(), pricer)
	require.NoError(t, err)

	// 2*1.5 + 2*3 = 9
	assert.True(t, m.Cost.Equal(mail.MustDecimal("9")), "cost = %s", m.Cost)
	// 2*4 + 4*0.5 = 10
	assert.True(t, m.Price.Equal(mail.MustDecimal("10")), "price = %s", m.Price)
	assert.Equal(t, []uint64{1, 2}, m.RouteIDs())
	assert.Equal(t, "Auckland", m.Start())
	assert.Equal(t, "Rome", m.End())
}

func TestNewMailDelivery_Errors(t *testing.T) {
	empty := fixedPricer{}

	_, err := mail.NewMailDelivery(nil, mail.DomesticAir, decimal.Zero, decimal.Zero, time.Now(), empty)
	assert.ErrorIs(t, err, mail.ErrNoLegs)

	_, err = mail.NewMailDelivery(
		[]mail.Leg{leg(1, wellington, auckland, "1", time.Hour), leg(2, sydney, rome, "1", time.Hour)},
		mail.InternationalAir, decimal.Zero, decimal.Zero, time.Now(), empty)
	assert.ErrorIs(t, err, mail.ErrBrokenChain)

	_, err = mail.NewMailDelivery(
		[]mail.Leg{leg(1, wellington, auckland, "1", time.Hour)},
		mail.DomesticAir, decimal.Zero, decimal.Zero, time.Now(), empty)
	assert.ErrorIs(t, err, mail.ErrNoPrice)
}

// =============================================================================
// INTERNATIONAL
// =============================================================================

func TestMailDelivery_International_RequiresEveryLeg(t *testing.T) {
	domesticThenAbroad := mail.MailDelivery{Legs: []mail.Leg{
		leg(1, wellington, auckland, "1", time.Hour),
		leg(2, auckland, sydney, "1", time.Hour),
	}}
	assert.False(t, domesticThenAbroad.International())

	abroad := mail.MailDelivery{Legs: []mail.Leg{leg(2, auckland, sydney, "1", time.Hour)}}
	assert.True(t, abroad.International())

	assert.False(t, mail.MailDelivery{}.International())
}

// =============================================================================
// SCHEDULES
// =============================================================================

func TestRoute_NextDeparture(t *testing.T) {
	anchor := time.Date(2025, time.January, 6, 8, 0, 0, 0, time.UTC)
	r := mail.Route{Frequency: 24 * time.Hour, FirstDeparture: anchor}

	tests := []struct {
		name string
		at   time.Time
		want time.Time
	}{
		{"exactly on departure", anchor, anchor},
		{"just after departure", anchor.Add(time.Minute), anchor.Add(24 * time.Hour)},
		{"before anchor uses the same phase", anchor.Add(-2 * time.Hour), anchor},
		{"days later", anchor.Add(50 * time.Hour), anchor.Add(72 * time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.NextDeparture(tt.at))
		})
	}

	onDemand := mail.Route{}
	assert.Equal(t, anchor, onDemand.NextDeparture(anchor))
}

func TestShippingDuration_WaitsForEachDeparture(t *testing.T) {
	// GIVEN: Leg 1 departs daily at 08:00 and takes 2h; leg 2 departs every 6h from 00:00 and takes 10h
	// WHEN: Submitted at 07:00
	// THEN: depart 08:00, arrive 10:00, wait to 12:00, arrive 22:00 => 15h

	day := time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)
	first := mail.Leg{Route: mail.Route{Duration: 2 * time.Hour, Frequency: 24 * time.Hour, FirstDeparture: day.Add(8 * time.Hour)}}
	second := mail.Leg{Route: mail.Route{Duration: 10 * time.Hour, Frequency: 6 * time.Hour, FirstDeparture: day}}

	got := mail.ShippingDuration([]mail.Leg{first, second}, day.Add(7*time.Hour))
	assert.Equal(t, 15*time.Hour, got)
}

func TestParsePriority(t *testing.T) {
	p, err := mail.ParsePriority("international_air")
	require.NoError(t, err)
	assert.Equal(t, mail.InternationalAir, p)
	assert.True(t, mail.DomesticLand.IsDomestic())
	assert.True(t, mail.InternationalSurface.Allows(mail.TransportSea))
	assert.False(t, mail.InternationalSurface.Allows(mail.TransportAir))

	_, err = mail.ParsePriority("express")
	assert.Error(t, err)
}
