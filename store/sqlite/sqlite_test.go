package sqlite_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/kpsmart/eventlog"
	"github.com/warp/kpsmart/mail"
	"github.com/warp/kpsmart/state"
	"github.com/warp/kpsmart/store/sqlite"
)

func newStore(t *testing.T, path string) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func event(id uint64) eventlog.Event {
	return eventlog.Event{
		ID:            id,
		Timestamp:     time.Date(2025, time.July, 4, 10, 30, 0, 123456789, time.UTC).Add(time.Duration(id) * time.Second),
		Op:            eventlog.OpCreate,
		Kind:          eventlog.KindCarrier,
		EntityID:      id,
		CorrelationID: "corr-1",
		Payload:       json.RawMessage(`{"name":"carrier"}`),
	}
}

func TestStore_RoundTripsEvents(t *testing.T) {
	s := newStore(t, ":memory:")
	ctx := context.Background()

	last, err := s.Last(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), last)

	deletion := eventlog.Event{ID: 2, Timestamp: event(2).Timestamp, Op: eventlog.OpDelete, Kind: eventlog.KindCarrier, EntityID: 1}
	require.NoError(t, s.Append(ctx, event(1)))
	require.NoError(t, s.Append(ctx, deletion))

	events, err := s.List(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, event(1), events[0])
	assert.Equal(t, deletion, events[1])

	last, err = s.Last(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), last)
}

func TestStore_RejectsDuplicateIDs(t *testing.T) {
	s := newStore(t, ":memory:")
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, event(1)))
	assert.ErrorIs(t, s.Append(ctx, event(1)), eventlog.ErrDuplicateEvent)
}

func TestStore_ListPages(t *testing.T) {
	s := newStore(t, ":memory:")
	ctx := context.Background()
	for id := uint64(1); id <= 7; id++ {
		require.NoError(t, s.Append(ctx, event(id)))
	}

	page, err := s.List(ctx, 2, 3)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, []uint64{3, 4, 5}, []uint64{page[0].ID, page[1].ID, page[2].ID})

	rest, err := s.List(ctx, 5, 0)
	require.NoError(t, err)
	assert.Len(t, rest, 2)

	none, err := s.List(ctx, 7, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_StateSurvivesRestart(t *testing.T) {
	// GIVEN: A state persisted to a database file
	// WHEN: A new process opens the same file
	// THEN: Replay rebuilds the same state

	path := filepath.Join(t.TempDir(), "kpsmart.db")
	ctx := context.Background()

	first, err := sqlite.New(path)
	require.NoError(t, err)
	log, err := eventlog.Open(ctx, first)
	require.NoError(t, err)
	live, err := state.Open(ctx, log)
	require.NoError(t, err)

	_, err = live.SaveLocation(ctx, mail.Location{Name: "Wellington"})
	require.NoError(t, err)
	_, err = live.SaveLocation(ctx, mail.Location{Name: "Rome", International: true})
	require.NoError(t, err)
	carrier, err := live.SaveCarrier(ctx, mail.Carrier{Name: "CarrierX"})
	require.NoError(t, err)
	route, err := live.SaveRoute(ctx, mail.Route{
		Start: "Wellington", End: "Rome", Transport: mail.TransportAir, CarrierID: carrier.ID,
		WeightCost: mail.MustDecimal("2.25"), Duration: 30 * time.Hour, Frequency: 24 * time.Hour,
		FirstDeparture: time.Date(2025, time.January, 1, 6, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	_, err = live.SaveCustomerPrice(ctx, mail.CustomerPrice{
		Start: "Wellington", End: "Rome", Priority: mail.InternationalAir, WeightPrice: mail.MustDecimal("5"),
	})
	require.NoError(t, err)
	_, err = live.SubmitMail(ctx, state.MailRequest{
		RouteIDs: []uint64{route.ID}, Priority: mail.InternationalAir,
		Weight: mail.MustDecimal("4"), SubmittedAt: time.Date(2025, time.January, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := newStore(t, path)
	log, err = eventlog.Open(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), log.NumberOfEvents())
	reopened, err := state.Open(ctx, log)
	require.NoError(t, err)

	assert.Equal(t, live.Routes(), reopened.Routes())
	assert.Equal(t, live.MailDeliveries(), reopened.MailDeliveries())
	assert.Equal(t, live.RevenueTimeline(), reopened.RevenueTimeline())

	m := reopened.MailDeliveries()[0]
	assert.Equal(t, 30*time.Hour+6*time.Hour, m.ShippingDuration, "waits for the 06:00 departure")
	assert.True(t, m.Cost.Equal(mail.MustDecimal("9")))
}
