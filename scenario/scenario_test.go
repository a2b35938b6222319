package scenario_test

import (
	"context"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/kpsmart/eventlog"
	"github.com/warp/kpsmart/eventlog/store"
	"github.com/warp/kpsmart/mail"
	"github.com/warp/kpsmart/report"
	"github.com/warp/kpsmart/scenario"
	"github.com/warp/kpsmart/state"
)

func newState(t *testing.T) *state.State {
	t.Helper()
	log, err := eventlog.Open(context.Background(), store.NewMemory())
	require.NoError(t, err)
	s, err := state.Open(context.Background(), log)
	require.NoError(t, err)
	return s
}

func TestList_IDsAreUnique(t *testing.T) {
	ids := lo.Map(scenario.List(), func(sc scenario.Scenario, _ int) string { return sc.ID })
	assert.Equal(t, lo.Uniq(ids), ids)
	assert.Contains(t, ids, "wellington-rome")
	assert.Contains(t, ids, "nz-network")
}

func TestLoad_EveryScenarioLoads(t *testing.T) {
	for _, sc := range scenario.List() {
		t.Run(sc.ID, func(t *testing.T) {
			s := newState(t)
			require.NoError(t, scenario.Load(context.Background(), s, sc.ID))
			assert.NotEmpty(t, s.MailDeliveries())
		})
	}
}

func TestLoad_WellingtonRome(t *testing.T) {
	s := newState(t)
	require.NoError(t, scenario.Load(context.Background(), s, "wellington-rome"))

	assert.Equal(t, uint64(6), s.NumberOfEvents())
	e := report.New(s)
	assert.True(t, mail.MustDecimal("52").Equal(e.TotalRevenue()))
	assert.True(t, mail.MustDecimal("20").Equal(e.TotalExpenditure()))
}

func TestLoad_NZNetwork(t *testing.T) {
	// GIVEN: The NZ network scenario
	// WHEN: It is loaded
	// THEN: The price change only affects later mail and the deleted
	//       delivery no longer counts

	s := newState(t)
	require.NoError(t, scenario.Load(context.Background(), s, "nz-network"))

	assert.Equal(t, uint64(19), s.NumberOfEvents())
	deliveries := s.MailDeliveries()
	require.Len(t, deliveries, 3)
	prices := lo.Map(deliveries, func(m mail.MailDelivery, _ int) string { return m.Price.String() })
	assert.Equal(t, []string{"16", "40", "21"}, prices)

	e := report.New(s)
	assert.True(t, mail.MustDecimal("77").Equal(e.TotalRevenue()))
	assert.True(t, mail.MustDecimal("51").Equal(e.TotalExpenditure()))
	assert.Empty(t, e.CriticalRoutes())
	assert.Len(t, e.MonthlySummary(), 3)
}

func TestLoad_Errors(t *testing.T) {
	s := newState(t)
	ctx := context.Background()

	assert.ErrorIs(t, scenario.Load(ctx, s, "atlantis"), scenario.ErrUnknown)

	require.NoError(t, scenario.Load(ctx, s, "wellington-rome"))
	assert.ErrorIs(t, scenario.Load(ctx, s, "nz-network"), scenario.ErrNotEmpty)
	assert.Equal(t, uint64(6), s.NumberOfEvents())
}
