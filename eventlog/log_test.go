package eventlog_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/kpsmart/eventlog"
	"github.com/warp/kpsmart/eventlog/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestLog(t *testing.T) (*eventlog.Log, *store.Memory) {
	mem := store.NewMemory()
	clock := time.Date(2025, time.May, 1, 12, 0, 0, 0, time.UTC)
	log, err := eventlog.Open(context.Background(), mem, eventlog.WithClock(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}))
	require.NoError(t, err)
	return log, mem
}

func carrierEvent(id uint64) eventlog.Event {
	return eventlog.Event{
		Op:       eventlog.OpCreate,
		Kind:     eventlog.KindCarrier,
		EntityID: id,
		Payload:  json.RawMessage(`{"name":"carrier"}`),
	}
}

func collect(t *testing.T, log *eventlog.Log, upTo uint64) []eventlog.Event {
	t.Helper()
	var events []eventlog.Event
	for evt, err := range log.EntriesUpTo(context.Background(), upTo) {
		require.NoError(t, err)
		events = append(events, evt)
	}
	return events
}

// flakyStore fails the next append when armed.
type flakyStore struct {
	*store.Memory
	fail bool
}

func (f *flakyStore) Append(ctx context.Context, evt eventlog.Event) error {
	if f.fail {
		f.fail = false
		return errors.New("disk full")
	}
	return f.Memory.Append(ctx, evt)
}

// =============================================================================
// APPEND
// =============================================================================

func TestLog_Append_AssignsGaplessIDs(t *testing.T) {
	log, _ := newTestLog(t)
	ctx := context.Background()

	var previous time.Time
	for i := uint64(1); i <= 5; i++ {
		evt, err := log.Append(ctx, carrierEvent(i))
		require.NoError(t, err)
		assert.Equal(t, i, evt.ID)
		assert.True(t, evt.Timestamp.After(previous), "timestamps should increase")
		previous = evt.Timestamp
	}
	assert.Equal(t, uint64(5), log.NumberOfEvents())
}

func TestLog_Append_StoreFailureDoesNotConsumeID(t *testing.T) {
	// GIVEN: A store that fails the second write
	// WHEN: Retrying after the failure
	// THEN: The retried event still gets id 2

	flaky := &flakyStore{Memory: store.NewMemory()}
	log, err := eventlog.Open(context.Background(), flaky)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = log.Append(ctx, carrierEvent(1))
	require.NoError(t, err)

	flaky.fail = true
	_, err = log.Append(ctx, carrierEvent(2))
	require.Error(t, err)
	assert.Equal(t, uint64(1), log.NumberOfEvents())

	evt, err := log.Append(ctx, carrierEvent(2))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), evt.ID)
}

func TestLog_Append_RejectsInvalidEvent(t *testing.T) {
	log, mem := newTestLog(t)

	_, err := log.Append(context.Background(), eventlog.Event{Op: "rename", Kind: eventlog.KindRoute})
	assert.ErrorIs(t, err, eventlog.ErrInvalidEvent)
	assert.Equal(t, 0, mem.Len())
}

func TestLog_Append_ConcurrentAppendsAreSerialized(t *testing.T) {
	log, _ := newTestLog(t)
	ctx := context.Background()

	const writers, perWriter = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := log.Append(ctx, carrierEvent(1))
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	events := collect(t, log, log.NumberOfEvents())
	require.Len(t, events, writers*perWriter)
	for i, evt := range events {
		assert.Equal(t, uint64(i+1), evt.ID)
	}
}

func TestOpen_ContinuesAfterLastStoredEvent(t *testing.T) {
	log, mem := newTestLog(t)
	ctx := context.Background()
	for i := uint64(1); i <= 3; i++ {
		_, err := log.Append(ctx, carrierEvent(i))
		require.NoError(t, err)
	}

	reopened, err := eventlog.Open(ctx, mem)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), reopened.NumberOfEvents())

	evt, err := reopened.Append(ctx, carrierEvent(4))
	require.NoError(t, err)
	assert.Equal(t, uint64(4), evt.ID)
}

// =============================================================================
// REPLAY
// =============================================================================

func TestLog_EntriesUpTo_BoundedAndRestartable(t *testing.T) {
	log, _ := newTestLog(t)
	ctx := context.Background()
	for i := uint64(1); i <= 10; i++ {
		_, err := log.Append(ctx, carrierEvent(i))
		require.NoError(t, err)
	}

	seq := log.EntriesUpTo(ctx, 4)
	for pass := 0; pass < 2; pass++ {
		var ids []uint64
		for evt, err := range seq {
			require.NoError(t, err)
			ids = append(ids, evt.ID)
		}
		assert.Equal(t, []uint64{1, 2, 3, 4}, ids, "pass %d", pass)
	}

	assert.Empty(t, collect(t, log, 0))
	assert.Len(t, collect(t, log, 99), 10, "bound beyond the log yields everything")
}

func TestLog_EntriesUpTo_PagesThroughLargeLogs(t *testing.T) {
	log, _ := newTestLog(t)
	ctx := context.Background()
	for i := uint64(1); i <= 450; i++ {
		_, err := log.Append(ctx, carrierEvent(i))
		require.NoError(t, err)
	}

	events := collect(t, log, 401)
	require.Len(t, events, 401)
	assert.Equal(t, uint64(401), events[len(events)-1].ID)
}

func TestLog_EntriesUpTo_StopsEarly(t *testing.T) {
	log, _ := newTestLog(t)
	ctx := context.Background()
	for i := uint64(1); i <= 5; i++ {
		_, err := log.Append(ctx, carrierEvent(i))
		require.NoError(t, err)
	}

	var seen int
	for range log.Entries(ctx) {
		seen++
		if seen == 2 {
			break
		}
	}
	assert.Equal(t, 2, seen)
}

func TestLog_EntriesUpTo_CanceledContext(t *testing.T) {
	log, _ := newTestLog(t)
	_, err := log.Append(context.Background(), carrierEvent(1))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var gotErr error
	for _, err := range log.EntriesUpTo(ctx, 1) {
		gotErr = err
	}
	assert.ErrorIs(t, gotErr, context.Canceled)
}

func TestMemory_CopiesPayloads(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	evt := carrierEvent(1)
	evt.ID = 1
	require.NoError(t, mem.Append(ctx, evt))
	assert.ErrorIs(t, mem.Append(ctx, evt), eventlog.ErrDuplicateEvent)

	evt.Payload[0] = 'X'
	stored, err := mem.List(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.JSONEq(t, `{"name":"carrier"}`, string(stored[0].Payload))
}
