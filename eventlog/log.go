package eventlog

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"
)

const replayPageSize = 200

// Reader is the read side of the log.
type Reader interface {
	// EntriesUpTo yields events with id <= upTo in ascending order.
	EntriesUpTo(ctx context.Context, upTo uint64) iter.Seq2[Event, error]

	// NumberOfEvents is the number of events appended so far.
	NumberOfEvents() uint64
}

// =============================================================================
// LOG - Id assignment and serialized appends over a Store
// =============================================================================

// Log assigns ids and timestamps and serializes appends.
//
// INVARIANTS:
//   - Append-only: the only write is Append.
//   - Gapless: a failed store write does not consume an id.
//   - Reads never take the append lock.
type Log struct {
	mu    sync.Mutex
	store Store
	last  atomic.Uint64
	clock func() time.Time
}

type Option func(*Log)

// WithClock overrides the timestamp source. Used by tests.
func WithClock(clock func() time.Time) Option {
	return func(l *Log) { l.clock = clock }
}

// Open wraps store, continuing after the last stored id.
func Open(ctx context.Context, store Store, opts ...Option) (*Log, error) {
	if store == nil {
		return nil, fmt.Errorf("event store is not configured")
	}
	last, err := store.Last(ctx)
	if err != nil {
		return nil, fmt.Errorf("read last event id: %w", err)
	}

	l := &Log{
		store: store,
		clock: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	l.last.Store(last)
	return l, nil
}

// Append assigns the next id and a timestamp to evt and persists it.
// The returned event is the one stored.
func (l *Log) Append(ctx context.Context, evt Event) (Event, error) {
	if !evt.Op.Valid() || !evt.Kind.Valid() {
		return Event{}, fmt.Errorf("%w: op=%q kind=%q", ErrInvalidEvent, evt.Op, evt.Kind)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	evt.ID = l.last.Load() + 1
	evt.Timestamp = l.clock()
	if err := l.store.Append(ctx, evt); err != nil {
		return Event{}, fmt.Errorf("append event %d: %w", evt.ID, err)
	}
	l.last.Store(evt.ID)
	return evt, nil
}

// NumberOfEvents is the number of events appended so far. With gapless
// ids starting at 1 it is also the id of the latest event.
func (l *Log) NumberOfEvents() uint64 {
	return l.last.Load()
}

// EntriesUpTo yields the events 1..upTo in order, reading the store in
// pages. The sequence is lazy and can be ranged over more than once; each
// pass reads the store again. Iteration stops at the first error.
func (l *Log) EntriesUpTo(ctx context.Context, upTo uint64) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		var after uint64
		for after < upTo {
			if err := ctx.Err(); err != nil {
				yield(Event{}, err)
				return
			}

			limit := replayPageSize
			if remaining := upTo - after; remaining < uint64(limit) {
				limit = int(remaining)
			}
			page, err := l.store.List(ctx, after, limit)
			if err != nil {
				yield(Event{}, fmt.Errorf("list events after %d: %w", after, err))
				return
			}
			if len(page) == 0 {
				return
			}
			for _, evt := range page {
				if evt.ID > upTo {
					return
				}
				after = evt.ID
				if !yield(evt, nil) {
					return
				}
			}
		}
	}
}

// Entries yields every event appended so far.
func (l *Log) Entries(ctx context.Context) iter.Seq2[Event, error] {
	return l.EntriesUpTo(ctx, l.NumberOfEvents())
}

var _ Reader = (*Log)(nil)
