// Package store provides an in-memory eventlog.Store.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/kpsmart/eventlog"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu     sync.RWMutex
	events []eventlog.Event
}

func NewMemory() *Memory {
	return &Memory{}
}

// Append adds a single event. Append-only; ids must increase.
func (m *Memory) Append(_ context.Context, evt eventlog.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n := len(m.events); n > 0 && evt.ID <= m.events[n-1].ID {
		if m.indexOf(evt.ID) >= 0 {
			return eventlog.ErrDuplicateEvent
		}
		return fmt.Errorf("event %d appended after %d", evt.ID, m.events[n-1].ID)
	}
	m.events = append(m.events, cloneEvent(evt))
	return nil
}

// List returns copies so callers can never alter stored payloads.
func (m *Memory) List(_ context.Context, afterID uint64, limit int) ([]eventlog.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Binary search for the first id after afterID
	i := sort.Search(len(m.events), func(i int) bool {
		return m.events[i].ID > afterID
	})

	var result []eventlog.Event
	for ; i < len(m.events) && (limit <= 0 || len(result) < limit); i++ {
		result = append(result, cloneEvent(m.events[i]))
	}
	return result, nil
}

func (m *Memory) Last(_ context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.events) == 0 {
		return 0, nil
	}
	return m.events[len(m.events)-1].ID, nil
}

// Len is the number of stored events.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

func (m *Memory) indexOf(id uint64) int {
	i := sort.Search(len(m.events), func(i int) bool {
		return m.events[i].ID >= id
	})
	if i < len(m.events) && m.events[i].ID == id {
		return i
	}
	return -1
}

func cloneEvent(evt eventlog.Event) eventlog.Event {
	if evt.Payload != nil {
		evt.Payload = append([]byte(nil), evt.Payload...)
	}
	return evt
}

var _ eventlog.Store = (*Memory)(nil)
