package state

import (
	"fmt"
	"slices"

	"github.com/warp/kpsmart/eventlog"
	"github.com/warp/kpsmart/mail"
)

// table holds every version-latest row of one entity kind, including
// soft-deleted ones, plus an index of the unique key among active rows.
type table[K comparable, T any] struct {
	kind   eventlog.Kind
	rows   map[uint64]T
	byKey  map[K]uint64
	maxID  uint64
	entity func(*T) *mail.Entity
	// keyOf returns the unique key of a row; false if the kind has none.
	keyOf func(T) (K, bool)
	// clone deep-copies a row on the way out. Nil for flat rows.
	clone func(T) T
}

func newTable[K comparable, T any](kind eventlog.Kind, entity func(*T) *mail.Entity, keyOf func(T) (K, bool)) *table[K, T] {
	return &table[K, T]{
		kind:   kind,
		rows:   make(map[uint64]T),
		byKey:  make(map[K]uint64),
		entity: entity,
		keyOf:  keyOf,
	}
}

func (t *table[K, T]) meta(v T) mail.Entity {
	return *t.entity(&v)
}

func (t *table[K, T]) out(v T) T {
	if t.clone != nil {
		return t.clone(v)
	}
	return v
}

// get returns the row with the given id, deleted or not.
func (t *table[K, T]) get(id uint64) (T, bool) {
	v, ok := t.rows[id]
	if !ok {
		return v, false
	}
	return t.out(v), true
}

// active returns the row with the given id if it is not deleted.
func (t *table[K, T]) active(id uint64) (T, bool) {
	v, ok := t.rows[id]
	if !ok || t.meta(v).Disabled {
		var zero T
		return zero, false
	}
	return t.out(v), true
}

// lookup returns the active row holding key k.
func (t *table[K, T]) lookup(k K) (T, bool) {
	id, ok := t.byKey[k]
	if !ok {
		var zero T
		return zero, false
	}
	return t.active(id)
}

// holder returns the id of the active row holding key k.
func (t *table[K, T]) holder(k K) (uint64, bool) {
	id, ok := t.byKey[k]
	return id, ok
}

// all returns the active rows ordered by id.
func (t *table[K, T]) all() []T {
	ids := make([]uint64, 0, len(t.rows))
	for id, v := range t.rows {
		if !t.meta(v).Disabled {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	out := make([]T, len(ids))
	for i, id := range ids {
		out[i] = t.out(t.rows[id])
	}
	return out
}

// each visits every row, deleted or not, in no particular order.
func (t *table[K, T]) each(fn func(T)) {
	for _, v := range t.rows {
		fn(v)
	}
}

func (t *table[K, T]) nextID() uint64 {
	return t.maxID + 1
}

// =============================================================================
// FOLD PRIMITIVES - Called only while applying an event
// =============================================================================

func (t *table[K, T]) create(id, eventID uint64, v T) error {
	if id == 0 {
		return fmt.Errorf("%s create without entity id", t.kind)
	}
	if _, exists := t.rows[id]; exists {
		return fmt.Errorf("%s %d already exists", t.kind, id)
	}
	if k, ok := t.keyOf(v); ok {
		if other, taken := t.byKey[k]; taken {
			return fmt.Errorf("%s %d: key already held by %d", t.kind, id, other)
		}
		t.byKey[k] = id
	}

	*t.entity(&v) = mail.Entity{ID: id, RelateEventID: eventID}
	t.rows[id] = v
	t.maxID = max(t.maxID, id)
	return nil
}

// update replaces an active row and returns the version it replaced.
func (t *table[K, T]) update(id, eventID uint64, v T) (T, error) {
	old, ok := t.rows[id]
	if !ok || t.meta(old).Disabled {
		return old, fmt.Errorf("update of missing %s %d", t.kind, id)
	}
	newKey, hasKey := t.keyOf(v)
	if hasKey {
		if other, taken := t.byKey[newKey]; taken && other != id {
			return old, fmt.Errorf("%s %d: key already held by %d", t.kind, id, other)
		}
	}
	if oldKey, ok := t.keyOf(old); ok {
		delete(t.byKey, oldKey)
	}
	if hasKey {
		t.byKey[newKey] = id
	}

	*t.entity(&v) = mail.Entity{ID: id, RelateEventID: eventID}
	t.rows[id] = v
	return old, nil
}

// remove soft-deletes an active row and returns the version it disabled.
func (t *table[K, T]) remove(id, eventID uint64) (T, error) {
	v, ok := t.rows[id]
	if !ok || t.meta(v).Disabled {
		return v, fmt.Errorf("delete of missing %s %d", t.kind, id)
	}
	if k, ok := t.keyOf(v); ok {
		delete(t.byKey, k)
	}

	e := t.entity(&v)
	e.Disabled = true
	e.RelateEventID = eventID
	t.rows[id] = v
	return v, nil
}

func noKey[T any](T) (struct{}, bool) { return struct{}{}, false }
