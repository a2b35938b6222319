// Package badger provides a BadgerDB-backed eventlog.Store.
//
// Each event is one key, "event:{id padded to 20 digits}", holding the event
// as JSON. The zero padding makes lexicographic key order the id order, so
// replay is a forward prefix scan.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/warp/kpsmart/eventlog"
)

const keyPrefix = "event:"

// Store implements eventlog.Store over a badger database. The caller owns
// the database unless the store was created with Open.
type Store struct {
	db    *badger.DB
	owned bool
}

func New(db *badger.DB) *Store {
	return &Store{db: db}
}

// Open opens a database in dir, or an in-memory one when dir is empty.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", dir, err)
	}
	return &Store{db: db, owned: true}, nil
}

// Close closes the database if the store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

func eventKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", keyPrefix, id))
}

func parseKey(key []byte) (uint64, error) {
	return strconv.ParseUint(strings.TrimPrefix(string(key), keyPrefix), 10, 64)
}

// Append stores evt under its id. An existing id is ErrDuplicateEvent.
func (s *Store) Append(_ context.Context, evt eventlog.Event) error {
	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event %d: %w", evt.ID, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		key := eventKey(evt.ID)
		_, err := txn.Get(key)
		switch {
		case err == nil:
			return eventlog.ErrDuplicateEvent
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return txn.Set(key, value)
	})
}

// List scans forward from the first id after afterID.
func (s *Store) List(ctx context.Context, afterID uint64, limit int) ([]eventlog.Event, error) {
	var events []eventlog.Event
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(eventKey(afterID + 1)); it.ValidForPrefix(opts.Prefix); it.Next() {
			if limit > 0 && len(events) == limit {
				break
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			var evt eventlog.Event
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &evt)
			})
			if err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			events = append(events, evt)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Last seeks backwards from the highest possible key.
func (s *Store) Last(_ context.Context) (uint64, error) {
	var last uint64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		opts.Reverse = true
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek(append([]byte(keyPrefix), strings.Repeat("9", 20)...))
		if !it.ValidForPrefix(opts.Prefix) {
			return nil
		}
		id, err := parseKey(it.Item().Key())
		if err != nil {
			return fmt.Errorf("bad key %q: %w", it.Item().Key(), err)
		}
		last = id
		return nil
	})
	return last, err
}

var _ eventlog.Store = (*Store)(nil)
