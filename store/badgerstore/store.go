// Package badgerstore persists the snapshot archive in BadgerDB, the
// primary backend for single-host deployments. Each entity owns an
// ordered run of body keys plus one pointer key:
//
//	s!<entityKey>!<stamp>  snapshot body (JSON document)
//	l!<entityKey>          latest pointer (the stamp)
//
// Stamps encode lexicographically in chronological order, so a prefix
// iteration over the body keys yields the history oldest first.
package badgerstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	valgarkiv "github.com/eklundh/valgarkiv"
	"github.com/eklundh/valgarkiv/entity"
	"github.com/eklundh/valgarkiv/snapshot"
	"github.com/eklundh/valgarkiv/store"
)

// Store is a BadgerDB-backed snapshot store.
type Store struct {
	db    *badger.DB
	det   snapshot.Detector
	locks *store.KeyedLocks
}

var _ store.SnapshotStore = (*Store)(nil)

// Options configures the BadgerDB store.
type Options struct {
	// Path to the database directory. If empty, uses in-memory mode.
	Path string
	// InMemory forces in-memory mode even if Path is set.
	InMemory bool
	// Logger for BadgerDB. If nil, logging is disabled.
	Logger badger.Logger
	// LockStripes sizes the per-entity lock table. Zero means default.
	LockStripes int
}

// New opens the database and wires the change detector.
func New(opts Options, det snapshot.Detector) (*Store, error) {
	badgerOpts := badger.DefaultOptions(opts.Path)

	if opts.Path == "" || opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}

	if opts.Logger != nil {
		badgerOpts = badgerOpts.WithLogger(opts.Logger)
	} else {
		badgerOpts = badgerOpts.WithLogger(nil)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}

	return &Store{
		db:    db,
		det:   det,
		locks: store.NewKeyedLocks(opts.LockStripes),
	}, nil
}

// Close closes the BadgerDB database.
func (s *Store) Close() error {
	return s.db.Close()
}

func bodyKey(entityKey string, stamp snapshot.Stamp) []byte {
	return []byte("s!" + entityKey + "!" + string(stamp))
}

func bodyPrefix(entityKey string) []byte {
	return []byte("s!" + entityKey + "!")
}

func pointerKey(entityKey string) []byte {
	return []byte("l!" + entityKey)
}

// WriteIfChanged implements store.SnapshotStore. The body commits in its
// own transaction before the pointer advances in a second one: a crash
// between the two leaves the previous pointer valid. The orphaned body
// still surfaces in History, but never through Latest.
func (s *Store) WriteIfChanged(ctx context.Context, e entity.Entity, doc snapshot.Document, stamp snapshot.Stamp) (store.WriteResult, error) {
	unlock := s.locks.Lock(e.Key())
	defer unlock()

	latest, err := s.readLatest(e.Key())
	if err != nil {
		return store.WriteResult{}, err
	}

	if latest != nil && !stamp.After(latest.Stamp) {
		return store.WriteResult{}, fmt.Errorf("entity %s: stamp %s not after latest %s: %w",
			e.Key(), stamp, latest.Stamp, valgarkiv.ErrOutOfOrderTimestamp)
	}

	if !s.det.HasChanged(latest, doc) {
		return store.WriteResult{Written: false, Snapshot: latest}, nil
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return store.WriteResult{}, fmt.Errorf("encode snapshot body: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(bodyKey(e.Key(), stamp), body)
	})
	if err != nil {
		return store.WriteResult{}, fmt.Errorf("entity %s: persist body %s: %v: %w",
			e.Key(), stamp, err, valgarkiv.ErrStorageWrite)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(pointerKey(e.Key()), []byte(stamp))
	})
	if err != nil {
		return store.WriteResult{}, fmt.Errorf("entity %s: advance latest pointer to %s: %v: %w",
			e.Key(), stamp, err, valgarkiv.ErrStorageWrite)
	}

	return store.WriteResult{
		Written:  true,
		Snapshot: &snapshot.Snapshot{EntityKey: e.Key(), Stamp: stamp, Doc: doc},
	}, nil
}

// Latest implements store.SnapshotStore. It takes no entity lock: the
// pointer is a single key, so a reader sees either the old or the new
// stamp, and the referenced body always exists because bodies commit
// before the pointer moves.
func (s *Store) Latest(ctx context.Context, e entity.Entity) (*snapshot.Snapshot, error) {
	return s.readLatest(e.Key())
}

func (s *Store) readLatest(entityKey string) (*snapshot.Snapshot, error) {
	var snap *snapshot.Snapshot

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(pointerKey(entityKey))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}

		stampBytes, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		stamp := snapshot.Stamp(stampBytes)

		loaded, err := readBody(txn, entityKey, stamp)
		if err != nil {
			return fmt.Errorf("latest pointer %s dangling: %w", stamp, err)
		}
		snap = loaded
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("entity %s: read latest: %w", entityKey, err)
	}
	return snap, nil
}

func readBody(txn *badger.Txn, entityKey string, stamp snapshot.Stamp) (*snapshot.Snapshot, error) {
	item, err := txn.Get(bodyKey(entityKey, stamp))
	if err != nil {
		return nil, err
	}

	var doc snapshot.Document
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &doc)
	})
	if err != nil {
		return nil, fmt.Errorf("decode snapshot body %s: %w", stamp, err)
	}

	return &snapshot.Snapshot{EntityKey: entityKey, Stamp: stamp, Doc: doc}, nil
}

// History implements store.SnapshotStore. The stamps are collected in one
// read transaction; bodies load lazily as the cursor advances.
func (s *Store) History(ctx context.Context, e entity.Entity) (store.Cursor, error) {
	prefix := bodyPrefix(e.Key())

	var stamps []snapshot.Stamp
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			stamps = append(stamps, snapshot.Stamp(key[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("entity %s: enumerate history: %w", e.Key(), err)
	}

	return &cursor{store: s, entityKey: e.Key(), stamps: stamps}, nil
}

type cursor struct {
	store     *Store
	entityKey string
	stamps    []snapshot.Stamp
	next      int
}

func (c *cursor) Next(ctx context.Context) (*snapshot.Snapshot, bool, error) {
	for c.next < len(c.stamps) {
		stamp := c.stamps[c.next]
		c.next++

		var snap *snapshot.Snapshot
		err := c.store.db.View(func(txn *badger.Txn) error {
			loaded, err := readBody(txn, c.entityKey, stamp)
			if err != nil {
				return err
			}
			snap = loaded
			return nil
		})
		if err == badger.ErrKeyNotFound {
			// Deleted by a concurrent sweep; skip.
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("entity %s: read history %s: %w", c.entityKey, stamp, err)
		}
		return snap, true, nil
	}
	return nil, false, nil
}

// Delete implements store.SnapshotStore. It takes the entity lock so a
// concurrent WriteIfChanged cannot race the pointer check.
func (s *Store) Delete(ctx context.Context, e entity.Entity, stamp snapshot.Stamp) error {
	unlock := s.locks.Lock(e.Key())
	defer unlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(pointerKey(e.Key()))
		if err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		if err == nil {
			latest, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if snapshot.Stamp(latest) == stamp {
				return valgarkiv.ErrLatestProtected
			}
		}
		return txn.Delete(bodyKey(e.Key(), stamp))
	})
	if err == valgarkiv.ErrLatestProtected {
		return fmt.Errorf("entity %s: delete %s: %w", e.Key(), stamp, err)
	}
	if err != nil {
		return fmt.Errorf("entity %s: delete %s: %v: %w", e.Key(), stamp, err, valgarkiv.ErrStorageDelete)
	}
	return nil
}
