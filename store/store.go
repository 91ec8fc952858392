// Package store defines the snapshot store contract shared by the
// storage backends: an append-only, per-entity ordered history of
// timestamped documents plus one mutable latest-pointer per entity.
package store

import (
	"context"

	"github.com/eklundh/valgarkiv/entity"
	"github.com/eklundh/valgarkiv/snapshot"
)

// WriteResult reports the outcome of a write-if-changed call. Snapshot is
// the new snapshot when Written, otherwise the untouched current latest.
type WriteResult struct {
	Written  bool
	Snapshot *snapshot.Snapshot
}

// Cursor walks one entity's history, oldest first. Each History call
// returns a fresh cursor, so enumeration is restartable.
type Cursor interface {
	// Next returns the next snapshot, or ok=false when the history is
	// exhausted.
	Next(ctx context.Context) (snap *snapshot.Snapshot, ok bool, err error)
}

// SnapshotStore is the archive's persistence contract.
//
// WriteIfChanged reads the entity's current latest snapshot, runs change
// detection, and only on a change persists the new snapshot body durably
// before atomically advancing the latest pointer. A crash between the
// two writes leaves the previous pointer valid. The stamp must be
// strictly greater than the current latest stamp
// (valgarkiv.ErrOutOfOrderTimestamp otherwise).
//
// Calls for the same entity are serialized by the implementation; calls
// for different entities proceed in parallel.
type SnapshotStore interface {
	WriteIfChanged(ctx context.Context, e entity.Entity, doc snapshot.Document, stamp snapshot.Stamp) (WriteResult, error)

	// Latest returns the snapshot the latest pointer references, or nil
	// if the entity has never been written.
	Latest(ctx context.Context, e entity.Entity) (*snapshot.Snapshot, error)

	// History enumerates the entity's non-deleted snapshots, oldest
	// first.
	History(ctx context.Context, e entity.Entity) (Cursor, error)

	// Delete removes one snapshot. It refuses to remove the snapshot the
	// latest pointer references (valgarkiv.ErrLatestProtected). Only the
	// retention enforcer calls this.
	Delete(ctx context.Context, e entity.Entity, stamp snapshot.Stamp) error
}
