// Package archive composes the snapshot store and the retention enforcer
// into the two operations the collaborators call: ingest and sweep.
package archive

import (
	"context"
	"errors"
	"log/slog"
	"time"

	valgarkiv "github.com/eklundh/valgarkiv"
	"github.com/eklundh/valgarkiv/entity"
	"github.com/eklundh/valgarkiv/retention"
	"github.com/eklundh/valgarkiv/snapshot"
	"github.com/eklundh/valgarkiv/store"
)

// Archive is the facade over the snapshot store and retention enforcer.
// It holds no state of its own.
type Archive struct {
	store    store.SnapshotStore
	enforcer *retention.Enforcer
	logger   *slog.Logger
	metrics  *Metrics
}

// Option configures an Archive.
type Option func(*Archive)

func WithLogger(l *slog.Logger) Option { return func(a *Archive) { a.logger = l } }
func WithMetrics(m *Metrics) Option    { return func(a *Archive) { a.metrics = m } }

// New wires the facade.
func New(st store.SnapshotStore, enf *retention.Enforcer, opts ...Option) *Archive {
	a := &Archive{
		store:    st,
		enforcer: enf,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Ingest records one fetched document. It writes a new snapshot iff the
// document changed meaningfully relative to the entity's current latest
// (a first observation always writes). The timestamp must be strictly
// greater than any previously used for the entity.
func (a *Archive) Ingest(ctx context.Context, e entity.Entity, doc snapshot.Document, stamp snapshot.Stamp) (store.WriteResult, error) {
	res, err := a.store.WriteIfChanged(ctx, e, doc, stamp)
	switch {
	case errors.Is(err, valgarkiv.ErrOutOfOrderTimestamp):
		a.metrics.IncIngest("rejected")
		a.logger.Warn("ingest rejected", "entity", e.Key(), "stamp", stamp, "error", err)
	case err != nil:
		a.metrics.IncIngest("error")
		a.logger.Error("ingest failed", "entity", e.Key(), "stamp", stamp, "error", err)
	case res.Written:
		a.metrics.IncIngest("written")
		a.logger.Info("snapshot written", "entity", e.Key(), "stamp", stamp)
	default:
		a.metrics.IncIngest("unchanged")
		a.logger.Debug("no meaningful change", "entity", e.Key(), "stamp", stamp)
	}
	return res, err
}

// SweepRetention prunes all entity histories for the policy in force at
// now. Per-entity failures are carried in the report, never as an error.
func (a *Archive) SweepRetention(ctx context.Context, now time.Time) (retention.Report, error) {
	return a.enforcer.Sweep(ctx, now)
}

// Latest exposes the read-only latest lookup for consumers.
func (a *Archive) Latest(ctx context.Context, e entity.Entity) (*snapshot.Snapshot, error) {
	return a.store.Latest(ctx, e)
}

// History exposes the read-only history enumeration for consumers.
func (a *Archive) History(ctx context.Context, e entity.Entity) (store.Cursor, error) {
	return a.store.History(ctx, e)
}
