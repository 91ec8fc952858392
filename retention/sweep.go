package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/maps"
	"golang.org/x/sync/errgroup"

	valgarkiv "github.com/eklundh/valgarkiv"
	"github.com/eklundh/valgarkiv/entity"
	"github.com/eklundh/valgarkiv/store"
)

// Failure records one entity whose snapshots could not be pruned. The
// sweep continues past it; the next scheduled sweep retries naturally.
type Failure struct {
	EntityKey string
	Err       error
}

// Report summarizes one sweep.
type Report struct {
	// ID correlates the sweep's log lines.
	ID      string
	Period  Period
	Started time.Time
	Took    time.Duration
	// Deleted counts removed snapshots per entity level.
	Deleted  map[entity.Level]int
	Failures []Failure
}

// TotalDeleted sums the per-level counts.
func (r Report) TotalDeleted() int {
	total := 0
	for _, n := range r.Deleted {
		total += n
	}
	return total
}

// String renders the per-level counts in a stable order for logs.
func (r Report) String() string {
	levels := maps.Keys(r.Deleted)
	sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })

	s := fmt.Sprintf("sweep %s period=%s deleted=%d failures=%d", r.ID, r.Period, r.TotalDeleted(), len(r.Failures))
	for _, l := range levels {
		s += fmt.Sprintf(" %s=%d", l, r.Deleted[l])
	}
	return s
}

// Enforcer runs retention sweeps. It is stateless between invocations;
// an external scheduler triggers Sweep once per day. Running it twice
// for the same day is harmless: the second pass deletes nothing.
type Enforcer struct {
	store       store.SnapshotStore
	registry    *entity.Registry
	policy      Policy
	classifier  Classifier
	logger      *slog.Logger
	metrics     *Metrics
	parallelism int
}

// Option configures an Enforcer.
type Option func(*Enforcer)

func WithLogger(l *slog.Logger) Option   { return func(e *Enforcer) { e.logger = l } }
func WithMetrics(m *Metrics) Option      { return func(e *Enforcer) { e.metrics = m } }
func WithClassifier(c Classifier) Option { return func(e *Enforcer) { e.classifier = c } }
func WithParallelism(n int) Option       { return func(e *Enforcer) { e.parallelism = n } }

// New validates the policy table (fatal here, never at sweep time) and
// builds the enforcer.
func New(st store.SnapshotStore, reg *entity.Registry, policy Policy, opts ...Option) (*Enforcer, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	e := &Enforcer{
		store:       st,
		registry:    reg,
		policy:      policy,
		classifier:  DefaultClassifier(),
		logger:      slog.New(slog.DiscardHandler),
		parallelism: 16,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Sweep prunes every registered entity's history for the policy in force
// at now. Entities are swept in parallel and independently: one entity's
// storage failure is recorded in the report, not escalated.
func (e *Enforcer) Sweep(ctx context.Context, now time.Time) (Report, error) {
	start := time.Now()
	report := Report{
		ID:      uuid.NewString(),
		Period:  e.classifier.Classify(now),
		Started: now,
		Deleted: make(map[entity.Level]int),
	}

	e.logger.Info("retention sweep starting", "sweep", report.ID, "period", report.Period)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(e.parallelism)

	for _, ent := range e.registry.All() {
		g.Go(func() error {
			deleted, err := e.sweepEntity(ctx, ent, report.Period, now)

			mu.Lock()
			defer mu.Unlock()
			report.Deleted[ent.Level] += deleted
			if err != nil {
				report.Failures = append(report.Failures, Failure{EntityKey: ent.Key(), Err: err})
				e.logger.Warn("entity sweep failed", "sweep", report.ID, "entity", ent.Key(), "deleted", deleted, "error", err)
			}
			return nil
		})
	}
	// Failures are carried in the report, never as a group error.
	_ = g.Wait()

	report.Took = time.Since(start)
	for level, n := range report.Deleted {
		e.metrics.AddDeleted(string(level), n)
	}
	e.metrics.AddFailures(len(report.Failures))
	e.metrics.ObserveSweep(report.Took)

	e.logger.Info("retention sweep finished", "sweep", report.ID,
		"deleted", report.TotalDeleted(), "failures", len(report.Failures), "took", report.Took)

	return report, nil
}

// sweepEntity prunes one entity and returns how many snapshots it
// removed before stopping (on completion or on the first storage error).
func (e *Enforcer) sweepEntity(ctx context.Context, ent entity.Entity, period Period, now time.Time) (int, error) {
	rule := e.policy.Rule(ent.Level, period)
	if rule.Kind == KindKeepAll {
		return 0, nil
	}

	latest, err := e.store.Latest(ctx, ent)
	if err != nil {
		return 0, fmt.Errorf("read latest: %w", err)
	}
	if latest == nil {
		// Never ingested; nothing to prune.
		return 0, nil
	}

	cutoff := now.Add(-rule.Window)

	cur, err := e.store.History(ctx, ent)
	if err != nil {
		return 0, fmt.Errorf("enumerate history: %w", err)
	}

	deleted := 0
	for {
		snap, ok, err := cur.Next(ctx)
		if err != nil {
			return deleted, fmt.Errorf("walk history: %w", err)
		}
		if !ok {
			return deleted, nil
		}

		// The latest-referenced snapshot is retention-exempt regardless
		// of age. This is what keeps a sweep from ever racing an ingest
		// into deleting a snapshot being installed as the new latest.
		if snap.Stamp == latest.Stamp {
			continue
		}

		if rule.Kind == KindWindow {
			ts, err := snap.Stamp.Time()
			if err != nil {
				// Unreadable stamp: retain for manual review.
				continue
			}
			if !ts.Before(cutoff) {
				// History is oldest-first; everything from here on is
				// inside the window.
				return deleted, nil
			}
		}

		if err := e.store.Delete(ctx, ent, snap.Stamp); err != nil {
			if errors.Is(err, valgarkiv.ErrLatestProtected) {
				// The pointer moved under us; the snapshot is live now.
				continue
			}
			return deleted, err
		}
		deleted++
	}
}
