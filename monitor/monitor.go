// Package monitor schedules the polling of every registered entity and
// the daily retention sweep. One Monitor covers one election year; the
// binary runs one per monitored year, each over its own archive.
package monitor

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eklundh/valgarkiv/archive"
	"github.com/eklundh/valgarkiv/entity"
	"github.com/eklundh/valgarkiv/snapshot"
)

// Fetcher obtains the current result document for one entity.
type Fetcher interface {
	Fetch(ctx context.Context, year string, e entity.Entity) (snapshot.Document, error)
}

// Config carries the polling cadence. Coarser levels poll more often:
// they aggregate everything below and are cheap to fetch.
type Config struct {
	Year          string
	Intervals     map[entity.Level]time.Duration
	TickInterval  time.Duration
	SweepInterval time.Duration
	Parallelism   int
}

// DefaultConfig mirrors the production cadence.
func DefaultConfig(year string) Config {
	return Config{
		Year: year,
		Intervals: map[entity.Level]time.Duration{
			entity.LevelNation:       5 * time.Minute,
			entity.LevelCounty:       10 * time.Minute,
			entity.LevelMunicipality: 15 * time.Minute,
			entity.LevelDistrict:     time.Hour,
		},
		TickInterval:  time.Minute,
		SweepInterval: 24 * time.Hour,
		Parallelism:   32,
	}
}

// Monitor drives fetch→ingest rounds per level and the retention sweep.
type Monitor struct {
	fetcher  Fetcher
	archive  *archive.Archive
	registry *entity.Registry
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time

	lastPoll  map[entity.Level]time.Time
	lastSweep time.Time
}

// Option configures a Monitor.
type Option func(*Monitor)

func WithLogger(l *slog.Logger) Option { return func(m *Monitor) { m.logger = l } }

// WithClock overrides wall clock, for tests.
func WithClock(now func() time.Time) Option { return func(m *Monitor) { m.now = now } }

func New(f Fetcher, a *archive.Archive, reg *entity.Registry, cfg Config, opts ...Option) *Monitor {
	m := &Monitor{
		fetcher:  f,
		archive:  a,
		registry: reg,
		cfg:      cfg,
		logger:   slog.New(slog.DiscardHandler),
		now:      time.Now,
		lastPoll: make(map[entity.Level]time.Time),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run polls until the context is canceled. The first tick fires
// immediately so a fresh process starts fetching without waiting out the
// intervals.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	m.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick runs one scheduling round: every level whose interval has elapsed
// is polled, and the sweep runs when its interval has elapsed.
func (m *Monitor) Tick(ctx context.Context) {
	now := m.now()

	for _, level := range entity.Levels {
		interval, ok := m.cfg.Intervals[level]
		if !ok {
			continue
		}
		if last, polled := m.lastPoll[level]; polled && now.Sub(last) < interval {
			continue
		}
		m.pollLevel(ctx, level, now)
		m.lastPoll[level] = now
	}

	if m.lastSweep.IsZero() || now.Sub(m.lastSweep) >= m.cfg.SweepInterval {
		if _, err := m.archive.SweepRetention(ctx, now); err != nil {
			m.logger.Error("retention sweep failed", "error", err)
		}
		m.lastSweep = now
	}
}

// pollLevel fetches and ingests every entity at one level. A fetch
// failure skips the entity until its next round; the client already
// retried with backoff. Ingest rejections are logged by the archive and
// dropped here.
func (m *Monitor) pollLevel(ctx context.Context, level entity.Level, now time.Time) {
	stamp := snapshot.At(now)

	var g errgroup.Group
	g.SetLimit(m.cfg.Parallelism)

	for _, ent := range m.registry.AtLevel(level) {
		g.Go(func() error {
			doc, err := m.fetcher.Fetch(ctx, m.cfg.Year, ent)
			if err != nil {
				m.logger.Warn("fetch failed, skipping round", "entity", ent.Key(), "error", err)
				return nil
			}
			// Errors are surfaced through the archive's own logging and
			// metrics; the poll round carries on regardless.
			_, _ = m.archive.Ingest(ctx, ent, doc, stamp)
			return nil
		})
	}
	_ = g.Wait()

	m.logger.Debug("poll round finished", "level", level, "entities", len(m.registry.AtLevel(level)))
}
