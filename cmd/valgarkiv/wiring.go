package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/eklundh/valgarkiv/archive"
	"github.com/eklundh/valgarkiv/entity"
	"github.com/eklundh/valgarkiv/retention"
	"github.com/eklundh/valgarkiv/snapshot"
	"github.com/eklundh/valgarkiv/store"
	"github.com/eklundh/valgarkiv/store/badgerstore"
	"github.com/eklundh/valgarkiv/store/dynamostore"
	"github.com/eklundh/valgarkiv/valgapi"
)

func newLogger(cfg Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.slogLevel(),
	}))
}

// openStore selects the backend: a per-year BadgerDB directory by
// default, a per-year DynamoDB table when dynamoTable is configured. The
// returned close func releases whatever the backend holds.
func openStore(ctx context.Context, cfg Config, year string) (store.SnapshotStore, func() error, error) {
	det := snapshot.NewDetector(snapshot.DefaultDetectorConfig())

	if cfg.DynamoTable != "" {
		st, err := dynamostore.Open(ctx, cfg.dynamoTableFor(year), det)
		if err != nil {
			return nil, nil, fmt.Errorf("open dynamo store for %s: %w", year, err)
		}
		return st, func() error { return nil }, nil
	}

	st, err := badgerstore.New(badgerstore.Options{Path: cfg.yearDir(year)}, det)
	if err != nil {
		return nil, nil, fmt.Errorf("open store for %s: %w", year, err)
	}
	return st, st.Close, nil
}

// loadRegistry loads the static definition file when configured and falls
// back to API discovery otherwise.
func loadRegistry(ctx context.Context, cfg Config, year string, logger *slog.Logger) (*entity.Registry, error) {
	if cfg.EntitiesFile != "" {
		return entity.LoadFile(cfg.EntitiesFile)
	}
	client := valgapi.NewClient(cfg.APIBaseURL, valgapi.WithLogger(logger))
	return client.Discover(ctx, year)
}

// yearArchive bundles the per-year wiring. Metrics are shared across
// years: constructing them per year would register the same collectors
// twice.
type yearArchive struct {
	year     string
	store    store.SnapshotStore
	close    func() error
	registry *entity.Registry
	archive  *archive.Archive
}

type sharedMetrics struct {
	archive   *archive.Metrics
	retention *retention.Metrics
}

func newSharedMetrics() sharedMetrics {
	return sharedMetrics{
		archive:   archive.NewMetrics(nil),
		retention: retention.NewMetrics(nil),
	}
}

func buildYearArchive(ctx context.Context, cfg Config, year string, logger *slog.Logger, m sharedMetrics) (*yearArchive, error) {
	reg, err := loadRegistry(ctx, cfg, year, logger)
	if err != nil {
		return nil, fmt.Errorf("registry for %s: %w", year, err)
	}

	st, closeStore, err := openStore(ctx, cfg, year)
	if err != nil {
		return nil, err
	}

	enf, err := retention.New(st, reg, retention.DefaultPolicy(),
		retention.WithLogger(logger),
		retention.WithMetrics(m.retention))
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("retention for %s: %w", year, err)
	}

	arch := archive.New(st, enf,
		archive.WithLogger(logger.With("year", year)),
		archive.WithMetrics(m.archive))

	return &yearArchive{year: year, store: st, close: closeStore, registry: reg, archive: arch}, nil
}
