package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/eklundh/valgarkiv/monitor"
	"github.com/eklundh/valgarkiv/valgapi"
)

func runMonitor() error {
	fs := flag.NewFlagSet("monitor", flag.ExitOnError)

	fs.Usage = func() {
		fmt.Println(`valgarkiv monitor - poll all entities and archive changed results

Usage:
  valgarkiv monitor

Polls every registered entity on its level's cadence, archives documents
that changed meaningfully, and runs the daily retention sweep. One
scheduler runs per configured year. Stops on SIGINT/SIGTERM.`)
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := newSharedMetrics()
	client := valgapi.NewClient(cfg.APIBaseURL, valgapi.WithLogger(logger))

	g, ctx := errgroup.WithContext(ctx)
	for _, year := range cfg.Years {
		ya, err := buildYearArchive(ctx, cfg, year, logger, metrics)
		if err != nil {
			return err
		}
		defer ya.close()

		m := monitor.New(client, ya.archive, ya.registry, monitor.DefaultConfig(year),
			monitor.WithLogger(logger.With("year", year)))

		logger.Info("monitoring", "year", year, "entities", len(ya.registry.All()))
		g.Go(func() error { return m.Run(ctx) })
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		logger.Info("shutting down")
		return nil
	}
	return err
}
