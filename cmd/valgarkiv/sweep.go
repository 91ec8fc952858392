package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"
)

func runSweep() error {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)

	fs.Usage = func() {
		fmt.Println(`valgarkiv sweep - run one retention sweep and print the report

Usage:
  valgarkiv sweep

Applies the retention policy for the current date to every configured
year and prints the per-year reports. The monitor command sweeps daily on
its own; this command exists for manual and scheduled runs.`)
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx := context.Background()
	metrics := newSharedMetrics()

	for _, year := range cfg.Years {
		ya, err := buildYearArchive(ctx, cfg, year, logger, metrics)
		if err != nil {
			return err
		}

		report, err := ya.archive.SweepRetention(ctx, time.Now())
		ya.close()
		if err != nil {
			return fmt.Errorf("sweep %s: %w", year, err)
		}

		fmt.Printf("%s: %s\n", year, report)
		for _, f := range report.Failures {
			fmt.Printf("  failed %s: %v\n", f.EntityKey, f.Err)
		}
	}
	return nil
}
