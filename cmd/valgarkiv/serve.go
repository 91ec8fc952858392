package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eklundh/valgarkiv/httpapi"
)

func runServe() error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)

	var (
		year = fs.String("year", "", "election year to serve (default: first configured year)")
		addr = fs.String("addr", "", "listen address (default: listenAddr from config)")
	)

	fs.Usage = func() {
		fmt.Println(`valgarkiv serve - serve the archive read-only over HTTP

Usage:
  valgarkiv serve [flags]

Flags:`)
		fs.PrintDefaults()
		fmt.Println(`
Routes:
  GET /entities
  GET /entities/{level}/{id}/latest
  GET /entities/{level}/{id}/history
  GET /healthz
  GET /metrics`)
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	if *year == "" {
		if len(cfg.Years) == 0 {
			return fmt.Errorf("no years configured")
		}
		*year = cfg.Years[0]
	}
	if *addr == "" {
		*addr = cfg.ListenAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg, err := loadRegistry(ctx, cfg, *year, logger)
	if err != nil {
		return err
	}

	st, closeStore, err := openStore(ctx, cfg, *year)
	if err != nil {
		return err
	}
	defer closeStore()

	srv := &http.Server{
		Addr:    *addr,
		Handler: httpapi.NewServer(st, reg, logger).Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving archive", "year", *year, "addr", *addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
