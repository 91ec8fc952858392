// Package httpapi serves the archive read-only over HTTP: entity
// listings, latest snapshots and full histories, plus health and
// Prometheus metrics. Writes never pass through this surface.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eklundh/valgarkiv/entity"
	"github.com/eklundh/valgarkiv/store"
)

// Server exposes the read-only API over one registry and store.
type Server struct {
	store    store.SnapshotStore
	registry *entity.Registry
	logger   *slog.Logger
}

func NewServer(st store.SnapshotStore, reg *entity.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{store: st, registry: reg, logger: logger}
}

// Router builds the route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/entities", func(r chi.Router) {
		r.Get("/", s.listEntities)
		r.Route("/{level}/{id}", func(r chi.Router) {
			r.Get("/latest", s.getLatest)
			r.Get("/history", s.getHistory)
		})
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) listEntities(w http.ResponseWriter, r *http.Request) {
	all := s.registry.All()
	entities := make([]map[string]any, 0, len(all))
	for _, e := range all {
		entities = append(entities, map[string]any{
			"level":  e.Level,
			"id":     e.ID,
			"parent": e.ParentID,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entities": entities})
}

// resolveEntity maps the {level}/{id} path parameters onto the registry.
func (s *Server) resolveEntity(w http.ResponseWriter, r *http.Request) (entity.Entity, bool) {
	level, err := entity.ParseLevel(chi.URLParam(r, "level"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return entity.Entity{}, false
	}

	e, err := s.registry.Resolve(level, chi.URLParam(r, "id"))
	if errors.Is(err, entity.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return entity.Entity{}, false
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return entity.Entity{}, false
	}
	return e, true
}

func (s *Server) getLatest(w http.ResponseWriter, r *http.Request) {
	e, ok := s.resolveEntity(w, r)
	if !ok {
		return
	}

	snap, err := s.store.Latest(r.Context(), e)
	if err != nil {
		s.logger.Error("latest lookup failed", "entity", e.Key(), "error", err)
		writeError(w, http.StatusInternalServerError, "latest lookup failed")
		return
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, "no snapshot recorded yet")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entity":   e.Key(),
		"stamp":    snap.Stamp,
		"document": snap.Doc,
	})
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	e, ok := s.resolveEntity(w, r)
	if !ok {
		return
	}

	snaps, err := s.collectHistory(r.Context(), e)
	if err != nil {
		s.logger.Error("history enumeration failed", "entity", e.Key(), "error", err)
		writeError(w, http.StatusInternalServerError, "history enumeration failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entity":    e.Key(),
		"snapshots": snaps,
	})
}

func (s *Server) collectHistory(ctx context.Context, e entity.Entity) ([]map[string]any, error) {
	cur, err := s.store.History(ctx, e)
	if err != nil {
		return nil, err
	}

	snaps := make([]map[string]any, 0)
	for {
		snap, ok, err := cur.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return snaps, nil
		}
		snaps = append(snaps, map[string]any{
			"stamp":    snap.Stamp,
			"document": snap.Doc,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
