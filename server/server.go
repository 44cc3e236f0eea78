// Package server is the read-only web viewer of the stored snapshots: HTML
// pages for people and a JSON API for tools.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/etnz/fundmate"
	"github.com/etnz/fundmate/date"
	"github.com/etnz/fundmate/renderer"
	"github.com/etnz/fundmate/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// Config holds server configuration.
type Config struct {
	Addr        string
	Store       store.Store
	FX          store.Converter // optional, for USD totals
	CORSOrigins []string        // origins allowed to call the API, none when empty
	Log         zerolog.Logger
}

// Server serves the snapshots of a store.
type Server struct {
	router *chi.Mux
	server *http.Server
	store  store.Store
	fx     store.Converter
	log    zerolog.Logger
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		store:  cfg.Store,
		fx:     cfg.FX,
		log:    cfg.Log.With().Str("component", "server").Logger(),
	}
	s.setupMiddleware()
	s.setupRoutes(cfg.CORSOrigins)

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(30 * time.Second))
}

func (s *Server) setupRoutes(origins []string) {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/", s.handleIndex)
	s.router.Get("/snapshots/{date}", s.handleSnapshotPage)

	s.router.Route("/api", func(r chi.Router) {
		if len(origins) > 0 {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins: origins,
				AllowedMethods: []string{"GET", "OPTIONS"},
				AllowedHeaders: []string{"Accept", "Content-Type"},
				MaxAge:         300,
			}))
		}
		r.Get("/snapshots", s.handleDates)
		r.Get("/snapshots/{date}", s.handleSnapshot)
		r.Get("/snapshots/{date}/audit", s.handleAudit)
		r.Get("/summary/{date}", s.handleSummary)
	})
}

// Handler returns the http handler of the server.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// dateParam reads the {date} parameter, "latest" being the most recent
// stored date.
func (s *Server) dateParam(r *http.Request) (date.Date, int, error) {
	v := chi.URLParam(r, "date")
	if v == "latest" {
		on, err := store.Latest(r.Context(), s.store)
		if errors.Is(err, store.ErrNotFound) {
			return date.Date{}, http.StatusNotFound, err
		}
		if err != nil {
			return date.Date{}, http.StatusInternalServerError, err
		}
		return on, 0, nil
	}
	on, err := date.Parse(v)
	if err != nil {
		return date.Date{}, http.StatusBadRequest, fmt.Errorf("invalid date %q", v)
	}
	return on, 0, nil
}

// load returns the snapshot of the {date} parameter, or writes the error.
func (s *Server) load(w http.ResponseWriter, r *http.Request) (*fundmate.Portfolio, bool) {
	on, status, err := s.dateParam(r)
	if err != nil {
		s.writeError(w, status, err.Error())
		return nil, false
	}
	p, err := s.store.Load(r.Context(), on)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	if err != nil {
		s.log.Error().Err(err).Stringer("date", on).Msg("Failed to load snapshot")
		s.writeError(w, http.StatusInternalServerError, "cannot load snapshot")
		return nil, false
	}
	return p, true
}

func (s *Server) handleDates(w http.ResponseWriter, r *http.Request) {
	dates, err := s.store.Dates(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list snapshots")
		s.writeError(w, http.StatusInternalServerError, "cannot list snapshots")
		return
	}
	if dates == nil {
		dates = []date.Date{}
	}
	s.writeJSON(w, http.StatusOK, dates)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	p, ok := s.load(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	on, status, err := s.dateParam(r)
	if err != nil {
		s.writeError(w, status, err.Error())
		return
	}
	records, err := s.store.LoadAudit(r.Context(), on)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.log.Error().Err(err).Stringer("date", on).Msg("Failed to load audit")
		s.writeError(w, http.StatusInternalServerError, "cannot load audit")
		return
	}
	if records == nil {
		records = []fundmate.AuditRecord{}
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	p, ok := s.load(w, r)
	if !ok {
		return
	}
	sum, err := Summarize(r.Context(), p, s.fx)
	if err != nil {
		s.log.Warn().Err(err).Stringer("date", p.Date).Msg("Summary without USD totals")
	}
	s.writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	dates, err := s.store.Dates(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list snapshots")
		http.Error(w, "cannot list snapshots", http.StatusInternalServerError)
		return
	}
	var b strings.Builder
	b.WriteString("# Snapshots\n\n")
	if len(dates) == 0 {
		b.WriteString("No snapshot yet.\n")
	}
	for i := len(dates) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "- [%s](/snapshots/%s)\n", dates[i], dates[i])
	}
	s.writeMarkdown(w, "Snapshots", b.String())
}

func (s *Server) handleSnapshotPage(w http.ResponseWriter, r *http.Request) {
	on, status, err := s.dateParam(r)
	if err != nil {
		http.Error(w, err.Error(), status)
		return
	}
	p, err := s.store.Load(r.Context(), on)
	if errors.Is(err, store.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.log.Error().Err(err).Stringer("date", on).Msg("Failed to load snapshot")
		http.Error(w, "cannot load snapshot", http.StatusInternalServerError)
		return
	}
	md := renderer.RenderSnapshot(renderer.NewSnapshot(p))
	if records, err := s.store.LoadAudit(r.Context(), on); err == nil && len(records) > 0 {
		report := fundmate.NewUpdateReport(&fundmate.Portfolio{}, p, records, nil)
		view := renderer.NewReport(report, records, nil)
		md += "\n" + renderer.RenderReport(view, renderer.ReportRenderOptions{SkipPrices: true})
	}
	s.writeMarkdown(w, "Portfolio on "+on.String(), md)
}

const page = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>%s</title>
<style>body{font-family:sans-serif;max-width:72em;margin:auto}table{border-collapse:collapse}td,th{border:1px solid #ccc;padding:.2em .5em}</style>
</head><body>
%s
</body></html>
`

func (s *Server) writeMarkdown(w http.ResponseWriter, title, md string) {
	body, err := renderer.HTML(md)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to render page")
		http.Error(w, "cannot render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, page, title, body)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
