// Package controlplane is the HTTP API of the bypass service: module
// discovery, chain management and execution, stagers, operations and the
// audit log.
package controlplane

import (
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/phoenix-bypass/internal/pipeline"
)

// Version is reported by /misc/version. It is set at build time.
var Version = "dev"

type Server struct {
	router    *chi.Mux
	startTime time.Time
	svc       *pipeline.Service
	formats   []string
	logger    *slog.Logger
}

// Config configures a Server.
type Config struct {
	Service *pipeline.Service
	// Formats lists the stager output formats advertised by /misc/available.
	Formats []string
	Logger  *slog.Logger
}

func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		router:    chi.NewRouter(),
		startTime: time.Now(),
		svc:       cfg.Service,
		formats:   cfg.Formats,
		logger:    logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Route("/bypasses", func(r chi.Router) {
		r.Get("/", s.handleListBypasses)
		r.Get("/{category}/{name}", s.handleGetBypass)
		r.Get("/run/{category}/{name}", s.handleRunBypass)

		r.Route("/chains", func(r chi.Router) {
			r.Get("/", s.handleListChains)
			r.Get("/all", s.handleListChains)
			r.Get("/export", s.handleExportChains)
			r.Post("/import", s.handleImportChains)
			r.Post("/add", s.handleAddChain)

			r.Route("/{chain_id}", func(r chi.Router) {
				r.Get("/", s.handleGetChain)
				r.Get("/export", s.handleExportChain)
				r.Delete("/remove", s.handleRemoveChain)
				r.Put("/edit", s.handleEditChain)
				r.Get("/run", s.handleRunChain)

				r.Post("/bypasses/add", s.handleAddBypassToChain)
				r.Delete("/bypasses/clear", s.handleClearChain)
				r.Delete("/bypasses/{position}/remove", s.handleRemoveBypassFromChain)
				r.Put("/bypasses/{position}/move", s.handleMoveBypassInChain)
			})
		})
	})

	s.router.Route("/stagers", func(r chi.Router) {
		r.Get("/", s.handleListStagers)
		r.Post("/", s.handleAddStager)
		r.Post("/add", s.handleAddStager)
		r.Get("/{stager_id}", s.handleGetStager)
		r.Delete("/{stager_id}/remove", s.handleRemoveStager)
	})

	s.router.Route("/operations", func(r chi.Router) {
		r.Get("/", s.handleListOperations)
		r.Post("/", s.handleAddOperation)
		r.Put("/{operation_id}/activate", s.handleActivateOperation)
	})

	s.router.Get("/logs", s.handleListLogs)
	s.router.Get("/misc/available", s.handleAvailable)
	s.router.Get("/misc/stats", s.handleStats)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// PublicRoutes registers the endpoints that need no authentication.
func (s *Server) PublicRoutes(r chi.Router) {
	r.Get("/misc/version", s.handleVersion)
}

type VersionResponse struct {
	Version string `json:"version"`
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: Version})
}

type AvailableResponse struct {
	Status   string              `json:"status"`
	Bypasses map[string][]string `json:"bypasses"`
	Formats  []string            `json:"formats"`
}

func (s *Server) handleAvailable(w http.ResponseWriter, r *http.Request) {
	formats := s.formats
	if formats == nil {
		formats = []string{}
	}
	writeJSON(w, http.StatusOK, AvailableResponse{
		Status:   statusSuccess,
		Bypasses: s.svc.Catalog().List(""),
		Formats:  formats,
	})
}

type StatsResponse struct {
	Uptime       string      `json:"uptime"`
	GoVersion    string      `json:"go_version"`
	NumGoroutine int         `json:"num_goroutine"`
	Memory       MemoryStats `json:"memory"`
}

type MemoryStats struct {
	Alloc      uint64 `json:"alloc"`
	TotalAlloc uint64 `json:"total_alloc"`
	Sys        uint64 `json:"sys"`
	NumGC      uint32 `json:"num_gc"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	writeJSON(w, http.StatusOK, StatsResponse{
		Uptime:       time.Since(s.startTime).String(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		Memory: MemoryStats{
			Alloc:      m.Alloc,
			TotalAlloc: m.TotalAlloc,
			Sys:        m.Sys,
			NumGC:      m.NumGC,
		},
	})
}
