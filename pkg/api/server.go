// Package api serves barista's read operations and scan requests over HTTP.
//
// Routes mirror the operations of the store, the aggregator and the stats
// engine. Errors are reported as {"code", "message"} with a status derived
// from the error code.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Tim-sandbox/barista/pkg/aggregate"
	"github.com/Tim-sandbox/barista/pkg/repo"
	"github.com/Tim-sandbox/barista/pkg/scan"
	"github.com/Tim-sandbox/barista/pkg/scanlog"
	"github.com/Tim-sandbox/barista/pkg/stats"
	"github.com/Tim-sandbox/barista/pkg/store"
)

// shutdownTimeout bounds graceful shutdown of in-flight requests.
const shutdownTimeout = 10 * time.Second

// Options wires the server to its collaborators. Store, Runner, Aggregator
// and Stats are required.
type Options struct {
	Store      *store.Store
	Runner     *scan.Runner
	Aggregator *aggregate.Aggregator
	Stats      *stats.Engine
	Repo       repo.Accessor // project URL validation; git when nil
	Logs       scanlog.Store // scan logs; the SQLite store when nil
	Metrics    http.Handler  // served at /metrics when set
	Logger     *log.Logger
}

// Server is the HTTP API.
type Server struct {
	store   *store.Store
	runner  *scan.Runner
	agg     *aggregate.Aggregator
	stats   *stats.Engine
	repo    repo.Accessor
	logs    scanlog.Store
	metrics http.Handler
	logger  *log.Logger
}

// New creates a server.
func New(opts Options) *Server {
	s := &Server{
		store:   opts.Store,
		runner:  opts.Runner,
		agg:     opts.Aggregator,
		stats:   opts.Stats,
		repo:    opts.Repo,
		logs:    opts.Logs,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
	if s.logger == nil {
		s.logger = log.New(io.Discard)
	}
	if s.repo == nil {
		s.repo = repo.NewGit(nil, nil, s.logger)
	}
	if s.logs == nil {
		s.logs = scanlog.NewSQLite(s.store)
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/projects", func(r chi.Router) {
		r.Get("/", s.listProjects)
		r.Post("/", s.createProject)
		r.Get("/validate", s.validateProject)

		r.Route("/{projectID}", func(r chi.Router) {
			r.Get("/", s.getProject)
			r.Put("/", s.updateProject)
			r.Get("/branches", s.branches)
			r.Get("/scans", s.listScans)
			r.Post("/scans", s.startScan)

			r.Get("/stats/project-scan-status", s.projectStatus)
			r.Get("/stats/licenses", s.distinct(distinctLicenses))
			r.Get("/stats/severities", s.distinct(distinctSeverities))
			r.Get("/stats/vulnerabilities", s.distinct(distinctVulnerabilities))
			r.Get("/stats/distinct", s.distinct(nil))

			r.Get("/bill-of-materials/licenses", s.licenseBOM)
			r.Get("/bill-of-materials/vulnerabilities", s.securityBOM)
			r.Get("/bill-of-materials/licenses-only", s.licensesOnly)
			r.Get("/bill-of-materials/export", s.exportBOM)
		})
	})

	r.Route("/scans/{scanID}", func(r chi.Router) {
		r.Get("/", s.getScan)
		r.Get("/logs", s.scanLog)
	})

	r.Route("/stats", func(r chi.Router) {
		r.Get("/", s.fleetSummary)
		r.Get("/licensenoncompliance/index", s.fleetIndex(s.stats.LicenseNonComplianceIndex))
		r.Get("/highvulnerability/index", s.fleetIndex(s.stats.HighVulnerabilityIndex))
		r.Get("/components", s.fleetCounts(s.stats.TopLicenses))
		r.Get("/components/scans", s.fleetCounts(s.stats.TopComponents))
		r.Get("/vulnerabilities", s.fleetCounts(s.stats.TopVulnerabilities))
		r.Get("/projects", s.fleetCounts(s.stats.MonthlyProjects))
		r.Get("/projects/scans", s.fleetCounts(s.stats.MonthlyScans))
		r.Get("/badges/{projectID}", s.badges)
		r.Get("/badges/{projectID}/{kind}", s.badge)
	})

	return r
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
