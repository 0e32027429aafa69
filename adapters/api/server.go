package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"buurtstat/domain/report"
)

// SummarySource provides the latest results summary. The file-backed
// source is the default; a database-backed source takes precedence when
// configured.
type SummarySource interface {
	LatestSummary(ctx context.Context) (*report.Summary, error)
}

// Server exposes the analysis results over HTTP for the dashboard.
type Server struct {
	router         *chi.Mux
	port           string
	source         SummarySource
	fallback       SummarySource
	regressionFile string
	reportFile     string
	tableFile      string
}

// Config holds results server settings.
type Config struct {
	Port           string
	Source         SummarySource
	Fallback       SummarySource // used when Source fails, may be nil
	RegressionFile string
	ReportFile     string
	TableFile      string // processed analysis table CSV
}

// NewServer creates the results server with routes configured.
func NewServer(cfg Config) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		port:           cfg.Port,
		source:         cfg.Source,
		fallback:       cfg.Fallback,
		regressionFile: cfg.RegressionFile,
		reportFile:     cfg.ReportFile,
		tableFile:      cfg.TableFile,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(middleware.Timeout(30 * time.Second))
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Get("/", s.handleReportPage)
	s.router.Get("/tables/regression", s.handleRegressionTable)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/results", s.handleResults)
		r.Get("/table", s.handleTable)
		r.Get("/results/sample", s.handleSample)
		r.Get("/results/icc", s.handleICC)
		r.Get("/results/key-effect", s.handleKeyEffect)
		r.Get("/results/sensitivity", s.handleSensitivity)
		r.Get("/results/moderation", s.handleModeration)
		r.Get("/results/comparison", s.handleComparison)
		r.Get("/results/validation", s.handleValidation)
	})
}

// Handler returns the configured router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         ":" + s.port,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("[API] Results server listening on :%s", s.port)
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errc:
		return err
	}
}

// summary resolves the latest summary, falling back when configured.
func (s *Server) summary(ctx context.Context) (*report.Summary, error) {
	out, err := s.source.LatestSummary(ctx)
	if err != nil && s.fallback != nil {
		log.Printf("[API] Primary results source failed (%v), using fallback", err)
		return s.fallback.LatestSummary(ctx)
	}
	return out, err
}
