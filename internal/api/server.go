package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/snarg/stt-engine/internal/config"
	"github.com/snarg/stt-engine/internal/engine"
	"github.com/snarg/stt-engine/internal/ingest"
	"github.com/snarg/stt-engine/internal/metrics"
)

// Scheduler is the engine surface the HTTP layer needs. Satisfied by
// *engine.Engine.
type Scheduler interface {
	Submit(ctx context.Context, req engine.SubmitRequest) (*engine.Receipt, error)
	GetStatus(requestID string) (*engine.JobStatus, error)
	EstimateCost(fileSizeBytes int64, durationSeconds float64, providerHint string) (*engine.CostEstimate, error)
	Usage() engine.UsageSnapshot
	StatsSnapshot(ctx context.Context) engine.Stats
}

// Pinger is a backend that can report liveness, e.g. the queue store or the
// result cache.
type Pinger interface {
	Ping(ctx context.Context) error
	Type() string
}

// Deps are the collaborators the server exposes over HTTP.
type Deps struct {
	Scheduler Scheduler
	Queue     Pinger
	Cache     Pinger              // nil when caching is off
	Watcher   func() ingest.Stats // nil when the spool watcher is off
}

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func NewServer(cfg *config.Config, deps Deps, version string, startTime time.Time, log zerolog.Logger) *Server {
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(log))
	r.Use(metrics.InstrumentHandler)

	// Unauthenticated: health and metrics
	health := NewHealthHandler(deps, version, startTime)
	r.Get("/api/v1/health", health.ServeHTTP)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Authenticated job API
	h := &jobHandler{scheduler: deps.Scheduler}
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(cfg.AuthToken))
		r.Post("/api/v1/jobs", h.submit)
		r.Get("/api/v1/jobs/{requestID}", h.status)
		r.Post("/api/v1/estimate", h.estimate)
		r.Get("/api/v1/usage", h.usage)
		r.Get("/api/v1/stats", h.stats)
	})

	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: log,
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
