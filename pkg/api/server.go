// Package api exposes the benchmark service over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/dd0wney/cluso-bench/pkg/api/middleware"
	"github.com/dd0wney/cluso-bench/pkg/bench"
	"github.com/dd0wney/cluso-bench/pkg/events"
	"github.com/dd0wney/cluso-bench/pkg/generator"
	"github.com/dd0wney/cluso-bench/pkg/health"
	"github.com/dd0wney/cluso-bench/pkg/logging"
	"github.com/dd0wney/cluso-bench/pkg/metrics"
	"github.com/dd0wney/cluso-bench/pkg/service"
	"github.com/dd0wney/cluso-bench/pkg/snapshot"
	"github.com/dd0wney/cluso-bench/pkg/tasks"
)

// Prefix is the root of the benchmark routes
const Prefix = "/api/benchmark"

// DefaultMaxBodyBytes bounds request bodies
const DefaultMaxBodyBytes = 1 << 20

// Jobs is the part of service.Service the handlers use
type Jobs interface {
	StartGeneration(plan generator.Plan) (string, error)
	StartBenchmark(params bench.Params) (string, error)
	Status(id string) tasks.View
	Results(ctx context.Context, id string) tasks.View
	Benchmarks() []tasks.View
	Tasks() []tasks.View
	Compare(ctx context.Context, pgTaskID, neoTaskID string) (*service.RunComparison, error)
	GenerationMetrics(ctx context.Context, id string) (snapshot.GenerationMetrics, error)
	LatestGenerationMetrics(ctx context.Context) (snapshot.GenerationMetrics, error)
	RandomIDs(ctx context.Context) (service.RandomIDs, error)
	Bus() *events.Bus
}

// Options configures a Server
type Options struct {
	Jobs         Jobs
	Health       *health.HealthChecker
	Metrics      *metrics.Registry
	Logger       logging.Logger
	CORSOrigins  []string
	MaxBodyBytes int64
}

// Server routes HTTP requests to the job service
type Server struct {
	jobs    Jobs
	health  *health.HealthChecker
	metrics *metrics.Registry
	logger  logging.Logger
	cors    *middleware.CORSConfig
	limit   int64
	mux     *http.ServeMux
}

// NewServer creates a server and registers its routes
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	hc := opts.Health
	if hc == nil {
		hc = health.NewHealthChecker()
	}
	limit := opts.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = opts.CORSOrigins

	s := &Server{
		jobs:    opts.Jobs,
		health:  hc,
		metrics: opts.Metrics,
		logger:  logger.With(logging.Component("api")),
		cors:    cors,
		limit:   limit,
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.handle("POST "+Prefix+"/generate", s.handleGenerate)
	s.handle("POST "+Prefix+"/run", s.handleRun)
	s.handle("GET "+Prefix+"/status/{id}", s.handleStatus)
	s.handle("GET "+Prefix+"/results/{id}", s.handleResults)
	s.handle("GET "+Prefix+"/list", s.handleList)
	s.handle("GET "+Prefix+"/tasks", s.handleTasks)
	s.handle("GET "+Prefix+"/compare", s.handleCompare)
	s.handle("GET "+Prefix+"/metrics/generation/latest", s.handleLatestGenerationMetrics)
	s.handle("GET "+Prefix+"/metrics/generation/{id}", s.handleGenerationMetrics)
	s.handle("GET "+Prefix+"/random-ids", s.handleRandomIDs)
	s.handle("GET "+Prefix+"/events/{id}", s.handleEvents)

	s.handle("GET /health", s.health.HTTPHandler())
	s.handle("GET /health/ready", s.health.ReadinessHandler())
	s.handle("GET /health/live", s.health.LivenessHandler())
	if s.metrics != nil {
		s.handle("GET /metrics", s.metrics.Handler().ServeHTTP)
	}
}

// handle registers h with per-route metrics labelled by its pattern
func (s *Server) handle(pattern string, h http.HandlerFunc) {
	var recorder middleware.MetricsRecorder
	if s.metrics != nil {
		recorder = s.metrics
	}
	s.mux.Handle(pattern, middleware.Metrics(recorder, pattern)(h))
}

// Handler returns the routes wrapped in the middleware chain
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = middleware.BodySizeLimit(s.limit)(h)
	h = middleware.CORS(s.cors)(h)
	h = middleware.PanicRecovery(s.logger)(h)
	h = middleware.Logging(s.logger)(h)
	h = middleware.RequestID()(h)
	return h
}
