// Package service runs generation and benchmark jobs in the background and
// answers queries about them. Job state lives in a tasks.Registry; finished
// results are also written to a snapshot store so they survive a restart.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dd0wney/cluso-bench/pkg/bench"
	"github.com/dd0wney/cluso-bench/pkg/catalog"
	"github.com/dd0wney/cluso-bench/pkg/events"
	"github.com/dd0wney/cluso-bench/pkg/generator"
	"github.com/dd0wney/cluso-bench/pkg/logging"
	"github.com/dd0wney/cluso-bench/pkg/metrics"
	"github.com/dd0wney/cluso-bench/pkg/snapshot"
	"github.com/dd0wney/cluso-bench/pkg/tasks"
)

var (
	// ErrShuttingDown is returned when a job is submitted after Shutdown
	ErrShuttingDown = errors.New("service is shutting down")
	// ErrNotCompleted is returned when a comparison names an unfinished task
	ErrNotCompleted = errors.New("task not completed")
)

// Deps are the collaborators of a Service. Relational and Graph receive
// generated data; Targets and Sampler drive benchmarks.
type Deps struct {
	Relational generator.RelationalWriter
	Graph      generator.GraphWriter
	Targets    []bench.Target
	Sampler    catalog.Sampler

	Registry  *tasks.Registry
	Snapshots snapshot.Store
	Bus       *events.Bus
	Metrics   *metrics.Registry

	// GeneratorOptions are appended to every generator, e.g. a memory sampler
	GeneratorOptions []generator.Option
}

// Config holds the job defaults
type Config struct {
	Generation generator.Config
	Benchmark  bench.Config
}

// Service owns the background jobs
type Service struct {
	deps   Deps
	cfg    Config
	logger logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.RWMutex
	closed     bool
	generation map[string]snapshot.GenerationMetrics
}

// New creates a service. Registry and Bus are created when nil.
func New(deps Deps, cfg Config, logger logging.Logger) (*Service, error) {
	if deps.Relational == nil || deps.Graph == nil {
		return nil, errors.New("service requires relational and graph writers")
	}
	if len(deps.Targets) == 0 || deps.Sampler == nil {
		return nil, errors.New("service requires benchmark targets and a sampler")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if deps.Registry == nil {
		deps.Registry = tasks.NewRegistry()
	}
	if deps.Bus == nil {
		deps.Bus = events.NewBus(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		deps:       deps,
		cfg:        cfg,
		logger:     logger.With(logging.Component("service")),
		ctx:        ctx,
		cancel:     cancel,
		generation: make(map[string]snapshot.GenerationMetrics),
	}, nil
}

// Registry exposes the task registry
func (s *Service) Registry() *tasks.Registry {
	return s.deps.Registry
}

// Bus exposes the progress bus
func (s *Service) Bus() *events.Bus {
	return s.deps.Bus
}

// StartGeneration registers a generation task and runs it in the background
func (s *Service) StartGeneration(plan generator.Plan) (string, error) {
	id, err := s.start(tasks.KindGeneration, "Data generation started in the background")
	if err != nil {
		return "", err
	}
	go s.runJob(id, tasks.KindGeneration, func(ctx context.Context) error {
		return s.generate(ctx, id, plan)
	})
	return id, nil
}

// StartBenchmark registers a benchmark task and runs it in the background
func (s *Service) StartBenchmark(params bench.Params) (string, error) {
	id, err := s.start(tasks.KindBenchmark, "Benchmark started")
	if err != nil {
		return "", err
	}
	go s.runJob(id, tasks.KindBenchmark, func(ctx context.Context) error {
		return s.benchmark(ctx, id, params)
	})
	return id, nil
}

func (s *Service) start(kind tasks.Kind, message string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrShuttingDown
	}
	id := s.deps.Registry.Create(kind, message)
	s.wg.Add(1)
	if s.deps.Metrics != nil {
		s.deps.Metrics.TaskStarted(string(kind))
	}
	s.logger.Info("task started", logging.TaskID(id), logging.Kind(string(kind)))
	return id, nil
}

// runJob executes fn and records the terminal state. A panic fails the task.
func (s *Service) runJob(id string, kind tasks.Kind, fn func(ctx context.Context) error) {
	defer s.wg.Done()
	started := time.Now()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("task panicked",
					logging.TaskID(id),
					logging.Any("panic", r),
					logging.String("stack", string(debug.Stack())))
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn(s.ctx)
	}()

	status := tasks.StatusCompleted
	if err != nil {
		status = tasks.StatusFailed
		if ferr := s.deps.Registry.Fail(id, err); ferr != nil && !errors.Is(ferr, tasks.ErrTaskFinished) {
			s.logger.Error("failed to record task failure", logging.TaskID(id), logging.Error(ferr))
		}
		s.logger.Error("task failed", logging.TaskID(id), logging.Error(err))
	} else {
		s.logger.Info("task completed", logging.TaskID(id), logging.Duration("duration", time.Since(started)))
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.TaskFinished(string(kind), string(status), time.Since(started))
	}
}

// progressSink mirrors observations of one task into the registry and bus
func (s *Service) progressSink(id string) events.Sink {
	return events.SinkFunc(func(p events.Progress) {
		err := s.deps.Registry.Update(id, func(st *tasks.State) {
			st.Message = p.Message
			if p.TotalSteps > 0 {
				st.CurrentStep = p.Step
				st.TotalSteps = p.TotalSteps
			}
		})
		if err != nil {
			s.logger.Debug("dropped progress update", logging.TaskID(id), logging.Error(err))
		}
		s.deps.Bus.Publish(p)
	})
}

// Running counts running tasks by kind
func (s *Service) Running() map[string]int {
	counts := make(map[string]int)
	for _, v := range s.deps.Registry.List("") {
		if v.Status == tasks.StatusRunning {
			counts[string(v.Kind)]++
		}
	}
	return counts
}

// Status returns the view of a task. Unknown ids yield a not_found view.
func (s *Service) Status(id string) tasks.View {
	return s.deps.Registry.Get(id)
}

// Benchmarks lists benchmark tasks
func (s *Service) Benchmarks() []tasks.View {
	return s.deps.Registry.List(tasks.KindBenchmark)
}

// Tasks lists every task, most recent first
func (s *Service) Tasks() []tasks.View {
	views := s.deps.Registry.List("")
	for i, j := 0, len(views)-1; i < j; i, j = i+1, j-1 {
		views[i], views[j] = views[j], views[i]
	}
	return views
}

// Shutdown cancels running jobs and waits for them until ctx is done
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to drain jobs: %w", ctx.Err())
	}
}

// persist writes a document, logging instead of failing the job
func (s *Service) persist(id string, save func(ctx context.Context, st snapshot.Store) error) {
	if s.deps.Snapshots == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := save(ctx, s.deps.Snapshots); err != nil {
		s.logger.Error("failed to persist snapshot", logging.TaskID(id), logging.Error(err))
	}
}
