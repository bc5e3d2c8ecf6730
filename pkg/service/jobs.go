package service

import (
	"context"
	"fmt"
	"time"

	"github.com/dd0wney/cluso-bench/pkg/bench"
	"github.com/dd0wney/cluso-bench/pkg/generator"
	"github.com/dd0wney/cluso-bench/pkg/model"
	"github.com/dd0wney/cluso-bench/pkg/snapshot"
	"github.com/dd0wney/cluso-bench/pkg/tasks"
)

func (s *Service) generate(ctx context.Context, id string, plan generator.Plan) error {
	started := time.Now()
	opts := append([]generator.Option{
		generator.WithTaskID(id),
		generator.WithSink(s.progressSink(id)),
	}, s.deps.GeneratorOptions...)

	gen, err := generator.New(s.deps.Relational, s.deps.Graph, s.cfg.Generation, s.logger, opts...)
	if err != nil {
		s.recordGeneration(snapshot.FailedGeneration(id, started, time.Now(), err))
		return err
	}

	rep, err := gen.Run(ctx, plan)
	if err != nil {
		s.recordGeneration(snapshot.FailedGeneration(id, started, time.Now(), err))
		return fmt.Errorf("failed to generate data: %w", err)
	}

	s.observeGeneration(&rep)
	message := fmt.Sprintf("Generated %d users, %d products, %d follows and %d purchases",
		rep.Counts[model.KindUser], rep.Counts[model.KindProduct], rep.Counts[model.KindFollow], rep.Counts[model.KindPurchase])
	doc := snapshot.NewGenerationMetrics(id, message, &rep)
	s.recordGeneration(doc)
	return s.deps.Registry.Complete(id, doc, message)
}

func (s *Service) observeGeneration(rep *generator.Report) {
	m := s.deps.Metrics
	if m == nil {
		return
	}
	for _, ph := range rep.Phases {
		m.RecordGenerationPhase(string(ph.Kind), ph.Succeeded, ph.Failed, ph.Wall)
		for b, t := range ph.Timing {
			m.RecordGenerationBackend(string(b), string(ph.Kind), t.Total, t.Errors)
		}
	}
	m.SetGenerationMemoryPeak(rep.Memory.PeakMB)
}

func (s *Service) recordGeneration(doc snapshot.GenerationMetrics) {
	s.mu.Lock()
	s.generation[doc.TaskID] = doc
	s.mu.Unlock()
	s.persist(doc.TaskID, func(ctx context.Context, st snapshot.Store) error {
		return snapshot.SaveGeneration(ctx, st, doc)
	})
}

func (s *Service) benchmark(ctx context.Context, id string, params bench.Params) error {
	started := time.Now()
	opts := []bench.Option{
		bench.WithTaskID(id),
		bench.WithSink(s.progressSink(id)),
	}
	if m := s.deps.Metrics; m != nil {
		opts = append(opts, bench.WithObserver(func(sm bench.Sample) {
			m.RecordBenchmarkSample(string(sm.Backend), string(sm.Operation), sm.Seconds, sm.Failed)
		}))
	}

	runner := bench.NewRunner(s.deps.Targets, s.deps.Sampler, s.cfg.Benchmark, s.logger, opts...)
	res, err := runner.Run(ctx, params)

	rec := snapshot.BenchmarkRecord{
		TaskID:    id,
		StartTime: started,
		EndTime:   time.Now(),
		Results:   res,
	}
	rec.Duration = rec.EndTime.Sub(started).Seconds()

	if err != nil {
		rec.Status = string(tasks.StatusFailed)
		rec.Message = "Benchmark failed: " + err.Error()
		rec.Error = err.Error()
		s.persist(id, func(ctx context.Context, st snapshot.Store) error {
			return snapshot.SaveBenchmark(ctx, st, rec)
		})
		return fmt.Errorf("benchmark failed: %w", err)
	}

	if m := s.deps.Metrics; m != nil {
		for _, c := range res.Comparisons() {
			m.RecordComparison(c.Operation, c.Faster, c.SpeedupFactor)
		}
	}

	rec.Status = string(tasks.StatusCompleted)
	rec.Message = "Benchmark completed successfully"
	s.persist(id, func(ctx context.Context, st snapshot.Store) error {
		return snapshot.SaveBenchmark(ctx, st, rec)
	})
	return s.deps.Registry.Complete(id, res, rec.Message)
}
