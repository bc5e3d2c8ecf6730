package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/dd0wney/cluso-bench/pkg/bench"
	"github.com/dd0wney/cluso-bench/pkg/catalog"
	"github.com/dd0wney/cluso-bench/pkg/logging"
	"github.com/dd0wney/cluso-bench/pkg/model"
	"github.com/dd0wney/cluso-bench/pkg/snapshot"
	"github.com/dd0wney/cluso-bench/pkg/stats"
	"github.com/dd0wney/cluso-bench/pkg/tasks"
)

// RunComparison sets the PostgreSQL numbers of one run against the Neo4j
// numbers of another
type RunComparison struct {
	PostgresTask string                            `json:"postgresql_task"`
	Neo4jTask    string                            `json:"neo4j_task"`
	Operations   map[catalog.Name]stats.Comparison `json:"operations"`
	Summary      []string                          `json:"summary"`
}

// Compare pairs operations present in both runs. Either id may refer to a
// task that only exists in the snapshot store.
func (s *Service) Compare(ctx context.Context, pgTaskID, neoTaskID string) (*RunComparison, error) {
	pg, err := s.benchmarkResults(ctx, pgTaskID)
	if err != nil {
		return nil, err
	}
	neo, err := s.benchmarkResults(ctx, neoTaskID)
	if err != nil {
		return nil, err
	}

	out := &RunComparison{
		PostgresTask: pgTaskID,
		Neo4jTask:    neoTaskID,
		Operations:   make(map[catalog.Name]stats.Comparison),
	}
	var ordered []stats.Comparison
	for _, op := range pg.Operations {
		other, ok := neo.Lookup(op.Operation)
		if !ok {
			continue
		}
		pgAvg := op.Stats[model.PostgreSQL].Mean
		neoAvg := other.Stats[model.Neo4j].Mean
		if pgAvg <= 0 || neoAvg <= 0 {
			continue
		}
		c := stats.Compare(string(op.Operation),
			stats.Side{Backend: string(model.PostgreSQL), Avg: pgAvg},
			stats.Side{Backend: string(model.Neo4j), Avg: neoAvg})
		out.Operations[op.Operation] = c
		ordered = append(ordered, c)
	}
	out.Summary = stats.Summarize(ordered, bench.Title)
	return out, nil
}

// benchmarkResults finds the results of a completed benchmark in memory or,
// failing that, in the snapshot store
func (s *Service) benchmarkResults(ctx context.Context, id string) (*bench.Results, error) {
	if s.deps.Registry.Exists(id) {
		v := s.deps.Registry.Get(id)
		if v.Kind != tasks.KindBenchmark {
			return nil, fmt.Errorf("%w: %s is not a benchmark", tasks.ErrTaskNotFound, id)
		}
		if v.Status != tasks.StatusCompleted {
			return nil, fmt.Errorf("%w: %s is %s", ErrNotCompleted, id, v.Status)
		}
		res, ok := v.Result.(*bench.Results)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no results", ErrNotCompleted, id)
		}
		return res, nil
	}

	if s.deps.Snapshots == nil {
		return nil, fmt.Errorf("%w: %s", tasks.ErrTaskNotFound, id)
	}
	rec, err := snapshot.LoadBenchmark(ctx, s.deps.Snapshots, id)
	if errors.Is(err, snapshot.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", tasks.ErrTaskNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if rec.Status != string(tasks.StatusCompleted) || rec.Results == nil {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotCompleted, id, rec.Status)
	}
	return rec.Results, nil
}

// Results returns the view of a benchmark. A task unknown to the registry
// is rebuilt from its persisted record.
func (s *Service) Results(ctx context.Context, id string) tasks.View {
	if s.deps.Registry.Exists(id) || s.deps.Snapshots == nil {
		return s.deps.Registry.Get(id)
	}
	rec, err := snapshot.LoadBenchmark(ctx, s.deps.Snapshots, id)
	if err != nil {
		return s.deps.Registry.Get(id)
	}
	start, end := rec.StartTime, rec.EndTime
	v := tasks.View{
		ID:        rec.TaskID,
		Kind:      tasks.KindBenchmark,
		Status:    tasks.Status(rec.Status),
		Message:   rec.Message,
		StartTime: &start,
		EndTime:   &end,
		Duration:  rec.Duration,
		Error:     rec.Error,
	}
	if v.Status == tasks.StatusCompleted {
		v.Progress = 100
		v.Result = rec.Results
	}
	return v
}

// GenerationMetrics returns the metrics of one generation task
func (s *Service) GenerationMetrics(ctx context.Context, id string) (snapshot.GenerationMetrics, error) {
	s.mu.RLock()
	doc, ok := s.generation[id]
	s.mu.RUnlock()
	if ok {
		return doc, nil
	}
	if s.deps.Snapshots == nil {
		return snapshot.GenerationMetrics{}, fmt.Errorf("%w: %s", snapshot.ErrNotFound, id)
	}
	return snapshot.LoadGeneration(ctx, s.deps.Snapshots, id)
}

// LatestGenerationMetrics returns the most recently started completed
// generation known in memory or in the snapshot store
func (s *Service) LatestGenerationMetrics(ctx context.Context) (snapshot.GenerationMetrics, error) {
	var (
		latest snapshot.GenerationMetrics
		found  bool
	)
	consider := func(doc snapshot.GenerationMetrics) {
		if doc.Status != string(tasks.StatusCompleted) {
			return
		}
		if !found || newerGeneration(doc, latest) {
			latest, found = doc, true
		}
	}

	s.mu.RLock()
	known := make(map[string]bool, len(s.generation))
	for id, doc := range s.generation {
		known[id] = true
		consider(doc)
	}
	s.mu.RUnlock()

	if s.deps.Snapshots != nil {
		ids, err := snapshot.GenerationIDs(ctx, s.deps.Snapshots)
		if err != nil {
			return snapshot.GenerationMetrics{}, err
		}
		for _, id := range ids {
			if known[id] {
				continue
			}
			doc, err := snapshot.LoadGeneration(ctx, s.deps.Snapshots, id)
			if err != nil {
				s.logger.Warn("skipping unreadable generation snapshot",
					logging.TaskID(id), logging.Error(err))
				continue
			}
			consider(doc)
		}
	}

	if !found {
		return snapshot.GenerationMetrics{}, fmt.Errorf("%w: no completed generation metrics available", snapshot.ErrNotFound)
	}
	return latest, nil
}

// newerGeneration orders by start time, then task id for equal starts
func newerGeneration(a, b snapshot.GenerationMetrics) bool {
	if !a.StartTime.Equal(b.StartTime) {
		return a.StartTime.After(b.StartTime)
	}
	return a.TaskID > b.TaskID
}

// RandomIDs is a product and a user to pin a benchmark to. Both are empty
// when no data has been generated.
type RandomIDs struct {
	ProductID string `json:"product_id"`
	UserID    string `json:"user_id"`
	Message   string `json:"message,omitempty"`
}

// RandomIDs draws one product and one user from the sampler
func (s *Service) RandomIDs(ctx context.Context) (RandomIDs, error) {
	limit := s.cfg.Benchmark.SampleSize
	if limit <= 0 {
		limit = bench.DefaultConfig().SampleSize
	}
	products, err := s.deps.Sampler.SampleProductIDs(ctx, limit)
	if err != nil {
		return RandomIDs{}, fmt.Errorf("failed to sample products: %w", err)
	}
	users, err := s.deps.Sampler.SampleUserIDs(ctx, limit)
	if err != nil {
		return RandomIDs{}, fmt.Errorf("failed to sample users: %w", err)
	}
	if len(products) == 0 || len(users) == 0 {
		return RandomIDs{Message: "No products or users found. Please generate data first."}, nil
	}
	return RandomIDs{
		ProductID: products[rand.IntN(len(products))],
		UserID:    users[rand.IntN(len(users))],
	}, nil
}
