package snapshot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dd0wney/cluso-bench/pkg/bench"
	"github.com/dd0wney/cluso-bench/pkg/generator"
	"github.com/dd0wney/cluso-bench/pkg/model"
	"github.com/dd0wney/cluso-bench/pkg/stats"
)

const (
	generationPrefix = "generation_metrics_"
	benchmarkPrefix  = "benchmark_results_"
	jsonExt          = ".json"
)

// GenerationName is the document name of a generation task's metrics
func GenerationName(taskID string) string {
	return generationPrefix + taskID + jsonExt
}

// BenchmarkName is the document name of a benchmark task's results
func BenchmarkName(taskID string) string {
	return benchmarkPrefix + taskID + jsonExt
}

// KindMetrics is one backend's cost of producing one entity kind
type KindMetrics struct {
	Count     int64   `json:"count"`
	TotalTime float64 `json:"total_time"`
	AvgTime   float64 `json:"avg_time"`
	Rate      float64 `json:"rate"`
}

// GenerationMetrics is the persisted outcome of a generation task
type GenerationMetrics struct {
	TaskID     string                                       `json:"task_id"`
	Status     string                                       `json:"status"`
	Message    string                                       `json:"message"`
	StartTime  time.Time                                    `json:"start_time"`
	EndTime    time.Time                                    `json:"end_time"`
	Duration   float64                                      `json:"duration"`
	Plan       generator.Plan                               `json:"plan"`
	Counts     map[model.Kind]int64                         `json:"counts"`
	Timings    map[string]float64                           `json:"timings"`
	Databases  map[model.Backend]map[model.Kind]KindMetrics `json:"database_metrics"`
	Memory     generator.MemoryReport                       `json:"memory"`
	Errors     map[model.Backend]int64                      `json:"errors"`
	Comparison map[model.Kind]stats.Comparison              `json:"comparison"`
	Error      string                                       `json:"error,omitempty"`
}

// NewGenerationMetrics derives the persisted document from a report
func NewGenerationMetrics(taskID, message string, rep *generator.Report) GenerationMetrics {
	m := GenerationMetrics{
		TaskID:     taskID,
		Status:     "completed",
		Message:    message,
		StartTime:  rep.Started,
		EndTime:    rep.Started.Add(rep.Wall),
		Duration:   rep.Wall.Seconds(),
		Plan:       rep.Plan,
		Counts:     rep.Counts,
		Timings:    map[string]float64{"total": rep.Wall.Seconds()},
		Databases:  make(map[model.Backend]map[model.Kind]KindMetrics, len(model.Backends)),
		Memory:     rep.Memory,
		Errors:     rep.Errors,
		Comparison: make(map[model.Kind]stats.Comparison, len(rep.Phases)),
	}
	for _, b := range model.Backends {
		m.Databases[b] = make(map[model.Kind]KindMetrics, len(rep.Phases))
	}

	for _, ph := range rep.Phases {
		m.Timings[string(ph.Kind)] = ph.Wall.Seconds()

		sides := make([]stats.Side, 0, len(model.Backends))
		for _, b := range model.Backends {
			t := ph.Timing[b]
			km := KindMetrics{
				Count:     ph.Succeeded,
				TotalTime: t.Total.Seconds(),
				Rate:      t.Rate(ph.Succeeded),
			}
			if ph.Succeeded > 0 {
				km.AvgTime = km.TotalTime / float64(ph.Succeeded)
			}
			m.Databases[b][ph.Kind] = km
			sides = append(sides, stats.Side{Backend: string(b), Avg: km.TotalTime})
		}
		if len(sides) == 2 {
			m.Comparison[ph.Kind] = stats.Compare(string(ph.Kind), sides[0], sides[1])
		}
	}
	return m
}

// FailedGeneration records a generation task that ended with err
func FailedGeneration(taskID string, started, ended time.Time, err error) GenerationMetrics {
	return GenerationMetrics{
		TaskID:    taskID,
		Status:    "failed",
		Message:   "Error: " + err.Error(),
		StartTime: started,
		EndTime:   ended,
		Duration:  ended.Sub(started).Seconds(),
		Error:     err.Error(),
	}
}

// BenchmarkRecord is the persisted outcome of a benchmark task
type BenchmarkRecord struct {
	TaskID    string         `json:"task_id"`
	Status    string         `json:"status"`
	Message   string         `json:"message"`
	StartTime time.Time      `json:"start_time"`
	EndTime   time.Time      `json:"end_time"`
	Duration  float64        `json:"duration"`
	Results   *bench.Results `json:"results,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// SaveGeneration persists m under its task id
func SaveGeneration(ctx context.Context, s Store, m GenerationMetrics) error {
	return s.Put(ctx, GenerationName(m.TaskID), m)
}

// LoadGeneration reads the metrics of one generation task
func LoadGeneration(ctx context.Context, s Store, taskID string) (GenerationMetrics, error) {
	var m GenerationMetrics
	if err := s.Get(ctx, GenerationName(taskID), &m); err != nil {
		return GenerationMetrics{}, err
	}
	return m, nil
}

// LatestGeneration returns the metrics with the greatest task id. Task ids
// embed their unix start second, so this is the most recent one.
func LatestGeneration(ctx context.Context, s Store) (GenerationMetrics, error) {
	ids, err := GenerationIDs(ctx, s)
	if err != nil {
		return GenerationMetrics{}, err
	}
	if len(ids) == 0 {
		return GenerationMetrics{}, fmt.Errorf("%w: no generation metrics", ErrNotFound)
	}
	return LoadGeneration(ctx, s, ids[len(ids)-1])
}

// GenerationIDs lists the task ids with persisted generation metrics
func GenerationIDs(ctx context.Context, s Store) ([]string, error) {
	return taskIDs(ctx, s, generationPrefix)
}

// SaveBenchmark persists r under its task id
func SaveBenchmark(ctx context.Context, s Store, r BenchmarkRecord) error {
	return s.Put(ctx, BenchmarkName(r.TaskID), r)
}

// LoadBenchmark reads the record of one benchmark task
func LoadBenchmark(ctx context.Context, s Store, taskID string) (BenchmarkRecord, error) {
	var r BenchmarkRecord
	if err := s.Get(ctx, BenchmarkName(taskID), &r); err != nil {
		return BenchmarkRecord{}, err
	}
	return r, nil
}

// BenchmarkIDs lists the task ids with persisted benchmark results
func BenchmarkIDs(ctx context.Context, s Store) ([]string, error) {
	return taskIDs(ctx, s, benchmarkPrefix)
}

func taskIDs(ctx context.Context, s Store, prefix string) ([]string, error) {
	names, err := s.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(names))
	for _, n := range names {
		if !strings.HasSuffix(n, jsonExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(strings.TrimPrefix(n, prefix), jsonExt))
	}
	return ids, nil
}
