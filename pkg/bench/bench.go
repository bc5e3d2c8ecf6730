// Package bench runs catalog operations against both backends and
// aggregates their latencies into comparable statistics.
package bench

import (
	"errors"
	"time"

	"github.com/dd0wney/cluso-bench/pkg/catalog"
	"github.com/dd0wney/cluso-bench/pkg/model"
	"github.com/dd0wney/cluso-bench/pkg/stats"
)

var (
	// ErrAlreadyRun is returned by a second call to Runner.Run
	ErrAlreadyRun = errors.New("benchmark runner already used")
	// ErrTimeout marks an invocation that exceeded its deadline
	ErrTimeout = errors.New("benchmark operation timed out")
	// ErrNoData is returned when there are no entities to drive lookups
	ErrNoData = errors.New("no data to benchmark, generate data first")
)

// Config holds runner limits and defaults
type Config struct {
	Timeout          time.Duration `yaml:"timeout" env:"TIMEOUT"`
	ExpensiveTimeout time.Duration `yaml:"expensive_timeout" env:"EXPENSIVE_TIMEOUT"`
	SentinelSeconds  float64       `yaml:"sentinel_seconds" env:"SENTINEL_SECONDS"`
	SampleSize       int           `yaml:"sample_size" env:"SAMPLE_SIZE"`
	MaxLevel         int           `yaml:"max_level" env:"MAX_LEVEL"`
	Iterations       int           `yaml:"iterations" env:"ITERATIONS"`
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		Timeout:          30 * time.Second,
		ExpensiveTimeout: 60 * time.Second,
		SentinelSeconds:  60.0,
		SampleSize:       100,
		MaxLevel:         3,
		Iterations:       5,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.ExpensiveTimeout <= 0 {
		c.ExpensiveTimeout = d.ExpensiveTimeout
	}
	if c.SentinelSeconds <= 0 {
		c.SentinelSeconds = d.SentinelSeconds
	}
	if c.SampleSize <= 0 {
		c.SampleSize = d.SampleSize
	}
	if c.MaxLevel <= 0 {
		c.MaxLevel = d.MaxLevel
	}
	if c.Iterations <= 0 {
		c.Iterations = d.Iterations
	}
	return c
}

// Params is one benchmark request. Zero values take the runner defaults.
type Params struct {
	TestType   string `json:"test_type"`
	MaxLevel   int    `json:"max_level"`
	ProductID  string `json:"product_id,omitempty"`
	UserID     string `json:"user_id,omitempty"`
	Iterations int    `json:"iterations"`
}

// Sample is one timed invocation. Failed samples carry the sentinel value.
type Sample struct {
	Seconds   float64       `json:"seconds"`
	Backend   model.Backend `json:"backend"`
	Operation catalog.Name  `json:"operation"`
	Level     int           `json:"level,omitempty"`
	Iteration int           `json:"iteration"`
	Failed    bool          `json:"failed,omitempty"`
}

// OperationResult aggregates every sample of one operation. For leveled
// operations one iteration covers every level from 1 to the max level, so
// a sample is the summed latency of those calls, and Levels breaks the
// same calls down per level.
type OperationResult struct {
	Operation  catalog.Name                           `json:"operation"`
	Level      int                                    `json:"level,omitempty"`
	Target     string                                 `json:"target_id,omitempty"`
	Stats      map[model.Backend]stats.OperationStats `json:"stats"`
	Times      map[model.Backend][]float64            `json:"times"`
	Errors     map[model.Backend]int                  `json:"errors"`
	Rows       map[model.Backend]int                  `json:"rows"`
	Comparison stats.Comparison                       `json:"comparison"`
	Levels     []OperationResult                      `json:"levels,omitempty"`
}

// Results is the outcome of a benchmark run
type Results struct {
	Params     Params                `json:"params"`
	Recognized bool                  `json:"test_type_recognized"`
	Operations []OperationResult     `json:"operations"`
	Errors     map[model.Backend]int `json:"errors"`
	Summary    []string              `json:"summary"`
	Notes      []string              `json:"notes,omitempty"`
	TotalSteps int                   `json:"total_steps"`
	Started    time.Time             `json:"started"`
	Finished   time.Time             `json:"finished"`
}

// Lookup returns the result of an operation
func (r *Results) Lookup(name catalog.Name) (OperationResult, bool) {
	for _, op := range r.Operations {
		if op.Operation == name {
			return op, true
		}
	}
	return OperationResult{}, false
}

// Comparisons returns the per-operation comparisons in execution order
func (r *Results) Comparisons() []stats.Comparison {
	out := make([]stats.Comparison, len(r.Operations))
	for i, op := range r.Operations {
		out[i] = op.Comparison
	}
	return out
}

// Title renders a backend name for summaries
func Title(name string) string {
	return model.Backend(name).Title()
}
