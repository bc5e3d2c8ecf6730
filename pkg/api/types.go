package api

import (
	"time"

	"github.com/dd0wney/cluso-bench/pkg/api/middleware"
	"github.com/dd0wney/cluso-bench/pkg/tasks"
)

// ErrorResponse represents an error response
type ErrorResponse = middleware.ErrorResponse

// GenerateResponse acknowledges a generation request
type GenerateResponse struct {
	TaskID          string       `json:"task_id"`
	Status          tasks.Status `json:"status"`
	Message         string       `json:"message"`
	MetricsEndpoint string       `json:"metrics_endpoint"`
	StatusEndpoint  string       `json:"status_endpoint"`
}

// RunResponse acknowledges a benchmark request. BenchmarkID repeats TaskID
// for clients of the older field name.
type RunResponse struct {
	TaskID         string       `json:"task_id"`
	BenchmarkID    string       `json:"benchmark_id"`
	Status         tasks.Status `json:"status"`
	Message        string       `json:"message"`
	StatusEndpoint string       `json:"status_endpoint"`
}

// ResultsPending is returned by the results route before completion
type ResultsPending struct {
	TaskID  string       `json:"task_id"`
	Status  tasks.Status `json:"status"`
	Message string       `json:"message"`
}

// BenchmarkSummary is one row of the benchmark list
type BenchmarkSummary struct {
	ID         string       `json:"id"`
	Status     tasks.Status `json:"status"`
	Message    string       `json:"message"`
	HasResults bool         `json:"has_results"`
	Progress   int          `json:"progress"`
}

// TaskSummary is one row of the task list
type TaskSummary struct {
	TaskID    string       `json:"task_id"`
	Type      tasks.Kind   `json:"type"`
	Status    tasks.Status `json:"status"`
	Progress  int          `json:"progress"`
	StartTime *time.Time   `json:"start_time,omitempty"`
	EndTime   *time.Time   `json:"end_time,omitempty"`
	Duration  float64      `json:"duration"`
}
