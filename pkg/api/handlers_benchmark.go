package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dd0wney/cluso-bench/pkg/bench"
	"github.com/dd0wney/cluso-bench/pkg/catalog"
	"github.com/dd0wney/cluso-bench/pkg/generator"
	"github.com/dd0wney/cluso-bench/pkg/logging"
	"github.com/dd0wney/cluso-bench/pkg/service"
	"github.com/dd0wney/cluso-bench/pkg/snapshot"
	"github.com/dd0wney/cluso-bench/pkg/tasks"
	"github.com/dd0wney/cluso-bench/pkg/validation"
)

func (s *Server) startError(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrShuttingDown) {
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.logger.Error("failed to start task", logging.Error(err))
	s.respondError(w, http.StatusInternalServerError, "failed to start task")
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	req := validation.DefaultGenerationRequest()
	rd := newRequestDecoder(r).
		DecodeJSON(&req).
		Int("users", &req.Users).
		Int("products", &req.Products).
		Int("max_follows", &req.MaxFollows).
		Int("max_purchases", &req.MaxPurchases).
		Validate(func() error { return validation.ValidateGenerationRequest(&req) })
	if rd.RespondError(w) {
		return
	}

	id, err := s.jobs.StartGeneration(generator.Plan{
		Users:        req.Users,
		Products:     req.Products,
		MaxFollows:   req.MaxFollows,
		MaxPurchases: req.MaxPurchases,
	})
	if err != nil {
		s.startError(w, err)
		return
	}

	s.respondJSON(w, http.StatusAccepted, GenerateResponse{
		TaskID:          id,
		Status:          tasks.StatusRunning,
		Message:         "Data generation started in the background",
		MetricsEndpoint: Prefix + "/metrics/generation/" + id,
		StatusEndpoint:  Prefix + "/status/" + id,
	})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req validation.BenchmarkRequest
	rd := newRequestDecoder(r).
		DecodeJSON(&req).
		String("test_type", &req.TestType).
		Int("max_level", &req.MaxLevel).
		String("product_id", &req.ProductID).
		String("user_id", &req.UserID).
		Int("iterations", &req.Iterations).
		Validate(func() error { return validation.ValidateBenchmarkRequest(&req) })
	if rd.RespondError(w) {
		return
	}

	id, err := s.jobs.StartBenchmark(bench.Params{
		TestType:   req.TestType,
		MaxLevel:   req.MaxLevel,
		ProductID:  req.ProductID,
		UserID:     req.UserID,
		Iterations: req.Iterations,
	})
	if err != nil {
		s.startError(w, err)
		return
	}

	testType := req.TestType
	if testType == "" {
		testType = catalog.TestAll
	}
	s.respondJSON(w, http.StatusAccepted, RunResponse{
		TaskID:         id,
		BenchmarkID:    id,
		Status:         tasks.StatusRunning,
		Message:        fmt.Sprintf("Benchmark started with test_type=%s", testType),
		StatusEndpoint: Prefix + "/status/" + id,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.jobs.Status(r.PathValue("id")))
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	v := s.jobs.Results(r.Context(), id)
	switch v.Status {
	case tasks.StatusCompleted:
		s.respondJSON(w, http.StatusOK, v)
	case tasks.StatusNotFound:
		s.respondJSON(w, http.StatusOK, ResultsPending{TaskID: id, Status: v.Status, Message: "Benchmark task not found"})
	default:
		s.respondJSON(w, http.StatusOK, ResultsPending{TaskID: id, Status: v.Status, Message: "Benchmark is still running or failed"})
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	views := s.jobs.Benchmarks()
	out := make([]BenchmarkSummary, len(views))
	for i, v := range views {
		out[i] = BenchmarkSummary{
			ID:         v.ID,
			Status:     v.Status,
			Message:    v.Message,
			HasResults: v.Status == tasks.StatusCompleted && v.Result != nil,
			Progress:   v.Progress,
		}
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	views := s.jobs.Tasks()
	out := make([]TaskSummary, len(views))
	for i, v := range views {
		out[i] = TaskSummary{
			TaskID:    v.ID,
			Type:      v.Kind,
			Status:    v.Status,
			Progress:  v.Progress,
			StartTime: v.StartTime,
			EndTime:   v.EndTime,
			Duration:  v.Duration,
		}
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pgID, neoID := q.Get("pg_task_id"), q.Get("neo4j_task_id")
	if pgID == "" || neoID == "" {
		s.respondError(w, http.StatusBadRequest, "pg_task_id and neo4j_task_id are required")
		return
	}

	cmp, err := s.jobs.Compare(r.Context(), pgID, neoID)
	switch {
	case err == nil:
		s.respondJSON(w, http.StatusOK, cmp)
	case errors.Is(err, tasks.ErrTaskNotFound):
		s.respondError(w, http.StatusNotFound, "One or both benchmark tasks not found")
	case errors.Is(err, service.ErrNotCompleted):
		s.respondError(w, http.StatusBadRequest, "One or both benchmark tasks not completed")
	default:
		s.logger.Error("comparison failed", logging.Error(err))
		s.respondError(w, http.StatusInternalServerError, "comparison failed")
	}
}

func (s *Server) handleGenerationMetrics(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	doc, err := s.jobs.GenerationMetrics(r.Context(), id)
	s.respondMetrics(w, doc, err, fmt.Sprintf("Task ID %s not found", id))
}

func (s *Server) handleLatestGenerationMetrics(w http.ResponseWriter, r *http.Request) {
	doc, err := s.jobs.LatestGenerationMetrics(r.Context())
	s.respondMetrics(w, doc, err, "No generation metrics available")
}

func (s *Server) respondMetrics(w http.ResponseWriter, doc snapshot.GenerationMetrics, err error, notFound string) {
	switch {
	case err == nil:
		s.respondJSON(w, http.StatusOK, doc)
	case errors.Is(err, snapshot.ErrNotFound):
		s.respondError(w, http.StatusNotFound, notFound)
	default:
		s.logger.Error("failed to load generation metrics", logging.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to load generation metrics")
	}
}

func (s *Server) handleRandomIDs(w http.ResponseWriter, r *http.Request) {
	ids, err := s.jobs.RandomIDs(r.Context())
	if err != nil {
		s.logger.Warn("failed to draw random ids", logging.Error(err))
		ids = service.RandomIDs{Message: fmt.Sprintf("Error getting random IDs: %v. Please generate data first.", err)}
	}
	s.respondJSON(w, http.StatusOK, ids)
}
