package health

import (
	"context"
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// SimpleCheck creates a check that always reports healthy
func SimpleCheck(name string) CheckFunc {
	return func(context.Context) Check {
		return Check{Name: name, Status: StatusHealthy}
	}
}

// BackendCheck reports a database as unhealthy when ping fails
func BackendCheck(name string, ping func(ctx context.Context) error) CheckFunc {
	return func(ctx context.Context) Check {
		check := Check{Name: name}

		if err := ping(ctx); err != nil {
			check.Status = StatusUnhealthy
			check.Message = err.Error()
		} else {
			check.Status = StatusHealthy
			check.Message = "Connected"
		}

		return check
	}
}

// RSSFunc returns the resident set size of the process in bytes
type RSSFunc func(ctx context.Context) (uint64, error)

// ProcessRSS samples this process through gopsutil
func ProcessRSS() RSSFunc {
	return func(ctx context.Context) (uint64, error) {
		p, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
		if err != nil {
			return 0, err
		}
		info, err := p.MemoryInfoWithContext(ctx)
		if err != nil {
			return 0, err
		}
		return info.RSS, nil
	}
}

// MemoryCheck reports degraded once RSS exceeds budgetMB. A budget of 0
// only reports the figure.
func MemoryCheck(rss RSSFunc, budgetMB float64) CheckFunc {
	return func(ctx context.Context) Check {
		check := Check{
			Name:    "memory",
			Details: make(map[string]any),
		}

		bytes, err := rss(ctx)
		if err != nil {
			check.Status = StatusDegraded
			check.Message = fmt.Sprintf("RSS unavailable: %v", err)
			return check
		}

		mb := float64(bytes) / (1024 * 1024)
		check.Details["rss_mb"] = mb
		if budgetMB > 0 {
			check.Details["budget_mb"] = budgetMB
		}

		if budgetMB > 0 && mb > budgetMB {
			check.Status = StatusDegraded
			check.Message = "Memory above generation budget"
		} else {
			check.Status = StatusHealthy
			check.Message = "Memory usage normal"
		}

		return check
	}
}

// TasksCheck reports how many background tasks are running. It never
// fails; a busy engine is still healthy.
func TasksCheck(running func() map[string]int) CheckFunc {
	return func(context.Context) Check {
		check := Check{
			Name:    "tasks",
			Status:  StatusHealthy,
			Details: make(map[string]any),
		}
		total := 0
		for kind, n := range running() {
			check.Details[kind] = n
			total += n
		}
		check.Message = fmt.Sprintf("%d running", total)
		return check
	}
}
