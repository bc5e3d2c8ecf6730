package health

import (
	"context"
	"sync"
	"time"
)

// DefaultTimeout bounds every check run
const DefaultTimeout = 5 * time.Second

// NewHealthChecker creates a new health checker
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks:      make(map[string]CheckFunc),
		readyChecks: make(map[string]CheckFunc),
		liveChecks:  make(map[string]CheckFunc),
		timeout:     DefaultTimeout,
		started:     time.Now(),
	}
}

// SetTimeout changes the deadline applied to each run of checks
func (hc *HealthChecker) SetTimeout(d time.Duration) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	if d > 0 {
		hc.timeout = d
	}
}

// RegisterCheck registers a health check
func (hc *HealthChecker) RegisterCheck(name string, check CheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[name] = check
}

// RegisterReadinessCheck registers a readiness check
func (hc *HealthChecker) RegisterReadinessCheck(name string, check CheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.readyChecks[name] = check
}

// RegisterLivenessCheck registers a liveness check
func (hc *HealthChecker) RegisterLivenessCheck(name string, check CheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.liveChecks[name] = check
}

// Check performs all health checks
func (hc *HealthChecker) Check(ctx context.Context) Response {
	return hc.performChecks(ctx, func() map[string]CheckFunc { return hc.checks })
}

// CheckReadiness performs readiness checks
func (hc *HealthChecker) CheckReadiness(ctx context.Context) Response {
	return hc.performChecks(ctx, func() map[string]CheckFunc { return hc.readyChecks })
}

// CheckLiveness performs liveness checks
func (hc *HealthChecker) CheckLiveness(ctx context.Context) Response {
	return hc.performChecks(ctx, func() map[string]CheckFunc { return hc.liveChecks })
}

// performChecks runs the selected checks concurrently, so one slow backend
// costs at most the timeout
func (hc *HealthChecker) performChecks(ctx context.Context, pick func() map[string]CheckFunc) Response {
	hc.mu.RLock()
	selected := make(map[string]CheckFunc, len(pick()))
	for name, fn := range pick() {
		selected[name] = fn
	}
	timeout := hc.timeout
	hc.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	response := Response{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Checks:    make(map[string]Check, len(selected)),
		Uptime:    time.Since(hc.started).Seconds(),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, checkFunc := range selected {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			check := checkFunc(ctx)
			check.Duration = time.Since(start)
			check.LastChecked = start
			if check.Name == "" {
				check.Name = name
			}

			mu.Lock()
			defer mu.Unlock()
			response.Checks[name] = check
			// worst status wins
			if check.Status == StatusUnhealthy {
				response.Status = StatusUnhealthy
			} else if check.Status == StatusDegraded && response.Status != StatusUnhealthy {
				response.Status = StatusDegraded
			}
		}()
	}
	wg.Wait()

	return response
}
