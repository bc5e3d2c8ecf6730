package generator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dd0wney/cluso-bench/pkg/logging"
	"github.com/dd0wney/cluso-bench/pkg/model"
)

// BackendTiming accumulates the calls made to one backend during a phase.
// Total is the sum of call durations, not wall time.
type BackendTiming struct {
	Calls  int64         `json:"calls"`
	Errors int64         `json:"errors"`
	Total  time.Duration `json:"total_ns"`
}

// Avg is the mean call duration
func (t BackendTiming) Avg() time.Duration {
	if t.Calls == 0 {
		return 0
	}
	return t.Total / time.Duration(t.Calls)
}

// Rate is count entities per second of accumulated backend time
func (t BackendTiming) Rate(count int64) float64 {
	if t.Total <= 0 {
		return 0
	}
	return float64(count) / t.Total.Seconds()
}

// PhaseResult is the outcome of one generation phase.
// Attempted == Succeeded + Failed always holds.
type PhaseResult struct {
	Kind      model.Kind                      `json:"kind"`
	IDs       []string                        `json:"-"`
	Attempted int64                           `json:"attempted"`
	Succeeded int64                           `json:"succeeded"`
	Failed    int64                           `json:"failed"`
	Timing    map[model.Backend]BackendTiming `json:"timing"`
	Wall      time.Duration                   `json:"wall_ns"`
}

type phase struct {
	kind    model.Kind
	total   int64
	started time.Time
	done    atomic.Int64

	mu        sync.Mutex
	ids       []string
	attempted int64
	succeeded int64
	failed    int64
	timing    map[model.Backend]*BackendTiming
}

func newPhase(kind model.Kind, total int64) *phase {
	ph := &phase{
		kind:    kind,
		total:   total,
		started: time.Now(),
		timing:  make(map[model.Backend]*BackendTiming, len(model.Backends)),
	}
	for _, b := range model.Backends {
		ph.timing[b] = &BackendTiming{}
	}
	return ph
}

// call times fn against backend and records its outcome
func (ph *phase) call(backend model.Backend, fn func() error) error {
	start := time.Now()
	err := fn()
	d := time.Since(start)

	ph.mu.Lock()
	t := ph.timing[backend]
	t.Calls++
	t.Total += d
	if err != nil {
		t.Errors++
	}
	ph.mu.Unlock()
	return err
}

func (ph *phase) attempt(n int) {
	ph.mu.Lock()
	ph.attempted += int64(n)
	ph.mu.Unlock()
}

// succeed records one entity; edges pass an empty id
func (ph *phase) succeed(id string) {
	ph.mu.Lock()
	ph.succeeded++
	if id != "" {
		ph.ids = append(ph.ids, id)
	}
	ph.mu.Unlock()
}

func (ph *phase) fail(n int) {
	if n <= 0 {
		return
	}
	ph.mu.Lock()
	ph.failed += int64(n)
	ph.mu.Unlock()
}

func (ph *phase) result() PhaseResult {
	ph.mu.Lock()
	defer ph.mu.Unlock()
	res := PhaseResult{
		Kind:      ph.kind,
		IDs:       append([]string(nil), ph.ids...),
		Attempted: ph.attempted,
		Succeeded: ph.succeeded,
		Failed:    ph.failed,
		Timing:    make(map[model.Backend]BackendTiming, len(ph.timing)),
		Wall:      time.Since(ph.started),
	}
	for b, t := range ph.timing {
		res.Timing[b] = *t
	}
	return res
}

// batched runs write under policy until it is accepted, handed over to the
// per-item path, or given up
func (g *Generator) batched(ph *phase, backend model.Backend, write func() error) Action {
	for attempt := 1; ; attempt++ {
		err := ph.call(backend, write)
		action := g.cfg.Fallback.Decide(attempt, err)
		if action != ActionRetry {
			if err != nil {
				g.logger.Warn("batched write failed",
					logging.Backend(backend.String()),
					logging.Kind(string(ph.kind)),
					logging.Int("attempt", attempt),
					logging.String("action", action.String()),
					logging.Error(err))
			}
			return action
		}
	}
}

// perItem writes n entities one by one. write returns the produced id.
func (g *Generator) perItem(ctx context.Context, ph *phase, n int, write func(i int) (string, error)) {
	consecutive := 0
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			ph.fail(n - i)
			return
		}
		id, err := write(i)
		if err != nil {
			ph.fail(1)
			consecutive++
			if g.cfg.Fallback.ShouldAbandon(consecutive) {
				ph.fail(n - i - 1)
				g.logger.Warn("abandoning per-item writes",
					logging.Kind(string(ph.kind)),
					logging.Int("consecutive_failures", consecutive),
					logging.Int("skipped", n-i-1))
				return
			}
			continue
		}
		consecutive = 0
		ph.succeed(id)
	}
}
