package bench

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/dd0wney/cluso-bench/pkg/catalog"
	"github.com/dd0wney/cluso-bench/pkg/events"
	"github.com/dd0wney/cluso-bench/pkg/logging"
	"github.com/dd0wney/cluso-bench/pkg/model"
	"github.com/dd0wney/cluso-bench/pkg/stats"
)

// Target is one backend under comparison
type Target struct {
	Backend model.Backend
	Impl    catalog.Backend
}

// Option customizes a Runner
type Option func(*Runner)

// WithSink publishes progress observations to s
func WithSink(s events.Sink) Option {
	return func(r *Runner) {
		if s != nil {
			r.sink = s
		}
	}
}

// WithTaskID tags progress observations and logs
func WithTaskID(id string) Option {
	return func(r *Runner) {
		r.taskID = id
	}
}

// WithObserver sees every sample as it is recorded
func WithObserver(fn func(Sample)) Option {
	return func(r *Runner) {
		r.observe = fn
	}
}

// Runner executes one benchmark. Operations run sequentially and every
// invocation is bounded by a timeout.
type Runner struct {
	targets []Target
	sampler catalog.Sampler
	cfg     Config
	logger  logging.Logger
	sink    events.Sink
	observe func(Sample)
	taskID  string
	rng     *rand.Rand
	used    atomic.Bool

	started time.Time
	total   int
}

// NewRunner creates a runner over the targets, invoked in the given order.
// sampler supplies reference ids when a request does not pin them.
func NewRunner(targets []Target, sampler catalog.Sampler, cfg Config, logger logging.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	r := &Runner{
		targets: targets,
		sampler: sampler,
		cfg:     cfg.withDefaults(),
		logger:  logger.With(logging.Component("bench")),
		sink:    events.Discard,
		rng:     rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 7)),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.taskID != "" {
		r.logger = r.logger.With(logging.TaskID(r.taskID))
	}
	return r
}

type references struct {
	users    []string
	products []string
}

func (r *Runner) normalize(p Params) (Params, error) {
	if p.Iterations <= 0 {
		p.Iterations = r.cfg.Iterations
	}
	if p.MaxLevel <= 0 {
		p.MaxLevel = r.cfg.MaxLevel
	}
	if p.TestType == "" {
		p.TestType = catalog.TestAll
	}
	if err := catalog.ValidateLevel(p.MaxLevel); err != nil {
		return p, err
	}
	return p, nil
}

// Run executes the selected operations. It may be called once.
func (r *Runner) Run(ctx context.Context, params Params) (*Results, error) {
	if !r.used.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRun
	}

	params, err := r.normalize(params)
	if err != nil {
		return nil, err
	}

	sel := catalog.Select(params.TestType)
	r.started = time.Now()
	r.total = len(sel.Operations)
	res := &Results{
		Params:     params,
		Recognized: sel.Recognized,
		Errors:     make(map[model.Backend]int, len(r.targets)),
		TotalSteps: r.total,
		Started:    r.started,
	}
	if !sel.Recognized {
		r.logger.Warn("unknown test type, running all operations", logging.String("test_type", params.TestType))
		res.Notes = append(res.Notes, fmt.Sprintf("unknown test type %q, ran all operations", params.TestType))
	}

	r.logger.Info("benchmark started",
		logging.String("test_type", params.TestType),
		logging.Int("max_level", params.MaxLevel),
		logging.Int("iterations", params.Iterations),
		logging.Int("steps", r.total))

	refs, err := r.references(ctx, sel.Operations, params)
	if err != nil {
		return nil, err
	}

	var runErr error
	for i, op := range sel.Operations {
		r.publish(i, fmt.Sprintf("Running %s benchmark", op.Name))
		result, err := r.runOperation(ctx, i, op, params, refs)
		res.Operations = append(res.Operations, result)
		if err != nil {
			runErr = err
			break
		}
	}

	for _, op := range res.Operations {
		for b, n := range op.Errors {
			res.Errors[b] += n
		}
	}
	res.Summary = stats.Summarize(res.Comparisons(), Title)
	res.Finished = time.Now()

	if runErr != nil {
		r.logger.Error("benchmark interrupted", logging.Error(runErr))
		return res, runErr
	}

	r.publish(r.total, "All benchmarks completed, generating summary")
	for _, line := range res.Summary {
		r.logger.Info(line)
	}
	return res, nil
}

func (r *Runner) references(ctx context.Context, ops []catalog.Operation, params Params) (references, error) {
	var refs references
	var needUsers, needProducts bool
	for _, op := range ops {
		switch op.Target {
		case catalog.TargetUser:
			needUsers = needUsers || params.UserID == "" || !op.Leveled
		case catalog.TargetProduct:
			needProducts = needProducts || params.ProductID == "" || !op.Leveled
		}
	}

	var err error
	if needUsers {
		if refs.users, err = r.sampler.SampleUserIDs(ctx, r.cfg.SampleSize); err != nil {
			return refs, fmt.Errorf("failed to sample users: %w", err)
		}
		if len(refs.users) == 0 {
			return refs, fmt.Errorf("%w: no users", ErrNoData)
		}
	}
	if needProducts {
		if refs.products, err = r.sampler.SampleProductIDs(ctx, r.cfg.SampleSize); err != nil {
			return refs, fmt.Errorf("failed to sample products: %w", err)
		}
		if len(refs.products) == 0 {
			return refs, fmt.Errorf("%w: no products", ErrNoData)
		}
	}
	return refs, nil
}

func (r *Runner) pick(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return ids[r.rng.IntN(len(ids))]
}

// target returns the fixed id for leveled operations and a fresh one per
// iteration otherwise
func (r *Runner) target(op catalog.Operation, params Params, refs references) func() string {
	var pinned string
	var pool []string
	switch op.Target {
	case catalog.TargetUser:
		pinned, pool = params.UserID, refs.users
	case catalog.TargetProduct:
		pinned, pool = params.ProductID, refs.products
	default:
		return func() string { return "" }
	}

	if !op.Leveled {
		return func() string { return r.pick(pool) }
	}
	if pinned == "" {
		pinned = r.pick(pool)
	}
	return func() string { return pinned }
}

func (r *Runner) runOperation(ctx context.Context, step int, op catalog.Operation, params Params, refs references) (OperationResult, error) {
	levels := []int{0}
	if op.Leveled {
		levels = levels[:0]
		for l := 1; l <= params.MaxLevel; l++ {
			levels = append(levels, l)
		}
	}
	timeout := r.cfg.Timeout
	if op.Expensive {
		timeout = r.cfg.ExpensiveTimeout
	}
	next := r.target(op, params, refs)
	logger := r.logger.With(logging.Operation(string(op.Name)))

	acc := newAccumulator(op.Name, 0, r.targets)
	for it := 1; it <= params.Iterations; it++ {
		if err := ctx.Err(); err != nil {
			return acc.finish(r.cfg.SentinelSeconds), err
		}
		if op.Expensive {
			r.publish(step, fmt.Sprintf("Running %s (iteration %d/%d)", op.Name, it, params.Iterations))
		}

		id := next()
		acc.target = id
		for _, t := range r.targets {
			s := Sample{Backend: t.Backend, Operation: op.Name, Iteration: it}
			rows := 0
			for _, level := range levels {
				secs, n, err := r.invoke(ctx, op, t.Impl, catalog.Args{EntityID: id, Level: level}, timeout)
				if err != nil {
					logger.Warn("invocation failed",
						logging.Backend(t.Backend.String()),
						logging.HopLevel(level),
						logging.Iteration(it),
						logging.Error(err))
					s.Failed = true
					if level > 0 {
						acc.child(level).add(Sample{
							Seconds: r.cfg.SentinelSeconds, Backend: t.Backend, Operation: op.Name,
							Level: level, Iteration: it, Failed: true,
						}, 0)
					}
					break
				}
				s.Seconds += secs
				rows = n
				if level > 0 {
					acc.child(level).add(Sample{
						Seconds: secs, Backend: t.Backend, Operation: op.Name, Level: level, Iteration: it,
					}, n)
				}
			}
			if s.Failed {
				s.Seconds = r.cfg.SentinelSeconds
			}
			acc.add(s, rows)
			if r.observe != nil {
				r.observe(s)
			}
		}
	}

	res := acc.finish(r.cfg.SentinelSeconds)
	logger.Info("operation complete",
		logging.String("faster", res.Comparison.Faster),
		logging.Float64("speedup", res.Comparison.SpeedupFactor))
	return res, nil
}

// invoke runs one call under timeout. The select returns on the deadline
// even when the backend ignores its context.
func (r *Runner) invoke(ctx context.Context, op catalog.Operation, impl catalog.Backend, args catalog.Args, timeout time.Duration) (float64, int, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("panic in %s: %v", op.Name, p)}
			}
		}()
		v, err := op.Invoke(callCtx, impl, args)
		done <- outcome{result: v, err: err}
	}()

	select {
	case o := <-done:
		elapsed := time.Since(start).Seconds()
		if o.err != nil {
			if errors.Is(o.err, context.DeadlineExceeded) && ctx.Err() == nil {
				return 0, 0, fmt.Errorf("%w after %s: %w", ErrTimeout, timeout, o.err)
			}
			return 0, 0, o.err
		}
		return elapsed, catalog.ResultSize(o.result), nil
	case <-callCtx.Done():
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		return 0, 0, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
}

func (r *Runner) publish(step int, message string) {
	r.sink.Publish(events.Progress{
		TaskID:     r.taskID,
		Kind:       "benchmark",
		Phase:      "benchmark",
		Step:       step,
		TotalSteps: r.total,
		Done:       int64(step),
		Total:      int64(r.total),
		Elapsed:    time.Since(r.started),
		Remaining:  events.Estimate(time.Since(r.started), int64(step), int64(r.total)),
		Message:    message,
		Time:       time.Now(),
	})
}
