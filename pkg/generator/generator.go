// Package generator synthesizes users, products, follows and purchases and
// writes each entity to both backends. The relational store allocates every
// identifier; the graph store mirrors it.
package generator

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dd0wney/cluso-bench/pkg/events"
	"github.com/dd0wney/cluso-bench/pkg/logging"
	"github.com/dd0wney/cluso-bench/pkg/model"
)

// RelationalWriter is the id-allocating side of a dual write
type RelationalWriter interface {
	InsertUsers(ctx context.Context, batch []model.NewUser) ([]model.User, error)
	InsertUser(ctx context.Context, u model.NewUser) (model.User, error)
	InsertProducts(ctx context.Context, batch []model.NewProduct) ([]model.Product, error)
	InsertProduct(ctx context.Context, p model.NewProduct) (model.Product, error)
	CreateFollow(ctx context.Context, f model.Follow) error
	CreatePurchase(ctx context.Context, userID, productID string) (model.Purchase, error)
}

// GraphWriter mirrors committed rows. Every method must be idempotent.
type GraphWriter interface {
	UpsertUsers(ctx context.Context, users []model.User) error
	UpsertUser(ctx context.Context, u model.User) error
	UpsertProducts(ctx context.Context, products []model.Product) error
	UpsertProduct(ctx context.Context, p model.Product) error
	CreateFollow(ctx context.Context, f model.Follow) error
	CreatePurchase(ctx context.Context, p model.Purchase) error
}

// Config tunes batching, concurrency and synthetic values
type Config struct {
	BatchSize           int            `yaml:"batch_size" env:"BATCH_SIZE"`
	MinBatchSize        int            `yaml:"min_batch_size" env:"MIN_BATCH_SIZE"`
	SubBatchSize        int            `yaml:"sub_batch_size" env:"SUB_BATCH_SIZE"`
	CandidatePool       int            `yaml:"candidate_pool" env:"CANDIDATE_POOL"`
	MaxPurchaseUsers    int            `yaml:"max_purchase_users" env:"MAX_PURCHASE_USERS"`
	MaxPurchaseProducts int            `yaml:"max_purchase_products" env:"MAX_PURCHASE_PRODUCTS"`
	MemoryBudgetMB      float64        `yaml:"memory_budget_mb" env:"MEMORY_BUDGET_MB"`
	ProgressInterval    time.Duration  `yaml:"progress_interval" env:"PROGRESS_INTERVAL"`
	Password            string         `yaml:"password" env:"PASSWORD"`
	BcryptCost          int            `yaml:"bcrypt_cost" env:"BCRYPT_COST"`
	Seed                uint64         `yaml:"seed" env:"SEED"`
	Fallback            FallbackPolicy `yaml:"fallback" envPrefix:"FALLBACK_"`
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		BatchSize:           1000,
		MinBatchSize:        100,
		SubBatchSize:        100,
		CandidatePool:       100,
		MaxPurchaseUsers:    100000,
		MaxPurchaseProducts: 10000,
		ProgressInterval:    5 * time.Second,
		Password:            "password123",
		BcryptCost:          bcrypt.DefaultCost,
		Fallback:            DefaultFallbackPolicy(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MinBatchSize <= 0 {
		c.MinBatchSize = d.MinBatchSize
	}
	if c.MinBatchSize > c.BatchSize {
		c.MinBatchSize = c.BatchSize
	}
	if c.SubBatchSize <= 0 {
		c.SubBatchSize = d.SubBatchSize
	}
	if c.CandidatePool <= 0 {
		c.CandidatePool = d.CandidatePool
	}
	if c.MaxPurchaseUsers <= 0 {
		c.MaxPurchaseUsers = d.MaxPurchaseUsers
	}
	if c.MaxPurchaseProducts <= 0 {
		c.MaxPurchaseProducts = d.MaxPurchaseProducts
	}
	if c.Password == "" {
		c.Password = d.Password
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = d.BcryptCost
	}
	return c
}

// Plan is one full generation request
type Plan struct {
	Users        int `json:"users"`
	Products     int `json:"products"`
	MaxFollows   int `json:"max_follows"`
	MaxPurchases int `json:"max_purchases"`
}

// MemoryReport holds RSS observations in MB
type MemoryReport struct {
	PeakMB  float64 `json:"peak_mb"`
	FinalMB float64 `json:"final_mb"`
}

// Report is the outcome of Run
type Report struct {
	Plan    Plan                    `json:"plan"`
	Phases  []PhaseResult           `json:"phases"`
	Counts  map[model.Kind]int64    `json:"counts"`
	Errors  map[model.Backend]int64 `json:"errors"`
	Memory  MemoryReport            `json:"memory"`
	Started time.Time               `json:"started"`
	Wall    time.Duration           `json:"wall_ns"`
}

// Phase returns the result for kind
func (r Report) Phase(kind model.Kind) (PhaseResult, bool) {
	for _, p := range r.Phases {
		if p.Kind == kind {
			return p, true
		}
	}
	return PhaseResult{}, false
}

// Option customizes a Generator
type Option func(*Generator)

// WithSink publishes progress observations to s
func WithSink(s events.Sink) Option {
	return func(g *Generator) {
		if s != nil {
			g.sink = s
		}
	}
}

// WithMemorySampler replaces the process RSS sampler
func WithMemorySampler(m MemorySampler) Option {
	return func(g *Generator) {
		g.memory.sampler = m
	}
}

// WithTaskID tags progress observations and logs
func WithTaskID(id string) Option {
	return func(g *Generator) {
		g.taskID = id
	}
}

// Generator writes synthetic data to both backends. A Generator is used by
// one goroutine at a time; edge writes fan out internally.
type Generator struct {
	rel    RelationalWriter
	graph  GraphWriter
	cfg    Config
	logger logging.Logger
	sink   events.Sink
	memory *memoryWatch
	rng    *rand.Rand
	hash   string
	taskID string

	current   atomic.Pointer[phase]
	step      atomic.Int64
	stepTotal int
	started   time.Time
}

// New creates a generator. The password hash shared by all synthetic users
// is computed here, once.
func New(rel RelationalWriter, graph GraphWriter, cfg Config, logger logging.Logger, opts ...Option) (*Generator, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash synthetic password: %w", err)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	g := &Generator{
		rel:     rel,
		graph:   graph,
		cfg:     cfg,
		logger:  logger.With(logging.Component("generator")),
		sink:    events.Discard,
		memory:  &memoryWatch{sampler: &ProcessMemory{}},
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		hash:    string(hash),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.taskID != "" {
		g.logger = g.logger.With(logging.TaskID(g.taskID))
	}
	return g, nil
}

// Run executes users, products, follows and purchases in that order
func (g *Generator) Run(ctx context.Context, plan Plan) (Report, error) {
	g.started = time.Now()
	report := Report{
		Plan:    plan,
		Counts:  make(map[model.Kind]int64, len(model.Kinds)),
		Errors:  make(map[model.Backend]int64, len(model.Backends)),
		Started: g.started,
	}
	g.stepTotal = len(model.Kinds)

	stop := g.startTicker(ctx)
	defer stop()

	g.logger.Info("generation started",
		logging.Int("users", plan.Users),
		logging.Int("products", plan.Products),
		logging.Int("max_follows", plan.MaxFollows),
		logging.Int("max_purchases", plan.MaxPurchases))

	var users, products PhaseResult
	phases := []func() (PhaseResult, error){
		func() (PhaseResult, error) {
			res, err := g.Users(ctx, plan.Users)
			users = res
			return res, err
		},
		func() (PhaseResult, error) {
			res, err := g.Products(ctx, plan.Products)
			products = res
			return res, err
		},
		func() (PhaseResult, error) {
			return g.Follows(ctx, users.IDs, plan.MaxFollows)
		},
		func() (PhaseResult, error) {
			return g.Purchases(ctx, users.IDs, products.IDs, plan.MaxPurchases)
		},
	}

	var runErr error
	for i, run := range phases {
		g.step.Store(int64(i + 1))
		res, err := run()
		report.Phases = append(report.Phases, res)
		report.Counts[res.Kind] = res.Succeeded
		for backend, t := range res.Timing {
			report.Errors[backend] += t.Errors
		}
		if err != nil {
			runErr = err
			break
		}
	}

	peak, _ := g.memory.stats()
	final := g.memory.sample()
	if final > peak {
		peak = final
	}
	report.Memory = MemoryReport{PeakMB: peak, FinalMB: final}
	report.Wall = time.Since(g.started)

	if runErr != nil {
		g.logger.Error("generation interrupted", logging.Error(runErr))
		return report, runErr
	}
	g.logger.Info("generation finished",
		logging.Duration("wall", report.Wall),
		logging.MemoryMB(peak))
	return report, nil
}

func (g *Generator) startTicker(ctx context.Context) func() {
	if g.cfg.ProgressInterval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(g.cfg.ProgressInterval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				if ph := g.current.Load(); ph != nil {
					mb := g.memory.sample()
					p := g.observe(ph, mb)
					g.logger.Info("generation progress",
						logging.Phase(p.Phase),
						logging.Int64("done", p.Done),
						logging.Int64("total", p.Total),
						logging.Duration("remaining", p.Remaining),
						logging.MemoryMB(mb))
					g.sink.Publish(p)
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func (g *Generator) observe(ph *phase, mb float64) events.Progress {
	done, total := ph.done.Load(), ph.total
	elapsed := time.Since(ph.started)
	return events.Progress{
		TaskID:     g.taskID,
		Kind:       "generation",
		Phase:      string(ph.kind),
		Step:       int(g.step.Load()),
		TotalSteps: g.stepTotal,
		Done:       done,
		Total:      total,
		Elapsed:    time.Since(g.started),
		Remaining:  events.Estimate(elapsed, done, total),
		MemoryMB:   mb,
		Message:    fmt.Sprintf("Generating %s: %d/%d", ph.kind, done, total),
		Time:       time.Now(),
	}
}

func (g *Generator) begin(kind model.Kind, total int64) *phase {
	ph := newPhase(kind, total)
	g.current.Store(ph)
	g.sink.Publish(g.observe(ph, g.memory.sample()))
	return ph
}

func (g *Generator) end(ph *phase) PhaseResult {
	res := ph.result()
	mb := g.memory.sample()
	p := g.observe(ph, mb)
	p.Message = fmt.Sprintf("Generated %d %s (%d failed)", res.Succeeded, ph.kind, res.Failed)
	g.sink.Publish(p)

	fields := []logging.Field{
		logging.Kind(string(ph.kind)),
		logging.Int64("attempted", res.Attempted),
		logging.Int64("succeeded", res.Succeeded),
		logging.Int64("failed", res.Failed),
		logging.Duration("wall", res.Wall),
	}
	for _, b := range model.Backends {
		t := res.Timing[b]
		fields = append(fields, logging.Float64(b.String()+"_s", t.Total.Seconds()))
	}
	g.logger.Info("phase complete", fields...)
	return res
}

// adapt halves the batch size while the process is over its memory budget
func (g *Generator) adapt(size int) int {
	mb := g.memory.sample()
	if g.cfg.MemoryBudgetMB <= 0 || mb <= g.cfg.MemoryBudgetMB || size <= g.cfg.MinBatchSize {
		return size
	}
	next := size / 2
	if next < g.cfg.MinBatchSize {
		next = g.cfg.MinBatchSize
	}
	g.logger.Warn("memory over budget, shrinking batches",
		logging.MemoryMB(mb),
		logging.Int("from", size),
		logging.Int("to", next))
	return next
}
