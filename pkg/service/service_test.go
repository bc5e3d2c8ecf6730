package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dd0wney/cluso-bench/pkg/bench"
	"github.com/dd0wney/cluso-bench/pkg/catalog"
	"github.com/dd0wney/cluso-bench/pkg/generator"
	"github.com/dd0wney/cluso-bench/pkg/logging"
	"github.com/dd0wney/cluso-bench/pkg/memstore"
	"github.com/dd0wney/cluso-bench/pkg/metrics"
	"github.com/dd0wney/cluso-bench/pkg/model"
	"github.com/dd0wney/cluso-bench/pkg/snapshot"
	"github.com/dd0wney/cluso-bench/pkg/tasks"
)

type fixedMemory float64

func (m fixedMemory) RSSMB() (float64, error) { return float64(m), nil }

type harness struct {
	svc     *Service
	pg, neo *memstore.Store
	dir     string
	metrics *metrics.Registry
}

func testConfig() Config {
	gen := generator.DefaultConfig()
	gen.BcryptCost = bcrypt.MinCost
	gen.ProgressInterval = 0
	gen.Seed = 7

	b := bench.DefaultConfig()
	b.Timeout = time.Second
	b.ExpensiveTimeout = 2 * time.Second
	return Config{Generation: gen, Benchmark: b}
}

func newHarness(t *testing.T, dir string) *harness {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	store, err := snapshot.NewFileStore(dir, snapshot.CompressionNone, logging.NewNopLogger())
	require.NoError(t, err)

	h := &harness{pg: memstore.New(), neo: memstore.New(), dir: dir, metrics: metrics.NewRegistry()}
	svc, err := New(Deps{
		Relational: h.pg.AsRelational(),
		Graph:      h.neo.AsGraph(),
		Targets: []bench.Target{
			{Backend: model.PostgreSQL, Impl: h.pg},
			{Backend: model.Neo4j, Impl: h.neo},
		},
		Sampler:          h.pg,
		Snapshots:        store,
		Metrics:          h.metrics,
		GeneratorOptions: []generator.Option{generator.WithMemorySampler(fixedMemory(40))},
	}, testConfig(), logging.NewNopLogger())
	require.NoError(t, err)
	h.svc = svc

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return h
}

func waitTerminal(t *testing.T, s *Service, id string) tasks.View {
	t.Helper()
	var v tasks.View
	require.Eventually(t, func() bool {
		v = s.Status(id)
		return v.Status.Terminal()
	}, 10*time.Second, 5*time.Millisecond, "task %s never finished", id)
	return v
}

func (h *harness) generate(t *testing.T) string {
	t.Helper()
	id, err := h.svc.StartGeneration(generator.Plan{Users: 50, Products: 10, MaxFollows: 5, MaxPurchases: 2})
	require.NoError(t, err)
	v := waitTerminal(t, h.svc, id)
	require.Equal(t, tasks.StatusCompleted, v.Status, v.Message)
	return id
}

func (h *harness) benchmark(t *testing.T, params bench.Params) string {
	t.Helper()
	id, err := h.svc.StartBenchmark(params)
	require.NoError(t, err)
	v := waitTerminal(t, h.svc, id)
	require.Equal(t, tasks.StatusCompleted, v.Status, v.Message)
	return id
}

func TestNewRequiresBackends(t *testing.T) {
	_, err := New(Deps{}, testConfig(), nil)
	assert.Error(t, err)

	s := memstore.New()
	_, err = New(Deps{Relational: s.AsRelational(), Graph: s.AsGraph()}, testConfig(), nil)
	assert.Error(t, err)
}

func TestGenerationJob(t *testing.T) {
	h := newHarness(t, "")
	id := h.generate(t)

	assert.True(t, strings.HasPrefix(id, "generation_"))
	v := h.svc.Status(id)
	assert.Equal(t, 100, v.Progress)
	assert.Contains(t, v.Message, "Generated 50 users, 10 products")

	doc, ok := v.Result.(snapshot.GenerationMetrics)
	require.True(t, ok, "result is %T", v.Result)
	assert.Equal(t, int64(50), doc.Counts[model.KindUser])
	assert.Equal(t, int64(10), doc.Counts[model.KindProduct])

	users, products, _, _ := h.neo.Counts()
	assert.Equal(t, 50, users)
	assert.Equal(t, 10, products)

	got, err := h.svc.GenerationMetrics(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, got.TaskID)

	_, err = os.Stat(filepath.Join(h.dir, snapshot.GenerationName(id)))
	assert.NoError(t, err, "generation metrics not persisted")

	finished := h.metrics.TasksFinishedTotal.WithLabelValues("generation", "completed")
	assert.Equal(t, 1.0, counterValue(t, finished))
}

func TestBenchmarkJob(t *testing.T) {
	h := newHarness(t, "")
	h.generate(t)
	id := h.benchmark(t, bench.Params{TestType: string(catalog.UserRetrieval), Iterations: 2})

	v := h.svc.Status(id)
	res, ok := v.Result.(*bench.Results)
	require.True(t, ok, "result is %T", v.Result)
	op, ok := res.Lookup(catalog.UserRetrieval)
	require.True(t, ok)
	assert.Len(t, op.Times[model.PostgreSQL], 2)
	assert.Len(t, op.Times[model.Neo4j], 2)
	assert.Equal(t, res.TotalSteps, v.TotalSteps)

	rec, err := snapshot.LoadBenchmark(context.Background(), mustStore(t, h.dir), id)
	require.NoError(t, err)
	assert.Equal(t, "completed", rec.Status)

	assert.Len(t, h.svc.Benchmarks(), 1)
	all := h.svc.Tasks()
	require.Len(t, all, 2)
	assert.Equal(t, id, all[0].ID, "most recent first")
}

func TestBenchmarkWithoutDataFails(t *testing.T) {
	h := newHarness(t, "")
	id, err := h.svc.StartBenchmark(bench.Params{})
	require.NoError(t, err)

	v := waitTerminal(t, h.svc, id)
	assert.Equal(t, tasks.StatusFailed, v.Status)
	assert.Equal(t, 0, v.Progress)
	assert.True(t, strings.HasPrefix(v.Message, "Error: "), v.Message)
	assert.Contains(t, v.Error, bench.ErrNoData.Error())
}

func TestPanicFailsTask(t *testing.T) {
	h := newHarness(t, "")
	id, err := h.svc.start(tasks.KindBenchmark, "boom")
	require.NoError(t, err)
	go h.svc.runJob(id, tasks.KindBenchmark, func(context.Context) error {
		panic("exploded")
	})

	v := waitTerminal(t, h.svc, id)
	assert.Equal(t, tasks.StatusFailed, v.Status)
	assert.Equal(t, "panic: exploded", v.Error)
}

func TestCompare(t *testing.T) {
	h := newHarness(t, "")
	h.generate(t)
	params := bench.Params{TestType: catalog.TestBasic, Iterations: 2}
	first := h.benchmark(t, params)
	second := h.benchmark(t, params)

	cmp, err := h.svc.Compare(context.Background(), first, second)
	require.NoError(t, err)
	assert.Equal(t, first, cmp.PostgresTask)
	assert.Equal(t, second, cmp.Neo4jTask)
	require.NotEmpty(t, cmp.Operations)
	for name, c := range cmp.Operations {
		assert.GreaterOrEqual(t, c.SpeedupFactor, 1.0, name)
		assert.Contains(t, []string{"postgresql", "neo4j"}, c.Faster)
	}
	assert.NotEmpty(t, cmp.Summary)
}

func TestCompareErrors(t *testing.T) {
	h := newHarness(t, "")
	h.generate(t)
	done := h.benchmark(t, bench.Params{TestType: string(catalog.UserRetrieval), Iterations: 1})

	_, err := h.svc.Compare(context.Background(), done, "benchmark_1_missing")
	assert.ErrorIs(t, err, tasks.ErrTaskNotFound)

	release := make(chan struct{})
	h.neo.SetHook(func(ctx context.Context, op string) error {
		if op == "get_user" {
			select {
			case <-release:
			case <-ctx.Done():
			}
		}
		return nil
	})
	running, err := h.svc.StartBenchmark(bench.Params{TestType: string(catalog.UserRetrieval), Iterations: 1})
	require.NoError(t, err)

	_, err = h.svc.Compare(context.Background(), done, running)
	assert.ErrorIs(t, err, ErrNotCompleted)

	close(release)
	waitTerminal(t, h.svc, running)
}

func TestResultsSurviveRestart(t *testing.T) {
	dir := t.TempDir()
	first := newHarness(t, dir)
	genID := first.generate(t)
	benchID := first.benchmark(t, bench.Params{TestType: string(catalog.ProductRetrieval), Iterations: 1})

	second := newHarness(t, dir)
	ctx := context.Background()

	v := second.svc.Results(ctx, benchID)
	assert.Equal(t, tasks.StatusCompleted, v.Status)
	assert.Equal(t, 100, v.Progress)
	require.NotNil(t, v.Result)

	doc, err := second.svc.GenerationMetrics(ctx, genID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), doc.Counts[model.KindUser])

	latest, err := second.svc.LatestGenerationMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, genID, latest.TaskID)

	_, err = second.svc.Compare(ctx, benchID, benchID)
	assert.NoError(t, err)

	assert.Equal(t, tasks.StatusNotFound, second.svc.Results(ctx, "benchmark_0_none").Status)
}

func TestLatestGenerationMetricsEmpty(t *testing.T) {
	h := newHarness(t, "")
	_, err := h.svc.LatestGenerationMetrics(context.Background())
	assert.ErrorIs(t, err, snapshot.ErrNotFound)

	_, err = h.svc.GenerationMetrics(context.Background(), "generation_0_none")
	assert.ErrorIs(t, err, snapshot.ErrNotFound)
}

func TestLatestGenerationMetricsSkipsFailedRuns(t *testing.T) {
	dir := t.TempDir()
	store, err := snapshot.NewFileStore(dir, snapshot.CompressionNone, logging.NewNopLogger())
	require.NoError(t, err)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// ids from the same second sort against their start order
	for _, doc := range []snapshot.GenerationMetrics{
		{TaskID: "generation_1772366400_ffffffff", Status: "completed", StartTime: base.Add(100 * time.Millisecond)},
		{TaskID: "generation_1772366400_00000000", Status: "completed", StartTime: base.Add(900 * time.Millisecond)},
		{TaskID: "generation_1772366500_aaaaaaaa", Status: "failed", StartTime: base.Add(100 * time.Second)},
	} {
		require.NoError(t, snapshot.SaveGeneration(ctx, store, doc))
	}

	h := newHarness(t, dir)
	h.svc.recordGeneration(snapshot.GenerationMetrics{
		TaskID:    "generation_1772366600_bbbbbbbb",
		Status:    "failed",
		StartTime: base.Add(200 * time.Second),
	})

	latest, err := h.svc.LatestGenerationMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, "generation_1772366400_00000000", latest.TaskID)
	assert.Equal(t, "completed", latest.Status)
}

func TestLatestGenerationMetricsOnlyFailed(t *testing.T) {
	h := newHarness(t, "")
	h.svc.recordGeneration(snapshot.GenerationMetrics{TaskID: "generation_1_deadbeef", Status: "failed", StartTime: time.Now()})

	_, err := h.svc.LatestGenerationMetrics(context.Background())
	assert.ErrorIs(t, err, snapshot.ErrNotFound)
}

func TestRandomIDs(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()

	ids, err := h.svc.RandomIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids.ProductID)
	assert.Empty(t, ids.UserID)
	assert.NotEmpty(t, ids.Message)

	h.generate(t)
	ids, err = h.svc.RandomIDs(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, ids.ProductID)
	assert.NotEmpty(t, ids.UserID)
	assert.Empty(t, ids.Message)

	h.pg.SetHook(func(context.Context, string) error { return errors.New("down") })
	_, err = h.svc.RandomIDs(ctx)
	assert.Error(t, err)
}

func TestShutdownCancelsJobs(t *testing.T) {
	h := newHarness(t, "")
	h.pg.SetHook(func(ctx context.Context, op string) error {
		if op == "insert_users" {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})

	id, err := h.svc.StartGeneration(generator.Plan{Users: 10})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.svc.Running()["generation"] == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.svc.Shutdown(ctx))

	v := h.svc.Status(id)
	assert.True(t, v.Status.Terminal(), "status %s", v.Status)

	_, err = h.svc.StartBenchmark(bench.Params{})
	assert.ErrorIs(t, err, ErrShuttingDown)
}
