package generator

import (
	"context"
	"errors"
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dd0wney/cluso-bench/pkg/events"
	"github.com/dd0wney/cluso-bench/pkg/logging"
	"github.com/dd0wney/cluso-bench/pkg/memstore"
	"github.com/dd0wney/cluso-bench/pkg/model"
)

var errBackend = errors.New("backend unavailable")

type fixedMemory float64

func (m fixedMemory) RSSMB() (float64, error) { return float64(m), nil }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BcryptCost = bcrypt.MinCost
	cfg.ProgressInterval = 0
	cfg.Seed = 42
	return cfg
}

func newTestGenerator(t *testing.T, cfg Config, opts ...Option) (*Generator, *memstore.Store, *memstore.Store) {
	t.Helper()
	pg, neo := memstore.New(), memstore.New()
	opts = append([]Option{WithMemorySampler(fixedMemory(50))}, opts...)
	g, err := New(pg.AsRelational(), neo.AsGraph(), cfg, logging.NewNopLogger(), opts...)
	require.NoError(t, err)
	return g, pg, neo
}

// failOn fails the named operation for every call where pick returns true
func failOn(op string, pick func(call int64) bool) memstore.Hook {
	var calls atomic.Int64
	return func(ctx context.Context, name string) error {
		if name != op {
			return nil
		}
		if pick(calls.Add(1)) {
			return errBackend
		}
		return nil
	}
}

func always(int64) bool { return true }

func assertBalanced(t *testing.T, res PhaseResult) {
	t.Helper()
	assert.Equal(t, res.Attempted, res.Succeeded+res.Failed, "%s: attempted != succeeded + failed", res.Kind)
}

func TestFallbackPolicyDecide(t *testing.T) {
	policy := DefaultFallbackPolicy()
	tests := []struct {
		name    string
		policy  FallbackPolicy
		attempt int
		err     error
		want    Action
	}{
		{"success", policy, 1, nil, ActionAccept},
		{"first failure retries", policy, 1, errBackend, ActionRetry},
		{"retries spent", policy, 2, errBackend, ActionPerItem},
		{"no retries", FallbackPolicy{PerItemFallback: true}, 1, errBackend, ActionPerItem},
		{"no fallback", FallbackPolicy{BatchRetries: 1}, 2, errBackend, ActionFail},
		{"canceled", policy, 1, context.Canceled, ActionFail},
		{"deadline", policy, 1, context.DeadlineExceeded, ActionFail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.Decide(tt.attempt, tt.err); got != tt.want {
				t.Errorf("Decide(%d, %v) = %s, want %s", tt.attempt, tt.err, got, tt.want)
			}
		})
	}
}

func TestFallbackPolicyShouldAbandon(t *testing.T) {
	unlimited := FallbackPolicy{}
	assert.False(t, unlimited.ShouldAbandon(1_000_000))

	capped := FallbackPolicy{MaxConsecutiveFailures: 3}
	assert.False(t, capped.ShouldAbandon(2))
	assert.True(t, capped.ShouldAbandon(3))
	assert.True(t, capped.ShouldAbandon(4))
}

func TestRunScenario(t *testing.T) {
	g, pg, neo := newTestGenerator(t, testConfig())

	report, err := g.Run(context.Background(), Plan{Users: 50, Products: 10, MaxFollows: 5, MaxPurchases: 2})
	require.NoError(t, err)

	assert.Equal(t, int64(50), report.Counts[model.KindUser])
	assert.Equal(t, int64(10), report.Counts[model.KindProduct])
	assert.GreaterOrEqual(t, report.Counts[model.KindFollow], int64(50))
	assert.LessOrEqual(t, report.Counts[model.KindFollow], int64(50*5))
	assert.LessOrEqual(t, report.Counts[model.KindPurchase], int64(50*2))
	require.Len(t, report.Phases, 4)
	for i, kind := range model.Kinds {
		assert.Equal(t, kind, report.Phases[i].Kind)
		assertBalanced(t, report.Phases[i])
	}
	assert.Zero(t, report.Errors[model.PostgreSQL])
	assert.Zero(t, report.Errors[model.Neo4j])
	assert.Equal(t, 50.0, report.Memory.PeakMB)

	pu, pp, pf, pb := pg.Counts()
	nu, np, nf, nb := neo.Counts()
	assert.Equal(t, []int{50, 10}, []int{pu, pp})
	assert.Equal(t, []int{pu, pp, pf, pb}, []int{nu, np, nf, nb})
	assert.Equal(t, int(report.Counts[model.KindFollow]), pf)

	for _, f := range neo.Follows() {
		assert.NotEqual(t, f.FollowerID, f.FollowedID)
	}
}

func TestFollowFanoutBounds(t *testing.T) {
	g, pg, _ := newTestGenerator(t, testConfig())
	ctx := context.Background()

	users, err := g.Users(ctx, 30)
	require.NoError(t, err)
	res, err := g.Follows(ctx, users.IDs, 3)
	require.NoError(t, err)
	assertBalanced(t, res)

	out := map[string]int{}
	for _, f := range pg.Follows() {
		require.NotEqual(t, f.FollowerID, f.FollowedID)
		out[f.FollowerID]++
	}
	require.Len(t, out, 30, "every user follows someone")
	for id, n := range out {
		assert.True(t, n >= 1 && n <= 3, "user %s follows %d", id, n)
	}
}

func TestFollowsWithTwoUsers(t *testing.T) {
	g, pg, _ := newTestGenerator(t, testConfig())
	ctx := context.Background()

	users, err := g.Users(ctx, 2)
	require.NoError(t, err)
	res, err := g.Follows(ctx, users.IDs, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Succeeded)
	_, _, follows, _ := pg.Counts()
	assert.Equal(t, 2, follows)

	res, err = g.Follows(ctx, users.IDs[:1], 5)
	require.NoError(t, err)
	assert.Zero(t, res.Attempted)
}

func TestZeroCountIsNoop(t *testing.T) {
	g, pg, _ := newTestGenerator(t, testConfig())
	res, err := g.Users(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, res.Attempted)
	assert.Empty(t, res.IDs)
	users, _, _, _ := pg.Counts()
	assert.Zero(t, users)
}

func TestGraphBatchFailureFallsBackPerItem(t *testing.T) {
	g, _, neo := newTestGenerator(t, testConfig())
	neo.SetHook(failOn("upsert_users", always))

	res, err := g.Users(context.Background(), 25)
	require.NoError(t, err)
	assert.Equal(t, int64(25), res.Succeeded)
	assert.Zero(t, res.Failed)
	assert.Len(t, res.IDs, 25)
	// the initial batch plus one retry
	assert.Equal(t, int64(2), res.Timing[model.Neo4j].Errors)
	assert.Equal(t, int64(2+25), res.Timing[model.Neo4j].Calls)

	users, _, _, _ := neo.Counts()
	assert.Equal(t, 25, users)
}

func TestPerItemFailuresAreCounted(t *testing.T) {
	g, pg, _ := newTestGenerator(t, testConfig())
	var hookMu sync.Mutex
	batch := failOn("insert_users", always)
	single := failOn("insert_user", func(call int64) bool { return call%3 == 0 })
	pg.SetHook(func(ctx context.Context, op string) error {
		hookMu.Lock()
		defer hookMu.Unlock()
		if err := batch(ctx, op); err != nil {
			return err
		}
		return single(ctx, op)
	})

	res, err := g.Users(context.Background(), 10)
	require.NoError(t, err)
	assertBalanced(t, res)
	assert.Equal(t, int64(10), res.Attempted)
	assert.Equal(t, int64(3), res.Failed)
	assert.Len(t, res.IDs, 7)
	assert.Equal(t, int64(2+3), res.Timing[model.PostgreSQL].Errors)
}

func TestAbandonAfterConsecutiveFailures(t *testing.T) {
	cfg := testConfig()
	cfg.Fallback = FallbackPolicy{PerItemFallback: true, MaxConsecutiveFailures: 2}
	g, pg, _ := newTestGenerator(t, cfg)

	var singles atomic.Int64
	pg.SetHook(func(ctx context.Context, op string) error {
		if op == "insert_user" {
			singles.Add(1)
		}
		return errBackend
	})

	res, err := g.Users(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), res.Failed)
	assert.Zero(t, res.Succeeded)
	assert.Equal(t, int64(2), singles.Load())
}

func TestWithoutPerItemFallbackBatchFails(t *testing.T) {
	cfg := testConfig()
	cfg.Fallback = FallbackPolicy{BatchRetries: 2}
	g, pg, _ := newTestGenerator(t, cfg)
	pg.SetHook(failOn("insert_products", always))

	res, err := g.Products(context.Background(), 5)
	require.NoError(t, err)
	assertBalanced(t, res)
	assert.Equal(t, int64(5), res.Failed)
	assert.Equal(t, int64(3), res.Timing[model.PostgreSQL].Errors)
	assert.Zero(t, res.Timing[model.Neo4j].Calls)
}

func TestEdgeFailuresAreIndependent(t *testing.T) {
	g, pg, neo := newTestGenerator(t, testConfig())
	ctx := context.Background()

	users, err := g.Users(ctx, 40)
	require.NoError(t, err)
	products, err := g.Products(ctx, 10)
	require.NoError(t, err)

	neo.SetHook(failOn("create_follow", func(call int64) bool { return call%2 == 0 }))
	follows, err := g.Follows(ctx, users.IDs, 4)
	require.NoError(t, err)
	assertBalanced(t, follows)
	assert.Positive(t, follows.Failed)
	assert.Positive(t, follows.Succeeded)
	assert.Equal(t, follows.Failed, follows.Timing[model.Neo4j].Errors)
	assert.Zero(t, follows.Timing[model.PostgreSQL].Errors)

	pg.SetHook(failOn("create_purchase", always))
	purchases, err := g.Purchases(ctx, users.IDs, products.IDs, 3)
	require.NoError(t, err)
	assertBalanced(t, purchases)
	assert.Zero(t, purchases.Succeeded)
	assert.Zero(t, purchases.Timing[model.Neo4j].Calls)
}

func TestPurchasesAreDistinctPerUser(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPurchaseUsers = 5
	cfg.MaxPurchaseProducts = 3
	g, pg, _ := newTestGenerator(t, cfg)
	ctx := context.Background()

	users, err := g.Users(ctx, 20)
	require.NoError(t, err)
	products, err := g.Products(ctx, 10)
	require.NoError(t, err)

	res, err := g.Purchases(ctx, users.IDs, products.IDs, 10)
	require.NoError(t, err)
	assertBalanced(t, res)
	// at most 5 users times 3 sampled products
	assert.LessOrEqual(t, res.Succeeded, int64(15))
	_, _, _, purchases := pg.Counts()
	assert.Equal(t, int(res.Succeeded), purchases)
}

func TestAdaptiveBatching(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 400
	cfg.MinBatchSize = 100
	cfg.MemoryBudgetMB = 100
	g, pg, _ := newTestGenerator(t, cfg, WithMemorySampler(fixedMemory(500)))

	var sizes []int
	var batches atomic.Int64
	pg.SetHook(func(ctx context.Context, op string) error {
		if op == "insert_users" {
			batches.Add(1)
		}
		return nil
	})

	res, err := g.Users(context.Background(), 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), res.Succeeded)
	// 400, 200, then four batches at the floor
	assert.Equal(t, int64(6), batches.Load())

	for size := 400; ; {
		sizes = append(sizes, size)
		next := g.adapt(size)
		if next == size {
			break
		}
		size = next
	}
	assert.Equal(t, []int{400, 200, 100}, sizes)
}

func TestAdaptiveBatchingDisabled(t *testing.T) {
	g, _, _ := newTestGenerator(t, testConfig(), WithMemorySampler(fixedMemory(1e6)))
	assert.Equal(t, 1000, g.adapt(1000))
}

type collector struct {
	mu     sync.Mutex
	events []events.Progress
}

func (c *collector) Publish(p events.Progress) {
	c.mu.Lock()
	c.events = append(c.events, p)
	c.mu.Unlock()
}

func (c *collector) phases() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	seen := map[string]bool{}
	for _, e := range c.events {
		if !seen[e.Phase] {
			seen[e.Phase] = true
			out = append(out, e.Phase)
		}
	}
	return out
}

func TestRunPublishesProgress(t *testing.T) {
	cfg := testConfig()
	cfg.ProgressInterval = time.Millisecond
	sink := &collector{}
	g, _, _ := newTestGenerator(t, cfg, WithSink(sink), WithTaskID("generation_1_abc"))

	_, err := g.Run(context.Background(), Plan{Users: 20, Products: 5, MaxFollows: 2, MaxPurchases: 1})
	require.NoError(t, err)

	assert.Equal(t, []string{"users", "products", "follows", "purchases"}, sink.phases())
	sink.mu.Lock()
	defer sink.mu.Unlock()
	for _, e := range sink.events {
		assert.Equal(t, "generation_1_abc", e.TaskID)
		assert.Equal(t, "generation", e.Kind)
		assert.Equal(t, 4, e.TotalSteps)
		assert.LessOrEqual(t, e.Done, e.Total)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	g, _, _ := newTestGenerator(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := g.Run(ctx, Plan{Users: 10, Products: 10})
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, report.Phases, 1)
	assert.Zero(t, report.Counts[model.KindUser])
}

var emailPattern = regexp.MustCompile(`^user_\d+_\d+_[a-z0-9]{6}@example\.com$`)

func TestSyntheticValues(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 200; i++ {
		u := newUser(rng, 1700000000, i, "hash")
		assert.Regexp(t, `^User [a-z0-9]{6}$`, u.Name)
		assert.Regexp(t, emailPattern, u.Email)
		assert.True(t, strings.HasSuffix(u.Email, u.Name[5:]+"@example.com"))

		p := newProduct(rng, i)
		assert.True(t, strings.HasPrefix(p.Name, "Product "))
		assert.Contains(t, Categories, p.Category)
		assert.GreaterOrEqual(t, p.Price, 10.0)
		assert.LessOrEqual(t, p.Price, 1000.0)
		assert.InDelta(t, p.Price, float64(int64(p.Price*100+0.5))/100, 1e-9)
	}
}

func TestPickDistinctProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("distinct, in range, never the excluded index", prop.ForAll(
		func(n, k, exclude int, seed uint64) bool {
			rng := rand.New(rand.NewPCG(seed, seed))
			got := pickDistinct(rng, n, k, exclude)

			avail := n
			if exclude >= 0 && exclude < n {
				avail--
			}
			want := min(k, avail)
			if want < 0 {
				want = 0
			}
			if len(got) != want {
				return false
			}
			seen := map[int]bool{}
			for _, i := range got {
				if i < 0 || i >= n || i == exclude || seen[i] {
					return false
				}
				seen[i] = true
			}
			return true
		},
		gen.IntRange(0, 300),
		gen.IntRange(0, 120),
		gen.IntRange(-1, 300),
		gen.UInt64(),
	))

	properties.TestingRun(t)
}
