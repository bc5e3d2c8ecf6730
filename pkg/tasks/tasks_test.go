package tasks

import (
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

var idPattern = regexp.MustCompile(`^benchmark_1700000000_[0-9a-f]{8}$`)

func TestCreateAndGet(t *testing.T) {
	clock := newClock()
	r := NewRegistry(WithClock(clock.Now))

	id := r.Create(KindBenchmark, "Benchmark started")
	assert.Regexp(t, idPattern, id)

	v := r.Get(id)
	assert.Equal(t, id, v.ID)
	assert.Equal(t, KindBenchmark, v.Kind)
	assert.Equal(t, StatusRunning, v.Status)
	assert.Equal(t, "Benchmark started", v.Message)
	assert.Equal(t, 0, v.Progress)
	require.NotNil(t, v.StartTime)
	assert.Nil(t, v.EndTime)
}

func TestIDsAreUnique(t *testing.T) {
	r := NewRegistry(WithClock(newClock().Now))
	seen := map[string]bool{}
	for i := 0; i < 500; i++ {
		id := r.Create(KindGeneration, "")
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestUnknownTaskIsNotFound(t *testing.T) {
	r := NewRegistry()
	v := r.Get("benchmark_0_deadbeef")
	assert.Equal(t, StatusNotFound, v.Status)
	assert.Equal(t, 0, v.Progress)
	assert.Equal(t, "benchmark_0_deadbeef", v.ID)

	assert.ErrorIs(t, r.Update("nope", func(*State) {}), ErrTaskNotFound)
	assert.ErrorIs(t, r.Complete("nope", nil, ""), ErrTaskNotFound)
}

func TestStepProgress(t *testing.T) {
	r := NewRegistry(WithClock(newClock().Now))
	id := r.Create(KindBenchmark, "")

	tests := []struct {
		cur, total int
		want       int
	}{
		{0, 8, 0},
		{1, 8, 13},
		{4, 8, 50},
		{7, 8, 88},
		{8, 8, 99},
	}
	for _, tt := range tests {
		require.NoError(t, r.Update(id, func(s *State) {
			s.CurrentStep = tt.cur
			s.TotalSteps = tt.total
		}))
		assert.Equal(t, tt.want, r.Get(id).Progress, "%d/%d", tt.cur, tt.total)
	}

	require.NoError(t, r.Complete(id, map[string]int{"ops": 8}, "Benchmark completed"))
	v := r.Get(id)
	assert.Equal(t, StatusCompleted, v.Status)
	assert.Equal(t, 100, v.Progress)
	assert.Equal(t, map[string]int{"ops": 8}, v.Result)
}

func TestTimeProgress(t *testing.T) {
	clock := newClock()
	r := NewRegistry(WithClock(clock.Now), WithEstimate(10*time.Second))
	id := r.Create(KindGeneration, "")

	clock.Advance(5 * time.Second)
	assert.Equal(t, 50, r.Get(id).Progress)
	clock.Advance(time.Hour)
	assert.Equal(t, 99, r.Get(id).Progress)
}

func TestProgressNeverDecreases(t *testing.T) {
	r := NewRegistry(WithClock(newClock().Now))
	id := r.Create(KindGeneration, "")

	require.NoError(t, r.Update(id, func(s *State) { s.CurrentStep, s.TotalSteps = 3, 4 }))
	assert.Equal(t, 75, r.Get(id).Progress)

	// a writer switching to a longer step plan must not move progress back
	require.NoError(t, r.Update(id, func(s *State) { s.CurrentStep, s.TotalSteps = 1, 10 }))
	assert.Equal(t, 75, r.Get(id).Progress)
}

func TestTerminalIsFinal(t *testing.T) {
	clock := newClock()
	r := NewRegistry(WithClock(clock.Now))
	id := r.Create(KindGeneration, "")

	clock.Advance(2 * time.Second)
	require.NoError(t, r.Fail(id, errors.New("neo4j unreachable")))

	v := r.Get(id)
	assert.Equal(t, StatusFailed, v.Status)
	assert.Equal(t, 0, v.Progress)
	assert.Equal(t, "Error: neo4j unreachable", v.Message)
	assert.Equal(t, "neo4j unreachable", v.Error)
	require.NotNil(t, v.EndTime)
	assert.Equal(t, 2.0, v.Duration)

	assert.ErrorIs(t, r.Complete(id, nil, "done"), ErrTaskFinished)
	assert.ErrorIs(t, r.Update(id, func(s *State) { s.Message = "x" }), ErrTaskFinished)
	assert.ErrorIs(t, r.Fail(id, errors.New("again")), ErrTaskFinished)
	assert.Equal(t, StatusFailed, r.Get(id).Status)
}

func TestUpdateCannotFinish(t *testing.T) {
	r := NewRegistry()
	id := r.Create(KindBenchmark, "")
	require.NoError(t, r.Update(id, func(s *State) { s.Status = StatusCompleted }))
	assert.Equal(t, StatusRunning, r.Get(id).Status)
}

func TestListAndLatest(t *testing.T) {
	clock := newClock()
	r := NewRegistry(WithClock(clock.Now))

	g1 := r.Create(KindGeneration, "")
	clock.Advance(time.Second)
	b1 := r.Create(KindBenchmark, "")
	clock.Advance(time.Second)
	g2 := r.Create(KindGeneration, "")

	all := r.List("")
	require.Len(t, all, 3)
	assert.Equal(t, []string{g1, b1, g2}, []string{all[0].ID, all[1].ID, all[2].ID})

	gens := r.List(KindGeneration)
	require.Len(t, gens, 2)

	_, ok := r.Latest(KindGeneration)
	assert.False(t, ok, "nothing completed yet")

	require.NoError(t, r.Complete(g1, "first", ""))
	latest, ok := r.Latest(KindGeneration)
	require.True(t, ok)
	assert.Equal(t, g1, latest.ID)

	require.NoError(t, r.Complete(g2, "second", ""))
	latest, _ = r.Latest(KindGeneration)
	assert.Equal(t, g2, latest.ID)
}

func TestConcurrentReadersAndWriter(t *testing.T) {
	r := NewRegistry()
	id := r.Create(KindBenchmark, "")

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := 0
			for {
				select {
				case <-stop:
					return
				default:
				}
				v := r.Get(id)
				if v.Status == StatusRunning {
					if v.Progress < last || v.Progress > 99 {
						t.Errorf("progress went from %d to %d", last, v.Progress)
						return
					}
					last = v.Progress
				}
			}
		}()
	}

	for step := 0; step <= 50; step++ {
		require.NoError(t, r.Update(id, func(s *State) { s.CurrentStep, s.TotalSteps = step, 50 }))
	}
	require.NoError(t, r.Complete(id, nil, "done"))
	close(stop)
	wg.Wait()
}

func TestProgressProperties(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("running progress is within [0, 99] and non-decreasing", prop.ForAll(
		func(steps []int, total int) bool {
			r := NewRegistry()
			id := r.Create(KindBenchmark, "")
			last := 0
			for _, cur := range steps {
				if err := r.Update(id, func(s *State) { s.CurrentStep, s.TotalSteps = cur, total }); err != nil {
					return false
				}
				p := r.Get(id).Progress
				if p < last || p < 0 || p > 99 {
					return false
				}
				last = p
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 200)),
		gen.IntRange(1, 200),
	))

	properties.TestingRun(t)
}
