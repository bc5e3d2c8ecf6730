package snapshot

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/golang/snappy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-bench/pkg/bench"
	"github.com/dd0wney/cluso-bench/pkg/catalog"
	"github.com/dd0wney/cluso-bench/pkg/generator"
	"github.com/dd0wney/cluso-bench/pkg/logging"
	"github.com/dd0wney/cluso-bench/pkg/model"
	"github.com/dd0wney/cluso-bench/pkg/stats"
)

func sampleReport() *generator.Report {
	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return &generator.Report{
		Plan:    generator.Plan{Users: 50, Products: 10, MaxFollows: 5, MaxPurchases: 2},
		Started: started,
		Wall:    4 * time.Second,
		Counts: map[model.Kind]int64{
			model.KindUser: 50, model.KindProduct: 10, model.KindFollow: 120, model.KindPurchase: 40,
		},
		Errors: map[model.Backend]int64{model.PostgreSQL: 0, model.Neo4j: 1},
		Memory: generator.MemoryReport{PeakMB: 64, FinalMB: 60},
		Phases: []generator.PhaseResult{
			{
				Kind: model.KindUser, Attempted: 50, Succeeded: 50, Wall: time.Second,
				Timing: map[model.Backend]generator.BackendTiming{
					model.PostgreSQL: {Calls: 1, Total: 500 * time.Millisecond},
					model.Neo4j:      {Calls: 1, Total: time.Second},
				},
			},
			{
				Kind: model.KindFollow, Attempted: 121, Succeeded: 120, Failed: 1, Wall: 2 * time.Second,
				Timing: map[model.Backend]generator.BackendTiming{
					model.PostgreSQL: {Calls: 121, Total: 3 * time.Second},
					model.Neo4j:      {Calls: 121, Errors: 1, Total: time.Second},
				},
			},
		},
	}
}

func TestNewGenerationMetrics(t *testing.T) {
	m := NewGenerationMetrics("generation_1_abcd0123", "done", sampleReport())

	assert.Equal(t, "completed", m.Status)
	assert.Equal(t, 4.0, m.Duration)
	assert.Equal(t, m.StartTime.Add(4*time.Second), m.EndTime)
	assert.Equal(t, 1.0, m.Timings["users"])
	assert.Equal(t, 4.0, m.Timings["total"])

	users := m.Databases[model.PostgreSQL][model.KindUser]
	assert.Equal(t, int64(50), users.Count)
	assert.Equal(t, 0.5, users.TotalTime)
	assert.Equal(t, 0.01, users.AvgTime)
	assert.Equal(t, 100.0, users.Rate)

	c := m.Comparison[model.KindUser]
	assert.Equal(t, "postgresql", c.Faster)
	assert.Equal(t, 2.0, c.SpeedupFactor)

	c = m.Comparison[model.KindFollow]
	assert.Equal(t, "neo4j", c.Faster)
	assert.Equal(t, 3.0, c.SpeedupFactor)
}

func TestFileStoreRoundTrip(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionSnappy} {
		t.Run(string(c), func(t *testing.T) {
			dir := t.TempDir()
			s, err := NewFileStore(dir, c, logging.NewNopLogger())
			require.NoError(t, err)
			ctx := context.Background()

			m := NewGenerationMetrics("generation_1700000000_0011aabb", "done", sampleReport())
			require.NoError(t, SaveGeneration(ctx, s, m))

			want := "generation_metrics_generation_1700000000_0011aabb.json"
			if c == CompressionSnappy {
				want += ".sz"
			}
			data, err := os.ReadFile(filepath.Join(dir, want))
			require.NoError(t, err)
			if c == CompressionSnappy {
				data, err = snappy.Decode(nil, data)
				require.NoError(t, err)
			}
			assert.Contains(t, string(data), `"task_id": "generation_1700000000_0011aabb"`)

			got, err := LoadGeneration(ctx, s, m.TaskID)
			require.NoError(t, err)
			assert.Equal(t, m.Counts, got.Counts)
			assert.Equal(t, m.Memory, got.Memory)
			assert.True(t, m.StartTime.Equal(got.StartTime))
			assert.Equal(t, m.Comparison[model.KindUser].Faster, got.Comparison[model.KindUser].Faster)
		})
	}
}

func TestFileStoreReadsEitherEncoding(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	plain, err := NewFileStore(dir, CompressionNone, nil)
	require.NoError(t, err)
	require.NoError(t, plain.Put(ctx, "doc.json", map[string]int{"a": 1}))

	packed, err := NewFileStore(dir, CompressionSnappy, nil)
	require.NoError(t, err)
	var got map[string]int
	require.NoError(t, packed.Get(ctx, "doc.json", &got))
	assert.Equal(t, 1, got["a"])

	// rewriting in the other encoding leaves a single copy
	require.NoError(t, packed.Put(ctx, "doc.json", map[string]int{"a": 2}))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "doc.json.sz", entries[0].Name())

	require.NoError(t, plain.Get(ctx, "doc.json", &got))
	assert.Equal(t, 2, got["a"])
}

func TestFileStoreErrors(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), CompressionNone, nil)
	require.NoError(t, err)
	ctx := context.Background()

	var v any
	assert.ErrorIs(t, s.Get(ctx, "missing.json", &v), ErrNotFound)
	assert.Error(t, s.Put(ctx, "../escape.json", 1))
	assert.Error(t, s.Put(ctx, "", 1))

	_, err = LatestGeneration(ctx, s)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAndLatest(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), CompressionNone, nil)
	require.NoError(t, err)
	ctx := context.Background()

	for _, id := range []string{"generation_1700000002_bb", "generation_1700000001_aa", "generation_1700000003_cc"} {
		require.NoError(t, SaveGeneration(ctx, s, GenerationMetrics{TaskID: id, Status: "completed"}))
	}
	require.NoError(t, SaveBenchmark(ctx, s, BenchmarkRecord{TaskID: "benchmark_1700000004_dd", Status: "completed"}))

	ids, err := GenerationIDs(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, []string{"generation_1700000001_aa", "generation_1700000002_bb", "generation_1700000003_cc"}, ids)

	latest, err := LatestGeneration(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, "generation_1700000003_cc", latest.TaskID)

	bids, err := BenchmarkIDs(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, []string{"benchmark_1700000004_dd"}, bids)

	rec, err := LoadBenchmark(ctx, s, "benchmark_1700000004_dd")
	require.NoError(t, err)
	assert.Equal(t, "completed", rec.Status)
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func TestS3Store(t *testing.T) {
	fake := newFakeS3()
	s := NewS3StoreWithClient(fake, "bench", "/runs/", CompressionSnappy, nil)
	ctx := context.Background()

	rec := BenchmarkRecord{TaskID: "benchmark_1_ab", Status: "completed", Message: "ok"}
	require.NoError(t, SaveBenchmark(ctx, s, rec))

	_, stored := fake.objects["runs/benchmark_results_benchmark_1_ab.json.sz"]
	assert.True(t, stored, "keys: %v", fake.objects)

	got, err := LoadBenchmark(ctx, s, "benchmark_1_ab")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	ids, err := BenchmarkIDs(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, []string{"benchmark_1_ab"}, ids)

	_, err = LoadBenchmark(ctx, s, "benchmark_2_cd")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenPicksStore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dir = t.TempDir()
	s, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)
}

func TestWriteCSV(t *testing.T) {
	cmp := stats.Compare("virality", stats.Side{Backend: "postgresql", Avg: 0.4}, stats.Side{Backend: "neo4j", Avg: 0.1})
	res := &bench.Results{
		Operations: []bench.OperationResult{
			{
				Operation: catalog.UserRetrieval,
				Stats: map[model.Backend]stats.OperationStats{
					model.PostgreSQL: stats.Compute([]float64{0.001, 0.003}),
					model.Neo4j:      stats.Compute([]float64{0.002}),
				},
				Times:  map[model.Backend][]float64{model.PostgreSQL: {0.001, 0.003}, model.Neo4j: {0.002}},
				Errors: map[model.Backend]int{model.Neo4j: 1},
				Rows:   map[model.Backend]int{model.PostgreSQL: 2, model.Neo4j: 1},
			},
			{
				Operation:  catalog.ProductViralityOp,
				Comparison: cmp,
				Levels: []bench.OperationResult{
					{Operation: catalog.ProductViralityOp, Level: 1, Comparison: cmp},
				},
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, res))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 1+2*3)
	assert.Equal(t, csvHeader, rows[0])

	assert.Equal(t, []string{"user_retrieval", "0", "postgresql", "2", "0.002000", "0.002000", "0.001000", "0.003000", "0", "2", "", "0.0000"}, rows[1])
	assert.Equal(t, "1", rows[2][8])
	assert.Equal(t, "neo4j", rows[3][10])
	assert.Equal(t, "4.0000", rows[3][11])
	assert.Equal(t, "1", rows[5][1])
}
