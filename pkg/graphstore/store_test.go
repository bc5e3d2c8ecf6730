package graphstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-bench/pkg/catalog"
	"github.com/dd0wney/cluso-bench/pkg/logging"
	"github.com/dd0wney/cluso-bench/pkg/model"
)

func TestLeveledPatternsAreBounded(t *testing.T) {
	tests := []struct {
		name     string
		template string
	}{
		{"virality", productViralityCypher},
		{"influence", userInfluenceCypher},
		{"viral", viralProductsCypher},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, level := range []int{1, 3, catalog.MaxLevel} {
				q := leveled(tt.template, level)
				assert.Contains(t, q, "[:FOLLOWS"+hops(level)+"]")
				assert.NotContains(t, q, "%!")
				assert.NotContains(t, q, "FOLLOWS*]")
			}
		})
	}
}

func TestHops(t *testing.T) {
	assert.Equal(t, "*1..1", hops(1))
	assert.Equal(t, "*1..10", hops(10))
}

func TestLeveledQueriesRejectBadLevels(t *testing.T) {
	s := &Store{logger: logging.NewNopLogger()}
	ctx := context.Background()

	_, err := s.ProductVirality(ctx, "1", 0)
	assert.ErrorIs(t, err, model.ErrInvalidLevel)
	_, err = s.UserInfluence(ctx, "1", catalog.MaxLevel+1)
	assert.ErrorIs(t, err, model.ErrInvalidLevel)
	_, err = s.ViralProducts(ctx, -1)
	assert.ErrorIs(t, err, model.ErrInvalidLevel)
}

func TestCreateFollowRejectsSelfEdge(t *testing.T) {
	s := &Store{logger: logging.NewNopLogger()}
	err := s.CreateFollow(context.Background(), model.Follow{FollowerID: "7", FollowedID: "7"})
	assert.ErrorIs(t, err, model.ErrSelfFollow)
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("BENCH_NEO4J_URI")
	if uri == "" {
		t.Skip("BENCH_NEO4J_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := Open(ctx, Options{
		URI:      uri,
		Username: os.Getenv("BENCH_NEO4J_USER"),
		Password: os.Getenv("BENCH_NEO4J_PASSWORD"),
	}, logging.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, s.Reset(ctx))
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func TestIntegration_LevelSemantics(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	var users []model.User
	for _, id := range []string{"1", "2", "3", "4"} {
		users = append(users, model.User{ID: id, Name: "u" + id, Email: "u" + id + "@example.com", CreatedAt: now})
	}
	require.NoError(t, s.UpsertUsers(ctx, users))
	// upserts are idempotent
	require.NoError(t, s.UpsertUsers(ctx, users))
	require.NoError(t, s.UpsertProduct(ctx, model.Product{ID: "1", Name: "P", Category: "Books", Price: 10, CreatedAt: now}))

	for _, e := range [][2]string{{"1", "2"}, {"2", "3"}, {"3", "4"}} {
		require.NoError(t, s.CreateFollow(ctx, model.Follow{FollowerID: e[0], FollowedID: e[1], CreatedAt: now}))
	}
	require.NoError(t, s.CreatePurchase(ctx, model.Purchase{ID: "1", UserID: "1", ProductID: "1", CreatedAt: now}))
	require.NoError(t, s.CreatePurchase(ctx, model.Purchase{ID: "2", UserID: "4", ProductID: "1", CreatedAt: now}))

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), counts["users"])
	assert.Equal(t, int64(3), counts["follows"])
	assert.Equal(t, int64(2), counts["purchases"])

	for level, want := range map[int]int64{1: 0, 2: 0, 3: 1} {
		rec, err := s.ProductVirality(ctx, "1", level)
		require.NoError(t, err)
		assert.Equal(t, want, rec.PurchaseCount, "level %d", level)
	}

	inf, err := s.UserInfluence(ctx, "4", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), inf.Followers)
	assert.Equal(t, 1.0, inf.InfluenceScore)

	missing, err := s.ProductVirality(ctx, "999999", 1)
	require.NoError(t, err)
	assert.Equal(t, catalog.ViralityRecord{ID: "999999"}, missing)

	nobody, err := s.GetUser(ctx, "999999")
	require.NoError(t, err)
	assert.Equal(t, catalog.UserRecord{ID: "999999"}, nobody)
	nothing, err := s.GetProduct(ctx, "999999")
	require.NoError(t, err)
	assert.Equal(t, catalog.ProductRecord{ID: "999999"}, nothing)

	err = s.CreateFollow(ctx, model.Follow{FollowerID: "1", FollowedID: "999999"})
	assert.ErrorIs(t, err, model.ErrEntityNotFound)
}
