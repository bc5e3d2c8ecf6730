// Package catalog defines the analytic operations that are run against both
// backends and the contract each backend implements for them.
//
// Reachability: user a reaches user b within level hops when a directed
// FOLLOWS walk of length 1..level leads from a to b. Level 1 therefore means
// direct follows only. Both backends apply exactly this bound.
package catalog

import (
	"context"
	"fmt"

	"github.com/dd0wney/cluso-bench/pkg/model"
)

// MaxLevel is the deepest hop bound a query accepts
const MaxLevel = 10

// TopN bounds list-shaped results
const TopN = 10

// Backend is implemented by every store under comparison. Lookups of ids
// that do not exist return zero records or empty slices, never an error.
type Backend interface {
	GetUser(ctx context.Context, id string) (UserRecord, error)
	GetProduct(ctx context.Context, id string) (ProductRecord, error)
	FollowedUsers(ctx context.Context, userID string) ([]UserRecord, error)
	ProductBuyers(ctx context.Context, productID string) ([]UserRecord, error)
	ProductVirality(ctx context.Context, productID string, level int) (ViralityRecord, error)
	UserInfluence(ctx context.Context, userID string, level int) (InfluenceRecord, error)
	ViralProducts(ctx context.Context, level int) ([]ViralityRecord, error)
	Recommendations(ctx context.Context, userID string) ([]Recommendation, error)
}

// Sampler provides reference ids to drive the lookups
type Sampler interface {
	SampleUserIDs(ctx context.Context, limit int) ([]string, error)
	SampleProductIDs(ctx context.Context, limit int) ([]string, error)
}

// ValidateLevel checks a hop bound
func ValidateLevel(level int) error {
	if level < 1 || level > MaxLevel {
		return fmt.Errorf("%w: %d not in [1, %d]", model.ErrInvalidLevel, level, MaxLevel)
	}
	return nil
}
