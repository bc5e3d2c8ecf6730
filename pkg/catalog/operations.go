package catalog

import (
	"context"
	"slices"
)

// Name identifies a catalog operation
type Name string

const (
	UserRetrieval         Name = "user_retrieval"
	ProductRetrieval      Name = "product_retrieval"
	UserFollows           Name = "user_follows"
	ProductPurchases      Name = "product_purchases"
	ProductViralityOp     Name = "product_virality"
	UserInfluenceOp       Name = "user_influence"
	ViralProductsOp       Name = "viral_products"
	RecommendationQueries Name = "recommendation_queries"
)

// Target says which reference entity an operation is driven by
type Target int

const (
	TargetNone Target = iota
	TargetUser
	TargetProduct
)

// Args is the logical request handed to both implementations
type Args struct {
	EntityID string
	Level    int
}

// Operation pairs a name with the call that runs it on any backend
type Operation struct {
	Name        Name
	Description string
	Target      Target
	Baseline    bool
	// Leveled operations are repeated for every hop bound up to the max
	Leveled bool
	// Expensive operations get the wide timeout and per-iteration progress
	Expensive bool
	Invoke    func(ctx context.Context, b Backend, args Args) (any, error)
}

var operations = []Operation{
	{
		Name:        UserRetrieval,
		Description: "single user lookup by id",
		Target:      TargetUser,
		Baseline:    true,
		Invoke: func(ctx context.Context, b Backend, a Args) (any, error) {
			return b.GetUser(ctx, a.EntityID)
		},
	},
	{
		Name:        ProductRetrieval,
		Description: "single product lookup by id",
		Target:      TargetProduct,
		Baseline:    true,
		Invoke: func(ctx context.Context, b Backend, a Args) (any, error) {
			return b.GetProduct(ctx, a.EntityID)
		},
	},
	{
		Name:        UserFollows,
		Description: "users directly followed by a user",
		Target:      TargetUser,
		Baseline:    true,
		Invoke: func(ctx context.Context, b Backend, a Args) (any, error) {
			return b.FollowedUsers(ctx, a.EntityID)
		},
	},
	{
		Name:        ProductPurchases,
		Description: "users who bought a product",
		Target:      TargetProduct,
		Baseline:    true,
		Invoke: func(ctx context.Context, b Backend, a Args) (any, error) {
			return b.ProductBuyers(ctx, a.EntityID)
		},
	},
	{
		Name:        ProductViralityOp,
		Description: "buyers of a product reaching other buyers within level hops",
		Target:      TargetProduct,
		Leveled:     true,
		Invoke: func(ctx context.Context, b Backend, a Args) (any, error) {
			return b.ProductVirality(ctx, a.EntityID, a.Level)
		},
	},
	{
		Name:        UserInfluenceOp,
		Description: "co-buyers reaching a user within level hops",
		Target:      TargetUser,
		Leveled:     true,
		Invoke: func(ctx context.Context, b Backend, a Args) (any, error) {
			return b.UserInfluence(ctx, a.EntityID, a.Level)
		},
	},
	{
		Name:        ViralProductsOp,
		Description: "top products by viral score across the whole network",
		Target:      TargetNone,
		Leveled:     true,
		Expensive:   true,
		Invoke: func(ctx context.Context, b Backend, a Args) (any, error) {
			return b.ViralProducts(ctx, a.Level)
		},
	},
	{
		Name:        RecommendationQueries,
		Description: "products bought by followed users and not by the user",
		Target:      TargetUser,
		Invoke: func(ctx context.Context, b Backend, a Args) (any, error) {
			return b.Recommendations(ctx, a.EntityID)
		},
	},
}

// Operations returns the catalog in execution order: baseline lookups first,
// then virality, influence, viral products and recommendations.
func Operations() []Operation {
	return slices.Clone(operations)
}

// Lookup finds an operation by name
func Lookup(name string) (Operation, bool) {
	for _, op := range operations {
		if string(op.Name) == name {
			return op, true
		}
	}
	return Operation{}, false
}

// Selection is the set of operations a test type resolves to
type Selection struct {
	Operations []Operation
	// Recognized is false when the requested type was unknown and "all" was
	// substituted
	Recognized bool
}

const (
	TestAll   = "all"
	TestBasic = "basic"
)

// Select resolves a test type. Unknown types fall back to the full catalog.
func Select(testType string) Selection {
	switch testType {
	case TestAll, "":
		return Selection{Operations: Operations(), Recognized: true}
	case TestBasic:
		var basic []Operation
		for _, op := range operations {
			if op.Baseline {
				basic = append(basic, op)
			}
		}
		return Selection{Operations: basic, Recognized: true}
	}

	if op, ok := Lookup(testType); ok {
		return Selection{Operations: []Operation{op}, Recognized: true}
	}
	return Selection{Operations: Operations(), Recognized: false}
}

// TestTypes lists every accepted test type
func TestTypes() []string {
	types := []string{TestAll, TestBasic}
	for _, op := range operations {
		types = append(types, string(op.Name))
	}
	return types
}

// ResultSize counts the records in an operation result: the length of a
// list, 1 for a found record and 0 for a zero record
func ResultSize(v any) int {
	switch r := v.(type) {
	case []UserRecord:
		return len(r)
	case []ViralityRecord:
		return len(r)
	case []Recommendation:
		return len(r)
	case UserRecord:
		return found(r.Name != "")
	case ProductRecord:
		return found(r.Name != "")
	case ViralityRecord:
		return found(r.Name != "")
	case InfluenceRecord:
		return found(r.Name != "")
	default:
		return 0
	}
}

func found(ok bool) int {
	if ok {
		return 1
	}
	return 0
}
