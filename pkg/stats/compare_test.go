package stats

import (
	"math"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name    string
		a, b    Side
		faster  string
		speedup float64
	}{
		{"pg faster", Side{"postgresql", 0.1}, Side{"neo4j", 0.4}, "postgresql", 4},
		{"neo4j faster", Side{"postgresql", 0.9}, Side{"neo4j", 0.3}, "neo4j", 3},
		{"tie", Side{"postgresql", 0.2}, Side{"neo4j", 0.2}, "neo4j", 1},
		{"zero average", Side{"postgresql", 0}, Side{"neo4j", 0.2}, "", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Compare("op", tt.a, tt.b)
			assert.Equal(t, tt.faster, c.Faster)
			assert.InDelta(t, tt.speedup, c.SpeedupFactor, 1e-9)
			assert.Equal(t, tt.a.Avg, c.Averages[tt.a.Backend])
		})
	}
}

func TestCompareSymmetryProperty(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("speedup >= 1 and order independent", prop.ForAll(
		func(x, y float64) bool {
			ab := Compare("op", Side{"postgresql", x}, Side{"neo4j", y})
			ba := Compare("op", Side{"neo4j", y}, Side{"postgresql", x})
			return ab.SpeedupFactor >= 1 &&
				ab.Faster == ba.Faster &&
				math.Abs(ab.SpeedupFactor-ba.SpeedupFactor) < 1e-12 &&
				math.Abs(ab.SpeedupFactor-math.Max(x, y)/math.Min(x, y)) < 1e-9
		},
		gen.Float64Range(1e-6, 60),
		gen.Float64Range(1e-6, 60),
	))

	properties.TestingRun(t)
}

func TestSummarize(t *testing.T) {
	comparisons := []Comparison{
		Compare("user_retrieval", Side{"postgresql", 0.01}, Side{"neo4j", 0.02}),
		Compare("viral_products", Side{"postgresql", 3}, Side{"neo4j", 0.5}),
		Compare("recommendation_queries", Side{"postgresql", 0}, Side{"neo4j", 0}),
	}

	lines := Summarize(comparisons, strings.ToUpper)
	require.Len(t, lines, 4)
	assert.Equal(t, "viral_products: NEO4J is 6.00x faster than POSTGRESQL", lines[0])
	assert.Contains(t, lines[1], "user_retrieval: POSTGRESQL is 2.00x faster")
	assert.Equal(t, "recommendation_queries: no comparable timings", lines[2])
	assert.Equal(t, "overall: NEO4J won 1, POSTGRESQL won 1", lines[3])
}

func TestSummarizeNoWinner(t *testing.T) {
	lines := Summarize(nil, nil)
	require.Len(t, lines, 1)
	assert.Equal(t, "overall: no backend could be ranked", lines[0])
}
