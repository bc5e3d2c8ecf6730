package stats

import (
	"fmt"
	"sort"
	"strings"
)

// Comparison records which of two backends was faster for one operation
type Comparison struct {
	Operation     string             `json:"operation"`
	Averages      map[string]float64 `json:"averages"`
	Faster        string             `json:"faster_db"`
	Slower        string             `json:"slower_db"`
	SpeedupFactor float64            `json:"speedup_factor"`
}

// Side is one backend's input to Compare
type Side struct {
	Backend string
	Avg     float64
}

// Compare picks the faster side. SpeedupFactor is slower/faster and is
// always >= 1. The result does not depend on argument order: equal averages
// resolve to the lexically smaller backend name. When either average is not
// positive no winner can be named and Faster is empty with a factor of 1.
func Compare(operation string, a, b Side) Comparison {
	if b.Backend < a.Backend {
		a, b = b, a
	}

	c := Comparison{
		Operation:     operation,
		Averages:      map[string]float64{a.Backend: a.Avg, b.Backend: b.Avg},
		SpeedupFactor: 1,
	}

	if a.Avg <= 0 || b.Avg <= 0 {
		return c
	}

	fast, slow := a, b
	if b.Avg < a.Avg {
		fast, slow = b, a
	}

	c.Faster = fast.Backend
	c.Slower = slow.Backend
	c.SpeedupFactor = slow.Avg / fast.Avg
	return c
}

// Describe renders a one-line human summary
func (c Comparison) Describe(title func(string) string) string {
	if title == nil {
		title = func(s string) string { return s }
	}
	if c.Faster == "" {
		return fmt.Sprintf("%s: no comparable timings", c.Operation)
	}
	if c.SpeedupFactor == 1 {
		return fmt.Sprintf("%s: %s and %s performed equally", c.Operation, title(c.Faster), title(c.Slower))
	}
	return fmt.Sprintf("%s: %s is %.2fx faster than %s", c.Operation, title(c.Faster), c.SpeedupFactor, title(c.Slower))
}

// Rank orders comparisons by speedup, largest first, then by operation name
func Rank(comparisons []Comparison) []Comparison {
	ranked := make([]Comparison, len(comparisons))
	copy(ranked, comparisons)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].SpeedupFactor != ranked[j].SpeedupFactor {
			return ranked[i].SpeedupFactor > ranked[j].SpeedupFactor
		}
		return ranked[i].Operation < ranked[j].Operation
	})
	return ranked
}

// Wins counts how many comparisons each backend won
func Wins(comparisons []Comparison) map[string]int {
	wins := make(map[string]int)
	for _, c := range comparisons {
		if c.Faster != "" {
			wins[c.Faster]++
		}
	}
	return wins
}

// Summarize renders ranked comparisons plus an overall verdict. It never
// fails: comparisons without a winner are listed as such.
func Summarize(comparisons []Comparison, title func(string) string) []string {
	ranked := Rank(comparisons)
	lines := make([]string, 0, len(ranked)+1)
	for _, c := range ranked {
		lines = append(lines, c.Describe(title))
	}

	wins := Wins(comparisons)
	if len(wins) == 0 {
		return append(lines, "overall: no backend could be ranked")
	}

	names := make([]string, 0, len(wins))
	for name := range wins {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if wins[names[i]] != wins[names[j]] {
			return wins[names[i]] > wins[names[j]]
		}
		return names[i] < names[j]
	})

	parts := make([]string, len(names))
	for i, name := range names {
		display := name
		if title != nil {
			display = title(name)
		}
		parts[i] = fmt.Sprintf("%s won %d", display, wins[name])
	}
	return append(lines, "overall: "+strings.Join(parts, ", "))
}
