package bench

import (
	"fmt"

	"github.com/dd0wney/cluso-bench/pkg/catalog"
	"github.com/dd0wney/cluso-bench/pkg/model"
	"github.com/dd0wney/cluso-bench/pkg/stats"
)

// accumulator collects the samples of one operation, or of one level of a
// leveled operation. Samples are appended in order and never modified.
type accumulator struct {
	op      catalog.Name
	level   int
	target  string
	order   []model.Backend
	samples map[model.Backend][]Sample
	rows    map[model.Backend]int
	levels  []*accumulator
}

func newAccumulator(op catalog.Name, level int, targets []Target) *accumulator {
	acc := &accumulator{
		op:      op,
		level:   level,
		samples: make(map[model.Backend][]Sample, len(targets)),
		rows:    make(map[model.Backend]int, len(targets)),
	}
	for _, t := range targets {
		acc.order = append(acc.order, t.Backend)
	}
	return acc
}

// child returns the accumulator for hop bound l, creating it
func (a *accumulator) child(l int) *accumulator {
	for _, c := range a.levels {
		if c.level == l {
			return c
		}
	}
	c := &accumulator{
		op:      a.op,
		level:   l,
		order:   a.order,
		samples: make(map[model.Backend][]Sample, len(a.order)),
		rows:    make(map[model.Backend]int, len(a.order)),
	}
	a.levels = append(a.levels, c)
	return c
}

func (a *accumulator) add(s Sample, rows int) {
	a.samples[s.Backend] = append(a.samples[s.Backend], s)
	if !s.Failed {
		a.rows[s.Backend] = rows
	}
}

// finish computes stats per backend. A backend without samples gets
// sentinel stats so the comparison is always defined.
func (a *accumulator) finish(sentinel float64) OperationResult {
	res := OperationResult{
		Operation: a.op,
		Level:     a.level,
		Target:    a.target,
		Stats:     make(map[model.Backend]stats.OperationStats, len(a.order)),
		Times:     make(map[model.Backend][]float64, len(a.order)),
		Errors:    make(map[model.Backend]int, len(a.order)),
		Rows:      make(map[model.Backend]int, len(a.order)),
	}

	sides := make([]stats.Side, 0, len(a.order))
	for _, b := range a.order {
		samples := a.samples[b]
		times := make([]float64, len(samples))
		errs := 0
		for i, s := range samples {
			times[i] = s.Seconds
			if s.Failed {
				errs++
			}
		}
		st := stats.Compute(times)
		if len(times) == 0 {
			st = stats.Sentinel(sentinel)
		}
		res.Stats[b] = st
		res.Times[b] = times
		res.Errors[b] = errs
		res.Rows[b] = a.rows[b]
		sides = append(sides, stats.Side{Backend: b.String(), Avg: st.Mean})
	}

	name := string(a.op)
	if a.level > 0 {
		name = fmt.Sprintf("%s (level %d)", a.op, a.level)
	}
	if len(sides) == 2 {
		res.Comparison = stats.Compare(name, sides[0], sides[1])
	}

	for _, c := range a.levels {
		res.Levels = append(res.Levels, c.finish(sentinel))
	}
	return res
}
