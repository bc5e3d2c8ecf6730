package snapshot

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/dd0wney/cluso-bench/pkg/bench"
	"github.com/dd0wney/cluso-bench/pkg/model"
)

var csvHeader = []string{
	"operation", "level", "backend", "samples",
	"avg", "median", "min", "max",
	"errors", "rows", "faster_db", "speedup_factor",
}

// WriteCSV renders one row per operation, level and backend. Leveled
// operations emit their summed row (level 0) followed by each level.
func WriteCSV(w io.Writer, res *bench.Results) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, op := range res.Operations {
		if err := writeOperation(cw, op); err != nil {
			return err
		}
		for _, lvl := range op.Levels {
			if err := writeOperation(cw, lvl); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}

func writeOperation(cw *csv.Writer, op bench.OperationResult) error {
	for _, b := range model.Backends {
		st := op.Stats[b]
		row := []string{
			string(op.Operation),
			strconv.Itoa(op.Level),
			string(b),
			strconv.Itoa(len(op.Times[b])),
			formatSeconds(st.Mean),
			formatSeconds(st.Median),
			formatSeconds(st.Min),
			formatSeconds(st.Max),
			strconv.Itoa(op.Errors[b]),
			strconv.Itoa(op.Rows[b]),
			op.Comparison.Faster,
			strconv.FormatFloat(op.Comparison.SpeedupFactor, 'f', 4, 64),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	return nil
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
