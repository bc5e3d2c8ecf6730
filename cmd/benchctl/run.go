package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dd0wney/cluso-bench/pkg/bench"
	"github.com/dd0wney/cluso-bench/pkg/catalog"
	"github.com/dd0wney/cluso-bench/pkg/events"
	"github.com/dd0wney/cluso-bench/pkg/snapshot"
	"github.com/dd0wney/cluso-bench/pkg/validation"
)

func newRunCommand(root *rootOptions) *cobra.Command {
	var (
		req     validation.BenchmarkRequest
		csvPath string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Time the equivalent queries on both databases",
		Example: `  benchctl run --test-type basic --iterations 10
  benchctl run --test-type product_virality --max-level 4 --csv virality.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validation.ValidateBenchmarkRequest(&req); err != nil {
				return err
			}
			ctx := cmd.Context()
			sess, err := openSession(ctx, root, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer sess.Close(ctx)

			sub := sess.svc.Bus().Subscribe(ctx, events.AllTasks)
			defer sub.Unsubscribe()

			id, err := sess.svc.StartBenchmark(bench.Params{
				TestType:   req.TestType,
				MaxLevel:   req.MaxLevel,
				ProductID:  req.ProductID,
				UserID:     req.UserID,
				Iterations: req.Iterations,
			})
			if err != nil {
				return err
			}
			view, err := sess.wait(ctx, sub, id, cmd.ErrOrStderr(), root.quiet)
			if err != nil {
				return err
			}
			res, ok := view.Result.(*bench.Results)
			if !ok {
				return errors.New("benchmark completed without results")
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render("Benchmark "+id))
			fmt.Fprintln(out, renderResults(res))
			for _, line := range res.Summary {
				fmt.Fprintln(out, summaryStyle.Render(line))
			}
			for _, note := range res.Notes {
				fmt.Fprintln(out, warnStyle.Render(note))
			}

			if csvPath != "" {
				if err := writeCSV(csvPath, res); err != nil {
					return err
				}
				fmt.Fprintln(out, successStyle.Render("Wrote "+csvPath))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.TestType, "test-type", catalog.TestAll, "operation name, \"basic\" or \"all\"")
	f.IntVar(&req.MaxLevel, "max-level", 0, "deepest traversal level for leveled operations (default from config)")
	f.IntVar(&req.Iterations, "iterations", 0, "timed calls per operation (default from config)")
	f.StringVar(&req.ProductID, "product-id", "", "product to look up (default: random)")
	f.StringVar(&req.UserID, "user-id", "", "user to look up (default: random)")
	f.StringVar(&csvPath, "csv", "", "also write per-backend statistics as CSV to this file")
	return cmd
}

func writeCSV(path string, res *bench.Results) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := snapshot.WriteCSV(f, res); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
