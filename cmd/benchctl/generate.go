package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dd0wney/cluso-bench/pkg/events"
	"github.com/dd0wney/cluso-bench/pkg/generator"
	"github.com/dd0wney/cluso-bench/pkg/validation"
)

func newGenerateCommand(root *rootOptions) *cobra.Command {
	req := validation.DefaultGenerationRequest()
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Load the same synthetic dataset into both databases",
		Example: `  benchctl generate --users 10000 --products 500
  benchctl generate --dry-run --users 100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validation.ValidateGenerationRequest(&req); err != nil {
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

			id, err := sess.svc.StartGeneration(generator.Plan{
				Users:        req.Users,
				Products:     req.Products,
				MaxFollows:   req.MaxFollows,
				MaxPurchases: req.MaxPurchases,
			})
			if err != nil {
				return err
			}
			view, err := sess.wait(ctx, sub, id, cmd.ErrOrStderr(), root.quiet)
			if err != nil {
				return err
			}

			doc, err := sess.svc.GenerationMetrics(ctx, id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render("Generation "+id))
			fmt.Fprintln(out, renderGeneration(doc))
			fmt.Fprintln(out, successStyle.Render(view.Message))
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&req.Users, "users", req.Users, "number of users")
	f.IntVar(&req.Products, "products", req.Products, "number of products")
	f.IntVar(&req.MaxFollows, "max-follows", req.MaxFollows, "maximum follows per user")
	f.IntVar(&req.MaxPurchases, "max-purchases", req.MaxPurchases, "maximum purchases per user")
	return cmd
}
