package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newIDsCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ids",
		Short: "Print a random product id and user id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			sess, err := openSession(ctx, root, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer sess.Close(ctx)

			ids, err := sess.svc.RandomIDs(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if ids.Message != "" {
				fmt.Fprintln(out, warnStyle.Render(ids.Message))
				return nil
			}
			fmt.Fprintf(out, "product_id %s\nuser_id    %s\n", ids.ProductID, ids.UserID)
			return nil
		},
	}
}
