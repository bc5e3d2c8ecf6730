package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newResetCommand(root *rootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every user, product, follow and purchase from both databases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes && !root.dryRun {
				return fmt.Errorf("reset deletes all benchmark data, pass --yes to confirm")
			}
			ctx := cmd.Context()
			sess, err := openSession(ctx, root, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer sess.Close(ctx)

			if err := sess.reset(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Both databases are empty"))
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}
