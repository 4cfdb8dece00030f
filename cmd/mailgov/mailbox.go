package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newGovernedCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "governed",
		Short: "List the governed mailboxes known to the control plane",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				governed, err := a.inventory.GovernedMailboxes(ctx)
				if err != nil {
					return err
				}
				a.metrics.SetGovernedMailboxes(len(governed))
				return printJSON(cmd.OutOrStdout(), governed)
			})
		},
	}
}

func newRemoveCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <address>",
		Short: "Remove a governed mailbox (mailboxes without the governance marker are refused)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.provisioner.RemoveGoverned(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
				return nil
			})
		},
	}
}
