package main

import (
	"context"
	"fmt"

	"github.com/ayo6706/wallet-ledger/internal/app"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <account-id>",
		Short: "Overwrite one account's balance with the rail's figure",
		Long: `Fetch the rail-reported balance for one account and, when it differs,
record a reconciliation adjustment so the local balance matches.
A no-op in sandbox rail mode.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid account id %q: %w", args[0], err)
			}
			return withComponents(cmd, func(ctx context.Context, c *app.Components) error {
				res, err := c.Services.Reconciler.Reconcile(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}
}

func reconcileAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile-all",
		Short: "Reconcile every account against the rail",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, c *app.Components) error {
				summary, err := c.Services.Reconciler.ReconcileAll(ctx)
				if err != nil {
					return err
				}
				if err := printJSON(cmd, summary); err != nil {
					return err
				}
				if summary.Failed > 0 {
					return fmt.Errorf("%d of %d accounts failed to reconcile", summary.Failed, summary.Checked)
				}
				return nil
			})
		},
	}
}

func integrityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "integrity",
		Short: "Compare every balance with its transaction history",
		Long: `Check that each balance equals completed credits minus all debits.
Exits non-zero when any account drifts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(ctx context.Context, c *app.Components) error {
				drifts, err := c.Services.Integrity.Run(ctx)
				if err != nil {
					return err
				}
				if len(drifts) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "ledger balanced")
					return nil
				}
				if err := printJSON(cmd, drifts); err != nil {
					return err
				}
				return fmt.Errorf("%d accounts out of balance", len(drifts))
			})
		},
	}
}
