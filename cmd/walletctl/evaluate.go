package main

import (
	"context"
	"fmt"

	"github.com/ayo6706/wallet-ledger/internal/app"
	"github.com/ayo6706/wallet-ledger/internal/service"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func evaluateCmd() *cobra.Command {
	var (
		accountID    string
		amount       int64
		counterparty string
		description  string
		channel      string
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Dry-run the limit policy for a proposed debit",
		Example: `  walletctl evaluate --account 6f1c... --amount 5000000
  walletctl evaluate --account 6f1c... --amount 20000 --description "bet9ja top up"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(accountID)
			if err != nil {
				return fmt.Errorf("invalid --account %q: %w", accountID, err)
			}
			return withComponents(cmd, func(ctx context.Context, c *app.Components) error {
				decision, err := c.Services.Limits.Check(ctx, service.DebitProposal{
					AccountID:    id,
					Amount:       amount,
					Counterparty: counterparty,
					Description:  description,
					Channel:      channel,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, decision)
			})
		},
	}

	cmd.Flags().StringVarP(&accountID, "account", "a", "", "Account ID (required)")
	cmd.Flags().Int64VarP(&amount, "amount", "n", 0, "Amount in kobo (required)")
	cmd.Flags().StringVar(&counterparty, "counterparty", "", "Counterparty name or account")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Narration checked against blocked keywords")
	cmd.Flags().StringVar(&channel, "channel", "", "Payment channel (transfer, online, contactless)")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}
