package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"invoicepay/internal/ledger"
	"invoicepay/internal/logger"
	"invoicepay/internal/server"
)

var transactionsCmd = &cobra.Command{
	Use:   "transactions",
	Short: "List receipts from the channel ledger sheets",
	Example: `  # Every receipt of one day on the boda channel
  invoicepay transactions --start 2026-01-22 --end 2026-01-22 --channel boda

  # As JSON
  invoicepay transactions --start 2026-01-01 --end 2026-01-31 --json`,
	RunE: runTransactions,
}

func init() {
	rootCmd.AddCommand(transactionsCmd)

	addWindowFlags(transactionsCmd)
	transactionsCmd.Flags().Bool("json", false, "Print the receipts as JSON")
}

func runTransactions(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("transactions")
	asJSON, _ := cmd.Flags().GetBool("json")

	window, err := windowFromFlags(cmd)
	if err != nil {
		return err
	}

	_, reader, err := openLedgers(cmd.Context())
	if err != nil {
		return err
	}

	txns, err := reader.Transactions(cmd.Context(), window)
	if err != nil {
		return fmt.Errorf("failed to read transactions: %w", err)
	}
	log.Info().Int("transactions", len(txns)).Msg("Transactions read")

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(server.NewTransactionDTOs(txns))
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CHANNEL\tRECEIVED\tREF\tSENDER\tPHONE\tAMOUNT")
	for _, t := range txns {
		amount := "-"
		if t.Amount.Valid {
			amount = ledger.FormatAmount(t.Amount.Decimal)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.Channel, t.ReceivedRaw, t.Ref(), t.DisplayName(), t.CustomerPhone, amount)
	}
	return tw.Flush()
}
