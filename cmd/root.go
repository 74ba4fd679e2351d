package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"invoicepay/internal/config"
	"invoicepay/internal/logger"
	"invoicepay/internal/reconciliation"
	"invoicepay/internal/sheets"
)

var version = "1.0.0"

// cfg is loaded before any subcommand runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "invoicepay",
	Short: "Allocate mobile-money receipts to customer invoices",
	Long: `invoicepay reconciles customer invoices exported from the accounting system
against mobile-money receipts recorded in the channel ledger sheets.

Receipts are matched to customers by phone, contract name or customer name
and consumed oldest first against the newest open invoice. The result is a
payment ledger ready for import, with unmatched money listed as UNUSED.

Settings come from the environment (a .env file is loaded when present) and
an optional invoicepay.yaml in the working directory or $HOME/.invoicepay.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")

		var err error
		if path != "" {
			cfg, err = config.LoadFile(path)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return err
		}

		if err := logger.Setup(cfg.GetLoggerConfig()); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		rootLog := logger.WithComponent("root")
		rootLog.Debug().
			Str("version", version).
			Str("command", cmd.Name()).
			Msg("Configuration loaded")
		return nil
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a config file (default: ./invoicepay.yaml)")
}

// openLedgers connects to the configured spreadsheet and returns a reader
// over its channel sheets.
func openLedgers(ctx context.Context) (*sheets.Service, *reconciliation.DataReader, error) {
	if err := cfg.RequireSpreadsheet(); err != nil {
		return nil, nil, err
	}

	svc, err := sheets.NewSheetsService(ctx, cfg.Spreadsheet, cfg.SheetsCredentials())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize Google Sheets service: %w", err)
	}

	return svc, reconciliation.NewDataReader(svc, cfg.Channels()...), nil
}

// addWindowFlags registers the receipt selection flags shared by commands.
func addWindowFlags(cmd *cobra.Command) {
	cmd.Flags().String("start", "", "First day of receipts (format: YYYY-MM-DD)")
	cmd.Flags().String("end", "", "Last day of receipts (format: YYYY-MM-DD)")
	cmd.Flags().String("start-time", "", "Time of day the window opens on the first day (format: HH:MM)")
	cmd.Flags().String("end-time", "", "Time of day the window closes on the last day (format: HH:MM)")
	cmd.Flags().String("channel", reconciliation.AllChannels, "Channel to read (boda, iphone, lipa or all)")
}

func windowFromFlags(cmd *cobra.Command) (reconciliation.Window, error) {
	start, _ := cmd.Flags().GetString("start")
	end, _ := cmd.Flags().GetString("end")
	startTime, _ := cmd.Flags().GetString("start-time")
	endTime, _ := cmd.Flags().GetString("end-time")
	channel, _ := cmd.Flags().GetString("channel")

	return reconciliation.NewWindow(start, end, startTime, endTime, channel)
}
