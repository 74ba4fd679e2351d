package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"invoicepay/internal/logger"
	"invoicepay/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Invoice Payment API",
	Long: `Serve the HTTP API used by the browser client: transaction listing and
filtering, invoice CSV upload, payment processing and ledger export.`,
	Example: `  invoicepay serve
  invoicepay serve --port 8080`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (default: PORT or 5000)")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	port, _ := cmd.Flags().GetInt("port")
	if port == 0 {
		port = cfg.Port
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, reader, err := openLedgers(ctx)
	if err != nil {
		return err
	}

	srv := server.New(reader, server.Options{Allocation: cfg.AllocationOptions()})

	log.Info().
		Int("port", port).
		Int("channels", len(reader.Channels())).
		Msg("Starting Invoice Payment API")

	return srv.ListenAndServe(ctx, fmt.Sprintf(":%d", port))
}
