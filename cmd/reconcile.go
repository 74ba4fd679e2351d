package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
	"invoicepay/internal/allocation"
	"invoicepay/internal/invoice"
	"invoicepay/internal/ledger"
	"invoicepay/internal/logger"
	"invoicepay/internal/reconciliation"
	"invoicepay/internal/review"
	"invoicepay/pkg/services"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Allocate channel receipts to an invoice export",
	Long: `Allocate mobile-money receipts from the channel ledger sheets to the
invoices of an accounting-system CSV export and write the payment ledger.

Required environment variables:
  SPREADSHEET_ID or GOOGLE_SHEET_URL - Spreadsheet holding the channel ledgers
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string, OR
  GOOGLE_SERVICE_ACCOUNT_EMAIL and GOOGLE_PRIVATE_KEY

Optional:
  OPENAI_API_KEY - Enables --suggest`,
	Example: `  # Reconcile January receipts from every channel
  invoicepay reconcile --invoices invoices.csv --start 2026-01-01 --end 2026-01-31

  # Only the lipa channel, customer names upper-cased, ledger also appended to a sheet
  invoicepay reconcile --invoices invoices.csv --start 2026-01-01 --end 2026-01-31 \
    --channel lipa --uppercase --write-sheet PAYMENTS_2026_01

  # Preview the summary and ask for suggestions on unused receipts
  invoicepay reconcile --invoices invoices.csv --start 2026-01-01 --end 2026-01-31 --suggest --dry-run`,
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().String("invoices", "", "Invoice export CSV (required)")
	addWindowFlags(reconcileCmd)
	reconcileCmd.Flags().StringP("output", "o", "processed_payments.csv", "Ledger CSV to write, - for stdout")
	reconcileCmd.Flags().Bool("uppercase", false, "Upper-case customer names in the ledger")
	reconcileCmd.Flags().String("write-sheet", "", "Also append the ledger to this sheet of the spreadsheet")
	reconcileCmd.Flags().Bool("suggest", false, "Ask OpenAI which open invoice each unused receipt may belong to")
	reconcileCmd.Flags().Bool("dry-run", false, "Allocate and print the summary without writing the ledger")
	_ = reconcileCmd.MarkFlagRequired("invoices")
}

// reconcileJob is one reconciliation run with its collaborators. A nil
// output, sink or advisor skips that step.
type reconcileJob struct {
	invoices  io.Reader
	window    reconciliation.Window
	source    services.TransactionSource
	engine    *allocation.Engine
	ledger    ledger.Options
	output    io.Writer
	sink      services.LedgerSink
	sheetName string
	advisor   services.Advisor
	report    io.Writer
}

type reconcileOutcome struct {
	result      *allocation.Result
	summary     ledger.Summary
	suggestions []review.Suggestion
}

func runReconcile(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("reconcile")

	invoicesPath, _ := cmd.Flags().GetString("invoices")
	outputPath, _ := cmd.Flags().GetString("output")
	uppercase, _ := cmd.Flags().GetBool("uppercase")
	sheetName, _ := cmd.Flags().GetString("write-sheet")
	suggest, _ := cmd.Flags().GetBool("suggest")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	window, err := windowFromFlags(cmd)
	if err != nil {
		return err
	}
	if !window.Bounded() {
		log.Warn().Msg("No --start/--end given, every receipt in the ledgers will be allocated")
	}

	invoicesFile, err := os.Open(invoicesPath)
	if err != nil {
		return fmt.Errorf("failed to open invoices: %w", err)
	}
	defer invoicesFile.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	svc, reader, err := openLedgers(ctx)
	if err != nil {
		return err
	}

	engineLog := logger.WithComponent("allocation-engine")
	opts := cfg.AllocationOptions()
	opts.Logger = &engineLog

	job := reconcileJob{
		invoices: invoicesFile,
		window:   window,
		source:   reader,
		engine:   allocation.NewEngine(opts),
		ledger:   ledger.Options{UppercaseCustomer: uppercase},
		report:   cmd.ErrOrStderr(),
	}

	if !dryRun {
		if outputPath == "-" {
			job.output = cmd.OutOrStdout()
		} else {
			out, err := os.Create(outputPath)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer out.Close()
			job.output = out
		}
		if sheetName != "" {
			job.sink = svc
			job.sheetName = sheetName
		}
	}

	if suggest {
		if cfg.OpenAIAPIKey == "" {
			log.Warn().Msg("OPENAI_API_KEY is not set, skipping suggestions")
		} else {
			job.advisor = review.NewAdvisor(openai.NewClient(cfg.OpenAIAPIKey), cfg.OpenAIModel)
		}
	}

	log.Info().
		Str("invoices", invoicesPath).
		Time("start", window.Start).
		Time("end", window.End).
		Str("channel", window.Channel).
		Bool("dry_run", dryRun).
		Msg("Starting reconciliation")

	if _, err := job.run(ctx); err != nil {
		return err
	}

	if job.output != nil && outputPath != "-" {
		log.Info().Str("file", outputPath).Msg("Ledger written")
	}
	return nil
}

func (j reconcileJob) run(ctx context.Context) (*reconcileOutcome, error) {
	const op = "reconcile"
	log := logger.WithComponent("reconcile")

	parsed, err := invoice.NewImporter().ParseCSV(j.invoices)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read invoices: %w", op, err)
	}

	txns, err := j.source.Transactions(ctx, j.window)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read transactions: %w", op, err)
	}

	result, err := j.engine.Allocate(parsed.Invoices, txns)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	outcome := &reconcileOutcome{
		result:  result,
		summary: ledger.Summarize(result.Payments),
	}

	if j.output != nil {
		if err := ledger.WriteCSV(j.output, result.Payments, j.ledger); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	if j.sink != nil {
		if err := j.sink.AppendRows(ctx, j.sheetName, ledger.Headers, ledger.Values(result.Payments, j.ledger)); err != nil {
			return nil, fmt.Errorf("%s: failed to write ledger sheet: %w", op, err)
		}
	}

	if j.advisor != nil && outcome.summary.UnusedLines > 0 {
		outcome.suggestions, err = j.advisor.Review(ctx, result.Payments, txns)
		if err != nil {
			log.Warn().Err(err).Msg("Review of unused receipts stopped early")
		}
	}

	if j.report != nil {
		printSummary(j.report, len(parsed.Invoices), len(txns), outcome)
	}
	return outcome, nil
}

func printSummary(w io.Writer, invoices, txns int, o *reconcileOutcome) {
	s := o.summary
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Invoices\t%d\t(%d fully paid, %d partial, %d unpaid)\n", invoices, s.FullyPaid, s.Partial, s.Unpaid)
	fmt.Fprintf(tw, "Receipts\t%d\t(%d excluded, %d duplicates, %d unmatched)\n",
		txns, o.result.Excluded, o.result.Duplicates, o.result.Ungrouped)
	fmt.Fprintf(tw, "Allocated\t%s\t\n", ledger.FormatAmount(s.Allocated))
	fmt.Fprintf(tw, "Overpayment\t%s\t\n", ledger.FormatAmount(s.Overpayment))
	fmt.Fprintf(tw, "Unused\t%s\t(%d lines)\n", ledger.FormatAmount(s.Unused), s.UnusedLines)
	fmt.Fprintf(tw, "Outstanding\t%s\t\n", ledger.FormatAmount(s.OutstandingDue))
	tw.Flush()

	if len(o.suggestions) == 0 {
		return
	}
	fmt.Fprintln(w, "\nSuggestions for unused receipts:")
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RECEIPT\tSENDER\tAMOUNT\tINVOICE\tCUSTOMER\tCONFIDENCE\tREASON")
	for _, sg := range o.suggestions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%.0f%%\t%s\n",
			sg.TransactionRef, sg.Sender, ledger.FormatAmount(sg.Amount),
			sg.InvoiceNo, sg.CustomerName, sg.Confidence*100, sg.Reason)
	}
	tw.Flush()
}
