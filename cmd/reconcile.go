package cmd

import (
	"github.com/spf13/cobra"
	"invoicer/internal/logger"
	"invoicer/internal/reconciliation"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Record payments listed in a Google Sheets worksheet",
	Long: `Read payments from the payment worksheet and record each one against the
invoice with the same number.

Expected columns: A=Date, B=Invoice number, C=Amount, D=Reference, E=Notes.
Rows already imported by an earlier run (same reference, or same date,
invoice number and amount when there is no reference) are skipped, and the
ledger rejects payments larger than an invoice's outstanding balance.

Required environment variables:
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string
  GOOGLE_SHEET_URL - Google Sheets URL
Optional:
  GOOGLE_SHEET_PAYMENTS_WORKSHEET - Worksheet name (default: Payments)`,
	Example: `  # Import payments
  invoicer reconcile

  # Show what would be recorded without writing anything
  invoicer reconcile --dry-run`,
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().Bool("dry-run", false, "Check the rows but record nothing")
	reconcileCmd.Flags().String("sheet-url", "", "Google Sheets URL (default: GOOGLE_SHEET_URL)")
	reconcileCmd.Flags().String("worksheet", "", "Payment worksheet name (default: GOOGLE_SHEET_PAYMENTS_WORKSHEET)")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("reconcile")
	outputPath, timeoutSecs := commandOptions(cmd)
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	log.Info().
		Bool("dry_run", dryRun).
		Msg("Starting payment reconciliation")

	ctx, cancel := createCommandContext(timeoutSecs, log)
	defer cancel()

	opts := sheetsOptions(cmd)
	if v, _ := cmd.Flags().GetString("worksheet"); v != "" {
		opts.PaymentSheet = v
	}
	sheetsService, err := createSheetsService(ctx, opts, log)
	if err != nil {
		return err
	}

	rows, err := reconciliation.NewDataReader(sheetsService).ReadPayments(ctx)
	if err != nil {
		return handleSheetsError(err, log)
	}

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	report, err := reconciliation.NewReconciler(l).Apply(ctx, rows, dryRun)
	if report != nil {
		if outErr := outputJSON(report, outputPath, log); outErr != nil {
			return outErr
		}
	}
	if err != nil {
		return handleLedgerError(err, log)
	}

	log.Info().Msg("Payment reconciliation completed")
	return nil
}
