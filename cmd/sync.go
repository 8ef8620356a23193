package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"invoicer/internal/logger"
	"invoicer/internal/sheets"
	"invoicer/pkg/services"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Publish ledger data to outside systems",
}

var syncSheetsCmd = &cobra.Command{
	Use:   "sheets",
	Short: "Write every invoice to a Google Sheets worksheet",
	Long: `Write every invoice (number, dates, client, amounts, status) to a worksheet.
The worksheet's data rows are replaced on each run; the header row is added
the first time.

Required environment variables:
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string
  GOOGLE_SHEET_URL - Google Sheets URL
Optional:
  GOOGLE_SHEET_WORKSHEET - Worksheet name (default: Invoices)`,
	RunE: runSyncSheets,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.AddCommand(syncSheetsCmd)

	syncSheetsCmd.Flags().String("sheet-url", "", "Google Sheets URL (default: GOOGLE_SHEET_URL)")
	syncSheetsCmd.Flags().String("worksheet", "", "Worksheet name (default: GOOGLE_SHEET_WORKSHEET)")
}

func runSyncSheets(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("sync")
	outputPath, timeoutSecs := commandOptions(cmd)

	ctx, cancel := createCommandContext(timeoutSecs, log)
	defer cancel()

	opts := sheetsOptions(cmd)
	if v, _ := cmd.Flags().GetString("worksheet"); v != "" {
		opts.InvoiceSheet = v
	}
	exporter, err := createSheetsService(ctx, opts, log)
	if err != nil {
		return err
	}

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	rows, err := l.ExportProjections(ctx)
	if err != nil {
		return handleLedgerError(err, log)
	}

	var out services.InvoiceExporter = exporter
	if err := out.ExportInvoices(ctx, rows); err != nil {
		return handleSheetsError(err, log)
	}

	return outputJSON(map[string]int{"invoicesExported": len(rows)}, outputPath, log)
}

// sheetsOptions reads the spreadsheet settings from config and --sheet-url
func sheetsOptions(cmd *cobra.Command) sheets.Options {
	var opts sheets.Options
	if appConfig != nil {
		opts.SheetURL = appConfig.GoogleSheetURL
		opts.InvoiceSheet = appConfig.GoogleSheetWorksheet
		opts.PaymentSheet = appConfig.GoogleSheetPaymentsWorksheet
	}
	if v, _ := cmd.Flags().GetString("sheet-url"); v != "" {
		opts.SheetURL = v
	}
	return opts
}

// createSheetsService builds the Sheets client
func createSheetsService(ctx context.Context, opts sheets.Options, log zerolog.Logger) (*sheets.Service, error) {
	if opts.SheetURL == "" {
		return nil, fmt.Errorf("GOOGLE_SHEET_URL environment variable is required")
	}

	service, err := sheets.NewSheetsService(ctx, opts)
	if err != nil {
		return nil, handleSheetsError(err, log)
	}
	log.Info().Msg("Google Sheets service initialized successfully")
	return service, nil
}

// handleSheetsError provides user-friendly error messages for Google Sheets failures
func handleSheetsError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Google Sheets operation failed")

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "GOOGLE_APPLICATION_CREDENTIALS"):
		return fmt.Errorf("Google credentials not configured. Please set one of:\n" +
			"  GOOGLE_APPLICATION_CREDENTIALS=/path/to/service-account-key.json\n" +
			"  GOOGLE_CREDENTIALS='<json-credentials>'")
	case strings.Contains(errStr, "invalid Google Sheets URL"):
		return fmt.Errorf("GOOGLE_SHEET_URL is not a Google Sheets URL")
	case strings.Contains(errStr, "PERMISSION_DENIED") || strings.Contains(errStr, "403"):
		return fmt.Errorf("permission denied. Share the spreadsheet with the service account's email address")
	case strings.Contains(errStr, "Unable to parse range"):
		return fmt.Errorf("worksheet not found in the spreadsheet: %w", err)
	default:
		return fmt.Errorf("Google Sheets operation failed: %w", err)
	}
}
