package cmd

import (
	"errors"
	"time"

	"github.com/spf13/cobra"
	"invoicer/internal/logger"
	"invoicer/pkg/models"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Receivables reports",
}

var reportOutstandingCmd = &cobra.Command{
	Use:   "outstanding",
	Short: "List invoices with a balance due and the total outstanding",
	RunE:  runReportOutstanding,
}

var reportSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Dashboard totals: invoiced, collected, outstanding, overdue",
	RunE:  runReportSummary,
}

var reportVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Find invoices whose cached paid amount disagrees with the payment ledger",
	RunE:  runReportVerify,
}

var errDrift = errors.New("payment projections drift from the payment ledger")

// OutstandingReport is the output of report outstanding
type OutstandingReport struct {
	Invoices           []models.Invoice `json:"invoices"`
	Outstanding        float64          `json:"outstanding"`
	AveragePaymentDays *float64         `json:"averagePaymentDays,omitempty"`
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportOutstandingCmd, reportSummaryCmd, reportVerifyCmd)

	reportSummaryCmd.Flags().String("date", "", "Report date, YYYY-MM-DD (default: today)")
	reportVerifyCmd.Flags().Bool("fail-on-drift", false, "Exit non-zero when any invoice drifts")
}

func runReportOutstanding(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("report")
	outputPath, timeoutSecs := commandOptions(cmd)

	ctx, cancel := createCommandContext(timeoutSecs, log)
	defer cancel()

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	invoices, err := l.OutstandingInvoices(ctx)
	if err != nil {
		return handleLedgerError(err, log)
	}
	total, err := l.OutstandingBalance(ctx)
	if err != nil {
		return handleLedgerError(err, log)
	}
	report := OutstandingReport{Invoices: invoices, Outstanding: total}

	avg, ok, err := l.AveragePaymentDays(ctx)
	if err != nil {
		return handleLedgerError(err, log)
	}
	if ok {
		report.AveragePaymentDays = &avg
	}

	return outputJSON(report, outputPath, log)
}

func runReportSummary(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("report")
	outputPath, timeoutSecs := commandOptions(cmd)

	date, err := parseDateFlag(cmd, "date")
	if err != nil {
		return err
	}
	if date.IsZero() {
		date = time.Now()
	}

	ctx, cancel := createCommandContext(timeoutSecs, log)
	defer cancel()

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	summary, err := l.DashboardSummary(ctx, date)
	if err != nil {
		return handleLedgerError(err, log)
	}
	return outputJSON(summary, outputPath, log)
}

func runReportVerify(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("report")
	outputPath, timeoutSecs := commandOptions(cmd)
	failOnDrift, _ := cmd.Flags().GetBool("fail-on-drift")

	ctx, cancel := createCommandContext(timeoutSecs, log)
	defer cancel()

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	drift, err := l.VerifyPaymentProjections(ctx)
	if err != nil {
		return handleLedgerError(err, log)
	}
	if err := outputJSON(drift, outputPath, log); err != nil {
		return err
	}

	if len(drift) > 0 {
		log.Warn().Int("invoices", len(drift)).Msg("Payment projections drift from the ledger")
		if failOnDrift {
			return errDrift
		}
	}
	return nil
}
