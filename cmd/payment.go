package cmd

import (
	"github.com/spf13/cobra"
	"invoicer/internal/ledger"
	"invoicer/internal/logger"
	"invoicer/pkg/models"
)

var paymentCmd = &cobra.Command{
	Use:   "payment",
	Short: "Record and list payments",
}

var paymentRecordCmd = &cobra.Command{
	Use:   "record [invoice-id]",
	Short: "Record a payment against an invoice",
	Long: `Record a payment against an invoice. The amount must be positive and no
larger than the invoice's outstanding balance; the invoice status and
balance due are updated from the payment ledger.`,
	Example: `  invoicer payment record <invoice-id> --amount 100 --date 2024-06-12`,
	Args:    cobra.ExactArgs(1),
	RunE:    runPaymentRecord,
}

var paymentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the payment ledger",
	RunE:  runPaymentList,
}

// PaymentOutput is the output of payment record
type PaymentOutput struct {
	Payment *models.Payment `json:"payment"`
	Invoice *models.Invoice `json:"invoice"`
}

func init() {
	rootCmd.AddCommand(paymentCmd)
	paymentCmd.AddCommand(paymentRecordCmd, paymentListCmd)

	paymentRecordCmd.Flags().Float64("amount", 0, "Amount received")
	paymentRecordCmd.Flags().String("date", "", "Payment date, YYYY-MM-DD (default: today)")
	paymentRecordCmd.Flags().String("notes", "", "Reference or remarks")
	paymentRecordCmd.MarkFlagRequired("amount")

	paymentListCmd.Flags().String("invoice", "", "Only payments for this invoice")
}

func runPaymentRecord(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("payment")
	outputPath, timeoutSecs := commandOptions(cmd)

	in := ledger.PaymentInput{InvoiceID: args[0]}
	in.Amount, _ = cmd.Flags().GetFloat64("amount")
	in.Notes, _ = cmd.Flags().GetString("notes")
	date, err := parseDateFlag(cmd, "date")
	if err != nil {
		return err
	}
	in.Date = date

	ctx, cancel := createCommandContext(timeoutSecs, log)
	defer cancel()

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	payment, err := l.RecordPayment(ctx, in)
	if err != nil {
		return handleLedgerError(err, log)
	}
	inv, err := l.GetInvoice(ctx, payment.InvoiceID)
	if err != nil {
		return handleLedgerError(err, log)
	}
	return outputJSON(PaymentOutput{Payment: payment, Invoice: inv}, outputPath, log)
}

func runPaymentList(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("payment")
	outputPath, timeoutSecs := commandOptions(cmd)
	invoiceID, _ := cmd.Flags().GetString("invoice")

	ctx, cancel := createCommandContext(timeoutSecs, log)
	defer cancel()

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	if invoiceID != "" {
		payments, err := l.ListPaymentsByInvoice(ctx, invoiceID)
		if err != nil {
			return handleLedgerError(err, log)
		}
		return outputJSON(payments, outputPath, log)
	}

	payments, err := l.ListPayments(ctx)
	if err != nil {
		return handleLedgerError(err, log)
	}
	return outputJSON(payments, outputPath, log)
}
