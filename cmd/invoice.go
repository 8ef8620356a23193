package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"invoicer/internal/ledger"
	"invoicer/internal/logger"
	"invoicer/pkg/models"
)

var invoiceCmd = &cobra.Command{
	Use:   "invoice",
	Short: "Create and manage invoices",
	Long: `Create and manage invoices. Totals are always recomputed from the line
items: each line's subtotal is quantity x unit price, GST is charged at the
settings rate on lines that apply it, and every amount is rounded to cents.`,
}

var invoiceCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an invoice",
	Example: `  # Three hours of consulting at 100, GST applied
  invoicer invoice create --client <id> --line "Consulting:3:100"

  # Priced from the catalog, due on a given date
  invoicer invoice create --client <id> --service-line <service-id>:2 --due-date 2024-07-01

  # From a YAML or JSON document
  invoicer invoice create --file invoice.yaml`,
	RunE: runInvoiceCreate,
}

var invoiceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List invoices",
	RunE:  runInvoiceList,
}

var invoiceShowCmd = &cobra.Command{
	Use:   "show [invoice-id]",
	Short: "Show an invoice with its payments",
	Args:  cobra.ExactArgs(1),
	RunE:  runInvoiceShow,
}

var invoiceUpdateCmd = &cobra.Command{
	Use:   "update [invoice-id]",
	Short: "Change an invoice; --line/--service-line replace every line item",
	Args:  cobra.ExactArgs(1),
	RunE:  runInvoiceUpdate,
}

var invoiceMarkPaidCmd = &cobra.Command{
	Use:   "mark-paid [invoice-id]",
	Short: "Mark an invoice fully paid without recording a payment",
	Args:  cobra.ExactArgs(1),
	RunE:  runInvoiceMarkPaid,
}

var invoiceDeleteCmd = &cobra.Command{
	Use:   "delete [invoice-id]",
	Short: "Delete an invoice. Its payments stay in the ledger",
	Args:  cobra.ExactArgs(1),
	RunE:  runInvoiceDelete,
}

// InvoiceDetails is the output of invoice show
type InvoiceDetails struct {
	Invoice  *models.Invoice  `json:"invoice"`
	Payments []models.Payment `json:"payments"`
}

func init() {
	rootCmd.AddCommand(invoiceCmd)
	invoiceCmd.AddCommand(invoiceCreateCmd, invoiceListCmd, invoiceShowCmd, invoiceUpdateCmd, invoiceMarkPaidCmd, invoiceDeleteCmd)

	for _, c := range []*cobra.Command{invoiceCreateCmd, invoiceUpdateCmd} {
		c.Flags().String("client", "", "Client ID")
		c.Flags().String("number", "", "Invoice number (default: next in sequence)")
		c.Flags().String("issue-date", "", "Issue date, YYYY-MM-DD (default: today)")
		c.Flags().String("due-date", "", "Due date, YYYY-MM-DD (default: issue date + payment terms)")
		c.Flags().String("notes", "", "Notes printed on the invoice")
		addLineFlags(c)
	}
	invoiceCreateCmd.Flags().String("file", "", "Read the invoice from a YAML or JSON file; flags override it")
	invoiceCreateCmd.Flags().Bool("paid", false, "Create the invoice already paid")
	invoiceCreateCmd.Flags().Float64("amount-paid", 0, "Amount already received")
	invoiceCreateCmd.Flags().String("paid-at", "", "Date the invoice was paid, YYYY-MM-DD")

	invoiceListCmd.Flags().String("client", "", "Only invoices for this client")
	invoiceListCmd.Flags().String("status", "", "Only invoices with this status (unpaid, partial, paid)")

	invoiceMarkPaidCmd.Flags().String("date", "", "Payment date, YYYY-MM-DD (default: today)")
}

func runInvoiceCreate(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("invoice")
	outputPath, timeoutSecs := commandOptions(cmd)

	var in ledger.InvoiceInput
	if path, _ := cmd.Flags().GetString("file"); path != "" {
		if err := readInputFile(path, &in); err != nil {
			return err
		}
	}
	if v := stringFlagPtr(cmd, "client"); v != nil {
		in.ClientID = *v
	}
	if v := stringFlagPtr(cmd, "number"); v != nil {
		in.Number = *v
	}
	if v := stringFlagPtr(cmd, "issue-date"); v != nil {
		in.IssueDate = *v
	}
	if v := stringFlagPtr(cmd, "due-date"); v != nil {
		in.DueDate = *v
	}
	if v := stringFlagPtr(cmd, "notes"); v != nil {
		in.Notes = *v
	}
	if v := stringFlagPtr(cmd, "paid-at"); v != nil {
		in.PaidAt = *v
	}
	if v := floatFlagPtr(cmd, "amount-paid"); v != nil {
		in.AmountPaid = *v
	}
	if cmd.Flags().Changed("paid") {
		in.Paid, _ = cmd.Flags().GetBool("paid")
	}

	items, ok, err := lineItemsFromFlags(cmd)
	if err != nil {
		return err
	}
	if ok {
		in.LineItems = items
	}

	log.Info().
		Str("client_id", in.ClientID).
		Int("line_items", len(in.LineItems)).
		Msg("Creating invoice")

	ctx, cancel := createCommandContext(timeoutSecs, log)
	defer cancel()

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	inv, err := l.CreateInvoice(ctx, in)
	if err != nil {
		return handleLedgerError(err, log)
	}
	return outputJSON(inv, outputPath, log)
}

func runInvoiceList(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("invoice")
	outputPath, timeoutSecs := commandOptions(cmd)

	var filter ledger.InvoiceFilter
	filter.ClientID, _ = cmd.Flags().GetString("client")
	status, _ := cmd.Flags().GetString("status")
	switch s := models.InvoiceStatus(status); s {
	case "", models.InvoiceUnpaid, models.InvoicePartial, models.InvoicePaid:
		filter.Status = s
	default:
		return fmt.Errorf("invalid --status %q: use unpaid, partial or paid", status)
	}

	ctx, cancel := createCommandContext(timeoutSecs, log)
	defer cancel()

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	invoices, err := l.ListInvoices(ctx, filter)
	if err != nil {
		return handleLedgerError(err, log)
	}
	return outputJSON(invoices, outputPath, log)
}

func runInvoiceShow(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("invoice")
	outputPath, timeoutSecs := commandOptions(cmd)

	ctx, cancel := createCommandContext(timeoutSecs, log)
	defer cancel()

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	inv, err := l.GetInvoice(ctx, args[0])
	if err != nil {
		return handleLedgerError(err, log)
	}
	payments, err := l.ListPaymentsByInvoice(ctx, inv.ID)
	if err != nil {
		return handleLedgerError(err, log)
	}
	return outputJSON(InvoiceDetails{Invoice: inv, Payments: payments}, outputPath, log)
}

func runInvoiceUpdate(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("invoice")
	outputPath, timeoutSecs := commandOptions(cmd)

	patch, err := documentPatchFromFlags(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := createCommandContext(timeoutSecs, log)
	defer cancel()

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	inv, err := l.UpdateInvoice(ctx, args[0], patch)
	if err != nil {
		return handleLedgerError(err, log)
	}
	return outputJSON(inv, outputPath, log)
}

func runInvoiceMarkPaid(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("invoice")
	outputPath, timeoutSecs := commandOptions(cmd)

	date, err := parseDateFlag(cmd, "date")
	if err != nil {
		return err
	}

	ctx, cancel := createCommandContext(timeoutSecs, log)
	defer cancel()

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	inv, err := l.MarkInvoicePaid(ctx, args[0], date)
	if err != nil {
		return handleLedgerError(err, log)
	}
	return outputJSON(inv, outputPath, log)
}

func runInvoiceDelete(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("invoice")
	outputPath, timeoutSecs := commandOptions(cmd)

	ctx, cancel := createCommandContext(timeoutSecs, log)
	defer cancel()

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := l.DeleteInvoice(ctx, args[0]); err != nil {
		return handleLedgerError(err, log)
	}
	return outputJSON(map[string]string{"deleted": args[0]}, outputPath, log)
}

// documentPatchFromFlags builds an invoice or quote patch from the flags
// that were set
func documentPatchFromFlags(cmd *cobra.Command) (ledger.InvoicePatch, error) {
	patch := ledger.InvoicePatch{
		ClientID:  stringFlagPtr(cmd, "client"),
		Number:    stringFlagPtr(cmd, "number"),
		IssueDate: stringFlagPtr(cmd, "issue-date"),
		DueDate:   stringFlagPtr(cmd, "due-date"),
		Notes:     stringFlagPtr(cmd, "notes"),
	}
	items, ok, err := lineItemsFromFlags(cmd)
	if err != nil {
		return patch, err
	}
	if ok {
		if items == nil {
			items = []ledger.LineItemInput{}
		}
		patch.LineItems = items
	}
	return patch, nil
}
