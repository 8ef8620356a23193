package cmd

import (
	"github.com/spf13/cobra"
	"invoicer/internal/ledger"
	"invoicer/internal/logger"
	"invoicer/pkg/models"
)

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Create quotes and convert them into invoices",
}

var quoteCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a pending quote",
	Example: `  invoicer quote create --client <id> --line "Website design:1:2500" --valid-until 2024-07-31
  invoicer quote create --file quote.yaml`,
	RunE: runQuoteCreate,
}

var quoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List quotes",
	RunE:  runQuoteList,
}

var quoteShowCmd = &cobra.Command{
	Use:   "show [quote-id]",
	Short: "Show one quote",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuoteShow,
}

var quoteUpdateCmd = &cobra.Command{
	Use:   "update [quote-id]",
	Short: "Change a quote that has not been converted",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuoteUpdate,
}

var quoteStatusCmd = &cobra.Command{
	Use:       "status [quote-id] [pending|accepted|declined]",
	Short:     "Record the client's answer to a quote",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"pending", "accepted", "declined"},
	RunE:      runQuoteStatus,
}

var quoteConvertCmd = &cobra.Command{
	Use:   "convert [quote-id]",
	Short: "Turn a pending or accepted quote into an invoice",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuoteConvert,
}

var quoteDeleteCmd = &cobra.Command{
	Use:   "delete [quote-id]",
	Short: "Delete a quote",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuoteDelete,
}

// ConversionOutput is the output of quote convert
type ConversionOutput struct {
	Invoice *models.Invoice `json:"invoice"`
	Quote   *models.Quote   `json:"quote"`
}

func init() {
	rootCmd.AddCommand(quoteCmd)
	quoteCmd.AddCommand(quoteCreateCmd, quoteListCmd, quoteShowCmd, quoteUpdateCmd, quoteStatusCmd, quoteConvertCmd, quoteDeleteCmd)

	for _, c := range []*cobra.Command{quoteCreateCmd, quoteUpdateCmd} {
		c.Flags().String("client", "", "Client ID")
		c.Flags().String("number", "", "Quote number (default: next in sequence)")
		c.Flags().String("issue-date", "", "Issue date, YYYY-MM-DD (default: today)")
		c.Flags().String("valid-until", "", "Last day the quote can be accepted, YYYY-MM-DD")
		c.Flags().String("notes", "", "Notes printed on the quote")
		addLineFlags(c)
	}
	quoteCreateCmd.Flags().String("file", "", "Read the quote from a YAML or JSON file; flags override it")

	quoteListCmd.Flags().String("status", "", "Only quotes with this status")

	quoteConvertCmd.Flags().String("issue-date", "", "Invoice issue date, YYYY-MM-DD (default: today)")
	quoteConvertCmd.Flags().String("due-date", "", "Invoice due date, YYYY-MM-DD (default: issue date + payment terms)")
}

func runQuoteCreate(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("quote")
	outputPath, timeoutSecs := commandOptions(cmd)

	var in ledger.DocumentInput
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
	if v := stringFlagPtr(cmd, "valid-until"); v != nil {
		in.DueDate = *v
	}
	if v := stringFlagPtr(cmd, "notes"); v != nil {
		in.Notes = *v
	}
	items, ok, err := lineItemsFromFlags(cmd)
	if err != nil {
		return err
	}
	if ok {
		in.LineItems = items
	}

	ctx, cancel := createCommandContext(timeoutSecs, log)
	defer cancel()

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	q, err := l.CreateQuote(ctx, in)
	if err != nil {
		return handleLedgerError(err, log)
	}
	return outputJSON(q, outputPath, log)
}

func runQuoteList(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("quote")
	outputPath, timeoutSecs := commandOptions(cmd)
	status, _ := cmd.Flags().GetString("status")

	ctx, cancel := createCommandContext(timeoutSecs, log)
	defer cancel()

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	quotes, err := l.ListQuotes(ctx, models.QuoteStatus(status))
	if err != nil {
		return handleLedgerError(err, log)
	}
	return outputJSON(quotes, outputPath, log)
}

func runQuoteShow(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("quote")
	outputPath, timeoutSecs := commandOptions(cmd)

	ctx, cancel := createCommandContext(timeoutSecs, log)
	defer cancel()

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	q, err := l.GetQuote(ctx, args[0])
	if err != nil {
		return handleLedgerError(err, log)
	}
	return outputJSON(q, outputPath, log)
}

func runQuoteUpdate(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("quote")
	outputPath, timeoutSecs := commandOptions(cmd)

	patch := ledger.QuotePatch{
		ClientID:  stringFlagPtr(cmd, "client"),
		Number:    stringFlagPtr(cmd, "number"),
		IssueDate: stringFlagPtr(cmd, "issue-date"),
		DueDate:   stringFlagPtr(cmd, "valid-until"),
		Notes:     stringFlagPtr(cmd, "notes"),
	}
	items, ok, err := lineItemsFromFlags(cmd)
	if err != nil {
		return err
	}
	if ok {
		if items == nil {
			items = []ledger.LineItemInput{}
		}
		patch.LineItems = items
	}

	ctx, cancel := createCommandContext(timeoutSecs, log)
	defer cancel()

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	q, err := l.UpdateQuote(ctx, args[0], patch)
	if err != nil {
		return handleLedgerError(err, log)
	}
	return outputJSON(q, outputPath, log)
}

func runQuoteStatus(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("quote")
	outputPath, timeoutSecs := commandOptions(cmd)

	ctx, cancel := createCommandContext(timeoutSecs, log)
	defer cancel()

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	q, err := l.SetQuoteStatus(ctx, args[0], models.QuoteStatus(args[1]))
	if err != nil {
		return handleLedgerError(err, log)
	}
	return outputJSON(q, outputPath, log)
}

func runQuoteConvert(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("quote")
	outputPath, timeoutSecs := commandOptions(cmd)

	var opts ledger.ConvertOptions
	opts.IssueDate, _ = cmd.Flags().GetString("issue-date")
	opts.DueDate, _ = cmd.Flags().GetString("due-date")

	ctx, cancel := createCommandContext(timeoutSecs, log)
	defer cancel()

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	inv, q, err := l.ConvertQuote(ctx, args[0], opts)
	if err != nil {
		return handleLedgerError(err, log)
	}

	log.Info().
		Str("quote_id", q.ID).
		Str("invoice_number", inv.Number).
		Msg("Quote converted")

	return outputJSON(ConversionOutput{Invoice: inv, Quote: q}, outputPath, log)
}

func runQuoteDelete(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("quote")
	outputPath, timeoutSecs := commandOptions(cmd)

	ctx, cancel := createCommandContext(timeoutSecs, log)
	defer cancel()

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := l.DeleteQuote(ctx, args[0]); err != nil {
		return handleLedgerError(err, log)
	}
	return outputJSON(map[string]string{"deleted": args[0]}, outputPath, log)
}
