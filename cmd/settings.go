package cmd

import (
	"github.com/spf13/cobra"
	"invoicer/internal/ledger"
	"invoicer/internal/logger"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show and change the business profile",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current settings",
	RunE:  runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:     "set",
	Short:   "Change settings; only the given flags are applied",
	Example: `  invoicer settings set --gst-rate 0.1 --payment-terms 30 --invoice-prefix INV`,
	RunE:    runSettingsSet,
}

var settingsImportCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Apply settings from a YAML file",
	Long: `Apply settings from a YAML file. Keys match the JSON field names, for example:

  businessName: Example Trading
  abn: "51 824 753 556"
  contactEmail: accounts@example.com
  gstRate: 0.1
  paymentTermsDays: 14
  quoteValidityDays: 30

Keys that are absent are left unchanged.`,
	Args: cobra.ExactArgs(1),
	RunE: runSettingsImport,
}

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd, settingsImportCmd)

	f := settingsSetCmd.Flags()
	f.String("business-name", "", "Business name")
	f.String("abn", "", "Australian Business Number")
	f.String("contact-name", "", "Contact name")
	f.String("contact-email", "", "Contact email")
	f.String("contact-phone", "", "Contact phone")
	f.String("address", "", "Business address")
	f.String("invoice-prefix", "", "Default invoice number prefix")
	f.String("quote-prefix", "", "Default quote number prefix")
	f.Float64("gst-rate", 0, "GST rate between 0 and 1")
	f.Int("payment-terms", 0, "Default invoice payment terms in days")
	f.Int("quote-validity", 0, "Default quote validity in days")
}

func runSettingsShow(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("settings")
	outputPath, timeoutSecs := commandOptions(cmd)

	ctx, cancel := createCommandContext(timeoutSecs, log)
	defer cancel()

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	settings, err := l.GetSettings(ctx)
	if err != nil {
		return handleLedgerError(err, log)
	}
	return outputJSON(settings, outputPath, log)
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	patch := ledger.SettingsPatch{
		BusinessName:      stringFlagPtr(cmd, "business-name"),
		ABN:               stringFlagPtr(cmd, "abn"),
		ContactName:       stringFlagPtr(cmd, "contact-name"),
		ContactEmail:      stringFlagPtr(cmd, "contact-email"),
		ContactPhone:      stringFlagPtr(cmd, "contact-phone"),
		Address:           stringFlagPtr(cmd, "address"),
		InvoicePrefix:     stringFlagPtr(cmd, "invoice-prefix"),
		QuotePrefix:       stringFlagPtr(cmd, "quote-prefix"),
		GSTRate:           floatFlagPtr(cmd, "gst-rate"),
		PaymentTermsDays:  intFlagPtr(cmd, "payment-terms"),
		QuoteValidityDays: intFlagPtr(cmd, "quote-validity"),
	}
	return applySettings(cmd, patch)
}

func runSettingsImport(cmd *cobra.Command, args []string) error {
	var patch ledger.SettingsPatch
	if err := readInputFile(args[0], &patch); err != nil {
		return err
	}
	return applySettings(cmd, patch)
}

func applySettings(cmd *cobra.Command, patch ledger.SettingsPatch) error {
	log := logger.WithComponent("settings")
	outputPath, timeoutSecs := commandOptions(cmd)

	ctx, cancel := createCommandContext(timeoutSecs, log)
	defer cancel()

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	settings, err := l.UpdateSettings(ctx, patch)
	if err != nil {
		return handleLedgerError(err, log)
	}
	return outputJSON(settings, outputPath, log)
}
