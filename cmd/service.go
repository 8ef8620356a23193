package cmd

import (
	"github.com/spf13/cobra"
	"invoicer/internal/ledger"
	"invoicer/internal/logger"
)

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage the service catalog line items can be priced from",
}

var serviceAddCmd = &cobra.Command{
	Use:     "add",
	Short:   "Add a catalog service",
	Example: `  invoicer service add --name Consulting --price 150`,
	RunE:    runServiceAdd,
}

var serviceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog services",
	RunE:  runServiceList,
}

var serviceDeleteCmd = &cobra.Command{
	Use:   "delete [service-id]",
	Short: "Delete a catalog service",
	Args:  cobra.ExactArgs(1),
	RunE:  runServiceDelete,
}

func init() {
	rootCmd.AddCommand(serviceCmd)
	serviceCmd.AddCommand(serviceAddCmd, serviceListCmd, serviceDeleteCmd)

	serviceAddCmd.Flags().String("name", "", "Service name")
	serviceAddCmd.Flags().String("description", "", "Default line item description")
	serviceAddCmd.Flags().Float64("price", 0, "Unit price, excluding GST")
	serviceAddCmd.Flags().Bool("no-gst", false, "Do not charge GST on this service")
	serviceAddCmd.MarkFlagRequired("name")
}

func runServiceAdd(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("service")
	outputPath, timeoutSecs := commandOptions(cmd)

	var in ledger.ServiceInput
	in.Name, _ = cmd.Flags().GetString("name")
	in.Description, _ = cmd.Flags().GetString("description")
	in.UnitPrice, _ = cmd.Flags().GetFloat64("price")
	noGST, _ := cmd.Flags().GetBool("no-gst")
	applyGST := !noGST
	in.ApplyGST = &applyGST

	ctx, cancel := createCommandContext(timeoutSecs, log)
	defer cancel()

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	service, err := l.CreateService(ctx, in)
	if err != nil {
		return handleLedgerError(err, log)
	}
	return outputJSON(service, outputPath, log)
}

func runServiceList(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("service")
	outputPath, timeoutSecs := commandOptions(cmd)

	ctx, cancel := createCommandContext(timeoutSecs, log)
	defer cancel()

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	services, err := l.ListServices(ctx)
	if err != nil {
		return handleLedgerError(err, log)
	}
	return outputJSON(services, outputPath, log)
}

func runServiceDelete(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("service")
	outputPath, timeoutSecs := commandOptions(cmd)

	ctx, cancel := createCommandContext(timeoutSecs, log)
	defer cancel()

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := l.DeleteService(ctx, args[0]); err != nil {
		return handleLedgerError(err, log)
	}
	return outputJSON(map[string]string{"deleted": args[0]}, outputPath, log)
}
