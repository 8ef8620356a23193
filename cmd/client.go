package cmd

import (
	"github.com/spf13/cobra"
	"invoicer/internal/ledger"
	"invoicer/internal/logger"
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Manage clients",
}

var clientAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a client",
	Example: `  invoicer client add --name "Jane Citizen" --business "Acme Pty Ltd" --prefix ACME
  invoicer client add --name "Bob" --email bob@example.com`,
	RunE: runClientAdd,
}

var clientListCmd = &cobra.Command{
	Use:   "list",
	Short: "List clients",
	RunE:  runClientList,
}

var clientShowCmd = &cobra.Command{
	Use:   "show [client-id]",
	Short: "Show one client",
	Args:  cobra.ExactArgs(1),
	RunE:  runClientShow,
}

var clientUpdateCmd = &cobra.Command{
	Use:   "update [client-id]",
	Short: "Change client details; only the given flags are applied",
	Args:  cobra.ExactArgs(1),
	RunE:  runClientUpdate,
}

var clientDeleteCmd = &cobra.Command{
	Use:   "delete [client-id]",
	Short: "Delete a client. Existing documents keep their copy of the name",
	Args:  cobra.ExactArgs(1),
	RunE:  runClientDelete,
}

func init() {
	rootCmd.AddCommand(clientCmd)
	clientCmd.AddCommand(clientAddCmd, clientListCmd, clientShowCmd, clientUpdateCmd, clientDeleteCmd)

	for _, c := range []*cobra.Command{clientAddCmd, clientUpdateCmd} {
		c.Flags().String("name", "", "Contact name")
		c.Flags().String("business", "", "Business name")
		c.Flags().String("address", "", "Postal address")
		c.Flags().String("abn", "", "Australian Business Number")
		c.Flags().String("contact", "", "Phone or other contact")
		c.Flags().String("prefix", "", "Document number prefix for this client")
		c.Flags().String("email", "", "Billing email address")
	}
	clientAddCmd.MarkFlagRequired("name")
}

func runClientAdd(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("client")
	outputPath, timeoutSecs := commandOptions(cmd)

	var in ledger.ClientInput
	in.Name, _ = cmd.Flags().GetString("name")
	in.BusinessName, _ = cmd.Flags().GetString("business")
	in.Address, _ = cmd.Flags().GetString("address")
	in.ABN, _ = cmd.Flags().GetString("abn")
	in.Contact, _ = cmd.Flags().GetString("contact")
	in.Prefix, _ = cmd.Flags().GetString("prefix")
	in.Email, _ = cmd.Flags().GetString("email")

	ctx, cancel := createCommandContext(timeoutSecs, log)
	defer cancel()

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	client, err := l.CreateClient(ctx, in)
	if err != nil {
		return handleLedgerError(err, log)
	}
	return outputJSON(client, outputPath, log)
}

func runClientList(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("client")
	outputPath, timeoutSecs := commandOptions(cmd)

	ctx, cancel := createCommandContext(timeoutSecs, log)
	defer cancel()

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	clients, err := l.ListClients(ctx)
	if err != nil {
		return handleLedgerError(err, log)
	}
	return outputJSON(clients, outputPath, log)
}

func runClientShow(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("client")
	outputPath, timeoutSecs := commandOptions(cmd)

	ctx, cancel := createCommandContext(timeoutSecs, log)
	defer cancel()

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	client, err := l.GetClient(ctx, args[0])
	if err != nil {
		return handleLedgerError(err, log)
	}
	return outputJSON(client, outputPath, log)
}

func runClientUpdate(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("client")
	outputPath, timeoutSecs := commandOptions(cmd)

	patch := ledger.ClientPatch{
		Name:         stringFlagPtr(cmd, "name"),
		BusinessName: stringFlagPtr(cmd, "business"),
		Address:      stringFlagPtr(cmd, "address"),
		ABN:          stringFlagPtr(cmd, "abn"),
		Contact:      stringFlagPtr(cmd, "contact"),
		Prefix:       stringFlagPtr(cmd, "prefix"),
		Email:        stringFlagPtr(cmd, "email"),
	}

	ctx, cancel := createCommandContext(timeoutSecs, log)
	defer cancel()

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	client, err := l.UpdateClient(ctx, args[0], patch)
	if err != nil {
		return handleLedgerError(err, log)
	}
	return outputJSON(client, outputPath, log)
}

func runClientDelete(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("client")
	outputPath, timeoutSecs := commandOptions(cmd)

	ctx, cancel := createCommandContext(timeoutSecs, log)
	defer cancel()

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := l.DeleteClient(ctx, args[0]); err != nil {
		return handleLedgerError(err, log)
	}
	return outputJSON(map[string]string{"deleted": args[0]}, outputPath, log)
}
