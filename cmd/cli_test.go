package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"invoicer/internal/config"
	"invoicer/pkg/models"
)

// run executes the command tree with a file store in dir and decodes the
// JSON output into out.
func run(t *testing.T, dir string, out interface{}, args ...string) {
	t.Helper()
	outputPath := filepath.Join(dir, "out.json")
	_ = os.Remove(outputPath)

	rootCmd.SetArgs(append(args, "--output", outputPath))
	require.NoError(t, rootCmd.Execute(), "invoicer %v", args)

	if out == nil {
		return
	}
	raw, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func TestCommands_InvoiceAndPaymentFlow(t *testing.T) {
	dir := t.TempDir()
	appConfig = &config.Config{StoreDriver: "file", DataDir: filepath.Join(dir, "data")}
	t.Cleanup(func() { appConfig = nil })

	var client models.Client
	run(t, dir, &client, "client", "add", "--name", "Jane Citizen", "--business", "Acme Pty Ltd", "--prefix", "acme")
	assert.Equal(t, "ACME", client.Prefix)

	var inv models.Invoice
	run(t, dir, &inv, "invoice", "create", "--client", client.ID, "--line", "Consulting:3:100", "--issue-date", "2024-06-10")
	assert.Equal(t, "ACME-0001", inv.Number)
	assert.Equal(t, 300.0, inv.Subtotal)
	assert.Equal(t, 330.0, inv.Total)
	assert.Equal(t, models.InvoiceUnpaid, inv.Status)

	var paid PaymentOutput
	run(t, dir, &paid, "payment", "record", inv.ID, "--amount", "100", "--date", "2024-06-12")
	assert.Equal(t, 100.0, paid.Payment.Amount)
	assert.Equal(t, models.InvoicePartial, paid.Invoice.Status)
	assert.Equal(t, 230.0, paid.Invoice.BalanceDue)

	rootCmd.SetArgs([]string{"payment", "record", inv.ID, "--amount", "231", "--output", filepath.Join(dir, "out.json")})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "amount exceeds outstanding balance")

	var details InvoiceDetails
	run(t, dir, &details, "invoice", "show", inv.ID)
	assert.Equal(t, 230.0, details.Invoice.BalanceDue)
	assert.Len(t, details.Payments, 1)

	var report OutstandingReport
	run(t, dir, &report, "report", "outstanding")
	assert.Equal(t, 230.0, report.Outstanding)
	require.Len(t, report.Invoices, 1)
}

func TestCommands_SettingsImportAndBackupFile(t *testing.T) {
	dir := t.TempDir()
	appConfig = &config.Config{StoreDriver: "file", DataDir: filepath.Join(dir, "data")}
	t.Cleanup(func() { appConfig = nil })

	settingsFile := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(settingsFile, []byte("businessName: Example Trading\ngstRate: 0.15\npaymentTermsDays: 30\n"), 0644))

	var settings models.Settings
	run(t, dir, &settings, "settings", "import", settingsFile)
	assert.Equal(t, "Example Trading", settings.BusinessName)
	assert.Equal(t, 0.15, settings.GSTRate)
	assert.Equal(t, 30, settings.PaymentTermsDays)
	assert.Equal(t, "INV", settings.InvoicePrefix)

	backupFile := filepath.Join(dir, "backup.json")
	run(t, dir, nil, "backup", "export", "--file", backupFile)
	body, err := os.ReadFile(backupFile)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"schemaVersion": 2`)

	var restored map[string]interface{}
	run(t, dir, &restored, "backup", "restore", backupFile)
	assert.Equal(t, true, restored["restored"])
}
