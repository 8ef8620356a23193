package sheets

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"invoicer/pkg/models"
)

func TestExtractSpreadsheetID(t *testing.T) {
	id, err := extractSpreadsheetID("https://docs.google.com/spreadsheets/d/1AbC-d_9/edit#gid=0")
	require.NoError(t, err)
	assert.Equal(t, "1AbC-d_9", id)

	_, err = extractSpreadsheetID("https://example.com/not-a-sheet")
	assert.Error(t, err)
}

func TestProjectionValues(t *testing.T) {
	rows := []models.InvoiceProjection{
		{
			Number:     "INV-0001",
			IssueDate:  time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC),
			DueDate:    time.Date(2024, 6, 24, 0, 0, 0, 0, time.UTC),
			ClientName: "Acme",
			Subtotal:   300,
			GSTTotal:   30,
			Total:      330,
			AmountPaid: 100,
			BalanceDue: 230,
			Status:     models.InvoicePartial,
		},
		{Number: "INV-0002", Status: models.InvoiceUnpaid},
	}

	values := ProjectionValues(rows)
	require.Len(t, values, 2)
	assert.Len(t, values[0], len(InvoiceHeaders))
	assert.Equal(t, []interface{}{
		"INV-0001", "2024-06-10", "2024-06-24", "Acme",
		300.0, 30.0, 330.0, 100.0, 230.0, "partial",
	}, values[0])
	assert.Equal(t, "", values[1][1], "zero dates are left blank")
}

func TestColumnLetter(t *testing.T) {
	tests := map[int]string{1: "A", 5: "E", 10: "J", 26: "Z", 27: "AA", 52: "AZ", 703: "AAA"}
	for n, want := range tests {
		assert.Equal(t, want, columnLetter(n), "column %d", n)
	}
}
