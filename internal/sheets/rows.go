package sheets

import (
	"fmt"
	"regexp"
	"time"

	"invoicer/pkg/models"
)

const (
	DefaultInvoiceSheet = "Invoices"
	DefaultPaymentSheet = "Payments"

	sheetDateFormat = "2006-01-02"
)

// InvoiceHeaders is the header row of the invoice worksheet
var InvoiceHeaders = []string{
	"Number", "Issue date", "Due date", "Client", "Subtotal",
	"GST", "Total", "Paid", "Balance due", "Status",
}

// PaymentHeaders is the header row the payment worksheet is expected to carry
var PaymentHeaders = []string{
	"Date", "Invoice number", "Amount", "Reference", "Notes",
}

var spreadsheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)

// extractSpreadsheetID extracts the spreadsheet ID from a Google Sheets URL
func extractSpreadsheetID(url string) (string, error) {
	matches := spreadsheetIDPattern.FindStringSubmatch(url)
	if len(matches) < 2 {
		return "", fmt.Errorf("invalid Google Sheets URL format")
	}
	return matches[1], nil
}

// ProjectionValues converts projections to sheet rows in InvoiceHeaders order
func ProjectionValues(rows []models.InvoiceProjection) [][]interface{} {
	values := make([][]interface{}, 0, len(rows))
	for _, p := range rows {
		values = append(values, []interface{}{
			p.Number,               // A: Number
			sheetDate(p.IssueDate), // B: Issue date
			sheetDate(p.DueDate),   // C: Due date
			p.ClientName,           // D: Client
			p.Subtotal,             // E: Subtotal
			p.GSTTotal,             // F: GST
			p.Total,                // G: Total
			p.AmountPaid,           // H: Paid
			p.BalanceDue,           // I: Balance due
			string(p.Status),       // J: Status
		})
	}
	return values
}

func sheetDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(sheetDateFormat)
}

// columnLetter returns the A1 column name of the n-th column, 1-based
func columnLetter(n int) string {
	var out []byte
	for n > 0 {
		n--
		out = append([]byte{byte('A' + n%26)}, out...)
		n /= 26
	}
	return string(out)
}
