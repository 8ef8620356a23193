package reconciliation

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"invoicer/internal/logger"
	"invoicer/pkg/services"
)

const minPaymentColumns = 3

// DataReader reads payment rows from a sheet-like source
type DataReader struct {
	source services.PaymentSource
	log    zerolog.Logger
}

// NewDataReader creates a new data reader over source
func NewDataReader(source services.PaymentSource) *DataReader {
	return &DataReader{
		source: source,
		log:    logger.WithComponent("reconciliation-reader"),
	}
}

// ReadPayments reads the payment worksheet. Expected columns:
// A=Date, B=Invoice number, C=Amount, D=Reference, E=Notes.
// Rows that cannot be parsed are logged and skipped.
func (dr *DataReader) ReadPayments(ctx context.Context) ([]PaymentRow, error) {
	const op = "ReadPayments"

	dr.log.Info().Msg("Reading payment rows")

	values, err := dr.source.ReadPaymentRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read payment sheet: %w", op, err)
	}

	if len(values) == 0 {
		return nil, fmt.Errorf("%s: payment sheet is empty", op)
	}

	var payments []PaymentRow
	for i, row := range values[1:] {
		rowNum := i + 2 // header row plus 1-based numbering

		if isBlank(row) {
			continue
		}
		if len(row) < minPaymentColumns {
			dr.log.Warn().
				Int("row", rowNum).
				Int("columns", len(row)).
				Msg("Skipping payment row with insufficient columns")
			continue
		}

		payment, err := parsePaymentRow(row, rowNum)
		if err != nil {
			dr.log.Warn().
				Err(err).
				Int("row", rowNum).
				Msg("Failed to parse payment row, skipping")
			continue
		}

		payments = append(payments, payment)
	}

	dr.log.Info().
		Int("total_rows", len(values)-1).
		Int("parsed_payments", len(payments)).
		Msg("Payment rows read successfully")

	return payments, nil
}

func parsePaymentRow(row []interface{}, rowNum int) (PaymentRow, error) {
	const op = "parsePaymentRow"

	dateStr := getString(row, 0)
	date, err := parseDate(dateStr)
	if err != nil {
		return PaymentRow{}, fmt.Errorf("%s: invalid date '%s' in row %d: %w", op, dateStr, rowNum, err)
	}

	number := getString(row, 1)
	if number == "" {
		return PaymentRow{}, fmt.Errorf("%s: missing invoice number in row %d", op, rowNum)
	}

	amountStr := getString(row, 2)
	amount, err := parseAmount(amountStr)
	if err != nil {
		return PaymentRow{}, fmt.Errorf("%s: invalid amount '%s' in row %d: %w", op, amountStr, rowNum, err)
	}

	return PaymentRow{
		Row:           rowNum,
		Date:          date,
		InvoiceNumber: number,
		Amount:        amount,
		Reference:     getString(row, 3),
		Notes:         getString(row, 4),
	}, nil
}

var dateFormats = []string{
	"2006-01-02", // ISO, what the invoice sheet writes
	"02/01/2006", // DD/MM/YYYY
	"2/1/2006",   // D/M/YYYY
	"02.01.2006", // DD.MM.YYYY
	"2.1.2006",   // D.M.YYYY
	"02/01/06",   // DD/MM/YY
	time.RFC3339,
}

// parseDate accepts ISO and day-first dates. Results are UTC midnight.
func parseDate(dateStr string) (time.Time, error) {
	cleaned := strings.TrimSpace(dateStr)
	if cleaned == "" {
		return time.Time{}, fmt.Errorf("empty date string")
	}

	for _, format := range dateFormats {
		if date, err := time.Parse(format, cleaned); err == nil {
			y, m, d := date.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse date: %s", dateStr)
}

// parseAmount reads amounts written either way round: "1,234.56" and
// "1.234,56" are both 1234.56. A lone comma followed by one or two digits
// is a decimal separator.
func parseAmount(amountStr string) (float64, error) {
	cleaned := strings.TrimSpace(amountStr)
	if cleaned == "" {
		return 0, fmt.Errorf("empty amount")
	}

	isNegative := strings.HasPrefix(cleaned, "-") ||
		(strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")"))
	cleaned = strings.Trim(cleaned, "-()")

	for _, symbol := range []string{" ", "\u00a0", "$", "€", "£", "AUD", "NZD", "USD", "EUR"} {
		cleaned = strings.ReplaceAll(cleaned, symbol, "")
	}

	lastDot := strings.LastIndex(cleaned, ".")
	lastComma := strings.LastIndex(cleaned, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case lastComma >= 0:
		parts := strings.Split(cleaned, ",")
		if len(parts) == 2 && len(parts[1]) <= 2 {
			cleaned = parts[0] + "." + parts[1]
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	}

	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("unable to parse amount: %s (cleaned: %s)", amountStr, cleaned)
	}

	if isNegative {
		amount = -amount
	}

	return amount, nil
}

// getString safely extracts a string value from a row slice
func getString(row []interface{}, index int) string {
	if index >= len(row) || row[index] == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprintf("%v", row[index]))
}

func isBlank(row []interface{}) bool {
	for i := range row {
		if getString(row, i) != "" {
			return false
		}
	}
	return true
}
