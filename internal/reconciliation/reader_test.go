package reconciliation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	rows [][]interface{}
	err  error
}

func (f *fakeSource) ReadPaymentRows(context.Context) ([][]interface{}, error) {
	return f.rows, f.err
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"100", 100},
		{"230.00", 230},
		{"$1,234.56", 1234.56},
		{"1.234,56", 1234.56},
		{"1234,5", 1234.5},
		{"1,234", 1234},
		{"AUD 99.95", 99.95},
		{"€ 12,00", 12},
		{"-5.00", -5},
		{"(42.10)", -42.10},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseAmount(tt.in)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 0.0001)
		})
	}

	for _, bad := range []string{"", "abc", "12.3.4x"} {
		_, err := parseAmount(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"2024-06-10", "10/06/2024", "10/6/2024", "10.06.2024", "10.6.2024", "10/06/24"} {
		got, err := parseDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := parseDate("June 10th")
	assert.Error(t, err)
	_, err = parseDate("")
	assert.Error(t, err)
}

func TestReadPayments(t *testing.T) {
	source := &fakeSource{rows: [][]interface{}{
		{"Date", "Invoice number", "Amount", "Reference", "Notes"},
		{"2024-06-12", "INV-0001", "100.00", "TX1", "first instalment"},
		{"", "", ""},
		{"2024-06-13", "INV-0002"},
		{"not a date", "INV-0003", "10"},
		{"14/06/2024", "", "10"},
		{"14/06/2024", "INV-0004", "ten"},
		{"15/06/2024", " INV-0005 ", "$1,000"},
	}}

	rows, err := NewDataReader(source).ReadPayments(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, PaymentRow{
		Row:           2,
		Date:          time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC),
		InvoiceNumber: "INV-0001",
		Amount:        100,
		Reference:     "TX1",
		Notes:         "first instalment",
	}, rows[0])
	assert.Equal(t, 8, rows[1].Row)
	assert.Equal(t, "INV-0005", rows[1].InvoiceNumber)
	assert.Equal(t, 1000.0, rows[1].Amount)
}

func TestReadPayments_SourceErrors(t *testing.T) {
	_, err := NewDataReader(&fakeSource{}).ReadPayments(context.Background())
	assert.ErrorContains(t, err, "payment sheet is empty")

	boom := errors.New("quota exceeded")
	_, err = NewDataReader(&fakeSource{err: boom}).ReadPayments(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestImportKey(t *testing.T) {
	row := PaymentRow{Date: time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC), InvoiceNumber: "INV-0001", Amount: 100}
	assert.Equal(t, "2024-06-12|INV-0001|100.00", row.ImportKey())

	row.Reference = "TX[1]"
	assert.Equal(t, "TX[1", row.ImportKey())
}
