package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"invoicer/internal/store"
	"invoicer/pkg/models"
)

func TestCreateQuote(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	c := mustClient(t, l, "Acme")

	q, err := l.CreateQuote(ctx, DocumentInput{
		ClientID:  c.ID,
		LineItems: []LineItemInput{line("Design", 10, 95, true)},
	})
	require.NoError(t, err)
	assert.Equal(t, "QUO-0001", q.Number)
	assert.Equal(t, models.QuotePending, q.Status)
	assert.Equal(t, 1045.0, q.Total)
	assert.Equal(t, testNow.AddDate(0, 0, 30), q.ValidUntil)

	_, err = l.CreateQuote(ctx, DocumentInput{ClientID: "missing", LineItems: []LineItemInput{line("x", 1, 1, false)}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQuoteStatusTransitions(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	c := mustClient(t, l, "Acme")

	q, err := l.CreateQuote(ctx, DocumentInput{ClientID: c.ID, LineItems: []LineItemInput{line("Design", 1, 100, false)}})
	require.NoError(t, err)

	for _, status := range []models.QuoteStatus{models.QuoteAccepted, models.QuoteDeclined, models.QuotePending} {
		q, err = l.SetQuoteStatus(ctx, q.ID, status)
		require.NoError(t, err)
		assert.Equal(t, status, q.Status)
	}

	_, err = l.SetQuoteStatus(ctx, q.ID, models.QuoteConverted)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = l.SetQuoteStatus(ctx, q.ID, "archived")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = l.SetQuoteStatus(ctx, "missing", models.QuoteAccepted)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConvertQuote(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	c := mustClient(t, l, "Acme")

	q, err := l.CreateQuote(ctx, DocumentInput{
		ClientID:  c.ID,
		Notes:     "Phase one",
		LineItems: []LineItemInput{line("Design", 2, 150, true), line("Travel", 1, 42.5, false)},
	})
	require.NoError(t, err)
	_, err = l.SetQuoteStatus(ctx, q.ID, models.QuoteAccepted)
	require.NoError(t, err)

	inv, converted, err := l.ConvertQuote(ctx, q.ID, ConvertOptions{IssueDate: "2024-07-01"})
	require.NoError(t, err)

	assert.Equal(t, "INV-0001", inv.Number)
	assert.Equal(t, q.ID, inv.SourceQuoteID)
	assert.Equal(t, q.Total, inv.Total)
	assert.Equal(t, "Phase one", inv.Notes)
	assert.Equal(t, models.InvoiceUnpaid, inv.Status)
	assert.Equal(t, time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC), inv.DueDate)
	require.Len(t, inv.LineItems, 2)
	assert.NotEqual(t, q.LineItems[0].ID, inv.LineItems[0].ID)

	assert.Equal(t, models.QuoteConverted, converted.Status)
	assert.Equal(t, inv.ID, converted.ConvertedInvoiceID)

	// Converted is terminal.
	_, _, err = l.ConvertQuote(ctx, q.ID, ConvertOptions{})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = l.SetQuoteStatus(ctx, q.ID, models.QuotePending)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	notes := "late edit"
	_, err = l.UpdateQuote(ctx, q.ID, QuotePatch{Notes: &notes})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestConvertQuote_RemovesInvoiceWhenQuoteSaveFails(t *testing.T) {
	fs := &failingStore{Store: store.NewMemory()}
	l := New(fs, WithClock(func() time.Time { return testNow }))
	ctx := context.Background()
	c := mustClient(t, l, "Acme")

	q, err := l.CreateQuote(ctx, DocumentInput{ClientID: c.ID, LineItems: []LineItemInput{line("Design", 1, 100, false)}})
	require.NoError(t, err)

	fs.failKey = store.KeyQuotes
	_, _, err = l.ConvertQuote(ctx, q.ID, ConvertOptions{})
	require.Error(t, err)
	fs.failKey = ""

	invoices, err := l.ListInvoices(ctx, InvoiceFilter{})
	require.NoError(t, err)
	assert.Empty(t, invoices)

	stored, err := l.GetQuote(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QuotePending, stored.Status)

	inv, _, err := l.ConvertQuote(ctx, q.ID, ConvertOptions{})
	require.NoError(t, err)
	invoices, err = l.ListInvoices(ctx, InvoiceFilter{})
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, inv.ID, invoices[0].ID)
	assert.Equal(t, q.ID, invoices[0].SourceQuoteID)
}

func TestConvertQuote_DeclinedIsRefused(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	c := mustClient(t, l, "Acme")

	q, err := l.CreateQuote(ctx, DocumentInput{ClientID: c.ID, LineItems: []LineItemInput{line("Design", 1, 100, false)}})
	require.NoError(t, err)
	_, err = l.SetQuoteStatus(ctx, q.ID, models.QuoteDeclined)
	require.NoError(t, err)

	_, _, err = l.ConvertQuote(ctx, q.ID, ConvertOptions{})
	require.ErrorIs(t, err, ErrInvalidTransition)

	invoices, err := l.ListInvoices(ctx, InvoiceFilter{})
	require.NoError(t, err)
	assert.Empty(t, invoices)
}

func TestUpdateAndDeleteQuote(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	c := mustClient(t, l, "Acme")

	q, err := l.CreateQuote(ctx, DocumentInput{ClientID: c.ID, LineItems: []LineItemInput{line("Design", 1, 100, false)}})
	require.NoError(t, err)

	valid := "2024-12-31"
	updated, err := l.UpdateQuote(ctx, q.ID, QuotePatch{
		DueDate:   &valid,
		LineItems: []LineItemInput{line("Design", 3, 100, false)},
	})
	require.NoError(t, err)
	assert.Equal(t, 300.0, updated.Total)
	assert.Equal(t, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), updated.ValidUntil)
	assert.Equal(t, q.Number, updated.Number)

	list, err := l.ListQuotes(ctx, models.QuotePending)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, l.DeleteQuote(ctx, q.ID))
	_, err = l.GetQuote(ctx, q.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
