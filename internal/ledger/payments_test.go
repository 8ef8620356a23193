package ledger

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"invoicer/internal/money"
	"invoicer/internal/store"
	"invoicer/pkg/models"
)

func invoice330(t *testing.T, l *Ledger) *models.Invoice {
	t.Helper()
	c := mustClient(t, l, "Acme")
	inv, err := l.CreateInvoice(context.Background(), InvoiceInput{DocumentInput: DocumentInput{
		ClientID:  c.ID,
		IssueDate: "2024-06-01",
		LineItems: []LineItemInput{line("Consulting", 2, 150, true)},
	}})
	require.NoError(t, err)
	require.Equal(t, 330.0, inv.Total)
	return inv
}

func TestRecordPayment_PartialThenPaid(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	inv := invoice330(t, l)

	p, err := l.RecordPayment(ctx, PaymentInput{InvoiceID: inv.ID, Amount: 100, Notes: " deposit "})
	require.NoError(t, err)
	assert.Equal(t, 100.0, p.Amount)
	assert.Equal(t, inv.Number, p.InvoiceNumber)
	assert.Equal(t, "Acme", p.ClientName)
	assert.Equal(t, "deposit", p.Notes)
	assert.Equal(t, testNow, p.PaymentDate)

	got, err := l.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoicePartial, got.Status)
	assert.Equal(t, 100.0, got.AmountPaid)
	assert.Equal(t, 230.0, got.BalanceDue)
	assert.Nil(t, got.PaidAt)

	// One cent over what is left is still too much.
	_, err = l.RecordPayment(ctx, PaymentInput{InvoiceID: inv.ID, Amount: 231})
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "exceeds outstanding balance")

	paidOn := time.Date(2024, 6, 20, 0, 0, 0, 0, time.UTC)
	_, err = l.RecordPayment(ctx, PaymentInput{InvoiceID: inv.ID, Amount: 230, Date: paidOn})
	require.NoError(t, err)

	got, err = l.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoicePaid, got.Status)
	assert.Equal(t, 330.0, got.AmountPaid)
	assert.Equal(t, 0.0, got.BalanceDue)
	require.NotNil(t, got.PaidAt)
	assert.Equal(t, paidOn, *got.PaidAt)

	payments, err := l.ListPaymentsByInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 2)
}

func TestRecordPayment_Rejections(t *testing.T) {
	l, mem, _ := newTestLedger(t)
	ctx := context.Background()
	inv := invoice330(t, l)

	_, err := l.RecordPayment(ctx, PaymentInput{InvoiceID: "missing", Amount: 10})
	assert.ErrorIs(t, err, ErrNotFound)

	for _, amount := range []float64{0, -5, 0.004} {
		_, err = l.RecordPayment(ctx, PaymentInput{InvoiceID: inv.ID, Amount: amount})
		require.ErrorIs(t, err, ErrValidation, "amount %v", amount)
		assert.Contains(t, err.Error(), "amount must be greater than zero")
	}

	_, err = l.RecordPayment(ctx, PaymentInput{InvoiceID: inv.ID, Amount: 330.01})
	assert.ErrorIs(t, err, ErrValidation)

	raw, err := mem.Load(ctx, store.KeyPayments)
	require.NoError(t, err)
	assert.Nil(t, raw)

	got, err := l.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceUnpaid, got.Status)
	assert.Equal(t, 0.0, got.AmountPaid)
}

func TestRecordPayment_AfterMarkPaidIsRejected(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	inv := invoice330(t, l)

	_, err := l.RecordPayment(ctx, PaymentInput{InvoiceID: inv.ID, Amount: 100})
	require.NoError(t, err)
	_, err = l.MarkInvoicePaid(ctx, inv.ID, time.Time{})
	require.NoError(t, err)

	_, err = l.RecordPayment(ctx, PaymentInput{InvoiceID: inv.ID, Amount: 1})
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "exceeds outstanding balance")
}

func TestRecordPayment_OutOfBandLedgerEntries(t *testing.T) {
	l, mem, _ := newTestLedger(t)
	ctx := context.Background()
	inv := invoice330(t, l)

	// A payment that reached the ledger without updating the invoice.
	require.NoError(t, store.SaveCollection(ctx, mem, store.KeyPayments, []models.Payment{
		{ID: "ext", InvoiceID: inv.ID, Amount: 300},
	}))

	_, err := l.RecordPayment(ctx, PaymentInput{InvoiceID: inv.ID, Amount: 100})
	require.ErrorIs(t, err, ErrValidation)

	_, err = l.RecordPayment(ctx, PaymentInput{InvoiceID: inv.ID, Amount: 30})
	require.NoError(t, err)

	got, err := l.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoicePaid, got.Status)
	assert.Equal(t, 330.0, got.AmountPaid)
}

// Balance never grows, never goes negative, and the payment that clears it
// marks the invoice paid.
func TestRecordPayment_BalanceMonotonicity(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 25; run++ {
		l, _, _ := newTestLedger(t)
		ctx := context.Background()
		c := mustClient(t, l, "Acme")

		qty := float64(rng.Intn(5) + 1)
		unit := float64(rng.Intn(50000)) / 100
		inv, err := l.CreateInvoice(ctx, InvoiceInput{DocumentInput: DocumentInput{
			ClientID:  c.ID,
			LineItems: []LineItemInput{line("Work", qty, unit+0.01, rng.Intn(2) == 0)},
		}})
		require.NoError(t, err)

		balance := inv.BalanceDue
		for step := 0; step < 50 && balance > 0; step++ {
			remaining := money.ToCents(balance)
			amount := money.FromCents(rng.Int63n(remaining) + 1)
			if rng.Intn(4) == 0 {
				amount = money.FromCents(remaining + rng.Int63n(500) + 1)
			}

			before, err := l.GetInvoice(ctx, inv.ID)
			require.NoError(t, err)

			_, err = l.RecordPayment(ctx, PaymentInput{InvoiceID: inv.ID, Amount: amount})
			got, gerr := l.GetInvoice(ctx, inv.ID)
			require.NoError(t, gerr)

			if err != nil {
				require.True(t, errors.Is(err, ErrValidation))
				assert.Equal(t, before.AmountPaid, got.AmountPaid, "rejected payment leaves amountPaid")
				assert.Equal(t, before.Status, got.Status, "rejected payment leaves status")
				continue
			}

			assert.LessOrEqual(t, got.BalanceDue, balance)
			assert.GreaterOrEqual(t, got.BalanceDue, 0.0)
			assert.Equal(t, money.ToCents(got.Total), money.ToCents(got.AmountPaid)+money.ToCents(got.BalanceDue))
			if got.BalanceDue == 0 {
				assert.Equal(t, models.InvoicePaid, got.Status)
				assert.NotNil(t, got.PaidAt)
			} else {
				assert.Equal(t, models.InvoicePartial, got.Status)
			}
			balance = got.BalanceDue
		}
	}
}

type failingStore struct {
	store.Store
	failKey store.Key
}

func (f *failingStore) Save(ctx context.Context, key store.Key, data []byte) error {
	if key == f.failKey {
		return errors.New("disk full")
	}
	return f.Store.Save(ctx, key, data)
}

func TestRecordPayment_RollsBackLedgerWhenInvoiceSaveFails(t *testing.T) {
	mem := store.NewMemory()
	fs := &failingStore{Store: mem}
	l := New(fs, WithClock(func() time.Time { return testNow }))
	ctx := context.Background()
	inv := invoice330(t, l)

	_, err := l.RecordPayment(ctx, PaymentInput{InvoiceID: inv.ID, Amount: 50})
	require.NoError(t, err)

	fs.failKey = store.KeyInvoices
	_, err = l.RecordPayment(ctx, PaymentInput{InvoiceID: inv.ID, Amount: 25})
	require.Error(t, err)

	fs.failKey = ""
	payments, err := l.ListPaymentsByInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)

	got, err := l.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, 50.0, got.AmountPaid)
}
