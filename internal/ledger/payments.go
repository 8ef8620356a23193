package ledger

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"invoicer/internal/money"
	"invoicer/pkg/models"
)

// PaymentInput is the payload for recording a payment. A zero Date means
// today.
type PaymentInput struct {
	InvoiceID string    `json:"invoiceId"`
	Amount    float64   `json:"amount"`
	Date      time.Time `json:"date"`
	Notes     string    `json:"notes,omitempty"`
}

// RecordPayment appends a payment to the ledger and updates the invoice's
// projection. The amount must be positive and no more than what is still
// outstanding; outstanding is measured against the larger of the ledger sum
// and the invoice's cached amountPaid, so a payment cannot be counted twice
// after an invoice was marked paid by hand.
func (l *Ledger) RecordPayment(ctx context.Context, in PaymentInput) (*models.Payment, error) {
	const op = "ledger.RecordPayment"

	l.mu.Lock()
	defer l.mu.Unlock()

	invoices, err := l.loadInvoices(ctx)
	if err != nil {
		return nil, err
	}
	i, ok := findInvoice(invoices, in.InvoiceID)
	if !ok {
		return nil, notFound("invoice", in.InvoiceID)
	}
	inv := &invoices[i]

	if math.IsNaN(in.Amount) || math.IsInf(in.Amount, 0) {
		return nil, NewValidationError("amount", in.Amount, "amount must be greater than zero")
	}
	amountC := money.ToCents(in.Amount)
	if amountC <= 0 {
		l.log.Warn().Str("invoice_id", inv.ID).Float64("amount", in.Amount).Msg("Payment rejected")
		return nil, NewValidationError("amount", in.Amount, "amount must be greater than zero")
	}

	payments, err := l.loadPayments(ctx)
	if err != nil {
		return nil, err
	}
	collectedC := collectedCents(inv, payments)
	outstandingC := money.ToCents(inv.Total) - collectedC
	if amountC > outstandingC {
		l.log.Warn().
			Str("invoice_id", inv.ID).
			Float64("amount", in.Amount).
			Float64("outstanding", money.FromCents(max(outstandingC, 0))).
			Msg("Payment rejected")
		return nil, NewValidationError("amount", in.Amount, "amount exceeds outstanding balance")
	}

	now := l.Now()
	date := in.Date
	if date.IsZero() {
		date = now
	}
	p := models.Payment{
		ID:            l.newID(),
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.Number,
		ClientID:      inv.ClientID,
		ClientName:    inv.ClientName,
		Amount:        money.FromCents(amountC),
		RecordedAt:    now,
		PaymentDate:   date,
		Notes:         strings.TrimSpace(in.Notes),
	}

	previous := payments
	if err := l.savePayments(ctx, op, append(payments[:len(payments):len(payments)], p)); err != nil {
		return nil, err
	}

	applyProjection(inv, money.FromCents(collectedC+amountC), date)
	inv.UpdatedAt = now
	if err := l.saveInvoices(ctx, op, invoices); err != nil {
		// Keep ledger and projection consistent: the payment did not happen.
		if rbErr := l.savePayments(ctx, op, previous); rbErr != nil {
			return nil, errors.Join(err, rbErr)
		}
		return nil, err
	}

	l.log.Info().
		Str("payment_id", p.ID).
		Str("invoice_id", inv.ID).
		Float64("amount", p.Amount).
		Float64("balance_due", inv.BalanceDue).
		Str("status", string(inv.Status)).
		Msg("Payment recorded")
	return &p, nil
}

// ListPayments returns the whole payment ledger in recording order.
func (l *Ledger) ListPayments(ctx context.Context) ([]models.Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadPayments(ctx)
}

// ListPaymentsByInvoice returns the payments recorded against one invoice.
func (l *Ledger) ListPaymentsByInvoice(ctx context.Context, invoiceID string) ([]models.Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	payments, err := l.loadPayments(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Payment, 0)
	for _, p := range payments {
		if p.InvoiceID == invoiceID {
			out = append(out, p)
		}
	}
	return out, nil
}

// ledgerCents sums the payments recorded against invoiceID.
func ledgerCents(payments []models.Payment, invoiceID string) int64 {
	var sum int64
	for _, p := range payments {
		if p.InvoiceID == invoiceID {
			sum += money.ToCents(p.Amount)
		}
	}
	return sum
}

// collectedCents is what the invoice has received: the ledger sum, or the
// cached amountPaid when that is larger (mark-paid, imported data).
func collectedCents(inv *models.Invoice, payments []models.Payment) int64 {
	return max(ledgerCents(payments, inv.ID), money.ToCents(inv.AmountPaid))
}
