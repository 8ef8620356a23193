package ledger

import (
	"context"
	"math"
	"time"

	"invoicer/internal/money"
	"invoicer/pkg/models"
)

// InvoiceInput is the payload for creating an invoice. Paid forces the
// paid status; otherwise the status follows AmountPaid.
type InvoiceInput struct {
	DocumentInput `yaml:",inline"`
	AmountPaid float64 `json:"amountPaid,omitempty" yaml:"amountPaid,omitempty"`
	Paid       bool    `json:"paid,omitempty" yaml:"paid,omitempty"`
	PaidAt     string  `json:"paidAt,omitempty" yaml:"paidAt,omitempty"`
}

// InvoicePatch is a partial invoice update. Nil fields are left alone;
// a non-nil LineItems replaces every line.
type InvoicePatch struct {
	ClientID  *string         `json:"clientId,omitempty"`
	Number    *string         `json:"number,omitempty"`
	IssueDate *string         `json:"issueDate,omitempty"`
	DueDate   *string         `json:"dueDate,omitempty"`
	LineItems []LineItemInput `json:"lineItems,omitempty"`
	Notes     *string         `json:"notes,omitempty"`
}

// InvoiceFilter narrows ListInvoices. Zero fields match everything.
type InvoiceFilter struct {
	ClientID string
	Status   models.InvoiceStatus
}

// CreateInvoice normalizes in strictly, assigns a number and stores the
// invoice.
func (l *Ledger) CreateInvoice(ctx context.Context, in InvoiceInput) (*models.Invoice, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	inv, err := l.createInvoice(ctx, "ledger.CreateInvoice", in, nil)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// createInvoice does the work of CreateInvoice with l.mu held. decorate,
// when set, runs on the invoice before it is numbered and saved.
func (l *Ledger) createInvoice(ctx context.Context, op string, in InvoiceInput, decorate func(*models.Invoice)) (*models.Invoice, error) {
	if math.IsNaN(in.AmountPaid) || math.IsInf(in.AmountPaid, 0) || in.AmountPaid < 0 {
		return nil, NewValidationError("amountPaid", in.AmountPaid, "amount paid cannot be negative")
	}

	doc, err := l.normalizeDocument(ctx, in.DocumentInput, kindInvoice, normalizeOptions{strict: true})
	if err != nil {
		l.log.Warn().Err(err).Str("client_id", in.ClientID).Msg("Invoice rejected")
		return nil, err
	}

	invoices, err := l.loadInvoices(ctx)
	if err != nil {
		return nil, err
	}
	taken := invoiceNumbers(invoices, "")
	if doc.Number != "" && taken[doc.Number] {
		return nil, NewValidationError("number", doc.Number, "invoice number already in use")
	}

	now := l.Now()
	inv := models.Invoice{
		ID:        l.newID(),
		Number:    doc.Number,
		CreatedAt: now,
	}
	applyDocument(&inv, doc)
	inv.UpdatedAt = now

	paidAt, ok := parseDate(in.PaidAt)
	if !ok {
		paidAt = now
	}
	paid := money.Round2(in.AmountPaid)
	if in.Paid {
		paid = inv.Total
	}
	applyProjection(&inv, paid, paidAt)

	if decorate != nil {
		decorate(&inv)
	}

	if inv.Number == "" {
		if inv.Number, err = l.nextNumber(ctx, kindInvoice, doc.Prefix, taken); err != nil {
			return nil, err
		}
	}

	invoices = append(invoices, inv)
	if err := l.saveInvoices(ctx, op, invoices); err != nil {
		return nil, err
	}

	l.log.Info().
		Str("invoice_id", inv.ID).
		Str("number", inv.Number).
		Str("client_id", inv.ClientID).
		Float64("total", inv.Total).
		Str("status", string(inv.Status)).
		Msg("Invoice created")
	return &inv, nil
}

// GetInvoice returns one invoice.
func (l *Ledger) GetInvoice(ctx context.Context, id string) (*models.Invoice, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	invoices, err := l.loadInvoices(ctx)
	if err != nil {
		return nil, err
	}
	i, ok := findInvoice(invoices, id)
	if !ok {
		return nil, notFound("invoice", id)
	}
	inv := invoices[i]
	if inv.ClientName == "" {
		clients, err := l.loadClients(ctx)
		if err != nil {
			return nil, err
		}
		inv.ClientName, inv.ClientBusinessName = resolveClientName(clients, inv.ClientID)
	}
	return &inv, nil
}

// ListInvoices returns invoices matching filter. Invoices without a client
// snapshot show the current client name, or UnknownClientName.
func (l *Ledger) ListInvoices(ctx context.Context, filter InvoiceFilter) ([]models.Invoice, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	invoices, err := l.loadInvoices(ctx)
	if err != nil {
		return nil, err
	}
	clients, err := l.loadClients(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]models.Invoice, 0, len(invoices))
	for _, inv := range invoices {
		if filter.ClientID != "" && inv.ClientID != filter.ClientID {
			continue
		}
		if filter.Status != "" && inv.Status != filter.Status {
			continue
		}
		if inv.ClientName == "" {
			inv.ClientName, inv.ClientBusinessName = resolveClientName(clients, inv.ClientID)
		}
		out = append(out, inv)
	}
	return out, nil
}

// MarkInvoicePaid settles the invoice in full. An invoice that is already
// paid is returned unchanged, keeping its original paidAt.
func (l *Ledger) MarkInvoicePaid(ctx context.Context, id string, date time.Time) (*models.Invoice, error) {
	const op = "ledger.MarkInvoicePaid"

	l.mu.Lock()
	defer l.mu.Unlock()

	invoices, err := l.loadInvoices(ctx)
	if err != nil {
		return nil, err
	}
	i, ok := findInvoice(invoices, id)
	if !ok {
		return nil, notFound("invoice", id)
	}
	inv := &invoices[i]
	if inv.IsPaid() && inv.PaidAt != nil {
		return inv, nil
	}

	if date.IsZero() {
		date = l.Now()
	}
	applyProjection(inv, inv.Total, date)
	inv.UpdatedAt = l.Now()

	if err := l.saveInvoices(ctx, op, invoices); err != nil {
		return nil, err
	}

	l.log.Info().Str("invoice_id", inv.ID).Str("number", inv.Number).Time("paid_at", date).Msg("Invoice marked paid")
	return inv, nil
}

// UpdateInvoice merges patch into the stored invoice and re-normalizes it.
// A changed client must resolve. The payment projection is re-derived
// against the new total.
func (l *Ledger) UpdateInvoice(ctx context.Context, id string, patch InvoicePatch) (*models.Invoice, error) {
	const op = "ledger.UpdateInvoice"

	l.mu.Lock()
	defer l.mu.Unlock()

	invoices, err := l.loadInvoices(ctx)
	if err != nil {
		return nil, err
	}
	i, ok := findInvoice(invoices, id)
	if !ok {
		return nil, notFound("invoice", id)
	}
	current := invoices[i]

	in := DocumentInput{
		ClientID:  current.ClientID,
		Number:    current.Number,
		IssueDate: formatDate(current.IssueDate),
		DueDate:   formatDate(current.DueDate),
		LineItems: lineInputs(current.LineItems),
		Notes:     current.Notes,
	}
	clientChanged := false
	if patch.ClientID != nil && *patch.ClientID != current.ClientID {
		in.ClientID = *patch.ClientID
		clientChanged = true
	}
	if patch.Number != nil {
		in.Number = *patch.Number
	}
	if patch.IssueDate != nil {
		in.IssueDate = *patch.IssueDate
	}
	if patch.DueDate != nil {
		in.DueDate = *patch.DueDate
	}
	if patch.LineItems != nil {
		in.LineItems = patch.LineItems
	}
	if patch.Notes != nil {
		in.Notes = *patch.Notes
	}

	opts := normalizeOptions{strict: clientChanged}
	if !clientChanged {
		opts.existing = &clientSnapshot{Name: current.ClientName, BusinessName: current.ClientBusinessName}
	}
	doc, err := l.normalizeDocument(ctx, in, kindInvoice, opts)
	if err != nil {
		l.log.Warn().Err(err).Str("invoice_id", id).Msg("Invoice update rejected")
		return nil, err
	}

	taken := invoiceNumbers(invoices, id)
	if doc.Number == "" {
		doc.Number = current.Number
	}
	if taken[doc.Number] {
		return nil, NewValidationError("number", doc.Number, "invoice number already in use")
	}

	updated := current
	updated.Number = doc.Number
	applyDocument(&updated, doc)

	paidAt := l.Now()
	if current.PaidAt != nil {
		paidAt = *current.PaidAt
	}
	applyProjection(&updated, current.AmountPaid, paidAt)
	updated.UpdatedAt = l.Now()

	invoices[i] = updated
	if err := l.saveInvoices(ctx, op, invoices); err != nil {
		return nil, err
	}

	l.log.Info().Str("invoice_id", id).Float64("total", updated.Total).Str("status", string(updated.Status)).Msg("Invoice updated")
	return &updated, nil
}

// DeleteInvoice removes an invoice. Its payments stay in the ledger.
func (l *Ledger) DeleteInvoice(ctx context.Context, id string) error {
	const op = "ledger.DeleteInvoice"

	l.mu.Lock()
	defer l.mu.Unlock()

	invoices, err := l.loadInvoices(ctx)
	if err != nil {
		return err
	}
	i, ok := findInvoice(invoices, id)
	if !ok {
		return notFound("invoice", id)
	}
	invoices = append(invoices[:i], invoices[i+1:]...)
	if err := l.saveInvoices(ctx, op, invoices); err != nil {
		return err
	}

	l.log.Info().Str("invoice_id", id).Msg("Invoice deleted")
	return nil
}

// applyDocument copies the canonical fields onto inv (number excluded).
func applyDocument(inv *models.Invoice, doc *canonicalDocument) {
	inv.ClientID = doc.ClientID
	inv.ClientName = doc.ClientName
	inv.ClientBusinessName = doc.ClientBusinessName
	inv.IssueDate = doc.IssueDate
	inv.DueDate = doc.DueDate
	inv.LineItems = doc.LineItems
	inv.Subtotal = doc.Totals.Subtotal
	inv.GSTTotal = doc.Totals.GSTTotal
	inv.Total = doc.Totals.Total
	inv.Notes = doc.Notes
}

// applyProjection derives amountPaid, balanceDue, status and paidAt from
// the amount collected so far. Comparisons are made in cents. paidAt is
// used only when the invoice becomes paid without already having one.
func applyProjection(inv *models.Invoice, paid float64, paidAt time.Time) {
	totalC := money.ToCents(inv.Total)
	paidC := money.ToCents(money.Clamp(paid))
	if paidC > totalC {
		paidC = totalC
	}

	inv.AmountPaid = money.FromCents(paidC)
	inv.BalanceDue = money.FromCents(totalC - paidC)

	switch {
	case paidC >= totalC:
		inv.Status = models.InvoicePaid
		if inv.PaidAt == nil {
			t := paidAt
			inv.PaidAt = &t
		}
	case paidC > 0:
		inv.Status = models.InvoicePartial
		inv.PaidAt = nil
	default:
		inv.Status = models.InvoiceUnpaid
		inv.PaidAt = nil
	}
}

func resolveClientName(clients []models.Client, id string) (name, businessName string) {
	if i, ok := findClient(clients, id); ok {
		return clients[i].Name, clients[i].BusinessName
	}
	return UnknownClientName, ""
}
