package ledger

import (
	"context"
	"errors"

	"invoicer/pkg/models"
)

// QuotePatch is a partial quote update. DueDate is the valid-until date.
type QuotePatch = InvoicePatch

// ConvertOptions overrides the dates of the invoice a quote converts into.
// Empty values fall back to today and the default payment terms.
type ConvertOptions struct {
	IssueDate string
	DueDate   string
}

// CreateQuote normalizes in strictly and stores a pending quote. DueDate
// is read as the valid-until date.
func (l *Ledger) CreateQuote(ctx context.Context, in DocumentInput) (*models.Quote, error) {
	const op = "ledger.CreateQuote"

	l.mu.Lock()
	defer l.mu.Unlock()

	doc, err := l.normalizeDocument(ctx, in, kindQuote, normalizeOptions{strict: true})
	if err != nil {
		l.log.Warn().Err(err).Str("client_id", in.ClientID).Msg("Quote rejected")
		return nil, err
	}

	quotes, err := l.loadQuotes(ctx)
	if err != nil {
		return nil, err
	}
	taken := quoteNumbers(quotes, "")
	if doc.Number != "" && taken[doc.Number] {
		return nil, NewValidationError("number", doc.Number, "quote number already in use")
	}

	now := l.Now()
	q := models.Quote{
		ID:        l.newID(),
		Number:    doc.Number,
		Status:    models.QuotePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyQuoteDocument(&q, doc)

	if q.Number == "" {
		if q.Number, err = l.nextNumber(ctx, kindQuote, doc.Prefix, taken); err != nil {
			return nil, err
		}
	}

	quotes = append(quotes, q)
	if err := l.saveQuotes(ctx, op, quotes); err != nil {
		return nil, err
	}

	l.log.Info().Str("quote_id", q.ID).Str("number", q.Number).Float64("total", q.Total).Msg("Quote created")
	return &q, nil
}

// GetQuote returns one quote.
func (l *Ledger) GetQuote(ctx context.Context, id string) (*models.Quote, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	quotes, err := l.loadQuotes(ctx)
	if err != nil {
		return nil, err
	}
	i, ok := findQuote(quotes, id)
	if !ok {
		return nil, notFound("quote", id)
	}
	q := quotes[i]
	if q.ClientName == "" {
		clients, err := l.loadClients(ctx)
		if err != nil {
			return nil, err
		}
		q.ClientName, q.ClientBusinessName = resolveClientName(clients, q.ClientID)
	}
	return &q, nil
}

// ListQuotes returns every quote, optionally only those in status.
func (l *Ledger) ListQuotes(ctx context.Context, status models.QuoteStatus) ([]models.Quote, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	quotes, err := l.loadQuotes(ctx)
	if err != nil {
		return nil, err
	}
	clients, err := l.loadClients(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]models.Quote, 0, len(quotes))
	for _, q := range quotes {
		if status != "" && q.Status != status {
			continue
		}
		if q.ClientName == "" {
			q.ClientName, q.ClientBusinessName = resolveClientName(clients, q.ClientID)
		}
		out = append(out, q)
	}
	return out, nil
}

// UpdateQuote merges patch into a quote that has not been converted.
func (l *Ledger) UpdateQuote(ctx context.Context, id string, patch QuotePatch) (*models.Quote, error) {
	const op = "ledger.UpdateQuote"

	l.mu.Lock()
	defer l.mu.Unlock()

	quotes, err := l.loadQuotes(ctx)
	if err != nil {
		return nil, err
	}
	i, ok := findQuote(quotes, id)
	if !ok {
		return nil, notFound("quote", id)
	}
	current := quotes[i]
	if current.Status == models.QuoteConverted {
		return nil, &TransitionError{Kind: "quote", ID: id, From: string(current.Status), To: "edited"}
	}

	in := DocumentInput{
		ClientID:  current.ClientID,
		Number:    current.Number,
		IssueDate: formatDate(current.IssueDate),
		DueDate:   formatDate(current.ValidUntil),
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
	doc, err := l.normalizeDocument(ctx, in, kindQuote, opts)
	if err != nil {
		return nil, err
	}
	if doc.Number == "" {
		doc.Number = current.Number
	}
	if quoteNumbers(quotes, id)[doc.Number] {
		return nil, NewValidationError("number", doc.Number, "quote number already in use")
	}

	updated := current
	updated.Number = doc.Number
	applyQuoteDocument(&updated, doc)
	updated.UpdatedAt = l.Now()

	quotes[i] = updated
	if err := l.saveQuotes(ctx, op, quotes); err != nil {
		return nil, err
	}
	return &updated, nil
}

// SetQuoteStatus moves a quote between pending, accepted and declined.
// Converted is terminal and only reachable through ConvertQuote.
func (l *Ledger) SetQuoteStatus(ctx context.Context, id string, status models.QuoteStatus) (*models.Quote, error) {
	const op = "ledger.SetQuoteStatus"

	switch status {
	case models.QuotePending, models.QuoteAccepted, models.QuoteDeclined:
	case models.QuoteConverted:
		return nil, NewValidationError("status", status, "use quote conversion to mark a quote converted")
	default:
		return nil, NewValidationError("status", status, "unknown quote status")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	quotes, err := l.loadQuotes(ctx)
	if err != nil {
		return nil, err
	}
	i, ok := findQuote(quotes, id)
	if !ok {
		return nil, notFound("quote", id)
	}
	q := &quotes[i]
	if q.Status == models.QuoteConverted {
		return nil, &TransitionError{Kind: "quote", ID: id, From: string(q.Status), To: string(status)}
	}
	if q.Status == status {
		return q, nil
	}

	from := q.Status
	q.Status = status
	q.UpdatedAt = l.Now()
	if err := l.saveQuotes(ctx, op, quotes); err != nil {
		return nil, err
	}

	l.log.Info().Str("quote_id", id).Str("from", string(from)).Str("to", string(status)).Msg("Quote status changed")
	return q, nil
}

// ConvertQuote turns a pending or accepted quote into a new unpaid invoice
// carrying the same line items, and marks the quote converted.
func (l *Ledger) ConvertQuote(ctx context.Context, id string, opts ConvertOptions) (*models.Invoice, *models.Quote, error) {
	const op = "ledger.ConvertQuote"

	l.mu.Lock()
	defer l.mu.Unlock()

	quotes, err := l.loadQuotes(ctx)
	if err != nil {
		return nil, nil, err
	}
	i, ok := findQuote(quotes, id)
	if !ok {
		return nil, nil, notFound("quote", id)
	}
	q := quotes[i]
	if q.Status != models.QuotePending && q.Status != models.QuoteAccepted {
		return nil, nil, &TransitionError{Kind: "quote", ID: id, From: string(q.Status), To: string(models.QuoteConverted)}
	}

	in := InvoiceInput{DocumentInput: DocumentInput{
		ClientID:  q.ClientID,
		IssueDate: opts.IssueDate,
		DueDate:   opts.DueDate,
		LineItems: copyLines(q.LineItems),
		Notes:     q.Notes,
	}}
	inv, err := l.createInvoice(ctx, op, in, func(inv *models.Invoice) {
		inv.SourceQuoteID = q.ID
	})
	if err != nil {
		return nil, nil, err
	}

	q.Status = models.QuoteConverted
	q.ConvertedInvoiceID = inv.ID
	q.UpdatedAt = l.Now()
	quotes[i] = q
	if err := l.saveQuotes(ctx, op, quotes); err != nil {
		// A quote left open next to its invoice would be billed again on retry.
		if rbErr := l.removeInvoice(ctx, op, inv.ID); rbErr != nil {
			return nil, nil, errors.Join(err, rbErr)
		}
		return nil, nil, err
	}

	l.log.Info().Str("quote_id", q.ID).Str("invoice_id", inv.ID).Str("number", inv.Number).Msg("Quote converted")
	return inv, &q, nil
}

// DeleteQuote removes a quote.
func (l *Ledger) DeleteQuote(ctx context.Context, id string) error {
	const op = "ledger.DeleteQuote"

	l.mu.Lock()
	defer l.mu.Unlock()

	quotes, err := l.loadQuotes(ctx)
	if err != nil {
		return err
	}
	i, ok := findQuote(quotes, id)
	if !ok {
		return notFound("quote", id)
	}
	quotes = append(quotes[:i], quotes[i+1:]...)
	return l.saveQuotes(ctx, op, quotes)
}

func applyQuoteDocument(q *models.Quote, doc *canonicalDocument) {
	q.ClientID = doc.ClientID
	q.ClientName = doc.ClientName
	q.ClientBusinessName = doc.ClientBusinessName
	q.IssueDate = doc.IssueDate
	q.ValidUntil = doc.DueDate
	q.LineItems = doc.LineItems
	q.Subtotal = doc.Totals.Subtotal
	q.GSTTotal = doc.Totals.GSTTotal
	q.Total = doc.Totals.Total
	q.Notes = doc.Notes
}
