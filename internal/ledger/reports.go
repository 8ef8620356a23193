package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"invoicer/internal/money"
	"invoicer/internal/recurring"
	"invoicer/pkg/models"
)

// ProjectionDrift is an invoice whose cached amountPaid disagrees with the
// payment ledger.
type ProjectionDrift struct {
	InvoiceID     string  `json:"invoiceId"`
	InvoiceNumber string  `json:"invoiceNumber"`
	CachedPaid    float64 `json:"cachedPaid"`
	LedgerPaid    float64 `json:"ledgerPaid"`
	Difference    float64 `json:"difference"`
}

// Summary is the dashboard view of the ledger at a point in time.
type Summary struct {
	GeneratedAt        time.Time `json:"generatedAt"`
	InvoiceCount       int       `json:"invoiceCount"`
	TotalInvoiced      float64   `json:"totalInvoiced"`
	TotalCollected     float64   `json:"totalCollected"`
	Outstanding        float64   `json:"outstanding"`
	OutstandingCount   int       `json:"outstandingCount"`
	OverdueCount       int       `json:"overdueCount"`
	OverdueAmount      float64   `json:"overdueAmount"`
	AveragePaymentDays *float64  `json:"averagePaymentDays,omitempty"`
	PendingQuotes      int       `json:"pendingQuotes"`
	ActiveSchedules    int       `json:"activeSchedules"`
	RemindersDue       int       `json:"remindersDue"`
	SchedulesDue       int       `json:"schedulesDue"`
}

// OutstandingInvoices returns invoices with a balance left to collect.
func (l *Ledger) OutstandingInvoices(ctx context.Context) ([]models.Invoice, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	invoices, err := l.loadInvoices(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Invoice, 0)
	for _, inv := range invoices {
		if money.ToCents(inv.BalanceDue) > 0 {
			out = append(out, inv)
		}
	}
	return out, nil
}

// OutstandingBalance sums balanceDue over every invoice.
func (l *Ledger) OutstandingBalance(ctx context.Context) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	invoices, err := l.loadInvoices(ctx)
	if err != nil {
		return 0, err
	}
	var sum int64
	for _, inv := range invoices {
		sum += money.ToCents(inv.BalanceDue)
	}
	return money.FromCents(sum), nil
}

// AveragePaymentDays is the mean of paidAt - issueDate over paid invoices,
// in days with one decimal. ok is false when nothing has been paid.
func (l *Ledger) AveragePaymentDays(ctx context.Context) (float64, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	invoices, err := l.loadInvoices(ctx)
	if err != nil {
		return 0, false, err
	}
	avg, ok := averagePaymentDays(invoices)
	return avg, ok, nil
}

func averagePaymentDays(invoices []models.Invoice) (float64, bool) {
	sum := decimal.Zero
	n := 0
	for _, inv := range invoices {
		if inv.PaidAt == nil || inv.IssueDate.IsZero() {
			continue
		}
		days := inv.PaidAt.Sub(inv.IssueDate).Hours() / 24
		sum = sum.Add(decimal.NewFromFloat(days))
		n++
	}
	if n == 0 {
		return 0, false
	}
	avg, _ := sum.Div(decimal.NewFromInt(int64(n))).Round(1).Float64()
	return avg, true
}

// VerifyPaymentProjections compares each invoice's cached amountPaid with
// the sum of its ledger payments. An invoice marked paid without recorded
// payments shows up here.
func (l *Ledger) VerifyPaymentProjections(ctx context.Context) ([]ProjectionDrift, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	invoices, err := l.loadInvoices(ctx)
	if err != nil {
		return nil, err
	}
	payments, err := l.loadPayments(ctx)
	if err != nil {
		return nil, err
	}

	drift := make([]ProjectionDrift, 0)
	for i := range invoices {
		inv := &invoices[i]
		cached := money.ToCents(inv.AmountPaid)
		recorded := ledgerCents(payments, inv.ID)
		if cached == recorded {
			continue
		}
		drift = append(drift, ProjectionDrift{
			InvoiceID:     inv.ID,
			InvoiceNumber: inv.Number,
			CachedPaid:    money.FromCents(cached),
			LedgerPaid:    money.FromCents(recorded),
			Difference:    money.FromCents(cached - recorded),
		})
	}
	return drift, nil
}

// DashboardSummary aggregates invoices, quotes and schedules as of now.
func (l *Ledger) DashboardSummary(ctx context.Context, now time.Time) (*Summary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	invoices, err := l.loadInvoices(ctx)
	if err != nil {
		return nil, err
	}
	quotes, err := l.loadQuotes(ctx)
	if err != nil {
		return nil, err
	}
	schedules, err := l.loadSchedules(ctx)
	if err != nil {
		return nil, err
	}

	s := &Summary{GeneratedAt: now, InvoiceCount: len(invoices)}

	var invoiced, collected, outstanding, overdue int64
	for _, inv := range invoices {
		invoiced += money.ToCents(inv.Total)
		collected += money.ToCents(inv.AmountPaid)
		balance := money.ToCents(inv.BalanceDue)
		if balance <= 0 {
			continue
		}
		outstanding += balance
		s.OutstandingCount++
		if !inv.DueDate.IsZero() && inv.DueDate.Before(now) {
			overdue += balance
			s.OverdueCount++
		}
	}
	s.TotalInvoiced = money.FromCents(invoiced)
	s.TotalCollected = money.FromCents(collected)
	s.Outstanding = money.FromCents(outstanding)
	s.OverdueAmount = money.FromCents(overdue)

	if avg, ok := averagePaymentDays(invoices); ok {
		s.AveragePaymentDays = &avg
	}

	for _, q := range quotes {
		if q.Status == models.QuotePending {
			s.PendingQuotes++
		}
	}
	for i := range schedules {
		sch := &schedules[i]
		if !sch.Active {
			continue
		}
		s.ActiveSchedules++
		if recurring.NeedsReminder(sch, now) {
			s.RemindersDue++
		}
		if isDue(sch, now) {
			s.SchedulesDue++
		}
	}
	return s, nil
}

// ExportProjections returns the exporter view of every invoice.
func (l *Ledger) ExportProjections(ctx context.Context) ([]models.InvoiceProjection, error) {
	invoices, err := l.ListInvoices(ctx, InvoiceFilter{})
	if err != nil {
		return nil, err
	}
	out := make([]models.InvoiceProjection, len(invoices))
	for i := range invoices {
		out[i] = invoices[i].Projection()
	}
	return out, nil
}
