// Package reconciliation imports payments recorded in a spreadsheet into
// the ledger, matching rows to invoices by number.
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"invoicer/internal/ledger"
	"invoicer/internal/logger"
	"invoicer/internal/money"
	"invoicer/pkg/models"
)

const importTagPrefix = "[import:"

// Ledger is the part of *ledger.Ledger the reconciler needs
type Ledger interface {
	ListInvoices(ctx context.Context, filter ledger.InvoiceFilter) ([]models.Invoice, error)
	ListPayments(ctx context.Context) ([]models.Payment, error)
	RecordPayment(ctx context.Context, in ledger.PaymentInput) (*models.Payment, error)
}

// Reconciler applies payment rows to invoices
type Reconciler struct {
	ledger Ledger
	log    zerolog.Logger
}

// NewReconciler creates a reconciler writing to l
func NewReconciler(l Ledger) *Reconciler {
	return &Reconciler{
		ledger: l,
		log:    logger.WithComponent("reconciliation"),
	}
}

// Apply records each row as a payment against the invoice with the same
// number. Rows imported by an earlier run are skipped; the ledger's own
// checks reject overpayments. With dryRun nothing is written and the
// checks run against the current balances instead.
//
// A storage failure stops the run; the report covers the rows handled
// before it.
func (r *Reconciler) Apply(ctx context.Context, rows []PaymentRow, dryRun bool) (*Report, error) {
	const op = "reconciliation.Apply"

	invoices, err := r.ledger.ListInvoices(ctx, ledger.InvoiceFilter{})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to list invoices: %w", op, err)
	}
	byNumber := make(map[string]*models.Invoice, len(invoices))
	remaining := make(map[string]int64, len(invoices))
	for i := range invoices {
		inv := &invoices[i]
		byNumber[strings.ToUpper(inv.Number)] = inv
		remaining[inv.ID] = money.ToCents(inv.BalanceDue)
	}

	payments, err := r.ledger.ListPayments(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to list payments: %w", op, err)
	}
	imported := make(map[string]bool)
	for _, p := range payments {
		if key, ok := parseImportTag(p.Notes); ok {
			imported[key] = true
		}
	}

	report := &Report{DryRun: dryRun}
	for i := range rows {
		row := &rows[i]
		res := RowResult{Row: row.Row, InvoiceNumber: row.InvoiceNumber, Amount: row.Amount}
		key := row.ImportKey()

		inv, found := byNumber[strings.ToUpper(row.InvoiceNumber)]
		switch {
		case imported[key]:
			res.Outcome = OutcomeDuplicate
		case !found:
			res.Outcome = OutcomeUnmatched
			res.Reason = "no invoice with this number"
		case dryRun:
			amountC := money.ToCents(row.Amount)
			switch {
			case amountC <= 0:
				res.Outcome, res.Reason = OutcomeRejected, "amount must be greater than zero"
			case amountC > remaining[inv.ID]:
				res.Outcome, res.Reason = OutcomeRejected, "amount exceeds outstanding balance"
			default:
				res.Outcome = OutcomeApplied
				remaining[inv.ID] -= amountC
				imported[key] = true
			}
		default:
			payment, err := r.ledger.RecordPayment(ctx, ledger.PaymentInput{
				InvoiceID: inv.ID,
				Amount:    row.Amount,
				Date:      row.Date,
				Notes:     importNotes(key, row.Notes),
			})
			switch {
			case err == nil:
				res.Outcome = OutcomeApplied
				res.PaymentID = payment.ID
				imported[key] = true
			case errors.Is(err, ledger.ErrValidation), errors.Is(err, ledger.ErrNotFound):
				res.Outcome = OutcomeRejected
				res.Reason = rejectionReason(err)
			default:
				r.log.Error().Err(err).Int("row", row.Row).Msg("Reconciliation stopped")
				return report, fmt.Errorf("%s: row %d: %w", op, row.Row, err)
			}
		}

		if res.Outcome != OutcomeApplied {
			r.log.Warn().
				Int("row", row.Row).
				Str("invoice_number", row.InvoiceNumber).
				Str("outcome", string(res.Outcome)).
				Str("reason", res.Reason).
				Msg("Payment row not applied")
		}
		report.add(res)
	}

	r.log.Info().
		Bool("dry_run", dryRun).
		Int("applied", report.Applied).
		Int("duplicates", report.Duplicates).
		Int("unmatched", report.Unmatched).
		Int("rejected", report.Rejected).
		Msg("Reconciliation finished")

	return report, nil
}

func importNotes(key, notes string) string {
	tag := importTagPrefix + key + "]"
	if notes == "" {
		return tag
	}
	return tag + " " + notes
}

func parseImportTag(notes string) (string, bool) {
	if !strings.HasPrefix(notes, importTagPrefix) {
		return "", false
	}
	end := strings.Index(notes, "]")
	if end < 0 {
		return "", false
	}
	return notes[len(importTagPrefix):end], true
}

func rejectionReason(err error) string {
	var verr *ledger.ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}
	return err.Error()
}
