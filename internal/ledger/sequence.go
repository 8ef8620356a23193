package ledger

import (
	"context"
	"fmt"

	"invoicer/internal/store"
	"invoicer/pkg/models"
)

// loadSequences returns the persisted counters, zero when none exist.
func (l *Ledger) loadSequences(ctx context.Context) (models.Sequences, error) {
	seq, _, err := store.LoadObject[models.Sequences](ctx, l.store, store.KeySequences)
	return seq, err
}

// nextNumber reserves the next document number for kind. The counter is
// seeded with the collection size so data restored from an older backup
// (or written before counters existed) does not collide. Numbers already in
// use are skipped.
func (l *Ledger) nextNumber(ctx context.Context, kind documentKind, prefix string, taken map[string]bool) (string, error) {
	const op = "ledger.nextNumber"

	seq, err := l.loadSequences(ctx)
	if err != nil {
		return "", err
	}

	counter := &seq.Invoice
	if kind == kindQuote {
		counter = &seq.Quote
	}
	if n := int64(len(taken)); *counter < n {
		*counter = n
	}

	var number string
	for {
		*counter++
		number = formatNumber(prefix, *counter)
		if !taken[number] {
			break
		}
	}

	if err := store.SaveObject(ctx, l.store, store.KeySequences, seq); err != nil {
		return "", fmt.Errorf("%s: failed to save sequences: %w", op, err)
	}
	return number, nil
}

func formatNumber(prefix string, n int64) string {
	return fmt.Sprintf("%s-%04d", prefix, n)
}

func invoiceNumbers(invoices []models.Invoice, exceptID string) map[string]bool {
	taken := make(map[string]bool, len(invoices))
	for _, inv := range invoices {
		if inv.ID != exceptID {
			taken[inv.Number] = true
		}
	}
	return taken
}

func quoteNumbers(quotes []models.Quote, exceptID string) map[string]bool {
	taken := make(map[string]bool, len(quotes))
	for _, q := range quotes {
		if q.ID != exceptID {
			taken[q.Number] = true
		}
	}
	return taken
}
