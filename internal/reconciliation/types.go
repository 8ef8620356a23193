package reconciliation

import (
	"fmt"
	"strings"
	"time"
)

// PaymentRow is one payment read from the payment worksheet
type PaymentRow struct {
	Row           int       // 1-based sheet row, for messages
	Date          time.Time // column A
	InvoiceNumber string    // column B
	Amount        float64   // column C
	Reference     string    // column D, bank reference if any
	Notes         string    // column E
}

// ImportKey identifies the row across runs. The bank reference is used
// when present; otherwise the date, invoice number and amount.
func (r *PaymentRow) ImportKey() string {
	if r.Reference != "" {
		return strings.ReplaceAll(r.Reference, "]", "")
	}
	return fmt.Sprintf("%s|%s|%.2f", r.Date.Format("2006-01-02"), r.InvoiceNumber, r.Amount)
}

// Outcome says what happened to a row
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate" // already imported by an earlier run or row
	OutcomeUnmatched Outcome = "unmatched" // no invoice carries the number
	OutcomeRejected  Outcome = "rejected"  // the ledger refused the payment
)

// RowResult is the outcome for one row
type RowResult struct {
	Row           int     `json:"row"`
	InvoiceNumber string  `json:"invoiceNumber"`
	Amount        float64 `json:"amount"`
	Outcome       Outcome `json:"outcome"`
	PaymentID     string  `json:"paymentId,omitempty"`
	Reason        string  `json:"reason,omitempty"`
}

// Report summarizes a reconciliation run
type Report struct {
	DryRun     bool        `json:"dryRun"`
	Applied    int         `json:"applied"`
	Duplicates int         `json:"duplicates"`
	Unmatched  int         `json:"unmatched"`
	Rejected   int         `json:"rejected"`
	Rows       []RowResult `json:"rows"`
}

func (r *Report) add(res RowResult) {
	switch res.Outcome {
	case OutcomeApplied:
		r.Applied++
	case OutcomeDuplicate:
		r.Duplicates++
	case OutcomeUnmatched:
		r.Unmatched++
	case OutcomeRejected:
		r.Rejected++
	}
	r.Rows = append(r.Rows, res)
}
