package backup

import (
	"fmt"
	"math"

	"invoicer/internal/money"
	"invoicer/pkg/models"
)

// totalsTolerance is how far, in cents, subtotal + gst may be from total
// before a record is rejected.
const totalsTolerance = 1

// checkShape rejects records a restore must not write: empty ids,
// non-finite or negative amounts, and totals that do not add up.
func checkShape(d *Data) error {
	for i := range d.Clients {
		if d.Clients[i].ID == "" {
			return recordError("clients", i, "empty id")
		}
	}
	for i := range d.Services {
		s := &d.Services[i]
		if s.ID == "" {
			return recordError("services", i, "empty id")
		}
		if !validAmount(s.UnitPrice) {
			return recordError("services", i, "invalid unitPrice")
		}
	}
	for i := range d.Invoices {
		inv := &d.Invoices[i]
		if inv.ID == "" {
			return recordError("invoices", i, "empty id")
		}
		if err := checkTotals("invoices", i, inv.LineItems, inv.Subtotal, inv.GSTTotal, inv.Total); err != nil {
			return err
		}
		if !validAmount(inv.AmountPaid) || !validAmount(inv.BalanceDue) {
			return recordError("invoices", i, "invalid payment amounts")
		}
		if money.ToCents(inv.AmountPaid) > money.ToCents(inv.Total)+totalsTolerance {
			return recordError("invoices", i, "amountPaid exceeds total")
		}
	}
	for i := range d.Quotes {
		q := &d.Quotes[i]
		if q.ID == "" {
			return recordError("quotes", i, "empty id")
		}
		if err := checkTotals("quotes", i, q.LineItems, q.Subtotal, q.GSTTotal, q.Total); err != nil {
			return err
		}
	}
	for i := range d.Payments {
		p := &d.Payments[i]
		if p.ID == "" {
			return recordError("payments", i, "empty id")
		}
		if !validAmount(p.Amount) {
			return recordError("payments", i, "invalid amount")
		}
	}
	for i := range d.Schedules {
		s := &d.Schedules[i]
		if s.ID == "" {
			return recordError("schedules", i, "empty id")
		}
		if err := checkTotals("schedules", i, s.LineItems, s.Subtotal, s.GSTTotal, s.Total); err != nil {
			return err
		}
	}
	if d.Settings != nil {
		if r := d.Settings.GSTRate; math.IsNaN(r) || r < 0 || r > 1 {
			return formatError(fmt.Sprintf("settings: gstRate %v out of range", r), nil)
		}
	}
	return nil
}

func checkTotals(collection string, i int, lines []models.LineItem, subtotal, gst, total float64) error {
	if !validAmount(subtotal) || !validAmount(gst) || !validAmount(total) {
		return recordError(collection, i, "invalid totals")
	}
	if !addsUp(subtotal, gst, total) {
		return recordError(collection, i, fmt.Sprintf("subtotal %.2f + gst %.2f does not match total %.2f", subtotal, gst, total))
	}
	for j := range lines {
		l := &lines[j]
		if !validAmount(l.Subtotal) || !validAmount(l.GST) || !validAmount(l.Total) {
			return recordError(collection, i, fmt.Sprintf("line %d has invalid amounts", j))
		}
		if !addsUp(l.Subtotal, l.GST, l.Total) {
			return recordError(collection, i, fmt.Sprintf("line %d does not add up", j))
		}
	}
	return nil
}

func addsUp(subtotal, gst, total float64) bool {
	diff := money.ToCents(subtotal) + money.ToCents(gst) - money.ToCents(total)
	return diff >= -totalsTolerance && diff <= totalsTolerance
}

func validAmount(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0) && x >= 0
}

func recordError(collection string, i int, reason string) *FormatError {
	return formatError(fmt.Sprintf("%s[%d]: %s", collection, i, reason), nil)
}
