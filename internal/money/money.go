// Package money turns line items and a tax rate into cent-rounded totals.
//
// Every function here is total: non-finite or negative quantities, prices
// and rates are clamped to zero instead of producing an error. Callers that
// need to reject bad input (empty descriptions, non-positive quantities) do
// so before reaching this package.
//
// Aggregates are the sum of per-line rounded values, not a single rounding
// of the unrounded sum. The two can differ by a cent; line totals shown on a
// document always add up to the footer.
package money

import (
	"math"

	"github.com/shopspring/decimal"
	"invoicer/pkg/models"
)

// Totals is the footer of a document.
type Totals struct {
	Subtotal float64 `json:"subtotal"`
	GSTTotal float64 `json:"gstTotal"`
	Total    float64 `json:"total"`
}

var hundred = decimal.NewFromInt(100)

// Round2 rounds to cents, halves away from zero.
func Round2(x float64) float64 {
	if !isFinite(x) {
		return 0
	}
	f, _ := decimal.NewFromFloat(x).Round(2).Float64()
	return f
}

// ToCents converts a major-unit amount to integer cents.
func ToCents(x float64) int64 {
	if !isFinite(x) {
		return 0
	}
	return decimal.NewFromFloat(x).Mul(hundred).Round(0).IntPart()
}

// FromCents converts integer cents back to major units.
func FromCents(c int64) float64 {
	f, _ := decimal.New(c, -2).Float64()
	return f
}

// Clamp returns x, or 0 when x is negative, NaN or infinite.
func Clamp(x float64) float64 {
	if !isFinite(x) || x < 0 {
		return 0
	}
	return x
}

// ClampRate clamps a tax rate into [0, 1].
func ClampRate(rate float64) float64 {
	rate = Clamp(rate)
	if rate > 1 {
		return 1
	}
	return rate
}

// ComputeLine fills the derived fields of item. Values supplied by the
// caller for Subtotal, GST and Total are ignored.
func ComputeLine(item models.LineItem, rate float64) models.LineItem {
	qty := decimal.NewFromFloat(Clamp(item.Quantity))
	price := decimal.NewFromFloat(Clamp(item.UnitPrice))

	subtotal := qty.Mul(price).Round(2)
	gst := decimal.Zero
	if item.ApplyGST {
		gst = subtotal.Mul(decimal.NewFromFloat(ClampRate(rate))).Round(2)
	}

	item.Subtotal, _ = subtotal.Float64()
	item.GST, _ = gst.Float64()
	item.Total, _ = subtotal.Add(gst).Float64()
	return item
}

// ComputeTotals recomputes every line and returns them with the footer.
// The input slice is not modified.
func ComputeTotals(items []models.LineItem, rate float64) ([]models.LineItem, Totals) {
	lines := make([]models.LineItem, len(items))
	subtotal, gst := decimal.Zero, decimal.Zero

	for i, item := range items {
		lines[i] = ComputeLine(item, rate)
		subtotal = subtotal.Add(decimal.NewFromFloat(lines[i].Subtotal))
		gst = gst.Add(decimal.NewFromFloat(lines[i].GST))
	}

	subtotal = subtotal.Round(2)
	gst = gst.Round(2)

	var t Totals
	t.Subtotal, _ = subtotal.Float64()
	t.GSTTotal, _ = gst.Float64()
	t.Total, _ = subtotal.Add(gst).Float64()
	return lines, t
}

// BalanceDue is max(0, total - paid), computed in cents.
func BalanceDue(total, paid float64) float64 {
	c := ToCents(total) - ToCents(paid)
	if c < 0 {
		c = 0
	}
	return FromCents(c)
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
