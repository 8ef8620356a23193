package money_test

import (
	"fmt"

	"invoicer/internal/money"
	"invoicer/pkg/models"
)

// Example shows a GST-inclusive line next to a GST-free one.
func Example() {
	items := []models.LineItem{
		{Description: "Consulting", Quantity: 2, UnitPrice: 150, ApplyGST: true},
		{Description: "Travel", Quantity: 1, UnitPrice: 42.5},
	}

	lines, totals := money.ComputeTotals(items, 0.10)
	for _, l := range lines {
		fmt.Printf("%s: %.2f + %.2f = %.2f\n", l.Description, l.Subtotal, l.GST, l.Total)
	}
	fmt.Printf("Total: %.2f + %.2f = %.2f\n", totals.Subtotal, totals.GSTTotal, totals.Total)

	// Output:
	// Consulting: 300.00 + 30.00 = 330.00
	// Travel: 42.50 + 0.00 = 42.50
	// Total: 342.50 + 30.00 = 372.50
}

// ExampleRound2 shows rounding of a half cent.
func ExampleRound2() {
	fmt.Println(money.Round2(2.675), money.Round2(-1.005))
	// Output: 2.68 -1.01
}
