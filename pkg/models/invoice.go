package models

import "time"

// InvoiceStatus is the payment state of an invoice.
type InvoiceStatus string

const (
	InvoiceUnpaid  InvoiceStatus = "unpaid"  // amountPaid = 0
	InvoicePartial InvoiceStatus = "partial" // 0 < amountPaid < total
	InvoicePaid    InvoiceStatus = "paid"    // balanceDue = 0, paidAt set
)

// QuoteStatus is the negotiation state of a quote.
type QuoteStatus string

const (
	QuotePending   QuoteStatus = "pending"
	QuoteAccepted  QuoteStatus = "accepted"
	QuoteDeclined  QuoteStatus = "declined"
	QuoteConverted QuoteStatus = "converted" // terminal
)

// LineItem is one billable row. Subtotal, GST and Total are derived and
// always recomputed from Quantity, UnitPrice and ApplyGST.
type LineItem struct {
	ID          string  `json:"id"`
	ServiceID   string  `json:"serviceId,omitempty"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	ApplyGST    bool    `json:"applyGst"`
	Subtotal    float64 `json:"subtotal"`
	GST         float64 `json:"gst"`
	Total       float64 `json:"total"`
}

type Invoice struct {
	// Core identifiers
	ID     string `json:"id"`
	Number string `json:"number"` // Human-readable number, e.g. ACME-0007

	// Denormalized client snapshot so the invoice survives client deletion
	ClientID           string `json:"clientId"`
	ClientName         string `json:"clientName"`
	ClientBusinessName string `json:"clientBusinessName"`

	// Dates
	IssueDate time.Time  `json:"issueDate"`
	DueDate   time.Time  `json:"dueDate"`
	PaidAt    *time.Time `json:"paidAt,omitempty"` // Set when balanceDue reaches zero

	Status    InvoiceStatus `json:"status"`
	LineItems []LineItem    `json:"lineItems"`

	// Amounts in major units, rounded to cents
	Subtotal   float64 `json:"subtotal"`
	GSTTotal   float64 `json:"gstTotal"`
	Total      float64 `json:"total"`
	AmountPaid float64 `json:"amountPaid"`
	BalanceDue float64 `json:"balanceDue"`

	Notes         string `json:"notes"`
	SourceQuoteID string `json:"sourceQuoteId,omitempty"` // Quote this invoice was converted from
	ScheduleID    string `json:"scheduleId,omitempty"`    // Recurring schedule that generated it

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsPaid reports whether nothing is left to collect.
func (i *Invoice) IsPaid() bool {
	return i.Status == InvoicePaid
}

// Projection returns the read-only view handed to export collaborators.
func (i *Invoice) Projection() InvoiceProjection {
	return InvoiceProjection{
		Number:     i.Number,
		IssueDate:  i.IssueDate,
		DueDate:    i.DueDate,
		ClientName: i.ClientName,
		Subtotal:   i.Subtotal,
		GSTTotal:   i.GSTTotal,
		Total:      i.Total,
		AmountPaid: i.AmountPaid,
		BalanceDue: i.BalanceDue,
		Status:     i.Status,
	}
}

type Quote struct {
	ID     string `json:"id"`
	Number string `json:"number"`

	ClientID           string `json:"clientId"`
	ClientName         string `json:"clientName"`
	ClientBusinessName string `json:"clientBusinessName"`

	IssueDate  time.Time   `json:"issueDate"`
	ValidUntil time.Time   `json:"validUntil"`
	Status     QuoteStatus `json:"status"`
	LineItems  []LineItem  `json:"lineItems"`

	Subtotal float64 `json:"subtotal"`
	GSTTotal float64 `json:"gstTotal"`
	Total    float64 `json:"total"`

	Notes              string `json:"notes"`
	ConvertedInvoiceID string `json:"convertedInvoiceId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// InvoiceProjection is the subset of invoice fields CSV, PDF and sheet
// exporters consume.
type InvoiceProjection struct {
	Number     string        `json:"number"`
	IssueDate  time.Time     `json:"issueDate"`
	DueDate    time.Time     `json:"dueDate"`
	ClientName string        `json:"clientName"`
	Subtotal   float64       `json:"subtotal"`
	GSTTotal   float64       `json:"gstTotal"`
	Total      float64       `json:"total"`
	AmountPaid float64       `json:"amountPaid"`
	BalanceDue float64       `json:"balanceDue"`
	Status     InvoiceStatus `json:"status"`
}
