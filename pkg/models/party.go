package models

import "time"

// Client is a billable customer. Documents keep a copy of Name and
// BusinessName, so removing a client never rewrites history.
type Client struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	BusinessName string    `json:"businessName"`
	Address      string    `json:"address"`
	ABN          string    `json:"abn"`
	Contact      string    `json:"contact"`
	Prefix       string    `json:"prefix"` // Overrides the settings invoice/quote prefix
	Email        string    `json:"email"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// DisplayName prefers the trading name.
func (c *Client) DisplayName() string {
	if c.BusinessName != "" {
		return c.BusinessName
	}
	return c.Name
}

// Service is a catalog entry line items can be priced from.
type Service struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	UnitPrice   float64   `json:"unitPrice"`
	ApplyGST    bool      `json:"applyGst"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Payment is an immutable entry in the payment ledger.
type Payment struct {
	ID            string    `json:"id"`
	InvoiceID     string    `json:"invoiceId"`
	InvoiceNumber string    `json:"invoiceNumber"`
	ClientID      string    `json:"clientId"`
	ClientName    string    `json:"clientName"`
	Amount        float64   `json:"amount"`
	RecordedAt    time.Time `json:"recordedAt"`
	PaymentDate   time.Time `json:"paymentDate"`
	Notes         string    `json:"notes"`
}

// Settings is the singleton business profile.
type Settings struct {
	BusinessName      string    `json:"businessName"`
	ABN               string    `json:"abn"`
	ContactName       string    `json:"contactName"`
	ContactEmail      string    `json:"contactEmail"`
	ContactPhone      string    `json:"contactPhone"`
	Address           string    `json:"address"`
	InvoicePrefix     string    `json:"invoicePrefix"`
	QuotePrefix       string    `json:"quotePrefix"`
	GSTRate           float64   `json:"gstRate"`           // 0..1
	PaymentTermsDays  int       `json:"paymentTermsDays"`  // Default invoice due offset
	QuoteValidityDays int       `json:"quoteValidityDays"` // Default quote validUntil offset
	UpdatedAt         time.Time `json:"updatedAt"`
}

// DefaultSettings is what a fresh store starts with.
func DefaultSettings() Settings {
	return Settings{
		InvoicePrefix:     "INV",
		QuotePrefix:       "QUO",
		GSTRate:           0.10,
		PaymentTermsDays:  14,
		QuoteValidityDays: 30,
	}
}

// Sequences holds the last issued document numbers.
type Sequences struct {
	Invoice int64 `json:"invoice"`
	Quote   int64 `json:"quote"`
}
