package ledger

import (
	"context"
	"math"
	"strings"
	"time"

	"invoicer/internal/money"
	"invoicer/pkg/models"
)

// UnknownClientName is shown on read paths when a document's client no
// longer exists and the document carries no snapshot of its own.
const UnknownClientName = "Unknown client"

// dateLayouts are tried in order when coercing caller-supplied dates.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04",
	"02/01/2006",
}

// LineItemInput is a raw line item. Nil pointers mean "not supplied": a
// line referencing a catalog service inherits the missing values from it.
type LineItemInput struct {
	ID          string   `json:"id,omitempty" yaml:"id,omitempty"`
	ServiceID   string   `json:"serviceId,omitempty" yaml:"serviceId,omitempty"`
	Description string   `json:"description" yaml:"description"`
	Quantity    float64  `json:"quantity" yaml:"quantity"`
	UnitPrice   *float64 `json:"unitPrice,omitempty" yaml:"unitPrice,omitempty"`
	ApplyGST    *bool    `json:"applyGst,omitempty" yaml:"applyGst,omitempty"`
}

// DocumentInput is the raw shape shared by invoices and quotes. DueDate is
// the quote's valid-until date when the document is a quote.
type DocumentInput struct {
	ClientID  string          `json:"clientId" yaml:"clientId"`
	Number    string          `json:"number,omitempty" yaml:"number,omitempty"`
	IssueDate string          `json:"issueDate,omitempty" yaml:"issueDate,omitempty"`
	DueDate   string          `json:"dueDate,omitempty" yaml:"dueDate,omitempty"`
	LineItems []LineItemInput `json:"lineItems" yaml:"lineItems"`
	Notes     string          `json:"notes,omitempty" yaml:"notes,omitempty"`
}

type documentKind int

const (
	kindInvoice documentKind = iota
	kindQuote
)

func (k documentKind) String() string {
	if k == kindQuote {
		return "quote"
	}
	return "invoice"
}

// canonicalDocument is the normalized form every invoice and quote write
// goes through. Number is empty when one still has to be assigned.
type canonicalDocument struct {
	Number             string
	Prefix             string
	ClientID           string
	ClientName         string
	ClientBusinessName string
	IssueDate          time.Time
	DueDate            time.Time
	LineItems          []models.LineItem
	Totals             money.Totals
	Notes              string
}

// clientSnapshot is the denormalized client copy a document already holds.
type clientSnapshot struct {
	Name         string
	BusinessName string
}

type normalizeOptions struct {
	strict   bool
	existing *clientSnapshot
}

// normalizeDocument turns raw input into a canonical document. It never
// writes; number assignment is left to the caller so that a rejected
// document does not consume a sequence value.
func (l *Ledger) normalizeDocument(ctx context.Context, in DocumentInput, kind documentKind, opts normalizeOptions) (*canonicalDocument, error) {
	clientID := strings.TrimSpace(in.ClientID)
	if clientID == "" {
		return nil, NewValidationError("clientId", nil, "client is required")
	}

	settings, err := l.loadSettings(ctx)
	if err != nil {
		return nil, err
	}
	clients, err := l.loadClients(ctx)
	if err != nil {
		return nil, err
	}
	services, err := l.loadServices(ctx)
	if err != nil {
		return nil, err
	}

	doc := &canonicalDocument{
		Number:   strings.TrimSpace(in.Number),
		ClientID: clientID,
		Notes:    strings.TrimSpace(in.Notes),
	}

	if i, ok := findClient(clients, clientID); ok {
		doc.ClientName = clients[i].Name
		doc.ClientBusinessName = clients[i].BusinessName
		doc.Prefix = clients[i].Prefix
	} else {
		switch {
		case opts.strict:
			return nil, notFound("client", clientID)
		case opts.existing != nil && opts.existing.Name != "":
			doc.ClientName = opts.existing.Name
			doc.ClientBusinessName = opts.existing.BusinessName
		default:
			doc.ClientName = UnknownClientName
		}
	}
	if doc.Prefix == "" {
		if kind == kindQuote {
			doc.Prefix = settings.QuotePrefix
		} else {
			doc.Prefix = settings.InvoicePrefix
		}
	}

	lines := sanitizeLineItems(in.LineItems, services, l.newID)
	if len(lines) == 0 {
		return nil, NewValidationError("lineItems", nil, "at least one line item is required")
	}
	doc.LineItems, doc.Totals = money.ComputeTotals(lines, settings.GSTRate)

	now := l.Now()
	issue, ok := parseDate(in.IssueDate)
	if !ok {
		issue = now
	}
	doc.IssueDate = issue

	// An omitted due date runs the terms from the issue date; one that
	// cannot be read runs them from now.
	due, ok := parseDate(in.DueDate)
	if !ok {
		days := settings.PaymentTermsDays
		if kind == kindQuote {
			days = settings.QuoteValidityDays
		}
		from := issue
		if strings.TrimSpace(in.DueDate) != "" {
			from = now
		}
		due = from.AddDate(0, 0, days)
	}
	doc.DueDate = due

	return doc, nil
}

// sanitizeLineItems drops unusable rows and fills catalog defaults.
func sanitizeLineItems(in []LineItemInput, services []models.Service, newID func() string) []models.LineItem {
	lines := make([]models.LineItem, 0, len(in))
	for _, raw := range in {
		var svc *models.Service
		if raw.ServiceID != "" {
			if i, ok := findService(services, raw.ServiceID); ok {
				svc = &services[i]
			}
		}

		desc := strings.TrimSpace(raw.Description)
		if desc == "" && svc != nil {
			desc = strings.TrimSpace(svc.Name)
			if desc == "" {
				desc = strings.TrimSpace(svc.Description)
			}
		}
		if desc == "" {
			continue
		}
		if math.IsNaN(raw.Quantity) || raw.Quantity <= 0 || math.IsInf(raw.Quantity, 0) {
			continue
		}

		item := models.LineItem{
			ID:          raw.ID,
			ServiceID:   raw.ServiceID,
			Description: desc,
			Quantity:    raw.Quantity,
			ApplyGST:    true,
		}
		switch {
		case raw.UnitPrice != nil:
			item.UnitPrice = money.Clamp(*raw.UnitPrice)
		case svc != nil:
			item.UnitPrice = money.Clamp(svc.UnitPrice)
		}
		switch {
		case raw.ApplyGST != nil:
			item.ApplyGST = *raw.ApplyGST
		case svc != nil:
			item.ApplyGST = svc.ApplyGST
		}
		if item.ID == "" {
			item.ID = newID()
		}
		lines = append(lines, item)
	}
	return lines
}

// lineInputs converts stored line items back into raw input, keeping ids.
func lineInputs(items []models.LineItem) []LineItemInput {
	out := make([]LineItemInput, len(items))
	for i, item := range items {
		price := item.UnitPrice
		gst := item.ApplyGST
		out[i] = LineItemInput{
			ID:          item.ID,
			ServiceID:   item.ServiceID,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   &price,
			ApplyGST:    &gst,
		}
	}
	return out
}

// copyLines is lineInputs for a new document: line ids are not carried over.
func copyLines(items []models.LineItem) []LineItemInput {
	out := lineInputs(items)
	for i := range out {
		out[i].ID = ""
	}
	return out
}

// parseDate accepts the layouts in dateLayouts. Date-only values are UTC.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ParseDate is parseDate for callers outside the package (the CLI).
func ParseDate(s string) (time.Time, bool) {
	return parseDate(s)
}

// formatDate renders t so that parseDate reads it back unchanged.
func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
