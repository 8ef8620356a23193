package services

import (
	"context"

	"invoicer/pkg/models"
)

// InvoiceExporter publishes invoice projections to an outside system
type InvoiceExporter interface {
	// ExportInvoices replaces the exported view with the given rows
	ExportInvoices(ctx context.Context, rows []models.InvoiceProjection) error
}

// PaymentSource yields raw payment rows for reconciliation, header row first
type PaymentSource interface {
	ReadPaymentRows(ctx context.Context) ([][]interface{}, error)
}
