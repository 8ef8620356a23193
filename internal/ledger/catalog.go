package ledger

import (
	"context"
	"math"
	"strings"

	"invoicer/internal/money"
	"invoicer/pkg/models"
)

// ServiceInput is the payload for creating a catalog service.
type ServiceInput struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	UnitPrice   float64 `json:"unitPrice"`
	ApplyGST    *bool   `json:"applyGst,omitempty"`
}

// CreateService adds a catalog entry. ApplyGST defaults to true.
func (l *Ledger) CreateService(ctx context.Context, in ServiceInput) (*models.Service, error) {
	const op = "ledger.CreateService"

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, NewValidationError("name", nil, "service name is required")
	}
	if math.IsNaN(in.UnitPrice) || math.IsInf(in.UnitPrice, 0) || in.UnitPrice < 0 {
		return nil, NewValidationError("unitPrice", in.UnitPrice, "unit price must be zero or more")
	}

	applyGST := true
	if in.ApplyGST != nil {
		applyGST = *in.ApplyGST
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.Now()
	svc := models.Service{
		ID:          l.newID(),
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		UnitPrice:   money.Round2(in.UnitPrice),
		ApplyGST:    applyGST,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	services, err := l.loadServices(ctx)
	if err != nil {
		return nil, err
	}
	services = append(services, svc)
	if err := l.saveServices(ctx, op, services); err != nil {
		return nil, err
	}

	l.log.Info().Str("service_id", svc.ID).Str("name", svc.Name).Float64("unit_price", svc.UnitPrice).Msg("Service created")
	return &svc, nil
}

// GetService returns one catalog entry.
func (l *Ledger) GetService(ctx context.Context, id string) (*models.Service, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	services, err := l.loadServices(ctx)
	if err != nil {
		return nil, err
	}
	i, ok := findService(services, id)
	if !ok {
		return nil, notFound("service", id)
	}
	return &services[i], nil
}

// ListServices returns the catalog.
func (l *Ledger) ListServices(ctx context.Context) ([]models.Service, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadServices(ctx)
}

// DeleteService removes a catalog entry. Line items keep their copied values.
func (l *Ledger) DeleteService(ctx context.Context, id string) error {
	const op = "ledger.DeleteService"

	l.mu.Lock()
	defer l.mu.Unlock()

	services, err := l.loadServices(ctx)
	if err != nil {
		return err
	}
	i, ok := findService(services, id)
	if !ok {
		return notFound("service", id)
	}
	services = append(services[:i], services[i+1:]...)
	return l.saveServices(ctx, op, services)
}
