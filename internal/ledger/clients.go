package ledger

import (
	"context"
	"strings"
	"unicode"

	"invoicer/pkg/models"
)

// ClientInput is the payload for creating a client.
type ClientInput struct {
	Name         string `json:"name" yaml:"name"`
	BusinessName string `json:"businessName" yaml:"businessName"`
	Address      string `json:"address" yaml:"address"`
	ABN          string `json:"abn" yaml:"abn"`
	Contact      string `json:"contact" yaml:"contact"`
	Prefix       string `json:"prefix" yaml:"prefix"`
	Email        string `json:"email" yaml:"email"`
}

// ClientPatch is a partial client update. Nil fields are left alone.
type ClientPatch struct {
	Name         *string `json:"name,omitempty"`
	BusinessName *string `json:"businessName,omitempty"`
	Address      *string `json:"address,omitempty"`
	ABN          *string `json:"abn,omitempty"`
	Contact      *string `json:"contact,omitempty"`
	Prefix       *string `json:"prefix,omitempty"`
	Email        *string `json:"email,omitempty"`
}

// CreateClient validates and stores a new client.
func (l *Ledger) CreateClient(ctx context.Context, in ClientInput) (*models.Client, error) {
	const op = "ledger.CreateClient"

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.Now()
	c := models.Client{
		ID:           l.newID(),
		Name:         strings.TrimSpace(in.Name),
		BusinessName: strings.TrimSpace(in.BusinessName),
		Address:      strings.TrimSpace(in.Address),
		ABN:          strings.TrimSpace(in.ABN),
		Contact:      strings.TrimSpace(in.Contact),
		Prefix:       normalizePrefix(in.Prefix),
		Email:        strings.TrimSpace(in.Email),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := validateClient(&c); err != nil {
		l.log.Warn().Err(err).Msg("Client rejected")
		return nil, err
	}

	clients, err := l.loadClients(ctx)
	if err != nil {
		return nil, err
	}
	clients = append(clients, c)
	if err := l.saveClients(ctx, op, clients); err != nil {
		return nil, err
	}

	l.log.Info().Str("client_id", c.ID).Str("name", c.Name).Msg("Client created")
	return &c, nil
}

// GetClient returns one client.
func (l *Ledger) GetClient(ctx context.Context, id string) (*models.Client, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	clients, err := l.loadClients(ctx)
	if err != nil {
		return nil, err
	}
	i, ok := findClient(clients, id)
	if !ok {
		return nil, notFound("client", id)
	}
	return &clients[i], nil
}

// ListClients returns every client in insertion order.
func (l *Ledger) ListClients(ctx context.Context) ([]models.Client, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadClients(ctx)
}

// UpdateClient applies patch. Existing documents keep their snapshot of the
// old name.
func (l *Ledger) UpdateClient(ctx context.Context, id string, patch ClientPatch) (*models.Client, error) {
	const op = "ledger.UpdateClient"

	l.mu.Lock()
	defer l.mu.Unlock()

	clients, err := l.loadClients(ctx)
	if err != nil {
		return nil, err
	}
	i, ok := findClient(clients, id)
	if !ok {
		return nil, notFound("client", id)
	}

	c := clients[i]
	setString(&c.Name, patch.Name)
	setString(&c.BusinessName, patch.BusinessName)
	setString(&c.Address, patch.Address)
	setString(&c.ABN, patch.ABN)
	setString(&c.Contact, patch.Contact)
	setString(&c.Email, patch.Email)
	if patch.Prefix != nil {
		c.Prefix = normalizePrefix(*patch.Prefix)
	}
	if err := validateClient(&c); err != nil {
		l.log.Warn().Err(err).Str("client_id", id).Msg("Client update rejected")
		return nil, err
	}

	c.UpdatedAt = l.Now()
	clients[i] = c
	if err := l.saveClients(ctx, op, clients); err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteClient removes a client. Documents referencing it are kept.
func (l *Ledger) DeleteClient(ctx context.Context, id string) error {
	const op = "ledger.DeleteClient"

	l.mu.Lock()
	defer l.mu.Unlock()

	clients, err := l.loadClients(ctx)
	if err != nil {
		return err
	}
	i, ok := findClient(clients, id)
	if !ok {
		return notFound("client", id)
	}
	clients = append(clients[:i], clients[i+1:]...)
	if err := l.saveClients(ctx, op, clients); err != nil {
		return err
	}

	l.log.Info().Str("client_id", id).Msg("Client deleted")
	return nil
}

func validateClient(c *models.Client) error {
	if c.Name == "" {
		return NewValidationError("name", nil, "client name is required")
	}
	if c.Email != "" && !validEmail(c.Email) {
		return NewValidationError("email", c.Email, "invalid email")
	}
	return nil
}

// normalizePrefix upper-cases and keeps letters, digits and dashes.
func normalizePrefix(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return strings.Trim(b.String(), "-")
}
