package ledger

import (
	"context"
	"fmt"
	"math"
	"net/mail"
	"strings"

	"invoicer/internal/store"
	"invoicer/pkg/models"
)

// SettingsPatch is a partial settings update. Nil fields are left alone.
type SettingsPatch struct {
	BusinessName      *string  `json:"businessName,omitempty" yaml:"businessName,omitempty"`
	ABN               *string  `json:"abn,omitempty" yaml:"abn,omitempty"`
	ContactName       *string  `json:"contactName,omitempty" yaml:"contactName,omitempty"`
	ContactEmail      *string  `json:"contactEmail,omitempty" yaml:"contactEmail,omitempty"`
	ContactPhone      *string  `json:"contactPhone,omitempty" yaml:"contactPhone,omitempty"`
	Address           *string  `json:"address,omitempty" yaml:"address,omitempty"`
	InvoicePrefix     *string  `json:"invoicePrefix,omitempty" yaml:"invoicePrefix,omitempty"`
	QuotePrefix       *string  `json:"quotePrefix,omitempty" yaml:"quotePrefix,omitempty"`
	GSTRate           *float64 `json:"gstRate,omitempty" yaml:"gstRate,omitempty"`
	PaymentTermsDays  *int     `json:"paymentTermsDays,omitempty" yaml:"paymentTermsDays,omitempty"`
	QuoteValidityDays *int     `json:"quoteValidityDays,omitempty" yaml:"quoteValidityDays,omitempty"`
}

// loadSettings returns the stored settings, or the defaults for a fresh store.
func (l *Ledger) loadSettings(ctx context.Context) (models.Settings, error) {
	s, ok, err := store.LoadObject[models.Settings](ctx, l.store, store.KeySettings)
	if err != nil {
		return models.Settings{}, err
	}
	if !ok {
		return models.DefaultSettings(), nil
	}
	return s, nil
}

// GetSettings returns the business profile.
func (l *Ledger) GetSettings(ctx context.Context) (models.Settings, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadSettings(ctx)
}

// UpdateSettings merges patch into the stored settings and validates the
// result before saving.
func (l *Ledger) UpdateSettings(ctx context.Context, patch SettingsPatch) (models.Settings, error) {
	const op = "ledger.UpdateSettings"

	l.mu.Lock()
	defer l.mu.Unlock()

	s, err := l.loadSettings(ctx)
	if err != nil {
		return models.Settings{}, err
	}

	setString(&s.BusinessName, patch.BusinessName)
	setString(&s.ABN, patch.ABN)
	setString(&s.ContactName, patch.ContactName)
	setString(&s.ContactEmail, patch.ContactEmail)
	setString(&s.ContactPhone, patch.ContactPhone)
	setString(&s.Address, patch.Address)
	setString(&s.InvoicePrefix, patch.InvoicePrefix)
	setString(&s.QuotePrefix, patch.QuotePrefix)
	if patch.GSTRate != nil {
		s.GSTRate = *patch.GSTRate
	}
	if patch.PaymentTermsDays != nil {
		s.PaymentTermsDays = *patch.PaymentTermsDays
	}
	if patch.QuoteValidityDays != nil {
		s.QuoteValidityDays = *patch.QuoteValidityDays
	}

	if err := validateSettings(&s); err != nil {
		l.log.Warn().Err(err).Msg("Settings update rejected")
		return models.Settings{}, err
	}

	s.UpdatedAt = l.Now()
	if err := store.SaveObject(ctx, l.store, store.KeySettings, s); err != nil {
		return models.Settings{}, fmt.Errorf("%s: failed to save settings: %w", op, err)
	}

	l.log.Info().Float64("gst_rate", s.GSTRate).Str("invoice_prefix", s.InvoicePrefix).Msg("Settings updated")
	return s, nil
}

func validateSettings(s *models.Settings) error {
	if math.IsNaN(s.GSTRate) || s.GSTRate < 0 || s.GSTRate > 1 {
		return NewValidationError("gstRate", s.GSTRate, "gst rate must be between 0 and 1")
	}
	if s.InvoicePrefix == "" {
		return NewValidationError("invoicePrefix", nil, "invoice prefix is required")
	}
	if s.QuotePrefix == "" {
		return NewValidationError("quotePrefix", nil, "quote prefix is required")
	}
	if s.PaymentTermsDays < 0 {
		return NewValidationError("paymentTermsDays", s.PaymentTermsDays, "payment terms cannot be negative")
	}
	if s.QuoteValidityDays < 0 {
		return NewValidationError("quoteValidityDays", s.QuoteValidityDays, "quote validity cannot be negative")
	}
	if s.ContactEmail != "" && !validEmail(s.ContactEmail) {
		return NewValidationError("contactEmail", s.ContactEmail, "invalid email")
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

// validEmail accepts a bare address, not a display-name form.
func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}
