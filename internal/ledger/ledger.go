// Package ledger is the invoicing engine: it normalizes raw document input,
// owns invoice and quote lifecycles, applies payments, manages catalogs,
// settings and recurring schedules, and persists everything through a
// store.Store.
//
// A Ledger serializes all of its operations with a single mutex. The store
// is accessed load-modify-save per collection, so this is what keeps two
// goroutines sharing one Ledger from losing each other's writes. Separate
// processes writing the same store are not coordinated.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"invoicer/internal/logger"
	"invoicer/internal/store"
	"invoicer/pkg/models"
)

// Ledger is the engine facade. Construct it with New.
type Ledger struct {
	mu    sync.Mutex
	store store.Store
	now   func() time.Time
	newID func() string
	log   zerolog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDGenerator replaces the uuid generator.
func WithIDGenerator(fn func() string) Option {
	return func(l *Ledger) { l.newID = fn }
}

// WithLogger replaces the component logger.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

// New returns a Ledger persisting into s.
func New(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store: s,
		now:   time.Now,
		newID: uuid.NewString,
		log:   logger.WithComponent("ledger"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Store exposes the underlying record store (used by the backup codec).
func (l *Ledger) Store() store.Store {
	return l.store
}

// Now returns the ledger's current time in UTC.
func (l *Ledger) Now() time.Time {
	return l.now().UTC()
}

func (l *Ledger) loadClients(ctx context.Context) ([]models.Client, error) {
	return store.LoadCollection[models.Client](ctx, l.store, store.KeyClients)
}

func (l *Ledger) loadServices(ctx context.Context) ([]models.Service, error) {
	return store.LoadCollection[models.Service](ctx, l.store, store.KeyServices)
}

func (l *Ledger) loadInvoices(ctx context.Context) ([]models.Invoice, error) {
	return store.LoadCollection[models.Invoice](ctx, l.store, store.KeyInvoices)
}

func (l *Ledger) loadQuotes(ctx context.Context) ([]models.Quote, error) {
	return store.LoadCollection[models.Quote](ctx, l.store, store.KeyQuotes)
}

func (l *Ledger) loadPayments(ctx context.Context) ([]models.Payment, error) {
	return store.LoadCollection[models.Payment](ctx, l.store, store.KeyPayments)
}

func (l *Ledger) loadSchedules(ctx context.Context) ([]models.RecurringSchedule, error) {
	return store.LoadCollection[models.RecurringSchedule](ctx, l.store, store.KeySchedules)
}

// save wraps store failures with the calling operation.
func (l *Ledger) save(ctx context.Context, op string, key store.Key, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		l.log.Error().Err(err).Str("op", op).Str("key", string(key)).Msg("Failed to persist collection")
		return fmt.Errorf("%s: failed to save %s: %w", op, key, err)
	}
	return nil
}

func (l *Ledger) saveClients(ctx context.Context, op string, items []models.Client) error {
	return l.save(ctx, op, store.KeyClients, func(ctx context.Context) error {
		return store.SaveCollection(ctx, l.store, store.KeyClients, items)
	})
}

func (l *Ledger) saveServices(ctx context.Context, op string, items []models.Service) error {
	return l.save(ctx, op, store.KeyServices, func(ctx context.Context) error {
		return store.SaveCollection(ctx, l.store, store.KeyServices, items)
	})
}

func (l *Ledger) saveInvoices(ctx context.Context, op string, items []models.Invoice) error {
	return l.save(ctx, op, store.KeyInvoices, func(ctx context.Context) error {
		return store.SaveCollection(ctx, l.store, store.KeyInvoices, items)
	})
}

func (l *Ledger) saveQuotes(ctx context.Context, op string, items []models.Quote) error {
	return l.save(ctx, op, store.KeyQuotes, func(ctx context.Context) error {
		return store.SaveCollection(ctx, l.store, store.KeyQuotes, items)
	})
}

func (l *Ledger) savePayments(ctx context.Context, op string, items []models.Payment) error {
	return l.save(ctx, op, store.KeyPayments, func(ctx context.Context) error {
		return store.SaveCollection(ctx, l.store, store.KeyPayments, items)
	})
}

func (l *Ledger) saveSchedules(ctx context.Context, op string, items []models.RecurringSchedule) error {
	return l.save(ctx, op, store.KeySchedules, func(ctx context.Context) error {
		return store.SaveCollection(ctx, l.store, store.KeySchedules, items)
	})
}

func findClient(clients []models.Client, id string) (int, bool) {
	for i := range clients {
		if clients[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

func findInvoice(invoices []models.Invoice, id string) (int, bool) {
	for i := range invoices {
		if invoices[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

func findQuote(quotes []models.Quote, id string) (int, bool) {
	for i := range quotes {
		if quotes[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

func findService(services []models.Service, id string) (int, bool) {
	for i := range services {
		if services[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

func findSchedule(schedules []models.RecurringSchedule, id string) (int, bool) {
	for i := range schedules {
		if schedules[i].ID == id {
			return i, true
		}
	}
	return -1, false
}
