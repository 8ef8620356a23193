// Package backup exports every ledger collection into one versioned JSON
// document and restores such a document all-or-nothing.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"invoicer/internal/logger"
	"invoicer/internal/store"
	"invoicer/pkg/models"
)

// CurrentSchemaVersion is the newest payload version this build reads and
// the version it writes. Version 1 had no schedules.
const CurrentSchemaVersion = 2

// Data holds every collection of a snapshot.
type Data struct {
	Clients   []models.Client            `json:"clients"`
	Invoices  []models.Invoice           `json:"invoices"`
	Quotes    []models.Quote             `json:"quotes"`
	Services  []models.Service           `json:"services"`
	Payments  []models.Payment           `json:"payments"`
	Schedules []models.RecurringSchedule `json:"schedules"`
	Settings  *models.Settings           `json:"settings,omitempty"`
	Sequences *models.Sequences          `json:"sequences,omitempty"`
}

// Snapshot is the backup file body.
type Snapshot struct {
	SchemaVersion int       `json:"schemaVersion"`
	ExportedAt    time.Time `json:"exportedAt"`
	Data          Data      `json:"data"`
}

// Keys returns the store keys a restore of s writes, in write order.
func (s *Snapshot) Keys() []store.Key {
	keys := make([]store.Key, 0, len(store.AllKeys))
	for _, k := range store.AllKeys {
		if k == store.KeySchedules && s.SchemaVersion < 2 {
			continue
		}
		keys = append(keys, k)
	}
	return keys
}

// Counts summarizes a snapshot for logs and CLI output.
func (s *Snapshot) Counts() map[string]int {
	return map[string]int{
		string(store.KeyClients):   len(s.Data.Clients),
		string(store.KeyInvoices):  len(s.Data.Invoices),
		string(store.KeyQuotes):    len(s.Data.Quotes),
		string(store.KeyServices):  len(s.Data.Services),
		string(store.KeyPayments):  len(s.Data.Payments),
		string(store.KeySchedules): len(s.Data.Schedules),
	}
}

// Codec moves snapshots in and out of a record store.
type Codec struct {
	store store.Store
	now   func() time.Time
	log   zerolog.Logger
}

// NewCodec returns a codec over s.
func NewCodec(s store.Store) *Codec {
	return &Codec{
		store: s,
		now:   time.Now,
		log:   logger.WithComponent("backup"),
	}
}

// WithClock replaces the export timestamp source.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	c.now = now
	return c
}

// ExportAll reads every collection into a snapshot. Records are decoded
// into their typed models, so unknown fields are dropped.
func (c *Codec) ExportAll(ctx context.Context) (*Snapshot, error) {
	const op = "backup.ExportAll"

	snap := &Snapshot{
		SchemaVersion: CurrentSchemaVersion,
		ExportedAt:    c.now().UTC(),
	}
	d := &snap.Data

	var err error
	if d.Clients, err = store.LoadCollection[models.Client](ctx, c.store, store.KeyClients); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if d.Invoices, err = store.LoadCollection[models.Invoice](ctx, c.store, store.KeyInvoices); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if d.Quotes, err = store.LoadCollection[models.Quote](ctx, c.store, store.KeyQuotes); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if d.Services, err = store.LoadCollection[models.Service](ctx, c.store, store.KeyServices); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if d.Payments, err = store.LoadCollection[models.Payment](ctx, c.store, store.KeyPayments); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if d.Schedules, err = store.LoadCollection[models.RecurringSchedule](ctx, c.store, store.KeySchedules); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	settings, ok, err := store.LoadObject[models.Settings](ctx, c.store, store.KeySettings)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if ok {
		d.Settings = &settings
	}
	seq, ok, err := store.LoadObject[models.Sequences](ctx, c.store, store.KeySequences)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if ok {
		d.Sequences = &seq
	}

	c.log.Info().Interface("counts", snap.Counts()).Msg("Exported snapshot")
	return snap, nil
}

// MarshalSnapshot renders the backup file body: indented UTF-8 JSON with
// a trailing newline.
func MarshalSnapshot(s *Snapshot) ([]byte, error) {
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("backup: encode snapshot: %w", err)
	}
	return append(raw, '\n'), nil
}

// ParseBackupPayload decodes and checks a backup file body. Every failure
// is a *FormatError.
func ParseBackupPayload(raw []byte) (*Snapshot, error) {
	var envelope struct {
		SchemaVersion *int            `json:"schemaVersion"`
		ExportedAt    time.Time       `json:"exportedAt"`
		Data          json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, formatError("malformed JSON", err)
	}
	if envelope.SchemaVersion == nil {
		return nil, formatError("missing schemaVersion", nil)
	}
	version := *envelope.SchemaVersion
	if version < 1 {
		return nil, formatError(fmt.Sprintf("invalid schemaVersion %d", version), nil)
	}
	if version > CurrentSchemaVersion {
		return nil, formatError(fmt.Sprintf("unsupported schemaVersion %d (newest supported is %d)", version, CurrentSchemaVersion), nil)
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil, formatError("missing data", nil)
	}

	snap := &Snapshot{SchemaVersion: version, ExportedAt: envelope.ExportedAt}
	if err := json.Unmarshal(envelope.Data, &snap.Data); err != nil {
		return nil, formatError("malformed data", err)
	}
	if version < 2 {
		snap.Data.Schedules = nil
	}

	if err := checkShape(&snap.Data); err != nil {
		return nil, err
	}
	return snap, nil
}

// RestoreAll replaces the store contents with the snapshot. The current
// value of every affected key is kept in memory first; if any write fails,
// every key already written, including the failed one, is put back and the
// write error is returned.
// A version 1 snapshot leaves schedules untouched.
func (c *Codec) RestoreAll(ctx context.Context, snap *Snapshot) error {
	const op = "backup.RestoreAll"

	if err := checkShape(&snap.Data); err != nil {
		return err
	}

	keys := snap.Keys()
	encoded := make(map[store.Key][]byte, len(keys))
	for _, k := range keys {
		raw, err := encodeKey(&snap.Data, k)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		encoded[k] = raw
	}

	previous := make(map[store.Key][]byte, len(keys))
	for _, k := range keys {
		raw, err := c.store.Load(ctx, k)
		if err != nil {
			return fmt.Errorf("%s: failed to read current %s: %w", op, k, err)
		}
		previous[k] = raw
	}

	for i, k := range keys {
		if err := writeKey(ctx, c.store, k, encoded[k]); err != nil {
			c.log.Error().Err(err).Str("key", string(k)).Msg("Restore write failed, rolling back")
			rerr := &RestoreError{Key: string(k), Err: err}
			rerr.RollbackErr = c.rollback(ctx, keys[:i+1], previous)
			return rerr
		}
	}

	c.log.Info().
		Int("schema_version", snap.SchemaVersion).
		Interface("counts", snap.Counts()).
		Msg("Restored snapshot")
	return nil
}

func (c *Codec) rollback(ctx context.Context, written []store.Key, previous map[store.Key][]byte) error {
	var firstErr error
	for _, k := range written {
		if err := writeKey(ctx, c.store, k, previous[k]); err != nil {
			c.log.Error().Err(err).Str("key", string(k)).Msg("Rollback write failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("rollback %s: %w", k, err)
			}
		}
	}
	return firstErr
}

// encodeKey renders one key the way the ledger would have saved it: nil
// for an empty collection or absent object.
func encodeKey(d *Data, k store.Key) ([]byte, error) {
	switch k {
	case store.KeyClients:
		return encodeCollection(d.Clients)
	case store.KeyInvoices:
		return encodeCollection(d.Invoices)
	case store.KeyQuotes:
		return encodeCollection(d.Quotes)
	case store.KeyServices:
		return encodeCollection(d.Services)
	case store.KeyPayments:
		return encodeCollection(d.Payments)
	case store.KeySchedules:
		return encodeCollection(d.Schedules)
	case store.KeySettings:
		if d.Settings == nil {
			return nil, nil
		}
		return json.Marshal(d.Settings)
	case store.KeySequences:
		if d.Sequences == nil {
			return nil, nil
		}
		return json.Marshal(d.Sequences)
	default:
		return nil, fmt.Errorf("unknown key %q", k)
	}
}

func encodeCollection[T any](items []T) ([]byte, error) {
	if len(items) == 0 {
		return nil, nil
	}
	return json.Marshal(items)
}

func writeKey(ctx context.Context, s store.Store, k store.Key, raw []byte) error {
	if raw == nil {
		return s.Remove(ctx, k)
	}
	return s.Save(ctx, k, raw)
}
