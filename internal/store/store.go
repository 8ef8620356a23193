// Package store is the key-addressed record store the ledger persists into.
//
// A store holds one JSON document per collection key. Callers load the
// whole collection, mutate it in memory and save it back; there is no
// per-record access and no optimistic concurrency token. Serializing
// writers is the caller's job (see ledger.Ledger).
package store

import (
	"context"
	"errors"
	"fmt"
)

// Key names a collection.
type Key string

const (
	KeyClients   Key = "clients"
	KeyInvoices  Key = "invoices"
	KeyQuotes    Key = "quotes"
	KeyServices  Key = "services"
	KeyPayments  Key = "payments"
	KeySchedules Key = "schedules"
	KeySettings  Key = "settings"
	KeySequences Key = "sequences"
)

// AllKeys lists every collection in a stable order.
var AllKeys = []Key{
	KeyClients, KeyInvoices, KeyQuotes, KeyServices,
	KeyPayments, KeySchedules, KeySettings, KeySequences,
}

// Store persists raw JSON documents by key.
type Store interface {
	// Load returns the stored bytes, or nil with no error when the key is absent.
	Load(ctx context.Context, key Key) ([]byte, error)

	// Save replaces the document stored under key.
	Save(ctx context.Context, key Key, data []byte) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key Key) error
}

var (
	// ErrUnavailable is returned when the underlying medium cannot be reached.
	ErrUnavailable = errors.New("record store unavailable")

	// ErrUnknownDriver is returned by Open for an unsupported driver name.
	ErrUnknownDriver = errors.New("unknown store driver")
)

// StorageError wraps a failed store operation.
type StorageError struct {
	// Op is the store operation that failed ("load", "save", "remove").
	Op string

	// Key is the collection involved.
	Key Key

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("store: %s %q failed: %v", e.Op, e.Key, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is makes every StorageError match ErrUnavailable.
func (e *StorageError) Is(target error) bool {
	return target == ErrUnavailable
}

func newStorageError(op string, key Key, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Key: key, Err: err}
}
