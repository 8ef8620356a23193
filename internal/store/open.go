package store

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Options selects and configures a store implementation.
type Options struct {
	Driver  string // file, sqlite, postgres, memory
	DataDir string // file store directory, default SQLite location
	DSN     string // SQLite path or PostgreSQL DSN
}

// Open builds the store named by opts.Driver.
func Open(opts Options) (Store, error) {
	switch strings.ToLower(opts.Driver) {
	case "", "file":
		return NewFile(opts.DataDir)
	case "sqlite":
		path := opts.DSN
		if path == "" {
			path = filepath.Join(opts.DataDir, "invoicer.db")
		}
		return OpenSQLite(path)
	case "postgres", "postgresql":
		if opts.DSN == "" {
			return nil, fmt.Errorf("postgres store requires DATABASE_DSN: %w", ErrUnavailable)
		}
		return OpenPostgres(opts.DSN)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
	}
}
