package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"invoicer/internal/logger"
)

// File stores each collection as <dir>/<key>.json. Writes go to a temp
// file that is renamed into place, so a crash never leaves half a file.
type File struct {
	dir string
	mu  sync.Mutex
	log zerolog.Logger
}

// NewFile creates dir if needed and verifies it is writable.
func NewFile(dir string) (*File, error) {
	const op = "NewFile"

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%s: failed to create data directory: %w", op, errors.Join(ErrUnavailable, err))
	}

	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return nil, fmt.Errorf("%s: data directory is not writable: %w", op, errors.Join(ErrUnavailable, err))
	}
	probe.Close()
	os.Remove(probe.Name())

	return &File{
		dir: dir,
		log: logger.WithComponent("store-file"),
	}, nil
}

func (f *File) path(key Key) string {
	return filepath.Join(f.dir, string(key)+".json")
}

func (f *File) Load(_ context.Context, key Key) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := os.ReadFile(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		f.log.Error().Err(err).Str("key", string(key)).Msg("Failed to read collection file")
		return nil, newStorageError("load", key, err)
	}
	return raw, nil
}

func (f *File) Save(_ context.Context, key Key, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(f.dir, "."+string(key)+"-*.tmp")
	if err != nil {
		return newStorageError("save", key, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return newStorageError("save", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return newStorageError("save", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return newStorageError("save", key, err)
	}
	if err := os.Rename(tmpName, f.path(key)); err != nil {
		os.Remove(tmpName)
		f.log.Error().Err(err).Str("key", string(key)).Msg("Failed to replace collection file")
		return newStorageError("save", key, err)
	}

	f.log.Debug().Str("key", string(key)).Int("bytes", len(data)).Msg("Collection saved")
	return nil
}

func (f *File) Remove(_ context.Context, key Key) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return newStorageError("remove", key, err)
	}
	return nil
}
