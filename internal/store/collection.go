package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// LoadCollection decodes the JSON array stored under key. An absent key is
// an empty collection.
func LoadCollection[T any](ctx context.Context, s Store, key Key) ([]T, error) {
	raw, err := s.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, newStorageError("load", key, fmt.Errorf("decode collection: %w", err))
	}
	return items, nil
}

// SaveCollection encodes items as a JSON array. An empty collection is
// stored as an absent key, so "never written" and "emptied" look the same.
func SaveCollection[T any](ctx context.Context, s Store, key Key, items []T) error {
	if len(items) == 0 {
		return s.Remove(ctx, key)
	}

	raw, err := json.Marshal(items)
	if err != nil {
		return newStorageError("save", key, fmt.Errorf("encode collection: %w", err))
	}
	return s.Save(ctx, key, raw)
}

// LoadObject decodes a singleton document. ok is false when the key is absent.
func LoadObject[T any](ctx context.Context, s Store, key Key) (value T, ok bool, err error) {
	raw, err := s.Load(ctx, key)
	if err != nil || len(raw) == 0 {
		return value, false, err
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return value, false, newStorageError("load", key, fmt.Errorf("decode object: %w", err))
	}
	return value, true, nil
}

// SaveObject encodes a singleton document.
func SaveObject[T any](ctx context.Context, s Store, key Key, value T) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return newStorageError("save", key, fmt.Errorf("encode object: %w", err))
	}
	return s.Save(ctx, key, raw)
}
