package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Cost float64 `json:"cost"`
}

func openStores(t *testing.T) map[string]Store {
	t.Helper()

	file, err := NewFile(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)

	sqlStore, err := OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlStore.Close() })

	return map[string]Store{
		"memory": NewMemory(),
		"file":   file,
		"sqlite": sqlStore,
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()

	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			raw, err := s.Load(ctx, KeyClients)
			require.NoError(t, err)
			assert.Nil(t, raw, "absent key loads as nil")

			require.NoError(t, s.Save(ctx, KeyClients, []byte(`[{"id":"a"}]`)))
			raw, err = s.Load(ctx, KeyClients)
			require.NoError(t, err)
			assert.JSONEq(t, `[{"id":"a"}]`, string(raw))

			require.NoError(t, s.Save(ctx, KeyClients, []byte(`[{"id":"b"}]`)))
			raw, err = s.Load(ctx, KeyClients)
			require.NoError(t, err)
			assert.Equal(t, `[{"id":"b"}]`, string(raw))

			require.NoError(t, s.Remove(ctx, KeyClients))
			raw, err = s.Load(ctx, KeyClients)
			require.NoError(t, err)
			assert.Nil(t, raw)

			assert.NoError(t, s.Remove(ctx, KeyClients), "removing an absent key is fine")
		})
	}
}

func TestCollectionHelpers(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	items, err := LoadCollection[record](ctx, s, KeyServices)
	require.NoError(t, err)
	assert.Empty(t, items)

	in := []record{{ID: "1", Name: "Audit", Cost: 99.5}, {ID: "2", Name: "Setup", Cost: 10}}
	require.NoError(t, SaveCollection(ctx, s, KeyServices, in))

	out, err := LoadCollection[record](ctx, s, KeyServices)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	require.NoError(t, SaveCollection[record](ctx, s, KeyServices, nil))
	raw, err := s.Load(ctx, KeyServices)
	require.NoError(t, err)
	assert.Nil(t, raw, "empty collections are stored as absent keys")
}

func TestLoadCollection_CorruptDocument(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Save(ctx, KeyInvoices, []byte(`{not json`)))

	_, err := LoadCollection[record](ctx, s, KeyInvoices)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))

	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, KeyInvoices, se.Key)
}

func TestObjectHelpers(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	_, ok, err := LoadObject[record](ctx, s, KeySettings)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, SaveObject(ctx, s, KeySettings, record{ID: "x"}))
	got, ok, err := LoadObject[record](ctx, s, KeySettings)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "x", got.ID)
}

func TestFile_WritesOneFilePerKey(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFile(dir)
	require.NoError(t, err)

	require.NoError(t, f.Save(context.Background(), KeyPayments, []byte(`[]`)))
	_, err = os.Stat(filepath.Join(dir, "payments.json"))
	assert.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	data := []byte(`[1]`)
	require.NoError(t, m.Save(ctx, KeyQuotes, data))
	data[1] = '9'

	raw, err := m.Load(ctx, KeyQuotes)
	require.NoError(t, err)
	assert.Equal(t, `[1]`, string(raw))
}

func TestOpen(t *testing.T) {
	s, err := Open(Options{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	s, err = Open(Options{Driver: "", DataDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &File{}, s)

	_, err = Open(Options{Driver: "postgres"})
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = Open(Options{Driver: "redis"})
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestNormalizeDSN(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"postgres://u:p@localhost:5432/db", "postgres://u:p@localhost:5432/db"},
		{`"host=localhost   user=app dbname=ledger"`, "host=localhost user=app dbname=ledger sslmode=disable"},
		{"host=db user=app dbname=ledger sslmode=require", "host=db user=app dbname=ledger sslmode=require"},
		{"not a dsn", "not a dsn"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeDSN(tt.in))
	}
}
