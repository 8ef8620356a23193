package backup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"invoicer/internal/ledger"
	"invoicer/internal/store"
	"invoicer/pkg/models"
)

var exportTime = time.Date(2024, 6, 10, 9, 30, 0, 0, time.UTC)

func clock() time.Time { return exportTime }

func price(v float64) *float64 { return &v }

// populate fills s with one of everything through the ledger.
func populate(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()
	l := ledger.New(s, ledger.WithClock(clock))

	rate := 0.1
	_, err := l.UpdateSettings(ctx, ledger.SettingsPatch{GSTRate: &rate})
	require.NoError(t, err)

	c, err := l.CreateClient(ctx, ledger.ClientInput{Name: "Acme", Email: "billing@acme.test"})
	require.NoError(t, err)
	_, err = l.CreateService(ctx, ledger.ServiceInput{Name: "Consulting", UnitPrice: 150})
	require.NoError(t, err)

	inv, err := l.CreateInvoice(ctx, ledger.InvoiceInput{DocumentInput: ledger.DocumentInput{
		ClientID:  c.ID,
		LineItems: []ledger.LineItemInput{{Description: "Consulting", Quantity: 2, UnitPrice: price(150)}},
	}})
	require.NoError(t, err)
	_, err = l.RecordPayment(ctx, ledger.PaymentInput{InvoiceID: inv.ID, Amount: 100})
	require.NoError(t, err)

	_, err = l.CreateQuote(ctx, ledger.DocumentInput{
		ClientID:  c.ID,
		LineItems: []ledger.LineItemInput{{Description: "Design", Quantity: 1, UnitPrice: price(1.05)}},
	})
	require.NoError(t, err)
	_, err = l.CreateSchedule(ctx, ledger.ScheduleInput{
		ClientID:    c.ID,
		Frequency:   models.FrequencyMonthly,
		NextRunDate: "2024-01-31",
		LineItems:   []ledger.LineItemInput{{Description: "Retainer", Quantity: 1, UnitPrice: price(500)}},
	})
	require.NoError(t, err)
}

func dump(t *testing.T, s store.Store) map[store.Key][]byte {
	t.Helper()
	out := make(map[store.Key][]byte)
	for _, k := range store.AllKeys {
		raw, err := s.Load(context.Background(), k)
		require.NoError(t, err)
		out[k] = raw
	}
	return out
}

func TestExportRestore_RoundTripIsByteIdentical(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	populate(t, mem)
	before := dump(t, mem)

	codec := NewCodec(mem).WithClock(clock)
	snap, err := codec.ExportAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, snap.SchemaVersion)
	assert.Equal(t, exportTime, snap.ExportedAt)
	assert.Len(t, snap.Data.Invoices, 1)
	assert.Len(t, snap.Data.Schedules, 1)
	require.NotNil(t, snap.Data.Sequences)
	assert.Equal(t, int64(1), snap.Data.Sequences.Invoice)

	body, err := MarshalSnapshot(snap)
	require.NoError(t, err)

	// Change everything after the export.
	l := ledger.New(mem, ledger.WithClock(clock))
	clients, err := l.ListClients(ctx)
	require.NoError(t, err)
	require.NoError(t, l.DeleteClient(ctx, clients[0].ID))
	_, err = l.CreateClient(ctx, ledger.ClientInput{Name: "Someone Else"})
	require.NoError(t, err)
	require.NoError(t, mem.Remove(ctx, store.KeyPayments))

	parsed, err := ParseBackupPayload(body)
	require.NoError(t, err)
	require.NoError(t, codec.RestoreAll(ctx, parsed))

	assert.Equal(t, before, dump(t, mem))
}

func TestExportRestore_EmptyStore(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	codec := NewCodec(mem)

	snap, err := codec.ExportAll(ctx)
	require.NoError(t, err)
	body, err := MarshalSnapshot(snap)
	require.NoError(t, err)

	populate(t, mem)
	parsed, err := ParseBackupPayload(body)
	require.NoError(t, err)
	require.NoError(t, codec.RestoreAll(ctx, parsed))

	for k, raw := range dump(t, mem) {
		assert.Nil(t, raw, "%s cleared", k)
	}
}

// failingStore refuses the first write to failKey.
type failingStore struct {
	store.Store
	failKey store.Key
	failed  bool
}

func (f *failingStore) refuse(key store.Key) bool {
	if key != f.failKey || f.failed {
		return false
	}
	f.failed = true
	return true
}

func (f *failingStore) Save(ctx context.Context, key store.Key, data []byte) error {
	if f.refuse(key) {
		return errors.New("write refused")
	}
	return f.Store.Save(ctx, key, data)
}

func (f *failingStore) Remove(ctx context.Context, key store.Key) error {
	if f.refuse(key) {
		return errors.New("write refused")
	}
	return f.Store.Remove(ctx, key)
}

func TestRestoreAll_RollsBackWhenLastWriteFails(t *testing.T) {
	ctx := context.Background()

	source := store.NewMemory()
	populate(t, source)
	snap, err := NewCodec(source).ExportAll(ctx)
	require.NoError(t, err)

	target := store.NewMemory()
	l := ledger.New(target, ledger.WithClock(clock))
	_, err = l.CreateClient(ctx, ledger.ClientInput{Name: "Existing"})
	require.NoError(t, err)
	before := dump(t, target)

	keys := snap.Keys()
	fs := &failingStore{Store: target, failKey: keys[len(keys)-1]}
	err = NewCodec(fs).RestoreAll(ctx, snap)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRestoreFailed)

	var rerr *RestoreError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, string(store.KeySequences), rerr.Key)
	assert.NoError(t, rerr.RollbackErr)

	assert.Equal(t, before, dump(t, target))
}

// tornStore writes the new value for failKey once and then reports failure.
type tornStore struct {
	store.Store
	failKey store.Key
	torn    bool
}

func (f *tornStore) Save(ctx context.Context, key store.Key, data []byte) error {
	if key == f.failKey && !f.torn {
		f.torn = true
		if err := f.Store.Save(ctx, key, data); err != nil {
			return err
		}
		return errors.New("connection reset after write")
	}
	return f.Store.Save(ctx, key, data)
}

func TestRestoreAll_RollsBackPartiallyWrittenKey(t *testing.T) {
	ctx := context.Background()

	source := store.NewMemory()
	populate(t, source)
	snap, err := NewCodec(source).ExportAll(ctx)
	require.NoError(t, err)

	target := store.NewMemory()
	l := ledger.New(target, ledger.WithClock(clock))
	_, err = l.CreateClient(ctx, ledger.ClientInput{Name: "Existing"})
	require.NoError(t, err)
	before := dump(t, target)

	ts := &tornStore{Store: target, failKey: store.KeyInvoices}
	err = NewCodec(ts).RestoreAll(ctx, snap)
	require.ErrorIs(t, err, ErrRestoreFailed)

	var rerr *RestoreError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, string(store.KeyInvoices), rerr.Key)
	assert.NoError(t, rerr.RollbackErr)

	assert.Equal(t, before, dump(t, target))
}

func TestRestoreAll_VersionOneLeavesSchedulesAlone(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	populate(t, mem)
	schedules, err := mem.Load(ctx, store.KeySchedules)
	require.NoError(t, err)
	require.NotNil(t, schedules)

	payload := []byte(`{
		"schemaVersion": 1,
		"exportedAt": "2023-01-01T00:00:00Z",
		"data": {
			"clients": [{"id": "c1", "name": "Legacy"}],
			"invoices": [], "quotes": [], "services": [], "payments": [],
			"schedules": [{"id": "ignored"}]
		}
	}`)
	snap, err := ParseBackupPayload(payload)
	require.NoError(t, err)
	assert.Empty(t, snap.Data.Schedules)
	assert.NotContains(t, snap.Keys(), store.KeySchedules)

	require.NoError(t, NewCodec(mem).RestoreAll(ctx, snap))

	after, err := mem.Load(ctx, store.KeySchedules)
	require.NoError(t, err)
	assert.Equal(t, schedules, after)

	clients, err := store.LoadCollection[models.Client](ctx, mem, store.KeyClients)
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, "Legacy", clients[0].Name)
}

func TestParseBackupPayload_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		reason  string
	}{
		{"not json", `{"schemaVersion": 2,`, "malformed JSON"},
		{"array", `[]`, "malformed JSON"},
		{"no version", `{"data": {}}`, "missing schemaVersion"},
		{"future version", `{"schemaVersion": 3, "data": {}}`, "unsupported schemaVersion 3"},
		{"zero version", `{"schemaVersion": 0, "data": {}}`, "invalid schemaVersion"},
		{"no data", `{"schemaVersion": 2}`, "missing data"},
		{"null data", `{"schemaVersion": 2, "data": null}`, "missing data"},
		{"data wrong type", `{"schemaVersion": 2, "data": {"clients": {}}}`, "malformed data"},
		{"empty id", `{"schemaVersion": 2, "data": {"clients": [{"id": ""}]}}`, "clients[0]: empty id"},
		{"totals off", `{"schemaVersion": 2, "data": {"invoices": [{"id": "i", "subtotal": 100, "gstTotal": 10, "total": 100}]}}`, "does not match total"},
		{"line off", `{"schemaVersion": 2, "data": {"quotes": [{"id": "q", "subtotal": 1, "gstTotal": 0, "total": 1, "lineItems": [{"subtotal": 1, "gst": 0, "total": 2}]}]}}`, "line 0 does not add up"},
		{"negative payment", `{"schemaVersion": 2, "data": {"payments": [{"id": "p", "amount": -5}]}}`, "payments[0]: invalid amount"},
		{"overpaid", `{"schemaVersion": 2, "data": {"invoices": [{"id": "i", "subtotal": 10, "total": 10, "amountPaid": 20}]}}`, "amountPaid exceeds total"},
		{"gst rate", `{"schemaVersion": 2, "data": {"settings": {"gstRate": 2}}}`, "gstRate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBackupPayload([]byte(tt.payload))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrFormat)

			var ferr *FormatError
			require.ErrorAs(t, err, &ferr)
			assert.Contains(t, ferr.Reason, tt.reason)
		})
	}
}

func TestParseBackupPayload_ToleratesOneCent(t *testing.T) {
	snap, err := ParseBackupPayload([]byte(`{"schemaVersion": 2, "data": {
		"invoices": [{"id": "i", "subtotal": 10.00, "gstTotal": 1.00, "total": 11.01, "balanceDue": 11.01}]
	}}`))
	require.NoError(t, err)
	assert.Len(t, snap.Data.Invoices, 1)
}

func TestRestoreAll_RejectsBadShapeBeforeWriting(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	populate(t, mem)
	before := dump(t, mem)

	snap := &Snapshot{SchemaVersion: 2, Data: Data{Clients: []models.Client{{Name: "no id"}}}}
	err := NewCodec(mem).RestoreAll(ctx, snap)
	assert.ErrorIs(t, err, ErrFormat)
	assert.Equal(t, before, dump(t, mem))
}
