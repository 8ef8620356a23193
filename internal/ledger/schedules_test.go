package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"invoicer/internal/store"
	"invoicer/pkg/models"
)

func mustSchedule(t *testing.T, l *Ledger, clientID string, in ScheduleInput) *models.RecurringSchedule {
	t.Helper()
	in.ClientID = clientID
	if in.Frequency == "" {
		in.Frequency = models.FrequencyMonthly
	}
	if in.LineItems == nil {
		in.LineItems = []LineItemInput{line("Retainer", 1, 500, true)}
	}
	s, err := l.CreateSchedule(context.Background(), in)
	require.NoError(t, err)
	return s
}

func TestCreateSchedule(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	c := mustClient(t, l, "Acme")

	s := mustSchedule(t, l, c.ID, ScheduleInput{NextRunDate: "2024-07-01", ReminderLeadDays: 3})
	assert.True(t, s.Active)
	assert.Equal(t, "Acme", s.ClientName)
	assert.Equal(t, 14, s.PaymentTermsDays)
	assert.Equal(t, 550.0, s.Total)
	assert.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), s.NextRunDate)

	tests := []struct {
		name string
		in   ScheduleInput
		err  error
	}{
		{"unknown client", ScheduleInput{ClientID: "missing", Frequency: models.FrequencyWeekly, LineItems: []LineItemInput{line("x", 1, 1, false)}}, ErrNotFound},
		{"no client", ScheduleInput{Frequency: models.FrequencyWeekly, LineItems: []LineItemInput{line("x", 1, 1, false)}}, ErrValidation},
		{"bad frequency", ScheduleInput{ClientID: c.ID, Frequency: "hourly", LineItems: []LineItemInput{line("x", 1, 1, false)}}, ErrValidation},
		{"zero custom interval", ScheduleInput{ClientID: c.ID, Frequency: models.FrequencyCustom, LineItems: []LineItemInput{line("x", 1, 1, false)}}, ErrValidation},
		{"no lines", ScheduleInput{ClientID: c.ID, Frequency: models.FrequencyWeekly}, ErrValidation},
		{"negative lead", ScheduleInput{ClientID: c.ID, Frequency: models.FrequencyWeekly, ReminderLeadDays: -1, LineItems: []LineItemInput{line("x", 1, 1, false)}}, ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.CreateSchedule(ctx, tt.in)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	list, err := l.ListSchedules(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRunScheduleNow_MonthEnd(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	c := mustClient(t, l, "Acme")
	s := mustSchedule(t, l, c.ID, ScheduleInput{NextRunDate: "2024-01-31", IntervalMonths: 1})

	now := time.Date(2024, 1, 31, 8, 0, 0, 0, time.UTC)
	inv, updated, err := l.RunScheduleNow(ctx, s.ID, now)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), updated.NextRunDate)
	require.NotNil(t, updated.LastRunAt)
	assert.Equal(t, now, *updated.LastRunAt)

	assert.Equal(t, s.ID, inv.ScheduleID)
	assert.Equal(t, 550.0, inv.Total)
	assert.Equal(t, models.InvoiceUnpaid, inv.Status)
	assert.Equal(t, now, inv.IssueDate)
	assert.Equal(t, now.AddDate(0, 0, 14), inv.DueDate)

	stored, err := l.GetSchedule(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.NextRunDate, stored.NextRunDate)
}

func TestRunScheduleNow_CatchesUpWithoutBackfill(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	c := mustClient(t, l, "Acme")
	s := mustSchedule(t, l, c.ID, ScheduleInput{Frequency: models.FrequencyWeekly, NextRunDate: "2023-01-02"})

	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	_, updated, err := l.RunScheduleNow(ctx, s.ID, now)
	require.NoError(t, err)
	assert.True(t, updated.NextRunDate.After(now))
	assert.Equal(t, time.Monday, updated.NextRunDate.Weekday(), "stays on the schedule's weekday")

	invoices, err := l.ListInvoices(ctx, InvoiceFilter{})
	require.NoError(t, err)
	assert.Len(t, invoices, 1, "missed weeks are skipped, not billed")
}

func TestRunScheduleNow_PausedAndMissing(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	c := mustClient(t, l, "Acme")
	s := mustSchedule(t, l, c.ID, ScheduleInput{})

	paused, err := l.PauseSchedule(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, paused.Active)

	_, _, err = l.RunScheduleNow(ctx, s.ID, testNow)
	assert.ErrorIs(t, err, ErrValidation)

	resumed, err := l.ResumeSchedule(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, resumed.Active)

	_, _, err = l.RunScheduleNow(ctx, "missing", testNow)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRunScheduleNow_RollsBackInvoiceWhenScheduleSaveFails(t *testing.T) {
	fs := &failingStore{Store: store.NewMemory()}
	l := New(fs, WithClock(func() time.Time { return testNow }))
	ctx := context.Background()
	c := mustClient(t, l, "Acme")
	s := mustSchedule(t, l, c.ID, ScheduleInput{NextRunDate: "2024-06-01"})

	fs.failKey = store.KeySchedules
	_, _, err := l.RunScheduleNow(ctx, s.ID, testNow)
	require.Error(t, err)
	fs.failKey = ""

	invoices, err := l.ListInvoices(ctx, InvoiceFilter{})
	require.NoError(t, err)
	assert.Empty(t, invoices)

	stored, err := l.GetSchedule(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.NextRunDate, stored.NextRunDate)
}

func TestGenerateInvoice(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	c := mustClient(t, l, "Acme")
	terms := 7
	s := mustSchedule(t, l, c.ID, ScheduleInput{PaymentTermsDays: &terms, NextRunDate: "2024-07-01"})

	issue := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	inv, err := l.GenerateInvoice(ctx, s.ID, GenerateOptions{IssueDate: issue})
	require.NoError(t, err)
	assert.Equal(t, issue.AddDate(0, 0, 7), inv.DueDate)
	assert.Equal(t, s.ID, inv.ScheduleID)

	stored, err := l.GetSchedule(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.NextRunDate, stored.NextRunDate, "generation alone does not advance")
	assert.Nil(t, stored.LastRunAt)
}

func TestExecuteDueSchedules(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	acme := mustClient(t, l, "Acme")
	gone := mustClient(t, l, "Gone")

	due := mustSchedule(t, l, acme.ID, ScheduleInput{NextRunDate: "2024-06-01"})
	future := mustSchedule(t, l, acme.ID, ScheduleInput{NextRunDate: "2024-08-01"})
	paused := mustSchedule(t, l, acme.ID, ScheduleInput{NextRunDate: "2024-05-01"})
	broken := mustSchedule(t, l, gone.ID, ScheduleInput{NextRunDate: "2024-06-05"})
	_, err := l.PauseSchedule(ctx, paused.ID)
	require.NoError(t, err)
	require.NoError(t, l.DeleteClient(ctx, gone.ID))

	results, err := l.ExecuteDueSchedules(ctx, testNow)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), broken.ID)

	require.Len(t, results, 1)
	assert.Equal(t, due.ID, results[0].ScheduleID)
	assert.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), results[0].NextRunDate)

	for id, want := range map[string]string{future.ID: "2024-08-01", paused.ID: "2024-05-01", broken.ID: "2024-06-05"} {
		s, err := l.GetSchedule(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, s.NextRunDate.Format("2006-01-02"))
	}

	// Running again the same day finds nothing left to do.
	require.NoError(t, l.DeleteSchedule(ctx, broken.ID))
	results, err = l.ExecuteDueSchedules(ctx, testNow)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRemindersLifecycle(t *testing.T) {
	l, _, clock := newTestLedger(t)
	ctx := context.Background()
	c := mustClient(t, l, "Acme")
	s := mustSchedule(t, l, c.ID, ScheduleInput{NextRunDate: "2024-06-12", ReminderLeadDays: 3})
	mustSchedule(t, l, c.ID, ScheduleInput{NextRunDate: "2024-09-01", ReminderLeadDays: 3})

	due, err := l.DueReminders(ctx, testNow)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, s.ID, due[0].ID)

	_, err = l.MarkReminderSent(ctx, s.ID, time.Time{})
	require.NoError(t, err)

	due, err = l.DueReminders(ctx, testNow)
	require.NoError(t, err)
	assert.Empty(t, due)

	// After the run the window moves to the next cycle.
	runAt := time.Date(2024, 6, 12, 7, 0, 0, 0, time.UTC)
	clock.Set(runAt)
	_, updated, err := l.RunScheduleNow(ctx, s.ID, runAt)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 7, 12, 0, 0, 0, 0, time.UTC), updated.NextRunDate)

	due, err = l.DueReminders(ctx, time.Date(2024, 7, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestUpdateSchedule(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	c := mustClient(t, l, "Acme")
	s := mustSchedule(t, l, c.ID, ScheduleInput{})

	freq := models.FrequencyQuarterly
	next := "2024-09-30"
	updated, err := l.UpdateSchedule(ctx, s.ID, SchedulePatch{
		Frequency:   &freq,
		NextRunDate: &next,
		LineItems:   []LineItemInput{line("Retainer", 1, 900, false)},
	})
	require.NoError(t, err)
	assert.Equal(t, models.FrequencyQuarterly, updated.Frequency)
	assert.Equal(t, 900.0, updated.Total)

	bad := "someday"
	_, err = l.UpdateSchedule(ctx, s.ID, SchedulePatch{NextRunDate: &bad})
	assert.ErrorIs(t, err, ErrValidation)

	custom := models.FrequencyCustom
	_, err = l.UpdateSchedule(ctx, s.ID, SchedulePatch{Frequency: &custom})
	assert.ErrorIs(t, err, ErrValidation)

	require.NoError(t, l.DeleteSchedule(ctx, s.ID))
	_, err = l.GetSchedule(ctx, s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
