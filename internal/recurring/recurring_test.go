package recurring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"invoicer/pkg/models"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestCalculateNextRunDate_MonthEndClamp(t *testing.T) {
	tests := []struct {
		name     string
		schedule models.RecurringSchedule
		from     string
		want     string
	}{
		{"leap year", models.RecurringSchedule{Frequency: models.FrequencyMonthly}, "2024-01-31", "2024-02-29"},
		{"non leap year", models.RecurringSchedule{Frequency: models.FrequencyMonthly}, "2023-01-31", "2023-02-28"},
		{"30 day month", models.RecurringSchedule{Frequency: models.FrequencyMonthly}, "2024-03-31", "2024-04-30"},
		{"quarterly", models.RecurringSchedule{Frequency: models.FrequencyQuarterly}, "2024-11-30", "2025-02-28"},
		{"yearly from leap day", models.RecurringSchedule{Frequency: models.FrequencyYearly}, "2024-02-29", "2025-02-28"},
		{"custom months", models.RecurringSchedule{Frequency: models.FrequencyCustom, IntervalMonths: 2}, "2024-12-31", "2025-02-28"},
		{"weekly", models.RecurringSchedule{Frequency: models.FrequencyWeekly}, "2024-12-28", "2025-01-04"},
		{"fortnightly", models.RecurringSchedule{Frequency: models.FrequencyFortnightly}, "2024-02-20", "2024-03-05"},
		{"custom days", models.RecurringSchedule{Frequency: models.FrequencyCustom, IntervalDays: 10}, "2024-01-25", "2024-02-04"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateNextRunDate(&tt.schedule, day(tt.from))
			require.NoError(t, err)
			assert.Equal(t, day(tt.want), got)
		})
	}
}

func TestCalculateNextRunDate_InvalidRules(t *testing.T) {
	_, err := CalculateNextRunDate(&models.RecurringSchedule{Frequency: models.FrequencyCustom}, day("2024-01-01"))
	assert.ErrorIs(t, err, ErrInvalidRule)

	_, err = CalculateNextRunDate(&models.RecurringSchedule{Frequency: models.FrequencyCustom, IntervalDays: -3}, day("2024-01-01"))
	assert.ErrorIs(t, err, ErrInvalidRule)

	_, err = CalculateNextRunDate(&models.RecurringSchedule{Frequency: "hourly"}, day("2024-01-01"))
	assert.Error(t, err)
}

func TestAdvanceSchedule_SkipsMissedOccurrences(t *testing.T) {
	s := &models.RecurringSchedule{Frequency: models.FrequencyMonthly}
	now := day("2024-06-10")

	next := AdvanceSchedule(s, day("2024-01-15"), now)
	assert.Equal(t, day("2024-06-15"), next)
}

func TestAdvanceSchedule_FromFutureRunDate(t *testing.T) {
	s := &models.RecurringSchedule{Frequency: models.FrequencyWeekly}
	next := AdvanceSchedule(s, day("2024-07-01"), day("2024-06-01"))
	assert.Equal(t, day("2024-07-08"), next)
}

func TestAdvanceSchedule_AlwaysStrictlyAfterReference(t *testing.T) {
	now := day("2030-03-15").Add(9 * time.Hour)
	runDates := []time.Time{
		day("1990-01-31"), day("2020-02-29"), day("2030-03-15"), now, day("2031-01-01"),
	}
	schedules := []models.RecurringSchedule{
		{Frequency: models.FrequencyWeekly},
		{Frequency: models.FrequencyFortnightly},
		{Frequency: models.FrequencyMonthly},
		{Frequency: models.FrequencyQuarterly},
		{Frequency: models.FrequencyYearly},
		{Frequency: models.FrequencyCustom, IntervalDays: 1},
		{Frequency: models.FrequencyCustom, IntervalDays: 0},
		{Frequency: models.FrequencyCustom, IntervalDays: -5},
		{Frequency: "bogus"},
	}

	for _, s := range schedules {
		for _, rd := range runDates {
			next := AdvanceSchedule(&s, rd, now)
			assert.True(t, next.After(now), "frequency %s from %s gave %s", s.Frequency, rd, next)
			assert.True(t, next.After(rd), "frequency %s from %s gave %s", s.Frequency, rd, next)
		}
	}
}

func TestNeedsReminder(t *testing.T) {
	next := day("2024-05-20")
	sent := func(s string) *time.Time {
		v := day(s)
		return &v
	}

	tests := []struct {
		name         string
		lead         int
		lastReminder *time.Time
		ref          string
		want         bool
	}{
		{"before window", 3, nil, "2024-05-16", false},
		{"window start", 3, nil, "2024-05-17", true},
		{"inside window", 3, nil, "2024-05-19", true},
		{"already reminded this cycle", 3, sent("2024-05-18"), "2024-05-19", false},
		{"reminded last cycle", 3, sent("2024-04-18"), "2024-05-19", true},
		{"overdue and never reminded", 3, nil, "2024-05-25", true},
		{"zero lead on the day", 0, nil, "2024-05-20", true},
		{"negative lead disables", -1, nil, "2024-05-20", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &models.RecurringSchedule{NextRunDate: next, ReminderLeadDays: tt.lead, LastReminderAt: tt.lastReminder}
			assert.Equal(t, tt.want, NeedsReminder(s, day(tt.ref)))
		})
	}
}

func TestNeedsReminder_FiresAgainAfterAdvance(t *testing.T) {
	s := &models.RecurringSchedule{
		Frequency:        models.FrequencyMonthly,
		NextRunDate:      day("2024-05-20"),
		ReminderLeadDays: 5,
	}
	ref := day("2024-05-17")
	require.True(t, NeedsReminder(s, ref))

	s.LastReminderAt = &ref
	assert.False(t, NeedsReminder(s, ref))

	s.NextRunDate = AdvanceSchedule(s, s.NextRunDate, day("2024-05-20"))
	assert.Equal(t, day("2024-06-20"), s.NextRunDate)
	assert.True(t, NeedsReminder(s, day("2024-06-16")))
}

func TestDaysUntilNextRunAndOverdue(t *testing.T) {
	s := &models.RecurringSchedule{NextRunDate: day("2024-03-01")}

	days, ok := DaysUntilNextRun(s, day("2024-02-27").Add(23*time.Hour))
	require.True(t, ok)
	assert.Equal(t, 3, days)

	overdue, ok := IsOverdue(s, day("2024-03-02"))
	require.True(t, ok)
	assert.True(t, overdue)

	overdue, ok = IsOverdue(s, day("2024-03-01").Add(20*time.Hour))
	require.True(t, ok)
	assert.False(t, overdue)

	_, ok = DaysUntilNextRun(&models.RecurringSchedule{}, day("2024-03-01"))
	assert.False(t, ok)
	_, ok = IsOverdue(&models.RecurringSchedule{}, day("2024-03-01"))
	assert.False(t, ok)
}
