// Package recurring implements the frequency rules of recurring billing
// schedules: next-occurrence arithmetic, catch-up after dormancy, reminder
// windows and overdue checks. It has no storage and no clock of its own;
// every function takes the reference instant explicitly.
package recurring

import (
	"errors"
	"fmt"
	"time"

	"invoicer/pkg/models"
)

// MaxAdvanceIterations bounds AdvanceSchedule so a broken rule cannot loop
// forever. At one application per day it still covers well over two years
// of dormancy for the shortest built-in frequency.
const MaxAdvanceIterations = 1000

// ErrInvalidRule is returned for a frequency rule that does not move time forward.
var ErrInvalidRule = errors.New("frequency rule must advance by at least one day or month")

// Rule is a resolved frequency: exactly one of Days or Months is positive
// for a valid rule.
type Rule struct {
	Days   int
	Months int
}

// RuleFor resolves a schedule's frequency into a Rule.
func RuleFor(s *models.RecurringSchedule) (Rule, error) {
	var r Rule
	switch s.Frequency {
	case models.FrequencyWeekly:
		r = Rule{Days: 7}
	case models.FrequencyFortnightly:
		r = Rule{Days: 14}
	case models.FrequencyMonthly:
		r = Rule{Months: 1}
	case models.FrequencyQuarterly:
		r = Rule{Months: 3}
	case models.FrequencyYearly:
		r = Rule{Months: 12}
	case models.FrequencyCustom:
		if s.IntervalMonths > 0 {
			r = Rule{Months: s.IntervalMonths}
		} else {
			r = Rule{Days: s.IntervalDays}
		}
	default:
		return Rule{}, fmt.Errorf("unknown frequency %q", s.Frequency)
	}
	if r.Days <= 0 && r.Months <= 0 {
		return r, ErrInvalidRule
	}
	return r, nil
}

// Apply moves t forward by one application of the rule.
func (r Rule) Apply(t time.Time) time.Time {
	if r.Months > 0 {
		return AddMonthsClamped(t, r.Months)
	}
	return t.AddDate(0, 0, r.Days)
}

// AddMonthsClamped adds months to t, clamping the day to the last day of
// the target month: Jan 31 + 1 month is Feb 29 in a leap year, Feb 28
// otherwise. The time of day and location are preserved.
func AddMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	hour, minute, sec := t.Clock()

	first := time.Date(year, month+time.Month(months), 1, hour, minute, sec, t.Nanosecond(), t.Location())
	last := DaysIn(first.Year(), first.Month())
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, hour, minute, sec, t.Nanosecond(), t.Location())
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// CalculateNextRunDate applies the schedule's rule once to ref.
func CalculateNextRunDate(s *models.RecurringSchedule, ref time.Time) (time.Time, error) {
	r, err := RuleFor(s)
	if err != nil {
		return time.Time{}, err
	}
	return r.Apply(ref), nil
}

// AdvanceSchedule applies the rule repeatedly, starting at runDate, until
// the result is strictly after max(runDate, now). Missed occurrences are
// skipped rather than backfilled. The result is always strictly in the
// future of both instants: when the rule is unusable or the iteration bound
// is hit, it falls back to the day after the reference.
func AdvanceSchedule(s *models.RecurringSchedule, runDate, now time.Time) time.Time {
	ref := now
	if runDate.After(ref) {
		ref = runDate
	}

	r, err := RuleFor(s)
	if err != nil {
		return ref.AddDate(0, 0, 1)
	}

	next := runDate
	for i := 0; i < MaxAdvanceIterations; i++ {
		next = r.Apply(next)
		if next.After(ref) {
			return next
		}
	}

	// Too stale to walk: jump close to ref and take a single step from there.
	next = r.Apply(ref)
	if !next.After(ref) {
		next = ref.AddDate(0, 0, 1)
	}
	return next
}

// NeedsReminder reports whether a reminder is due at ref: the next run is
// within ReminderLeadDays, and no reminder has been sent since the start of
// that lead window. Once the schedule advances the window moves and a new
// reminder can fire.
func NeedsReminder(s *models.RecurringSchedule, ref time.Time) bool {
	if s.NextRunDate.IsZero() || s.ReminderLeadDays < 0 {
		return false
	}

	windowStart := s.NextRunDate.AddDate(0, 0, -s.ReminderLeadDays)
	if ref.Before(windowStart) {
		return false
	}
	if s.LastReminderAt != nil && !s.LastReminderAt.Before(windowStart) {
		return false
	}
	return true
}

// DaysUntilNextRun counts calendar days from ref to the next run. ok is
// false when the schedule has no next run date.
func DaysUntilNextRun(s *models.RecurringSchedule, ref time.Time) (days int, ok bool) {
	if s.NextRunDate.IsZero() || ref.IsZero() {
		return 0, false
	}
	return CalendarDaysBetween(ref, s.NextRunDate), true
}

// IsOverdue reports whether the next run date is on a day before ref. ok is
// false when either date is unset.
func IsOverdue(s *models.RecurringSchedule, ref time.Time) (overdue bool, ok bool) {
	days, ok := DaysUntilNextRun(s, ref)
	if !ok {
		return false, false
	}
	return days < 0, true
}

// CalendarDaysBetween counts midnight boundaries from a to b in a's location.
func CalendarDaysBetween(a, b time.Time) int {
	loc := a.Location()
	b = b.In(loc)
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}
