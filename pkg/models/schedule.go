package models

import "time"

// Frequency names a recurring billing rule.
type Frequency string

const (
	FrequencyWeekly      Frequency = "weekly"
	FrequencyFortnightly Frequency = "fortnightly"
	FrequencyMonthly     Frequency = "monthly"
	FrequencyQuarterly   Frequency = "quarterly"
	FrequencyYearly      Frequency = "yearly"
	FrequencyCustom      Frequency = "custom" // IntervalMonths if set, else IntervalDays
)

// RecurringSchedule bills a client the same line items on a repeating rule.
type RecurringSchedule struct {
	ID         string `json:"id"`
	ClientID   string `json:"clientId"`
	ClientName string `json:"clientName"`

	Frequency      Frequency `json:"frequency"`
	IntervalDays   int       `json:"intervalDays,omitempty"`
	IntervalMonths int       `json:"intervalMonths,omitempty"`

	PaymentTermsDays int `json:"paymentTermsDays"`
	ReminderLeadDays int `json:"reminderLeadDays"`

	NextRunDate    time.Time  `json:"nextRunDate"`
	LastRunAt      *time.Time `json:"lastRunAt,omitempty"`
	LastReminderAt *time.Time `json:"lastReminderAt,omitempty"`
	Active         bool       `json:"active"`

	LineItems []LineItem `json:"lineItems"`
	Subtotal  float64    `json:"subtotal"`
	GSTTotal  float64    `json:"gstTotal"`
	Total     float64    `json:"total"`
	Notes     string     `json:"notes"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
