package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"invoicer/internal/money"
	"invoicer/internal/recurring"
	"invoicer/pkg/models"
)

// ScheduleInput is the payload for creating a recurring schedule. A nil
// PaymentTermsDays takes the settings default; an empty NextRunDate means
// today.
type ScheduleInput struct {
	ClientID         string           `json:"clientId" yaml:"clientId"`
	Frequency        models.Frequency `json:"frequency" yaml:"frequency"`
	IntervalDays     int              `json:"intervalDays,omitempty" yaml:"intervalDays,omitempty"`
	IntervalMonths   int              `json:"intervalMonths,omitempty" yaml:"intervalMonths,omitempty"`
	PaymentTermsDays *int             `json:"paymentTermsDays,omitempty" yaml:"paymentTermsDays,omitempty"`
	ReminderLeadDays int              `json:"reminderLeadDays" yaml:"reminderLeadDays"`
	NextRunDate      string           `json:"nextRunDate,omitempty" yaml:"nextRunDate,omitempty"`
	LineItems        []LineItemInput  `json:"lineItems" yaml:"lineItems"`
	Notes            string           `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// SchedulePatch is a partial schedule update. Nil fields are left alone.
type SchedulePatch struct {
	Frequency        *models.Frequency `json:"frequency,omitempty"`
	IntervalDays     *int              `json:"intervalDays,omitempty"`
	IntervalMonths   *int              `json:"intervalMonths,omitempty"`
	PaymentTermsDays *int              `json:"paymentTermsDays,omitempty"`
	ReminderLeadDays *int              `json:"reminderLeadDays,omitempty"`
	NextRunDate      *string           `json:"nextRunDate,omitempty"`
	LineItems        []LineItemInput   `json:"lineItems,omitempty"`
	Notes            *string           `json:"notes,omitempty"`
}

// GenerateOptions sets the dates of a generated invoice. A zero IssueDate
// means now; a zero DueDate means IssueDate plus the schedule's terms.
type GenerateOptions struct {
	IssueDate time.Time
	DueDate   time.Time
}

// RunResult describes one schedule executed by ExecuteDueSchedules.
type RunResult struct {
	ScheduleID    string    `json:"scheduleId"`
	InvoiceID     string    `json:"invoiceId"`
	InvoiceNumber string    `json:"invoiceNumber"`
	Total         float64   `json:"total"`
	NextRunDate   time.Time `json:"nextRunDate"`
}

// CreateSchedule validates and stores an active schedule.
func (l *Ledger) CreateSchedule(ctx context.Context, in ScheduleInput) (*models.RecurringSchedule, error) {
	const op = "ledger.CreateSchedule"

	l.mu.Lock()
	defer l.mu.Unlock()

	settings, err := l.loadSettings(ctx)
	if err != nil {
		return nil, err
	}
	clients, err := l.loadClients(ctx)
	if err != nil {
		return nil, err
	}
	services, err := l.loadServices(ctx)
	if err != nil {
		return nil, err
	}

	clientID := strings.TrimSpace(in.ClientID)
	if clientID == "" {
		return nil, NewValidationError("clientId", nil, "client is required")
	}
	ci, ok := findClient(clients, clientID)
	if !ok {
		return nil, notFound("client", clientID)
	}

	now := l.Now()
	s := models.RecurringSchedule{
		ID:               l.newID(),
		ClientID:         clientID,
		ClientName:       clients[ci].Name,
		Frequency:        in.Frequency,
		IntervalDays:     in.IntervalDays,
		IntervalMonths:   in.IntervalMonths,
		PaymentTermsDays: settings.PaymentTermsDays,
		ReminderLeadDays: in.ReminderLeadDays,
		Active:           true,
		Notes:            strings.TrimSpace(in.Notes),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if in.PaymentTermsDays != nil {
		s.PaymentTermsDays = *in.PaymentTermsDays
	}
	s.NextRunDate, ok = parseDate(in.NextRunDate)
	if !ok {
		s.NextRunDate = now
	}

	lines := sanitizeLineItems(in.LineItems, services, l.newID)
	if err := validateSchedule(&s, lines); err != nil {
		l.log.Warn().Err(err).Str("client_id", clientID).Msg("Schedule rejected")
		return nil, err
	}
	applyScheduleLines(&s, lines, settings.GSTRate)

	schedules, err := l.loadSchedules(ctx)
	if err != nil {
		return nil, err
	}
	schedules = append(schedules, s)
	if err := l.saveSchedules(ctx, op, schedules); err != nil {
		return nil, err
	}

	l.log.Info().
		Str("schedule_id", s.ID).
		Str("client_id", s.ClientID).
		Str("frequency", string(s.Frequency)).
		Time("next_run", s.NextRunDate).
		Msg("Schedule created")
	return &s, nil
}

// GetSchedule returns one schedule.
func (l *Ledger) GetSchedule(ctx context.Context, id string) (*models.RecurringSchedule, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	schedules, err := l.loadSchedules(ctx)
	if err != nil {
		return nil, err
	}
	i, ok := findSchedule(schedules, id)
	if !ok {
		return nil, notFound("schedule", id)
	}
	return &schedules[i], nil
}

// ListSchedules returns every schedule.
func (l *Ledger) ListSchedules(ctx context.Context) ([]models.RecurringSchedule, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadSchedules(ctx)
}

// UpdateSchedule merges patch into a schedule and revalidates it.
func (l *Ledger) UpdateSchedule(ctx context.Context, id string, patch SchedulePatch) (*models.RecurringSchedule, error) {
	const op = "ledger.UpdateSchedule"

	l.mu.Lock()
	defer l.mu.Unlock()

	schedules, err := l.loadSchedules(ctx)
	if err != nil {
		return nil, err
	}
	i, ok := findSchedule(schedules, id)
	if !ok {
		return nil, notFound("schedule", id)
	}
	settings, err := l.loadSettings(ctx)
	if err != nil {
		return nil, err
	}

	s := schedules[i]
	if patch.Frequency != nil {
		s.Frequency = *patch.Frequency
	}
	if patch.IntervalDays != nil {
		s.IntervalDays = *patch.IntervalDays
	}
	if patch.IntervalMonths != nil {
		s.IntervalMonths = *patch.IntervalMonths
	}
	if patch.PaymentTermsDays != nil {
		s.PaymentTermsDays = *patch.PaymentTermsDays
	}
	if patch.ReminderLeadDays != nil {
		s.ReminderLeadDays = *patch.ReminderLeadDays
	}
	if patch.NextRunDate != nil {
		next, ok := parseDate(*patch.NextRunDate)
		if !ok {
			return nil, NewValidationError("nextRunDate", *patch.NextRunDate, "unrecognised date")
		}
		s.NextRunDate = next
	}
	setString(&s.Notes, patch.Notes)

	lines := s.LineItems
	if patch.LineItems != nil {
		services, err := l.loadServices(ctx)
		if err != nil {
			return nil, err
		}
		lines = sanitizeLineItems(patch.LineItems, services, l.newID)
	}
	if err := validateSchedule(&s, lines); err != nil {
		return nil, err
	}
	applyScheduleLines(&s, lines, settings.GSTRate)
	s.UpdatedAt = l.Now()

	schedules[i] = s
	if err := l.saveSchedules(ctx, op, schedules); err != nil {
		return nil, err
	}
	return &s, nil
}

// PauseSchedule stops a schedule from being executed.
func (l *Ledger) PauseSchedule(ctx context.Context, id string) (*models.RecurringSchedule, error) {
	return l.setScheduleActive(ctx, id, false)
}

// ResumeSchedule re-activates a paused schedule. Occurrences missed while
// paused are not backfilled: the next run catches up to the present.
func (l *Ledger) ResumeSchedule(ctx context.Context, id string) (*models.RecurringSchedule, error) {
	return l.setScheduleActive(ctx, id, true)
}

func (l *Ledger) setScheduleActive(ctx context.Context, id string, active bool) (*models.RecurringSchedule, error) {
	const op = "ledger.setScheduleActive"

	l.mu.Lock()
	defer l.mu.Unlock()

	schedules, err := l.loadSchedules(ctx)
	if err != nil {
		return nil, err
	}
	i, ok := findSchedule(schedules, id)
	if !ok {
		return nil, notFound("schedule", id)
	}
	s := &schedules[i]
	if s.Active == active {
		return s, nil
	}
	s.Active = active
	s.UpdatedAt = l.Now()
	if err := l.saveSchedules(ctx, op, schedules); err != nil {
		return nil, err
	}

	l.log.Info().Str("schedule_id", id).Bool("active", active).Msg("Schedule state changed")
	return s, nil
}

// DeleteSchedule removes a schedule. Invoices it generated are kept.
func (l *Ledger) DeleteSchedule(ctx context.Context, id string) error {
	const op = "ledger.DeleteSchedule"

	l.mu.Lock()
	defer l.mu.Unlock()

	schedules, err := l.loadSchedules(ctx)
	if err != nil {
		return err
	}
	i, ok := findSchedule(schedules, id)
	if !ok {
		return notFound("schedule", id)
	}
	schedules = append(schedules[:i], schedules[i+1:]...)
	return l.saveSchedules(ctx, op, schedules)
}

// GenerateInvoice creates an unpaid invoice from the schedule's line items
// without advancing the schedule.
func (l *Ledger) GenerateInvoice(ctx context.Context, scheduleID string, opts GenerateOptions) (*models.Invoice, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	schedules, err := l.loadSchedules(ctx)
	if err != nil {
		return nil, err
	}
	i, ok := findSchedule(schedules, scheduleID)
	if !ok {
		return nil, notFound("schedule", scheduleID)
	}
	return l.generateInvoice(ctx, "ledger.GenerateInvoice", &schedules[i], opts)
}

func (l *Ledger) generateInvoice(ctx context.Context, op string, s *models.RecurringSchedule, opts GenerateOptions) (*models.Invoice, error) {
	issue := opts.IssueDate
	if issue.IsZero() {
		issue = l.Now()
	}
	due := opts.DueDate
	if due.IsZero() {
		due = issue.AddDate(0, 0, s.PaymentTermsDays)
	}

	in := InvoiceInput{DocumentInput: DocumentInput{
		ClientID:  s.ClientID,
		IssueDate: formatDate(issue),
		DueDate:   formatDate(due),
		LineItems: copyLines(s.LineItems),
		Notes:     s.Notes,
	}}
	return l.createInvoice(ctx, op, in, func(inv *models.Invoice) {
		inv.ScheduleID = s.ID
	})
}

// RunScheduleNow generates the schedule's invoice and advances it past
// now. The invoice is issued at now; the schedule advances from its
// nominal run date, skipping any occurrences missed in between.
func (l *Ledger) RunScheduleNow(ctx context.Context, scheduleID string, now time.Time) (*models.Invoice, *models.RecurringSchedule, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.runSchedule(ctx, scheduleID, now)
}

func (l *Ledger) runSchedule(ctx context.Context, scheduleID string, now time.Time) (*models.Invoice, *models.RecurringSchedule, error) {
	const op = "ledger.RunScheduleNow"

	schedules, err := l.loadSchedules(ctx)
	if err != nil {
		return nil, nil, err
	}
	i, ok := findSchedule(schedules, scheduleID)
	if !ok {
		return nil, nil, notFound("schedule", scheduleID)
	}
	s := &schedules[i]
	if !s.Active {
		return nil, nil, NewValidationError("active", false, "schedule is paused")
	}

	runDate := s.NextRunDate
	if runDate.IsZero() {
		runDate = now
	}

	inv, err := l.generateInvoice(ctx, op, s, GenerateOptions{IssueDate: now})
	if err != nil {
		return nil, nil, err
	}

	ranAt := now
	s.LastRunAt = &ranAt
	s.NextRunDate = recurring.AdvanceSchedule(s, runDate, now)
	s.UpdatedAt = l.Now()

	if err := l.saveSchedules(ctx, op, schedules); err != nil {
		// Without the advance the next run would bill the same period twice.
		if rbErr := l.removeInvoice(ctx, op, inv.ID); rbErr != nil {
			return nil, nil, errors.Join(err, rbErr)
		}
		return nil, nil, err
	}

	l.log.Info().
		Str("schedule_id", s.ID).
		Str("invoice_id", inv.ID).
		Str("number", inv.Number).
		Time("next_run", s.NextRunDate).
		Msg("Schedule executed")
	return inv, s, nil
}

// ExecuteDueSchedules runs every active schedule whose next run date is not
// after now. A failing schedule does not stop the others; the failures are
// joined into the returned error.
func (l *Ledger) ExecuteDueSchedules(ctx context.Context, now time.Time) ([]RunResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	schedules, err := l.loadSchedules(ctx)
	if err != nil {
		return nil, err
	}

	var due []string
	for i := range schedules {
		if isDue(&schedules[i], now) {
			due = append(due, schedules[i].ID)
		}
	}

	results := make([]RunResult, 0, len(due))
	var errs []error
	for _, id := range due {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		inv, s, err := l.runSchedule(ctx, id, now)
		if err != nil {
			l.log.Error().Err(err).Str("schedule_id", id).Msg("Scheduled run failed")
			errs = append(errs, fmt.Errorf("schedule %s: %w", id, err))
			continue
		}
		results = append(results, RunResult{
			ScheduleID:    s.ID,
			InvoiceID:     inv.ID,
			InvoiceNumber: inv.Number,
			Total:         inv.Total,
			NextRunDate:   s.NextRunDate,
		})
	}

	l.log.Info().Int("due", len(due)).Int("executed", len(results)).Int("failed", len(errs)).Msg("Due schedules processed")
	return results, errors.Join(errs...)
}

// DueReminders returns active schedules that need a reminder at ref.
func (l *Ledger) DueReminders(ctx context.Context, ref time.Time) ([]models.RecurringSchedule, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	schedules, err := l.loadSchedules(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.RecurringSchedule, 0)
	for i := range schedules {
		if schedules[i].Active && recurring.NeedsReminder(&schedules[i], ref) {
			out = append(out, schedules[i])
		}
	}
	return out, nil
}

// MarkReminderSent stamps lastReminderAt, silencing the reminder until the
// schedule's next cycle.
func (l *Ledger) MarkReminderSent(ctx context.Context, id string, at time.Time) (*models.RecurringSchedule, error) {
	const op = "ledger.MarkReminderSent"

	l.mu.Lock()
	defer l.mu.Unlock()

	schedules, err := l.loadSchedules(ctx)
	if err != nil {
		return nil, err
	}
	i, ok := findSchedule(schedules, id)
	if !ok {
		return nil, notFound("schedule", id)
	}
	if at.IsZero() {
		at = l.Now()
	}
	s := &schedules[i]
	s.LastReminderAt = &at
	s.UpdatedAt = l.Now()
	if err := l.saveSchedules(ctx, op, schedules); err != nil {
		return nil, err
	}
	return s, nil
}

func (l *Ledger) removeInvoice(ctx context.Context, op, id string) error {
	invoices, err := l.loadInvoices(ctx)
	if err != nil {
		return err
	}
	if i, ok := findInvoice(invoices, id); ok {
		invoices = append(invoices[:i], invoices[i+1:]...)
	}
	return l.saveInvoices(ctx, op, invoices)
}

func isDue(s *models.RecurringSchedule, now time.Time) bool {
	return s.Active && !s.NextRunDate.IsZero() && !s.NextRunDate.After(now)
}

func validateSchedule(s *models.RecurringSchedule, lines []models.LineItem) error {
	if _, err := recurring.RuleFor(s); err != nil {
		return NewValidationError("frequency", s.Frequency, err.Error())
	}
	if s.IntervalDays < 0 || s.IntervalMonths < 0 {
		return NewValidationError("interval", nil, "interval cannot be negative")
	}
	if s.PaymentTermsDays < 0 {
		return NewValidationError("paymentTermsDays", s.PaymentTermsDays, "payment terms cannot be negative")
	}
	if s.ReminderLeadDays < 0 {
		return NewValidationError("reminderLeadDays", s.ReminderLeadDays, "reminder lead cannot be negative")
	}
	if len(lines) == 0 {
		return NewValidationError("lineItems", nil, "at least one line item is required")
	}
	return nil
}

func applyScheduleLines(s *models.RecurringSchedule, lines []models.LineItem, rate float64) {
	var totals money.Totals
	s.LineItems, totals = money.ComputeTotals(lines, rate)
	s.Subtotal = totals.Subtotal
	s.GSTTotal = totals.GSTTotal
	s.Total = totals.Total
}
