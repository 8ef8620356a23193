package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"invoicer/internal/ledger"
	"invoicer/internal/logger"
	"invoicer/pkg/models"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage recurring billing schedules",
	Long: `Recurring schedules bill a client the same line items on a repeating rule:
weekly, fortnightly, monthly, quarterly, yearly or a custom interval in days
or months. Month-based rules keep the day of month where possible and clamp
to the last day of shorter months (Jan 31 -> Feb 29 in a leap year).`,
}

var scheduleCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an active schedule",
	Example: `  invoicer schedule create --client <id> --frequency monthly --next-run 2024-01-31 --line "Retainer:1:500"
  invoicer schedule create --client <id> --frequency custom --interval-days 10 --line "Hosting:1:20"
  invoicer schedule create --file schedule.yaml`,
	RunE: runScheduleCreate,
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List schedules",
	RunE:  runScheduleList,
}

var scheduleShowCmd = &cobra.Command{
	Use:   "show [schedule-id]",
	Short: "Show one schedule",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleShow,
}

var scheduleUpdateCmd = &cobra.Command{
	Use:   "update [schedule-id]",
	Short: "Change a schedule; only the given flags are applied",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleUpdate,
}

var scheduleRunCmd = &cobra.Command{
	Use:   "run [schedule-id]",
	Short: "Generate the next invoice now and advance the schedule",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleRun,
}

var scheduleRunDueCmd = &cobra.Command{
	Use:   "run-due",
	Short: "Run every active schedule whose next run date has arrived",
	RunE:  runScheduleRunDue,
}

var schedulePauseCmd = &cobra.Command{
	Use:   "pause [schedule-id]",
	Short: "Stop a schedule from generating invoices",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchedulePause,
}

var scheduleResumeCmd = &cobra.Command{
	Use:   "resume [schedule-id]",
	Short: "Resume a paused schedule",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleResume,
}

var scheduleRemindersCmd = &cobra.Command{
	Use:   "reminders",
	Short: "List schedules whose reminder window is open",
	RunE:  runScheduleReminders,
}

var scheduleDeleteCmd = &cobra.Command{
	Use:   "delete [schedule-id]",
	Short: "Delete a schedule. Invoices it generated are kept",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleDelete,
}

var scheduleWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run due schedules on a cron timetable until interrupted",
	Long: `Run due schedules on a cron timetable until interrupted. The timetable
comes from --cron or SCHEDULE_CRON (default "0 7 * * *", every day at 07:00).`,
	RunE: runScheduleWatch,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.AddCommand(scheduleCreateCmd, scheduleListCmd, scheduleShowCmd, scheduleUpdateCmd,
		scheduleRunCmd, scheduleRunDueCmd, schedulePauseCmd, scheduleResumeCmd,
		scheduleRemindersCmd, scheduleDeleteCmd, scheduleWatchCmd)

	for _, c := range []*cobra.Command{scheduleCreateCmd, scheduleUpdateCmd} {
		c.Flags().String("frequency", "", "weekly, fortnightly, monthly, quarterly, yearly or custom")
		c.Flags().Int("interval-days", 0, "Days between runs for a custom schedule")
		c.Flags().Int("interval-months", 0, "Months between runs for a custom schedule")
		c.Flags().Int("terms", 0, "Payment terms of generated invoices in days")
		c.Flags().Int("reminder-days", 0, "Days before the next run to start reminding")
		c.Flags().String("next-run", "", "Next run date, YYYY-MM-DD")
		c.Flags().String("notes", "", "Notes copied to generated invoices")
		addLineFlags(c)
	}
	scheduleCreateCmd.Flags().String("client", "", "Client ID")
	scheduleCreateCmd.Flags().String("file", "", "Read the schedule from a YAML or JSON file; flags override it")

	scheduleRemindersCmd.Flags().String("date", "", "Reference date, YYYY-MM-DD (default: today)")
	scheduleRemindersCmd.Flags().Bool("mark-sent", false, "Record that the listed reminders were sent")

	scheduleWatchCmd.Flags().String("cron", "", "Cron expression (default: SCHEDULE_CRON)")
	scheduleWatchCmd.Flags().Bool("run-now", false, "Also run once immediately on start")
}

func runScheduleCreate(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("schedule")
	outputPath, timeoutSecs := commandOptions(cmd)

	var in ledger.ScheduleInput
	if path, _ := cmd.Flags().GetString("file"); path != "" {
		if err := readInputFile(path, &in); err != nil {
			return err
		}
	}
	if v := stringFlagPtr(cmd, "client"); v != nil {
		in.ClientID = *v
	}
	if v := stringFlagPtr(cmd, "frequency"); v != nil {
		in.Frequency = models.Frequency(*v)
	}
	if v := intFlagPtr(cmd, "interval-days"); v != nil {
		in.IntervalDays = *v
	}
	if v := intFlagPtr(cmd, "interval-months"); v != nil {
		in.IntervalMonths = *v
	}
	if v := intFlagPtr(cmd, "terms"); v != nil {
		in.PaymentTermsDays = v
	}
	if v := intFlagPtr(cmd, "reminder-days"); v != nil {
		in.ReminderLeadDays = *v
	}
	if v := stringFlagPtr(cmd, "next-run"); v != nil {
		in.NextRunDate = *v
	}
	if v := stringFlagPtr(cmd, "notes"); v != nil {
		in.Notes = *v
	}
	items, ok, err := lineItemsFromFlags(cmd)
	if err != nil {
		return err
	}
	if ok {
		in.LineItems = items
	}

	ctx, cancel := createCommandContext(timeoutSecs, log)
	defer cancel()

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	s, err := l.CreateSchedule(ctx, in)
	if err != nil {
		return handleLedgerError(err, log)
	}
	return outputJSON(s, outputPath, log)
}

func runScheduleList(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("schedule")
	outputPath, timeoutSecs := commandOptions(cmd)

	ctx, cancel := createCommandContext(timeoutSecs, log)
	defer cancel()

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	schedules, err := l.ListSchedules(ctx)
	if err != nil {
		return handleLedgerError(err, log)
	}
	return outputJSON(schedules, outputPath, log)
}

func runScheduleShow(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("schedule")
	outputPath, timeoutSecs := commandOptions(cmd)

	ctx, cancel := createCommandContext(timeoutSecs, log)
	defer cancel()

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	s, err := l.GetSchedule(ctx, args[0])
	if err != nil {
		return handleLedgerError(err, log)
	}
	return outputJSON(s, outputPath, log)
}

func runScheduleUpdate(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("schedule")
	outputPath, timeoutSecs := commandOptions(cmd)

	patch := ledger.SchedulePatch{
		IntervalDays:     intFlagPtr(cmd, "interval-days"),
		IntervalMonths:   intFlagPtr(cmd, "interval-months"),
		PaymentTermsDays: intFlagPtr(cmd, "terms"),
		ReminderLeadDays: intFlagPtr(cmd, "reminder-days"),
		NextRunDate:      stringFlagPtr(cmd, "next-run"),
		Notes:            stringFlagPtr(cmd, "notes"),
	}
	if v := stringFlagPtr(cmd, "frequency"); v != nil {
		f := models.Frequency(*v)
		patch.Frequency = &f
	}
	items, ok, err := lineItemsFromFlags(cmd)
	if err != nil {
		return err
	}
	if ok {
		patch.LineItems = items
	}

	ctx, cancel := createCommandContext(timeoutSecs, log)
	defer cancel()

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	s, err := l.UpdateSchedule(ctx, args[0], patch)
	if err != nil {
		return handleLedgerError(err, log)
	}
	return outputJSON(s, outputPath, log)
}

// ScheduleRunOutput is the output of schedule run
type ScheduleRunOutput struct {
	Invoice  *models.Invoice           `json:"invoice"`
	Schedule *models.RecurringSchedule `json:"schedule"`
}

func runScheduleRun(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("schedule")
	outputPath, timeoutSecs := commandOptions(cmd)

	ctx, cancel := createCommandContext(timeoutSecs, log)
	defer cancel()

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	inv, s, err := l.RunScheduleNow(ctx, args[0], time.Now())
	if err != nil {
		return handleLedgerError(err, log)
	}
	return outputJSON(ScheduleRunOutput{Invoice: inv, Schedule: s}, outputPath, log)
}

func runScheduleRunDue(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("schedule")
	outputPath, timeoutSecs := commandOptions(cmd)

	ctx, cancel := createCommandContext(timeoutSecs, log)
	defer cancel()

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	results, runErr := l.ExecuteDueSchedules(ctx, time.Now())
	if err := outputJSON(results, outputPath, log); err != nil {
		return err
	}
	if runErr != nil {
		return handleLedgerError(runErr, log)
	}
	return nil
}

func runSchedulePause(cmd *cobra.Command, args []string) error {
	return setScheduleActive(cmd, args[0], false)
}

func runScheduleResume(cmd *cobra.Command, args []string) error {
	return setScheduleActive(cmd, args[0], true)
}

func setScheduleActive(cmd *cobra.Command, id string, active bool) error {
	log := logger.WithComponent("schedule")
	outputPath, timeoutSecs := commandOptions(cmd)

	ctx, cancel := createCommandContext(timeoutSecs, log)
	defer cancel()

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	var s *models.RecurringSchedule
	if active {
		s, err = l.ResumeSchedule(ctx, id)
	} else {
		s, err = l.PauseSchedule(ctx, id)
	}
	if err != nil {
		return handleLedgerError(err, log)
	}
	return outputJSON(s, outputPath, log)
}

func runScheduleReminders(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("schedule")
	outputPath, timeoutSecs := commandOptions(cmd)
	markSent, _ := cmd.Flags().GetBool("mark-sent")

	ref, err := parseDateFlag(cmd, "date")
	if err != nil {
		return err
	}
	if ref.IsZero() {
		ref = time.Now()
	}

	ctx, cancel := createCommandContext(timeoutSecs, log)
	defer cancel()

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	due, err := l.DueReminders(ctx, ref)
	if err != nil {
		return handleLedgerError(err, log)
	}

	if markSent {
		for i := range due {
			updated, err := l.MarkReminderSent(ctx, due[i].ID, time.Now())
			if err != nil {
				return handleLedgerError(err, log)
			}
			due[i] = *updated
		}
		log.Info().Int("reminders", len(due)).Msg("Reminders marked sent")
	}

	return outputJSON(due, outputPath, log)
}

func runScheduleDelete(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("schedule")
	outputPath, timeoutSecs := commandOptions(cmd)

	ctx, cancel := createCommandContext(timeoutSecs, log)
	defer cancel()

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := l.DeleteSchedule(ctx, args[0]); err != nil {
		return handleLedgerError(err, log)
	}
	return outputJSON(map[string]string{"deleted": args[0]}, outputPath, log)
}

func runScheduleWatch(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("schedule-watch")

	expr, _ := cmd.Flags().GetString("cron")
	if expr == "" && appConfig != nil {
		expr = appConfig.ScheduleCron
	}
	if expr == "" {
		expr = "0 7 * * *"
	}
	runNow, _ := cmd.Flags().GetBool("run-now")

	l, closeStore, err := openLedger(log)
	if err != nil {
		return err
	}
	defer closeStore()

	c := cron.New()
	_, err = c.AddFunc(expr, func() {
		runDueSchedules(l, log)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}

	if runNow {
		runDueSchedules(l, log)
	}

	c.Start()
	log.Info().Str("cron", expr).Msg("Schedule runner started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Shutting down schedule runner")

	<-c.Stop().Done()
	return nil
}

// runDueSchedules is one tick of the schedule runner. Failures are logged;
// the runner keeps going.
func runDueSchedules(l *ledger.Ledger, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	now := time.Now()
	results, err := l.ExecuteDueSchedules(ctx, now)
	for _, r := range results {
		log.Info().
			Str("schedule_id", r.ScheduleID).
			Str("invoice_number", r.InvoiceNumber).
			Float64("total", r.Total).
			Time("next_run_date", r.NextRunDate).
			Msg("Recurring invoice generated")
	}
	if err != nil {
		log.Error().Err(err).Msg("Some schedules failed")
	}

	reminders, err := l.DueReminders(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("Failed to check reminders")
		return
	}
	for _, s := range reminders {
		log.Info().
			Str("schedule_id", s.ID).
			Str("client", s.ClientName).
			Time("next_run_date", s.NextRunDate).
			Msg("Upcoming recurring invoice")
	}
}
