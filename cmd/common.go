package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"invoicer/internal/backup"
	"invoicer/internal/ledger"
	"invoicer/internal/store"
)

// openLedger opens the configured record store. When it cannot be opened
// the command continues on an in-memory store so read-only commands still
// work; nothing written in that mode survives the process.
func openLedger(log zerolog.Logger) (*ledger.Ledger, func(), error) {
	opts := store.Options{Driver: "memory"}
	if appConfig != nil {
		opts = appConfig.StoreOptions()
	}

	s, err := store.Open(opts)
	if err != nil {
		if errors.Is(err, store.ErrUnknownDriver) {
			return nil, nil, fmt.Errorf("invalid store configuration: %w", err)
		}
		log.Warn().
			Err(err).
			Str("driver", opts.Driver).
			Msg("Record store unavailable, falling back to in-memory store; changes will not be saved")
		s = store.NewMemory()
	}

	closeFn := func() {}
	if c, ok := s.(io.Closer); ok {
		closeFn = func() {
			if err := c.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close record store")
			}
		}
	}

	log.Debug().Str("driver", opts.Driver).Msg("Record store opened")
	return ledger.New(s), closeFn, nil
}

// createCommandContext creates a context canceled on SIGINT/SIGTERM and,
// when timeoutSecs > 0, after the timeout
func createCommandContext(timeoutSecs int, log zerolog.Logger) (context.Context, context.CancelFunc) {
	var ctx context.Context
	var cancel context.CancelFunc
	if timeoutSecs > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), time.Duration(timeoutSecs)*time.Second)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// handleLedgerError provides user-friendly error messages for ledger failures
func handleLedgerError(err error, log zerolog.Logger) error {
	var verr *ledger.ValidationError
	var nferr *ledger.NotFoundError
	var terr *ledger.TransitionError
	var ferr *backup.FormatError
	var rerr *backup.RestoreError

	switch {
	case errors.As(err, &verr):
		log.Warn().Err(err).Msg("Request rejected")
		return fmt.Errorf("invalid %s: %s", verr.Field, verr.Message)
	case errors.As(err, &nferr):
		log.Warn().Err(err).Msg("Record not found")
		return fmt.Errorf("%s %q does not exist", nferr.Kind, nferr.ID)
	case errors.As(err, &terr):
		log.Warn().Err(err).Msg("Status change refused")
		return fmt.Errorf("%s %s cannot move from %s to %s", terr.Kind, terr.ID, terr.From, terr.To)
	case errors.As(err, &ferr):
		log.Error().Err(err).Msg("Backup rejected")
		return fmt.Errorf("backup file rejected: %s", ferr.Reason)
	case errors.As(err, &rerr):
		log.Error().Err(err).Msg("Restore failed")
		if rerr.RollbackErr != nil {
			return fmt.Errorf("restore failed writing %s and the rollback also failed; check the store before retrying: %w", rerr.Key, err)
		}
		return fmt.Errorf("restore failed writing %s; previous data was put back: %w", rerr.Key, rerr.Err)
	case errors.Is(err, store.ErrUnavailable):
		log.Error().Err(err).Msg("Record store failure")
		return fmt.Errorf("record store unavailable. Check STORE_DRIVER, DATA_DIR and DATABASE_DSN: %w", err)
	case errors.Is(err, context.DeadlineExceeded):
		log.Error().Err(err).Msg("Command timed out")
		return fmt.Errorf("operation timed out. Try increasing --timeout")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("operation was canceled")
	default:
		log.Error().Err(err).Msg("Command failed")
		return err
	}
}

// outputJSON writes v as indented JSON to outputPath, or stdout when empty
func outputJSON(v interface{}, outputPath string, log zerolog.Logger) error {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal output to JSON")
		return fmt.Errorf("failed to create JSON output: %w", err)
	}

	if outputPath != "" {
		if err := os.WriteFile(outputPath, append(jsonData, '\n'), 0644); err != nil {
			log.Error().
				Err(err).
				Str("output_file", outputPath).
				Msg("Failed to write output file")
			return fmt.Errorf("failed to write output file: %w", err)
		}

		log.Info().
			Str("output_file", outputPath).
			Int("bytes", len(jsonData)).
			Msg("Output written to file")
		return nil
	}

	if _, err := os.Stdout.Write(jsonData); err != nil {
		log.Error().Err(err).Msg("Failed to write to stdout")
		return fmt.Errorf("failed to write output: %w", err)
	}
	fmt.Println()
	return nil
}

// readInputFile decodes a YAML or JSON document into v
func readInputFile(path string, v interface{}) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// parseLineFlag reads "DESCRIPTION:QUANTITY:UNIT_PRICE". The description
// may itself contain colons.
func parseLineFlag(s string, applyGST bool) (ledger.LineItemInput, error) {
	priceSep := strings.LastIndex(s, ":")
	if priceSep < 0 {
		return ledger.LineItemInput{}, fmt.Errorf("line %q: expected DESCRIPTION:QUANTITY:UNIT_PRICE", s)
	}
	qtySep := strings.LastIndex(s[:priceSep], ":")
	if qtySep < 0 {
		return ledger.LineItemInput{}, fmt.Errorf("line %q: expected DESCRIPTION:QUANTITY:UNIT_PRICE", s)
	}

	qty, err := strconv.ParseFloat(strings.TrimSpace(s[qtySep+1:priceSep]), 64)
	if err != nil {
		return ledger.LineItemInput{}, fmt.Errorf("line %q: invalid quantity: %w", s, err)
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(s[priceSep+1:]), 64)
	if err != nil {
		return ledger.LineItemInput{}, fmt.Errorf("line %q: invalid unit price: %w", s, err)
	}

	return ledger.LineItemInput{
		Description: strings.TrimSpace(s[:qtySep]),
		Quantity:    qty,
		UnitPrice:   &price,
		ApplyGST:    &applyGST,
	}, nil
}

// parseServiceLineFlag reads "SERVICE_ID[:QUANTITY]"; price, description
// and GST come from the catalog.
func parseServiceLineFlag(s string) (ledger.LineItemInput, error) {
	id, qtyStr, found := strings.Cut(s, ":")
	qty := 1.0
	if found {
		var err error
		qty, err = strconv.ParseFloat(strings.TrimSpace(qtyStr), 64)
		if err != nil {
			return ledger.LineItemInput{}, fmt.Errorf("service line %q: invalid quantity: %w", s, err)
		}
	}
	return ledger.LineItemInput{ServiceID: strings.TrimSpace(id), Quantity: qty}, nil
}

// addLineFlags registers the line item flags shared by document commands
func addLineFlags(c *cobra.Command) {
	c.Flags().StringArray("line", nil, "Line item as DESCRIPTION:QUANTITY:UNIT_PRICE (repeatable)")
	c.Flags().StringArray("service-line", nil, "Catalog line item as SERVICE_ID[:QUANTITY] (repeatable)")
	c.Flags().Bool("no-gst", false, "Do not charge GST on --line items")
}

// lineItemsFromFlags collects --line and --service-line values. ok is false
// when neither flag was given.
func lineItemsFromFlags(c *cobra.Command) (items []ledger.LineItemInput, ok bool, err error) {
	lines, _ := c.Flags().GetStringArray("line")
	serviceLines, _ := c.Flags().GetStringArray("service-line")
	noGST, _ := c.Flags().GetBool("no-gst")

	if !c.Flags().Changed("line") && !c.Flags().Changed("service-line") {
		return nil, false, nil
	}

	for _, l := range lines {
		item, err := parseLineFlag(l, !noGST)
		if err != nil {
			return nil, true, err
		}
		items = append(items, item)
	}
	for _, l := range serviceLines {
		item, err := parseServiceLineFlag(l)
		if err != nil {
			return nil, true, err
		}
		items = append(items, item)
	}
	return items, true, nil
}

// parseDateFlag reads a date flag; empty means the zero time
func parseDateFlag(c *cobra.Command, name string) (time.Time, error) {
	v, _ := c.Flags().GetString(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, ok := ledger.ParseDate(v)
	if !ok {
		return time.Time{}, fmt.Errorf("invalid --%s %q: use YYYY-MM-DD", name, v)
	}
	return t, nil
}

// stringFlagPtr returns a pointer to the flag value when the flag was set
func stringFlagPtr(c *cobra.Command, name string) *string {
	if !c.Flags().Changed(name) {
		return nil
	}
	v, _ := c.Flags().GetString(name)
	return &v
}

func intFlagPtr(c *cobra.Command, name string) *int {
	if !c.Flags().Changed(name) {
		return nil
	}
	v, _ := c.Flags().GetInt(name)
	return &v
}

func floatFlagPtr(c *cobra.Command, name string) *float64 {
	if !c.Flags().Changed(name) {
		return nil
	}
	v, _ := c.Flags().GetFloat64(name)
	return &v
}
