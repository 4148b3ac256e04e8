package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/beekhof/shiftsync/internal/config"
	"github.com/beekhof/shiftsync/internal/journal"
	"github.com/beekhof/shiftsync/internal/roster"
	"github.com/beekhof/shiftsync/internal/sheet"
	"github.com/beekhof/shiftsync/internal/shift"
	"github.com/beekhof/shiftsync/internal/sync"
)

var (
	rosterPath   string
	sheetName    string
	personName   string
	dryRun       bool
	historyLimit int
)

// namesCmd lists the names recognised on a roster
var namesCmd = &cobra.Command{
	Use:   "names",
	Short: "List the names found on a roster",
	Args:  cobra.NoArgs,
	RunE:  runNames,
}

// calendarsCmd lists the calendars of the configured account
var calendarsCmd = &cobra.Command{
	Use:   "calendars",
	Short: "List the calendars of the configured account",
	Args:  cobra.NoArgs,
	RunE:  runCalendars,
}

// syncCmd publishes one person's shifts
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Make the calendar hold exactly the shifts rostered to --name",
	Long: `Make the calendar hold exactly the shifts rostered to --name.

The calendar is the roster's mirror. Shifts shiftsync published earlier that
are no longer rostered in the same period are deleted. Events created by
anything else are never touched.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

// historyCmd prints recent runs from the journal
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent sync runs",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

// heuristics reads the roster thresholds from the config file when one is
// given. Listing names needs no credentials, so the file is not validated.
func heuristics() (roster.Heuristics, error) {
	if configFile == "" {
		return roster.DefaultHeuristics(), nil
	}
	fc, err := config.LoadConfigFromFile(configFile)
	if err != nil {
		return roster.Heuristics{}, err
	}
	return roster.Heuristics{MinDateRun: fc.MinDateRun, MinNameMatches: fc.MinNameMatches}, nil
}

func runNames(cmd *cobra.Command, args []string) error {
	h, err := heuristics()
	if err != nil {
		return err
	}
	grid, err := sheet.Load(rosterPath, sheetName)
	if err != nil {
		return err
	}
	table, err := roster.Parse(grid, h)
	if err != nil {
		return err
	}
	logger.Debug("Parsed roster",
		zap.String("path", rosterPath),
		zap.Int("date_row", table.DateRow),
		zap.Int("name_column", table.NameColumn))

	out := cmd.OutOrStdout()
	for _, name := range table.Names() {
		fmt.Fprintln(out, name)
	}
	return nil
}

func runCalendars(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFile, overrides)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	acct, err := openAccount(ctx, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	names, err := acct.ListCalendars(ctx)
	if err != nil {
		return fmt.Errorf("failed to list calendars: %w", err)
	}
	out := cmd.OutOrStdout()
	for _, name := range names {
		fmt.Fprintln(out, name)
	}
	return nil
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFile, overrides)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	factory, err := shift.NewFactory(cfg.ShiftConfig())
	if err != nil {
		return err
	}
	grid, err := sheet.Load(rosterPath, sheetName)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	opts := []sync.Option{
		sync.WithLogger(logger),
		sync.WithHeuristics(cfg.Heuristics()),
		sync.WithMaxWorkers(cfg.MaxWorkers),
		sync.WithDryRun(dryRun),
	}
	if cfg.JournalPath != "" {
		j, err := journal.Open(ctx, cfg.JournalPath)
		if err != nil {
			return err
		}
		defer j.Close()
		opts = append(opts, sync.WithRecorder(j, cfg.CalendarName()))
	}

	cal, err := openCalendar(ctx, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	// --timeout bounds sign-in and discovery only. A started run is never cut
	// short; every request carries its own transport timeout instead.
	res, err := sync.NewSyncer(factory, opts...).RunSync(context.WithoutCancel(ctx), grid, personName, cal)
	if err != nil {
		return err
	}
	printResult(cmd.OutOrStdout(), res, cfg.Location())
	if len(res.Failures) > 0 || len(res.DeleteFailures) > 0 {
		return errFailures
	}
	return nil
}

func printResult(w io.Writer, res *sync.Result, loc *time.Location) {
	if len(res.Shifts) == 0 {
		fmt.Fprintf(w, "No shifts rostered to %s.\n", res.Name)
		return
	}
	fmt.Fprintf(w, "%d shifts rostered to %s between %s and %s.\n",
		len(res.Shifts), res.Name,
		res.WindowStart.In(loc).Format("Mon 2 Jan"),
		res.WindowEnd.In(loc).AddDate(0, 0, -1).Format("Mon 2 Jan 2006"))

	if res.Plan.Empty() {
		fmt.Fprintln(w, "Calendar is up to date.")
		return
	}
	verb := "Created"
	if res.DryRun {
		verb = "Would create"
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, s := range res.Plan.ToCreate {
		fmt.Fprintf(tw, "  + %s\t%s\t%s\n", verb, s.Start.In(loc).Format("Mon 2 Jan 15:04"), s.Summary)
	}
	for _, e := range res.Plan.ToDelete {
		fmt.Fprintf(tw, "  - Stale\t%s\t%s\n", e.Start.In(loc).Format("Mon 2 Jan 15:04"), e.Summary)
	}
	tw.Flush()

	if res.DryRun {
		fmt.Fprintln(w, "Dry run: the calendar was not changed.")
		return
	}
	fmt.Fprintf(w, "%d created, %d deleted, %d failed.\n",
		res.SuccessCount, res.Deleted, len(res.Failures)+len(res.DeleteFailures))
	for _, f := range res.Failures {
		fmt.Fprintf(w, "  ! %s %s: %v\n", f.Shift.Start.In(loc).Format("Mon 2 Jan 15:04"), f.Shift.Summary, f.Err)
	}
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFile, overrides)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.JournalPath == "" {
		return fmt.Errorf("journal_path must be provided via --journal flag, SHIFTSYNC_JOURNAL_PATH environment variable, or config file")
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	j, err := journal.Open(ctx, cfg.JournalPath)
	if err != nil {
		return err
	}
	defer j.Close()

	runs, err := j.Recent(ctx, historyLimit)
	if err != nil {
		return err
	}
	printHistory(cmd.OutOrStdout(), runs, cfg.Location())
	return nil
}

func printHistory(w io.Writer, runs []journal.Run, loc *time.Location) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tNAME\tCALENDAR\tCREATED\tDELETED\tFAILED\t")
	for _, r := range runs {
		name := r.Name
		if r.DryRun {
			name += " (dry run)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%d\t%d\t\n",
			r.StartedAt.In(loc).Format("2006-01-02 15:04"), name, r.Calendar,
			r.Created, r.Planned, r.Deleted, len(r.Failures)+r.DeleteFailed)
	}
	tw.Flush()
}
