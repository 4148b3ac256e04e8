// Command shiftsync publishes the shifts rostered to one person in a roster
// workbook to a CalDAV or Google calendar.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/beekhof/shiftsync/internal/config"
	"github.com/beekhof/shiftsync/internal/logging"
)

var (
	// Global flags
	verbose    bool
	configFile string
	timeout    time.Duration
	overrides  config.Overrides

	logger *zap.Logger
)

// errFailures marks a run that completed but could not write every shift.
var errFailures = errors.New("some shifts could not be synced")

var rootCmd = &cobra.Command{
	Use:   "shiftsync",
	Short: "Sync rostered shifts to a calendar",
	Long: `shiftsync reads a roster workbook, finds the row of the named person and
makes a dedicated calendar hold exactly those shifts.

Only events shiftsync published itself are ever changed. Shifts removed from
the roster are deleted from the calendar, new ones are created, and shifts
that are already present are left alone.

CONFIGURATION PRECEDENCE (highest to lowest):
    1. Command-line flags
    2. Environment variables (SHIFTSYNC_*, CALDAV_*, GOOGLE_*)
    3. Config file (--config, JSON or YAML)
    4. Defaults`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(verbose)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to JSON or YAML config file")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Time allowed for sign-in and calendar discovery")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&overrides.EmployerName, "employer", "", "Employer name (overrides SHIFTSYNC_EMPLOYER_NAME)")
	pf.StringVar(&overrides.EmployeeID, "employee-id", "", "Employee id (overrides SHIFTSYNC_EMPLOYEE_ID)")
	pf.StringVar(&overrides.TimeZone, "time-zone", "", "Employer time zone (overrides SHIFTSYNC_TIME_ZONE)")
	pf.StringVar(&overrides.Backend, "backend", "", `Calendar backend, "caldav" or "google" (overrides SHIFTSYNC_BACKEND)`)
	pf.IntVar(&overrides.MaxWorkers, "max-workers", 0, "Concurrent calendar writes (overrides SHIFTSYNC_MAX_WORKERS)")
	pf.StringVar(&overrides.JournalPath, "journal", "", "Run history database (overrides SHIFTSYNC_JOURNAL_PATH)")
	pf.StringVar(&overrides.CalendarName, "calendar", "", "Calendar to publish to")
	pf.StringVar(&overrides.CalDAVServerURL, "caldav-server-url", "", "CalDAV server (overrides CALDAV_SERVER_URL)")
	pf.StringVar(&overrides.CalDAVUsername, "caldav-username", "", "CalDAV username (overrides CALDAV_USERNAME)")
	pf.StringVar(&overrides.GoogleCredPath, "google-credentials-path", "", "Google OAuth client file (overrides GOOGLE_CREDENTIALS_PATH)")
	pf.StringVar(&overrides.GoogleTokenPath, "google-token-path", "", "Google OAuth token file (overrides GOOGLE_TOKEN_PATH)")
	pf.BoolVar(&noBrowser, "no-browser", false, "Authorize Google by pasting a code instead of a local redirect")

	namesCmd.Flags().StringVar(&rosterPath, "roster", "", "Roster workbook (.xlsx)")
	namesCmd.Flags().StringVar(&sheetName, "sheet", "", "Worksheet (default: the active sheet)")
	namesCmd.MarkFlagRequired("roster")

	syncCmd.Flags().StringVar(&rosterPath, "roster", "", "Roster workbook (.xlsx)")
	syncCmd.Flags().StringVar(&sheetName, "sheet", "", "Worksheet (default: the active sheet)")
	syncCmd.Flags().StringVar(&personName, "name", "", "Name as it appears on the roster")
	syncCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the changes without applying them")
	syncCmd.MarkFlagRequired("roster")
	syncCmd.MarkFlagRequired("name")

	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "Number of runs to show")

	rootCmd.AddCommand(namesCmd)
	rootCmd.AddCommand(calendarsCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
