// Package config loads shiftsync settings from a JSON or YAML file,
// environment variables and command-line flags.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // zones resolve on hosts without a zoneinfo database

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/beekhof/shiftsync/internal/calendar"
	"github.com/beekhof/shiftsync/internal/roster"
	"github.com/beekhof/shiftsync/internal/shift"
	"github.com/beekhof/shiftsync/internal/sync"
)

// Supported calendar backends.
const (
	BackendCalDAV = "caldav"
	BackendGoogle = "google"
)

const (
	DefaultTimeZone     = "Australia/Sydney"
	DefaultCalendarName = "Work Shifts"
	DefaultColorID      = "7"
)

// CalDAV holds the settings of the CalDAV backend.
type CalDAV struct {
	ServerURL      string `json:"server_url,omitempty" yaml:"server_url,omitempty"`
	Username       string `json:"username,omitempty" yaml:"username,omitempty"`
	Password       string `json:"password,omitempty" yaml:"password,omitempty"` // App-specific password for iCloud
	CalendarName   string `json:"calendar_name,omitempty" yaml:"calendar_name,omitempty"`
	CreateCalendar bool   `json:"create_calendar,omitempty" yaml:"create_calendar,omitempty"`
}

// Google holds the settings of the Google Calendar backend.
type Google struct {
	CredentialsPath string `json:"credentials_path,omitempty" yaml:"credentials_path,omitempty"`
	TokenPath       string `json:"token_path,omitempty" yaml:"token_path,omitempty"`
	CalendarName    string `json:"calendar_name,omitempty" yaml:"calendar_name,omitempty"`
	CalendarColorID string `json:"calendar_color_id,omitempty" yaml:"calendar_color_id,omitempty"`
}

// Config holds the configuration for shiftsync.
type Config struct {
	EmployerName string `json:"employer_name,omitempty" yaml:"employer_name,omitempty"`
	EmployeeID   string `json:"employee_id,omitempty" yaml:"employee_id,omitempty"`
	TimeZone     string `json:"time_zone,omitempty" yaml:"time_zone,omitempty"`
	UIDNamespace string `json:"uid_namespace,omitempty" yaml:"uid_namespace,omitempty"`
	ShiftLength  string `json:"shift_length,omitempty" yaml:"shift_length,omitempty"` // Go duration, e.g. "10h"

	LabelMeanings   map[string]string `json:"label_meanings,omitempty" yaml:"label_meanings,omitempty"`
	ShiftStartTimes map[string]string `json:"shift_start_times,omitempty" yaml:"shift_start_times,omitempty"` // label -> "HH:MM"

	MinDateRun     int `json:"min_date_run,omitempty" yaml:"min_date_run,omitempty"`
	MinNameMatches int `json:"min_name_matches,omitempty" yaml:"min_name_matches,omitempty"`
	MaxWorkers     int `json:"max_workers,omitempty" yaml:"max_workers,omitempty"`

	Backend     string `json:"backend,omitempty" yaml:"backend,omitempty"`
	CalDAV      CalDAV `json:"caldav,omitempty" yaml:"caldav,omitempty"`
	Google      Google `json:"google,omitempty" yaml:"google,omitempty"`
	JournalPath string `json:"journal_path,omitempty" yaml:"journal_path,omitempty"`
	PublishedBy string `json:"published_by,omitempty" yaml:"published_by,omitempty"`

	location    *time.Location
	namespace   uuid.UUID
	shiftLength time.Duration
	tables      shift.Tables
}

// Overrides are values given on the command line. Empty fields are ignored.
type Overrides struct {
	EmployerName    string
	EmployeeID      string
	TimeZone        string
	Backend         string
	MaxWorkers      int
	JournalPath     string
	CalendarName    string
	CalDAVServerURL string
	CalDAVUsername  string
	GoogleCredPath  string
	GoogleTokenPath string
}

// LoadConfigFromFile loads configuration from a JSON or YAML file. The
// format is chosen by extension; anything but .yaml or .yml is JSON.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// LoadConfig loads configuration with the following precedence (highest to lowest):
// 1. Command-line flags
// 2. Environment variables
// 3. Config file
// 4. Defaults
// Returns an error if any required value is missing.
func LoadConfig(configFile string, flags Overrides) (*Config, error) {
	var config Config

	// Step 1: Load from config file if provided
	if configFile != "" {
		fileConfig, err := LoadConfigFromFile(configFile)
		if err != nil {
			return nil, err
		}
		config = *fileConfig
	}

	// Step 2: Override with environment variables
	setFromEnv(&config.EmployerName, "SHIFTSYNC_EMPLOYER_NAME")
	setFromEnv(&config.EmployeeID, "SHIFTSYNC_EMPLOYEE_ID")
	setFromEnv(&config.TimeZone, "SHIFTSYNC_TIME_ZONE")
	setFromEnv(&config.Backend, "SHIFTSYNC_BACKEND")
	setFromEnv(&config.JournalPath, "SHIFTSYNC_JOURNAL_PATH")
	setFromEnv(&config.CalDAV.ServerURL, "CALDAV_SERVER_URL")
	setFromEnv(&config.CalDAV.Username, "CALDAV_USERNAME")
	setFromEnv(&config.CalDAV.Password, "CALDAV_PASSWORD")
	setFromEnv(&config.Google.CredentialsPath, "GOOGLE_CREDENTIALS_PATH")
	setFromEnv(&config.Google.TokenPath, "GOOGLE_TOKEN_PATH")
	if maxWorkers := os.Getenv("SHIFTSYNC_MAX_WORKERS"); maxWorkers != "" {
		n, err := strconv.Atoi(maxWorkers)
		if err != nil {
			return nil, fmt.Errorf("invalid SHIFTSYNC_MAX_WORKERS value: %w", err)
		}
		config.MaxWorkers = n
	}

	// Step 3: Override with command-line flags (highest priority)
	setFromFlag(&config.EmployerName, flags.EmployerName)
	setFromFlag(&config.EmployeeID, flags.EmployeeID)
	setFromFlag(&config.TimeZone, flags.TimeZone)
	setFromFlag(&config.Backend, flags.Backend)
	setFromFlag(&config.JournalPath, flags.JournalPath)
	setFromFlag(&config.CalDAV.ServerURL, flags.CalDAVServerURL)
	setFromFlag(&config.CalDAV.Username, flags.CalDAVUsername)
	setFromFlag(&config.Google.CredentialsPath, flags.GoogleCredPath)
	setFromFlag(&config.Google.TokenPath, flags.GoogleTokenPath)
	if flags.CalendarName != "" {
		config.CalDAV.CalendarName = flags.CalendarName
		config.Google.CalendarName = flags.CalendarName
	}
	if flags.MaxWorkers != 0 {
		config.MaxWorkers = flags.MaxWorkers
	}

	// Step 4: Apply defaults and validate required fields
	if err := config.applyDefaults(); err != nil {
		return nil, err
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func setFromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setFromFlag(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func (c *Config) applyDefaults() error {
	if c.TimeZone == "" {
		c.TimeZone = DefaultTimeZone
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return fmt.Errorf("invalid time_zone %q: %w", c.TimeZone, err)
	}
	c.location = loc

	c.namespace = shift.DefaultNamespace
	if c.UIDNamespace != "" {
		if c.namespace, err = uuid.Parse(c.UIDNamespace); err != nil {
			return fmt.Errorf("invalid uid_namespace %q: %w", c.UIDNamespace, err)
		}
	}

	c.shiftLength = shift.DefaultShiftLength
	if c.ShiftLength != "" {
		if c.shiftLength, err = time.ParseDuration(c.ShiftLength); err != nil {
			return fmt.Errorf("invalid shift_length %q: %w", c.ShiftLength, err)
		}
	}

	c.tables = shift.DefaultTables()
	if len(c.LabelMeanings) > 0 {
		c.tables.Meanings = c.LabelMeanings
	}
	if len(c.ShiftStartTimes) > 0 {
		starts := make(map[string]shift.ClockTime, len(c.ShiftStartTimes))
		for label, hhmm := range c.ShiftStartTimes {
			at, err := shift.ParseClockTime(hhmm)
			if err != nil {
				return fmt.Errorf("invalid shift_start_times[%s]: %w", label, err)
			}
			starts[label] = at
		}
		c.tables.StartTimes = starts
	}

	if c.MinDateRun == 0 {
		c.MinDateRun = roster.DefaultMinDateRun
	}
	if c.MinNameMatches == 0 {
		c.MinNameMatches = roster.DefaultMinNameMatches
	}
	if c.MaxWorkers == 0 {
		c.MaxWorkers = sync.DefaultMaxWorkers
	}
	if c.Backend == "" {
		c.Backend = BackendCalDAV
	}
	if c.PublishedBy == "" {
		c.PublishedBy = calendar.DefaultPublishedBy
	}
	if c.CalDAV.ServerURL == "" {
		c.CalDAV.ServerURL = calendar.DefaultCalDAVServer
	}
	if c.CalDAV.CalendarName == "" {
		c.CalDAV.CalendarName = DefaultCalendarName
	}
	if c.Google.CalendarName == "" {
		c.Google.CalendarName = DefaultCalendarName
	}
	if c.Google.CalendarColorID == "" {
		c.Google.CalendarColorID = DefaultColorID
	}
	return nil
}

func (c *Config) validate() error {
	if c.EmployerName == "" {
		return fmt.Errorf("employer_name must be provided via --employer flag, SHIFTSYNC_EMPLOYER_NAME environment variable, or config file")
	}
	if c.EmployeeID == "" {
		return fmt.Errorf("employee_id must be provided via --employee-id flag, SHIFTSYNC_EMPLOYEE_ID environment variable, or config file")
	}
	if c.MinDateRun < 0 || c.MinNameMatches < 0 {
		return fmt.Errorf("min_date_run and min_name_matches must not be negative")
	}
	if c.MaxWorkers < 0 {
		return fmt.Errorf("max_workers must not be negative, got %d", c.MaxWorkers)
	}

	switch c.Backend {
	case BackendCalDAV:
		if c.CalDAV.Username == "" {
			return fmt.Errorf("caldav.username must be provided via --caldav-username flag, CALDAV_USERNAME environment variable, or config file")
		}
		if c.CalDAV.Password == "" {
			return fmt.Errorf("caldav.password must be provided via CALDAV_PASSWORD environment variable or config file")
		}
	case BackendGoogle:
		if c.Google.CredentialsPath == "" {
			return fmt.Errorf("google.credentials_path must be provided via --google-credentials-path flag, GOOGLE_CREDENTIALS_PATH environment variable, or config file")
		}
		if c.Google.TokenPath == "" {
			return fmt.Errorf("google.token_path must be provided via --google-token-path flag, GOOGLE_TOKEN_PATH environment variable, or config file")
		}
	default:
		return fmt.Errorf("backend must be %q or %q, got %q", BackendCalDAV, BackendGoogle, c.Backend)
	}
	return nil
}

// Location returns the employer's time zone.
func (c *Config) Location() *time.Location {
	return c.location
}

// CalendarName returns the calendar name of the selected backend.
func (c *Config) CalendarName() string {
	if c.Backend == BackendGoogle {
		return c.Google.CalendarName
	}
	return c.CalDAV.CalendarName
}

// ShiftConfig returns the Shift Factory settings.
func (c *Config) ShiftConfig() shift.Config {
	return shift.Config{
		Employer:    c.EmployerName,
		EmployeeID:  c.EmployeeID,
		Location:    c.location,
		Namespace:   c.namespace,
		ShiftLength: c.shiftLength,
		Tables:      c.tables,
	}
}

// Heuristics returns the roster layout thresholds.
func (c *Config) Heuristics() roster.Heuristics {
	return roster.Heuristics{MinDateRun: c.MinDateRun, MinNameMatches: c.MinNameMatches}
}
