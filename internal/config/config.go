package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Tiliavir/worklog-sync/internal/autolink"
	"github.com/Tiliavir/worklog-sync/internal/gapfill"
	"github.com/Tiliavir/worklog-sync/internal/storage"
	"github.com/Tiliavir/worklog-sync/internal/timecalc"
	"github.com/Tiliavir/worklog-sync/internal/worklog"
)

// Config is the root configuration for wsync, stored in ~/.wsync/config.yaml.
// Every key can be overridden from the environment with the WSYNC_ prefix,
// e.g. WSYNC_JIRA_API_TOKEN.
type Config struct {
	Jira    JiraConfig    `yaml:"jira" mapstructure:"jira"`
	Outlook OutlookConfig `yaml:"outlook" mapstructure:"outlook"`
	Worklog WorklogConfig `yaml:"worklog" mapstructure:"worklog"`
	Link    LinkConfig    `yaml:"link" mapstructure:"link"`
	Fill    FillConfig    `yaml:"fill" mapstructure:"fill"`
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`
	Notify  NotifyConfig  `yaml:"notify" mapstructure:"notify"`
	Watch   WatchConfig   `yaml:"watch" mapstructure:"watch"`
}

// JiraConfig holds the remote ledger connection.
type JiraConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Email   string `yaml:"email" mapstructure:"email"`
	// APIToken is used with Email for basic auth.
	APIToken string `yaml:"api_token" mapstructure:"api_token"`
	// BearerToken is a personal access token; it takes precedence over APIToken.
	BearerToken string `yaml:"bearer_token" mapstructure:"bearer_token"`
	// JQL selects the issues offered to the linker and gap filler.
	JQL     string `yaml:"jql" mapstructure:"jql"`
	Timeout string `yaml:"timeout" mapstructure:"timeout"`
}

// OutlookConfig holds Microsoft Graph / Outlook calendar sync settings.
type OutlookConfig struct {
	// TenantID is the Azure AD tenant. Use "common" for personal/multi-tenant accounts.
	TenantID string `yaml:"tenant_id" mapstructure:"tenant_id"`
	// ClientID is the Azure app (client) ID for the OAuth2 device code flow.
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	// Timezone is the IANA timezone for event times (e.g. "Europe/Berlin"). Empty = UTC.
	Timezone string `yaml:"timezone" mapstructure:"timezone"`
}

// WorklogConfig controls pushing and recovery.
type WorklogConfig struct {
	DailyHoursLimit float64 `yaml:"daily_hours_limit" mapstructure:"daily_hours_limit"`
	RecoveryWindow  string  `yaml:"recovery_window" mapstructure:"recovery_window"`
}

// LinkConfig controls meeting auto-linking.
type LinkConfig struct {
	Patterns       []string `yaml:"patterns" mapstructure:"patterns"`
	FuzzyThreshold float64  `yaml:"fuzzy_threshold" mapstructure:"fuzzy_threshold"`
	RequireKnown   bool     `yaml:"require_known" mapstructure:"require_known"`
}

// FillConfig controls gap filling.
type FillConfig struct {
	DayStart     string  `yaml:"day_start" mapstructure:"day_start"`
	DayEnd       string  `yaml:"day_end" mapstructure:"day_end"`
	Granularity  string  `yaml:"granularity" mapstructure:"granularity"`
	SkipAbove    float64 `yaml:"skip_above_hours" mapstructure:"skip_above_hours"`
	SkipWeekends bool    `yaml:"skip_weekends" mapstructure:"skip_weekends"`
	Comment      string  `yaml:"comment" mapstructure:"comment"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Backend string `yaml:"backend" mapstructure:"backend"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// NotifyConfig enables Slack summaries of push and revert runs.
type NotifyConfig struct {
	SlackToken   string `yaml:"slack_token" mapstructure:"slack_token"`
	SlackChannel string `yaml:"slack_channel" mapstructure:"slack_channel"`
}

// WatchConfig schedules unattended sync runs.
type WatchConfig struct {
	Schedule string `yaml:"schedule" mapstructure:"schedule"`
}

const (
	// DefaultTenantID is the Microsoft "common" tenant (supports personal and
	// multi-tenant organisational accounts without additional registration).
	DefaultTenantID = "common"
	// DefaultClientID is the well-known public Azure CLI app ID. It supports
	// device code flow without a client secret.
	DefaultClientID = "04b07795-8542-4c4a-95af-30b2c573d5ab"
	// DefaultJQL selects open issues in the current user's open sprints.
	DefaultJQL = "sprint in openSprints() AND assignee = currentUser()"
)

// Default returns a Config pre-filled with the built-in defaults.
func Default() Config {
	return Config{
		Jira: JiraConfig{
			JQL:     DefaultJQL,
			Timeout: "30s",
		},
		Outlook: OutlookConfig{
			TenantID: DefaultTenantID,
			ClientID: DefaultClientID,
		},
		Worklog: WorklogConfig{
			DailyHoursLimit: 8,
			RecoveryWindow:  "10m",
		},
		Link: LinkConfig{
			Patterns:       []string{autolink.DefaultPattern},
			FuzzyThreshold: autolink.DefaultThreshold,
			RequireKnown:   true,
		},
		Fill: FillConfig{
			DayStart:     "09:00",
			DayEnd:       "17:00",
			Granularity:  "15m",
			SkipAbove:    6,
			SkipWeekends: true,
			Comment:      "Gap fill",
		},
		Storage: StorageConfig{
			Backend: storage.KindJSON,
		},
		Watch: WatchConfig{
			Schedule: "0 17 * * 1-5",
		},
	}
}

// FilePath returns the path to config.yaml inside the wsync base directory.
func FilePath() (string, error) {
	dir, err := storage.BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the config file, creating it with annotated defaults on first
// run. Environment overrides apply in both cases.
func Load() (Config, error) {
	path, err := FilePath()
	if err != nil {
		return Default(), err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if writeErr := WriteDefault(path); writeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not create config file %s: %v\n", path, writeErr)
		}
	}
	return LoadFile(path)
}

// LoadFile reads the config at path on top of the defaults. A missing file
// yields the defaults plus environment overrides.
func LoadFile(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix("WSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Default(), fmt.Errorf("parsing config file %s: %w\nTip: delete the file to regenerate defaults", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Default(), fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// setDefaults registers every key so that AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("jira.base_url", d.Jira.BaseURL)
	v.SetDefault("jira.email", d.Jira.Email)
	v.SetDefault("jira.api_token", d.Jira.APIToken)
	v.SetDefault("jira.bearer_token", d.Jira.BearerToken)
	v.SetDefault("jira.jql", d.Jira.JQL)
	v.SetDefault("jira.timeout", d.Jira.Timeout)
	v.SetDefault("outlook.tenant_id", d.Outlook.TenantID)
	v.SetDefault("outlook.client_id", d.Outlook.ClientID)
	v.SetDefault("outlook.timezone", d.Outlook.Timezone)
	v.SetDefault("worklog.daily_hours_limit", d.Worklog.DailyHoursLimit)
	v.SetDefault("worklog.recovery_window", d.Worklog.RecoveryWindow)
	v.SetDefault("link.patterns", d.Link.Patterns)
	v.SetDefault("link.fuzzy_threshold", d.Link.FuzzyThreshold)
	v.SetDefault("link.require_known", d.Link.RequireKnown)
	v.SetDefault("fill.day_start", d.Fill.DayStart)
	v.SetDefault("fill.day_end", d.Fill.DayEnd)
	v.SetDefault("fill.granularity", d.Fill.Granularity)
	v.SetDefault("fill.skip_above_hours", d.Fill.SkipAbove)
	v.SetDefault("fill.skip_weekends", d.Fill.SkipWeekends)
	v.SetDefault("fill.comment", d.Fill.Comment)
	v.SetDefault("storage.backend", d.Storage.Backend)
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("notify.slack_token", d.Notify.SlackToken)
	v.SetDefault("notify.slack_channel", d.Notify.SlackChannel)
	v.SetDefault("watch.schedule", d.Watch.Schedule)
}

// Validate checks values that would otherwise fail later at use.
func (c Config) Validate() error {
	var errs []error
	if _, err := timecalc.ParseClock(c.Fill.DayStart); err != nil {
		errs = append(errs, fmt.Errorf("fill.day_start: %w", err))
	}
	if _, err := timecalc.ParseClock(c.Fill.DayEnd); err != nil {
		errs = append(errs, fmt.Errorf("fill.day_end: %w", err))
	}
	if start, end := mustClock(c.Fill.DayStart), mustClock(c.Fill.DayEnd); start >= end {
		errs = append(errs, fmt.Errorf("fill.day_start %s must be before fill.day_end %s", c.Fill.DayStart, c.Fill.DayEnd))
	}
	if d, err := time.ParseDuration(c.Fill.Granularity); err != nil || d <= 0 {
		errs = append(errs, fmt.Errorf("fill.granularity: invalid duration %q", c.Fill.Granularity))
	}
	if d, err := time.ParseDuration(c.Worklog.RecoveryWindow); err != nil || d <= 0 {
		errs = append(errs, fmt.Errorf("worklog.recovery_window: invalid duration %q", c.Worklog.RecoveryWindow))
	}
	if c.Jira.Timeout != "" {
		if _, err := time.ParseDuration(c.Jira.Timeout); err != nil {
			errs = append(errs, fmt.Errorf("jira.timeout: %w", err))
		}
	}
	if c.Worklog.DailyHoursLimit < 0 || c.Worklog.DailyHoursLimit > 24 {
		errs = append(errs, fmt.Errorf("worklog.daily_hours_limit must be within 0..24, got %g", c.Worklog.DailyHoursLimit))
	}
	if c.Link.FuzzyThreshold < 0 || c.Link.FuzzyThreshold > 1 {
		errs = append(errs, fmt.Errorf("link.fuzzy_threshold must be within 0..1, got %g", c.Link.FuzzyThreshold))
	}
	for _, p := range c.Link.Patterns {
		if _, err := regexp.Compile(p); err != nil {
			errs = append(errs, fmt.Errorf("link.patterns: %w", err))
		}
	}
	switch c.Storage.Backend {
	case storage.KindJSON, storage.KindSQLite:
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be %q or %q, got %q", storage.KindJSON, storage.KindSQLite, c.Storage.Backend))
	}
	if c.Watch.Schedule != "" {
		if _, err := cron.ParseStandard(c.Watch.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("watch.schedule: %w", err))
		}
	}
	if c.Outlook.Timezone != "" {
		if _, err := time.LoadLocation(c.Outlook.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("outlook.timezone: %w", err))
		}
	}
	return errors.Join(errs...)
}

func mustClock(s string) time.Duration {
	d, _ := timecalc.ParseClock(s)
	return d
}

// LinkerConfig returns the auto-linker settings.
func (c Config) LinkerConfig() autolink.Config {
	return autolink.Config{
		Patterns:       c.Link.Patterns,
		FuzzyThreshold: c.Link.FuzzyThreshold,
		RequireKnown:   c.Link.RequireKnown,
	}
}

// FillerConfig returns the gap filler settings. Call Validate first.
func (c Config) FillerConfig() gapfill.Config {
	gran, _ := time.ParseDuration(c.Fill.Granularity)
	return gapfill.Config{
		DayStart:     mustClock(c.Fill.DayStart),
		DayEnd:       mustClock(c.Fill.DayEnd),
		Granularity:  gran,
		DailyLimit:   hours(c.Worklog.DailyHoursLimit),
		SkipAbove:    hours(c.Fill.SkipAbove),
		SkipWeekends: c.Fill.SkipWeekends,
		Comment:      c.Fill.Comment,
	}
}

// ReconcilerConfig returns the push settings.
func (c Config) ReconcilerConfig() worklog.Config {
	return worklog.Config{DailyLimitSeconds: int64(hours(c.Worklog.DailyHoursLimit).Seconds())}
}

// RecoveryWindow returns the reconstruct grouping window.
func (c Config) RecoveryWindow() time.Duration {
	d, err := time.ParseDuration(c.Worklog.RecoveryWindow)
	if err != nil {
		return worklog.DefaultRecoveryWindow
	}
	return d
}

// JiraTimeout returns the HTTP timeout for Jira calls.
func (c Config) JiraTimeout() time.Duration {
	d, err := time.ParseDuration(c.Jira.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

// Redacted returns a copy with secrets masked, for display.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	c.Jira.APIToken = mask(c.Jira.APIToken)
	c.Jira.BearerToken = mask(c.Jira.BearerToken)
	c.Notify.SlackToken = mask(c.Notify.SlackToken)
	return c
}

// YAML renders the config as YAML.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
