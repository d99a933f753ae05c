// Package config loads dayplan configuration from ~/.dayplan/config.yaml,
// with environment variable overrides (DAYPLAN_ prefix) and sane defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dayplanhq/dayplan/internal/model"
)

// Config holds all dayplan settings.
type Config struct {
	// UserID identifies the local user for token storage and sync state.
	UserID string `mapstructure:"user_id"`

	// DBPath is the SQLite database file path.
	DBPath string `mapstructure:"db_path"`

	// CredentialsPath is the directory holding credentials.json and
	// per-user OAuth token files.
	CredentialsPath string `mapstructure:"credentials_path"`

	// CalendarID is the Google Calendar to sync against.
	CalendarID string `mapstructure:"calendar_id"`

	// TaskListID is the Google Tasks list to sync against.
	TaskListID string `mapstructure:"tasklist_id"`

	// LogFile, when set, routes daemon logs through a rotating file.
	LogFile string `mapstructure:"log_file"`

	Workday   WorkdayConfig   `mapstructure:"workday"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Daemon    DaemonConfig    `mapstructure:"daemon"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
}

// WorkdayConfig bounds the scheduling window and names the user's
// energy pattern.
type WorkdayConfig struct {
	StartHour int   `mapstructure:"start_hour"`
	EndHour   int   `mapstructure:"end_hour"`
	PeakHours []int `mapstructure:"peak_hours"`
	LowHours  []int `mapstructure:"low_hours"`
}

// RetryConfig tunes the sync retry policy.
type RetryConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
	MaxDelay   time.Duration `mapstructure:"max_delay"`
}

// DaemonConfig tunes the background sync worker.
type DaemonConfig struct {
	DrainInterval time.Duration `mapstructure:"drain_interval"`
}

// DashboardConfig tunes the WebSocket dashboard.
type DashboardConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Dir returns the dayplan home directory (~/.dayplan), creating it if
// needed.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	dir := filepath.Join(home, ".dayplan")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return dir, nil
}

// Default returns the built-in configuration, rooted at dir.
func Default(dir string) *Config {
	return &Config{
		UserID:          "default",
		DBPath:          filepath.Join(dir, "dayplan.db"),
		CredentialsPath: dir,
		CalendarID:      "primary",
		TaskListID:      "@default",
		Workday: WorkdayConfig{
			StartHour: 8,
			EndHour:   20,
			PeakHours: []int{9, 10, 11},
			LowHours:  []int{13, 14},
		},
		Retry: RetryConfig{
			MaxRetries: 5,
			BaseDelay:  time.Second,
			MaxDelay:   60 * time.Second,
		},
		Daemon: DaemonConfig{
			DrainInterval: 30 * time.Second,
		},
		Dashboard: DashboardConfig{
			Enabled: false,
			Addr:    ":8990",
		},
	}
}

// Load reads config.yaml from the dayplan home directory if present,
// applies DAYPLAN_* environment overrides, and fills in defaults.
func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return LoadFrom(dir)
}

// LoadFrom loads configuration rooted at an explicit directory. Tests
// use this to avoid touching the real home directory.
func LoadFrom(dir string) (*Config, error) {
	cfg := Default(dir)

	v := viper.New()
	v.SetConfigFile(filepath.Join(dir, "config.yaml"))
	v.SetConfigType("yaml")

	v.SetEnvPrefix("DAYPLAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine; anything else is not.
		if _, ok := err.(*os.PathError); !ok && !os.IsNotExist(err) {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the scheduler or syncer cannot work
// with.
func (c *Config) Validate() error {
	if c.Workday.StartHour < 0 || c.Workday.StartHour > 23 {
		return fmt.Errorf("workday start_hour %d out of range", c.Workday.StartHour)
	}
	if c.Workday.EndHour < 1 || c.Workday.EndHour > 24 {
		return fmt.Errorf("workday end_hour %d out of range", c.Workday.EndHour)
	}
	if c.Workday.EndHour <= c.Workday.StartHour {
		return fmt.Errorf("workday end_hour %d must be after start_hour %d",
			c.Workday.EndHour, c.Workday.StartHour)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry max_retries must be non-negative, got %d", c.Retry.MaxRetries)
	}
	if c.Retry.BaseDelay <= 0 {
		return fmt.Errorf("retry base_delay must be positive, got %s", c.Retry.BaseDelay)
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry max_delay %s must be at least base_delay %s",
			c.Retry.MaxDelay, c.Retry.BaseDelay)
	}
	if c.Daemon.DrainInterval <= 0 {
		return fmt.Errorf("daemon drain_interval must be positive, got %s", c.Daemon.DrainInterval)
	}
	return nil
}

// EnergyProfile converts the configured peak/low hours into the profile
// the scheduler consumes.
func (c *Config) EnergyProfile() model.EnergyProfile {
	return model.EnergyProfile{
		PeakHours: c.Workday.PeakHours,
		LowHours:  c.Workday.LowHours,
	}
}
