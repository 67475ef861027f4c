package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var ErrEmptyPath = errors.New("config path is empty")

// ICSConfig describes a read-only ICS overlay feed shown next to the
// platform calendars.
type ICSConfig struct {
	URL   string `yaml:"url" json:"url"`
	ID    string `yaml:"id" json:"id"`
	Name  string `yaml:"name" json:"name"`
	Color string `yaml:"color,omitempty" json:"color,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// GridConfig controls the day/week time grid. PixelsPerHour drives both
// the rendered row height and drag sensitivity.
type GridConfig struct {
	PixelsPerHour    float64 `yaml:"pixels_per_hour" json:"pixels_per_hour"`
	SnapMinutes      int     `yaml:"snap_minutes" json:"snap_minutes"`
	MinResizeMinutes int     `yaml:"min_resize_minutes" json:"min_resize_minutes"`
	MinVisualMinutes float64 `yaml:"min_visual_minutes" json:"min_visual_minutes"`
	MonthCellLimit   int     `yaml:"month_cell_limit" json:"month_cell_limit"`
}

// APIConfig points at the platform's event REST API.
type APIConfig struct {
	BaseURL        string `yaml:"base_url" json:"base_url"`
	Token          string `yaml:"token,omitempty" json:"-"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// Timeout returns the request timeout as a duration.
func (a APIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the grid UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone used to cut days (e.g. "Europe/Berlin").
	Timezone string `yaml:"timezone" json:"timezone"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// RefreshCron is the cron schedule for refetching the current window.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// DefaultView is the view kind shown on startup.
	DefaultView string `yaml:"default_view" json:"default_view"`

	// DefaultColor is the accent used when neither event nor calendar has one.
	DefaultColor string `yaml:"default_color" json:"default_color"`

	Grid GridConfig `yaml:"grid" json:"grid"`
	API  APIConfig  `yaml:"api" json:"api"`

	// CalendarIDs restricts fetches to these calendars; empty means all.
	CalendarIDs []string `yaml:"calendar_ids" json:"calendar_ids"`

	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// CacheDir holds the ICS HTTP cache and the rendered preview.png.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values so partially-filled configs still
// behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/5 * * * *"
	}
	switch c.DefaultView {
	case "day", "week", "month", "year", "agenda":
	default:
		c.DefaultView = "week"
	}
	if c.DefaultColor == "" {
		c.DefaultColor = "#3b82f6"
	}

	if c.Grid.PixelsPerHour <= 0 {
		c.Grid.PixelsPerHour = 48
	}
	if c.Grid.SnapMinutes <= 0 {
		c.Grid.SnapMinutes = 30
	}
	if c.Grid.MinResizeMinutes <= 0 {
		c.Grid.MinResizeMinutes = 15
	}
	if c.Grid.MinVisualMinutes <= 0 {
		c.Grid.MinVisualMinutes = 30
	}
	if c.Grid.MonthCellLimit <= 0 {
		c.Grid.MonthCellLimit = 3
	}

	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
	if c.API.TimeoutSeconds <= 0 {
		c.API.TimeoutSeconds = 15
	}
	if c.CalendarIDs == nil {
		c.CalendarIDs = []string{}
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	if c.CacheDir == "" {
		c.CacheDir = "./var/opscal"
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is unmarshalled and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// ApplyEnv loads envFile (if present) into the process environment and then
// lets OPSCAL_* variables override secrets and endpoints.
func (c *Config) ApplyEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	if v := os.Getenv("OPSCAL_API_BASE_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("OPSCAL_API_TOKEN"); v != "" {
		c.API.Token = v
	}
	if v := os.Getenv("OPSCAL_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("OPSCAL_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	c.Normalize()
	return nil
}

// Location resolves Timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Save writes cfg atomically (temp file + rename) with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return ErrEmptyPath
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".opscal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method delegating to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
