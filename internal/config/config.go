package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"nextmeet/internal/model"
)

const (
	defaultListen             = "127.0.0.1:8080"
	defaultTimezone           = "UTC"
	defaultLogLevel           = "info"
	defaultRefreshCron        = "*/15 * * * *"
	defaultCacheDir           = "./var/ics-cache"
	defaultCacheTTLSeconds    = 300
	defaultRateLimitPerMinute = 60
)

// MeetingConfig describes one meeting group and where its calendar lives.
type MeetingConfig struct {
	// Group is the key used on the command line and in API paths.
	Group string `yaml:"group" json:"group"`
	// Name is the human-friendly group name used in messages. Optional.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	// CalendarFilter must appear (case-sensitive) in an event's summary or
	// description for the event to be considered.
	CalendarFilter string `yaml:"calendar_filter" json:"calendar_filter"`
	// ICSURL is the calendar feed endpoint.
	ICSURL string `yaml:"ics_url" json:"-"`
}

// Identity returns the meeting identity used by the resolver.
func (m MeetingConfig) Identity() model.MeetingIdentity {
	return model.MeetingIdentity{
		GroupName:      m.Name,
		CalendarFilter: m.CalendarFilter,
	}
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address used with -serve.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone used to print resolved occurrences.
	// Resolution itself always works on the UTC week.
	Timezone string `yaml:"timezone" json:"timezone"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// RefreshCron is a standard 5-field cron expression controlling how
	// often -serve re-resolves every group.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// CacheDir holds per-feed HTTP cache entries.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// CacheTTLSeconds bounds how long a resolution is served from memory.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds" json:"cache_ttl_seconds"`

	// RateLimitPerMinute is the per-client API request budget. Zero or
	// negative disables limiting.
	RateLimitPerMinute int `yaml:"rate_limit_per_minute" json:"rate_limit_per_minute"`

	Meetings []MeetingConfig `yaml:"meetings" json:"meetings"`

	// BasicAuth, if set, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:             defaultListen,
		Timezone:           defaultTimezone,
		LogLevel:           defaultLogLevel,
		RefreshCron:        defaultRefreshCron,
		CacheDir:           defaultCacheDir,
		CacheTTLSeconds:    defaultCacheTTLSeconds,
		RateLimitPerMinute: defaultRateLimitPerMinute,
		Meetings:           []MeetingConfig{},
	}
}

// Normalize fills in missing/zero values so that partially-filled configs
// still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.CacheTTLSeconds <= 0 {
		c.CacheTTLSeconds = defaultCacheTTLSeconds
	}
	if c.Meetings == nil {
		c.Meetings = []MeetingConfig{}
	}
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		return fmt.Errorf("refresh %q: %w", c.RefreshCron, err)
	}

	seen := make(map[string]bool, len(c.Meetings))
	for i, m := range c.Meetings {
		if m.Group == "" {
			return fmt.Errorf("meetings[%d]: group is required", i)
		}
		if seen[m.Group] {
			return fmt.Errorf("meetings[%d]: duplicate group %q", i, m.Group)
		}
		seen[m.Group] = true

		if m.CalendarFilter == "" {
			return fmt.Errorf("meeting %q: calendar_filter is required", m.Group)
		}
		u, err := url.Parse(m.ICSURL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "webcal") {
			return fmt.Errorf("meeting %q: ics_url must be an http(s) or webcal URL", m.Group)
		}
	}

	if c.BasicAuth != nil && (c.BasicAuth.Username == "") != (c.BasicAuth.Password == "") {
		return errors.New("basic_auth: username and password must both be set")
	}
	return nil
}

// Meeting looks up a meeting group by its key.
func (c *Config) Meeting(group string) (MeetingConfig, bool) {
	for _, m := range c.Meetings {
		if m.Group == group {
			return m, true
		}
	}
	return MeetingConfig{}, false
}

// Location returns the display location, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// CacheTTL returns CacheTTLSeconds as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     permissions and returned.
//   - Otherwise the YAML is decoded and normalized.
//
// Validation is left to the caller so a first-run config can be written
// before it is filled in.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
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
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
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

	tmp, err := os.CreateTemp(dir, ".nextmeet-config-*.tmp")
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

// Save is a convenience wrapper around the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
