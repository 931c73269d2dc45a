package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// Config is the whole YAML config file.
//
// All durations are Go duration strings (e.g. "500ms", "30s", "1m").
// Unknown fields are rejected so typos fail fast at startup.
type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Logging  LoggingConfig  `yaml:"logging"`
	Data     DataConfig     `yaml:"data"`
	Storage  StorageConfig  `yaml:"storage"`
	Notify   NotifyConfig   `yaml:"notify"`

	// Timezone is the single fixed IANA zone all schedule matching runs in.
	Timezone string `yaml:"timezone"`
}

type TelegramConfig struct {
	Token   string `yaml:"token"`
	AdminID int64  `yaml:"admin_id"`

	// PollTimeout is the long-poll timeout. Default "10s".
	PollTimeout string `yaml:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string     `yaml:"level,omitempty"` // trace|debug|info|warn|error
	Console bool       `yaml:"console"`
	File    FileTarget `yaml:"file,omitempty"`
}

type FileTarget struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`
}

// DataConfig points at the read-only reference data files.
// Missing files degrade official-schedule features but do not stop the bot.
type DataConfig struct {
	TimetablePath  string `yaml:"timetable_path"`
	RoomImagesPath string `yaml:"room_images_path"`

	// Watch reloads reference data when either file changes on disk.
	Watch bool `yaml:"watch"`
}

// StorageConfig controls the user-table persistence backend.
//
// Driver values:
//   - "file": JSON snapshot, rewritten atomically on every mutation (default)
//   - "sqlite": SQLite database file (requires the `sqlite` build tag)
type StorageConfig struct {
	Driver string `yaml:"driver,omitempty"`
	Path   string `yaml:"path,omitempty"`
}

// NotifyConfig controls the notification scheduler.
type NotifyConfig struct {
	CheckInterval string `yaml:"check_interval,omitempty"` // default "60s"

	DefaultOffsetMin int `yaml:"default_offset_min,omitempty"` // default 10
	MinOffsetMin     int `yaml:"min_offset_min,omitempty"`     // default 1
	MaxOffsetMin     int `yaml:"max_offset_min,omitempty"`     // default 120

	MaxCustomLessons int `yaml:"max_custom_lessons,omitempty"` // default 12

	// RatePerSec paces outbound reminder sends. Advisory, not correctness.
	RatePerSec          int `yaml:"rate_per_sec,omitempty"`           // default 20
	BroadcastRatePerSec int `yaml:"broadcast_rate_per_sec,omitempty"` // default 10

	// LearnCron is a standard cron spec for the fixed learn-platform reminder.
	LearnCron string `yaml:"learn_cron,omitempty"` // default "40 19 * * MON,WED,FRI"
	LearnText string `yaml:"learn_text,omitempty"`
}

const defaultLearnText = "Do not forget to complete quizzes on https://learn.astanait.edu.kz/ ! :)"

// Load reads, strictly decodes, defaults and validates the config file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes raw YAML bytes. Split from Load for tests.
func Parse(b []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Timezone == "" {
		c.Timezone = "Asia/Almaty"
	}
	if c.Telegram.PollTimeout == "" {
		c.Telegram.PollTimeout = "10s"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if !c.Logging.Console && !c.Logging.File.Enabled {
		c.Logging.Console = true
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "file"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "./data/users.json"
	}
	n := &c.Notify
	if n.CheckInterval == "" {
		n.CheckInterval = "60s"
	}
	if n.DefaultOffsetMin <= 0 {
		n.DefaultOffsetMin = 10
	}
	if n.MinOffsetMin <= 0 {
		n.MinOffsetMin = 1
	}
	if n.MaxOffsetMin <= 0 {
		n.MaxOffsetMin = 120
	}
	if n.MaxCustomLessons <= 0 {
		n.MaxCustomLessons = 12
	}
	if n.RatePerSec <= 0 {
		n.RatePerSec = 20
	}
	if n.BroadcastRatePerSec <= 0 {
		n.BroadcastRatePerSec = 10
	}
	if n.LearnCron == "" {
		n.LearnCron = "40 19 * * MON,WED,FRI"
	}
	if n.LearnText == "" {
		n.LearnText = defaultLearnText
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone: invalid zone %q: %w", c.Timezone, err)
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}
	if d, err := ParseDurationField("notify.check_interval", c.Notify.CheckInterval); err != nil {
		return err
	} else if d > time.Minute {
		// A tick longer than a minute skips minute-exact matches entirely.
		return fmt.Errorf("notify.check_interval: must be <= 1m, got %s", d)
	}
	if c.Notify.MinOffsetMin > c.Notify.MaxOffsetMin {
		return fmt.Errorf("notify: min_offset_min (%d) > max_offset_min (%d)",
			c.Notify.MinOffsetMin, c.Notify.MaxOffsetMin)
	}
	switch strings.ToLower(c.Storage.Driver) {
	case "file", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	return nil
}

// Location resolves the configured timezone. Config is validated, so this
// only fails if tzdata vanished after startup checks.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// CheckInterval returns the validated scheduler tick interval.
func (c *Config) CheckInterval() time.Duration {
	d, err := ParseDurationField("notify.check_interval", c.Notify.CheckInterval)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}

// PollTimeout returns the validated telegram long-poll timeout.
func (c *Config) PollTimeout() time.Duration {
	d, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}
