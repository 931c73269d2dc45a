package config

import (
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
telegram:
  token: "123:abc"
`

func TestParseDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Timezone != "Asia/Almaty" {
		t.Errorf("timezone = %q", cfg.Timezone)
	}
	if got := cfg.CheckInterval(); got != time.Minute {
		t.Errorf("check interval = %v", got)
	}
	if got := cfg.PollTimeout(); got != 10*time.Second {
		t.Errorf("poll timeout = %v", got)
	}
	n := cfg.Notify
	if n.DefaultOffsetMin != 10 || n.MinOffsetMin != 1 || n.MaxOffsetMin != 120 {
		t.Errorf("offset defaults = %d/%d/%d", n.DefaultOffsetMin, n.MinOffsetMin, n.MaxOffsetMin)
	}
	if n.MaxCustomLessons != 12 {
		t.Errorf("max custom lessons = %d", n.MaxCustomLessons)
	}
	if n.LearnCron != "40 19 * * MON,WED,FRI" {
		t.Errorf("learn cron = %q", n.LearnCron)
	}
	if cfg.Storage.Driver != "file" {
		t.Errorf("storage driver = %q", cfg.Storage.Driver)
	}
	if !cfg.Logging.Console {
		t.Error("console logging not defaulted on")
	}
	if _, err := cfg.Location(); err != nil {
		t.Errorf("default timezone does not load: %v", err)
	}
}

func TestParseRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", "telegram:\n  token: x\n  tokken: y\n", "tokken"},
		{"missing token", "timezone: UTC\n", "telegram.token"},
		{"bad timezone", "telegram:\n  token: x\ntimezone: Mars/Olympus\n", "timezone"},
		{"interval too long", "telegram:\n  token: x\nnotify:\n  check_interval: 2m\n", "check_interval"},
		{"bad interval", "telegram:\n  token: x\nnotify:\n  check_interval: soon\n", "check_interval"},
		{"offsets inverted", "telegram:\n  token: x\nnotify:\n  min_offset_min: 60\n  max_offset_min: 5\n", "min_offset_min"},
		{"unknown driver", "telegram:\n  token: x\nstorage:\n  driver: postgres\n", "driver"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse accepted invalid config")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestParseOverrides(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(`
telegram:
  token: "123:abc"
  admin_id: 42
  poll_timeout: 30s
timezone: Europe/Berlin
notify:
  check_interval: 30s
  default_offset_min: 15
  learn_text: "custom reminder"
storage:
  driver: sqlite
  path: ./users.db
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Telegram.AdminID != 42 {
		t.Errorf("admin id = %d", cfg.Telegram.AdminID)
	}
	if got := cfg.CheckInterval(); got != 30*time.Second {
		t.Errorf("check interval = %v", got)
	}
	if cfg.Notify.DefaultOffsetMin != 15 {
		t.Errorf("default offset = %d", cfg.Notify.DefaultOffsetMin)
	}
	if cfg.Notify.LearnText != "custom reminder" {
		t.Errorf("learn text = %q", cfg.Notify.LearnText)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("driver = %q", cfg.Storage.Driver)
	}
}
