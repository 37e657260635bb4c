package config

import (
	"fmt"
	"net/url"
	"time"
	"webopac/internal/components/telemetry"
	"webopac/lib/configutil"
)

// DefaultName is the file searched for from the working directory upwards.
const DefaultName = "config.json5"

type Library struct {
	BaseUrl string `json:"base_url"`
}

type Request struct {
	// Timeout in seconds, applied to every round trip.
	Timeout          float64 `json:"timeout"`
	CloudflareBypass bool    `json:"cloudflare_bypass"`
	DumpMessages     bool    `json:"dump_messages"`
}

type Smtp struct {
	Server       string `json:"server"`
	Port         int    `json:"port"`
	EmailAddress string `json:"email_address"`
	Password     string `json:"password"`
}

type Sessions struct {
	Db string `json:"db"`
}

type Server struct {
	Port int `json:"port"`
}

type Reminder struct {
	// Cron is the schedule of the daemon's reminder job, disabled when empty.
	Cron string `json:"cron"`
	// Days is how close a due date must be to be reminded of.
	Days int `json:"days"`
	// Recipients maps a stored account to the address its reminders go to.
	Recipients map[string]string `json:"recipients"`
}

type Config struct {
	Library   Library          `json:"library"`
	Request   Request          `json:"request"`
	Smtp      Smtp             `json:"smtp"`
	Sessions  Sessions         `json:"sessions"`
	Server    Server           `json:"server"`
	Reminder  Reminder         `json:"reminder"`
	Telemetry telemetry.Config `json:"telemetry"`
}

func (c Config) Timeout() time.Duration {
	return time.Duration(c.Request.Timeout * float64(time.Second))
}

func (c Config) Validate() error {
	if c.Library.BaseUrl == "" {
		return fmt.Errorf("library.base_url is required")
	}
	parsed, err := url.Parse(c.Library.BaseUrl)
	if err != nil {
		return fmt.Errorf("library.base_url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("library.base_url must be absolute, got %q", c.Library.BaseUrl)
	}
	if c.Request.Timeout <= 0 {
		return fmt.Errorf("request.timeout must be positive, got %v", c.Request.Timeout)
	}
	if c.Reminder.Days < 0 {
		return fmt.Errorf("reminder.days must not be negative, got %d", c.Reminder.Days)
	}
	return nil
}

func withDefaults(c Config) Config {
	if c.Sessions.Db == "" {
		c.Sessions.Db = "sessions.db"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Reminder.Days == 0 {
		c.Reminder.Days = 3
	}
	if c.Smtp.Port == 0 {
		c.Smtp.Port = 587
	}
	return c
}

// Load reads the static configuration store. A missing store is an error the
// caller is expected to treat as fatal.
func Load(name string) (Config, error) {
	cfg, path, err := configutil.ReadRecursively[Config](name)
	if err != nil {
		return Config{}, fmt.Errorf("read %s: %w", name, err)
	}
	cfg = withDefaults(cfg)
	err = cfg.Validate()
	if err != nil {
		return Config{}, fmt.Errorf("validate %s: %w", path, err)
	}
	return cfg, nil
}
