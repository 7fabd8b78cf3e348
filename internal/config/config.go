package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	Timezone string `env:"PRIMARY_TIMEZONE" envDefault:"UTC"`

	HTTP struct {
		Listen  string `env:"MEETME_LISTEN" envDefault:":8080"`
		BaseURL string `env:"MEETME_BASE_URL" envDefault:"http://localhost:8080"`
	}

	Database struct {
		Path string `env:"DATABASE_PATH" envDefault:"data/meetme.db"`
	}

	Google struct {
		ClientID     string `env:"GOOGLE_CLIENT_ID"`
		ClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	}

	CalDAV struct {
		URL      string `env:"CALDAV_URL"`
		Username string `env:"CALDAV_USERNAME"`
		Password string `env:"CALDAV_PASSWORD"`
	}

	Session struct {
		TTL  time.Duration `env:"SESSION_TTL" envDefault:"24h"`
		Size int           `env:"SESSION_SIZE" envDefault:"1000"`
	}

	Cache struct {
		SchedulesSize int `env:"CACHE_SCHEDULES_SIZE" envDefault:"256"`
	}

	Purge struct {
		Retention time.Duration `env:"SCHEDULE_RETENTION" envDefault:"720h"`
		Cron      string        `env:"PURGE_CRON" envDefault:"@hourly"`
	}
}

// NewConfig reads the configuration from the environment.
func NewConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.HTTP.BaseURL = strings.TrimSuffix(cfg.HTTP.BaseURL, "/")

	if cfg.Session.Size <= 0 || cfg.Cache.SchedulesSize <= 0 {
		return nil, fmt.Errorf("SESSION_SIZE and CACHE_SCHEDULES_SIZE must be positive")
	}
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Location loads PRIMARY_TIMEZONE.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone '%s': %w", c.Timezone, err)
	}
	return loc, nil
}

// RedirectURL is the OAuth callback served by the web API.
func (c *Config) RedirectURL() string {
	return c.HTTP.BaseURL + "/oauth2callback"
}

// CalDAVEnabled reports whether a CalDAV server is configured.
func (c *Config) CalDAVEnabled() bool {
	return c.CalDAV.URL != ""
}
