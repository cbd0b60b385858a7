// Package config loads server settings from defaults, an optional JSON
// file, GAMETIME_* environment variables and command-line flags, in that
// order of precedence (later wins).
package config

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata" // zone database for hosts without one
)

// Config holds runtime settings for the gametime server.
type Config struct {
	Addr     string
	DBPath   string
	Timezone string // IANA name; every day boundary uses it

	JWTSecret string
	TokenTTL  time.Duration

	AllowedOrigins     []string
	RateLimitPerMinute int

	LogLevel      string
	LogPath       string // empty: stdout only
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool

	// AutoSettle settles today minus AutoSettleLagDays for every student,
	// once per AutoSettleInterval.
	AutoSettle         bool
	AutoSettleLagDays  int
	AutoSettleInterval time.Duration

	// EnableScenarios mounts the demo scenario endpoints. Dev only.
	EnableScenarios bool
}

// LoadDefaults populates development defaults. JWTSecret has none.
func (c *Config) LoadDefaults() {
	c.Addr = ":8080"
	c.DBPath = "./data/gametime.db"
	c.Timezone = "Asia/Shanghai"
	c.TokenTTL = 7 * 24 * time.Hour
	c.AllowedOrigins = []string{"*"}
	c.RateLimitPerMinute = 120
	c.LogLevel = "info"
	c.LogMaxSizeMB = 100
	c.LogMaxBackups = 3
	c.LogMaxAgeDays = 7
	c.AutoSettleLagDays = 1
	c.AutoSettleInterval = time.Hour
}

// Load builds a Config from defaults, then the JSON file named by -config,
// then the environment, then the remaining flags.
func Load(args []string, getenv func(string) string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	fl, err := parseFlags(args)
	if err != nil {
		return nil, err
	}
	if fl.configFile != "" {
		if err := loadJSON(fl.configFile, cfg); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(cfg, getenv); err != nil {
		return nil, err
	}
	fl.apply(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt secret must be set (GAMETIME_JWT_SECRET or -jwt-secret)"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db path must be set"))
	}
	if c.AutoSettle && c.AutoSettleInterval <= 0 {
		errs = append(errs, errors.New("auto-settle interval must be positive"))
	}
	if c.AutoSettleLagDays < 0 {
		errs = append(errs, errors.New("auto-settle lag must not be negative"))
	}
	return errors.Join(errs...)
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
