package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// fileConfig mirrors Config for JSON. Pointer fields distinguish "absent"
// from zero so a partial file only overrides what it names.
type fileConfig struct {
	Addr               *string   `json:"addr"`
	DBPath             *string   `json:"db_path"`
	Timezone           *string   `json:"timezone"`
	JWTSecret          *string   `json:"jwt_secret"`
	TokenTTL           *duration `json:"token_ttl"`
	AllowedOrigins     []string  `json:"allowed_origins"`
	RateLimitPerMinute *int      `json:"rate_limit_per_minute"`
	LogLevel           *string   `json:"log_level"`
	LogPath            *string   `json:"log_path"`
	LogMaxSizeMB       *int      `json:"log_max_size_mb"`
	LogMaxBackups      *int      `json:"log_max_backups"`
	LogMaxAgeDays      *int      `json:"log_max_age_days"`
	LogCompress        *bool     `json:"log_compress"`
	AutoSettle         *bool     `json:"auto_settle"`
	AutoSettleLagDays  *int      `json:"auto_settle_lag_days"`
	AutoSettleInterval *duration `json:"auto_settle_interval"`
	EnableScenarios    *bool     `json:"enable_scenarios"`
}

// duration accepts "36h" style strings or integer nanoseconds.
type duration time.Duration

func (d *duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = duration(time.Duration(value))
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = duration(parsed)
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
	return nil
}

func loadJSON(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := json.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&cfg.Addr, fc.Addr)
	setString(&cfg.DBPath, fc.DBPath)
	setString(&cfg.Timezone, fc.Timezone)
	setString(&cfg.JWTSecret, fc.JWTSecret)
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.LogPath, fc.LogPath)
	setInt(&cfg.RateLimitPerMinute, fc.RateLimitPerMinute)
	setInt(&cfg.LogMaxSizeMB, fc.LogMaxSizeMB)
	setInt(&cfg.LogMaxBackups, fc.LogMaxBackups)
	setInt(&cfg.LogMaxAgeDays, fc.LogMaxAgeDays)
	setInt(&cfg.AutoSettleLagDays, fc.AutoSettleLagDays)
	setBool(&cfg.LogCompress, fc.LogCompress)
	setBool(&cfg.AutoSettle, fc.AutoSettle)
	setBool(&cfg.EnableScenarios, fc.EnableScenarios)
	if fc.TokenTTL != nil {
		cfg.TokenTTL = time.Duration(*fc.TokenTTL)
	}
	if fc.AutoSettleInterval != nil {
		cfg.AutoSettleInterval = time.Duration(*fc.AutoSettleInterval)
	}
	if len(fc.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = fc.AllowedOrigins
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
