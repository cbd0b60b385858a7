package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "GAMETIME_"

func applyEnv(cfg *Config, getenv func(string) string) error {
	if getenv == nil {
		return nil
	}
	get := func(key string) string { return strings.TrimSpace(getenv(envPrefix + key)) }

	strs := map[string]*string{
		"ADDR":       &cfg.Addr,
		"DB_PATH":    &cfg.DBPath,
		"TIMEZONE":   &cfg.Timezone,
		"JWT_SECRET": &cfg.JWTSecret,
		"LOG_LEVEL":  &cfg.LogLevel,
		"LOG_PATH":   &cfg.LogPath,
	}
	for key, dst := range strs {
		if v := get(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"RATE_LIMIT_PER_MINUTE": &cfg.RateLimitPerMinute,
		"LOG_MAX_SIZE_MB":       &cfg.LogMaxSizeMB,
		"LOG_MAX_BACKUPS":       &cfg.LogMaxBackups,
		"LOG_MAX_AGE_DAYS":      &cfg.LogMaxAgeDays,
		"AUTO_SETTLE_LAG_DAYS":  &cfg.AutoSettleLagDays,
	}
	for key, dst := range ints {
		if v := get(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, key, err)
			}
			*dst = n
		}
	}

	bools := map[string]*bool{
		"LOG_COMPRESS":     &cfg.LogCompress,
		"AUTO_SETTLE":      &cfg.AutoSettle,
		"ENABLE_SCENARIOS": &cfg.EnableScenarios,
	}
	for key, dst := range bools {
		if v := get(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, key, err)
			}
			*dst = b
		}
	}

	durations := map[string]*time.Duration{
		"TOKEN_TTL":            &cfg.TokenTTL,
		"AUTO_SETTLE_INTERVAL": &cfg.AutoSettleInterval,
	}
	for key, dst := range durations {
		if v := get(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, key, err)
			}
			*dst = d
		}
	}

	if v := get("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
