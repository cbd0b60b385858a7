package config

import (
	"flag"
	"io"
)

// flagValues records only the flags actually given, so unset flags never
// override the file or the environment.
type flagValues struct {
	configFile string
	set        map[string]bool

	addr       string
	dbPath     string
	timezone   string
	jwtSecret  string
	logLevel   string
	logPath    string
	autoSettle bool
	scenarios  bool
}

func parseFlags(args []string) (*flagValues, error) {
	fv := &flagValues{}

	fs := flag.NewFlagSet("gametime-server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&fv.configFile, "config", "", "path to JSON config file")
	fs.StringVar(&fv.addr, "addr", "", "HTTP listen address")
	fs.StringVar(&fv.dbPath, "db", "", "SQLite database path")
	fs.StringVar(&fv.timezone, "tz", "", "IANA timezone for day boundaries")
	fs.StringVar(&fv.jwtSecret, "jwt-secret", "", "HMAC secret for session tokens")
	fs.StringVar(&fv.logLevel, "log-level", "", "debug, info, warn or error")
	fs.StringVar(&fv.logPath, "log-path", "", "rotating log file path")
	fs.BoolVar(&fv.autoSettle, "auto-settle", false, "settle past days automatically")
	fs.BoolVar(&fv.scenarios, "scenarios", false, "mount demo scenario endpoints")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	fv.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { fv.set[f.Name] = true })
	return fv, nil
}

func (fv *flagValues) apply(cfg *Config) {
	if fv.set["addr"] {
		cfg.Addr = fv.addr
	}
	if fv.set["db"] {
		cfg.DBPath = fv.dbPath
	}
	if fv.set["tz"] {
		cfg.Timezone = fv.timezone
	}
	if fv.set["jwt-secret"] {
		cfg.JWTSecret = fv.jwtSecret
	}
	if fv.set["log-level"] {
		cfg.LogLevel = fv.logLevel
	}
	if fv.set["log-path"] {
		cfg.LogPath = fv.logPath
	}
	if fv.set["auto-settle"] {
		cfg.AutoSettle = fv.autoSettle
	}
	if fv.set["scenarios"] {
		cfg.EnableScenarios = fv.scenarios
	}
}
