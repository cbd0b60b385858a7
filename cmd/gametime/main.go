package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/warp/gametime/cli"
	"github.com/warp/gametime/ledger"
	"github.com/warp/gametime/logging"
	"github.com/warp/gametime/store/sqlite"
)

func main() {
	var c cli.CLI
	parser, err := cli.NewParser(&c)
	if err != nil {
		panic(err)
	}
	kctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	if err := run(kctx.Run, &c); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(exec func(...any) error, c *cli.CLI) error {
	loc, err := time.LoadLocation(c.TZ)
	if err != nil {
		return fmt.Errorf("timezone %q: %w", c.TZ, err)
	}

	// Logs go to stderr so command output stays pipeable.
	logger, err := logging.New(logging.Options{Level: c.LogLevel, Console: os.Stderr})
	if err != nil {
		return err
	}
	defer logger.Sync()

	if c.DB != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(c.DB), 0o755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
	}

	ctx := context.Background()
	store, err := sqlite.New(ctx, c.DB)
	if err != nil {
		return err
	}
	defer store.Close()

	return exec(&cli.Context{
		Ctx:    ctx,
		Store:  store,
		Ledger: ledger.New(store, ledger.WithLogger(logger)),
		Loc:    loc,
		Out:    os.Stdout,
		Now:    time.Now,
	})
}
