/*
Package cli implements the gametime admin command line.

PURPOSE:
  Everything a parent can do through the API, from a shell: create
  accounts, log or correct a day, settle, redeem, adjust and inspect the
  ledger. "settle" with no student settles every student and is meant for
  cron on hosts that do not run the server's scheduler.

DAYS:
  Day arguments accept YYYY-MM-DD, "today" or "yesterday". Today is
  resolved in --tz, the same zone the server uses.

USAGE:
  gametime user add mum --role=admin          (password from GAMETIME_PASSWORD)
  gametime record kid today --screen=45 --homework --reading=35 --exercise=30
  gametime check kid today
  gametime settle                             (all students, yesterday)
  gametime redeem kid 30 --note="Mario Kart"
  gametime adjust kid --minutes=-20 --note="late to bed"
  gametime history kid --limit=10

SEE ALSO:
  - cmd/gametime/main.go: Store wiring
  - ledger/service.go:    Every ledger write goes through the service
*/
package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"github.com/warp/gametime/generic"
	"github.com/warp/gametime/ledger"
)

// CLI is the kong grammar.
type CLI struct {
	DB       string `help:"SQLite database path." default:"./data/gametime.db" env:"GAMETIME_DB_PATH"`
	TZ       string `name:"tz" help:"IANA timezone for day boundaries." default:"Asia/Shanghai" env:"GAMETIME_TIMEZONE"`
	LogLevel string `help:"Log level (debug, info, warn, error)." default:"warn" env:"GAMETIME_LOG_LEVEL"`

	User struct {
		Add  UserAddCmd  `cmd:"" help:"Create an account."`
		List UserListCmd `cmd:"" help:"List students."`
	} `cmd:"" help:"Manage accounts."`

	Record  RecordCmd  `cmd:"" help:"Log a student's activity for a day."`
	Note    NoteCmd    `cmd:"" help:"Add a reading note."`
	Check   CheckCmd   `cmd:"" help:"Set the parent check for a day."`
	Preview PreviewCmd `cmd:"" help:"Show what a day would earn."`
	Settle  SettleCmd  `cmd:"" help:"Credit a day's earned minutes."`
	Redeem  RedeemCmd  `cmd:"" help:"Spend game time."`
	Adjust  AdjustCmd  `cmd:"" help:"Add a manual correction."`
	Balance BalanceCmd `cmd:"" help:"Show a student's balance."`
	History HistoryCmd `cmd:"" help:"List ledger entries, newest first."`

	Scenarios ScenariosCmd `cmd:"" help:"List demo scenarios."`
	Seed      SeedCmd      `cmd:"" help:"Create a demo student from a scenario."`
}

// NewParser builds the kong parser. Options are appended to the defaults.
func NewParser(c *CLI, opts ...kong.Option) (*kong.Kong, error) {
	base := []kong.Option{
		kong.Name("gametime"),
		kong.Description("Household habit ledger: earn game time, spend it, keep the books."),
		kong.UsageOnError(),
	}
	return kong.New(c, append(base, opts...)...)
}

// Context is bound into every command's Run.
type Context struct {
	Ctx    context.Context
	Store  generic.AppStore
	Ledger *ledger.Service
	Loc    *time.Location
	Out    io.Writer
	Now    func() time.Time
}

func (c *Context) today() generic.Day {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return generic.DayOf(now(), c.Loc)
}

// parseDay accepts YYYY-MM-DD, "today" and "yesterday".
func (c *Context) parseDay(s string) (generic.Day, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "today":
		return c.today(), nil
	case "yesterday":
		return c.today().Prev(), nil
	}
	return generic.ParseDay(s)
}

// student resolves a username to a student account.
func (c *Context) student(username string) (generic.User, error) {
	u, err := c.Store.UserByName(c.Ctx, username)
	if err != nil {
		return generic.User{}, err
	}
	if u == nil {
		return generic.User{}, fmt.Errorf("%w: %q", generic.ErrNoSuchUser, username)
	}
	if u.Role != generic.RoleStudent {
		return generic.User{}, fmt.Errorf("%q is not a student", username)
	}
	return *u, nil
}

func (c *Context) printf(format string, args ...any) {
	fmt.Fprintf(c.Out, format, args...)
}
