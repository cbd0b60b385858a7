package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/warp/gametime/auth"
	"github.com/warp/gametime/generic"
	"github.com/warp/gametime/scenarios"
)

// =============================================================================
// ACCOUNTS
// =============================================================================

type UserAddCmd struct {
	Username  string `arg:"" help:"Login name."`
	Role      string `help:"student or admin." enum:"student,admin" default:"student"`
	ChildName string `help:"Display name for a student."`
	Password  string `help:"Password." env:"GAMETIME_PASSWORD" required:""`
}

func (c *UserAddCmd) Run(app *Context) error {
	hash, err := auth.HashPassword(c.Password)
	if err != nil {
		return err
	}
	u, err := app.Store.CreateUser(app.Ctx, generic.User{
		Username:     c.Username,
		PasswordHash: hash,
		Role:         generic.Role(c.Role),
		ChildName:    c.ChildName,
	})
	if errors.Is(err, generic.ErrDuplicateUsername) {
		return fmt.Errorf("username %q is taken", c.Username)
	}
	if err != nil {
		return err
	}
	app.printf("created %s %s (id %d)\n", u.Role, u.Username, u.ID)
	return nil
}

type UserListCmd struct{}

func (c *UserListCmd) Run(app *Context) error {
	students, err := app.Store.Students(app.Ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(app.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSERNAME\tNAME")
	for _, s := range students {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", s.ID, s.Username, s.ChildName)
	}
	return tw.Flush()
}

// =============================================================================
// DEMO DATA
// =============================================================================

type ScenariosCmd struct{}

func (c *ScenariosCmd) Run(app *Context) error {
	tw := tabwriter.NewWriter(app.Out, 0, 0, 2, ' ', 0)
	for _, s := range scenarios.All() {
		fmt.Fprintf(tw, "%s\t%s\n", s.ID, s.Description)
	}
	return tw.Flush()
}

type SeedCmd struct {
	Scenario  string `arg:"" help:"Scenario ID (see 'gametime scenarios')."`
	Username  string `arg:"" help:"Login name for the new demo student."`
	ChildName string `help:"Display name."`
	Password  string `help:"Password." env:"GAMETIME_PASSWORD" required:""`
}

func (c *SeedCmd) Run(app *Context) error {
	hash, err := auth.HashPassword(c.Password)
	if err != nil {
		return err
	}
	res, err := scenarios.Load(app.Ctx, scenarios.Env{
		Store:  app.Store,
		Ledger: app.Ledger,
		Today:  app.today(),
	}, c.Scenario, generic.User{Username: c.Username, PasswordHash: hash, ChildName: c.ChildName})
	if err != nil {
		return err
	}
	app.printf("loaded %s for %s: %d days settled, balance %d\n",
		res.Scenario, res.Student.Username, res.Settled, res.Balance)
	return nil
}
