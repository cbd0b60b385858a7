package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/warp/gametime/generic"
	"github.com/warp/gametime/ledger"
)

// =============================================================================
// SETTLE
// =============================================================================

type SettleCmd struct {
	Student string `arg:"" optional:"" help:"Student username. Omit to settle every student."`
	Day     string `help:"Day to settle." default:"yesterday"`
}

// Run settles one student, or all of them. A day that is already settled
// is reported and skipped; only real failures make the command fail.
func (c *SettleCmd) Run(app *Context) error {
	day, err := app.parseDay(c.Day)
	if err != nil {
		return err
	}
	if day.After(app.today()) {
		return fmt.Errorf("%w: %s is in the future", generic.ErrInvalidDay, day)
	}

	var students []generic.User
	if c.Student != "" {
		st, err := app.student(c.Student)
		if err != nil {
			return err
		}
		students = []generic.User{st}
	} else if students, err = app.Store.Students(app.Ctx); err != nil {
		return err
	}

	var failed int
	for _, st := range students {
		res, err := app.Ledger.Settle(app.Ctx, st.ID, day)
		var settled *generic.AlreadySettledError
		switch {
		case err == nil:
			app.printf("%s %s: earned %d (base %d, reading +%d, exercise +%d%s)\n",
				st.Username, day, res.Earned,
				res.Breakdown.Base, res.Breakdown.BonusReading, res.Breakdown.BonusExercise,
				flags(res.Breakdown.CapApplied, res.Breakdown.ScreenViolated, res.YesterdayScreenViolated))
		case errors.As(err, &settled):
			app.printf("%s %s: already settled\n", st.Username, day)
		default:
			failed++
			app.printf("%s %s: %v\n", st.Username, day, err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d settlements failed", failed, len(students))
	}
	return nil
}

func flags(capped, violated, carry bool) string {
	var s string
	if capped {
		s += ", capped"
	}
	if violated {
		s += ", screen limit exceeded"
	}
	if carry {
		s += ", yesterday over screen limit"
	}
	return s
}

// =============================================================================
// REDEEM / ADJUST
// =============================================================================

type RedeemCmd struct {
	Student string `arg:"" help:"Student username."`
	Minutes int    `arg:"" help:"Minutes to spend."`
	Note    string `help:"What the time was spent on."`
	Day     string `help:"Day of the redemption." default:"today"`
}

func (c *RedeemCmd) Run(app *Context) error {
	st, err := app.student(c.Student)
	if err != nil {
		return err
	}
	day, err := app.parseDay(c.Day)
	if err != nil {
		return err
	}

	if _, err := app.Ledger.Redeem(app.Ctx, st.ID, c.Minutes, c.Note, day); err != nil {
		var short *generic.InsufficientBalanceError
		if errors.As(err, &short) {
			return fmt.Errorf("cannot redeem %d minutes, balance is %d", short.Requested, short.Balance)
		}
		return err
	}
	return app.printBalance(st)
}

// AdjustCmd takes minutes as a flag so a negative value is not read as one.
type AdjustCmd struct {
	Student string `arg:"" help:"Student username."`
	Minutes int    `required:"" help:"Minutes to add (negative to deduct)."`
	Note    string `help:"Reason for the correction."`
	Day     string `help:"Day the correction applies to." default:"today"`
}

func (c *AdjustCmd) Run(app *Context) error {
	st, err := app.student(c.Student)
	if err != nil {
		return err
	}
	day, err := app.parseDay(c.Day)
	if err != nil {
		return err
	}
	if _, err := app.Ledger.Adjust(app.Ctx, st.ID, c.Minutes, c.Note, day); err != nil {
		return err
	}
	return app.printBalance(st)
}

// =============================================================================
// READS
// =============================================================================

type BalanceCmd struct {
	Student string `arg:"" help:"Student username."`
}

func (c *BalanceCmd) Run(app *Context) error {
	st, err := app.student(c.Student)
	if err != nil {
		return err
	}
	return app.printBalance(st)
}

func (c *Context) printBalance(st generic.User) error {
	bal, err := c.Ledger.Balance(c.Ctx, st.ID)
	if err != nil {
		return err
	}
	c.printf("%s balance: %d minutes\n", st.Username, bal)
	return nil
}

type HistoryCmd struct {
	Student string `arg:"" help:"Student username."`
	Limit   int    `help:"Maximum entries (0 for all)." default:"20"`
}

func (c *HistoryCmd) Run(app *Context) error {
	st, err := app.student(c.Student)
	if err != nil {
		return err
	}
	entries, err := app.Ledger.History(app.Ctx, st.ID, c.Limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		app.printf("no entries\n")
		return nil
	}

	tw := tabwriter.NewWriter(app.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DAY\tREASON\tDELTA\tNOTE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%+d\t%s\n", e.Day, e.Reason, e.Delta, entryNote(e))
	}
	return tw.Flush()
}

// entryNote renders earned breakdowns compactly instead of raw JSON.
func entryNote(e generic.Entry) string {
	b, ok := ledger.DecodeBreakdown(e)
	if !ok {
		return e.Note
	}
	if b.ScreenViolated {
		return "screen limit exceeded"
	}
	return fmt.Sprintf("base %d, reading +%d, exercise +%d", b.Base, b.BonusReading, b.BonusExercise)
}

type PreviewCmd struct {
	Student string `arg:"" help:"Student username."`
	Day     string `arg:"" optional:"" help:"Day to preview." default:"today"`
}

func (c *PreviewCmd) Run(app *Context) error {
	st, err := app.student(c.Student)
	if err != nil {
		return err
	}
	day, err := app.parseDay(c.Day)
	if err != nil {
		return err
	}
	p, err := app.Ledger.Preview(app.Ctx, st.ID, day)
	if err != nil {
		return err
	}

	if p.Record == nil {
		app.printf("%s %s: nothing logged\n", st.Username, day)
	} else {
		r := p.Record
		app.printf("%s %s: screen %dm, homework %t, reading %dm (%d notes), exercise %dm, checked %t\n",
			st.Username, day, r.ScreenMinutes, r.HomeworkDone, r.ReadingMinutes, p.NotesCount,
			r.ExerciseMinutes, r.ParentChecked)
	}
	app.printf("would earn %d%s\n", p.Result.Earned,
		flags(p.Result.Breakdown.CapApplied, p.Result.Breakdown.ScreenViolated, p.YesterdayScreenViolated))
	if p.Settled != nil {
		app.printf("already settled for %d\n", p.Settled.Delta)
	}
	return nil
}
