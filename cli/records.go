package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/warp/gametime/generic"
)

const maxDayMinutes = 24 * 60

type RecordCmd struct {
	Student  string `arg:"" help:"Student username."`
	Day      string `arg:"" optional:"" help:"Day to log." default:"today"`
	Screen   int    `help:"Screen minutes."`
	Homework bool   `help:"Homework done."`
	Reading  int    `help:"Reading minutes."`
	Exercise int    `help:"Exercise minutes."`
}

func (c *RecordCmd) Validate() error {
	for name, v := range map[string]int{"screen": c.Screen, "reading": c.Reading, "exercise": c.Exercise} {
		if v < 0 || v > maxDayMinutes {
			return fmt.Errorf("--%s must be between 0 and %d", name, maxDayMinutes)
		}
	}
	return nil
}

// Run replaces the student-entered fields. The parent check is kept.
func (c *RecordCmd) Run(app *Context) error {
	st, err := app.student(c.Student)
	if err != nil {
		return err
	}
	day, err := app.parseDay(c.Day)
	if err != nil {
		return err
	}

	err = app.Store.UpsertActivity(app.Ctx, st.ID, day, generic.Activity{
		ScreenMinutes:   c.Screen,
		HomeworkDone:    c.Homework,
		ReadingMinutes:  c.Reading,
		ExerciseMinutes: c.Exercise,
	})
	if err != nil {
		return err
	}
	app.printf("recorded %s %s\n", st.Username, day)
	return nil
}

type NoteCmd struct {
	Student string `arg:"" help:"Student username."`
	Day     string `arg:"" help:"Day the note belongs to."`
	Content string `arg:"" help:"Note text."`
}

func (c *NoteCmd) Run(app *Context) error {
	content := strings.TrimSpace(c.Content)
	if content == "" {
		return errors.New("note is empty")
	}
	st, err := app.student(c.Student)
	if err != nil {
		return err
	}
	day, err := app.parseDay(c.Day)
	if err != nil {
		return err
	}

	note, err := app.Store.AddNote(app.Ctx, st.ID, day, content)
	if err != nil {
		return err
	}
	count, err := app.Store.NotesCount(app.Ctx, st.ID, day)
	if err != nil {
		return err
	}
	app.printf("note %d added, %d for %s\n", note.ID, count, day)
	return nil
}

type CheckCmd struct {
	Student string `arg:"" help:"Student username."`
	Day     string `arg:"" optional:"" help:"Day to check." default:"today"`
	Unset   bool   `help:"Clear the check instead of setting it."`
}

func (c *CheckCmd) Run(app *Context) error {
	st, err := app.student(c.Student)
	if err != nil {
		return err
	}
	day, err := app.parseDay(c.Day)
	if err != nil {
		return err
	}
	if err := app.Store.SetParentChecked(app.Ctx, st.ID, day, !c.Unset); err != nil {
		return err
	}
	app.printf("%s %s checked: %t\n", st.Username, day, !c.Unset)
	return nil
}
