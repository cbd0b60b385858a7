package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// DAY - Civil calendar date (the unit of activity and settlement)
// =============================================================================

// DayLayout is the wire and storage format of a Day.
const DayLayout = "2006-01-02"

// Day is a civil calendar date with no time-of-day and no zone.
//
// Day boundaries are decided once, at the edge of the system, by calling
// Today with the configured location. Everything below that point does
// plain calendar arithmetic, so "yesterday" is never a rolling 24h window.
type Day struct {
	t time.Time // always midnight UTC
}

// NewDay builds a Day from its parts. Out-of-range parts normalize the way
// time.Date does (Jan 32 -> Feb 1).
func NewDay(year int, month time.Month, day int) Day {
	return Day{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDay parses a YYYY-MM-DD string. Anything else is ErrInvalidDay.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return Day{}, fmt.Errorf("%w: %q", ErrInvalidDay, s)
	}
	return Day{t: t}, nil
}

// MustParseDay is ParseDay for literals in tests and fixtures.
func MustParseDay(s string) Day {
	d, err := ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Today returns the civil date of now in loc. A nil loc means UTC.
func Today(loc *time.Location) Day {
	return DayOf(time.Now(), loc)
}

// DayOf returns the civil date of t as seen in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return NewDay(y, m, d)
}

// Arithmetic
func (d Day) AddDays(n int) Day { return Day{t: d.t.AddDate(0, 0, n)} }
func (d Day) Prev() Day         { return d.AddDays(-1) }
func (d Day) Next() Day         { return d.AddDays(1) }

// Comparison
func (d Day) Before(o Day) bool { return d.t.Before(o.t) }
func (d Day) After(o Day) bool  { return d.t.After(o.t) }
func (d Day) Equal(o Day) bool  { return d.t.Equal(o.t) }
func (d Day) IsZero() bool      { return d.t.IsZero() }

// Time returns midnight UTC of the day.
func (d Day) Time() time.Time { return d.t }

func (d Day) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(DayLayout)
}

// MarshalText implements encoding.TextMarshaler so Day round-trips through JSON.
func (d Day) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Day) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Day{}
		return nil
	}
	parsed, err := ParseDay(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
