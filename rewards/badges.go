package rewards

import "github.com/warp/gametime/generic"

// Badges are the per-goal ticks the dashboard shows next to a day.
// Exercise uses ExerciseBadgeMinutes, which is looser than the goal that
// pays out, so a badge can light up on a day that earns no base reward.
type Badges struct {
	Homework       bool `json:"homework"`
	Reading        bool `json:"reading"`
	Exercise       bool `json:"exercise"`
	ScreenOk       bool `json:"screenOk"`
	ScreenViolated bool `json:"screenViolated"`
}

// BadgesFor computes display badges. A nil record shows nothing earned.
func BadgesFor(rec *generic.DayRecord, notes int) Badges {
	if rec == nil {
		return Badges{}
	}
	return Badges{
		Homework:       rec.HomeworkDone,
		Reading:        rec.ReadingMinutes >= ReadingMinutes && notes >= MinNotes,
		Exercise:       rec.ExerciseMinutes >= ExerciseBadgeMinutes,
		ScreenOk:       !IsScreenViolated(rec),
		ScreenViolated: IsScreenViolated(rec),
	}
}
