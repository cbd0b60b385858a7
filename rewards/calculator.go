package rewards

import "github.com/warp/gametime/generic"

// Compute returns the minutes a day earns and why.
func Compute(in Input) Result {
	rec := in.Today
	if rec == nil {
		return Result{Empty: true}
	}

	// A screen violation voids the whole day, bonuses included.
	if rec.ScreenMinutes > ScreenLimit {
		return Result{Breakdown: Breakdown{ScreenViolated: true}}
	}

	homeworkOk := rec.HomeworkDone
	readingOk := rec.ReadingMinutes >= ReadingMinutes && in.NotesCount >= MinNotes
	exerciseOk := rec.ExerciseMinutes >= ExerciseMinutes

	base := 0
	if homeworkOk && readingOk && exerciseOk {
		base = BaseMinutes
	}

	// Carry-over reduces, never voids, and only a nonzero base.
	if base > 0 && in.YesterdayScreenViolated {
		base = max(0, base-CarryOverPenalty)
	}

	var bonusReading, bonusExercise int
	if in.ParentChecked {
		bonusReading = readingBonus(rec.ReadingMinutes, in.NotesCount)
		bonusExercise = exerciseBonus(rec.ExerciseMinutes)
	}

	raw := base + bonusReading + bonusExercise
	return Result{
		Earned: min(raw, DailyCap),
		Breakdown: Breakdown{
			Base:          base,
			BonusReading:  bonusReading,
			BonusExercise: bonusExercise,
			CapApplied:    raw > DailyCap,
		},
	}
}

// readingBonus grants one unit per 20 extra minutes, each unit also needing
// one note beyond the first. The scarcer of the two limits the count.
func readingBonus(readingMinutes, notes int) int {
	extraReading := max(0, readingMinutes-ReadingMinutes)
	extraNotes := max(0, notes-MinNotes)
	units := min(extraReading/ReadingBonusStep, extraNotes)
	return units * ReadingBonusMinutes
}

func exerciseBonus(exerciseMinutes int) int {
	extra := max(0, exerciseMinutes-ExerciseMinutes)
	return (extra / ExerciseBonusStep) * ExerciseBonusMinutes
}

// IsScreenViolated reports whether rec exists and exceeds the screen limit.
// Used for yesterday's carry-over and for UI badges.
func IsScreenViolated(rec *generic.DayRecord) bool {
	return rec != nil && rec.ScreenMinutes > ScreenLimit
}
