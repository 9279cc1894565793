package service

import (
	"fmt"
	"time"

	"todo-planner/internal/model"
)

// NextDueAt advances dueAt by one interval of repeat.
//
// Monthly steps use time.AddDate, which normalises day overflow into the
// following month: 2024-01-31 becomes 2024-03-02, not 2024-02-29.
func NextDueAt(dueAt time.Time, repeat model.Repeat) (time.Time, error) {
	switch repeat {
	case model.RepeatDaily:
		return dueAt.AddDate(0, 0, 1), nil
	case model.RepeatWeekly:
		return dueAt.AddDate(0, 0, 7), nil
	case model.RepeatMonthly:
		return dueAt.AddDate(0, 1, 0), nil
	default:
		return time.Time{}, fmt.Errorf("repeat %q has no next occurrence", repeat)
	}
}

// Recurs reports whether completing a task with this policy spawns a successor.
func Recurs(repeat model.Repeat) bool {
	return repeat != "" && repeat != model.RepeatNone
}
