package timer

import "time"

// TargetFromSelected derives the actual fire time from the user-selected
// wall-clock time: the configured offset is added, and if the result is
// already in the past it rolls to the same time the next day.
func TargetFromSelected(selected time.Time, offset time.Duration, now time.Time) time.Time {
	target := selected.Add(offset)
	if !target.After(now) {
		target = target.AddDate(0, 0, 1)
	}
	return target
}
