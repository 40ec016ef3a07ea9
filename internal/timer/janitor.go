package timer

import (
	"fmt"
	"time"
)

// Retention names an auto-delete window for executed timers.
type Retention string

const (
	RetentionDisabled Retention = "disabled"
	Retention5Min     Retention = "5min"
	Retention30Min    Retention = "30min"
	Retention1Hour    Retention = "1hour"
	Retention24Hours  Retention = "24hours"
)

// Window resolves the retention duration. ok is false when auto-delete is
// disabled.
func (r Retention) Window() (d time.Duration, ok bool) {
	switch r {
	case Retention5Min:
		return 5 * time.Minute, true
	case Retention30Min:
		return 30 * time.Minute, true
	case Retention1Hour:
		return time.Hour, true
	case Retention24Hours:
		return 24 * time.Hour, true
	default:
		return 0, false
	}
}

// Valid reports whether r is one of the documented windows.
func (r Retention) Valid() bool {
	switch r {
	case RetentionDisabled, Retention5Min, Retention30Min, Retention1Hour, Retention24Hours:
		return true
	}
	return false
}

// ParseRetention validates a caller-supplied retention value.
func ParseRetention(s string) (Retention, error) {
	r := Retention(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown retention window %q", s)
	}
	return r, nil
}

// Expired reports whether an executed timer has outlived the retention
// window. Pending timers are never expired. Records missing ExecutedAt
// (legacy or corrupt) fall back to TargetTime as a conservative basis.
func Expired(t Timer, r Retention, now time.Time) bool {
	if !t.Terminal() {
		return false
	}
	window, ok := r.Window()
	if !ok {
		return false
	}
	basis := t.TargetTime
	if t.ExecutedAt != nil {
		basis = *t.ExecutedAt
	}
	return now.Sub(basis) > window
}
