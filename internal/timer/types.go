package timer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ActionKind selects what the in-page executor does when a timer fires.
type ActionKind string

const (
	ActionClick     ActionKind = "click"
	ActionEnterText ActionKind = "enterText"
)

// Tier is the durability class of a timer.
//
//   - TierBrowser survives daemon restarts and does not care about the tab.
//   - TierTab survives restarts but is voided once the bound tab is gone.
//   - TierSession is voided on tab close or daemon shutdown.
type Tier string

const (
	TierBrowser Tier = "browser"
	TierTab     Tier = "tab"
	TierSession Tier = "session"
)

// URLPolicy is the rule applied at fire time when the bound tab's location
// no longer matches the URL recorded at creation.
type URLPolicy string

const (
	PolicyCancel   URLPolicy = "cancel"
	PolicyNewTab   URLPolicy = "new-tab"
	PolicyNavigate URLPolicy = "navigate"
)

// Status is the lifecycle state of a timer. Transitions are strictly
// one-way: pending -> executed-success | executed-failure.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "executed-success"
	StatusFailure Status = "executed-failure"
)

var ErrAlreadyExecuted = errors.New("timer already executed")

// Timer is a single-shot scheduled action bound to a browser tab.
type Timer struct {
	ID          string `json:"id"`
	TabID       string `json:"tabId"`
	TabTitle    string `json:"tabTitle,omitempty"`
	OriginalURL string `json:"originalUrl"`

	Action      ActionKind `json:"action"`
	Selector    string     `json:"selector"`
	Text        string     `json:"text,omitempty"`
	ClearBefore bool       `json:"clearBeforeTyping,omitempty"`
	// Sensitive is a display hint for UIs (masked rendering only).
	// Execution never reads it.
	Sensitive bool `json:"isSensitive,omitempty"`

	SelectedTime time.Time `json:"selectedTime"`
	TargetTime   time.Time `json:"targetTime"`

	Persistence Tier      `json:"persistence"`
	URLPolicy   URLPolicy `json:"urlBehavior"`

	Status     Status     `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	ExecutedAt *time.Time `json:"executedAt,omitempty"`
}

// NewID returns a fresh unique timer id.
func NewID() string {
	return "timer_" + uuid.NewString()
}

// Terminal reports whether the timer has reached a final status.
func (t Timer) Terminal() bool {
	return t.Status == StatusSuccess || t.Status == StatusFailure
}

// Due reports whether a pending timer's fire time has passed.
func (t Timer) Due(now time.Time) bool {
	return t.Status == StatusPending && !t.TargetTime.After(now)
}

// MarkExecuted commits the terminal status and stamps ExecutedAt.
// It refuses to re-execute a timer that already left pending.
func (t *Timer) MarkExecuted(ok bool, now time.Time) error {
	if t.Status != StatusPending {
		return ErrAlreadyExecuted
	}
	if ok {
		t.Status = StatusSuccess
	} else {
		t.Status = StatusFailure
	}
	at := now
	t.ExecutedAt = &at
	return nil
}

// Clone returns a deep copy. Callers holding registry snapshots mutate
// copies, never the working set.
func (t Timer) Clone() Timer {
	cp := t
	if t.ExecutedAt != nil {
		at := *t.ExecutedAt
		cp.ExecutedAt = &at
	}
	return cp
}

// Validate checks structural invariants of a record crossing the control
// surface. It does not check tab liveness.
func (t Timer) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("timer id is empty")
	}
	if strings.TrimSpace(t.TabID) == "" {
		return errors.New("timer tabId is empty")
	}
	if strings.TrimSpace(t.Selector) == "" {
		return errors.New("timer selector is empty")
	}
	switch t.Action {
	case ActionClick:
	case ActionEnterText:
		if t.Text == "" {
			return errors.New("enterText timer has empty text")
		}
	default:
		return fmt.Errorf("unknown action %q", t.Action)
	}
	switch t.Persistence {
	case TierBrowser, TierTab, TierSession:
	default:
		return fmt.Errorf("unknown persistence tier %q", t.Persistence)
	}
	switch t.URLPolicy {
	case PolicyCancel, PolicyNewTab, PolicyNavigate:
	default:
		return fmt.Errorf("unknown url policy %q", t.URLPolicy)
	}
	switch t.Status {
	case StatusPending, StatusSuccess, StatusFailure:
	default:
		return fmt.Errorf("unknown status %q", t.Status)
	}
	if t.Terminal() && t.ExecutedAt == nil {
		return errors.New("terminal timer without executedAt")
	}
	if t.TargetTime.IsZero() {
		return errors.New("timer targetTime is zero")
	}
	return nil
}
