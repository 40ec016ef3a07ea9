package settings

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/wcooke83/element-click-timer/internal/timer"
)

// Settings is the process-wide, user-mutable configuration. It affects only
// future scheduling and execution decisions; it never reinterprets fields
// already recorded on a timer.
//
// The zero value is not useful; start from Defaults().
type Settings struct {
	// ScheduleOffsetMin is added to the user-selected time to produce the
	// fire time. Carried over from the original product behavior; kept
	// configurable because its rationale is undocumented.
	ScheduleOffsetMin int `json:"scheduleOffsetMin"`

	// AutoDeleteExecuted names the retention window for executed timers.
	AutoDeleteExecuted string `json:"autoDeleteExecuted"`

	NotifySuccess bool `json:"notifySuccess"`
	NotifyFailure bool `json:"notifyFailure"`

	// Typing cadence for enterText dispatches.
	TypingSpeedMS        int  `json:"typingSpeed"`        // per-character delay, ms
	PostTextEntryDelayMS int  `json:"postTextEntryDelay"` // settle after the last character, ms
	TriggerFocusBlur     bool `json:"triggerFocusBlur"`
	ClearBeforeTyping    bool `json:"clearBeforeTyping"`

	// Pre-filled form values for new timers. Pass-through data for UIs;
	// the engine never reads them.
	DefaultSelector    string `json:"defaultSelector"`
	DefaultPersistence string `json:"defaultPersistence"`
	DefaultURLPolicy   string `json:"defaultUrlBehavior"`
}

func Defaults() Settings {
	return Settings{
		ScheduleOffsetMin:    5,
		AutoDeleteExecuted:   string(timer.Retention1Hour),
		NotifySuccess:        true,
		NotifyFailure:        true,
		TypingSpeedMS:        50,
		PostTextEntryDelayMS: 500,
		TriggerFocusBlur:     true,
		ClearBeforeTyping:    true,
		DefaultSelector:      `button[aria-label="Continue"]`,
		DefaultPersistence:   string(timer.TierSession),
		DefaultURLPolicy:     string(timer.PolicyCancel),
	}
}

// ScheduleOffset returns the offset as a duration.
func (s Settings) ScheduleOffset() time.Duration {
	return time.Duration(s.ScheduleOffsetMin) * time.Minute
}

func (s Settings) Retention() timer.Retention {
	return timer.Retention(s.AutoDeleteExecuted)
}

func (s Settings) TypingSpeed() time.Duration {
	return time.Duration(s.TypingSpeedMS) * time.Millisecond
}

func (s Settings) PostTextEntryDelay() time.Duration {
	return time.Duration(s.PostTextEntryDelayMS) * time.Millisecond
}

// patch mirrors Settings with pointer fields so persisted overrides merge
// over defaults key by key: a key that is absent, null, or fails to decode
// falls back alone instead of discarding the whole object.
type patch struct {
	ScheduleOffsetMin    *int    `json:"scheduleOffsetMin"`
	AutoDeleteExecuted   *string `json:"autoDeleteExecuted"`
	NotifySuccess        *bool   `json:"notifySuccess"`
	NotifyFailure        *bool   `json:"notifyFailure"`
	TypingSpeedMS        *int    `json:"typingSpeed"`
	PostTextEntryDelayMS *int    `json:"postTextEntryDelay"`
	TriggerFocusBlur     *bool   `json:"triggerFocusBlur"`
	ClearBeforeTyping    *bool   `json:"clearBeforeTyping"`
	DefaultSelector      *string `json:"defaultSelector"`
	DefaultPersistence   *string `json:"defaultPersistence"`
	DefaultURLPolicy     *string `json:"defaultUrlBehavior"`
}

// Merge lays persisted overrides over the compiled defaults. Raw may be nil
// or malformed; whatever does not decode is simply not applied.
func Merge(defaults Settings, raw []byte) Settings {
	out := defaults
	if len(raw) == 0 {
		return out
	}

	// Decode keys individually so one bad value doesn't void the rest.
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return out
	}
	var p patch
	for k, v := range keys {
		one := map[string]json.RawMessage{k: v}
		b, err := json.Marshal(one)
		if err != nil {
			continue
		}
		_ = json.Unmarshal(b, &p)
	}

	if p.ScheduleOffsetMin != nil {
		out.ScheduleOffsetMin = *p.ScheduleOffsetMin
	}
	if p.AutoDeleteExecuted != nil {
		out.AutoDeleteExecuted = *p.AutoDeleteExecuted
	}
	if p.NotifySuccess != nil {
		out.NotifySuccess = *p.NotifySuccess
	}
	if p.NotifyFailure != nil {
		out.NotifyFailure = *p.NotifyFailure
	}
	if p.TypingSpeedMS != nil {
		out.TypingSpeedMS = *p.TypingSpeedMS
	}
	if p.PostTextEntryDelayMS != nil {
		out.PostTextEntryDelayMS = *p.PostTextEntryDelayMS
	}
	if p.TriggerFocusBlur != nil {
		out.TriggerFocusBlur = *p.TriggerFocusBlur
	}
	if p.ClearBeforeTyping != nil {
		out.ClearBeforeTyping = *p.ClearBeforeTyping
	}
	if p.DefaultSelector != nil {
		out.DefaultSelector = *p.DefaultSelector
	}
	if p.DefaultPersistence != nil {
		out.DefaultPersistence = *p.DefaultPersistence
	}
	if p.DefaultURLPolicy != nil {
		out.DefaultURLPolicy = *p.DefaultURLPolicy
	}
	return out
}

// Validate rejects values outside documented bounds. Callers must leave the
// prior settings untouched on error.
func (s Settings) Validate() error {
	if s.ScheduleOffsetMin < 0 || s.ScheduleOffsetMin > 120 {
		return fmt.Errorf("scheduleOffsetMin %d out of range [0,120]", s.ScheduleOffsetMin)
	}
	if !timer.Retention(s.AutoDeleteExecuted).Valid() {
		return fmt.Errorf("autoDeleteExecuted %q is not a known window", s.AutoDeleteExecuted)
	}
	if s.TypingSpeedMS < 0 || s.TypingSpeedMS > 2000 {
		return fmt.Errorf("typingSpeed %d out of range [0,2000]", s.TypingSpeedMS)
	}
	if s.PostTextEntryDelayMS < 0 || s.PostTextEntryDelayMS > 10000 {
		return fmt.Errorf("postTextEntryDelay %d out of range [0,10000]", s.PostTextEntryDelayMS)
	}
	switch timer.Tier(s.DefaultPersistence) {
	case timer.TierBrowser, timer.TierTab, timer.TierSession:
	default:
		return fmt.Errorf("defaultPersistence %q is not a tier", s.DefaultPersistence)
	}
	switch timer.URLPolicy(s.DefaultURLPolicy) {
	case timer.PolicyCancel, timer.PolicyNewTab, timer.PolicyNavigate:
	default:
		return fmt.Errorf("defaultUrlBehavior %q is not a policy", s.DefaultURLPolicy)
	}
	return nil
}
