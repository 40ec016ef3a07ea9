package browser

import (
	"context"
	"errors"
	"time"

	"github.com/wcooke83/element-click-timer/internal/timer"
)

var ErrTabNotFound = errors.New("tab not found")

// Tab is the engine's view of a browser tab, addressed by its DevTools
// target id.
type Tab struct {
	ID    string
	URL   string
	Title string
}

// Tabs resolves and manipulates tabs. Implementations must be safe to call
// from the scheduler goroutine.
type Tabs interface {
	// Get resolves a tab by id. ErrTabNotFound means the tab is gone.
	Get(ctx context.Context, id string) (Tab, error)
	// Navigate points an existing tab at a URL without waiting for load.
	Navigate(ctx context.Context, id, url string) error
	// OpenBackground opens a new, inactive tab at the URL.
	OpenBackground(ctx context.Context, url string) (Tab, error)
	// WaitLoad blocks until the tab reports load completion plus a settle
	// delay. It is bounded: when no completion signal arrives within the
	// configured ceiling it returns anyway, so a dead load never stalls
	// the scheduler.
	WaitLoad(ctx context.Context, id string) error
}

// Action is one dispatch request to the in-page executor.
type Action struct {
	Kind     timer.ActionKind
	Selector string

	// enterText only.
	Text               string
	ClearBeforeTyping  bool
	TypingSpeed        time.Duration // per-character delay
	PostTextEntryDelay time.Duration
	TriggerFocusBlur   bool
}

// Result is the executor's structured reply. The executor reports failure
// instead of returning transport errors: a selector that matches nothing or
// an unsuitable element is a negative result, not a fault.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Executor performs the literal click or keystroke simulation inside the
// target document.
type Executor interface {
	Do(ctx context.Context, tabID string, a Action) Result
}

// Events delivers tab lifecycle signals. Callbacks run on the adapter's
// event goroutine and must not block.
type Events interface {
	OnTabClosed(fn func(tabID string))
	OnTabNavigated(fn func(tabID, url string))
}
