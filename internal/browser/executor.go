package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/wcooke83/element-click-timer/internal/timer"
	logx "github.com/wcooke83/element-click-timer/pkg/logx"
)

// Do dispatches one action into the target document. It reports failure as
// a Result, never as a panic or transport error: the state machine treats a
// missing element and an unreachable executor identically.
func (b *Rod) Do(ctx context.Context, tabID string, a Action) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("executor panic recovered", logx.String("tab", tabID), logx.Any("panic", r))
			res = Result{Success: false, Error: fmt.Sprint(r)}
		}
	}()

	p, err := b.page(tabID)
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}
	p = p.Context(ctx)

	// No wait here: the selector either matches right now or the dispatch
	// fails. The engine already waited for page load.
	has, el, err := p.Has(a.Selector)
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("query %q: %v", a.Selector, err)}
	}
	if !has {
		return Result{Success: false, Error: "element not found"}
	}

	switch a.Kind {
	case timer.ActionClick:
		return b.click(el, a)
	case timer.ActionEnterText:
		return b.enterText(ctx, p, el, a)
	default:
		return Result{Success: false, Error: fmt.Sprintf("unknown action %q", a.Kind)}
	}
}

func (b *Rod) click(el *rod.Element, a Action) Result {
	if err := el.ScrollIntoView(); err != nil {
		b.log.Debug("scroll into view failed, clicking anyway", logx.String("selector", a.Selector), logx.Err(err))
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return Result{Success: false, Error: fmt.Sprintf("click: %v", err)}
	}
	return Result{Success: true}
}

func (b *Rod) enterText(ctx context.Context, p *rod.Page, el *rod.Element, a Action) Result {
	ok, err := isTextSurface(el)
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("inspect element: %v", err)}
	}
	if !ok {
		return Result{Success: false, Error: "element is not a text input surface"}
	}

	if a.TriggerFocusBlur {
		if err := el.Focus(); err != nil {
			return Result{Success: false, Error: fmt.Sprintf("focus: %v", err)}
		}
	}

	if a.ClearBeforeTyping {
		if err := clearValue(el); err != nil {
			return Result{Success: false, Error: fmt.Sprintf("clear: %v", err)}
		}
	}

	if a.TypingSpeed <= 0 {
		// No cadence requested: insert in one go.
		if err := el.Input(a.Text); err != nil {
			return Result{Success: false, Error: fmt.Sprintf("input: %v", err)}
		}
	} else {
		if err := el.Focus(); err != nil {
			return Result{Success: false, Error: fmt.Sprintf("focus: %v", err)}
		}
		for _, r := range a.Text {
			if err := (proto.InputInsertText{Text: string(r)}).Call(p); err != nil {
				return Result{Success: false, Error: fmt.Sprintf("insert text: %v", err)}
			}
			select {
			case <-time.After(a.TypingSpeed):
			case <-ctx.Done():
				return Result{Success: false, Error: ctx.Err().Error()}
			}
		}
	}

	if a.PostTextEntryDelay > 0 {
		select {
		case <-time.After(a.PostTextEntryDelay):
		case <-ctx.Done():
			return Result{Success: false, Error: ctx.Err().Error()}
		}
	}

	if a.TriggerFocusBlur {
		// Blur fires the change handlers frameworks listen on.
		if _, err := el.Eval(`() => { this.dispatchEvent(new Event('change', {bubbles: true})); this.blur() }`); err != nil {
			b.log.Debug("blur failed after text entry", logx.String("selector", a.Selector), logx.Err(err))
		}
	}

	return Result{Success: true}
}

// isTextSurface verifies the element can legitimately take keyboard text.
func isTextSurface(el *rod.Element) (bool, error) {
	res, err := el.Eval(`() => {
		const tag = this.tagName.toLowerCase()
		if (tag === 'textarea') return true
		if (this.isContentEditable) return true
		if (tag !== 'input') return false
		const t = (this.type || 'text').toLowerCase()
		return ['text', 'search', 'email', 'url', 'tel', 'password', 'number'].includes(t)
	}`)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

func clearValue(el *rod.Element) error {
	if err := el.SelectAllText(); err != nil {
		return err
	}
	return el.Input("")
}
