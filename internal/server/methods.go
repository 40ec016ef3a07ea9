package server

import (
	"context"
	"errors"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"

	"github.com/wcooke83/element-click-timer/internal/registry"
	"github.com/wcooke83/element-click-timer/internal/settings"
	"github.com/wcooke83/element-click-timer/internal/timer"
)

// JSON-RPC error codes for timer operations.
const (
	codeInvalidTimer       = jrpc2.Code(-32010)
	codeTimerNotFound      = jrpc2.Code(-32011)
	codeSettingsOutOfRange = jrpc2.Code(-32012)
)

type AddResult struct {
	Success bool        `json:"success"`
	Timer   timer.Timer `json:"timer"`
}

type SuccessResult struct {
	Success bool `json:"success"`
}

type IDParam struct {
	ID string `json:"id"`
}

type BulkParams struct {
	Timers []timer.Timer `json:"timers"`
}

type ListResult struct {
	Timers []timer.Timer `json:"timers"`
}

func (s *Server) methods() handler.Map {
	return handler.Map{
		"timer.add":        handler.New(s.timerAdd),
		"timer.update":     handler.New(s.timerUpdate),
		"timer.bulkUpdate": handler.New(s.timerBulkUpdate),
		"timer.cancel":     handler.New(s.timerCancel),
		"timer.list":       handler.New(s.timerList),
		"settings.get":     handler.New(s.settingsGet),
		"settings.push":    handler.New(s.settingsPush),
	}
}

// timerAdd registers a new pending timer. A missing id is assigned; a
// missing target time is derived from the selected time plus the configured
// offset.
func (s *Server) timerAdd(ctx context.Context, t *timer.Timer) (*AddResult, error) {
	now := s.now()
	if t.ID == "" {
		t.ID = timer.NewID()
	}
	if t.Status == "" {
		t.Status = timer.StatusPending
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.TargetTime.IsZero() {
		if t.SelectedTime.IsZero() {
			return nil, &jrpc2.Error{Code: codeInvalidTimer, Message: "selectedTime or targetTime required"}
		}
		offset := s.settings.Get(ctx).ScheduleOffset()
		t.TargetTime = timer.TargetFromSelected(t.SelectedTime, offset, now)
	}
	if err := t.Validate(); err != nil {
		return nil, &jrpc2.Error{Code: codeInvalidTimer, Message: err.Error()}
	}
	if err := s.reg.Add(ctx, *t); err != nil {
		return nil, &jrpc2.Error{Code: codeInvalidTimer, Message: err.Error()}
	}
	return &AddResult{Success: true, Timer: *t}, nil
}

func (s *Server) timerUpdate(ctx context.Context, t *timer.Timer) (*SuccessResult, error) {
	if err := t.Validate(); err != nil {
		return nil, &jrpc2.Error{Code: codeInvalidTimer, Message: err.Error()}
	}
	if err := s.checkNoRevert(*t); err != nil {
		return nil, err
	}
	if err := s.reg.Update(ctx, *t); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, &jrpc2.Error{Code: codeTimerNotFound, Message: "timer not found"}
		}
		return nil, err
	}
	return &SuccessResult{Success: true}, nil
}

// timerBulkUpdate replaces the whole working set.
func (s *Server) timerBulkUpdate(ctx context.Context, p *BulkParams) (*SuccessResult, error) {
	for _, t := range p.Timers {
		if err := t.Validate(); err != nil {
			return nil, &jrpc2.Error{Code: codeInvalidTimer, Message: t.ID + ": " + err.Error()}
		}
		if err := s.checkNoRevert(t); err != nil {
			return nil, err
		}
	}
	s.reg.ReplaceAll(ctx, p.Timers)
	return &SuccessResult{Success: true}, nil
}

// checkNoRevert rejects a payload that would move an already terminal timer
// back to pending. Status transitions are one way; an executed attempt must
// not be rearmed by a stale client write.
func (s *Server) checkNoRevert(t timer.Timer) error {
	stored, ok := s.reg.Get(t.ID)
	if !ok || !stored.Terminal() || t.Terminal() {
		return nil
	}
	return &jrpc2.Error{Code: codeInvalidTimer, Message: t.ID + ": cannot revert " + string(stored.Status) + " timer to pending"}
}

// timerCancel removes a timer. Cancelling an unknown id succeeds; the end
// state is the same either way.
func (s *Server) timerCancel(ctx context.Context, p *IDParam) (*SuccessResult, error) {
	s.reg.Remove(ctx, p.ID)
	return &SuccessResult{Success: true}, nil
}

func (s *Server) timerList(context.Context) (*ListResult, error) {
	ts := s.reg.List()
	if ts == nil {
		ts = []timer.Timer{}
	}
	return &ListResult{Timers: ts}, nil
}

func (s *Server) settingsGet(ctx context.Context) (*settings.Settings, error) {
	cur := s.settings.Get(ctx)
	return &cur, nil
}

func (s *Server) settingsPush(ctx context.Context, next *settings.Settings) (*SuccessResult, error) {
	if err := s.settings.Update(ctx, *next); err != nil {
		return nil, &jrpc2.Error{Code: codeSettingsOutOfRange, Message: err.Error()}
	}
	return &SuccessResult{Success: true}, nil
}

func (s *Server) now() time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return time.Now()
}
