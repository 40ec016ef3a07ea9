package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/wcooke83/element-click-timer/internal/eventbus"
	"github.com/wcooke83/element-click-timer/internal/registry"
	"github.com/wcooke83/element-click-timer/internal/settings"
	"github.com/wcooke83/element-click-timer/internal/timer"
	logx "github.com/wcooke83/element-click-timer/pkg/logx"
)

type memTier struct {
	mu     sync.Mutex
	timers []timer.Timer
	raw    []byte
}

func (m *memTier) LoadTimers(context.Context) ([]timer.Timer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]timer.Timer, len(m.timers))
	copy(out, m.timers)
	return out, nil
}

func (m *memTier) SaveTimers(_ context.Context, ts []timer.Timer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timers = make([]timer.Timer, len(ts))
	copy(m.timers, ts)
	return nil
}

func (m *memTier) LoadSettings(context.Context) ([]byte, error)   { return m.raw, nil }
func (m *memTier) SaveSettings(_ context.Context, b []byte) error { m.raw = b; return nil }
func (m *memTier) Discard() error                                 { return nil }
func (m *memTier) Close() error                                   { return nil }

func newTestServer(t *testing.T) (*Server, *registry.Registry) {
	t.Helper()
	tier := &memTier{}
	bus := eventbus.New()
	reg := registry.New(tier, tier, bus, logx.Nop())
	st := settings.NewStore(tier, logx.Nop())
	s := New(Config{}, reg, st, bus, logx.Nop())
	s.clock = func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	}
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s, reg
}

// rpcCall posts one JSON-RPC request to the HTTP bridge and returns the
// parsed envelope.
func rpcCall(t *testing.T, h http.Handler, method string, params any) map[string]any {
	t.Helper()
	env := map[string]any{"jsonrpc": "2.0", "method": method, "id": 1}
	if params != nil {
		env["params"] = params
	}
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	resp := rr.Result()
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("unmarshal response: %v (body: %s)", err, body)
	}
	return out
}

func errorCode(t *testing.T, env map[string]any) float64 {
	t.Helper()
	errObj, ok := env["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error, got %v", env)
	}
	code, ok := errObj["code"].(float64)
	if !ok {
		t.Fatalf("error without code: %v", errObj)
	}
	return code
}

func validTimerParams() map[string]any {
	return map[string]any{
		"tabId":       "tab-1",
		"tabTitle":    "Checkout",
		"originalUrl": "https://a.example/form",
		"action":      "click",
		"selector":    "#go",
		"targetTime":  "2026-03-01T13:00:00Z",
		"persistence": "browser",
		"urlBehavior": "cancel",
	}
}

func TestTimerAddAssignsID(t *testing.T) {
	t.Parallel()

	s, reg := newTestServer(t)
	h := s.Handler()

	env := rpcCall(t, h, "timer.add", validTimerParams())
	result, ok := env["result"].(map[string]any)
	if !ok {
		t.Fatalf("no result: %v", env)
	}
	tm, _ := result["timer"].(map[string]any)
	id, _ := tm["id"].(string)
	if id == "" {
		t.Fatalf("no id assigned: %v", result)
	}
	if _, ok := reg.Get(id); !ok {
		t.Fatalf("timer %s not in registry", id)
	}
	if got, _ := tm["status"].(string); got != string(timer.StatusPending) {
		t.Fatalf("status = %q", got)
	}
}

func TestTimerAddDerivesTargetFromSelected(t *testing.T) {
	t.Parallel()

	s, reg := newTestServer(t)
	h := s.Handler()

	p := validTimerParams()
	delete(p, "targetTime")
	p["selectedTime"] = "2026-03-01T14:30:00Z"

	env := rpcCall(t, h, "timer.add", p)
	result, ok := env["result"].(map[string]any)
	if !ok {
		t.Fatalf("no result: %v", env)
	}
	tm := result["timer"].(map[string]any)
	got, _ := reg.Get(tm["id"].(string))
	// Default offset is five minutes past the selected time.
	want := time.Date(2026, 3, 1, 14, 35, 0, 0, time.UTC)
	if !got.TargetTime.Equal(want) {
		t.Fatalf("target = %v, want %v", got.TargetTime, want)
	}
}

func TestTimerAddRejectsInvalid(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	h := s.Handler()

	p := validTimerParams()
	p["selector"] = ""

	env := rpcCall(t, h, "timer.add", p)
	if code := errorCode(t, env); code != -32010 {
		t.Fatalf("code = %v, want -32010", code)
	}
}

func TestTimerUpdateUnknownID(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	h := s.Handler()

	p := validTimerParams()
	p["id"] = "timer_missing"

	env := rpcCall(t, h, "timer.update", p)
	if code := errorCode(t, env); code != -32011 {
		t.Fatalf("code = %v, want -32011", code)
	}
}

func TestTimerUpdateRejectsStatusReversion(t *testing.T) {
	t.Parallel()

	s, reg := newTestServer(t)
	h := s.Handler()

	env := rpcCall(t, h, "timer.add", validTimerParams())
	id := env["result"].(map[string]any)["timer"].(map[string]any)["id"].(string)

	executed, _ := reg.Get(id)
	if err := executed.MarkExecuted(true, time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)); err != nil {
		t.Fatal(err)
	}
	if err := reg.Update(context.Background(), executed); err != nil {
		t.Fatal(err)
	}

	// A stale client pushing the pre-execution record must not rearm it.
	p := validTimerParams()
	p["id"] = id
	env = rpcCall(t, h, "timer.update", p)
	if code := errorCode(t, env); code != -32010 {
		t.Fatalf("code = %v, want -32010", code)
	}
	got, _ := reg.Get(id)
	if got.Status != timer.StatusSuccess {
		t.Fatalf("status = %q, want success", got.Status)
	}

	env = rpcCall(t, h, "timer.bulkUpdate", map[string]any{"timers": []any{p}})
	if code := errorCode(t, env); code != -32010 {
		t.Fatalf("bulkUpdate code = %v, want -32010", code)
	}
}

func TestTimerCancelIsIdempotent(t *testing.T) {
	t.Parallel()

	s, reg := newTestServer(t)
	h := s.Handler()

	env := rpcCall(t, h, "timer.add", validTimerParams())
	id := env["result"].(map[string]any)["timer"].(map[string]any)["id"].(string)

	for i := 0; i < 2; i++ {
		env := rpcCall(t, h, "timer.cancel", map[string]any{"id": id})
		result, ok := env["result"].(map[string]any)
		if !ok || result["success"] != true {
			t.Fatalf("cancel #%d: %v", i+1, env)
		}
	}
	if _, ok := reg.Get(id); ok {
		t.Fatalf("timer still present after cancel")
	}
}

func TestTimerListReturnsOrderedSet(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	h := s.Handler()

	late := validTimerParams()
	late["id"] = "timer_late"
	late["targetTime"] = "2026-03-01T15:00:00Z"
	early := validTimerParams()
	early["id"] = "timer_early"
	early["targetTime"] = "2026-03-01T13:00:00Z"

	rpcCall(t, h, "timer.add", late)
	rpcCall(t, h, "timer.add", early)

	env := rpcCall(t, h, "timer.list", nil)
	timers := env["result"].(map[string]any)["timers"].([]any)
	if len(timers) != 2 {
		t.Fatalf("list len = %d", len(timers))
	}
	first := timers[0].(map[string]any)["id"].(string)
	if first != "timer_early" {
		t.Fatalf("first = %q, want timer_early", first)
	}
}

func TestBulkUpdateReplacesWorkingSet(t *testing.T) {
	t.Parallel()

	s, reg := newTestServer(t)
	h := s.Handler()

	rpcCall(t, h, "timer.add", validTimerParams())

	repl := validTimerParams()
	repl["id"] = "timer_only"
	env := rpcCall(t, h, "timer.bulkUpdate", map[string]any{"timers": []any{repl}})
	if result, ok := env["result"].(map[string]any); !ok || result["success"] != true {
		t.Fatalf("bulkUpdate: %v", env)
	}

	ts := reg.List()
	if len(ts) != 1 || ts[0].ID != "timer_only" {
		t.Fatalf("working set = %v", ts)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	h := s.Handler()

	env := rpcCall(t, h, "settings.get", nil)
	cur, ok := env["result"].(map[string]any)
	if !ok {
		t.Fatalf("settings.get: %v", env)
	}
	if cur["scheduleOffsetMin"].(float64) != 5 {
		t.Fatalf("default offset = %v", cur["scheduleOffsetMin"])
	}

	cur["scheduleOffsetMin"] = float64(10)
	cur["notifySuccess"] = false
	env = rpcCall(t, h, "settings.push", cur)
	if result, ok := env["result"].(map[string]any); !ok || result["success"] != true {
		t.Fatalf("settings.push: %v", env)
	}

	env = rpcCall(t, h, "settings.get", nil)
	got := env["result"].(map[string]any)
	if got["scheduleOffsetMin"].(float64) != 10 || got["notifySuccess"] != false {
		t.Fatalf("settings after push: %v", got)
	}
}

func TestSettingsPushOutOfRange(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	h := s.Handler()

	env := rpcCall(t, h, "settings.get", nil)
	cur := env["result"].(map[string]any)
	cur["scheduleOffsetMin"] = float64(999)

	env = rpcCall(t, h, "settings.push", cur)
	if code := errorCode(t, env); code != -32012 {
		t.Fatalf("code = %v, want -32012", code)
	}

	// Prior settings stay in force.
	env = rpcCall(t, h, "settings.get", nil)
	got := env["result"].(map[string]any)
	if got["scheduleOffsetMin"].(float64) != 5 {
		t.Fatalf("offset after rejected push = %v", got["scheduleOffsetMin"])
	}
}
