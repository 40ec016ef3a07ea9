package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "github.com/wcooke83/element-click-timer/pkg/logx"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{
		"server": {"addr": "127.0.0.1:9000"},
		"storage": {"driver": "file", "path": "/tmp/ct"},
		"scheduler": {"poll_interval": "2s"},
		"logging": {"level": "debug", "console": true}
	}`)

	cfg, err := NewManager(path, logx.Nop()).Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" || cfg.Storage.Driver != "file" {
		t.Fatalf("cfg = %+v", cfg)
	}
	poll, err := cfg.PollInterval()
	if err != nil || poll != 2*time.Second {
		t.Fatalf("poll = %v, %v", poll, err)
	}
	// Omitted interval falls back.
	sweep, err := cfg.SweepInterval()
	if err != nil || sweep != time.Minute {
		t.Fatalf("sweep = %v, %v", sweep, err)
	}
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
server:
  addr: "127.0.0.1:9001"
browser:
  headless: true
  load_ceiling: 10s
notify:
  desktop: true
  telegram:
    token: "x:y"
    chat_id: 42
logging:
  level: info
  console: true
`)

	cfg, err := NewManager(path, logx.Nop()).Load()
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Browser.Headless || cfg.Notify.Telegram == nil || cfg.Notify.Telegram.ChatID != 42 {
		t.Fatalf("cfg = %+v", cfg)
	}
	ceiling, err := cfg.LoadCeiling()
	if err != nil || ceiling != 10*time.Second {
		t.Fatalf("ceiling = %v, %v", ceiling, err)
	}
}

func TestUnknownKeyRejected(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{"serverr": {"addr": "x"}}`)

	if _, err := NewManager(path, logx.Nop()).Load(); err == nil {
		t.Fatalf("typoed key accepted")
	}
}

func TestBadDurationRejected(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{"scheduler": {"poll_interval": "fast"}}`)

	if _, err := NewManager(path, logx.Nop()).Load(); err == nil {
		t.Fatalf("invalid duration accepted")
	}
}

func TestMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "absent.json")
	m := NewManager(path, logx.Nop())

	cfg, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != Default().Server.Addr || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("defaults = %+v", cfg)
	}

	// Parse itself still reports the absence.
	if _, err := m.Parse(); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("parse err = %v", err)
	}
}

func TestSubscribePublishKeepsNewest(t *testing.T) {
	t.Parallel()

	m := NewManager("unused.json", logx.Nop())
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	first := Default()
	second := Default()
	second.Server.Addr = "127.0.0.1:1"
	third := Default()
	third.Server.Addr = "127.0.0.1:2"

	m.publish(first)
	m.publish(second)
	m.publish(third)

	got := <-ch
	if got.Server.Addr != "127.0.0.1:2" {
		t.Fatalf("subscriber saw %q, want the newest", got.Server.Addr)
	}
}
