// Package config loads the daemon configuration file (JSON or YAML), keeps
// it fresh via a filesystem watch, and fans committed updates out to
// subscribers.
package config

import "time"

type Config struct {
	Server    ServerConfig    `json:"server"`
	Storage   StorageConfig   `json:"storage"`
	Browser   BrowserConfig   `json:"browser"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Notify    NotifyConfig    `json:"notify"`
	Logging   LoggingConfig   `json:"logging"`
}

type ServerConfig struct {
	// Addr is the control surface listen address. Keep it on loopback
	// unless the host network is trusted.
	Addr string `json:"addr,omitempty"`
}

type StorageConfig struct {
	Driver string `json:"driver,omitempty"` // "sqlite" (default) or "file"
	Path   string `json:"path,omitempty"`
	// BusyTimeout is a Go duration string (sqlite only).
	BusyTimeout string `json:"busy_timeout,omitempty"`
	// SessionPath overrides the runtime-dir default for session timers.
	SessionPath string `json:"session_path,omitempty"`
}

// BrowserConfig controls how the daemon attaches to the browser.
//
// All durations are Go duration strings (e.g. "500ms", "10s").
type BrowserConfig struct {
	// ControlURL is a DevTools websocket URL of an already-running
	// browser. Empty means launch one.
	ControlURL string `json:"control_url,omitempty"`
	Headless   bool   `json:"headless,omitempty"`

	// LoadCeiling bounds the post-navigation load wait.
	LoadCeiling string `json:"load_ceiling,omitempty"`
	// SettleDelay runs after the load signal, for page scripts.
	SettleDelay string `json:"settle_delay,omitempty"`
}

type SchedulerConfig struct {
	// PollInterval is the due-timer scan cadence. Default "1s".
	PollInterval string `json:"poll_interval,omitempty"`
	// SweepInterval is the auto-delete cadence. Default "1m".
	SweepInterval string `json:"sweep_interval,omitempty"`
}

type NotifyConfig struct {
	Desktop    bool            `json:"desktop"`
	Telegram   *TelegramConfig `json:"telegram,omitempty"`
	QueueSize  int             `json:"queue_size,omitempty"`
	RatePerSec float64         `json:"rate_per_sec,omitempty"`
}

type TelegramConfig struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chat_id"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Addr: "127.0.0.1:8457"},
		Storage: StorageConfig{Driver: "sqlite", Path: "./clicktimerd.db"},
		Notify:  NotifyConfig{Desktop: true},
		Logging: LoggingConfig{Level: "info", Console: true},
	}
}

// PollInterval parses the scheduler poll cadence, defaulting to one second.
func (c *Config) PollInterval() (time.Duration, error) {
	return ParseDurationOrDefault("scheduler.poll_interval", c.Scheduler.PollInterval, time.Second)
}

func (c *Config) SweepInterval() (time.Duration, error) {
	return ParseDurationOrDefault("scheduler.sweep_interval", c.Scheduler.SweepInterval, time.Minute)
}

func (c *Config) LoadCeiling() (time.Duration, error) {
	return ParseDurationOrDefault("browser.load_ceiling", c.Browser.LoadCeiling, 30*time.Second)
}

func (c *Config) SettleDelay() (time.Duration, error) {
	return ParseDurationOrDefault("browser.settle_delay", c.Browser.SettleDelay, time.Second)
}

func (c *Config) StorageBusyTimeout() (time.Duration, error) {
	return ParseDurationOrDefault("storage.busy_timeout", c.Storage.BusyTimeout, 5*time.Second)
}

// Validate checks everything that can be checked without touching I/O.
func (c *Config) Validate() error {
	if _, err := c.PollInterval(); err != nil {
		return err
	}
	if _, err := c.SweepInterval(); err != nil {
		return err
	}
	if _, err := c.LoadCeiling(); err != nil {
		return err
	}
	if _, err := c.SettleDelay(); err != nil {
		return err
	}
	if _, err := c.StorageBusyTimeout(); err != nil {
		return err
	}
	return nil
}
