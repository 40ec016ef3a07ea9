package storage

import (
	"errors"
	"strings"

	logx "github.com/wcooke83/element-click-timer/pkg/logx"
)

// Open initializes the configured durable tier.
func Open(cfg Config, log logx.Logger) (Durable, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "file":
		return openFile(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
