package storage

import (
	"strings"

	"lightup/internal/alarm"
	logx "lightup/pkg/logx"
)

// Open initializes the configured store. An empty driver selects sqlite.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "memory", "mem", "none":
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "postgres", "postgresql", "pg":
		return openPostgres(cfg, log)
	default:
		return nil, alarm.Errorf(alarm.ErrInvalid, "unknown storage driver: %s", driver)
	}
}
