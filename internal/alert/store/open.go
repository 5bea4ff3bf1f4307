package store

import (
	"errors"
	"strings"

	logx "alertd/pkg/logx"
)

// Open initializes the configured store. Unlike optional stores elsewhere,
// alerts must be persisted, so "none" is an error.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "store"), logx.String("driver", driver))

	switch driver {
	case "", "dir", "file":
		return OpenDir(nil, cfg.Path, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "none":
		return nil, errors.New("storage.driver none is not supported: alerts must be persisted")
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
