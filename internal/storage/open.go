package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	logx "schedbot/pkg/logx"
)

// Store is the persistence API used by the scheduler and the HTTP API.
//
// The schedule is persisted as a whole: one opaque JSON document per event,
// keyed by event id. The scheduler owns the event encoding; storage only
// moves bytes.
type Store interface {
	SaveSchedule(ctx context.Context, events map[string]json.RawMessage) error
	LoadSchedule(ctx context.Context) (map[string]json.RawMessage, error)
	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
