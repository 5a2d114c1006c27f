package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": snapshot JSON + append-only audit log (default)
//   - "sqlite": SQLite database file (optional build tag)
type Config struct {
	Driver      string
	Path        string
	Audit       bool
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records a schedule mutation or trigger issued through the API.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At      time.Time
	UserID  string
	ChatID  string
	Group   bool
	Action  string
	EventID string
	Error   string
	TookMS  int64
}
