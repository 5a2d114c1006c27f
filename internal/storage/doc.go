// Package storage persists the schedule snapshot and an audit trail of
// API actions.
//
// Drivers:
//   - file (default): atomic JSON snapshot + JSONL audit log
//   - sqlite (build tag "sqlite"): rows in a local database file
package storage
