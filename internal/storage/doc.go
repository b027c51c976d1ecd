// Package storage persists site health statistics and the shout run history.
//
// Drivers:
//   - "memory": process-local, the default when no storage is configured
//   - "file":   JSON snapshot for stats + JSON Lines journal for runs
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
package storage
