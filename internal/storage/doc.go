// Package storage persists alarms, the two global alarm settings, an audit
// trail of operator actions and notifier dedup marks.
//
// Drivers:
//   - "memory": process-local, used by tests and dry runs
//   - "file": JSON snapshot plus an append-only audit log
//   - "sqlite": pure-Go SQLite database file (default)
//   - "postgres": PostgreSQL through a pgx pool
//
// Every driver returns copies; callers never share an *alarm.Alarm with the
// store.
package storage
