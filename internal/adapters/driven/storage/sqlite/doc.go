// Package sqlite provides a unified SQLite-based implementation of the
// engine's storage ports.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. It implements multiple store interfaces
// through a single database connection:
//
//   - JobStore: Durable job queue with leases
//   - SyncRecordStore: Per-pair sync ledger
//   - ExternalRefStore: Source to target entity mapping
//   - AuditLog: Append-only job history
//   - SchedulerStore: Recurring sync state and firing history
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
// Applied versions are recorded in schema_migrations.
//
// # Data Location
//
// By default, the database is stored at ~/.sitesync/data/sitesync.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode. Leasing is a single UPDATE ... RETURNING statement, so
// two workers can never claim the same job.
package sqlite
