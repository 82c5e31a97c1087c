// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - SiteRegistry: Resolves site IDs to descriptors
//   - RepositoryFactory / ContentRepository: Per-site content access
//   - JobStore: Durable sync job queue with leases
//   - SyncRecordStore: Per-pair ledger used for idempotency
//   - ExternalRefStore: Source to target entity mapping
//   - AuditLog: Append-only job and pair outcomes
//
// # Optional Interfaces
//
//   - SchedulerStore: Recurring sync state. Without it, no schedules run.
//   - ConfigStore: Application settings
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
