// Package services implements the driving port interfaces.
//
// SyncService validates and records sync requests, the Dispatcher leases
// jobs and runs the export, map, resolve and import pipeline for each
// (unit, target) pair, and the Scheduler enqueues recurring syncs.
// Services reach infrastructure only through driven ports.
package services
