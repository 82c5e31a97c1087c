// Package domain defines the core business entities for sitesync.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - SiteDescriptor: A site in the network and the kinds it accepts
//   - ContentUnit: A canonical, site-independent content entity
//   - SyncJob: A request to replicate content to target sites
//   - SyncRecord: The idempotency ledger entry for one (job, target, unit) pair
//   - ExternalRef: The source entity to target entity mapping
//   - Policy: Field inclusion and conflict resolution settings
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
