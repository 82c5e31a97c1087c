package mcp

import (
	"github.com/custodia-labs/sitesync/internal/core/ports/driving"
)

// Ports aggregates the driving port interfaces required by the MCP server.
type Ports struct {
	// Sync enqueues, cancels and reports on sync jobs.
	Sync driving.SyncService
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p == nil || p.Sync == nil {
		return ErrMissingSyncService
	}
	return nil
}
