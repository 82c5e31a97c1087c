// Package mcp provides an MCP (Model Context Protocol) server adapter for sitesync.
// It lets AI assistants enqueue syncs, cancel jobs and inspect job outcomes.
package mcp

import "errors"

// ErrMissingSyncService is returned when the sync service is not provided.
var ErrMissingSyncService = errors.New("mcp: sync service is required")
