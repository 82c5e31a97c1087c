package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/sitesync/internal/core/domain"
)

const (
	// uriScheme is the custom URI scheme for sitesync resources.
	uriScheme = "sitesync://"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "sites",
		Name:        "sites",
		Description: "Sites registered in the network",
		MIMEType:    "application/json",
	}, s.handleSitesResource)

	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "jobs",
		Name:        "jobs",
		Description: "Most recent sync jobs",
		MIMEType:    "application/json",
	}, s.handleJobsResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "jobs/{jobId}",
		Name:        "job",
		Description: "A sync job with its per-item outcomes",
		MIMEType:    "application/json",
	}, s.handleJobResource)
}

// recentJobs bounds the jobs resource.
const recentJobs = 50

func (s *Server) handleSitesResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	sites, err := s.ports.Sync.Sites(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing sites: %w", err)
	}

	type siteInfo struct {
		ID     string   `json:"id"`
		Name   string   `json:"name,omitempty"`
		Driver string   `json:"driver"`
		Kinds  []string `json:"kinds,omitempty"`
	}

	infos := make([]siteInfo, len(sites))
	for i, site := range sites {
		infos[i] = siteInfo{ID: site.ID, Name: site.Name, Driver: site.Driver}
		for _, k := range site.Kinds {
			infos[i].Kinds = append(infos[i].Kinds, string(k))
		}
	}
	return jsonResult(req.Params.URI, infos)
}

func (s *Server) handleJobsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	jobs, err := s.ports.Sync.Jobs(ctx, domain.JobFilter{Limit: recentJobs})
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}

	out := make([]JobOutput, len(jobs))
	for i := range jobs {
		out[i] = jobOutput(&jobs[i])
	}
	return jsonResult(req.Params.URI, out)
}

func (s *Server) handleJobResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	jobID := extractJobID(req.Params.URI)
	if jobID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	_, status, err := s.handleJobStatus(ctx, nil, JobInput{JobID: jobID})
	if err != nil {
		return nil, fmt.Errorf("getting job: %w", err)
	}
	return jsonResult(req.Params.URI, status)
}

func jsonResult(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling %s: %w", uri, err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractJobID extracts the job ID from a URI like sitesync://jobs/{jobId}.
func extractJobID(uri string) string {
	const prefix = uriScheme + "jobs/"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}
	id := strings.TrimPrefix(uri, prefix)
	if strings.Contains(id, "/") {
		return ""
	}
	return id
}
