package file

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/sitesync/internal/core/domain"
	"github.com/custodia-labs/sitesync/internal/core/ports/driven"
)

// Ensure StaticRegistry implements the interface.
var _ driven.SiteRegistry = (*StaticRegistry)(nil)

// StaticRegistry is a SiteRegistry over a fixed set of descriptors loaded
// at start-up.
type StaticRegistry struct {
	sites map[string]domain.SiteDescriptor
	order []string
}

// NewStaticRegistry validates the descriptors and builds a registry.
func NewStaticRegistry(sites []domain.SiteDescriptor) (*StaticRegistry, error) {
	r := &StaticRegistry{sites: make(map[string]domain.SiteDescriptor, len(sites))}
	for _, s := range sites {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.sites[s.ID]; dup {
			return nil, fmt.Errorf("%w: site %s is registered twice", domain.ErrInvalidInput, s.ID)
		}
		s.Kinds = slices.Clone(s.Kinds)
		r.sites[s.ID] = s
		r.order = append(r.order, s.ID)
	}
	slices.SortFunc(r.order, strings.Compare)
	return r, nil
}

// GetSite returns the descriptor for a site.
func (r *StaticRegistry) GetSite(_ context.Context, siteID string) (*domain.SiteDescriptor, error) {
	s, ok := r.sites[siteID]
	if !ok {
		return nil, fmt.Errorf("site %s: %w", siteID, domain.ErrNotFound)
	}
	s.Kinds = slices.Clone(s.Kinds)
	return &s, nil
}

// ListSites returns every site ordered by ID.
func (r *StaticRegistry) ListSites(_ context.Context) ([]domain.SiteDescriptor, error) {
	out := make([]domain.SiteDescriptor, 0, len(r.order))
	for _, id := range r.order {
		s := r.sites[id]
		s.Kinds = slices.Clone(s.Kinds)
		out = append(out, s)
	}
	return out, nil
}

// sitesFile is the layout of a YAML sites file:
//
//	sites:
//	  - id: main
//	    driver: sqlite
//	    dsn: /var/lib/sitesync/main.db
//	    kinds: [article, page]
type sitesFile struct {
	Sites []siteEntry `yaml:"sites"`
}

// LoadSitesFile reads site descriptors from a YAML file.
func LoadSitesFile(path string) ([]domain.SiteDescriptor, error) {
	entries, err := loadSiteEntries(path)
	if err != nil {
		return nil, err
	}
	sites := make([]domain.SiteDescriptor, len(entries))
	for i, e := range entries {
		sites[i] = e.descriptor()
	}
	return sites, nil
}

func loadSiteEntries(path string) ([]siteEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sites file: %w", err)
	}
	var f sitesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", domain.ErrInvalidInput, path, err)
	}
	return f.Sites, nil
}
