// Package memory provides an in-memory content repository for a single site.
// Useful for tests and for trying out a site network without databases.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/sitesync/internal/core/domain"
	"github.com/custodia-labs/sitesync/internal/core/ports/driven"
)

// Ensure Repository implements the interface.
var _ driven.ContentRepository = (*Repository)(nil)

// CategoryField is the payload field used by category selectors.
const CategoryField = "category"

type entityKey struct {
	kind domain.ContentKind
	id   string
}

// Repository is an in-memory driven.ContentRepository.
// Every change bumps a site-wide revision counter.
type Repository struct {
	mu       sync.RWMutex
	entities map[entityKey]domain.Entity
	revision int64
	writes   int
	now      func() time.Time
}

// New creates an empty repository.
func New() *Repository {
	return &Repository{
		entities: make(map[entityKey]domain.Entity),
		now:      time.Now,
	}
}

// SetClock replaces the clock used for modification timestamps.
func (r *Repository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Put stores an entity as a local edit at this site and returns its stamp.
func (r *Repository) Put(kind domain.ContentKind, id string, payload domain.Payload) domain.Stamp {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.put(kind, id, payload)
}

// PutStamped stores an entity with an explicit stamp, e.g. to mirror an
// existing site. Later changes continue from the highest revision seen.
func (r *Repository) PutStamped(kind domain.ContentKind, id string, payload domain.Payload, stamp domain.Stamp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities[entityKey{kind, id}] = domain.Entity{
		ID:      id,
		Kind:    kind,
		Payload: payload.Clone(),
		Stamp:   stamp,
	}
	r.revision = max(r.revision, stamp.Revision)
}

// Delete removes an entity.
func (r *Repository) Delete(kind domain.ContentKind, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entities, entityKey{kind, id})
	r.revision++
}

// Writes returns how many times Write stored an entity.
func (r *Repository) Writes() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.writes
}

// Len returns the number of stored entities of a kind.
func (r *Repository) Len(kind domain.ContentKind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for k := range r.entities {
		if k.kind == kind {
			n++
		}
	}
	return n
}

// Find resolves a selector to entity IDs in ascending order.
func (r *Repository) Find(ctx context.Context, sel domain.ContentSelector) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	switch {
	case sel.ID != "":
		if _, ok := r.entities[entityKey{sel.Kind, sel.ID}]; ok {
			ids = append(ids, sel.ID)
		}
		return ids, nil
	case len(sel.IDs) > 0:
		for _, id := range sel.IDs {
			if _, ok := r.entities[entityKey{sel.Kind, id}]; ok {
				ids = append(ids, id)
			}
		}
		return ids, nil
	}

	for k, e := range r.entities {
		if k.kind != sel.Kind {
			continue
		}
		if sel.Category != "" && e.Payload[CategoryField] != sel.Category {
			continue
		}
		ids = append(ids, k.id)
	}
	slices.Sort(ids)
	return ids, nil
}

// Read returns one entity.
func (r *Repository) Read(ctx context.Context, kind domain.ContentKind, id string) (*domain.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entities[entityKey{kind, id}]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
	}
	e.Payload = e.Payload.Clone()
	return &e, nil
}

// Write creates or updates the entity at ref.TargetID.
func (r *Repository) Write(ctx context.Context, kind domain.ContentKind, ref domain.ExternalRef, payload domain.Payload) (string, domain.Stamp, error) {
	if err := ctx.Err(); err != nil {
		return "", domain.Stamp{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := ref.TargetID
	if id == "" {
		id = uuid.NewString()
	}
	stamp := r.put(kind, id, payload)
	r.writes++
	return id, stamp, nil
}

// CurrentRevision returns an entity's stamp.
func (r *Repository) CurrentRevision(ctx context.Context, kind domain.ContentKind, id string) (domain.Stamp, error) {
	if err := ctx.Err(); err != nil {
		return domain.Stamp{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entities[entityKey{kind, id}]
	if !ok {
		return domain.Stamp{}, fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
	}
	return e.Stamp, nil
}

// put stores an entity. Caller holds r.mu.
func (r *Repository) put(kind domain.ContentKind, id string, payload domain.Payload) domain.Stamp {
	r.revision++
	stamp := domain.Stamp{Revision: r.revision, ModifiedAt: r.now()}
	r.entities[entityKey{kind, id}] = domain.Entity{
		ID:      id,
		Kind:    kind,
		Payload: payload.Clone(),
		Stamp:   stamp,
	}
	return stamp
}
