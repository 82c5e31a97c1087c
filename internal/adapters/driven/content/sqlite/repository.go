// Package sqlite provides a content repository whose site data lives in one
// SQLite file per site.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/sitesync/internal/core/domain"
	"github.com/custodia-labs/sitesync/internal/core/ports/driven"
)

// Ensure Repository implements the interface.
var _ driven.ContentRepository = (*Repository)(nil)

// CategoryField is the payload field used by category selectors.
const CategoryField = "category"

const schema = `
CREATE TABLE IF NOT EXISTS entities (
	kind        TEXT NOT NULL,
	id          TEXT NOT NULL,
	payload     TEXT NOT NULL,
	category    TEXT NOT NULL DEFAULT '',
	revision    INTEGER NOT NULL,
	modified_at INTEGER NOT NULL,
	PRIMARY KEY (kind, id)
);
CREATE INDEX IF NOT EXISTS idx_entities_category ON entities(kind, category);
CREATE TABLE IF NOT EXISTS site_revision (
	id    INTEGER PRIMARY KEY CHECK (id = 1),
	value INTEGER NOT NULL
);
INSERT OR IGNORE INTO site_revision (id, value) VALUES (1, 0);
`

// Repository is a driven.ContentRepository over a SQLite file.
// Every change bumps a site-wide revision counter stored alongside the data.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the site database at path.
func Open(path string) (*Repository, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: sqlite site needs a dsn", domain.ErrInvalidInput)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating site directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening site database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating site schema: %w", err)
	}
	return &Repository{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Put stores an entity as a local edit at this site and returns its stamp.
func (r *Repository) Put(ctx context.Context, kind domain.ContentKind, id string, payload domain.Payload) (domain.Stamp, error) {
	return r.store(ctx, kind, id, payload)
}

// Find resolves a selector to entity IDs. Explicit ID lists keep their order;
// category and all selectors are sorted by ID.
func (r *Repository) Find(ctx context.Context, sel domain.ContentSelector) ([]string, error) {
	switch {
	case sel.ID != "":
		return r.existing(ctx, sel.Kind, []string{sel.ID})
	case len(sel.IDs) > 0:
		return r.existing(ctx, sel.Kind, sel.IDs)
	}

	query := `SELECT id FROM entities WHERE kind = ?`
	args := []any{string(sel.Kind)}
	if sel.Category != "" {
		query += ` AND category = ?`
		args = append(args, sel.Category)
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("finding entities", err)
	}
	defer rows.Close()

	var ids []string //nolint:prealloc // size unknown from query
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, unavailable("scanning entity id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating entities", err)
	}
	return ids, nil
}

// existing filters ids to those present, preserving order.
func (r *Repository) existing(ctx context.Context, kind domain.ContentKind, ids []string) ([]string, error) {
	var found []string
	for _, id := range ids {
		var one int
		err := r.db.QueryRowContext(ctx, `SELECT 1 FROM entities WHERE kind = ? AND id = ?`, string(kind), id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, unavailable("finding entity", err)
		}
		found = append(found, id)
	}
	return found, nil
}

// Read returns one entity.
func (r *Repository) Read(ctx context.Context, kind domain.ContentKind, id string) (*domain.Entity, error) {
	var payload string
	var revision, modified int64
	err := r.db.QueryRowContext(ctx,
		`SELECT payload, revision, modified_at FROM entities WHERE kind = ? AND id = ?`,
		string(kind), id).Scan(&payload, &revision, &modified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("reading entity", err)
	}

	e := &domain.Entity{
		ID:    id,
		Kind:  kind,
		Stamp: domain.Stamp{Revision: revision, ModifiedAt: time.Unix(0, modified).UTC()},
	}
	if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
		return nil, fmt.Errorf("decoding %s %s: %w", kind, id, err)
	}
	return e, nil
}

// Write creates or updates the entity at ref.TargetID.
func (r *Repository) Write(ctx context.Context, kind domain.ContentKind, ref domain.ExternalRef, payload domain.Payload) (string, domain.Stamp, error) {
	id := ref.TargetID
	if id == "" {
		id = uuid.NewString()
	}
	stamp, err := r.store(ctx, kind, id, payload)
	if err != nil {
		return "", domain.Stamp{}, err
	}
	return id, stamp, nil
}

// CurrentRevision returns an entity's stamp.
func (r *Repository) CurrentRevision(ctx context.Context, kind domain.ContentKind, id string) (domain.Stamp, error) {
	var revision, modified int64
	err := r.db.QueryRowContext(ctx,
		`SELECT revision, modified_at FROM entities WHERE kind = ? AND id = ?`,
		string(kind), id).Scan(&revision, &modified)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Stamp{}, fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Stamp{}, unavailable("reading revision", err)
	}
	return domain.Stamp{Revision: revision, ModifiedAt: time.Unix(0, modified).UTC()}, nil
}

// store bumps the site revision and upserts the entity in one transaction.
func (r *Repository) store(ctx context.Context, kind domain.ContentKind, id string, payload domain.Payload) (domain.Stamp, error) {
	if payload == nil {
		payload = domain.Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return domain.Stamp{}, fmt.Errorf("%w: encoding %s %s: %w", domain.ErrTargetRejected, kind, id, err)
	}
	category, _ := payload[CategoryField].(string)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Stamp{}, unavailable("starting write", err)
	}
	defer func() { _ = tx.Rollback() }()

	stamp := domain.Stamp{ModifiedAt: r.now().UTC()}
	if err := tx.QueryRowContext(ctx,
		`UPDATE site_revision SET value = value + 1 WHERE id = 1 RETURNING value`).Scan(&stamp.Revision); err != nil {
		return domain.Stamp{}, unavailable("bumping revision", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entities (kind, id, payload, category, revision, modified_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind, id) DO UPDATE SET
			payload = excluded.payload,
			category = excluded.category,
			revision = excluded.revision,
			modified_at = excluded.modified_at
	`, string(kind), id, string(data), category, stamp.Revision, stamp.ModifiedAt.UnixNano())
	if err != nil {
		return domain.Stamp{}, unavailable("writing entity", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Stamp{}, unavailable("committing write", err)
	}
	return stamp, nil
}

// unavailable wraps database failures as transient.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrTransient, err)
}
