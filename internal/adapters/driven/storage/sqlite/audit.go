package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/sitesync/internal/core/domain"
	"github.com/custodia-labs/sitesync/internal/core/ports/driven"
)

// ==================== Audit Log ====================

// auditLog implements driven.AuditLog.
type auditLog struct {
	store *Store
}

var _ driven.AuditLog = (*auditLog)(nil)

// Append adds an entry.
func (l *auditLog) Append(ctx context.Context, entry domain.AuditEntry) error {
	if entry.At.IsZero() {
		entry.At = l.store.now()
	}
	_, err := l.store.db.ExecContext(ctx, `
		INSERT INTO audit_log (job_id, event, target_site_id, unit_key, outcome, attempts, message, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.JobID, string(entry.Event), entry.TargetSiteID, string(entry.UnitKey),
		string(entry.Outcome), entry.Attempts, entry.Message, unixNano(entry.At))
	if err != nil {
		return fmt.Errorf("appending audit entry: %w", err)
	}
	return nil
}

// List returns matching entries in append order. With a limit, the most
// recent entries are returned.
func (l *auditLog) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	var where []string
	var args []any
	if filter.JobID != "" {
		where = append(where, "job_id = ?")
		args = append(args, filter.JobID)
	}
	if len(filter.Events) > 0 {
		where = append(where, "event IN ("+placeholders(len(filter.Events))+")")
		for _, e := range filter.Events {
			args = append(args, string(e))
		}
	}

	query := `SELECT seq, job_id, event, target_site_id, unit_key, outcome, attempts, message, at FROM audit_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	query = `SELECT * FROM (` + query + `) ORDER BY seq`

	rows, err := l.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry //nolint:prealloc // size unknown from query
	for rows.Next() {
		var e domain.AuditEntry
		var event, unitKey, outcome string
		var at int64
		if err := rows.Scan(&e.Seq, &e.JobID, &event, &e.TargetSiteID, &unitKey,
			&outcome, &e.Attempts, &e.Message, &at); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.Event = domain.AuditEvent(event)
		e.UnitKey = domain.UnitKey(unitKey)
		e.Outcome = domain.Outcome(outcome)
		e.At = fromUnixNano(at)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit log: %w", err)
	}
	return entries, nil
}
