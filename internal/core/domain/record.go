package domain

import "time"

// Outcome is the result of one (job, target, content unit) attempt.
type Outcome string

// Pair outcomes.
const (
	OutcomeSuccess Outcome = "success"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// SyncRecord is the ledger entry for one (job, target, content unit) pair.
// There is at most one record per pair; retries update it in place.
type SyncRecord struct {
	JobID        string
	TargetSiteID string
	UnitKey      UnitKey

	// AppliedRevision is the source revision this attempt carried.
	AppliedRevision int64

	Outcome Outcome

	// TargetID is the entity id at the target, when known.
	TargetID string

	// TargetRevision is the target revision observed right after the write.
	// A later target revision that differs means the target was edited
	// outside the engine.
	TargetRevision int64

	// Fingerprint maps mapped field names to content hashes.
	Fingerprint map[string]string

	// Detail explains skips and failures.
	Detail string

	Timestamp time.Time
}

// Applied reports whether the record represents a successful write.
func (r *SyncRecord) Applied() bool {
	return r != nil && r.Outcome == OutcomeSuccess
}

// AuditEvent classifies audit log entries.
type AuditEvent string

// Audit events.
const (
	AuditEnqueued   AuditEvent = "enqueued"
	AuditPair       AuditEvent = "pair"
	AuditRetry      AuditEvent = "retry"
	AuditCompleted  AuditEvent = "completed"
	AuditDeadLetter AuditEvent = "dead_letter"
	AuditCancelled  AuditEvent = "cancelled"
)

// AuditEntry is one append-only audit log line.
type AuditEntry struct {
	// Seq is assigned by the log on append.
	Seq int64

	JobID        string
	Event        AuditEvent
	TargetSiteID string
	UnitKey      UnitKey
	Outcome      Outcome
	Attempts     int
	Message      string
	At           time.Time
}

// AuditFilter narrows audit listings.
type AuditFilter struct {
	JobID  string
	Events []AuditEvent

	// Limit caps the result count. Zero means no limit.
	Limit int
}
