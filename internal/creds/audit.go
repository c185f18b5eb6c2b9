package creds

import (
	"fmt"

	"github.com/google/uuid"
)

// AuditLogEntry is one row of the administrative audit trail: who did
// what to whom, and when.
type AuditLogEntry struct {
	ID     string
	Actor  string
	Action string
	Target string
}

// Audit appends an entry to the audit log. Returns an error on failure,
// like every other Store method; callers that must not let an audit
// failure swallow a protocol response are responsible for handling it.
func (s *Store) Audit(actor, action, target string) error {
	id := uuid.New().String()
	_, err := s.db.Exec("INSERT INTO audit_log (id, actor, action, target) VALUES (?, ?, ?, ?)", id, actor, action, target)
	if err != nil {
		return fmt.Errorf("append audit log: %w", err)
	}
	return nil
}

// ListAudit returns the audit trail in chronological order.
func (s *Store) ListAudit() ([]AuditLogEntry, error) {
	rows, err := s.db.Query("SELECT id, actor, action, target FROM audit_log ORDER BY at")
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	defer rows.Close()

	var out []AuditLogEntry
	for rows.Next() {
		var e AuditLogEntry
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.Target); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
