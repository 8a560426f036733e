package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ppiankov/accessgate/internal/audit"
	"github.com/ppiankov/accessgate/internal/model"
)

var (
	_ audit.Sink       = (*AuditSink)(nil)
	_ audit.Rollbacker = (*AuditSink)(nil)
)

// AuditSink writes chain entries to the audit_entries table in append order.
type AuditSink struct {
	s *Store
}

// AuditSink returns a sink over the audit_entries table. Closing the sink
// does not close the database.
func (s *Store) AuditSink() *AuditSink {
	return &AuditSink{s: s}
}

func nullJSON(v map[string]any) (sql.NullString, error) {
	if len(v) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func (a *AuditSink) Write(e audit.Entry) error {
	req, err := nullJSON(e.RequestDetails)
	if err != nil {
		return fmt.Errorf("store: marshal request details: %w", err)
	}
	resp, err := nullJSON(e.ResponseDetails)
	if err != nil {
		return fmt.Errorf("store: marshal response details: %w", err)
	}
	_, err = a.s.db.Exec(
		`INSERT INTO audit_entries (id, tenant_id, user_id, action, resource_type, resource_id,
			decision, policy_id, request_details, response_details, timestamp, chain_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TenantID, e.UserID, e.Action, e.ResourceType, e.ResourceID,
		string(e.Decision), e.PolicyID, req, resp,
		e.Timestamp.UTC().Format(audit.TimestampFormat), e.ChainHash,
	)
	if err != nil {
		return fmt.Errorf("store: insert audit entry: %w", err)
	}
	return nil
}

// Rollback deletes the entry with the given id. The chain only rolls back
// the entry it just wrote, so the row is always the newest one.
func (a *AuditSink) Rollback(id string) error {
	res, err := a.s.db.Exec(`DELETE FROM audit_entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete audit entry %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n != 1 {
		return fmt.Errorf("store: delete audit entry %s: %d rows affected", id, n)
	}
	return nil
}

func (a *AuditSink) Close() error { return nil }

// CountSince counts entries newer than since and how many of them are
// denials. Entries are appended in time order, so the scan walks back from
// the newest row and stops at the first older one.
func (a *AuditSink) CountSince(since time.Time) (requests, denials int, err error) {
	rows, err := a.s.db.Query(`SELECT decision, timestamp FROM audit_entries ORDER BY seq DESC`)
	if err != nil {
		return 0, 0, fmt.Errorf("store: query audit window: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var decision, ts string
		if err := rows.Scan(&decision, &ts); err != nil {
			return 0, 0, fmt.Errorf("store: scan audit window: %w", err)
		}
		at, err := time.Parse(audit.TimestampFormat, ts)
		if err != nil {
			return 0, 0, fmt.Errorf("store: audit window timestamp %q: %w", ts, err)
		}
		if at.Before(since) {
			break
		}
		requests++
		if model.Decision(decision) == model.Deny {
			denials++
		}
	}
	return requests, denials, rows.Err()
}

// LoadAudit returns every persisted entry in append order.
func (s *Store) LoadAudit() ([]audit.Entry, error) {
	rows, err := s.db.Query(
		`SELECT id, tenant_id, user_id, action, resource_type, resource_id, decision,
			policy_id, request_details, response_details, timestamp, chain_hash
		 FROM audit_entries ORDER BY seq`,
	)
	if err != nil {
		return nil, fmt.Errorf("store: query audit entries: %w", err)
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var (
			e         audit.Entry
			decision  string
			req, resp sql.NullString
			ts        string
		)
		if err := rows.Scan(&e.ID, &e.TenantID, &e.UserID, &e.Action, &e.ResourceType,
			&e.ResourceID, &decision, &e.PolicyID, &req, &resp, &ts, &e.ChainHash); err != nil {
			return nil, fmt.Errorf("store: scan audit entry: %w", err)
		}
		e.Decision = model.Decision(decision)
		if e.Timestamp, err = time.Parse(audit.TimestampFormat, ts); err != nil {
			return nil, fmt.Errorf("store: audit entry %s timestamp: %w", e.ID, err)
		}
		if req.Valid {
			if err := json.Unmarshal([]byte(req.String), &e.RequestDetails); err != nil {
				return nil, fmt.Errorf("store: audit entry %s request details: %w", e.ID, err)
			}
		}
		if resp.Valid {
			if err := json.Unmarshal([]byte(resp.String), &e.ResponseDetails); err != nil {
				return nil, fmt.Errorf("store: audit entry %s response details: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
