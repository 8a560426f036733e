package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ppiankov/accessgate/internal/policy"
)

var _ policy.Store = (*PolicyStore)(nil)

// PolicyStore is a policy.Store backed by the policies table. Each policy is
// stored as a JSON body, so reads always return fresh copies.
type PolicyStore struct {
	s *Store
}

// Policies returns the SQLite policy store.
func (s *Store) Policies() *PolicyStore {
	return &PolicyStore{s: s}
}

func (ps *PolicyStore) write(p policy.AccessPolicy, query string) (sql.Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("store: marshal policy %s: %w", p.ID, err)
	}
	res, err := ps.s.db.Exec(query, p.ID, p.TenantID, p.Priority, p.Enabled, string(body))
	if err != nil {
		return nil, fmt.Errorf("store: write policy %s: %w", p.ID, err)
	}
	return res, nil
}

func (ps *PolicyStore) Create(p policy.AccessPolicy) error {
	res, err := ps.write(p, `INSERT INTO policies (id, tenant_id, priority, enabled, body)
		VALUES (?, ?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", policy.ErrExists, p.ID)
	}
	return nil
}

func (ps *PolicyStore) Update(p policy.AccessPolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("store: marshal policy %s: %w", p.ID, err)
	}
	res, err := ps.s.db.Exec(
		`UPDATE policies SET tenant_id = ?, priority = ?, enabled = ?, body = ?,
			updated_at = strftime('%s', 'now') WHERE id = ?`,
		p.TenantID, p.Priority, p.Enabled, string(body), p.ID,
	)
	if err != nil {
		return fmt.Errorf("store: update policy %s: %w", p.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", policy.ErrNotFound, p.ID)
	}
	return nil
}

func (ps *PolicyStore) Upsert(p policy.AccessPolicy) error {
	_, err := ps.write(p, `INSERT INTO policies (id, tenant_id, priority, enabled, body)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET tenant_id = excluded.tenant_id,
			priority = excluded.priority, enabled = excluded.enabled,
			body = excluded.body, updated_at = strftime('%s', 'now')`)
	return err
}

func (ps *PolicyStore) Delete(id string) error {
	if _, err := ps.s.db.Exec(`DELETE FROM policies WHERE id = ?`, id); err != nil {
		return fmt.Errorf("store: delete policy %s: %w", id, err)
	}
	return nil
}

func (ps *PolicyStore) Get(id string) (policy.AccessPolicy, error) {
	var body string
	err := ps.s.db.QueryRow(`SELECT body FROM policies WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return policy.AccessPolicy{}, fmt.Errorf("%w: %s", policy.ErrNotFound, id)
	}
	if err != nil {
		return policy.AccessPolicy{}, fmt.Errorf("store: get policy %s: %w", id, err)
	}
	var p policy.AccessPolicy
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return policy.AccessPolicy{}, fmt.Errorf("store: decode policy %s: %w", id, err)
	}
	return p, nil
}

// List returns all policies ordered by id.
func (ps *PolicyStore) List() ([]policy.AccessPolicy, error) {
	rows, err := ps.s.db.Query(`SELECT id, body FROM policies ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list policies: %w", err)
	}
	defer rows.Close()

	var out []policy.AccessPolicy
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("store: scan policy: %w", err)
		}
		var p policy.AccessPolicy
		if err := json.Unmarshal([]byte(body), &p); err != nil {
			return nil, fmt.Errorf("store: decode policy %s: %w", id, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
