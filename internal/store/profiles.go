package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ppiankov/accessgate/internal/profile"
)

var _ profile.Registry = (*ProfileRegistry)(nil)

// ProfileRegistry is a profile.Registry backed by the profiles table.
type ProfileRegistry struct {
	s *Store
}

// Profiles returns the SQLite profile registry.
func (s *Store) Profiles() *ProfileRegistry {
	return &ProfileRegistry{s: s}
}

func (pr *ProfileRegistry) Put(p profile.ABACProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("store: marshal profile %s: %w", profile.Key(p.TenantID, p.UserID), err)
	}
	_, err = pr.s.db.Exec(
		`INSERT INTO profiles (tenant_id, user_id, body) VALUES (?, ?, ?)
		 ON CONFLICT(tenant_id, user_id) DO UPDATE SET body = excluded.body,
			updated_at = strftime('%s', 'now')`,
		p.TenantID, p.UserID, string(body),
	)
	if err != nil {
		return fmt.Errorf("store: put profile %s: %w", profile.Key(p.TenantID, p.UserID), err)
	}
	return nil
}

func (pr *ProfileRegistry) Get(tenantID, userID string) (profile.ABACProfile, error) {
	var body string
	err := pr.s.db.QueryRow(
		`SELECT body FROM profiles WHERE tenant_id = ? AND user_id = ?`, tenantID, userID,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return profile.ABACProfile{}, fmt.Errorf("%w: %s", profile.ErrNotFound, profile.Key(tenantID, userID))
	}
	if err != nil {
		return profile.ABACProfile{}, fmt.Errorf("store: get profile: %w", err)
	}
	var p profile.ABACProfile
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return profile.ABACProfile{}, fmt.Errorf("store: decode profile: %w", err)
	}
	return p, nil
}

func (pr *ProfileRegistry) Delete(tenantID, userID string) error {
	_, err := pr.s.db.Exec(`DELETE FROM profiles WHERE tenant_id = ? AND user_id = ?`, tenantID, userID)
	if err != nil {
		return fmt.Errorf("store: delete profile: %w", err)
	}
	return nil
}

func (pr *ProfileRegistry) List(tenantID string) ([]profile.ABACProfile, error) {
	query := `SELECT body FROM profiles ORDER BY tenant_id, user_id`
	args := []any{}
	if tenantID != "" {
		query = `SELECT body FROM profiles WHERE tenant_id = ? ORDER BY user_id`
		args = append(args, tenantID)
	}
	rows, err := pr.s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list profiles: %w", err)
	}
	defer rows.Close()

	var out []profile.ABACProfile
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("store: scan profile: %w", err)
		}
		var p profile.ABACProfile
		if err := json.Unmarshal([]byte(body), &p); err != nil {
			return nil, fmt.Errorf("store: decode profile: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
