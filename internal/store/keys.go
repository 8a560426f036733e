package store

import (
	"fmt"
	"time"

	"github.com/ppiankov/accessgate/internal/tenantkey"
)

// SaveTenantKey creates or replaces a tenant's key metadata.
func (s *Store) SaveTenantKey(c tenantkey.Config) error {
	_, err := s.db.Exec(
		`INSERT INTO tenant_keys (tenant_id, algorithm, key_id, key_version,
			rotation_interval_ns, last_rotation, next_rotation)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(tenant_id) DO UPDATE SET algorithm = excluded.algorithm,
			key_id = excluded.key_id, key_version = excluded.key_version,
			rotation_interval_ns = excluded.rotation_interval_ns,
			last_rotation = excluded.last_rotation, next_rotation = excluded.next_rotation`,
		c.TenantID, c.Algorithm, c.KeyID, c.KeyVersion, int64(c.RotationInterval),
		c.LastRotation.UTC().Format(time.RFC3339Nano), c.NextRotation.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store: save tenant key %s: %w", c.TenantID, err)
	}
	return nil
}

// DeleteTenantKey removes a tenant's key metadata.
func (s *Store) DeleteTenantKey(tenantID string) error {
	if _, err := s.db.Exec(`DELETE FROM tenant_keys WHERE tenant_id = ?`, tenantID); err != nil {
		return fmt.Errorf("store: delete tenant key %s: %w", tenantID, err)
	}
	return nil
}

// LoadTenantKeys returns all persisted key metadata ordered by tenant.
func (s *Store) LoadTenantKeys() ([]tenantkey.Config, error) {
	rows, err := s.db.Query(
		`SELECT tenant_id, algorithm, key_id, key_version, rotation_interval_ns,
			last_rotation, next_rotation FROM tenant_keys ORDER BY tenant_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("store: query tenant keys: %w", err)
	}
	defer rows.Close()

	var out []tenantkey.Config
	for rows.Next() {
		var (
			c          tenantkey.Config
			intervalNs int64
			last, next string
		)
		if err := rows.Scan(&c.TenantID, &c.Algorithm, &c.KeyID, &c.KeyVersion, &intervalNs, &last, &next); err != nil {
			return nil, fmt.Errorf("store: scan tenant key: %w", err)
		}
		c.RotationInterval = time.Duration(intervalNs)
		if c.LastRotation, err = time.Parse(time.RFC3339Nano, last); err != nil {
			return nil, fmt.Errorf("store: tenant key %s last_rotation: %w", c.TenantID, err)
		}
		if c.NextRotation, err = time.Parse(time.RFC3339Nano, next); err != nil {
			return nil, fmt.Errorf("store: tenant key %s next_rotation: %w", c.TenantID, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
