package storage

import (
	"fmt"
	"time"
)

// PermissionRecord is one persisted always-approved entry (global scope
// only — session scope is in-process, per spec §6's Permissions store).
type PermissionRecord struct {
	Tool    string
	Pattern string
}

// PermissionStore persists the global always-approved list.
type PermissionStore struct {
	db *DB
}

// NewPermissionStore wraps an already-initialized DB.
func NewPermissionStore(db *DB) *PermissionStore {
	return &PermissionStore{db: db}
}

// Add persists one always-approved entry.
func (s *PermissionStore) Add(tool, pattern string) error {
	_, err := s.db.Conn().Exec(
		`INSERT OR IGNORE INTO permission_entries (tool, pattern, created_at) VALUES (?, ?, ?)`,
		tool, pattern, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to persist permission entry: %w", err)
	}
	return nil
}

// List returns every persisted always-approved entry.
func (s *PermissionStore) List() ([]PermissionRecord, error) {
	rows, err := s.db.Conn().Query(`SELECT tool, pattern FROM permission_entries ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list permission entries: %w", err)
	}
	defer rows.Close()

	var out []PermissionRecord
	for rows.Next() {
		var rec PermissionRecord
		if err := rows.Scan(&rec.Tool, &rec.Pattern); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
