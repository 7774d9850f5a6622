package storage

import (
	"database/sql"
	"fmt"
	"os"
	"time"
)

// SnapshotEntry is one per-file pre-image attached to a user-turn index, per
// spec §4.7. ContentBefore is nil when the file did not previously exist.
type SnapshotEntry struct {
	Path          string
	ExistedBefore bool
	ContentBefore *string
}

// SnapshotStore implements spec §4.7, grounded on the same SQLite
// connection and transaction idiom SessionStore already uses.
type SnapshotStore struct {
	db *DB
}

// NewSnapshotStore wraps an already-initialized DB (shared with
// SessionStore; both tables live in the same database file).
func NewSnapshotStore(db *DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// BackupFile records the pre-image for (sessionID, messageIndex, path) the
// first time it is modified within that turn; subsequent calls for the same
// key within the same turn are no-ops (INSERT OR IGNORE), matching "stored
// once per turn at first modification".
func (s *SnapshotStore) BackupFile(sessionID string, messageIndex int, path string, existed bool, contentBefore *string) error {
	existedInt := 0
	if existed {
		existedInt = 1
	}
	_, err := s.db.Conn().Exec(
		`INSERT OR IGNORE INTO snapshots (session_id, message_index, path, existed_before, content_before, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, messageIndex, path, existedInt, contentBefore, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to backup file snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns every recorded snapshot for a session, ordered by
// turn index then path.
func (s *SnapshotStore) ListSnapshots(sessionID string) ([]struct {
	MessageIndex int
	SnapshotEntry
}, error) {
	rows, err := s.db.Conn().Query(
		`SELECT message_index, path, existed_before, content_before FROM snapshots
		 WHERE session_id = ? ORDER BY message_index ASC, path ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var out []struct {
		MessageIndex int
		SnapshotEntry
	}
	for rows.Next() {
		var idx, existedInt int
		var path string
		var contentBefore sql.NullString
		if err := rows.Scan(&idx, &path, &existedInt, &contentBefore); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		entry := SnapshotEntry{Path: path, ExistedBefore: existedInt != 0}
		if contentBefore.Valid {
			v := contentBefore.String
			entry.ContentBefore = &v
		}
		out = append(out, struct {
			MessageIndex int
			SnapshotEntry
		}{MessageIndex: idx, SnapshotEntry: entry})
	}
	return out, rows.Err()
}

// GetFilesToRollback returns the distinct paths touched at or after
// fromIndex.
func (s *SnapshotStore) GetFilesToRollback(sessionID string, fromIndex int) ([]string, error) {
	rows, err := s.db.Conn().Query(
		`SELECT DISTINCT path FROM snapshots WHERE session_id = ? AND message_index >= ?`,
		sessionID, fromIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to query rollback files: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// RollbackToMessageIndex restores each touched file to the oldest pre-image
// at index >= fromIndex; files that had existed=false are deleted if
// present. Per invariant 3 (§8), this is idempotent when reapplied to the
// same fromIndex.
func (s *SnapshotStore) RollbackToMessageIndex(sessionID string, fromIndex int) error {
	paths, err := s.GetFilesToRollback(sessionID, fromIndex)
	if err != nil {
		return err
	}

	for _, path := range paths {
		var existedInt int
		var contentBefore sql.NullString
		err := s.db.Conn().QueryRow(
			`SELECT existed_before, content_before FROM snapshots
			 WHERE session_id = ? AND path = ? AND message_index >= ?
			 ORDER BY message_index ASC LIMIT 1`,
			sessionID, path, fromIndex,
		).Scan(&existedInt, &contentBefore)
		if err != nil {
			if err == sql.ErrNoRows {
				continue
			}
			return fmt.Errorf("failed to load oldest pre-image for %s: %w", path, err)
		}

		if existedInt == 0 {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to delete %s during rollback: %w", path, err)
			}
			continue
		}

		content := ""
		if contentBefore.Valid {
			content = contentBefore.String
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("failed to restore %s during rollback: %w", path, err)
		}
	}

	return nil
}

// DeleteSnapshotsFromIndex removes snapshot rows at or after fromIndex,
// called after a successful rollback and truncate.
func (s *SnapshotStore) DeleteSnapshotsFromIndex(sessionID string, fromIndex int) error {
	_, err := s.db.Conn().Exec(
		`DELETE FROM snapshots WHERE session_id = ? AND message_index >= ?`,
		sessionID, fromIndex)
	if err != nil {
		return fmt.Errorf("failed to delete snapshots from index: %w", err)
	}
	return nil
}

// ClearAllSnapshots removes every snapshot for a session (cascades
// automatically on session delete via the foreign key, but exposed directly
// for explicit "clear history" operations).
func (s *SnapshotStore) ClearAllSnapshots(sessionID string) error {
	_, err := s.db.Conn().Exec(`DELETE FROM snapshots WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to clear snapshots: %w", err)
	}
	return nil
}
