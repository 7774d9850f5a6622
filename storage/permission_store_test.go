package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := InitDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPermissionStoreAddAndList(t *testing.T) {
	db := newTestDB(t)
	store := NewPermissionStore(db)

	require.NoError(t, store.Add("filesystem-read", ""))
	require.NoError(t, store.Add("terminal-execute", "git status*"))

	entries, err := store.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "filesystem-read", entries[0].Tool)
	require.Equal(t, "terminal-execute", entries[1].Tool)
	require.Equal(t, "git status*", entries[1].Pattern)
}

func TestPermissionStoreAddIsIdempotentForSameToolAndPattern(t *testing.T) {
	db := newTestDB(t)
	store := NewPermissionStore(db)

	require.NoError(t, store.Add("filesystem-edit", "*.go"))
	require.NoError(t, store.Add("filesystem-edit", "*.go"))

	entries, err := store.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
