package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Miguel0728/ChatBot-AI-V2/internal/domain"
)

func newTestStore(t *testing.T, driver string) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(driver, ":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStoreCgoDriver(t *testing.T) {
	runStoreSuite(t, newTestStore(t, "sqlite3"), "")
}

func TestSQLiteStorePureGoDriver(t *testing.T) {
	runStoreSuite(t, newTestStore(t, "sqlite"), "")
}

func TestSQLiteStoreFileDatabase(t *testing.T) {
	for _, driver := range []string{"sqlite3", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "chat.db")
			store, err := NewSQLiteStore(driver, path)
			require.NoError(t, err)
			t.Cleanup(func() { _ = store.Close() })

			runStoreSuite(t, store, "")
		})
	}
}

func TestSQLiteStoreReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chat.db")

	store, err := NewSQLiteStore("sqlite3", path)
	require.NoError(t, err)
	_, err = store.CreateSession(ctx, "s1", "", nil)
	require.NoError(t, err)
	_, err = store.AppendMessage(ctx, "s1", domain.RoleSystem, "persona", 0)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore("sqlite3", path)
	require.NoError(t, err)
	defer reopened.Close()

	seed, err := reopened.SystemMessage(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, seed)
	assert.Equal(t, "persona", seed.Content)
}

func TestSQLiteStoreBackup(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, "sqlite3")
	_, err := store.CreateSession(ctx, "s1", "", nil)
	require.NoError(t, err)
	_, err = store.AppendMessage(ctx, "s1", domain.RoleSystem, "persona", 0)
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "backup.db")
	require.NoError(t, store.Backup(ctx, dest))

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	restored, err := NewSQLiteStore("sqlite3", dest)
	require.NoError(t, err)
	defer restored.Close()
	c, err := restored.CountMessages(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Total)

	assert.Error(t, store.Backup(ctx, dest), "existing destination is rejected")
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, ":memory:", sqliteDSN("sqlite3", ":memory:"))
	assert.Equal(t, "file:x.db?cache=shared", sqliteDSN("sqlite3", "file:x.db?cache=shared"))
	assert.Contains(t, sqliteDSN("sqlite3", "chat.db"), "_busy_timeout=5000")
	assert.Contains(t, sqliteDSN("sqlite", "chat.db"), "_pragma=busy_timeout(5000)")
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "x")
	assert.Error(t, err)
}
