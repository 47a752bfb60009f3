package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Miguel0728/ChatBot-AI-V2/internal/domain"
	"github.com/Miguel0728/ChatBot-AI-V2/internal/repository"
)

// seedDB creates a file database with two sessions and returns its path.
func seedDB(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chatbot.db")

	store, err := repository.Open(ctx, "sqlite3", path)
	require.NoError(t, err)
	defer store.Close()

	for _, id := range []string{"alpha", "beta"} {
		_, err := store.CreateSession(ctx, id, "", nil)
		require.NoError(t, err)
		_, err = store.AppendMessage(ctx, id, domain.RoleSystem, "persona", 0)
		require.NoError(t, err)
		_, err = store.AppendMessage(ctx, id, domain.RoleUser, "Hola", 0)
		require.NoError(t, err)
		_, err = store.AppendMessage(ctx, id, domain.RoleAssistant, "¡Hola!", 5)
		require.NoError(t, err)
	}
	return path
}

func runAdmin(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CONFIG_FILE", "")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--db-driver", "sqlite3", "--db-url", dbPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSessionsAndStats(t *testing.T) {
	db := seedDB(t)

	out, err := runAdmin(t, db, "sessions")
	require.NoError(t, err)
	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "beta")
	assert.Contains(t, out, "MESSAGES")

	out, err = runAdmin(t, db, "stats", "alpha")
	require.NoError(t, err)
	assert.Contains(t, out, "Total messages:     3")
	assert.Contains(t, out, "Total tokens:       5")

	out, err = runAdmin(t, db, "stats", "nobody")
	require.NoError(t, err)
	assert.Contains(t, out, "Total messages:     0")
	assert.NotContains(t, out, "Created:")
}

func TestClearCommand(t *testing.T) {
	db := seedDB(t)

	_, err := runAdmin(t, db, "clear")
	assert.Error(t, err)
	_, err = runAdmin(t, db, "clear", "alpha", "--all")
	assert.Error(t, err)

	out, err := runAdmin(t, db, "clear", "alpha")
	require.NoError(t, err)
	assert.Contains(t, out, "Cleared 1 session(s)")

	out, err = runAdmin(t, db, "stats", "alpha")
	require.NoError(t, err)
	assert.Contains(t, out, "Total messages:     1")

	out, err = runAdmin(t, db, "clear", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "Cleared 2 session(s)")
}

func TestWipeCommand(t *testing.T) {
	db := seedDB(t)

	_, err := runAdmin(t, db, "wipe", "--all")
	require.Error(t, err, "--all needs --yes")

	out, err := runAdmin(t, db, "wipe", "alpha")
	require.NoError(t, err)
	assert.Contains(t, out, "Wiped session alpha")

	_, err = runAdmin(t, db, "wipe", "alpha")
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))

	out, err = runAdmin(t, db, "wipe", "--all", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Wiped 1 session(s)")

	out, err = runAdmin(t, db, "sessions")
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions found")
}

func TestBackupCommand(t *testing.T) {
	db := seedDB(t)
	dest := filepath.Join(t.TempDir(), "snapshot.db")

	out, err := runAdmin(t, db, "backup", dest)
	require.NoError(t, err)
	assert.Contains(t, out, dest)
	assert.FileExists(t, dest)
}

func TestPromptCommands(t *testing.T) {
	db := seedDB(t)

	out, err := runAdmin(t, db, "prompt", "get")
	require.NoError(t, err)
	assert.Contains(t, out, "Eres un asistente")

	_, err = runAdmin(t, db, "prompt", "set", "You", "are", "a", "pirate.")
	require.NoError(t, err)

	out, err = runAdmin(t, db, "prompt", "get")
	require.NoError(t, err)
	assert.Equal(t, "You are a pirate.\n", out)
}
