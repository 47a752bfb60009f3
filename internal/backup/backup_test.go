package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Miguel0728/ChatBot-AI-V2/internal/domain"
	"github.com/Miguel0728/ChatBot-AI-V2/internal/logging"
	"github.com/Miguel0728/ChatBot-AI-V2/internal/metrics"
	"github.com/Miguel0728/ChatBot-AI-V2/tests/helpers"
)

type stubBackend struct {
	err   error
	dests []string
}

func (b *stubBackend) Backup(ctx context.Context, dest string) error {
	b.dests = append(b.dests, dest)
	if b.err != nil {
		return b.err
	}
	return os.WriteFile(dest, []byte("snapshot"), 0o600)
}

func TestFileName(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	assert.Equal(t, "backup_chatbot_20240309_140507.db", FileName(ts))
}

func TestRunWritesTimestampedFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "backups")
	backend := &stubBackend{}
	b := NewBackuper(backend, dir, nil, logging.Discard())
	b.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	path, err := b.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "backup_chatbot_20240102_030405.db"), path)
	assert.FileExists(t, path)
}

func TestRunSameSecondGetsSuffix(t *testing.T) {
	dir := t.TempDir()
	backend := &stubBackend{}
	b := NewBackuper(backend, dir, nil, logging.Discard())
	b.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	var paths []string
	for range 3 {
		path, err := b.Run(context.Background(), "")
		require.NoError(t, err)
		paths = append(paths, path)
	}

	assert.Equal(t, []string{
		filepath.Join(dir, "backup_chatbot_20240102_030405.db"),
		filepath.Join(dir, "backup_chatbot_20240102_030405_1.db"),
		filepath.Join(dir, "backup_chatbot_20240102_030405_2.db"),
	}, paths)
}

func TestRunSameSecondAgainstSQLiteStore(t *testing.T) {
	ctx := context.Background()
	store := helpers.NewTestSQLiteStore(t)
	dir := t.TempDir()
	b := NewBackuper(store, dir, nil, logging.Discard())
	b.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	first, err := b.Run(ctx, "")
	require.NoError(t, err)
	second, err := b.Run(ctx, "")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.FileExists(t, first)
	assert.FileExists(t, second)
}

func TestRunExplicitDestination(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "manual.db")
	backend := &stubBackend{}
	b := NewBackuper(backend, "unused", nil, logging.Discard())

	path, err := b.Run(context.Background(), dest)
	require.NoError(t, err)
	assert.Equal(t, dest, path)
	assert.Equal(t, []string{dest}, backend.dests)
}

func TestRunRecordsMetrics(t *testing.T) {
	collector := metrics.NewCollector(prometheus.NewRegistry())
	backend := &stubBackend{}
	b := NewBackuper(backend, t.TempDir(), collector, logging.Discard())

	_, err := b.Run(context.Background(), "")
	require.NoError(t, err)

	backend.err = domain.ErrBackupUnsupported
	_, err = b.Run(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrBackupUnsupported)

	backend.err = errors.New("disk full")
	_, err = b.Run(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to back up database")

	assert.Equal(t, 3, testutil.CollectAndCount(collector.Registry(), "chatbot_backups_total"))
	for _, status := range []string{"ok", "unsupported", "error"} {
		assert.Equal(t, 1, countSamples(t, collector, status), status)
	}
}

func countSamples(t *testing.T, collector *metrics.Collector, status string) int {
	t.Helper()
	families, err := collector.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "chatbot_backups_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "status" && l.GetValue() == status {
					return int(m.GetCounter().GetValue())
				}
			}
		}
	}
	return 0
}

func TestRunAgainstSQLiteStore(t *testing.T) {
	ctx := context.Background()
	store := helpers.NewTestSQLiteStore(t)
	_, err := store.CreateSession(ctx, "s1", "", nil)
	require.NoError(t, err)

	b := NewBackuper(store, t.TempDir(), nil, logging.Discard())
	path, err := b.Run(ctx, "")
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestValidateSchedule(t *testing.T) {
	assert.NoError(t, ValidateSchedule("0 3 * * *"))
	assert.NoError(t, ValidateSchedule("@hourly"))
	assert.Error(t, ValidateSchedule("not a schedule"))
}

func TestSchedulerLifecycle(t *testing.T) {
	b := NewBackuper(&stubBackend{}, t.TempDir(), nil, logging.Discard())

	disabled := NewScheduler(b, "", logging.Discard())
	require.NoError(t, disabled.Start(context.Background()))
	assert.False(t, disabled.IsRunning())
	assert.Nil(t, disabled.NextRun())

	invalid := NewScheduler(b, "every tuesday", logging.Discard())
	assert.Error(t, invalid.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewScheduler(b, "0 3 * * *", logging.Discard())
	require.NoError(t, s.Start(ctx))
	assert.True(t, s.IsRunning())
	require.NotNil(t, s.NextRun())
	assert.Equal(t, 3, s.NextRun().Hour())

	s.Stop()
	assert.False(t, s.IsRunning())
}

func TestSchedulerRunBackup(t *testing.T) {
	dir := t.TempDir()
	b := NewBackuper(&stubBackend{}, dir, nil, logging.Discard())
	s := NewScheduler(b, "@daily", logging.Discard())

	s.runBackup(context.Background())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
