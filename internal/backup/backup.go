// Package backup writes database snapshots on demand or on a cron schedule.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Miguel0728/ChatBot-AI-V2/internal/domain"
	"github.com/Miguel0728/ChatBot-AI-V2/internal/metrics"
)

// Backend is the storage that can snapshot itself.
type Backend interface {
	Backup(ctx context.Context, dest string) error
}

// Backuper names and writes snapshot files.
type Backuper struct {
	backend Backend
	dir     string
	metrics *metrics.Collector
	logger  *slog.Logger

	// mu serializes runs so two snapshots never pick the same name.
	mu  sync.Mutex
	now func() time.Time
}

// NewBackuper creates a Backuper that writes into dir. collector may be nil.
func NewBackuper(backend Backend, dir string, collector *metrics.Collector, logger *slog.Logger) *Backuper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backuper{
		backend: backend,
		dir:     dir,
		metrics: collector,
		logger:  logger.With("component", "backup"),
		now:     time.Now,
	}
}

// FileName returns the snapshot name for t.
func FileName(t time.Time) string {
	return fmt.Sprintf("backup_chatbot_%s.db", t.Format("20060102_150405"))
}

// freePath returns the first snapshot path for t that does not exist yet.
// Snapshots taken within the same second get a _1, _2, ... suffix.
func freePath(dir string, t time.Time) (string, error) {
	base := FileName(t)
	ext := filepath.Ext(base)
	stem := base[:len(base)-len(ext)]

	for n := 0; ; n++ {
		name := base
		if n > 0 {
			name = fmt.Sprintf("%s_%d%s", stem, n, ext)
		}
		path := filepath.Join(dir, name)
		_, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			return path, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to check backup path: %w", err)
		}
	}
}

// Run writes a snapshot to dest, or to a timestamped file in the backup
// directory when dest is empty. It returns the path written.
func (b *Backuper) Run(ctx context.Context, dest string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if dest == "" {
		if err := os.MkdirAll(b.dir, 0o755); err != nil {
			b.metrics.RecordBackup("error")
			return "", fmt.Errorf("failed to create backup directory: %w", err)
		}
		path, err := freePath(b.dir, b.now())
		if err != nil {
			b.metrics.RecordBackup("error")
			return "", err
		}
		dest = path
	}

	start := time.Now()
	if err := b.backend.Backup(ctx, dest); err != nil {
		if errors.Is(err, domain.ErrBackupUnsupported) {
			b.metrics.RecordBackup("unsupported")
			return "", err
		}
		b.metrics.RecordBackup("error")
		b.logger.Error("backup failed", "path", dest, "error", err)
		return "", fmt.Errorf("failed to back up database: %w", err)
	}

	b.metrics.RecordBackup("ok")
	b.logger.Info("backup written", "path", dest, "duration_ms", time.Since(start).Milliseconds())
	return dest, nil
}
