package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Miguel0728/ChatBot-AI-V2/internal/domain"
)

// Scheduler runs a Backuper on a cron schedule, e.g. "0 3 * * *" for daily
// at 3 AM. An empty schedule disables it.
type Scheduler struct {
	backuper *Backuper
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a backup scheduler.
func NewScheduler(backuper *Backuper, schedule string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		backuper: backuper,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger.With("component", "backup.scheduler"),
	}
}

// ValidateSchedule reports whether expr is a standard five-field cron expression.
func ValidateSchedule(expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", expr, err)
	}
	return nil
}

// Start registers the job and starts the cron loop. It stops when ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("backup schedule not configured, skipping scheduler")
		return nil
	}
	if s.running {
		return nil
	}
	if err := ValidateSchedule(s.schedule); err != nil {
		return err
	}

	if _, err := s.cron.AddFunc(s.schedule, func() { s.runBackup(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule backup: %w", err)
	}
	s.cron.Start()
	s.running = true
	s.logger.Info("backup scheduler started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Scheduler) runBackup(ctx context.Context) {
	path, err := s.backuper.Run(ctx, "")
	if errors.Is(err, domain.ErrBackupUnsupported) {
		s.logger.Warn("scheduled backup skipped, backend does not support backups")
		return
	}
	if err != nil {
		s.logger.Error("scheduled backup failed", "error", err)
		return
	}
	s.logger.Debug("scheduled backup completed", "path", path)
}

// Stop stops the scheduler and waits for a running backup to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("backup scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled backup time, or nil when not scheduled.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
