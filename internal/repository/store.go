// Package repository defines the storage interfaces and their SQL implementations.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Miguel0728/ChatBot-AI-V2/internal/domain"
)

// SessionRegistry owns session rows, tombstones and settings.
type SessionRegistry interface {
	// CreateSession upserts the session with fresh timestamps and returns the stored row.
	CreateSession(ctx context.Context, sessionID, displayName string, metadata json.RawMessage) (*domain.Session, error)
	TouchSession(ctx context.Context, sessionID string) error
	// GetSession returns domain.ErrSessionNotFound when the session does not exist.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	ListSessions(ctx context.Context, limit int) ([]domain.SessionSummary, error)
	// DeleteSession removes the session row and retires its id. Messages are not touched.
	DeleteSession(ctx context.Context, sessionID string) error
	IsRetired(ctx context.Context, sessionID string) (bool, error)

	GetSetting(ctx context.Context, key string) (string, bool, error)
	PutSetting(ctx context.Context, key, value string) error
}

// MessageStore owns message rows.
type MessageStore interface {
	AppendMessage(ctx context.Context, sessionID string, role domain.Role, content string, tokensUsed int) (*domain.Message, error)
	// InsertSeed stores a system message ordered before every existing message
	// of the session. On an empty session it gets sequence 1.
	InsertSeed(ctx context.Context, sessionID, content string) (*domain.Message, error)
	// History returns the most recent limit messages in ascending sequence order.
	// A limit <= 0 returns every message.
	History(ctx context.Context, sessionID string, limit int) ([]domain.Message, error)
	HistoryFiltered(ctx context.Context, sessionID string, roles []domain.Role, limit int) ([]domain.Message, error)
	// SystemMessage returns nil, nil when the session has no seed.
	SystemMessage(ctx context.Context, sessionID string) (*domain.Message, error)
	DeleteNonSystem(ctx context.Context, sessionID string) (int64, error)
	DeleteAll(ctx context.Context, sessionID string) (int64, error)
	CountMessages(ctx context.Context, sessionID string) (domain.MessageCounts, error)
}

// Store is the full persistence surface used by the conversation manager.
type Store interface {
	SessionRegistry
	MessageStore

	// WithTx runs fn against a Store bound to a single transaction.
	// Nested calls reuse the outer transaction.
	WithTx(ctx context.Context, fn func(Store) error) error
	// Backup writes a consistent snapshot to dest. Backends without
	// snapshot support return domain.ErrBackupUnsupported.
	Backup(ctx context.Context, dest string) error
	Close() error
}

// Open opens the store for the configured driver.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite3", "sqlite":
		return NewSQLiteStore(driver, dsn)
	case "postgres":
		return NewPostgresStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func validateMessage(role domain.Role, content string) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidRole, role)
	}
	if role != domain.RoleSystem && strings.TrimSpace(content) == "" {
		return domain.ErrEmptyContent
	}
	return nil
}

func clampTokens(tokens int) int {
	if tokens < 0 {
		return 0
	}
	return tokens
}

func roleStrings(roles []domain.Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}
