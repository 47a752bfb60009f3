package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/Miguel0728/ChatBot-AI-V2/internal/domain"
)

const sqliteBusyTimeoutMs = 5000

var now = time.Now

type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	q    sqlQuerier
	inTx bool
}

// NewSQLiteStore creates a new SQLite store. driver is "sqlite3" (cgo) or
// "sqlite" (pure Go).
func NewSQLiteStore(driver, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open(driver, sqliteDSN(driver, dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if isMemoryDSN(dsn) {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	store := &SQLiteStore{db: db, q: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
}

// sqliteDSN adds WAL, busy timeout and immediate transactions to plain file
// paths. DSNs that already carry parameters are used as given.
func sqliteDSN(driver, dsn string) string {
	if isMemoryDSN(dsn) || strings.Contains(dsn, "?") {
		return dsn
	}
	path := strings.TrimPrefix(dsn, "file:")
	if driver == "sqlite" {
		return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_txlock=immediate", path, sqliteBusyTimeoutMs)
	}
	return fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_txlock=immediate", path, sqliteBusyTimeoutMs)
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL DEFAULT '',
			metadata TEXT,
			created_at_ns INTEGER NOT NULL,
			last_activity_ns INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_activity ON sessions(last_activity_ns)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tokens_used INTEGER NOT NULL DEFAULT 0,
			created_at_ns INTEGER NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_session_seq ON messages(session_id, seq)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at_ns INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS retired_sessions (
			id TEXT PRIMARY KEY,
			retired_at_ns INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS session_seq (
			session_id TEXT PRIMARY KEY,
			first_seq INTEGER NOT NULL,
			last_seq INTEGER NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// WithTx runs fn inside a single transaction.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	return s.withTx(ctx, func(tx *SQLiteStore) error { return fn(tx) })
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(*SQLiteStore) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(&SQLiteStore{db: s.db, q: tx, inTx: true}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Backup writes a compacted copy of the database to dest. dest must not exist.
func (s *SQLiteStore) Backup(ctx context.Context, dest string) error {
	if s.inTx {
		return errors.New("backup cannot run inside a transaction")
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, dest); err != nil {
		return fmt.Errorf("failed to back up database to %s: %w", dest, err)
	}
	return nil
}

// CreateSession inserts the session or, when it exists, refreshes its
// timestamps. A blank name or nil metadata keeps the stored value.
func (s *SQLiteStore) CreateSession(ctx context.Context, sessionID, displayName string, metadata json.RawMessage) (*domain.Session, error) {
	ts := now().UnixNano()
	var meta sql.NullString
	if len(metadata) > 0 {
		meta = sql.NullString{String: string(metadata), Valid: true}
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO sessions (id, display_name, metadata, created_at_ns, last_activity_ns)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			display_name = CASE WHEN excluded.display_name <> '' THEN excluded.display_name ELSE display_name END,
			metadata = COALESCE(excluded.metadata, metadata),
			created_at_ns = excluded.created_at_ns,
			last_activity_ns = excluded.last_activity_ns`,
		sessionID, displayName, meta, ts, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return s.GetSession(ctx, sessionID)
}

// TouchSession bumps the last activity time. Missing sessions are ignored.
func (s *SQLiteStore) TouchSession(ctx context.Context, sessionID string) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE sessions SET last_activity_ns = ? WHERE id = ?`,
		now().UnixNano(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var session domain.Session
	var metadata sql.NullString
	var createdNs, activityNs int64
	err := s.q.QueryRowContext(ctx,
		`SELECT id, display_name, metadata, created_at_ns, last_activity_ns FROM sessions WHERE id = ?`,
		sessionID).Scan(&session.ID, &session.DisplayName, &metadata, &createdNs, &activityNs)
	if err == sql.ErrNoRows {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	session.CreatedAt = time.Unix(0, createdNs)
	session.LastActivityAt = time.Unix(0, activityNs)
	if metadata.Valid {
		session.Metadata = json.RawMessage(metadata.String)
	}
	return &session, nil
}

// ListSessions returns sessions by most recent activity with their message counts.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]domain.SessionSummary, error) {
	query := `SELECT s.id, s.display_name, s.metadata, s.created_at_ns, s.last_activity_ns, COUNT(m.id)
		FROM sessions s LEFT JOIN messages m ON m.session_id = s.id
		GROUP BY s.id
		ORDER BY s.last_activity_ns DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.SessionSummary
	for rows.Next() {
		var sum domain.SessionSummary
		var metadata sql.NullString
		var createdNs, activityNs int64
		if err := rows.Scan(&sum.ID, &sum.DisplayName, &metadata, &createdNs, &activityNs, &sum.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sum.CreatedAt = time.Unix(0, createdNs)
		sum.LastActivityAt = time.Unix(0, activityNs)
		if metadata.Valid {
			sum.Metadata = json.RawMessage(metadata.String)
		}
		sessions = append(sessions, sum)
	}
	return sessions, rows.Err()
}

// DeleteSession removes the session row and records its id as retired.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if _, err := s.q.ExecContext(ctx, `DELETE FROM session_seq WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO retired_sessions (id, retired_at_ns) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`,
		sessionID, now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to retire session: %w", err)
	}
	return nil
}

// IsRetired reports whether the id was removed by a wipe.
func (s *SQLiteStore) IsRetired(ctx context.Context, sessionID string) (bool, error) {
	var n int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM retired_sessions WHERE id = ?`, sessionID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check retired session: %w", err)
	}
	return n > 0, nil
}

// GetSetting returns the value stored under key.
func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.q.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get setting: %w", err)
	}
	return value, true, nil
}

// PutSetting stores value under key, replacing any previous value.
func (s *SQLiteStore) PutSetting(ctx context.Context, key, value string) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at_ns) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at_ns = excluded.updated_at_ns`,
		key, value, now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to put setting: %w", err)
	}
	return nil
}

// session_seq keeps the lowest and highest sequence ever handed out per
// session, so numbers freed by a clear are not assigned again. Sessions
// written before the table existed start from their live rows.
const (
	sqliteNextSeq = `INSERT INTO session_seq (session_id, first_seq, last_seq)
		VALUES (?1,
			COALESCE((SELECT MIN(seq) FROM messages WHERE session_id = ?1), (SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE session_id = ?1)),
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE session_id = ?1))
		ON CONFLICT(session_id) DO UPDATE SET last_seq = last_seq + 1
		RETURNING last_seq`
	sqlitePrevSeq = `INSERT INTO session_seq (session_id, first_seq, last_seq)
		VALUES (?1,
			COALESCE((SELECT MIN(seq) FROM messages WHERE session_id = ?1) - 1, 1),
			COALESCE((SELECT MAX(seq) FROM messages WHERE session_id = ?1), 1))
		ON CONFLICT(session_id) DO UPDATE SET first_seq = first_seq - 1
		RETURNING first_seq`
)

// AppendMessage appends a message with the next sequence number of its session.
func (s *SQLiteStore) AppendMessage(ctx context.Context, sessionID string, role domain.Role, content string, tokensUsed int) (*domain.Message, error) {
	if err := validateMessage(role, content); err != nil {
		return nil, err
	}
	msg := &domain.Message{
		SessionID:  sessionID,
		Role:       role,
		Content:    content,
		TokensUsed: clampTokens(tokensUsed),
		CreatedAt:  now(),
	}
	if err := s.insertMessage(ctx, sqliteNextSeq, msg); err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}
	return msg, nil
}

// InsertSeed stores a system message before every message the session ever had.
func (s *SQLiteStore) InsertSeed(ctx context.Context, sessionID, content string) (*domain.Message, error) {
	msg := &domain.Message{
		SessionID: sessionID,
		Role:      domain.RoleSystem,
		Content:   content,
		CreatedAt: now(),
	}
	if err := s.insertMessage(ctx, sqlitePrevSeq, msg); err != nil {
		return nil, fmt.Errorf("failed to insert seed message: %w", err)
	}
	return msg, nil
}

// insertMessage reserves a sequence with seqQuery and stores msg under it.
func (s *SQLiteStore) insertMessage(ctx context.Context, seqQuery string, msg *domain.Message) error {
	return s.withTx(ctx, func(tx *SQLiteStore) error {
		if err := tx.q.QueryRowContext(ctx, seqQuery, msg.SessionID).Scan(&msg.Seq); err != nil {
			return err
		}
		return tx.q.QueryRowContext(ctx,
			`INSERT INTO messages (session_id, seq, role, content, tokens_used, created_at_ns)
			 VALUES (?, ?, ?, ?, ?, ?) RETURNING id`,
			msg.SessionID, msg.Seq, string(msg.Role), msg.Content, msg.TokensUsed, msg.CreatedAt.UnixNano(),
		).Scan(&msg.ID)
	})
}

const sqliteMessageColumns = `id, session_id, seq, role, content, tokens_used, created_at_ns`

// History returns the most recent limit messages in ascending order.
func (s *SQLiteStore) History(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	return s.HistoryFiltered(ctx, sessionID, nil, limit)
}

// HistoryFiltered is History restricted to roles. An empty roles slice matches every role.
func (s *SQLiteStore) HistoryFiltered(ctx context.Context, sessionID string, roles []domain.Role, limit int) ([]domain.Message, error) {
	inner := `SELECT ` + sqliteMessageColumns + ` FROM messages WHERE session_id = ?`
	args := []any{sessionID}

	if len(roles) > 0 {
		placeholders := make([]string, len(roles))
		for i, r := range roles {
			placeholders[i] = "?"
			args = append(args, string(r))
		}
		inner += ` AND role IN (` + strings.Join(placeholders, ",") + `)`
	}

	inner += ` ORDER BY seq DESC`
	if limit > 0 {
		inner += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT `+sqliteMessageColumns+` FROM (`+inner+`) AS recent ORDER BY seq ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		msg, err := scanSQLiteMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

// SystemMessage returns the session seed, or nil when there is none.
func (s *SQLiteStore) SystemMessage(ctx context.Context, sessionID string) (*domain.Message, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+sqliteMessageColumns+` FROM messages WHERE session_id = ? AND role = ? ORDER BY seq ASC LIMIT 1`,
		sessionID, string(domain.RoleSystem))
	msg, err := scanSQLiteMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return msg, err
}

// DeleteNonSystem deletes every user and assistant message of the session.
func (s *SQLiteStore) DeleteNonSystem(ctx context.Context, sessionID string) (int64, error) {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM messages WHERE session_id = ? AND role <> ?`, sessionID, string(domain.RoleSystem))
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}
	return res.RowsAffected()
}

// DeleteAll deletes every message of the session, seed included.
func (s *SQLiteStore) DeleteAll(ctx context.Context, sessionID string) (int64, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}
	return res.RowsAffected()
}

// CountMessages aggregates the message log of the session.
func (s *SQLiteStore) CountMessages(ctx context.Context, sessionID string) (domain.MessageCounts, error) {
	var c domain.MessageCounts
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN role = 'user' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN role = 'assistant' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(tokens_used), 0)
		 FROM messages WHERE session_id = ?`, sessionID,
	).Scan(&c.Total, &c.User, &c.Assistant, &c.Tokens)
	if err != nil {
		return c, fmt.Errorf("failed to count messages: %w", err)
	}
	return c, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteMessage(row rowScanner) (*domain.Message, error) {
	var msg domain.Message
	var role string
	var createdNs int64
	if err := row.Scan(&msg.ID, &msg.SessionID, &msg.Seq, &role, &msg.Content, &msg.TokensUsed, &createdNs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}
	msg.Role = domain.Role(role)
	msg.CreatedAt = time.Unix(0, createdNs)
	return &msg, nil
}

var _ Store = (*SQLiteStore)(nil)
