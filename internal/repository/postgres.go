package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Miguel0728/ChatBot-AI-V2/internal/domain"
)

type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
	q    pgQuerier
	inTx bool
}

// NewPostgresStore connects to Postgres and runs migrations.
func NewPostgresStore(ctx context.Context, url string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{pool: pool, q: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL DEFAULT '',
			metadata TEXT,
			created_at_ns BIGINT NOT NULL,
			last_activity_ns BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_activity ON sessions(last_activity_ns)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL,
			seq BIGINT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tokens_used INTEGER NOT NULL DEFAULT 0,
			created_at_ns BIGINT NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_session_seq ON messages(session_id, seq)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at_ns BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS retired_sessions (
			id TEXT PRIMARY KEY,
			retired_at_ns BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS session_seq (
			session_id TEXT PRIMARY KEY,
			first_seq BIGINT NOT NULL,
			last_seq BIGINT NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := s.pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// WithTx runs fn inside a single transaction.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(Store) error) error {
	return s.withTx(ctx, func(tx *PostgresStore) error { return fn(tx) })
}

func (s *PostgresStore) withTx(ctx context.Context, fn func(*PostgresStore) error) error {
	if s.inTx {
		return fn(s)
	}
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(&PostgresStore{pool: s.pool, q: tx, inTx: true})
	})
}

// Backup is not available for Postgres; use pg_dump.
func (s *PostgresStore) Backup(ctx context.Context, dest string) error {
	return domain.ErrBackupUnsupported
}

// CreateSession inserts the session or, when it exists, refreshes its
// timestamps. A blank name or nil metadata keeps the stored value.
func (s *PostgresStore) CreateSession(ctx context.Context, sessionID, displayName string, metadata json.RawMessage) (*domain.Session, error) {
	ts := now().UnixNano()
	var meta *string
	if len(metadata) > 0 {
		m := string(metadata)
		meta = &m
	}
	_, err := s.q.Exec(ctx,
		`INSERT INTO sessions (id, display_name, metadata, created_at_ns, last_activity_ns)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (id) DO UPDATE SET
			display_name = CASE WHEN EXCLUDED.display_name <> '' THEN EXCLUDED.display_name ELSE sessions.display_name END,
			metadata = COALESCE(EXCLUDED.metadata, sessions.metadata),
			created_at_ns = EXCLUDED.created_at_ns,
			last_activity_ns = EXCLUDED.last_activity_ns`,
		sessionID, displayName, meta, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return s.GetSession(ctx, sessionID)
}

// TouchSession bumps the last activity time. Missing sessions are ignored.
func (s *PostgresStore) TouchSession(ctx context.Context, sessionID string) error {
	_, err := s.q.Exec(ctx,
		`UPDATE sessions SET last_activity_ns = $1 WHERE id = $2`, now().UnixNano(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var session domain.Session
	var metadata *string
	var createdNs, activityNs int64
	err := s.q.QueryRow(ctx,
		`SELECT id, display_name, metadata, created_at_ns, last_activity_ns FROM sessions WHERE id = $1`,
		sessionID).Scan(&session.ID, &session.DisplayName, &metadata, &createdNs, &activityNs)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	session.CreatedAt = time.Unix(0, createdNs)
	session.LastActivityAt = time.Unix(0, activityNs)
	if metadata != nil {
		session.Metadata = json.RawMessage(*metadata)
	}
	return &session, nil
}

// ListSessions returns sessions by most recent activity with their message counts.
func (s *PostgresStore) ListSessions(ctx context.Context, limit int) ([]domain.SessionSummary, error) {
	query := `SELECT s.id, s.display_name, s.metadata, s.created_at_ns, s.last_activity_ns, COUNT(m.id)
		FROM sessions s LEFT JOIN messages m ON m.session_id = s.id
		GROUP BY s.id
		ORDER BY s.last_activity_ns DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.SessionSummary
	for rows.Next() {
		var sum domain.SessionSummary
		var metadata *string
		var createdNs, activityNs, count int64
		if err := rows.Scan(&sum.ID, &sum.DisplayName, &metadata, &createdNs, &activityNs, &count); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sum.CreatedAt = time.Unix(0, createdNs)
		sum.LastActivityAt = time.Unix(0, activityNs)
		sum.MessageCount = int(count)
		if metadata != nil {
			sum.Metadata = json.RawMessage(*metadata)
		}
		sessions = append(sessions, sum)
	}
	return sessions, rows.Err()
}

// DeleteSession removes the session row and records its id as retired.
func (s *PostgresStore) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := s.q.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if _, err := s.q.Exec(ctx, `DELETE FROM session_seq WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	_, err := s.q.Exec(ctx,
		`INSERT INTO retired_sessions (id, retired_at_ns) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
		sessionID, now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to retire session: %w", err)
	}
	return nil
}

// IsRetired reports whether the id was removed by a wipe.
func (s *PostgresStore) IsRetired(ctx context.Context, sessionID string) (bool, error) {
	var retired bool
	err := s.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM retired_sessions WHERE id = $1)`, sessionID).Scan(&retired)
	if err != nil {
		return false, fmt.Errorf("failed to check retired session: %w", err)
	}
	return retired, nil
}

// GetSetting returns the value stored under key.
func (s *PostgresStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.q.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get setting: %w", err)
	}
	return value, true, nil
}

// PutSetting stores value under key, replacing any previous value.
func (s *PostgresStore) PutSetting(ctx context.Context, key, value string) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO settings (key, value, updated_at_ns) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at_ns = EXCLUDED.updated_at_ns`,
		key, value, now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to put setting: %w", err)
	}
	return nil
}

// Same bookkeeping as the SQLite store: session_seq holds the lowest and
// highest sequence ever handed out per session.
const (
	pgNextSeq = `INSERT INTO session_seq (session_id, first_seq, last_seq)
		VALUES ($1,
			COALESCE((SELECT MIN(seq) FROM messages WHERE session_id = $1), (SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE session_id = $1)),
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE session_id = $1))
		ON CONFLICT (session_id) DO UPDATE SET last_seq = session_seq.last_seq + 1
		RETURNING last_seq`
	pgPrevSeq = `INSERT INTO session_seq (session_id, first_seq, last_seq)
		VALUES ($1,
			COALESCE((SELECT MIN(seq) FROM messages WHERE session_id = $1) - 1, 1),
			COALESCE((SELECT MAX(seq) FROM messages WHERE session_id = $1), 1))
		ON CONFLICT (session_id) DO UPDATE SET first_seq = session_seq.first_seq - 1
		RETURNING first_seq`
)

// AppendMessage appends a message with the next sequence number of its session.
func (s *PostgresStore) AppendMessage(ctx context.Context, sessionID string, role domain.Role, content string, tokensUsed int) (*domain.Message, error) {
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
	if err := s.insertMessage(ctx, pgNextSeq, msg); err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}
	return msg, nil
}

// InsertSeed stores a system message before every message the session ever had.
func (s *PostgresStore) InsertSeed(ctx context.Context, sessionID, content string) (*domain.Message, error) {
	msg := &domain.Message{
		SessionID: sessionID,
		Role:      domain.RoleSystem,
		Content:   content,
		CreatedAt: now(),
	}
	if err := s.insertMessage(ctx, pgPrevSeq, msg); err != nil {
		return nil, fmt.Errorf("failed to insert seed message: %w", err)
	}
	return msg, nil
}

// insertMessage reserves a sequence with seqQuery and stores msg under it.
func (s *PostgresStore) insertMessage(ctx context.Context, seqQuery string, msg *domain.Message) error {
	return s.withTx(ctx, func(tx *PostgresStore) error {
		if err := tx.q.QueryRow(ctx, seqQuery, msg.SessionID).Scan(&msg.Seq); err != nil {
			return err
		}
		return tx.q.QueryRow(ctx,
			`INSERT INTO messages (session_id, seq, role, content, tokens_used, created_at_ns)
			 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			msg.SessionID, msg.Seq, string(msg.Role), msg.Content, msg.TokensUsed, msg.CreatedAt.UnixNano(),
		).Scan(&msg.ID)
	})
}

const pgMessageColumns = `id, session_id, seq, role, content, tokens_used, created_at_ns`

// History returns the most recent limit messages in ascending order.
func (s *PostgresStore) History(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	return s.HistoryFiltered(ctx, sessionID, nil, limit)
}

// HistoryFiltered is History restricted to roles. An empty roles slice matches every role.
func (s *PostgresStore) HistoryFiltered(ctx context.Context, sessionID string, roles []domain.Role, limit int) ([]domain.Message, error) {
	inner := `SELECT ` + pgMessageColumns + ` FROM messages WHERE session_id = $1`
	args := []any{sessionID}

	if len(roles) > 0 {
		args = append(args, roleStrings(roles))
		inner += fmt.Sprintf(` AND role = ANY($%d)`, len(args))
	}

	inner += ` ORDER BY seq DESC`
	if limit > 0 {
		args = append(args, limit)
		inner += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.q.Query(ctx,
		`SELECT `+pgMessageColumns+` FROM (`+inner+`) AS recent ORDER BY seq ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		msg, err := scanPGMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

// SystemMessage returns the session seed, or nil when there is none.
func (s *PostgresStore) SystemMessage(ctx context.Context, sessionID string) (*domain.Message, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+pgMessageColumns+` FROM messages WHERE session_id = $1 AND role = $2 ORDER BY seq ASC LIMIT 1`,
		sessionID, string(domain.RoleSystem))
	msg, err := scanPGMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return msg, err
}

// DeleteNonSystem deletes every user and assistant message of the session.
func (s *PostgresStore) DeleteNonSystem(ctx context.Context, sessionID string) (int64, error) {
	tag, err := s.q.Exec(ctx,
		`DELETE FROM messages WHERE session_id = $1 AND role <> $2`, sessionID, string(domain.RoleSystem))
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteAll deletes every message of the session, seed included.
func (s *PostgresStore) DeleteAll(ctx context.Context, sessionID string) (int64, error) {
	tag, err := s.q.Exec(ctx, `DELETE FROM messages WHERE session_id = $1`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountMessages aggregates the message log of the session.
func (s *PostgresStore) CountMessages(ctx context.Context, sessionID string) (domain.MessageCounts, error) {
	var total, user, assistant, tokens int64
	err := s.q.QueryRow(ctx,
		`SELECT COUNT(*),
			COUNT(*) FILTER (WHERE role = 'user'),
			COUNT(*) FILTER (WHERE role = 'assistant'),
			COALESCE(SUM(tokens_used), 0)
		 FROM messages WHERE session_id = $1`, sessionID,
	).Scan(&total, &user, &assistant, &tokens)
	if err != nil {
		return domain.MessageCounts{}, fmt.Errorf("failed to count messages: %w", err)
	}
	return domain.MessageCounts{
		Total:     int(total),
		User:      int(user),
		Assistant: int(assistant),
		Tokens:    int(tokens),
	}, nil
}

func scanPGMessage(row pgx.Row) (*domain.Message, error) {
	var msg domain.Message
	var role string
	var createdNs int64
	var tokens int32
	if err := row.Scan(&msg.ID, &msg.SessionID, &msg.Seq, &role, &msg.Content, &tokens, &createdNs); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}
	msg.Role = domain.Role(role)
	msg.TokensUsed = int(tokens)
	msg.CreatedAt = time.Unix(0, createdNs)
	return &msg, nil
}

var _ Store = (*PostgresStore)(nil)
