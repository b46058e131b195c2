package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cycore-edu/cycore/backend/internal/logger"
	"github.com/cycore-edu/cycore/backend/internal/model/chat"
)

// SQLiteStore implements Repository using SQLite. Each conversation is one
// row holding a sealed payload.
type SQLiteStore struct {
	db    *sql.DB
	codec codec
	log   *logger.Logger
}

// NewSQLite opens (and if needed creates) the database at dbPath.
func NewSQLite(dbPath string, c *Cipher, log *logger.Logger) (*SQLiteStore, error) {
	if c == nil {
		return nil, ErrInvalidKey
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if log == nil {
		log = logger.Nop()
	}
	store := &SQLiteStore{db: db, codec: codec{cipher: c}, log: log.With("component", "sqlite-store")}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		last_seen_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversations (
		user_id TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		payload BLOB NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, conversation_id)
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_created ON conversations(user_id, created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LoadConversations(ctx context.Context, userID string) ([]chat.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, payload FROM conversations
		WHERE user_id = ?
		ORDER BY created_at ASC, rowid ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var out []chat.Conversation
	for rows.Next() {
		var (
			id      string
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		conv, err := s.codec.decode(id, payload)
		if err != nil {
			s.log.Warn("skipping unreadable conversation", "user_id", userID, "conversation_id", id, "error", err)
			continue
		}
		out = append(out, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) SaveConversations(ctx context.Context, userID string, convs []chat.Conversation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().UnixNano()
	for _, conv := range convs {
		if len(conv.History) == 0 {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM conversations WHERE user_id = ? AND conversation_id = ?`,
				userID, conv.ID); err != nil {
				return fmt.Errorf("delete empty conversation %s: %w", conv.ID, err)
			}
			continue
		}

		payload, err := s.codec.encode(conv)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversations (user_id, conversation_id, payload, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(user_id, conversation_id) DO UPDATE SET
				payload = excluded.payload,
				updated_at = excluded.updated_at`,
			userID, conv.ID, payload, conv.CreatedAt.UnixNano(), now); err != nil {
			return fmt.Errorf("upsert conversation %s: %w", conv.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit conversations: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE user_id = ? AND conversation_id = ?`,
		userID, conversationID)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, display_name, created_at, last_seen_at FROM users WHERE user_id = ?`, userID)

	var (
		user              User
		created, lastSeen int64
	)
	err := row.Scan(&user.ID, &user.DisplayName, &created, &lastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	user.CreatedAt = time.Unix(created, 0).UTC()
	user.LastSeenAt = time.Unix(lastSeen, 0).UTC()
	return &user, nil
}

func (s *SQLiteStore) UpsertUser(ctx context.Context, user *User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if user.LastSeenAt.IsZero() {
		user.LastSeenAt = user.CreatedAt
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, display_name, created_at, last_seen_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			display_name = excluded.display_name,
			last_seen_at = excluded.last_seen_at`,
		user.ID, user.DisplayName, user.CreatedAt.Unix(), user.LastSeenAt.Unix())
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}
