package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/treksavvysky/a2a-protocol/internal/models"
)

// DefaultSQLitePath is used when no database path is configured.
const DefaultSQLitePath = "./data/relay.db"

var sqliteMigrations = []string{
	`
CREATE TABLE IF NOT EXISTS messages (
  seq          INTEGER PRIMARY KEY AUTOINCREMENT,
  id           TEXT NOT NULL UNIQUE,
  sender       TEXT NOT NULL,
  recipient    TEXT NOT NULL,
  timestamp    TEXT NOT NULL,
  type         TEXT NOT NULL,
  payload      TEXT NOT NULL,
  delivered    INTEGER NOT NULL DEFAULT 0,
  delivered_at INTEGER
);
`,
	`
CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages (sender);
`,
	`
CREATE INDEX IF NOT EXISTS idx_messages_recipient_pending
ON messages (recipient, delivered, seq);
`,
}

// SQLiteStore is a durable MailboxStore backed by a SQLite file.
type SQLiteStore struct {
	db      *sql.DB
	path    string
	mode    DeliveryMode
	removed atomic.Int64
}

// NewSQLiteStore opens (or creates) the database at dbPath and applies migrations.
// Transactions begin with BEGIN IMMEDIATE so a collect holds the write lock
// for its whole read-then-mark step.
func NewSQLiteStore(ctx context.Context, dbPath string, mode DeliveryMode) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = DefaultSQLitePath
	}
	if mode == "" {
		mode = DeliveryMark
	}

	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return nil, fmt.Errorf("resolve sqlite path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate", filepath.ToSlash(absPath))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	store := &SQLiteStore{db: db, path: absPath, mode: mode}
	if err := store.applyMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Path returns the absolute database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) applyMigrations(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version >= len(sqliteMigrations) {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i := version; i < len(sqliteMigrations); i++ {
		if _, err := tx.ExecContext(ctx, sqliteMigrations[i]); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d;", i+1)); err != nil {
			return fmt.Errorf("set schema version %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration transaction: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Deposit inserts a new pending message row.
func (s *SQLiteStore) Deposit(ctx context.Context, msg models.Message) (*models.Message, error) {
	stored, err := prepareDeposit(msg)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, sender, recipient, timestamp, type, payload, delivered)
		VALUES (?, ?, ?, ?, ?, ?, 0)
	`, stored.ID, stored.Sender, stored.Recipient,
		stored.Timestamp.UTC().Format(time.RFC3339Nano), stored.Type, string(stored.Payload))
	if err != nil {
		return nil, unavailable("insert message", err)
	}

	return &stored, nil
}

// Collect selects and invalidates the recipient's pending rows in one transaction.
func (s *SQLiteStore) Collect(ctx context.Context, recipient string) ([]models.Message, error) {
	if err := validateRecipient(recipient); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin collect", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx, `
		SELECT seq, id, sender, recipient, timestamp, type, payload
		FROM messages
		WHERE recipient = ? AND delivered = 0
		ORDER BY seq ASC
	`, recipient)
	if err != nil {
		return nil, unavailable("select pending", err)
	}

	messages := make([]models.Message, 0)
	var maxSeq int64
	for rows.Next() {
		var (
			msg       models.Message
			seq       int64
			timestamp string
			payload   string
		)
		if err := rows.Scan(&seq, &msg.ID, &msg.Sender, &msg.Recipient, &timestamp, &msg.Type, &payload); err != nil {
			rows.Close()
			return nil, unavailable("scan pending", err)
		}
		msg.Timestamp, err = time.Parse(time.RFC3339Nano, timestamp)
		if err != nil {
			rows.Close()
			return nil, unavailable("parse timestamp", err)
		}
		msg.Payload = models.Payload(payload)
		msg.Delivered = true
		messages = append(messages, msg)
		maxSeq = seq
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, unavailable("iterate pending", err)
	}
	rows.Close()

	if len(messages) == 0 {
		return messages, nil
	}

	var res sql.Result
	if s.mode == DeliveryRemove {
		res, err = tx.ExecContext(ctx, `
			DELETE FROM messages
			WHERE recipient = ? AND delivered = 0 AND seq <= ?
		`, recipient, maxSeq)
	} else {
		res, err = tx.ExecContext(ctx, `
			UPDATE messages SET delivered = 1, delivered_at = ?
			WHERE recipient = ? AND delivered = 0 AND seq <= ?
		`, time.Now().UnixMilli(), recipient, maxSeq)
	}
	if err != nil {
		return nil, unavailable("mark delivered", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, unavailable("read rows affected", err)
	}
	if affected != int64(len(messages)) {
		return nil, unavailable("mark delivered", fmt.Errorf("expected %d rows, updated %d", len(messages), affected))
	}

	if err := tx.Commit(); err != nil {
		return nil, unavailable("commit collect", err)
	}

	if s.mode == DeliveryRemove {
		s.removed.Add(affected)
	}
	return messages, nil
}

// Stats counts pending and delivered rows. In remove mode Delivered counts
// rows removed since the store was opened.
func (s *SQLiteStore) Stats(ctx context.Context) (*models.Stats, error) {
	stats := &models.Stats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN delivered = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN delivered = 1 THEN 1 ELSE 0 END), 0),
			COUNT(DISTINCT CASE WHEN delivered = 0 THEN recipient END)
		FROM messages
	`).Scan(&stats.Pending, &stats.Delivered, &stats.Recipients)
	if err != nil {
		return nil, unavailable("stats", err)
	}
	stats.Delivered += s.removed.Load()
	return stats, nil
}
