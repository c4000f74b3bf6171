package store

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/treksavvysky/a2a-protocol/internal/models"
)

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		seq          BIGSERIAL PRIMARY KEY,
		id           TEXT NOT NULL UNIQUE,
		sender       TEXT NOT NULL,
		recipient    TEXT NOT NULL,
		timestamp    TIMESTAMPTZ NOT NULL,
		type         TEXT NOT NULL,
		payload      JSON NOT NULL,
		delivered    BOOLEAN NOT NULL DEFAULT FALSE,
		delivered_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages (sender)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_recipient_pending
		ON messages (recipient, seq) WHERE NOT delivered`,
}

// RunMigrations creates the schema_migrations bookkeeping table and applies
// any migrations not yet recorded.
func RunMigrations(ctx context.Context, databaseURL string) error {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("connect for migrations: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var version int
	if err := conn.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i := version; i < len(postgresMigrations); i++ {
		err := pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, postgresMigrations[i]); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, i+1)
			return err
		})
		if err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
	}

	return nil
}

// PostgresStore is a durable MailboxStore backed by PostgreSQL. Collect locks
// only the recipient's pending rows, so collectors for other recipients
// proceed in parallel.
type PostgresStore struct {
	pool    *pgxpool.Pool
	mode    DeliveryMode
	removed atomic.Int64
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string, mode DeliveryMode) (*PostgresStore, error) {
	if mode == "" {
		mode = DeliveryMark
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool, mode: mode}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Deposit inserts a new pending message row.
func (s *PostgresStore) Deposit(ctx context.Context, msg models.Message) (*models.Message, error) {
	stored, err := prepareDeposit(msg)
	if err != nil {
		return nil, err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO messages (id, sender, recipient, timestamp, type, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, stored.ID, stored.Sender, stored.Recipient, stored.Timestamp, stored.Type, string(stored.Payload))
	if err != nil {
		return nil, unavailable("insert message", err)
	}

	return &stored, nil
}

// Collect locks the recipient's pending rows with SELECT ... FOR UPDATE,
// flips or deletes them, and commits. A concurrent collector blocks on the
// row locks and re-evaluates delivered after the first commits.
func (s *PostgresStore) Collect(ctx context.Context, recipient string) ([]models.Message, error) {
	if err := validateRecipient(recipient); err != nil {
		return nil, err
	}

	var messages []models.Message
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, sender, recipient, timestamp, type, payload::text
			FROM messages
			WHERE recipient = $1 AND NOT delivered
			ORDER BY seq ASC
			FOR UPDATE
		`, recipient)
		if err != nil {
			return err
		}

		messages, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Message, error) {
			var (
				msg     models.Message
				payload string
			)
			if err := row.Scan(&msg.ID, &msg.Sender, &msg.Recipient, &msg.Timestamp, &msg.Type, &payload); err != nil {
				return msg, err
			}
			msg.Payload = models.Payload(payload)
			msg.Delivered = true
			return msg, nil
		})
		if err != nil {
			return err
		}
		if len(messages) == 0 {
			return nil
		}

		ids := make([]string, len(messages))
		for i, msg := range messages {
			ids[i] = msg.ID
		}

		if s.mode == DeliveryRemove {
			_, err = tx.Exec(ctx, `DELETE FROM messages WHERE id = ANY($1)`, ids)
		} else {
			_, err = tx.Exec(ctx, `
				UPDATE messages SET delivered = TRUE, delivered_at = $2
				WHERE id = ANY($1)
			`, ids, time.Now().UTC())
		}
		return err
	})
	if err != nil {
		return nil, unavailable("collect", err)
	}

	if messages == nil {
		messages = []models.Message{}
	}
	if s.mode == DeliveryRemove {
		s.removed.Add(int64(len(messages)))
	}
	return messages, nil
}

// Stats counts pending and delivered rows. In remove mode Delivered counts
// rows removed since the store was opened.
func (s *PostgresStore) Stats(ctx context.Context) (*models.Stats, error) {
	stats := &models.Stats{}
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE NOT delivered),
			COUNT(*) FILTER (WHERE delivered),
			COUNT(DISTINCT recipient) FILTER (WHERE NOT delivered)
		FROM messages
	`).Scan(&stats.Pending, &stats.Delivered, &stats.Recipients)
	if err != nil {
		return nil, unavailable("stats", err)
	}
	stats.Delivered += s.removed.Load()
	return stats, nil
}
