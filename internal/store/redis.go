package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/treksavvysky/a2a-protocol/internal/models"
)

const (
	// DefaultDeliveredRetention is how long collected messages are kept in mark mode.
	DefaultDeliveredRetention = 7 * 24 * time.Hour

	seqKey            = "relay:seq"
	deliveredTotalKey = "relay:delivered_total"
	inboxKeyPattern   = "relay:inbox:*"
)

// depositScript assigns the next global sequence number and adds the message
// to the recipient's inbox with that score.
var depositScript = redis.NewScript(`
local seq = redis.call('INCR', KEYS[2])
redis.call('ZADD', KEYS[1], seq, ARGV[1])
return seq
`)

// collectScript drains the recipient's inbox. Redis runs scripts atomically,
// so two collectors can never both read the same entry.
var collectScript = redis.NewScript(`
local items = redis.call('ZRANGE', KEYS[1], 0, -1)
if #items == 0 then
  return items
end
redis.call('DEL', KEYS[1])
if ARGV[1] == 'mark' then
  for _, item in ipairs(items) do
    redis.call('RPUSH', KEYS[2], item)
  end
  redis.call('PEXPIRE', KEYS[2], ARGV[2])
end
redis.call('INCRBY', KEYS[3], #items)
return items
`)

// ConnectRedis parses redisURL and verifies the server is reachable.
func ConnectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return client, nil
}

// RedisStore is a MailboxStore backed by Redis sorted sets, one per recipient.
// It is safe to share one Redis between several relay instances.
type RedisStore struct {
	client    *redis.Client
	mode      DeliveryMode
	retention time.Duration
	logger    zerolog.Logger
}

// NewRedisStore creates a Redis store on an existing client.
func NewRedisStore(client *redis.Client, mode DeliveryMode, retention time.Duration, logger zerolog.Logger) *RedisStore {
	if mode == "" {
		mode = DeliveryRemove
	}
	if retention <= 0 {
		retention = DefaultDeliveredRetention
	}
	return &RedisStore{client: client, mode: mode, retention: retention, logger: logger}
}

// Client returns the underlying Redis client.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// inboxKey returns the key for a recipient's pending message set.
func inboxKey(recipient string) string {
	return fmt.Sprintf("relay:inbox:%s", recipient)
}

// deliveredKey returns the key for a recipient's delivered history list.
func deliveredKey(recipient string) string {
	return fmt.Sprintf("relay:delivered:%s", recipient)
}

// Deposit stores a message in the recipient's inbox.
func (s *RedisStore) Deposit(ctx context.Context, msg models.Message) (*models.Message, error) {
	stored, err := prepareDeposit(msg)
	if err != nil {
		return nil, err
	}

	// HTML escaping would rewrite <, > and & inside the payload.
	var data bytes.Buffer
	enc := json.NewEncoder(&data)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(stored); err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	entry := strings.TrimSuffix(data.String(), "\n")

	if err := depositScript.Run(ctx, s.client, []string{inboxKey(stored.Recipient), seqKey}, entry).Err(); err != nil {
		return nil, unavailable("deposit", err)
	}

	return &stored, nil
}

// Collect drains the recipient's inbox in sequence order.
func (s *RedisStore) Collect(ctx context.Context, recipient string) ([]models.Message, error) {
	if err := validateRecipient(recipient); err != nil {
		return nil, err
	}

	keys := []string{inboxKey(recipient), deliveredKey(recipient), deliveredTotalKey}
	results, err := collectScript.Run(ctx, s.client, keys, string(s.mode), s.retention.Milliseconds()).StringSlice()
	if err != nil {
		return nil, unavailable("collect", err)
	}

	messages := make([]models.Message, 0, len(results))
	for _, data := range results {
		var msg models.Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			// Already drained by the script; the raw entry is logged so it can be recovered.
			s.logger.Error().
				Err(err).
				Str("recipient", recipient).
				Str("entry", data).
				Msg("dropping undecodable mailbox entry")
			continue
		}
		msg.Delivered = true
		messages = append(messages, msg)
	}

	return messages, nil
}

// Stats scans every inbox. Cost grows with the number of recipients.
func (s *RedisStore) Stats(ctx context.Context) (*models.Stats, error) {
	stats := &models.Stats{}

	iter := s.client.Scan(ctx, 0, inboxKeyPattern, 100).Iterator()
	for iter.Next(ctx) {
		n, err := s.client.ZCard(ctx, iter.Val()).Result()
		if err != nil {
			return nil, unavailable("stats", err)
		}
		if n > 0 {
			stats.Pending += n
			stats.Recipients++
		}
	}
	if err := iter.Err(); err != nil {
		return nil, unavailable("stats", err)
	}

	delivered, err := s.client.Get(ctx, deliveredTotalKey).Int64()
	if err != nil && err != redis.Nil {
		return nil, unavailable("stats", err)
	}
	stats.Delivered = delivered

	return stats, nil
}
