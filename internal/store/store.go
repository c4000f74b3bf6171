package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/treksavvysky/a2a-protocol/internal/models"
)

var (
	// ErrInvalidMessage indicates a structurally incomplete deposit or collect request.
	ErrInvalidMessage = models.ErrInvalidMessage

	// ErrStoreUnavailable indicates the backing storage could not be reached or committed.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// MailboxStore holds undelivered messages per recipient.
// MemoryStore, SQLiteStore, PostgresStore and RedisStore implement this interface.
type MailboxStore interface {
	// Deposit validates msg, assigns it an ID and makes it visible to Collect.
	Deposit(ctx context.Context, msg models.Message) (*models.Message, error)

	// Collect returns every pending message for recipient in deposit order and
	// marks them delivered in the same atomic step. Each message is returned
	// by exactly one Collect call.
	Collect(ctx context.Context, recipient string) ([]models.Message, error)

	Stats(ctx context.Context) (*models.Stats, error)
	Ping(ctx context.Context) error
	Close() error
}

// DeliveryMode selects what happens to a message once it has been collected.
type DeliveryMode string

const (
	// DeliveryMark keeps collected messages with delivered=true.
	DeliveryMark DeliveryMode = "mark"
	// DeliveryRemove deletes collected messages.
	DeliveryRemove DeliveryMode = "remove"
)

// ParseDeliveryMode validates a delivery mode string.
func ParseDeliveryMode(s string) (DeliveryMode, error) {
	switch DeliveryMode(s) {
	case DeliveryMark:
		return DeliveryMark, nil
	case DeliveryRemove:
		return DeliveryRemove, nil
	default:
		return "", fmt.Errorf("unknown delivery mode %q", s)
	}
}

// newMessageID returns a ULID. ulid.Make is monotonic within a process.
func newMessageID() string {
	return ulid.Make().String()
}

// prepareDeposit validates msg and returns the copy that will be stored.
func prepareDeposit(msg models.Message) (models.Message, error) {
	if err := msg.Validate(); err != nil {
		return models.Message{}, err
	}
	stored := msg.Clone()
	stored.ID = newMessageID()
	stored.Delivered = false
	return stored, nil
}

func validateRecipient(recipient string) error {
	if strings.TrimSpace(recipient) == "" {
		return fmt.Errorf("%w: recipient is required", ErrInvalidMessage)
	}
	return nil
}

// unavailable wraps a backend failure so callers can match ErrStoreUnavailable.
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
