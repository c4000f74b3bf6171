package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/treksavvysky/a2a-protocol/internal/models"
)

var errStoreClosed = errors.New("memory store closed")

// MemoryStore is a process-local MailboxStore. Each recipient has its own
// mailbox and lock, so collectors for different recipients never contend.
// Contents do not survive a restart.
type MemoryStore struct {
	mode      DeliveryMode
	mu        sync.RWMutex
	mailboxes map[string]*mailbox
	delivered atomic.Int64
	closed    atomic.Bool
}

// mailbox holds one recipient's messages in deposit order. In mark mode,
// messages[:next] are delivered and messages[next:] are pending.
type mailbox struct {
	mu       sync.Mutex
	messages []models.Message
	next     int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(mode DeliveryMode) *MemoryStore {
	if mode == "" {
		mode = DeliveryRemove
	}
	return &MemoryStore{
		mode:      mode,
		mailboxes: make(map[string]*mailbox),
	}
}

// Deposit appends msg to its recipient's mailbox.
func (s *MemoryStore) Deposit(ctx context.Context, msg models.Message) (*models.Message, error) {
	stored, err := prepareDeposit(msg)
	if err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, unavailable("deposit", errStoreClosed)
	}

	mb := s.mailboxFor(stored.Recipient)
	mb.mu.Lock()
	mb.messages = append(mb.messages, stored)
	mb.mu.Unlock()

	out := stored.Clone()
	return &out, nil
}

// Collect snapshots and invalidates the pending messages for recipient under
// the mailbox lock.
func (s *MemoryStore) Collect(ctx context.Context, recipient string) ([]models.Message, error) {
	if err := validateRecipient(recipient); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, unavailable("collect", errStoreClosed)
	}

	s.mu.RLock()
	mb, ok := s.mailboxes[recipient]
	s.mu.RUnlock()
	if !ok {
		return []models.Message{}, nil
	}

	mb.mu.Lock()
	defer mb.mu.Unlock()

	pending := mb.messages[mb.next:]
	out := make([]models.Message, len(pending))
	for i := range pending {
		pending[i].Delivered = true
		out[i] = pending[i].Clone()
	}

	switch s.mode {
	case DeliveryMark:
		mb.next = len(mb.messages)
	default:
		mb.messages = nil
		mb.next = 0
	}

	s.delivered.Add(int64(len(out)))
	return out, nil
}

// Stats counts pending messages across all mailboxes.
func (s *MemoryStore) Stats(ctx context.Context) (*models.Stats, error) {
	if s.closed.Load() {
		return nil, unavailable("stats", errStoreClosed)
	}

	stats := &models.Stats{Delivered: s.delivered.Load()}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, mb := range s.mailboxes {
		mb.mu.Lock()
		pending := int64(len(mb.messages) - mb.next)
		mb.mu.Unlock()

		if pending > 0 {
			stats.Pending += pending
			stats.Recipients++
		}
	}
	return stats, nil
}

// Ping reports whether the store is still open.
func (s *MemoryStore) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return unavailable("ping", errStoreClosed)
	}
	return nil
}

// Close rejects all further operations.
func (s *MemoryStore) Close() error {
	s.closed.Store(true)
	return nil
}

// mailboxFor returns the recipient's mailbox, creating it if needed.
// Mailboxes are never removed, so a pointer obtained here stays valid.
func (s *MemoryStore) mailboxFor(recipient string) *mailbox {
	s.mu.RLock()
	mb, ok := s.mailboxes[recipient]
	s.mu.RUnlock()
	if ok {
		return mb
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if mb, ok := s.mailboxes[recipient]; ok {
		return mb
	}
	mb = &mailbox{}
	s.mailboxes[recipient] = mb
	return mb
}
