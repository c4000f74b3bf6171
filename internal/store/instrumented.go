package store

import (
	"context"
	"errors"
	"time"

	"github.com/treksavvysky/a2a-protocol/internal/metrics"
	"github.com/treksavvysky/a2a-protocol/internal/models"
)

// InstrumentedStore records Prometheus metrics around another MailboxStore.
type InstrumentedStore struct {
	next    MailboxStore
	backend string
}

// Instrument wraps next so every operation is timed and counted under backend.
func Instrument(next MailboxStore, backend string) *InstrumentedStore {
	return &InstrumentedStore{next: next, backend: backend}
}

// Unwrap returns the wrapped store.
func (s *InstrumentedStore) Unwrap() MailboxStore {
	return s.next
}

func (s *InstrumentedStore) observe(op string, start time.Time, err error) {
	metrics.StoreLatency.WithLabelValues(s.backend, op).Observe(time.Since(start).Seconds())
	if errors.Is(err, ErrStoreUnavailable) {
		metrics.StoreErrors.WithLabelValues(s.backend, op).Inc()
	}
}

// Deposit implements MailboxStore.
func (s *InstrumentedStore) Deposit(ctx context.Context, msg models.Message) (*models.Message, error) {
	start := time.Now()
	stored, err := s.next.Deposit(ctx, msg)
	s.observe("deposit", start, err)
	if err == nil {
		metrics.MessagesDeposited.WithLabelValues(stored.Type).Inc()
	}
	return stored, err
}

// Collect implements MailboxStore.
func (s *InstrumentedStore) Collect(ctx context.Context, recipient string) ([]models.Message, error) {
	start := time.Now()
	messages, err := s.next.Collect(ctx, recipient)
	s.observe("collect", start, err)
	if err == nil {
		result := "messages"
		if len(messages) == 0 {
			result = "empty"
		}
		metrics.CollectCalls.WithLabelValues(result).Inc()
		metrics.MessagesCollected.Add(float64(len(messages)))
	}
	return messages, err
}

// Stats implements MailboxStore.
func (s *InstrumentedStore) Stats(ctx context.Context) (*models.Stats, error) {
	start := time.Now()
	stats, err := s.next.Stats(ctx)
	s.observe("stats", start, err)
	return stats, err
}

// Ping implements MailboxStore.
func (s *InstrumentedStore) Ping(ctx context.Context) error {
	start := time.Now()
	err := s.next.Ping(ctx)
	s.observe("ping", start, err)
	return err
}

// Close implements MailboxStore.
func (s *InstrumentedStore) Close() error {
	return s.next.Close()
}
