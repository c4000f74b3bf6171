package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/treksavvysky/a2a-protocol/internal/models"
)

// storeFactory returns a fresh store. Stores from shared backends (postgres)
// are not empty, so tests use unique recipient names throughout.
type storeFactory func(t *testing.T) MailboxStore

func runMailboxSuite(t *testing.T, newStore storeFactory) {
	t.Run("DepositThenCollectOnce", func(t *testing.T) { testDepositThenCollectOnce(t, newStore(t)) })
	t.Run("DepositAssignsID", func(t *testing.T) { testDepositAssignsID(t, newStore(t)) })
	t.Run("FIFOPerRecipient", func(t *testing.T) { testFIFOPerRecipient(t, newStore(t)) })
	t.Run("IsolationAcrossRecipients", func(t *testing.T) { testIsolationAcrossRecipients(t, newStore(t)) })
	t.Run("InvalidMessageRejected", func(t *testing.T) { testInvalidMessageRejected(t, newStore(t)) })
	t.Run("PayloadReturnedUnchanged", func(t *testing.T) { testPayloadReturnedUnchanged(t, newStore(t)) })
	t.Run("CollectEmptyRecipient", func(t *testing.T) { testCollectEmptyRecipient(t, newStore(t)) })
	t.Run("ConcurrentCollectOneMessage", func(t *testing.T) { testConcurrentCollectOneMessage(t, newStore(t)) })
	t.Run("ConcurrentDepositAndCollect", func(t *testing.T) { testConcurrentDepositAndCollect(t, newStore(t)) })
	t.Run("ConcurrentRecipients", func(t *testing.T) { testConcurrentRecipients(t, newStore(t)) })
}

func uniqueAgent(prefix string) string {
	return prefix + "-" + ulid.Make().String()
}

func testMessage(t *testing.T, sender, recipient string, payload any) models.Message {
	t.Helper()
	p, err := models.NewPayload(payload)
	if err != nil {
		t.Fatalf("NewPayload() error = %v", err)
	}
	return models.Message{
		Sender:    sender,
		Recipient: recipient,
		Timestamp: time.Now().UTC().Truncate(time.Microsecond),
		Type:      "command",
		Payload:   p,
	}
}

func mustDeposit(t *testing.T, s MailboxStore, msg models.Message) *models.Message {
	t.Helper()
	stored, err := s.Deposit(context.Background(), msg)
	if err != nil {
		t.Fatalf("Deposit() error = %v", err)
	}
	return stored
}

func mustCollect(t *testing.T, s MailboxStore, recipient string) []models.Message {
	t.Helper()
	messages, err := s.Collect(context.Background(), recipient)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	return messages
}

func testDepositThenCollectOnce(t *testing.T, s MailboxStore) {
	sender, recipient := uniqueAgent("agentA"), uniqueAgent("agentB")
	sent := testMessage(t, sender, recipient, map[string]any{"task": "do_something"})
	stored := mustDeposit(t, s, sent)

	messages := mustCollect(t, s, recipient)
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	got := messages[0]
	if got.ID != stored.ID {
		t.Errorf("ID = %q, want %q", got.ID, stored.ID)
	}
	if got.Sender != sender || got.Recipient != recipient || got.Type != "command" {
		t.Errorf("unexpected envelope: %+v", got)
	}
	if !got.Timestamp.Equal(sent.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, sent.Timestamp)
	}
	if !got.Delivered {
		t.Error("expected collected message to be marked delivered")
	}
	var payload map[string]string
	if err := got.Payload.Decode(&payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["task"] != "do_something" {
		t.Errorf("payload task = %q, want %q", payload["task"], "do_something")
	}

	again := mustCollect(t, s, recipient)
	if again == nil {
		t.Fatal("expected empty slice, got nil")
	}
	if len(again) != 0 {
		t.Fatalf("expected no messages on second collect, got %d", len(again))
	}
}

func testDepositAssignsID(t *testing.T, s MailboxStore) {
	recipient := uniqueAgent("agentB")
	msg := testMessage(t, "agentA", recipient, map[string]any{"n": 1})
	msg.ID = "caller-chosen"
	msg.Delivered = true

	stored := mustDeposit(t, s, msg)
	if stored.ID == "" || stored.ID == "caller-chosen" {
		t.Errorf("expected store-assigned ID, got %q", stored.ID)
	}
	if stored.Delivered {
		t.Error("expected deposited message to be undelivered")
	}

	other := mustDeposit(t, s, testMessage(t, "agentA", recipient, map[string]any{"n": 2}))
	if other.ID == stored.ID {
		t.Errorf("expected unique IDs, both were %q", stored.ID)
	}

	if got := mustCollect(t, s, recipient); len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
}

func testFIFOPerRecipient(t *testing.T, s MailboxStore) {
	recipient := uniqueAgent("agentB")
	var ids []string
	for i := 0; i < 10; i++ {
		stored := mustDeposit(t, s, testMessage(t, "agentA", recipient, map[string]any{"seq": i}))
		ids = append(ids, stored.ID)
	}

	messages := mustCollect(t, s, recipient)
	if len(messages) != len(ids) {
		t.Fatalf("expected %d messages, got %d", len(ids), len(messages))
	}
	for i, msg := range messages {
		if msg.ID != ids[i] {
			t.Fatalf("message %d: ID = %q, want %q", i, msg.ID, ids[i])
		}
	}
}

func testIsolationAcrossRecipients(t *testing.T, s MailboxStore) {
	x, y := uniqueAgent("agentX"), uniqueAgent("agentY")
	mustDeposit(t, s, testMessage(t, "agentA", x, map[string]any{"to": "x"}))
	yMsg := mustDeposit(t, s, testMessage(t, "agentA", y, map[string]any{"to": "y"}))

	if got := mustCollect(t, s, x); len(got) != 1 {
		t.Fatalf("expected 1 message for x, got %d", len(got))
	}

	got := mustCollect(t, s, y)
	if len(got) != 1 || got[0].ID != yMsg.ID {
		t.Fatalf("expected y's message to be untouched, got %+v", got)
	}
}

func testInvalidMessageRejected(t *testing.T, s MailboxStore) {
	recipient := uniqueAgent("agentB")
	valid := testMessage(t, "agentA", recipient, map[string]any{"task": "x"})

	tests := []struct {
		name   string
		mutate func(m *models.Message)
	}{
		{"missing sender", func(m *models.Message) { m.Sender = "" }},
		{"missing recipient", func(m *models.Message) { m.Recipient = "" }},
		{"missing type", func(m *models.Message) { m.Type = "" }},
		{"missing payload", func(m *models.Message) { m.Payload = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := valid.Clone()
			tt.mutate(&msg)
			stored, err := s.Deposit(context.Background(), msg)
			if !errors.Is(err, ErrInvalidMessage) {
				t.Fatalf("Deposit() error = %v, want ErrInvalidMessage", err)
			}
			if stored != nil {
				t.Errorf("expected no stored message, got %+v", stored)
			}
		})
	}

	if got := mustCollect(t, s, recipient); len(got) != 0 {
		t.Fatalf("expected store unchanged, got %d messages", len(got))
	}
}

func testPayloadReturnedUnchanged(t *testing.T, s MailboxStore) {
	recipient := uniqueAgent("agentB")

	var payload models.Payload
	raw := `{ "zeta": 1, "alpha": {"b": [1, 2.50], "a": null},
		"text": "x\u0000y <tag> & \u00e9" }`
	if err := payload.UnmarshalJSON([]byte(raw)); err != nil {
		t.Fatalf("UnmarshalJSON() error = %v", err)
	}
	want := `{"zeta":1,"alpha":{"b":[1,2.50],"a":null},"text":"x\u0000y <tag> & \u00e9"}`
	if string(payload) != want {
		t.Fatalf("payload = %s, want %s", payload, want)
	}

	msg := testMessage(t, "agentA", recipient, map[string]any{})
	msg.Payload = payload
	mustDeposit(t, s, msg)

	messages := mustCollect(t, s, recipient)
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	if got := string(messages[0].Payload); got != want {
		t.Errorf("payload = %s, want %s", got, want)
	}
}

func testCollectEmptyRecipient(t *testing.T, s MailboxStore) {
	for _, recipient := range []string{"", " ", "\t\n"} {
		if _, err := s.Collect(context.Background(), recipient); !errors.Is(err, ErrInvalidMessage) {
			t.Fatalf("Collect(%q) error = %v, want ErrInvalidMessage", recipient, err)
		}
	}
	if got := mustCollect(t, s, uniqueAgent("nobody")); len(got) != 0 {
		t.Fatalf("expected empty mailbox, got %d messages", len(got))
	}
}

func testConcurrentCollectOneMessage(t *testing.T, s MailboxStore) {
	const collectors = 8

	for round := 0; round < 5; round++ {
		recipient := uniqueAgent("agentB")
		stored := mustDeposit(t, s, testMessage(t, "agentA", recipient, map[string]any{"round": round}))

		var (
			wg      sync.WaitGroup
			start   = make(chan struct{})
			results = make([][]models.Message, collectors)
			errs    = make([]error, collectors)
		)
		for i := 0; i < collectors; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				results[i], errs[i] = s.Collect(context.Background(), recipient)
			}(i)
		}
		close(start)
		wg.Wait()

		winners := 0
		for i := range results {
			if errs[i] != nil {
				t.Fatalf("collector %d error = %v", i, errs[i])
			}
			switch len(results[i]) {
			case 0:
			case 1:
				if results[i][0].ID != stored.ID {
					t.Fatalf("collector %d got unexpected message %q", i, results[i][0].ID)
				}
				winners++
			default:
				t.Fatalf("collector %d got %d messages", i, len(results[i]))
			}
		}
		if winners != 1 {
			t.Fatalf("round %d: message delivered %d times, want exactly once", round, winners)
		}
	}
}

func testConcurrentDepositAndCollect(t *testing.T, s MailboxStore) {
	const (
		depositors = 4
		perSender  = 25
		collectors = 4
	)
	recipient := uniqueAgent("agentB")
	ctx := context.Background()

	var (
		mu       sync.Mutex
		seen     = make(map[string]int)
		deposits sync.WaitGroup
		collects sync.WaitGroup
		done     = make(chan struct{})
		failures = make(chan error, depositors+collectors)
	)

	record := func(messages []models.Message) {
		mu.Lock()
		defer mu.Unlock()
		for _, msg := range messages {
			seen[msg.ID]++
		}
	}

	for c := 0; c < collectors; c++ {
		collects.Add(1)
		go func() {
			defer collects.Done()
			for {
				messages, err := s.Collect(ctx, recipient)
				if err != nil {
					failures <- err
					return
				}
				record(messages)
				select {
				case <-done:
					return
				default:
				}
			}
		}()
	}

	deposited := make(chan string, depositors*perSender)
	for d := 0; d < depositors; d++ {
		deposits.Add(1)
		go func(d int) {
			defer deposits.Done()
			for i := 0; i < perSender; i++ {
				msg := testMessage(t, fmt.Sprintf("sender-%d", d), recipient, map[string]any{"i": i})
				stored, err := s.Deposit(ctx, msg)
				if err != nil {
					failures <- err
					return
				}
				deposited <- stored.ID
			}
		}(d)
	}

	deposits.Wait()
	close(done)
	collects.Wait()
	close(deposited)
	close(failures)
	for err := range failures {
		t.Fatalf("concurrent operation failed: %v", err)
	}

	// Anything deposited after the last collector loop is picked up here.
	record(mustCollect(t, s, recipient))

	count := 0
	for id := range deposited {
		count++
		if seen[id] != 1 {
			t.Errorf("message %s delivered %d times, want exactly once", id, seen[id])
		}
	}
	if count != depositors*perSender {
		t.Fatalf("deposited %d messages, want %d", count, depositors*perSender)
	}
	if len(seen) != count {
		t.Fatalf("collected %d distinct messages, deposited %d", len(seen), count)
	}
}

func testConcurrentRecipients(t *testing.T, s MailboxStore) {
	const recipients = 6
	names := make([]string, recipients)
	for i := range names {
		names[i] = uniqueAgent(fmt.Sprintf("agent%d", i))
		for j := 0; j < 3; j++ {
			mustDeposit(t, s, testMessage(t, "agentA", names[i], map[string]any{"j": j}))
		}
	}

	var wg sync.WaitGroup
	counts := make([]int, recipients)
	errs := make([]error, recipients)
	for i := range names {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			messages, err := s.Collect(context.Background(), names[i])
			counts[i], errs[i] = len(messages), err
		}(i)
	}
	wg.Wait()

	for i := range names {
		if errs[i] != nil {
			t.Fatalf("Collect(%s) error = %v", names[i], errs[i])
		}
		if counts[i] != 3 {
			t.Errorf("Collect(%s) returned %d messages, want 3", names[i], counts[i])
		}
	}
}
