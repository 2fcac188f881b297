package teardowntest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/streamline-controllers/teardown/pkg/teardown"
)

// RecordingSender is a teardown.CompletionSender that keeps every message.
// Messages are also published on a buffered channel so tests can wait for a
// pass running on another goroutine.
type RecordingSender struct {
	mu       sync.Mutex
	messages []teardown.ResourceMessage
	err      error
	received chan teardown.ResourceMessage
}

// NewRecordingSender creates a sender buffering up to 100 unread messages.
func NewRecordingSender() *RecordingSender {
	return &RecordingSender{received: make(chan teardown.ResourceMessage, 100)}
}

// WithError makes Send fail with err after recording the message.
func (s *RecordingSender) WithError(err error) *RecordingSender {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	return s
}

// Send implements teardown.CompletionSender.
func (s *RecordingSender) Send(ctx context.Context, msg teardown.ResourceMessage) error {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	err := s.err
	s.mu.Unlock()

	select {
	case s.received <- msg:
	default:
	}
	return err
}

// Messages returns every message sent so far.
func (s *RecordingSender) Messages() []teardown.ResourceMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	messages := make([]teardown.ResourceMessage, len(s.messages))
	copy(messages, s.messages)
	return messages
}

// Received returns the channel messages are published on.
func (s *RecordingSender) Received() <-chan teardown.ResourceMessage {
	return s.received
}

// WaitForMessage fails the test if no message arrives within timeout.
func (s *RecordingSender) WaitForMessage(t *testing.T, timeout time.Duration) teardown.ResourceMessage {
	t.Helper()
	select {
	case msg := <-s.received:
		return msg
	case <-time.After(timeout):
		t.Fatalf("Expected a completion message within %v, got none", timeout)
		return teardown.ResourceMessage{}
	}
}

// AssertNoMessage fails the test if a message is waiting on the channel.
func (s *RecordingSender) AssertNoMessage(t *testing.T) {
	t.Helper()
	select {
	case msg := <-s.received:
		t.Errorf("Expected no completion message, got %+v", msg)
	default:
	}
}

// Verify interface compliance
var _ teardown.CompletionSender = &RecordingSender{}
