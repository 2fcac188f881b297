package teardown

import (
	"context"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/types"
	"k8s.io/utils/clock"
)

// EventType identifies the kind of message sent to the dispatcher.
type EventType string

const (
	// EventUpdateOperationComplete reports that a pass for a resource has
	// finished and its queue slot may be released.
	EventUpdateOperationComplete EventType = "update-operation-complete"
)

// ResourceMessage is sent to the dispatcher at the end of every finalize pass.
type ResourceMessage struct {
	// EventType is always EventUpdateOperationComplete for finalize passes.
	EventType EventType

	// ResourceType is the type of the finalized parent.
	ResourceType *K8sType

	// ResourceID identifies the finalized parent.
	ResourceID types.NamespacedName

	// IndexKey is the queue slot token handed to the pass, returned unchanged.
	IndexKey string
}

// CompletionSender delivers completion messages to the dispatcher.
type CompletionSender interface {
	// Send delivers msg or returns why it could not.
	Send(ctx context.Context, msg ResourceMessage) error
}

// ChannelCompletionSender delivers completions over a channel owned by the
// dispatcher. Sends never block longer than the configured timeout and never
// panic on a closed sender.
type ChannelCompletionSender struct {
	ch      chan<- ResourceMessage
	timeout time.Duration
	clock   clock.Clock

	mu     sync.RWMutex
	closed bool
}

// NewChannelCompletionSender returns a sender writing to ch. A zero timeout
// only delivers if the channel has room right away.
func NewChannelCompletionSender(ch chan<- ResourceMessage, timeout time.Duration) *ChannelCompletionSender {
	return &ChannelCompletionSender{ch: ch, timeout: timeout, clock: clock.RealClock{}}
}

// WithClock sets the clock measuring the send timeout. A nil clock is ignored.
func (s *ChannelCompletionSender) WithClock(c clock.Clock) *ChannelCompletionSender {
	if c != nil {
		s.clock = c
	}
	return s
}

// Send implements CompletionSender. It returns ErrCompletionChannelClosed after
// Close, ErrCompletionChannelFull if the channel stays full for the timeout,
// and the context error if ctx ends first.
func (s *ChannelCompletionSender) Send(ctx context.Context, msg ResourceMessage) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrCompletionChannelClosed
	}

	select {
	case s.ch <- msg:
		return nil
	default:
	}
	if s.timeout <= 0 {
		return ErrCompletionChannelFull
	}

	timer := s.clock.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case s.ch <- msg:
		return nil
	case <-timer.C():
		return ErrCompletionChannelFull
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the underlying channel. Later sends fail with
// ErrCompletionChannelClosed. Close waits for in-flight sends.
func (s *ChannelCompletionSender) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
