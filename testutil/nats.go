package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"
)

// MockPublisher is an in-memory stand-in for a NATS connection that records
// every published message. It matches report.Publisher and is safe for
// concurrent use.
type MockPublisher struct {
	mu       sync.RWMutex
	messages map[string][][]byte
	handlers map[string][]func(context.Context, []byte)
	failWith error
	failNext int
	attempts int
	closed   bool
}

// NewMockPublisher creates an empty publisher
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		messages: make(map[string][][]byte),
		handlers: make(map[string][]func(context.Context, []byte)),
	}
}

// Publish records data under subject and delivers it to subscribers
func (p *MockPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("publisher is closed")
	}
	p.attempts++
	if p.failWith != nil {
		err := p.failWith
		if p.failNext > 0 {
			p.failNext--
			if p.failNext == 0 {
				p.failWith = nil
			}
		}
		p.mu.Unlock()
		return err
	}
	p.messages[subject] = append(p.messages[subject], data)

	// Copy handlers to avoid holding lock during callbacks
	handlers := append([]func(context.Context, []byte){}, p.handlers[subject]...)
	p.mu.Unlock()

	for _, handler := range handlers {
		handler(ctx, data)
	}
	return nil
}

// Subscribe registers handler for messages published on subject
func (p *MockPublisher) Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("publisher is closed")
	}
	p.handlers[subject] = append(p.handlers[subject], handler)
	return nil
}

// FailWith makes every following Publish return err. nil restores success.
func (p *MockPublisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failWith, p.failNext = err, 0
}

// FailNext makes only the next n publishes return err
func (p *MockPublisher) FailNext(n int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n <= 0 {
		p.failWith, p.failNext = nil, 0
		return
	}
	p.failWith, p.failNext = err, n
}

// Attempts returns how many times Publish was called on an open publisher
func (p *MockPublisher) Attempts() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.attempts
}

// Messages returns a copy of the messages published on subject
func (p *MockPublisher) Messages(subject string) [][]byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([][]byte(nil), p.messages[subject]...)
}

// Count returns the number of messages published on subject
func (p *MockPublisher) Count(subject string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.messages[subject])
}

// Subjects returns every subject with at least one message, sorted
func (p *MockPublisher) Subjects() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	subjects := make([]string, 0, len(p.messages))
	for s := range p.messages {
		subjects = append(subjects, s)
	}
	sort.Strings(subjects)
	return subjects
}

// Clear drops all recorded messages
func (p *MockPublisher) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = make(map[string][][]byte)
}

// Close rejects further publishes
func (p *MockPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// WaitForMessageCount waits until subject has at least count messages
func WaitForMessageCount(t *testing.T, p *MockPublisher, subject string, count int, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if p.Count(subject) >= count {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Expected %d messages on subject %s, got %d", count, subject, p.Count(subject))
}

// AssertNoMessages fails the test if anything was published on subject
func AssertNoMessages(t *testing.T, p *MockPublisher, subject string) {
	t.Helper()
	if n := p.Count(subject); n > 0 {
		t.Errorf("Expected no messages on subject %s, got %d", subject, n)
	}
}
