package nats

import (
	"context"
	"sync"

	"github.com/solwatch/accountwatch/service/domain"
)

// MockPublisher is a test double for Publisher.
type MockPublisher struct {
	mu          sync.RWMutex
	published   []domain.ParsedTransaction
	publishErr  error
	closed      bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// Publish records the transaction and returns any configured error.
func (m *MockPublisher) Publish(ctx context.Context, tx domain.ParsedTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, tx)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Published returns a copy of every transaction published so far.
func (m *MockPublisher) Published() []domain.ParsedTransaction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.ParsedTransaction, len(m.published))
	copy(out, m.published)
	return out
}

// SetPublishError configures the mock to fail on the next Publish calls.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishErr = err
}

// IsClosed reports whether Close has been called.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
