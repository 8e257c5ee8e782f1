package relay

import (
	"context"
	"sync"
)

// MockSink implements Sink for testing. It records published notices and
// can be told to fail.
type MockSink struct {
	mu      sync.Mutex
	name    string
	notices []Notice
	err     error
	closed  bool
}

// NewMockSink creates a MockSink with the given name.
func NewMockSink(name string) *MockSink {
	return &MockSink{name: name}
}

// Name implements Sink.
func (m *MockSink) Name() string { return m.name }

// Publish records n, or returns the configured error.
func (m *MockSink) Publish(_ context.Context, n Notice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.notices = append(m.notices, n)
	return nil
}

// Close marks the sink closed.
func (m *MockSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// SetError makes every later Publish fail with err.
func (m *MockSink) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Notices returns a copy of the recorded notices.
func (m *MockSink) Notices() []Notice {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Notice, len(m.notices))
	copy(out, m.notices)
	return out
}

// Closed reports whether Close was called.
func (m *MockSink) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
