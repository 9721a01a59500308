package quota

import (
	"context"
	"sync"

	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/errors"
)

// MockEnforcer records quotas in memory for testing.
type MockEnforcer struct {
	mu sync.RWMutex

	// Limits holds the applied quota per identity
	Limits map[string]int64

	// Errors allows injecting errors for "Apply" or "Clear"
	Errors map[string]error

	// Transient makes the next N calls of an operation fail with a system
	// error before succeeding.
	Transient map[string]int

	// CallLog records all method calls for verification
	CallLog []MockCall
}

// MockCall represents a recorded method call
type MockCall struct {
	Method   string
	Identity string
	Bytes    int64
}

// NewMockEnforcer creates a new mock enforcer
func NewMockEnforcer() *MockEnforcer {
	return &MockEnforcer{
		Limits:    make(map[string]int64),
		Errors:    make(map[string]error),
		Transient: make(map[string]int),
	}
}

// SetError sets an error to be returned for a specific operation
func (m *MockEnforcer) SetError(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors[operation] = err
}

// Limit returns the quota applied to identity.
func (m *MockEnforcer) Limit(identity string) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.Limits[identity]
	return n, ok
}

func (m *MockEnforcer) fail(method, identity string, bytes int64) error {
	m.CallLog = append(m.CallLog, MockCall{Method: method, Identity: identity, Bytes: bytes})
	if n := m.Transient[method]; n > 0 {
		m.Transient[method] = n - 1
		return errors.SystemError("mock "+method, nil)
	}
	return m.Errors[method]
}

func (m *MockEnforcer) Apply(ctx context.Context, identity string, bytes int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("Apply", identity, bytes); err != nil {
		return err
	}
	m.Limits[identity] = bytes
	return nil
}

func (m *MockEnforcer) Clear(ctx context.Context, identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("Clear", identity, 0); err != nil {
		return err
	}
	delete(m.Limits, identity)
	return nil
}

var (
	_ Enforcer = (*MockEnforcer)(nil)
	_ Enforcer = NoopEnforcer{}
	_ Enforcer = (*SetquotaEnforcer)(nil)
)
