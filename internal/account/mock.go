package account

import (
	"context"
	"sync"

	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/errors"
)

// MockManager is an in-memory Manager for testing.
type MockManager struct {
	mu sync.RWMutex

	// Identities holds the accounts that currently exist.
	Identities map[string]Identity

	// Errors allows injecting errors for specific operations
	// ("CreateIdentity", "RemoveIdentity", "Exists").
	Errors map[string]error

	// Transient makes the next N calls of an operation fail with a system
	// error before succeeding.
	Transient map[string]int

	// BeforeCreate, when set, runs at the start of CreateIdentity with the
	// lock held. It may add to Identities to simulate an account that
	// appeared under the same name.
	BeforeCreate func(name string)

	// CallLog records all method calls for verification
	CallLog []MockCall
}

// MockCall represents a recorded method call
type MockCall struct {
	Method string
	Name   string
}

// NewMockManager creates a new mock account manager
func NewMockManager() *MockManager {
	return &MockManager{
		Identities: make(map[string]Identity),
		Errors:     make(map[string]error),
		Transient:  make(map[string]int),
		CallLog:    make([]MockCall, 0),
	}
}

// SetError sets an error to be returned for a specific operation
func (m *MockManager) SetError(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors[operation] = err
}

// Has reports whether the identity exists.
func (m *MockManager) Has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.Identities[name]
	return ok
}

// Count returns the number of existing identities.
func (m *MockManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Identities)
}

// GetCallsFor returns all calls for a specific method
func (m *MockManager) GetCallsFor(method string) []MockCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var calls []MockCall
	for _, call := range m.CallLog {
		if call.Method == method {
			calls = append(calls, call)
		}
	}
	return calls
}

// fail must be called with m.mu held.
func (m *MockManager) fail(method, name string) error {
	m.CallLog = append(m.CallLog, MockCall{Method: method, Name: name})
	if n := m.Transient[method]; n > 0 {
		m.Transient[method] = n - 1
		return errors.SystemError("mock "+method, nil)
	}
	return m.Errors[method]
}

func (m *MockManager) CreateIdentity(ctx context.Context, name string) (Identity, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateIdentity", name); err != nil {
		return Identity{}, "", err
	}
	if m.BeforeCreate != nil {
		m.BeforeCreate(name)
	}
	if _, ok := m.Identities[name]; ok {
		return Identity{}, "", errors.IdentityConflict(name)
	}
	credential, err := GenerateCredential(16)
	if err != nil {
		return Identity{}, "", err
	}
	id := Identity{Name: name, HomeDir: "/home/" + name, CredentialPath: "/home/" + name + "/" + CredentialFile}
	m.Identities[name] = id
	return id, credential, nil
}

func (m *MockManager) RemoveIdentity(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("RemoveIdentity", name); err != nil {
		return err
	}
	delete(m.Identities, name)
	return nil
}

func (m *MockManager) Exists(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("Exists", name); err != nil {
		return false, err
	}
	_, ok := m.Identities[name]
	return ok, nil
}

var _ Manager = (*MockManager)(nil)
