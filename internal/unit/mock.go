package unit

import (
	"context"
	"sync"

	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/errors"
)

// MockUnit is an installed unit in a MockManager.
type MockUnit struct {
	Spec  Spec
	State State
}

// MockManager is an in-memory Manager for testing.
type MockManager struct {
	mu sync.RWMutex

	// Units tracks installed units by name
	Units map[string]*MockUnit

	// Errors allows injecting errors for specific operations
	// ("Install", "Start", "Stop", "Restart", "Remove", "Status").
	Errors map[string]error

	// Transient makes the next N calls of an operation fail with a system
	// error before succeeding.
	Transient map[string]int

	// CallLog records all method calls for verification
	CallLog []MockCall
}

// MockCall represents a recorded method call
type MockCall struct {
	Method string
	Unit   string
}

// NewMockManager creates a new mock unit manager
func NewMockManager() *MockManager {
	return &MockManager{
		Units:     make(map[string]*MockUnit),
		Errors:    make(map[string]error),
		Transient: make(map[string]int),
		CallLog:   make([]MockCall, 0),
	}
}

// SetError sets an error to be returned for a specific operation
func (m *MockManager) SetError(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors[operation] = err
}

// Get returns a copy of the named unit.
func (m *MockManager) Get(name string) (MockUnit, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.Units[name]
	if !ok {
		return MockUnit{}, false
	}
	return *u, true
}

// Count returns the number of installed units.
func (m *MockManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Units)
}

// SetState forces the state of an installed unit, e.g. to simulate a crash.
func (m *MockManager) SetState(name string, state State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.Units[name]; ok {
		u.State = state
	}
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
func (m *MockManager) fail(method, unit string) error {
	m.CallLog = append(m.CallLog, MockCall{Method: method, Unit: unit})
	if n := m.Transient[method]; n > 0 {
		m.Transient[method] = n - 1
		return errors.SystemError("mock "+method, nil)
	}
	return m.Errors[method]
}

func (m *MockManager) Install(ctx context.Context, spec Spec) (Ref, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("Install", spec.Name); err != nil {
		return Ref{}, err
	}
	if err := spec.Validate(); err != nil {
		return Ref{}, errors.ValidationError(err.Error())
	}
	if u, ok := m.Units[spec.Name]; ok {
		u.Spec = spec
	} else {
		m.Units[spec.Name] = &MockUnit{Spec: spec, State: StateInactive}
	}
	return Ref{Name: spec.Name}, nil
}

func (m *MockManager) setState(method string, ref Ref, state State, tolerateMissing bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(method, ref.Name); err != nil {
		return err
	}
	u, ok := m.Units[ref.Name]
	if !ok {
		if tolerateMissing {
			return nil
		}
		return errors.SystemError("systemctl "+method+" "+ref.Name, nil)
	}
	u.State = state
	return nil
}

func (m *MockManager) Start(ctx context.Context, ref Ref) error {
	return m.setState("Start", ref, StateActive, false)
}

func (m *MockManager) Stop(ctx context.Context, ref Ref) error {
	return m.setState("Stop", ref, StateInactive, true)
}

func (m *MockManager) Restart(ctx context.Context, ref Ref) error {
	return m.setState("Restart", ref, StateActive, false)
}

func (m *MockManager) Remove(ctx context.Context, ref Ref) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("Remove", ref.Name); err != nil {
		return err
	}
	delete(m.Units, ref.Name)
	return nil
}

func (m *MockManager) Status(ctx context.Context, ref Ref) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("Status", ref.Name); err != nil {
		return StateUnknown, err
	}
	u, ok := m.Units[ref.Name]
	if !ok {
		return StateInactive, nil
	}
	return u.State, nil
}

var _ Manager = (*MockManager)(nil)
