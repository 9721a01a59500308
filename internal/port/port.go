package port

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/store"
)

// Pool is the durable port table. ClaimPort must be atomic across processes.
type Pool interface {
	SeedPorts(ctx context.Context, from, to int) error
	ClaimPort(ctx context.Context, workspaceID string, from, to int) (int, error)
	ReleasePort(ctx context.Context, port int, workspaceID string) error
	ReleaseAll(ctx context.Context, workspaceID string) error
	ClaimedPorts(ctx context.Context) (map[int]string, error)
}

// Allocator hands out ports from a configured range.
type Allocator struct {
	Range config.PortRange
	pool  Pool
}

// NewAllocator creates an allocator over pool for r.
func NewAllocator(pool Pool, r config.PortRange) *Allocator {
	return &Allocator{Range: r, pool: pool}
}

// Init seeds the pool with a row for every port in the range.
func (a *Allocator) Init(ctx context.Context) error {
	return a.pool.SeedPorts(ctx, a.Range.From, a.Range.To)
}

// Allocate claims the lowest free port for workspaceID.
// Returns an AllocationExhausted error when the range is full.
func (a *Allocator) Allocate(ctx context.Context, workspaceID string) (int, error) {
	p, err := a.pool.ClaimPort(ctx, workspaceID, a.Range.From, a.Range.To)
	if err != nil {
		if stderrors.Is(err, store.ErrNoFreePort) {
			return 0, errors.AllocationExhausted(a.Range.From, a.Range.To)
		}
		return 0, errors.SystemError("claim port", err)
	}
	logging.Debug("port allocated", "workspace", workspaceID, "port", p)
	return p, nil
}

// Release frees port if workspaceID holds it. Releasing a free port is a no-op.
func (a *Allocator) Release(ctx context.Context, port int, workspaceID string) error {
	if port == 0 {
		return nil
	}
	if err := a.pool.ReleasePort(ctx, port, workspaceID); err != nil {
		return errors.SystemError(fmt.Sprintf("release port %d", port), err)
	}
	logging.Debug("port released", "workspace", workspaceID, "port", port)
	return nil
}

// ReleaseAll frees whatever workspaceID holds, including a claim that was
// never recorded on the workspace.
func (a *Allocator) ReleaseAll(ctx context.Context, workspaceID string) error {
	if err := a.pool.ReleaseAll(ctx, workspaceID); err != nil {
		return errors.SystemError("release ports of "+workspaceID, err)
	}
	return nil
}

// Usage reports how many ports of the range are claimed.
func (a *Allocator) Usage(ctx context.Context) (claimed, total int, err error) {
	ports, err := a.pool.ClaimedPorts(ctx)
	if err != nil {
		return 0, 0, err
	}
	for p := range ports {
		if a.Range.Contains(p) {
			claimed++
		}
	}
	return claimed, a.Range.Size(), nil
}

// FirstFree returns the lowest port in r not present in used, or 0.
func FirstFree(r config.PortRange, used map[int]bool) int {
	for p := r.From; p <= r.To; p++ {
		if !used[p] {
			return p
		}
	}
	return 0
}

// MemoryPool is an in-process Pool for tests and dry runs.
type MemoryPool struct {
	mu     sync.Mutex
	seeded map[int]bool
	held   map[int]string
}

// NewMemoryPool creates an empty MemoryPool.
func NewMemoryPool() *MemoryPool {
	return &MemoryPool{seeded: map[int]bool{}, held: map[int]string{}}
}

func (m *MemoryPool) SeedPorts(ctx context.Context, from, to int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for p := from; p <= to; p++ {
		m.seeded[p] = true
	}
	return nil
}

func (m *MemoryPool) ClaimPort(ctx context.Context, workspaceID string, from, to int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	used := make(map[int]bool, len(m.held))
	for p, owner := range m.held {
		if owner == workspaceID && p >= from && p <= to {
			return p, nil
		}
		used[p] = true
	}
	for p := from; p <= to; p++ {
		if !m.seeded[p] {
			used[p] = true
		}
	}
	p := FirstFree(config.PortRange{From: from, To: to}, used)
	if p == 0 {
		return 0, store.ErrNoFreePort
	}
	m.held[p] = workspaceID
	return p, nil
}

func (m *MemoryPool) ReleasePort(ctx context.Context, port int, workspaceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[port] == workspaceID {
		delete(m.held, port)
	}
	return nil
}

func (m *MemoryPool) ReleaseAll(ctx context.Context, workspaceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for p, owner := range m.held {
		if owner == workspaceID {
			delete(m.held, p)
		}
	}
	return nil
}

func (m *MemoryPool) ClaimedPorts(ctx context.Context) (map[int]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int]string, len(m.held))
	for p, id := range m.held {
		out[p] = id
	}
	return out, nil
}

var (
	_ Pool = (*store.Store)(nil)
	_ Pool = (*MemoryPool)(nil)
)
