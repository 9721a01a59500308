// Package quota maps subscription plans to disk quotas and applies them.
package quota

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/system"
)

// ParseSize parses a size such as "5G", "512MiB" or "1073741824" into bytes.
// Suffixes follow go-humanize: G is 10^9, GiB is 2^30.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("size %q must be positive", s)
	}
	return int64(n), nil
}

// FormatSize renders bytes in binary units, e.g. "4.7 GiB".
func FormatSize(n int64) string {
	if n <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(n))
}

// Policy is the plan to quota mapping. It has no side effects.
type Policy struct {
	plans map[string]int64
}

// NewPolicy parses every plan size up front so a bad config fails at startup.
func NewPolicy(plans map[string]string) (*Policy, error) {
	p := &Policy{plans: make(map[string]int64, len(plans))}
	for name, size := range plans {
		n, err := ParseSize(size)
		if err != nil {
			return nil, fmt.Errorf("plan %s: %w", name, err)
		}
		p.plans[name] = n
	}
	return p, nil
}

// Bytes returns the quota for plan.
func (p *Policy) Bytes(plan string) (int64, error) {
	n, ok := p.plans[plan]
	if !ok {
		return 0, errors.ValidationError(fmt.Sprintf("unknown plan %q (known: %s)", plan, strings.Join(p.Plans(), ", ")))
	}
	return n, nil
}

// Plans returns the known plan names, sorted.
func (p *Policy) Plans() []string {
	names := make([]string, 0, len(p.plans))
	for name := range p.plans {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Enforcer applies a quota to an OS identity.
type Enforcer interface {
	Apply(ctx context.Context, identity string, bytes int64) error
	Clear(ctx context.Context, identity string) error
}

// SetquotaEnforcer sets per-user block limits with setquota(8).
type SetquotaEnforcer struct {
	Filesystem string
	exec       system.CommandExecutor
}

// NewSetquotaEnforcer creates an enforcer for the given mount point.
func NewSetquotaEnforcer(filesystem string, exec system.CommandExecutor) *SetquotaEnforcer {
	return &SetquotaEnforcer{Filesystem: filesystem, exec: exec}
}

// Apply sets soft and hard block limits for identity to bytes.
func (e *SetquotaEnforcer) Apply(ctx context.Context, identity string, bytes int64) error {
	// setquota counts 1 KiB blocks.
	blocks := strconv.FormatInt((bytes+1023)/1024, 10)
	out, err := e.exec.Execute(ctx, "setquota", "-u", identity, blocks, blocks, "0", "0", e.Filesystem)
	if err != nil {
		return errors.SystemError("setquota "+identity, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out))))
	}
	logging.Debug("quota applied", "identity", identity, "bytes", bytes, "fs", e.Filesystem)
	return nil
}

// Clear removes the limits for identity. A user that no longer exists is
// treated as already cleared.
func (e *SetquotaEnforcer) Clear(ctx context.Context, identity string) error {
	out, err := e.exec.Execute(ctx, "setquota", "-u", identity, "0", "0", "0", "0", e.Filesystem)
	if err != nil {
		if strings.Contains(strings.ToLower(string(out)), "no such user") {
			return nil
		}
		return errors.SystemError("setquota "+identity, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out))))
	}
	return nil
}

// NoopEnforcer records quotas without applying them. Used when no quota
// filesystem is configured.
type NoopEnforcer struct{}

func (NoopEnforcer) Apply(ctx context.Context, identity string, bytes int64) error {
	logging.Debug("quota enforcement disabled", "identity", identity, "bytes", bytes)
	return nil
}

func (NoopEnforcer) Clear(ctx context.Context, identity string) error { return nil }

// NewEnforcer returns a SetquotaEnforcer when filesystem is set and a
// NoopEnforcer otherwise.
func NewEnforcer(filesystem string, exec system.CommandExecutor) Enforcer {
	if filesystem == "" {
		return NoopEnforcer{}
	}
	return NewSetquotaEnforcer(filesystem, exec)
}
