// Package unit installs and controls the systemd service of each workspace.
package unit

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"strings"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/system"
)

// State is the activity state reported by systemctl is-active.
type State string

const (
	StateActive       State = "active"
	StateInactive     State = "inactive"
	StateFailed       State = "failed"
	StateActivating   State = "activating"
	StateDeactivating State = "deactivating"
	StateUnknown      State = "unknown"
)

// Running reports whether the unit is up.
func (s State) Running() bool {
	return s == StateActive
}

// Spec describes the service to install for a workspace.
type Spec struct {
	Name       string // unit file name, e.g. forage-ws-fws-3f2a9c01b7d4.service
	Identity   string
	Port       int
	WorkingDir string
	Credential string
}

// Validate checks that every required unit field is set.
func (s Spec) Validate() error {
	switch {
	case s.Name == "" || !strings.HasSuffix(s.Name, ".service"):
		return fmt.Errorf("invalid unit name %q", s.Name)
	case s.Identity == "" || s.Identity == "root":
		return fmt.Errorf("invalid service identity %q", s.Identity)
	case s.Port < 1 || s.Port > 65535:
		return fmt.Errorf("invalid port %d", s.Port)
	case s.WorkingDir == "":
		return fmt.Errorf("working directory is required")
	case s.Credential == "":
		return fmt.Errorf("credential is required")
	}
	return nil
}

// Ref identifies an installed unit.
type Ref struct {
	Name string
}

func (r Ref) String() string { return r.Name }

// Manager installs and controls workspace services.
type Manager interface {
	// Install writes the unit and enables it. Installing the same spec twice
	// is a no-op.
	Install(ctx context.Context, spec Spec) (Ref, error)
	// Start, Stop and Restart block until the unit reaches the wanted state
	// or the configured timeout passes.
	Start(ctx context.Context, ref Ref) error
	Stop(ctx context.Context, ref Ref) error
	Restart(ctx context.Context, ref Ref) error
	// Remove stops, disables and deletes the unit. A missing unit is not an error.
	Remove(ctx context.Context, ref Ref) error
	Status(ctx context.Context, ref Ref) (State, error)
}

// SystemdManager implements Manager with systemctl.
type SystemdManager struct {
	cfg  config.ServiceConfig
	exec system.CommandExecutor
	fs   system.FileSystem
}

// NewSystemdManager creates a SystemdManager.
func NewSystemdManager(cfg config.ServiceConfig, exec system.CommandExecutor, fs system.FileSystem) *SystemdManager {
	if cfg.PollInterval.Duration <= 0 {
		cfg.PollInterval.Duration = 250 * time.Millisecond
	}
	return &SystemdManager{cfg: cfg, exec: exec, fs: fs}
}

func (m *SystemdManager) unitPath(name string) (string, error) {
	return securejoin.SecureJoin(m.cfg.UnitsDir, name)
}

func (m *SystemdManager) envPath(name string) (string, error) {
	return securejoin.SecureJoin(m.cfg.EnvDir, strings.TrimSuffix(name, ".service")+".env")
}

func (m *SystemdManager) Install(ctx context.Context, spec Spec) (Ref, error) {
	if err := spec.Validate(); err != nil {
		return Ref{}, errors.ValidationError(err.Error())
	}
	ref := Ref{Name: spec.Name}

	unitPath, err := m.unitPath(spec.Name)
	if err != nil {
		return Ref{}, errors.SystemError("resolve unit path", err)
	}
	envPath, err := m.envPath(spec.Name)
	if err != nil {
		return Ref{}, errors.SystemError("resolve env path", err)
	}

	execStart, err := renderExecStart(m.cfg.ExecStart, execData{
		BindAddr:   net.JoinHostPort("127.0.0.1", strconv.Itoa(spec.Port)),
		Port:       spec.Port,
		WorkingDir: spec.WorkingDir,
		User:       spec.Identity,
	})
	if err != nil {
		return Ref{}, errors.ValidationError(err.Error())
	}
	unitFile, err := renderUnit(unitData{
		Identity:   spec.Identity,
		WorkingDir: spec.WorkingDir,
		EnvFile:    envPath,
		Port:       spec.Port,
		ExecStart:  execStart,
	})
	if err != nil {
		return Ref{}, errors.SystemError("render unit", err)
	}
	envData := renderEnv(spec.Credential)

	changed := false
	if err := m.fs.MkdirAll(m.cfg.EnvDir, 0700); err != nil {
		return Ref{}, errors.SystemError("create env dir", err)
	}
	for _, f := range []struct {
		path string
		data []byte
		perm fs.FileMode
	}{
		{envPath, envData, 0600},
		{unitPath, unitFile, 0644},
	} {
		wrote, err := m.writeIfChanged(f.path, f.data, f.perm)
		if err != nil {
			return Ref{}, m.discard(ctx, ref, errors.SystemError("write "+f.path, err))
		}
		changed = changed || wrote
	}

	if changed {
		if err := m.systemctl(ctx, "daemon-reload"); err != nil {
			return Ref{}, m.discard(ctx, ref, err)
		}
	}
	if err := m.systemctl(ctx, "enable", ref.Name); err != nil {
		return Ref{}, m.discard(ctx, ref, err)
	}

	logging.Debug("unit installed", "unit", ref.Name, "changed", changed)
	return ref, nil
}

// discard removes what a failed Install left behind and returns cause.
func (m *SystemdManager) discard(ctx context.Context, ref Ref, cause error) error {
	if err := m.Remove(ctx, ref); err != nil {
		logging.Warn("failed to clean up after unit install", "unit", ref.Name, "error", err)
	}
	return cause
}

func (m *SystemdManager) writeIfChanged(path string, data []byte, perm fs.FileMode) (bool, error) {
	if existing, err := m.fs.ReadFile(path); err == nil && bytes.Equal(existing, data) {
		return false, nil
	}
	if err := m.fs.WriteFileAtomic(path, data, perm); err != nil {
		return false, err
	}
	return true, nil
}

func (m *SystemdManager) Start(ctx context.Context, ref Ref) error {
	if err := m.systemctl(ctx, "start", ref.Name); err != nil {
		return err
	}
	return m.waitFor(ctx, ref, "start", StateActive)
}

func (m *SystemdManager) Stop(ctx context.Context, ref Ref) error {
	if err := m.systemctl(ctx, "stop", ref.Name); err != nil {
		if isNotLoaded(err) {
			return nil
		}
		return err
	}
	return m.waitFor(ctx, ref, "stop", StateInactive, StateFailed)
}

func (m *SystemdManager) Restart(ctx context.Context, ref Ref) error {
	if err := m.systemctl(ctx, "restart", ref.Name); err != nil {
		return err
	}
	return m.waitFor(ctx, ref, "restart", StateActive)
}

func (m *SystemdManager) Remove(ctx context.Context, ref Ref) error {
	if err := m.systemctl(ctx, "disable", "--now", ref.Name); err != nil && !isNotLoaded(err) {
		return err
	}

	unitPath, err := m.unitPath(ref.Name)
	if err != nil {
		return errors.SystemError("resolve unit path", err)
	}
	envPath, err := m.envPath(ref.Name)
	if err != nil {
		return errors.SystemError("resolve env path", err)
	}
	removed := false
	for _, p := range []string{unitPath, envPath} {
		err := m.fs.Remove(p)
		switch {
		case err == nil:
			removed = true
		case stderrors.Is(err, fs.ErrNotExist):
		default:
			return errors.SystemError("remove "+p, err)
		}
	}

	if removed {
		if err := m.systemctl(ctx, "daemon-reload"); err != nil {
			return err
		}
	}
	logging.Debug("unit removed", "unit", ref.Name, "existed", removed)
	return nil
}

func (m *SystemdManager) Status(ctx context.Context, ref Ref) (State, error) {
	// is-active exits non-zero for anything but active; the state is on stdout.
	out, _ := m.exec.Execute(ctx, "systemctl", "is-active", ref.Name)
	state := State(strings.TrimSpace(string(out)))
	switch state {
	case StateActive, StateInactive, StateFailed, StateActivating, StateDeactivating:
		return state, nil
	}
	if ctx.Err() != nil {
		return StateUnknown, ctx.Err()
	}
	return StateUnknown, nil
}

// waitFor polls the unit until it reaches one of want, fails, or the start
// timeout passes.
func (m *SystemdManager) waitFor(ctx context.Context, ref Ref, op string, want ...State) error {
	timeout := m.cfg.StartTimeout.Duration
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(m.cfg.PollInterval.Duration)
	defer ticker.Stop()

	last := StateUnknown
	for {
		state, err := m.Status(ctx, ref)
		if err != nil {
			return errors.SystemError("systemctl "+op+" "+ref.Name, err)
		}
		last = state
		for _, w := range want {
			if state == w {
				logging.Debug("unit reached state", "unit", ref.Name, "state", state)
				return nil
			}
		}
		if state == StateFailed {
			return errors.SystemError("systemctl "+op+" "+ref.Name, fmt.Errorf("unit entered failed state"))
		}
		if time.Now().After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return errors.SystemError("systemctl "+op+" "+ref.Name, ctx.Err())
		case <-ticker.C:
		}
	}
	return errors.SystemError("systemctl "+op+" "+ref.Name,
		fmt.Errorf("unit did not reach %s within %s (last state %s)", want[0], timeout, last))
}

func (m *SystemdManager) systemctl(ctx context.Context, args ...string) error {
	out, err := m.exec.Execute(ctx, "systemctl", args...)
	if err != nil {
		return errors.SystemError("systemctl "+strings.Join(args, " "), commandError(err, out))
	}
	return nil
}

// systemctl exits 5 for units that are not loaded.
const exitUnitNotLoaded = 5

func isNotLoaded(err error) bool {
	if system.ExitCode(err) == exitUnitNotLoaded {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "not loaded") || strings.Contains(msg, "does not exist") || strings.Contains(msg, "not found")
}

func commandError(err error, out []byte) error {
	msg := strings.TrimSpace(string(out))
	if msg == "" {
		return err
	}
	return fmt.Errorf("%w: %s", err, msg)
}

var _ Manager = (*SystemdManager)(nil)
