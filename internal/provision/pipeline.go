package provision

import (
	"context"
	"fmt"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/unit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/workspace"
)

// Step names, persisted in Workspace.Step.
const (
	StepAllocatePort   = "allocate-port"
	StepCreateIdentity = "create-identity"
	StepApplyQuota     = "apply-quota"
	StepInstallUnit    = "install-unit"
	StepStartUnit      = "start-unit"
	StepRestartUnit    = "restart-unit"
	StepStopUnit       = "stop-unit"
	StepRemoveUnit     = "remove-unit"
	StepPublishRoute   = "publish-route"
	StepUnpublishRoute = "unpublish-route"
	StepClearQuota     = "clear-quota"
	StepRemoveIdentity = "remove-identity"
	StepReleasePort    = "release-port"
	StepMarkActive     = "mark-active"
	StepMarkStopped    = "mark-stopped"
	StepMarkStarting   = "mark-starting"
	StepMarkDeleted    = "mark-deleted"
)

type action func(ctx context.Context, ws *workspace.Workspace) error

// step is one forward action and its inverse. undo must tolerate the
// forward action never having run or having partially run.
type step struct {
	name string
	do   action
	undo action
}

func (p *Provisioner) createSteps() []step {
	return []step{
		{name: StepAllocatePort, do: p.allocatePort, undo: p.releasePort},
		{name: StepCreateIdentity, do: p.createIdentity, undo: p.removeIdentity},
		{name: StepApplyQuota, do: p.applyQuota, undo: p.clearQuota},
		{name: StepInstallUnit, do: p.installUnit, undo: p.removeUnit},
		{name: StepStartUnit, do: p.startUnit, undo: p.stopUnit},
		{name: StepPublishRoute, do: p.publishRoute, undo: p.unpublishRoute},
		{name: StepMarkActive, do: markStatus(workspace.StatusActive)},
	}
}

func (p *Provisioner) deleteSteps() []step {
	return []step{
		{name: StepUnpublishRoute, do: p.unpublishRoute},
		{name: StepStopUnit, do: p.stopUnit},
		{name: StepRemoveUnit, do: p.removeUnit},
		{name: StepClearQuota, do: p.clearQuota},
		{name: StepRemoveIdentity, do: p.removeIdentity},
		{name: StepReleasePort, do: p.releasePort},
		{name: StepMarkDeleted, do: markStatus(workspace.StatusDeleted)},
	}
}

func (p *Provisioner) stopSteps() []step {
	return []step{
		{name: StepUnpublishRoute, do: p.unpublishRoute},
		{name: StepStopUnit, do: p.stopUnit},
		{name: StepMarkStopped, do: markStatus(workspace.StatusStopped)},
	}
}

func (p *Provisioner) startSteps() []step {
	return []step{
		{name: StepStartUnit, do: p.startUnit},
		{name: StepPublishRoute, do: p.publishRoute},
		{name: StepMarkActive, do: markStatus(workspace.StatusActive)},
	}
}

func (p *Provisioner) restartSteps() []step {
	steps := []step{
		{name: StepUnpublishRoute, do: p.unpublishRoute},
		{name: StepStopUnit, do: p.stopUnit},
		{name: StepMarkStarting, do: markStatus(workspace.StatusStarting)},
	}
	return append(steps, p.startSteps()...)
}

// repairSteps restart the unit in place, so a drifted workspace keeps its
// route while the unit comes back.
func (p *Provisioner) repairSteps() []step {
	return []step{
		{name: StepRestartUnit, do: p.restartUnit},
		{name: StepPublishRoute, do: p.publishRoute},
		{name: StepMarkActive, do: markStatus(workspace.StatusActive)},
	}
}

func markStatus(status workspace.Status) action {
	return func(ctx context.Context, ws *workspace.Workspace) error {
		ws.Status = status
		return nil
	}
}

// execute runs steps in order against ws, persisting ws after each one.
// opCtx bounds the whole operation; it is only consulted between steps.
// It returns how many steps completed. A step that failed is not counted:
// its action either had no effect or cleaned up after itself, so rolling
// back the completed prefix never touches what the failed step found.
func (p *Provisioner) execute(opCtx context.Context, ws *workspace.Workspace, op string, steps []step) (int, error) {
	work := context.WithoutCancel(opCtx)
	for i, s := range steps {
		if opCtx.Err() != nil {
			return i, errors.SystemError(op+" "+ws.Ref(), fmt.Errorf("stopped before %s: %w", s.name, context.Cause(opCtx)))
		}
		if err := p.retry(work, ws, s.name, s.do); err != nil {
			return i, fmt.Errorf("%s: %w", s.name, err)
		}
		ws.Step = s.name
		if err := p.store.UpdateWorkspace(work, ws); err != nil {
			return i + 1, errors.SystemError("record step "+s.name, err)
		}
	}
	return len(steps), nil
}

// rollback undoes steps in reverse. It stops at the first inverse that
// fails so that later resources (the port above all) stay claimed while
// something that may still use them is left behind.
func (p *Provisioner) rollback(ctx context.Context, ws *workspace.Workspace, steps []step) error {
	for i := len(steps) - 1; i >= 0; i-- {
		s := steps[i]
		if s.undo == nil {
			continue
		}
		if err := p.retry(ctx, ws, "undo-"+s.name, s.undo); err != nil {
			logging.Warn("rollback step failed", "workspace", ws.ID, "step", s.name, "error", err)
			p.metrics.Rollback(false)
			return fmt.Errorf("undo %s: %w", s.name, err)
		}
	}
	p.metrics.Rollback(true)
	return nil
}

// retry runs fn until it succeeds, fails permanently or runs out of attempts.
func (p *Provisioner) retry(ctx context.Context, ws *workspace.Workspace, name string, fn action) error {
	attempts := p.cfg.Retry.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		logging.Debug("pipeline step", "workspace", ws.ID, "step", name, "attempt", attempt)
		if err = fn(ctx, ws); err == nil {
			return nil
		}
		if errors.IsPermanent(err) || attempt == attempts {
			break
		}
		p.metrics.Retry(name)
		logging.Debug("step failed, retrying", "workspace", ws.ID, "step", name, "attempt", attempt, "error", err)
		time.Sleep(p.cfg.Retry.Backoff.Duration * time.Duration(attempt))
	}
	return err
}

// stepIndex returns the position of name in steps, or -1.
func stepIndex(steps []step, name string) int {
	for i, s := range steps {
		if s.name == name {
			return i
		}
	}
	return -1
}

func (p *Provisioner) allocatePort(ctx context.Context, ws *workspace.Workspace) error {
	port, err := p.ports.Allocate(ctx, ws.ID)
	if err != nil {
		return err
	}
	ws.Port = port
	return nil
}

// releasePort frees the recorded port, then anything else still claimed for
// the workspace, such as a claim made just before a crash.
func (p *Provisioner) releasePort(ctx context.Context, ws *workspace.Workspace) error {
	if err := p.ports.Release(ctx, ws.Port, ws.ID); err != nil {
		return err
	}
	if err := p.ports.ReleaseAll(ctx, ws.ID); err != nil {
		return err
	}
	ws.Port = 0
	return nil
}

func (p *Provisioner) createIdentity(ctx context.Context, ws *workspace.Workspace) error {
	_, credential, err := p.accounts.CreateIdentity(ctx, ws.OSIdentity)
	if err != nil {
		return err
	}
	ws.Credential = credential
	return nil
}

func (p *Provisioner) removeIdentity(ctx context.Context, ws *workspace.Workspace) error {
	if err := p.accounts.RemoveIdentity(ctx, ws.OSIdentity); err != nil {
		return err
	}
	ws.Credential = ""
	return nil
}

func (p *Provisioner) applyQuota(ctx context.Context, ws *workspace.Workspace) error {
	return p.enforcer.Apply(ctx, ws.OSIdentity, ws.DiskQuotaBytes)
}

func (p *Provisioner) clearQuota(ctx context.Context, ws *workspace.Workspace) error {
	return p.enforcer.Clear(ctx, ws.OSIdentity)
}

func (p *Provisioner) unitRef(ws *workspace.Workspace) unit.Ref {
	return unit.Ref{Name: ws.UnitName}
}

func (p *Provisioner) installUnit(ctx context.Context, ws *workspace.Workspace) error {
	_, err := p.units.Install(ctx, unit.Spec{
		Name:       ws.UnitName,
		Identity:   ws.OSIdentity,
		Port:       ws.Port,
		WorkingDir: ws.HomeDir(p.cfg.Accounts.HomesDir),
		Credential: ws.Credential,
	})
	return err
}

func (p *Provisioner) removeUnit(ctx context.Context, ws *workspace.Workspace) error {
	return p.units.Remove(ctx, p.unitRef(ws))
}

func (p *Provisioner) startUnit(ctx context.Context, ws *workspace.Workspace) error {
	return p.units.Start(ctx, p.unitRef(ws))
}

func (p *Provisioner) restartUnit(ctx context.Context, ws *workspace.Workspace) error {
	return p.units.Restart(ctx, p.unitRef(ws))
}

func (p *Provisioner) stopUnit(ctx context.Context, ws *workspace.Workspace) error {
	return p.units.Stop(ctx, p.unitRef(ws))
}

func (p *Provisioner) publishRoute(ctx context.Context, ws *workspace.Workspace) error {
	return p.routes.Publish(ctx, ws.PublicHostname, ws.Port, ws.ID)
}

func (p *Provisioner) unpublishRoute(ctx context.Context, ws *workspace.Workspace) error {
	return p.routes.Unpublish(ctx, ws.PublicHostname, ws.ID)
}
