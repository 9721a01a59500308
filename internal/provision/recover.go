package provision

import (
	"context"
	"fmt"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/audit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/workspace"
)

// RecoverResult describes what Recover did with one workspace.
type RecoverResult struct {
	ID   string
	Ref  string
	From workspace.Status
	To   workspace.Status
	Err  error
}

// Recover settles every workspace left in an intermediate status by a crash.
//
// A workspace caught in Provisioning is rolled back from its last recorded
// step, including the step that may have been in flight, and left in Error.
// Deleting, Stopping and Starting are driven forward to their target status.
// Workspaces busy in this process, or whose lease another process still
// holds, are skipped; an operation that is merely slow is never taken over.
func (p *Provisioner) Recover(ctx context.Context) ([]RecoverResult, error) {
	stuck, err := p.store.ListByStatus(ctx,
		workspace.StatusProvisioning,
		workspace.StatusStopping,
		workspace.StatusStarting,
		workspace.StatusDeleting,
	)
	if err != nil {
		return nil, errors.SystemError("list interrupted workspaces", err)
	}

	var results []RecoverResult
	for _, candidate := range stuck {
		if ctx.Err() != nil {
			break
		}
		if !p.locks.TryLock(candidate.ID) {
			logging.Debug("workspace busy, skipping recovery", "workspace", candidate.ID)
			continue
		}
		lctx, l, ok := p.tryClaim(ctx, candidate.ID)
		if !ok {
			logging.Debug("workspace leased by another process, skipping recovery", "workspace", candidate.ID)
			p.locks.Unlock(candidate.ID)
			continue
		}
		res := p.recoverOne(lctx, candidate.ID)
		l.release()
		p.locks.Unlock(candidate.ID)
		if res != nil {
			results = append(results, *res)
		}
	}
	p.RefreshGauges(context.WithoutCancel(ctx))
	return results, nil
}

func (p *Provisioner) recoverOne(ctx context.Context, id string) *RecoverResult {
	work := context.WithoutCancel(ctx)

	// Re-read under the lock; the list above may be stale.
	ws, err := p.store.GetWorkspace(work, id)
	if err != nil || !ws.Status.Intermediate() {
		return nil
	}
	res := &RecoverResult{ID: ws.ID, Ref: ws.Ref(), From: ws.Status}
	logging.Info("recovering workspace", "workspace", ws.ID, "status", ws.Status, "step", ws.Step)

	switch ws.Status {
	case workspace.StatusProvisioning:
		res.Err = p.recoverCreate(work, ws)
	case workspace.StatusDeleting:
		res.Err = p.resume(ctx, ws, "delete", p.deleteSteps())
	case workspace.StatusStopping:
		res.Err = p.resume(ctx, ws, "stop", p.stopSteps())
	case workspace.StatusStarting:
		res.Err = p.resume(ctx, ws, "start", p.startSteps())
	}
	res.To = ws.Status

	details := fmt.Sprintf("%s -> %s", res.From, res.To)
	if res.Err != nil {
		details += ": " + res.Err.Error()
	}
	p.record(audit.EventRecover, ws, details)
	return res
}

// recoverCreate rolls back an interrupted create. The step after the last
// recorded one may have run without being recorded, so it is undone too,
// except for identity creation: with no credential on record there is no
// telling whether the account is ours, and removing it could delete
// someone else's home.
func (p *Provisioner) recoverCreate(ctx context.Context, ws *workspace.Workspace) error {
	steps := p.createSteps()
	upto := stepIndex(steps, ws.Step) + 1
	if upto < len(steps) {
		if steps[upto].name != StepCreateIdentity || ws.Credential != "" {
			upto++
		} else {
			logging.Warn("identity creation was in flight, leaving the account alone", "workspace", ws.ID, "identity", ws.OSIdentity)
		}
	}

	if err := p.rollback(ctx, ws, steps[:upto]); err != nil {
		ws.Status = workspace.StatusError
		ws.LastError = "interrupted during create; rollback: " + err.Error()
		p.persist(ctx, ws)
		return errors.RollbackFailure(ws.ID, err)
	}
	ws.Status = workspace.StatusError
	ws.Step = ""
	ws.LastError = "interrupted during create; rolled back"
	p.persist(ctx, ws)
	return nil
}

// resume replays an idempotent pipeline from the start.
func (p *Provisioner) resume(ctx context.Context, ws *workspace.Workspace, op string, steps []step) error {
	opCtx, cancel := p.operationContext(ctx)
	defer cancel()
	if _, err := p.execute(opCtx, ws, op, steps); err != nil {
		if leaseLost(opCtx) {
			return err
		}
		p.fail(context.WithoutCancel(ctx), ws, "recover "+op, err)
		return err
	}
	return nil
}

// Purge hard-deletes Deleted workspace records last changed more than
// olderThan ago. It returns how many records were removed.
func (p *Provisioner) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := p.now().Add(-olderThan)

	deleted, err := p.store.ListByStatus(ctx, workspace.StatusDeleted)
	if err != nil {
		return 0, errors.SystemError("list deleted workspaces", err)
	}
	for _, ws := range deleted {
		if ws.UpdatedAt.Before(cutoff) {
			p.record(audit.EventPurge, ws, "record removed")
		}
	}

	n, err := p.store.PurgeDeleted(ctx, cutoff)
	if err != nil {
		return 0, errors.SystemError("purge deleted workspaces", err)
	}
	logging.Info("purged deleted workspaces", "count", n, "cutoff", cutoff)
	p.RefreshGauges(ctx)
	return n, nil
}
