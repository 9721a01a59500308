package provision

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/account"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/audit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/metrics"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/port"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/quota"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/route"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/store"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/unit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/workspace"
)

// Store is the workspace record store. The lease methods arbitrate which
// orchestrator process may operate on a workspace.
type Store interface {
	CreateLeased(ctx context.Context, w *workspace.Workspace, owner string, ttl time.Duration) error
	AcquireLease(ctx context.Context, id, owner string, ttl time.Duration) (bool, error)
	RenewLease(ctx context.Context, id, owner string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, id, owner string) error
	GetWorkspace(ctx context.Context, id string) (*workspace.Workspace, error)
	FindWorkspace(ctx context.Context, ownerID, name string) (*workspace.Workspace, error)
	ListWorkspaces(ctx context.Context, opts store.ListOptions) ([]*workspace.Workspace, error)
	ListByStatus(ctx context.Context, statuses ...workspace.Status) ([]*workspace.Workspace, error)
	UpdateWorkspace(ctx context.Context, w *workspace.Workspace) error
	DeleteWorkspaceRecord(ctx context.Context, id string) error
	PurgeDeleted(ctx context.Context, cutoff time.Time) (int64, error)
	CountByStatus(ctx context.Context) (map[workspace.Status]int64, error)
}

// Ports hands out loopback ports.
type Ports interface {
	Allocate(ctx context.Context, workspaceID string) (int, error)
	Release(ctx context.Context, port int, workspaceID string) error
	ReleaseAll(ctx context.Context, workspaceID string) error
	Usage(ctx context.Context) (claimed, total int, err error)
}

// Routes publishes hostnames to the reverse proxy.
type Routes interface {
	Publish(ctx context.Context, hostname string, port int, workspaceID string) error
	Unpublish(ctx context.Context, hostname, workspaceID string) error
	IsPublished(ctx context.Context, hostname string) (bool, error)
}

// Deps are the components a Provisioner drives.
type Deps struct {
	Store    Store
	Ports    Ports
	Quota    *quota.Policy
	Enforcer quota.Enforcer
	Accounts account.Manager
	Units    unit.Manager
	Routes   Routes
	Audit    audit.Recorder
	Metrics  *metrics.Metrics
}

// Provisioner runs workspace lifecycle operations.
type Provisioner struct {
	cfg      *config.HostConfig
	store    Store
	ports    Ports
	quota    *quota.Policy
	enforcer quota.Enforcer
	accounts account.Manager
	units    unit.Manager
	routes   Routes
	audit    audit.Recorder
	metrics  *metrics.Metrics

	locks    *keyedMutex
	slots    chan struct{}
	owner    string
	leaseTTL time.Duration
	now      func() time.Time
}

// New creates a Provisioner. Audit, Metrics and Enforcer are optional.
func New(cfg *config.HostConfig, deps Deps) (*Provisioner, error) {
	switch {
	case cfg == nil:
		return nil, fmt.Errorf("provisioner requires a host config")
	case deps.Store == nil || deps.Ports == nil || deps.Quota == nil:
		return nil, fmt.Errorf("provisioner requires a store, a port allocator and a quota policy")
	case deps.Accounts == nil || deps.Units == nil || deps.Routes == nil:
		return nil, fmt.Errorf("provisioner requires account, unit and route managers")
	}
	if deps.Enforcer == nil {
		deps.Enforcer = quota.NoopEnforcer{}
	}
	if deps.Audit == nil {
		deps.Audit = audit.Discard{}
	}
	slots := cfg.Orchestrator.MaxConcurrent
	if slots < 1 {
		slots = 1
	}
	ttl := cfg.Orchestrator.LeaseTTL.Duration
	if ttl < time.Second {
		ttl = 30 * time.Second
	}
	return &Provisioner{
		cfg:      cfg,
		store:    deps.Store,
		ports:    deps.Ports,
		quota:    deps.Quota,
		enforcer: deps.Enforcer,
		accounts: deps.Accounts,
		units:    deps.Units,
		routes:   deps.Routes,
		audit:    deps.Audit,
		metrics:  deps.Metrics,
		locks:    newKeyedMutex(),
		slots:    make(chan struct{}, slots),
		owner:    leaseOwner(),
		leaseTTL: ttl,
		now:      time.Now,
	}, nil
}

// CreateRequest describes a new workspace.
type CreateRequest struct {
	OwnerID string
	Name    string
	Plan    string
}

// CreateWorkspace provisions a new workspace and returns it Active.
//
// Validation and naming conflicts fail before any side effect. A full port
// pool fails with AllocationExhausted and leaves no record behind. Any later
// failure rolls back what was done and leaves the workspace in Error, which
// is returned together with the error.
func (p *Provisioner) CreateWorkspace(ctx context.Context, req CreateRequest) (ws *workspace.Workspace, err error) {
	started := p.now()
	result := metrics.ResultOK
	defer func() { p.observe(ctx, "create", started, result, err) }()

	if err := config.ValidateOwner(req.OwnerID); err != nil {
		return nil, errors.ValidationError(err.Error())
	}
	if err := config.ValidateWorkspaceName(req.Name); err != nil {
		return nil, errors.ValidationError(err.Error())
	}
	quotaBytes, err := p.quota.Bytes(req.Plan)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	identity := workspace.IdentityName(p.cfg.Accounts.Prefix, id)
	ws = &workspace.Workspace{
		ID:             id,
		OwnerID:        req.OwnerID,
		Name:           req.Name,
		Plan:           req.Plan,
		PublicHostname: workspace.Hostname(req.Name, req.OwnerID, p.cfg.BaseDomain),
		OSIdentity:     identity,
		UnitName:       workspace.UnitName(p.cfg.Service.UnitPrefix, identity),
		DiskQuotaBytes: quotaBytes,
		Status:         workspace.StatusProvisioning,
	}

	done, err := p.begin(ctx, id)
	if err != nil {
		return nil, err
	}
	defer done()

	if err := p.store.CreateLeased(ctx, ws, p.owner, p.leaseTTL); err != nil {
		if errors.KindOf(err) == errors.KindNameConflict {
			return nil, err
		}
		return nil, errors.SystemError("record workspace", err)
	}
	lctx, l := p.hold(ctx, id)
	defer l.release()
	logging.Info("provisioning workspace", "workspace", ws.ID, "ref", ws.Ref(), "plan", ws.Plan)

	opCtx, cancel := p.operationContext(lctx)
	defer cancel()

	steps := p.createSteps()
	completed, err := p.execute(opCtx, ws, "create", steps)
	if err == nil {
		p.record(audit.EventCreate, ws, fmt.Sprintf("hostname=%s port=%d plan=%s", ws.PublicHostname, ws.Port, ws.Plan))
		logging.Info("workspace active", "workspace", ws.ID, "hostname", ws.PublicHostname, "port", ws.Port)
		return ws, nil
	}

	if leaseLost(opCtx) {
		logging.Warn("create abandoned, another process took the workspace over", "workspace", ws.ID, "error", err)
		result = metrics.ResultError
		return ws, err
	}

	work := context.WithoutCancel(ctx)
	failedStep := "none"
	if completed < len(steps) {
		failedStep = steps[completed].name
	}
	if completed == 0 && stderrors.Is(err, errors.ErrAllocationExhausted) {
		result = metrics.ResultError
		if delErr := p.store.DeleteWorkspaceRecord(work, ws.ID); delErr != nil {
			logging.Warn("failed to remove unallocated workspace record", "workspace", ws.ID, "error", delErr)
		}
		return nil, err
	}

	logging.Warn("create failed, rolling back", "workspace", ws.ID, "step", failedStep, "error", err)
	result = metrics.ResultRolled
	p.record(audit.EventRollback, ws, "failed step "+failedStep+": "+err.Error())

	if rbErr := p.rollback(work, ws, steps[:completed]); rbErr != nil {
		result = metrics.ResultError
		ws.Status = workspace.StatusError
		ws.LastError = fmt.Sprintf("%v; rollback: %v", err, rbErr)
		p.persist(work, ws)
		p.record(audit.EventError, ws, ws.LastError)
		return ws, errors.RollbackFailure(ws.ID, errors.Join(err, rbErr))
	}

	ws.Status = workspace.StatusError
	ws.Step = ""
	ws.LastError = err.Error()
	p.persist(work, ws)
	p.record(audit.EventError, ws, ws.LastError)
	return ws, err
}

// DeleteWorkspace tears a workspace down and marks it Deleted. Deleting a
// Deleted workspace succeeds without doing anything.
func (p *Provisioner) DeleteWorkspace(ctx context.Context, id string) (err error) {
	started := p.now()
	defer func() { p.observe(ctx, "delete", started, resultFor(err), err) }()

	_, err = p.transition(ctx, id, "delete", transition{
		from: []workspace.Status{
			workspace.StatusActive,
			workspace.StatusStopped,
			workspace.StatusError,
			workspace.StatusDeleting,
		},
		noop:  workspace.StatusDeleted,
		via:   workspace.StatusDeleting,
		steps: p.deleteSteps(),
		event: audit.EventDelete,
	})
	return err
}

// StartWorkspace starts a stopped workspace and republishes its route on the
// port it already holds. A workspace in Error is retried only if it still
// owns its port and credential.
func (p *Provisioner) StartWorkspace(ctx context.Context, id string) (ws *workspace.Workspace, err error) {
	started := p.now()
	defer func() { p.observe(ctx, "start", started, resultFor(err), err) }()

	return p.transition(ctx, id, "start", transition{
		from:  []workspace.Status{workspace.StatusStopped, workspace.StatusStarting, workspace.StatusError},
		noop:  workspace.StatusActive,
		via:   workspace.StatusStarting,
		steps: p.startSteps(),
		event: audit.EventStart,
		allow: func(ws *workspace.Workspace) bool {
			return ws.Status != workspace.StatusError || (ws.Port != 0 && ws.Credential != "")
		},
	})
}

// StopWorkspace unpublishes the route and stops the service.
func (p *Provisioner) StopWorkspace(ctx context.Context, id string) (ws *workspace.Workspace, err error) {
	started := p.now()
	defer func() { p.observe(ctx, "stop", started, resultFor(err), err) }()

	return p.transition(ctx, id, "stop", transition{
		from:  []workspace.Status{workspace.StatusActive, workspace.StatusStopping},
		noop:  workspace.StatusStopped,
		via:   workspace.StatusStopping,
		steps: p.stopSteps(),
		event: audit.EventStop,
	})
}

// RestartWorkspace stops and starts an Active workspace as one operation.
// A Stopped workspace is brought up with StartWorkspace instead.
func (p *Provisioner) RestartWorkspace(ctx context.Context, id string) (ws *workspace.Workspace, err error) {
	started := p.now()
	defer func() { p.observe(ctx, "restart", started, resultFor(err), err) }()

	return p.transition(ctx, id, "restart", transition{
		from:  []workspace.Status{workspace.StatusActive},
		via:   workspace.StatusStopping,
		steps: p.restartSteps(),
		event: audit.EventRestart,
	})
}

// RepairWorkspace restarts the unit of an Active workspace in place and
// republishes its route. Any other status is rejected with InvalidState, so a
// workspace stopped in the meantime is never brought back.
func (p *Provisioner) RepairWorkspace(ctx context.Context, id string) (ws *workspace.Workspace, err error) {
	started := p.now()
	defer func() { p.observe(ctx, "repair", started, resultFor(err), err) }()

	return p.transition(ctx, id, "repair", transition{
		from:  []workspace.Status{workspace.StatusActive},
		via:   workspace.StatusStarting,
		steps: p.repairSteps(),
		event: audit.EventRestart,
	})
}

// GetWorkspaceStatus returns the current record for id.
func (p *Provisioner) GetWorkspaceStatus(ctx context.Context, id string) (*workspace.Workspace, error) {
	return p.store.GetWorkspace(ctx, id)
}

// Resolve accepts either a workspace ID or an "owner/name" reference.
func (p *Provisioner) Resolve(ctx context.Context, ref string) (*workspace.Workspace, error) {
	if owner, name, ok := strings.Cut(ref, "/"); ok {
		return p.store.FindWorkspace(ctx, owner, name)
	}
	return p.store.GetWorkspace(ctx, ref)
}

// ListWorkspaces returns workspaces matching opts.
func (p *Provisioner) ListWorkspaces(ctx context.Context, opts store.ListOptions) ([]*workspace.Workspace, error) {
	return p.store.ListWorkspaces(ctx, opts)
}

// ChangePlan moves a workspace to another plan and applies the new quota.
func (p *Provisioner) ChangePlan(ctx context.Context, id, plan string) (ws *workspace.Workspace, err error) {
	started := p.now()
	defer func() { p.observe(ctx, "replan", started, resultFor(err), err) }()

	bytes, err := p.quota.Bytes(plan)
	if err != nil {
		return nil, err
	}

	done, err := p.begin(ctx, id)
	if err != nil {
		return nil, err
	}
	defer done()
	ctx, l, err := p.claim(ctx, id)
	if err != nil {
		return nil, err
	}
	defer l.release()

	ws, err = p.store.GetWorkspace(ctx, id)
	if err != nil {
		return nil, err
	}
	switch ws.Status {
	case workspace.StatusActive, workspace.StatusStopped:
	default:
		return ws, errors.InvalidState(ws.ID, "replan", ws.Status.String())
	}
	if ws.Plan == plan && ws.DiskQuotaBytes == bytes {
		return ws, nil
	}

	work := context.WithoutCancel(ctx)
	old := ws.Plan
	ws.Plan = plan
	ws.DiskQuotaBytes = bytes
	if err := p.retry(work, ws, StepApplyQuota, p.applyQuota); err != nil {
		return ws, err
	}
	if err := p.store.UpdateWorkspace(work, ws); err != nil {
		return ws, errors.SystemError("record plan", err)
	}
	p.record(audit.EventReplan, ws, fmt.Sprintf("replan %s -> %s quota=%s", old, plan, quota.FormatSize(bytes)))
	return ws, nil
}

// transition describes a non-create operation.
type transition struct {
	from  []workspace.Status
	noop  workspace.Status // already there: return without side effects
	via   workspace.Status // intermediate status persisted before the steps
	steps []step
	event audit.EventType
	allow func(ws *workspace.Workspace) bool
}

func (p *Provisioner) transition(ctx context.Context, id, op string, t transition) (*workspace.Workspace, error) {
	done, err := p.begin(ctx, id)
	if err != nil {
		return nil, err
	}
	defer done()
	ctx, l, err := p.claim(ctx, id)
	if err != nil {
		return nil, err
	}
	defer l.release()

	ws, err := p.store.GetWorkspace(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.noop != "" && ws.Status == t.noop {
		logging.Debug("workspace already in target status", "workspace", ws.ID, "op", op, "status", ws.Status)
		return ws, nil
	}
	if !statusIn(ws.Status, t.from) || (t.allow != nil && !t.allow(ws)) {
		return ws, errors.InvalidState(ws.ID, op, ws.Status.String())
	}

	return ws, p.run(ctx, ws, op, t)
}

// run persists the intermediate status, executes the steps and settles the
// workspace in its target status or Error.
func (p *Provisioner) run(ctx context.Context, ws *workspace.Workspace, op string, t transition) error {
	work := context.WithoutCancel(ctx)
	ws.Status = t.via
	ws.LastError = ""
	if err := p.store.UpdateWorkspace(work, ws); err != nil {
		return errors.SystemError("record status", err)
	}

	opCtx, cancel := p.operationContext(ctx)
	defer cancel()

	logging.Info("workspace operation", "workspace", ws.ID, "ref", ws.Ref(), "op", op)
	if _, err := p.execute(opCtx, ws, op, t.steps); err != nil {
		if leaseLost(opCtx) {
			logging.Warn("operation abandoned, another process took the workspace over", "workspace", ws.ID, "op", op, "error", err)
			return err
		}
		p.fail(work, ws, op, err)
		return err
	}
	p.record(t.event, ws, "status="+ws.Status.String())
	return nil
}

// fail settles ws in Error. A workspace in Error must not be reachable, so
// its route is withdrawn on a best-effort basis.
func (p *Provisioner) fail(ctx context.Context, ws *workspace.Workspace, op string, cause error) {
	logging.Warn("workspace operation failed", "workspace", ws.ID, "op", op, "step", ws.Step, "error", cause)
	if err := p.routes.Unpublish(ctx, ws.PublicHostname, ws.ID); err != nil {
		logging.Warn("failed to withdraw route of failed workspace", "workspace", ws.ID, "error", err)
	}
	ws.Status = workspace.StatusError
	ws.LastError = op + ": " + cause.Error()
	p.persist(ctx, ws)
	p.record(audit.EventError, ws, ws.LastError)
}

// begin takes the in-process workspace lock and a concurrency slot, in that
// order. Callers take the durable lease after it.
func (p *Provisioner) begin(ctx context.Context, id string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.SystemError("begin operation", err)
	}
	if err := p.locks.Lock(ctx, id); err != nil {
		return nil, errors.SystemError("wait for workspace lock", err)
	}
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		p.locks.Unlock(id)
		return nil, errors.SystemError("wait for provisioning slot", ctx.Err())
	}
	return func() {
		<-p.slots
		p.locks.Unlock(id)
	}, nil
}

func (p *Provisioner) operationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := p.cfg.Orchestrator.OperationTimeout.Duration; d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

func (p *Provisioner) persist(ctx context.Context, ws *workspace.Workspace) {
	if err := p.store.UpdateWorkspace(ctx, ws); err != nil {
		logging.Error("failed to record workspace status", "workspace", ws.ID, "status", ws.Status, "error", err)
	}
}

func (p *Provisioner) record(t audit.EventType, ws *workspace.Workspace, details string) {
	err := p.audit.Log(audit.Event{
		Type:      t,
		Workspace: ws.ID,
		Ref:       ws.Ref(),
		Step:      ws.Step,
		Details:   details,
	})
	if err != nil {
		logging.Warn("failed to write audit event", "workspace", ws.ID, "type", t, "error", err)
	}
}

func (p *Provisioner) observe(ctx context.Context, op string, started time.Time, result string, err error) {
	if err != nil && result == metrics.ResultOK {
		result = metrics.ResultError
	}
	p.metrics.ObserveOperation(op, result, p.now().Sub(started))
	p.RefreshGauges(context.WithoutCancel(ctx))
}

// RefreshGauges updates the port and status gauges from the store.
func (p *Provisioner) RefreshGauges(ctx context.Context) {
	if p.metrics == nil {
		return
	}
	if claimed, total, err := p.ports.Usage(ctx); err == nil {
		p.metrics.SetPorts(claimed, total)
	}
	if counts, err := p.store.CountByStatus(ctx); err == nil {
		byName := make(map[string]int64, len(counts))
		for s, n := range counts {
			byName[s.String()] = n
		}
		p.metrics.SetWorkspaceCounts(byName)
	}
}

func resultFor(err error) string {
	if err != nil {
		return metrics.ResultError
	}
	return metrics.ResultOK
}

func statusIn(s workspace.Status, set []workspace.Status) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}

var (
	_ Store  = (*store.Store)(nil)
	_ Ports  = (*port.Allocator)(nil)
	_ Routes = (*route.Publisher)(nil)
)
