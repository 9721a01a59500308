package provision

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/logging"
)

const leasePoll = 200 * time.Millisecond

var errLeaseLost = stderrors.New("workspace lease taken over by another process")

// leaseOwner names this process in the lease columns.
func leaseOwner() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s/%d/%s", host, os.Getpid(), uuid.NewString()[:8])
}

// lease is a held workspace lease kept alive in the background.
type lease struct {
	p      *Provisioner
	id     string
	cancel context.CancelCauseFunc
	stop   chan struct{}
	done   chan struct{}
	lost   atomic.Bool
}

// claim waits until this process holds the lease on id, then keeps it
// renewed until release. The returned context is canceled with errLeaseLost
// if the lease is taken over, which stops the operation between steps.
func (p *Provisioner) claim(ctx context.Context, id string) (context.Context, *lease, error) {
	for {
		ok, err := p.store.AcquireLease(ctx, id, p.owner, p.leaseTTL)
		if err != nil {
			if errors.KindOf(err) == errors.KindNotFound {
				return nil, nil, err
			}
			return nil, nil, errors.SystemError("acquire workspace lease", err)
		}
		if ok {
			break
		}
		logging.Debug("workspace leased by another process, waiting", "workspace", id)
		select {
		case <-ctx.Done():
			return nil, nil, errors.SystemError("wait for workspace lease", ctx.Err())
		case <-time.After(leasePoll):
		}
	}
	lctx, l := p.hold(ctx, id)
	return lctx, l, nil
}

// tryClaim is claim without waiting. It reports false when another process
// holds a live lease.
func (p *Provisioner) tryClaim(ctx context.Context, id string) (context.Context, *lease, bool) {
	ok, err := p.store.AcquireLease(ctx, id, p.owner, p.leaseTTL)
	if err != nil {
		logging.Warn("failed to acquire workspace lease", "workspace", id, "error", err)
		return nil, nil, false
	}
	if !ok {
		return nil, nil, false
	}
	lctx, l := p.hold(ctx, id)
	return lctx, l, true
}

// hold starts renewing a lease this process already holds.
func (p *Provisioner) hold(ctx context.Context, id string) (context.Context, *lease) {
	lctx, cancel := context.WithCancelCause(ctx)
	l := &lease{
		p:      p,
		id:     id,
		cancel: cancel,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go l.renew(context.WithoutCancel(ctx))
	return lctx, l
}

func (l *lease) renew(ctx context.Context) {
	defer close(l.done)
	ticker := time.NewTicker(l.p.leaseTTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			ok, err := l.p.store.RenewLease(ctx, l.id, l.p.owner, l.p.leaseTTL)
			if err != nil {
				logging.Warn("failed to renew workspace lease", "workspace", l.id, "error", err)
				continue
			}
			if !ok {
				logging.Warn("workspace lease lost", "workspace", l.id)
				l.lost.Store(true)
				l.cancel(errLeaseLost)
				return
			}
		}
	}
}

// release stops renewal and frees the lease unless it was lost.
func (l *lease) release() {
	close(l.stop)
	<-l.done
	l.cancel(nil)
	if l.lost.Load() {
		return
	}
	if err := l.p.store.ReleaseLease(context.Background(), l.id, l.p.owner); err != nil {
		logging.Warn("failed to release workspace lease", "workspace", l.id, "error", err)
	}
}

// leaseLost reports whether ctx was canceled because the lease was lost.
// State touched after that belongs to whoever took the lease over.
func leaseLost(ctx context.Context) bool {
	return stderrors.Is(context.Cause(ctx), errLeaseLost)
}
