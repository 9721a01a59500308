// Package route publishes workspace hostnames to the reverse proxy.
//
// The route table in the store is the source of truth. The proxy's dynamic
// configuration file is never edited in place: every change re-renders the
// whole file from the table and swaps it in atomically, so Traefik's file
// watcher only ever sees a complete configuration.
package route

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/store"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/system"
)

var hostnameRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)*$`)

// Table is the durable route table.
type Table interface {
	UpsertRoute(ctx context.Context, r store.Route) (*store.Route, error)
	DeleteRoute(ctx context.Context, hostname, workspaceID string) (bool, error)
	GetRoute(ctx context.Context, hostname string) (store.Route, bool, error)
	ListRoutes(ctx context.Context) ([]store.Route, error)
}

// Publisher maintains the proxy's dynamic configuration file.
type Publisher struct {
	cfg    config.RoutesConfig
	format Format
	table  Table
	fs     system.FileSystem

	// mu orders render-and-write so a slower writer cannot replace a newer
	// file with an older snapshot.
	mu sync.Mutex
}

// NewPublisher creates a Publisher writing cfg.Path.
func NewPublisher(cfg config.RoutesConfig, table Table, fs system.FileSystem) (*Publisher, error) {
	format, err := FormatFor(cfg.Path)
	if err != nil {
		return nil, err
	}
	return &Publisher{cfg: cfg, format: format, table: table, fs: fs}, nil
}

// Path returns the dynamic configuration file path.
func (p *Publisher) Path() string { return p.cfg.Path }

// Format returns the file format.
func (p *Publisher) Format() Format { return p.format }

// Publish routes hostname to the loopback port for workspaceID. Publishing
// an identical route changes nothing; a different port replaces the old one.
// A hostname already routed to another workspace is rejected.
func (p *Publisher) Publish(ctx context.Context, hostname string, port int, workspaceID string) error {
	if !hostnameRegex.MatchString(hostname) {
		return errors.ValidationError(fmt.Sprintf("invalid hostname %q", hostname))
	}
	if port < 1 || port > 65535 {
		return errors.ValidationError(fmt.Sprintf("invalid port %d", port))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	existing, ok, err := p.table.GetRoute(ctx, hostname)
	if err != nil {
		return errors.SystemError("read route table", err)
	}
	if ok && existing.WorkspaceID != workspaceID {
		return errors.HostnameConflict(hostname, existing.WorkspaceID)
	}
	changed := !ok || existing.Port != port
	if changed {
		if ok {
			logging.Warn("route port changed", "hostname", hostname, "old_port", existing.Port, "new_port", port)
		}
		if _, err := p.table.UpsertRoute(ctx, store.Route{Hostname: hostname, Port: port, WorkspaceID: workspaceID}); err != nil {
			return errors.SystemError("write route table", err)
		}
	}

	if err := p.syncLocked(ctx); err != nil {
		if changed {
			p.revert(ctx, hostname, workspaceID, existing, ok)
		}
		return err
	}
	logging.Debug("route published", "hostname", hostname, "port", port)
	return nil
}

// Unpublish removes the route for hostname if workspaceID owns it. Removing
// an absent route, or one owned by another workspace, succeeds without
// touching it.
func (p *Publisher) Unpublish(ctx context.Context, hostname, workspaceID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	removed, err := p.table.DeleteRoute(ctx, hostname, workspaceID)
	if err != nil {
		return errors.SystemError("write route table", err)
	}
	if err := p.syncLocked(ctx); err != nil {
		return err
	}
	logging.Debug("route unpublished", "hostname", hostname, "workspace", workspaceID, "removed", removed)
	return nil
}

// revert puts the table back the way it was before a Publish whose file
// write failed, so a failed Publish leaves no route behind.
func (p *Publisher) revert(ctx context.Context, hostname, workspaceID string, previous store.Route, existed bool) {
	var err error
	if existed {
		_, err = p.table.UpsertRoute(ctx, previous)
	} else {
		_, err = p.table.DeleteRoute(ctx, hostname, workspaceID)
	}
	if err != nil {
		logging.Warn("failed to revert route after a failed publish", "hostname", hostname, "error", err)
	}
}

// IsPublished reports whether hostname has a route in the table.
func (p *Publisher) IsPublished(ctx context.Context, hostname string) (bool, error) {
	_, ok, err := p.table.GetRoute(ctx, hostname)
	if err != nil {
		return false, errors.SystemError("read route table", err)
	}
	return ok, nil
}

// Routes returns the current route table.
func (p *Publisher) Routes(ctx context.Context) ([]store.Route, error) {
	routes, err := p.table.ListRoutes(ctx)
	if err != nil {
		return nil, errors.SystemError("read route table", err)
	}
	return routes, nil
}

// Sync re-renders the file from the table. Returns whether the file changed.
func (p *Publisher) Sync(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.syncChanged(ctx)
}

// Published reads the file as the proxy sees it.
func (p *Publisher) Published() (map[string]int, error) {
	data, err := p.fs.ReadFile(p.cfg.Path)
	if err != nil {
		return nil, err
	}
	return Parse(data, p.format)
}

func (p *Publisher) syncLocked(ctx context.Context) error {
	_, err := p.syncChanged(ctx)
	return err
}

func (p *Publisher) syncChanged(ctx context.Context) (bool, error) {
	routes, err := p.table.ListRoutes(ctx)
	if err != nil {
		return false, errors.SystemError("read route table", err)
	}
	data, err := Render(routes, p.cfg, p.format)
	if err != nil {
		return false, errors.SystemError("render routes", err)
	}

	if current, err := p.fs.ReadFile(p.cfg.Path); err == nil && bytes.Equal(current, data) {
		return false, nil
	}
	if err := p.fs.MkdirAll(filepath.Dir(p.cfg.Path), 0755); err != nil {
		return false, errors.SystemError("create route dir", err)
	}
	if err := p.fs.WriteFileAtomic(p.cfg.Path, data, 0644); err != nil {
		return false, errors.SystemError("write "+p.cfg.Path, err)
	}
	logging.Debug("route file written", "path", p.cfg.Path, "routes", len(routes))
	return true, nil
}

var _ Table = (*store.Store)(nil)
