package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/app"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/health"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/provision"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/workspace"
)

// provisioner returns the application provisioner.
func provisioner() *provision.Provisioner {
	return app.Default.Provisioner
}

// checker returns a health checker over the app's unit manager and routes.
func checker() *health.Checker {
	return health.NewChecker(app.Default.Units, app.Default.Routes)
}

// resolveWorkspace loads a workspace by ID or "owner/name".
func resolveWorkspace(ctx context.Context, ref string) (*workspace.Workspace, error) {
	return provisioner().Resolve(ctx, ref)
}

// parseRef splits and validates an "owner/name" reference.
func parseRef(ref string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(ref, "/")
	if !ok {
		return "", "", errors.ValidationError(fmt.Sprintf("invalid workspace reference %q: expected <owner>/<name>", ref))
	}
	if err := config.ValidateOwner(owner); err != nil {
		return "", "", errors.ValidationError(err.Error())
	}
	if err := config.ValidateWorkspaceName(name); err != nil {
		return "", "", errors.ValidationError(err.Error())
	}
	return owner, name, nil
}

func formatStatus(ws *workspace.Workspace, h health.Status) string {
	switch ws.Status {
	case workspace.StatusActive:
		if h == health.StatusHealthy {
			return "✓ active"
		}
		return "⚠ active (" + string(h) + ")"
	case workspace.StatusStopped:
		return "● stopped"
	case workspace.StatusError:
		return "✗ error"
	case workspace.StatusDeleted:
		return "- deleted"
	default:
		return "○ " + string(ws.Status)
	}
}

func boolStatus(b bool) string {
	if b {
		return "✓"
	}
	return "✗"
}

type transitionFunc func(ctx context.Context, id string) (*workspace.Workspace, error)

func runTransition(cmd *cobra.Command, ref, verb, done string, op transitionFunc) error {
	ctx := cmd.Context()
	ws, err := resolveWorkspace(ctx, ref)
	if err != nil {
		return err
	}

	logInfo("%s workspace %s...", verb, ws.Ref())
	ws, err = op(ctx, ws.ID)
	if err != nil {
		return err
	}
	logSuccess("Workspace %s %s (%s)", ws.Ref(), done, ws.Status)
	return nil
}
