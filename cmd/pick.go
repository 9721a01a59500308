package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/app"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/health"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/provision"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/store"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/tui"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/workspace"
)

var pickCmd = &cobra.Command{
	Use:   "pick",
	Short: "Interactive workspace picker",
	Long: `Opens an interactive TUI for browsing and operating on workspaces.

Use arrow keys or j/k to navigate, / to filter.

Actions:
  Enter  - Show status of the selected workspace
  s      - Start
  x      - Stop
  r      - Restart
  D      - Delete
  n      - Create a new workspace
  q/Esc  - Quit`,
	Args: cobra.NoArgs,
	RunE: runPick,
}

var pickOwner string

func init() {
	pickCmd.Flags().StringVar(&pickOwner, "owner", "", "Only show workspaces of this owner")
	rootCmd.AddCommand(pickCmd)
}

func runPick(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logging.Debug("picker mode started")

	workspaces, err := provisioner().ListWorkspaces(ctx, store.ListOptions{OwnerID: pickOwner})
	if err != nil {
		return err
	}

	plans := make(map[string]int64)
	for _, name := range app.Default.Quota.Plans() {
		if n, err := app.Default.Quota.Bytes(name); err == nil {
			plans[name] = n
		}
	}

	hc := checker()
	status := func(ws *workspace.Workspace) health.Status {
		return hc.GetSummary(ctx, ws)
	}

	if fi, err := os.Stdin.Stat(); err == nil && fi.Mode()&os.ModeCharDevice == 0 {
		fmt.Fprint(cmd.OutOrStdout(), tui.SimplePicker(workspaces, status))
		return nil
	}

	result, err := tui.RunPicker(workspaces, tui.PickerOptions{
		AllowCreate: true,
		Owner:       pickOwner,
		Plans:       plans,
		Status:      status,
	})
	if err != nil {
		return fmt.Errorf("picker error: %w", err)
	}

	logging.Debug("picker result", "action", result.Action)

	switch result.Action {
	case tui.ActionStatus:
		return runStatus(cmd, []string{result.Workspace.ID})
	case tui.ActionStart:
		return runTransition(cmd, result.Workspace.ID, "Starting", "started", provisioner().StartWorkspace)
	case tui.ActionStop:
		return runTransition(cmd, result.Workspace.ID, "Stopping", "stopped", provisioner().StopWorkspace)
	case tui.ActionRestart:
		return runTransition(cmd, result.Workspace.ID, "Restarting", "restarted", provisioner().RestartWorkspace)
	case tui.ActionDelete:
		return runDelete(cmd, []string{result.Workspace.ID})
	case tui.ActionNew:
		if result.CreateOptions == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "\nTo create a new workspace, run:")
			fmt.Fprintln(cmd.OutOrStdout(), "  forage-ws create <owner>/<name> --plan <plan>")
			return nil
		}
		return createFromWizard(cmd, result.CreateOptions)
	}

	return nil
}

func createFromWizard(cmd *cobra.Command, opts *tui.CreateOptions) error {
	logInfo("Creating workspace %s/%s (plan %s)...", opts.Owner, opts.Name, opts.Plan)
	ws, err := provisioner().CreateWorkspace(cmd.Context(), provision.CreateRequest{
		OwnerID: opts.Owner,
		Name:    opts.Name,
		Plan:    opts.Plan,
	})
	if err != nil {
		return err
	}
	logSuccess("Workspace %s is active", ws.Ref())
	printWorkspace(cmd, ws, false)
	return nil
}
