package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/health"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/quota"
)

var statusCmd = &cobra.Command{
	Use:   "status <workspace>",
	Short: "Show detailed status of a workspace",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ws, err := resolveWorkspace(ctx, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Workspace: %s\n", ws.Ref())
	fmt.Fprintf(out, "ID: %s\n", ws.ID)
	fmt.Fprintf(out, "Status: %s\n", ws.Status)
	fmt.Fprintf(out, "Hostname: %s\n", ws.PublicHostname)
	if ws.Port > 0 {
		fmt.Fprintf(out, "Port: %d\n", ws.Port)
	}
	if ws.OSIdentity != "" {
		fmt.Fprintf(out, "Identity: %s\n", ws.OSIdentity)
	}
	fmt.Fprintf(out, "Plan: %s (%s)\n", ws.Plan, quota.FormatSize(ws.DiskQuotaBytes))
	if ws.UnitName != "" {
		fmt.Fprintf(out, "Unit: %s\n", ws.UnitName)
	}
	if ws.Step != "" {
		fmt.Fprintf(out, "Last step: %s\n", ws.Step)
	}
	if ws.LastError != "" {
		fmt.Fprintf(out, "Last error: %s\n", ws.LastError)
	}
	fmt.Fprintf(out, "Created: %s\n", ws.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintln(out)

	result := checker().Check(ctx, ws)
	fmt.Fprintln(out, "Health Checks:")
	fmt.Fprintf(out, "  Unit: %s (%s)\n", boolStatus(result.UnitRunning), result.UnitState)
	if result.UnitRunning {
		fmt.Fprintf(out, "  Port: %s\n", boolStatus(result.PortListening))
	}
	if result.PortListening {
		fmt.Fprintf(out, "  Route: %s\n", boolStatus(result.Routed))
	}
	fmt.Fprintf(out, "  Age: %s\n", result.Age)
	fmt.Fprintf(out, "  Summary: %s\n", health.Summary(result))

	return nil
}
