package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/app"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/quota"
)

var replanCmd = &cobra.Command{
	Use:   "replan <workspace> <plan>",
	Short: "Move a workspace to another plan",
	Long: `Applies the disk quota of another plan to an active or stopped
workspace. Known plans come from the [quota.plans] table of config.toml.`,
	Args: cobra.ExactArgs(2),
	RunE: runReplan,
}

func init() {
	rootCmd.AddCommand(replanCmd)
}

func runReplan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ws, err := resolveWorkspace(ctx, args[0])
	if err != nil {
		return err
	}

	ws, err = provisioner().ChangePlan(ctx, ws.ID, args[1])
	if err != nil {
		if ws == nil {
			logInfo("Available plans: %s", strings.Join(app.Default.Quota.Plans(), ", "))
		}
		return err
	}
	logSuccess("Workspace %s is on plan %s (%s)", ws.Ref(), ws.Plan, quota.FormatSize(ws.DiskQuotaBytes))
	return nil
}
