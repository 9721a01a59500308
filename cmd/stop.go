package cmd

import (
	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop <workspace>",
	Short: "Stop a running workspace",
	Long: `Stops the workspace's service and withdraws its route. The OS account,
quota and port are kept so the workspace can be started again.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTransition(cmd, args[0], "Stopping", "stopped", provisioner().StopWorkspace)
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
