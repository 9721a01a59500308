package cmd

import (
	"github.com/spf13/cobra"
)

var restartCmd = &cobra.Command{
	Use:   "restart <workspace>",
	Short: "Restart a running workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTransition(cmd, args[0], "Restarting", "restarted", provisioner().RestartWorkspace)
	},
}

func init() {
	rootCmd.AddCommand(restartCmd)
}
