package cmd

import (
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start <workspace>",
	Short: "Start a stopped workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTransition(cmd, args[0], "Starting", "started", provisioner().StartWorkspace)
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
