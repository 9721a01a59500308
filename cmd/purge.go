package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove records of deleted workspaces",
	Long: `Hard-deletes the records of workspaces that have been in the deleted
status for longer than --older-than. Their names and hostnames become
reusable immediately after delete; purge only trims history.`,
	Args: cobra.NoArgs,
	RunE: runPurge,
}

var purgeOlderThan time.Duration

func init() {
	purgeCmd.Flags().DurationVar(&purgeOlderThan, "older-than", 30*24*time.Hour, "Minimum time since deletion")
	rootCmd.AddCommand(purgeCmd)
}

func runPurge(cmd *cobra.Command, args []string) error {
	n, err := provisioner().Purge(cmd.Context(), purgeOlderThan)
	if err != nil {
		return err
	}
	if n == 0 {
		logInfo("No deleted workspaces older than %s", purgeOlderThan)
		return nil
	}
	logSuccess("Purged %d deleted workspace(s)", n)
	return nil
}
