package cmd

import (
	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:     "delete <workspace>",
	Aliases: []string{"rm"},
	Short:   "Delete a workspace and everything provisioned for it",
	Long: `Stops and removes the service, withdraws the route, clears the quota,
removes the OS account and releases the port. The record stays in the
deleted status until purged.

Deleting an already deleted workspace succeeds without doing anything.`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ws, err := resolveWorkspace(ctx, args[0])
	if err != nil {
		return err
	}

	logInfo("Deleting workspace %s...", ws.Ref())
	if err := provisioner().DeleteWorkspace(ctx, ws.ID); err != nil {
		return err
	}
	logSuccess("Workspace %s deleted", ws.Ref())
	return nil
}
