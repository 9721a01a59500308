package cmd

import (
	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/provision"
)

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Settle workspaces interrupted by a crash",
	Long: `Finds workspaces left in an intermediate status and settles them.

Interrupted creates are rolled back and left in the error status.
Interrupted stops, starts and deletes are driven to their target status.`,
	Args: cobra.NoArgs,
	RunE: runRecover,
}

func init() {
	rootCmd.AddCommand(recoverCmd)
}

func runRecover(cmd *cobra.Command, args []string) error {
	results, err := provisioner().Recover(cmd.Context())
	if err != nil {
		return err
	}
	reportRecovery(results)
	return nil
}

func reportRecovery(results []provision.RecoverResult) {
	if len(results) == 0 {
		logInfo("No interrupted workspaces found")
		return
	}
	for _, r := range results {
		if r.Err != nil {
			logWarning("%s: %s -> %s: %v", r.Ref, r.From, r.To, r.Err)
			continue
		}
		logSuccess("%s: %s -> %s", r.Ref, r.From, r.To)
	}
}
