package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/provision"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/quota"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/workspace"
)

var createCmd = &cobra.Command{
	Use:   "create <owner>/<name>",
	Short: "Provision a new workspace",
	Long: `Provisions a workspace for an owner: allocates a loopback port, creates
the OS account, applies the plan's disk quota, installs and starts the
service, and publishes the public hostname.

Any failure rolls back what was already done and leaves the workspace in
the error status.`,
	Args: cobra.ExactArgs(1),
	RunE: runCreate,
}

var (
	createPlan           string
	createShowCredential bool
)

func init() {
	createCmd.Flags().StringVarP(&createPlan, "plan", "p", "free", "Plan deciding the disk quota")
	createCmd.Flags().BoolVar(&createShowCredential, "show-credential", false, "Print the generated credential")
	rootCmd.AddCommand(createCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	owner, name, err := parseRef(args[0])
	if err != nil {
		return err
	}

	logInfo("Creating workspace %s/%s (plan %s)...", owner, name, createPlan)
	ws, err := provisioner().CreateWorkspace(cmd.Context(), provision.CreateRequest{
		OwnerID: owner,
		Name:    name,
		Plan:    createPlan,
	})
	if err != nil {
		if ws != nil {
			logging.Debug("create failed", "workspace", ws.ID, "status", ws.Status, "step", ws.Step)
		}
		return err
	}

	logSuccess("Workspace %s is active", ws.Ref())
	printWorkspace(cmd, ws, createShowCredential)
	return nil
}

func printWorkspace(cmd *cobra.Command, ws *workspace.Workspace, showCredential bool) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID: %s\n", ws.ID)
	fmt.Fprintf(out, "Hostname: %s\n", ws.PublicHostname)
	fmt.Fprintf(out, "Port: %d\n", ws.Port)
	fmt.Fprintf(out, "Identity: %s\n", ws.OSIdentity)
	fmt.Fprintf(out, "Quota: %s (%s)\n", quota.FormatSize(ws.DiskQuotaBytes), ws.Plan)
	if showCredential {
		fmt.Fprintf(out, "Credential: %s\n", ws.Credential)
	}
}
