package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/store"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/workspace"
)

var lsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"ps"},
	Short:   "List workspaces",
	Args:    cobra.NoArgs,
	RunE:    runLs,
}

var (
	lsOwner  string
	lsAll    bool
	lsStatus []string
)

func init() {
	lsCmd.Flags().StringVar(&lsOwner, "owner", "", "Only list workspaces of this owner")
	lsCmd.Flags().BoolVarP(&lsAll, "all", "a", false, "Include deleted workspaces")
	lsCmd.Flags().StringSliceVar(&lsStatus, "status", nil, "Only list workspaces in these statuses")
	rootCmd.AddCommand(lsCmd)
}

func runLs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	opts := store.ListOptions{OwnerID: lsOwner, IncludeDeleted: lsAll}
	for _, s := range lsStatus {
		status := workspace.Status(s)
		if !status.Valid() {
			return errors.ValidationError(fmt.Sprintf("unknown status %q", s))
		}
		opts.Statuses = append(opts.Statuses, status)
	}

	workspaces, err := provisioner().ListWorkspaces(ctx, opts)
	if err != nil {
		return err
	}

	if len(workspaces) == 0 {
		logInfo("No workspaces found. Create one with: forage-ws create <owner>/<name>")
		return nil
	}

	hc := checker()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "OWNER\tNAME\tPLAN\tPORT\tHOSTNAME\tSTATUS")
	fmt.Fprintln(w, "-----\t----\t----\t----\t--------\t------")

	for _, ws := range workspaces {
		status := formatStatus(ws, hc.GetSummary(ctx, ws))
		port := "-"
		if ws.Port > 0 {
			port = fmt.Sprint(ws.Port)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			ws.OwnerID, ws.Name, ws.Plan, port, ws.PublicHostname, status)
	}

	return w.Flush()
}
