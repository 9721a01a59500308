package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/app"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Inspect and repair the reverse proxy route file",
}

var routesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List published routes",
	Args:  cobra.NoArgs,
	RunE:  runRoutesList,
}

var routesSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Rewrite the route file from the route table",
	Args:  cobra.NoArgs,
	RunE:  runRoutesSync,
}

func init() {
	routesCmd.AddCommand(routesListCmd)
	routesCmd.AddCommand(routesSyncCmd)
	rootCmd.AddCommand(routesCmd)
}

func runRoutesList(cmd *cobra.Command, args []string) error {
	pub := app.Default.Routes
	routes, err := pub.Routes(cmd.Context())
	if err != nil {
		return err
	}
	if len(routes) == 0 {
		logInfo("No routes published")
		return nil
	}

	// Flag rows the proxy file disagrees with.
	inFile, err := pub.Published()
	if err != nil {
		logWarning("Could not read %s: %v", pub.Path(), err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "HOSTNAME\tPORT\tWORKSPACE\tFILE")
	fmt.Fprintln(w, "--------\t----\t---------\t----")
	for _, r := range routes {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", r.Hostname, r.Port, r.WorkspaceID, boolStatus(inFile[r.Hostname] == r.Port))
	}
	return w.Flush()
}

func runRoutesSync(cmd *cobra.Command, args []string) error {
	pub := app.Default.Routes
	changed, err := pub.Sync(cmd.Context())
	if err != nil {
		return err
	}
	if changed {
		logSuccess("Rewrote %s", pub.Path())
	} else {
		logInfo("%s is up to date", pub.Path())
	}
	return nil
}
