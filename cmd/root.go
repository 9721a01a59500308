package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/app"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/logging"
)

var (
	verbose    bool
	jsonOutput bool
	configDir  string
)

var rootCmd = &cobra.Command{
	Use:   "forage-ws",
	Short: "Firefly Forage workspace provisioner",
	Long: `forage-ws provisions isolated development workspaces on a single host.

Each workspace gets:
  - A dedicated OS account with a generated credential
  - A disk quota from its plan
  - A systemd service bound to a loopback port
  - A public hostname routed through the reverse proxy`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Setup(verbose, jsonOutput, os.Stderr)
		logging.SetUserOutput(cmd.OutOrStdout(), cmd.ErrOrStderr())
		if app.Default != nil {
			return nil
		}
		a, err := app.New(cmd.Context(), app.WithPaths(pathsFor(configDir)))
		if err != nil {
			return err
		}
		app.SetDefault(a)
		return nil
	},
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context; lifecycle operations already started still run to a settled
// status.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		logging.UserError("%v", err)
	}
	if app.Default != nil {
		if cerr := app.Default.Close(); cerr != nil {
			logging.Debug("failed to close app", "error", cerr)
		}
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", config.DefaultConfigDir, "Directory containing config.toml")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

func pathsFor(dir string) *config.Paths {
	p := config.DefaultPaths()
	if dir != "" {
		p.ConfigDir = dir
	}
	return p
}

// Helper aliases for user-facing output (delegates to logging package)
var (
	logInfo    = logging.UserInfo
	logSuccess = logging.UserSuccess
	logWarning = logging.UserWarning
)
