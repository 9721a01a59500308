package cmd

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/app"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/logging"
	"github.com/firefly-engineering/firefly-forage/packages/forage-ws/internal/monitor"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run recovery, the drift monitor and the metrics endpoint",
	Long: `Settles workspaces interrupted by a crash, then periodically retries that
recovery and checks every active workspace for drift: a stopped unit, a
closed loopback port or a missing route. Drifted workspaces are restarted
when --auto-repair is set.
Prometheus metrics are served on /metrics.

Runs in the foreground until interrupted. Meant to be wrapped in a systemd
service.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveInterval    time.Duration
	serveAutoRepair  bool
	serveMetricsAddr string
)

func init() {
	serveCmd.Flags().DurationVar(&serveInterval, "interval", 0, "Drift check interval (default from config)")
	serveCmd.Flags().BoolVar(&serveAutoRepair, "auto-repair", true, "Restart drifted workspaces")
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", "", "Metrics listen address, \"off\" to disable (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a := app.Default
	cfg := a.HostConfig

	interval := serveInterval
	if interval <= 0 {
		interval = cfg.Orchestrator.MonitorInterval.Duration
	}
	addr := serveMetricsAddr
	if addr == "" {
		addr = cfg.Orchestrator.MetricsAddr
	}

	results, err := a.Provisioner.Recover(ctx)
	if err != nil {
		return err
	}
	reportRecovery(results)
	a.Provisioner.RefreshGauges(ctx)

	if addr != "" && addr != "off" {
		srv := &http.Server{Addr: addr, Handler: metricsMux(a), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logInfo("Serving metrics on http://%s/metrics", addr)
			if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				logging.Error("metrics server failed", "addr", addr, "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	opts := []monitor.Option{
		monitor.WithRecovery(a.Provisioner),
		monitor.WithRouteSync(a.Routes),
		monitor.WithAudit(a.Audit),
		monitor.WithMetrics(a.Metrics),
	}
	if serveAutoRepair {
		opts = append(opts, monitor.WithAutoRepair(a.Provisioner))
	}
	mon := monitor.New(interval, a.Store, checker(), opts...)

	logInfo("Starting drift monitor (interval: %s, auto-repair: %v)", interval, serveAutoRepair)
	err = mon.Run(ctx)
	if stderrors.Is(err, context.Canceled) {
		logInfo("Monitor stopped")
		return nil
	}
	return err
}

func metricsMux(a *app.App) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.Metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := a.Store.Ping(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}
