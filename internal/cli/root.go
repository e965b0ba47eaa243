package cli

import (
	"context"
	"os"

	"github.com/The-Promised-Neverland/syncmonitor/internal/config"
	"github.com/The-Promised-Neverland/syncmonitor/internal/daemon"
	"github.com/The-Promised-Neverland/syncmonitor/pkg/logger"
	"github.com/spf13/cobra"
)

// cfg is loaded once per invocation before any subcommand runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "syncmonitor",
	Short: "Replication sync status monitor",
	Long: `syncmonitor listens to the replication transport, tracks the state of
every known instance and serves it over HTTP and a live event stream.

Run it in the foreground with "syncmonitor run" or install it as an OS
service with "syncmonitor install".`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.New()
		logger.Init(cfg.LogFile(), cfg.LogLevel())
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		failure("%v", err)
		os.Exit(1)
	}
}

// deferredApp builds the application only when the service manager starts
// it, so control commands never open the identity dir or bind the listener.
type deferredApp struct {
	cfg *config.Config
}

func (d deferredApp) Run(ctx context.Context) error {
	app, err := daemon.NewApplication(d.cfg)
	if err != nil {
		return err
	}
	return app.Run(ctx)
}

func newManager() *daemon.DaemonManager {
	return daemon.NewDaemonManager(cfg, deferredApp{cfg: cfg})
}
