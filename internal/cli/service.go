package cli

import (
	"github.com/spf13/cobra"
)

// runCmd starts the monitor under the service manager or in the foreground
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitor",
	Long: `Run the sync monitor. When started by the OS service manager this is the
service entry point; from a terminal it runs in the foreground until
interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return newManager().Run()
	},
}

// installCmd registers the monitor with the OS service manager
var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the monitor as an OS service",
	Long: `Register syncmonitor with the OS service manager (systemd, launchd or the
Windows service control manager) and create its data directories.

Installing usually requires elevated privileges.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newManager().InstallDaemon(); err != nil {
			return err
		}
		success("Service %s installed", cfg.ServiceName())
		hint("Start it with: syncmonitor start")
		return nil
	},
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Stop and remove the OS service",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newManager().UninstallDaemon(); err != nil {
			return err
		}
		success("Service %s removed", cfg.ServiceName())
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the installed service",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newManager().StartDaemon(); err != nil {
			return err
		}
		success("Service %s started", cfg.ServiceName())
		hint("Status API listening on %s", cfg.ListenAddr())
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the installed service",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newManager().StopDaemon(); err != nil {
			return err
		}
		success("Service %s stopped", cfg.ServiceName())
		return nil
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the installed service",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newManager().RestartDaemon(); err != nil {
			return err
		}
		success("Service %s restarted", cfg.ServiceName())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(uninstallCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(restartCmd)
}
