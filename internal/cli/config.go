package cli

import (
	"fmt"
	"io"

	"github.com/The-Promised-Neverland/syncmonitor/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// effectiveConfig is the resolved configuration as printed by "syncmonitor config".
type effectiveConfig struct {
	Instance struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
		Role string `yaml:"role"`
	} `yaml:"instance"`
	Transport struct {
		URL                    string `yaml:"url"`
		StaleConnectionTimeout string `yaml:"stale_connection_timeout"`
		NormalCloseCode        int    `yaml:"normal_close_code"`
	} `yaml:"transport"`
	Monitor struct {
		MaxEventsInMemory      int    `yaml:"max_events_in_memory"`
		MaxEventsReturned      int    `yaml:"max_events_returned"`
		ProgressReportInterval string `yaml:"progress_report_interval"`
		RecentActivityWindow   string `yaml:"recent_activity_window"`
		StatusCheckInterval    string `yaml:"status_check_interval"`
		StaleCheckInterval     string `yaml:"stale_check_interval"`
		MonitoringStartDelay   string `yaml:"monitoring_start_delay"`
		StorageProbeTimeout    string `yaml:"storage_probe_timeout"`
	} `yaml:"monitor"`
	Paths struct {
		IdentityDir string `yaml:"identity_dir"`
		DataDir     string `yaml:"data_dir"`
		LogFile     string `yaml:"log_file"`
	} `yaml:"paths"`
	HTTP struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"http"`
	STUN struct {
		Server   string `yaml:"server,omitempty"`
		Interval string `yaml:"interval"`
	} `yaml:"stun"`
	Service struct {
		Name        string `yaml:"name"`
		DisplayName string `yaml:"display_name"`
	} `yaml:"service"`
	LogLevel string `yaml:"log_level"`
}

func newEffectiveConfig(c *config.Config) effectiveConfig {
	var e effectiveConfig
	e.Instance.ID = c.InstanceID()
	e.Instance.Name = c.InstanceName()
	e.Instance.Role = c.InstanceRole()
	e.Transport.URL = c.TransportURL()
	e.Transport.StaleConnectionTimeout = c.StaleConnectionTimeout().String()
	e.Transport.NormalCloseCode = c.NormalCloseCode()
	e.Monitor.MaxEventsInMemory = c.MaxEventsInMemory()
	e.Monitor.MaxEventsReturned = c.MaxEventsReturned()
	e.Monitor.ProgressReportInterval = c.ProgressReportInterval().String()
	e.Monitor.RecentActivityWindow = c.RecentActivityWindow().String()
	e.Monitor.StatusCheckInterval = c.StatusCheckInterval().String()
	e.Monitor.StaleCheckInterval = c.StaleCheckInterval().String()
	e.Monitor.MonitoringStartDelay = c.MonitoringStartDelay().String()
	e.Monitor.StorageProbeTimeout = c.StorageProbeTimeout().String()
	e.Paths.IdentityDir = c.IdentityDir()
	e.Paths.DataDir = c.DataDir()
	e.Paths.LogFile = c.LogFile()
	e.HTTP.ListenAddr = c.ListenAddr()
	e.STUN.Server = c.StunServerAddr()
	e.STUN.Interval = c.StunInterval().String()
	e.Service.Name = c.ServiceName()
	e.Service.DisplayName = c.ServiceDisplayName()
	e.LogLevel = c.LogLevel().String()
	return e
}

func writeConfig(w io.Writer, c *config.Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(newEffectiveConfig(c)); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration resolved from the environment and .env file,
with defaults applied, as YAML.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeConfig(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
