package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/The-Promised-Neverland/syncmonitor/pkg/instanceid"
	"github.com/The-Promised-Neverland/syncmonitor/pkg/logger"
	"github.com/joho/godotenv"
)

// Config holds monitor configuration. Fields are unexported to prevent modification.
type Config struct {
	instanceID         string
	instanceName       string
	instanceRole       string
	transportURL       string
	listenAddr         string
	identityDir        string
	dataDir            string
	stunServerAddr     string
	stunInterval       time.Duration
	logFile            string
	logLevel           slog.Level
	serviceName        string
	serviceDisplayName string
	serviceDescription string

	maxEventsInMemory      int
	maxEventsReturned      int
	statusCheckInterval    time.Duration
	staleCheckInterval     time.Duration
	progressReportInterval time.Duration
	recentActivityWindow   time.Duration
	monitoringStartDelay   time.Duration
	normalCloseCode        int
	storageProbeTimeout    time.Duration
	staleConnectionTimeout time.Duration
}

func defaultHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".syncmonitor")
}

func New() *Config {
	_ = godotenv.Load() // ignore error if .env not found

	home := defaultHomeDir()
	instanceID := os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		instanceID = instanceid.Generate()
	}

	return &Config{
		instanceID:         instanceID,
		instanceName:       getEnv("INSTANCE_NAME", "Local Node"),
		instanceRole:       getEnv("INSTANCE_ROLE", "archive"),
		transportURL:       getEnv("TRANSPORT_URL", "ws://127.0.0.1:8765"),
		listenAddr:         getEnv("LISTEN_ADDR", ":8090"),
		identityDir:        getEnv("IDENTITY_DIR", filepath.Join(home, "identity")),
		dataDir:            getEnv("DATA_DIR", home),
		stunServerAddr:     os.Getenv("STUN_SERVER"),
		stunInterval:       getDuration("STUN_INTERVAL", 5*time.Minute),
		logFile:            getEnv("LOG_FILE", "syncmonitor.log"),
		logLevel:           logger.ParseLevel(os.Getenv("LOG_LEVEL")),
		serviceName:        getEnv("SERVICE_NAME", "SyncMonitor"),
		serviceDisplayName: getEnv("SERVICE_DISPLAY_NAME", "Replication Sync Monitor"),
		serviceDescription: getEnv("SERVICE_DESCRIPTION", "Aggregates replication transport events into a queryable status model"),

		maxEventsInMemory:      getInt("MAX_EVENTS_IN_MEMORY", 1000),
		maxEventsReturned:      getInt("MAX_EVENTS_RETURNED", 100),
		statusCheckInterval:    getDuration("STATUS_CHECK_INTERVAL", 5*time.Second),
		staleCheckInterval:     getDuration("STALE_CHECK_INTERVAL", 2*time.Second),
		progressReportInterval: getDuration("PROGRESS_REPORT_INTERVAL", time.Second),
		recentActivityWindow:   getDuration("RECENT_ACTIVITY_WINDOW", time.Hour),
		monitoringStartDelay:   getDuration("MONITORING_START_DELAY", 3*time.Second),
		normalCloseCode:        getInt("NORMAL_CLOSE_CODE", 1000),
		storageProbeTimeout:    getDuration("STORAGE_PROBE_TIMEOUT", 2*time.Second),
		staleConnectionTimeout: getDuration("STALE_CONNECTION_TIMEOUT", time.Minute),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		logger.Log.Warn("invalid duration for env var, using default",
			"key", key, "value", v, "default", fallback)
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		logger.Log.Warn("invalid integer for env var, using default",
			"key", key, "value", v, "default", fallback)
		return fallback
	}
	return n
}

// Getter methods (immutable from outside)

func (c *Config) InstanceID() string {
	return c.instanceID
}

func (c *Config) InstanceName() string {
	return c.instanceName
}

func (c *Config) InstanceRole() string {
	return c.instanceRole
}

func (c *Config) TransportURL() string {
	return c.transportURL
}

func (c *Config) ListenAddr() string {
	return c.listenAddr
}

func (c *Config) IdentityDir() string {
	return c.identityDir
}

func (c *Config) DataDir() string {
	return c.dataDir
}

func (c *Config) StunServerAddr() string {
	return c.stunServerAddr
}

func (c *Config) StunInterval() time.Duration {
	return c.stunInterval
}

func (c *Config) LogFile() string {
	return c.logFile
}

func (c *Config) LogLevel() slog.Level {
	return c.logLevel
}

func (c *Config) ServiceName() string {
	return c.serviceName
}

func (c *Config) ServiceDisplayName() string {
	return c.serviceDisplayName
}

func (c *Config) ServiceDescription() string {
	return c.serviceDescription
}

func (c *Config) MaxEventsInMemory() int {
	return c.maxEventsInMemory
}

func (c *Config) MaxEventsReturned() int {
	return c.maxEventsReturned
}

func (c *Config) StatusCheckInterval() time.Duration {
	return c.statusCheckInterval
}

func (c *Config) StaleCheckInterval() time.Duration {
	return c.staleCheckInterval
}

func (c *Config) ProgressReportInterval() time.Duration {
	return c.progressReportInterval
}

func (c *Config) RecentActivityWindow() time.Duration {
	return c.recentActivityWindow
}

func (c *Config) MonitoringStartDelay() time.Duration {
	return c.monitoringStartDelay
}

func (c *Config) NormalCloseCode() int {
	return c.normalCloseCode
}

func (c *Config) StorageProbeTimeout() time.Duration {
	return c.storageProbeTimeout
}

func (c *Config) StaleConnectionTimeout() time.Duration {
	return c.staleConnectionTimeout
}
