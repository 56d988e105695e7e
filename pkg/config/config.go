package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"gopkg.in/yaml.v3"

	"propsync/pkg/logger"
)

// Defaults for coordinator, surface, janitor, telemetry and sensor tuning.
const (
	defaultMaxBatchSize = 64

	defaultSchedulerMode     = "frame"
	defaultSchedulerFPS      = 60
	defaultSchedulerInterval = 16 * time.Millisecond
	maxSchedulerFPS          = 240

	defaultSurfaceMode      = "pebble"
	defaultSurfaceCacheSize = 64 * 1024 * 1024 // 64 MiB

	defaultJanitorCron          = "* * * * *" // every minute
	defaultJanitorMaxPendingAge = 30 * time.Second
	defaultJanitorSnapshotKeep  = 720

	defaultTelemetryFileMaxSize   = 40 * 1024 * 1024 // 40MB
	defaultTelemetryFlushInterval = 2 * time.Second
	defaultTelemetryQueueCapacity = 2048

	defaultSensorPollInterval   = 500 * time.Millisecond
	defaultSensorDiskHighPct    = 80
	defaultSensorDiskLowPct     = 60
	defaultSensorHeapHighPct    = 80
	defaultSensorHeapLowPct     = 60
	defaultSensorRecoveryWindow = 5 * time.Second

	defaultRateRPS   = 1000
	defaultRateBurst = 1000
)

var (
	currentMu  sync.RWMutex
	currentCfg *Config
)

// Set installs cfg as the process-wide configuration.
func Set(cfg *Config) {
	currentMu.Lock()
	defer currentMu.Unlock()
	currentCfg = cfg
}

// Get returns the process-wide configuration. It returns an empty config if
// Set was never called so callers can read defaults without nil checks.
func Get() *Config {
	currentMu.RLock()
	defer currentMu.RUnlock()
	if currentCfg == nil {
		return &Config{}
	}
	return currentCfg
}

// Addr returns the HTTP server address as host:port.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	port := c.Server.Port
	if port == 0 {
		port = 8080
	}
	return fmt.Sprintf("%s:%d", addr, port)
}

// LoadConfigFile reads and parses a config file.
func LoadConfigFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %w", err)
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ValidateConfig applies defaults and validates values in the config. It
// mutates the receiver to fill in missing defaults and returns an error if
// any configuration value is invalid.
func (c *Config) ValidateConfig() error {
	// Coordinator defaults
	if c.Coordinator.MaxBatchSize < 0 {
		return fmt.Errorf("coordinator.max_batch_size must be positive, got %d", c.Coordinator.MaxBatchSize)
	}
	if c.Coordinator.MaxBatchSize == 0 {
		c.Coordinator.MaxBatchSize = defaultMaxBatchSize
	}

	// Scheduler defaults
	sc := &c.Coordinator.Scheduler
	if sc.Mode == "" {
		sc.Mode = defaultSchedulerMode
	}
	if sc.Mode != "frame" && sc.Mode != "timer" {
		return fmt.Errorf("coordinator.scheduler.mode must be \"frame\" or \"timer\", got %q", sc.Mode)
	}
	if sc.FPS < 0 {
		return fmt.Errorf("coordinator.scheduler.fps must be positive, got %d", sc.FPS)
	}
	if sc.FPS == 0 {
		sc.FPS = defaultSchedulerFPS
	} else if sc.FPS > maxSchedulerFPS {
		logger.Warn("scheduler_fps_capped", "requested", sc.FPS, "capped_to", maxSchedulerFPS)
		sc.FPS = maxSchedulerFPS
	}
	if sc.Interval.Duration() == 0 {
		sc.Interval = Duration(defaultSchedulerInterval)
	}

	// Critical defaults: with nothing configured, beat-driven properties
	// bypass batching.
	cr := &c.Coordinator.Critical
	if len(cr.Names) == 0 && len(cr.Prefixes) == 0 {
		cr.Prefixes = []string{"--beat-"}
	}

	// Surface defaults
	if c.Surface.Mode == "" {
		c.Surface.Mode = defaultSurfaceMode
	}
	if c.Surface.Mode != "pebble" && c.Surface.Mode != "memory" {
		return fmt.Errorf("surface.mode must be \"pebble\" or \"memory\", got %q", c.Surface.Mode)
	}
	if c.Surface.CacheSize.Int64() == 0 {
		c.Surface.CacheSize = SizeBytes(defaultSurfaceCacheSize)
	}

	// Janitor defaults
	if c.Janitor.Cron == "" {
		c.Janitor.Cron = defaultJanitorCron
	}
	if !gronx.IsValid(c.Janitor.Cron) {
		return fmt.Errorf("invalid janitor cron expression: %s", c.Janitor.Cron)
	}
	if c.Janitor.MaxPendingAge.Duration() == 0 {
		c.Janitor.MaxPendingAge = Duration(defaultJanitorMaxPendingAge)
	}
	if c.Janitor.SnapshotKeep < 0 {
		return fmt.Errorf("janitor.snapshot_keep must be positive, got %d", c.Janitor.SnapshotKeep)
	}
	if c.Janitor.SnapshotKeep == 0 {
		c.Janitor.SnapshotKeep = defaultJanitorSnapshotKeep
	}

	// Telemetry defaults
	if c.Telemetry.FileMaxSize.Int64() == 0 {
		c.Telemetry.FileMaxSize = SizeBytes(defaultTelemetryFileMaxSize)
	}
	if c.Telemetry.FlushInterval.Duration() == 0 {
		c.Telemetry.FlushInterval = Duration(defaultTelemetryFlushInterval)
	}
	if c.Telemetry.QueueCapacity <= 0 {
		c.Telemetry.QueueCapacity = defaultTelemetryQueueCapacity
	}

	// Security defaults: rate limiting
	if c.Security.RateLimit.RPS <= 0 {
		c.Security.RateLimit.RPS = defaultRateRPS
	}
	if c.Security.RateLimit.Burst <= 0 {
		c.Security.RateLimit.Burst = defaultRateBurst
	}

	// Sensor monitor defaults
	if c.Sensor.Monitor.PollInterval.Duration() == 0 {
		c.Sensor.Monitor.PollInterval = Duration(defaultSensorPollInterval)
	}
	if c.Sensor.Monitor.DiskHighPct == 0 {
		c.Sensor.Monitor.DiskHighPct = defaultSensorDiskHighPct
	}
	if c.Sensor.Monitor.DiskLowPct == 0 {
		c.Sensor.Monitor.DiskLowPct = defaultSensorDiskLowPct
	}
	if c.Sensor.Monitor.HeapHighPct == 0 {
		c.Sensor.Monitor.HeapHighPct = defaultSensorHeapHighPct
	}
	if c.Sensor.Monitor.HeapLowPct == 0 {
		c.Sensor.Monitor.HeapLowPct = defaultSensorHeapLowPct
	}
	if c.Sensor.Monitor.RecoveryWindow.Duration() == 0 {
		c.Sensor.Monitor.RecoveryWindow = Duration(defaultSensorRecoveryWindow)
	}

	return nil
}

// ResolveConfigPath returns the config file path, preferring flag, then env.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("PROPSYNC_SERVER_CONFIG"); p != "" {
		return p
	}
	if p := os.Getenv("PROPSYNC_CONFIG"); p != "" {
		return p
	}
	return flagPath
}
