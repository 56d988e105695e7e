package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Security    SecurityConfig    `yaml:"security"`
	Logging     LoggingConfig     `yaml:"logging"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Surface     SurfaceConfig     `yaml:"surface"`
	Janitor     JanitorConfig     `yaml:"janitor"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Sensor      SensorConfig      `yaml:"sensor"`
}

// ServerConfig holds listen address and data layout settings.
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`
	TLS     struct {
		CertFile string `yaml:"cert_file"`
		KeyFile  string `yaml:"key_file"`
	} `yaml:"tls"`
}

// SecurityConfig holds API access settings.
type SecurityConfig struct {
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	IPWhitelist []string `yaml:"ip_whitelist"`
	APIKeys     struct {
		Producer []string `yaml:"producer"`
		Admin    []string `yaml:"admin"`
	} `yaml:"api_keys"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// CoordinatorConfig controls batching and the critical bypass set for the
// daemon's coordinators.
type CoordinatorConfig struct {
	MaxBatchSize int             `yaml:"max_batch_size"`
	Debug        bool            `yaml:"debug"`
	Scheduler    SchedulerConfig `yaml:"scheduler"`
	Critical     CriticalConfig  `yaml:"critical"`
}

// SchedulerConfig selects and tunes the frame source.
type SchedulerConfig struct {
	Mode     string   `yaml:"mode"` // "frame" or "timer"
	FPS      int      `yaml:"fps"`
	Interval Duration `yaml:"interval"`
}

// CriticalConfig lists property names and prefixes that bypass batching.
type CriticalConfig struct {
	Names    []string `yaml:"names"`
	Prefixes []string `yaml:"prefixes"`
}

// SurfaceConfig selects the target property store backing the daemon.
type SurfaceConfig struct {
	Mode      string    `yaml:"mode"` // "pebble" or "memory"
	CacheSize SizeBytes `yaml:"cache_size"`
	// DisableWAL turns off the underlying Pebble WAL. Property values are
	// reconstructible from producers, so trading durability for write
	// throughput is a supported mode.
	DisableWAL bool `yaml:"disable_wal"`
}

// JanitorConfig holds configuration for the scheduled maintenance runner.
type JanitorConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Cron          string   `yaml:"cron"`
	MaxPendingAge Duration `yaml:"max_pending_age"`
	SnapshotKeep  int      `yaml:"snapshot_keep"`
}

// TelemetryConfig controls the JSONL flush trace writer.
type TelemetryConfig struct {
	Enabled       bool      `yaml:"enabled"`
	FileMaxSize   SizeBytes `yaml:"file_max_size"`
	FlushInterval Duration  `yaml:"flush_interval"`
	QueueCapacity int       `yaml:"queue_capacity"`
}

// SensorConfig holds sensor related tuning knobs.
type SensorConfig struct {
	Monitor struct {
		PollInterval   Duration `yaml:"poll_interval"`
		DiskHighPct    int      `yaml:"disk_high_pct"`
		DiskLowPct     int      `yaml:"disk_low_pct"`
		HeapHighPct    int      `yaml:"heap_high_pct"`
		HeapLowPct     int      `yaml:"heap_low_pct"`
		RecoveryWindow Duration `yaml:"recovery_window"`
	} `yaml:"monitor"`
}

// SizeBytes represents a number of bytes, unmarshaled from human-friendly
// strings like "64MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*s = 0
		return nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		*s = SizeBytes(v)
		return nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*s = SizeBytes(i)
		return nil
	}
	return fmt.Errorf("invalid size value: %q", node.Value)
}

func (s SizeBytes) Int64() int64 { return int64(s) }

// Duration wraps time.Duration and supports YAML parsing from strings like
// "100ms" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	// allow numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

// MarshalYAML renders the duration in time.Duration string form so config
// dumps stay readable and re-parseable.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}
