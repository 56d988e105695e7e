package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// holds parsed command-line flag values and which were set
type Flags struct {
	Addr   string
	Data   string
	Config string
	Set    map[string]bool
}

// holds the results of applying environment overrides
type EnvResult struct {
	ProducerKeys map[string]struct{}
	AdminKeys    map[string]struct{}
	EnvUsed      bool
}

// holds the result of LoadEffectiveConfig
type EffectiveConfigResult struct {
	Config  *Config
	Addr    string
	DataDir string
	Source  string // "flags", "config", or "env"
	Env     EnvResult
}

// ParseConfigFlags parses command-line flags and returns them as a Flags
// struct, recording which flags were set explicitly.
func ParseConfigFlags() Flags {
	addrPtr := flag.String("addr", ":8080", "HTTP listen address")
	dataPtr := flag.String("data", "./.propsync", "data directory")
	cfgPtr := flag.String("config", "./config.yaml", "path to config file")
	flag.Parse()

	setFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })

	return Flags{Addr: *addrPtr, Data: *dataPtr, Config: *cfgPtr, Set: setFlags}
}

// ParseConfigFile loads config from file, returning the config, a found bool
// and an error.
func ParseConfigFile(flags Flags) (*Config, bool, error) {
	cfgPath := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := LoadConfigFile(cfgPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, false, nil
		}
		return nil, false, err
	}
	return cfg, true, nil
}

// ParseConfigEnvs loads PROPSYNC_* environment variables into a new Config
// and returns it with an EnvResult; the caller's config is unchanged.
func ParseConfigEnvs() (*Config, EnvResult) {
	envs := map[string]string{
		"SERVER_ADDR":     os.Getenv("PROPSYNC_SERVER_ADDR"),
		"ADDR":            os.Getenv("PROPSYNC_ADDR"),
		"SERVER_ADDRESS":  os.Getenv("PROPSYNC_SERVER_ADDRESS"),
		"SERVER_PORT":     os.Getenv("PROPSYNC_SERVER_PORT"),
		"SERVER_DATA_DIR": os.Getenv("PROPSYNC_SERVER_DATA_DIR"),
		"DATA_DIR":        os.Getenv("PROPSYNC_DATA_DIR"),

		"CORS_ORIGINS":      os.Getenv("PROPSYNC_CORS_ORIGINS"),
		"RATE_RPS":          os.Getenv("PROPSYNC_RATE_RPS"),
		"RATE_BURST":        os.Getenv("PROPSYNC_RATE_BURST"),
		"IP_WHITELIST":      os.Getenv("PROPSYNC_IP_WHITELIST"),
		"API_PRODUCER_KEYS": os.Getenv("PROPSYNC_API_PRODUCER_KEYS"),
		"API_ADMIN_KEYS":    os.Getenv("PROPSYNC_API_ADMIN_KEYS"),

		"TLS_CERT": os.Getenv("PROPSYNC_TLS_CERT"),
		"TLS_KEY":  os.Getenv("PROPSYNC_TLS_KEY"),

		"LOG_LEVEL": os.Getenv("PROPSYNC_LOG_LEVEL"),

		// coordinator
		"COORDINATOR_MAX_BATCH_SIZE": os.Getenv("PROPSYNC_COORDINATOR_MAX_BATCH_SIZE"),
		"COORDINATOR_DEBUG":          os.Getenv("PROPSYNC_COORDINATOR_DEBUG"),
		"SCHEDULER_MODE":             os.Getenv("PROPSYNC_SCHEDULER_MODE"),
		"SCHEDULER_FPS":              os.Getenv("PROPSYNC_SCHEDULER_FPS"),
		"SCHEDULER_INTERVAL":         os.Getenv("PROPSYNC_SCHEDULER_INTERVAL"),
		"CRITICAL_NAMES":             os.Getenv("PROPSYNC_CRITICAL_NAMES"),
		"CRITICAL_PREFIXES":          os.Getenv("PROPSYNC_CRITICAL_PREFIXES"),

		// surface
		"SURFACE_MODE":        os.Getenv("PROPSYNC_SURFACE_MODE"),
		"SURFACE_CACHE_SIZE":  os.Getenv("PROPSYNC_SURFACE_CACHE_SIZE"),
		"SURFACE_DISABLE_WAL": os.Getenv("PROPSYNC_SURFACE_DISABLE_WAL"),

		// janitor
		"JANITOR_ENABLED":         os.Getenv("PROPSYNC_JANITOR_ENABLED"),
		"JANITOR_CRON":            os.Getenv("PROPSYNC_JANITOR_CRON"),
		"JANITOR_MAX_PENDING_AGE": os.Getenv("PROPSYNC_JANITOR_MAX_PENDING_AGE"),
		"JANITOR_SNAPSHOT_KEEP":   os.Getenv("PROPSYNC_JANITOR_SNAPSHOT_KEEP"),

		// telemetry
		"TELEMETRY_ENABLED":        os.Getenv("PROPSYNC_TELEMETRY_ENABLED"),
		"TELEMETRY_FILE_MAX_SIZE":  os.Getenv("PROPSYNC_TELEMETRY_FILE_MAX_SIZE"),
		"TELEMETRY_FLUSH_INTERVAL": os.Getenv("PROPSYNC_TELEMETRY_FLUSH_INTERVAL"),
		"TELEMETRY_QUEUE_CAPACITY": os.Getenv("PROPSYNC_TELEMETRY_QUEUE_CAPACITY"),

		// sensor.monitor
		"SENSOR_MONITOR_POLL_INTERVAL":   os.Getenv("PROPSYNC_SENSOR_MONITOR_POLL_INTERVAL"),
		"SENSOR_MONITOR_DISK_HIGH_PCT":   os.Getenv("PROPSYNC_SENSOR_MONITOR_DISK_HIGH_PCT"),
		"SENSOR_MONITOR_DISK_LOW_PCT":    os.Getenv("PROPSYNC_SENSOR_MONITOR_DISK_LOW_PCT"),
		"SENSOR_MONITOR_HEAP_HIGH_PCT":   os.Getenv("PROPSYNC_SENSOR_MONITOR_HEAP_HIGH_PCT"),
		"SENSOR_MONITOR_HEAP_LOW_PCT":    os.Getenv("PROPSYNC_SENSOR_MONITOR_HEAP_LOW_PCT"),
		"SENSOR_MONITOR_RECOVERY_WINDOW": os.Getenv("PROPSYNC_SENSOR_MONITOR_RECOVERY_WINDOW"),
	}

	envUsed := false
	for _, v := range envs {
		if v != "" {
			envUsed = true
			break
		}
	}
	envCfg := &Config{}

	parseList := func(v string) []string {
		if v == "" {
			return nil
		}
		parts := []string{}
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				parts = append(parts, s)
			}
		}
		return parts
	}

	parseBool := func(v string) bool {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes":
			return true
		default:
			return false
		}
	}

	parseSizeBytes := func(v string) SizeBytes {
		if strings.TrimSpace(v) == "" {
			return SizeBytes(0)
		}
		if u, err := humanize.ParseBytes(v); err == nil {
			return SizeBytes(u)
		}
		if i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return SizeBytes(i)
		}
		return SizeBytes(0)
	}

	parseDuration := func(v string) Duration {
		if strings.TrimSpace(v) == "" {
			return Duration(0)
		}
		if td, err := time.ParseDuration(v); err == nil {
			return Duration(td)
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return Duration(time.Duration(f * float64(time.Second)))
		}
		return Duration(0)
	}

	applyHostPort := func(v string) {
		if h, p, err := net.SplitHostPort(v); err == nil {
			envCfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				envCfg.Server.Port = pi
			}
		} else {
			envCfg.Server.Address = v
		}
	}

	if v := envs["SERVER_ADDR"]; v != "" {
		applyHostPort(v)
	} else if v := envs["ADDR"]; v != "" {
		applyHostPort(v)
	} else {
		if host := envs["SERVER_ADDRESS"]; host != "" {
			envCfg.Server.Address = host
		}
		if port := envs["SERVER_PORT"]; port != "" {
			if pi, err := strconv.Atoi(port); err == nil {
				envCfg.Server.Port = pi
			}
		}
	}

	if v := envs["SERVER_DATA_DIR"]; v != "" {
		envCfg.Server.DataDir = v
	} else if v := envs["DATA_DIR"]; v != "" {
		envCfg.Server.DataDir = v
	}

	if v := envs["CORS_ORIGINS"]; v != "" {
		envCfg.Security.CORS.AllowedOrigins = parseList(v)
	}
	if v := envs["RATE_RPS"]; v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			envCfg.Security.RateLimit.RPS = f
		}
	}
	if v := envs["RATE_BURST"]; v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envCfg.Security.RateLimit.Burst = n
		}
	}
	if v := envs["IP_WHITELIST"]; v != "" {
		envCfg.Security.IPWhitelist = parseList(v)
	}
	if v := envs["API_PRODUCER_KEYS"]; v != "" {
		envCfg.Security.APIKeys.Producer = parseList(v)
	}
	if v := envs["API_ADMIN_KEYS"]; v != "" {
		envCfg.Security.APIKeys.Admin = parseList(v)
	}

	if c := envs["TLS_CERT"]; c != "" {
		envCfg.Server.TLS.CertFile = c
	}
	if k := envs["TLS_KEY"]; k != "" {
		envCfg.Server.TLS.KeyFile = k
	}

	if v := envs["LOG_LEVEL"]; v != "" {
		envCfg.Logging.Level = strings.TrimSpace(v)
	}

	// coordinator env overrides
	if v := envs["COORDINATOR_MAX_BATCH_SIZE"]; v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envCfg.Coordinator.MaxBatchSize = n
		}
	}
	if v := envs["COORDINATOR_DEBUG"]; v != "" {
		envCfg.Coordinator.Debug = parseBool(v)
	}
	if v := envs["SCHEDULER_MODE"]; v != "" {
		envCfg.Coordinator.Scheduler.Mode = strings.ToLower(strings.TrimSpace(v))
	}
	if v := envs["SCHEDULER_FPS"]; v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envCfg.Coordinator.Scheduler.FPS = n
		}
	}
	if v := envs["SCHEDULER_INTERVAL"]; v != "" {
		envCfg.Coordinator.Scheduler.Interval = parseDuration(v)
	}
	if v := envs["CRITICAL_NAMES"]; v != "" {
		envCfg.Coordinator.Critical.Names = parseList(v)
	}
	if v := envs["CRITICAL_PREFIXES"]; v != "" {
		envCfg.Coordinator.Critical.Prefixes = parseList(v)
	}

	// surface env overrides
	if v := envs["SURFACE_MODE"]; v != "" {
		envCfg.Surface.Mode = strings.ToLower(strings.TrimSpace(v))
	}
	if v := envs["SURFACE_CACHE_SIZE"]; v != "" {
		envCfg.Surface.CacheSize = parseSizeBytes(v)
	}
	if v := envs["SURFACE_DISABLE_WAL"]; v != "" {
		envCfg.Surface.DisableWAL = parseBool(v)
	}

	// janitor env overrides
	if v := envs["JANITOR_ENABLED"]; v != "" {
		envCfg.Janitor.Enabled = parseBool(v)
	}
	if v := envs["JANITOR_CRON"]; v != "" {
		envCfg.Janitor.Cron = v
	}
	if v := envs["JANITOR_MAX_PENDING_AGE"]; v != "" {
		envCfg.Janitor.MaxPendingAge = parseDuration(v)
	}
	if v := envs["JANITOR_SNAPSHOT_KEEP"]; v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envCfg.Janitor.SnapshotKeep = n
		}
	}

	// telemetry env overrides
	if v := envs["TELEMETRY_ENABLED"]; v != "" {
		envCfg.Telemetry.Enabled = parseBool(v)
	}
	if v := envs["TELEMETRY_FILE_MAX_SIZE"]; v != "" {
		envCfg.Telemetry.FileMaxSize = parseSizeBytes(v)
	}
	if v := envs["TELEMETRY_FLUSH_INTERVAL"]; v != "" {
		envCfg.Telemetry.FlushInterval = parseDuration(v)
	}
	if v := envs["TELEMETRY_QUEUE_CAPACITY"]; v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envCfg.Telemetry.QueueCapacity = n
		}
	}

	// sensor.monitor env overrides
	if v := envs["SENSOR_MONITOR_POLL_INTERVAL"]; v != "" {
		envCfg.Sensor.Monitor.PollInterval = parseDuration(v)
	}
	if v := envs["SENSOR_MONITOR_DISK_HIGH_PCT"]; v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envCfg.Sensor.Monitor.DiskHighPct = n
		}
	}
	if v := envs["SENSOR_MONITOR_DISK_LOW_PCT"]; v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envCfg.Sensor.Monitor.DiskLowPct = n
		}
	}
	if v := envs["SENSOR_MONITOR_HEAP_HIGH_PCT"]; v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envCfg.Sensor.Monitor.HeapHighPct = n
		}
	}
	if v := envs["SENSOR_MONITOR_HEAP_LOW_PCT"]; v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envCfg.Sensor.Monitor.HeapLowPct = n
		}
	}
	if v := envs["SENSOR_MONITOR_RECOVERY_WINDOW"]; v != "" {
		envCfg.Sensor.Monitor.RecoveryWindow = parseDuration(v)
	}

	producerKeys := make(map[string]struct{})
	for _, k := range envCfg.Security.APIKeys.Producer {
		producerKeys[k] = struct{}{}
	}
	adminKeys := make(map[string]struct{})
	for _, k := range envCfg.Security.APIKeys.Admin {
		adminKeys[k] = struct{}{}
	}

	return envCfg, EnvResult{ProducerKeys: producerKeys, AdminKeys: adminKeys, EnvUsed: envUsed}
}

// LoadEffectiveConfig decides which single source to use (flags, config file,
// or env) and returns the effective config plus resolved addr and data dir.
// If --config is set, only the config file is used; otherwise flags if set;
// else config file if present; else env.
func LoadEffectiveConfig(flags Flags, fileCfg *Config, fileExists bool, envCfg *Config, envRes EnvResult) (EffectiveConfigResult, error) {
	res := EffectiveConfigResult{Env: envRes}

	if flags.Set["config"] {
		if !fileExists {
			return res, fmt.Errorf("config file %s not found", flags.Config)
		}
		res.Config = fileCfg
		res.Addr = fileCfg.Addr()
		res.DataDir = fileCfg.Server.DataDir
		res.Source = "config"
		return res, nil
	}

	if flags.Set["addr"] || flags.Set["data"] {
		addr := flags.Addr
		if !flags.Set["addr"] {
			addr = envCfg.Addr()
			if addr == "" {
				addr = fileCfg.Addr()
			}
		}
		dataDir := flags.Data
		if !flags.Set["data"] {
			if p := strings.TrimSpace(envCfg.Server.DataDir); p != "" {
				dataDir = p
			} else if p := strings.TrimSpace(fileCfg.Server.DataDir); p != "" {
				dataDir = p
			}
		}
		out := &Config{}
		out.Server.Address, out.Server.Port = splitAddr(addr)
		out.Server.DataDir = dataDir
		res.Config = out
		res.Addr = addr
		res.DataDir = dataDir
		res.Source = "flags"
		return res, nil
	}

	if fileExists {
		res.Config = fileCfg
		res.Addr = fileCfg.Addr()
		res.DataDir = fileCfg.Server.DataDir
		res.Source = "config"
		return res, nil
	}
	res.Config = envCfg
	res.Addr = envCfg.Addr()
	res.DataDir = envCfg.Server.DataDir
	res.Source = "env"
	return res, nil
}

// splitAddr extracts host and port from a host:port string.
func splitAddr(a string) (string, int) {
	if a == "" {
		return "", 0
	}
	if h, p, err := net.SplitHostPort(a); err == nil {
		if pi, err := strconv.Atoi(p); err == nil {
			return h, pi
		}
		return h, 0
	}
	return a, 0
}
