package app

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/valyala/fasthttp"

	"propsync/internal/janitor"
	"propsync/pkg/api"
	"propsync/pkg/config"
	"propsync/pkg/coordinator"
	"propsync/pkg/logger"
	"propsync/pkg/sensor"
	"propsync/pkg/state"
	"propsync/pkg/surface"
	"propsync/pkg/telemetry"
)

const telemetryBufferSize = 64 * 1024

// App groups server state and components.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	srvFast *fasthttp.Server
	state   string

	surf      surface.Surface
	sched     coordinator.Scheduler
	reg       *coordinator.Registry
	jan       *janitor.Janitor
	hwSensor  *sensor.Sensor
	failedLog *state.FailedWriteLog
}

// New sets up resources that don't need a running context: the surface
// store, the coordinator registry and the telemetry writer. Does not start
// the janitor or http server; call Run to start those and block for
// lifecycle.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	cfg := eff.Config

	// open surface (caller ensures directories exist)
	if state.PathsVar.Surface == "" {
		return nil, fmt.Errorf("state paths not initialized")
	}
	var surf surface.Surface
	switch cfg.Surface.Mode {
	case "memory":
		surf = surface.NewMemory()
	case "", "pebble":
		p, err := surface.OpenPebble(state.PathsVar.Surface, surface.PebbleOptions{
			CacheSize:  cfg.Surface.CacheSize.Int64(),
			DisableWAL: cfg.Surface.DisableWAL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open pebble at %s: %w", state.PathsVar.Surface, err)
		}
		surf = p
	default:
		return nil, fmt.Errorf("unknown surface mode %q", cfg.Surface.Mode)
	}

	// frame source shared by every scope
	var sched coordinator.Scheduler
	switch cfg.Coordinator.Scheduler.Mode {
	case "timer":
		sched = coordinator.NewTimer(cfg.Coordinator.Scheduler.Interval.Duration())
	case "", "frame":
		sched = coordinator.NewTick(cfg.Coordinator.Scheduler.FPS)
	default:
		return nil, fmt.Errorf("unknown scheduler mode %q", cfg.Coordinator.Scheduler.Mode)
	}

	// durability summary when the pebble WAL is off: a crash can lose the
	// in-flight batch of every scope plus the unsynced memtable
	if cfg.Surface.Mode != "memory" && cfg.Surface.DisableWAL {
		var frame time.Duration
		if cfg.Coordinator.Scheduler.Mode == "timer" {
			frame = cfg.Coordinator.Scheduler.Interval.Duration()
		} else {
			frame = time.Second / time.Duration(cfg.Coordinator.Scheduler.FPS)
		}
		summaryItems := []string{
			fmt.Sprintf("frame_interval: %s", frame),
			fmt.Sprintf("max_batch_size: %s", humanize.Comma(int64(cfg.Coordinator.MaxBatchSize))),
			fmt.Sprintf("surface_cache: %s", humanize.Bytes(uint64(cfg.Surface.CacheSize.Int64()))),
			"updates_at_risk: one batch per scope plus the unsynced memtable",
		}
		logger.LogConfigSummary("config_durability_summary", summaryItems)
	}

	// surface-rejected writes are journaled under the crash dir for replay
	failedLog := state.NewFailedWriteLog(state.PathsVar.Crash)

	critical := coordinator.NewCriticalSet(cfg.Coordinator.Critical.Names, cfg.Coordinator.Critical.Prefixes)
	reg := coordinator.NewRegistry(func(scope string) (*coordinator.Coordinator, error) {
		return coordinator.New(surf, sched, critical, coordinator.Config{
			Scope:        scope,
			MaxBatchSize: cfg.Coordinator.MaxBatchSize,
			Debug:        cfg.Coordinator.Debug,
			FailedWrites: failedLog,
		})
	})
	coordinator.SetShared(reg)
	api.SetSurface(surf)

	if cfg.Telemetry.Enabled {
		if err := telemetry.Init(
			state.PathsVar.Tel,
			telemetryBufferSize,
			cfg.Telemetry.QueueCapacity,
			cfg.Telemetry.FlushInterval.Duration(),
			cfg.Telemetry.FileMaxSize.Int64(),
		); err != nil {
			return nil, fmt.Errorf("failed to start telemetry: %w", err)
		}
	}

	a := &App{
		eff:       eff,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		surf:      surf,
		sched:     sched,
		reg:       reg,
		failedLog: failedLog,
	}
	return a, nil
}

// Run starts the janitor, hardware sensor and http server, then blocks
// until context cancellation or a fatal server error.
func (a *App) Run(ctx context.Context) error {
	a.printBanner()

	if a.eff.Config.Janitor.Enabled {
		a.jan = janitor.New(a.reg, a.surf, a.eff.Config.Janitor)
		a.jan.Start()
	}

	mon := a.eff.Config.Sensor.Monitor
	a.hwSensor = sensor.NewSensor(state.PathsVar.Surface, sensor.MonitorConfig{
		PollInterval:   mon.PollInterval.Duration(),
		DiskHighPct:    mon.DiskHighPct,
		DiskLowPct:     mon.DiskLowPct,
		HeapHighPct:    mon.HeapHighPct,
		HeapLowPct:     mon.HeapLowPct,
		RecoveryWindow: mon.RecoveryWindow.Duration(),
	})
	a.hwSensor.Start()

	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Registry exposes the coordinator registry, mainly for tests.
func (a *App) Registry() *coordinator.Registry { return a.reg }
