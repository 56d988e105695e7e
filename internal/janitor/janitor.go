package janitor

import (
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"propsync/pkg/config"
	"propsync/pkg/coordinator"
	"propsync/pkg/logger"
	"propsync/pkg/models"
	"propsync/pkg/surface"
	"propsync/pkg/timeutil"
)

// Janitor runs scheduled maintenance over the coordinator registry: it
// force-flushes scopes whose pending batch has been waiting longer than the
// configured age, persists per-scope metrics snapshots to the surface and
// prunes old snapshots. Runs never overlap; a tick that arrives while one is
// in progress is skipped.
type Janitor struct {
	reg  *coordinator.Registry
	surf surface.Surface
	cfg  config.JanitorConfig

	mu      sync.Mutex
	running bool

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New builds a janitor over the registry and surface. Call Start to launch
// the schedule loop.
func New(reg *coordinator.Registry, surf surface.Surface, cfg config.JanitorConfig) *Janitor {
	return &Janitor{reg: reg, surf: surf, cfg: cfg, stopCh: make(chan struct{})}
}

// Start launches the schedule loop in the background.
func (j *Janitor) Start() {
	logger.Info("janitor_enabled", "cron", j.cfg.Cron)
	j.wg.Add(1)
	go j.scheduleLoop()
}

// Stop halts the schedule loop and waits for an in-flight run to finish.
// Safe to call twice.
func (j *Janitor) Stop() {
	j.stopOnce.Do(func() { close(j.stopCh) })
	j.wg.Wait()
}

func (j *Janitor) scheduleLoop() {
	defer j.wg.Done()
	for {
		now := timeutil.Now()
		next, err := gronx.NextTickAfter(j.cfg.Cron, now, false)
		if err != nil {
			logger.Error("janitor_nexttick_failed", "cron", j.cfg.Cron, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-j.stopCh:
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait <= 0 {
			j.runJob()
			select {
			case <-time.After(time.Second):
			case <-j.stopCh:
				return
			}
			continue
		}

		select {
		case <-time.After(wait):
			j.runJob()
		case <-j.stopCh:
			return
		}
	}
}

func (j *Janitor) runJob() {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return
	}
	j.running = true
	j.mu.Unlock()

	defer func() {
		j.mu.Lock()
		j.running = false
		j.mu.Unlock()
	}()

	if err := j.RunOnce(); err != nil {
		logger.Error("janitor_run_error", "error", err)
	}
}

// RunOnce executes a single maintenance pass.
func (j *Janitor) RunOnce() error {
	runID := fmt.Sprintf("run-%d", timeutil.Now().UnixNano())
	logger.Info("janitor_run_start", "run_id", runID)

	flushed := j.flushStale()
	saved := j.snapshotMetrics()
	pruned := j.pruneSnapshots()

	logger.Info("janitor_run_done", "run_id", runID, "flushed", flushed, "snapshots", saved, "pruned", pruned)
	return nil
}

// flushStale forces a flush on every coordinator whose oldest pending update
// has waited longer than max_pending_age.
func (j *Janitor) flushStale() int {
	maxAge := j.cfg.MaxPendingAge.Duration()
	if maxAge <= 0 {
		return 0
	}
	var flushed int
	for _, c := range j.reg.All() {
		age := c.OldestPendingAge()
		if age <= maxAge {
			continue
		}
		if err := c.ForceFlush(); err != nil {
			logger.Error("janitor_stale_flush_failed", "scope", c.Scope(), "age", age, "error", err)
			continue
		}
		flushed++
		logger.Info("janitor_stale_flush", "scope", c.Scope(), "age", age)
	}
	return flushed
}

// snapshotMetrics persists one metrics snapshot per live scope. Surfaces
// without snapshot support are skipped.
func (j *Janitor) snapshotMetrics() int {
	snapper, ok := j.surf.(surface.Snapshotter)
	if !ok {
		return 0
	}
	now := timeutil.Now().UnixNano()
	var saved int
	for _, c := range j.reg.All() {
		m := c.Metrics()
		snap := models.MetricsSnapshot{
			Scope:          c.Scope(),
			TS:             now,
			FlushCount:     m.FlushCount,
			AvgFlushMs:     float64(m.AverageFlushTime) / float64(time.Millisecond),
			PendingUpdates: m.PendingUpdates,
		}
		if !m.LastFlushAt.IsZero() {
			snap.LastFlushTS = m.LastFlushAt.UnixNano()
		}
		if err := snapper.SaveSnapshot(snap); err != nil {
			logger.Error("janitor_snapshot_save_failed", "scope", c.Scope(), "error", err)
			continue
		}
		saved++
	}
	return saved
}

// pruneSnapshots trims persisted snapshots down to snapshot_keep entries.
func (j *Janitor) pruneSnapshots() int {
	snapper, ok := j.surf.(surface.Snapshotter)
	if !ok || j.cfg.SnapshotKeep <= 0 {
		return 0
	}
	pruned, err := snapper.PruneSnapshots(j.cfg.SnapshotKeep)
	if err != nil {
		logger.Error("janitor_snapshot_prune_failed", "error", err)
		return 0
	}
	return pruned
}
