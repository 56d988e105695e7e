package coordinator

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"propsync/pkg/logger"
	"propsync/pkg/surface"
	"propsync/pkg/telemetry"
)

// DefaultMaxBatchSize bounds a batch before the oversize warning fires.
const DefaultMaxBatchSize = 64

var (
	// ErrEmptyName is returned for updates without a property name.
	ErrEmptyName = errors.New("property name must not be empty")
	// ErrDestroyed is returned by operations on a destroyed coordinator.
	ErrDestroyed = errors.New("coordinator destroyed")
)

// FailedWriteSink journals updates the surface rejected. Batched writes
// have no caller left to report to by the time they apply, so the journal
// is their only record.
type FailedWriteSink interface {
	WriteFailedWrite(scope string, u surface.Update, cause error) error
}

// Config tunes one coordinator instance.
type Config struct {
	// Scope names the coordinator in logs, metrics and snapshots.
	Scope string
	// MaxBatchSize is the observability bound on one batch; exceeding it
	// warns once per flush and never blocks or drops updates.
	MaxBatchSize int
	// Debug enables per-update debug logging.
	Debug bool
	// FailedWrites, when set, receives updates the surface rejected
	// during flush.
	FailedWrites FailedWriteSink
}

// PerformanceMetrics is a point-in-time view of a coordinator's flush
// counters.
type PerformanceMetrics struct {
	FlushCount       uint64
	AverageFlushTime time.Duration
	LastFlushAt      time.Time
	PendingUpdates   int
}

// Coordinator coalesces high-frequency property updates into one surface
// write per frame. Updates to the same name collapse to the latest value;
// names classified critical bypass the queue and hit the surface
// synchronously. Safe for concurrent use.
type Coordinator struct {
	surf     surface.Surface
	sched    Scheduler
	critical CriticalFunc
	cfg      Config

	// flushMu serializes drain+apply sequences (scheduled, forced and
	// degraded flushes) so batches reach the surface in drain order.
	flushMu sync.Mutex

	mu        sync.Mutex
	queue     map[string]string
	order     []string
	token     Token
	hasToken  bool
	gen       uint64
	oversize  bool
	oldestAt  time.Time
	destroyed bool

	flushCount  uint64
	totalFlush  time.Duration
	lastFlushAt time.Time
}

// New builds a coordinator writing to surf on frames provided by sched.
// A nil sched degrades every batched update to a synchronous flush. A nil
// critical classifier batches everything.
func New(surf surface.Surface, sched Scheduler, critical CriticalFunc, cfg Config) (*Coordinator, error) {
	if surf == nil {
		return nil, fmt.Errorf("coordinator: surface is required")
	}
	if cfg.MaxBatchSize <= 0 {
		return nil, fmt.Errorf("coordinator: max batch size must be > 0, got %d", cfg.MaxBatchSize)
	}
	if cfg.Scope == "" {
		cfg.Scope = "default"
	}
	if critical == nil {
		critical = func(string) bool { return false }
	}
	return &Coordinator{
		surf:     surf,
		sched:    sched,
		critical: critical,
		cfg:      cfg,
		queue:    make(map[string]string),
	}, nil
}

// Scope returns the coordinator's scope name.
func (c *Coordinator) Scope() string { return c.cfg.Scope }

// QueueUpdate records a pending update for name, scheduling a flush if none
// is outstanding. Critical names skip the queue and are written to the
// surface before QueueUpdate returns. When the scheduler is missing or
// refuses the request, the whole queue is flushed synchronously so the
// update is never lost.
func (c *Coordinator) QueueUpdate(name, value string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}

	if c.critical(name) {
		c.mu.Lock()
		if c.destroyed {
			c.mu.Unlock()
			return ErrDestroyed
		}
		c.mu.Unlock()
		if c.cfg.Debug {
			logger.Debug("critical_applied", "scope", c.cfg.Scope, "name", name)
		}
		return c.surf.SetProperty(name, value)
	}

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return ErrDestroyed
	}
	if _, exists := c.queue[name]; !exists {
		if len(c.order) == 0 {
			c.oldestAt = time.Now()
		}
		c.order = append(c.order, name)
	}
	c.queue[name] = value
	if len(c.order) > c.cfg.MaxBatchSize {
		// latched; one warning fires when the batch drains
		c.oversize = true
	}
	if c.cfg.Debug {
		logger.Debug("update_queued", "scope", c.cfg.Scope, "name", name, "pending", len(c.order))
	}
	if c.hasToken {
		c.mu.Unlock()
		return nil
	}

	if c.sched == nil {
		c.mu.Unlock()
		logger.Warn("scheduler_degraded", "scope", c.cfg.Scope, "reason", "missing")
		return c.forceFlush("degraded")
	}
	myGen := c.gen
	tok, err := c.sched.ScheduleFrame(func() { c.frameFlush(myGen) })
	if err != nil {
		c.mu.Unlock()
		logger.Warn("scheduler_degraded", "scope", c.cfg.Scope, "error", err)
		return c.forceFlush("degraded")
	}
	c.token = tok
	c.hasToken = true
	c.mu.Unlock()
	return nil
}

// ForceFlush cancels any scheduled flush and drains the queue synchronously.
// Flushing an empty queue is a legal no-op that still counts as an executed
// flush. On a destroyed coordinator it does nothing and returns nil.
func (c *Coordinator) ForceFlush() error {
	return c.forceFlush("forced")
}

func (c *Coordinator) forceFlush(trigger string) error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()
	c.mu.Lock()
	if c.destroyed {
		// safe no-op, like Destroy; there is nothing left to drain
		c.mu.Unlock()
		return nil
	}
	if c.hasToken && c.sched != nil {
		c.sched.CancelFrame(c.token)
	}
	updates, oversize := c.drainLocked()
	c.mu.Unlock()
	c.apply(updates, oversize, trigger)
	return nil
}

// frameFlush is the scheduled callback. The generation check makes callbacks
// that fire after an intervening ForceFlush or Destroy drained their batch
// no-ops, so a batch is never applied or counted twice.
func (c *Coordinator) frameFlush(myGen uint64) {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()
	c.mu.Lock()
	if c.destroyed || myGen != c.gen {
		c.mu.Unlock()
		return
	}
	updates, oversize := c.drainLocked()
	c.mu.Unlock()
	c.apply(updates, oversize, "frame")
}

// drainLocked snapshots the queue in insertion order and resets queue,
// token and oversize latch. Callers hold c.mu. Bumping the generation here
// invalidates any callback scheduled against the drained batch.
func (c *Coordinator) drainLocked() ([]surface.Update, bool) {
	updates := make([]surface.Update, 0, len(c.order))
	for _, name := range c.order {
		updates = append(updates, surface.Update{Name: name, Value: c.queue[name]})
	}
	oversize := c.oversize
	for k := range c.queue {
		delete(c.queue, k)
	}
	c.order = c.order[:0]
	c.token = 0
	c.hasToken = false
	c.oversize = false
	c.oldestAt = time.Time{}
	c.gen++
	return updates, oversize
}

// apply writes a drained batch to the surface and updates flush metrics.
// The queue was already reset, so producers queueing during apply start a
// fresh batch instead of racing this one.
func (c *Coordinator) apply(updates []surface.Update, oversize bool, trigger string) {
	if oversize {
		logger.Warn("flush_batch_oversize", "scope", c.cfg.Scope, "batch_size", len(updates), "max_batch_size", c.cfg.MaxBatchSize)
	}
	start := time.Now()
	if len(updates) > 0 {
		if b, ok := c.surf.(surface.Batcher); ok {
			if err := b.ApplyBatch(updates); err != nil {
				logger.Error("flush_apply_failed", "scope", c.cfg.Scope, "updates", len(updates), "error", err)
				for _, u := range updates {
					c.journalFailed(u, err)
				}
			}
		} else {
			for _, u := range updates {
				if err := c.surf.SetProperty(u.Name, u.Value); err != nil {
					logger.Error("flush_apply_failed", "scope", c.cfg.Scope, "name", u.Name, "error", err)
					c.journalFailed(u, err)
				}
			}
		}
	}
	dur := time.Since(start)

	c.mu.Lock()
	c.flushCount++
	c.totalFlush += dur
	c.lastFlushAt = time.Now()
	c.mu.Unlock()

	telemetry.TraceFlush(c.cfg.Scope, trigger, len(updates), dur)
	if c.cfg.Debug {
		logger.Debug("flush_executed", "scope", c.cfg.Scope, "trigger", trigger, "updates", len(updates), "duration", dur)
	}
}

// journalFailed records a rejected write for recovery.
func (c *Coordinator) journalFailed(u surface.Update, cause error) {
	if c.cfg.FailedWrites == nil {
		return
	}
	if err := c.cfg.FailedWrites.WriteFailedWrite(c.cfg.Scope, u, cause); err != nil {
		logger.Error("failed_write_journal_failed", "scope", c.cfg.Scope, "name", u.Name, "error", err)
	}
}

// Metrics returns a snapshot of the flush counters.
func (c *Coordinator) Metrics() PerformanceMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := PerformanceMetrics{
		FlushCount:     c.flushCount,
		LastFlushAt:    c.lastFlushAt,
		PendingUpdates: len(c.order),
	}
	if c.flushCount > 0 {
		m.AverageFlushTime = c.totalFlush / time.Duration(c.flushCount)
	}
	return m
}

// Pending returns the number of queued updates.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// OldestPendingAge returns how long the current batch has been waiting, or
// zero when nothing is pending.
func (c *Coordinator) OldestPendingAge() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.order) == 0 {
		return 0
	}
	return time.Since(c.oldestAt)
}

// Destroy cancels any scheduled flush, discards pending values without
// applying them and resets metrics. Safe to call with nothing pending and
// safe to call twice.
func (c *Coordinator) Destroy() {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return
	}
	if c.hasToken && c.sched != nil {
		c.sched.CancelFrame(c.token)
	}
	for k := range c.queue {
		delete(c.queue, k)
	}
	c.order = nil
	c.token = 0
	c.hasToken = false
	c.oversize = false
	c.oldestAt = time.Time{}
	c.gen++
	c.flushCount = 0
	c.totalFlush = 0
	c.lastFlushAt = time.Time{}
	c.destroyed = true
	logger.Info("coordinator_destroyed", "scope", c.cfg.Scope)
}

// Destroyed reports whether Destroy ran.
func (c *Coordinator) Destroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}
