package janitor_test

import (
	"testing"
	"time"

	"propsync/internal/janitor"
	"propsync/pkg/config"
	"propsync/pkg/coordinator"
	"propsync/pkg/surface"
)

func newTestRegistry(surf surface.Surface) *coordinator.Registry {
	sched := coordinator.NewManual()
	return coordinator.NewRegistry(func(scope string) (*coordinator.Coordinator, error) {
		return coordinator.New(surf, sched, nil, coordinator.Config{Scope: scope, MaxBatchSize: 64})
	})
}

func TestRunOnceFlushesStaleScopes(t *testing.T) {
	surf := surface.NewMemory()
	reg := newTestRegistry(surf)

	c, err := reg.Default()
	if err != nil {
		t.Fatalf("default coordinator: %v", err)
	}
	if err := c.QueueUpdate("panel.x", "10"); err != nil {
		t.Fatalf("queue: %v", err)
	}

	j := janitor.New(reg, surf, config.JanitorConfig{
		MaxPendingAge: config.Duration(time.Nanosecond),
		SnapshotKeep:  10,
	})
	time.Sleep(5 * time.Millisecond)
	if err := j.RunOnce(); err != nil {
		t.Fatalf("run once: %v", err)
	}

	if c.Pending() != 0 {
		t.Fatalf("expected stale queue flushed got %d pending", c.Pending())
	}
	p, err := surf.GetProperty("panel.x")
	if err != nil {
		t.Fatalf("property missing after stale flush: %v", err)
	}
	if p.Value != "10" {
		t.Fatalf("expected 10 got %q", p.Value)
	}
}

func TestRunOnceLeavesFreshScopesAlone(t *testing.T) {
	surf := surface.NewMemory()
	reg := newTestRegistry(surf)

	c, _ := reg.Default()
	if err := c.QueueUpdate("panel.x", "10"); err != nil {
		t.Fatalf("queue: %v", err)
	}

	j := janitor.New(reg, surf, config.JanitorConfig{
		MaxPendingAge: config.Duration(time.Hour),
		SnapshotKeep:  10,
	})
	if err := j.RunOnce(); err != nil {
		t.Fatalf("run once: %v", err)
	}

	if c.Pending() != 1 {
		t.Fatalf("expected fresh queue untouched got %d pending", c.Pending())
	}
}

func TestRunOncePersistsSnapshots(t *testing.T) {
	surf := surface.NewMemory()
	reg := newTestRegistry(surf)

	if _, err := reg.Create("hud"); err != nil {
		t.Fatalf("create scope: %v", err)
	}
	c, _ := reg.Default()
	if err := c.QueueUpdate("a", "1"); err != nil {
		t.Fatalf("queue: %v", err)
	}
	if err := c.ForceFlush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	j := janitor.New(reg, surf, config.JanitorConfig{
		MaxPendingAge: config.Duration(time.Hour),
		SnapshotKeep:  10,
	})
	if err := j.RunOnce(); err != nil {
		t.Fatalf("run once: %v", err)
	}

	snaps, err := surf.ListSnapshots(0)
	if err != nil {
		t.Fatalf("list snapshots: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("expected one snapshot per scope got %d", len(snaps))
	}
	byScope := make(map[string]bool)
	for _, s := range snaps {
		byScope[s.Scope] = true
		if s.TS == 0 {
			t.Fatalf("snapshot missing timestamp: %+v", s)
		}
	}
	if !byScope[coordinator.DefaultScope] || !byScope["hud"] {
		t.Fatalf("expected default and hud snapshots got %v", byScope)
	}
	for _, s := range snaps {
		if s.Scope == coordinator.DefaultScope && s.FlushCount != 1 {
			t.Fatalf("expected flush_count=1 for default got %d", s.FlushCount)
		}
	}
}

func TestRunOncePrunesSnapshots(t *testing.T) {
	surf := surface.NewMemory()
	reg := newTestRegistry(surf)

	if _, err := reg.Default(); err != nil {
		t.Fatalf("default coordinator: %v", err)
	}

	j := janitor.New(reg, surf, config.JanitorConfig{
		MaxPendingAge: config.Duration(time.Hour),
		SnapshotKeep:  2,
	})
	for i := 0; i < 5; i++ {
		if err := j.RunOnce(); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	snaps, err := surf.ListSnapshots(0)
	if err != nil {
		t.Fatalf("list snapshots: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("expected snapshots pruned to 2 got %d", len(snaps))
	}
}

func TestStopIsIdempotent(t *testing.T) {
	surf := surface.NewMemory()
	reg := newTestRegistry(surf)

	j := janitor.New(reg, surf, config.JanitorConfig{Cron: "* * * * *"})
	j.Start()
	j.Stop()
	j.Stop()
}
