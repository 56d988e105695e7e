package coordinator_test

import (
	"errors"
	"testing"

	"propsync/pkg/coordinator"
	"propsync/pkg/surface"
)

func testFactory(surf surface.Surface, sched coordinator.Scheduler) coordinator.Factory {
	return func(scope string) (*coordinator.Coordinator, error) {
		return coordinator.New(surf, sched, nil, coordinator.Config{Scope: scope, MaxBatchSize: 64})
	}
}

func TestRegistryCreateAndGet(t *testing.T) {
	r := coordinator.NewRegistry(testFactory(surface.NewMemory(), coordinator.NewManual()))

	c, err := r.Create("visuals")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got := c.Scope(); got != "visuals" {
		t.Fatalf("expected scope visuals got %q", got)
	}
	if _, err := r.Create("visuals"); !errors.Is(err, coordinator.ErrScopeExists) {
		t.Fatalf("expected ErrScopeExists, got %v", err)
	}
	if _, err := r.Create(""); err == nil {
		t.Fatalf("expected empty scope error")
	}
	if _, err := r.Create("  "); err == nil {
		t.Fatalf("expected blank scope error")
	}

	got, ok := r.Get("visuals")
	if !ok || got != c {
		t.Fatalf("Get returned %v ok=%v", got, ok)
	}
	if _, ok := r.Get("nope"); ok {
		t.Fatalf("expected miss for unknown scope")
	}
}

func TestRegistryNamesSorted(t *testing.T) {
	r := coordinator.NewRegistry(testFactory(surface.NewMemory(), coordinator.NewManual()))
	for _, s := range []string{"zeta", "alpha", "mid"} {
		if _, err := r.Create(s); err != nil {
			t.Fatalf("Create(%s): %v", s, err)
		}
	}
	names := r.Names()
	want := []string{"alpha", "mid", "zeta"}
	if len(names) != len(want) {
		t.Fatalf("expected %d names got %d", len(want), len(names))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v got %v", want, names)
		}
	}
}

func TestRegistryDefaultRebuildsAfterDestroy(t *testing.T) {
	r := coordinator.NewRegistry(testFactory(surface.NewMemory(), coordinator.NewManual()))

	d1, err := r.Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if got := d1.Scope(); got != coordinator.DefaultScope {
		t.Fatalf("expected default scope got %q", got)
	}

	again, err := r.Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if again != d1 {
		t.Fatalf("expected same instance before destroy")
	}

	d1.Destroy()

	d2, err := r.Default()
	if err != nil {
		t.Fatalf("Default after destroy: %v", err)
	}
	if d2 == d1 {
		t.Fatalf("expected a fresh instance after destroy")
	}
	if d2.Destroyed() {
		t.Fatalf("fresh instance reports destroyed")
	}
	if err := d2.QueueUpdate("a", "1"); err != nil {
		t.Fatalf("QueueUpdate on fresh instance: %v", err)
	}
}

func TestRegistryRemoveDiscardsPending(t *testing.T) {
	mem := surface.NewMemory()
	r := coordinator.NewRegistry(testFactory(mem, coordinator.NewManual()))

	c, err := r.Create("visuals")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := c.QueueUpdate("tile.x", "5"); err != nil {
		t.Fatalf("QueueUpdate: %v", err)
	}

	if !r.Remove("visuals") {
		t.Fatalf("expected Remove true")
	}
	if r.Remove("visuals") {
		t.Fatalf("expected Remove false on missing scope")
	}
	if _, ok := r.Get("visuals"); ok {
		t.Fatalf("removed scope still resolvable")
	}
	if !c.Destroyed() {
		t.Fatalf("removed coordinator not destroyed")
	}
	if _, err := mem.GetProperty("tile.x"); !surface.IsNotFound(err) {
		t.Fatalf("pending update applied on remove: %v", err)
	}
}

func TestRegistryFlushAll(t *testing.T) {
	mem := surface.NewMemory()
	r := coordinator.NewRegistry(testFactory(mem, coordinator.NewManual()))

	a, err := r.Create("a")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	b, err := r.Create("b")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := a.QueueUpdate("a.prop", "1"); err != nil {
		t.Fatalf("QueueUpdate: %v", err)
	}
	if err := b.QueueUpdate("b.prop", "2"); err != nil {
		t.Fatalf("QueueUpdate: %v", err)
	}

	if err := r.FlushAll(); err != nil {
		t.Fatalf("FlushAll: %v", err)
	}
	for _, name := range []string{"a.prop", "b.prop"} {
		if _, err := mem.GetProperty(name); err != nil {
			t.Fatalf("property %s not flushed: %v", name, err)
		}
	}
	if a.Pending() != 0 || b.Pending() != 0 {
		t.Fatalf("queues not drained: %d %d", a.Pending(), b.Pending())
	}
}

func TestRegistryDestroyAll(t *testing.T) {
	r := coordinator.NewRegistry(testFactory(surface.NewMemory(), coordinator.NewManual()))

	a, _ := r.Create("a")
	b, _ := r.Create("b")
	r.DestroyAll()

	if !a.Destroyed() || !b.Destroyed() {
		t.Fatalf("expected all coordinators destroyed")
	}
	if got := len(r.Names()); got != 0 {
		t.Fatalf("expected empty registry got %d names", got)
	}
}

func TestRegistryCreateOverDestroyed(t *testing.T) {
	r := coordinator.NewRegistry(testFactory(surface.NewMemory(), coordinator.NewManual()))

	c1, err := r.Create("visuals")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	c1.Destroy()

	c2, err := r.Create("visuals")
	if err != nil {
		t.Fatalf("Create over destroyed: %v", err)
	}
	if c2 == c1 {
		t.Fatalf("expected a fresh coordinator")
	}
}

func TestSharedRegistry(t *testing.T) {
	r := coordinator.NewRegistry(testFactory(surface.NewMemory(), coordinator.NewManual()))
	coordinator.SetShared(r)
	t.Cleanup(func() { coordinator.SetShared(nil) })

	if got := coordinator.Shared(); got != r {
		t.Fatalf("Shared returned a different registry")
	}
	c, err := coordinator.Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if got := c.Scope(); got != coordinator.DefaultScope {
		t.Fatalf("expected default scope got %q", got)
	}
}

func TestLibraryDefaultsFactory(t *testing.T) {
	r := coordinator.NewRegistry(nil)

	c, err := r.Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if err := c.QueueUpdate("panel.opacity", "0.5"); err != nil {
		t.Fatalf("QueueUpdate: %v", err)
	}
	if err := c.QueueUpdate("--beat-pulse", "1"); err != nil {
		t.Fatalf("QueueUpdate(critical): %v", err)
	}
	if err := c.ForceFlush(); err != nil {
		t.Fatalf("ForceFlush: %v", err)
	}
	if got := c.Metrics().FlushCount; got == 0 {
		t.Fatalf("expected at least one flush")
	}
}

func TestRegistryResetDefault(t *testing.T) {
	surf := surface.NewMemory()
	r := coordinator.NewRegistry(testFactory(surf, coordinator.NewManual()))

	first, err := r.Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if err := first.QueueUpdate("panel.opacity", "0.5"); err != nil {
		t.Fatalf("QueueUpdate: %v", err)
	}

	r.ResetDefault()

	if !first.Destroyed() {
		t.Fatalf("expected previous default to be destroyed")
	}
	second, err := r.Default()
	if err != nil {
		t.Fatalf("Default after reset: %v", err)
	}
	if second == first {
		t.Fatalf("expected a fresh default instance after reset")
	}
	if got := second.Pending(); got != 0 {
		t.Fatalf("expected 0 pending on fresh default, got %d", got)
	}
}
