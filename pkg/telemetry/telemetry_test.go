package telemetry_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"propsync/pkg/telemetry"
)

func TestTelemetryWritesPerScopeTraces(t *testing.T) {
	dir := t.TempDir()
	tel, err := telemetry.New(dir, 4096, 64, 50*time.Millisecond, 1<<20)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tel.TraceFlush("default", "frame", 3, 2*time.Millisecond)
	tel.TraceFlush("default", "forced", 1, time.Millisecond)
	tel.TraceFlush("hud", "frame", 2, time.Millisecond)
	tel.Close()

	readLines := func(name string) []string {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		return strings.Split(strings.TrimSpace(string(data)), "\n")
	}

	defLines := readLines("default.jsonl")
	if len(defLines) != 2 {
		t.Fatalf("expected 2 default traces, got %d", len(defLines))
	}
	hudLines := readLines("hud.jsonl")
	if len(hudLines) != 1 {
		t.Fatalf("expected 1 hud trace, got %d", len(hudLines))
	}

	var tr telemetry.FlushTrace
	if err := json.Unmarshal([]byte(defLines[0]), &tr); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if tr.Scope != "default" || tr.Trigger != "frame" || tr.Updates != 3 {
		t.Fatalf("unexpected trace %+v", tr)
	}
	if tr.DurationMS <= 0 {
		t.Fatalf("expected positive duration, got %f", tr.DurationMS)
	}
	if tr.TS.IsZero() {
		t.Fatalf("expected timestamp on trace")
	}
}

func TestTelemetryCloseIdempotent(t *testing.T) {
	dir := t.TempDir()
	tel, err := telemetry.New(dir, 4096, 8, 50*time.Millisecond, 1<<20)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tel.TraceFlush("default", "frame", 1, time.Millisecond)
	tel.Close()
	tel.Close()
}

func TestGlobalTraceFlushNoopWithoutInit(t *testing.T) {
	// must not panic when telemetry is disabled
	telemetry.TraceFlush("default", "frame", 1, time.Millisecond)
}
