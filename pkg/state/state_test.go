package state_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"propsync/pkg/state"
	"propsync/pkg/surface"
)

func TestEnsureStateDirsCreatesLayout(t *testing.T) {
	dir := t.TempDir()
	if err := state.EnsureStateDirs(dir); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	p := state.PathsFor(dir)
	for _, d := range []string{p.Surface, p.Tmp, p.Tel, p.Logs, p.Crash} {
		fi, err := os.Stat(d)
		if err != nil {
			t.Fatalf("expected %s to exist, got %v", d, err)
		}
		if !fi.IsDir() {
			t.Fatalf("expected %s to be a directory", d)
		}
	}
}

func TestEnsureStateDirsIdempotent(t *testing.T) {
	dir := t.TempDir()
	if err := state.EnsureStateDirs(dir); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := state.EnsureStateDirs(dir); err != nil {
		t.Fatalf("second run: %v", err)
	}
}

func TestEnsureStateDirsRejectsSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "elsewhere")
	if err := os.MkdirAll(target, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.Symlink(target, filepath.Join(dir, "surface")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	err := state.EnsureStateDirs(dir)
	if err == nil {
		t.Fatalf("expected symlink rejection, got nil")
	}
	if !strings.Contains(err.Error(), "symlink") {
		t.Fatalf("expected symlink error, got %v", err)
	}
}

func TestEnsureStateDirsRejectsFileCollision(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(dir, "state")
	if err := os.MkdirAll(statePath, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(statePath, "tmp"), []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	err := state.EnsureStateDirs(dir)
	if err == nil {
		t.Fatalf("expected error for file in place of directory, got nil")
	}
	if !strings.Contains(err.Error(), "not a directory") {
		t.Fatalf("expected not-a-directory error, got %v", err)
	}
}

func TestPathsForLayout(t *testing.T) {
	p := state.PathsFor("/data")
	if p.Surface != filepath.Join("/data", "surface") {
		t.Fatalf("expected surface under data dir, got %s", p.Surface)
	}
	if p.Crash != filepath.Join("/data", "state", "crash") {
		t.Fatalf("expected crash under state dir, got %s", p.Crash)
	}
	if state.TelPath("/data") != p.Tel {
		t.Fatalf("expected helper to match PathsFor, got %s vs %s", state.TelPath("/data"), p.Tel)
	}
}

func TestFailedWriteLogJournals(t *testing.T) {
	dir := t.TempDir()
	fw := state.NewFailedWriteLog(dir)
	defer fw.Close()

	cause := errors.New("store rejected write")
	if err := fw.WriteFailedWrite("default", surface.Update{Name: "panel.opacity", Value: "0.4"}, cause); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if err := fw.WriteFailedWrite("hud", surface.Update{Name: "width", Value: "120"}, cause); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 journal file, got %d", len(entries))
	}
	if !strings.HasPrefix(entries[0].Name(), "failed_writes_") || !strings.HasSuffix(entries[0].Name(), ".jsonl") {
		t.Fatalf("unexpected journal file name %s", entries[0].Name())
	}

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 journal lines, got %d", len(lines))
	}
	var entry state.FailedWrite
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry.Name != "panel.opacity" || entry.Scope != "default" {
		t.Fatalf("expected journaled update fields, got %+v", entry)
	}
	if entry.Error != "store rejected write" {
		t.Fatalf("expected cause in journal, got %q", entry.Error)
	}
}

func TestWriteCrashDump(t *testing.T) {
	dir := t.TempDir()
	dumpPath, err := state.WriteCrashDump(dir, "test reason", errors.New("boom"))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	data, err := os.ReadFile(dumpPath)
	if err != nil {
		t.Fatalf("read dump: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "reason: test reason") {
		t.Fatalf("expected reason in dump, got %q", out)
	}
	if !strings.Contains(out, "goroutine stacks") {
		t.Fatalf("expected goroutine stacks section in dump")
	}
}
