package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"propsync/pkg/logger"
	"propsync/pkg/surface"
)

type FailedWrite struct {
	Timestamp time.Time `json:"timestamp"`
	Key       string    `json:"key"`
	Scope     string    `json:"scope"`
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	Error     string    `json:"error"`
}

// FailedWriteLog journals property writes that the surface rejected so they
// can be replayed or inspected after the fact. Files rotate daily.
type FailedWriteLog struct {
	mu          sync.Mutex
	basePath    string
	current     *os.File
	currentDate string
}

func NewFailedWriteLog(basePath string) *FailedWriteLog {
	return &FailedWriteLog{
		basePath: basePath,
	}
}

func (fw *FailedWriteLog) WriteFailedWrite(scope string, u surface.Update, cause error) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if err := os.MkdirAll(fw.basePath, 0o700); err != nil {
		return fmt.Errorf("failed to create failed_writes directory: %w", err)
	}

	date := time.Now().Format("2006-01-02")
	if fw.currentDate != date || fw.current == nil {
		if fw.current != nil {
			fw.current.Close()
		}

		filename := fmt.Sprintf("failed_writes_%s.jsonl", date)
		filepath := filepath.Join(fw.basePath, filename)

		file, openErr := os.OpenFile(filepath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if openErr != nil {
			return fmt.Errorf("failed to open failed_writes file: %w", openErr)
		}

		fw.current = file
		fw.currentDate = date
	}

	entry := FailedWrite{
		Timestamp: time.Now(),
		Key:       fmt.Sprintf("%s_%d", scope, time.Now().UnixNano()),
		Scope:     scope,
		Name:      u.Name,
		Value:     u.Value,
		Error:     cause.Error(),
	}

	data, marshalErr := json.Marshal(entry)
	if marshalErr != nil {
		return fmt.Errorf("failed to marshal failed write: %w", marshalErr)
	}

	if _, writeErr := fw.current.Write(append(data, '\n')); writeErr != nil {
		return fmt.Errorf("failed to write failed write: %w", writeErr)
	}

	logger.Error("failed_write_journaled", "id", entry.Key, "name", u.Name, "error", cause)
	return nil
}

func (fw *FailedWriteLog) Close() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.current != nil {
		return fw.current.Close()
	}
	return nil
}

// WriteCrashDump writes diagnostics (environ plus goroutine stacks) to a new
// dump file under dir and returns its path.
func WriteCrashDump(dir, reason string, err error) (string, error) {
	if e := os.MkdirAll(dir, 0o700); e != nil {
		return "", e
	}

	ts := time.Now().UnixNano()
	dumpName := fmt.Sprintf("crash-%d.log", ts)
	dumpPath := filepath.Join(dir, dumpName)

	f, ferr := os.Create(dumpPath)
	if ferr != nil {
		return "", ferr
	}
	defer f.Close()

	fmt.Fprintf(f, "time: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(f, "reason: %s\n", reason)
	if err != nil {
		fmt.Fprintf(f, "error: %v\n", err)
	}
	fmt.Fprintf(f, "\n--- environ ---\n")
	for _, e := range os.Environ() {
		fmt.Fprintln(f, e)
	}
	fmt.Fprintf(f, "\n--- goroutine stacks ---\n")
	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	f.Write(buf[:n])

	return dumpPath, nil
}

// Crash writes a crash dump to the crash folder with diagnostics and terminates the process.
func Crash(reason string, err error) {
	crashDir := PathsVar.Crash
	if crashDir == "" {
		logger.Error("crash_path_not_initialized", "reason", reason, "error", err)
		os.Exit(1)
	}

	dumpPath, derr := WriteCrashDump(crashDir, reason, err)
	if derr != nil {
		logger.Error("failed_to_write_crash_dump", "error", derr, "reason", reason)
		os.Exit(1)
	}

	logger.Error("crash_dump_written_exiting", "path", dumpPath, "reason", reason, "error", err)
	os.Exit(1)
}
