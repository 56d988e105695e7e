package logger

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

var Log *slog.Logger

type asyncWriter struct {
	ch chan []byte
}

func (a *asyncWriter) Write(p []byte) (n int, err error) {
	cp := make([]byte, len(p))
	copy(cp, p)
	select {
	case a.ch <- cp:
		return len(p), nil
	default:
		// drop if queue full to avoid blocking
		return len(p), nil
	}
}

var logCh chan []byte
var logStopCh chan struct{}
var logWG sync.WaitGroup

// Init initializes the global slog logger with an async buffered text handler.
// Level and sink come from PROPSYNC_LOG_LEVEL / PROPSYNC_LOG_SINK.
func Init() {
	InitWithLevel("")
}

// InitWithLevel initializes the global logger honoring the provided level
// string ("debug", "info", "warn", "error"). An empty level falls back to
// PROPSYNC_LOG_LEVEL, then to info.
func InitWithLevel(level string) {
	sink := os.Getenv("PROPSYNC_LOG_SINK") // e.g. "file:/path/to/log"
	lvl := strings.ToLower(strings.TrimSpace(level))
	if lvl == "" {
		lvl = strings.ToLower(strings.TrimSpace(os.Getenv("PROPSYNC_LOG_LEVEL")))
	}
	var lv slog.Level
	switch lvl {
	case "debug":
		lv = slog.LevelDebug
	case "warn", "warning":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}

	logCh = make(chan []byte, 10000)
	logStopCh = make(chan struct{})
	aw := &asyncWriter{ch: logCh}
	Log = slog.New(slog.NewTextHandler(aw, &slog.HandlerOptions{Level: lv}))

	logWG.Add(1)
	go writerLoop(sink)
}

// writerLoop drains the log channel into the configured sink, flushing on a
// one second cadence and once more at shutdown.
func writerLoop(sink string) {
	defer logWG.Done()
	var buf *bufio.Writer
	var f *os.File
	if strings.HasPrefix(sink, "file:") {
		path := strings.TrimPrefix(sink, "file:")
		var err error
		f, err = os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", path, err)
			buf = bufio.NewWriterSize(os.Stdout, 8192)
		} else {
			buf = bufio.NewWriterSize(f, 8192)
		}
	} else {
		buf = bufio.NewWriterSize(os.Stdout, 8192)
	}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case b := <-logCh:
			buf.Write(b)
		case <-ticker.C:
			buf.Flush()
		case <-logStopCh:
			for {
				select {
				case b := <-logCh:
					buf.Write(b)
				default:
					buf.Flush()
					if f != nil {
						f.Close()
					}
					return
				}
			}
		}
	}
}

// Sync flushes any buffered logs and stops the writer.
func Sync() {
	if logStopCh != nil {
		close(logStopCh)
		logWG.Wait()
	}
}

// Debug logs with slog-style key/value pairs.
func Debug(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Debug(msg, args...)
}

// Info logs with slog-style key/value pairs.
func Info(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Info(msg, args...)
}

// Warn logs with slog-style key/value pairs.
func Warn(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Warn(msg, args...)
}

// Error logs with slog-style key/value pairs.
func Error(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Error(msg, args...)
}

// LogConfigSummary prints a human-friendly hyphenated block of configuration
// results to stdout. The block is printed regardless of the configured logger
// so startup dumps stay visible in terminal output.
func LogConfigSummary(title string, items []string) {
	if len(items) == 0 {
		return
	}
	human := strings.ReplaceAll(title, "_", " ")
	if len(human) > 0 {
		human = strings.ToUpper(human[:1]) + human[1:]
	}
	header := "== " + human + " "
	const width = 60
	if len(header) < width {
		header = header + strings.Repeat("=", width-len(header))
	}
	fmt.Fprintln(os.Stdout, header)
	for _, it := range items {
		fmt.Fprintln(os.Stdout, "- "+it)
	}
	fmt.Fprintln(os.Stdout)
}
