package telemetry

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/bytebufferpool"

	"propsync/pkg/timeutil"
)

// FlushTrace is one coordinator flush, written as a JSONL row to the
// scope's trace file.
type FlushTrace struct {
	Scope      string    `json:"scope"`
	Trigger    string    `json:"trigger"`
	Updates    int       `json:"updates"`
	DurationMS float64   `json:"duration_ms"`
	TS         time.Time `json:"ts"`
}

// Telemetry manages async writing of flush traces to per-scope files.
type Telemetry struct {
	dir              string
	mu               sync.Mutex
	files            map[string]*os.File
	buffers          map[string]*bufio.Writer
	traces           chan FlushTrace
	stopCh           chan struct{}
	stopOnce         sync.Once
	wg               sync.WaitGroup
	dropped          atomic.Uint64
	flushInt         time.Duration
	maxFileSizeBytes int64
	bufferSize       int
	queueCap         int
}

var tel *Telemetry

// Init initializes the global telemetry instance. When telemetry is
// disabled, skip Init and TraceFlush is a no-op.
func Init(dir string, bufferSize, queueCapacity int, flushInterval time.Duration, maxFileSize int64) error {
	t, err := New(dir, bufferSize, queueCapacity, flushInterval, maxFileSize)
	if err != nil {
		return err
	}
	tel = t
	return nil
}

// TraceFlush records one flush on the global instance. Never blocks the
// flush path: with a full queue the trace is dropped and counted.
func TraceFlush(scope, trigger string, updates int, d time.Duration) {
	if tel == nil {
		return
	}
	tel.TraceFlush(scope, trigger, updates, d)
}

// Close stops the global telemetry instance.
func Close() {
	if tel != nil {
		tel.Close()
		tel = nil
	}
}

// New creates a telemetry subsystem with an async background writer.
func New(dir string, bufferSize, queueCapacity int, flushInterval time.Duration, maxFileSize int64) (*Telemetry, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	t := &Telemetry{
		dir:              dir,
		files:            make(map[string]*os.File),
		buffers:          make(map[string]*bufio.Writer),
		traces:           make(chan FlushTrace, queueCapacity),
		stopCh:           make(chan struct{}),
		flushInt:         flushInterval,
		maxFileSizeBytes: maxFileSize, // max file size in bytes
		bufferSize:       bufferSize,
		queueCap:         queueCapacity,
	}
	t.wg.Add(1)
	go t.writerLoop()
	return t, nil
}

// TraceFlush enqueues one flush trace for background writing.
func (t *Telemetry) TraceFlush(scope, trigger string, updates int, d time.Duration) {
	tr := FlushTrace{
		Scope:      scope,
		Trigger:    trigger,
		Updates:    updates,
		DurationMS: d.Seconds() * 1000,
		TS:         timeutil.Now(),
	}
	select {
	case t.traces <- tr:
	default:
		t.dropped.Add(1)
	}
}

func (t *Telemetry) writerLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(t.flushInt)
	defer ticker.Stop()

	for {
		select {
		case tr := <-t.traces:
			t.writeTrace(tr)

		case <-ticker.C:
			if n := t.dropped.Swap(0); n > 0 {
				fmt.Fprintf(os.Stderr, "telemetry: dropped %d traces (queue full)\n", n)
			}
			t.mu.Lock()
			for scope, b := range t.buffers {
				b.Flush()
				f := t.files[scope]
				if fi, err := f.Stat(); err == nil && fi.Size() > t.maxFileSizeBytes {
					// truncate and recreate file when > max size
					f.Close()
					os.Remove(f.Name())
					newF, _ := os.OpenFile(f.Name(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
					t.files[scope] = newF
					t.buffers[scope] = bufio.NewWriterSize(newF, t.bufferSize)
					fmt.Fprintf(os.Stderr, "telemetry: truncated %s (size exceeded %d bytes)\n", scope, t.maxFileSizeBytes)
				}
			}
			t.mu.Unlock()

		case <-t.stopCh:
			// drain whatever producers enqueued before stop
			for {
				select {
				case tr := <-t.traces:
					t.writeTrace(tr)
				default:
					t.mu.Lock()
					for _, b := range t.buffers {
						b.Flush()
					}
					for _, f := range t.files {
						f.Sync()
						f.Close()
					}
					t.mu.Unlock()
					return
				}
			}
		}
	}
}

// writeTrace encodes one trace through a pooled buffer into the scope's
// bufio writer. Encode terminates the row with '\n'.
func (t *Telemetry) writeTrace(tr FlushTrace) {
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)
	if err := json.NewEncoder(bb).Encode(tr); err != nil {
		return
	}
	t.mu.Lock()
	b := t.getBufferFor(tr.Scope)
	b.Write(bb.B)
	t.mu.Unlock()
}

func (t *Telemetry) getBufferFor(scope string) *bufio.Writer {
	if b, ok := t.buffers[scope]; ok {
		return b
	}
	path := filepath.Join(t.dir, fmt.Sprintf("%s.jsonl", scope))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetry: failed to open %s: %v\n", path, err)
		return bufio.NewWriter(os.Stderr)
	}
	b := bufio.NewWriterSize(f, t.bufferSize)
	t.files[scope] = f
	t.buffers[scope] = b
	return b
}

// Close stops the background writer and flushes all remaining data.
func (t *Telemetry) Close() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
		t.wg.Wait()
	})
}
