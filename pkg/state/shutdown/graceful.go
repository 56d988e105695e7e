package shutdown

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"propsync/internal/janitor"
	"propsync/pkg/coordinator"
	"propsync/pkg/logger"
	"propsync/pkg/sensor"
	"propsync/pkg/state"
	"propsync/pkg/telemetry"

	"github.com/valyala/fasthttp"
)

// ShutdownApp performs graceful shutdown of all app components. Pending
// updates are flushed to the surface before coordinators are destroyed so a
// clean stop never drops writes.
func ShutdownApp(ctx context.Context, srvFast *fasthttp.Server, jan *janitor.Janitor, hwSensor *sensor.Sensor, reg *coordinator.Registry, surf io.Closer) error {
	logger.Info("shutdown_requested")

	// stop accepting new requests
	if srvFast != nil {
		logger.Info("shutdown_stopping_http")
		if err := srvFast.Shutdown(); err != nil {
			logger.Error("shutdown_http_error", "error", err)
		}
	}

	// stop scheduled maintenance before draining coordinators
	if jan != nil {
		logger.Info("shutdown_stopping_janitor")
		jan.Stop()
	}

	// stop sensor
	if hwSensor != nil {
		logger.Info("shutdown_stopping_sensor")
		hwSensor.Stop()
	}

	// drain every coordinator to the surface, then tear them down
	if reg != nil {
		logger.Info("shutdown_flushing_coordinators")
		if err := reg.FlushAll(); err != nil {
			logger.Error("shutdown_flush_error", "error", err)
		}
		reg.DestroyAll()
	}

	// close the surface store
	if surf != nil {
		logger.Info("shutdown_closing_surface")
		if err := surf.Close(); err != nil {
			logger.Error("shutdown_surface_close_error", "error", err)
		}
	}

	// close telemetry
	logger.Info("shutdown_closing_telemetry")
	telemetry.Close()

	logger.Info("shutdown_complete")
	return nil
}

// SetupSignalHandler installs handlers for SIGINT/SIGTERM and SIGPIPE and
// returns a cancellable context. The returned context is cancelled when any
// of the watched signals arrives. Use the cancel function to stop watching
// and to release resources.
func SetupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	// handle interrupt/terminate for graceful shutdown
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigc
		logger.Info("signal_received", "signal", s.String(), "msg", "shutdown requested")
		cancel()
	}()

	// watch for SIGPIPE and dump goroutine stacks to aid diagnostics
	sigpipe := make(chan os.Signal, 1)
	signal.Notify(sigpipe, syscall.SIGPIPE)
	go func() {
		s := <-sigpipe
		logger.Info("signal_received", "signal", s.String(), "msg", "SIGPIPE - dumping goroutine stacks")
		buf := make([]byte, 1<<20)
		n := runtime.Stack(buf, true)
		logger.Info("goroutine_stack_dump", "dump", string(buf[:n]))
		cancel()
	}()

	return ctx, cancel
}

// Abort reports a fatal startup error, writes a crash dump when the data dir
// is known, and exits. Safe to call before state.Init.
func Abort(reason string, err error, dataDir string) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", reason, err)
	logger.Error("startup_aborted", "reason", reason, "error", err)
	if strings.TrimSpace(dataDir) != "" {
		if dumpPath, derr := state.WriteCrashDump(state.CrashPath(dataDir), reason, err); derr == nil {
			fmt.Fprintf(os.Stderr, "crash dump written: %s\n", dumpPath)
		}
	}
	logger.Sync()
	os.Exit(1)
}
