package app

import (
	"context"
	"io"

	"propsync/pkg/state/shutdown"
)

// Shutdown drains and stops all components. Safe to call after Run returns.
func (a *App) Shutdown(ctx context.Context) error {
	a.state = "shutting_down"
	var closer io.Closer
	if c, ok := a.surf.(io.Closer); ok {
		closer = c
	}
	err := shutdown.ShutdownApp(ctx, a.srvFast, a.jan, a.hwSensor, a.reg, closer)
	if s, ok := a.sched.(interface{ Stop() }); ok {
		s.Stop()
	}
	if a.failedLog != nil {
		_ = a.failedLog.Close()
	}
	if err == nil {
		a.state = "stopped"
	}
	return err
}
