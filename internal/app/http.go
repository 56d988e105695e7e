package app

import (
	"context"
	"time"

	"github.com/valyala/fasthttp"

	"propsync/pkg/api"
	"propsync/pkg/auth"
	"propsync/pkg/config/banner"
	"propsync/pkg/router"
	"propsync/pkg/utils"
)

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	verStr := a.version
	if a.commit != "" && a.commit != "none" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "" && a.buildDate != "unknown" {
		verStr += " @ " + a.buildDate
	}
	banner.PrintWithEff(a.eff, verStr)
}

// healthzHandlerFast handles the /healthz endpoint.
func (a *App) healthzHandlerFast(ctx *fasthttp.RequestCtx) {
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(fasthttp.StatusOK)
	_, _ = ctx.WriteString("{\"status\":\"ok\"}")
}

// readyzHandlerFast handles the /readyz endpoint. Not ready means the
// surface is unavailable or the sensor latched a resource alert.
func (a *App) readyzHandlerFast(ctx *fasthttp.RequestCtx) {
	ctx.SetContentType("application/json")

	type readiness interface{ Ready() bool }
	if r, ok := a.surf.(readiness); ok && !r.Ready() {
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
		_, _ = ctx.WriteString("{\"status\":\"surface not ready\"}")
		return
	}
	if a.hwSensor != nil {
		disk, heap := a.hwSensor.Alerts()
		if disk || heap {
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			_, _ = ctx.WriteString("{\"status\":\"resource pressure\"}")
			return
		}
	}

	ctx.SetStatusCode(fasthttp.StatusOK)
	ver := a.version
	if ver == "" {
		ver = "dev"
	}
	_, _ = ctx.WriteString("{\"status\":\"ok\",\"version\":\"" + ver + "\"}")
}

// startHTTP builds and starts the fasthttp server, returning a channel that
// delivers the terminal server error.
func (a *App) startHTTP(_ context.Context) <-chan error {
	cfg := a.eff.Config
	secCfg := auth.FromConfig(cfg, a.eff.Env)

	r := router.New()
	r.GET("/healthz", a.healthzHandlerFast)
	r.GET("/readyz", a.readyzHandlerFast)
	api.RegisterRoutes(r)
	r.NotFound(func(ctx *fasthttp.RequestCtx) {
		utils.JSONErrorFast(ctx, fasthttp.StatusNotFound, "not found")
	})

	fastHandler := auth.AuthenticateRequestMiddleware(secCfg)(r.Handler)

	const (
		readBufferSize       = 64 * 1024        // 64 KiB read buffer per connection
		maxRequestBodySize   = 5 * 1024 * 1024  // 5 MiB max request body
		concurrency          = 0                // unlimited concurrency (0 means unlimited in fasthttp)
		readTimeout          = 10 * time.Second // timeout for reading request
		writeTimeout         = 10 * time.Second // timeout for writing response
		idleTimeout          = 30 * time.Second // max keep-alive idle duration per connection
		maxKeepaliveDuration = 2 * time.Minute  // max duration for keep-alive connection
	)
	a.srvFast = &fasthttp.Server{
		Handler:              fastHandler,
		ReadBufferSize:       readBufferSize,
		MaxRequestBodySize:   maxRequestBodySize,
		Concurrency:          concurrency,
		ReduceMemoryUsage:    true, // reduces memory usage at the expense of performance
		ReadTimeout:          readTimeout,
		WriteTimeout:         writeTimeout,
		IdleTimeout:          idleTimeout,
		MaxKeepaliveDuration: maxKeepaliveDuration,
	}

	errCh := make(chan error, 1)
	go func() {
		cert := cfg.Server.TLS.CertFile
		key := cfg.Server.TLS.KeyFile
		if cert != "" && key != "" {
			errCh <- a.srvFast.ListenAndServeTLS(a.eff.Addr, cert, key)
			return
		}
		errCh <- a.srvFast.ListenAndServe(a.eff.Addr)
	}()
	return errCh
}
