package api

import (
	"net/http"
	"net/http/pprof"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"propsync/pkg/coordinator"
	"propsync/pkg/router"
)

var (
	flushTotal = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "propsync_flush_total",
			Help: "Executed flushes summed across live scopes.",
		},
		func() float64 {
			var n uint64
			for _, c := range coordinator.Shared().All() {
				n += c.Metrics().FlushCount
			}
			return float64(n)
		},
	)

	pendingUpdates = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "propsync_pending_updates",
			Help: "Queued updates awaiting a frame, summed across live scopes.",
		},
		func() float64 {
			var n int
			for _, c := range coordinator.Shared().All() {
				n += c.Pending()
			}
			return float64(n)
		},
	)

	liveScopes = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "propsync_scopes",
			Help: "Number of live coordinator scopes.",
		},
		func() float64 { return float64(len(coordinator.Shared().Names())) },
	)

	avgFlushMs = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "propsync_avg_flush_ms",
			Help: "Flush duration averaged across live scopes, weighted by flush count.",
		},
		func() float64 {
			var total time.Duration
			var count uint64
			for _, c := range coordinator.Shared().All() {
				m := c.Metrics()
				total += time.Duration(m.FlushCount) * m.AverageFlushTime
				count += m.FlushCount
			}
			if count == 0 {
				return 0
			}
			return float64(total/time.Duration(count)) / float64(time.Millisecond)
		},
	)

	gcPauseTotal = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "go_gc_pause_total_ns",
			Help: "Total GC pause time in nanoseconds.",
		},
		func() float64 {
			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)
			return float64(stats.PauseTotalNs)
		},
	)

	heapAlloc = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "go_heap_alloc_bytes",
			Help: "Current heap allocation in bytes.",
		},
		func() float64 {
			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)
			return float64(stats.HeapAlloc)
		},
	)

	heapSys = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "go_heap_sys_bytes",
			Help: "Total heap size in bytes.",
		},
		func() float64 {
			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)
			return float64(stats.HeapSys)
		},
	)

	numGC = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "go_gc_cycles_total",
			Help: "Total number of GC cycles.",
		},
		func() float64 {
			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)
			return float64(stats.NumGC)
		},
	)
)

func init() {
	prometheus.MustRegister(flushTotal)
	prometheus.MustRegister(pendingUpdates)
	prometheus.MustRegister(liveScopes)
	prometheus.MustRegister(avgFlushMs)
	prometheus.MustRegister(gcPauseTotal)
	prometheus.MustRegister(heapAlloc)
	prometheus.MustRegister(heapSys)
	prometheus.MustRegister(numGC)
}

// wrapHTTPHandler wraps an http.Handler to work with fasthttp.
func wrapHTTPHandler(h http.Handler) func(ctx *fasthttp.RequestCtx) {
	return func(ctx *fasthttp.RequestCtx) {
		fasthttpadaptor.NewFastHTTPHandler(h)(ctx)
	}
}

// RegisterRoutes wires all API routes onto the provided router.
func RegisterRoutes(r *router.Router) {
	// producer ingest operations
	r.POST("/v1/updates", EnqueueUpdate)
	r.POST("/v1/updates/batch", EnqueueUpdateBatch)
	r.POST("/v1/flush", Flush)

	// coordinator and property reads
	r.GET("/v1/metrics", Metrics)
	r.GET("/v1/properties", ListProperties)
	r.GET("/v1/properties/{name}", GetProperty)

	// scope lifecycle (admin)
	r.GET("/v1/scopes", ListScopes)
	r.POST("/v1/scopes/{name}", CreateScope)
	r.DELETE("/v1/scopes/{name}", DestroyScope)

	// debug routes (admin)
	r.GET("/debug/config", DebugConfig)
	r.GET("/debug/prometheus", wrapHTTPHandler(promhttp.Handler()))
	r.GET("/debug/pprof/", wrapHTTPHandler(http.HandlerFunc(pprof.Index)))
	r.GET("/debug/pprof/cmdline", wrapHTTPHandler(http.HandlerFunc(pprof.Cmdline)))
	r.GET("/debug/pprof/profile", wrapHTTPHandler(http.HandlerFunc(pprof.Profile)))
	r.GET("/debug/pprof/symbol", wrapHTTPHandler(http.HandlerFunc(pprof.Symbol)))
	r.GET("/debug/pprof/trace", wrapHTTPHandler(http.HandlerFunc(pprof.Trace)))
}

// Handler returns the fasthttp handler for the propsync API.
func Handler() fasthttp.RequestHandler {
	r := router.New()
	RegisterRoutes(r)
	return r.Handler
}
