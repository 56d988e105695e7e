package api

import (
	"sync"
	"time"

	"github.com/valyala/fasthttp"

	"propsync/pkg/coordinator"
	"propsync/pkg/models"
	"propsync/pkg/router"
	"propsync/pkg/surface"
	"propsync/pkg/utils"
)

// read surface for property queries, set once at startup
var (
	surfMu sync.RWMutex
	surf   surface.Surface
)

// SetSurface installs the surface property reads are served from. The daemon
// passes the same surface its coordinators write to.
func SetSurface(s surface.Surface) {
	surfMu.Lock()
	surf = s
	surfMu.Unlock()
}

func readSurface() surface.Surface {
	surfMu.RLock()
	defer surfMu.RUnlock()
	return surf
}

func metricsOf(c *coordinator.Coordinator) models.CoordinatorMetrics {
	m := c.Metrics()
	var lastTS int64
	if !m.LastFlushAt.IsZero() {
		lastTS = m.LastFlushAt.UnixNano()
	}
	return models.CoordinatorMetrics{
		Scope:          c.Scope(),
		FlushCount:     m.FlushCount,
		AvgFlushMs:     float64(m.AverageFlushTime) / float64(time.Millisecond),
		LastFlushTS:    lastTS,
		PendingUpdates: m.PendingUpdates,
	}
}

// Metrics reports flush counters, one scope or all live scopes.
func Metrics(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("Content-Type", "application/json")

	if scope := utils.GetQuery(ctx, "scope"); scope != "" {
		c, ok := coordinator.Shared().Get(scope)
		if !ok {
			utils.JSONErrorFast(ctx, fasthttp.StatusNotFound, "unknown scope")
			return
		}
		_ = utils.JSONWriteFast(ctx, fasthttp.StatusOK, metricsOf(c))
		return
	}

	all := coordinator.Shared().All()
	out := make([]models.CoordinatorMetrics, 0, len(all))
	for _, c := range all {
		out = append(out, metricsOf(c))
	}
	_ = utils.JSONWriteFast(ctx, fasthttp.StatusOK, struct {
		Scopes []models.CoordinatorMetrics `json:"scopes"`
	}{Scopes: out})
}

// GetProperty returns the stored record for one property.
func GetProperty(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("Content-Type", "application/json")

	// extract
	name := router.Param(ctx, "name")
	if err := ValidatePropertyName(name); err != nil {
		utils.JSONErrorFast(ctx, fasthttp.StatusBadRequest, err.Error())
		return
	}

	s := readSurface()
	if s == nil {
		utils.JSONErrorFast(ctx, fasthttp.StatusServiceUnavailable, "surface not configured")
		return
	}
	reader, ok := s.(surface.Reader)
	if !ok {
		utils.JSONErrorFast(ctx, fasthttp.StatusNotImplemented, "surface does not support reads")
		return
	}

	rec, err := reader.GetProperty(name)
	if err != nil {
		if surface.IsNotFound(err) {
			utils.JSONErrorFast(ctx, fasthttp.StatusNotFound, "property not found")
			return
		}
		utils.JSONErrorFast(ctx, fasthttp.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWriteFast(ctx, fasthttp.StatusOK, rec)
}

// ListProperties returns stored properties filtered by prefix.
func ListProperties(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("Content-Type", "application/json")

	prefix := utils.GetQuery(ctx, "prefix")
	limit := clampListLimit(utils.GetQueryInt(ctx, "limit", 0))

	s := readSurface()
	if s == nil {
		utils.JSONErrorFast(ctx, fasthttp.StatusServiceUnavailable, "surface not configured")
		return
	}
	lister, ok := s.(surface.Lister)
	if !ok {
		utils.JSONErrorFast(ctx, fasthttp.StatusNotImplemented, "surface does not support listing")
		return
	}

	props, err := lister.ListProperties(prefix, limit)
	if err != nil {
		utils.JSONErrorFast(ctx, fasthttp.StatusInternalServerError, err.Error())
		return
	}
	if props == nil {
		props = []models.Property{}
	}
	_ = utils.JSONWriteFast(ctx, fasthttp.StatusOK, struct {
		Properties []models.Property `json:"properties"`
		Count      int               `json:"count"`
	}{Properties: props, Count: len(props)})
}
