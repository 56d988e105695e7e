package api_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/valyala/fasthttp"

	"propsync/pkg/api"
	"propsync/pkg/config"
	"propsync/pkg/coordinator"
	"propsync/pkg/models"
	"propsync/pkg/surface"
)

type apiEnv struct {
	surf *surface.Memory
	reg  *coordinator.Registry
	h    fasthttp.RequestHandler
}

// newAPIEnv wires the handlers to a fresh registry over a shared in-memory
// surface. Coordinators use a manual scheduler so nothing flushes until a
// flush request arrives.
func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	surf := surface.NewMemory()
	sched := coordinator.NewManual()
	reg := coordinator.NewRegistry(func(scope string) (*coordinator.Coordinator, error) {
		return coordinator.New(surf, sched, nil, coordinator.Config{Scope: scope, MaxBatchSize: 64})
	})
	coordinator.SetShared(reg)
	api.SetSurface(surf)
	t.Cleanup(func() {
		coordinator.SetShared(nil)
		api.SetSurface(nil)
	})
	return &apiEnv{surf: surf, reg: reg, h: api.Handler()}
}

func (e *apiEnv) do(method, uri string, body []byte) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	if body != nil {
		ctx.Request.SetBody(body)
	}
	e.h(ctx)
	return ctx
}

func decodeBody(t *testing.T, ctx *fasthttp.RequestCtx, out any) {
	t.Helper()
	if err := json.Unmarshal(ctx.Response.Body(), out); err != nil {
		t.Fatalf("decode response %q: %v", ctx.Response.Body(), err)
	}
}

func TestEnqueueUpdateAccepted(t *testing.T) {
	env := newAPIEnv(t)

	ctx := env.do("POST", "/v1/updates", []byte(`{"name":"panel.opacity","value":"0.5"}`))
	if ctx.Response.StatusCode() != fasthttp.StatusAccepted {
		t.Fatalf("expected 202 got %d: %s", ctx.Response.StatusCode(), ctx.Response.Body())
	}
	var qr struct {
		Scope   string `json:"scope"`
		Queued  int    `json:"queued"`
		Pending int    `json:"pending"`
	}
	decodeBody(t, ctx, &qr)
	if qr.Scope != coordinator.DefaultScope {
		t.Fatalf("expected default scope got %q", qr.Scope)
	}
	if qr.Queued != 1 || qr.Pending != 1 {
		t.Fatalf("expected queued=1 pending=1 got %d/%d", qr.Queued, qr.Pending)
	}

	// nothing on the surface until a flush
	if _, err := env.surf.GetProperty("panel.opacity"); !surface.IsNotFound(err) {
		t.Fatalf("expected not-found before flush, got %v", err)
	}

	ctx = env.do("POST", "/v1/flush", nil)
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("expected 200 got %d: %s", ctx.Response.StatusCode(), ctx.Response.Body())
	}
	p, err := env.surf.GetProperty("panel.opacity")
	if err != nil {
		t.Fatalf("property missing after flush: %v", err)
	}
	if p.Value != "0.5" {
		t.Fatalf("expected 0.5 got %q", p.Value)
	}
}

func TestEnqueueUpdateRejectsBadPayloads(t *testing.T) {
	env := newAPIEnv(t)

	cases := []struct {
		name string
		body []byte
		want int
	}{
		{"empty body", nil, fasthttp.StatusBadRequest},
		{"invalid json", []byte(`{`), fasthttp.StatusBadRequest},
		{"empty name", []byte(`{"name":"","value":"x"}`), fasthttp.StatusBadRequest},
		{"control char name", []byte("{\"name\":\"a\\u0000b\",\"value\":\"x\"}"), fasthttp.StatusBadRequest},
		{"oversize value", []byte(`{"name":"big","value":"` + strings.Repeat("v", 17*1024) + `"}`), fasthttp.StatusBadRequest},
		{"oversize payload", []byte(`{"name":"big","value":"` + strings.Repeat("v", 110*1024) + `"}`), fasthttp.StatusRequestEntityTooLarge},
	}
	for _, tc := range cases {
		ctx := env.do("POST", "/v1/updates", tc.body)
		if ctx.Response.StatusCode() != tc.want {
			t.Fatalf("%s: expected %d got %d: %s", tc.name, tc.want, ctx.Response.StatusCode(), ctx.Response.Body())
		}
	}
}

func TestEnqueueUpdateUnknownScope(t *testing.T) {
	env := newAPIEnv(t)

	ctx := env.do("POST", "/v1/updates", []byte(`{"name":"x","value":"1","scope":"ghost"}`))
	if ctx.Response.StatusCode() != fasthttp.StatusNotFound {
		t.Fatalf("expected 404 got %d: %s", ctx.Response.StatusCode(), ctx.Response.Body())
	}
}

func TestEnqueueUpdateNamedScope(t *testing.T) {
	env := newAPIEnv(t)

	ctx := env.do("POST", "/v1/scopes/hud", nil)
	if ctx.Response.StatusCode() != fasthttp.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", ctx.Response.StatusCode(), ctx.Response.Body())
	}

	ctx = env.do("POST", "/v1/updates", []byte(`{"name":"hud.fps","value":"60","scope":"hud"}`))
	if ctx.Response.StatusCode() != fasthttp.StatusAccepted {
		t.Fatalf("expected 202 got %d: %s", ctx.Response.StatusCode(), ctx.Response.Body())
	}
	var qr struct {
		Scope string `json:"scope"`
	}
	decodeBody(t, ctx, &qr)
	if qr.Scope != "hud" {
		t.Fatalf("expected hud got %q", qr.Scope)
	}

	ctx = env.do("POST", "/v1/flush?scope=hud", nil)
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("expected 200 got %d: %s", ctx.Response.StatusCode(), ctx.Response.Body())
	}
	var fr struct {
		Status string   `json:"status"`
		Scopes []string `json:"scopes"`
	}
	decodeBody(t, ctx, &fr)
	if fr.Status != "ok" || len(fr.Scopes) != 1 || fr.Scopes[0] != "hud" {
		t.Fatalf("unexpected flush response: %+v", fr)
	}
	if p, err := env.surf.GetProperty("hud.fps"); err != nil || p.Value != "60" {
		t.Fatalf("expected hud.fps=60 got %+v err=%v", p, err)
	}
}

func TestEnqueueBatchCoalesces(t *testing.T) {
	env := newAPIEnv(t)

	body := []byte(`[
		{"name":"panel.x","value":"10"},
		{"name":"panel.y","value":"20"},
		{"name":"panel.x","value":"30"}
	]`)
	ctx := env.do("POST", "/v1/updates/batch", body)
	if ctx.Response.StatusCode() != fasthttp.StatusAccepted {
		t.Fatalf("expected 202 got %d: %s", ctx.Response.StatusCode(), ctx.Response.Body())
	}
	var qr struct {
		Queued  int `json:"queued"`
		Pending int `json:"pending"`
	}
	decodeBody(t, ctx, &qr)
	if qr.Queued != 3 {
		t.Fatalf("expected queued=3 got %d", qr.Queued)
	}
	if qr.Pending != 2 {
		t.Fatalf("expected pending=2 after coalescing got %d", qr.Pending)
	}

	env.do("POST", "/v1/flush", nil)
	if p, _ := env.surf.GetProperty("panel.x"); p.Value != "30" {
		t.Fatalf("expected last write 30 got %q", p.Value)
	}
	if p, _ := env.surf.GetProperty("panel.y"); p.Value != "20" {
		t.Fatalf("expected 20 got %q", p.Value)
	}
}

func TestEnqueueBatchValidatesBeforeQueueing(t *testing.T) {
	env := newAPIEnv(t)

	// seed one pending update so we can observe the queue is untouched
	env.do("POST", "/v1/updates", []byte(`{"name":"a","value":"1"}`))

	ctx := env.do("POST", "/v1/updates/batch", []byte(`[{"name":"b","value":"2"},{"name":"","value":"3"}]`))
	if ctx.Response.StatusCode() != fasthttp.StatusBadRequest {
		t.Fatalf("expected 400 got %d: %s", ctx.Response.StatusCode(), ctx.Response.Body())
	}
	if !strings.Contains(string(ctx.Response.Body()), "update 1") {
		t.Fatalf("expected error to name offending entry, got %s", ctx.Response.Body())
	}

	c, err := env.reg.Default()
	if err != nil {
		t.Fatalf("default coordinator: %v", err)
	}
	if c.Pending() != 1 {
		t.Fatalf("expected queue untouched (1 pending) got %d", c.Pending())
	}

	// non-array and empty-array payloads are rejected outright
	if ctx := env.do("POST", "/v1/updates/batch", []byte(`{"name":"a"}`)); ctx.Response.StatusCode() != fasthttp.StatusBadRequest {
		t.Fatalf("expected 400 for non-array got %d", ctx.Response.StatusCode())
	}
	if ctx := env.do("POST", "/v1/updates/batch", []byte(`[]`)); ctx.Response.StatusCode() != fasthttp.StatusBadRequest {
		t.Fatalf("expected 400 for empty array got %d", ctx.Response.StatusCode())
	}
}

func TestFlushUnknownScope(t *testing.T) {
	env := newAPIEnv(t)

	ctx := env.do("POST", "/v1/flush?scope=ghost", nil)
	if ctx.Response.StatusCode() != fasthttp.StatusNotFound {
		t.Fatalf("expected 404 got %d: %s", ctx.Response.StatusCode(), ctx.Response.Body())
	}

	ctx = env.do("POST", "/v1/flush", []byte(`not json`))
	if ctx.Response.StatusCode() != fasthttp.StatusBadRequest {
		t.Fatalf("expected 400 for bad flush body got %d", ctx.Response.StatusCode())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newAPIEnv(t)

	// metrics reads never build coordinators
	ctx := env.do("GET", "/v1/metrics?scope=default", nil)
	if ctx.Response.StatusCode() != fasthttp.StatusNotFound {
		t.Fatalf("expected 404 before first use got %d", ctx.Response.StatusCode())
	}

	env.do("POST", "/v1/updates", []byte(`{"name":"m","value":"1"}`))
	env.do("POST", "/v1/flush", nil)

	ctx = env.do("GET", "/v1/metrics?scope=default", nil)
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("expected 200 got %d: %s", ctx.Response.StatusCode(), ctx.Response.Body())
	}
	var m models.CoordinatorMetrics
	decodeBody(t, ctx, &m)
	if m.Scope != coordinator.DefaultScope {
		t.Fatalf("expected default scope got %q", m.Scope)
	}
	if m.FlushCount != 1 {
		t.Fatalf("expected flush_count=1 got %d", m.FlushCount)
	}
	if m.PendingUpdates != 0 {
		t.Fatalf("expected no pending after flush got %d", m.PendingUpdates)
	}

	ctx = env.do("GET", "/v1/metrics", nil)
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("expected 200 got %d", ctx.Response.StatusCode())
	}
	var all struct {
		Scopes []models.CoordinatorMetrics `json:"scopes"`
	}
	decodeBody(t, ctx, &all)
	if len(all.Scopes) != 1 {
		t.Fatalf("expected 1 scope got %d", len(all.Scopes))
	}
}

func TestPropertyReads(t *testing.T) {
	env := newAPIEnv(t)

	for _, p := range [][2]string{{"panel.x", "1"}, {"panel.y", "2"}, {"hud.fps", "60"}} {
		if err := env.surf.SetProperty(p[0], p[1]); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	ctx := env.do("GET", "/v1/properties/panel.x", nil)
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("expected 200 got %d: %s", ctx.Response.StatusCode(), ctx.Response.Body())
	}
	var p models.Property
	decodeBody(t, ctx, &p)
	if p.Name != "panel.x" || p.Value != "1" {
		t.Fatalf("unexpected property %+v", p)
	}

	ctx = env.do("GET", "/v1/properties/nope", nil)
	if ctx.Response.StatusCode() != fasthttp.StatusNotFound {
		t.Fatalf("expected 404 got %d", ctx.Response.StatusCode())
	}

	ctx = env.do("GET", "/v1/properties?prefix=panel.", nil)
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("expected 200 got %d", ctx.Response.StatusCode())
	}
	var list struct {
		Properties []models.Property `json:"properties"`
		Count      int               `json:"count"`
	}
	decodeBody(t, ctx, &list)
	if list.Count != 2 || len(list.Properties) != 2 {
		t.Fatalf("expected 2 prefixed properties got %+v", list)
	}

	ctx = env.do("GET", "/v1/properties?limit=1", nil)
	decodeBody(t, ctx, &list)
	if list.Count != 1 {
		t.Fatalf("expected limit to clamp to 1 got %d", list.Count)
	}
}

func TestScopeLifecycle(t *testing.T) {
	env := newAPIEnv(t)

	ctx := env.do("POST", "/v1/scopes/hud", nil)
	if ctx.Response.StatusCode() != fasthttp.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", ctx.Response.StatusCode(), ctx.Response.Body())
	}

	ctx = env.do("POST", "/v1/scopes/hud", nil)
	if ctx.Response.StatusCode() != fasthttp.StatusConflict {
		t.Fatalf("expected 409 for duplicate got %d", ctx.Response.StatusCode())
	}

	ctx = env.do("POST", "/v1/scopes/bad!name", nil)
	if ctx.Response.StatusCode() != fasthttp.StatusBadRequest {
		t.Fatalf("expected 400 for invalid name got %d: %s", ctx.Response.StatusCode(), ctx.Response.Body())
	}

	ctx = env.do("GET", "/v1/scopes", nil)
	var scopes struct {
		Scopes []string `json:"scopes"`
	}
	decodeBody(t, ctx, &scopes)
	found := false
	for _, s := range scopes.Scopes {
		if s == "hud" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected hud in scope list got %v", scopes.Scopes)
	}

	ctx = env.do("DELETE", "/v1/scopes/hud", nil)
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("expected 200 got %d: %s", ctx.Response.StatusCode(), ctx.Response.Body())
	}
	var sr struct {
		Scope     string `json:"scope"`
		Destroyed bool   `json:"destroyed"`
	}
	decodeBody(t, ctx, &sr)
	if sr.Scope != "hud" || !sr.Destroyed {
		t.Fatalf("unexpected destroy response %+v", sr)
	}

	ctx = env.do("DELETE", "/v1/scopes/hud", nil)
	if ctx.Response.StatusCode() != fasthttp.StatusNotFound {
		t.Fatalf("expected 404 for repeat destroy got %d", ctx.Response.StatusCode())
	}
}

func TestDebugConfigRedactsKeys(t *testing.T) {
	env := newAPIEnv(t)

	cfg := &config.Config{}
	cfg.Server.Address = "127.0.0.1"
	cfg.Server.Port = 9090
	cfg.Security.APIKeys.Producer = []string{"prod-secret"}
	cfg.Security.APIKeys.Admin = []string{"admin-secret"}
	config.Set(cfg)
	t.Cleanup(func() { config.Set(nil) })

	ctx := env.do("GET", "/debug/config", nil)
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("expected 200 got %d: %s", ctx.Response.StatusCode(), ctx.Response.Body())
	}
	body := string(ctx.Response.Body())
	if strings.Contains(body, "prod-secret") || strings.Contains(body, "admin-secret") {
		t.Fatalf("expected keys redacted in dump:\n%s", body)
	}
	if !strings.Contains(body, "producer_keys: 1") || !strings.Contains(body, "admin_keys: 1") {
		t.Fatalf("expected key counts in dump:\n%s", body)
	}
	if !strings.Contains(body, "127.0.0.1") {
		t.Fatalf("expected listen address in dump:\n%s", body)
	}
}

func TestPrometheusEndpoint(t *testing.T) {
	env := newAPIEnv(t)

	env.do("POST", "/v1/updates", []byte(`{"name":"p","value":"1"}`))
	env.do("POST", "/v1/flush", nil)

	ctx := env.do("GET", "/debug/prometheus", nil)
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("expected 200 got %d", ctx.Response.StatusCode())
	}
	body := string(ctx.Response.Body())
	for _, metric := range []string{"propsync_flush_total", "propsync_pending_updates", "propsync_scopes", "go_heap_alloc_bytes"} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %s in scrape output", metric)
		}
	}
}
