package router_test

import (
	"testing"

	"github.com/valyala/fasthttp"

	"propsync/pkg/router"
)

func doRequest(r *router.Router, method, path string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	r.Handler(ctx)
	return ctx
}

func TestRouterDispatch(t *testing.T) {
	r := router.New()
	var hit string
	r.GET("/v1/properties", func(ctx *fasthttp.RequestCtx) { hit = "list" })
	r.GET("/v1/properties/{name}", func(ctx *fasthttp.RequestCtx) {
		hit = "get:" + router.Param(ctx, "name")
	})
	r.POST("/v1/updates", func(ctx *fasthttp.RequestCtx) { hit = "update" })
	r.DELETE("/v1/scopes/{scope}", func(ctx *fasthttp.RequestCtx) {
		hit = "del:" + router.Param(ctx, "scope")
	})

	cases := []struct {
		method, path, want string
	}{
		{"GET", "/v1/properties", "list"},
		{"GET", "/v1/properties/panel.opacity", "get:panel.opacity"},
		{"POST", "/v1/updates", "update"},
		{"DELETE", "/v1/scopes/visuals", "del:visuals"},
	}
	for _, c := range cases {
		hit = ""
		ctx := doRequest(r, c.method, c.path)
		if hit != c.want {
			t.Fatalf("%s %s: expected %q got %q", c.method, c.path, c.want, hit)
		}
		if ctx.Response.StatusCode() != fasthttp.StatusOK {
			t.Fatalf("%s %s: status %d", c.method, c.path, ctx.Response.StatusCode())
		}
	}
}

func TestRouterNotFound(t *testing.T) {
	r := router.New()
	r.GET("/v1/properties", func(ctx *fasthttp.RequestCtx) {})

	ctx := doRequest(r, "GET", "/v1/unknown")
	if got := ctx.Response.StatusCode(); got != fasthttp.StatusNotFound {
		t.Fatalf("expected 404 got %d", got)
	}

	called := false
	r.NotFound(func(ctx *fasthttp.RequestCtx) {
		called = true
		ctx.SetStatusCode(fasthttp.StatusTeapot)
	})
	ctx = doRequest(r, "GET", "/v1/unknown")
	if !called {
		t.Fatalf("custom not-found handler not called")
	}
	if got := ctx.Response.StatusCode(); got != fasthttp.StatusTeapot {
		t.Fatalf("expected custom status got %d", got)
	}
}

func TestRouterMethodNotAllowed(t *testing.T) {
	r := router.New()
	r.GET("/v1/metrics", func(ctx *fasthttp.RequestCtx) {})

	ctx := doRequest(r, "POST", "/v1/metrics")
	if got := ctx.Response.StatusCode(); got != fasthttp.StatusMethodNotAllowed {
		t.Fatalf("expected 405 got %d", got)
	}
	if got := string(ctx.Response.Header.Peek("Allow")); got != "GET" {
		t.Fatalf("expected Allow: GET got %q", got)
	}
}

func TestRouterParamSegmentsDoNotCrossSlash(t *testing.T) {
	r := router.New()
	r.GET("/v1/properties/{name}", func(ctx *fasthttp.RequestCtx) {})

	ctx := doRequest(r, "GET", "/v1/properties/a/b")
	if got := ctx.Response.StatusCode(); got != fasthttp.StatusNotFound {
		t.Fatalf("expected 404 for extra segment got %d", got)
	}
}

func TestRouterRoot(t *testing.T) {
	r := router.New()
	hit := false
	r.GET("/", func(ctx *fasthttp.RequestCtx) { hit = true })

	doRequest(r, "GET", "/")
	if !hit {
		t.Fatalf("root route not matched")
	}
	ctx := doRequest(r, "GET", "/other")
	if got := ctx.Response.StatusCode(); got != fasthttp.StatusNotFound {
		t.Fatalf("expected 404 got %d", got)
	}
}
