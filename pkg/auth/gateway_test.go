package auth

import (
	"testing"

	"github.com/valyala/fasthttp"
)

func run(mw func(fasthttp.RequestHandler) fasthttp.RequestHandler, method, path string, hdrs map[string]string) (*fasthttp.RequestCtx, *bool) {
	called := false
	h := mw(func(ctx *fasthttp.RequestCtx) { called = true })
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	for k, v := range hdrs {
		ctx.Request.Header.Set(k, v)
	}
	h(ctx)
	return ctx, &called
}

func keyedConfig() SecConfig {
	return SecConfig{
		RPS:   1000,
		Burst: 1000,
		ProducerKeys: map[string]struct{}{
			"prod-key": {},
		},
		AdminKeys: map[string]struct{}{
			"admin-key": {},
		},
	}
}

func TestGatewayOpenMode(t *testing.T) {
	mw := AuthenticateRequestMiddleware(SecConfig{RPS: 1000, Burst: 1000})

	ctx, called := run(mw, "POST", "/v1/updates", nil)
	if !*called {
		t.Fatalf("open gateway blocked request: %d", ctx.Response.StatusCode())
	}
	if got := string(ctx.Request.Header.Peek("X-Role-Name")); got != "producer" {
		t.Fatalf("expected producer role got %q", got)
	}
}

func TestGatewayRequiresKey(t *testing.T) {
	mw := AuthenticateRequestMiddleware(keyedConfig())

	ctx, called := run(mw, "POST", "/v1/updates", nil)
	if *called {
		t.Fatalf("request without key reached handler")
	}
	if got := ctx.Response.StatusCode(); got != fasthttp.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", got)
	}

	ctx, called = run(mw, "POST", "/v1/updates", map[string]string{"X-API-Key": "bogus"})
	if *called || ctx.Response.StatusCode() != fasthttp.StatusUnauthorized {
		t.Fatalf("bogus key admitted: called=%v status=%d", *called, ctx.Response.StatusCode())
	}
}

func TestGatewayProducerKey(t *testing.T) {
	mw := AuthenticateRequestMiddleware(keyedConfig())

	ctx, called := run(mw, "POST", "/v1/updates", map[string]string{"X-API-Key": "prod-key"})
	if !*called {
		t.Fatalf("producer key rejected: %d", ctx.Response.StatusCode())
	}
	if got := string(ctx.Request.Header.Peek("X-Role-Name")); got != "producer" {
		t.Fatalf("expected producer role got %q", got)
	}

	// bearer form works too
	ctx, called = run(mw, "GET", "/v1/metrics", map[string]string{"Authorization": "Bearer prod-key"})
	if !*called {
		t.Fatalf("bearer producer key rejected: %d", ctx.Response.StatusCode())
	}

	// admin surface stays closed
	ctx, called = run(mw, "POST", "/v1/scopes/visuals", map[string]string{"X-API-Key": "prod-key"})
	if *called {
		t.Fatalf("producer key reached admin route")
	}
	if got := ctx.Response.StatusCode(); got != fasthttp.StatusForbidden {
		t.Fatalf("expected 403 got %d", got)
	}
	ctx, _ = run(mw, "GET", "/debug/prometheus", map[string]string{"X-API-Key": "prod-key"})
	if got := ctx.Response.StatusCode(); got != fasthttp.StatusForbidden {
		t.Fatalf("expected 403 on debug got %d", got)
	}
}

func TestGatewayAdminKey(t *testing.T) {
	mw := AuthenticateRequestMiddleware(keyedConfig())

	for _, c := range []struct{ method, path string }{
		{"POST", "/v1/scopes/visuals"},
		{"DELETE", "/v1/scopes/visuals"},
		{"POST", "/v1/updates"},
		{"GET", "/debug/prometheus"},
	} {
		ctx, called := run(mw, c.method, c.path, map[string]string{"X-API-Key": "admin-key"})
		if !*called {
			t.Fatalf("admin key rejected on %s %s: %d", c.method, c.path, ctx.Response.StatusCode())
		}
		if got := string(ctx.Request.Header.Peek("X-Role-Name")); got != "admin" {
			t.Fatalf("expected admin role got %q", got)
		}
	}
}

func TestGatewayHealthIsPublic(t *testing.T) {
	mw := AuthenticateRequestMiddleware(keyedConfig())

	for _, path := range []string{"/healthz", "/readyz"} {
		ctx, called := run(mw, "GET", path, nil)
		if !*called {
			t.Fatalf("%s blocked: %d", path, ctx.Response.StatusCode())
		}
	}
	// POST to health paths is not public
	_, called := run(mw, "POST", "/healthz", nil)
	if *called {
		t.Fatalf("POST /healthz admitted without key")
	}
}

func TestGatewayOptionsShortCircuit(t *testing.T) {
	cfg := keyedConfig()
	cfg.AllowedOrigins = []string{"https://studio.example"}
	mw := AuthenticateRequestMiddleware(cfg)

	ctx, called := run(mw, "OPTIONS", "/v1/updates", map[string]string{"Origin": "https://studio.example"})
	if *called {
		t.Fatalf("preflight reached handler")
	}
	if got := ctx.Response.StatusCode(); got != fasthttp.StatusNoContent {
		t.Fatalf("expected 204 got %d", got)
	}
	if got := string(ctx.Response.Header.Peek("Access-Control-Allow-Origin")); got != "https://studio.example" {
		t.Fatalf("missing cors origin header, got %q", got)
	}

	// disallowed origin gets no cors headers
	ctx, _ = run(mw, "OPTIONS", "/v1/updates", map[string]string{"Origin": "https://evil.example"})
	if got := string(ctx.Response.Header.Peek("Access-Control-Allow-Origin")); got != "" {
		t.Fatalf("unexpected cors header %q", got)
	}
}

func TestGatewayIPWhitelist(t *testing.T) {
	cfg := keyedConfig()
	cfg.IPWhitelist = []string{"203.0.113.7"}
	mw := AuthenticateRequestMiddleware(cfg)

	// bare RequestCtx reports 0.0.0.0, which is not whitelisted
	ctx, called := run(mw, "GET", "/healthz", nil)
	if *called {
		t.Fatalf("non-whitelisted ip admitted")
	}
	if got := ctx.Response.StatusCode(); got != fasthttp.StatusForbidden {
		t.Fatalf("expected 403 got %d", got)
	}

	cfg.IPWhitelist = []string{"0.0.0.0"}
	mw = AuthenticateRequestMiddleware(cfg)
	_, called = run(mw, "GET", "/healthz", nil)
	if !*called {
		t.Fatalf("whitelisted ip blocked")
	}
}

func TestGatewayRateLimit(t *testing.T) {
	cfg := keyedConfig()
	cfg.RPS = 1
	cfg.Burst = 1
	mw := AuthenticateRequestMiddleware(cfg)

	hdrs := map[string]string{"X-API-Key": "prod-key"}
	_, called := run(mw, "POST", "/v1/updates", hdrs)
	if !*called {
		t.Fatalf("first request should pass")
	}
	ctx, called := run(mw, "POST", "/v1/updates", hdrs)
	if *called {
		t.Fatalf("second request should be limited")
	}
	if got := ctx.Response.StatusCode(); got != fasthttp.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", got)
	}
}

func TestResolveRole(t *testing.T) {
	cfg := keyedConfig()
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.Set("X-API-Key", "admin-key")
	role, key := resolveRole(ctx, cfg)
	if role != RoleAdmin || key != "admin-key" {
		t.Fatalf("expected admin got role=%d key=%q", role, key)
	}

	ctx = &fasthttp.RequestCtx{}
	role, _ = resolveRole(ctx, cfg)
	if role != RoleUnauth {
		t.Fatalf("expected unauth got %d", role)
	}

	// open config falls back to ip-keyed producer
	ctx = &fasthttp.RequestCtx{}
	role, key = resolveRole(ctx, SecConfig{})
	if role != RoleProducer || key == "" {
		t.Fatalf("expected producer with ip key got role=%d key=%q", role, key)
	}
}
