package auth

import (
	"net"
	"strings"

	"github.com/valyala/fasthttp"

	"propsync/pkg/logger"
	"propsync/pkg/utils"
)

// AuthenticateRequestMiddleware wraps the API with the request gateway:
// request logging, CORS, IP whitelist, API key roles, per-key rate limiting.
// With no keys configured the gateway runs open and every caller is treated
// as a producer.
func AuthenticateRequestMiddleware(cfg SecConfig) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	limiters := newLimiterPool(cfg.RPS, cfg.Burst)
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			logger.LogRequestFast(ctx)

			// cors headers and options shortcut
			origin := utils.GetHeader(ctx, "Origin")
			if origin != "" && originAllowed(origin, cfg.AllowedOrigins) {
				ctx.Response.Header.Set("Access-Control-Allow-Origin", origin)
				ctx.Response.Header.Set("Vary", "Origin")
				ctx.Response.Header.Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
				ctx.Response.Header.Set("Access-Control-Max-Age", "600")
				ctx.Response.Header.Set("Access-Control-Allow-Headers", "Authorization,Content-Type,X-API-Key")
				ctx.Response.Header.Set("Access-Control-Expose-Headers", "X-Role-Name")
			}
			if string(ctx.Method()) == fasthttp.MethodOptions {
				ctx.SetStatusCode(fasthttp.StatusNoContent)
				return
			}

			// ip whitelist check (always before all other checks except cors/options)
			if len(cfg.IPWhitelist) > 0 {
				ip := clientIPFast(ctx)
				if !ipWhitelisted(ip, cfg.IPWhitelist) {
					utils.JSONErrorFast(ctx, fasthttp.StatusForbidden, "forbidden")
					logger.Warn("request_blocked", "reason", "ip_not_whitelisted", "ip", ip, "path", utils.GetPath(ctx))
					return
				}
			}

			// health endpoints skip auth
			if publicAllowedPath(ctx) {
				ctx.Request.Header.Set("X-Role-Name", "unauth")
				next(ctx)
				return
			}

			role, key := resolveRole(ctx, cfg)

			var roleName string
			switch role {
			case RoleProducer:
				roleName = "producer"
			case RoleAdmin:
				roleName = "admin"
			default:
				roleName = "unauth"
			}

			if role == RoleUnauth {
				utils.JSONErrorFast(ctx, fasthttp.StatusUnauthorized, "unauthorized")
				logger.Warn("request_unauthorized", "path", utils.GetPath(ctx), "remote", ctx.RemoteAddr().String())
				return
			}
			ctx.Request.Header.Set("X-Role-Name", roleName)

			// producers cannot touch scope administration or debug surfaces
			if role == RoleProducer && adminOnlyPath(ctx) {
				utils.JSONErrorFast(ctx, fasthttp.StatusForbidden, "producer api keys cannot access admin routes")
				logger.Warn("producer_admin_access_attempt", "path", utils.GetPath(ctx), "remote", ctx.RemoteAddr().String())
				return
			}

			// rate limiting (per key, per ip when open)
			if !limiters.Allow(key) {
				utils.JSONErrorFast(ctx, fasthttp.StatusTooManyRequests, "rate limit exceeded")
				logger.Warn("rate_limited", "role", roleName, "path", utils.GetPath(ctx))
				return
			}

			next(ctx)
		}
	}
}

func clientIPFast(ctx *fasthttp.RequestCtx) string {
	host := ctx.RemoteAddr().String()
	h, _, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}
	return h
}

// resolveRole maps the request's API key to a role. The limiter key is the
// API key when present, else the client IP.
func resolveRole(ctx *fasthttp.RequestCtx, cfg SecConfig) (Role, string) {
	key := utils.ExtractAPIKey(ctx)

	if cfg.Open() {
		if key == "" {
			key = clientIPFast(ctx)
		}
		return RoleProducer, key
	}
	if key == "" {
		return RoleUnauth, clientIPFast(ctx)
	}
	if _, ok := cfg.AdminKeys[key]; ok {
		return RoleAdmin, key
	}
	if _, ok := cfg.ProducerKeys[key]; ok {
		return RoleProducer, key
	}
	return RoleUnauth, key
}

func adminOnlyPath(ctx *fasthttp.RequestCtx) bool {
	if utils.HasPathPrefix(ctx, "/v1/scopes") {
		return true
	}
	if utils.HasPathPrefix(ctx, "/debug") {
		return true
	}
	return false
}

func originAllowed(origin string, allowed []string) bool {
	if len(allowed) == 0 {
		return false
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

func ipWhitelisted(ip string, list []string) bool {
	for _, w := range list {
		if ip == w {
			return true
		}
	}
	return false
}

func publicAllowedPath(ctx *fasthttp.RequestCtx) bool {
	path := utils.GetPath(ctx)
	method := string(ctx.Method())

	if (path == "/healthz" || path == "/readyz") && method == fasthttp.MethodGet {
		return true
	}

	return false
}
