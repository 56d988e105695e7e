package utils

import (
	"strconv"
	"strings"

	"github.com/valyala/fasthttp"
)

// Header utilities

// GetHeader returns header value with trimming
func GetHeader(ctx *fasthttp.RequestCtx, key string) string {
	return strings.TrimSpace(string(ctx.Request.Header.Peek(key)))
}

// GetHeaderLower returns header value with trimming and lowercase
func GetHeaderLower(ctx *fasthttp.RequestCtx, key string) string {
	return strings.ToLower(GetHeader(ctx, key))
}

// Query parameter utilities

// GetQuery returns query parameter value with trimming
func GetQuery(ctx *fasthttp.RequestCtx, key string) string {
	return strings.TrimSpace(string(ctx.QueryArgs().Peek(key)))
}

// GetQueryInt returns query parameter value as integer, with default fallback
func GetQueryInt(ctx *fasthttp.RequestCtx, key string, defaultValue int) int {
	value := GetQuery(ctx, key)
	if value == "" {
		return defaultValue
	}
	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}
	return defaultValue
}

// Path utilities

// GetPath returns the request path as string
func GetPath(ctx *fasthttp.RequestCtx) string {
	return string(ctx.Path())
}

// HasPathPrefix checks if the request path starts with the given prefix
func HasPathPrefix(ctx *fasthttp.RequestCtx, prefix string) bool {
	return strings.HasPrefix(GetPath(ctx), prefix)
}

// HasPath checks if the request path exactly matches the given path
func HasPath(ctx *fasthttp.RequestCtx, path string) bool {
	return GetPath(ctx) == path
}

// ExtractAPIKey reads the key from the Authorization header or X-API-Key
func ExtractAPIKey(ctx *fasthttp.RequestCtx) string {
	auth := GetHeader(ctx, "Authorization")

	// "Bearer <token>" with flexible whitespace
	if auth != "" {
		parts := strings.Fields(auth)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}

	return GetHeader(ctx, "X-API-Key")
}
