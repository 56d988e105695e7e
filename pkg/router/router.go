package router

import (
	"strings"

	"github.com/valyala/fasthttp"
)

// Router dispatches fasthttp requests by method and path. Paths may carry
// {name} parameters; matched values land in the request's user values and
// are read back with Param. Unknown paths get 404, known paths hit with the
// wrong method get 405 with an Allow header.
type Router struct {
	byMethod map[string][]route
	notFound fasthttp.RequestHandler
}

type route struct {
	pattern pattern
	handler fasthttp.RequestHandler
}

type pattern []segment

type segment struct {
	literal string
	param   string
}

// New returns an empty router.
func New() *Router {
	return &Router{byMethod: make(map[string][]route)}
}

// Handle registers h for method and path.
func (r *Router) Handle(method, path string, h fasthttp.RequestHandler) {
	r.byMethod[method] = append(r.byMethod[method], route{pattern: compile(path), handler: h})
}

// GET registers a GET handler.
func (r *Router) GET(path string, h fasthttp.RequestHandler) { r.Handle("GET", path, h) }

// POST registers a POST handler.
func (r *Router) POST(path string, h fasthttp.RequestHandler) { r.Handle("POST", path, h) }

// DELETE registers a DELETE handler.
func (r *Router) DELETE(path string, h fasthttp.RequestHandler) { r.Handle("DELETE", path, h) }

// NotFound registers a handler for unmatched paths.
func (r *Router) NotFound(h fasthttp.RequestHandler) { r.notFound = h }

// Param returns the value captured for a {name} segment, or "".
func Param(ctx *fasthttp.RequestCtx, name string) string {
	if v, ok := ctx.UserValue(name).(string); ok {
		return v
	}
	return ""
}

// Handler satisfies fasthttp.Server.
func (r *Router) Handler(ctx *fasthttp.RequestCtx) {
	method := string(ctx.Method())
	path := string(ctx.Path())

	for _, rt := range r.byMethod[method] {
		if rt.pattern.match(path, ctx) {
			rt.handler(ctx)
			return
		}
	}

	// a different method may own this path
	if allow := r.allowedMethods(method, path); len(allow) > 0 {
		// Error resets the response, so the header must go on afterwards
		ctx.Error(fasthttp.StatusMessage(fasthttp.StatusMethodNotAllowed), fasthttp.StatusMethodNotAllowed)
		ctx.Response.Header.Set("Allow", strings.Join(allow, ", "))
		return
	}

	if r.notFound != nil {
		r.notFound(ctx)
		return
	}
	ctx.Error(fasthttp.StatusMessage(fasthttp.StatusNotFound), fasthttp.StatusNotFound)
}

func (r *Router) allowedMethods(requested, path string) []string {
	var allow []string
	for method, routes := range r.byMethod {
		if method == requested {
			continue
		}
		for _, rt := range routes {
			if rt.pattern.match(path, nil) {
				allow = append(allow, method)
				break
			}
		}
	}
	return allow
}

func compile(path string) pattern {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return pattern{}
	}
	parts := strings.Split(path, "/")
	p := make(pattern, len(parts))
	for i, part := range parts {
		if len(part) > 2 && part[0] == '{' && part[len(part)-1] == '}' {
			p[i] = segment{param: part[1 : len(part)-1]}
		} else {
			p[i] = segment{literal: part}
		}
	}
	return p
}

// match reports whether path fits the pattern, storing captured params on
// ctx when one is given.
func (p pattern) match(path string, ctx *fasthttp.RequestCtx) bool {
	path = strings.TrimPrefix(path, "/")
	if len(p) == 0 {
		return path == ""
	}
	var parts []string
	if path != "" {
		parts = strings.Split(path, "/")
	}
	if len(parts) != len(p) {
		return false
	}
	for i, seg := range p {
		if seg.param != "" {
			continue
		}
		if seg.literal != parts[i] {
			return false
		}
	}
	if ctx != nil {
		for i, seg := range p {
			if seg.param != "" {
				ctx.SetUserValue(seg.param, parts[i])
			}
		}
	}
	return true
}
