package utils

import (
	"encoding/json"

	"github.com/valyala/bytebufferpool"
	"github.com/valyala/fasthttp"
)

// JSONWriteFast encodes v into a pooled buffer and writes it as the response
// body. A zero status leaves fasthttp's default 200 untouched.
func JSONWriteFast(ctx *fasthttp.RequestCtx, status int, v interface{}) error {
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)
	if err := json.NewEncoder(bb).Encode(v); err != nil {
		return err
	}
	ctx.SetContentType("application/json")
	if status != 0 {
		ctx.SetStatusCode(status)
	}
	ctx.SetBody(bb.B)
	return nil
}

// JSONErrorFast writes a JSON error response.
func JSONErrorFast(ctx *fasthttp.RequestCtx, status int, message string) {
	ctx.ResetBody()
	_ = JSONWriteFast(ctx, status, map[string]string{"error": message})
}
