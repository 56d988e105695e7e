package api

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/valyala/fasthttp"

	"propsync/pkg/coordinator"
	"propsync/pkg/logger"
	"propsync/pkg/utils"
)

// Standardized error handling for coordinator operations
func handleCoordinatorError(ctx *fasthttp.RequestCtx, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, coordinator.ErrEmptyName):
		utils.JSONErrorFast(ctx, fasthttp.StatusBadRequest, err.Error())
	case errors.Is(err, coordinator.ErrDestroyed):
		utils.JSONErrorFast(ctx, fasthttp.StatusConflict, "scope destroyed")
	default:
		logger.Error("queue_update_failed", "error", err)
		utils.JSONErrorFast(ctx, fasthttp.StatusInternalServerError, "update failed")
	}
}

// standardized payload extraction and check with 100kb (102400 bytes) max size
func extractPayloadOrFail(ctx *fasthttp.RequestCtx) ([]byte, bool) {
	const maxPayloadSize = 102400 // 100 KB
	body := ctx.PostBody()
	if len(body) == 0 {
		utils.JSONErrorFast(ctx, fasthttp.StatusBadRequest, "empty request payload")
		return nil, false
	}
	if len(body) > maxPayloadSize {
		utils.JSONErrorFast(ctx, fasthttp.StatusRequestEntityTooLarge, "request payload exceeds 100kb limit")
		return nil, false
	}
	ref := make([]byte, len(body))
	copy(ref, body)
	return ref, true
}

// resolves the target coordinator for a request. An empty scope means the
// default scope, which is built lazily; named scopes must already exist.
func coordinatorFor(ctx *fasthttp.RequestCtx, scope string) (*coordinator.Coordinator, bool) {
	if scope == "" || scope == coordinator.DefaultScope {
		c, err := coordinator.Shared().Default()
		if err != nil {
			logger.Error("default_coordinator_unavailable", "error", err)
			utils.JSONErrorFast(ctx, fasthttp.StatusInternalServerError, "coordinator unavailable")
			return nil, false
		}
		return c, true
	}
	c, ok := coordinator.Shared().Get(scope)
	if !ok {
		utils.JSONErrorFast(ctx, fasthttp.StatusNotFound, fmt.Sprintf("unknown scope %q", scope))
		return nil, false
	}
	return c, true
}

// EnqueueUpdate queues one property update for frame-coalesced delivery.
func EnqueueUpdate(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("Content-Type", "application/json")

	// parse
	payload, ok := extractPayloadOrFail(ctx)
	if !ok {
		return
	}
	var req UpdateRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		utils.JSONErrorFast(ctx, fasthttp.StatusBadRequest, "invalid update payload")
		return
	}

	// validate
	if err := ValidatePropertyName(req.Name); err != nil {
		utils.JSONErrorFast(ctx, fasthttp.StatusBadRequest, err.Error())
		return
	}
	if err := ValidatePropertyValue(req.Value); err != nil {
		utils.JSONErrorFast(ctx, fasthttp.StatusBadRequest, err.Error())
		return
	}

	// resolve
	scope := req.Scope
	if scope == "" {
		scope = utils.GetQuery(ctx, "scope")
	}
	c, ok := coordinatorFor(ctx, scope)
	if !ok {
		return
	}

	if err := c.QueueUpdate(req.Name, req.Value); err != nil {
		handleCoordinatorError(ctx, err)
		return
	}

	_ = utils.JSONWriteFast(ctx, fasthttp.StatusAccepted, QueuedResponse{
		Scope:   c.Scope(),
		Queued:  1,
		Pending: c.Pending(),
	})
}

// EnqueueUpdateBatch queues an array of property updates in order. The batch
// is validated as a whole before anything is queued.
func EnqueueUpdateBatch(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("Content-Type", "application/json")

	// parse
	payload, ok := extractPayloadOrFail(ctx)
	if !ok {
		return
	}
	var updates []BatchUpdate
	if err := json.Unmarshal(payload, &updates); err != nil {
		utils.JSONErrorFast(ctx, fasthttp.StatusBadRequest, "invalid batch payload: expected an array of updates")
		return
	}
	if len(updates) == 0 {
		utils.JSONErrorFast(ctx, fasthttp.StatusBadRequest, "batch must not be empty")
		return
	}
	if len(updates) > maxBatchUpdates {
		utils.JSONErrorFast(ctx, fasthttp.StatusRequestEntityTooLarge, fmt.Sprintf("batch exceeds %d updates", maxBatchUpdates))
		return
	}

	// validate all entries before queueing any
	for i, u := range updates {
		if err := ValidatePropertyName(u.Name); err != nil {
			utils.JSONErrorFast(ctx, fasthttp.StatusBadRequest, fmt.Sprintf("update %d: %v", i, err))
			return
		}
		if err := ValidatePropertyValue(u.Value); err != nil {
			utils.JSONErrorFast(ctx, fasthttp.StatusBadRequest, fmt.Sprintf("update %d: %v", i, err))
			return
		}
	}

	// resolve
	c, ok := coordinatorFor(ctx, utils.GetQuery(ctx, "scope"))
	if !ok {
		return
	}

	for _, u := range updates {
		if err := c.QueueUpdate(u.Name, u.Value); err != nil {
			handleCoordinatorError(ctx, err)
			return
		}
	}

	_ = utils.JSONWriteFast(ctx, fasthttp.StatusAccepted, QueuedResponse{
		Scope:   c.Scope(),
		Queued:  len(updates),
		Pending: c.Pending(),
	})
}

// Flush forces pending updates onto the surface. Without a scope every live
// coordinator is flushed.
func Flush(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("Content-Type", "application/json")

	scope := utils.GetQuery(ctx, "scope")
	if scope == "" && len(ctx.PostBody()) > 0 {
		var req struct {
			Scope string `json:"scope"`
		}
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
			utils.JSONErrorFast(ctx, fasthttp.StatusBadRequest, "invalid flush payload")
			return
		}
		scope = req.Scope
	}

	if scope == "" {
		reg := coordinator.Shared()
		if err := reg.FlushAll(); err != nil {
			logger.Error("flush_all_request_failed", "error", err)
			utils.JSONErrorFast(ctx, fasthttp.StatusInternalServerError, "flush failed")
			return
		}
		_ = utils.JSONWriteFast(ctx, fasthttp.StatusOK, FlushResponse{Status: "ok", Scopes: reg.Names()})
		return
	}

	c, ok := coordinatorFor(ctx, scope)
	if !ok {
		return
	}
	if err := c.ForceFlush(); err != nil {
		handleCoordinatorError(ctx, err)
		return
	}
	_ = utils.JSONWriteFast(ctx, fasthttp.StatusOK, FlushResponse{Status: "ok", Scopes: []string{c.Scope()}})
}
