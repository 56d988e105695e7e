package api

import (
	"errors"

	"github.com/valyala/fasthttp"
	"gopkg.in/yaml.v3"

	"propsync/pkg/config"
	"propsync/pkg/coordinator"
	"propsync/pkg/logger"
	"propsync/pkg/router"
	"propsync/pkg/utils"
)

// ListScopes returns the live scope names.
func ListScopes(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("Content-Type", "application/json")
	_ = utils.JSONWriteFast(ctx, fasthttp.StatusOK, struct {
		Scopes []string `json:"scopes"`
	}{Scopes: coordinator.Shared().Names()})
}

// CreateScope registers a coordinator for a new scope.
func CreateScope(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("Content-Type", "application/json")

	// extract
	name := router.Param(ctx, "name")
	if err := ValidateScopeName(name); err != nil {
		utils.JSONErrorFast(ctx, fasthttp.StatusBadRequest, err.Error())
		return
	}

	c, err := coordinator.Shared().Create(name)
	if err != nil {
		if errors.Is(err, coordinator.ErrScopeExists) {
			utils.JSONErrorFast(ctx, fasthttp.StatusConflict, err.Error())
			return
		}
		logger.Error("scope_create_failed", "scope", name, "error", err)
		utils.JSONErrorFast(ctx, fasthttp.StatusInternalServerError, "scope create failed")
		return
	}
	_ = utils.JSONWriteFast(ctx, fasthttp.StatusCreated, ScopeResponse{Scope: c.Scope()})
}

// DestroyScope destroys a scope's coordinator, discarding pending updates.
func DestroyScope(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("Content-Type", "application/json")

	// extract
	name := router.Param(ctx, "name")
	if err := ValidateScopeName(name); err != nil {
		utils.JSONErrorFast(ctx, fasthttp.StatusBadRequest, err.Error())
		return
	}

	if !coordinator.Shared().Remove(name) {
		utils.JSONErrorFast(ctx, fasthttp.StatusNotFound, "unknown scope")
		return
	}
	logger.Info("scope_destroyed", "scope", name)
	_ = utils.JSONWriteFast(ctx, fasthttp.StatusOK, ScopeResponse{Scope: name, Destroyed: true})
}

// DebugConfig dumps the active configuration as YAML. API keys are replaced
// with counts.
func DebugConfig(ctx *fasthttp.RequestCtx) {
	cfg := config.Get()

	red := *cfg
	red.Security.APIKeys.Producer = nil
	red.Security.APIKeys.Admin = nil

	out, err := yaml.Marshal(struct {
		Config       *config.Config `yaml:"config"`
		ProducerKeys int            `yaml:"producer_keys"`
		AdminKeys    int            `yaml:"admin_keys"`
	}{&red, len(cfg.Security.APIKeys.Producer), len(cfg.Security.APIKeys.Admin)})
	if err != nil {
		logger.Error("config_dump_failed", "error", err)
		utils.JSONErrorFast(ctx, fasthttp.StatusInternalServerError, "config dump failed")
		return
	}
	ctx.SetContentType("text/yaml")
	ctx.SetStatusCode(fasthttp.StatusOK)
	_, _ = ctx.Write(out)
}
