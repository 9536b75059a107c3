// Package anthropic provides the engine.anthropic module: a reasoning
// engine on the Anthropic Messages API, used both for investigation rounds
// and for evidence interpretation.
package anthropic

import (
	"errors"
	"log/slog"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/surveil/internal/core"
	"github.com/flemzord/surveil/internal/engine"
)

func init() {
	core.RegisterModule(&Engine{})
}

var (
	_ core.Module          = (*Engine)(nil)
	_ core.Configurable    = (*Engine)(nil)
	_ core.Provisioner     = (*Engine)(nil)
	_ core.Validator       = (*Engine)(nil)
	_ engine.Engine        = (*Engine)(nil)
	_ engine.Streamer      = (*Engine)(nil)
	_ engine.HealthChecker = (*Engine)(nil)
)

// Engine is the engine.anthropic module.
type Engine struct {
	config Config
	client *sdk.Client
	logger *slog.Logger
}

// ModuleInfo implements core.Module.
func (e *Engine) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "engine.anthropic",
		New: func() core.Module { return &Engine{} },
	}
}

// Configure implements core.Configurable.
func (e *Engine) Configure(node *yaml.Node) error {
	return node.Decode(&e.config)
}

// Provision implements core.Provisioner. The engine is published as the
// process-wide engine service.
func (e *Engine) Provision(ctx *core.AppContext) error {
	e.config.applyDefaults()
	e.logger = ctx.Logger
	if e.config.apiKey() == "" {
		e.logger.Warn("no API key configured; requests will be rejected", "env", e.config.APIKeyEnv)
	}

	client := sdk.NewClient(e.config.clientOptions()...)
	e.client = &client

	e.logger.Info("engine ready", "model", e.config.Model, "max_tokens", e.config.MaxTokens)
	ctx.RegisterService(engine.Service, engine.Engine(e))
	return nil
}

// Validate implements core.Validator.
func (e *Engine) Validate() error {
	if e.client == nil {
		return errors.New("engine.anthropic: not provisioned")
	}
	return e.config.validate()
}

// ModelName implements engine.Engine.
func (e *Engine) ModelName() string { return e.config.Model }
