// Package core provides the module system foundation for surveil.
package core

import (
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"
)

// AppContext is what a module sees while it is built: a scoped logger, the
// evidence and output directories, its configuration, and the shared
// service registry.
type AppContext struct {
	// Logger is scoped to the module being loaded.
	Logger *slog.Logger

	// DataDir holds the evidence data sources (CSV files).
	DataDir string

	// OutputDir receives decisions, reports, debug dumps and the audit log.
	OutputDir string

	root     *slog.Logger
	configs  map[string]yaml.Node
	services *services
}

// NewAppContext returns a root context. A nil logger uses slog.Default.
func NewAppContext(logger *slog.Logger, dataDir, outputDir string) *AppContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &AppContext{
		Logger:    logger,
		DataDir:   dataDir,
		OutputDir: outputDir,
		root:      logger,
		services:  newServices(),
	}
}

// WithModuleConfigs returns a copy carrying the raw configuration of each
// module, keyed by module ID.
func (ctx *AppContext) WithModuleConfigs(configs map[string]yaml.Node) *AppContext {
	cp := *ctx
	cp.configs = configs
	return &cp
}

// ForModule derives the context handed to module id. It shares the
// service registry with ctx.
func (ctx *AppContext) ForModule(id ModuleID) *AppContext {
	cp := *ctx
	cp.Logger = ctx.root.With("module", string(id))
	return &cp
}

// Load stages, in the order LoadModule runs them.
const (
	StageConfigure = "configure"
	StageProvision = "provision"
	StageValidate  = "validate"
)

// LoadError reports the stage at which a module failed to load.
type LoadError struct {
	ID    string
	Stage string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("module %s: %s: %v", e.ID, e.Stage, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// LoadModule builds module id: New, then Configure when the module has a
// configuration section, then Provision and Validate.
func (ctx *AppContext) LoadModule(id string) (Module, error) {
	info, ok := GetModule(id)
	if !ok {
		return nil, fmt.Errorf("unknown module: %s", id)
	}
	mod := info.New()

	if c, ok := mod.(Configurable); ok {
		if node, ok := ctx.configs[id]; ok {
			if err := c.Configure(&node); err != nil {
				return nil, &LoadError{ID: id, Stage: StageConfigure, Err: err}
			}
		}
	}
	if p, ok := mod.(Provisioner); ok {
		if err := p.Provision(ctx.ForModule(info.ID)); err != nil {
			return nil, &LoadError{ID: id, Stage: StageProvision, Err: err}
		}
	}
	if v, ok := mod.(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, &LoadError{ID: id, Stage: StageValidate, Err: err}
		}
	}
	return mod, nil
}
