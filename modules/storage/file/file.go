// Package file implements the storage.file module: decisions kept as one
// JSON document per alert under the output directory.
package file

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/surveil/internal/core"
	"github.com/flemzord/surveil/internal/decision"
)

func init() {
	core.RegisterModule(&Module{})
}

var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
)

// Config holds the storage.file module configuration.
type Config struct {
	// Dir holds the decision documents. Defaults to {OutputDir}/decisions.
	Dir string `yaml:"dir"`
}

// Module publishes a decision.FileStore.
type Module struct {
	config Config
	store  *decision.FileStore
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "storage.file",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("storage.file: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	if m.config.Dir == "" {
		m.config.Dir = filepath.Join(ctx.OutputDir, "decisions")
	}
	if err := os.MkdirAll(m.config.Dir, 0o750); err != nil {
		return fmt.Errorf("storage.file: %w", err)
	}
	m.store = decision.NewFileStore(m.config.Dir)
	ctx.RegisterService(decision.StoreService, m.store)
	ctx.Logger.Info("file decision store provisioned", "dir", m.config.Dir)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	info, err := os.Stat(m.config.Dir)
	if err != nil {
		return fmt.Errorf("storage.file: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage.file: %s is not a directory", m.config.Dir)
	}
	return nil
}
