package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// envRef matches ${NAME} and ${NAME:-fallback}.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-((?:[^}\\]|\\.)*))?\}`)

// Load reads the file at path, substitutes environment references and
// parses it. Relative data and output directories are anchored at the
// directory holding the file, so a service started from / finds the same
// evidence as an operator in the project directory.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	expanded, err := substituteEnv(raw)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	cfg, err := Parse(expanded)
	if err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	base := filepath.Dir(path)
	cfg.Analysis.DataDir = anchor(base, cfg.Analysis.DataDir)
	cfg.Analysis.OutputDir = anchor(base, cfg.Analysis.OutputDir)
	return cfg, nil
}

// Parse decodes already-substituted YAML and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func anchor(base, dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(base, dir)
}

// substituteEnv replaces environment references. A reference to an unset
// variable without fallback is an error; all of them are reported at once.
func substituteEnv(raw []byte) ([]byte, error) {
	var missing []error
	out := envRef.ReplaceAllFunc(raw, func(ref []byte) []byte {
		m := envRef.FindSubmatch(ref)
		if v, ok := os.LookupEnv(string(m[1])); ok {
			return []byte(v)
		}
		if m[2] != nil {
			return m[2]
		}
		missing = append(missing, fmt.Errorf("unresolved variable: %s", m[1]))
		return ref
	})
	return out, errors.Join(missing...)
}
