package config

import (
	"cmp"
	"maps"
	"slices"

	"github.com/flemzord/surveil/internal/core"
)

// loadRank orders module namespaces: decision stores provision before the
// engine, and the gateway, which consumes both, comes last.
var loadRank = map[string]int{"storage": 1, "engine": 2, "gateway": 3}

// Resolve returns the configured module IDs in load order: by namespace
// rank, then by ID. Unknown namespaces load after the known ones.
func Resolve(cfg *Config) []string {
	ids := slices.Collect(maps.Keys(cfg.Modules))
	slices.SortFunc(ids, func(a, b string) int {
		return cmp.Or(cmp.Compare(rank(a), rank(b)), cmp.Compare(a, b))
	})
	return ids
}

func rank(id string) int {
	if r, ok := loadRank[core.ModuleID(id).Namespace()]; ok {
		return r
	}
	return len(loadRank) + 1
}
