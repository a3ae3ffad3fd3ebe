package config

import (
	"cmp"
	"slices"
	"strings"
)

// Resolve returns the configured module IDs in load order: repositories
// first, the gateway last, everything else sorted in between. The order is
// deterministic so module loading is consistent across runs.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		return cmp.Or(cmp.Compare(rank(a), rank(b)), cmp.Compare(a, b))
	})
	return ids
}

func rank(id string) int {
	switch {
	case slices.Contains(repositoryModules, id):
		return 0
	case strings.HasPrefix(id, "gateway."):
		return 2
	default:
		return 1
	}
}
