package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/skillminer/memoryd/internal/memory"
)

// envRef matches ${VAR} and ${VAR:-default}. A doubled $$ escapes the
// reference, so "$${VAR}" stays literal.
var envRef = regexp.MustCompile(`\$?\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// Load reads memoryd.yaml and returns a configuration with variables
// expanded, STM_*/LTM_* overrides applied and defaults filled in. Unknown
// top-level or memory keys are rejected so a misspelt tunable does not
// silently fall back to its default.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	expanded, err := expandEnv(raw, os.LookupEnv)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", memory.ErrConfiguration, path, err)
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s is empty", memory.ErrConfiguration, path)
		}
		return nil, fmt.Errorf("%w: parsing %s: %w", memory.ErrConfiguration, path, err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("%w: %w", memory.ErrConfiguration, err)
	}
	cfg.ApplyDefaults()

	return &cfg, nil
}

// expandEnv substitutes variable references in raw. Every unresolved
// variable is reported at once.
func expandEnv(raw []byte, lookup func(string) (string, bool)) ([]byte, error) {
	var missing []string
	out := envRef.ReplaceAllFunc(raw, func(match []byte) []byte {
		if bytes.HasPrefix(match, []byte("$$")) {
			return match[1:]
		}
		sub := envRef.FindSubmatch(match)
		name := string(sub[1])
		if v, ok := lookup(name); ok {
			return []byte(v)
		}
		if sub[2] != nil || bytes.Contains(match, []byte(":-")) {
			return sub[2]
		}
		missing = append(missing, name)
		return match
	})

	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, fmt.Errorf("unresolved variables: %s", strings.Join(slices.Compact(missing), ", "))
	}
	return out, nil
}
