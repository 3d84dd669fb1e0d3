// Package config centralizes environment/CLI configuration (C9): RIX_ROOT
// and RIX_VERBOSE merged with command-line overrides. Grounded on the
// teacher's config package existing as the place such settings are
// centralized, simplified since this domain has no device-configuration
// DSL to parse.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config is the resolved set of values the CLI and emulator aggregate need.
type Config struct {
	// Root stands in for the guest's root filesystem; shared-library paths
	// are resolved relative to it. Empty means "current directory".
	Root string

	// Verbose is 0 (warnings/errors only), 1 (+ syscall trace), or 2
	// (+ per-instruction SWI trace).
	Verbose int
}

// Load merges RIX_ROOT/RIX_VERBOSE with CLI overrides (flagRoot/flagVerbose
// win when non-nil/non-empty), validating that a non-empty Root names an
// existing directory (read permission is not checked).
func Load(flagRoot *string, flagVerbose *int) (Config, error) {
	cfg := Config{Root: os.Getenv("RIX_ROOT")}

	if v := os.Getenv("RIX_VERBOSE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: RIX_VERBOSE=%q is not an integer", v)
		}
		cfg.Verbose = n
	}

	if flagRoot != nil && *flagRoot != "" {
		cfg.Root = *flagRoot
	}
	if flagVerbose != nil {
		cfg.Verbose = *flagVerbose
	}

	if cfg.Root != "" {
		info, err := os.Stat(cfg.Root)
		if err != nil {
			return Config{}, fmt.Errorf("config: RIX_ROOT %q: %w", cfg.Root, err)
		}
		if !info.IsDir() {
			return Config{}, fmt.Errorf("config: RIX_ROOT %q is not a directory", cfg.Root)
		}
	}

	return cfg, nil
}
