// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package config loads cmd/reflexd's YAML configuration file via
// sigs.k8s.io/yaml.
package config

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"

	"github.com/reflexcore/reflexcore/actor"
)

// Config is cmd/reflexd's on-disk configuration.
type Config struct {
	// Listen is the address the debug/diagnostics HTTP endpoint
	// (/debug/queries) binds to. Empty disables it.
	Listen string `json:"listen"`

	// RuntimeLibrary is the path to the compiled WASM runtime-library
	// module a worker instantiates for every query.
	RuntimeLibrary string `json:"runtimeLibrary"`

	// ModuleCacheDir is the directory snapshot.Cache persists captured
	// (post-bootstrap) runtime-library modules under. Empty disables
	// the on-disk cache; a fresh Capture runs on every startup.
	ModuleCacheDir string `json:"moduleCacheDir"`

	// GCThreshold overrides actor.defaultGcThreshold: how many
	// evaluations a cache entry runs between compacting Gc passes.
	// Zero keeps the built-in default.
	GCThreshold int `json:"gcThreshold"`

	// InvalidationStrategy selects the default QueryInvalidationStrategy
	// new subscriptions start with: "exact" (the default) or
	// "combine-update-batches".
	InvalidationStrategy string `json:"invalidationStrategy"`
}

// Default returns a Config with the built-in defaults, the same values
// NewEvaluateHandler and a fresh subscription use when nothing in the
// file overrides them.
func Default() Config {
	return Config{
		Listen:                "127.0.0.1:6000",
		InvalidationStrategy: "exact",
	}
}

// Load reads and parses the YAML configuration file at path, filling
// in any field the file omits from Default.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects a configuration cmd/reflexd cannot start with.
func (c Config) Validate() error {
	if c.RuntimeLibrary == "" {
		return fmt.Errorf("runtimeLibrary is required")
	}
	switch c.InvalidationStrategy {
	case "exact", "combine-update-batches":
	default:
		return fmt.Errorf("invalidationStrategy: unknown value %q", c.InvalidationStrategy)
	}
	return nil
}

// Strategy decodes InvalidationStrategy into the actor package's enum.
func (c Config) Strategy() actor.QueryInvalidationStrategy {
	if c.InvalidationStrategy == "combine-update-batches" {
		return actor.InvalidationCombineUpdateBatches
	}
	return actor.InvalidationExact
}
