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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reflexcore/reflexcore/actor"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reflexd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadFillsInDefaults(t *testing.T) {
	path := writeConfig(t, "runtimeLibrary: /var/lib/reflexd/runtime.wasm\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:6000", cfg.Listen)
	require.Equal(t, "exact", cfg.InvalidationStrategy)
	require.Equal(t, actor.InvalidationExact, cfg.Strategy())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, "runtimeLibrary: r.wasm\nlisten: 0.0.0.0:9999\ninvalidationStrategy: combine-update-batches\ngcThreshold: 8\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9999", cfg.Listen)
	require.Equal(t, 8, cfg.GCThreshold)
	require.Equal(t, actor.InvalidationCombineUpdateBatches, cfg.Strategy())
}

func TestLoadRejectsMissingRuntimeLibrary(t *testing.T) {
	path := writeConfig(t, "listen: 127.0.0.1:1\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsUnknownInvalidationStrategy(t *testing.T) {
	path := writeConfig(t, "runtimeLibrary: r.wasm\ninvalidationStrategy: bogus\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
}
