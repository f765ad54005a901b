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

package snapshot

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCacheStoreThenLoadRoundTrips(t *testing.T) {
	c, err := NewCache(t.TempDir())
	require.NoError(t, err)
	defer c.Close()

	module := []byte("fake wasm bytes, repeated for compressibility fake wasm bytes")
	require.NoError(t, c.Store(1, module))

	got, ok, err := c.Load(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, module, got)
}

func TestCacheLoadMissingKeyReturnsNotOk(t *testing.T) {
	c, err := NewCache(t.TempDir())
	require.NoError(t, err)
	defer c.Close()

	_, ok, err := c.Load(42)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCacheStoreOverwritesExistingEntry(t *testing.T) {
	c, err := NewCache(t.TempDir())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Store(7, []byte("first")))
	require.NoError(t, c.Store(7, []byte("second, and longer")))

	got, ok, err := c.Load(7)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("second, and longer"), got)
}
