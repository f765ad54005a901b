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

package lru

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetPutRoundTrip(t *testing.T) {
	c := New[string, int](2)
	c.Put("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[string, int](2)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Get("a") // a is now most-recently-used
	c.Put("c", 3) // evicts b

	_, ok := c.Get("b")
	require.False(t, ok)
	_, ok = c.Get("a")
	require.True(t, ok)
	_, ok = c.Get("c")
	require.True(t, ok)
}

func TestZeroCapacityDisablesCache(t *testing.T) {
	c := New[string, int](0)
	c.Put("a", 1)
	_, ok := c.Get("a")
	require.False(t, ok)
}
