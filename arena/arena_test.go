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

package arena

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocateAligned(t *testing.T) {
	a := New(NewHeapBacking())
	p1 := a.Allocate(1)
	p2 := a.Allocate(4)
	require.Equal(t, Pointer(0), p1)
	require.Equal(t, Pointer(4), p2, "allocations are rounded up to Align")
}

func TestReadWriteRoundTrip(t *testing.T) {
	a := New(NewHeapBacking())
	p := a.Allocate(8)
	a.WriteU32(p, 0xdeadbeef)
	a.WriteU32(p+4, 42)
	require.Equal(t, uint32(0xdeadbeef), a.ReadU32(p))
	require.Equal(t, uint32(42), a.ReadU32(p+4))
}

func TestOutOfBoundsPanics(t *testing.T) {
	a := New(NewHeapBacking())
	a.Allocate(4)
	require.Panics(t, func() {
		a.ReadU32(Pointer(100))
	})
}

func TestIterate(t *testing.T) {
	a := New(NewHeapBacking())
	var bases []Pointer
	for i := 0; i < 5; i++ {
		bases = append(bases, a.Allocate(4+i))
	}
	sizeOf := func(ar *Arena, p Pointer) int {
		for i, b := range bases {
			if b == p {
				return 4 + i
			}
		}
		t.Fatalf("unexpected base %d", p)
		return 0
	}
	var seen []Pointer
	a.Iterate(sizeOf, func(p Pointer) bool {
		seen = append(seen, p)
		return true
	})
	require.Equal(t, bases, seen)
}

func TestIterateEarlyStop(t *testing.T) {
	a := New(NewHeapBacking())
	a.Allocate(4)
	a.Allocate(4)
	a.Allocate(4)
	n := 0
	a.Iterate(func(*Arena, Pointer) int { return 4 }, func(Pointer) bool {
		n++
		return n < 2
	})
	require.Equal(t, 2, n)
}

func TestNullPointer(t *testing.T) {
	require.False(t, Null.Valid())
	require.True(t, Pointer(0).Valid())
}

func TestExtendMustTargetLatest(t *testing.T) {
	a := New(NewHeapBacking())
	p := a.Allocate(4)
	require.Panics(t, func() {
		a.Extend(p, 8, 4) // curLen wrong, doesn't match end
	})
}
