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

// Package arena implements the bump-allocated, pointer-stable heap that
// backs the term model: a byte-addressable region in which every
// allocation returns a fixed offset that remains valid for the lifetime
// of the arena.
package arena

import (
	"encoding/binary"
	"fmt"
)

// Align is the alignment, in bytes, of every term body allocated in an
// Arena.
const Align = 4

// Pointer is an opaque offset into an Arena. The zero value is a valid
// pointer (the first allocation lands at offset 0); use Null for "no
// term".
type Pointer uint32

// Null is the distinguished pointer value meaning "no term".
const Null Pointer = 0xFFFFFFFF

// Valid reports whether p is not Null.
func (p Pointer) Valid() bool { return p != Null }

// Logf, when non-nil, receives diagnostic messages from package arena.
// It follows vm.Errorf's hook convention: nil by default, wired by a
// host program (see cmd/reflexd).
var Logf func(format string, args ...any)

func logf(f string, args ...any) {
	if Logf != nil {
		Logf(f, args...)
	}
}

// Backing is the pluggable storage behind an Arena. A Backing only ever
// grows: Grow must return a slice whose first n bytes equal the
// previous contents.
type Backing interface {
	// Bytes returns the current backing storage. The returned slice is
	// invalidated by the next call to Grow.
	Bytes() []byte
	// Grow extends the backing storage so that it is at least n bytes
	// long and returns the new storage.
	Grow(n int) []byte
	// Release returns the backing storage to its pool, if any. The
	// Arena must not be used after calling Release.
	Release()
}

// Arena is a bump-allocated, pointer-stable heap. Arena pointers
// (Pointer values) are offsets into the backing storage; dereferencing
// is a bounds-checked slice of Bytes().
//
// Arenas are not safe for concurrent allocation; each worker owns its
// arena exclusively.
type Arena struct {
	backing Backing
	end     uint32
}

// New creates an Arena over the given Backing. The backing storage is
// assumed to start empty (end offset 0).
func New(backing Backing) *Arena {
	return &Arena{backing: backing}
}

// NewAt creates an Arena over a Backing whose first end bytes are
// already populated (e.g. a worker wrapping a WASM instance's linear
// memory, which a heap snapshot already baked full of constant terms,
// or a fresh compaction target deliberately reserving a leading region
// for something other than term bodies). Allocation resumes at end.
func NewAt(backing Backing, end Pointer) *Arena {
	return &Arena{backing: backing, end: uint32(end)}
}

// StartOffset is the first valid allocated offset in the arena (always
// 0: nothing reserves the zero offset, unlike Null).
func (a *Arena) StartOffset() Pointer { return 0 }

// EndOffset is the offset one past the last allocated byte.
func (a *Arena) EndOffset() Pointer { return Pointer(a.end) }

// Allocate bump-allocates n bytes (rounded up to Align) and returns the
// pointer to the first byte. The returned region is zeroed.
func (a *Arena) Allocate(n int) Pointer {
	if n < 0 {
		panic("arena: negative allocation size")
	}
	aligned := alignUp(uint32(n), Align)
	p := a.end
	need := p + aligned
	buf := a.backing.Bytes()
	if uint32(len(buf)) < need {
		buf = a.backing.Grow(int(need))
		if uint32(len(buf)) < need {
			panic("arena: backing failed to grow")
		}
	}
	for i := p; i < need; i++ {
		buf[i] = 0
	}
	a.end = need
	return Pointer(p)
}

// Extend grows the allocation that currently ends at the arena's end
// offset by n more bytes; it asserts that p+curLen equals the current
// end offset (bump-only growth, e.g. appending list items in place).
func (a *Arena) Extend(p Pointer, curLen, n int) {
	if uint32(p)+uint32(curLen) != a.end {
		panic("arena: Extend must target the most recent allocation")
	}
	a.Allocate(n)
}

// Bytes returns the live (allocated) region of the backing storage.
func (a *Arena) Bytes() []byte {
	return a.backing.Bytes()[:a.end]
}

// slice returns a bounds-checked sub-slice of the arena at [p, p+n).
func (a *Arena) slice(p Pointer, n int) []byte {
	buf := a.backing.Bytes()
	start := uint32(p)
	end := start + uint32(n)
	if end > a.end || end < start {
		panic(fmt.Sprintf("arena: out-of-bounds access [%d,%d), end=%d", start, end, a.end))
	}
	return buf[start:end]
}

// ReadU8, ReadU32, ReadU64, ReadI32, ReadI64, ReadF64 read a typed
// little-endian value at the given offset within the arena.
func (a *Arena) ReadU8(p Pointer) uint8 { return a.slice(p, 1)[0] }
func (a *Arena) ReadU32(p Pointer) uint32 {
	return binary.LittleEndian.Uint32(a.slice(p, 4))
}
func (a *Arena) ReadU64(p Pointer) uint64 {
	return binary.LittleEndian.Uint64(a.slice(p, 8))
}
func (a *Arena) ReadI32(p Pointer) int32 { return int32(a.ReadU32(p)) }
func (a *Arena) ReadI64(p Pointer) int64 { return int64(a.ReadU64(p)) }

// WriteU8, WriteU32, WriteU64 write a typed little-endian value at the
// given offset within the arena.
func (a *Arena) WriteU8(p Pointer, v uint8) { a.slice(p, 1)[0] = v }
func (a *Arena) WriteU32(p Pointer, v uint32) {
	binary.LittleEndian.PutUint32(a.slice(p, 4), v)
}
func (a *Arena) WriteU64(p Pointer, v uint64) {
	binary.LittleEndian.PutUint64(a.slice(p, 8), v)
}

// ReadBytes returns a read-only view of n raw bytes at p.
func (a *Arena) ReadBytes(p Pointer, n int) []byte {
	return a.slice(p, n)
}

// WriteBytes copies src into the arena at p.
func (a *Arena) WriteBytes(p Pointer, src []byte) {
	copy(a.slice(p, len(src)), src)
}

// PointerIter is implemented by any term body (or the arena itself)
// that can enumerate inner pointers it holds, for DAG traversal,
// re-serialization (term.Serialize) and compaction (gc).
type PointerIter interface {
	// PointerIter calls yield once for each inner pointer. If yield
	// returns false, iteration stops early.
	PointerIter(yield func(Pointer) bool)
}

// Sizer computes a term body's size in bytes given the arena it lives
// in (some bodies, e.g. List, are variable-length and must read their
// own length field to know how large they are).
type Sizer interface {
	SizeOf(a *Arena, p Pointer) int
}

// Iterate walks every allocated term's base offset from StartOffset to
// EndOffset, decoding each term's size via sizeOf to advance, and calls
// yield with each base offset. It stops early if yield returns false.
//
// sizeOf is supplied by the term package (it must read the term's tag
// byte at p to know how to size the body) because arena itself has no
// notion of term kinds.
func (a *Arena) Iterate(sizeOf func(a *Arena, p Pointer) int, yield func(Pointer) bool) {
	a.IterateFrom(a.StartOffset(), sizeOf, yield)
}

// IterateFrom behaves like Iterate but begins scanning at start instead
// of StartOffset(). Used when the addressable space begins with
// something other than a term header that Iterate must skip over — a
// worker's WASM-backed Arena reserves its first 4 bytes for the guest
// runtime's own allocator cursor (see package worker), so a post-Gc or
// post-snapshot cons-table rebuild must resume scanning just past it.
func (a *Arena) IterateFrom(start Pointer, sizeOf func(a *Arena, p Pointer) int, yield func(Pointer) bool) {
	p := start
	for p < a.EndOffset() {
		if !yield(p) {
			return
		}
		sz := sizeOf(a, p)
		if sz <= 0 {
			logf("arena: non-positive size %d at %d, aborting iteration", sz, p)
			return
		}
		p += Pointer(alignUp(uint32(sz), Align))
	}
}

func alignUp(v, alignment uint32) uint32 {
	return ((v + alignment - 1) / alignment) * alignment
}
