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

package term

import "github.com/reflexcore/reflexcore/arena"

// Logf, when non-nil, receives diagnostic messages from this package,
// following the nil-by-default hook convention used throughout (see
// arena.Logf).
var Logf func(format string, args ...any)

// Factory is the sole construction path for terms: every
// create_<kind> constructor computes the body's structural hash,
// consults the hash-cons table, and either returns the existing
// pointer or allocates, writes, and records a fresh one. Direct
// allocation of term bodies outside Factory is forbidden.
//
// This mirrors the CSE table in vm/ssa.go (prog.exprs
// map[hashcode]*value, populated by ssa0/ssa1imm/...), generalized from
// a fixed 6-word hashcode to an arbitrary-width FNV-1a fold since terms
// here are a much richer variant than SQL SSA ops.
type Factory struct {
	Arena *arena.Arena
	cons  map[uint64]arena.Pointer
}

// NewFactory creates a Factory writing into the given arena. The arena
// should be empty (or at least not contain any terms that weren't
// built through this Factory, since the hash-cons table would then be
// incomplete and could allocate duplicate terms).
func NewFactory(a *arena.Arena) *Factory {
	return &Factory{Arena: a, cons: make(map[uint64]arena.Pointer)}
}

// Lookup returns the pointer already recorded for hash h, if any. Used
// by compiler snapshot interning to detect terms already present in a
// shared image.
func (f *Factory) Lookup(h uint64) (arena.Pointer, bool) {
	p, ok := f.cons[h]
	return p, ok
}

// intern is the hash-consing gate: if a term
// with this structural hash already exists, its pointer is returned
// unchanged (alloc is never called); otherwise alloc allocates and
// writes the new term's body (but not its header - intern writes the
// header's hash+tag once alloc returns) and the pointer is recorded.
func (f *Factory) intern(k Kind, h uint64, alloc func() arena.Pointer) arena.Pointer {
	if p, ok := f.cons[h]; ok {
		return p
	}
	p := alloc()
	writeKind(f.Arena, p, k)
	writeHash(f.Arena, p, h)
	f.cons[h] = p
	return p
}

// Rehash recomputes and re-records the hash-cons entry for a term
// already present in the arena at p. This is used by Serialize
// when terms are copied into a fresh arena during compaction: their
// byte offsets change but their structural hash does not, so the new
// Factory's cons table must be repopulated without re-running
// create_* (which would require the original unevaluated inputs).
func (f *Factory) Rehash(p arena.Pointer) {
	h := Hash(f.Arena, p)
	f.cons[h] = p
}
