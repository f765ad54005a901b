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

// Serialize copies every term reachable from roots out of src into dst
// — the same traversal worker.Gc's compacting re-serialization uses —
// deduplicating repeated src pointers and rewriting each copied term's
// child pointers to their new dst location. It returns the dst pointer
// corresponding to each root, in the same order as roots.
//
// A term's body is copied verbatim (same bytes, same structural hash)
// and only the pointer-valued fields are patched in place, so dstFactory
// never has to re-run a create_* constructor to rebuild a term from
// scratch; it only needs Rehash to learn the copy's hash-cons entry.
// Children are copied before their parents so every pointer field is
// known by the time the parent's body is rewritten.
func Serialize(src *arena.Arena, roots []arena.Pointer, dst *arena.Arena, dstFactory *Factory) []arena.Pointer {
	memo := make(map[arena.Pointer]arena.Pointer, len(roots))

	var copyTerm func(p arena.Pointer) arena.Pointer
	copyTerm = func(p arena.Pointer) arena.Pointer {
		if !p.Valid() {
			return arena.Null
		}
		if np, ok := memo[p]; ok {
			return np
		}

		var children []arena.Pointer
		PointerIter(src, p, func(c arena.Pointer) bool {
			children = append(children, copyTerm(c))
			return true
		})

		sz := SizeOf(src, p)
		raw := src.ReadBytes(p, sz)
		np := dst.Allocate(sz)
		dst.WriteBytes(np, raw)
		memo[p] = np

		rewritePointers(dst, np, children)
		dstFactory.Rehash(np)
		return np
	}

	out := make([]arena.Pointer, len(roots))
	for i, r := range roots {
		out[i] = copyTerm(r)
	}
	return out
}

// rewritePointers patches the pointer-valued fields of the term body
// just copied to p, in dst, with their corresponding entries from
// children. children must be in the exact order PointerIter would have
// produced them for this term's Kind (Serialize gathers them that way),
// including the same Valid()-guarded omissions for optional pointers
// (Lambda's env, Constructor's args, Condition's ptrA/ptrB, Effect's
// subscribeArgs, LazyResult's cache, Tree's left/right).
func rewritePointers(a *arena.Arena, p arena.Pointer, children []arena.Pointer) {
	i := 0
	next := func() arena.Pointer {
		c := children[i]
		i++
		return c
	}
	set := func(off int) { a.WriteU32(body(p, off), uint32(next())) }
	setIfValid := func(off int) {
		if arena.Pointer(a.ReadU32(body(p, off))).Valid() {
			set(off)
		}
	}

	switch KindOf(a, p) {
	case KindList:
		n := ListLen(a, p)
		for j := 0; j < n; j++ {
			set(4 + 4*j)
		}
	case KindRecord, KindLazyRecord:
		set(0)
		set(4)
	case KindHashmap:
		cap := HashmapCapacity(a, p)
		for j := 0; j < cap; j++ {
			if !HashmapBucket(a, p, j).Key.Valid() {
				continue
			}
			set(8 + 8*j)
			set(8 + 8*j + 4)
		}
	case KindHashset:
		cap := HashsetCapacity(a, p)
		for j := 0; j < cap; j++ {
			if !HashsetBucket(a, p, j).Valid() {
				continue
			}
			set(8 + 4*j)
		}
	case KindTree:
		setIfValid(0)
		setIfValid(4)
		setIfValid(8)
	case KindLambda:
		set(0)
		set(4)
		setIfValid(8)
	case KindLet:
		set(4)
		set(8)
	case KindApplication:
		set(0)
		set(4)
	case KindPartial:
		set(0)
		set(4)
	case KindConstructor:
		set(0)
		setIfValid(4)
	case KindRecursive:
		set(0)
	case KindCondition:
		setIfValid(4)
		setIfValid(8)
	case KindSignal:
		set(0)
	case KindEffect:
		set(4)
		setIfValid(8)
	case KindLazyResult:
		set(0)
		setIfValid(4)
	case KindRepeat, KindOnce:
		set(0)
	case KindTake, KindSkip:
		set(4)
	case KindMap, KindFilter:
		set(0)
		set(4)
	case KindFlatten:
		set(0)
	case KindZip:
		set(0)
		set(4)
	case KindHashmapKeys, KindHashmapValues:
		set(0)
	case KindEvaluate:
		set(0)
	case KindIndexedAccessor:
		set(0)
	}
}
