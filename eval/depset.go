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

package eval

import (
	"sort"

	"github.com/reflexcore/reflexcore/arena"
	"github.com/reflexcore/reflexcore/term"
)

// Deps accumulates the condition terms an evaluation consulted,
// keyed by condition hash so duplicates collapse for free. It is the
// working representation during evaluation; ToTree converts it to the
// canonical, hash-consed Tree the rest of the system expects:
// signal-lists are deduplicated by condition hash and stored in
// canonical (sorted-by-hash) order.
type Deps map[uint64]arena.Pointer

// NewDeps returns an empty dependency set.
func NewDeps() Deps { return nil }

// Add records a single condition pointer, returning the (possibly
// newly-allocated) map so call sites can chain off a nil Deps.
func (d Deps) Add(a *arena.Arena, condition arena.Pointer) Deps {
	if d == nil {
		d = make(Deps, 1)
	}
	d[term.Hash(a, condition)] = condition
	return d
}

// Union merges other into d, returning the result.
func (d Deps) Union(other Deps) Deps {
	if len(other) == 0 {
		return d
	}
	if d == nil {
		d = make(Deps, len(other))
	}
	for h, p := range other {
		d[h] = p
	}
	return d
}

// ToTree builds the canonical balanced Tree of conditions, so the
// dependency set itself is hash-consed like any other term.
func (d Deps) ToTree(f *term.Factory) arena.Pointer {
	if len(d) == 0 {
		return arena.Null
	}
	hashes := make([]uint64, 0, len(d))
	for h := range d {
		hashes = append(hashes, h)
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })
	ptrs := make([]arena.Pointer, len(hashes))
	for i, h := range hashes {
		ptrs[i] = d[h]
	}
	return buildBalancedTree(f, ptrs)
}

func buildBalancedTree(f *term.Factory, sorted []arena.Pointer) arena.Pointer {
	if len(sorted) == 0 {
		return arena.Null
	}
	mid := len(sorted) / 2
	left := buildBalancedTree(f, sorted[:mid])
	right := buildBalancedTree(f, sorted[mid+1:])
	return f.CreateTree(left, sorted[mid], right)
}

// DepsFromTree recovers a Deps set from a canonical dependency Tree,
// the inverse of ToTree. It lets a caller that only has a worker's
// returned dependency-tree pointer (package worker's Execute result)
// diff it against a previous evaluation's dependency set without
// re-deriving the tree shape — used to decide which effect
// subscriptions to keep after a re-evaluation.
func DepsFromTree(a *arena.Arena, tree arena.Pointer) Deps {
	if !tree.Valid() {
		return nil
	}
	d := make(Deps)
	var walk func(arena.Pointer)
	walk = func(p arena.Pointer) {
		if !p.Valid() {
			return
		}
		walk(term.TreeLeft(a, p))
		value := term.TreeValue(a, p)
		d[term.Hash(a, value)] = value
		walk(term.TreeRight(a, p))
	}
	walk(tree)
	return d
}
