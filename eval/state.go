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

// Package eval implements the reference (pure-interpreter) evaluation
// semantics this system's compiled paths must agree with: both an
// oracle used by the compiler/WASM agreement tests, and a slower
// non-compiled execution path.
package eval

import "github.com/reflexcore/reflexcore/arena"

// State resolves a condition's stored hash to its current value, the
// same contract the compiled worker's linear-memory hashmap satisfies.
// Effect evaluation consults it.
type State interface {
	Lookup(conditionHash uint64) (arena.Pointer, bool)
}

// MapState is a State backed by a plain Go map, suitable for the
// reference interpreter and for tests; the compiled worker instead
// keeps this table inside WASM linear memory as a Hashmap term.
type MapState map[uint64]arena.Pointer

func (m MapState) Lookup(h uint64) (arena.Pointer, bool) {
	v, ok := m[h]
	return v, ok
}

// EmptyState has no bindings; every Effect lookup against it misses.
var EmptyState = MapState{}
