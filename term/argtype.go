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

// ArgType classifies how a field, builtin argument, or variable
// initializer is forced relative to the term it belongs to, extending
// the eagerness model in
// original_source/reflex-lang/src/term/lazy_record.rs to the whole
// compiler, not just LazyRecord fields.
type ArgType uint8

const (
	// ArgStrict forces evaluation inline; a Signal in a Strict field
	// propagates to make the owning term a Signal as well.
	ArgStrict ArgType = iota
	// ArgEager evaluates eagerly but tolerates a Signal result without
	// forcing the owner to become a Signal.
	ArgEager
	// ArgLazy is never forced by the owning term; it is only evaluated
	// if something downstream explicitly demands it.
	ArgLazy
)

func (a ArgType) String() string {
	switch a {
	case ArgStrict:
		return "Strict"
	case ArgEager:
		return "Eager"
	case ArgLazy:
		return "Lazy"
	default:
		return "ArgType(?)"
	}
}
