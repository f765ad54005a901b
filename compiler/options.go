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

package compiler

// Options is the complete recognized set of compiler flags. Each flag
// independently toggles one lowering decision; there is no interaction
// between them beyond what's documented per field.
type Options struct {
	// LazyListItems compiles List items as thunks rather than eager
	// values.
	LazyListItems bool

	// LazyRecordValues compiles Record field values as thunks.
	LazyRecordValues bool

	// LazyFunctionArgs defaults function arguments to lazy where
	// arity permits (i.e. where the callee's declared ArgType doesn't
	// force Strict).
	LazyFunctionArgs bool

	// LazyVariableInitializers compiles Let initializers as thunks.
	LazyVariableInitializers bool

	// LazyConstructors compiles Constructor arguments as thunks.
	LazyConstructors bool

	// MemoizeLambdas lowers each Lambda to the runtime library's
	// WrapMemoizedFunction call instead of CreateFunctionReference,
	// wrapping it in a per-arg-hash memoization layer.
	MemoizeLambdas bool

	// MemoCacheCapacity is not read by Compile: the emitted
	// WrapMemoizedFunction call carries only the function id, so this
	// value does not bound the runtime library's memoization cache
	// (see DESIGN.md).
	MemoCacheCapacity int

	// Unoptimized is not read by Compile: no normalization or
	// partial-evaluation pass runs over the term graph before lowering,
	// whether it is set or not.
	Unoptimized bool
}

// DefaultMemoCacheCapacity is the nominal capacity for a zero
// MemoCacheCapacity; like MemoCacheCapacity, Compile does not read it.
const DefaultMemoCacheCapacity = 256
