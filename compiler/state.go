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

import (
	"github.com/reflexcore/reflexcore/arena"
	"github.com/reflexcore/reflexcore/il"
	"github.com/reflexcore/reflexcore/term"
)

// CompiledFunction is a Lambda hoisted to a top-level compiled entry
// point: the body is compiled in a fresh scope stack.
type CompiledFunction struct {
	ID   uint32
	Sig  il.Signature
	Body il.Block
}

// CompilerState holds the growing linear-memory image (an arena that
// mirrors the runtime library's data section, into which closed
// pure terms are interned as compile-time constants), the term
// Factory used to intern into that image, and the stack of compiled
// top-level functions produced by hoisting Lambdas.
type CompilerState struct {
	Image   *arena.Arena
	Factory *term.Factory

	// scopeDepth counts currently-open lexical scope frames (each
	// pushed by a Let's ScopeStart or a hoisted Lambda's per-param
	// frame). term.Variable already stores its de Bruijn depth
	// directly (see term/functional.go's VariableSymbol, read the
	// same way by the reference evaluator's scope lookup in
	// eval/eval.go), so the compiler only needs to know how deep the
	// stack currently is to validate a Variable(k) reference and
	// detect an out-of-range one as UnboundVariable — it never needs
	// to resolve a name.
	scopeDepth int

	functions []CompiledFunction
	nextFunc  uint32
}

// NewCompilerState creates a CompilerState backed by a fresh snapshot
// image arena.
func NewCompilerState(image *arena.Arena) *CompilerState {
	return &CompilerState{
		Image:   image,
		Factory: term.NewFactory(image),
	}
}

// Functions returns every Lambda hoisted so far, in hoist order.
func (s *CompilerState) Functions() []CompiledFunction {
	return s.functions
}

func (s *CompilerState) hoist(sig il.Signature, body il.Block) uint32 {
	id := s.nextFunc
	s.nextFunc++
	s.functions = append(s.functions, CompiledFunction{ID: id, Sig: sig, Body: body})
	return id
}

func (s *CompilerState) pushScope() { s.scopeDepth++ }
func (s *CompilerState) popScope()  { s.scopeDepth-- }

// inScope reports whether lexical depth k is currently bound.
func (s *CompilerState) inScope(k int) bool {
	return k >= 0 && k < s.scopeDepth
}

// internLeafConstant copies a pointer-free term's bytes verbatim into
// the snapshot image and returns the image offset, deduplicating by
// structural hash the same way term.Factory.intern does for its own
// arena. "Pointer-free" is checked dynamically via term.PointerIter
// rather than restricted to the atom kinds by name, since a handful of
// non-atomic kinds (Empty, Integers) are also childless; a byte-for-
// byte copy only needs no offset rewriting when there are no child
// pointers to rewrite. Reports ok=false for any term with at least one
// child pointer — should_intern constant-folding is an atoms-only
// compiler behavior, and every other kind is always constructed at
// runtime.
func (s *CompilerState) internLeafConstant(src *arena.Arena, p arena.Pointer) (arena.Pointer, bool) {
	hasChild := false
	term.PointerIter(src, p, func(arena.Pointer) bool {
		hasChild = true
		return false
	})
	if hasChild {
		return 0, false
	}
	h := term.Hash(src, p)
	if existing, ok := s.Factory.Lookup(h); ok {
		return existing, true
	}
	n := term.SizeOf(src, p)
	raw := src.ReadBytes(p, n)
	np := s.Image.Allocate(n)
	s.Image.WriteBytes(np, raw)
	s.Factory.Rehash(np)
	return np, true
}
