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

// Package compiler lowers a term DAG (package term) into the
// stack-machine IL (package il). Entry point is
// Compile; CompilerState threads the growing snapshot image and the
// lexical scope stack through a recursive descent over the term
// graph, one compile<Kind> function per term.Kind family, mirroring
// the per-expr-kind compileAsXxx dispatch in vm/exprcompile.go.
package compiler

import (
	"github.com/reflexcore/reflexcore/arena"
	"github.com/reflexcore/reflexcore/il"
	"github.com/reflexcore/reflexcore/term"
)

// Logf, when non-nil, receives diagnostic messages from this package,
// following the nil-by-default hook convention used throughout (see
// arena.Logf).
var Logf func(format string, args ...any)

// ctx carries the per-Compile-call fixed inputs (source arena,
// options) alongside the mutable CompilerState, so individual
// lowering functions don't need a long parameter list.
type ctx struct {
	src  *arena.Arena
	st   *CompilerState
	opts *Options
}

// Compile lowers the term at p (read from src) into an IL block that
// leaves a single heap pointer on the operand stack. eagerness is the
// ArgType the caller is compiling this term under
// (ArgStrict for a function body or top-level query, ArgLazy/ArgEager
// when compiling an argument or field value at a position tagged as
// such); it only affects whether a BreakOnSignal is emitted around the
// result.
func Compile(src *arena.Arena, p arena.Pointer, eagerness term.ArgType, st *CompilerState, opts *Options) (il.Block, error) {
	if opts == nil {
		opts = &Options{}
	}
	c := &ctx{src: src, st: st, opts: opts}
	return c.compile(p, eagerness)
}

func (c *ctx) compile(p arena.Pointer, eagerness term.ArgType) (il.Block, error) {
	k := term.KindOf(c.src, p)
	var b il.Block
	var err error
	switch {
	case k.IsAtomic():
		b, err = c.compileAtom(k, p)
	case isCompositeKind(k):
		b, err = c.compileComposite(k, p)
	case isFunctionalKind(k):
		b, err = c.compileFunctional(k, p)
	case isReactiveKind(k):
		b, err = c.compileReactive(k, p)
	case isIteratorKind(k):
		b, err = c.compileIterator(k, p)
	default:
		// Empty, Range and Integers are childless iterator kinds with
		// no corresponding source syntax beyond their own occurrence;
		// compiling one directly just re-interns it as a
		// runtime-constructed constant, per the atoms rule.
		b, err = c.compileOpaqueValue(p)
	}
	if err != nil {
		return il.Block{}, err
	}
	if eagerness == term.ArgStrict {
		b.Instrs = append(b.Instrs, il.Instr{Op: il.OpBreakOnSignal, Depth: 0})
	}
	return b, nil
}

func isCompositeKind(k term.Kind) bool {
	switch k {
	case term.KindList, term.KindRecord, term.KindLazyRecord, term.KindHashmap, term.KindHashset, term.KindTree:
		return true
	}
	return false
}

func isFunctionalKind(k term.Kind) bool {
	switch k {
	case term.KindVariable, term.KindLambda, term.KindLet, term.KindApplication,
		term.KindPartial, term.KindBuiltin, term.KindConstructor, term.KindRecursive:
		return true
	}
	return false
}

func isReactiveKind(k term.Kind) bool {
	switch k {
	case term.KindCondition, term.KindSignal, term.KindEffect, term.KindLazyResult:
		return true
	}
	return false
}

// compileOpaqueValue treats p as an already-fully-formed runtime
// value (an iterator term, or anything else not covered above): a
// childless one (Empty, Integers) folds into the snapshot image as a
// constant pointer the same way an atom does; anything else has no
// corresponding source syntax to compile and is a compiler error.
func (c *ctx) compileOpaqueValue(p arena.Pointer) (il.Block, error) {
	np, ok := c.st.internLeafConstant(c.src, p)
	if !ok {
		return il.Block{}, &InvalidFunctionTarget{Kind: term.KindOf(c.src, p).String()}
	}
	return il.Block{Instrs: []il.Instr{il.ConstPtr(uint32(np))}}, nil
}
