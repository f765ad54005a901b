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

// isIteratorKind reports whether k is one of the lazy-sequence kinds
// (term/iterators.go) that carries at least one child term pointer.
// Empty, Range and Integers are childless and fold through
// compileOpaqueValue's constant path like an atom; every other
// iterator kind wraps one or two sub-expressions and needs its own
// runtime constructor call, the same pattern compileComposite uses
// for List/Record/Tree.
func isIteratorKind(k term.Kind) bool {
	switch k {
	case term.KindRepeat, term.KindOnce, term.KindTake, term.KindSkip,
		term.KindMap, term.KindFilter, term.KindFlatten, term.KindZip,
		term.KindHashmapKeys, term.KindHashmapValues, term.KindEvaluate,
		term.KindIndexedAccessor:
		return true
	}
	return false
}

// compileIterator lowers a lazy-sequence term to the runtime
// constructor that builds its opaque iterator value at compile time.
// The iterator's own stepping protocol is entirely a runtime-library
// concern; the compiler only ever needs to wire up its constituent
// sub-pointers.
func (c *ctx) compileIterator(k term.Kind, p arena.Pointer) (il.Block, error) {
	switch k {
	case term.KindRepeat:
		return c.compileUnaryIterator(term.RepeatItem(c.src, p), "CreateRepeat")
	case term.KindOnce:
		return c.compileUnaryIterator(term.OnceItem(c.src, p), "CreateOnce")
	case term.KindFlatten:
		return c.compileUnaryIterator(term.FlattenSource(c.src, p), "CreateFlatten")
	case term.KindHashmapKeys:
		return c.compileUnaryIterator(term.HashmapViewSource(c.src, p), "CreateHashmapKeys")
	case term.KindHashmapValues:
		return c.compileUnaryIterator(term.HashmapViewSource(c.src, p), "CreateHashmapValues")
	case term.KindEvaluate:
		return c.compileUnaryIterator(term.EvaluateInner(c.src, p), "CreateEvaluate")
	case term.KindTake:
		return c.compileCountedIterator(term.CountedSeqCount(c.src, p), term.CountedSeqSource(c.src, p), "CreateTake")
	case term.KindSkip:
		return c.compileCountedIterator(term.CountedSeqCount(c.src, p), term.CountedSeqSource(c.src, p), "CreateSkip")
	case term.KindMap:
		return c.compileBinaryIterator(term.FnSeqFunc(c.src, p), term.FnSeqSource(c.src, p), "CreateMap")
	case term.KindFilter:
		return c.compileBinaryIterator(term.FnSeqFunc(c.src, p), term.FnSeqSource(c.src, p), "CreateFilter")
	case term.KindZip:
		return c.compileBinaryIterator(term.ZipLeft(c.src, p), term.ZipRight(c.src, p), "CreateZip")
	case term.KindIndexedAccessor:
		return c.compileIndexedAccessor(p)
	}
	panic("compiler: unreachable iterator kind")
}

func (c *ctx) compileUnaryIterator(inner arena.Pointer, fn string) (il.Block, error) {
	b, err := c.compile(inner, term.ArgEager)
	if err != nil {
		return il.Block{}, err
	}
	instrs := append([]il.Instr{}, b.Instrs...)
	instrs = append(instrs, il.Instr{Op: il.OpCallRuntimeBuiltin, Func: fn, Sig2: ptrSig})
	return il.Block{Instrs: instrs}, nil
}

func (c *ctx) compileBinaryIterator(first, second arena.Pointer, fn string) (il.Block, error) {
	fb, err := c.compile(first, term.ArgEager)
	if err != nil {
		return il.Block{}, err
	}
	sb, err := c.compile(second, term.ArgEager)
	if err != nil {
		return il.Block{}, err
	}
	var instrs []il.Instr
	instrs = append(instrs, fb.Instrs...)
	instrs = append(instrs, sb.Instrs...)
	instrs = append(instrs, il.Instr{
		Op: il.OpCallRuntimeBuiltin, Func: fn,
		Sig2: il.Signature{Params: []il.ValType{il.HeapPtr, il.HeapPtr}, Results: []il.ValType{il.HeapPtr}},
	})
	return il.Block{Instrs: instrs}, nil
}

func (c *ctx) compileCountedIterator(count uint32, source arena.Pointer, fn string) (il.Block, error) {
	sb, err := c.compile(source, term.ArgEager)
	if err != nil {
		return il.Block{}, err
	}
	var instrs []il.Instr
	instrs = append(instrs, il.ConstI32(int32(count)))
	instrs = append(instrs, sb.Instrs...)
	instrs = append(instrs, il.Instr{
		Op: il.OpCallRuntimeBuiltin, Func: fn,
		Sig2: il.Signature{Params: []il.ValType{il.I32, il.HeapPtr}, Results: []il.ValType{il.HeapPtr}},
	})
	return il.Block{Instrs: instrs}, nil
}

func (c *ctx) compileIndexedAccessor(p arena.Pointer) (il.Block, error) {
	sb, err := c.compile(term.IndexedAccessorSource(c.src, p), term.ArgEager)
	if err != nil {
		return il.Block{}, err
	}
	var instrs []il.Instr
	instrs = append(instrs, sb.Instrs...)
	instrs = append(instrs, il.ConstI32(int32(term.IndexedAccessorIndex(c.src, p))))
	instrs = append(instrs, il.Instr{
		Op: il.OpCallRuntimeBuiltin, Func: "CreateIndexedAccessor",
		Sig2: il.Signature{Params: []il.ValType{il.HeapPtr, il.I32}, Results: []il.ValType{il.HeapPtr}},
	})
	return il.Block{Instrs: instrs}, nil
}
