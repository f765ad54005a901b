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

var ptrSig = il.Signature{Params: []il.ValType{il.HeapPtr}, Results: []il.ValType{il.HeapPtr}}

// wrapLazy tags the result of block with CreateLazyResult, the
// runtime constructor a forced reactive read checks for (term.KindOf
// == term.KindLazyResult, per term/reactive.go's LazyResultCache read
// path). The compiler's deliberate simplification (see DESIGN.md,
// open-question-decision 5): a lazily-tagged position is still
// computed eagerly by the generated code and wrapped after the fact,
// rather than deferred to a separately hoisted thunk function — value
// equivalent for any consumer that only ever forces the result, which
// is the only thing the reference evaluator's own Lazy/Eager
// simplification (DESIGN.md decision 4) ever exercises.
func wrapLazy(b il.Block) il.Block {
	b.Instrs = append(b.Instrs, il.Instr{
		Op: il.OpCallRuntimeBuiltin, Func: "CreateLazyResult", Sig2: ptrSig,
	})
	return b
}

// compileArg compiles one argument/field/item position according to
// its declared ArgType: Strict forces evaluation and short-circuits on
// Signal (handled by ctx.compile), Eager evaluates without the
// short-circuit, and Lazy evaluates then wraps as a LazyResult.
func (c *ctx) compileArg(p arena.Pointer, argType term.ArgType) (il.Block, error) {
	b, err := c.compile(p, argType)
	if err != nil {
		return il.Block{}, err
	}
	if argType == term.ArgLazy {
		b = wrapLazy(b)
	}
	return b, nil
}

func (c *ctx) compileComposite(k term.Kind, p arena.Pointer) (il.Block, error) {
	switch k {
	case term.KindList:
		return c.compileList(p)
	case term.KindRecord:
		return c.compileRecord(p)
	case term.KindLazyRecord:
		return c.compileLazyRecord(p)
	case term.KindHashmap:
		return c.compileHashmap(p)
	case term.KindHashset:
		return c.compileHashset(p)
	case term.KindTree:
		return c.compileTree(p)
	}
	panic("compiler: unreachable composite kind")
}

// compileList lowers a List literally: AllocateList(n) then
// SetListItem(i) for each item then InitList.
func (c *ctx) compileList(p arena.Pointer) (il.Block, error) {
	items := term.ListItems(c.src, p)
	argType := term.ArgEager
	if c.opts.LazyListItems {
		argType = term.ArgLazy
	}
	var instrs []il.Instr
	instrs = append(instrs, il.ConstI32(int32(len(items))))
	instrs = append(instrs, il.Instr{
		Op: il.OpCallRuntimeBuiltin, Func: "AllocateList",
		Sig2: il.Signature{Params: []il.ValType{il.I32}, Results: []il.ValType{il.HeapPtr}},
	})
	for i, item := range items {
		ib, err := c.compileArg(item, argType)
		if err != nil {
			return il.Block{}, err
		}
		instrs = append(instrs, il.ConstI32(int32(i)))
		instrs = append(instrs, ib.Instrs...)
		instrs = append(instrs, il.Instr{
			Op: il.OpCallRuntimeBuiltin, Func: "SetListItem",
			Sig2: il.Signature{Params: []il.ValType{il.HeapPtr, il.I32, il.HeapPtr}, Results: []il.ValType{il.HeapPtr}},
		})
	}
	instrs = append(instrs, il.Instr{Op: il.OpCallRuntimeBuiltin, Func: "InitList", Sig2: ptrSig})
	return il.Block{Instrs: instrs}, nil
}

// compileRecord compiles the keys-list the same way a List compiles and
// the values-list either the same way or, under LazyRecordValues, with
// every value wrapped as a LazyResult, then emits CreateRecord.
func (c *ctx) compileRecord(p arena.Pointer) (il.Block, error) {
	keysBlock, err := c.compileList(term.RecordKeys(c.src, p))
	if err != nil {
		return il.Block{}, err
	}
	var valuesBlock il.Block
	if c.opts.LazyRecordValues {
		valuesBlock, err = c.compileArgsList(term.ListItems(c.src, term.RecordValues(c.src, p)), term.ArgLazy)
	} else {
		valuesBlock, err = c.compileList(term.RecordValues(c.src, p))
	}
	if err != nil {
		return il.Block{}, err
	}
	var instrs []il.Instr
	instrs = append(instrs, keysBlock.Instrs...)
	instrs = append(instrs, valuesBlock.Instrs...)
	instrs = append(instrs, il.Instr{
		Op: il.OpCallRuntimeBuiltin, Func: "CreateRecord",
		Sig2: il.Signature{Params: []il.ValType{il.HeapPtr, il.HeapPtr}, Results: []il.ValType{il.HeapPtr}},
	})
	return il.Block{Instrs: instrs}, nil
}

// compileLazyRecord compiles keys eagerly and each value per its own
// declared per-position eagerness: values are annotated per-position
// as Lazy/Eager/Strict.
func (c *ctx) compileLazyRecord(p arena.Pointer) (il.Block, error) {
	keysBlock, err := c.compileList(term.LazyRecordKeys(c.src, p))
	if err != nil {
		return il.Block{}, err
	}
	values := term.ListItems(c.src, term.LazyRecordValues(c.src, p))
	eagerness := term.LazyRecordEagerness(c.src, p)
	var instrs []il.Instr
	instrs = append(instrs, keysBlock.Instrs...)
	instrs = append(instrs, il.ConstI32(int32(len(values))))
	instrs = append(instrs, il.Instr{
		Op: il.OpCallRuntimeBuiltin, Func: "AllocateList",
		Sig2: il.Signature{Params: []il.ValType{il.I32}, Results: []il.ValType{il.HeapPtr}},
	})
	for i, v := range values {
		vb, err := c.compileArg(v, eagerness[i])
		if err != nil {
			return il.Block{}, err
		}
		instrs = append(instrs, il.ConstI32(int32(i)))
		instrs = append(instrs, vb.Instrs...)
		instrs = append(instrs, il.Instr{
			Op: il.OpCallRuntimeBuiltin, Func: "SetListItem",
			Sig2: il.Signature{Params: []il.ValType{il.HeapPtr, il.I32, il.HeapPtr}, Results: []il.ValType{il.HeapPtr}},
		})
	}
	instrs = append(instrs, il.Instr{Op: il.OpCallRuntimeBuiltin, Func: "InitList", Sig2: ptrSig})
	// stack: [keys, values] -> CreateLazyRecord(keys, values)
	instrs = append(instrs, il.Instr{
		Op: il.OpCallRuntimeBuiltin, Func: "CreateLazyRecord",
		Sig2: il.Signature{Params: []il.ValType{il.HeapPtr, il.HeapPtr}, Results: []il.ValType{il.HeapPtr}},
	})
	return il.Block{Instrs: instrs}, nil
}

func (c *ctx) compileHashmap(p arena.Pointer) (il.Block, error) {
	// A Hashmap literal compiles as a Record-like pair of key/value
	// lists fed to the runtime's CreateHashmap constructor, which
	// rebuilds the bucket table (see term/buckethash.go) itself.
	var keys, values []arena.Pointer
	n := term.HashmapCapacity(c.src, p)
	for i := 0; i < n; i++ {
		kv := term.HashmapBucket(c.src, p, i)
		if kv.Key.Valid() {
			keys = append(keys, kv.Key)
			values = append(values, kv.Value)
		}
	}
	keysBlock, err := c.compileArgsList(keys, term.ArgEager)
	if err != nil {
		return il.Block{}, err
	}
	valuesBlock, err := c.compileArgsList(values, term.ArgEager)
	if err != nil {
		return il.Block{}, err
	}
	var instrs []il.Instr
	instrs = append(instrs, keysBlock.Instrs...)
	instrs = append(instrs, valuesBlock.Instrs...)
	instrs = append(instrs, il.Instr{
		Op: il.OpCallRuntimeBuiltin, Func: "CreateHashmap",
		Sig2: il.Signature{Params: []il.ValType{il.HeapPtr, il.HeapPtr}, Results: []il.ValType{il.HeapPtr}},
	})
	return il.Block{Instrs: instrs}, nil
}

func (c *ctx) compileHashset(p arena.Pointer) (il.Block, error) {
	n := term.HashsetCapacity(c.src, p)
	var keys []arena.Pointer
	for i := 0; i < n; i++ {
		k := term.HashsetBucket(c.src, p, i)
		if k.Valid() {
			keys = append(keys, k)
		}
	}
	keysBlock, err := c.compileArgsList(keys, term.ArgEager)
	if err != nil {
		return il.Block{}, err
	}
	instrs := append([]il.Instr{}, keysBlock.Instrs...)
	instrs = append(instrs, il.Instr{Op: il.OpCallRuntimeBuiltin, Func: "CreateHashset", Sig2: ptrSig})
	return il.Block{Instrs: instrs}, nil
}

func (c *ctx) compileTree(p arena.Pointer) (il.Block, error) {
	left := term.TreeLeft(c.src, p)
	value := term.TreeValue(c.src, p)
	right := term.TreeRight(c.src, p)
	var instrs []il.Instr
	if left.Valid() {
		lb, err := c.compile(left, term.ArgEager)
		if err != nil {
			return il.Block{}, err
		}
		instrs = append(instrs, lb.Instrs...)
	} else {
		instrs = append(instrs, il.Instr{Op: il.OpNullPointer})
	}
	vb, err := c.compile(value, term.ArgEager)
	if err != nil {
		return il.Block{}, err
	}
	instrs = append(instrs, vb.Instrs...)
	if right.Valid() {
		rb, err := c.compile(right, term.ArgEager)
		if err != nil {
			return il.Block{}, err
		}
		instrs = append(instrs, rb.Instrs...)
	} else {
		instrs = append(instrs, il.Instr{Op: il.OpNullPointer})
	}
	instrs = append(instrs, il.Instr{
		Op: il.OpCallRuntimeBuiltin, Func: "CreateTree",
		Sig2: il.Signature{Params: []il.ValType{il.HeapPtr, il.HeapPtr, il.HeapPtr}, Results: []il.ValType{il.HeapPtr}},
	})
	return il.Block{Instrs: instrs}, nil
}
