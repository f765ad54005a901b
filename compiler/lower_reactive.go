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

// compileReactive lowers the reactive-layer kinds. Only
// Effect has a realistic occurrence as literal source syntax (a
// program requesting an external capability); Condition, Signal and
// LazyResult normally only ever appear as values the evaluator itself
// produces mid-evaluation, but the term graph is free-form, so each
// gets a structural lowering rather than a panic.
func (c *ctx) compileReactive(k term.Kind, p arena.Pointer) (il.Block, error) {
	switch k {
	case term.KindEffect:
		return c.compileEffect(p)
	case term.KindLazyResult:
		return c.compileLazyResultTerm(p)
	case term.KindSignal:
		return c.compileSignal(p)
	case term.KindCondition:
		return c.compileCondition(p)
	}
	panic("compiler: unreachable reactive kind")
}

// compileEffect compiles the handler symbol as an i32 constant, the
// payload term, and the optional subscription-args list, then emits
// CreateEffect. A subscription-free Effect (a one-shot request) passes
// NullPointer for subscribeArgs, mirroring compileTree's handling of
// absent branches.
func (c *ctx) compileEffect(p arena.Pointer) (il.Block, error) {
	payloadBlock, err := c.compile(term.EffectPayload(c.src, p), term.ArgEager)
	if err != nil {
		return il.Block{}, err
	}
	var instrs []il.Instr
	instrs = append(instrs, il.ConstI32(int32(term.EffectHandlerSymbol(c.src, p))))
	instrs = append(instrs, payloadBlock.Instrs...)
	if args := term.EffectSubscribeArgs(c.src, p); args.Valid() {
		argsBlock, err := c.compile(args, term.ArgEager)
		if err != nil {
			return il.Block{}, err
		}
		instrs = append(instrs, argsBlock.Instrs...)
	} else {
		instrs = append(instrs, il.Instr{Op: il.OpNullPointer})
	}
	instrs = append(instrs, il.Instr{
		Op: il.OpCallRuntimeBuiltin, Func: "CreateEffect",
		Sig2: il.Signature{Params: []il.ValType{il.I32, il.HeapPtr, il.HeapPtr}, Results: []il.ValType{il.HeapPtr}},
	})
	return il.Block{Instrs: instrs}, nil
}

// compileLazyResultTerm compiles a literal LazyResult term the same
// way wrapLazy tags a value computed under ArgLazy: compile the
// wrapped term, then CreateLazyResult.
func (c *ctx) compileLazyResultTerm(p arena.Pointer) (il.Block, error) {
	inner, err := c.compile(term.LazyResultTerm(c.src, p), term.ArgEager)
	if err != nil {
		return il.Block{}, err
	}
	return wrapLazy(inner), nil
}

func (c *ctx) compileSignal(p arena.Pointer) (il.Block, error) {
	condBlock, err := c.compile(term.SignalCondition(c.src, p), term.ArgEager)
	if err != nil {
		return il.Block{}, err
	}
	instrs := append([]il.Instr{}, condBlock.Instrs...)
	instrs = append(instrs, il.Instr{Op: il.OpCallRuntimeBuiltin, Func: "CreateSignal", Sig2: ptrSig})
	return il.Block{Instrs: instrs}, nil
}

func (c *ctx) compileCondition(p arena.Pointer) (il.Block, error) {
	var instrs []il.Instr
	instrs = append(instrs, il.ConstI32(int32(term.ConditionVariant(c.src, p))))
	if pa := term.ConditionPtrA(c.src, p); pa.Valid() {
		b, err := c.compile(pa, term.ArgEager)
		if err != nil {
			return il.Block{}, err
		}
		instrs = append(instrs, b.Instrs...)
	} else {
		instrs = append(instrs, il.Instr{Op: il.OpNullPointer})
	}
	if pb := term.ConditionPtrB(c.src, p); pb.Valid() {
		b, err := c.compile(pb, term.ArgEager)
		if err != nil {
			return il.Block{}, err
		}
		instrs = append(instrs, b.Instrs...)
	} else {
		instrs = append(instrs, il.Instr{Op: il.OpNullPointer})
	}
	// The message is a plain Go string on the Condition term, not a
	// child term pointer (conditionPointerIter in term/reactive.go
	// doesn't walk it either); intern it directly into the snapshot
	// image as a String atom, the same constant-pool the image's other
	// interned atoms live in.
	msgPtr := c.st.Factory.CreateString(term.ConditionMessage(c.src, p))
	instrs = append(instrs, il.ConstPtr(uint32(msgPtr)))
	instrs = append(instrs, il.Instr{
		Op: il.OpCallRuntimeBuiltin, Func: "CreateCondition",
		Sig2: il.Signature{Params: []il.ValType{il.I32, il.HeapPtr, il.HeapPtr, il.HeapPtr}, Results: []il.ValType{il.HeapPtr}},
	})
	return il.Block{Instrs: instrs}, nil
}
