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
	"github.com/reflexcore/reflexcore/eval"
	"github.com/reflexcore/reflexcore/il"
	"github.com/reflexcore/reflexcore/term"
)

func (c *ctx) compileFunctional(k term.Kind, p arena.Pointer) (il.Block, error) {
	switch k {
	case term.KindVariable:
		return c.compileVariable(p)
	case term.KindLambda:
		return c.compileLambda(p)
	case term.KindLet:
		return c.compileLet(p)
	case term.KindApplication:
		return c.compileApplication(p)
	case term.KindPartial:
		return c.compilePartial(p)
	case term.KindBuiltin:
		return c.compileBuiltinValue(p)
	case term.KindConstructor:
		return c.compileConstructor(p)
	case term.KindRecursive:
		return c.compileRecursive(p)
	}
	panic("compiler: unreachable functional kind")
}

// compileVariable lowers Variable(k) to GetScopeValue(k, HeapPointer),
// signaling UnboundVariable if k is out of range. term.VariableSymbol
// already stores k as the de Bruijn depth the reference evaluator
// indexes scope[] with (see eval/eval.go), so no symbol-table
// resolution happens here.
func (c *ctx) compileVariable(p arena.Pointer) (il.Block, error) {
	k := int(term.VariableSymbol(c.src, p))
	if !c.st.inScope(k) {
		return il.Block{}, &UnboundVariable{Depth: k}
	}
	return il.Block{Instrs: []il.Instr{
		{Op: il.OpGetScopeValue, ValType: il.HeapPtr, Depth: k},
	}}, nil
}

// compileLambda hoists the lambda body to a top-level compiled
// function, one parameter frame per declared param, each pushed in
// declaration order so the innermost (last) parameter lands at depth
// 0 — matching the reference evaluator's callScope construction.
func (c *ctx) compileLambda(p arena.Pointer) (il.Block, error) {
	argTypes := term.LambdaArgTypes(c.src, p)
	for range argTypes {
		c.st.pushScope()
	}
	bodyBlock, err := c.compile(term.LambdaBody(c.src, p), term.ArgStrict)
	for range argTypes {
		c.st.popScope()
	}
	if err != nil {
		return il.Block{}, err
	}

	sig := il.Signature{
		Params:  make([]il.ValType, len(argTypes)),
		Results: []il.ValType{il.HeapPtr},
	}
	for i := range sig.Params {
		sig.Params[i] = il.HeapPtr
	}
	fnID := c.st.hoist(sig, bodyBlock)

	fn := "CreateFunctionReference"
	if c.opts.MemoizeLambdas {
		fn = "WrapMemoizedFunction"
	}
	return il.Block{Instrs: []il.Instr{
		il.ConstI32(int32(fnID)),
		{Op: il.OpCallRuntimeBuiltin, Func: fn,
			Sig2: il.Signature{Params: []il.ValType{il.I32}, Results: []il.ValType{il.HeapPtr}}},
	}}, nil
}

// compileLet lowers Let(init, body): compile init (respecting
// lazy_variable_initializers), ScopeStart, compile body, ScopeEnd.
func (c *ctx) compileLet(p arena.Pointer) (il.Block, error) {
	initArgType := term.ArgEager
	if c.opts.LazyVariableInitializers {
		initArgType = term.ArgLazy
	}
	initBlock, err := c.compileArg(term.LetInit(c.src, p), initArgType)
	if err != nil {
		return il.Block{}, err
	}

	c.st.pushScope()
	bodyBlock, err := c.compile(term.LetBody(c.src, p), term.ArgStrict)
	c.st.popScope()
	if err != nil {
		return il.Block{}, err
	}

	var instrs []il.Instr
	instrs = append(instrs, initBlock.Instrs...)
	instrs = append(instrs, il.Instr{Op: il.OpScopeStart, ValType: il.HeapPtr})
	instrs = append(instrs, bodyBlock.Instrs...)
	instrs = append(instrs, il.Instr{Op: il.OpScopeEnd, ValType: il.HeapPtr})
	return il.Block{Instrs: instrs}, nil
}

// compileApplication lowers Application(target, args): a statically
// known Builtin target compiles its arguments per declared ArgType
// and emits CallStdlib; anything else compiles target and args
// generically and emits the late-bound Apply instruction.
func (c *ctx) compileApplication(p arena.Pointer) (il.Block, error) {
	target := term.ApplicationFunc(c.src, p)
	argPtrs := term.ListItems(c.src, term.ApplicationArgs(c.src, p))

	if term.KindOf(c.src, target) == term.KindBuiltin {
		return c.compileBuiltinCall(target, argPtrs)
	}

	targetBlock, err := c.compile(target, term.ArgStrict)
	if err != nil {
		return il.Block{}, err
	}
	argsBlock, err := c.compileArgsList(argPtrs, term.ArgEager)
	if err != nil {
		return il.Block{}, err
	}
	var instrs []il.Instr
	instrs = append(instrs, targetBlock.Instrs...)
	instrs = append(instrs, argsBlock.Instrs...)
	instrs = append(instrs, il.Instr{Op: il.OpApply})
	return il.Block{Instrs: instrs}, nil
}

// compileBuiltinCall lowers an Application whose target is a literal
// Builtin term, special-casing the control-flow forms the same way
// eval/eval.go's evalBuiltinCall does, then falling through to the
// uniform per-position ArgType dispatch for everything else.
func (c *ctx) compileBuiltinCall(builtin arena.Pointer, argPtrs []arena.Pointer) (il.Block, error) {
	id := term.BuiltinID(c.src, builtin)
	switch id {
	case eval.BuiltinIf:
		return c.compileIf(argPtrs)
	case eval.BuiltinAnd:
		return c.compileShortCircuitBoolean(argPtrs, false)
	case eval.BuiltinOr:
		return c.compileShortCircuitBoolean(argPtrs, true)
	case eval.BuiltinIfError:
		return c.compileIfCondition(argPtrs, term.ConditionError)
	case eval.BuiltinIfPending:
		return c.compileIfCondition(argPtrs, term.ConditionPending)
	case eval.BuiltinCollectList:
		return c.compileCollectList(argPtrs)
	}

	spec, ok := eval.LookupBuiltinSpec(id)
	if !ok {
		return il.Block{}, &InvalidFunctionTarget{Kind: "Builtin"}
	}
	if len(argPtrs) != spec.Arity {
		return il.Block{}, &InvalidFunctionArgs{Want: spec.Arity, Got: len(argPtrs)}
	}

	var instrs []il.Instr
	sig := il.Signature{Results: []il.ValType{il.HeapPtr}}
	for i, ap := range argPtrs {
		argType := spec.ArgTypes[i]
		if c.opts.LazyFunctionArgs && argType == term.ArgEager {
			argType = term.ArgLazy
		}
		ab, err := c.compileArg(ap, argType)
		if err != nil {
			return il.Block{}, err
		}
		instrs = append(instrs, ab.Instrs...)
		sig.Params = append(sig.Params, il.HeapPtr)
	}
	instrs = append(instrs, il.Instr{Op: il.OpCallStdlib, Func: spec.Name, Sig2: sig})
	return il.Block{Instrs: instrs}, nil
}

func (c *ctx) compileArgsList(argPtrs []arena.Pointer, argType term.ArgType) (il.Block, error) {
	var instrs []il.Instr
	instrs = append(instrs, il.ConstI32(int32(len(argPtrs))))
	instrs = append(instrs, il.Instr{
		Op: il.OpCallRuntimeBuiltin, Func: "AllocateList",
		Sig2: il.Signature{Params: []il.ValType{il.I32}, Results: []il.ValType{il.HeapPtr}},
	})
	for i, ap := range argPtrs {
		ab, err := c.compileArg(ap, argType)
		if err != nil {
			return il.Block{}, err
		}
		instrs = append(instrs, il.ConstI32(int32(i)))
		instrs = append(instrs, ab.Instrs...)
		instrs = append(instrs, il.Instr{
			Op: il.OpCallRuntimeBuiltin, Func: "SetListItem",
			Sig2: il.Signature{Params: []il.ValType{il.HeapPtr, il.I32, il.HeapPtr}, Results: []il.ValType{il.HeapPtr}},
		})
	}
	instrs = append(instrs, il.Instr{Op: il.OpCallRuntimeBuiltin, Func: "InitList", Sig2: ptrSig})
	return il.Block{Instrs: instrs}, nil
}

// compilePartial is equivalent to a synthetic Lambda capturing the
// already-bound arguments, so it compiles the same way a
// Constructor-with-supplied-args does: emit the runtime
// CreatePartial constructor over the compiled target and bound list.
func (c *ctx) compilePartial(p arena.Pointer) (il.Block, error) {
	fnBlock, err := c.compile(term.PartialFunc(c.src, p), term.ArgEager)
	if err != nil {
		return il.Block{}, err
	}
	argsBlock, err := c.compile(term.PartialSuppliedArgs(c.src, p), term.ArgEager)
	if err != nil {
		return il.Block{}, err
	}
	var instrs []il.Instr
	instrs = append(instrs, fnBlock.Instrs...)
	instrs = append(instrs, argsBlock.Instrs...)
	instrs = append(instrs, il.ConstI32(int32(term.PartialRemainingArity(c.src, p))))
	instrs = append(instrs, il.Instr{
		Op: il.OpCallRuntimeBuiltin, Func: "CreatePartial",
		Sig2: il.Signature{Params: []il.ValType{il.HeapPtr, il.HeapPtr, il.I32}, Results: []il.ValType{il.HeapPtr}},
	})
	return il.Block{Instrs: instrs}, nil
}

// compileBuiltinValue lowers a Builtin term appearing as a first-class
// value (not the immediate target of an Application), e.g. passed as
// an argument to Map/Filter.
func (c *ctx) compileBuiltinValue(p arena.Pointer) (il.Block, error) {
	var instrs []il.Instr
	instrs = append(instrs, il.ConstI32(int32(term.BuiltinID(c.src, p))))
	instrs = append(instrs, il.ConstI32(int32(term.BuiltinArity(c.src, p))))
	instrs = append(instrs, il.Instr{
		Op: il.OpCallRuntimeBuiltin, Func: "CreateBuiltin",
		Sig2: il.Signature{Params: []il.ValType{il.I32, il.I32}, Results: []il.ValType{il.HeapPtr}},
	})
	return il.Block{Instrs: instrs}, nil
}

func (c *ctx) compileConstructor(p arena.Pointer) (il.Block, error) {
	nameBlock, err := c.compile(term.ConstructorName(c.src, p), term.ArgEager)
	if err != nil {
		return il.Block{}, err
	}
	var instrs []il.Instr
	instrs = append(instrs, nameBlock.Instrs...)
	if args := term.ConstructorArgs(c.src, p); args.Valid() {
		argType := term.ArgEager
		if c.opts.LazyConstructors {
			argType = term.ArgLazy
		}
		argsBlock, err := c.compileArg(args, argType)
		if err != nil {
			return il.Block{}, err
		}
		instrs = append(instrs, argsBlock.Instrs...)
	} else {
		instrs = append(instrs, il.Instr{Op: il.OpNullPointer})
	}
	instrs = append(instrs, il.ConstI32(int32(term.ConstructorArity(c.src, p))))
	instrs = append(instrs, il.Instr{
		Op: il.OpCallRuntimeBuiltin, Func: "CreateConstructor",
		Sig2: il.Signature{Params: []il.ValType{il.HeapPtr, il.HeapPtr, il.I32}, Results: []il.ValType{il.HeapPtr}},
	})
	return il.Block{Instrs: instrs}, nil
}

// compileRecursive mirrors eval/eval.go's KindRecursive case exactly,
// at compile time: Recursive(f) lowers as Application(f, [Recursive(f)
// itself]), folding the self-reference into the generated Apply call.
// inner is compiled twice — once as the Apply target, once as the
// operand of a runtime CreateRecursive call that reconstructs the
// self-referential wrapper value passed as the sole argument — since
// the IL has no Swap/over instruction to reorder a single compiled
// value onto both positions without re-emitting it.
func (c *ctx) compileRecursive(p arena.Pointer) (il.Block, error) {
	inner := term.RecursiveInner(c.src, p)

	targetBlock, err := c.compile(inner, term.ArgEager)
	if err != nil {
		return il.Block{}, err
	}
	innerAgain, err := c.compile(inner, term.ArgEager)
	if err != nil {
		return il.Block{}, err
	}

	var instrs []il.Instr
	instrs = append(instrs, targetBlock.Instrs...) // [target]
	instrs = append(instrs, il.ConstI32(1))
	instrs = append(instrs, il.Instr{
		Op: il.OpCallRuntimeBuiltin, Func: "AllocateList",
		Sig2: il.Signature{Params: []il.ValType{il.I32}, Results: []il.ValType{il.HeapPtr}},
	}) // [target, list]
	instrs = append(instrs, il.ConstI32(0))          // [target, list, 0]
	instrs = append(instrs, innerAgain.Instrs...)    // [target, list, 0, inner]
	instrs = append(instrs, il.Instr{
		Op: il.OpCallRuntimeBuiltin, Func: "CreateRecursive", Sig2: ptrSig,
	}) // [target, list, 0, recursive]
	instrs = append(instrs, il.Instr{
		Op: il.OpCallRuntimeBuiltin, Func: "SetListItem",
		Sig2: il.Signature{Params: []il.ValType{il.HeapPtr, il.I32, il.HeapPtr}, Results: []il.ValType{il.HeapPtr}},
	}) // [target, list]
	instrs = append(instrs, il.Instr{Op: il.OpCallRuntimeBuiltin, Func: "InitList", Sig2: ptrSig}) // [target, args]
	instrs = append(instrs, il.Instr{Op: il.OpApply}) // [result]
	return il.Block{Instrs: instrs}, nil
}

// compileIf lowers the If builtin (eval/eval.go's evalIf): force the
// predicate, convert it to a raw i32 via the runtime's IsTruthy check
// (which also enforces the reference evaluator's "predicate must be
// Boolean" TypeError, per DESIGN.md), then branch with a typed If
// whose Then/Else are the two arms compiled independently — neither
// arm's value is needed by the other, so no block parameter passing
// is required here (contrast compileShortCircuitBoolean below).
func (c *ctx) compileIf(argPtrs []arena.Pointer) (il.Block, error) {
	if len(argPtrs) != 3 {
		return il.Block{}, &InvalidFunctionArgs{Want: 3, Got: len(argPtrs)}
	}
	condBlock, err := c.compile(argPtrs[0], term.ArgStrict)
	if err != nil {
		return il.Block{}, err
	}
	thenBlock, err := c.compile(argPtrs[1], term.ArgStrict)
	if err != nil {
		return il.Block{}, err
	}
	elseBlock, err := c.compile(argPtrs[2], term.ArgStrict)
	if err != nil {
		return il.Block{}, err
	}

	var instrs []il.Instr
	instrs = append(instrs, condBlock.Instrs...)
	instrs = append(instrs, il.Instr{
		Op: il.OpCallRuntimeBuiltin, Func: "IsTruthy",
		Sig2: il.Signature{Params: []il.ValType{il.HeapPtr}, Results: []il.ValType{il.I32}},
	})
	instrs = append(instrs, il.Instr{
		Op:   il.OpIf,
		Sig:  il.Signature{Results: []il.ValType{il.HeapPtr}},
		Then: thenBlock,
		Else: elseBlock,
	})
	return il.Block{Instrs: instrs}, nil
}

// compileShortCircuitBoolean lowers And/Or (eval/eval.go's
// evalShortCircuitBoolean): a is forced and duplicated, one copy feeds
// IsTruthy, the other rides into the If as a block parameter (the IL
// has no Swap/Over to reorder a single buried stack value, so the
// If's declared Params carry it into whichever arm needs it instead).
// stopOn mirrors the reference evaluator exactly: false for And (a's
// own value short-circuits when a is falsy), true for Or (when a is
// truthy).
func (c *ctx) compileShortCircuitBoolean(argPtrs []arena.Pointer, stopOn bool) (il.Block, error) {
	if len(argPtrs) != 2 {
		return il.Block{}, &InvalidFunctionArgs{Want: 2, Got: len(argPtrs)}
	}
	aBlock, err := c.compile(argPtrs[0], term.ArgStrict)
	if err != nil {
		return il.Block{}, err
	}
	bBlock, err := c.compile(argPtrs[1], term.ArgStrict)
	if err != nil {
		return il.Block{}, err
	}

	// passthrough: the arm that keeps a's own (carried-in) value as-is.
	passthrough := il.Block{Instrs: []il.Instr{}}
	// evalOther: drop the carried-in a, evaluate and return b instead.
	evalOther := il.Block{Instrs: append([]il.Instr{{Op: il.OpDrop}}, bBlock.Instrs...)}

	then, els := evalOther, passthrough
	if stopOn {
		then, els = passthrough, evalOther
	}

	var instrs []il.Instr
	instrs = append(instrs, aBlock.Instrs...)
	instrs = append(instrs, il.Instr{Op: il.OpDuplicate})
	instrs = append(instrs, il.Instr{
		Op: il.OpCallRuntimeBuiltin, Func: "IsTruthy",
		Sig2: il.Signature{Params: []il.ValType{il.HeapPtr}, Results: []il.ValType{il.I32}},
	})
	instrs = append(instrs, il.Instr{
		Op:   il.OpIf,
		Sig:  il.Signature{Params: []il.ValType{il.HeapPtr}, Results: []il.ValType{il.HeapPtr}},
		Then: then,
		Else: els,
	})
	return il.Block{Instrs: instrs}, nil
}

// compileIfCondition lowers IfError/IfPending (eval/eval.go's
// evalIfCondition): expr is compiled under ArgEager (tolerating a
// Signal result without short-circuiting, the same as the reference
// evaluator's plain e.eval call), duplicated, and checked by the
// runtime's SignalHasConditionKind against the statically-known kind;
// the carried-in expr value either passes through unchanged or is
// dropped in favor of the fallback (itself only compiled into the
// branch that runs, so it is evaluated conditionally despite being
// lowered with the plain ArgStrict form, the same as
// compileShortCircuitBoolean's b), using the same block-parameter
// technique as compileShortCircuitBoolean.
func (c *ctx) compileIfCondition(argPtrs []arena.Pointer, kind term.ConditionKind) (il.Block, error) {
	if len(argPtrs) != 2 {
		return il.Block{}, &InvalidFunctionArgs{Want: 2, Got: len(argPtrs)}
	}
	exprBlock, err := c.compile(argPtrs[0], term.ArgEager)
	if err != nil {
		return il.Block{}, err
	}
	fallbackBlock, err := c.compile(argPtrs[1], term.ArgStrict)
	if err != nil {
		return il.Block{}, err
	}

	passthrough := il.Block{Instrs: []il.Instr{}}
	useFallback := il.Block{Instrs: append([]il.Instr{{Op: il.OpDrop}}, fallbackBlock.Instrs...)}

	var instrs []il.Instr
	instrs = append(instrs, exprBlock.Instrs...)
	instrs = append(instrs, il.Instr{Op: il.OpDuplicate})
	instrs = append(instrs, il.ConstI32(int32(kind)))
	instrs = append(instrs, il.Instr{
		Op: il.OpCallRuntimeBuiltin, Func: "SignalHasConditionKind",
		Sig2: il.Signature{Params: []il.ValType{il.HeapPtr, il.I32}, Results: []il.ValType{il.I32}},
	})
	instrs = append(instrs, il.Instr{
		Op:   il.OpIf,
		Sig:  il.Signature{Params: []il.ValType{il.HeapPtr}, Results: []il.ValType{il.HeapPtr}},
		Then: useFallback,
		Else: passthrough,
	})
	return il.Block{Instrs: instrs}, nil
}

// compileCollectList lowers CollectList (eval/eval.go's
// evalCollectList): the list expression is forced, then the runtime's
// CollectList builtin walks it item-by-item, forcing each (a List's
// items are not otherwise auto-forced, see term/reactive.go and
// compileList's plain pass-through of item pointers) and propagating
// the first Signal encountered — a loop the static IL block structure
// can't express itself (no loop opcode in the table), but the runtime
// library, running as compiled WASM with true iteration, can.
func (c *ctx) compileCollectList(argPtrs []arena.Pointer) (il.Block, error) {
	if len(argPtrs) != 1 {
		return il.Block{}, &InvalidFunctionArgs{Want: 1, Got: len(argPtrs)}
	}
	listBlock, err := c.compile(argPtrs[0], term.ArgStrict)
	if err != nil {
		return il.Block{}, err
	}
	instrs := append([]il.Instr{}, listBlock.Instrs...)
	instrs = append(instrs, il.Instr{Op: il.OpCallRuntimeBuiltin, Func: "CollectList", Sig2: ptrSig})
	return il.Block{Instrs: instrs}, nil
}
