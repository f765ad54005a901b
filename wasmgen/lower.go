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

package wasmgen

import (
	"fmt"
	"math"
	"strconv"

	"github.com/reflexcore/reflexcore/il"
)

// WASM opcodes used by the lowering pass (binary format §5.4).
const (
	opUnreachable = 0x00
	opBlock       = 0x02
	opIf          = 0x04
	opElse        = 0x05
	opEnd         = 0x0B
	opBr          = 0x0C
	opBrIf        = 0x0D
	opCall        = 0x10
	opDrop        = 0x1A
	opSelect      = 0x1B
	opLocalGet    = 0x20
	opLocalSet    = 0x21
	opLocalTee    = 0x22
	opGlobalGet   = 0x23
	opGlobalSet   = 0x24
	opI32Load     = 0x28
	opI64Load     = 0x29
	opF32Load     = 0x2A
	opF64Load     = 0x2B
	opI32Store    = 0x36
	opI64Store    = 0x37
	opF32Store    = 0x38
	opF64Store    = 0x39
	opI32Const    = 0x41
	opI64Const    = 0x42
	opF32Const    = 0x43
	opF64Const    = 0x44
	opI32Eq       = 0x46
	opI32Ne       = 0x47
	opI64Eq       = 0x51
	opI64Ne       = 0x52
	opF32Eq       = 0x5B
	opF32Ne       = 0x5C
	opF64Eq       = 0x61
	opF64Ne       = 0x62
)

func toWasmType(t il.ValType) ValType {
	switch t {
	case il.I32, il.HeapPtr:
		return ValI32
	case il.I64:
		return ValI64
	case il.F32:
		return ValF32
	case il.F64:
		return ValF64
	}
	panic("wasmgen: unknown il.ValType")
}

func toWasmTypes(ts []il.ValType) []ValType {
	out := make([]ValType, len(ts))
	for i, t := range ts {
		out[i] = toWasmType(t)
	}
	return out
}

func toFuncType(sig il.Signature) FuncType {
	return FuncType{Params: toWasmTypes(sig.Params), Results: toWasmTypes(sig.Results)}
}

// Linker resolves the runtime-library function index a
// CallRuntimeBuiltin/CallStdlib instruction's Func name refers to.
// The runtime Module itself implements this via its export table.
type Linker interface {
	FuncIndex(name string) (uint32, bool)
}

// funcBuilder lowers a single il.Block into one WASM function body,
// maintaining the local-variable allocation for the lexical-scope
// stack and Duplicate's scratch slots alongside a shadow
// il.CompilerStack used purely to recover the operand type at
// instructions (Duplicate, Eq/Ne, Select, ReadHeapValue) whose WASM
// opcode depends on a type the Instr itself doesn't carry.
type funcBuilder struct {
	module     *Module
	sig        il.Signature
	numParams  int
	extra      []ValType // additional locals, indices continue after params
	scratch    map[ValType]int
	scopeLocs  []int // innermost first, mirrors il.CompilerStack's scope convention
	code       []byte
	funcIdx    func(id uint32) (uint32, bool) // resolves a hoisted compiled-function id to its WASM function index
}

func (fb *funcBuilder) allocLocal(t ValType) int {
	idx := fb.numParams + len(fb.extra)
	fb.extra = append(fb.extra, t)
	return idx
}

func (fb *funcBuilder) scratchLocal(t ValType) int {
	if fb.scratch == nil {
		fb.scratch = make(map[ValType]int)
	}
	if idx, ok := fb.scratch[t]; ok {
		return idx
	}
	idx := fb.allocLocal(t)
	fb.scratch[t] = idx
	return idx
}

func (fb *funcBuilder) emit(b ...byte) { fb.code = append(fb.code, b...) }

func (fb *funcBuilder) emitLocalOp(op byte, idx int) {
	fb.emit(op)
	fb.code = appendUvarint(fb.code, uint64(idx))
}

func (fb *funcBuilder) emitCall(idx uint32) {
	fb.emit(opCall)
	fb.code = appendUvarint(fb.code, uint64(idx))
}

func (fb *funcBuilder) blockType(sig il.Signature) []byte {
	if len(sig.Params) == 0 {
		switch len(sig.Results) {
		case 0:
			return []byte{0x40}
		case 1:
			return []byte{byte(toWasmType(sig.Results[0]))}
		}
	}
	idx := fb.module.typeIndex(toFuncType(sig))
	return appendVarint(nil, int64(idx))
}

// lowerBlock lowers block's instructions, threading a shadow operand
// stack (for type recovery) and a blocks list (enclosing Signatures,
// innermost last) exactly the way il.TypeCheck does, since a block has
// already been type-checked successfully by the time it reaches
// codegen and the two walks must agree.
func (fb *funcBuilder) lowerBlock(block il.Block, stack *il.CompilerStack, blocks []il.Signature) error {
	for _, instr := range block.Instrs {
		if err := fb.lowerInstr(instr, stack, blocks); err != nil {
			return err
		}
	}
	return nil
}

func (fb *funcBuilder) lowerInstr(instr il.Instr, stack *il.CompilerStack, blocks []il.Signature) error {
	switch instr.Op {
	case il.OpConst:
		switch instr.Const.Type {
		case il.I32:
			fb.emit(opI32Const)
			fb.code = appendVarint(fb.code, int64(instr.Const.I32))
		case il.I64:
			fb.emit(opI64Const)
			fb.code = appendVarint(fb.code, instr.Const.I64)
		case il.F32:
			fb.emit(opF32Const)
			fb.code = appendF32(fb.code, instr.Const.F32)
		case il.F64:
			fb.emit(opF64Const)
			fb.code = appendF64(fb.code, instr.Const.F64)
		case il.HeapPtr:
			fb.emit(opI32Const)
			fb.code = appendVarint(fb.code, int64(int32(instr.Const.Ptr)))
		}
		stack.Push(instr.Const.Type)

	case il.OpDuplicate:
		t, _ := stack.PeekTop()
		idx := fb.scratchLocal(toWasmType(t))
		fb.emitLocalOp(opLocalTee, idx)
		fb.emitLocalOp(opLocalGet, idx)
		stack.Push(t)

	case il.OpDrop:
		t, _ := stack.PeekTop()
		fb.emit(opDrop)
		stack.Pop(t)

	case il.OpScopeStart:
		idx := fb.allocLocal(toWasmType(instr.ValType))
		fb.emitLocalOp(opLocalSet, idx)
		fb.scopeLocs = append([]int{idx}, fb.scopeLocs...)
		stack.Pop(instr.ValType)
		stack.PushScope(instr.ValType)

	case il.OpScopeEnd:
		fb.scopeLocs = fb.scopeLocs[1:]
		stack.PopScope(instr.ValType)
		stack.Push(instr.ValType)

	case il.OpGetScopeValue:
		fb.emitLocalOp(opLocalGet, fb.scopeLocs[instr.Depth])
		stack.Push(instr.ValType)

	case il.OpBlock:
		popParamsShadow(stack, instr.Sig.Params)
		fb.emit(opBlock)
		fb.code = append(fb.code, fb.blockType(instr.Sig)...)
		inner := seedStack(instr.Sig.Params)
		if err := fb.lowerBlock(instr.Then, inner, append(blocks, instr.Sig)); err != nil {
			return err
		}
		fb.emit(opEnd)
		for _, r := range instr.Sig.Results {
			stack.Push(r)
		}

	case il.OpIf:
		stack.Pop(il.I32)
		popParamsShadow(stack, instr.Sig.Params)
		fb.emit(opIf)
		fb.code = append(fb.code, fb.blockType(instr.Sig)...)
		thenStack := seedStack(instr.Sig.Params)
		if err := fb.lowerBlock(instr.Then, thenStack, append(blocks, instr.Sig)); err != nil {
			return err
		}
		fb.emit(opElse)
		elseStack := seedStack(instr.Sig.Params)
		if err := fb.lowerBlock(instr.Else, elseStack, append(blocks, instr.Sig)); err != nil {
			return err
		}
		fb.emit(opEnd)
		for _, r := range instr.Sig.Results {
			stack.Push(r)
		}

	case il.OpBreak:
		fb.emitLocalOp(opBr, instr.Depth)

	case il.OpConditionalBreak:
		stack.Pop(il.I32)
		fb.emitLocalOp(opBrIf, instr.Depth)

	case il.OpBreakOnSignal:
		// dup; call IsSignal; br_if depth. br_if only ever consumes its
		// i32 condition — the duplicated value it may carry out stays
		// beneath it on the stack the whole time, so no extra block
		// nesting is needed to thread it through the break (binary
		// format §5.4.1 br_if). The Signal-vs-ordinary-value tag test
		// itself is a runtime-library concern resolved by name, like
		// every other compiler-invented predicate (IsTruthy,
		// SignalHasConditionKind).
		idx := fb.scratchLocal(ValI32)
		fb.emitLocalOp(opLocalTee, idx)
		fb.emitLocalOp(opLocalGet, idx)
		fnIdx, ok := fb.module.FuncIndex("IsSignal")
		if !ok {
			return fmt.Errorf("wasmgen: runtime library does not export IsSignal")
		}
		fb.emitCall(fnIdx)
		fb.emitLocalOp(opBrIf, instr.Depth)
		stack.Pop(il.HeapPtr)
		stack.Push(il.HeapPtr)

	case il.OpSelect:
		stack.Pop(il.I32)
		t, _ := stack.PeekTop()
		stack.Pop(t)
		stack.Pop(t)
		fb.emit(opSelect)
		stack.Push(t)

	case il.OpEq, il.OpNe:
		t, _ := stack.PeekTop()
		stack.Pop(t)
		stack.Pop(t)
		fb.emit(eqNeOpcode(t, instr.Op == il.OpEq))
		stack.Push(il.I32)

	case il.OpReadHeapValue:
		stack.Pop(il.HeapPtr)
		fb.emit(loadOpcode(instr.ValType))
		fb.code = appendUvarint(fb.code, 2) // align (log2), matches arena.Align=4
		fb.code = appendUvarint(fb.code, 0) // offset
		stack.Push(instr.ValType)

	case il.OpWriteHeapValue:
		stack.Pop(instr.ValType)
		stack.Pop(il.HeapPtr)
		fb.emit(storeOpcode(instr.ValType))
		fb.code = appendUvarint(fb.code, 2)
		fb.code = appendUvarint(fb.code, 0)

	case il.OpNullPointer:
		fb.emit(opI32Const)
		fb.code = appendVarint(fb.code, -1) // arena.Null = 0xFFFFFFFF
		stack.Push(il.HeapPtr)

	case il.OpDeclareVariable:
		idx := fb.allocLocal(ValI32)
		fb.emitLocalOp(opLocalTee, idx)
		fb.scopeLocs = append([]int{idx}, fb.scopeLocs...)
		stack.Pop(il.HeapPtr)
		stack.PushScope(il.HeapPtr)
		stack.Push(il.HeapPtr)

	case il.OpLoadStateValue:
		fnIdx, ok := fb.module.FuncIndex("LoadStateValue")
		if !ok {
			return fmt.Errorf("wasmgen: runtime library does not export LoadStateValue")
		}
		stack.Pop(il.HeapPtr)
		fb.emitCall(fnIdx)
		stack.Push(il.HeapPtr)

	case il.OpCallRuntimeBuiltin, il.OpCallStdlib:
		fnIdx, ok := fb.module.FuncIndex(instr.Func)
		if !ok {
			return fmt.Errorf("wasmgen: runtime library does not export %q", instr.Func)
		}
		popParamsShadow(stack, instr.Sig2.Params)
		fb.emitCall(fnIdx)
		for _, r := range instr.Sig2.Results {
			stack.Push(r)
		}

	case il.OpCallCompiledFunction:
		fnIdx, ok := fb.funcIdx(decodeCompiledFuncID(instr.Func))
		if !ok {
			return fmt.Errorf("wasmgen: no compiled function for %q", instr.Func)
		}
		popParamsShadow(stack, instr.Sig2.Params)
		fb.emitCall(fnIdx)
		for _, r := range instr.Sig2.Results {
			stack.Push(r)
		}

	case il.OpCallDynamic:
		stack.Pop(il.HeapPtr)
		stack.Pop(il.HeapPtr)
		fnIdx, ok := fb.module.FuncIndex("CallDynamic")
		if !ok {
			return fmt.Errorf("wasmgen: runtime library does not export CallDynamic")
		}
		fb.emitCall(fnIdx)
		stack.Push(il.HeapPtr)

	case il.OpEvaluate:
		stack.Pop(il.HeapPtr)
		fnIdx, ok := fb.module.FuncIndex("Evaluate")
		if !ok {
			return fmt.Errorf("wasmgen: runtime library does not export Evaluate")
		}
		fb.emitCall(fnIdx)
		stack.Push(il.HeapPtr)

	case il.OpApply:
		stack.Pop(il.HeapPtr)
		stack.Pop(il.HeapPtr)
		fnIdx, ok := fb.module.FuncIndex("CreateApplication")
		if !ok {
			return fmt.Errorf("wasmgen: runtime library does not export CreateApplication")
		}
		fb.emitCall(fnIdx)
		stack.Push(il.HeapPtr)

	case il.OpCollectSignals:
		stack.Pop(il.HeapPtr)
		stack.Pop(il.HeapPtr)
		fnIdx, ok := fb.module.FuncIndex("CollectSignals")
		if !ok {
			return fmt.Errorf("wasmgen: runtime library does not export CollectSignals")
		}
		fb.emitCall(fnIdx)
		stack.Push(il.HeapPtr)

	default:
		return fmt.Errorf("wasmgen: unhandled il.Op %v", instr.Op)
	}
	return nil
}

func popParamsShadow(stack *il.CompilerStack, params []il.ValType) {
	for i := len(params) - 1; i >= 0; i-- {
		stack.Pop(params[i])
	}
}

func seedStack(params []il.ValType) *il.CompilerStack {
	s := il.NewCompilerStack()
	for _, p := range params {
		s.Push(p)
	}
	return s
}

func eqNeOpcode(t il.ValType, eq bool) byte {
	switch t {
	case il.I64:
		if eq {
			return opI64Eq
		}
		return opI64Ne
	case il.F32:
		if eq {
			return opF32Eq
		}
		return opF32Ne
	case il.F64:
		if eq {
			return opF64Eq
		}
		return opF64Ne
	default: // I32, HeapPtr
		if eq {
			return opI32Eq
		}
		return opI32Ne
	}
}

func loadOpcode(t il.ValType) byte {
	switch t {
	case il.I64:
		return opI64Load
	case il.F32:
		return opF32Load
	case il.F64:
		return opF64Load
	default:
		return opI32Load
	}
}

func storeOpcode(t il.ValType) byte {
	switch t {
	case il.I64:
		return opI64Store
	case il.F32:
		return opF32Store
	case il.F64:
		return opF64Store
	default:
		return opI32Store
	}
}

func appendF32(buf []byte, v float32) []byte {
	bits := math.Float32bits(v)
	return append(buf, byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24))
}

func appendF64(buf []byte, v float64) []byte {
	bits := math.Float64bits(v)
	for i := 0; i < 8; i++ {
		buf = append(buf, byte(bits>>(8*i)))
	}
	return buf
}

// decodeCompiledFuncID parses a CallCompiledFunction instruction's Func
// field back into the CompiledFunction.ID the compiler assigned when
// hoisting the corresponding Lambda (compiler/state.go's hoist), the
// string form it's carried in since il.Instr.Func is untyped.
func decodeCompiledFuncID(s string) uint32 {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0
	}
	return uint32(id)
}

// LowerFunction assembles a complete WASM function body (locals vector
// + instruction bytes + end opcode) from an IL block, resolving
// runtime builtins against module and other compiled entry points
// against resolveCompiled (keyed by the CompiledFunction.ID the
// compiler assigned when hoisting the Lambda).
//
// trueParams is the WASM function's own parameter list — local
// indices 0..len(trueParams)-1 are reserved for them regardless of
// what the IL-level signature ilSig declares its operand-stack entry
// state to be. These differ for a compiled entry point: its one true
// WASM parameter (the state_root pointer) is consumed by the
// generator's own prologue (see Generate), not by anything the IL
// block itself pops, so ilSig.Params is empty even though
// len(trueParams) is 1.
func LowerFunction(module *Module, trueParams []ValType, ilSig il.Signature, body il.Block, prologue []byte, resolveCompiled func(id uint32) (uint32, bool)) ([]byte, error) {
	if _, err := il.TypeCheck(body, ilSig); err != nil {
		return nil, fmt.Errorf("wasmgen: type-checking function body: %w", err)
	}
	fb := &funcBuilder{
		module:    module,
		sig:       ilSig,
		numParams: len(trueParams),
		funcIdx:   resolveCompiled,
	}
	stack := seedStack(ilSig.Params)
	if err := fb.lowerBlock(body, stack, []il.Signature{ilSig}); err != nil {
		return nil, err
	}
	var out []byte
	out = append(out, localsVec(fb.extra)...)
	out = append(out, prologue...)
	out = append(out, fb.code...)
	out = append(out, opEnd)
	return out, nil
}

// localsVec encodes the WASM function-body "locals" vector: a run-
// length-compressed list of (count, type) pairs. Runs aren't merged
// across non-adjacent allocations of the same type (allocLocal and
// scratchLocal interleave different types as needed), which is
// legal — just less compact than a toolchain that reorders locals by
// type — and keeps each local's declared index exactly equal to the
// allocation order codegen already relies on.
func localsVec(extra []ValType) []byte {
	type run struct {
		t     ValType
		count int
	}
	var runs []run
	for _, t := range extra {
		if len(runs) > 0 && runs[len(runs)-1].t == t {
			runs[len(runs)-1].count++
			continue
		}
		runs = append(runs, run{t: t, count: 1})
	}
	var body []byte
	for _, r := range runs {
		body = appendUvarint(body, uint64(r.count))
		body = append(body, byte(r.t))
	}
	return vec(len(runs), body)
}

// NoOpBody builds a minimal valid function body matching sig: no
// locals, a zero constant pushed for each declared result type, then
// end. Used to replace a one-time initializer's body once its effects
// have already been captured and baked into the module elsewhere
// (package snapshot's clearInitializeBody) — the function must remain
// callable and well-typed, but doing its original work again would be
// redundant at best and wrong at worst (re-running a bump-allocator
// bootstrap over an already-populated heap).
func NoOpBody(sig FuncType) []byte {
	var code []byte
	for _, t := range sig.Results {
		switch t {
		case ValI32:
			code = append(code, opI32Const)
			code = appendVarint(code, 0)
		case ValI64:
			code = append(code, opI64Const)
			code = appendVarint(code, 0)
		case ValF32:
			code = append(code, opF32Const)
			code = appendF32(code, 0)
		case ValF64:
			code = append(code, opF64Const)
			code = appendF64(code, 0)
		}
	}
	code = append(code, opEnd)
	return append(localsVec(nil), code...)
}
