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
	"strconv"

	"github.com/reflexcore/reflexcore/il"
)

// HoistedFunction is a compiled top-level function the generator must
// emit alongside the entry points that call it (mirrors
// compiler.CompiledFunction, kept as its own type here so wasmgen
// doesn't need to import package compiler).
type HoistedFunction struct {
	ID   uint32
	Sig  il.Signature
	Body il.Block
}

// EntryPoint is one compiled query or subscription body to export
// from the generated module, with signature
// (state_root: i32) -> (result: i32, dependencies: i32).
type EntryPoint struct {
	Name string
	Body il.Block
}

// entryWasmType is the actual WASM-level signature every EntryPoint is
// exported with. Its one parameter, the state_root
// pointer, is never popped by the IL block itself — the generator's
// prologue stashes it in the runtime module's state_root global before
// running the block (see entryILSignature and the prologue emitted in
// Generate), since LoadStateValue calls can occur at any nesting depth
// inside the body, not only at its outermost scope.
var entryWasmType = FuncType{
	Params:  []ValType{ValI32},
	Results: []ValType{ValI32, ValI32},
}

// entryILSignature is what the compiled body itself must produce, from
// an empty initial operand stack (see entryWasmType's doc comment).
var entryILSignature = il.Signature{
	Results: []il.ValType{il.HeapPtr, il.HeapPtr},
}

// Generate clones the runtime-library module, resolves its exported
// builtins, lowers every hoisted function and entry point to WASM,
// splices the compiler's interned snapshot image in as a new active
// data segment at imageBase, and exports each entry point under its
// given name. It returns the finished module's binary encoding.
func Generate(runtimeModule []byte, hoisted []HoistedFunction, entries []EntryPoint, image []byte, imageBase uint32) ([]byte, error) {
	m, err := Decode(runtimeModule)
	if err != nil {
		return nil, fmt.Errorf("wasmgen: decoding runtime module: %w", err)
	}

	compiledIdx := make(map[uint32]uint32, len(hoisted))
	resolveCompiled := func(id uint32) (uint32, bool) {
		idx, ok := compiledIdx[id]
		return idx, ok
	}

	// Hoisted functions must be assigned function-index-space slots
	// before lowering any body that might call them (mutual recursion
	// between hoisted Lambdas is otherwise unresolvable in one pass),
	// so reserve every index first with an empty placeholder body and
	// backfill the body bytes once lowered.
	placeholders := make([]int, len(hoisted))
	for i, hf := range hoisted {
		sig := toFuncType(hf.Sig)
		idx := m.AddFunction(sig, nil)
		compiledIdx[hf.ID] = idx
		placeholders[i] = len(m.Functions) - 1
	}
	for i, hf := range hoisted {
		body, err := LowerFunction(m, toWasmTypes(hf.Sig.Params), hf.Sig, hf.Body, nil, resolveCompiled)
		if err != nil {
			return nil, fmt.Errorf("wasmgen: lowering hoisted function %d: %w", hf.ID, err)
		}
		m.Functions[placeholders[i]].Body = body
	}

	var prologue []byte
	if stateGlobal, ok := m.GlobalIndex("state_root"); ok {
		prologue = entryPrologue(stateGlobal)
	}
	for _, ep := range entries {
		body, err := LowerFunction(m, entryWasmType.Params, entryILSignature, ep.Body, prologue, resolveCompiled)
		if err != nil {
			return nil, fmt.Errorf("wasmgen: lowering entry point %q: %w", ep.Name, err)
		}
		idx := m.AddFunction(entryWasmType, body)
		m.Export(ep.Name, kindFunc, idx)
	}

	if len(image) > 0 {
		m.AddActiveData(imageBase, image)
	}

	return m.Encode(), nil
}

// entryPrologue builds the bytes "local.get 0; global.set stateGlobal"
// that stash an entry function's state_root parameter into the
// runtime module's exported state_root global before the lowered body
// runs, so an OpLoadStateValue anywhere in the body (not only at its
// outermost scope) can reach it without threading it through every
// nested call's operand stack.
func entryPrologue(stateGlobal uint32) []byte {
	out := []byte{opLocalGet}
	out = appendUvarint(out, 0)
	out = append(out, opGlobalSet)
	out = appendUvarint(out, uint64(stateGlobal))
	return out
}

// compiledFuncName is the Func string a CallCompiledFunction
// instruction carries for the hoisted function with the given ID
// (compiler/lower_functional.go would emit this if it ever lowered a
// direct — rather than dynamically Applied — call to a hoisted
// Lambda; see decodeCompiledFuncID).
func compiledFuncName(id uint32) string { return strconv.FormatUint(uint64(id), 10) }
