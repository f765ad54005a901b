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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reflexcore/reflexcore/il"
)

// stubRuntimeModule builds a minimal valid WASM binary module
// exporting one zero-import function per name in fns, each typed
// (i32...) -> i32 with a trivial body (enough for wasmgen to resolve
// FuncIndex and for Decode/Encode to round-trip).
func stubRuntimeModule(t *testing.T, fns ...string) []byte {
	t.Helper()
	m := &Module{raw: map[byte][]byte{}}
	sig := FuncType{Params: []ValType{ValI32, ValI32, ValI32, ValI32}, Results: []ValType{ValI32}}
	body := []byte{opI32Const, 0x00, opEnd}
	for _, name := range fns {
		idx := m.AddFunction(sig, body)
		m.Export(name, kindFunc, idx)
	}
	return m.Encode()
}

func requiredRuntimeBuiltins() []string {
	return []string{
		"CreateInt", "CreateFloat", "CreateBoolean", "CreateNil", "CreateString",
		"AllocateList", "SetListItem", "InitList", "CreateRecord", "CreateLazyRecord",
		"CreateHashmap", "CreateHashset", "CreateTree",
		"CreateFunctionReference", "WrapMemoizedFunction", "CreatePartial", "CreateBuiltin",
		"CreateConstructor", "CreateRecursive",
		"CreateEffect", "CreateSignal", "CreateCondition", "CreateLazyResult",
		"CreateRepeat", "CreateOnce", "CreateFlatten", "CreateHashmapKeys", "CreateHashmapValues",
		"CreateEvaluate", "CreateTake", "CreateSkip", "CreateMap", "CreateFilter", "CreateZip",
		"CreateIndexedAccessor",
		"IsTruthy", "SignalHasConditionKind", "CollectList",
		"IsSignal", "LoadStateValue", "CallDynamic", "Evaluate", "CreateApplication", "CollectSignals",
		"Add", "Sub", "Mul", "Div", "Eq", "Equal", "Get", "IfError", "IfPending",
		"ErrorLit", "ResolveDeep", "Collect",
	}
}

func TestDecodeEncodeRoundTrips(t *testing.T) {
	raw := stubRuntimeModule(t, "CreateInt", "AllocateList")
	m, err := Decode(raw)
	require.NoError(t, err)
	require.Len(t, m.Functions, 2)
	idx, ok := m.FuncIndex("AllocateList")
	require.True(t, ok)
	require.EqualValues(t, 1, idx)

	again, err := Decode(m.Encode())
	require.NoError(t, err)
	require.Equal(t, m.Functions, again.Functions)
	require.Equal(t, m.Exports, again.Exports)
}

func TestGenerateConstAtomEntryPoint(t *testing.T) {
	raw := stubRuntimeModule(t, requiredRuntimeBuiltins()...)
	entry := EntryPoint{
		Name: "query",
		Body: il.Block{Instrs: []il.Instr{
			il.ConstPtr(0),
			{Op: il.OpNullPointer},
		}},
	}
	out, err := Generate(raw, nil, []EntryPoint{entry}, []byte{1, 2, 3, 4}, 1 << 20)
	require.NoError(t, err)

	m, err := Decode(out)
	require.NoError(t, err)
	idx, ok := m.FuncIndex("query")
	require.True(t, ok)
	require.EqualValues(t, len(requiredRuntimeBuiltins()), idx)
	require.Len(t, m.DataSegments, 1)
}

func TestGenerateMissingRuntimeBuiltinErrors(t *testing.T) {
	raw := stubRuntimeModule(t, "CreateInt")
	entry := EntryPoint{
		Name: "query",
		Body: il.Block{Instrs: []il.Instr{
			il.ConstI32(1),
			il.ConstI32(2),
			{Op: il.OpCallRuntimeBuiltin, Func: "AllocateList", Sig2: il.Signature{
				Params: []il.ValType{il.I32, il.I32}, Results: []il.ValType{il.HeapPtr},
			}},
			{Op: il.OpNullPointer},
		}},
	}
	_, err := Generate(raw, nil, []EntryPoint{entry}, nil, 0)
	require.Error(t, err)
}

func TestGenerateHoistedFunctionAndEntryPointBothResolve(t *testing.T) {
	raw := stubRuntimeModule(t, requiredRuntimeBuiltins()...)
	hoisted := []HoistedFunction{{
		ID:  3,
		Sig: il.Signature{Params: []il.ValType{il.HeapPtr}, Results: []il.ValType{il.HeapPtr}},
		Body: il.Block{Instrs: []il.Instr{
			{Op: il.OpGetScopeValue, ValType: il.HeapPtr, Depth: 0},
		}},
	}}
	entry := EntryPoint{
		Name: "query",
		Body: il.Block{Instrs: []il.Instr{
			{Op: il.OpNullPointer},
			{Op: il.OpNullPointer},
		}},
	}
	out, err := Generate(raw, hoisted, []EntryPoint{entry}, nil, 0)
	require.NoError(t, err)
	m, err := Decode(out)
	require.NoError(t, err)
	require.Len(t, m.Functions, len(requiredRuntimeBuiltins())+2)
}

func TestBlockTypeRegistersMultiValueSignature(t *testing.T) {
	raw := stubRuntimeModule(t, requiredRuntimeBuiltins()...)
	entry := EntryPoint{
		Name: "multi",
		Body: il.Block{Instrs: []il.Instr{
			{Op: il.OpNullPointer},
			{Op: il.OpBlock, Sig: il.Signature{
				Params:  []il.ValType{il.HeapPtr},
				Results: []il.ValType{il.HeapPtr, il.HeapPtr},
			}, Then: il.Block{Instrs: []il.Instr{
				{Op: il.OpDuplicate},
			}}},
		}},
	}
	_, err := Generate(raw, nil, []EntryPoint{entry}, nil, 0)
	require.NoError(t, err)
}
