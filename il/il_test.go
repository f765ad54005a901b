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

package il

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConstPushesDeclaredType(t *testing.T) {
	b := Block{Instrs: []Instr{ConstI32(7)}}
	stack, err := TypeCheck(b, Signature{Results: []ValType{I32}})
	require.NoError(t, err)
	require.Equal(t, []ValType{I32}, stack.Operand())
}

func TestDuplicateDropRoundTrip(t *testing.T) {
	b := Block{Instrs: []Instr{
		ConstI64(1),
		{Op: OpDuplicate},
		{Op: OpDrop},
	}}
	stack, err := TypeCheck(b, Signature{Results: []ValType{I64}})
	require.NoError(t, err)
	require.Equal(t, []ValType{I64}, stack.Operand())
}

func TestScopeStartEndRoundTrip(t *testing.T) {
	b := Block{Instrs: []Instr{
		ConstPtr(0),
		{Op: OpScopeStart, ValType: HeapPtr},
		{Op: OpGetScopeValue, ValType: HeapPtr, Depth: 0},
		{Op: OpScopeEnd, ValType: HeapPtr},
	}}
	stack, err := TypeCheck(b, Signature{Results: []ValType{HeapPtr, HeapPtr}})
	require.NoError(t, err)
	require.Equal(t, []ValType{HeapPtr, HeapPtr}, stack.Operand())
}

func TestEqProducesI32(t *testing.T) {
	b := Block{Instrs: []Instr{
		ConstI32(1),
		ConstI32(2),
		{Op: OpEq},
	}}
	stack, err := TypeCheck(b, Signature{Results: []ValType{I32}})
	require.NoError(t, err)
	require.Equal(t, []ValType{I32}, stack.Operand())
}

func TestIfBranchesMustAgreeWithSignature(t *testing.T) {
	sig := Signature{Results: []ValType{I32}}
	b := Block{Instrs: []Instr{
		ConstI32(1), // condition
		{
			Op:   OpIf,
			Sig:  sig,
			Then: Block{Instrs: []Instr{ConstI32(10)}},
			Else: Block{Instrs: []Instr{ConstI32(20)}},
		},
	}}
	stack, err := TypeCheck(b, Signature{Results: []ValType{I32}})
	require.NoError(t, err)
	require.Equal(t, []ValType{I32}, stack.Operand())
}

func TestIfBranchMismatchIsTypedStackError(t *testing.T) {
	sig := Signature{Results: []ValType{I32}}
	b := Block{Instrs: []Instr{
		ConstI32(1),
		{
			Op:   OpIf,
			Sig:  sig,
			Then: Block{Instrs: []Instr{ConstI32(10)}},
			Else: Block{Instrs: []Instr{ConstI64(20)}}, // wrong type
		},
	}}
	_, err := TypeCheck(b, Signature{Results: []ValType{I32}})
	require.Error(t, err)
	var tse *TypedStackError
	require.ErrorAs(t, err, &tse)
}

func TestBreakOnSignalResolvesEnclosingDepth(t *testing.T) {
	b := Block{Instrs: []Instr{
		ConstPtr(0),
		{Op: OpBreakOnSignal, Depth: 0},
	}}
	stack, err := TypeCheck(b, Signature{Results: []ValType{HeapPtr}})
	require.NoError(t, err)
	require.Equal(t, []ValType{HeapPtr}, stack.Operand())
}

func TestMismatchedResultSignatureErrors(t *testing.T) {
	b := Block{Instrs: []Instr{ConstI32(1)}}
	_, err := TypeCheck(b, Signature{Results: []ValType{I64}})
	require.Error(t, err)
	var tse *TypedStackError
	require.ErrorAs(t, err, &tse)
}

func TestPopOnEmptyStackErrors(t *testing.T) {
	b := Block{Instrs: []Instr{{Op: OpDrop}}}
	_, err := TypeCheck(b, Signature{})
	require.Error(t, err)
}

func TestCallStdlibUsesDeclaredSignature(t *testing.T) {
	b := Block{Instrs: []Instr{
		ConstPtr(0),
		ConstPtr(0),
		{
			Op:   OpCallStdlib,
			Func: "add",
			Sig2: Signature{Params: []ValType{HeapPtr, HeapPtr}, Results: []ValType{HeapPtr}},
		},
	}}
	stack, err := TypeCheck(b, Signature{Results: []ValType{HeapPtr}})
	require.NoError(t, err)
	require.Equal(t, []ValType{HeapPtr}, stack.Operand())
}
