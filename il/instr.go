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

// Op tags the IL instruction set. Like term.Kind, this
// restates the source's per-instruction struct family as one tagged
// variant dispatched by tag, following the single ssaop/value pattern
// in vm/ssa.go.
type Op uint8

const (
	OpConst Op = iota
	OpDuplicate
	OpDrop
	OpScopeStart
	OpScopeEnd
	OpGetScopeValue
	OpBlock
	OpBreak
	OpConditionalBreak
	OpIf
	OpSelect
	OpEq
	OpNe
	OpReadHeapValue
	OpWriteHeapValue
	OpNullPointer
	OpDeclareVariable
	OpLoadStateValue
	OpCallRuntimeBuiltin
	OpCallStdlib
	OpCallCompiledFunction
	OpCallDynamic
	OpEvaluate
	OpApply
	OpCollectSignals
	OpBreakOnSignal
)

var opNames = [...]string{
	OpConst:                "Const",
	OpDuplicate:            "Duplicate",
	OpDrop:                 "Drop",
	OpScopeStart:           "ScopeStart",
	OpScopeEnd:             "ScopeEnd",
	OpGetScopeValue:        "GetScopeValue",
	OpBlock:                "Block",
	OpBreak:                "Break",
	OpConditionalBreak:     "ConditionalBreak",
	OpIf:                   "If",
	OpSelect:               "Select",
	OpEq:                   "Eq",
	OpNe:                   "Ne",
	OpReadHeapValue:        "ReadHeapValue",
	OpWriteHeapValue:       "WriteHeapValue",
	OpNullPointer:          "NullPointer",
	OpDeclareVariable:      "DeclareVariable",
	OpLoadStateValue:       "LoadStateValue",
	OpCallRuntimeBuiltin:   "CallRuntimeBuiltin",
	OpCallStdlib:           "CallStdlib",
	OpCallCompiledFunction: "CallCompiledFunction",
	OpCallDynamic:          "CallDynamic",
	OpEvaluate:             "Evaluate",
	OpApply:                "Apply",
	OpCollectSignals:       "CollectSignals",
	OpBreakOnSignal:        "BreakOnSignal",
}

func (op Op) String() string {
	if int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return "Op(?)"
}

// Const is the literal payload of a Const instruction, holding exactly
// the field selected by Type.
type Const struct {
	Type ValType
	I32  int32
	I64  int64
	F32  float32
	F64  float64
	Ptr  uint32 // for Const(HeapPtr): an offset into the compiler's snapshot image
}

// Instr is one IL instruction. Only the fields relevant to Op are
// meaningful; this mirrors vm/ssa.go's single tagged ssaop/value
// struct rather than a family of per-instruction Go types.
type Instr struct {
	Op Op

	// OpConst
	Const Const

	// OpScopeStart, OpScopeEnd, OpGetScopeValue, OpReadHeapValue, OpWriteHeapValue
	ValType ValType

	// OpGetScopeValue, OpBreak, OpConditionalBreak, OpBreakOnSignal: block/scope nesting depth
	Depth int

	// OpBlock, OpIf
	Sig  Signature
	Then Block
	Else Block // OpIf only

	// OpCallRuntimeBuiltin, OpCallStdlib, OpCallCompiledFunction
	Func string
	Sig2 Signature // declared call signature, used by the type-checker
}

// Block is a straight-line sequence of instructions, the unit Block/If
// nest and the unit TypeCheck validates.
type Block struct {
	Instrs []Instr
}

// Const helpers, used by the compiler when lowering atom terms.

func ConstI32(v int32) Instr  { return Instr{Op: OpConst, Const: Const{Type: I32, I32: v}} }
func ConstI64(v int64) Instr  { return Instr{Op: OpConst, Const: Const{Type: I64, I64: v}} }
func ConstF32(v float32) Instr { return Instr{Op: OpConst, Const: Const{Type: F32, F32: v}} }
func ConstF64(v float64) Instr { return Instr{Op: OpConst, Const: Const{Type: F64, F64: v}} }
func ConstPtr(v uint32) Instr  { return Instr{Op: OpConst, Const: Const{Type: HeapPtr, Ptr: v}} }
