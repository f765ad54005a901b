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

// Package il implements the typed stack-machine intermediate language
// the compiler lowers term DAGs into, en route to WASM. Two stacks
// are tracked purely at compile time: the operand stack (WASM-
// equivalent value types) and the lexical-scope stack (single-value
// frames, offset 0 innermost).
package il

// ValType is one of the operand-stack value types: i32, i64, f32,
// f64, or an opaque heap-pointer (itself an i32 at the
// WASM level, but kept distinct here so the type-checker can catch a
// raw integer being used where a term pointer is expected, and vice
// versa).
type ValType uint8

const (
	I32 ValType = iota
	I64
	F32
	F64
	HeapPtr
)

func (t ValType) String() string {
	switch t {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	case HeapPtr:
		return "ptr"
	default:
		return "ValType(?)"
	}
}

// Signature describes a control-flow block's type: it consumes
// len(Params) operand-stack values and produces len(Results).
type Signature struct {
	Params  []ValType
	Results []ValType
}
