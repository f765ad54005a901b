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

import "fmt"

// TypedStackError is returned by CompilerStack operations and by
// TypeCheck when an instruction's declared signature does not match
// the stack's actual contents — the compile-time error layer.
type TypedStackError struct {
	Kind     string // InvalidOperandStackValueTypes | InvalidLexicalScopeValueType | InvalidBlockResultType
	Expected []ValType
	Received []ValType
}

func (e *TypedStackError) Error() string {
	return fmt.Sprintf("il: %s: expected %v, received %v", e.Kind, e.Expected, e.Received)
}

func stackErr(kind string, expected, received []ValType) *TypedStackError {
	return &TypedStackError{Kind: kind, Expected: expected, Received: received}
}

// CompilerStack is the statically-typed shadow stack the compiler
// threads through IL lowering: an operand stack and a lexical-scope
// stack, both tracked by value type rather than value. Every IL instruction
// transforms one CompilerStack into another and may fail with a
// TypedStackError if the declared and actual types disagree.
type CompilerStack struct {
	operand []ValType
	scope   []ValType // index 0 is innermost (top of logical scope stack)
}

// NewCompilerStack returns an empty CompilerStack.
func NewCompilerStack() *CompilerStack {
	return &CompilerStack{}
}

// Clone returns an independent copy, used when type-checking a nested
// block against a snapshot of the enclosing stack.
func (s *CompilerStack) Clone() *CompilerStack {
	c := &CompilerStack{
		operand: make([]ValType, len(s.operand)),
		scope:   make([]ValType, len(s.scope)),
	}
	copy(c.operand, s.operand)
	copy(c.scope, s.scope)
	return c
}

// Push pushes a value of type t onto the operand stack.
func (s *CompilerStack) Push(t ValType) { s.operand = append(s.operand, t) }

// Pop pops the top operand-stack value and checks it has type want.
func (s *CompilerStack) Pop(want ValType) error {
	if len(s.operand) == 0 {
		return stackErr("InvalidOperandStackValueTypes", []ValType{want}, nil)
	}
	top := s.operand[len(s.operand)-1]
	if top != want {
		return stackErr("InvalidOperandStackValueTypes", []ValType{want}, []ValType{top})
	}
	s.operand = s.operand[:len(s.operand)-1]
	return nil
}

// PeekTop returns the type of the top operand-stack value without
// popping it, and false if the stack is empty.
func (s *CompilerStack) PeekTop() (ValType, bool) {
	if len(s.operand) == 0 {
		return 0, false
	}
	return s.operand[len(s.operand)-1], true
}

// Operand returns a snapshot of the current operand-stack types,
// bottom to top.
func (s *CompilerStack) Operand() []ValType {
	out := make([]ValType, len(s.operand))
	copy(out, s.operand)
	return out
}

// PushScope prepends a new innermost lexical-scope frame of type t
// (ScopeStart: pushes the top of the operand stack onto the lexical
// stack).
func (s *CompilerStack) PushScope(t ValType) {
	s.scope = append([]ValType{t}, s.scope...)
}

// PopScope removes the innermost lexical-scope frame and checks its
// type matches want (ScopeEnd).
func (s *CompilerStack) PopScope(want ValType) error {
	if len(s.scope) == 0 {
		return stackErr("InvalidLexicalScopeValueType", []ValType{want}, nil)
	}
	top := s.scope[0]
	if top != want {
		return stackErr("InvalidLexicalScopeValueType", []ValType{want}, []ValType{top})
	}
	s.scope = s.scope[1:]
	return nil
}

// ScopeAt returns the type bound at lexical offset off (0 = innermost,
// matching Variable(k)'s GetScopeValue(off) instruction), or an error
// if off is out of range.
func (s *CompilerStack) ScopeAt(off int) (ValType, error) {
	if off < 0 || off >= len(s.scope) {
		return 0, stackErr("InvalidLexicalScopeValueType", nil, nil)
	}
	return s.scope[off], nil
}
