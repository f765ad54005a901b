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

package eval

import "github.com/reflexcore/reflexcore/term"

// Builtin stdlib ids (term.Builtin's payload). The
// control-flow forms (If, And, Or) are special-cased by the
// interpreter and the compiler because they evaluate a subset of
// their arguments depending on earlier results; every other builtin
// follows the uniform per-position ArgType dispatch declared here.
const (
	BuiltinAdd uint32 = iota
	BuiltinSub
	BuiltinMul
	BuiltinDiv
	BuiltinEq
	BuiltinEqual
	BuiltinIf
	BuiltinAnd
	BuiltinOr
	BuiltinGet
	BuiltinCollectList
	BuiltinIfError
	BuiltinIfPending
	BuiltinErrorLit
	BuiltinResolveDeep
	BuiltinCollect
)

// BuiltinSpec declares a builtin's arity and per-position eagerness:
// each arg position is declared Strict, Eager, or Lazy. Control-flow
// forms are omitted since the interpreter and compiler branch on their
// id directly rather than looking up a uniform ArgType list.
type BuiltinSpec struct {
	Name     string
	Arity    int
	ArgTypes []term.ArgType
}

var builtinSpecs = map[uint32]BuiltinSpec{
	BuiltinAdd:         {"Add", 2, []term.ArgType{term.ArgStrict, term.ArgStrict}},
	BuiltinSub:         {"Sub", 2, []term.ArgType{term.ArgStrict, term.ArgStrict}},
	BuiltinMul:         {"Mul", 2, []term.ArgType{term.ArgStrict, term.ArgStrict}},
	BuiltinDiv:         {"Div", 2, []term.ArgType{term.ArgStrict, term.ArgStrict}},
	BuiltinEq:          {"Eq", 2, []term.ArgType{term.ArgStrict, term.ArgStrict}},
	BuiltinEqual:       {"Equal", 2, []term.ArgType{term.ArgStrict, term.ArgStrict}},
	BuiltinGet:         {"Get", 2, []term.ArgType{term.ArgStrict, term.ArgStrict}},
	BuiltinIfError:     {"IfError", 2, []term.ArgType{term.ArgEager, term.ArgLazy}},
	BuiltinIfPending:   {"IfPending", 2, []term.ArgType{term.ArgEager, term.ArgLazy}},
	BuiltinErrorLit:    {"Error", 1, []term.ArgType{term.ArgStrict}},
	BuiltinResolveDeep: {"resolve_deep", 1, []term.ArgType{term.ArgStrict}},
	BuiltinCollect:     {"collect", 1, []term.ArgType{term.ArgStrict}},
}

// LookupBuiltinSpec returns the declared arity/eagerness for a builtin
// id, for builtins dispatched uniformly (i.e. everything except
// If/And/Or, which the interpreter and compiler special-case).
func LookupBuiltinSpec(id uint32) (BuiltinSpec, bool) {
	s, ok := builtinSpecs[id]
	return s, ok
}
