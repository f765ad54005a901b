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

import "fmt"

// InvalidFunctionTarget is returned when an Application's func
// position is not a Lambda, Builtin, Partial or Constructor.
type InvalidFunctionTarget struct {
	Kind string
}

func (e *InvalidFunctionTarget) Error() string {
	return fmt.Sprintf("compiler: invalid function target of kind %s", e.Kind)
}

// InvalidFunctionArgs is returned when an Application supplies the
// wrong number of arguments for a statically-known-arity target.
type InvalidFunctionArgs struct {
	Want, Got int
}

func (e *InvalidFunctionArgs) Error() string {
	return fmt.Sprintf("compiler: invalid function arguments: want %d, got %d", e.Want, e.Got)
}

// UnboundVariable is returned by Variable(k) lowering when k does not
// resolve within the current lexical scope stack, including Lambda
// bodies whose free variables were not abstracted by the caller
// before compilation.
type UnboundVariable struct {
	Depth int
}

func (e *UnboundVariable) Error() string {
	return fmt.Sprintf("compiler: unbound variable at scope depth %d", e.Depth)
}
