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

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reflexcore/reflexcore/arena"
	"github.com/reflexcore/reflexcore/term"
)

func newFactory(t *testing.T) *term.Factory {
	t.Helper()
	return term.NewFactory(arena.New(arena.NewHeapBacking()))
}

// Scenario 1: Application(Add,[Int 3, Int 5]) with no state -> Int 8, no deps.
func TestScenarioAdd(t *testing.T) {
	f := newFactory(t)
	add := f.CreateBuiltin(BuiltinAdd, 2)
	args := f.CreateList([]arena.Pointer{f.CreateInt(3), f.CreateInt(5)})
	expr := f.CreateApplication(add, args)

	v, deps := New(f, nil).Eval(expr)
	require.Equal(t, term.KindInt, term.KindOf(f.Arena, v))
	require.Equal(t, int32(8), term.IntValue(f.Arena, v))
	require.Empty(t, deps)
}

// Scenario 2: a chain of 100 nested Adds accumulates to 5050.
func TestScenarioAddChain(t *testing.T) {
	f := newFactory(t)
	add := f.CreateBuiltin(BuiltinAdd, 2)
	acc := f.CreateInt(0)
	for i := int32(1); i <= 100; i++ {
		args := f.CreateList([]arena.Pointer{acc, f.CreateInt(i)})
		acc = f.CreateApplication(add, args)
	}

	v, deps := New(f, nil).Eval(acc)
	require.Equal(t, int32(5050), term.IntValue(f.Arena, v))
	require.Empty(t, deps)
}

func buildCustomCondition(f *term.Factory, effectType string, payload arena.Pointer) arena.Pointer {
	return f.CreateCondition(term.ConditionCustom, payload, arena.Null, effectType)
}

// Scenario 3: If(Effect(c), Int 1, Int 2) against empty state yields a
// Pending signal with deps {c}.
func TestScenarioIfEffectPending(t *testing.T) {
	f := newFactory(t)
	c := buildCustomCondition(f, "x", f.CreateInt(1))
	effect := f.CreateEffect(0, c, arena.Null)
	ifBuiltin := f.CreateBuiltin(BuiltinIf, 3)
	args := f.CreateList([]arena.Pointer{effect, f.CreateInt(1), f.CreateInt(2)})
	expr := f.CreateApplication(ifBuiltin, args)

	v, deps := New(f, EmptyState).Eval(expr)
	require.Equal(t, term.KindSignal, term.KindOf(f.Arena, v))
	require.Equal(t, term.ConditionPending, term.ConditionVariant(f.Arena, term.SignalCondition(f.Arena, v)))
	require.Len(t, deps, 1)
	require.Contains(t, deps, term.Hash(f.Arena, c))
}

// Scenario 4: same expression, but state resolves c to true -> Int 1.
func TestScenarioIfEffectResolved(t *testing.T) {
	f := newFactory(t)
	c := buildCustomCondition(f, "x", f.CreateInt(1))
	effect := f.CreateEffect(0, c, arena.Null)
	ifBuiltin := f.CreateBuiltin(BuiltinIf, 3)
	args := f.CreateList([]arena.Pointer{effect, f.CreateInt(1), f.CreateInt(2)})
	expr := f.CreateApplication(ifBuiltin, args)

	state := MapState{term.Hash(f.Arena, c): f.CreateBoolean(true)}
	v, deps := New(f, state).Eval(expr)
	require.Equal(t, term.KindInt, term.KindOf(f.Arena, v))
	require.Equal(t, int32(1), term.IntValue(f.Arena, v))
	require.Len(t, deps, 1)
}

// Scenario 5: CollectList([Effect a, Effect b]) with both resolved in
// state yields List[Int 1, Int 2] and deps {a,b}.
func TestScenarioCollectList(t *testing.T) {
	f := newFactory(t)
	ca := buildCustomCondition(f, "a", arena.Null)
	cb := buildCustomCondition(f, "b", arena.Null)
	ea := f.CreateEffect(0, ca, arena.Null)
	eb := f.CreateEffect(0, cb, arena.Null)
	collect := f.CreateBuiltin(BuiltinCollectList, 1)
	list := f.CreateList([]arena.Pointer{ea, eb})
	expr := f.CreateApplication(collect, f.CreateList([]arena.Pointer{list}))

	state := MapState{
		term.Hash(f.Arena, ca): f.CreateInt(1),
		term.Hash(f.Arena, cb): f.CreateInt(2),
	}
	v, deps := New(f, state).Eval(expr)
	require.Equal(t, term.KindList, term.KindOf(f.Arena, v))
	items := term.ListItems(f.Arena, v)
	require.Len(t, items, 2)
	require.Equal(t, int32(1), term.IntValue(f.Arena, items[0]))
	require.Equal(t, int32(2), term.IntValue(f.Arena, items[1]))
	require.Len(t, deps, 2)
}

// Scenario 6: If(Error "boom", Int 1, Int 2) yields Signal{Error "boom"}
// with no dependencies.
func TestScenarioIfError(t *testing.T) {
	f := newFactory(t)
	errBuiltin := f.CreateBuiltin(BuiltinErrorLit, 1)
	errExpr := f.CreateApplication(errBuiltin, f.CreateList([]arena.Pointer{f.CreateString("boom")}))
	ifBuiltin := f.CreateBuiltin(BuiltinIf, 3)
	args := f.CreateList([]arena.Pointer{errExpr, f.CreateInt(1), f.CreateInt(2)})
	expr := f.CreateApplication(ifBuiltin, args)

	v, deps := New(f, nil).Eval(expr)
	require.Equal(t, term.KindSignal, term.KindOf(f.Arena, v))
	cond := term.SignalCondition(f.Arena, v)
	require.Equal(t, term.ConditionError, term.ConditionVariant(f.Arena, cond))
	require.Equal(t, "boom", term.ConditionMessage(f.Arena, cond))
	require.Empty(t, deps)
}

func TestLambdaApplication(t *testing.T) {
	f := newFactory(t)
	// λx. Add(x, Int 1), applied to Int 41.
	params := f.CreateList([]arena.Pointer{f.CreateSymbol(0)})
	add := f.CreateBuiltin(BuiltinAdd, 2)
	body := f.CreateApplication(add, f.CreateList([]arena.Pointer{f.CreateVariable(0), f.CreateInt(1)}))
	lambda := f.CreateLambda(params, body, []term.ArgType{term.ArgStrict}, arena.Null)
	expr := f.CreateApplication(lambda, f.CreateList([]arena.Pointer{f.CreateInt(41)}))

	v, _ := New(f, nil).Eval(expr)
	require.Equal(t, int32(42), term.IntValue(f.Arena, v))
}

func TestLetBinding(t *testing.T) {
	f := newFactory(t)
	add := f.CreateBuiltin(BuiltinAdd, 2)
	body := f.CreateApplication(add, f.CreateList([]arena.Pointer{f.CreateVariable(0), f.CreateInt(1)}))
	letExpr := f.CreateLet(0, f.CreateInt(9), body)

	v, _ := New(f, nil).Eval(letExpr)
	require.Equal(t, int32(10), term.IntValue(f.Arena, v))
}

func TestDivisionByZeroSignalsError(t *testing.T) {
	f := newFactory(t)
	div := f.CreateBuiltin(BuiltinDiv, 2)
	expr := f.CreateApplication(div, f.CreateList([]arena.Pointer{f.CreateInt(1), f.CreateInt(0)}))

	v, _ := New(f, nil).Eval(expr)
	require.Equal(t, term.KindSignal, term.KindOf(f.Arena, v))
	require.Equal(t, term.ConditionError, term.ConditionVariant(f.Arena, term.SignalCondition(f.Arena, v)))
}

func TestEqNaN(t *testing.T) {
	f := newFactory(t)
	nanPtr := f.CreateFloat(math.NaN())
	eq := f.CreateBuiltin(BuiltinEq, 2)
	expr := f.CreateApplication(eq, f.CreateList([]arena.Pointer{nanPtr, nanPtr}))

	v, _ := New(f, nil).Eval(expr)
	require.False(t, term.BooleanValue(f.Arena, v))
}
