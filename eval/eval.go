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

	"github.com/reflexcore/reflexcore/arena"
	"github.com/reflexcore/reflexcore/term"
)

// Logf receives diagnostic messages from this package, following the
// nil-by-default hook convention used throughout (see arena.Logf).
var Logf func(format string, args ...any)

func logf(f string, args ...any) {
	if Logf != nil {
		Logf(f, args...)
	}
}

// Evaluator holds the immutable pieces an evaluation needs: the
// factory that owns the arena terms are built in, and the state store
// that resolves effect conditions. It carries no per-call mutable
// state, so one Evaluator can service concurrent Eval calls against
// independent scope stacks.
type Evaluator struct {
	Factory *term.Factory
	State   State
}

// New constructs an Evaluator over f, resolving effects against state.
func New(f *term.Factory, state State) *Evaluator {
	if state == nil {
		state = EmptyState
	}
	return &Evaluator{Factory: f, State: state}
}

// scope is innermost-first: scope[0] is the most recently bound value.
type scope []arena.Pointer

// Eval reduces t against an empty lexical scope, implementing the
// reference evaluation semantics of this package. It is used both as
// the oracle compared against compiled/WASM execution, and as the
// non-compiled evaluation path.
//
// Simplification versus the full compiled pipeline: Lazy- and
// Eager-tagged argument positions are both evaluated immediately
// here (only Strict triggers signal short-circuiting). This is value-
// equivalent to true laziness for closed, effect-free terms — deferring
// evaluation changes *when* a pure subterm is reduced, never *what* it
// reduces to. True laziness (thunk suspension, re-forced at most once)
// is a property of the compiled IL path (il.DeclareVariable / the
// compiler's lazy_* options), not of this reference oracle.
func (e *Evaluator) Eval(t arena.Pointer) (arena.Pointer, Deps) {
	return e.eval(t, nil)
}

func (e *Evaluator) eval(t arena.Pointer, sc scope) (arena.Pointer, Deps) {
	a := e.Factory.Arena
	k := term.KindOf(a, t)

	if k.IsAtomic() {
		return t, nil
	}

	switch k {
	case term.KindVariable:
		idx := int(term.VariableSymbol(a, t))
		if idx < 0 || idx >= len(sc) {
			return e.signal(term.ConditionInvalidPointer, arena.Null, arena.Null, "unbound variable"), nil
		}
		return sc[idx], nil

	case term.KindLambda, term.KindBuiltin, term.KindPartial, term.KindConstructor:
		// Function values reduce to themselves.
		return t, nil

	case term.KindLet:
		initVal, d1 := e.eval(term.LetInit(a, t), sc)
		if term.KindOf(a, initVal) == term.KindSignal {
			return initVal, d1
		}
		bodyVal, d2 := e.eval(term.LetBody(a, t), append(scope{initVal}, sc...))
		return bodyVal, d1.Union(d2)

	case term.KindRecursive:
		inner := term.RecursiveInner(a, t)
		args := e.Factory.CreateList([]arena.Pointer{t})
		return e.eval(e.Factory.CreateApplication(inner, args), sc)

	case term.KindApplication:
		return e.evalApplication(t, sc)

	case term.KindLazyResult:
		if cached, ok := term.LazyResultCache(a, t); ok {
			return cached, nil
		}
		v, d := e.eval(term.LazyResultTerm(a, t), sc)
		if term.KindOf(a, v) != term.KindSignal {
			term.SetLazyResultCache(a, t, v)
		}
		return v, d

	case term.KindEffect:
		return e.evalEffect(t)

	case term.KindSignal, term.KindCondition, term.KindTree:
		return t, nil

	default:
		logf("eval: unhandled term kind %s, returning as-is", k)
		return t, nil
	}
}

func (e *Evaluator) evalEffect(t arena.Pointer) (arena.Pointer, Deps) {
	a := e.Factory.Arena
	condition := term.EffectPayload(a, t)
	h := term.Hash(a, condition)
	d := NewDeps().Add(a, condition)
	if v, ok := e.State.Lookup(h); ok {
		return v, d
	}
	return e.signal(term.ConditionPending, arena.Null, arena.Null, ""), d
}

func (e *Evaluator) evalApplication(t arena.Pointer, sc scope) (arena.Pointer, Deps) {
	a := e.Factory.Arena
	target, dTarget := e.eval(term.ApplicationFunc(a, t), sc)
	if term.KindOf(a, target) == term.KindSignal {
		return target, dTarget
	}

	argPtrs := term.ListItems(a, term.ApplicationArgs(a, t))

	switch term.KindOf(a, target) {
	case term.KindBuiltin:
		return e.evalBuiltinCall(target, argPtrs, sc, dTarget)
	case term.KindLambda:
		return e.evalLambdaCall(target, argPtrs, sc, dTarget)
	default:
		return e.signal(term.ConditionInvalidFunctionTarget, target, arena.Null, ""), dTarget
	}
}

func (e *Evaluator) evalLambdaCall(lambda arena.Pointer, argPtrs []arena.Pointer, sc scope, deps Deps) (arena.Pointer, Deps) {
	a := e.Factory.Arena
	argTypes := term.LambdaArgTypes(a, lambda)
	if len(argPtrs) != len(argTypes) {
		return e.signal(term.ConditionInvalidFunctionArgs, lambda, arena.Null, ""), deps
	}

	argValues := make([]arena.Pointer, len(argPtrs))
	for i, ap := range argPtrs {
		v, d := e.eval(ap, sc)
		deps = deps.Union(d)
		if argTypes[i] == term.ArgStrict && term.KindOf(a, v) == term.KindSignal {
			return v, deps
		}
		argValues[i] = v
	}

	// Variable(0) is the innermost binding, i.e. the last parameter;
	// see the scope convention documented on the `scope` type.
	callScope := make(scope, len(argValues))
	for i, v := range argValues {
		callScope[len(argValues)-1-i] = v
	}
	callScope = append(callScope, sc...)

	bodyVal, bodyDeps := e.eval(term.LambdaBody(a, lambda), callScope)
	return bodyVal, deps.Union(bodyDeps)
}

func (e *Evaluator) evalBuiltinCall(builtin arena.Pointer, argPtrs []arena.Pointer, sc scope, deps Deps) (arena.Pointer, Deps) {
	a := e.Factory.Arena
	id := term.BuiltinID(a, builtin)

	// Control-flow forms evaluate a subset of their arguments.
	switch id {
	case BuiltinIf:
		return e.evalIf(argPtrs, sc, deps)
	case BuiltinAnd:
		return e.evalAnd(argPtrs, sc, deps)
	case BuiltinOr:
		return e.evalOr(argPtrs, sc, deps)
	case BuiltinIfError:
		return e.evalIfCondition(argPtrs, sc, deps, term.ConditionError)
	case BuiltinIfPending:
		return e.evalIfCondition(argPtrs, sc, deps, term.ConditionPending)
	case BuiltinCollectList:
		return e.evalCollectList(argPtrs, sc, deps)
	}

	spec, ok := LookupBuiltinSpec(id)
	if !ok || len(argPtrs) != spec.Arity {
		return e.signal(term.ConditionInvalidFunctionArgs, builtin, arena.Null, ""), deps
	}

	argValues := make([]arena.Pointer, len(argPtrs))
	for i, ap := range argPtrs {
		v, d := e.eval(ap, sc)
		deps = deps.Union(d)
		if spec.ArgTypes[i] == term.ArgStrict && term.KindOf(a, v) == term.KindSignal {
			return v, deps
		}
		argValues[i] = v
	}

	result := e.applyBuiltin(id, argValues)
	return result, deps
}

func (e *Evaluator) evalIf(argPtrs []arena.Pointer, sc scope, deps Deps) (arena.Pointer, Deps) {
	if len(argPtrs) != 3 {
		return e.signal(term.ConditionInvalidFunctionArgs, arena.Null, arena.Null, "If takes 3 arguments"), deps
	}
	a := e.Factory.Arena
	predVal, d := e.eval(argPtrs[0], sc)
	deps = deps.Union(d)
	if term.KindOf(a, predVal) == term.KindSignal {
		return predVal, deps
	}
	if term.KindOf(a, predVal) != term.KindBoolean {
		return e.signal(term.ConditionTypeError, predVal, arena.Null, "If predicate must be Boolean"), deps
	}
	branch := argPtrs[2]
	if term.BooleanValue(a, predVal) {
		branch = argPtrs[1]
	}
	v, d2 := e.eval(branch, sc)
	return v, deps.Union(d2)
}

func (e *Evaluator) evalAnd(argPtrs []arena.Pointer, sc scope, deps Deps) (arena.Pointer, Deps) {
	return e.evalShortCircuitBoolean(argPtrs, sc, deps, false)
}

func (e *Evaluator) evalOr(argPtrs []arena.Pointer, sc scope, deps Deps) (arena.Pointer, Deps) {
	return e.evalShortCircuitBoolean(argPtrs, sc, deps, true)
}

// evalShortCircuitBoolean implements And/Or: a is evaluated strictly;
// b is evaluated only if a's truth value doesn't already decide the
// result (stopOn = false for And, true for Or).
func (e *Evaluator) evalShortCircuitBoolean(argPtrs []arena.Pointer, sc scope, deps Deps, stopOn bool) (arena.Pointer, Deps) {
	if len(argPtrs) != 2 {
		return e.signal(term.ConditionInvalidFunctionArgs, arena.Null, arena.Null, "And/Or take 2 arguments"), deps
	}
	a := e.Factory.Arena
	av, d := e.eval(argPtrs[0], sc)
	deps = deps.Union(d)
	if term.KindOf(a, av) == term.KindSignal {
		return av, deps
	}
	if term.KindOf(a, av) != term.KindBoolean {
		return e.signal(term.ConditionTypeError, av, arena.Null, "And/Or operands must be Boolean"), deps
	}
	if term.BooleanValue(a, av) == stopOn {
		return av, deps
	}
	bv, d2 := e.eval(argPtrs[1], sc)
	return bv, deps.Union(d2)
}

// evalIfCondition implements IfError/IfPending: evaluate expr eagerly
// (tolerating a Signal); if its condition set contains a condition of
// kind, evaluate and return the fallback, else return expr's value.
func (e *Evaluator) evalIfCondition(argPtrs []arena.Pointer, sc scope, deps Deps, kind term.ConditionKind) (arena.Pointer, Deps) {
	if len(argPtrs) != 2 {
		return e.signal(term.ConditionInvalidFunctionArgs, arena.Null, arena.Null, ""), deps
	}
	a := e.Factory.Arena
	v, d := e.eval(argPtrs[0], sc)
	deps = deps.Union(d)
	if term.KindOf(a, v) == term.KindSignal && signalHasConditionKind(a, v, kind) {
		fv, d2 := e.eval(argPtrs[1], sc)
		return fv, deps.Union(d2)
	}
	return v, deps
}

// evalCollectList forces a List of (possibly effectful) item terms
// element-by-element, unioning each item's dependencies. A signal in
// any item propagates, superseding the CollectList result (Strict
// per-item semantics).
func (e *Evaluator) evalCollectList(argPtrs []arena.Pointer, sc scope, deps Deps) (arena.Pointer, Deps) {
	if len(argPtrs) != 1 {
		return e.signal(term.ConditionInvalidFunctionArgs, arena.Null, arena.Null, "CollectList takes 1 argument"), deps
	}
	a := e.Factory.Arena
	listArg, d := e.eval(argPtrs[0], sc)
	deps = deps.Union(d)
	if term.KindOf(a, listArg) == term.KindSignal {
		return listArg, deps
	}
	if term.KindOf(a, listArg) != term.KindList {
		return e.signal(term.ConditionTypeError, listArg, arena.Null, "CollectList requires a List"), deps
	}
	items := term.ListItems(a, listArg)
	resolved := make([]arena.Pointer, len(items))
	for i, it := range items {
		v, d := e.eval(it, sc)
		deps = deps.Union(d)
		if term.KindOf(a, v) == term.KindSignal {
			return v, deps
		}
		resolved[i] = v
	}
	return e.Factory.CreateList(resolved), deps
}

func signalHasConditionKind(a *arena.Arena, signal arena.Pointer, kind term.ConditionKind) bool {
	tree := term.SignalCondition(a, signal)
	return treeContainsKind(a, tree, kind)
}

func treeContainsKind(a *arena.Arena, tree arena.Pointer, kind term.ConditionKind) bool {
	if !tree.Valid() {
		return false
	}
	if term.KindOf(a, tree) == term.KindCondition {
		return term.ConditionVariant(a, tree) == kind
	}
	if term.KindOf(a, tree) != term.KindTree {
		return false
	}
	if term.ConditionVariant(a, term.TreeValue(a, tree)) == kind {
		return true
	}
	return treeContainsKind(a, term.TreeLeft(a, tree), kind) || treeContainsKind(a, term.TreeRight(a, tree), kind)
}

// signal constructs a Condition of the given kind wrapped in a Signal
// whose dependency tree is just that one condition.
func (e *Evaluator) signal(kind term.ConditionKind, ptrA, ptrB arena.Pointer, message string) arena.Pointer {
	c := e.Factory.CreateCondition(kind, ptrA, ptrB, message)
	return e.Factory.CreateSignal(c)
}

// applyBuiltin dispatches the uniformly-argument-typed builtins once
// their (possibly signal-tolerant) argument values are in hand.
func (e *Evaluator) applyBuiltin(id uint32, args []arena.Pointer) arena.Pointer {
	a := e.Factory.Arena
	switch id {
	case BuiltinAdd:
		return e.numericBinop(args[0], args[1], func(x, y int32) int32 { return x + y }, func(x, y float64) float64 { return x + y })
	case BuiltinSub:
		return e.numericBinop(args[0], args[1], func(x, y int32) int32 { return x - y }, func(x, y float64) float64 { return x - y })
	case BuiltinMul:
		return e.numericBinop(args[0], args[1], func(x, y int32) int32 { return x * y }, func(x, y float64) float64 { return x * y })
	case BuiltinDiv:
		return e.divide(args[0], args[1])
	case BuiltinEq:
		return e.factoryBool(valuesEq(a, args[0], args[1]))
	case BuiltinEqual:
		return e.factoryBool(term.Hash(a, args[0]) == term.Hash(a, args[1]))
	case BuiltinGet:
		return e.get(args[0], args[1])
	case BuiltinErrorLit:
		msg := ""
		if term.KindOf(a, args[0]) == term.KindString {
			msg = term.StringValue(a, args[0])
		}
		return e.signal(term.ConditionError, arena.Null, arena.Null, msg)
	case BuiltinResolveDeep, BuiltinCollect:
		return args[0]
	default:
		return e.signal(term.ConditionInvalidFunctionTarget, arena.Null, arena.Null, "unknown builtin")
	}
}

func (e *Evaluator) factoryBool(v bool) arena.Pointer {
	return e.Factory.CreateBoolean(v)
}

func (e *Evaluator) get(container, key arena.Pointer) arena.Pointer {
	a := e.Factory.Arena
	switch term.KindOf(a, container) {
	case term.KindHashmap:
		v, ok := term.HashmapGet(a, container, key)
		if !ok {
			return e.signal(term.ConditionTypeError, key, arena.Null, "key not found")
		}
		return v
	case term.KindRecord:
		keys := term.ListItems(a, term.RecordKeys(a, container))
		values := term.ListItems(a, term.RecordValues(a, container))
		keyHash := term.Hash(a, key)
		for i, k := range keys {
			if term.Hash(a, k) == keyHash {
				return values[i]
			}
		}
		return e.signal(term.ConditionTypeError, key, arena.Null, "key not found")
	default:
		return e.signal(term.ConditionTypeError, container, arena.Null, "Get requires a Record or Hashmap")
	}
}

// valuesEq implements Eq's rule that NaN compares unequal to itself,
// unlike Equal's hash-based structural comparison.
func valuesEq(a *arena.Arena, x, y arena.Pointer) bool {
	kx, ky := term.KindOf(a, x), term.KindOf(a, y)
	if kx == term.KindFloat || ky == term.KindFloat {
		fx, okx := asFloat(a, x)
		fy, oky := asFloat(a, y)
		if okx && oky {
			return fx == fy // NaN == NaN is false here, matching IEEE-754
		}
	}
	return term.Hash(a, x) == term.Hash(a, y)
}

func asFloat(a *arena.Arena, p arena.Pointer) (float64, bool) {
	switch term.KindOf(a, p) {
	case term.KindFloat:
		return term.FloatValue(a, p), true
	case term.KindInt:
		return float64(term.IntValue(a, p)), true
	default:
		return 0, false
	}
}

// numericBinop implements int→float promotion: if either operand is a
// Float, both are widened and floatOp runs; otherwise intOp runs
// directly on i32 values. int→float promotion is value-preserving.
func (e *Evaluator) numericBinop(x, y arena.Pointer, intOp func(int32, int32) int32, floatOp func(float64, float64) float64) arena.Pointer {
	a := e.Factory.Arena
	kx, ky := term.KindOf(a, x), term.KindOf(a, y)
	if kx == term.KindFloat || ky == term.KindFloat {
		fx, okx := asFloat(a, x)
		fy, oky := asFloat(a, y)
		if !okx || !oky {
			return e.signal(term.ConditionTypeError, x, y, "numeric operator requires Int or Float")
		}
		return e.Factory.CreateFloat(floatOp(fx, fy))
	}
	if kx != term.KindInt || ky != term.KindInt {
		return e.signal(term.ConditionTypeError, x, y, "numeric operator requires Int or Float")
	}
	return e.Factory.CreateInt(intOp(term.IntValue(a, x), term.IntValue(a, y)))
}

func (e *Evaluator) divide(x, y arena.Pointer) arena.Pointer {
	a := e.Factory.Arena
	if term.KindOf(a, x) == term.KindInt && term.KindOf(a, y) == term.KindInt {
		yv := term.IntValue(a, y)
		if yv == 0 {
			return e.signal(term.ConditionError, x, y, "division by zero")
		}
		return e.Factory.CreateInt(term.IntValue(a, x) / yv)
	}
	fx, okx := asFloat(a, x)
	fy, oky := asFloat(a, y)
	if !okx || !oky {
		return e.signal(term.ConditionTypeError, x, y, "Div requires Int or Float")
	}
	if fy == 0 {
		return e.Factory.CreateFloat(math.NaN())
	}
	return e.Factory.CreateFloat(fx / fy)
}
