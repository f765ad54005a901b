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

package term

import "github.com/reflexcore/reflexcore/arena"

// --- Variable: an unresolved lexical reference, by symbol id ---

func (f *Factory) CreateVariable(symbol uint32) arena.Pointer {
	h := newHasher(KindVariable)
	h.writeU32(symbol)
	return f.intern(KindVariable, h.sum(), func() arena.Pointer {
		p := f.Arena.Allocate(HeaderSize + 4)
		f.Arena.WriteU32(body(p, 0), symbol)
		return p
	})
}

func VariableSymbol(a *arena.Arena, p arena.Pointer) uint32 {
	return a.ReadU32(body(p, 0))
}

func variableSize(a *arena.Arena, p arena.Pointer) int {
	return HeaderSize + 4
}

// --- Lambda: params + body + per-param eagerness + optional closure env ---

func (f *Factory) CreateLambda(params arena.Pointer, bodyPtr arena.Pointer, argTypes []ArgType, env arena.Pointer) arena.Pointer {
	h := newHasher(KindLambda)
	h.writePointer(f.Arena, params)
	h.writePointer(f.Arena, bodyPtr)
	h.writePointer(f.Arena, env)
	h.writeU32(uint32(len(argTypes)))
	for _, t := range argTypes {
		h.writeByte(byte(t))
	}
	return f.intern(KindLambda, h.sum(), func() arena.Pointer {
		p := f.Arena.Allocate(HeaderSize + 16 + len(argTypes))
		f.Arena.WriteU32(body(p, 0), uint32(params))
		f.Arena.WriteU32(body(p, 4), uint32(bodyPtr))
		f.Arena.WriteU32(body(p, 8), uint32(env))
		f.Arena.WriteU32(body(p, 12), uint32(len(argTypes)))
		for i, t := range argTypes {
			f.Arena.WriteBytes(body(p, 16+i), []byte{byte(t)})
		}
		return p
	})
}

func LambdaParams(a *arena.Arena, p arena.Pointer) arena.Pointer {
	return arena.Pointer(a.ReadU32(body(p, 0)))
}

func LambdaBody(a *arena.Arena, p arena.Pointer) arena.Pointer {
	return arena.Pointer(a.ReadU32(body(p, 4)))
}

func LambdaEnv(a *arena.Arena, p arena.Pointer) arena.Pointer {
	return arena.Pointer(a.ReadU32(body(p, 8)))
}

func LambdaArgTypes(a *arena.Arena, p arena.Pointer) []ArgType {
	n := int(a.ReadU32(body(p, 12)))
	raw := a.ReadBytes(body(p, 16), n)
	out := make([]ArgType, n)
	for i, b := range raw {
		out[i] = ArgType(b)
	}
	return out
}

func lambdaSize(a *arena.Arena, p arena.Pointer) int {
	n := int(a.ReadU32(body(p, 12)))
	return HeaderSize + 16 + n
}

func lambdaPointerIter(a *arena.Arena, p arena.Pointer, yield func(arena.Pointer) bool) {
	if !yield(LambdaParams(a, p)) {
		return
	}
	if !yield(LambdaBody(a, p)) {
		return
	}
	if env := LambdaEnv(a, p); env.Valid() {
		yield(env)
	}
}

// --- Let: single binding, symbol + init + body ---

func (f *Factory) CreateLet(symbol uint32, init, bodyPtr arena.Pointer) arena.Pointer {
	h := newHasher(KindLet)
	h.writeU32(symbol)
	h.writePointer(f.Arena, init)
	h.writePointer(f.Arena, bodyPtr)
	return f.intern(KindLet, h.sum(), func() arena.Pointer {
		p := f.Arena.Allocate(HeaderSize + 12)
		f.Arena.WriteU32(body(p, 0), symbol)
		f.Arena.WriteU32(body(p, 4), uint32(init))
		f.Arena.WriteU32(body(p, 8), uint32(bodyPtr))
		return p
	})
}

func LetSymbol(a *arena.Arena, p arena.Pointer) uint32 {
	return a.ReadU32(body(p, 0))
}

func LetInit(a *arena.Arena, p arena.Pointer) arena.Pointer {
	return arena.Pointer(a.ReadU32(body(p, 4)))
}

func LetBody(a *arena.Arena, p arena.Pointer) arena.Pointer {
	return arena.Pointer(a.ReadU32(body(p, 8)))
}

// --- Application: func term applied to a List of argument terms ---

func (f *Factory) CreateApplication(fn, args arena.Pointer) arena.Pointer {
	h := newHasher(KindApplication)
	h.writePointer(f.Arena, fn)
	h.writePointer(f.Arena, args)
	return f.intern(KindApplication, h.sum(), func() arena.Pointer {
		p := f.Arena.Allocate(HeaderSize + 8)
		f.Arena.WriteU32(body(p, 0), uint32(fn))
		f.Arena.WriteU32(body(p, 4), uint32(args))
		return p
	})
}

func ApplicationFunc(a *arena.Arena, p arena.Pointer) arena.Pointer {
	return arena.Pointer(a.ReadU32(body(p, 0)))
}

func ApplicationArgs(a *arena.Arena, p arena.Pointer) arena.Pointer {
	return arena.Pointer(a.ReadU32(body(p, 4)))
}

func applicationSize(a *arena.Arena, p arena.Pointer) int {
	return HeaderSize + 8
}

func applicationPointerIter(a *arena.Arena, p arena.Pointer, yield func(arena.Pointer) bool) {
	if !yield(ApplicationFunc(a, p)) {
		return
	}
	yield(ApplicationArgs(a, p))
}

// --- Partial: a function value with some arguments already bound ---

func (f *Factory) CreatePartial(fn, suppliedArgs arena.Pointer, remainingArity uint32) arena.Pointer {
	h := newHasher(KindPartial)
	h.writePointer(f.Arena, fn)
	h.writePointer(f.Arena, suppliedArgs)
	h.writeU32(remainingArity)
	return f.intern(KindPartial, h.sum(), func() arena.Pointer {
		p := f.Arena.Allocate(HeaderSize + 12)
		f.Arena.WriteU32(body(p, 0), uint32(fn))
		f.Arena.WriteU32(body(p, 4), uint32(suppliedArgs))
		f.Arena.WriteU32(body(p, 8), remainingArity)
		return p
	})
}

func PartialFunc(a *arena.Arena, p arena.Pointer) arena.Pointer {
	return arena.Pointer(a.ReadU32(body(p, 0)))
}

func PartialSuppliedArgs(a *arena.Arena, p arena.Pointer) arena.Pointer {
	return arena.Pointer(a.ReadU32(body(p, 4)))
}

func PartialRemainingArity(a *arena.Arena, p arena.Pointer) uint32 {
	return a.ReadU32(body(p, 8))
}

func partialSize(a *arena.Arena, p arena.Pointer) int {
	return HeaderSize + 12
}

func partialPointerIter(a *arena.Arena, p arena.Pointer, yield func(arena.Pointer) bool) {
	if !yield(PartialFunc(a, p)) {
		return
	}
	yield(PartialSuppliedArgs(a, p))
}

// --- Builtin: an opaque reference to a stdlib function by id ---

func (f *Factory) CreateBuiltin(id uint32, arity uint32) arena.Pointer {
	h := newHasher(KindBuiltin)
	h.writeU32(id)
	h.writeU32(arity)
	return f.intern(KindBuiltin, h.sum(), func() arena.Pointer {
		p := f.Arena.Allocate(HeaderSize + 8)
		f.Arena.WriteU32(body(p, 0), id)
		f.Arena.WriteU32(body(p, 4), arity)
		return p
	})
}

func BuiltinID(a *arena.Arena, p arena.Pointer) uint32 {
	return a.ReadU32(body(p, 0))
}

func BuiltinArity(a *arena.Arena, p arena.Pointer) uint32 {
	return a.ReadU32(body(p, 4))
}

func builtinSize(a *arena.Arena, p arena.Pointer) int {
	return HeaderSize + 8
}

// --- Constructor: a tagged-union constructor function, optionally partially applied ---

func (f *Factory) CreateConstructor(name, args arena.Pointer, arity uint32) arena.Pointer {
	h := newHasher(KindConstructor)
	h.writePointer(f.Arena, name)
	h.writePointer(f.Arena, args)
	h.writeU32(arity)
	return f.intern(KindConstructor, h.sum(), func() arena.Pointer {
		p := f.Arena.Allocate(HeaderSize + 12)
		f.Arena.WriteU32(body(p, 0), uint32(name))
		f.Arena.WriteU32(body(p, 4), uint32(args))
		f.Arena.WriteU32(body(p, 8), arity)
		return p
	})
}

func ConstructorName(a *arena.Arena, p arena.Pointer) arena.Pointer {
	return arena.Pointer(a.ReadU32(body(p, 0)))
}

func ConstructorArgs(a *arena.Arena, p arena.Pointer) arena.Pointer {
	return arena.Pointer(a.ReadU32(body(p, 4)))
}

func ConstructorArity(a *arena.Arena, p arena.Pointer) uint32 {
	return a.ReadU32(body(p, 8))
}

func constructorSize(a *arena.Arena, p arena.Pointer) int {
	return HeaderSize + 12
}

func constructorPointerIter(a *arena.Arena, p arena.Pointer, yield func(arena.Pointer) bool) {
	if !yield(ConstructorName(a, p)) {
		return
	}
	if args := ConstructorArgs(a, p); args.Valid() {
		yield(args)
	}
}

// --- Recursive: a self-referential wrapper around a Lambda template ---
//
// Supplemented from original_source: the evaluator resolves the
// self-reference by substituting this Recursive term's own pointer
// wherever the wrapped lambda's body names itself.

func (f *Factory) CreateRecursive(inner arena.Pointer) arena.Pointer {
	h := newHasher(KindRecursive)
	h.writePointer(f.Arena, inner)
	return f.intern(KindRecursive, h.sum(), func() arena.Pointer {
		p := f.Arena.Allocate(HeaderSize + 4)
		f.Arena.WriteU32(body(p, 0), uint32(inner))
		return p
	})
}

func RecursiveInner(a *arena.Arena, p arena.Pointer) arena.Pointer {
	return arena.Pointer(a.ReadU32(body(p, 0)))
}
