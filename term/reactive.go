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

// ConditionKind enumerates the reasons an evaluation can fail to
// produce a value outright. Custom carries a handler-supplied
// message; the rest are raised directly by the evaluator/compiler.
type ConditionKind uint8

const (
	ConditionCustom ConditionKind = iota
	ConditionPending
	ConditionError
	ConditionTypeError
	ConditionInvalidFunctionTarget
	ConditionInvalidFunctionArgs
	ConditionInvalidPointer
)

func (c ConditionKind) String() string {
	switch c {
	case ConditionCustom:
		return "Custom"
	case ConditionPending:
		return "Pending"
	case ConditionError:
		return "Error"
	case ConditionTypeError:
		return "TypeError"
	case ConditionInvalidFunctionTarget:
		return "InvalidFunctionTarget"
	case ConditionInvalidFunctionArgs:
		return "InvalidFunctionArgs"
	case ConditionInvalidPointer:
		return "InvalidPointer"
	default:
		return "ConditionKind(?)"
	}
}

// --- Condition ---
//
// Body layout: variant byte (+3 pad), ptrA u32, ptrB u32, message
// length u32, inline message bytes. ptrA/ptrB are Null when unused by
// a given variant (e.g. Pending may carry no pointers at all;
// InvalidFunctionArgs carries the function in ptrA and the offending
// argument list in ptrB).

func (f *Factory) CreateCondition(kind ConditionKind, ptrA, ptrB arena.Pointer, message string) arena.Pointer {
	h := newHasher(KindCondition)
	h.writeByte(byte(kind))
	h.writePointer(f.Arena, ptrA)
	h.writePointer(f.Arena, ptrB)
	h.writeU32(uint32(len(message)))
	h.writeBytes([]byte(message))
	return f.intern(KindCondition, h.sum(), func() arena.Pointer {
		p := f.Arena.Allocate(HeaderSize + 16 + len(message))
		f.Arena.WriteBytes(body(p, 0), []byte{byte(kind)})
		f.Arena.WriteU32(body(p, 4), uint32(ptrA))
		f.Arena.WriteU32(body(p, 8), uint32(ptrB))
		f.Arena.WriteU32(body(p, 12), uint32(len(message)))
		f.Arena.WriteBytes(body(p, 16), []byte(message))
		return p
	})
}

func ConditionVariant(a *arena.Arena, p arena.Pointer) ConditionKind {
	return ConditionKind(a.ReadU8(body(p, 0)))
}

func ConditionPtrA(a *arena.Arena, p arena.Pointer) arena.Pointer {
	return arena.Pointer(a.ReadU32(body(p, 4)))
}

func ConditionPtrB(a *arena.Arena, p arena.Pointer) arena.Pointer {
	return arena.Pointer(a.ReadU32(body(p, 8)))
}

func ConditionMessage(a *arena.Arena, p arena.Pointer) string {
	n := a.ReadU32(body(p, 12))
	return string(a.ReadBytes(body(p, 16), int(n)))
}

func conditionSize(a *arena.Arena, p arena.Pointer) int {
	n := a.ReadU32(body(p, 12))
	return HeaderSize + 16 + int(n)
}

func conditionPointerIter(a *arena.Arena, p arena.Pointer, yield func(arena.Pointer) bool) {
	if pa := ConditionPtrA(a, p); pa.Valid() {
		if !yield(pa) {
			return
		}
	}
	if pb := ConditionPtrB(a, p); pb.Valid() {
		yield(pb)
	}
}

// --- Signal: wraps a Condition, making an enclosing Strict term itself a Signal ---

func (f *Factory) CreateSignal(condition arena.Pointer) arena.Pointer {
	h := newHasher(KindSignal)
	h.writePointer(f.Arena, condition)
	return f.intern(KindSignal, h.sum(), func() arena.Pointer {
		p := f.Arena.Allocate(HeaderSize + 4)
		f.Arena.WriteU32(body(p, 0), uint32(condition))
		return p
	})
}

func SignalCondition(a *arena.Arena, p arena.Pointer) arena.Pointer {
	return arena.Pointer(a.ReadU32(body(p, 0)))
}

// --- Effect: a request to an external effect.Handler ---
//
// Body layout: handler-name symbol id, payload term pointer,
// subscription-args List pointer (Null for a one-shot, non-subscribed
// effect).

func (f *Factory) CreateEffect(handlerSymbol uint32, payload, subscribeArgs arena.Pointer) arena.Pointer {
	h := newHasher(KindEffect)
	h.writeU32(handlerSymbol)
	h.writePointer(f.Arena, payload)
	h.writePointer(f.Arena, subscribeArgs)
	return f.intern(KindEffect, h.sum(), func() arena.Pointer {
		p := f.Arena.Allocate(HeaderSize + 12)
		f.Arena.WriteU32(body(p, 0), handlerSymbol)
		f.Arena.WriteU32(body(p, 4), uint32(payload))
		f.Arena.WriteU32(body(p, 8), uint32(subscribeArgs))
		return p
	})
}

func EffectHandlerSymbol(a *arena.Arena, p arena.Pointer) uint32 {
	return a.ReadU32(body(p, 0))
}

func EffectPayload(a *arena.Arena, p arena.Pointer) arena.Pointer {
	return arena.Pointer(a.ReadU32(body(p, 4)))
}

func EffectSubscribeArgs(a *arena.Arena, p arena.Pointer) arena.Pointer {
	return arena.Pointer(a.ReadU32(body(p, 8)))
}

func effectSize(a *arena.Arena, p arena.Pointer) int {
	return HeaderSize + 12
}

func effectPointerIter(a *arena.Arena, p arena.Pointer, yield func(arena.Pointer) bool) {
	if !yield(EffectPayload(a, p)) {
		return
	}
	if args := EffectSubscribeArgs(a, p); args.Valid() {
		yield(args)
	}
}

// --- LazyResult: a term plus its memoized evaluation result ---
//
// Body layout: wrapped term pointer, cache pointer (Null until the
// first evaluate_term call resolves it to a concrete value).

func (f *Factory) CreateLazyResult(inner arena.Pointer) arena.Pointer {
	h := newHasher(KindLazyResult)
	h.writePointer(f.Arena, inner)
	h.writeU64(0) // cache starts empty; not folded into identity beyond inner
	return f.intern(KindLazyResult, h.sum(), func() arena.Pointer {
		p := f.Arena.Allocate(HeaderSize + 8)
		f.Arena.WriteU32(body(p, 0), uint32(inner))
		f.Arena.WriteU32(body(p, 4), uint32(arena.Null))
		return p
	})
}

func LazyResultTerm(a *arena.Arena, p arena.Pointer) arena.Pointer {
	return arena.Pointer(a.ReadU32(body(p, 0)))
}

// LazyResultCache returns the memoized result and true if one has been
// recorded by SetLazyResultCache.
func LazyResultCache(a *arena.Arena, p arena.Pointer) (arena.Pointer, bool) {
	r := arena.Pointer(a.ReadU32(body(p, 4)))
	return r, r.Valid()
}

// SetLazyResultCache records the memoized evaluation result in place.
// This is the one term mutation permitted after construction: it does
// not change the term's structural hash, since the cache is not
// folded into identity.
func SetLazyResultCache(a *arena.Arena, p arena.Pointer, result arena.Pointer) {
	a.WriteU32(body(p, 4), uint32(result))
}
