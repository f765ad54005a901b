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

// SizeOf returns the total byte size (header + body) of the term at p,
// dispatching on its Kind tag. It is the sizeOf function arena.Iterate
// and Serialize walk the heap with, since arena itself carries
// no notion of term kinds (see arena.Sizer).
func SizeOf(a *arena.Arena, p arena.Pointer) int {
	switch KindOf(a, p) {
	case KindNil:
		return HeaderSize
	case KindBoolean, KindInt, KindSymbol:
		return HeaderSize + 4
	case KindFloat, KindTimestamp:
		return HeaderSize + 8
	case KindString:
		return stringSize(a, p)
	case KindList:
		return listSize(a, p)
	case KindRecord:
		return HeaderSize + 8
	case KindLazyRecord:
		return lazyRecordSize(a, p)
	case KindHashmap:
		return hashmapSize(a, p)
	case KindHashset:
		return hashsetSize(a, p)
	case KindTree:
		return HeaderSize + 12
	case KindVariable:
		return variableSize(a, p)
	case KindLambda:
		return lambdaSize(a, p)
	case KindLet:
		return HeaderSize + 12
	case KindApplication:
		return applicationSize(a, p)
	case KindPartial:
		return partialSize(a, p)
	case KindBuiltin:
		return builtinSize(a, p)
	case KindConstructor:
		return constructorSize(a, p)
	case KindRecursive:
		return HeaderSize + 4
	case KindCondition:
		return conditionSize(a, p)
	case KindSignal:
		return HeaderSize + 4
	case KindEffect:
		return effectSize(a, p)
	case KindLazyResult:
		return HeaderSize + 8
	case KindEmpty:
		return HeaderSize
	case KindRange:
		return HeaderSize + 12
	case KindRepeat, KindOnce:
		return HeaderSize + 4
	case KindTake, KindSkip:
		return HeaderSize + 8
	case KindMap, KindFilter:
		return HeaderSize + 8
	case KindFlatten:
		return HeaderSize + 4
	case KindZip:
		return HeaderSize + 8
	case KindHashmapKeys, KindHashmapValues:
		return HeaderSize + 4
	case KindEvaluate:
		return HeaderSize + 4
	case KindIndexedAccessor:
		return HeaderSize + 8
	case KindIntegers:
		return HeaderSize
	default:
		return 0
	}
}

// PointerIter enumerates the inner pointers held by the term at p,
// dispatching on Kind. Atomic (leaf) kinds call yield zero times.
func PointerIter(a *arena.Arena, p arena.Pointer, yield func(arena.Pointer) bool) {
	switch KindOf(a, p) {
	case KindList:
		listPointerIter(a, p, yield)
	case KindRecord:
		yield(RecordKeys(a, p))
		yield(RecordValues(a, p))
	case KindLazyRecord:
		yield(LazyRecordKeys(a, p))
		yield(LazyRecordValues(a, p))
	case KindHashmap:
		hashmapPointerIter(a, p, yield)
	case KindHashset:
		hashsetPointerIter(a, p, yield)
	case KindTree:
		treePointerIter(a, p, yield)
	case KindLambda:
		lambdaPointerIter(a, p, yield)
	case KindLet:
		yield(LetInit(a, p))
		yield(LetBody(a, p))
	case KindApplication:
		applicationPointerIter(a, p, yield)
	case KindPartial:
		partialPointerIter(a, p, yield)
	case KindConstructor:
		constructorPointerIter(a, p, yield)
	case KindRecursive:
		yield(RecursiveInner(a, p))
	case KindCondition:
		conditionPointerIter(a, p, yield)
	case KindSignal:
		yield(SignalCondition(a, p))
	case KindEffect:
		effectPointerIter(a, p, yield)
	case KindLazyResult:
		yield(LazyResultTerm(a, p))
		if r, ok := LazyResultCache(a, p); ok {
			yield(r)
		}
	case KindRepeat:
		yield(RepeatItem(a, p))
	case KindOnce:
		yield(OnceItem(a, p))
	case KindTake, KindSkip:
		yield(arena.Pointer(a.ReadU32(body(p, 4))))
	case KindMap, KindFilter:
		yield(arena.Pointer(a.ReadU32(body(p, 0))))
		yield(arena.Pointer(a.ReadU32(body(p, 4))))
	case KindFlatten:
		yield(arena.Pointer(a.ReadU32(body(p, 0))))
	case KindZip:
		yield(arena.Pointer(a.ReadU32(body(p, 0))))
		yield(arena.Pointer(a.ReadU32(body(p, 4))))
	case KindHashmapKeys, KindHashmapValues:
		yield(arena.Pointer(a.ReadU32(body(p, 0))))
	case KindEvaluate:
		yield(arena.Pointer(a.ReadU32(body(p, 0))))
	case KindIndexedAccessor:
		yield(arena.Pointer(a.ReadU32(body(p, 0))))
	}
}
