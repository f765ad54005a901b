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

// Package term implements the content-addressed term model: a tagged
// variant of term kinds sharing a uniform 12-byte header (hash + tag)
// over a typed payload, allocated in an arena.Arena.
//
// Every term variant is restated as a single tagged variant dispatched
// by Kind rather than a family of generic trait-bound types, the way
// vm/ssa.go restates SQL expression trees as a single tagged
// ssaop/value pair.
package term

// Kind tags a term variant.
type Kind uint8

const (
	KindInvalid Kind = iota

	// Atomic
	KindNil
	KindBoolean
	KindInt
	KindFloat
	KindString
	KindSymbol
	KindTimestamp

	// Composite
	KindList
	KindRecord
	KindLazyRecord
	KindHashmap
	KindHashset
	KindTree

	// Functional
	KindVariable
	KindLambda
	KindLet
	KindApplication
	KindPartial
	KindBuiltin
	KindConstructor
	KindRecursive

	// Reactive
	KindCondition
	KindSignal
	KindEffect
	KindLazyResult

	// Iterators
	KindEmpty
	KindRange
	KindRepeat
	KindOnce
	KindTake
	KindSkip
	KindMap
	KindFilter
	KindFlatten
	KindZip
	KindHashmapKeys
	KindHashmapValues
	KindEvaluate
	KindIndexedAccessor
	KindIntegers

	kindCount
)

var kindNames = [...]string{
	KindInvalid:         "Invalid",
	KindNil:             "Nil",
	KindBoolean:         "Boolean",
	KindInt:             "Int",
	KindFloat:           "Float",
	KindString:          "String",
	KindSymbol:          "Symbol",
	KindTimestamp:       "Timestamp",
	KindList:            "List",
	KindRecord:          "Record",
	KindLazyRecord:      "LazyRecord",
	KindHashmap:         "Hashmap",
	KindHashset:         "Hashset",
	KindTree:            "Tree",
	KindVariable:        "Variable",
	KindLambda:          "Lambda",
	KindLet:             "Let",
	KindApplication:     "Application",
	KindPartial:         "Partial",
	KindBuiltin:         "Builtin",
	KindConstructor:     "Constructor",
	KindRecursive:       "Recursive",
	KindCondition:       "Condition",
	KindSignal:          "Signal",
	KindEffect:          "Effect",
	KindLazyResult:      "LazyResult",
	KindEmpty:           "Empty",
	KindRange:           "Range",
	KindRepeat:          "Repeat",
	KindOnce:            "Once",
	KindTake:            "Take",
	KindSkip:            "Skip",
	KindMap:             "Map",
	KindFilter:          "Filter",
	KindFlatten:         "Flatten",
	KindZip:             "Zip",
	KindHashmapKeys:     "HashmapKeys",
	KindHashmapValues:   "HashmapValues",
	KindEvaluate:        "Evaluate",
	KindIndexedAccessor: "IndexedAccessor",
	KindIntegers:        "Integers",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "Kind(?)"
}

// IsAtomic reports whether values of this kind reduce to themselves
// with an empty dependency set.
func (k Kind) IsAtomic() bool {
	switch k {
	case KindNil, KindBoolean, KindInt, KindFloat, KindString, KindSymbol, KindTimestamp:
		return true
	default:
		return false
	}
}
