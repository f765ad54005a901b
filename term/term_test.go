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

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reflexcore/reflexcore/arena"
)

func newFactory(t *testing.T) *Factory {
	t.Helper()
	return NewFactory(arena.New(arena.NewHeapBacking()))
}

// TestHashDeterministic: two terms built from the same structural
// inputs always hash identically regardless of construction order or
// arena offset.
func TestHashDeterministic(t *testing.T) {
	f1 := newFactory(t)
	a := f1.CreateInt(7)
	b := f1.CreateString("x")
	rec1 := f1.CreateList([]arena.Pointer{a, b})

	f2 := newFactory(t)
	// Build in a different order and with different intervening
	// allocations so offsets diverge, then confirm hashes still match.
	_ = f2.CreateBoolean(true)
	b2 := f2.CreateString("x")
	a2 := f2.CreateInt(7)
	rec2 := f2.CreateList([]arena.Pointer{a2, b2})

	require.Equal(t, Hash(f1.Arena, rec1), Hash(f2.Arena, rec2))
}

// TestHashConsUniqueness: structurally identical terms built twice in
// the same factory share one arena slot.
func TestHashConsUniqueness(t *testing.T) {
	f := newFactory(t)
	p1 := f.CreateInt(42)
	p2 := f.CreateInt(42)
	require.Equal(t, p1, p2)

	l1 := f.CreateList([]arena.Pointer{p1, p2})
	l2 := f.CreateList([]arena.Pointer{p1, p2})
	require.Equal(t, l1, l2)

	// A structurally different term must get a distinct pointer.
	p3 := f.CreateInt(43)
	require.NotEqual(t, p1, p3)
}

func TestAtomicAccessors(t *testing.T) {
	f := newFactory(t)

	n := f.CreateNil()
	require.Equal(t, KindNil, KindOf(f.Arena, n))

	bo := f.CreateBoolean(true)
	require.True(t, BooleanValue(f.Arena, bo))

	i := f.CreateInt(-5)
	require.Equal(t, int32(-5), IntValue(f.Arena, i))

	fl := f.CreateFloat(3.5)
	require.Equal(t, 3.5, FloatValue(f.Arena, fl))

	s := f.CreateString("hello")
	require.Equal(t, "hello", StringValue(f.Arena, s))

	sym := f.CreateSymbol(9)
	require.Equal(t, uint32(9), SymbolValue(f.Arena, sym))

	ts := f.CreateTimestamp(1234)
	require.Equal(t, int64(1234), TimestampValue(f.Arena, ts))

	for _, p := range []arena.Pointer{n, bo, i, fl, s, sym, ts} {
		require.True(t, KindOf(f.Arena, p).IsAtomic())
	}
}

func TestListRoundTrip(t *testing.T) {
	f := newFactory(t)
	items := []arena.Pointer{f.CreateInt(1), f.CreateInt(2), f.CreateInt(3)}
	l := f.CreateList(items)
	require.Equal(t, 3, ListLen(f.Arena, l))
	require.Equal(t, items, ListItems(f.Arena, l))
}

func TestRecordRoundTrip(t *testing.T) {
	f := newFactory(t)
	keys := f.CreateList([]arena.Pointer{f.CreateSymbol(1), f.CreateSymbol(2)})
	values := f.CreateList([]arena.Pointer{f.CreateInt(10), f.CreateInt(20)})
	r := f.CreateRecord(keys, values)
	require.Equal(t, keys, RecordKeys(f.Arena, r))
	require.Equal(t, values, RecordValues(f.Arena, r))
}

func TestHashmapGet(t *testing.T) {
	f := newFactory(t)
	k1, k2, k3 := f.CreateSymbol(1), f.CreateSymbol(2), f.CreateSymbol(3)
	v1, v2, v3 := f.CreateInt(100), f.CreateInt(200), f.CreateInt(300)
	hm := f.CreateHashmap([]KVPair{{k1, v1}, {k2, v2}, {k3, v3}})

	got, ok := HashmapGet(f.Arena, hm, k2)
	require.True(t, ok)
	require.Equal(t, v2, got)

	missing := f.CreateSymbol(99)
	_, ok = HashmapGet(f.Arena, hm, missing)
	require.False(t, ok)
}

func TestHashsetContains(t *testing.T) {
	f := newFactory(t)
	k1, k2 := f.CreateString("a"), f.CreateString("b")
	hs := f.CreateHashset([]arena.Pointer{k1, k2})
	require.True(t, HashsetContains(f.Arena, hs, k1))
	require.False(t, HashsetContains(f.Arena, hs, f.CreateString("c")))
}

func TestLazyRecordEagerness(t *testing.T) {
	f := newFactory(t)
	keys := f.CreateList([]arena.Pointer{f.CreateSymbol(1)})
	values := f.CreateList([]arena.Pointer{f.CreateInt(1)})
	lr := f.CreateLazyRecord(keys, values, []ArgType{ArgStrict})
	require.Equal(t, []ArgType{ArgStrict}, LazyRecordEagerness(f.Arena, lr))
}

func TestLambdaRoundTrip(t *testing.T) {
	f := newFactory(t)
	params := f.CreateList([]arena.Pointer{f.CreateSymbol(0)})
	body := f.CreateVariable(0)
	lam := f.CreateLambda(params, body, []ArgType{ArgStrict}, arena.Null)
	require.Equal(t, params, LambdaParams(f.Arena, lam))
	require.Equal(t, body, LambdaBody(f.Arena, lam))
	require.Equal(t, []ArgType{ArgStrict}, LambdaArgTypes(f.Arena, lam))
}

func TestLazyResultCache(t *testing.T) {
	f := newFactory(t)
	inner := f.CreateInt(5)
	lr := f.CreateLazyResult(inner)
	_, ok := LazyResultCache(f.Arena, lr)
	require.False(t, ok)

	result := f.CreateInt(10)
	SetLazyResultCache(f.Arena, lr, result)
	got, ok := LazyResultCache(f.Arena, lr)
	require.True(t, ok)
	require.Equal(t, result, got)
}

func TestArenaIterateMatchesAllTerms(t *testing.T) {
	f := newFactory(t)
	f.CreateInt(1)
	f.CreateString("ab")
	f.CreateList([]arena.Pointer{f.CreateInt(2), f.CreateInt(3)})

	count := 0
	f.Arena.Iterate(SizeOf, func(p arena.Pointer) bool {
		count++
		return true
	})
	require.Greater(t, count, 0)
}

func TestConditionRoundTrip(t *testing.T) {
	f := newFactory(t)
	c := f.CreateCondition(ConditionTypeError, arena.Null, arena.Null, "expected Int")
	require.Equal(t, ConditionTypeError, ConditionVariant(f.Arena, c))
	require.Equal(t, "expected Int", ConditionMessage(f.Arena, c))
}

func TestSignalWrapsCondition(t *testing.T) {
	f := newFactory(t)
	c := f.CreateCondition(ConditionPending, arena.Null, arena.Null, "")
	sig := f.CreateSignal(c)
	require.Equal(t, c, SignalCondition(f.Arena, sig))
}
