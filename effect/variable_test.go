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

package effect

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reflexcore/reflexcore/actor"
	"github.com/reflexcore/reflexcore/arena"
	"github.com/reflexcore/reflexcore/term"
)

func variableCondition(f *term.Factory, effectType string, key uint32, extra ...arena.Pointer) arena.Pointer {
	items := append([]arena.Pointer{f.CreateSymbol(key)}, extra...)
	payload := f.CreateList(items)
	return f.CreateCondition(term.ConditionCustom, payload, arena.Null, effectType)
}

func TestVariableHandlerGetSeedsInitialValue(t *testing.T) {
	a := arena.New(arena.NewHeapBacking())
	f := term.NewFactory(a)
	cond := variableCondition(f, EffectTypeVariableGet, 1, f.CreateInt(42))

	h := NewVariableHandler()
	var got actor.EffectEmitAction
	h.HandleSubscribe(actor.EffectSubscribeAction{
		EffectType: EffectTypeVariableGet,
		Conditions: []arena.Pointer{cond},
		Arena:      a,
	}, func(act actor.Action) {
		if emit, ok := act.(actor.EffectEmitAction); ok {
			got = emit
		}
	})

	require.Len(t, got.Batches, 1)
	require.Len(t, got.Batches[0].Updates, 1)
	update := got.Batches[0].Updates[0]
	require.Equal(t, int32(42), term.IntValue(got.Arena, update.Value))
}

func TestVariableHandlerSetReemitsToActiveGetSubscribers(t *testing.T) {
	a := arena.New(arena.NewHeapBacking())
	f := term.NewFactory(a)
	getCond := variableCondition(f, EffectTypeVariableGet, 7, f.CreateInt(0))

	h := NewVariableHandler()
	h.HandleSubscribe(actor.EffectSubscribeAction{
		EffectType: EffectTypeVariableGet,
		Conditions: []arena.Pointer{getCond},
		Arena:      a,
	}, func(actor.Action) {})

	setCond := variableCondition(f, EffectTypeVariableSet, 7, f.CreateInt(99))
	var emits []actor.EffectEmitAction
	h.HandleSubscribe(actor.EffectSubscribeAction{
		EffectType: EffectTypeVariableSet,
		Conditions: []arena.Pointer{setCond},
		Arena:      a,
	}, func(act actor.Action) {
		if emit, ok := act.(actor.EffectEmitAction); ok {
			emits = append(emits, emit)
		}
	})

	require.Len(t, emits, 1)
	var sawGetUpdate bool
	for _, batch := range emits[0].Batches {
		if batch.EffectType == EffectTypeVariableGet {
			for _, u := range batch.Updates {
				require.Equal(t, int32(99), term.IntValue(emits[0].Arena, u.Value))
				sawGetUpdate = true
			}
		}
	}
	require.True(t, sawGetUpdate, "set should re-emit to the still-subscribed get")
}

func TestVariableHandlerIncrementDecrement(t *testing.T) {
	a := arena.New(arena.NewHeapBacking())
	f := term.NewFactory(a)
	getCond := variableCondition(f, EffectTypeVariableGet, 3, f.CreateInt(10))

	h := NewVariableHandler()
	h.HandleSubscribe(actor.EffectSubscribeAction{
		EffectType: EffectTypeVariableGet,
		Conditions: []arena.Pointer{getCond},
		Arena:      a,
	}, func(actor.Action) {})

	incCond := variableCondition(f, EffectTypeVariableIncrement, 3)
	var lastValue arena.Pointer
	var lastArena *arena.Arena
	onEmit := func(act actor.Action) {
		if emit, ok := act.(actor.EffectEmitAction); ok {
			for _, batch := range emit.Batches {
				if batch.EffectType == EffectTypeVariableGet {
					for _, u := range batch.Updates {
						lastValue, lastArena = u.Value, emit.Arena
					}
				}
			}
		}
	}
	h.HandleSubscribe(actor.EffectSubscribeAction{
		EffectType: EffectTypeVariableIncrement,
		Conditions: []arena.Pointer{incCond},
		Arena:      a,
	}, onEmit)
	require.Equal(t, int32(11), term.IntValue(lastArena, lastValue))

	decCond := variableCondition(f, EffectTypeVariableDecrement, 3)
	h.HandleSubscribe(actor.EffectSubscribeAction{
		EffectType: EffectTypeVariableDecrement,
		Conditions: []arena.Pointer{decCond},
		Arena:      a,
	}, onEmit)
	require.Equal(t, int32(10), term.IntValue(lastArena, lastValue))
}

func TestVariableHandlerUnsubscribeStopsReemission(t *testing.T) {
	a := arena.New(arena.NewHeapBacking())
	f := term.NewFactory(a)
	getCond := variableCondition(f, EffectTypeVariableGet, 5, f.CreateInt(1))

	h := NewVariableHandler()
	h.HandleSubscribe(actor.EffectSubscribeAction{
		EffectType: EffectTypeVariableGet,
		Conditions: []arena.Pointer{getCond},
		Arena:      a,
	}, func(actor.Action) {})

	h.HandleUnsubscribe(actor.EffectUnsubscribeAction{
		EffectType: EffectTypeVariableGet,
		Conditions: []arena.Pointer{getCond},
		Arena:      a,
	}, func(actor.Action) {})

	setCond := variableCondition(f, EffectTypeVariableSet, 5, f.CreateInt(2))
	var emits []actor.EffectEmitAction
	h.HandleSubscribe(actor.EffectSubscribeAction{
		EffectType: EffectTypeVariableSet,
		Conditions: []arena.Pointer{setCond},
		Arena:      a,
	}, func(act actor.Action) {
		if emit, ok := act.(actor.EffectEmitAction); ok {
			emits = append(emits, emit)
		}
	})

	require.Len(t, emits, 1)
	for _, batch := range emits[0].Batches {
		require.NotEqual(t, EffectTypeVariableGet, batch.EffectType, "unsubscribed get should not be re-emitted to")
	}
}

func TestVariableHandlerAccept(t *testing.T) {
	h := NewVariableHandler()
	require.True(t, h.Accept(EffectTypeVariableGet))
	require.True(t, h.Accept(EffectTypeVariableSet))
	require.True(t, h.Accept(EffectTypeVariableIncrement))
	require.True(t, h.Accept(EffectTypeVariableDecrement))
	require.False(t, h.Accept(EffectTypeTimeout))
}
