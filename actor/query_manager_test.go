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

package actor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reflexcore/reflexcore/arena"
	"github.com/reflexcore/reflexcore/term"
)

func newTestQueryManager(t *testing.T) (*QueryManager, *term.Factory) {
	t.Helper()
	a := arena.New(arena.NewHeapBacking())
	f := term.NewFactory(a)
	return NewQueryManager(f, NewQueryManagerMetrics(t.Name())), f
}

func TestQuerySubscribeDispatchesEffectSubscribeOnce(t *testing.T) {
	m, f := newTestQueryManager(t)
	query := f.CreateInt(7)

	var dispatched []Action
	dispatch := func(a Action) { dispatched = append(dispatched, a) }

	m.HandleQuerySubscribe(QuerySubscribeAction{Query: query, Arena: f.Arena, Label: "first"}, dispatch)
	m.HandleQuerySubscribe(QuerySubscribeAction{Query: query, Arena: f.Arena, Label: "first"}, dispatch)

	require.Len(t, dispatched, 1)
	sub, ok := dispatched[0].(EffectSubscribeAction)
	require.True(t, ok)
	require.Equal(t, evaluateEffectType, sub.EffectType)
	require.Len(t, sub.Conditions, 1)
	require.True(t, isEvaluateEffect(f.Arena, sub.Conditions[0]))

	require.Len(t, m.subscriptions, 1)
	for _, s := range m.subscriptions {
		require.Equal(t, 2, s.subscriptionCount)
	}
}

func TestQuerySubscribeReplaysCachedResultForRepeatSubscriber(t *testing.T) {
	m, f := newTestQueryManager(t)
	query := f.CreateInt(7)
	effect := createEvaluateEffect(f, "first", query, EvaluationModeQuery, InvalidationExact)

	var dispatched []Action
	dispatch := func(a Action) { dispatched = append(dispatched, a) }

	m.HandleQuerySubscribe(QuerySubscribeAction{Query: query, Arena: f.Arena, Label: "first"}, dispatch)

	resultVal := f.CreateList([]arena.Pointer{f.CreateInt(99), arena.Null})
	m.HandleEffectEmit(EffectEmitAction{
		Arena: f.Arena,
		Batches: []EffectBatch{{
			EffectType: evaluateEffectType,
			Updates:    []EffectUpdate{{Condition: effect, Value: resultVal}},
		}},
	}, dispatch)

	dispatched = nil
	m.HandleQuerySubscribe(QuerySubscribeAction{Query: query, Arena: f.Arena, Label: "first"}, dispatch)

	require.Len(t, dispatched, 1)
	emit, ok := dispatched[0].(QueryEmitAction)
	require.True(t, ok)
	require.Equal(t, int32(99), term.IntValue(f.Arena, emit.Result))
}

func TestQueryUnsubscribeDispatchesEffectUnsubscribeAtZero(t *testing.T) {
	m, f := newTestQueryManager(t)
	query := f.CreateInt(7)

	var dispatched []Action
	dispatch := func(a Action) { dispatched = append(dispatched, a) }

	m.HandleQuerySubscribe(QuerySubscribeAction{Query: query, Arena: f.Arena, Label: "first"}, dispatch)
	m.HandleQuerySubscribe(QuerySubscribeAction{Query: query, Arena: f.Arena, Label: "first"}, dispatch)

	dispatched = nil
	m.HandleQueryUnsubscribe(QueryUnsubscribeAction{Query: query, Arena: f.Arena, Label: "first"}, dispatch)
	require.Empty(t, dispatched)
	require.Len(t, m.subscriptions, 1)

	m.HandleQueryUnsubscribe(QueryUnsubscribeAction{Query: query, Arena: f.Arena, Label: "first"}, dispatch)
	require.Len(t, dispatched, 1)
	_, ok := dispatched[0].(EffectUnsubscribeAction)
	require.True(t, ok)
	require.Empty(t, m.subscriptions)
}

func TestEffectEmitIgnoresUnrelatedEffectTypes(t *testing.T) {
	m, f := newTestQueryManager(t)
	query := f.CreateInt(7)

	var dispatched []Action
	dispatch := func(a Action) { dispatched = append(dispatched, a) }
	m.HandleQuerySubscribe(QuerySubscribeAction{Query: query, Arena: f.Arena, Label: "first"}, dispatch)

	dispatched = nil
	m.HandleEffectEmit(EffectEmitAction{
		Arena: f.Arena,
		Batches: []EffectBatch{{
			EffectType: "some::other-effect",
			Updates:    []EffectUpdate{{Condition: f.CreateInt(1), Value: f.CreateInt(2)}},
		}},
	}, dispatch)

	require.Empty(t, dispatched)
}
