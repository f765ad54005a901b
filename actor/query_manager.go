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
	"expvar"
	"sync"

	"github.com/reflexcore/reflexcore/arena"
	"github.com/reflexcore/reflexcore/term"
)

// QueryManagerMetrics names the expvar gauges a QueryManager publishes.
// There is no metrics client library in the retrieval pack (see
// DESIGN.md's standard-library justifications), so these are plain
// expvar.Int, following the convention of global expvar counters for
// long-lived server state used throughout this codebase.
type QueryManagerMetrics struct {
	ActiveQueryCount *expvar.Int
}

// NewQueryManagerMetrics registers a fresh, independently-named set of
// gauges under prefix, so more than one QueryManager (e.g. in tests)
// can coexist without expvar's global namespace colliding.
func NewQueryManagerMetrics(prefix string) QueryManagerMetrics {
	return QueryManagerMetrics{
		ActiveQueryCount: expvar.NewInt(prefix + "_active_query_count"),
	}
}

type querySubscription struct {
	query             arena.Pointer
	arena             *arena.Arena
	effect            arena.Pointer
	subscriptionCount int
	hasResult         bool
	result            arena.Pointer
	resultArena       *arena.Arena
	deps              arena.Pointer
}

// QueryManager keeps active query subscriptions alive as effect
// subscriptions and fans out fresh results to subscribers, grounded on
// original_source/reflex-runtime/src/actor/query_manager.rs. It does
// not own a goroutine: each exported method is a synchronous handler
// invoked by whatever single-threaded scheduler owns this actor,
// mirroring the Rust dispatcher's handle() being called in-line by the
// scheduler rather than via its own mailbox.
type QueryManager struct {
	factory *term.Factory
	metrics QueryManagerMetrics

	mu            sync.Mutex
	subscriptions map[uint64]*querySubscription
}

// NewQueryManager creates a QueryManager whose evaluate-effect
// conditions are interned into factory's arena.
func NewQueryManager(factory *term.Factory, metrics QueryManagerMetrics) *QueryManager {
	return &QueryManager{
		factory:       factory,
		metrics:       metrics,
		subscriptions: make(map[uint64]*querySubscription),
	}
}

// HandleQuerySubscribe implements the QuerySubscribe transition: a
// first subscriber for a query causes an EffectSubscribeAction to be
// dispatched; a repeat subscriber for an already-active query instead
// gets the cached result re-emitted immediately, since it might be
// waiting on one.
func (m *QueryManager) HandleQuerySubscribe(action QuerySubscribeAction, dispatch Dispatch) {
	effect := createEvaluateEffect(m.factory, action.Label, action.Query, EvaluationModeQuery, action.InvalidationStrategy)
	id := term.Hash(m.factory.Arena, effect)

	m.mu.Lock()
	sub, ok := m.subscriptions[id]
	if ok {
		sub.subscriptionCount++
		hasResult, result, resultArena, deps := sub.hasResult, sub.result, sub.resultArena, sub.deps
		m.mu.Unlock()
		if hasResult {
			dispatch(QueryEmitAction{Query: action.Query, Arena: resultArena, Result: result, Deps: deps})
		}
		return
	}
	m.subscriptions[id] = &querySubscription{
		query:             action.Query,
		arena:             action.Arena,
		effect:            effect,
		subscriptionCount: 1,
	}
	m.mu.Unlock()

	m.metrics.ActiveQueryCount.Add(1)
	dispatch(EffectSubscribeAction{
		EffectType: evaluateEffectType,
		Conditions: []arena.Pointer{effect},
		Arena:      m.factory.Arena,
	})
}

// HandleQueryUnsubscribe implements the QueryUnsubscribe transition:
// decrements the subscriber count and, once it reaches zero, retires
// the subscription and dispatches an EffectUnsubscribeAction.
func (m *QueryManager) HandleQueryUnsubscribe(action QueryUnsubscribeAction, dispatch Dispatch) {
	effect := createEvaluateEffect(m.factory, action.Label, action.Query, EvaluationModeQuery, action.InvalidationStrategy)
	id := term.Hash(m.factory.Arena, effect)

	m.mu.Lock()
	sub, ok := m.subscriptions[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	sub.subscriptionCount--
	if sub.subscriptionCount > 0 {
		m.mu.Unlock()
		return
	}
	delete(m.subscriptions, id)
	m.mu.Unlock()

	m.metrics.ActiveQueryCount.Add(-1)
	dispatch(EffectUnsubscribeAction{
		EffectType: evaluateEffectType,
		Conditions: []arena.Pointer{sub.effect},
		Arena:      m.factory.Arena,
	})
}

// HandleEffectEmit implements the EffectEmitAction transition: any
// batch whose effect type names this manager's own evaluate-effect
// updates the matching subscription's cached result and re-emits it.
// Batches of any other effect type are ignored — they belong to some
// other collaborator.
func (m *QueryManager) HandleEffectEmit(action EffectEmitAction, dispatch Dispatch) {
	type emit struct {
		query       arena.Pointer
		resultArena *arena.Arena
		result      arena.Pointer
		deps        arena.Pointer
	}
	var toEmit []emit

	m.mu.Lock()
	for _, batch := range action.Batches {
		if batch.EffectType != evaluateEffectType {
			continue
		}
		for _, update := range batch.Updates {
			id := term.Hash(action.Arena, update.Condition)
			sub, ok := m.subscriptions[id]
			if !ok {
				continue
			}
			result, deps := decodeEvaluateResult(action.Arena, update.Value)
			sub.hasResult = true
			sub.result = result
			sub.resultArena = action.Arena
			sub.deps = deps
			toEmit = append(toEmit, emit{query: sub.query, resultArena: action.Arena, result: result, deps: deps})
		}
	}
	m.mu.Unlock()

	for _, e := range toEmit {
		dispatch(QueryEmitAction{Query: e.query, Arena: e.resultArena, Result: e.result, Deps: e.deps})
	}
}

// decodeEvaluateResult splits an EvaluateHandler-produced value term
// (a 2-element List of {result, dependencies}, see
// evaluate_handler.go's EvaluateResultValue) back into its parts.
func decodeEvaluateResult(a *arena.Arena, value arena.Pointer) (result, deps arena.Pointer) {
	if !value.Valid() {
		return arena.Null, arena.Null
	}
	return term.ListItem(a, value, 0), term.ListItem(a, value, 1)
}
