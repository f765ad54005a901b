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

package main

import (
	"log"
	"sync"

	"github.com/reflexcore/reflexcore/actor"
	"github.com/reflexcore/reflexcore/arena"
	"github.com/reflexcore/reflexcore/effect"
	"github.com/reflexcore/reflexcore/term"
)

// hub wires package actor's otherwise-independent collaborators
// (QueryManager, EvaluateHandler, an effect.Router) the way the
// original process's single scheduler bus did by trying every actor's
// accept/handle in turn: here the host (this daemon) owns the routing
// table instead, since Go has no equivalent of the Rust scheduler's
// dynamic actor registry. QueryManager and EvaluateHandler never import
// each other; hub.dispatch is the only thing that knows both.
type hub struct {
	queries  *actor.QueryManager
	evaluate *actor.EvaluateHandler
	effects  *effect.Router
	logger   *log.Logger

	mu   sync.Mutex
	subs map[uint64]evaluateSubscription
}

// evaluateSubscription remembers the effect condition (and the arena it
// lives in) a QueryManager subscribed under some cache key, so a later
// EvaluateResultAction for that key can be re-packaged as the
// EffectEmitAction QueryManager.HandleEffectEmit expects.
type evaluateSubscription struct {
	condition arena.Pointer
	arena     *arena.Arena
}

// newHub builds an empty hub. Its queries/evaluate/effects fields are
// filled in by main once constructed — each of those constructors needs
// hub.dispatch as a callback before the hub's own fields exist, so
// dispatch only reads them at call time, never at construction time.
func newHub(logger *log.Logger) *hub {
	return &hub{
		logger: logger,
		subs:   make(map[uint64]evaluateSubscription),
	}
}

// dispatch is the actor.Dispatch every collaborator is handed. It routes
// each action to whichever collaborator owns that transition, and
// bridges the two seams the original scheduler bus otherwise closed for
// free: EffectSubscribe/Unsubscribe of the evaluate effect type becomes
// EvaluateStart/Stop, and EvaluateResult becomes an EffectEmit the
// QueryManager can fold back into its subscriptions.
func (h *hub) dispatch(a actor.Action) {
	switch act := a.(type) {
	case actor.QuerySubscribeAction:
		h.queries.HandleQuerySubscribe(act, h.dispatch)
	case actor.QueryUnsubscribeAction:
		h.queries.HandleQueryUnsubscribe(act, h.dispatch)
	case actor.QueryEmitAction:
		h.logger.Printf("query result: %s", term.KindOf(act.Arena, act.Result))

	case actor.EffectSubscribeAction:
		if act.EffectType != actor.EvaluateEffectType {
			h.effects.HandleSubscribe(act, h.dispatch)
			return
		}
		for _, cond := range act.Conditions {
			label, query, mode, invalidation, ok := actor.DecodeEvaluateEffect(act.Arena, cond)
			if !ok {
				continue
			}
			cacheKey := term.Hash(act.Arena, cond)
			h.mu.Lock()
			h.subs[cacheKey] = evaluateSubscription{condition: cond, arena: act.Arena}
			h.mu.Unlock()
			h.evaluate.Send(actor.EvaluateStartAction{
				CacheKey:             cacheKey,
				Label:                label,
				Query:                query,
				Arena:                act.Arena,
				EvaluationMode:       mode,
				InvalidationStrategy: invalidation,
			})
		}

	case actor.EffectUnsubscribeAction:
		if act.EffectType != actor.EvaluateEffectType {
			h.effects.HandleUnsubscribe(act, h.dispatch)
			return
		}
		for _, cond := range act.Conditions {
			cacheKey := term.Hash(act.Arena, cond)
			h.evaluate.Send(actor.EvaluateStopAction{CacheKey: cacheKey})
			h.mu.Lock()
			delete(h.subs, cacheKey)
			h.mu.Unlock()
		}

	case actor.EvaluateResultAction:
		h.mu.Lock()
		sub, ok := h.subs[act.CacheKey]
		h.mu.Unlock()
		if !ok || !act.Result.Valid() {
			return
		}
		f := term.NewFactory(sub.arena)
		homed := term.Serialize(act.Arena, []arena.Pointer{act.Result, act.Deps}, sub.arena, f)
		value := actor.EvaluateResultValue(f, homed[0], homed[1])
		h.queries.HandleEffectEmit(actor.EffectEmitAction{
			Arena: sub.arena,
			Batches: []actor.EffectBatch{{
				EffectType: actor.EvaluateEffectType,
				Updates:    []actor.EffectUpdate{{Condition: sub.condition, Value: value}},
			}},
		}, h.dispatch)

	case actor.EffectEmitAction:
		h.queries.HandleEffectEmit(act, h.dispatch)
	}
}
