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
	"fmt"
	"sync"
	"time"

	"github.com/reflexcore/reflexcore/actor"
	"github.com/reflexcore/reflexcore/arena"
	"github.com/reflexcore/reflexcore/term"
)

// EffectTypeTimeout names the Custom condition a timeout subscription
// uses: payload is a one-element list holding the delay in
// milliseconds (Int or Float), token unused.
const EffectTypeTimeout = "reflex::timeout"

// TimeoutHandler resolves each subscribed condition to Nil after its
// requested delay, one time.Timer per active subscription, grounded on
// timeout.rs's TimeoutHandlerState (active_operations keyed by
// condition, one spawned task per subscription, killed on
// unsubscribe).
type TimeoutHandler struct {
	mu      sync.Mutex
	arena   *arena.Arena
	factory *term.Factory
	timers  map[uint64]*time.Timer
}

// NewTimeoutHandler creates a TimeoutHandler with its own private arena
// for homing subscribed conditions across the lifetime of their timers.
func NewTimeoutHandler() *TimeoutHandler {
	a := arena.New(arena.NewHeapBacking())
	return &TimeoutHandler{
		arena:   a,
		factory: term.NewFactory(a),
		timers:  make(map[uint64]*time.Timer),
	}
}

func (h *TimeoutHandler) Accept(effectType string) bool { return effectType == EffectTypeTimeout }

// HandleSubscribe starts one timer per newly subscribed condition,
// resolving immediately for a zero or unparsable delay, matching
// parse_timeout_effect_args's "duration 0 resolves eagerly" rule.
func (h *TimeoutHandler) HandleSubscribe(action actor.EffectSubscribeAction, dispatch actor.Dispatch) {
	if !h.Accept(action.EffectType) {
		return
	}
	for _, cond := range action.Conditions {
		homed := term.Serialize(action.Arena, []arena.Pointer{cond}, h.arena, h.factory)[0]
		hash := term.Hash(h.arena, homed)

		duration, err := parseTimeoutDuration(h.arena, homed)
		if err != nil || duration <= 0 {
			h.emitDone(homed, dispatch)
			continue
		}

		h.mu.Lock()
		if _, exists := h.timers[hash]; exists {
			h.mu.Unlock()
			continue
		}
		h.timers[hash] = time.AfterFunc(duration, func() {
			h.mu.Lock()
			delete(h.timers, hash)
			h.mu.Unlock()
			h.emitDone(homed, dispatch)
		})
		h.mu.Unlock()
	}
}

// HandleUnsubscribe stops and discards the timer for each condition no
// longer subscribed to, the Kill(task_pid) half of timeout.rs's
// handle_effect_unsubscribe.
func (h *TimeoutHandler) HandleUnsubscribe(action actor.EffectUnsubscribeAction, dispatch actor.Dispatch) {
	if !h.Accept(action.EffectType) {
		return
	}
	for _, cond := range action.Conditions {
		hash := term.Hash(action.Arena, cond)
		h.mu.Lock()
		if timer, ok := h.timers[hash]; ok {
			timer.Stop()
			delete(h.timers, hash)
		}
		h.mu.Unlock()
	}
}

func (h *TimeoutHandler) emitDone(condition arena.Pointer, dispatch actor.Dispatch) {
	h.mu.Lock()
	value := h.factory.CreateNil()
	resultArena := h.arena
	h.mu.Unlock()
	dispatch(actor.EffectEmitAction{
		Arena: resultArena,
		Batches: []actor.EffectBatch{{
			EffectType: EffectTypeTimeout,
			Updates:    []actor.EffectUpdate{{Condition: condition, Value: value}},
		}},
	})
}

func parseTimeoutDuration(a *arena.Arena, condition arena.Pointer) (time.Duration, error) {
	payload := term.ConditionPtrA(a, condition)
	items := term.ListItems(a, payload)
	if len(items) != 1 {
		return 0, fmt.Errorf("effect: invalid %s payload: want 1 argument, got %d", EffectTypeTimeout, len(items))
	}
	switch term.KindOf(a, items[0]) {
	case term.KindInt:
		ms := term.IntValue(a, items[0])
		if ms < 0 {
			return 0, fmt.Errorf("effect: invalid %s delay: %d", EffectTypeTimeout, ms)
		}
		return time.Duration(ms) * time.Millisecond, nil
	case term.KindFloat:
		ms := term.FloatValue(a, items[0])
		if ms < 0 {
			return 0, fmt.Errorf("effect: invalid %s delay: %g", EffectTypeTimeout, ms)
		}
		return time.Duration(ms) * time.Millisecond, nil
	default:
		return 0, fmt.Errorf("effect: invalid %s delay argument kind %s", EffectTypeTimeout, term.KindOf(a, items[0]))
	}
}
