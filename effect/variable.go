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
	"sync"

	"github.com/reflexcore/reflexcore/actor"
	"github.com/reflexcore/reflexcore/arena"
	"github.com/reflexcore/reflexcore/term"
)

// Effect types a VariableHandler answers, grounded on variable.rs's
// GetVariable/SetVariable/IncrementVariable/DecrementVariable builtins,
// each of which constructs a Custom condition with one of these as its
// message.
const (
	EffectTypeVariableGet       = "reflex::variable::get"
	EffectTypeVariableSet       = "reflex::variable::set"
	EffectTypeVariableIncrement = "reflex::variable::increment"
	EffectTypeVariableDecrement = "reflex::variable::decrement"
)

// VariableHandler implements a single process-wide store of named
// (symbol-keyed) mutable cells. Get subscriptions stay registered and
// are re-emitted whenever the cell's value changes; set/increment/
// decrement are one-shot: they apply the mutation and acknowledge it,
// then the caller is expected to unsubscribe.
type VariableHandler struct {
	mu      sync.Mutex
	arena   *arena.Arena
	factory *term.Factory

	values  map[uint32]arena.Pointer
	getSubs map[uint32]map[uint64]arena.Pointer
}

// NewVariableHandler creates an empty variable store.
func NewVariableHandler() *VariableHandler {
	a := arena.New(arena.NewHeapBacking())
	return &VariableHandler{
		arena:   a,
		factory: term.NewFactory(a),
		values:  make(map[uint32]arena.Pointer),
		getSubs: make(map[uint32]map[uint64]arena.Pointer),
	}
}

func (h *VariableHandler) Accept(effectType string) bool {
	switch effectType {
	case EffectTypeVariableGet, EffectTypeVariableSet, EffectTypeVariableIncrement, EffectTypeVariableDecrement:
		return true
	default:
		return false
	}
}

func (h *VariableHandler) HandleSubscribe(action actor.EffectSubscribeAction, dispatch actor.Dispatch) {
	if !h.Accept(action.EffectType) {
		return
	}
	h.mu.Lock()
	var updates, getUpdates []actor.EffectUpdate
	changed := make(map[uint32]bool)
	for _, cond := range action.Conditions {
		homed := term.Serialize(action.Arena, []arena.Pointer{cond}, h.arena, h.factory)[0]
		payload := term.ConditionPtrA(h.arena, homed)
		items := term.ListItems(h.arena, payload)
		if len(items) == 0 {
			continue
		}
		key := term.SymbolValue(h.arena, items[0])

		switch action.EffectType {
		case EffectTypeVariableGet:
			if len(items) != 2 {
				continue
			}
			if _, ok := h.values[key]; !ok {
				h.values[key] = items[1]
			}
			hash := term.Hash(h.arena, homed)
			if h.getSubs[key] == nil {
				h.getSubs[key] = make(map[uint64]arena.Pointer)
			}
			h.getSubs[key][hash] = homed
			updates = append(updates, actor.EffectUpdate{Condition: homed, Value: h.values[key]})
		case EffectTypeVariableSet:
			if len(items) != 2 {
				continue
			}
			h.values[key] = items[1]
			changed[key] = true
			updates = append(updates, actor.EffectUpdate{Condition: homed, Value: h.factory.CreateNil()})
		case EffectTypeVariableIncrement, EffectTypeVariableDecrement:
			delta := int32(1)
			if action.EffectType == EffectTypeVariableDecrement {
				delta = -1
			}
			cur, ok := h.values[key]
			var curVal int32
			if ok && term.KindOf(h.arena, cur) == term.KindInt {
				curVal = term.IntValue(h.arena, cur)
			}
			h.values[key] = h.factory.CreateInt(curVal + delta)
			changed[key] = true
			updates = append(updates, actor.EffectUpdate{Condition: homed, Value: h.factory.CreateNil()})
		}
	}
	for key := range changed {
		for _, cond := range h.getSubs[key] {
			getUpdates = append(getUpdates, actor.EffectUpdate{Condition: cond, Value: h.values[key]})
		}
	}
	resultArena := h.arena
	h.mu.Unlock()

	var batches []actor.EffectBatch
	if len(updates) > 0 {
		batches = append(batches, actor.EffectBatch{EffectType: action.EffectType, Updates: updates})
	}
	if len(getUpdates) > 0 {
		batches = append(batches, actor.EffectBatch{EffectType: EffectTypeVariableGet, Updates: getUpdates})
	}
	if len(batches) > 0 {
		dispatch(actor.EffectEmitAction{Arena: resultArena, Batches: batches})
	}
}

// HandleUnsubscribe drops a get subscription's registration; set/
// increment/decrement never register one, so unsubscribing from those
// is a no-op.
func (h *VariableHandler) HandleUnsubscribe(action actor.EffectUnsubscribeAction, dispatch actor.Dispatch) {
	if action.EffectType != EffectTypeVariableGet {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, cond := range action.Conditions {
		payload := term.ConditionPtrA(action.Arena, cond)
		items := term.ListItems(action.Arena, payload)
		if len(items) == 0 {
			continue
		}
		key := term.SymbolValue(action.Arena, items[0])
		hash := term.Hash(action.Arena, cond)
		delete(h.getSubs[key], hash)
	}
}
