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
	"fmt"

	"github.com/reflexcore/reflexcore/arena"
	"github.com/reflexcore/reflexcore/term"
)

// summarize renders a term as a short diagnostic string: atomic values
// print their Go value, everything else prints its Kind name. It never
// walks composite structure, so it is safe to call on arbitrarily large
// cached results without inflating the snapshot.
func summarize(a *arena.Arena, p arena.Pointer) string {
	if !p.Valid() {
		return "nil"
	}
	switch term.KindOf(a, p) {
	case term.KindInt:
		return fmt.Sprintf("%d", term.IntValue(a, p))
	case term.KindFloat:
		return fmt.Sprintf("%g", term.FloatValue(a, p))
	case term.KindString:
		return term.StringValue(a, p)
	case term.KindBoolean:
		return fmt.Sprintf("%t", term.BooleanValue(a, p))
	default:
		return term.KindOf(a, p).String()
	}
}

// WorkerSnapshot is one active evaluation's inspectable state: its cache
// key, the label it was started under, and its most recently reported
// result (if any), all rendered to plain values so Inspector has no
// dependency on a live arena outliving the snapshot, grounded on
// original_source/reflex-runtime/src/actor/query_inspector.rs's
// QueryInspectorState::to_json.
type WorkerSnapshot struct {
	CacheKey     uint64   `json:"id"`
	Label        string   `json:"label"`
	HasResult    bool     `json:"-"`
	Result       string   `json:"result,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// EffectSnapshot is one active effect subscription's inspectable state.
type EffectSnapshot struct {
	EffectType        string `json:"effectType"`
	SubscriptionCount int    `json:"subscriptionCount"`
	HasValue          bool   `json:"-"`
	Value             string `json:"value,omitempty"`
}

// Snapshot is the combined point-in-time view Inspector reports.
type Snapshot struct {
	Queries []WorkerSnapshot `json:"queries"`
	Effects []EffectSnapshot `json:"effects"`
}

// Inspector renders a read-only snapshot of an EvaluateHandler's active
// workers and a QueryManager's active subscriptions, for diagnostic
// endpoints — it never dispatches actions or mutates either
// collaborator, so exposing inspection state never perturbs
// evaluation.
type Inspector struct {
	handler *EvaluateHandler
	manager *QueryManager
}

// NewInspector builds an Inspector over handler and manager. Either may
// be nil, producing an empty slice for that half of the snapshot.
func NewInspector(handler *EvaluateHandler, manager *QueryManager) *Inspector {
	return &Inspector{handler: handler, manager: manager}
}

// Snapshot renders the current state. Term values are summarized to
// plain strings so the result carries no arena pointers a caller could
// use after the underlying evaluation moves on.
func (ins *Inspector) Snapshot() Snapshot {
	var out Snapshot

	if ins.handler != nil {
		ins.handler.mu.Lock()
		for key, e := range ins.handler.evaluations {
			w := WorkerSnapshot{CacheKey: key, Label: e.label}
			if e.hasResult && e.worker != nil {
				w.HasResult = true
				w.Result = summarize(e.worker.Arena(), e.lastResult)
				for _, dep := range e.deps {
					w.Dependencies = append(w.Dependencies, summarize(e.worker.Arena(), dep))
				}
			}
			out.Queries = append(out.Queries, w)
		}
		ins.handler.mu.Unlock()
	}

	if ins.manager != nil {
		ins.manager.mu.Lock()
		for _, sub := range ins.manager.subscriptions {
			es := EffectSnapshot{
				EffectType:        evaluateEffectType,
				SubscriptionCount: sub.subscriptionCount,
			}
			if sub.hasResult {
				es.HasValue = true
				es.Value = summarize(sub.resultArena, sub.result)
			}
			out.Effects = append(out.Effects, es)
		}
		ins.manager.mu.Unlock()
	}

	return out
}
