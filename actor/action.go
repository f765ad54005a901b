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

// Package actor implements the reactive-actor layer that sits above
// package worker — QueryManager turns subscriber interest into effect
// subscriptions and fans out results, EvaluateHandler multiplexes
// those effects onto worker instances, and Inspector gives a read-only
// view of what's currently live. The action taxonomy mirrors
// original_source/reflex-runtime/src/action/{evaluate,
// bytecode_interpreter}.rs and .../actor/{query_manager,
// query_inspector}.rs, collapsed from Rust's generic dispatcher-actor
// trait machinery into plain Go structs and methods.
package actor

import (
	"github.com/reflexcore/reflexcore/arena"
	"github.com/reflexcore/reflexcore/term"
)

// Action is the marker interface every message crossing an actor
// boundary implements.
type Action interface {
	actionName() string
}

// QueryEvaluationMode selects how a subscribed query is evaluated.
type QueryEvaluationMode uint8

const (
	EvaluationModeQuery QueryEvaluationMode = iota
	EvaluationModeStandalone
)

// QueryInvalidationStrategy selects how state updates affecting an
// active query are batched before re-evaluation.
type QueryInvalidationStrategy uint8

const (
	// InvalidationExact runs one worker invocation per batch of state
	// updates (fine-grained).
	InvalidationExact QueryInvalidationStrategy = iota
	// InvalidationCombineUpdateBatches coalesces multiple enqueued
	// update batches into one invocation (throughput mode).
	InvalidationCombineUpdateBatches
)

// BytecodeWorkerStatistics reports a worker's GC outcome, surfaced to
// callers via BytecodeInterpreterGcCompleteAction.
type BytecodeWorkerStatistics struct {
	StateDependencyCount      int
	EvaluationCacheEntryCount int
	EvaluationCacheDeepSize   int
}

// QuerySubscribeAction requests the result of query, kept alive under
// label for as long as something stays subscribed. InvalidationStrategy
// picks how state updates affecting this query are batched before
// re-evaluation; the zero value is InvalidationExact, matching every
// existing caller that leaves it unset.
type QuerySubscribeAction struct {
	Query                arena.Pointer
	Arena                *arena.Arena
	Label                string
	InvalidationStrategy QueryInvalidationStrategy
}

func (QuerySubscribeAction) actionName() string { return "QuerySubscribe" }

// QueryUnsubscribeAction releases one subscriber's interest in query.
// InvalidationStrategy must match the value the corresponding
// QuerySubscribeAction carried, since it feeds into the same
// content-hash the subscription is keyed by.
type QueryUnsubscribeAction struct {
	Query                arena.Pointer
	Arena                *arena.Arena
	Label                string
	InvalidationStrategy QueryInvalidationStrategy
}

func (QueryUnsubscribeAction) actionName() string { return "QueryUnsubscribe" }

// QueryEmitAction delivers a fresh result for query to subscribers.
type QueryEmitAction struct {
	Query  arena.Pointer
	Arena  *arena.Arena
	Result arena.Pointer
	Deps   arena.Pointer
}

func (QueryEmitAction) actionName() string { return "QueryEmit" }

// EffectSubscribeAction registers interest in effects of effectType
// with whichever external collaborator handles it.
type EffectSubscribeAction struct {
	EffectType string
	Conditions []arena.Pointer
	Arena      *arena.Arena
}

func (EffectSubscribeAction) actionName() string { return "EffectSubscribe" }

// EffectUnsubscribeAction releases interest in effects of effectType.
type EffectUnsubscribeAction struct {
	EffectType string
	Conditions []arena.Pointer
	Arena      *arena.Arena
}

func (EffectUnsubscribeAction) actionName() string { return "EffectUnsubscribe" }

// EffectUpdate pairs a condition with its freshly produced value.
type EffectUpdate struct {
	Condition arena.Pointer
	Value     arena.Pointer
}

// EffectBatch is one effect type's worth of updates within an
// EffectEmitAction (a single emit can span several effect types).
type EffectBatch struct {
	EffectType string
	Updates    []EffectUpdate
}

// EffectEmitAction carries freshly produced effect values upstream,
// keyed by effect type the way the Custom condition's message field
// names it.
type EffectEmitAction struct {
	Batches []EffectBatch
	Arena   *arena.Arena
}

func (EffectEmitAction) actionName() string { return "EffectEmit" }

// EvaluateStartAction requests EvaluateHandler begin evaluating query
// under cacheKey, reporting results tagged with label.
type EvaluateStartAction struct {
	CacheKey             uint64
	Label                string
	Query                arena.Pointer
	Arena                *arena.Arena
	EvaluationMode       QueryEvaluationMode
	InvalidationStrategy QueryInvalidationStrategy
}

func (EvaluateStartAction) actionName() string { return "EvaluateStart" }

// EvaluateUpdateAction supplies new state for an already-started
// evaluation. StateIndex, when non-negative, orders this update
// relative to others the same cache entry has seen.
type EvaluateUpdateAction struct {
	CacheKey     uint64
	StateIndex   int64
	StateUpdates []EffectUpdate
	Arena        *arena.Arena
}

func (EvaluateUpdateAction) actionName() string { return "EvaluateUpdate" }

// EvaluateStopAction tears down the evaluation for cacheKey.
type EvaluateStopAction struct {
	CacheKey uint64
}

func (EvaluateStopAction) actionName() string { return "EvaluateStop" }

// EvaluateResultAction reports a fresh (result, dependencies) pair for
// cacheKey.
type EvaluateResultAction struct {
	CacheKey   uint64
	StateIndex int64
	Arena      *arena.Arena
	Result     arena.Pointer
	Deps       arena.Pointer
}

func (EvaluateResultAction) actionName() string { return "EvaluateResult" }

// BytecodeInterpreterInitAction requests a worker be instantiated for
// cacheKey before any BytecodeInterpreterEvaluateAction arrives.
type BytecodeInterpreterInitAction struct {
	CacheKey uint64
}

func (BytecodeInterpreterInitAction) actionName() string { return "BytecodeInterpreterInit" }

// BytecodeInterpreterEvaluateAction drives one worker.Execute call.
type BytecodeInterpreterEvaluateAction struct {
	CacheKey     uint64
	StateIndex   int64
	StateUpdates []EffectUpdate
	Arena        *arena.Arena
}

func (BytecodeInterpreterEvaluateAction) actionName() string {
	return "BytecodeInterpreterEvaluate"
}

// BytecodeInterpreterResultAction reports the outcome of a worker call.
type BytecodeInterpreterResultAction struct {
	CacheKey   uint64
	StateIndex int64
	Arena      *arena.Arena
	Result     arena.Pointer
	Deps       arena.Pointer
	Statistics BytecodeWorkerStatistics
}

func (BytecodeInterpreterResultAction) actionName() string {
	return "BytecodeInterpreterResult"
}

// BytecodeInterpreterGcAction requests a compacting pass on the worker
// for cacheKey.
type BytecodeInterpreterGcAction struct {
	CacheKey   uint64
	StateIndex int64
}

func (BytecodeInterpreterGcAction) actionName() string { return "BytecodeInterpreterGc" }

// BytecodeInterpreterGcCompleteAction reports the outcome of a Gc pass.
type BytecodeInterpreterGcCompleteAction struct {
	CacheKey   uint64
	Statistics BytecodeWorkerStatistics
}

func (BytecodeInterpreterGcCompleteAction) actionName() string {
	return "BytecodeInterpreterGcComplete"
}

// evaluateEffectType is the Custom condition message identifying a
// query's own evaluation as an effect of the rest of the system: a
// Custom condition with effect-type "reflex::evaluate".
const evaluateEffectType = "reflex::evaluate"

// createEvaluateEffect builds the Custom condition representing label's
// subscription to query under mode/invalidation, with a nil token. Its
// hash is the subscription's identity throughout QueryManager and
// EvaluateHandler.
func createEvaluateEffect(f *term.Factory, label string, query arena.Pointer, mode QueryEvaluationMode, invalidation QueryInvalidationStrategy) arena.Pointer {
	keys := f.CreateList([]arena.Pointer{
		f.CreateString("label"),
		f.CreateString("query"),
		f.CreateString("mode"),
		f.CreateString("invalidation"),
	})
	values := f.CreateList([]arena.Pointer{
		f.CreateString(label),
		query,
		f.CreateInt(int32(mode)),
		f.CreateInt(int32(invalidation)),
	})
	payload := f.CreateRecord(keys, values)
	return f.CreateCondition(term.ConditionCustom, payload, arena.Null, evaluateEffectType)
}

// isEvaluateEffect reports whether condition is an evaluate effect
// (as opposed to some other Custom-condition effect type routed to an
// external handler).
func isEvaluateEffect(a *arena.Arena, condition arena.Pointer) bool {
	return term.ConditionVariant(a, condition) == term.ConditionCustom &&
		term.ConditionMessage(a, condition) == evaluateEffectType
}

// EvaluateEffectType exposes evaluateEffectType to callers outside this
// package that need to tell a QueryManager's own evaluate-effect
// subscriptions apart from effects meant for an effect.Handler (a host
// process wiring QueryManager's EffectSubscribeAction output to an
// EvaluateHandler, the way cmd/reflexd does, since the two collaborators
// never import each other directly).
const EvaluateEffectType = evaluateEffectType

// DecodeEvaluateEffect recovers the (label, query, mode, invalidation)
// createEvaluateEffect packed into condition's Custom payload. ok is
// false if condition is not an evaluate effect.
func DecodeEvaluateEffect(a *arena.Arena, condition arena.Pointer) (label string, query arena.Pointer, mode QueryEvaluationMode, invalidation QueryInvalidationStrategy, ok bool) {
	if !isEvaluateEffect(a, condition) {
		return "", arena.Null, 0, 0, false
	}
	payload := term.ConditionPtrA(a, condition)
	values := term.RecordValues(a, payload)
	label = term.StringValue(a, term.ListItem(a, values, 0))
	query = term.ListItem(a, values, 1)
	mode = QueryEvaluationMode(term.IntValue(a, term.ListItem(a, values, 2)))
	invalidation = QueryInvalidationStrategy(term.IntValue(a, term.ListItem(a, values, 3)))
	return label, query, mode, invalidation, true
}
