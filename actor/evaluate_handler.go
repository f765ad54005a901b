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
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/reflexcore/reflexcore/arena"
	"github.com/reflexcore/reflexcore/eval"
	"github.com/reflexcore/reflexcore/term"
	"github.com/reflexcore/reflexcore/worker"
)

// WorkerFactory builds the compiled worker for a cache key's query,
// isolating EvaluateHandler from package worker's instantiation details
// (compiling a query to a module is package compiler's job, not this
// one's).
type WorkerFactory func(ctx context.Context, cacheKey uint64, query arena.Pointer, queryArena *arena.Arena) (*worker.Worker, error)

// defaultGcThreshold triggers a compacting Gc pass on a worker once this
// many evaluations have run since its last one, bounding how much garbage
// accumulates in a long-lived subscription's arena. Override per-handler
// with SetGcThreshold (cmd/reflexd wires this to its config file's GC
// threshold setting).
const defaultGcThreshold = 32

type evaluation struct {
	cacheKey             uint64
	label                string
	invalidationStrategy QueryInvalidationStrategy
	worker               *worker.Worker
	deps                 eval.Deps
	pendingUpdates       []worker.StateUpdate
	sinceGc              int

	hasResult  bool
	lastResult arena.Pointer
}

// EvaluateHandler multiplexes EvaluateStart/Update/Stop actions onto one
// worker.Worker per cache key, reporting results as
// EvaluateResultAction. It owns a single inbox goroutine so that the
// (start, update*, stop) sequence for one cache key is always applied in
// order, while distinct cache keys' worker.Execute calls run
// concurrently under an errgroup — the same "one mailbox in, fan out to
// many independent workers" shape as
// tenant/dcache's per-segment worker pool, generalized from segment
// fetches to query workers.
type EvaluateHandler struct {
	newWorker WorkerFactory
	dispatch  Dispatch

	mu          sync.Mutex
	evaluations map[uint64]*evaluation
	gcThreshold int

	actions chan Action
	wg      sync.WaitGroup
}

// NewEvaluateHandler creates a handler that builds workers via newWorker
// and reports results/errors via dispatch. Call Start to begin
// processing and Stop to drain it.
func NewEvaluateHandler(newWorker WorkerFactory, dispatch Dispatch) *EvaluateHandler {
	return &EvaluateHandler{
		newWorker:   newWorker,
		dispatch:    dispatch,
		evaluations: make(map[uint64]*evaluation),
		gcThreshold: defaultGcThreshold,
		actions:     make(chan Action, 64),
	}
}

// SetGcThreshold overrides how many evaluations a cache entry runs between
// compacting Gc passes. Ignored if n is not positive.
func (h *EvaluateHandler) SetGcThreshold(n int) {
	if n > 0 {
		h.mu.Lock()
		h.gcThreshold = n
		h.mu.Unlock()
	}
}

// Start launches the handler's inbox goroutine. It returns immediately;
// call Send to enqueue actions and Stop to shut down.
func (h *EvaluateHandler) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.run(ctx)
}

// Send enqueues action for processing. It blocks only if the inbox is
// saturated, the same backpressure tenant/dcache's queue channel applies
// to its callers.
func (h *EvaluateHandler) Send(action Action) {
	h.actions <- action
}

// Stop closes the inbox and waits for in-flight work to finish.
func (h *EvaluateHandler) Stop(ctx context.Context) {
	close(h.actions)
	h.wg.Wait()

	h.mu.Lock()
	evals := make([]*evaluation, 0, len(h.evaluations))
	for _, e := range h.evaluations {
		evals = append(evals, e)
	}
	h.evaluations = make(map[uint64]*evaluation)
	h.mu.Unlock()

	for _, e := range evals {
		e.worker.Drop(ctx)
	}
}

func (h *EvaluateHandler) run(ctx context.Context) {
	defer h.wg.Done()
	for action := range h.actions {
		switch a := action.(type) {
		case EvaluateStartAction:
			h.handleStart(ctx, a)
		case EvaluateUpdateAction:
			h.handleUpdate(ctx, a)
		case EvaluateStopAction:
			h.handleStop(ctx, a)
		}
	}
}

func (h *EvaluateHandler) handleStart(ctx context.Context, a EvaluateStartAction) {
	h.mu.Lock()
	if _, exists := h.evaluations[a.CacheKey]; exists {
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	w, err := h.newWorker(ctx, a.CacheKey, a.Query, a.Arena)
	if err != nil {
		h.dispatch(EvaluateResultAction{CacheKey: a.CacheKey, StateIndex: -1, Result: arena.Null, Deps: arena.Null})
		return
	}

	e := &evaluation{
		cacheKey:             a.CacheKey,
		label:                a.Label,
		invalidationStrategy: a.InvalidationStrategy,
	}
	e.worker = w

	h.mu.Lock()
	h.evaluations[a.CacheKey] = e
	h.mu.Unlock()

	h.execute(ctx, e, -1, nil)
}

func (h *EvaluateHandler) handleUpdate(ctx context.Context, a EvaluateUpdateAction) {
	h.mu.Lock()
	e, ok := h.evaluations[a.CacheKey]
	h.mu.Unlock()
	if !ok {
		return
	}

	updates := make([]worker.StateUpdate, len(a.StateUpdates))
	for i, u := range a.StateUpdates {
		updates[i] = worker.StateUpdate{Arena: a.Arena, Condition: u.Condition, Value: u.Value}
	}

	if e.invalidationStrategy == InvalidationCombineUpdateBatches {
		e.pendingUpdates = append(e.pendingUpdates, updates...)
		return
	}
	h.execute(ctx, e, a.StateIndex, updates)
}

func (h *EvaluateHandler) handleStop(ctx context.Context, a EvaluateStopAction) {
	h.mu.Lock()
	e, ok := h.evaluations[a.CacheKey]
	if ok {
		delete(h.evaluations, a.CacheKey)
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	e.worker.Drop(ctx)
}

// execute runs one worker.Execute call for e, folding in any updates
// combined since the last call under InvalidationCombineUpdateBatches,
// and reports the outcome as an EvaluateResultAction.
func (h *EvaluateHandler) execute(ctx context.Context, e *evaluation, stateIndex int64, updates []worker.StateUpdate) {
	batch := append(e.pendingUpdates, updates...)
	e.pendingUpdates = nil

	result, depsTree, err := e.worker.Execute(ctx, batch)
	if err != nil {
		h.dispatch(EvaluateResultAction{CacheKey: e.cacheKey, StateIndex: stateIndex, Result: arena.Null, Deps: arena.Null})
		return
	}

	workerArena := e.worker.Arena()
	e.deps = eval.DepsFromTree(workerArena, depsTree)
	e.hasResult = true
	e.lastResult = result

	h.mu.Lock()
	threshold := h.gcThreshold
	h.mu.Unlock()

	e.sinceGc++
	if e.sinceGc >= threshold {
		e.worker.Gc(ctx)
		e.sinceGc = 0
	}

	h.dispatch(EvaluateResultAction{
		CacheKey:   e.cacheKey,
		StateIndex: stateIndex,
		Arena:      workerArena,
		Result:     result,
		Deps:       depsTree,
	})
}

// EvaluateResultValue packs (result, deps) into the single term an
// EffectUpdate's Value carries, so QueryManager.HandleEffectEmit (via
// decodeEvaluateResult) can recover both halves from one pointer. Host
// glue that bridges an EvaluateResultAction back into a QueryManager's
// EffectEmitAction (cmd/reflexd's dispatch hub) calls this after
// re-homing result/deps out of the worker's arena and into the
// subscription's, since Condition and Value in one EffectUpdate must
// share an arena.
func EvaluateResultValue(f *term.Factory, result, deps arena.Pointer) arena.Pointer {
	return f.CreateList([]arena.Pointer{result, deps})
}

// ExecuteAll drives every active evaluation's worker concurrently,
// joined by an errgroup (no concurrency limit is set), and reports a EvaluateResultAction for each —
// the periodic "re-evaluate everything subscribed to the effects that
// just fired" sweep a scheduler performs after an EffectEmitAction,
// generalized from intelligence_gatherer.go's parallel-gather-then-join
// shape to "parallel re-evaluate, independent failures don't cancel
// siblings".
func (h *EvaluateHandler) ExecuteAll(ctx context.Context) error {
	h.mu.Lock()
	evals := make([]*evaluation, 0, len(h.evaluations))
	for _, e := range h.evaluations {
		evals = append(evals, e)
	}
	h.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, e := range evals {
		e := e
		g.Go(func() error {
			h.execute(gctx, e, -1, nil)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("actor: evaluating all active queries: %w", err)
	}
	return nil
}
