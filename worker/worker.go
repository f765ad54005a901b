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

// Package worker implements a compiled reactive worker, one WASM
// instance per active query, each owning its own linear-memory
// arena and exclusive hash-cons table. The single-goroutine request
// loop and reservation-coalescing shape follow
// tenant/dcache/worker.go's queue/reservation pattern, generalized from
// "one mmap fetch in flight per segment etag" to "one WASM invocation
// in flight per worker, with updates arriving meanwhile folded into the
// next batch".
package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/reflexcore/reflexcore/arena"
	"github.com/reflexcore/reflexcore/internal/wasmhost"
	"github.com/reflexcore/reflexcore/term"
)

// Logf, when non-nil, receives diagnostic messages from this package,
// following the nil-by-default hook convention used throughout (see
// arena.Logf).
var Logf func(format string, args ...any)

// reservedPrefix is the number of bytes at the start of a worker's
// linear memory that hold the guest runtime's own bump-allocator
// cursor, not term data (original_source/reflex-wasm/src/exports.rs's
// update_linear_memory_allocator_offset always writes that cursor to
// absolute address 0). Arena.IterateFrom/NewAt calls in this package
// always skip or anchor past it.
const reservedPrefix = 4

// Lifecycle is a Worker's lifecycle state.
type Lifecycle int

const (
	Uninitialized Lifecycle = iota
	Idle
	Evaluating
	Gc
	Disposed
)

func (l Lifecycle) String() string {
	switch l {
	case Uninitialized:
		return "Uninitialized"
	case Idle:
		return "Idle"
	case Evaluating:
		return "Evaluating"
	case Gc:
		return "Gc"
	case Disposed:
		return "Disposed"
	default:
		return "Lifecycle(?)"
	}
}

// Options configures a Worker at construction. The zero value is the
// common case.
type Options struct {
	// MemoryExportName is the name the compiled module exports its
	// linear memory under. Defaults to "memory".
	MemoryExportName string
}

// StateUpdate supplies a new value for a condition. Condition and
// Value are pointers in Arena, not necessarily the worker's own — a
// query's evaluator builds these in its own arena, and Execute re-homes
// them into the worker's arena via term.Serialize before binding them:
// any cross-actor term transfer goes through the Serialize contract.
type StateUpdate struct {
	Arena     *arena.Arena
	Condition arena.Pointer
	Value     arena.Pointer
}

// GCStats reports the outcome of a compacting Gc pass.
type GCStats struct {
	LiveBytesBefore int
	LiveBytesAfter  int
}

type request struct {
	updates []StateUpdate
	done    chan struct{}
	result  arena.Pointer
	deps    arena.Pointer
	err     error
}

// Worker instantiates a compiled runtime-library-linked WASM module and
// drives it against incoming state updates.
type Worker struct {
	rt      wazero.Runtime
	mod     api.Module
	entryFn api.Function
	mem     api.Memory

	arena   *arena.Arena
	factory *term.Factory

	// condition-hash -> homed pointer, paired by hash so the Hashmap
	// term Execute rebuilds on each call always has a Key whose content
	// hash matches the Value it is paired with (see term.HashmapGet).
	conditions map[uint64]arena.Pointer
	values     map[uint64]arena.Pointer

	lastResult arena.Pointer
	lastDeps   arena.Pointer

	mu        sync.Mutex
	lifecycle Lifecycle
	pending   *request

	reqs chan *request
	wg   sync.WaitGroup
}

// New instantiates moduleBytes (normally already processed by
// package snapshot) and starts the worker's single request-processing
// goroutine. entryPoint is the exported function Execute invokes,
// taking the state Hashmap's pointer and returning (result pointer,
// dependency-tree pointer).
func New(ctx context.Context, moduleBytes []byte, entryPoint string, opts Options) (*Worker, error) {
	memoryName := opts.MemoryExportName
	if memoryName == "" {
		memoryName = "memory"
	}

	rt := wazero.NewRuntime(ctx)
	if err := wasmhost.Instantiate(ctx, rt, memoryName); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("worker: %w", err)
	}

	compiled, err := rt.CompileModule(ctx, moduleBytes)
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("worker: compiling module: %w", err)
	}

	cfg := wazero.NewModuleConfig().WithStartFunctions()
	mod, err := rt.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("worker: instantiating module: %w", err)
	}

	if initFn := mod.ExportedFunction("_initialize"); initFn != nil {
		if _, err := initFn.Call(ctx); err != nil {
			mod.Close(ctx)
			rt.Close(ctx)
			return nil, fmt.Errorf("worker: running _initialize: %w", err)
		}
	}

	entryFn := mod.ExportedFunction(entryPoint)
	if entryFn == nil {
		mod.Close(ctx)
		rt.Close(ctx)
		return nil, fmt.Errorf("worker: module does not export entry point %q", entryPoint)
	}

	mem := mod.Memory()
	if mem == nil {
		mod.Close(ctx)
		rt.Close(ctx)
		return nil, fmt.Errorf("worker: module does not export memory %q", memoryName)
	}

	cursor, ok := mem.ReadUint32Le(0)
	if !ok {
		mod.Close(ctx)
		rt.Close(ctx)
		return nil, fmt.Errorf("worker: reading allocator cursor")
	}
	if cursor < reservedPrefix {
		cursor = reservedPrefix
	}

	a := arena.NewAt(memoryBacking{mem}, arena.Pointer(cursor))
	f := term.NewFactory(a)
	a.IterateFrom(reservedPrefix, term.SizeOf, func(p arena.Pointer) bool {
		f.Rehash(p)
		return true
	})

	w := &Worker{
		rt:         rt,
		mod:        mod,
		entryFn:    entryFn,
		mem:        mem,
		arena:      a,
		factory:    f,
		conditions: make(map[uint64]arena.Pointer),
		values:     make(map[uint64]arena.Pointer),
		lifecycle:  Idle,
		reqs:       make(chan *request),
	}
	w.wg.Add(1)
	go w.run(ctx)
	return w, nil
}

// Execute applies updates to the worker's state and invokes the entry
// point, returning the result pointer and the dependency-tree pointer
// the evaluation consulted (both in the worker's own arena). Execute
// calls arriving while a previous one is still running coalesce their
// updates into one next batch, evaluated once after it, and share that
// batch's result, matching tenant/dcache/worker.go's reservation
// coalescing.
func (w *Worker) Execute(ctx context.Context, updates []StateUpdate) (arena.Pointer, arena.Pointer, error) {
	w.mu.Lock()
	if w.lifecycle == Disposed {
		w.mu.Unlock()
		return arena.Null, arena.Null, fmt.Errorf("worker: Execute on disposed worker")
	}
	req := w.pending
	isNew := req == nil
	if isNew {
		req = &request{done: make(chan struct{})}
		w.pending = req
	}
	req.updates = append(req.updates, updates...)
	w.mu.Unlock()
	if isNew {
		w.reqs <- req
	}

	select {
	case <-req.done:
		return req.result, req.deps, req.err
	case <-ctx.Done():
		return arena.Null, arena.Null, ctx.Err()
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	for req := range w.reqs {
		w.mu.Lock()
		w.pending = nil
		w.lifecycle = Evaluating
		w.mu.Unlock()

		result, deps, err := w.evaluate(ctx, req.updates)

		w.mu.Lock()
		w.lastResult, w.lastDeps = result, deps
		if w.lifecycle != Disposed {
			w.lifecycle = Idle
		}
		w.mu.Unlock()

		req.result, req.deps, req.err = result, deps, err
		close(req.done)
	}
}

func (w *Worker) evaluate(ctx context.Context, updates []StateUpdate) (arena.Pointer, arena.Pointer, error) {
	for _, u := range updates {
		homed := term.Serialize(u.Arena, []arena.Pointer{u.Condition, u.Value}, w.arena, w.factory)
		h := term.Hash(w.arena, homed[0])
		w.conditions[h] = homed[0]
		w.values[h] = homed[1]
	}

	pairs := make([]term.KVPair, 0, len(w.conditions))
	for h, cond := range w.conditions {
		pairs = append(pairs, term.KVPair{Key: cond, Value: w.values[h]})
	}
	stateHashmap := w.factory.CreateHashmap(pairs)

	results, err := w.entryFn.Call(ctx, uint64(stateHashmap))
	if err != nil {
		return arena.Null, arena.Null, fmt.Errorf("worker: invoking entry point: %w", err)
	}
	if len(results) != 2 {
		return arena.Null, arena.Null, fmt.Errorf("worker: entry point returned %d results, want 2", len(results))
	}
	return arena.Pointer(uint32(results[0])), arena.Pointer(uint32(results[1])), nil
}

// Gc compacts the worker's arena, keeping only terms reachable from the
// current state hashmap and the last evaluation's result and
// dependency set, via the term.Serialize contract.
func (w *Worker) Gc(ctx context.Context) (GCStats, error) {
	w.mu.Lock()
	if w.lifecycle != Idle {
		w.mu.Unlock()
		return GCStats{}, fmt.Errorf("worker: Gc requires Idle, got %s", w.lifecycle)
	}
	w.lifecycle = Gc
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		if w.lifecycle != Disposed {
			w.lifecycle = Idle
		}
		w.mu.Unlock()
	}()

	before := int(w.arena.EndOffset())

	roots := make([]arena.Pointer, 0, len(w.conditions)*2+2)
	for h, cond := range w.conditions {
		roots = append(roots, cond, w.values[h])
	}
	if w.lastResult.Valid() {
		roots = append(roots, w.lastResult)
	}
	if w.lastDeps.Valid() {
		roots = append(roots, w.lastDeps)
	}

	dst := arena.NewAt(arena.NewHeapBacking(), reservedPrefix)
	dstFactory := term.NewFactory(dst)
	newRoots := term.Serialize(w.arena, roots, dst, dstFactory)

	if !wasmhost.WriteBytes(w.mem, 0, dst.Bytes()) {
		return GCStats{}, fmt.Errorf("worker: writing compacted heap back into linear memory")
	}
	if !w.mem.WriteUint32Le(0, uint32(dst.EndOffset())) {
		return GCStats{}, fmt.Errorf("worker: updating allocator cursor")
	}

	w.arena = arena.NewAt(memoryBacking{w.mem}, dst.EndOffset())
	dstFactory.Arena = w.arena
	w.factory = dstFactory

	w.conditions = make(map[uint64]arena.Pointer, len(w.conditions))
	w.values = make(map[uint64]arena.Pointer, len(w.values))
	rebuildStateFromRoots(w, newRoots)

	return GCStats{LiveBytesBefore: before, LiveBytesAfter: int(dst.EndOffset())}, nil
}

// rebuildStateFromRoots repopulates w.conditions/w.values/lastResult/
// lastDeps from Serialize's newRoots, which preserve the order roots
// were passed in: interleaved (condition, value) pairs, optionally
// followed by lastResult and lastDeps.
func rebuildStateFromRoots(w *Worker, newRoots []arena.Pointer) {
	n := len(newRoots)
	hasResult, hasDeps := false, false
	rest := n
	// The last one or two roots are lastResult/lastDeps, appended in
	// that order after the interleaved (condition, value) pairs.
	if w.lastDeps.Valid() {
		hasDeps = true
		rest--
	}
	if w.lastResult.Valid() {
		hasResult = true
		rest--
	}
	for i := 0; i+1 < rest; i += 2 {
		cond, val := newRoots[i], newRoots[i+1]
		w.conditions[term.Hash(w.arena, cond)] = cond
		w.values[term.Hash(w.arena, cond)] = val
	}
	idx := rest
	if hasResult {
		w.lastResult = newRoots[idx]
		idx++
	} else {
		w.lastResult = arena.Null
	}
	if hasDeps {
		w.lastDeps = newRoots[idx]
	} else {
		w.lastDeps = arena.Null
	}
}

// Drop transitions the worker to Disposed and releases its WASM
// instance. A worker currently executing completes its in-flight pass
// before the instance is closed.
func (w *Worker) Drop(ctx context.Context) error {
	w.mu.Lock()
	if w.lifecycle == Disposed {
		w.mu.Unlock()
		return nil
	}
	w.lifecycle = Disposed
	w.mu.Unlock()

	close(w.reqs)
	w.wg.Wait()

	if err := w.mod.Close(ctx); err != nil {
		w.rt.Close(ctx)
		return fmt.Errorf("worker: closing module: %w", err)
	}
	return w.rt.Close(ctx)
}

// Lifecycle reports the worker's current state.
func (w *Worker) Lifecycle() Lifecycle {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lifecycle
}

// Arena exposes the worker's linear-memory-backed arena so a host can
// inspect returned terms with the same pointer discipline used at
// compile time.
func (w *Worker) Arena() *arena.Arena { return w.arena }

// memoryBacking adapts a wazero guest instance's linear memory to the
// arena.Backing contract.
type memoryBacking struct {
	mem api.Memory
}

func (b memoryBacking) Bytes() []byte {
	buf, ok := b.mem.Read(0, b.mem.Size())
	if !ok {
		panic("worker: reading linear memory")
	}
	return buf
}

func (b memoryBacking) Grow(n int) []byte {
	if uint32(n) > b.mem.Size() {
		const pageSize = 1 << 16
		deltaPages := (uint64(n)-uint64(b.mem.Size())+pageSize-1) / pageSize
		if _, ok := b.mem.Grow(uint32(deltaPages)); !ok {
			panic("worker: growing linear memory")
		}
	}
	return b.Bytes()
}

func (b memoryBacking) Release() {}
