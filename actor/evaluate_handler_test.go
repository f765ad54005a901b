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
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reflexcore/reflexcore/arena"
	"github.com/reflexcore/reflexcore/term"
	"github.com/reflexcore/reflexcore/wasmgen"
	"github.com/reflexcore/reflexcore/worker"
)

// echoModule mirrors package worker's own test helper: a one-page module
// whose entry point ignores its state argument and returns constant
// (result, deps) pointers, with the allocator cursor at address 0
// pre-initialized past the reserved prefix.
func echoModule(t *testing.T, result, deps uint32) []byte {
	t.Helper()
	m := &wasmgen.Module{}
	m.Memories = []wasmgen.Limits{{Min: 1}}

	body := []byte{
		0x00,
		0x41, byte(result),
		0x41, byte(deps),
		0x0B,
	}
	idx := m.AddFunction(wasmgen.FuncType{
		Params:  []wasmgen.ValType{wasmgen.ValI32},
		Results: []wasmgen.ValType{wasmgen.ValI32, wasmgen.ValI32},
	}, body)
	m.Export("run", wasmgen.KindFunc, idx)
	m.Export("memory", wasmgen.KindMemory, 0)
	m.AddActiveData(0, []byte{4, 0, 0, 0})
	return m.Encode()
}

func echoWorkerFactory(t *testing.T, result, deps uint32) WorkerFactory {
	return func(ctx context.Context, cacheKey uint64, query arena.Pointer, queryArena *arena.Arena) (*worker.Worker, error) {
		return worker.New(ctx, echoModule(t, result, deps), "run", worker.Options{})
	}
}

func TestEvaluateHandlerStartDispatchesResult(t *testing.T) {
	ctx := context.Background()
	a := arena.New(arena.NewHeapBacking())
	f := term.NewFactory(a)
	query := f.CreateInt(1)

	var mu sync.Mutex
	var got []EvaluateResultAction
	dispatch := func(act Action) {
		if r, ok := act.(EvaluateResultAction); ok {
			mu.Lock()
			got = append(got, r)
			mu.Unlock()
		}
	}

	h := NewEvaluateHandler(echoWorkerFactory(t, 9, 1), dispatch)
	h.Start(ctx)

	h.Send(EvaluateStartAction{CacheKey: 42, Label: "q", Query: query, Arena: a})
	h.Stop(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	require.Equal(t, uint64(42), got[0].CacheKey)
	require.Equal(t, arena.Pointer(9), got[0].Result)
}

func TestEvaluateHandlerStopTearsDownWorker(t *testing.T) {
	ctx := context.Background()
	a := arena.New(arena.NewHeapBacking())
	f := term.NewFactory(a)
	query := f.CreateInt(1)

	var capturedWorker *worker.Worker
	factory := func(ctx context.Context, cacheKey uint64, query arena.Pointer, queryArena *arena.Arena) (*worker.Worker, error) {
		w, err := worker.New(ctx, echoModule(t, 1, 2), "run", worker.Options{})
		capturedWorker = w
		return w, err
	}

	h := NewEvaluateHandler(factory, func(Action) {})
	h.Start(ctx)

	h.Send(EvaluateStartAction{CacheKey: 1, Label: "q", Query: query, Arena: a})
	h.Send(EvaluateStopAction{CacheKey: 1})
	h.Stop(ctx)

	require.NotNil(t, capturedWorker)
	require.Equal(t, worker.Disposed, capturedWorker.Lifecycle())
}

func TestEvaluateHandlerCombinesUpdateBatchesWhenConfigured(t *testing.T) {
	ctx := context.Background()
	a := arena.New(arena.NewHeapBacking())
	f := term.NewFactory(a)
	query := f.CreateInt(1)

	var mu sync.Mutex
	var results int
	dispatch := func(act Action) {
		if _, ok := act.(EvaluateResultAction); ok {
			mu.Lock()
			results++
			mu.Unlock()
		}
	}

	h := NewEvaluateHandler(echoWorkerFactory(t, 1, 2), dispatch)
	h.Start(ctx)

	h.Send(EvaluateStartAction{
		CacheKey:             7,
		Label:                "q",
		Query:                query,
		Arena:                a,
		InvalidationStrategy: InvalidationCombineUpdateBatches,
	})
	cond := f.CreateInt(10)
	val := f.CreateInt(20)
	h.Send(EvaluateUpdateAction{
		CacheKey:     7,
		StateIndex:   0,
		StateUpdates: []EffectUpdate{{Condition: cond, Value: val}},
		Arena:        a,
	})
	h.Stop(ctx)

	mu.Lock()
	defer mu.Unlock()
	// Combine-batches mode defers the update's worker.Execute call to the
	// next scheduler-driven sweep (ExecuteAll), so only the initial start
	// evaluation reports a result here.
	require.Equal(t, 1, results)
}
