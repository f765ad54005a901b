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

package worker

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reflexcore/reflexcore/arena"
	"github.com/reflexcore/reflexcore/term"
	"github.com/reflexcore/reflexcore/wasmgen"
)

// echoModule builds a one-page module whose entry point ignores the
// state pointer it is given and returns a constant (result, deps) pair,
// with the reserved allocator cursor at address 0 already initialized
// to reservedPrefix. It links no host imports beyond what package
// wasmhost provides, so New can instantiate it standalone the same way
// cmd/reflexd would a compiled query.
func echoModule(t *testing.T, result, deps uint32) []byte {
	t.Helper()
	m := &wasmgen.Module{}
	m.Memories = []wasmgen.Limits{{Min: 1}}

	body := []byte{
		0x00, // no locals
		0x41, byte(result), // i32.const result
		0x41, byte(deps), // i32.const deps
		0x0B, // end
	}
	idx := m.AddFunction(wasmgen.FuncType{
		Params:  []wasmgen.ValType{wasmgen.ValI32},
		Results: []wasmgen.ValType{wasmgen.ValI32, wasmgen.ValI32},
	}, body)
	m.Export("run", wasmgen.KindFunc, idx)
	m.Export("memory", wasmgen.KindMemory, 0)
	m.AddActiveData(0, []byte{byte(reservedPrefix), 0, 0, 0})
	return m.Encode()
}

func TestNewReadsAllocatorCursorAndStartsIdle(t *testing.T) {
	ctx := context.Background()
	w, err := New(ctx, echoModule(t, 55, 60), "run", Options{})
	require.NoError(t, err)
	defer w.Drop(ctx)

	require.Equal(t, Idle, w.Lifecycle())
	require.Equal(t, arena.Pointer(reservedPrefix), w.Arena().EndOffset())
}

func TestExecuteReturnsEntryPointResults(t *testing.T) {
	ctx := context.Background()
	w, err := New(ctx, echoModule(t, 42, 7), "run", Options{})
	require.NoError(t, err)
	defer w.Drop(ctx)

	result, deps, err := w.Execute(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, arena.Pointer(42), result)
	require.Equal(t, arena.Pointer(7), deps)
}

func TestExecuteHomesUpdatesIntoWorkerArena(t *testing.T) {
	ctx := context.Background()
	w, err := New(ctx, echoModule(t, 1, 2), "run", Options{})
	require.NoError(t, err)
	defer w.Drop(ctx)

	srcArena := arena.New(arena.NewHeapBacking())
	srcFactory := term.NewFactory(srcArena)
	cond := srcFactory.CreateInt(5)
	val := srcFactory.CreateInt(123)

	_, _, err = w.Execute(ctx, []StateUpdate{{Arena: srcArena, Condition: cond, Value: val}})
	require.NoError(t, err)

	require.Len(t, w.conditions, 1)
	for h, homedCond := range w.conditions {
		require.Equal(t, term.Hash(srcArena, cond), h)
		homedVal := w.values[h]
		require.Equal(t, int32(123), term.IntValue(w.arena, homedVal))
		require.Equal(t, int32(5), term.IntValue(w.arena, homedCond))
	}
}

func TestConcurrentExecuteCallsCoalesce(t *testing.T) {
	ctx := context.Background()
	w, err := New(ctx, echoModule(t, 1, 2), "run", Options{})
	require.NoError(t, err)
	defer w.Drop(ctx)

	srcArena := arena.New(arena.NewHeapBacking())
	srcFactory := term.NewFactory(srcArena)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			cond := srcFactory.CreateInt(int32(i))
			val := srcFactory.CreateInt(int32(i * 10))
			_, _, err := w.Execute(ctx, []StateUpdate{{Arena: srcArena, Condition: cond, Value: val}})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.LessOrEqual(t, len(w.conditions), 8)
	require.Greater(t, len(w.conditions), 0)
}

func TestGcCompactsAndPreservesState(t *testing.T) {
	ctx := context.Background()
	w, err := New(ctx, echoModule(t, 1, 2), "run", Options{})
	require.NoError(t, err)
	defer w.Drop(ctx)

	srcArena := arena.New(arena.NewHeapBacking())
	srcFactory := term.NewFactory(srcArena)
	cond := srcFactory.CreateInt(5)
	val := srcFactory.CreateInt(123)
	_, _, err = w.Execute(ctx, []StateUpdate{{Arena: srcArena, Condition: cond, Value: val}})
	require.NoError(t, err)

	before := w.arena.EndOffset()
	// Bump the arena with garbage unreachable from any root so Gc has
	// something to reclaim.
	for i := 0; i < 50; i++ {
		w.factory.CreateInt(int32(1000 + i))
	}
	require.Greater(t, w.arena.EndOffset(), before)

	stats, err := w.Gc(ctx)
	require.NoError(t, err)
	require.Less(t, stats.LiveBytesAfter, stats.LiveBytesBefore)
	require.Equal(t, Idle, w.Lifecycle())

	require.Len(t, w.conditions, 1)
	for _, homedVal := range w.values {
		require.Equal(t, int32(123), term.IntValue(w.arena, homedVal))
	}
}

func TestDropIsIdempotentAndRejectsFurtherExecute(t *testing.T) {
	ctx := context.Background()
	w, err := New(ctx, echoModule(t, 1, 2), "run", Options{})
	require.NoError(t, err)

	require.NoError(t, w.Drop(ctx))
	require.NoError(t, w.Drop(ctx))
	require.Equal(t, Disposed, w.Lifecycle())

	_, _, err = w.Execute(ctx, nil)
	require.Error(t, err)
}
