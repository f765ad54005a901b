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
	"context"
	"encoding/binary"
	"fmt"

	"github.com/reflexcore/reflexcore/arena"
	"github.com/reflexcore/reflexcore/compiler"
	"github.com/reflexcore/reflexcore/snapshot"
	"github.com/reflexcore/reflexcore/term"
	"github.com/reflexcore/reflexcore/wasmgen"
	"github.com/reflexcore/reflexcore/worker"
)

// queryCompiler turns a subscribed query term into a running worker,
// the actor.WorkerFactory EvaluateHandler calls on every EvaluateStart.
// It is the daemon-resident twin of cmd/reflexc's compileQuery: the two
// binaries can't share package main code, so each owns its own copy of
// the compile-then-link pipeline, mirroring how cmd/sneller and
// cmd/snellerd each carry their own glue atop the shared vm/plan
// packages rather than a shared cmd-internal library.
type queryCompiler struct {
	runtimeModule []byte
	imageBase     uint32
	cache         *snapshot.Cache // nil disables the on-disk module cache
	entryName     string
}

func newQueryCompiler(runtimeModule []byte, cache *snapshot.Cache) (*queryCompiler, error) {
	imageBase, err := runtimeImageBase(runtimeModule)
	if err != nil {
		return nil, fmt.Errorf("inspecting runtime module: %w", err)
	}
	return &queryCompiler{
		runtimeModule: runtimeModule,
		imageBase:     imageBase,
		cache:         cache,
		entryName:     "run",
	}, nil
}

// Build implements actor.WorkerFactory: compile query (rooted in
// queryArena) against the runtime-library module, consult the on-disk
// cache keyed by cacheKey before recompiling, and instantiate the
// result.
func (c *queryCompiler) Build(ctx context.Context, cacheKey uint64, query arena.Pointer, queryArena *arena.Arena) (*worker.Worker, error) {
	module, err := c.moduleFor(ctx, cacheKey, query, queryArena)
	if err != nil {
		return nil, err
	}
	return worker.New(ctx, module, c.entryName, worker.Options{})
}

func (c *queryCompiler) moduleFor(ctx context.Context, cacheKey uint64, query arena.Pointer, queryArena *arena.Arena) ([]byte, error) {
	if c.cache != nil {
		if module, ok, err := c.cache.Load(cacheKey); err == nil && ok {
			return module, nil
		}
	}

	linked, err := c.compile(query, queryArena)
	if err != nil {
		return nil, err
	}
	captured, err := snapshot.Capture(ctx, linked)
	if err != nil {
		return nil, fmt.Errorf("capturing compiled module: %w", err)
	}

	if c.cache != nil {
		_ = c.cache.Store(cacheKey, captured)
	}
	return captured, nil
}

func (c *queryCompiler) compile(query arena.Pointer, queryArena *arena.Arena) ([]byte, error) {
	image := arena.New(arena.NewHeapBacking())
	state := compiler.NewCompilerState(image)

	body, err := compiler.Compile(queryArena, query, term.ArgStrict, state, &compiler.Options{})
	if err != nil {
		return nil, fmt.Errorf("compiling query: %w", err)
	}

	hoisted := make([]wasmgen.HoistedFunction, len(state.Functions()))
	for i, fn := range state.Functions() {
		hoisted[i] = wasmgen.HoistedFunction{ID: fn.ID, Sig: fn.Sig, Body: fn.Body}
	}

	entries := []wasmgen.EntryPoint{{Name: c.entryName, Body: body}}
	out, err := wasmgen.Generate(c.runtimeModule, hoisted, entries, image.Bytes(), c.imageBase)
	if err != nil {
		return nil, fmt.Errorf("generating module: %w", err)
	}
	return out, nil
}

// runtimeImageBase picks an offset beyond every byte the runtime
// module's own memory section already reserves, so the compiler's
// constant-image data segment never overlaps the runtime's bootstrap
// heap.
func runtimeImageBase(runtimeModule []byte) (uint32, error) {
	m, err := wasmgen.Decode(runtimeModule)
	if err != nil {
		return 0, fmt.Errorf("decoding runtime module: %w", err)
	}
	if len(m.Memories) == 0 {
		return 0, fmt.Errorf("runtime module declares no memory section")
	}
	const wasmPageSize = 1 << 16
	return m.Memories[0].Min * wasmPageSize, nil
}

// loadQueryArena reads a query dump in the format cmd/reflexc/query.go
// writes: a 4-byte little-endian root pointer followed by the raw bytes
// of the arena it roots into.
func loadQueryArena(raw []byte) (*arena.Arena, arena.Pointer, error) {
	if len(raw) < 4 {
		return nil, arena.Null, fmt.Errorf("query dump too short: %d bytes", len(raw))
	}
	root := arena.Pointer(binary.LittleEndian.Uint32(raw[:4]))
	body := raw[4:]
	a := arena.NewAt(&arena.MemoryBacking{Mem: body}, arena.Pointer(len(body)))
	return a, root, nil
}
