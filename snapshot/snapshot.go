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

// Package snapshot takes a runtime-library
// WASM module's bytes, instantiates it, runs its one-time heap
// bootstrap, and rewrite the module so the bootstrap never has to run
// again — the post-init linear memory becomes the module's own data
// section, the globals it mutated during bootstrap become immutable
// constants, and the bootstrap function's body is cleared. Ported from
// original_source/reflex-wasm/src/snapshot.rs's inline_heap_snapshot.
package snapshot

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/reflexcore/reflexcore/internal/wasmhost"
	"github.com/reflexcore/reflexcore/wasmgen"
)

const (
	wasmPageSize = 1 << 16

	// memoryExportName and initializeExportName are the fixed names
	// a runtime-library module is required to export.
	memoryExportName     = "memory"
	initializeExportName = "_initialize"
)

// globalValue is a captured global's raw bits plus its declared type,
// read back via api.Global.Get() (always a raw uint64 bit pattern —
// the caller reinterprets it per the global's declared value type).
type globalValue struct {
	index uint32
	typ   wasmgen.ValType
	bits  uint64
}

// Capture runs the capture-and-rewrite pass over a
// runtime-library module's bytes and returns the rewritten module.
// It is idempotent: a module that no longer exports
// a mutable global or a non-empty _initialize body has nothing left
// to capture, and Capture returns it unchanged but for a no-op
// re-encoding.
func Capture(ctx context.Context, runtimeModule []byte) ([]byte, error) {
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	if err := wasmhost.Instantiate(ctx, rt, memoryExportName); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	compiled, err := rt.CompileModule(ctx, runtimeModule)
	if err != nil {
		return nil, fmt.Errorf("snapshot: compiling runtime module: %w", err)
	}
	defer compiled.Close(ctx)

	// _initialize must be invoked explicitly, once, under our control —
	// never implicitly as a wasi-style "_start" at instantiation.
	cfg := wazero.NewModuleConfig().WithStartFunctions()
	mod, err := rt.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		return nil, fmt.Errorf("snapshot: instantiating runtime module: %w", err)
	}
	defer mod.Close(ctx)

	m, err := wasmgen.Decode(runtimeModule)
	if err != nil {
		return nil, fmt.Errorf("snapshot: decoding runtime module: %w", err)
	}

	before, err := captureGlobals(mod, m)
	if err != nil {
		return nil, fmt.Errorf("snapshot: capturing pre-init globals: %w", err)
	}

	initFn := mod.ExportedFunction(initializeExportName)
	if initFn == nil {
		return nil, fmt.Errorf("snapshot: runtime module does not export %q", initializeExportName)
	}
	if _, err := initFn.Call(ctx); err != nil {
		return nil, fmt.Errorf("snapshot: running %s: %w", initializeExportName, err)
	}

	after, err := captureGlobals(mod, m)
	if err != nil {
		return nil, fmt.Errorf("snapshot: capturing post-init globals: %w", err)
	}

	mem := mod.Memory()
	if mem == nil {
		return nil, fmt.Errorf("snapshot: runtime module does not export memory %q", memoryExportName)
	}
	heap, ok := mem.Read(0, mem.Size())
	if !ok {
		return nil, fmt.Errorf("snapshot: reading post-init linear memory")
	}

	if err := inlineMutatedGlobals(m, before, after); err != nil {
		return nil, fmt.Errorf("snapshot: inlining mutated globals: %w", err)
	}

	// Replace whatever data segments the runtime module declared with a
	// single active segment holding the entire post-init heap, so a
	// fresh instantiation never needs to re-run the bootstrap that
	// produced it.
	m.DataSegments = nil
	m.AddActiveData(0, heap)

	requiredPages := uint32((len(heap) + wasmPageSize - 1) / wasmPageSize)
	if err := m.GrowInitialMemory(nextPowerOfTwo(requiredPages)); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	if err := clearInitializeBody(m); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	return m.Encode(), nil
}

// captureGlobals reads the current value of every global the module
// exports (the only globals a consumer outside the module could ever
// have observed mutate, and therefore the only ones worth diffing).
func captureGlobals(mod api.Module, m *wasmgen.Module) ([]globalValue, error) {
	var out []globalValue
	for _, e := range m.Exports {
		if e.Kind != wasmgen.KindGlobal {
			continue
		}
		g := mod.ExportedGlobal(e.Name)
		if g == nil {
			return nil, fmt.Errorf("exported global %q not found in running instance", e.Name)
		}
		i := int(e.Index) - m.ImportGlobals
		if i < 0 || i >= len(m.Globals) {
			return nil, fmt.Errorf("exported global %q index %d out of range", e.Name, e.Index)
		}
		out = append(out, globalValue{index: e.Index, typ: m.Globals[i].Type, bits: g.Get()})
	}
	return out, nil
}

// inlineMutatedGlobals compares the before/after snapshots (same
// exported globals, same order — both were built from the same
// Module.Exports walk) and, for every one whose bits changed, bakes
// the post-init value in as a new immutable constant initializer
// (original_source/reflex-wasm/src/snapshot.rs's global-inlining
// step).
func inlineMutatedGlobals(m *wasmgen.Module, before, after []globalValue) error {
	for i := range before {
		if before[i].bits == after[i].bits {
			continue
		}
		v := after[i]
		var c wasmgen.ConstExpr
		switch v.typ {
		case wasmgen.ValI32:
			c.I32 = int32(uint32(v.bits))
		case wasmgen.ValI64:
			c.I64 = int64(v.bits)
		case wasmgen.ValF32:
			c.F32 = api.DecodeF32(v.bits)
		case wasmgen.ValF64:
			c.F64 = api.DecodeF64(v.bits)
		}
		if err := m.SetGlobalConst(v.index, c); err != nil {
			return err
		}
	}
	return nil
}

// clearInitializeBody replaces _initialize's body with a minimal
// no-op matching its declared signature, so the function remains a
// valid, callable export (a second Capture pass, or a worker that
// calls it defensively, still gets a well-typed no-op) without
// repeating the bootstrap work the capture above already baked into
// the data section (snapshot.rs's clear_function_body).
func clearInitializeBody(m *wasmgen.Module) error {
	idx, ok := m.FuncIndex(initializeExportName)
	if !ok {
		return fmt.Errorf("runtime module does not export %q", initializeExportName)
	}
	sig, err := m.FuncSignature(idx)
	if err != nil {
		return err
	}
	return m.SetFunctionBody(idx, wasmgen.NoOpBody(sig))
}

// nextPowerOfTwo rounds n up to the next power of two (n itself if
// already one), matching snapshot.rs's update_initial_heap_size.
func nextPowerOfTwo(n uint32) uint32 {
	if n == 0 {
		return 1
	}
	p := uint32(1)
	for p < n {
		p <<= 1
	}
	return p
}
