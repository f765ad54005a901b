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

// Package wasmhost instantiates the host import modules a compiled
// runtime-library WASM module links against: the
// Math/Date/Number transcendental and formatting functions and the
// Debugger.debug diagnostic hook, shared by the snapshot capture pass
// and every compiled worker instance.
package wasmhost

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// Instantiate builds and instantiates the "Math", "Date", "Number" and
// "Debugger" host modules against rt, so a guest module importing them
// can be compiled and instantiated afterward. memoryName is the name
// the guest exports its linear memory under — Date.toISOString and
// Number.toString both write their formatted output directly into the
// caller's linear memory, mirroring
// original_source/reflex-wasm/src/exports.rs's add_wasm_runtime_imports.
func Instantiate(ctx context.Context, rt wazero.Runtime, memoryName string) error {
	if _, err := rt.NewHostModuleBuilder("Debugger").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, valuePointer uint32) {
			if valuePointer == 0 {
				fmt.Println("[DEBUG] NULL")
			} else {
				fmt.Printf("[DEBUG] %#x\n", valuePointer)
			}
		}).
		Export("debug").
		Instantiate(ctx); err != nil {
		return fmt.Errorf("wasmhost: instantiating Debugger host module: %w", err)
	}

	if _, err := rt.NewHostModuleBuilder("Date").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, offset, length uint32) int64 {
			raw, ok := mod.Memory().Read(offset, length)
			if !ok {
				return -1
			}
			t, err := time.Parse(time.RFC3339, string(raw))
			if err != nil {
				return -1
			}
			return t.UnixMilli()
		}).
		Export("parse").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, timestamp int64, destPointer uint32) uint32 {
			formatted := time.UnixMilli(timestamp).UTC().Format(time.RFC3339Nano)
			return writeString(mod, destPointer, formatted)
		}).
		Export("toISOString").
		Instantiate(ctx); err != nil {
		return fmt.Errorf("wasmhost: instantiating Date host module: %w", err)
	}

	if _, err := rt.NewHostModuleBuilder("Number").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, value float64, destPointer uint32) uint32 {
			return writeString(mod, destPointer, formatNumber(value))
		}).
		Export("toString").
		Instantiate(ctx); err != nil {
		return fmt.Errorf("wasmhost: instantiating Number host module: %w", err)
	}

	mathFns := map[string]func(float64) float64{
		"acos": math.Acos, "acosh": math.Acosh, "asin": math.Asin, "asinh": math.Asinh,
		"atan": math.Atan, "atanh": math.Atanh, "cbrt": math.Cbrt, "cos": math.Cos,
		"cosh": math.Cosh, "exp": math.Exp, "expm1": math.Expm1, "log": math.Log,
		"log2": math.Log2, "log10": math.Log10, "log1p": math.Log1p, "sin": math.Sin,
		"sinh": math.Sinh, "sqrt": math.Sqrt, "tan": math.Tan, "tanh": math.Tanh,
	}
	math2Fns := map[string]func(float64, float64) float64{
		"remainder": math.Remainder, "atan2": math.Atan2, "hypot": math.Hypot, "pow": math.Pow,
	}
	b := rt.NewHostModuleBuilder("Math")
	for name, fn := range mathFns {
		fn := fn
		b = b.NewFunctionBuilder().WithFunc(func(ctx context.Context, v float64) float64 { return fn(v) }).Export(name)
	}
	for name, fn := range math2Fns {
		fn := fn
		b = b.NewFunctionBuilder().WithFunc(func(ctx context.Context, l, r float64) float64 { return fn(l, r) }).Export(name)
	}
	if _, err := b.Instantiate(ctx); err != nil {
		return fmt.Errorf("wasmhost: instantiating Math host module: %w", err)
	}
	return nil
}

// writeString writes s into the guest's linear memory at dest,
// growing it by whole pages if needed, and returns the written length
// (or the null pointer sentinel 0 on failure) — matching
// exports.rs's write_linear_memory_bytes/ensure_linear_memory_size.
func writeString(mod api.Module, dest uint32, s string) uint32 {
	if !WriteBytes(mod.Memory(), dest, []byte(s)) {
		return 0
	}
	return uint32(len(s))
}

func formatNumber(v float64) string {
	if v == math.Trunc(v) && !math.IsInf(v, 0) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%g", v)
}
