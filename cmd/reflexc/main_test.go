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
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reflexcore/reflexcore/arena"
	"github.com/reflexcore/reflexcore/term"
	"github.com/reflexcore/reflexcore/wasmgen"
)

// stubRuntimeModule builds a minimal WASM binary exporting a one-page
// memory plus zero-import stand-ins for the runtime builtins named, so
// Generate can resolve them by name without needing a real
// runtime-library module on disk.
func stubRuntimeModule(t *testing.T, builtins ...string) []byte {
	t.Helper()
	m := &wasmgen.Module{Memories: []wasmgen.Limits{{Min: 1}}}
	sig := wasmgen.FuncType{Params: []wasmgen.ValType{wasmgen.ValI32}, Results: []wasmgen.ValType{wasmgen.ValI32}}
	body := wasmgen.NoOpBody(sig)
	for _, name := range builtins {
		idx := m.AddFunction(sig, body)
		m.Export(name, wasmgen.KindFunc, idx)
	}
	m.Export("memory", wasmgen.KindMemory, 0)
	return m.Encode()
}

func TestCompileQueryLowersIntConstant(t *testing.T) {
	src := arena.New(arena.NewHeapBacking())
	f := term.NewFactory(src)
	root := f.CreateInt(7)

	runtimeModule := stubRuntimeModule(t, "IsSignal")
	out, err := compileQuery(src, root, runtimeModule, compileOptions(false, false), "run")
	require.NoError(t, err)

	m, err := wasmgen.Decode(out)
	require.NoError(t, err)
	_, ok := m.FuncIndex("run")
	require.True(t, ok)
	require.NotEmpty(t, m.DataSegments)
}

func TestCompileQueryMissingRuntimeBuiltinErrors(t *testing.T) {
	src := arena.New(arena.NewHeapBacking())
	f := term.NewFactory(src)
	root := f.CreateInt(7)

	runtimeModule := stubRuntimeModule(t) // no IsSignal export
	_, err := compileQuery(src, root, runtimeModule, compileOptions(false, false), "run")
	require.Error(t, err)
}

func TestEncodeThenLoadQueryArenaRoundTrips(t *testing.T) {
	src := arena.New(arena.NewHeapBacking())
	f := term.NewFactory(src)
	root := f.CreateInt(99)

	dump := encodeQuery(src, root)
	path := t.TempDir() + "/query.bin"
	require.NoError(t, os.WriteFile(path, dump, 0o644))

	loaded, loadedRoot, err := loadQueryArena(path)
	require.NoError(t, err)
	require.Equal(t, root, loadedRoot)
	require.Equal(t, int32(99), term.IntValue(loaded, loadedRoot))
}
