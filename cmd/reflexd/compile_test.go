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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reflexcore/reflexcore/arena"
	"github.com/reflexcore/reflexcore/term"
	"github.com/reflexcore/reflexcore/wasmgen"
)

// stubRuntimeModule builds a minimal WASM binary exporting a one-page
// memory plus zero-import stand-ins for the runtime builtins named, the
// cmd/reflexd-local twin of cmd/reflexc/main_test.go's helper of the
// same shape (the two binaries share no package main code).
func stubRuntimeModule(t *testing.T, builtins ...string) []byte {
	t.Helper()
	m := &wasmgen.Module{Memories: []wasmgen.Limits{{Min: 1}}}
	sig := wasmgen.FuncType{Params: []wasmgen.ValType{wasmgen.ValI32}, Results: []wasmgen.ValType{wasmgen.ValI32}}
	body := wasmgen.NoOpBody(sig)
	for _, name := range builtins {
		idx := m.AddFunction(sig, body)
		m.Export(name, wasmgen.KindFunc, idx)
	}

	initSig := wasmgen.FuncType{}
	initIdx := m.AddFunction(initSig, wasmgen.NoOpBody(initSig))
	m.Export("_initialize", wasmgen.KindFunc, initIdx)
	m.Export("memory", wasmgen.KindMemory, 0)
	return m.Encode()
}

func TestQueryCompilerBuildCompilesAndInstantiates(t *testing.T) {
	ctx := context.Background()
	runtimeModule := stubRuntimeModule(t, "IsSignal")

	qc, err := newQueryCompiler(runtimeModule, nil)
	require.NoError(t, err)

	src := arena.New(arena.NewHeapBacking())
	f := term.NewFactory(src)
	root := f.CreateInt(41)

	w, err := qc.Build(ctx, 1, root, src)
	require.NoError(t, err)
	defer w.Drop(ctx)

	result, _, err := w.Execute(ctx, nil)
	require.NoError(t, err)
	require.True(t, result.Valid())
}

func TestQueryCompilerBuildErrorsOnMissingBuiltin(t *testing.T) {
	ctx := context.Background()
	runtimeModule := stubRuntimeModule(t) // no IsSignal export

	qc, err := newQueryCompiler(runtimeModule, nil)
	require.NoError(t, err)

	src := arena.New(arena.NewHeapBacking())
	f := term.NewFactory(src)
	root := f.CreateInt(41)

	_, err = qc.Build(ctx, 1, root, src)
	require.Error(t, err)
}

func TestLoadQueryArenaRoundTripsEncodedQuery(t *testing.T) {
	src := arena.New(arena.NewHeapBacking())
	f := term.NewFactory(src)
	root := f.CreateInt(99)

	dump := make([]byte, 4+len(src.Bytes()))
	dump[0] = byte(root)
	dump[1] = byte(root >> 8)
	dump[2] = byte(root >> 16)
	dump[3] = byte(root >> 24)
	copy(dump[4:], src.Bytes())

	loaded, loadedRoot, err := loadQueryArena(dump)
	require.NoError(t, err)
	require.Equal(t, root, loadedRoot)
	require.Equal(t, int32(99), term.IntValue(loaded, loadedRoot))
}
