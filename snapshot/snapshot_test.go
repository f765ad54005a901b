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

package snapshot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reflexcore/reflexcore/wasmgen"
)

// bootstrapModule builds a minimal one-page runtime module whose
// _initialize function mutates an exported global and writes a byte
// into linear memory, so Capture has something real to diff and bake.
func bootstrapModule(t *testing.T) []byte {
	t.Helper()
	m := &wasmgen.Module{}
	m.Memories = []wasmgen.Limits{{Min: 1}}
	m.Globals = []wasmgen.Global{{
		Type:    wasmgen.ValI32,
		Mutable: true,
		Init:    []byte{0x41, 0x00, 0x0B}, // i32.const 0; end
	}}
	body := []byte{
		0x00,             // no locals
		0x41, 0x2A,       // i32.const 42
		0x24, 0x00,       // global.set 0
		0x41, 0x00,       // i32.const 0  (store address)
		0x41, 0x07,       // i32.const 7  (store value)
		0x36, 0x02, 0x00, // i32.store align=2 offset=0
		0x0B, // end
	}
	idx := m.AddFunction(wasmgen.FuncType{}, body)
	m.Export("_initialize", wasmgen.KindFunc, idx)
	m.Export("memory", wasmgen.KindMemory, 0)
	m.Export("counter", wasmgen.KindGlobal, 0)
	return m.Encode()
}

// dataSegmentContent decodes one MVP active data segment (kind 0,
// memory 0 implied, a single-instruction i32.const offset expression)
// and returns its content bytes, for assertions that don't want to
// depend on wasmgen's own encode/decode round trip.
func dataSegmentContent(t *testing.T, seg []byte) []byte {
	t.Helper()
	require.Equal(t, byte(0x00), seg[0], "segment kind")
	require.Equal(t, byte(0x41), seg[1], "offset expr opcode")
	i := 2
	for seg[i]&0x80 != 0 {
		i++
	}
	i++ // last offset-varint byte
	require.Equal(t, byte(0x0B), seg[i], "offset expr end")
	i++
	length := 0
	shift := 0
	for {
		b := seg[i]
		i++
		length |= int(b&0x7F) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
	}
	return seg[i : i+length]
}

func TestCaptureInlinesTheMutatedGlobal(t *testing.T) {
	out, err := Capture(context.Background(), bootstrapModule(t))
	require.NoError(t, err)

	got, err := wasmgen.Decode(out)
	require.NoError(t, err)

	require.Len(t, got.Globals, 1)
	require.False(t, got.Globals[0].Mutable, "mutated global must be inlined as an immutable constant")
	require.Equal(t, []byte{0x41, 0x2A, 0x0B}, got.Globals[0].Init, "must bake in the post-init value (42)")
}

func TestCaptureBakesThePostInitHeapIntoData(t *testing.T) {
	out, err := Capture(context.Background(), bootstrapModule(t))
	require.NoError(t, err)

	got, err := wasmgen.Decode(out)
	require.NoError(t, err)

	require.Len(t, got.DataSegments, 1)
	content := dataSegmentContent(t, got.DataSegments[0])
	require.Len(t, content, 1<<16)
	require.Equal(t, byte(7), content[0], "the byte _initialize stored at address 0")
}

func TestCaptureClearsInitializeBody(t *testing.T) {
	out, err := Capture(context.Background(), bootstrapModule(t))
	require.NoError(t, err)

	got, err := wasmgen.Decode(out)
	require.NoError(t, err)

	idx, ok := got.FuncIndex("_initialize")
	require.True(t, ok)
	sig, err := got.FuncSignature(idx)
	require.NoError(t, err)
	require.Equal(t, wasmgen.NoOpBody(sig), got.Functions[idx].Body)
}

func TestCaptureIsIdempotent(t *testing.T) {
	once, err := Capture(context.Background(), bootstrapModule(t))
	require.NoError(t, err)

	twice, err := Capture(context.Background(), once)
	require.NoError(t, err)

	first, err := wasmgen.Decode(once)
	require.NoError(t, err)
	second, err := wasmgen.Decode(twice)
	require.NoError(t, err)

	require.Equal(t, first.Globals, second.Globals)
	require.Equal(t, first.DataSegments, second.DataSegments)
	require.Equal(t, first.Functions, second.Functions)
}
