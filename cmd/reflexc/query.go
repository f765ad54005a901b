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
	"encoding/binary"
	"fmt"
	"os"

	"github.com/reflexcore/reflexcore/arena"
	"github.com/reflexcore/reflexcore/wasmgen"
)

// A query dump is a 4-byte little-endian root pointer followed by the
// raw bytes of the arena it roots into. There is no parser front-end
// in scope, so this is the only "source" format a query ever arrives
// in: something upstream (a test, or a future language front-end)
// built the term graph programmatically and dumped it with
// encodeQuery.
func encodeQuery(a *arena.Arena, root arena.Pointer) []byte {
	out := make([]byte, 4+len(a.Bytes()))
	binary.LittleEndian.PutUint32(out[:4], uint32(root))
	copy(out[4:], a.Bytes())
	return out
}

func loadQueryArena(path string) (*arena.Arena, arena.Pointer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, arena.Null, err
	}
	if len(raw) < 4 {
		return nil, arena.Null, fmt.Errorf("query dump too short: %d bytes", len(raw))
	}
	root := arena.Pointer(binary.LittleEndian.Uint32(raw[:4]))
	body := raw[4:]
	a := arena.NewAt(&arena.MemoryBacking{Mem: body}, arena.Pointer(len(body)))
	return a, root, nil
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
