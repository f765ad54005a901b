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

package term

import (
	"encoding/binary"
	"hash/fnv"
	"math"

	"github.com/reflexcore/reflexcore/arena"
)

// hasher folds a term's tag byte and structurally-meaningful fields
// into an FNV-1a stream: a term's stored hash equals the FNV-1a stream
// of (tag-byte, body-bytes with inner pointers resolved to the
// referenced term's hash). hash/fnv is used because FNV-1a is a
// load-bearing invariant here, not a style choice (see DESIGN.md).
type hasher struct {
	h   hash64
	tmp [8]byte
}

// hash64 is the subset of hash.Hash64 the hasher needs.
type hash64 interface {
	Write(p []byte) (int, error)
	Sum64() uint64
}

func newHasher(k Kind) *hasher {
	h := &hasher{h: fnv.New64a()}
	h.writeByte(byte(k))
	return h
}

func (h *hasher) writeByte(b byte) {
	h.tmp[0] = b
	h.h.Write(h.tmp[:1])
}

func (h *hasher) writeBytes(b []byte) {
	h.h.Write(b)
}

func (h *hasher) writeU32(v uint32) {
	binary.LittleEndian.PutUint32(h.tmp[:4], v)
	h.h.Write(h.tmp[:4])
}

func (h *hasher) writeU64(v uint64) {
	binary.LittleEndian.PutUint64(h.tmp[:8], v)
	h.h.Write(h.tmp[:8])
}

func (h *hasher) writeI32(v int32)   { h.writeU32(uint32(v)) }
func (h *hasher) writeI64(v int64)   { h.writeU64(uint64(v)) }
func (h *hasher) writeF64(v float64) { h.writeU64(math.Float64bits(v)) }

// writePointer resolves an inner pointer to the referent's cached hash
// (or all-zero for Null) before folding it in, so hashes are
// transport-independent.
func (h *hasher) writePointer(a *arena.Arena, p arena.Pointer) {
	if !p.Valid() {
		h.writeU64(0)
		return
	}
	h.writeU64(Hash(a, p))
}

func (h *hasher) sum() uint64 { return h.h.Sum64() }
