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

import "github.com/reflexcore/reflexcore/arena"

// Every term record begins with a fixed 12-byte header:
//
//	offset 0..8  hash  (u64, FNV-1a of the structural contents)
//	offset 8     tag   (u8, Kind)
//	offset 9..12 pad   (reserved, always zero)
//
// Body fields follow starting at HeaderSize.
const HeaderSize = 12

// Hash reads the cached structural hash stored in a term's header.
func Hash(a *arena.Arena, p arena.Pointer) uint64 {
	return a.ReadU64(p)
}

func writeHash(a *arena.Arena, p arena.Pointer, h uint64) {
	a.WriteU64(p, h)
}

// KindOf reads the tag byte stored in a term's header.
func KindOf(a *arena.Arena, p arena.Pointer) Kind {
	return Kind(a.ReadU8(p + 8))
}

func writeKind(a *arena.Arena, p arena.Pointer, k Kind) {
	a.WriteU8(p+8, uint8(k))
}

// body returns the offset of the field at the given byte index within
// a term's body (i.e. HeaderSize+idx).
func body(p arena.Pointer, idx int) arena.Pointer {
	return p + arena.Pointer(HeaderSize+idx)
}
