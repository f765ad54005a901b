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

package wasmhost

import "github.com/tetratelabs/wazero/api"

// WriteBytes writes data into mem at dest, growing it by whole pages
// first if needed, mirroring exports.rs's write_linear_memory_bytes /
// ensure_linear_memory_size. Used by package snapshot and package
// worker whenever host Go code needs to push bytes into guest linear
// memory, not just the Date/Number formatting imports above.
func WriteBytes(mem api.Memory, dest uint32, data []byte) bool {
	const pageSize = 1 << 16
	need := dest + uint32(len(data))
	if need > mem.Size() {
		growPages := (uint64(need-mem.Size()) + pageSize - 1) / pageSize
		if _, ok := mem.Grow(uint32(growPages)); !ok {
			return false
		}
	}
	return mem.Write(dest, data)
}
