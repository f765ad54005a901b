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

package wasmgen

// LEB128 varint helpers for the WASM binary format. No third-party
// library in the retrieval pack implements WASM's variable-length
// integer encoding (see DESIGN.md); this mirrors the ion package's own
// preference for a hand-rolled binary codec over a serialization
// library (ion/write.go varints its own field tags by hand).

func appendUvarint(buf []byte, v uint64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			buf = append(buf, b|0x80)
		} else {
			buf = append(buf, b)
			return buf
		}
	}
}

func appendVarint(buf []byte, v int64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			buf = append(buf, b)
			return buf
		}
		buf = append(buf, b|0x80)
	}
}

func readUvarint(buf []byte) (uint64, int) {
	var result uint64
	var shift uint
	for i, b := range buf {
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, i + 1
		}
		shift += 7
	}
	return 0, 0
}

func readVarint(buf []byte) (int64, int) {
	var result int64
	var shift uint
	var i int
	var b byte
	for i, b = range buf {
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	if shift < 64 && b&0x40 != 0 {
		result |= -1 << shift
	}
	return result, i + 1
}

// vec prefixes payload with its element count as a uvarint, the WASM
// "vec(B)" combinator used throughout section encoding.
func vec(count int, payload []byte) []byte {
	out := appendUvarint(nil, uint64(count))
	return append(out, payload...)
}

// withLenPrefix prefixes payload with its own byte length, the shape
// every section and every function body uses.
func withLenPrefix(payload []byte) []byte {
	out := appendUvarint(nil, uint64(len(payload)))
	return append(out, payload...)
}
