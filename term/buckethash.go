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

	"github.com/dchest/siphash"

	"github.com/reflexcore/reflexcore/arena"
)

// bucketKey0 and bucketKey1 are a fixed, process-wide SipHash key.
// Re-scrambling the FNV content hash through SipHash before folding it
// down to a bucket index (rather than using the content hash's low
// bits directly) avoids clustering when many keys share FNV low bits,
// the same rationale vm/interphash.go applies when re-hashing a
// column's content hash before indexing a bucket table.
const (
	bucketKey0 uint64 = 0x5bd1e9955bd1e995
	bucketKey1 uint64 = 0xc6a4a7935bd1e995
)

// bucketIndex computes the home bucket for key within a table of the
// given capacity.
func bucketIndex(a *arena.Arena, key arena.Pointer, capacity int) int {
	return int(bucketIndexForHash(Hash(a, key), capacity))
}

// bucketIndexForHash computes a bucket index directly from an
// already-known content hash, avoiding a redundant header read when
// the caller (e.g. HashmapGet) has already computed it.
func bucketIndexForHash(contentHash uint64, capacity int) uint64 {
	if capacity <= 0 {
		return 0
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], contentHash)
	scrambled := siphash.Hash(bucketKey0, bucketKey1, buf[:])
	return scrambled % uint64(capacity)
}
