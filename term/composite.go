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

// --- List: length + inline pointer array ---

func (f *Factory) CreateList(items []arena.Pointer) arena.Pointer {
	h := newHasher(KindList)
	h.writeU32(uint32(len(items)))
	for _, it := range items {
		h.writePointer(f.Arena, it)
	}
	return f.intern(KindList, h.sum(), func() arena.Pointer {
		p := f.Arena.Allocate(HeaderSize + 4 + 4*len(items))
		f.Arena.WriteU32(body(p, 0), uint32(len(items)))
		for i, it := range items {
			f.Arena.WriteU32(body(p, 4+4*i), uint32(it))
		}
		return p
	})
}

// ListLen returns the number of items in a List term.
func ListLen(a *arena.Arena, p arena.Pointer) int {
	return int(a.ReadU32(body(p, 0)))
}

// ListItem returns the i-th item pointer of a List term.
func ListItem(a *arena.Arena, p arena.Pointer, i int) arena.Pointer {
	return arena.Pointer(a.ReadU32(body(p, 4+4*i)))
}

// ListItems materializes all item pointers of a List term.
func ListItems(a *arena.Arena, p arena.Pointer) []arena.Pointer {
	n := ListLen(a, p)
	out := make([]arena.Pointer, n)
	for i := range out {
		out[i] = ListItem(a, p, i)
	}
	return out
}

func listSize(a *arena.Arena, p arena.Pointer) int {
	return HeaderSize + 4 + 4*ListLen(a, p)
}

func listPointerIter(a *arena.Arena, p arena.Pointer, yield func(arena.Pointer) bool) {
	n := ListLen(a, p)
	for i := 0; i < n; i++ {
		if !yield(ListItem(a, p, i)) {
			return
		}
	}
}

// --- Record: keys-List pointer + values-List pointer ---

func (f *Factory) CreateRecord(keys, values arena.Pointer) arena.Pointer {
	h := newHasher(KindRecord)
	h.writePointer(f.Arena, keys)
	h.writePointer(f.Arena, values)
	return f.intern(KindRecord, h.sum(), func() arena.Pointer {
		p := f.Arena.Allocate(HeaderSize + 8)
		f.Arena.WriteU32(body(p, 0), uint32(keys))
		f.Arena.WriteU32(body(p, 4), uint32(values))
		return p
	})
}

func RecordKeys(a *arena.Arena, p arena.Pointer) arena.Pointer {
	return arena.Pointer(a.ReadU32(body(p, 0)))
}

func RecordValues(a *arena.Arena, p arena.Pointer) arena.Pointer {
	return arena.Pointer(a.ReadU32(body(p, 4)))
}

// --- LazyRecord: keys-List + values-List + per-field eagerness ---
//
// Supplemented from original_source/reflex-lang/src/term/lazy_record.rs.
// eagerness[i] is an ArgType tag for values[i].

func (f *Factory) CreateLazyRecord(keys, values arena.Pointer, eagerness []ArgType) arena.Pointer {
	h := newHasher(KindLazyRecord)
	h.writePointer(f.Arena, keys)
	h.writePointer(f.Arena, values)
	h.writeU32(uint32(len(eagerness)))
	for _, e := range eagerness {
		h.writeByte(byte(e))
	}
	return f.intern(KindLazyRecord, h.sum(), func() arena.Pointer {
		p := f.Arena.Allocate(HeaderSize + 8 + 4 + len(eagerness))
		f.Arena.WriteU32(body(p, 0), uint32(keys))
		f.Arena.WriteU32(body(p, 4), uint32(values))
		f.Arena.WriteU32(body(p, 8), uint32(len(eagerness)))
		for i, e := range eagerness {
			f.Arena.WriteBytes(body(p, 12+i), []byte{byte(e)})
		}
		return p
	})
}

func LazyRecordKeys(a *arena.Arena, p arena.Pointer) arena.Pointer {
	return arena.Pointer(a.ReadU32(body(p, 0)))
}

func LazyRecordValues(a *arena.Arena, p arena.Pointer) arena.Pointer {
	return arena.Pointer(a.ReadU32(body(p, 4)))
}

func LazyRecordEagerness(a *arena.Arena, p arena.Pointer) []ArgType {
	n := int(a.ReadU32(body(p, 8)))
	out := make([]ArgType, n)
	raw := a.ReadBytes(body(p, 12), n)
	for i, b := range raw {
		out[i] = ArgType(b)
	}
	return out
}

func lazyRecordSize(a *arena.Arena, p arena.Pointer) int {
	n := int(a.ReadU32(body(p, 8)))
	return HeaderSize + 8 + 4 + n
}

// --- Hashmap: open-addressed (key,value) pointer-pair buckets ---
//
// Capacity is fixed at construction to ceil(4*n/3).
// Bucket index is derived from siphash(key-hash) rather than the raw
// FNV content hash directly, following vm/interphash.go's convention
// of re-scrambling a content hash before using it to
// address a bucket table (see DESIGN.md).

func (f *Factory) CreateHashmap(pairs []KVPair) arena.Pointer {
	cap := hashmapCapacity(len(pairs))
	buckets := make([]KVPair, cap)
	for i := range buckets {
		buckets[i] = KVPair{Key: arena.Null, Value: arena.Null}
	}
	for _, kv := range pairs {
		idx := bucketIndex(f.Arena, kv.Key, cap)
		for buckets[idx].Key.Valid() {
			idx = (idx + 1) % cap
		}
		buckets[idx] = kv
	}
	h := newHasher(KindHashmap)
	h.writeU32(uint32(len(pairs)))
	h.writeU32(uint32(cap))
	for _, b := range buckets {
		h.writePointer(f.Arena, b.Key)
		h.writePointer(f.Arena, b.Value)
	}
	return f.intern(KindHashmap, h.sum(), func() arena.Pointer {
		p := f.Arena.Allocate(HeaderSize + 8 + 8*cap)
		f.Arena.WriteU32(body(p, 0), uint32(len(pairs)))
		f.Arena.WriteU32(body(p, 4), uint32(cap))
		for i, b := range buckets {
			f.Arena.WriteU32(body(p, 8+8*i), uint32(b.Key))
			f.Arena.WriteU32(body(p, 8+8*i+4), uint32(b.Value))
		}
		return p
	})
}

// KVPair is a key/value pointer pair used to build a Hashmap.
type KVPair struct {
	Key   arena.Pointer
	Value arena.Pointer
}

func hashmapCapacity(n int) int {
	c := (4*n + 2) / 3 // ceil(4n/3)
	if c < 1 {
		c = 1
	}
	return c
}

func HashmapCount(a *arena.Arena, p arena.Pointer) int {
	return int(a.ReadU32(body(p, 0)))
}

func HashmapCapacity(a *arena.Arena, p arena.Pointer) int {
	return int(a.ReadU32(body(p, 4)))
}

func HashmapBucket(a *arena.Arena, p arena.Pointer, i int) KVPair {
	return KVPair{
		Key:   arena.Pointer(a.ReadU32(body(p, 8+8*i))),
		Value: arena.Pointer(a.ReadU32(body(p, 8+8*i+4))),
	}
}

// HashmapGet resolves key by content-hash equality, linearly probing
// from its bucket index. It returns (Null, false) on a miss.
func HashmapGet(a *arena.Arena, p arena.Pointer, key arena.Pointer) (arena.Pointer, bool) {
	cap := HashmapCapacity(a, p)
	if cap == 0 {
		return arena.Null, false
	}
	keyHash := Hash(a, key)
	idx := int(bucketIndexForHash(keyHash, cap))
	for i := 0; i < cap; i++ {
		b := HashmapBucket(a, p, idx)
		if !b.Key.Valid() {
			return arena.Null, false
		}
		if Hash(a, b.Key) == keyHash {
			return b.Value, true
		}
		idx = (idx + 1) % cap
	}
	return arena.Null, false
}

func hashmapSize(a *arena.Arena, p arena.Pointer) int {
	return HeaderSize + 8 + 8*HashmapCapacity(a, p)
}

func hashmapPointerIter(a *arena.Arena, p arena.Pointer, yield func(arena.Pointer) bool) {
	cap := HashmapCapacity(a, p)
	for i := 0; i < cap; i++ {
		b := HashmapBucket(a, p, i)
		if !b.Key.Valid() {
			continue
		}
		if !yield(b.Key) || !yield(b.Value) {
			return
		}
	}
}

// --- Hashset: same bucket scheme, keys only ---

func (f *Factory) CreateHashset(keys []arena.Pointer) arena.Pointer {
	cap := hashmapCapacity(len(keys))
	buckets := make([]arena.Pointer, cap)
	for i := range buckets {
		buckets[i] = arena.Null
	}
	for _, k := range keys {
		idx := bucketIndex(f.Arena, k, cap)
		for buckets[idx].Valid() {
			idx = (idx + 1) % cap
		}
		buckets[idx] = k
	}
	h := newHasher(KindHashset)
	h.writeU32(uint32(len(keys)))
	h.writeU32(uint32(cap))
	for _, k := range buckets {
		h.writePointer(f.Arena, k)
	}
	return f.intern(KindHashset, h.sum(), func() arena.Pointer {
		p := f.Arena.Allocate(HeaderSize + 8 + 4*cap)
		f.Arena.WriteU32(body(p, 0), uint32(len(keys)))
		f.Arena.WriteU32(body(p, 4), uint32(cap))
		for i, k := range buckets {
			f.Arena.WriteU32(body(p, 8+4*i), uint32(k))
		}
		return p
	})
}

func HashsetCount(a *arena.Arena, p arena.Pointer) int {
	return int(a.ReadU32(body(p, 0)))
}

func HashsetCapacity(a *arena.Arena, p arena.Pointer) int {
	return int(a.ReadU32(body(p, 4)))
}

func HashsetBucket(a *arena.Arena, p arena.Pointer, i int) arena.Pointer {
	return arena.Pointer(a.ReadU32(body(p, 8+4*i)))
}

// HashsetContains reports whether key (by content hash) is a member.
func HashsetContains(a *arena.Arena, p arena.Pointer, key arena.Pointer) bool {
	cap := HashsetCapacity(a, p)
	if cap == 0 {
		return false
	}
	keyHash := Hash(a, key)
	idx := int(bucketIndexForHash(keyHash, cap))
	for i := 0; i < cap; i++ {
		k := HashsetBucket(a, p, idx)
		if !k.Valid() {
			return false
		}
		if Hash(a, k) == keyHash {
			return true
		}
		idx = (idx + 1) % cap
	}
	return false
}

func hashsetSize(a *arena.Arena, p arena.Pointer) int {
	return HeaderSize + 8 + 4*HashsetCapacity(a, p)
}

func hashsetPointerIter(a *arena.Arena, p arena.Pointer, yield func(arena.Pointer) bool) {
	cap := HashsetCapacity(a, p)
	for i := 0; i < cap; i++ {
		k := HashsetBucket(a, p, i)
		if k.Valid() && !yield(k) {
			return
		}
	}
}

// --- Tree: balanced binary tree of signal conditions, canonical union ---
//
// A leaf has left == right == Null and Value pointing at a Condition.
// Signal-lists are built by CreateTree in canonical (sorted-by-hash)
// order, deduplicated by condition hash.

func (f *Factory) CreateTree(left, value, right arena.Pointer) arena.Pointer {
	h := newHasher(KindTree)
	h.writePointer(f.Arena, left)
	h.writePointer(f.Arena, value)
	h.writePointer(f.Arena, right)
	return f.intern(KindTree, h.sum(), func() arena.Pointer {
		p := f.Arena.Allocate(HeaderSize + 12)
		f.Arena.WriteU32(body(p, 0), uint32(left))
		f.Arena.WriteU32(body(p, 4), uint32(value))
		f.Arena.WriteU32(body(p, 8), uint32(right))
		return p
	})
}

func TreeLeft(a *arena.Arena, p arena.Pointer) arena.Pointer {
	return arena.Pointer(a.ReadU32(body(p, 0)))
}
func TreeValue(a *arena.Arena, p arena.Pointer) arena.Pointer {
	return arena.Pointer(a.ReadU32(body(p, 4)))
}
func TreeRight(a *arena.Arena, p arena.Pointer) arena.Pointer {
	return arena.Pointer(a.ReadU32(body(p, 8)))
}

func treePointerIter(a *arena.Arena, p arena.Pointer, yield func(arena.Pointer) bool) {
	for _, c := range [...]arena.Pointer{TreeLeft(a, p), TreeValue(a, p), TreeRight(a, p)} {
		if c.Valid() && !yield(c) {
			return
		}
	}
}
