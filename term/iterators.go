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

// This file implements the lazy-sequence term kinds: Empty, Range,
// Repeat, Once, Take, Skip, Map, Filter, Flatten, Zip,
// HashmapKeys, HashmapValues, Evaluate, IndexedAccessor and Integers.
// Each is a thin, content-addressed description of a sequence
// transform; the eval package supplies the actual stepping semantics.

// --- Empty: the zero-length sequence ---

func (f *Factory) CreateEmpty() arena.Pointer {
	h := newHasher(KindEmpty)
	return f.intern(KindEmpty, h.sum(), func() arena.Pointer {
		return f.Arena.Allocate(HeaderSize)
	})
}

// --- Integers: the unbounded sequence 0, 1, 2, ... ---

func (f *Factory) CreateIntegers() arena.Pointer {
	h := newHasher(KindIntegers)
	return f.intern(KindIntegers, h.sum(), func() arena.Pointer {
		return f.Arena.Allocate(HeaderSize)
	})
}

// --- Range: start (inclusive), end (exclusive), step ---

func (f *Factory) CreateRange(start, end, step int32) arena.Pointer {
	h := newHasher(KindRange)
	h.writeI32(start)
	h.writeI32(end)
	h.writeI32(step)
	return f.intern(KindRange, h.sum(), func() arena.Pointer {
		p := f.Arena.Allocate(HeaderSize + 12)
		f.Arena.WriteU32(body(p, 0), uint32(start))
		f.Arena.WriteU32(body(p, 4), uint32(end))
		f.Arena.WriteU32(body(p, 8), uint32(step))
		return p
	})
}

func RangeStart(a *arena.Arena, p arena.Pointer) int32 { return a.ReadI32(body(p, 0)) }
func RangeEnd(a *arena.Arena, p arena.Pointer) int32   { return a.ReadI32(body(p, 4)) }
func RangeStep(a *arena.Arena, p arena.Pointer) int32  { return a.ReadI32(body(p, 8)) }

// --- Repeat: an infinite sequence of the same item ---

func (f *Factory) CreateRepeat(item arena.Pointer) arena.Pointer {
	h := newHasher(KindRepeat)
	h.writePointer(f.Arena, item)
	return f.intern(KindRepeat, h.sum(), func() arena.Pointer {
		p := f.Arena.Allocate(HeaderSize + 4)
		f.Arena.WriteU32(body(p, 0), uint32(item))
		return p
	})
}

func RepeatItem(a *arena.Arena, p arena.Pointer) arena.Pointer {
	return arena.Pointer(a.ReadU32(body(p, 0)))
}

// --- Once: a single-item sequence ---

func (f *Factory) CreateOnce(item arena.Pointer) arena.Pointer {
	h := newHasher(KindOnce)
	h.writePointer(f.Arena, item)
	return f.intern(KindOnce, h.sum(), func() arena.Pointer {
		p := f.Arena.Allocate(HeaderSize + 4)
		f.Arena.WriteU32(body(p, 0), uint32(item))
		return p
	})
}

func OnceItem(a *arena.Arena, p arena.Pointer) arena.Pointer {
	return arena.Pointer(a.ReadU32(body(p, 0)))
}

// --- Take / Skip: count + source sequence ---

func (f *Factory) CreateTake(count uint32, source arena.Pointer) arena.Pointer {
	return f.createCountedSeq(KindTake, count, source)
}

func (f *Factory) CreateSkip(count uint32, source arena.Pointer) arena.Pointer {
	return f.createCountedSeq(KindSkip, count, source)
}

func (f *Factory) createCountedSeq(k Kind, count uint32, source arena.Pointer) arena.Pointer {
	h := newHasher(k)
	h.writeU32(count)
	h.writePointer(f.Arena, source)
	return f.intern(k, h.sum(), func() arena.Pointer {
		p := f.Arena.Allocate(HeaderSize + 8)
		f.Arena.WriteU32(body(p, 0), count)
		f.Arena.WriteU32(body(p, 4), uint32(source))
		return p
	})
}

func CountedSeqCount(a *arena.Arena, p arena.Pointer) uint32 {
	return a.ReadU32(body(p, 0))
}

func CountedSeqSource(a *arena.Arena, p arena.Pointer) arena.Pointer {
	return arena.Pointer(a.ReadU32(body(p, 4)))
}

// --- Map / Filter: function + source sequence ---

func (f *Factory) CreateMap(fn, source arena.Pointer) arena.Pointer {
	return f.createFnSeq(KindMap, fn, source)
}

func (f *Factory) CreateFilter(predicate, source arena.Pointer) arena.Pointer {
	return f.createFnSeq(KindFilter, predicate, source)
}

func (f *Factory) createFnSeq(k Kind, fn, source arena.Pointer) arena.Pointer {
	h := newHasher(k)
	h.writePointer(f.Arena, fn)
	h.writePointer(f.Arena, source)
	return f.intern(k, h.sum(), func() arena.Pointer {
		p := f.Arena.Allocate(HeaderSize + 8)
		f.Arena.WriteU32(body(p, 0), uint32(fn))
		f.Arena.WriteU32(body(p, 4), uint32(source))
		return p
	})
}

func FnSeqFunc(a *arena.Arena, p arena.Pointer) arena.Pointer {
	return arena.Pointer(a.ReadU32(body(p, 0)))
}

func FnSeqSource(a *arena.Arena, p arena.Pointer) arena.Pointer {
	return arena.Pointer(a.ReadU32(body(p, 4)))
}

// --- Flatten: a sequence of sequences, one level removed ---

func (f *Factory) CreateFlatten(source arena.Pointer) arena.Pointer {
	h := newHasher(KindFlatten)
	h.writePointer(f.Arena, source)
	return f.intern(KindFlatten, h.sum(), func() arena.Pointer {
		p := f.Arena.Allocate(HeaderSize + 4)
		f.Arena.WriteU32(body(p, 0), uint32(source))
		return p
	})
}

func FlattenSource(a *arena.Arena, p arena.Pointer) arena.Pointer {
	return arena.Pointer(a.ReadU32(body(p, 0)))
}

// --- Zip: pairs elements of two sequences, stopping at the shorter ---

func (f *Factory) CreateZip(a, b arena.Pointer) arena.Pointer {
	h := newHasher(KindZip)
	h.writePointer(f.Arena, a)
	h.writePointer(f.Arena, b)
	return f.intern(KindZip, h.sum(), func() arena.Pointer {
		p := f.Arena.Allocate(HeaderSize + 8)
		f.Arena.WriteU32(body(p, 0), uint32(a))
		f.Arena.WriteU32(body(p, 4), uint32(b))
		return p
	})
}

func ZipLeft(a *arena.Arena, p arena.Pointer) arena.Pointer {
	return arena.Pointer(a.ReadU32(body(p, 0)))
}

func ZipRight(a *arena.Arena, p arena.Pointer) arena.Pointer {
	return arena.Pointer(a.ReadU32(body(p, 4)))
}

// --- HashmapKeys / HashmapValues: a sequence view over a Hashmap ---

func (f *Factory) CreateHashmapKeys(hm arena.Pointer) arena.Pointer {
	return f.createHashmapView(KindHashmapKeys, hm)
}

func (f *Factory) CreateHashmapValues(hm arena.Pointer) arena.Pointer {
	return f.createHashmapView(KindHashmapValues, hm)
}

func (f *Factory) createHashmapView(k Kind, hm arena.Pointer) arena.Pointer {
	h := newHasher(k)
	h.writePointer(f.Arena, hm)
	return f.intern(k, h.sum(), func() arena.Pointer {
		p := f.Arena.Allocate(HeaderSize + 4)
		f.Arena.WriteU32(body(p, 0), uint32(hm))
		return p
	})
}

func HashmapViewSource(a *arena.Arena, p arena.Pointer) arena.Pointer {
	return arena.Pointer(a.ReadU32(body(p, 0)))
}

// --- Evaluate: forces its inner term, surfacing any Signal unchanged ---

func (f *Factory) CreateEvaluate(inner arena.Pointer) arena.Pointer {
	h := newHasher(KindEvaluate)
	h.writePointer(f.Arena, inner)
	return f.intern(KindEvaluate, h.sum(), func() arena.Pointer {
		p := f.Arena.Allocate(HeaderSize + 4)
		f.Arena.WriteU32(body(p, 0), uint32(inner))
		return p
	})
}

func EvaluateInner(a *arena.Arena, p arena.Pointer) arena.Pointer {
	return arena.Pointer(a.ReadU32(body(p, 0)))
}

// --- IndexedAccessor: the i-th element of a source sequence, by position ---

func (f *Factory) CreateIndexedAccessor(source arena.Pointer, index uint32) arena.Pointer {
	h := newHasher(KindIndexedAccessor)
	h.writePointer(f.Arena, source)
	h.writeU32(index)
	return f.intern(KindIndexedAccessor, h.sum(), func() arena.Pointer {
		p := f.Arena.Allocate(HeaderSize + 8)
		f.Arena.WriteU32(body(p, 0), uint32(source))
		f.Arena.WriteU32(body(p, 4), index)
		return p
	})
}

func IndexedAccessorSource(a *arena.Arena, p arena.Pointer) arena.Pointer {
	return arena.Pointer(a.ReadU32(body(p, 0)))
}

func IndexedAccessorIndex(a *arena.Arena, p arena.Pointer) uint32 {
	return a.ReadU32(body(p, 4))
}
