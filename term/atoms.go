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
	"math"

	"github.com/reflexcore/reflexcore/arena"
)

// --- Nil ---

func (f *Factory) CreateNil() arena.Pointer {
	h := newHasher(KindNil)
	return f.intern(KindNil, h.sum(), func() arena.Pointer {
		return f.Arena.Allocate(HeaderSize)
	})
}

// --- Boolean ---

func (f *Factory) CreateBoolean(v bool) arena.Pointer {
	h := newHasher(KindBoolean)
	var b uint32
	if v {
		b = 1
	}
	h.writeU32(b)
	return f.intern(KindBoolean, h.sum(), func() arena.Pointer {
		p := f.Arena.Allocate(HeaderSize + 4)
		f.Arena.WriteU32(body(p, 0), b)
		return p
	})
}

// BooleanValue reads the payload of a Boolean term.
func BooleanValue(a *arena.Arena, p arena.Pointer) bool {
	return a.ReadU32(body(p, 0)) != 0
}

// --- Int ---

func (f *Factory) CreateInt(v int32) arena.Pointer {
	h := newHasher(KindInt)
	h.writeI32(v)
	return f.intern(KindInt, h.sum(), func() arena.Pointer {
		p := f.Arena.Allocate(HeaderSize + 4)
		f.Arena.WriteU32(body(p, 0), uint32(v))
		return p
	})
}

// IntValue reads the payload of an Int term.
func IntValue(a *arena.Arena, p arena.Pointer) int32 {
	return a.ReadI32(body(p, 0))
}

// --- Float ---

func (f *Factory) CreateFloat(v float64) arena.Pointer {
	h := newHasher(KindFloat)
	h.writeF64(v)
	return f.intern(KindFloat, h.sum(), func() arena.Pointer {
		p := f.Arena.Allocate(HeaderSize + 8)
		f.Arena.WriteU64(body(p, 0), math.Float64bits(v))
		return p
	})
}

// FloatValue reads the payload of a Float term.
func FloatValue(a *arena.Arena, p arena.Pointer) float64 {
	return math.Float64frombits(a.ReadU64(body(p, 0)))
}

// --- String ---

func (f *Factory) CreateString(s string) arena.Pointer {
	h := newHasher(KindString)
	h.writeU32(uint32(len(s)))
	h.writeBytes([]byte(s))
	return f.intern(KindString, h.sum(), func() arena.Pointer {
		p := f.Arena.Allocate(HeaderSize + 4 + len(s))
		f.Arena.WriteU32(body(p, 0), uint32(len(s)))
		f.Arena.WriteBytes(body(p, 4), []byte(s))
		return p
	})
}

// StringValue reads the inline UTF-8 payload of a String term.
func StringValue(a *arena.Arena, p arena.Pointer) string {
	n := a.ReadU32(body(p, 0))
	return string(a.ReadBytes(body(p, 4), int(n)))
}

func stringSize(a *arena.Arena, p arena.Pointer) int {
	n := a.ReadU32(body(p, 0))
	return HeaderSize + 4 + int(n)
}

// --- Symbol ---

func (f *Factory) CreateSymbol(id uint32) arena.Pointer {
	h := newHasher(KindSymbol)
	h.writeU32(id)
	return f.intern(KindSymbol, h.sum(), func() arena.Pointer {
		p := f.Arena.Allocate(HeaderSize + 4)
		f.Arena.WriteU32(body(p, 0), id)
		return p
	})
}

// SymbolValue reads the payload of a Symbol term.
func SymbolValue(a *arena.Arena, p arena.Pointer) uint32 {
	return a.ReadU32(body(p, 0))
}

// --- Timestamp ---

func (f *Factory) CreateTimestamp(ms int64) arena.Pointer {
	h := newHasher(KindTimestamp)
	h.writeI64(ms)
	return f.intern(KindTimestamp, h.sum(), func() arena.Pointer {
		p := f.Arena.Allocate(HeaderSize + 8)
		f.Arena.WriteU64(body(p, 0), uint64(ms))
		return p
	})
}

// TimestampValue reads the millisecond-since-epoch payload of a
// Timestamp term.
func TimestampValue(a *arena.Arena, p arena.Pointer) int64 {
	return a.ReadI64(body(p, 0))
}
