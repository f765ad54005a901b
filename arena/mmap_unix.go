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

//go:build linux || darwin

package arena

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// mmapBacking reserves a large chunk of address space up front (as the
// teacher's VMM does in vm/malloc.go) and only commits pages as the
// arena grows, so that a worker's arena can grow to a few hundred
// megabytes without repeated reallocation/copying.
type mmapBacking struct {
	buf      []byte
	reserved int
}

// reserveSize is the amount of address space reserved per arena. Actual
// resident memory is only whatever has been touched by Grow.
const reserveSize = 1 << 30 // 1 GiB of address space, like vmReserve in vm/malloc.go

// NewMmapBacking creates a Backing that reserves reserveSize bytes of
// anonymous virtual memory and commits pages to it on demand.
func NewMmapBacking() (Backing, error) {
	buf, err := unix.Mmap(-1, 0, reserveSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("arena: mmap reservation failed: %w", err)
	}
	return &mmapBacking{buf: buf[:0:len(buf)], reserved: len(buf)}, nil
}

func (m *mmapBacking) Bytes() []byte { return m.buf }

func (m *mmapBacking) Grow(n int) []byte {
	if n > m.reserved {
		panic(fmt.Sprintf("arena: grown past reserved mmap region (%d > %d)", n, m.reserved))
	}
	m.buf = m.buf[:n:m.reserved]
	return m.buf
}

func (m *mmapBacking) Release() {
	full := m.buf[:m.reserved]
	_ = unix.Munmap(full)
	m.buf = nil
}
