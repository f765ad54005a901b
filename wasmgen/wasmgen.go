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

// Package wasmgen lowers compiled il.Block entry points into a WASM
// binary module: clone the runtime-library module, resolve its
// exported runtime builtins, lower each entry point's IL
// to WASM bytecode, append the compiler's interned snapshot image as a
// new data segment, and export the entry point under its given name.
package wasmgen

// ValType is a WASM value-type encoding byte (binary format §5.3.1).
type ValType byte

const (
	ValI32 ValType = 0x7F
	ValI64 ValType = 0x7E
	ValF32 ValType = 0x7D
	ValF64 ValType = 0x7C
)

// Section IDs, binary format §5.5.2.
const (
	secCustom   = 0
	secType     = 1
	secImport   = 2
	secFunction = 3
	secTable    = 4
	secMemory   = 5
	secGlobal   = 6
	secExport   = 7
	secStart    = 8
	secElement  = 9
	secCode     = 10
	secData     = 11
	secDataCnt  = 12
)

// External-kind tags used by the import and export sections.
const (
	kindFunc   = 0x00
	kindTable  = 0x01
	kindMemory = 0x02
	kindGlobal = 0x03
)

// Exported aliases of the external-kind tags, for callers outside this
// package inspecting a decoded Module's Exports (e.g. package snapshot
// filtering for global exports to capture).
const (
	KindFunc   = kindFunc
	KindTable  = kindTable
	KindMemory = kindMemory
	KindGlobal = kindGlobal
)

var wasmMagic = [4]byte{0x00, 0x61, 0x73, 0x6D}
var wasmVersion = [4]byte{0x01, 0x00, 0x00, 0x00}
