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

import "fmt"

// Logf, when non-nil, receives diagnostic messages from this package,
// following the nil-by-default hook convention used throughout (see
// arena.Logf in package arena).
var Logf func(format string, args ...any)

// FuncType is a WASM function type: a vector of parameter value types
// to a vector of result value types.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

func (t FuncType) equal(o FuncType) bool {
	if len(t.Params) != len(o.Params) || len(t.Results) != len(o.Results) {
		return false
	}
	for i := range t.Params {
		if t.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range t.Results {
		if t.Results[i] != o.Results[i] {
			return false
		}
	}
	return true
}

// Export is a decoded entry of the export section.
type Export struct {
	Name string
	Kind byte
	Index uint32
}

// Function is a decoded function: its declared type index and the
// already-assembled body (locals vector + instruction bytes + 0x0B
// end), ready to concatenate into the code section.
type Function struct {
	TypeIdx uint32
	Body    []byte
}

// Global is a decoded entry of the global section: its value type,
// mutability, and raw init-expression bytes (including the trailing
// 0x0B end opcode). Only the MVP constant-expression forms a real
// toolchain emits for a global initializer are understood: a
// same-type const, or a global.get of an imported immutable global.
type Global struct {
	Type    ValType
	Mutable bool
	Init    []byte
}

// Limits is a decoded memory (or table) limits pair.
type Limits struct {
	Min    uint32
	Max    uint32
	HasMax bool
}

// ConstExpr is a value to encode as a global's new constant
// initializer (see Module.SetGlobalConst).
type ConstExpr struct {
	I32 int32
	I64 int64
	F32 float32
	F64 float64
}

func (c ConstExpr) encode(t ValType) []byte {
	var out []byte
	switch t {
	case ValI32:
		out = append(out, opI32Const)
		out = appendVarint(out, int64(c.I32))
	case ValI64:
		out = append(out, opI64Const)
		out = appendVarint(out, c.I64)
	case ValF32:
		out = append(out, opF32Const)
		out = appendF32(out, c.F32)
	case ValF64:
		out = append(out, opF64Const)
		out = appendF64(out, c.F64)
	}
	return append(out, opEnd)
}

// Module is the subset of a WASM module's structure wasmgen needs to
// read and rewrite: function types, the function/code index space,
// exports, globals, memory limits, and data. The import, table,
// element, start and datacount sections are kept as opaque raw byte
// sequences and re-emitted unchanged, since the generator never needs
// to alter them — cloning the runtime module means carrying sections
// the generator doesn't touch through verbatim rather than re-deriving
// them. Custom sections are not carried through: Encode writes none.
type Module struct {
	raw map[byte][]byte // untouched sections, keyed by section id

	Types         []FuncType
	ImportFuncs   int // number of function imports (these occupy the low function indices)
	ImportGlobals int // number of global imports (these occupy the low global indices)
	Functions     []Function
	Exports       []Export
	Globals       []Global // nil if the module declares no global section at all
	Memories      []Limits // nil if the module declares no memory section at all
	DataSegments  [][]byte // each already a complete encoded data-segment entry
}

// Decode parses a WASM binary module far enough to support Generate:
// it fully decodes the type, function, code, export, global, memory and
// data sections, counts the import section's function and global
// imports, and keeps the import section and every other section as raw
// bytes.
func Decode(b []byte) (*Module, error) {
	if len(b) < 8 || string(b[:4]) != string(wasmMagic[:]) {
		return nil, fmt.Errorf("wasmgen: not a WASM binary module")
	}
	m := &Module{raw: make(map[byte][]byte)}
	b = b[8:]
	var funcTypeIdx []uint32
	var codeBodies [][]byte
	for len(b) > 0 {
		id := b[0]
		b = b[1:]
		size, n := readUvarint(b)
		b = b[n:]
		payload := b[:size]
		b = b[size:]
		switch id {
		case secType:
			m.Types = decodeTypeSection(payload)
		case secImport:
			m.ImportFuncs, m.ImportGlobals = countImports(payload)
			m.raw[secImport] = payload
		case secFunction:
			funcTypeIdx = decodeFunctionSection(payload)
		case secExport:
			m.Exports = decodeExportSection(payload)
		case secGlobal:
			m.Globals = decodeGlobalSection(payload)
		case secMemory:
			m.Memories = decodeMemorySection(payload)
		case secCode:
			codeBodies = decodeCodeSection(payload)
		case secData:
			m.DataSegments = decodeDataSection(payload)
		default:
			m.raw[id] = payload
		}
	}
	if len(funcTypeIdx) != len(codeBodies) {
		return nil, fmt.Errorf("wasmgen: function/code section length mismatch (%d vs %d)", len(funcTypeIdx), len(codeBodies))
	}
	for i, t := range funcTypeIdx {
		m.Functions = append(m.Functions, Function{TypeIdx: t, Body: codeBodies[i]})
	}
	return m, nil
}

// FuncIndex returns the WASM function-index-space index of the
// exported function name, or false if no such function export exists.
func (m *Module) FuncIndex(name string) (uint32, bool) {
	for _, e := range m.Exports {
		if e.Kind == kindFunc && e.Name == name {
			return e.Index, true
		}
	}
	return 0, false
}

// GlobalIndex returns the global-index-space index of the exported
// global name, or false if no such global export exists. Used to wire
// the entry-point prologue's state_root global (see generate.go).
func (m *Module) GlobalIndex(name string) (uint32, bool) {
	for _, e := range m.Exports {
		if e.Kind == kindGlobal && e.Name == name {
			return e.Index, true
		}
	}
	return 0, false
}

// typeIndex returns the index of ft in the type section, appending it
// if not already present (functions sharing a signature share a type
// index, matching how a real WASM toolchain deduplicates types).
func (m *Module) typeIndex(ft FuncType) uint32 {
	for i, t := range m.Types {
		if t.equal(ft) {
			return uint32(i)
		}
	}
	m.Types = append(m.Types, ft)
	return uint32(len(m.Types) - 1)
}

// AddFunction appends a new defined function and returns its
// function-index-space index.
func (m *Module) AddFunction(sig FuncType, body []byte) uint32 {
	idx := m.typeIndex(sig)
	m.Functions = append(m.Functions, Function{TypeIdx: idx, Body: body})
	return uint32(m.ImportFuncs + len(m.Functions) - 1)
}

// Export adds an export-section entry naming an already-added item.
func (m *Module) Export(name string, kind byte, index uint32) {
	m.Exports = append(m.Exports, Export{Name: name, Kind: kind, Index: index})
}

// SetGlobalConst overwrites the declared global at globalIndex (global
// index space, i.e. already offset past any imports) with a new
// constant initializer and marks it immutable. Used by heap-snapshot
// capture to inline the runtime-observed value of a global mutated
// during initialization, so re-instantiating the module never needs to
// recompute it (original_source/reflex-wasm/src/snapshot.rs's
// global-inlining step).
func (m *Module) SetGlobalConst(globalIndex uint32, value ConstExpr) error {
	i := int(globalIndex) - m.ImportGlobals
	if i < 0 || i >= len(m.Globals) {
		return fmt.Errorf("wasmgen: global index %d out of range", globalIndex)
	}
	m.Globals[i].Init = value.encode(m.Globals[i].Type)
	m.Globals[i].Mutable = false
	return nil
}

// SetFunctionBody overwrites an existing function's body by its
// function-index-space index. Used to clear an initializer function's
// body once its one-time effects have been captured and inlined
// (snapshot.rs's clear_function_body) — the function must still exist
// and validate, but never needs to run its original work again.
func (m *Module) SetFunctionBody(funcIndex uint32, body []byte) error {
	i := int(funcIndex) - m.ImportFuncs
	if i < 0 || i >= len(m.Functions) {
		return fmt.Errorf("wasmgen: function index %d out of range", funcIndex)
	}
	m.Functions[i].Body = body
	return nil
}

// FuncSignature returns the declared FuncType of the function at
// funcIndex (function index space), for building a no-op replacement
// body of the right shape.
func (m *Module) FuncSignature(funcIndex uint32) (FuncType, error) {
	i := int(funcIndex) - m.ImportFuncs
	if i < 0 || i >= len(m.Functions) {
		return FuncType{}, fmt.Errorf("wasmgen: function index %d out of range", funcIndex)
	}
	return m.Types[m.Functions[i].TypeIdx], nil
}

// GrowInitialMemory raises memory 0's declared initial page count to
// at least minPages if it isn't already that large, leaving its
// maximum (if any) untouched. Mirrors snapshot.rs's
// update_initial_heap_size, which rounds the captured heap size up to
// the next power-of-two page count so re-instantiation never needs to
// call memory.grow for data the snapshot already populated.
func (m *Module) GrowInitialMemory(minPages uint32) error {
	if len(m.Memories) == 0 {
		return fmt.Errorf("wasmgen: module declares no linear memory")
	}
	if m.Memories[0].Min < minPages {
		m.Memories[0].Min = minPages
	}
	return nil
}

// AddActiveData appends a data segment that initializes linear memory
// 0 starting at offset with content, as an "active" segment (segment
// kind 0, the only kind the MVP binary format before the bulk-memory
// proposal supports — sufficient here since the generator only ever
// writes the compiler's own interned constants once, at module
// instantiation).
func (m *Module) AddActiveData(offset uint32, content []byte) {
	var seg []byte
	seg = append(seg, 0x00) // segment kind: active, memory index 0 implied
	seg = append(seg, 0x41) // i32.const
	seg = appendVarint(seg, int64(int32(offset)))
	seg = append(seg, 0x0B) // end
	seg = appendUvarint(seg, uint64(len(content)))
	seg = append(seg, content...)
	m.DataSegments = append(m.DataSegments, seg)
}

// Encode serializes the module back to WASM binary, in canonical
// section order (binary format §5.5.2); the raw import, table, start,
// element and datacount sections are re-emitted from their original
// bytes in their canonical slot, and custom sections are not written.
func (m *Module) Encode() []byte {
	out := append([]byte{}, wasmMagic[:]...)
	out = append(out, wasmVersion[:]...)

	out = appendSection(out, secType, encodeTypeSection(m.Types))
	if raw, ok := m.raw[secImport]; ok {
		out = appendSection(out, secImport, raw)
	}
	out = appendSection(out, secFunction, encodeFunctionSection(m))
	if raw, ok := m.raw[secTable]; ok {
		out = appendSection(out, secTable, raw)
	}
	if m.Memories != nil {
		out = appendSection(out, secMemory, encodeMemorySection(m.Memories))
	}
	if m.Globals != nil {
		out = appendSection(out, secGlobal, encodeGlobalSection(m.Globals))
	}
	out = appendSection(out, secExport, encodeExportSection(m.Exports))
	if raw, ok := m.raw[secStart]; ok {
		out = appendSection(out, secStart, raw)
	}
	if raw, ok := m.raw[secElement]; ok {
		out = appendSection(out, secElement, raw)
	}
	if raw, ok := m.raw[secDataCnt]; ok {
		out = appendSection(out, secDataCnt, raw)
	}
	out = appendSection(out, secCode, encodeCodeSection(m.Functions))
	out = appendSection(out, secData, encodeDataSection(m.DataSegments))
	return out
}

func appendSection(out []byte, id byte, payload []byte) []byte {
	if payload == nil {
		return out
	}
	out = append(out, id)
	out = appendUvarint(out, uint64(len(payload)))
	return append(out, payload...)
}

func decodeTypeSection(b []byte) []FuncType {
	count, n := readUvarint(b)
	b = b[n:]
	types := make([]FuncType, 0, count)
	for i := uint64(0); i < count; i++ {
		b = b[1:] // 0x60 func type tag
		pc, n := readUvarint(b)
		b = b[n:]
		params := make([]ValType, pc)
		for j := range params {
			params[j] = ValType(b[0])
			b = b[1:]
		}
		rc, n := readUvarint(b)
		b = b[n:]
		results := make([]ValType, rc)
		for j := range results {
			results[j] = ValType(b[0])
			b = b[1:]
		}
		types = append(types, FuncType{Params: params, Results: results})
	}
	return types
}

func encodeTypeSection(types []FuncType) []byte {
	var body []byte
	for _, t := range types {
		var entry []byte
		entry = append(entry, 0x60)
		entry = append(entry, vec(len(t.Params), toBytes(t.Params))...)
		entry = append(entry, vec(len(t.Results), toBytes(t.Results))...)
		body = append(body, entry...)
	}
	return vec(len(types), body)
}

func toBytes(vs []ValType) []byte {
	out := make([]byte, len(vs))
	for i, v := range vs {
		out[i] = byte(v)
	}
	return out
}

// countImports scans the import section just deeply enough to count
// function and global imports (binary format §5.5.5), since those are
// the two import kinds that shift an index space this package tracks
// separately (function-index space and global-index space);
// table/memory imports are skipped over without being otherwise
// interpreted.
func countImports(b []byte) (funcs, globals int) {
	count, n := readUvarint(b)
	b = b[n:]
	for i := uint64(0); i < count; i++ {
		_, sz := readName(b)
		b = b[sz:]
		_, sz = readName(b)
		b = b[sz:]
		kind := b[0]
		b = b[1:]
		switch kind {
		case kindFunc:
			funcs++
			_, n := readUvarint(b)
			b = b[n:]
		case kindTable:
			b = b[1:] // elem type
			b = skipLimits(b)
		case kindMemory:
			b = skipLimits(b)
		case kindGlobal:
			globals++
			b = b[1:] // valtype
			b = b[1:] // mutability
		}
	}
	return funcs, globals
}

func skipLimits(b []byte) []byte {
	flags := b[0]
	b = b[1:]
	_, n := readUvarint(b)
	b = b[n:]
	if flags&0x01 != 0 {
		_, n = readUvarint(b)
		b = b[n:]
	}
	return b
}

func readName(b []byte) (string, int) {
	l, n := readUvarint(b)
	return string(b[n : n+int(l)]), n + int(l)
}

func decodeFunctionSection(b []byte) []uint32 {
	count, n := readUvarint(b)
	b = b[n:]
	out := make([]uint32, 0, count)
	for i := uint64(0); i < count; i++ {
		v, n := readUvarint(b)
		b = b[n:]
		out = append(out, uint32(v))
	}
	return out
}

func encodeFunctionSection(m *Module) []byte {
	var body []byte
	for _, f := range m.Functions {
		body = appendUvarint(body, uint64(f.TypeIdx))
	}
	return vec(len(m.Functions), body)
}

func decodeExportSection(b []byte) []Export {
	count, n := readUvarint(b)
	b = b[n:]
	out := make([]Export, 0, count)
	for i := uint64(0); i < count; i++ {
		name, sz := readName(b)
		b = b[sz:]
		kind := b[0]
		b = b[1:]
		idx, n := readUvarint(b)
		b = b[n:]
		out = append(out, Export{Name: name, Kind: kind, Index: uint32(idx)})
	}
	return out
}

func encodeExportSection(exports []Export) []byte {
	var body []byte
	for _, e := range exports {
		body = appendUvarint(body, uint64(len(e.Name)))
		body = append(body, e.Name...)
		body = append(body, e.Kind)
		body = appendUvarint(body, uint64(e.Index))
	}
	return vec(len(exports), body)
}

func decodeGlobalSection(b []byte) []Global {
	count, n := readUvarint(b)
	b = b[n:]
	out := make([]Global, 0, count)
	for i := uint64(0); i < count; i++ {
		t := ValType(b[0])
		b = b[1:]
		mut := b[0] != 0
		b = b[1:]
		init := scanConstExpr(b)
		b = b[len(init):]
		out = append(out, Global{Type: t, Mutable: mut, Init: init})
	}
	return out
}

func encodeGlobalSection(globals []Global) []byte {
	var body []byte
	for _, g := range globals {
		body = append(body, byte(g.Type))
		if g.Mutable {
			body = append(body, 1)
		} else {
			body = append(body, 0)
		}
		body = append(body, g.Init...)
	}
	return vec(len(globals), body)
}

// scanConstExpr returns the byte span of one constant expression
// (global/element/data-offset initializer), including its trailing
// 0x0B end opcode. Only the MVP forms a real toolchain emits for a
// global initializer are understood directly (a same-type const, or a
// global.get referencing an imported immutable global); anything else
// falls back to scanning for the next end opcode, which is sufficient
// for any module this package itself produces but is not a general
// constant-expression interpreter.
func scanConstExpr(b []byte) []byte {
	switch b[0] {
	case opI32Const, opI64Const:
		_, n := readVarint(b[1:])
		return b[:1+n+1]
	case opF32Const:
		return b[:1+4+1]
	case opF64Const:
		return b[:1+8+1]
	case opGlobalGet:
		_, n := readUvarint(b[1:])
		return b[:1+n+1]
	default:
		for i, c := range b {
			if c == opEnd {
				return b[:i+1]
			}
		}
		return b
	}
}

func decodeMemorySection(b []byte) []Limits {
	count, n := readUvarint(b)
	b = b[n:]
	out := make([]Limits, 0, count)
	for i := uint64(0); i < count; i++ {
		var lim Limits
		lim, b = decodeLimits(b)
		out = append(out, lim)
	}
	return out
}

func encodeMemorySection(mems []Limits) []byte {
	var body []byte
	for _, l := range mems {
		body = append(body, encodeLimits(l)...)
	}
	return vec(len(mems), body)
}

func decodeLimits(b []byte) (Limits, []byte) {
	flags := b[0]
	b = b[1:]
	min, n := readUvarint(b)
	b = b[n:]
	lim := Limits{Min: uint32(min)}
	if flags&0x01 != 0 {
		max, n := readUvarint(b)
		b = b[n:]
		lim.Max, lim.HasMax = uint32(max), true
	}
	return lim, b
}

func encodeLimits(l Limits) []byte {
	var out []byte
	if l.HasMax {
		out = append(out, 0x01)
		out = appendUvarint(out, uint64(l.Min))
		out = appendUvarint(out, uint64(l.Max))
	} else {
		out = append(out, 0x00)
		out = appendUvarint(out, uint64(l.Min))
	}
	return out
}

func decodeCodeSection(b []byte) [][]byte {
	count, n := readUvarint(b)
	b = b[n:]
	out := make([][]byte, 0, count)
	for i := uint64(0); i < count; i++ {
		size, n := readUvarint(b)
		b = b[n:]
		out = append(out, b[:size])
		b = b[size:]
	}
	return out
}

func encodeCodeSection(fns []Function) []byte {
	var body []byte
	for _, f := range fns {
		body = append(body, withLenPrefix(f.Body)...)
	}
	return vec(len(fns), body)
}

func decodeDataSection(b []byte) [][]byte {
	count, n := readUvarint(b)
	b = b[n:]
	out := make([][]byte, 0, count)
	for i := uint64(0); i < count; i++ {
		entryStart := b
		kind, n := readUvarint(b)
		b = b[n:]
		if kind == 0 {
			b = b[1:] // i32.const opcode
			_, n = readVarint(b)
			b = b[n:]
			b = b[1:] // end opcode
		}
		// active-with-memidx (kind 2) and passive (kind 1) segments are
		// not produced by this generator's own output, but are decoded
		// structurally so a runtime module using them round-trips.
		if kind == 2 {
			_, n = readUvarint(b)
			b = b[n:]
			b = b[1:]
			_, n = readVarint(b)
			b = b[n:]
			b = b[1:]
		}
		size, n := readUvarint(b)
		b = b[n:]
		b = b[size:]
		out = append(out, entryStart[:len(entryStart)-len(b)])
	}
	return out
}

func encodeDataSection(segs [][]byte) []byte {
	var body []byte
	for _, s := range segs {
		body = append(body, s...)
	}
	return vec(len(segs), body)
}
