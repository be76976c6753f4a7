package objfmt

import (
	"github.com/smoftools/smof/internal/byteio"
)

// Emit serializes obj using the deterministic layout: header, section
// table, symbol table, string table, section data (each padded to its
// alignment), relocation table, import table. The symbol table has no
// offset field of its own in the header — it is always placed immediately
// after the section table, matching the default lookup formula
// section_table_offset + section_count*SectionEntrySize (see SPEC_FULL.md
// §6). All other
// header offsets and sizes are computed before any body bytes are written.
func Emit(obj *Object) ([]byte, error) {
	strTable, nameOffsets := buildStringTable(obj)

	sectionTableOff := uint32(HeaderSize)
	sectionTableSize := uint32(len(obj.Sections)) * SectionEntrySize

	symTableOff := sectionTableOff + sectionTableSize
	symTableSize := uint32(len(obj.Symbols)) * SymbolEntrySize

	strTableOff := symTableOff + symTableSize
	strTableSize := uint32(len(strTable))

	dataStart := strTableOff + strTableSize
	dataOffsets, dataEnd := layoutSectionData(obj.Sections, dataStart)

	relTableOff := dataEnd

	w := byteio.NewWriter()
	writeHeader(w, obj, sectionTableOff, strTableOff, strTableSize, relTableOff)
	writeSections(w, obj.Sections, nameOffsets, dataOffsets)
	writeSymbols(w, obj.Symbols, nameOffsets)
	w.Raw(strTable)
	writeSectionData(w, obj.Sections, dataStart, dataOffsets)
	writeRelocations(w, obj.Relocations)
	writeImports(w, obj.Imports, nameOffsets)

	return w.Bytes(), nil
}

func buildStringTable(obj *Object) ([]byte, map[string]uint32) {
	offsets := make(map[string]uint32)
	table := []byte{0} // offset 0 is always the empty string
	offsets[""] = 0

	intern := func(s string) {
		if _, ok := offsets[s]; ok {
			return
		}
		offsets[s] = uint32(len(table))
		table = append(table, []byte(s)...)
		table = append(table, 0)
	}

	for _, s := range obj.Sections {
		intern(s.Name)
	}
	for _, s := range obj.Symbols {
		intern(s.Name)
	}
	for _, im := range obj.Imports {
		intern(im.Library)
		intern(im.Symbol)
	}
	return table, offsets
}

func layoutSectionData(sections []Section, start uint32) (map[int]uint32, uint32) {
	offsets := make(map[int]uint32)
	cur := start
	for i, s := range sections {
		if s.Flags&SecZeroFill != 0 || s.FileOffset == 0 && len(s.Data) == 0 {
			offsets[i] = 0
			continue
		}
		align := uint32(s.AlignBytes())
		if align > 1 {
			cur = (cur + align - 1) &^ (align - 1)
		}
		offsets[i] = cur
		cur += s.Size
	}
	return offsets, cur
}

func writeHeader(w *byteio.Writer, obj *Object, sectionTableOff, strTableOff, strTableSize, relTableOff uint32) {
	w.U32(Magic)
	w.U16(CurrentVersion)
	w.U16(uint16(obj.Header.Flags))
	w.U32(obj.Header.EntryPoint)
	w.U16(uint16(len(obj.Sections)))
	w.U16(uint16(len(obj.Symbols)))
	w.U32(strTableOff)
	w.U32(strTableSize)
	w.U32(sectionTableOff)
	w.U32(relTableOff)
	w.U16(uint16(len(obj.Relocations)))
	w.U16(uint16(len(obj.Imports)))
}

func writeSections(w *byteio.Writer, sections []Section, nameOffsets map[string]uint32, dataOffsets map[int]uint32) {
	for i, s := range sections {
		w.U32(nameOffsets[s.Name])
		w.U32(s.VirtualAddr)
		w.U32(s.Size)
		w.U32(dataOffsets[i])
		w.U16(uint16(s.Flags))
		w.U8(s.Align)
		w.U8(0) // reserved
	}
}

func writeSectionData(w *byteio.Writer, sections []Section, dataStart uint32, dataOffsets map[int]uint32) {
	cur := dataStart
	for i, s := range sections {
		off, ok := dataOffsets[i]
		if !ok || off == 0 && (s.Flags&SecZeroFill != 0 || len(s.Data) == 0) {
			continue
		}
		if off > cur {
			w.Zero(int(off - cur))
			cur = off
		}
		w.Raw(s.Data)
		cur += uint32(len(s.Data))
	}
}

func writeSymbols(w *byteio.Writer, symbols []Symbol, nameOffsets map[string]uint32) {
	for _, s := range symbols {
		w.U32(nameOffsets[s.Name])
		w.U32(s.Value)
		w.U32(s.Size)
		w.U16(s.Section)
		w.U8(uint8(s.Type))
		w.U8(uint8(s.Binding))
	}
}

func writeRelocations(w *byteio.Writer, relocations []Relocation) {
	for _, r := range relocations {
		w.U32(r.Offset)
		w.U16(r.Symbol)
		w.U8(uint8(r.Type))
		w.U8(uint8(r.Section))
	}
}

func writeImports(w *byteio.Writer, imports []Import, nameOffsets map[string]uint32) {
	for _, im := range imports {
		w.U32(nameOffsets[im.Library])
		w.U32(nameOffsets[im.Symbol])
	}
}
