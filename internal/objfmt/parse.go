package objfmt

import (
	"fmt"

	"github.com/smoftools/smof/internal/arena"
	"github.com/smoftools/smof/internal/byteio"
	"github.com/smoftools/smof/internal/errs"
)

// Parse validates and decodes a complete SMOF file from data, copying all
// referenced bytes into a. The returned Object's slices are arena-owned and
// become invalid once a is Reset.
func Parse(data []byte, a *arena.Arena) (*Object, error) {
	obj := &Object{}

	hdr, err := parseHeader(data)
	if err != nil {
		return nil, err
	}
	obj.Header = *hdr

	strs, err := loadStringTable(data, hdr)
	if err != nil {
		return nil, err
	}
	obj.Strings, err = a.AllocCopy(strs)
	if err != nil {
		return nil, errs.New(errs.OutOfMemory, "string table", err)
	}

	sections, err := parseSections(data, hdr, obj.Strings)
	if err != nil {
		return nil, err
	}
	obj.Sections = sections

	if err := loadSectionData(data, obj.Sections, a); err != nil {
		return nil, err
	}

	symbolTableOffset := hdr.SectionTableOffset + uint32(hdr.SectionCount)*SectionEntrySize
	symbols, err := parseSymbols(data, symbolTableOffset, hdr, obj.Strings)
	if err != nil {
		return nil, err
	}
	obj.Symbols = symbols

	relocs, err := parseRelocations(data, hdr)
	if err != nil {
		return nil, err
	}
	obj.Relocations = relocs

	if err := ValidateRelocations(obj); err != nil {
		return nil, err
	}

	imports, err := parseImports(data, hdr, obj.Strings)
	if err != nil {
		return nil, err
	}
	obj.Imports = imports

	return obj, nil
}

func parseHeader(data []byte) (*Header, error) {
	r := byteio.NewReader(data)

	magic, err := r.U32()
	if err != nil {
		return nil, errs.At(errs.Truncated, "header", 0, err)
	}
	if magic != Magic {
		return nil, errs.At(errs.InvalidMagic, fmt.Sprintf("got 0x%08X", magic), 0, nil)
	}

	version, err := r.U16()
	if err != nil {
		return nil, errs.At(errs.Truncated, "version", int64(r.Offset()), err)
	}
	if version != CurrentVersion {
		return nil, errs.At(errs.UnsupportedVersion, fmt.Sprintf("got %d", version), int64(r.Offset()-2), nil)
	}

	flagsRaw, err := r.U16()
	if err != nil {
		return nil, errs.At(errs.Truncated, "flags", int64(r.Offset()), err)
	}
	flags := HeaderFlags(flagsRaw)
	if flags&flagEndiannessMask != 0 {
		return nil, errs.At(errs.CorruptHeader, "big-endian flag bit set; only little-endian is supported", 6, nil)
	}

	entry, err := r.U32()
	if err != nil {
		return nil, errs.At(errs.Truncated, "entry point", int64(r.Offset()), err)
	}
	sectionCount, err := r.U16()
	if err != nil {
		return nil, errs.At(errs.Truncated, "section count", int64(r.Offset()), err)
	}
	symbolCount, err := r.U16()
	if err != nil {
		return nil, errs.At(errs.Truncated, "symbol count", int64(r.Offset()), err)
	}
	strOff, err := r.U32()
	if err != nil {
		return nil, errs.At(errs.Truncated, "string table offset", int64(r.Offset()), err)
	}
	strSize, err := r.U32()
	if err != nil {
		return nil, errs.At(errs.Truncated, "string table size", int64(r.Offset()), err)
	}
	secTableOff, err := r.U32()
	if err != nil {
		return nil, errs.At(errs.Truncated, "section table offset", int64(r.Offset()), err)
	}
	relTableOff, err := r.U32()
	if err != nil {
		return nil, errs.At(errs.Truncated, "relocation table offset", int64(r.Offset()), err)
	}
	relCount, err := r.U16()
	if err != nil {
		return nil, errs.At(errs.Truncated, "relocation count", int64(r.Offset()), err)
	}
	importCount, err := r.U16()
	if err != nil {
		return nil, errs.At(errs.Truncated, "import count", int64(r.Offset()), err)
	}

	hdr := &Header{
		Magic:              magic,
		Version:            version,
		Flags:              flags,
		EntryPoint:         entry,
		SectionCount:       sectionCount,
		SymbolCount:        symbolCount,
		StringTableOffset:  strOff,
		StringTableSize:    strSize,
		SectionTableOffset: secTableOff,
		RelocTableOffset:   relTableOff,
		RelocCount:         relCount,
		ImportCount:        importCount,
	}

	if err := validateHeaderInvariants(hdr, len(data)); err != nil {
		return nil, err
	}
	return hdr, nil
}

func validateHeaderInvariants(hdr *Header, fileLen int) error {
	if hdr.SectionCount > MaxSections {
		return errs.At(errs.CorruptHeader, fmt.Sprintf("section_count %d exceeds %d", hdr.SectionCount, MaxSections), 12, nil)
	}
	if hdr.SymbolCount > MaxSymbols {
		return errs.At(errs.CorruptHeader, fmt.Sprintf("symbol_count %d exceeds %d", hdr.SymbolCount, MaxSymbols), 14, nil)
	}
	if hdr.StringTableSize > MaxStringTableSize {
		return errs.At(errs.CorruptHeader, fmt.Sprintf("string_table_size %d exceeds %d", hdr.StringTableSize, MaxStringTableSize), 20, nil)
	}

	// The symbol table carries no offset field of its own: it is always
	// located immediately after the section table (see the symbol-table-
	// offset open question in SPEC_FULL.md), so it participates in the
	// overlap check as a derived region.
	symTableOff := hdr.SectionTableOffset + uint32(hdr.SectionCount)*SectionEntrySize
	regions := []tableRegion{
		{"string table", hdr.StringTableOffset, hdr.StringTableSize},
		{"section table", hdr.SectionTableOffset, uint32(hdr.SectionCount) * SectionEntrySize},
		{"symbol table", symTableOff, uint32(hdr.SymbolCount) * SymbolEntrySize},
		{"relocation table", hdr.RelocTableOffset, uint32(hdr.RelocCount) * RelocationEntrySize},
	}
	for _, rg := range regions {
		if rg.off == 0 {
			continue // absent
		}
		if rg.off < HeaderSize {
			return errs.At(errs.CorruptHeader, fmt.Sprintf("%s offset %d lies inside header", rg.name, rg.off), int64(rg.off), nil)
		}
		end, err := byteio.SafeAdd(uint64(rg.off), uint64(rg.size))
		if err != nil || end > uint64(fileLen) {
			return errs.At(errs.CorruptHeader, fmt.Sprintf("%s extends past end of file", rg.name), int64(rg.off), nil)
		}
	}
	if overlaps(regions) {
		return errs.At(errs.CorruptHeader, "tables overlap", 0, nil)
	}
	return nil
}

type tableRegion struct {
	name      string
	off, size uint32
}

func overlaps(regions []tableRegion) bool {
	type span struct{ lo, hi uint32 }
	var spans []span
	for _, r := range regions {
		if r.off == 0 || r.size == 0 {
			continue
		}
		spans = append(spans, span{r.off, r.off + r.size})
	}
	for i := 0; i < len(spans); i++ {
		for j := i + 1; j < len(spans); j++ {
			if spans[i].lo < spans[j].hi && spans[j].lo < spans[i].hi {
				return true
			}
		}
	}
	return false
}

func loadStringTable(data []byte, hdr *Header) ([]byte, error) {
	if hdr.StringTableOffset == 0 || hdr.StringTableSize == 0 {
		return []byte{0}, nil // offset 0 is always the empty string
	}
	r := byteio.NewReader(data)
	b, err := r.At(int(hdr.StringTableOffset), int(hdr.StringTableSize))
	if err != nil {
		return nil, errs.At(errs.Truncated, "string table", int64(hdr.StringTableOffset), err)
	}
	return b, nil
}

func nameAt(strs []byte, off uint32) (string, error) {
	if uint64(off) >= uint64(len(strs)) {
		return "", fmt.Errorf("name offset %d outside string table of size %d", off, len(strs))
	}
	end := off
	for end < uint32(len(strs)) && strs[end] != 0 {
		end++
	}
	if end >= uint32(len(strs)) {
		return "", fmt.Errorf("unterminated string at offset %d", off)
	}
	return string(strs[off:end]), nil
}

func parseSections(data []byte, hdr *Header, strs []byte) ([]Section, error) {
	if hdr.SectionCount == 0 {
		return nil, nil
	}
	r := byteio.NewReader(data)
	sections := make([]Section, hdr.SectionCount)
	for i := uint16(0); i < hdr.SectionCount; i++ {
		off := int(hdr.SectionTableOffset) + int(i)*SectionEntrySize
		r.Seek(off)

		nameOff, err := r.U32()
		if err != nil {
			return nil, errs.At(errs.InvalidSection, fmt.Sprintf("section %d: name offset", i), int64(off), err)
		}
		va, err := r.U32()
		if err != nil {
			return nil, errs.At(errs.InvalidSection, fmt.Sprintf("section %d: virtual address", i), int64(off), err)
		}
		size, err := r.U32()
		if err != nil {
			return nil, errs.At(errs.InvalidSection, fmt.Sprintf("section %d: size", i), int64(off), err)
		}
		fileOff, err := r.U32()
		if err != nil {
			return nil, errs.At(errs.InvalidSection, fmt.Sprintf("section %d: file offset", i), int64(off), err)
		}
		flags, err := r.U16()
		if err != nil {
			return nil, errs.At(errs.InvalidSection, fmt.Sprintf("section %d: flags", i), int64(off), err)
		}
		align, err := r.U8()
		if err != nil {
			return nil, errs.At(errs.InvalidSection, fmt.Sprintf("section %d: alignment", i), int64(off), err)
		}
		if _, err := r.U8(); err != nil { // reserved
			return nil, errs.At(errs.InvalidSection, fmt.Sprintf("section %d: reserved", i), int64(off), err)
		}

		if align > 31 {
			return nil, errs.At(errs.InvalidSection, fmt.Sprintf("section %d: alignment exponent %d > 31", i, align), int64(off), nil)
		}

		name, err := nameAt(strs, nameOff)
		if err != nil {
			return nil, errs.At(errs.InvalidSection, fmt.Sprintf("section %d: %v", i, err), int64(off), err)
		}

		sec := Section{
			NameOffset:  nameOff,
			VirtualAddr: va,
			Size:        size,
			FileOffset:  fileOff,
			Flags:       SectionFlags(flags),
			Align:       align,
			Name:        name,
		}
		if sec.Flags&SecLoadable != 0 {
			alignBytes := sec.AlignBytes()
			if uint64(va)%alignBytes != 0 {
				return nil, errs.At(errs.InvalidSection,
					fmt.Sprintf("section %d (%s): VA 0x%X not aligned to 2^%d", i, name, va, align), int64(off), nil)
			}
		}
		sections[i] = sec
	}
	return sections, nil
}

func loadSectionData(data []byte, sections []Section, a *arena.Arena) error {
	for i := range sections {
		sec := &sections[i]
		if sec.FileOffset == 0 || sec.Flags&SecZeroFill != 0 {
			continue
		}
		r := byteio.NewReader(data)
		raw, err := r.At(int(sec.FileOffset), int(sec.Size))
		if err != nil {
			return errs.At(errs.InvalidSection, fmt.Sprintf("section %s data", sec.Name), int64(sec.FileOffset), err)
		}
		cp, err := a.AllocCopy(raw)
		if err != nil {
			return errs.New(errs.OutOfMemory, fmt.Sprintf("section %s data", sec.Name), err)
		}
		sec.Data = cp
	}
	return nil
}

func parseSymbols(data []byte, tableOffset uint32, hdr *Header, strs []byte) ([]Symbol, error) {
	if hdr.SymbolCount == 0 {
		return nil, nil
	}
	r := byteio.NewReader(data)
	symbols := make([]Symbol, hdr.SymbolCount)
	for i := uint16(0); i < hdr.SymbolCount; i++ {
		off := int(tableOffset) + int(i)*SymbolEntrySize
		r.Seek(off)

		nameOff, err := r.U32()
		if err != nil {
			return nil, errs.At(errs.InvalidSymbol, fmt.Sprintf("symbol %d: name offset", i), int64(off), err)
		}
		value, err := r.U32()
		if err != nil {
			return nil, errs.At(errs.InvalidSymbol, fmt.Sprintf("symbol %d: value", i), int64(off), err)
		}
		size, err := r.U32()
		if err != nil {
			return nil, errs.At(errs.InvalidSymbol, fmt.Sprintf("symbol %d: size", i), int64(off), err)
		}
		section, err := r.U16()
		if err != nil {
			return nil, errs.At(errs.InvalidSymbol, fmt.Sprintf("symbol %d: section index", i), int64(off), err)
		}
		typ, err := r.U8()
		if err != nil {
			return nil, errs.At(errs.InvalidSymbol, fmt.Sprintf("symbol %d: type", i), int64(off), err)
		}
		binding, err := r.U8()
		if err != nil {
			return nil, errs.At(errs.InvalidSymbol, fmt.Sprintf("symbol %d: binding", i), int64(off), err)
		}

		if section != UndefinedSection && section >= hdr.SectionCount {
			return nil, errs.At(errs.InvalidSymbol,
				fmt.Sprintf("symbol %d: section index %d >= section_count %d", i, section, hdr.SectionCount), int64(off), nil)
		}

		name, err := nameAt(strs, nameOff)
		if err != nil {
			return nil, errs.At(errs.InvalidSymbol, fmt.Sprintf("symbol %d: %v", i, err), int64(off), err)
		}

		symbols[i] = Symbol{
			NameOffset: nameOff,
			Value:      value,
			Size:       size,
			Section:    section,
			Type:       SymbolType(typ),
			Binding:    SymbolBinding(binding),
			Name:       name,
		}
	}
	return symbols, nil
}

func parseRelocations(data []byte, hdr *Header) ([]Relocation, error) {
	if hdr.RelocCount == 0 {
		return nil, nil
	}
	r := byteio.NewReader(data)
	relocs := make([]Relocation, hdr.RelocCount)
	for i := uint16(0); i < hdr.RelocCount; i++ {
		off := int(hdr.RelocTableOffset) + int(i)*RelocationEntrySize
		r.Seek(off)

		relOff, err := r.U32()
		if err != nil {
			return nil, errs.At(errs.InvalidRelocation, fmt.Sprintf("relocation %d: offset", i), int64(off), err)
		}
		symIdx, err := r.U16()
		if err != nil {
			return nil, errs.At(errs.InvalidRelocation, fmt.Sprintf("relocation %d: symbol index", i), int64(off), err)
		}
		typ, err := r.U8()
		if err != nil {
			return nil, errs.At(errs.InvalidRelocation, fmt.Sprintf("relocation %d: type", i), int64(off), err)
		}
		secIdx, err := r.U8()
		if err != nil {
			return nil, errs.At(errs.InvalidRelocation, fmt.Sprintf("relocation %d: section index", i), int64(off), err)
		}

		if uint16(secIdx) >= hdr.SectionCount {
			return nil, errs.At(errs.InvalidRelocation,
				fmt.Sprintf("relocation %d: section index %d >= section_count %d", i, secIdx, hdr.SectionCount), int64(off), nil)
		}

		relocs[i] = Relocation{
			Offset:  relOff,
			Symbol:  symIdx,
			Type:    RelocationType(typ),
			Section: uint16(secIdx),
		}
	}
	return relocs, nil
}

func parseImports(data []byte, hdr *Header, strs []byte) ([]Import, error) {
	if hdr.ImportCount == 0 {
		return nil, nil
	}
	// The import table immediately follows the relocation table.
	base := int(hdr.RelocTableOffset) + int(hdr.RelocCount)*RelocationEntrySize
	r := byteio.NewReader(data)
	imports := make([]Import, hdr.ImportCount)
	for i := uint16(0); i < hdr.ImportCount; i++ {
		off := base + int(i)*ImportEntrySize
		r.Seek(off)

		libOff, err := r.U32()
		if err != nil {
			return nil, errs.At(errs.InvalidArgument, fmt.Sprintf("import %d: library offset", i), int64(off), err)
		}
		symOff, err := r.U32()
		if err != nil {
			return nil, errs.At(errs.InvalidArgument, fmt.Sprintf("import %d: symbol offset", i), int64(off), err)
		}
		lib, err := nameAt(strs, libOff)
		if err != nil {
			return nil, errs.At(errs.InvalidArgument, fmt.Sprintf("import %d: library name: %v", i, err), int64(off), err)
		}
		sym, err := nameAt(strs, symOff)
		if err != nil {
			return nil, errs.At(errs.InvalidArgument, fmt.Sprintf("import %d: symbol name: %v", i, err), int64(off), err)
		}
		imports[i] = Import{LibraryOffset: libOff, SymbolOffset: symOff, Library: lib, Symbol: sym}
	}
	return imports, nil
}
