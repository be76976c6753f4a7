// Package reloc implements the relocation engine: given resolved symbol
// addresses and assigned section virtual addresses, it patches relocation
// sites directly into section byte slices. The in-place little-endian
// patching style follows the teacher's own address-patching code
// (global_heap_write.go), generalized from fixed HDF5 header fields to
// arbitrary typed relocation entries.
package reloc

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/smoftools/smof/internal/errs"
	"github.com/smoftools/smof/internal/objfmt"
)

// SymbolAddress resolves a symbol index (as referenced by a Relocation) to
// its virtual address, GOT slot, PLT entry, or syscall index, depending on
// the relocation type being applied.
type SymbolAddress interface {
	// Value returns the resolved virtual address of the symbol at
	// symbolIndex, or an UnresolvedSymbol error if it has no definition.
	Value(symbolIndex uint16) (uint64, error)
	// GOTSlot returns the GOT-slot address allocated for symbolIndex.
	GOTSlot(symbolIndex uint16) (uint64, error)
	// PLTEntry returns the PLT-entry address allocated for symbolIndex.
	PLTEntry(symbolIndex uint16) (uint64, error)
	// SyscallIndex returns the syscall number carried in the symbol's
	// resolved value.
	SyscallIndex(symbolIndex uint16) (uint64, error)
}

// SectionView is the mutable byte slice and virtual address of one
// section being patched.
type SectionView struct {
	SectionIndex int
	VirtualAddr  uint64
	Data         []byte
}

// Apply patches every relocation in relocs into the section data in
// sections, grouped by target section (in file order) and processed in
// offset order within each section, per the specification's diagnostic
// ordering requirement.
func Apply(relocs []objfmt.Relocation, sections []SectionView, symtab SymbolAddress) error {
	bySection := make(map[uint16][]objfmt.Relocation)
	for _, r := range relocs {
		bySection[r.Section] = append(bySection[r.Section], r)
	}

	byIndex := make(map[int]*SectionView, len(sections))
	for i := range sections {
		byIndex[sections[i].SectionIndex] = &sections[i]
	}

	sectionOrder := make([]uint16, 0, len(bySection))
	for idx := range bySection {
		sectionOrder = append(sectionOrder, idx)
	}
	sort.Slice(sectionOrder, func(i, j int) bool { return sectionOrder[i] < sectionOrder[j] })

	for _, secIdx := range sectionOrder {
		entries := bySection[secIdx]
		sort.Slice(entries, func(i, j int) bool { return entries[i].Offset < entries[j].Offset })

		view, ok := byIndex[int(secIdx)]
		if !ok {
			return errs.New(errs.InvalidRelocation, fmt.Sprintf("relocation targets unknown section %d", secIdx), nil)
		}

		for _, r := range entries {
			if err := applyOne(r, view, symtab); err != nil {
				return err
			}
		}
	}
	return nil
}

func applyOne(r objfmt.Relocation, view *SectionView, symtab SymbolAddress) error {
	width := r.Type.Width()
	if width == 0 {
		return nil // NONE
	}
	if int(r.Offset)+width > len(view.Data) {
		return errs.At(errs.InvalidRelocation, "relocation offset out of range for target section", int64(r.Offset), nil)
	}

	site := view.Data[r.Offset : r.Offset+uint32(width)]
	addend, err := readAddend(site, width)
	if err != nil {
		return err
	}
	patchVA := view.VirtualAddr + uint64(r.Offset)

	value, err := computeValue(r, addend, patchVA, symtab)
	if err != nil {
		return err
	}

	if err := checkOverflow(r.Type, width, value); err != nil {
		return err
	}

	return writePatch(site, width, value)
}

func readAddend(site []byte, width int) (int64, error) {
	switch width {
	case 2:
		return int64(int16(binary.LittleEndian.Uint16(site))), nil
	case 4:
		return int64(int32(binary.LittleEndian.Uint32(site))), nil
	default:
		return 0, errs.New(errs.InvalidRelocation, fmt.Sprintf("unsupported relocation width %d", width), nil)
	}
}

func computeValue(r objfmt.Relocation, addend int64, patchVA uint64, symtab SymbolAddress) (int64, error) {
	switch r.Type {
	case objfmt.RelAbs32, objfmt.RelAbs16:
		s, err := symtab.Value(r.Symbol)
		if err != nil {
			return 0, err
		}
		return int64(s) + addend, nil
	case objfmt.RelRel32, objfmt.RelRel16:
		s, err := symtab.Value(r.Symbol)
		if err != nil {
			return 0, err
		}
		return int64(s) + addend - int64(patchVA), nil
	case objfmt.RelSyscall:
		v, err := symtab.SyscallIndex(r.Symbol)
		return int64(v), err
	case objfmt.RelGOT:
		v, err := symtab.GOTSlot(r.Symbol)
		return int64(v), err
	case objfmt.RelPLT:
		v, err := symtab.PLTEntry(r.Symbol)
		return int64(v), err
	default:
		return 0, errs.New(errs.InvalidRelocation, fmt.Sprintf("unknown relocation type %d", r.Type), nil)
	}
}

func checkOverflow(t objfmt.RelocationType, width int, value int64) error {
	if width >= 4 {
		return nil
	}
	if t.PCRelative() {
		if !fitsSigned(value, width) {
			return errs.New(errs.RelocationOverflow, fmt.Sprintf("value %d does not fit signed %d-byte field", value, width), nil)
		}
		return nil
	}
	if !fitsUnsigned(value, width) {
		return errs.New(errs.RelocationOverflow, fmt.Sprintf("value %d does not fit unsigned %d-byte field", value, width), nil)
	}
	return nil
}

func fitsSigned(v int64, width int) bool {
	bits := uint(width * 8)
	min := -(int64(1) << (bits - 1))
	max := int64(1)<<(bits-1) - 1
	return v >= min && v <= max
}

func fitsUnsigned(v int64, width int) bool {
	if v < 0 {
		return false
	}
	bits := uint(width * 8)
	max := int64(1)<<bits - 1
	return v <= max
}

func writePatch(site []byte, width int, value int64) error {
	switch width {
	case 2:
		binary.LittleEndian.PutUint16(site, uint16(value))
	case 4:
		binary.LittleEndian.PutUint32(site, uint32(value))
	default:
		return errs.New(errs.InvalidRelocation, fmt.Sprintf("unsupported relocation width %d", width), nil)
	}
	return nil
}
