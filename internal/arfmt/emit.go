package arfmt

import (
	"fmt"
	"sort"

	"github.com/smoftools/smof/internal/byteio"
	"github.com/smoftools/smof/internal/compress"
	"github.com/smoftools/smof/internal/errs"
)

// CreateOptions configures Emit's behavior beyond the raw member list.
type CreateOptions struct {
	Indexed bool
	Sorted  bool
	// SymbolsOf, when Indexed is true, returns the GLOBAL/EXPORT symbols
	// defined by the member at the given index (nil if it is not an OBJ
	// member, or carries no such symbols). The caller supplies this
	// instead of arfmt importing objfmt directly, keeping the archive
	// codec independent of the object format.
	SymbolsOf func(memberIndex int) []SymbolIndexEntry
}

// Emit serializes members into a complete STAR archive: header, data
// region, member table, string table, and an optional symbol index, in
// that order. The data region starts right after the header; the member
// table, string table, and symbol index offsets are each rounded up to
// RegionAlignment bytes.
func Emit(members []Member, opts CreateOptions) ([]byte, error) {
	if len(members) > MaxMemberCount {
		return nil, errs.New(errs.InvalidArgument, fmt.Sprintf("member count %d exceeds %d", len(members), MaxMemberCount), nil)
	}

	w := byteio.NewWriter()
	w.Zero(HeaderSize)

	dataStart := w.Len()
	type built struct {
		hdr  MemberHeader
		name string
	}
	builtMembers := make([]built, 0, len(members))

	for i, m := range members {
		if len(m.Name) == 0 || len(m.Name) > MaxMemberNameLen {
			return nil, errs.New(errs.InvalidArgument, fmt.Sprintf("member %d name length %d out of range", i, len(m.Name)), nil)
		}
		codec, err := compress.ByTag(m.Compression)
		if err != nil {
			return nil, fmt.Errorf("member %d (%q): %w", i, m.Name, err)
		}
		compressed, err := codec.Compress(m.Payload, m.Level)
		if err != nil {
			return nil, fmt.Errorf("member %d (%q): %w", i, m.Name, err)
		}

		mh := MemberHeader{
			UncompressedSize: uint64(len(m.Payload)),
			CompressedSize:   uint64(len(compressed)),
			DataOffset:       uint64(w.Len()),
			CRC32:            byteio.CRC32(m.Payload),
			ModTime:          m.ModTime,
			Compression:      m.Compression,
		}
		if m.Executable {
			mh.Flags |= MemberExecutable
		}
		if m.ReadOnly {
			mh.Flags |= MemberReadOnly
		}
		if m.Compression != compress.TagNone {
			mh.Flags |= MemberCompressed
		}
		w.Raw(compressed)
		builtMembers = append(builtMembers, built{hdr: mh, name: m.Name})
	}
	_ = dataStart

	// String table: de-duplicated member names, each NUL-terminated.
	stringOffsets := make(map[string]uint32)
	stringTable := byteio.NewWriter()
	internName := func(name string) uint32 {
		if off, ok := stringOffsets[name]; ok {
			return off
		}
		off := uint32(stringTable.Len())
		stringTable.CString(name)
		stringOffsets[name] = off
		return off
	}
	for i := range builtMembers {
		builtMembers[i].hdr.NameOffset = internName(builtMembers[i].name)
	}

	memberTableOffset := alignUp(w.Len(), RegionAlignment)
	w.Zero(memberTableOffset - w.Len())
	for _, bm := range builtMembers {
		emitMemberHeader(w, bm.hdr)
	}

	stringTableOffset := alignUp(w.Len(), RegionAlignment)
	w.Zero(stringTableOffset - w.Len())
	w.Raw(stringTable.Bytes())

	var symIndexOffset, symIndexSize uint32
	flags := Flags(0)
	if opts.Indexed && opts.SymbolsOf != nil {
		var entries []SymbolIndexEntry
		for i := range members {
			entries = append(entries, opts.SymbolsOf(i)...)
		}
		if opts.Sorted {
			sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
			flags |= FlagSorted
		}
		if len(entries) > 0 {
			flags |= FlagIndexed
			symOff := alignUp(w.Len(), RegionAlignment)
			w.Zero(symOff - w.Len())
			symIndexOffset = uint32(symOff)

			// Region layout: entry count (4 bytes), then that many fixed
			// 16-byte entries, then the de-duplicated name table each
			// entry's name_offset points into.
			w.U32(uint32(len(entries)))
			nameTable := byteio.NewWriter()
			nameOffsets := make(map[string]uint32)
			internSymName := func(name string) uint32 {
				if off, ok := nameOffsets[name]; ok {
					return off
				}
				off := uint32(nameTable.Len())
				nameTable.CString(name)
				nameOffsets[name] = off
				return off
			}
			for _, e := range entries {
				w.U32(internSymName(e.Name))
				w.U32(e.MemberIndex)
				w.U32(e.Value)
				w.U8(e.Type)
				w.U8(e.Binding)
				w.Zero(2)
			}
			w.Raw(nameTable.Bytes())
			symIndexSize = uint32(4+len(entries)*SymbolIndexEntrySize) + uint32(nameTable.Len())
		}
	}

	for _, bm := range builtMembers {
		if bm.hdr.Compression != compress.TagNone {
			flags |= FlagCompressed
			break
		}
	}

	buf := w.Bytes()
	writeHeaderInPlace(buf, Header{
		Magic:             Magic,
		Version:           CurrentVersion,
		Flags:             flags,
		MemberCount:       uint32(len(members)),
		SymbolIndexOffset: symIndexOffset,
		SymbolIndexSize:   symIndexSize,
		MemberTableOffset: uint32(memberTableOffset),
		StringTableOffset: uint32(stringTableOffset),
		StringTableSize:   uint32(stringTable.Len()),
	})

	out := make([]byte, len(buf))
	copy(out, buf)
	return out, nil
}

func alignUp(v, align int) int {
	if align <= 1 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

func emitMemberHeader(w *byteio.Writer, mh MemberHeader) {
	w.U32(mh.NameOffset)
	w.U64(mh.UncompressedSize)
	w.U64(mh.CompressedSize)
	w.U64(mh.DataOffset)
	w.U32(mh.CRC32)
	w.U64(uint64(mh.ModTime))
	w.U16(uint16(mh.Flags))
	w.U8(uint8(mh.Compression))
	w.Zero(85)
}

func writeHeaderInPlace(buf []byte, h Header) {
	w := byteio.NewWriter()
	w.U32(h.Magic)
	w.U16(h.Version)
	w.U16(uint16(h.Flags))
	w.U32(h.MemberCount)
	w.U32(h.SymbolIndexOffset)
	w.U32(h.SymbolIndexSize)
	w.U32(h.MemberTableOffset)
	w.U32(h.StringTableOffset)
	w.U32(h.StringTableSize)
	w.U64(uint64(h.CreationTimestamp))
	crcOff := w.Len()
	w.U32(0)
	w.Zero(20)
	crc := byteio.CRC32(w.Bytes())
	w.PutU32At(crcOff, crc)
	copy(buf[:HeaderSize], w.Bytes())
}
