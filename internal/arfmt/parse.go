package arfmt

import (
	"fmt"

	"github.com/smoftools/smof/internal/byteio"
	"github.com/smoftools/smof/internal/compress"
	"github.com/smoftools/smof/internal/errs"
)

// Parse validates and decodes a complete STAR archive, decompressing every
// member's payload and verifying its CRC-32 against the member header. A
// member whose own data is corrupt does not abort the archive: its
// ParsedMember.Err is set to a CHECKSUM_MISMATCH (or decompression) error
// and every other member is still recovered, matching the scenario where
// an archive sustains localized, member-scoped damage.
func Parse(data []byte) (*Archive, error) {
	hdr, err := parseHeader(data)
	if err != nil {
		return nil, err
	}

	if err := checkRegionInvariants(hdr, len(data)); err != nil {
		return nil, err
	}

	stringTable := data[hdr.StringTableOffset : hdr.StringTableOffset+hdr.StringTableSize]

	members := make([]ParsedMember, 0, hdr.MemberCount)
	r := byteio.NewReader(data)
	for i := uint32(0); i < hdr.MemberCount; i++ {
		off := int(hdr.MemberTableOffset) + int(i)*MemberHeaderSize
		mh, err := parseMemberHeader(r, off)
		if err != nil {
			return nil, fmt.Errorf("member %d: %w", i, err)
		}

		name, err := nameAt(stringTable, mh.NameOffset)
		if err != nil {
			return nil, fmt.Errorf("member %d: %w", i, err)
		}

		if mh.DataOffset+mh.CompressedSize > uint64(len(data)) {
			return nil, errs.At(errs.Truncated, fmt.Sprintf("member %d (%s) data extends past end of file", i, name), int64(mh.DataOffset), nil)
		}
		raw := data[mh.DataOffset : mh.DataOffset+mh.CompressedSize]

		payload, err := decodeMember(mh, name, raw)
		if err != nil {
			members = append(members, ParsedMember{Header: mh, Name: name, Err: fmt.Errorf("member %d (%s): %w", i, name, err)})
			continue
		}

		members = append(members, ParsedMember{Header: mh, Name: name, Payload: payload})
	}

	var symIndex []SymbolIndexEntry
	if hdr.Flags&FlagIndexed != 0 && hdr.SymbolIndexSize > 0 {
		symIndex, err = parseSymbolIndex(data, hdr)
		if err != nil {
			return nil, err
		}
	}

	return &Archive{Header: hdr, Members: members, SymbolIndex: symIndex}, nil
}

// decodeMember decompresses one member's raw bytes and verifies its
// CRC-32, in isolation from every other member's table entry.
func decodeMember(mh MemberHeader, name string, raw []byte) ([]byte, error) {
	codec, err := compress.ByTag(mh.Compression)
	if err != nil {
		return nil, err
	}
	payload, err := codec.Decompress(raw, int(mh.UncompressedSize))
	if err != nil {
		return nil, err
	}
	if byteio.CRC32(payload) != mh.CRC32 {
		return nil, errs.New(errs.ChecksumMismatch, fmt.Sprintf("%s CRC-32 mismatch", name), nil)
	}
	return payload, nil
}

func parseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, errs.New(errs.Truncated, fmt.Sprintf("archive shorter than header (%d bytes)", len(data)), nil)
	}
	r := byteio.NewReader(data)

	magic, _ := r.U32()
	if magic != Magic {
		return Header{}, errs.New(errs.InvalidMagic, fmt.Sprintf("got 0x%08X, want 0x%08X", magic, Magic), nil)
	}
	version, _ := r.U16()
	if version != CurrentVersion {
		return Header{}, errs.New(errs.UnsupportedVersion, fmt.Sprintf("version %d", version), nil)
	}
	flags, _ := r.U16()
	memberCount, _ := r.U32()
	if memberCount > MaxMemberCount {
		return Header{}, errs.New(errs.CorruptHeader, fmt.Sprintf("member_count %d exceeds %d", memberCount, MaxMemberCount), nil)
	}
	symIdxOff, _ := r.U32()
	symIdxSize, _ := r.U32()
	memberTableOff, _ := r.U32()
	stringTableOff, _ := r.U32()
	stringTableSize, _ := r.U32()
	creationTS, _ := r.U64()
	storedCRC, _ := r.U32()

	verifyBuf := make([]byte, HeaderSize)
	copy(verifyBuf, data[:HeaderSize])
	// Zero the checksum field (offset 40, see writeHeaderInPlace) before
	// recomputing, matching emission's "checksum over the header with
	// this field set to 0".
	verifyBuf[40], verifyBuf[41], verifyBuf[42], verifyBuf[43] = 0, 0, 0, 0
	if got := byteio.CRC32(verifyBuf); got != storedCRC {
		return Header{}, errs.New(errs.ChecksumMismatch, fmt.Sprintf("header checksum 0x%08X != computed 0x%08X", storedCRC, got), nil)
	}

	return Header{
		Magic: magic, Version: version, Flags: Flags(flags), MemberCount: memberCount,
		SymbolIndexOffset: symIdxOff, SymbolIndexSize: symIdxSize,
		MemberTableOffset: memberTableOff, StringTableOffset: stringTableOff, StringTableSize: stringTableSize,
		CreationTimestamp: int64(creationTS), HeaderChecksum: storedCRC,
	}, nil
}

func checkRegionInvariants(hdr Header, fileLen int) error {
	type region struct {
		name        string
		off, size   uint64
		mayBeAbsent bool
	}
	regions := []region{
		{"member_table", uint64(hdr.MemberTableOffset), uint64(hdr.MemberCount) * MemberHeaderSize, true},
		{"string_table", uint64(hdr.StringTableOffset), uint64(hdr.StringTableSize), true},
		{"symbol_index", uint64(hdr.SymbolIndexOffset), uint64(hdr.SymbolIndexSize), true},
	}
	for _, reg := range regions {
		if reg.size == 0 {
			continue
		}
		if reg.off != 0 && reg.off < HeaderSize {
			return errs.New(errs.CorruptHeader, fmt.Sprintf("%s offset %d below header size", reg.name, reg.off), nil)
		}
		if reg.off+reg.size > uint64(fileLen) {
			return errs.New(errs.Truncated, fmt.Sprintf("%s extends past end of file", reg.name), nil)
		}
	}
	for i := 0; i < len(regions); i++ {
		for j := i + 1; j < len(regions); j++ {
			a, b := regions[i], regions[j]
			if a.size == 0 || b.size == 0 {
				continue
			}
			if a.off < b.off+b.size && b.off < a.off+a.size {
				return errs.New(errs.CorruptHeader, fmt.Sprintf("%s and %s regions overlap", a.name, b.name), nil)
			}
		}
	}
	return nil
}

func parseMemberHeader(r *byteio.Reader, off int) (MemberHeader, error) {
	nameOff, err := u32At(r, off)
	if err != nil {
		return MemberHeader{}, err
	}
	uncompSize, err := u64At(r, off+4)
	if err != nil {
		return MemberHeader{}, err
	}
	compSize, err := u64At(r, off+12)
	if err != nil {
		return MemberHeader{}, err
	}
	dataOff, err := u64At(r, off+20)
	if err != nil {
		return MemberHeader{}, err
	}
	crc, err := u32At(r, off+28)
	if err != nil {
		return MemberHeader{}, err
	}
	modTime, err := u64At(r, off+32)
	if err != nil {
		return MemberHeader{}, err
	}
	flags, err := r.U16At(off + 40)
	if err != nil {
		return MemberHeader{}, err
	}
	tag, err := r.U8At(off + 42)
	if err != nil {
		return MemberHeader{}, err
	}

	return MemberHeader{
		NameOffset: nameOff, UncompressedSize: uncompSize, CompressedSize: compSize,
		DataOffset: dataOff, CRC32: crc, ModTime: int64(modTime),
		Flags: MemberFlags(flags), Compression: compress.Tag(tag),
	}, nil
}

func parseSymbolIndex(data []byte, hdr Header) ([]SymbolIndexEntry, error) {
	base := int(hdr.SymbolIndexOffset)
	regionEnd := base + int(hdr.SymbolIndexSize)
	r := byteio.NewReader(data)

	count, err := u32At(r, base)
	if err != nil {
		return nil, err
	}
	entriesStart := base + 4
	nameTableOff := entriesStart + int(count)*SymbolIndexEntrySize
	if nameTableOff > regionEnd {
		return nil, errs.New(errs.CorruptHeader, "symbol index entry count overruns its region", nil)
	}
	nameTable := data[nameTableOff:regionEnd]

	entries := make([]SymbolIndexEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		off := entriesStart + int(i)*SymbolIndexEntrySize
		nameOff, err := u32At(r, off)
		if err != nil {
			return nil, err
		}
		memberIdx, err := u32At(r, off+4)
		if err != nil {
			return nil, err
		}
		value, err := u32At(r, off+8)
		if err != nil {
			return nil, err
		}
		symType, err := r.U8At(off + 12)
		if err != nil {
			return nil, err
		}
		binding, err := r.U8At(off + 13)
		if err != nil {
			return nil, err
		}
		if memberIdx >= hdr.MemberCount {
			return nil, errs.New(errs.InvalidSymbol, fmt.Sprintf("symbol index entry references invalid member %d", memberIdx), nil)
		}
		name, err := nameAt(nameTable, nameOff)
		if err != nil {
			return nil, err
		}
		entries = append(entries, SymbolIndexEntry{Name: name, MemberIndex: memberIdx, Value: value, Type: symType, Binding: binding})
	}
	return entries, nil
}

func nameAt(table []byte, off uint32) (string, error) {
	if off >= uint32(len(table)) {
		return "", errs.New(errs.Truncated, fmt.Sprintf("name offset %d out of range (table size %d)", off, len(table)), nil)
	}
	end := off
	for end < uint32(len(table)) && table[end] != 0 {
		end++
	}
	if end >= uint32(len(table)) {
		return "", errs.New(errs.Truncated, "unterminated name in string table", nil)
	}
	return string(table[off:end]), nil
}

func u32At(r *byteio.Reader, off int) (uint32, error) { return r.U32At(off) }
func u64At(r *byteio.Reader, off int) (uint64, error) { return r.U64At(off) }
