// Package arfmt implements the STAR archive container: a 64-byte archive
// header, a fixed-size member table, a de-duplicated string table, a data
// region holding (optionally compressed) member bytes, and an optional
// trailing symbol index. It mirrors the layered header/table/data
// structure the teacher uses for its own container format (superblock
// plus object headers in internal/core), generalized from HDF5's
// superblock to a flat archive of members.
package arfmt

import "github.com/smoftools/smof/internal/compress"

// Magic identifies a STAR archive file.
const Magic uint32 = 0x53544152

// CurrentVersion is the only archive format version this codec emits.
const CurrentVersion uint16 = 1

// HeaderSize is the fixed size, in bytes, of the archive header.
const HeaderSize = 64

// MemberHeaderSize is the fixed size, in bytes, of one member-table entry.
const MemberHeaderSize = 128

// SymbolIndexEntrySize is the fixed size, in bytes, of one symbol-index
// entry.
const SymbolIndexEntrySize = 16

// MaxMemberNameLen is the maximum member name length in bytes.
const MaxMemberNameLen = 256

// MaxMemberCount is the maximum number of members one archive may hold.
const MaxMemberCount = 65535

// RegionAlignment is the byte alignment required of the member-table,
// string-table, and symbol-index region offsets.
const RegionAlignment = 8

// Flags on the archive header.
type Flags uint16

// Recognized archive-level flags.
const (
	FlagCompressed Flags = 1 << iota
	FlagIndexed
	FlagSorted
	FlagLittleEndian
	FlagBigEndian
)

// MemberFlags describes per-member attributes preserved across archiving.
type MemberFlags uint16

// Recognized member flags.
const (
	MemberCompressed MemberFlags = 1 << iota
	MemberExecutable
	MemberReadOnly
)

// Header is the fixed 64-byte archive header.
type Header struct {
	Magic              uint32
	Version            uint16
	Flags              Flags
	MemberCount        uint32
	SymbolIndexOffset  uint32
	SymbolIndexSize    uint32
	MemberTableOffset  uint32
	StringTableOffset  uint32
	StringTableSize    uint32
	CreationTimestamp  int64
	HeaderChecksum     uint32
}

// MemberHeader is one fixed 128-byte member-table entry.
type MemberHeader struct {
	NameOffset       uint32
	UncompressedSize uint64
	CompressedSize   uint64
	DataOffset       uint64
	CRC32            uint32
	ModTime          int64
	Flags            MemberFlags
	Compression      compress.Tag
}

// Member couples a member's attributes, name, and uncompressed payload for
// building or inspecting an archive in memory.
type Member struct {
	Name        string
	Payload     []byte
	Mode        uint32
	ModTime     int64
	Executable  bool
	ReadOnly    bool
	Compression compress.Tag
	// Level is the compression level in [0,9]; negative selects the
	// codec's own default.
	Level int
}

// Archive is a fully parsed STAR archive.
type Archive struct {
	Header      Header
	Members     []ParsedMember
	SymbolIndex []SymbolIndexEntry
}

// ParsedMember is one member as recovered from a parsed archive: its
// header, resolved name, and decompressed payload. Err is non-nil when
// this member's own data failed to decompress or verify; the member's
// table entry was still structurally sound (Parse keeps reading the
// remaining members in that case), so Payload is nil and every sibling
// member is unaffected.
type ParsedMember struct {
	Header  MemberHeader
	Name    string
	Payload []byte
	Err     error
}

// SymbolIndexEntry maps one exported symbol name to the member that
// defines it and the symbol's own attributes, supporting fast
// "which member defines X" lookups without scanning every member's own
// symbol table.
type SymbolIndexEntry struct {
	Name        string
	MemberIndex uint32
	Value       uint32
	Type        uint8
	Binding     uint8
}
