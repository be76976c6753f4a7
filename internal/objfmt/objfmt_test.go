package objfmt

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smoftools/smof/internal/arena"
	"github.com/smoftools/smof/internal/errs"
)

func minimalObject() *Object {
	return &Object{
		Header: Header{Flags: FlagExecutable},
		Sections: []Section{
			{Name: ".text", VirtualAddr: 0x1000, Size: 12, Flags: SecExecutable | SecReadable | SecLoadable, Align: 2,
				Data: []byte{0x55, 0x89, 0xE5, 0xE8, 0x00, 0x00, 0x00, 0x00, 0x5D, 0xC3, 0x90, 0x90}},
		},
		Symbols: []Symbol{
			{Name: "_start", Value: 0, Size: 0, Section: 0, Type: SymFunc, Binding: BindGlobal},
		},
		Relocations: []Relocation{
			{Offset: 4, Symbol: 0, Type: RelRel32, Section: 0},
		},
	}
}

func TestEmitParseRoundTrip(t *testing.T) {
	obj := minimalObject()
	data, err := Emit(obj)
	require.NoError(t, err)

	a := arena.New(4096)
	parsed, err := Parse(data, a)
	require.NoError(t, err)

	require.Len(t, parsed.Sections, 1)
	require.Equal(t, ".text", parsed.Sections[0].Name)
	require.Equal(t, uint32(0x1000), parsed.Sections[0].VirtualAddr)
	require.Equal(t, obj.Sections[0].Data, parsed.Sections[0].Data)

	require.Len(t, parsed.Symbols, 1)
	require.Equal(t, "_start", parsed.Symbols[0].Name)
	require.Equal(t, BindGlobal, parsed.Symbols[0].Binding)

	require.Len(t, parsed.Relocations, 1)
	require.Equal(t, uint32(4), parsed.Relocations[0].Offset)
	require.Equal(t, RelRel32, parsed.Relocations[0].Type)
}

func TestParseRejectsBadMagic(t *testing.T) {
	data := make([]byte, HeaderSize)
	a := arena.New(1024)
	_, err := Parse(data, a)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.InvalidMagic))
}

func TestParseRejectsTruncatedHeader(t *testing.T) {
	a := arena.New(1024)
	_, err := Parse([]byte{0x46, 0x4F, 0x4D, 0x53}, a)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.Truncated))
}

func TestParseRejectsBigEndianFlag(t *testing.T) {
	obj := minimalObject()
	obj.Header.Flags |= HeaderFlags(0x0100) // a bit within the reserved endianness mask
	data, err := Emit(obj)
	require.NoError(t, err)

	a := arena.New(4096)
	_, err = Parse(data, a)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.CorruptHeader))
}

func TestParseRejectsSectionCountOverflow(t *testing.T) {
	obj := minimalObject()
	data, err := Emit(obj)
	require.NoError(t, err)

	// Corrupt the section_count field (offset 12, little-endian uint16) to
	// exceed MaxSections.
	data[12] = 0xFF
	data[13] = 0xFF

	a := arena.New(8192)
	_, err = Parse(data, a)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.CorruptHeader))
}

func TestParseRejectsMisalignedLoadableSection(t *testing.T) {
	obj := minimalObject()
	obj.Sections[0].VirtualAddr = 0x1001 // not a multiple of 2^2
	data, err := Emit(obj)
	require.NoError(t, err)

	a := arena.New(4096)
	_, err = Parse(data, a)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.InvalidSection))
}

func TestParseRejectsAlignmentExponentAbove31(t *testing.T) {
	obj := minimalObject()
	obj.Sections[0].Align = 32
	obj.Sections[0].Flags &^= SecLoadable // avoid alignment-mismatch masking this check
	data, err := Emit(obj)
	require.NoError(t, err)

	a := arena.New(4096)
	_, err = Parse(data, a)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.InvalidSection))
}

func TestValidateRelocationsCatchesOutOfRangeOffset(t *testing.T) {
	obj := minimalObject()
	obj.Relocations[0].Offset = 100 // past the 12-byte section
	err := ValidateRelocations(obj)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.InvalidRelocation))
}

func TestZeroFillSectionRoundTrips(t *testing.T) {
	obj := &Object{
		Sections: []Section{
			{Name: ".bss", VirtualAddr: 0x2000, Size: 256, Flags: SecWritable | SecReadable | SecLoadable | SecZeroFill, Align: 0},
		},
	}
	data, err := Emit(obj)
	require.NoError(t, err)

	a := arena.New(4096)
	parsed, err := Parse(data, a)
	require.NoError(t, err)
	require.Len(t, parsed.Sections, 1)
	require.Equal(t, uint32(0), parsed.Sections[0].FileOffset)
	require.Nil(t, parsed.Sections[0].Data)
}
