package layout

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smoftools/smof/internal/objfmt"
)

func TestAssignOrdersBucketsAndAligns(t *testing.T) {
	sections := []objfmt.Section{
		{Name: ".data", Size: 8, Flags: objfmt.SecWritable | objfmt.SecReadable | objfmt.SecLoadable, Align: 2},
		{Name: ".text", Size: 10, Flags: objfmt.SecExecutable | objfmt.SecReadable | objfmt.SecLoadable, Align: 4},
		{Name: ".rodata", Size: 4, Flags: objfmt.SecReadable | objfmt.SecLoadable, Align: 0},
		{Name: ".comment", Size: 4, Flags: 0, Align: 0},
	}

	res, err := Assign(sections, Options{BaseAddress: 0x1000, PageSize: 0x1000, OutputType: OutputExecutable})
	require.NoError(t, err)
	require.Len(t, res.Placements, 3)

	byIdx := make(map[int]Placement)
	for _, p := range res.Placements {
		byIdx[p.SectionIndex] = p
	}

	// .text (executable bucket) placed first at the base address.
	require.Equal(t, uint64(0x1000), byIdx[1].VirtualAddr)
	// .rodata (read-only bucket) starts on the next page boundary.
	require.Equal(t, uint64(0x2000), byIdx[2].VirtualAddr)
	// .data (writable bucket) follows .rodata on another page boundary.
	require.Equal(t, uint64(0x3000), byIdx[0].VirtualAddr)

	require.Equal(t, uint64(0x1000), res.EntryPoint)
}

func TestAssignRejectsNonPowerOfTwoPageSize(t *testing.T) {
	_, err := Assign(nil, Options{PageSize: 3, OutputType: OutputExecutable})
	require.Error(t, err)
}

func TestAssignFillsGapsForBinaryFlat(t *testing.T) {
	sections := []objfmt.Section{
		{Name: ".text", Size: 4, Flags: objfmt.SecExecutable | objfmt.SecLoadable, Align: 0},
		{Name: ".data", Size: 4, Flags: objfmt.SecWritable | objfmt.SecLoadable, Align: 8},
	}

	res, err := Assign(sections, Options{BaseAddress: 0, PageSize: 0x1000, OutputType: OutputBinaryFlat, FillGaps: true, FillValue: 0xFF})
	require.NoError(t, err)
	require.NotEmpty(t, res.Fill)

	// .data's alignment exponent 8 places it at 2^8 = 0x100, leaving a
	// 0x100 - 4 = 252 byte gap after .text.
	fill, ok := res.Fill[4]
	require.True(t, ok)
	require.Len(t, fill, 252)
	for _, b := range fill {
		require.Equal(t, byte(0xFF), b)
	}
}

func TestAssignPlacesSingleSection(t *testing.T) {
	sections := []objfmt.Section{
		{Name: ".a", Size: 16, Flags: objfmt.SecReadable | objfmt.SecLoadable, Align: 0},
	}
	res, err := Assign(sections, Options{BaseAddress: 0x1000, PageSize: 0x1000, OutputType: OutputObject})
	require.NoError(t, err)
	require.Len(t, res.Placements, 1)
}
