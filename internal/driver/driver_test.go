package driver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smoftools/smof/internal/arena"
	"github.com/smoftools/smof/internal/compress"
	"github.com/smoftools/smof/internal/errs"
	"github.com/smoftools/smof/internal/layout"
	"github.com/smoftools/smof/internal/objfmt"
)

// TestLinkMinimalREL32 grounds scenario S1: one object defining "_start"
// and referencing it via a REL32 relocation links into a single output
// object whose relocation site carries the correctly patched displacement.
func TestLinkMinimalREL32(t *testing.T) {
	obj := &objfmt.Object{
		Sections: []objfmt.Section{
			{Name: ".text", Size: 12, Flags: objfmt.SecExecutable | objfmt.SecReadable | objfmt.SecLoadable, Align: 0,
				Data: []byte{0x55, 0x89, 0xE5, 0xE8, 0x00, 0x00, 0x00, 0x00, 0x5D, 0xC3, 0x90, 0x90}},
		},
		Symbols: []objfmt.Symbol{
			{Name: "_start", Value: 0, Section: 0, Type: objfmt.SymFunc, Binding: objfmt.BindGlobal},
		},
		Relocations: []objfmt.Relocation{
			{Offset: 4, Symbol: 0, Type: objfmt.RelRel32, Section: 0},
		},
	}

	a := arena.New(4096)
	result, err := Link(context.Background(), []*objfmt.Object{obj}, []string{"a.o"}, a, LinkOptions{
		OutputType:  layout.OutputExecutable,
		BaseAddress: 0x1000,
		PageSize:    0x1000,
	})
	require.NoError(t, err)
	require.Len(t, result.Object.Sections, 1)
	require.Equal(t, uint32(0x1000), result.Object.Sections[0].VirtualAddr)
	require.Equal(t, uint32(0x1000), result.EntryPoint)

	patched := result.Object.Sections[0].Data[4:8]
	// S = 0x1000 (the _start symbol's own section VA), A = 0 (embedded
	// call displacement), P = 0x1000 + 4 = 0x1004. S+A-P = -4.
	require.Equal(t, []byte{0xFC, 0xFF, 0xFF, 0xFF}, patched)
}

func TestLinkReportsUnresolvedSymbol(t *testing.T) {
	obj := &objfmt.Object{
		Sections: []objfmt.Section{
			{Name: ".text", Size: 8, Flags: objfmt.SecExecutable | objfmt.SecLoadable, Data: make([]byte, 8)},
		},
		Relocations: []objfmt.Relocation{
			{Offset: 0, Symbol: 0, Type: objfmt.RelAbs32, Section: 0},
		},
		Symbols: []objfmt.Symbol{
			{Name: "missing", Section: objfmt.UndefinedSection, Binding: objfmt.BindGlobal},
		},
	}

	a := arena.New(4096)
	_, err := Link(context.Background(), []*objfmt.Object{obj}, []string{"a.o"}, a, LinkOptions{
		OutputType: layout.OutputExecutable, BaseAddress: 0x1000, PageSize: 0x1000,
	})
	require.Error(t, err)
}

func TestLinkRejectsMismatchedObjsAndNames(t *testing.T) {
	a := arena.New(4096)
	_, err := Link(context.Background(), []*objfmt.Object{{}}, nil, a, LinkOptions{PageSize: 0x1000})
	require.Error(t, err)
}

// TestArchiveCreateExtractRoundTrip grounds scenario S4.
func TestArchiveCreateExtractRoundTrip(t *testing.T) {
	sources := []SourceMember{
		{Name: "readme.txt", Payload: []byte("hello archive"), Mode: 0644},
		{Name: "data.bin", Payload: []byte{1, 2, 3, 4, 5}, Mode: 0644, Executable: true},
	}
	data, err := Create(context.Background(), sources, ArchiveOptions{Compression: compress.TagZlib})
	require.NoError(t, err)

	archive, err := Extract(context.Background(), data, nil)
	require.NoError(t, err)
	require.Len(t, archive.Members, 2)

	infos := List(archive)
	require.Len(t, infos, 2)
	require.Equal(t, "readme.txt", infos[0].Name)
	require.Equal(t, uint64(len("hello archive")), infos[0].Size)
}

// TestArchiveValidateDetectsCorruption grounds scenario S5.
func TestArchiveValidateDetectsCorruption(t *testing.T) {
	data, err := Create(context.Background(), []SourceMember{{Name: "a", Payload: []byte("hello")}}, ArchiveOptions{})
	require.NoError(t, err)

	data[len(data)-1] ^= 0xFF

	err = Validate(data)
	require.Error(t, err)
}

// TestExtractRecoversUncorruptedMembers completes scenario S5: damage to
// one member out of three must not prevent the other two from extracting.
func TestExtractRecoversUncorruptedMembers(t *testing.T) {
	sources := []SourceMember{
		{Name: "a.txt", Payload: []byte("first member contents")},
		{Name: "b.txt", Payload: []byte("second member contents, to be corrupted")},
		{Name: "c.txt", Payload: []byte("third member contents")},
	}
	data, err := Create(context.Background(), sources, ArchiveOptions{})
	require.NoError(t, err)

	probe, err := Extract(context.Background(), data, nil)
	require.NoError(t, err)
	corruptOffset := int(probe.Members[1].Header.DataOffset)
	data[corruptOffset] ^= 0xFF

	archive, err := Extract(context.Background(), data, nil)
	require.NoError(t, err)
	require.Len(t, archive.Members, 3)

	require.NoError(t, archive.Members[0].Err)
	require.Equal(t, []byte("first member contents"), archive.Members[0].Payload)

	require.Error(t, archive.Members[1].Err)
	require.True(t, errs.Is(archive.Members[1].Err, errs.ChecksumMismatch))

	require.NoError(t, archive.Members[2].Err)
	require.Equal(t, []byte("third member contents"), archive.Members[2].Payload)

	dir := t.TempDir()
	err = WriteExtracted(archive, dir)
	require.Error(t, err) // reports the one failed member...

	for _, name := range []string{"a.txt", "c.txt"} {
		written, readErr := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, readErr) // ...but still writes the other two.
		require.NotEmpty(t, written)
	}
	_, err = os.Stat(filepath.Join(dir, "b.txt"))
	require.True(t, os.IsNotExist(err))
}

func TestArchiveIndexedBuildsSymbolIndex(t *testing.T) {
	a := arena.New(4096)
	obj := &objfmt.Object{
		Sections: []objfmt.Section{
			{Name: ".text", Size: 4, Flags: objfmt.SecExecutable | objfmt.SecReadable | objfmt.SecLoadable, Data: make([]byte, 4)},
		},
		Symbols: []objfmt.Symbol{
			{Name: "exported_fn", Value: 0x10, Section: 0, Binding: objfmt.BindExport, Type: objfmt.SymFunc},
			{Name: "local_fn", Value: 0x20, Section: 0, Binding: objfmt.BindLocal, Type: objfmt.SymFunc},
		},
	}
	objBytes, err := objfmt.Emit(obj)
	require.NoError(t, err)
	_, err = objfmt.Parse(objBytes, a)
	require.NoError(t, err)

	data, err := Create(context.Background(), []SourceMember{{Name: "lib.o", Payload: objBytes}}, ArchiveOptions{Indexed: true, Sorted: true})
	require.NoError(t, err)

	archive, err := Extract(context.Background(), data, nil)
	require.NoError(t, err)

	idx := SymbolIndexOf(archive)
	require.NotNil(t, idx)
	_, ok := idx.Find("exported_fn")
	require.True(t, ok)
	_, ok = idx.Find("local_fn")
	require.False(t, ok)
}
