package symindex

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smoftools/smof/internal/arfmt"
)

func sampleEntries() []arfmt.SymbolIndexEntry {
	return []arfmt.SymbolIndexEntry{
		{Name: "http_get", MemberIndex: 0, Value: 0x1000, Type: 2, Binding: 2},
		{Name: "http_post", MemberIndex: 0, Value: 0x1100, Type: 2, Binding: 2},
		{Name: "tcp_connect", MemberIndex: 1, Value: 0x2000, Type: 2, Binding: 3},
	}
}

func TestFindExact(t *testing.T) {
	idx := Build(sampleEntries())
	e, ok := idx.Find("tcp_connect")
	require.True(t, ok)
	require.Equal(t, uint32(1), e.MemberIndex)

	_, ok = idx.Find("missing")
	require.False(t, ok)
}

func TestFindByPattern(t *testing.T) {
	idx := Build(sampleEntries())
	matches, err := idx.FindByPattern("http_*")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, "http_get", matches[0].Name)
	require.Equal(t, "http_post", matches[1].Name)
}

func TestEntriesPreserveInsertionOrder(t *testing.T) {
	idx := Build(sampleEntries())
	entries := idx.Entries()
	require.Equal(t, "http_get", entries[0].Name)
	require.Equal(t, "http_post", entries[1].Name)
	require.Equal(t, "tcp_connect", entries[2].Name)
}

func TestRoundTripToArchiveEntries(t *testing.T) {
	original := sampleEntries()
	idx := Build(original)
	back := idx.ToArchiveEntries()
	require.Equal(t, original, back)
}
