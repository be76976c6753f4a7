package arfmt

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smoftools/smof/internal/compress"
	"github.com/smoftools/smof/internal/errs"
)

func sampleMembers() []Member {
	return []Member{
		{Name: "alpha.o", Payload: []byte("alpha contents"), Mode: 0644, Compression: compress.TagNone},
		{Name: "beta.o", Payload: []byte("beta contents, a bit longer for compression"), Mode: 0644, Compression: compress.TagZlib},
	}
}

func TestCreateExtractRoundTrip(t *testing.T) {
	data, err := Emit(sampleMembers(), CreateOptions{})
	require.NoError(t, err)

	archive, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, archive.Members, 2)
	require.Equal(t, "alpha.o", archive.Members[0].Name)
	require.Equal(t, []byte("alpha contents"), archive.Members[0].Payload)
	require.Equal(t, "beta.o", archive.Members[1].Name)
	require.Equal(t, []byte("beta contents, a bit longer for compression"), archive.Members[1].Payload)
}

func TestParseRejectsBadMagic(t *testing.T) {
	data := make([]byte, HeaderSize)
	_, err := Parse(data)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.InvalidMagic))
}

func TestParseRejectsCorruptedHeaderChecksum(t *testing.T) {
	data, err := Emit(sampleMembers(), CreateOptions{})
	require.NoError(t, err)
	data[20] ^= 0xFF // perturb a header field covered by the checksum

	_, err = Parse(data)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.ChecksumMismatch))
}

func TestParseIsolatesCorruptedMemberPayload(t *testing.T) {
	data, err := Emit(sampleMembers(), CreateOptions{})
	require.NoError(t, err)

	// Flip a byte well within the data region (after the header, before
	// any member table or string table offsets).
	data[HeaderSize+2] ^= 0xFF

	archive, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, archive.Members, 2)
	require.Error(t, archive.Members[0].Err)
	require.True(t, errs.Is(archive.Members[0].Err, errs.ChecksumMismatch))
	require.Nil(t, archive.Members[0].Payload)
}

// TestParseRecoversRemainingMembersAfterOneCorrupted grounds the scenario
// where damage to one member's data still lets every other member extract.
func TestParseRecoversRemainingMembersAfterOneCorrupted(t *testing.T) {
	members := []Member{
		{Name: "alpha.o", Payload: []byte("alpha contents"), Compression: compress.TagNone},
		{Name: "beta.o", Payload: []byte("beta contents, corrupted below"), Compression: compress.TagNone},
		{Name: "gamma.o", Payload: []byte("gamma contents, still fine"), Compression: compress.TagNone},
	}
	data, err := Emit(members, CreateOptions{})
	require.NoError(t, err)

	archive, err := Parse(data)
	require.NoError(t, err)
	beta := archive.Members[1]
	corruptOffset := int(beta.Header.DataOffset)
	data[corruptOffset] ^= 0xFF

	archive, err = Parse(data)
	require.NoError(t, err)
	require.Len(t, archive.Members, 3)

	require.NoError(t, archive.Members[0].Err)
	require.Equal(t, []byte("alpha contents"), archive.Members[0].Payload)

	require.Error(t, archive.Members[1].Err)
	require.True(t, errs.Is(archive.Members[1].Err, errs.ChecksumMismatch))

	require.NoError(t, archive.Members[2].Err)
	require.Equal(t, []byte("gamma contents, still fine"), archive.Members[2].Payload)
}

func TestSymbolIndexRoundTrip(t *testing.T) {
	members := sampleMembers()
	opts := CreateOptions{
		Indexed: true,
		Sorted:  true,
		SymbolsOf: func(memberIndex int) []SymbolIndexEntry {
			if memberIndex == 0 {
				return []SymbolIndexEntry{{Name: "alpha_main", Value: 0x1000, Type: 2, Binding: 2}}
			}
			return []SymbolIndexEntry{{Name: "beta_init", Value: 0x2000, Type: 2, Binding: 3}}
		},
	}
	data, err := Emit(members, opts)
	require.NoError(t, err)

	archive, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, archive.SymbolIndex, 2)
	// Sorted lexicographically: "alpha_main" < "beta_init".
	require.Equal(t, "alpha_main", archive.SymbolIndex[0].Name)
	require.Equal(t, uint32(0), archive.SymbolIndex[0].MemberIndex)
	require.Equal(t, "beta_init", archive.SymbolIndex[1].Name)
	require.Equal(t, uint32(1), archive.SymbolIndex[1].MemberIndex)
}

func TestEmitRejectsTooManyMembers(t *testing.T) {
	members := make([]Member, MaxMemberCount+1)
	for i := range members {
		members[i] = Member{Name: "m", Payload: []byte{0}}
	}
	_, err := Emit(members, CreateOptions{})
	require.Error(t, err)
}

func TestEmitDeduplicatesRepeatedNames(t *testing.T) {
	members := []Member{
		{Name: "same.o", Payload: []byte("one")},
		{Name: "same.o", Payload: []byte("two")},
	}
	data, err := Emit(members, CreateOptions{})
	require.NoError(t, err)

	archive, err := Parse(data)
	require.NoError(t, err)
	require.Equal(t, "same.o", archive.Members[0].Name)
	require.Equal(t, "same.o", archive.Members[1].Name)
	require.Less(t, archive.Header.StringTableSize, uint32(len("same.o")+1)*2)
}

func TestEmptyArchiveRoundTrips(t *testing.T) {
	data, err := Emit(nil, CreateOptions{})
	require.NoError(t, err)

	archive, err := Parse(data)
	require.NoError(t, err)
	require.Empty(t, archive.Members)
}
