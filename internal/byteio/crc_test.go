package byteio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCRC32KnownVector(t *testing.T) {
	require.Equal(t, uint32(0xCBF43926), CRC32([]byte("123456789")))
}

func TestCRC32Empty(t *testing.T) {
	require.Equal(t, uint32(0), CRC32(nil))
}
