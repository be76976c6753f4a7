package byteio

import "hash/crc32"

// CRC32 computes the IEEE CRC-32 of data (polynomial 0xEDB88320, initial
// value 0xFFFFFFFF, final XOR 0xFFFFFFFF), matching hash/crc32's default
// IEEE table exactly.
func CRC32(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}
