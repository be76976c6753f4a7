// Package byteio provides endian-aware, bounds-checked byte-level access
// over immutable slices and growable buffers, plus a pooled scratch-buffer
// allocator and CRC-32 checksumming shared by the OBJ and AR codecs.
package byteio

import "sync"

var scratchPool = sync.Pool{
	New: func() interface{} {
		return make([]byte, 0, 4096)
	},
}

// GetScratch returns a byte slice of length size from the pool.
func GetScratch(size int) []byte {
	buf := scratchPool.Get().([]byte)
	if cap(buf) < size {
		return make([]byte, size, size*2)
	}
	return buf[:size]
}

// ReleaseScratch returns a buffer obtained from GetScratch to the pool.
func ReleaseScratch(buf []byte) {
	scratchPool.Put(buf[:0]) //nolint:staticcheck // slice descriptor copy is fine for sync.Pool
}
