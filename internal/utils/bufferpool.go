// Package utils holds small, dependency-free helpers shared across the
// object, archive, and linker codecs: pooled scratch buffers for
// compression and overflow-checked size arithmetic.
package utils

import "sync"

// scratchPool holds byte slices sized for LZ4 block compression, which
// needs a scratch buffer per call and would otherwise allocate one on
// every member written to an archive.
var scratchPool = sync.Pool{
	New: func() interface{} {
		return make([]byte, 0, 4096)
	},
}

// GetScratch returns a scratch buffer of length size from the pool,
// allocating a new one if the pooled buffer is too small.
func GetScratch(size int) []byte {
	buf := scratchPool.Get().([]byte)
	if cap(buf) < size {
		return make([]byte, size, size*2)
	}
	return buf[:size]
}

// ReleaseScratch returns buf to the pool for reuse.
func ReleaseScratch(buf []byte) {
	//nolint:staticcheck // SA6002: slice descriptor copy is acceptable for sync.Pool
	scratchPool.Put(buf[:0])
}
