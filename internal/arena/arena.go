// Package arena provides a bump-allocated memory region backing parsed OBJ
// and AR structures. An arena has a single owner and a single lifetime: it
// is reset between top-level operations, never shared across them.
package arena

import (
	"fmt"
	"math"

	"github.com/smoftools/smof/internal/errs"
	"github.com/smoftools/smof/internal/utils"
)

// DefaultCapacity is the initial region size used when a caller does not
// request a specific one.
const DefaultCapacity = 64 * 1024

// Arena is a contiguous, fixed-capacity byte region. It never grows
// implicitly: a parse that exceeds capacity fails with OutOfMemory rather
// than silently reallocating, so callers size it deliberately up front.
type Arena struct {
	buf   []byte
	used  int
	peak  int
	count int
}

// New creates an Arena with the given capacity. A capacity of 0 uses
// DefaultCapacity.
func New(capacity int) *Arena {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Arena{buf: make([]byte, capacity)}
}

// Alloc reserves n bytes aligned to align (a power of two, 1 meaning no
// alignment requirement) and returns a slice into the arena's backing
// array. The slice is invalidated by the next Reset.
func (a *Arena) Alloc(n int, align int) ([]byte, error) {
	if n < 0 {
		return nil, errs.New(errs.InvalidArgument, "arena alloc: negative size", nil)
	}
	if align <= 0 {
		align = 1
	}
	alignedUsed, err := utils.SafeAdd(uint64(a.used), uint64(align-1))
	if err != nil {
		return nil, errs.New(errs.InvalidArgument, "arena alloc: alignment overflow", err)
	}
	padded := int(alignedUsed &^ uint64(align-1))
	end64, err := utils.SafeAdd(uint64(padded), uint64(n))
	if err != nil || end64 > math.MaxInt {
		return nil, errs.New(errs.InvalidArgument, "arena alloc: size overflow", err)
	}
	end := int(end64)
	if end > len(a.buf) {
		return nil, errs.New(errs.OutOfMemory,
			fmt.Sprintf("arena exhausted: requested %d bytes at %d, capacity %d", n, padded, len(a.buf)), nil)
	}
	a.used = end
	a.count++
	if a.used > a.peak {
		a.peak = a.used
	}
	return a.buf[padded:end], nil
}

// AllocCopy allocates len(src) bytes and copies src into them, returning
// the arena-owned copy. Used when interning bytes read from an input the
// arena does not itself own (e.g. a parsed file's byte slice).
func (a *Arena) AllocCopy(src []byte) ([]byte, error) {
	dst, err := a.Alloc(len(src), 1)
	if err != nil {
		return nil, err
	}
	copy(dst, src)
	return dst, nil
}

// Reset truncates the arena back to empty without zeroing memory. Every
// slice previously returned by Alloc becomes invalid.
func (a *Arena) Reset() {
	a.used = 0
	a.peak = 0
	a.count = 0
}

// Stats reports used, peak, and allocation count since the last Reset (peak
// also resets with Reset; it is not a lifetime high-water mark).
type Stats struct {
	Used  int
	Peak  int
	Count int
	Cap   int
}

// Stats returns the arena's current usage statistics.
func (a *Arena) Stats() Stats {
	return Stats{Used: a.used, Peak: a.peak, Count: a.count, Cap: len(a.buf)}
}
