// Package layout assigns virtual addresses to loadable sections, honoring
// alignment, page size, base address, and section order. It generalizes
// the teacher's end-of-file space allocator from file offsets to virtual
// addresses, keeping the same overlap-tracking discipline.
package layout

import (
	"fmt"
	"sort"

	"github.com/smoftools/smof/internal/errs"
	"github.com/smoftools/smof/internal/objfmt"
	"github.com/smoftools/smof/internal/utils"
)

// OutputType selects the emitted artifact shape, which in turn controls
// page-boundary rounding between buckets.
type OutputType int

// Output types recognized by the linker.
const (
	OutputExecutable OutputType = iota
	OutputSharedLibrary
	OutputStaticLibrary
	OutputObject
	OutputBinaryFlat
)

// Options configures a layout pass.
type Options struct {
	BaseAddress uint64
	PageSize    uint64 // must be a power of two
	OutputType  OutputType
	FillGaps    bool
	FillValue   byte
}

// Placement records the address and byte range Assign chose for one
// section, indexed the same as the input slice.
type Placement struct {
	SectionIndex int
	VirtualAddr  uint64
	Size         uint64
}

// Result is the outcome of a layout pass.
type Result struct {
	Placements []Placement
	EntryPoint uint64
	// Fill holds synthesized fill bytes for gaps between consecutive
	// loaded sections, keyed by the virtual address the fill starts at.
	// Only populated when Options.FillGaps is true and OutputType is
	// OutputBinaryFlat.
	Fill map[uint64][]byte
}

// bucket is one of the three ordered placement groups from the
// specification: executable+loadable, read-only loadable, writable
// loadable. Non-loadable sections receive no VA and are omitted.
type bucket struct {
	indices []int
}

// Assign lays out sections according to §4.6 of the format specification:
// partition into three buckets, then place bucket by bucket from
// opts.BaseAddress, rounding each section up to its own alignment and each
// bucket boundary up to the page size for EXECUTABLE/SHARED_LIBRARY
// outputs.
func Assign(sections []objfmt.Section, opts Options) (*Result, error) {
	if opts.PageSize == 0 || opts.PageSize&(opts.PageSize-1) != 0 {
		return nil, errs.New(errs.InvalidArgument, fmt.Sprintf("page_size %d is not a power of two", opts.PageSize), nil)
	}

	buckets := partition(sections)

	cur := opts.BaseAddress
	var placements []Placement
	roundPage := opts.OutputType == OutputExecutable || opts.OutputType == OutputSharedLibrary

	for bi, b := range buckets {
		if bi > 0 && roundPage && len(b.indices) > 0 {
			next, err := roundUp(cur, opts.PageSize)
			if err != nil {
				return nil, errs.New(errs.InvalidSection, "virtual address overflow rounding to page boundary", err)
			}
			cur = next
		}
		for _, idx := range b.indices {
			sec := &sections[idx]
			align := sec.AlignBytes()
			if align == 0 {
				align = 1
			}
			next, err := roundUp(cur, align)
			if err != nil {
				return nil, errs.New(errs.InvalidSection,
					fmt.Sprintf("virtual address overflow aligning section %d", idx), err)
			}
			cur = next
			placements = append(placements, Placement{SectionIndex: idx, VirtualAddr: cur, Size: uint64(sec.Size)})
			cur, err = utils.SafeAdd(cur, uint64(sec.Size))
			if err != nil {
				return nil, errs.New(errs.InvalidSection,
					fmt.Sprintf("virtual address overflow past section %d", idx), err)
			}
		}
	}

	if err := checkNonOverlap(placements); err != nil {
		return nil, err
	}

	result := &Result{Placements: placements}

	if opts.FillGaps && opts.OutputType == OutputBinaryFlat {
		result.Fill = computeGaps(placements, opts.FillValue)
	}

	entry, err := resolveEntryPoint(sections, placements)
	if err != nil {
		return nil, err
	}
	result.EntryPoint = entry

	return result, nil
}

func partition(sections []objfmt.Section) [3]bucket {
	var buckets [3]bucket
	for i, sec := range sections {
		if sec.Flags&objfmt.SecLoadable == 0 {
			continue
		}
		switch {
		case sec.Flags&objfmt.SecExecutable != 0:
			buckets[0].indices = append(buckets[0].indices, i)
		case sec.Flags&objfmt.SecWritable == 0:
			buckets[1].indices = append(buckets[1].indices, i)
		default:
			buckets[2].indices = append(buckets[2].indices, i)
		}
	}
	return buckets
}

func roundUp(v, align uint64) (uint64, error) {
	if align <= 1 {
		return v, nil
	}
	padded, err := utils.SafeAdd(v, align-1)
	if err != nil {
		return 0, err
	}
	return padded &^ (align - 1), nil
}

func checkNonOverlap(placements []Placement) error {
	sorted := make([]Placement, len(placements))
	copy(sorted, placements)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].VirtualAddr < sorted[j].VirtualAddr })
	for i := 1; i < len(sorted); i++ {
		prevEnd := sorted[i-1].VirtualAddr + sorted[i-1].Size
		if sorted[i].Size > 0 && sorted[i].VirtualAddr < prevEnd {
			return errs.New(errs.InvalidSection,
				fmt.Sprintf("sections overlap at VA 0x%X", sorted[i].VirtualAddr), nil)
		}
	}
	return nil
}

func computeGaps(placements []Placement, fillValue byte) map[uint64][]byte {
	sorted := make([]Placement, len(placements))
	copy(sorted, placements)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].VirtualAddr < sorted[j].VirtualAddr })

	fills := make(map[uint64][]byte)
	for i := 1; i < len(sorted); i++ {
		prevEnd := sorted[i-1].VirtualAddr + sorted[i-1].Size
		gap := sorted[i].VirtualAddr - prevEnd
		if gap > 0 {
			buf := make([]byte, gap)
			for j := range buf {
				buf[j] = fillValue
			}
			fills[prevEnd] = buf
		}
	}
	return fills
}

// resolveEntryPoint computes the last-resort half of §4.6 step 4: the VA of
// the first executable section. Assign has no symbol table to check for a
// "_start" definition, so it always returns this fallback value; the driver
// (which does have the resolver) tries "_start" first and only falls back
// to this result when that lookup fails.
func resolveEntryPoint(sections []objfmt.Section, placements []Placement) (uint64, error) {
	for _, p := range placements {
		if sections[p.SectionIndex].Flags&objfmt.SecExecutable != 0 {
			return p.VirtualAddr, nil
		}
	}
	return 0, nil
}
