package objfmt

import (
	"fmt"

	"github.com/smoftools/smof/internal/errs"
)

// ValidateRelocations checks invariant 8: every relocation's section_index
// is in range and offset+sizeof(type) fits within its target section.
// Parse already checks the section-index bound while decoding; this
// additionally checks the offset-fits-in-section bound, which requires
// knowing each section's size. Parse runs it as a separate pass after
// decoding the relocation table, so every Object Parse returns has passed
// it.
func ValidateRelocations(obj *Object) error {
	for i, rel := range obj.Relocations {
		sec := &obj.Sections[rel.Section]
		width := uint32(rel.Type.Width())
		end, err := addU32(rel.Offset, width)
		if err != nil || end > sec.Size {
			return errs.At(errs.InvalidRelocation,
				fmt.Sprintf("relocation %d: offset %d+%d exceeds section %q size %d", i, rel.Offset, width, sec.Name, sec.Size),
				int64(rel.Offset), nil)
		}
	}
	return nil
}

func addU32(a, b uint32) (uint32, error) {
	sum := uint64(a) + uint64(b)
	if sum > 0xFFFFFFFF {
		return 0, fmt.Errorf("uint32 overflow")
	}
	return uint32(sum), nil
}
