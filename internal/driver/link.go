// Package driver orchestrates the lower-level codecs into the LINK and
// ARCH operations: opening inputs, running the symbol resolver and
// relocation engine, and emitting output. It mirrors the teacher's
// root-package File/Group orchestration style (construct a handle, thread
// one owned resource through a sequence of loads), generalized from a
// single HDF5 file to a multi-object link or multi-member archive
// operation.
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/smoftools/smof/internal/arena"
	"github.com/smoftools/smof/internal/errs"
	"github.com/smoftools/smof/internal/layout"
	"github.com/smoftools/smof/internal/objfmt"
	"github.com/smoftools/smof/internal/reloc"
	"github.com/smoftools/smof/internal/resolver"
)

// ProgressPhase identifies a link/archive phase boundary at which the
// optional progress callback is invoked.
type ProgressPhase string

// Recognized phase names, matching the ambient-stack logging texture.
const (
	PhaseLoading   ProgressPhase = "loading"
	PhaseResolving ProgressPhase = "resolving"
	PhaseWriting   ProgressPhase = "writing"
)

// ProgressFunc is invoked synchronously at each phase boundary. It must
// not mutate driver state.
type ProgressFunc func(phase ProgressPhase, detail string)

// LinkOptions configures one LINK invocation (§6.3).
type LinkOptions struct {
	OutputType          layout.OutputType
	EntryPoint          uint64
	BaseAddress         uint64
	PageSize            uint64
	StripDebug          bool
	PositionIndependent bool
	FillGaps            bool
	FillValue           byte
	GenerateMap         bool

	Logger   *slog.Logger
	Progress ProgressFunc
}

// MapEntry is one line of a generated linker map: a section's name,
// virtual address, and size.
type MapEntry struct {
	Name        string
	VirtualAddr uint64
	Size        uint64
}

// LinkResult is the outcome of a successful Link call.
type LinkResult struct {
	Object     *objfmt.Object
	EntryPoint uint64
	Map        []MapEntry
}

// linkedSection tracks one section carried into the link, alongside which
// input object and local section index it came from.
type linkedSection struct {
	objfmt.Section
	objID int
	local int
}

// Link consumes one or more parsed OBJs (already loaded into arena a) and
// produces a single linked object: accumulate symbols, lay out sections,
// patch relocations, and assemble the output Object. It implements the
// data flow: OBJ codec → arena model → resolver → layout → relocation
// engine → OBJ emission.
func Link(ctx context.Context, objs []*objfmt.Object, names []string, a *arena.Arena, opts LinkOptions) (*LinkResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if len(objs) != len(names) {
		return nil, errs.New(errs.InvalidArgument, "objs and names must have equal length", nil)
	}
	if opts.PageSize == 0 {
		opts.PageSize = 4096
	}

	notify := func(phase ProgressPhase, detail string) {
		logger.Info("link phase", "phase", string(phase), "detail", detail)
		if opts.Progress != nil {
			opts.Progress(phase, detail)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, errs.New(errs.Cancelled, "link cancelled before start", err)
	}

	notify(PhaseLoading, fmt.Sprintf("%d objects", len(objs)))

	var linked []linkedSection
	res := resolver.New()

	for objID, obj := range objs {
		if err := ctx.Err(); err != nil {
			return nil, errs.New(errs.Cancelled, "link cancelled during load", err)
		}
		logger.Debug("loading object", "object", names[objID], "sections", len(obj.Sections), "symbols", len(obj.Symbols))

		base := len(linked)
		for i, sec := range obj.Sections {
			linked = append(linked, linkedSection{Section: sec, objID: objID, local: i})
		}

		for _, sym := range obj.Symbols {
			adjusted := sym
			if !sym.IsUndefined() {
				adjusted.Section = uint16(base + int(sym.Section))
			}
			if err := res.Insert(objID, names[objID], adjusted); err != nil {
				return nil, err
			}
		}
	}

	notify(PhaseResolving, fmt.Sprintf("%d global symbols", len(res.Definitions())))
	if err := res.Finalize(); err != nil {
		return nil, err
	}

	rawSections := make([]objfmt.Section, len(linked))
	for i, ls := range linked {
		rawSections[i] = ls.Section
	}

	layoutResult, err := layout.Assign(rawSections, layout.Options{
		BaseAddress: opts.BaseAddress,
		PageSize:    opts.PageSize,
		OutputType:  opts.OutputType,
		FillGaps:    opts.FillGaps,
		FillValue:   opts.FillValue,
	})
	if err != nil {
		return nil, err
	}

	vaBySection := make(map[int]uint64, len(layoutResult.Placements))
	for _, p := range layoutResult.Placements {
		vaBySection[p.SectionIndex] = p.VirtualAddr
	}

	notify(PhaseWriting, "patching relocations")

	sectionData := make([][]byte, len(linked))
	views := make([]reloc.SectionView, 0, len(linked))
	for i, ls := range linked {
		data := make([]byte, len(ls.Data))
		copy(data, ls.Data)
		sectionData[i] = data
		views = append(views, reloc.SectionView{SectionIndex: i, VirtualAddr: vaBySection[i], Data: data})
	}

	globalIndexOf := make(map[[2]int]int, len(linked))
	for i, ls := range linked {
		globalIndexOf[[2]int{ls.objID, ls.local}] = i
	}

	for objID, obj := range objs {
		symtab := &objSymtab{obj: obj, objID: objID, res: res, vaBySection: vaBySection}
		adjusted := make([]objfmt.Relocation, 0, len(obj.Relocations))
		for _, r := range obj.Relocations {
			global, ok := globalIndexOf[[2]int{objID, int(r.Section)}]
			if !ok {
				return nil, errs.New(errs.InvalidRelocation, fmt.Sprintf("object %q relocation targets unknown section %d", names[objID], r.Section), nil)
			}
			ar := r
			ar.Section = uint16(global)
			adjusted = append(adjusted, ar)
		}
		if err := reloc.Apply(adjusted, views, symtab); err != nil {
			return nil, fmt.Errorf("object %q: %w", names[objID], err)
		}
	}

	outSections := make([]objfmt.Section, len(linked))
	for i, ls := range linked {
		outSections[i] = ls.Section
		outSections[i].VirtualAddr = uint32(vaBySection[i])
		outSections[i].Data = sectionData[i]
	}

	entryPoint := opts.EntryPoint
	if entryPoint == 0 {
		if def, ok := res.LookupGlobal("_start"); ok {
			entryPoint = vaBySection[int(def.Section)] + uint64(def.Value)
		} else {
			entryPoint = layoutResult.EntryPoint
		}
	}

	out := &objfmt.Object{
		Header:   objfmt.Header{Flags: headerFlagsFor(opts.OutputType), EntryPoint: uint32(entryPoint)},
		Sections: outSections,
	}

	var mapEntries []MapEntry
	if opts.GenerateMap {
		mapEntries = buildMap(outSections)
	}

	return &LinkResult{Object: out, EntryPoint: entryPoint, Map: mapEntries}, nil
}

func headerFlagsFor(t layout.OutputType) objfmt.HeaderFlags {
	switch t {
	case layout.OutputExecutable:
		return objfmt.FlagExecutable
	case layout.OutputSharedLibrary:
		return objfmt.FlagSharedLib
	case layout.OutputStaticLibrary:
		return objfmt.FlagStatic
	default:
		return 0
	}
}

func buildMap(sections []objfmt.Section) []MapEntry {
	entries := make([]MapEntry, 0, len(sections))
	for _, s := range sections {
		entries = append(entries, MapEntry{Name: s.Name, VirtualAddr: uint64(s.VirtualAddr), Size: uint64(s.Size)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].VirtualAddr < entries[j].VirtualAddr })
	return entries
}

// objSymtab adapts one input object's local symbol table plus the
// resolver's global namespace to reloc.SymbolAddress: a relocation's
// Symbol field indexes obj.Symbols, whose name is then looked up in the
// resolver (honoring that object's LOCAL scope) and converted to a
// virtual address via the section VA the layout phase assigned.
type objSymtab struct {
	obj         *objfmt.Object
	objID       int
	res         *resolver.Resolver
	vaBySection map[int]uint64
}

func (s *objSymtab) lookup(symbolIndex uint16) (*resolver.Definition, error) {
	if int(symbolIndex) >= len(s.obj.Symbols) {
		return nil, errs.New(errs.InvalidRelocation, fmt.Sprintf("relocation references out-of-range symbol %d", symbolIndex), nil)
	}
	name := s.obj.Symbols[symbolIndex].Name
	def, ok := s.res.Lookup(s.objID, name)
	if !ok {
		return nil, errs.New(errs.UnresolvedSymbol, fmt.Sprintf("symbol %q", name), nil)
	}
	return def, nil
}

func (s *objSymtab) Value(symbolIndex uint16) (uint64, error) {
	def, err := s.lookup(symbolIndex)
	if err != nil {
		return 0, err
	}
	return s.vaBySection[int(def.Section)] + uint64(def.Value), nil
}

func (s *objSymtab) GOTSlot(symbolIndex uint16) (uint64, error) {
	return 0, errs.New(errs.InvalidRelocation, "GOT slots are not modeled in this linker", nil)
}

func (s *objSymtab) PLTEntry(symbolIndex uint16) (uint64, error) {
	return 0, errs.New(errs.InvalidRelocation, "PLT entries are not modeled in this linker", nil)
}

func (s *objSymtab) SyscallIndex(symbolIndex uint16) (uint64, error) {
	def, err := s.lookup(symbolIndex)
	if err != nil {
		return 0, err
	}
	return uint64(def.Value), nil
}
