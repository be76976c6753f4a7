// Package smof provides a pure Go implementation of the SMOF object format
// and STAR archive format: parsing, emission, linking, and archiving. It
// supports the full SMOF/STAR toolchain described by the format's on-disk
// specification, with capabilities for reading and writing object files,
// resolving symbols across multiple objects, patching relocations, and
// packing or unpacking STAR archives.
package smof

import (
	"github.com/smoftools/smof/internal/arfmt"
	"github.com/smoftools/smof/internal/objfmt"
)

// Re-exported object-format types so callers depend only on the root
// package, mirroring the teacher's root-package File/Group re-export
// convention.
type (
	// Object is a fully parsed SMOF object file.
	Object = objfmt.Object
	// Section describes one section table entry.
	Section = objfmt.Section
	// Symbol describes one symbol table entry.
	Symbol = objfmt.Symbol
	// Relocation describes one relocation table entry.
	Relocation = objfmt.Relocation
	// Archive is a fully parsed STAR archive.
	Archive = arfmt.Archive
	// ArchiveMember is one member recovered from a parsed archive.
	ArchiveMember = arfmt.ParsedMember
)

// DefaultArenaCapacity is the minimum arena capacity ParseObject (and so
// OpenObject) allocates, and the per-object unit Link sizes its arena by.
// Archive parsing uses no arena.
const DefaultArenaCapacity = 64 * 1024
