package smof

import (
	"os"

	"github.com/smoftools/smof/internal/arena"
	"github.com/smoftools/smof/internal/errs"
	"github.com/smoftools/smof/internal/objfmt"
)

// ObjectFile represents an open SMOF object file: its parsed in-memory
// model plus the arena that owns every slice referenced from it.
type ObjectFile struct {
	arena *arena.Arena
	obj   *objfmt.Object
}

// OpenObject reads and parses a SMOF object file from path.
func OpenObject(path string) (*ObjectFile, error) {
	//nolint:gosec // G304: caller-provided path is intentional for a linker/archiver tool
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.New(errs.FileIO, "object file open failed", err)
	}
	return ParseObject(data)
}

// ParseObject parses a SMOF object already held in memory, allocating a
// fresh arena sized to the input.
func ParseObject(data []byte) (*ObjectFile, error) {
	a := arena.New(max(len(data)*2, DefaultArenaCapacity))
	obj, err := objfmt.Parse(data, a)
	if err != nil {
		return nil, err
	}
	return &ObjectFile{arena: a, obj: obj}, nil
}

// Object returns the parsed object model. The returned value aliases
// arena-owned memory and must not be used after the ObjectFile is
// discarded.
func (f *ObjectFile) Object() *Object { return f.obj }

// Sections returns the object's section table.
func (f *ObjectFile) Sections() []Section { return f.obj.Sections }

// Symbols returns the object's symbol table.
func (f *ObjectFile) Symbols() []Symbol { return f.obj.Symbols }

// Relocations returns the object's relocation table.
func (f *ObjectFile) Relocations() []Relocation { return f.obj.Relocations }
