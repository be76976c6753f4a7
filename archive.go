package smof

import (
	"context"
	"os"

	"github.com/smoftools/smof/internal/arfmt"
	"github.com/smoftools/smof/internal/driver"
	"github.com/smoftools/smof/internal/errs"
	"github.com/smoftools/smof/internal/symindex"
)

// OpenArchive reads and parses a STAR archive file from path.
func OpenArchive(path string) (*Archive, error) {
	//nolint:gosec // G304: caller-provided path is intentional for an archiver tool
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.New(errs.FileIO, "archive file open failed", err)
	}
	return ParseArchive(data)
}

// ParseArchive parses a STAR archive already held in memory.
func ParseArchive(data []byte) (*Archive, error) {
	return arfmt.Parse(data)
}

// Members returns every member recovered from an archive.
func Members(a *Archive) []ArchiveMember { return a.Members }

// SymbolIndex builds a queryable symbol index from an archive's embedded
// symbol table, or nil if the archive carries none.
func SymbolIndex(a *Archive) *symindex.Index { return driver.SymbolIndexOf(a) }

// ValidateArchive re-derives every checksum and region invariant for raw
// archive bytes, returning the first violation found.
func ValidateArchive(data []byte) error { return driver.Validate(data) }

// ExtractArchiveTo writes every member of a to files under dir, restoring
// the EXECUTABLE/READONLY attributes recorded in each member header.
func ExtractArchiveTo(a *Archive, dir string) error { return driver.WriteExtracted(a, dir) }

// ExtractArchive parses raw STAR archive bytes and writes every member to
// dir in one step. A member with a checksum or decompression failure does
// not prevent the rest from being written: ExtractArchive still returns
// the parsed Archive (inspect its Members for per-member Err) alongside
// the aggregated write error, if any.
func ExtractArchive(ctx context.Context, data []byte, dir string) (*Archive, error) {
	a, err := driver.Extract(ctx, data, nil)
	if err != nil {
		return nil, err
	}
	return a, driver.WriteExtracted(a, dir)
}
