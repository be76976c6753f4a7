package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/smoftools/smof/internal/arena"
	"github.com/smoftools/smof/internal/arfmt"
	"github.com/smoftools/smof/internal/compress"
	"github.com/smoftools/smof/internal/errs"
	"github.com/smoftools/smof/internal/objfmt"
	"github.com/smoftools/smof/internal/symindex"
)

// ArchiveOptions configures one ARCH create invocation.
type ArchiveOptions struct {
	Compression compress.Tag
	// Level is the compression level in [0,9]. A negative value (the zero
	// value of int is not used as "unset" since 0 is itself a valid
	// level) selects the codec's own declared default, mirroring
	// compress/zlib's DefaultCompression convention.
	Level   int
	Indexed bool
	Sorted  bool

	Logger   *slog.Logger
	Progress ProgressFunc
}

// SourceMember is one file or byte slice to add to an archive being
// created.
type SourceMember struct {
	Name       string
	Payload    []byte
	Mode       uint32
	ModTime    int64
	Executable bool
	ReadOnly   bool
}

// Create builds a STAR archive from sources, optionally attaching a symbol
// index of every GLOBAL/EXPORT symbol in any OBJ-shaped member.
func Create(ctx context.Context, sources []SourceMember, opts ArchiveOptions) ([]byte, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notify := func(phase ProgressPhase, detail string) {
		logger.Info("archive phase", "phase", string(phase), "detail", detail)
		if opts.Progress != nil {
			opts.Progress(phase, detail)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, errs.New(errs.Cancelled, "archive create cancelled before start", err)
	}

	notify(PhaseLoading, fmt.Sprintf("%d members", len(sources)))

	members := make([]arfmt.Member, 0, len(sources))
	parsedObjs := make([]*objfmt.Object, len(sources))
	a := arena.New(64 * 1024)

	for i, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, errs.New(errs.Cancelled, "archive create cancelled during load", err)
		}
		members = append(members, arfmt.Member{
			Name: src.Name, Payload: src.Payload, Mode: src.Mode, ModTime: src.ModTime,
			Executable: src.Executable, ReadOnly: src.ReadOnly, Compression: opts.Compression,
			Level: opts.Level,
		})

		if obj, err := objfmt.Parse(src.Payload, a); err == nil {
			parsedObjs[i] = obj
			logger.Debug("member parses as OBJ", "member", src.Name, "symbols", len(obj.Symbols))
		}
	}

	createOpts := arfmt.CreateOptions{Indexed: opts.Indexed, Sorted: opts.Sorted}
	if opts.Indexed {
		createOpts.SymbolsOf = func(memberIndex int) []arfmt.SymbolIndexEntry {
			obj := parsedObjs[memberIndex]
			if obj == nil {
				return nil
			}
			var entries []arfmt.SymbolIndexEntry
			for _, sym := range obj.Symbols {
				if sym.Binding != objfmt.BindGlobal && sym.Binding != objfmt.BindExport {
					continue
				}
				if sym.IsUndefined() {
					continue
				}
				entries = append(entries, arfmt.SymbolIndexEntry{
					Name: sym.Name, MemberIndex: uint32(memberIndex), Value: sym.Value,
					Type: uint8(sym.Type), Binding: uint8(sym.Binding),
				})
			}
			return entries
		}
	}

	notify(PhaseWriting, "emitting archive")
	data, err := arfmt.Emit(members, createOpts)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// ExtractedMember is one member recovered by Extract.
type ExtractedMember = arfmt.ParsedMember

// Extract parses a STAR archive and returns its decompressed members. The
// caller writes them to disk with os.Chmod per member's preserved
// attributes when that behavior is desired (see WriteExtracted).
func Extract(ctx context.Context, data []byte, logger *slog.Logger) (*arfmt.Archive, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.New(errs.Cancelled, "extract cancelled before start", err)
	}
	logger.Info("archive phase", "phase", string(PhaseLoading), "detail", "parsing archive")
	archive, err := arfmt.Parse(data)
	if err != nil {
		return nil, err
	}
	logger.Debug("archive parsed", "members", len(archive.Members), "indexed", archive.Header.Flags&arfmt.FlagIndexed != 0)
	return archive, nil
}

// WriteExtracted writes every member of archive into dir, restoring
// EXECUTABLE/READONLY attributes via os.Chmod, in the spirit of the
// teacher's mode-aware file creation. A member whose own data failed to
// decompress or verify (m.Err != nil) is skipped rather than aborting the
// whole extraction; every such failure is collected and returned together
// via errors.Join once the remaining members have been written.
func WriteExtracted(archive *arfmt.Archive, dir string) error {
	var failures []error
	for _, m := range archive.Members {
		if m.Err != nil {
			failures = append(failures, fmt.Errorf("member %q: %w", m.Name, m.Err))
			continue
		}
		path := filepath.Join(dir, m.Name)
		mode := os.FileMode(0644)
		if m.Header.Flags&arfmt.MemberExecutable != 0 {
			mode = 0755
		}
		if err := os.WriteFile(path, m.Payload, mode); err != nil {
			return errs.New(errs.FileIO, fmt.Sprintf("writing member %q", m.Name), err)
		}
		if m.Header.Flags&arfmt.MemberReadOnly != 0 {
			if err := os.Chmod(path, mode&^0222); err != nil {
				return errs.New(errs.FileIO, fmt.Sprintf("setting read-only on %q", m.Name), err)
			}
		}
	}
	return errors.Join(failures...)
}

// List returns the member names and sizes in an archive without
// decompressing payloads unnecessarily (Parse still decompresses for CRC
// verification, matching the format's Invariant 4). A member's Err field
// is set when Parse could not recover it.
func List(archive *arfmt.Archive) []MemberInfo {
	out := make([]MemberInfo, 0, len(archive.Members))
	for _, m := range archive.Members {
		out = append(out, MemberInfo{
			Name: m.Name, Size: m.Header.UncompressedSize, CompressedSize: m.Header.CompressedSize,
			Compression: m.Header.Compression, ModTime: m.Header.ModTime, Err: m.Err,
		})
	}
	return out
}

// MemberInfo summarizes one archive member for listing tools.
type MemberInfo struct {
	Name           string
	Size           uint64
	CompressedSize uint64
	Compression    compress.Tag
	ModTime        int64
	Err            error
}

// Validate re-derives every CRC-32 and header invariant for archive by
// re-parsing its raw bytes, surfacing the first violation found — whether
// that is a structural failure Parse itself returns, or a per-member
// checksum/decompression failure recorded on one of its members.
func Validate(data []byte) error {
	archive, err := arfmt.Parse(data)
	if err != nil {
		return err
	}
	for _, m := range archive.Members {
		if m.Err != nil {
			return m.Err
		}
	}
	return nil
}

// SymbolIndexOf builds a queryable symindex.Index from a parsed archive,
// or nil if the archive carries no symbol index.
func SymbolIndexOf(archive *arfmt.Archive) *symindex.Index {
	if len(archive.SymbolIndex) == 0 {
		return nil
	}
	return symindex.Build(archive.SymbolIndex)
}
