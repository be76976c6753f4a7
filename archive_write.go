package smof

import (
	"context"
	"os"
	"path/filepath"

	"github.com/smoftools/smof/internal/compress"
	"github.com/smoftools/smof/internal/driver"
	"github.com/smoftools/smof/internal/errs"
)

// ArchiveMemberInput is one file or byte slice to pack into an archive.
type ArchiveMemberInput = driver.SourceMember

// CreateArchiveOptions configures CreateArchive.
type CreateArchiveOptions struct {
	Compression compress.Tag
	// Level is the compression level in [0,9]; negative selects the
	// codec's own declared default.
	Level   int
	Indexed bool
	Sorted  bool
}

// CreateArchive packs sources into a STAR archive and returns its raw
// bytes, ready to be written to disk.
func CreateArchive(ctx context.Context, sources []ArchiveMemberInput, opts CreateArchiveOptions) ([]byte, error) {
	return driver.Create(ctx, sources, driver.ArchiveOptions{
		Compression: opts.Compression,
		Level:       opts.Level,
		Indexed:     opts.Indexed,
		Sorted:      opts.Sorted,
	})
}

// CreateArchiveFromFiles packs the named files into a STAR archive, using
// each file's base name as its member name, and writes the result to
// outPath.
func CreateArchiveFromFiles(ctx context.Context, outPath string, paths []string, opts CreateArchiveOptions) error {
	sources := make([]ArchiveMemberInput, 0, len(paths))
	for _, p := range paths {
		//nolint:gosec // G304: caller-provided path is intentional for an archiver tool
		data, err := os.ReadFile(p)
		if err != nil {
			return errs.New(errs.FileIO, "reading archive source "+p, err)
		}
		info, err := os.Stat(p)
		if err != nil {
			return errs.New(errs.FileIO, "stat archive source "+p, err)
		}
		sources = append(sources, ArchiveMemberInput{
			Name:       filepath.Base(p),
			Payload:    data,
			Mode:       uint32(info.Mode().Perm()),
			ModTime:    info.ModTime().Unix(),
			Executable: info.Mode().Perm()&0111 != 0,
		})
	}

	data, err := CreateArchive(ctx, sources, opts)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return errs.New(errs.FileIO, "writing archive "+outPath, err)
	}
	return nil
}
