// Package compress implements the member-compression codecs: NONE, ZLIB,
// LZ4, and LZMA. Each codec is grounded on the teacher's per-algorithm
// Filter implementations (internal/writer/filter_*.go), generalized from
// HDF5 chunk filtering to whole-member archive compression.
package compress

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"

	"github.com/smoftools/smof/internal/errs"
	"github.com/smoftools/smof/internal/utils"
)

// Tag identifies the compression codec used for one archive member, stored
// in the member header.
type Tag uint8

// Recognized compression tags.
const (
	TagNone Tag = 0
	TagLZ4  Tag = 1
	TagZlib Tag = 2
	TagLZMA Tag = 3
)

// String renders t for diagnostics.
func (t Tag) String() string {
	switch t {
	case TagNone:
		return "none"
	case TagZlib:
		return "zlib"
	case TagLZ4:
		return "lz4"
	case TagLZMA:
		return "lzma"
	default:
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
}

// Codec compresses and decompresses member payloads for one Tag.
type Codec interface {
	Tag() Tag
	// DefaultLevel is the level Compress uses when passed a negative
	// level.
	DefaultLevel() int
	// Compress encodes data at the given level in [0,9]. A negative
	// level selects DefaultLevel.
	Compress(data []byte, level int) ([]byte, error)
	Decompress(data []byte, originalSize int) ([]byte, error)
	// MaxCompressedSize bounds the worst-case compressed size for a
	// plaintext of n bytes, used to size scratch buffers up front.
	MaxCompressedSize(n int) int
}

// MinLevel and MaxLevel bound the compression level accepted by every
// Codec's Compress method.
const (
	MinLevel = 0
	MaxLevel = 9
)

// resolveLevel substitutes def for a negative level and validates the
// result falls within [MinLevel, MaxLevel].
func resolveLevel(level, def int) (int, error) {
	if level < 0 {
		level = def
	}
	if level < MinLevel || level > MaxLevel {
		return 0, errs.New(errs.InvalidArgument, fmt.Sprintf("compression level %d out of range [%d,%d]", level, MinLevel, MaxLevel), nil)
	}
	return level, nil
}

// ByTag returns the Codec registered for tag, or an UnsupportedCompression
// error if tag is not recognized.
func ByTag(tag Tag) (Codec, error) {
	switch tag {
	case TagNone:
		return noneCodec{}, nil
	case TagZlib:
		return zlibCodec{}, nil
	case TagLZ4:
		return lz4Codec{}, nil
	case TagLZMA:
		return lzmaCodec{}, nil
	default:
		return nil, errs.New(errs.UnsupportedCompression, fmt.Sprintf("tag %d", uint8(tag)), nil)
	}
}

type noneCodec struct{}

func (noneCodec) Tag() Tag { return TagNone }

func (noneCodec) DefaultLevel() int { return 0 }

func (noneCodec) Compress(data []byte, level int) ([]byte, error) {
	if _, err := resolveLevel(level, 0); err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (noneCodec) Decompress(data []byte, originalSize int) ([]byte, error) {
	if len(data) != originalSize {
		return nil, errs.New(errs.Truncated, "uncompressed member size mismatch", nil)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (noneCodec) MaxCompressedSize(n int) int { return n }

type zlibCodec struct{}

func (zlibCodec) Tag() Tag { return TagZlib }

// zlibDefaultLevel matches flate's own notion of a balanced default,
// distinct from zlib.DefaultCompression (-1) since Codec levels are
// always in [0,9].
const zlibDefaultLevel = 6

func (zlibCodec) DefaultLevel() int { return zlibDefaultLevel }

func (zlibCodec) Compress(data []byte, level int) ([]byte, error) {
	lvl, err := resolveLevel(level, zlibDefaultLevel)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, lvl)
	if err != nil {
		return nil, errs.New(errs.FileIO, "zlib writer creation failed", err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, errs.New(errs.FileIO, "zlib compression failed", err)
	}
	if err := w.Close(); err != nil {
		return nil, errs.New(errs.FileIO, "zlib close failed", err)
	}
	return buf.Bytes(), nil
}

func (zlibCodec) Decompress(data []byte, originalSize int) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errs.New(errs.FileIO, "zlib reader creation failed", err)
	}
	defer func() { _ = r.Close() }()
	out, err := io.ReadAll(io.LimitReader(r, int64(originalSize)+1))
	if err != nil {
		return nil, errs.New(errs.FileIO, "zlib decompression failed", err)
	}
	if len(out) != originalSize {
		return nil, errs.New(errs.Truncated, "zlib decompressed size mismatch", nil)
	}
	return out, nil
}

func (zlibCodec) MaxCompressedSize(n int) int {
	// zlib worst case: input plus header/trailer/store-mode overhead.
	return n + n/1000 + 128
}

type lz4Codec struct{}

func (lz4Codec) Tag() Tag { return TagLZ4 }

// lz4DefaultLevel keeps LZ4's traditional speed-over-ratio behavior: the
// plain (non-HC) compressor, used at level 0.
const lz4DefaultLevel = 0

func (lz4Codec) DefaultLevel() int { return lz4DefaultLevel }

// lz4HCLevel maps a declared 1..9 level onto pierrec/lz4's high-compression
// level constants; level 0 is handled separately by the plain compressor.
func lz4HCLevel(level int) lz4.CompressionLevel {
	switch level {
	case 1:
		return lz4.Level1
	case 2:
		return lz4.Level2
	case 3:
		return lz4.Level3
	case 4:
		return lz4.Level4
	case 5:
		return lz4.Level5
	case 6:
		return lz4.Level6
	case 7:
		return lz4.Level7
	case 8:
		return lz4.Level8
	default:
		return lz4.Level9
	}
}

func (lz4Codec) Compress(data []byte, level int) ([]byte, error) {
	lvl, err := resolveLevel(level, lz4DefaultLevel)
	if err != nil {
		return nil, err
	}

	scratch := utils.GetScratch(lz4.CompressBlockBound(len(data)))
	defer utils.ReleaseScratch(scratch)

	var n int
	if lvl == 0 {
		var c lz4.Compressor
		n, err = c.CompressBlock(data, scratch)
	} else {
		c := lz4.CompressorHC{Level: lz4HCLevel(lvl)}
		n, err = c.CompressBlock(data, scratch)
	}
	if err != nil {
		return nil, errs.New(errs.FileIO, "lz4 compression failed", err)
	}
	if n == 0 && len(data) > 0 {
		// Incompressible input: lz4 signals this by writing zero bytes.
		// Fall back to storing the raw block so the member is still valid.
		return append([]byte{0}, data...), nil
	}
	if n > 0 {
		return append([]byte{1}, scratch[:n]...), nil
	}
	return []byte{1}, nil
}

func (lz4Codec) Decompress(data []byte, originalSize int) ([]byte, error) {
	if len(data) == 0 {
		if originalSize != 0 {
			return nil, errs.New(errs.Truncated, "lz4 payload empty", nil)
		}
		return []byte{}, nil
	}
	stored, payload := data[0], data[1:]
	if stored == 0 {
		if len(payload) != originalSize {
			return nil, errs.New(errs.Truncated, "lz4 stored size mismatch", nil)
		}
		out := make([]byte, len(payload))
		copy(out, payload)
		return out, nil
	}
	out := make([]byte, originalSize)
	n, err := lz4.UncompressBlock(payload, out)
	if err != nil {
		return nil, errs.New(errs.FileIO, "lz4 decompression failed", err)
	}
	if n != originalSize {
		return nil, errs.New(errs.Truncated, "lz4 decompressed size mismatch", nil)
	}
	return out, nil
}

func (lz4Codec) MaxCompressedSize(n int) int {
	return lz4.CompressBlockBound(n) + 1
}

type lzmaCodec struct{}

func (lzmaCodec) Tag() Tag { return TagLZMA }

// lzmaDefaultLevel mirrors xz(1)'s own default preset of 6.
const lzmaDefaultLevel = 6

func (lzmaCodec) DefaultLevel() int { return lzmaDefaultLevel }

// lzmaDictCap maps a declared 0..9 level onto a dictionary capacity,
// doubling from 64KiB at level 0 to 32MiB at level 9, loosely mirroring
// how xz's own numbered presets scale dictionary size with level.
func lzmaDictCap(level int) int {
	return 1 << uint(16+level)
}

func (lzmaCodec) Compress(data []byte, level int) ([]byte, error) {
	lvl, err := resolveLevel(level, lzmaDefaultLevel)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	cfg := xz.WriterConfig{DictCap: lzmaDictCap(lvl)}
	if err := cfg.Verify(); err != nil {
		return nil, errs.New(errs.InvalidArgument, "lzma writer config invalid", err)
	}
	w, err := cfg.NewWriter(&buf)
	if err != nil {
		return nil, errs.New(errs.FileIO, "lzma writer creation failed", err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, errs.New(errs.FileIO, "lzma compression failed", err)
	}
	if err := w.Close(); err != nil {
		return nil, errs.New(errs.FileIO, "lzma close failed", err)
	}
	return buf.Bytes(), nil
}

func (lzmaCodec) Decompress(data []byte, originalSize int) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errs.New(errs.FileIO, "lzma reader creation failed", err)
	}
	out, err := io.ReadAll(io.LimitReader(r, int64(originalSize)+1))
	if err != nil {
		return nil, errs.New(errs.FileIO, "lzma decompression failed", err)
	}
	if len(out) != originalSize {
		return nil, errs.New(errs.Truncated, "lzma decompressed size mismatch", nil)
	}
	return out, nil
}

func (lzmaCodec) MaxCompressedSize(n int) int {
	// xz format overhead is small relative to payload; pad generously
	// since LZMA has no exact closed-form worst case like LZ4.
	return n + n/2 + 256
}
