// Command arch creates, lists, and extracts STAR archives.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	smof "github.com/smoftools/smof"
	"github.com/smoftools/smof/internal/compress"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	cmd, rest := os.Args[1], os.Args[2:]
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)

	switch cmd {
	case "create":
		out := fs.String("o", "archive.star", "output archive path")
		codec := fs.String("compress", "none", "compression: none|lz4|zlib|lzma")
		level := fs.Int("level", -1, "compression level 0-9 (negative picks the codec's own default)")
		indexed := fs.Bool("indexed", false, "build a symbol index from OBJ-shaped members")
		sorted := fs.Bool("sorted", true, "sort the symbol index by name")
		_ = fs.Parse(rest)
		paths := fs.Args()
		if len(paths) == 0 {
			log.Fatal("arch create: no input files")
		}
		tag, err := parseTag(*codec)
		if err != nil {
			log.Fatalf("arch create: %v", err)
		}
		if err := smof.CreateArchiveFromFiles(context.Background(), *out, paths, smof.CreateArchiveOptions{
			Compression: tag, Level: *level, Indexed: *indexed, Sorted: *sorted,
		}); err != nil {
			log.Fatalf("arch create: %v", err)
		}
		fmt.Printf("created %s with %d member(s)\n", *out, len(paths))

	case "list":
		_ = fs.Parse(rest)
		if fs.NArg() == 0 {
			log.Fatal("arch list: no archive given")
		}
		a, err := smof.OpenArchive(fs.Arg(0))
		if err != nil {
			log.Fatalf("arch list: %v", err)
		}
		for _, m := range smof.Members(a) {
			if m.Err != nil {
				fmt.Printf("%-32s %10d bytes (%s) [%v]\n", m.Name, m.Header.UncompressedSize, m.Header.Compression, m.Err)
				continue
			}
			fmt.Printf("%-32s %10d bytes (%s)\n", m.Name, m.Header.UncompressedSize, m.Header.Compression)
		}

	case "extract":
		dir := fs.String("dir", ".", "directory to extract into")
		_ = fs.Parse(rest)
		if fs.NArg() == 0 {
			log.Fatal("arch extract: no archive given")
		}
		a, err := smof.OpenArchive(fs.Arg(0))
		if err != nil {
			log.Fatalf("arch extract: %v", err)
		}
		failed := 0
		for _, m := range a.Members {
			if m.Err != nil {
				failed++
			}
		}
		if err := smof.ExtractArchiveTo(a, *dir); err != nil {
			if failed == 0 {
				log.Fatalf("arch extract: %v", err)
			}
			fmt.Printf("extracted %d of %d member(s) into %s; %v\n", len(a.Members)-failed, len(a.Members), *dir, err)
			os.Exit(1)
		}
		fmt.Printf("extracted %d of %d member(s) into %s\n", len(a.Members)-failed, len(a.Members), *dir)

	case "validate":
		_ = fs.Parse(rest)
		if fs.NArg() == 0 {
			log.Fatal("arch validate: no archive given")
		}
		//nolint:gosec // G304: caller-provided path is intentional for an archiver tool
		data, err := os.ReadFile(fs.Arg(0))
		if err != nil {
			log.Fatalf("arch validate: %v", err)
		}
		if err := smof.ValidateArchive(data); err != nil {
			log.Fatalf("arch validate: %v", err)
		}
		fmt.Println("ok")

	default:
		usage()
	}
}

func usage() {
	fmt.Println("Usage: arch <create|list|extract|validate> [flags] <archive.star> ...")
}

func parseTag(s string) (compress.Tag, error) {
	switch strings.ToLower(s) {
	case "none":
		return compress.TagNone, nil
	case "lz4":
		return compress.TagLZ4, nil
	case "zlib":
		return compress.TagZlib, nil
	case "lzma":
		return compress.TagLZMA, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", s)
	}
}
