// Command link combines SMOF object files into one linked SMOF object
// file. The -type flag sets the output header flags and whether section
// buckets start on -pagesize boundaries; every type, flat included, is
// written as a SMOF object, not as a raw memory image, so -fill-gaps and
// -fill-value do not change the written file.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	smof "github.com/smoftools/smof"
)

func main() {
	outPath := flag.String("o", "a.out", "output file path")
	outputType := flag.String("type", "executable", "output type: executable|shared|static|object|flat")
	baseAddr := flag.Uint64("base", 0x400000, "base virtual address")
	pageSize := flag.Uint64("pagesize", 4096, "page alignment size")
	entryPoint := flag.Uint64("entry", 0, "explicit entry point (0 = auto-resolve)")
	fillGaps := flag.Bool("fill-gaps", false, "compute inter-section gap fill for the flat layout (not written to the output file)")
	fillValue := flag.Uint("fill-value", 0, "byte value used to fill gaps")
	genMap := flag.Bool("map", false, "print a section map after linking")
	flag.Parse()

	paths := flag.Args()
	if len(paths) == 0 {
		fmt.Println("Usage: link [flags] <object.smo>...")
		flag.PrintDefaults()
		return
	}

	ot, err := parseOutputType(*outputType)
	if err != nil {
		log.Fatalf("link: %v", err)
	}

	result, err := smof.LinkFiles(context.Background(), *outPath, paths, smof.LinkOptions{
		OutputType:  ot,
		BaseAddress: *baseAddr,
		PageSize:    *pageSize,
		EntryPoint:  *entryPoint,
		FillGaps:    *fillGaps,
		FillValue:   byte(*fillValue),
		GenerateMap: *genMap,
	})
	if err != nil {
		log.Fatalf("link: %v", err)
	}

	fmt.Printf("linked %d object(s) into %s, entry point 0x%X\n", len(paths), *outPath, result.EntryPoint)
	if *genMap {
		for _, m := range result.Map {
			fmt.Printf("  0x%08X %8d %s\n", m.VirtualAddr, m.Size, m.Name)
		}
	}
}

func parseOutputType(s string) (smof.OutputType, error) {
	switch strings.ToLower(s) {
	case "executable", "exe":
		return smof.OutputExecutable, nil
	case "shared", "so", "dylib":
		return smof.OutputSharedLibrary, nil
	case "static":
		return smof.OutputStaticLibrary, nil
	case "object", "obj":
		return smof.OutputObjectFile, nil
	case "flat":
		return smof.OutputBinaryFlat, nil
	default:
		return 0, fmt.Errorf("unknown output type %q", s)
	}
}
