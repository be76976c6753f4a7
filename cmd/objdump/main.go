// Command objdump prints the structural contents of a SMOF object file:
// its header, section table, symbol table, relocations, and imports.
package main

import (
	"flag"
	"fmt"
	"log"

	smof "github.com/smoftools/smof"
)

func main() {
	showSyms := flag.Bool("symbols", true, "print the symbol table")
	showRelocs := flag.Bool("relocs", true, "print the relocation table")
	showImports := flag.Bool("imports", true, "print the import table")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Println("Usage: objdump [flags] <object.smo>")
		flag.PrintDefaults()
		return
	}

	f, err := smof.OpenObject(args[0])
	if err != nil {
		log.Fatalf("objdump: %v", err)
	}
	obj := f.Object()

	fmt.Printf("header: entry=0x%08X flags=0x%04X sections=%d symbols=%d relocations=%d imports=%d\n",
		obj.Header.EntryPoint, uint16(obj.Header.Flags), obj.Header.SectionCount,
		obj.Header.SymbolCount, obj.Header.RelocCount, obj.Header.ImportCount)

	fmt.Println("\nsections:")
	for i, s := range f.Sections() {
		fmt.Printf("  [%2d] %-16s va=0x%08X size=%8d flags=0x%04X align=2^%d\n",
			i, s.Name, s.VirtualAddr, s.Size, uint16(s.Flags), s.Align)
	}

	if *showSyms {
		fmt.Println("\nsymbols:")
		for i, s := range f.Symbols() {
			section := "UND"
			if !s.IsUndefined() {
				section = fmt.Sprintf("%d", s.Section)
			}
			fmt.Printf("  [%3d] %-24s value=0x%08X size=%6d section=%-4s binding=%s\n",
				i, s.Name, s.Value, s.Size, section, s.Binding)
		}
	}

	if *showRelocs {
		fmt.Println("\nrelocations:")
		for i, r := range f.Relocations() {
			fmt.Printf("  [%3d] section=%d offset=0x%08X symbol=%d type=%d\n",
				i, r.Section, r.Offset, r.Symbol, r.Type)
		}
	}

	if *showImports {
		fmt.Println("\nimports:")
		for i, imp := range obj.Imports {
			fmt.Printf("  [%3d] %s::%s\n", i, imp.Library, imp.Symbol)
		}
	}
}
