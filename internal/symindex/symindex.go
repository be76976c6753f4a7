// Package symindex provides a queryable in-memory symbol index built over
// an archive's parsed symbol-index entries: constant-average exact lookup
// by name plus linear glob search. It generalizes the teacher's local-heap
// string interning (internal/structures/localheap.go) from a single
// file's object names to an archive-wide exported-symbol directory.
package symindex

import (
	"path/filepath"
	"sort"

	"github.com/smoftools/smof/internal/arfmt"
)

// Entry is one resolved symbol-index record exposed to callers.
type Entry struct {
	Name        string
	MemberIndex uint32
	Value       uint32
	Type        uint8
	Binding     uint8
}

// Index is a queryable view over an archive's symbol-index entries. It
// preserves the entries' original order for deterministic iteration.
type Index struct {
	order   []Entry
	byName  map[string]int // name -> index into order; last writer wins, matching archive build order
}

// Build constructs an Index from the entries parsed out of a STAR archive.
func Build(entries []arfmt.SymbolIndexEntry) *Index {
	idx := &Index{
		order:  make([]Entry, 0, len(entries)),
		byName: make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		idx.byName[e.Name] = len(idx.order)
		idx.order = append(idx.order, Entry{
			Name: e.Name, MemberIndex: e.MemberIndex, Value: e.Value, Type: e.Type, Binding: e.Binding,
		})
	}
	return idx
}

// Len returns the number of entries in the index.
func (idx *Index) Len() int { return len(idx.order) }

// Entries returns every entry in insertion order.
func (idx *Index) Entries() []Entry {
	out := make([]Entry, len(idx.order))
	copy(out, idx.order)
	return out
}

// Find looks up name in expected constant time, returning its entry and
// whether it was found.
func (idx *Index) Find(name string) (Entry, bool) {
	i, ok := idx.byName[name]
	if !ok {
		return Entry{}, false
	}
	return idx.order[i], true
}

// FindByPattern returns every entry whose name matches the shell-style
// glob pattern (as interpreted by path/filepath.Match), scanning all
// entries in linear time. Results are sorted by name for determinism.
func (idx *Index) FindByPattern(pattern string) ([]Entry, error) {
	var matches []Entry
	for _, e := range idx.order {
		ok, err := filepath.Match(pattern, e.Name)
		if err != nil {
			return nil, err
		}
		if ok {
			matches = append(matches, e)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Name < matches[j].Name })
	return matches, nil
}

// ToArchiveEntries converts the index back into the serializable form
// used by arfmt.Emit's CreateOptions.SymbolsOf callback.
func (idx *Index) ToArchiveEntries() []arfmt.SymbolIndexEntry {
	out := make([]arfmt.SymbolIndexEntry, len(idx.order))
	for i, e := range idx.order {
		out[i] = arfmt.SymbolIndexEntry{Name: e.Name, MemberIndex: e.MemberIndex, Value: e.Value, Type: e.Type, Binding: e.Binding}
	}
	return out
}
