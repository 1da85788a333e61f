package tree

import (
	"os"
	"sort"
	"strings"
)

// Entry is one item of a directory listing
type Entry struct {
	Name  string
	IsDir bool
}

// Lister reads the immediate children of a directory. Implementations
// return entries in display order.
type Lister interface {
	List(path string) ([]Entry, error)
}

// OSLister lists directories on the local filesystem
type OSLister struct {
	ShowHidden bool
}

// List implements Lister. Symlinks are reported as files and never followed.
func (l OSLister) List(path string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if !l.ShowHidden && strings.HasPrefix(name, ".") {
			continue
		}
		entries = append(entries, Entry{Name: name, IsDir: de.IsDir()})
	}

	SortEntries(entries)
	return entries, nil
}

// SortEntries orders directories before files, then by name
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return entries[i].Name < entries[j].Name
	})
}
