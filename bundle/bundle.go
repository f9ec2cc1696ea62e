// Package bundle concatenates contract sources into a single compilation unit
// and maps compiler error positions in that unit back to the original files.
package bundle

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// FileToken returns the boundary marker injected in front of every bundled file.
func FileToken(path string) string {
	return "\n//File: " + path + "\n"
}

// Source is a single file taking part in a bundle.
type Source struct {
	Path    string
	Content string
}

// Bundle is an ordered set of sources. A path is only included once,
// so a file imported by several others does not get compiled twice.
type Bundle struct {
	sources []Source
	seen    map[string]struct{}
}

func New() *Bundle {
	return &Bundle{seen: make(map[string]struct{})}
}

// Add appends a source. It returns false when the path was already added.
func (b *Bundle) Add(path string, content string) bool {
	if _, ok := b.seen[path]; ok {
		return false
	}
	b.seen[path] = struct{}{}
	b.sources = append(b.sources, Source{Path: path, Content: content})
	return true
}

func (b *Bundle) Sources() []Source {
	out := make([]Source, len(b.sources))
	copy(out, b.sources)
	return out
}

func (b *Bundle) Len() int {
	return len(b.sources)
}

// String renders the bundle with a FileToken in front of each source.
func (b *Bundle) String() string {
	var sb strings.Builder
	for _, src := range b.sources {
		sb.WriteString(FileToken(src.Path))
		sb.WriteString(src.Content)
	}
	return sb.String()
}

// Remap maps compiler errors reported against this bundle back to the bundled files.
func (b *Bundle) Remap(errs []string) []string {
	return Remap(b.String(), errs)
}

// LoadFiles reads the given paths from fs into a new bundle, in order.
// Paths are cleaned before use, so "./a.sol" and "a.sol" are the same file.
func LoadFiles(fs afero.Fs, paths ...string) (*Bundle, error) {
	b := New()
	for _, p := range paths {
		p = filepath.Clean(p)
		data, err := afero.ReadFile(fs, p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		b.Add(p, string(data))
	}
	return b, nil
}
