package csync

import (
	"path/filepath"
	"strings"
)

// PathNormalizer converts between full on-disk paths and the root-relative,
// slash-separated paths stored in the index.
type PathNormalizer struct {
	root string
}

// NewPathNormalizer creates a normalizer for the content root.
func NewPathNormalizer(root string) PathNormalizer {
	return PathNormalizer{root: strings.TrimRight(filepath.ToSlash(root), "/")}
}

// Root returns the slash-separated content root.
func (n PathNormalizer) Root() string {
	return n.root
}

// ToDBPath strips the root prefix if present and returns the path with a
// single leading slash and no trailing slash.
func (n PathNormalizer) ToDBPath(p string) string {
	p = filepath.ToSlash(p)
	if n.hasRoot(p) {
		p = p[len(n.root):]
	}
	return "/" + strings.Trim(p, "/")
}

// ToFullPath prefixes p with the root unless it already carries it.
func (n PathNormalizer) ToFullPath(p string) string {
	p = filepath.ToSlash(p)
	if n.hasRoot(p) {
		return filepath.FromSlash(p)
	}
	return filepath.FromSlash(n.root + "/" + strings.TrimLeft(p, "/"))
}

// Contains reports whether the full path p lies under the root.
func (n PathNormalizer) Contains(p string) bool {
	return n.hasRoot(filepath.ToSlash(p))
}

func (n PathNormalizer) hasRoot(p string) bool {
	if n.root == "" {
		return false
	}
	return p == n.root || strings.HasPrefix(p, n.root+"/")
}
