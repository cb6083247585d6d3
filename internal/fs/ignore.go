package fs

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// IgnoreFileName is read from the content root when building a matcher.
const IgnoreFileName = ".csyncignore"

// DefaultIgnorePatterns are always applied regardless of config or .csyncignore.
// The dot pattern also hides the ignore file itself.
var DefaultIgnorePatterns = []string{".*", "README.md", "LICENSE"}

// ignorePattern is a parsed ignore pattern with its matching strategy.
type ignorePattern struct {
	pattern   string
	matchPath bool // true = match against relative path; false = match against basename only
}

// IgnoreMatcher checks file paths against a set of ignore patterns.
// Patterns without '/' match against the file's basename only.
// Patterns with '/' match against the full relative path from the content root.
// A trailing '/' restricts a pattern to directories.
type IgnoreMatcher struct {
	patterns []ignorePattern
	dirOnly  []ignorePattern
}

// NewIgnoreMatcher creates an IgnoreMatcher from raw pattern strings.
// Blank lines and lines starting with '#' are skipped.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	m := &IgnoreMatcher{}
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		dir := strings.HasSuffix(raw, "/")
		raw = strings.TrimRight(raw, "/")
		if raw == "" {
			continue
		}
		p := ignorePattern{
			pattern:   raw,
			matchPath: strings.Contains(raw, "/"),
		}
		if dir {
			m.dirOnly = append(m.dirOnly, p)
		} else {
			m.patterns = append(m.patterns, p)
		}
	}
	return m
}

// LoadIgnoreMatcher combines the default patterns, extra (usually from
// config) and the root's .csyncignore file.
func LoadIgnoreMatcher(root string, extra []string) (*IgnoreMatcher, error) {
	fromFile, err := ParseIgnoreFile(filepath.Join(root, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	return NewIgnoreMatcher(slices.Concat(DefaultIgnorePatterns, extra, fromFile)), nil
}

// Match reports whether the given relative file path should be ignored.
// relativePath should use filepath separators and be relative to the content root.
func (m *IgnoreMatcher) Match(relativePath string) bool {
	return matchAny(m.patterns, relativePath)
}

// MatchDir reports whether a directory should be skipped entirely.
func (m *IgnoreMatcher) MatchDir(relativePath string) bool {
	return matchAny(m.patterns, relativePath) || matchAny(m.dirOnly, relativePath)
}

func matchAny(patterns []ignorePattern, relativePath string) bool {
	if len(patterns) == 0 || relativePath == "" {
		return false
	}

	// Normalize to forward slashes for consistent matching.
	normalized := filepath.ToSlash(relativePath)
	basename := filepath.Base(relativePath)

	for _, p := range patterns {
		var matched bool
		var err error
		if p.matchPath {
			matched, err = filepath.Match(p.pattern, normalized)
		} else {
			matched, err = filepath.Match(p.pattern, basename)
		}
		if err != nil {
			// Bad pattern: skip rather than crash.
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

// ParseIgnoreFile reads a .csyncignore file and returns the raw pattern strings.
// Returns nil and no error if the file does not exist.
func ParseIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		patterns = append(patterns, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return patterns, nil
}
