package csync

import (
	"regexp"
	"strings"
)

// HeaderField is one `name: value` line. A nil Value means the line was empty
// after the colon.
type HeaderField struct {
	Name  string
	Value *string
}

// Header is the ordered list of fields from a content file's header block.
type Header []HeaderField

// Get returns the value of the last line named name.
func (h Header) Get(name string) (*string, bool) {
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].Name == name {
			return h[i].Value, true
		}
	}
	return nil, false
}

// Parsed is the result of splitting a content file into header and body.
type Parsed struct {
	Header Header
	Body   string

	// HasBody is false when the file had no blank-line delimiter, in which case
	// the whole file was read as header.
	HasBody bool
}

const headerDelimiter = "\n\n"

// ParseHeaderAndBody splits raw at the first blank line. Everything before it is
// the header block, everything after it is the body, verbatim. A header line
// without a colon is a *MalformedFileError.
func ParseHeaderAndBody(raw []byte) (Parsed, error) {
	head, body, found := strings.Cut(string(raw), headerDelimiter)
	p := Parsed{Body: body, HasBody: found}
	if head == "" {
		return p, nil
	}

	lines := strings.Split(head, "\n")
	for i, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		if i == len(lines)-1 && strings.TrimSpace(line) == "" {
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx <= 0 {
			return Parsed{}, &MalformedFileError{Line: i, Content: truncateLine(line, 30)}
		}
		field := HeaderField{Name: strings.TrimSpace(line[:idx])}
		if v := strings.TrimSpace(line[idx+1:]); v != "" {
			field.Value = &v
		}
		p.Header = append(p.Header, field)
	}
	return p, nil
}

var tagSeparator = regexp.MustCompile(`,\s*`)

// SplitTags splits a comma-separated tag line into trimmed, non-empty names.
func SplitTags(raw string) []string {
	raw = strings.Trim(raw, ", \t")
	if raw == "" {
		return nil
	}
	var names []string
	for _, name := range tagSeparator.Split(raw, -1) {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func truncateLine(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
