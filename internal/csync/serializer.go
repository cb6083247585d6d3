package csync

import (
	"slices"
	"strings"
)

// Defaulter is implemented by content whose fields start with a value. An
// unset field that has a default is written as an empty line so that reading
// the file back does not restore the default.
type Defaulter interface {
	Default(field string) *string
}

// Serialize renders c in the content file format: one `field: raw` line per
// non-system scalar field that has a value, a tags line when there are tags,
// a blank line, then the body.
func Serialize(c Content) []byte {
	return serialize(c, nil)
}

// serialize is Serialize with extra header lines kept verbatim ahead of the
// tags line.
func serialize(c Content, extra Header) []byte {
	defaults, _ := c.(Defaulter)

	var b strings.Builder
	for _, field := range c.Fields() {
		if field == FieldBody || c.IsSystem(field) {
			continue
		}
		v := c.Raw(field)
		if v == nil {
			if defaults != nil && defaults.Default(field) != nil {
				writeHeaderLine(&b, field, nil)
			}
			continue
		}
		writeHeaderLine(&b, field, v)
	}
	for _, field := range extra {
		writeHeaderLine(&b, field.Name, field.Value)
	}
	if tags := c.Tags(); len(tags) > 0 {
		b.WriteString(FieldTags)
		b.WriteString(": ")
		b.WriteString(strings.Join(TagNames(tags), ", "))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	if body := c.Raw(FieldBody); body != nil {
		b.WriteString(*body)
	}
	return []byte(b.String())
}

func writeHeaderLine(b *strings.Builder, name string, v *string) {
	b.WriteString(name)
	b.WriteByte(':')
	if v != nil {
		b.WriteByte(' ')
		b.WriteString(flattenLine(*v))
	}
	b.WriteByte('\n')
}

// unknownHeader returns the header lines that name no field of c.
func unknownHeader(c Content, h Header) Header {
	fields := c.Fields()
	var out Header
	for _, field := range h {
		if field.Name == FieldTags || slices.Contains(fields, field.Name) {
			continue
		}
		out = append(out, field)
	}
	return out
}

// flattenLine keeps a header value on one line.
func flattenLine(v string) string {
	return strings.TrimSpace(strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(v))
}
