package content

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gosimple/slug"

	"csync/internal/csync"
)

const dateLayout = "2006-01-02"

// Record is a content record of one class. Values are held in their canonical
// raw form. The address is derived from the title until a file or the store
// sets it explicitly.
type Record struct {
	schema         *Schema
	id             int64
	values         map[string]string
	addressDerived bool
	tags           []csync.Tag
}

var (
	_ csync.Content   = (*Record)(nil)
	_ csync.Defaulter = (*Record)(nil)
)

// NewRecord creates an empty record for schema with defaults applied.
func NewRecord(schema *Schema) *Record {
	r := &Record{
		schema:         schema,
		values:         make(map[string]string),
		addressDerived: true,
	}
	for _, f := range schema.Fields {
		if f.Default != nil {
			r.values[f.Name] = *f.Default
		}
	}
	return r
}

func (r *Record) ID() int64 { return r.id }

func (r *Record) SetID(id int64) { r.id = id }

func (r *Record) Class() string { return r.schema.Class }

// Fields returns the schema's field names in order.
func (r *Record) Fields() []string {
	names := make([]string, len(r.schema.Fields))
	for i, f := range r.schema.Fields {
		names[i] = f.Name
	}
	return names
}

// Default returns the raw value a new record starts with for field.
func (r *Record) Default(field string) *string {
	if f, ok := r.schema.Field(field); ok {
		return f.Default
	}
	return nil
}

// IsSystem reports whether field is store-owned. The address is system-owned
// only while it is derived.
func (r *Record) IsSystem(field string) bool {
	if field == csync.FieldAddress {
		return r.addressDerived
	}
	f, ok := r.schema.Field(field)
	return ok && f.System
}

func (r *Record) Raw(field string) *string {
	switch field {
	case csync.FieldID:
		if r.id == 0 {
			return nil
		}
		return strptr(strconv.FormatInt(r.id, 10))
	case csync.FieldClass:
		return strptr(r.schema.Class)
	case csync.FieldAddress:
		if v, ok := r.values[field]; ok {
			return strptr(v)
		}
		if title, ok := r.values[csync.FieldTitle]; ok && r.addressDerived {
			return strptr("/" + slug.Make(title))
		}
		return nil
	}
	if v, ok := r.values[field]; ok {
		return strptr(v)
	}
	return nil
}

// Assign decodes raw into field. Dates are stored as YYYY-MM-DD and booleans
// as true or false.
func (r *Record) Assign(field string, raw *string) error {
	def, ok := r.schema.Field(field)
	if !ok {
		return fmt.Errorf("%s on %s: %w", field, r.schema.Class, csync.ErrUnknownField)
	}
	if def.System {
		return fmt.Errorf("%s on %s: %w", field, r.schema.Class, csync.ErrReadOnlyField)
	}

	switch field {
	case csync.FieldClass:
		if raw != nil && *raw != r.schema.Class {
			return fmt.Errorf("cannot change content class from %s to %s", r.schema.Class, *raw)
		}
		return nil
	case csync.FieldAddress:
		if raw == nil {
			delete(r.values, field)
			r.addressDerived = true
			return nil
		}
		r.values[field] = *raw
		r.addressDerived = false
		return nil
	}

	if raw == nil {
		delete(r.values, field)
		return nil
	}
	v, err := canonicalize(def, *raw)
	if err != nil {
		return err
	}
	r.values[field] = v
	return nil
}

// SetDerived stores a store-computed value. Only the id and a derived address
// accept one.
func (r *Record) SetDerived(field, raw string) error {
	switch field {
	case csync.FieldID:
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q: %w", raw, err)
		}
		r.id = id
		return nil
	case csync.FieldAddress:
		r.values[field] = raw
		r.addressDerived = true
		return nil
	}
	return fmt.Errorf("%s on %s is not a derived field", field, r.schema.Class)
}

func (r *Record) Tags() []csync.Tag { return r.tags }

func (r *Record) SetTags(tags []csync.Tag) { r.tags = slices.Clone(tags) }

func canonicalize(def FieldDef, raw string) (string, error) {
	switch def.Kind {
	case KindDate:
		return parseDate(def.Name, raw)
	case KindBool:
		b, err := parseBool(raw)
		if err != nil {
			return "", fmt.Errorf("field %s: %w", def.Name, err)
		}
		return strconv.FormatBool(b), nil
	}
	return raw, nil
}

func parseDate(field, raw string) (string, error) {
	for _, layout := range []string{dateLayout, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, strings.TrimSpace(raw)); err == nil {
			return t.Format(dateLayout), nil
		}
	}
	return "", fmt.Errorf("field %s: invalid date %q (want YYYY-MM-DD)", field, raw)
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", raw)
}
