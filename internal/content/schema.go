package content

import "csync/internal/csync"

// Kind selects how a field's raw value is decoded and canonicalized.
type Kind int

const (
	KindString Kind = iota
	KindDate
	KindBool
	KindBody
	KindID
)

// FieldDef describes one scalar field of a content class.
type FieldDef struct {
	Name string
	Kind Kind

	// System fields are set by the store, never from a file header.
	System bool

	// Default is the raw value a new record starts with, if any.
	Default *string
}

// Schema is the ordered field list of a content class.
type Schema struct {
	Class  string
	Fields []FieldDef
}

// Field returns the definition for name.
func (s *Schema) Field(name string) (FieldDef, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}

const (
	FieldDateCreated = "dateCreated"
	FieldActive      = "active"
	FieldImgPrefix   = "imgPrefix"
	FieldAuthor      = "author"
	FieldTemplate    = "template"
)

func strptr(s string) *string { return &s }

func commonFields() []FieldDef {
	return []FieldDef{
		{Name: csync.FieldID, Kind: KindID, System: true},
		{Name: csync.FieldClass},
		{Name: csync.FieldTitle},
		{Name: csync.FieldAddress},
		{Name: csync.FieldParent},
		{Name: FieldDateCreated, Kind: KindDate},
		{Name: FieldActive, Kind: KindBool, Default: strptr("true")},
		{Name: FieldImgPrefix},
	}
}

func newSchema(class string, extra ...FieldDef) *Schema {
	fields := commonFields()
	fields = append(fields, extra...)
	fields = append(fields, FieldDef{Name: csync.FieldBody, Kind: KindBody})
	return &Schema{Class: class, Fields: fields}
}

// Post is a dated article with an author.
var Post = newSchema("post", FieldDef{Name: FieldAuthor})

// Page is a standalone page rendered with a named template.
var Page = newSchema("page", FieldDef{Name: FieldTemplate})
