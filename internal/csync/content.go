package csync

import (
	"errors"
	"slices"
	"strings"
)

// Reserved field names.
const (
	FieldID      = "id"
	FieldClass   = "contentClass"
	FieldTitle   = "title"
	FieldAddress = "address"
	FieldParent  = "parent"
	FieldBody    = "content"
	FieldTags    = "tags"
)

var (
	// ErrUnknownField is returned by Content.Assign for a field the class does not define.
	ErrUnknownField = errors.New("unknown field")

	// ErrReadOnlyField is returned by Content.Assign for a field only the store may set.
	ErrReadOnlyField = errors.New("read-only field")
)

// Tag is a named label owned by the content store.
type Tag struct {
	ID   int64
	Name string
}

// TagNames returns the names of tags in order.
func TagNames(tags []Tag) []string {
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Name
	}
	return names
}

// Content is the capability set the engine needs from a content record.
// The engine never depends on a concrete content type.
type Content interface {
	// ID returns the store-assigned id, or 0 for an unsaved record.
	ID() int64
	SetID(id int64)

	// Class returns the content class name the record was built for.
	Class() string

	// Fields returns the record's scalar field names in their natural order.
	// The body field is included; tags are not.
	Fields() []string

	// IsSystem reports whether the store derives the field rather than
	// accepting it verbatim from the user.
	IsSystem(field string) bool

	// Raw returns the canonical string form of a field, or nil when unset.
	Raw(field string) *string

	// Assign sets a field from its raw string form. A nil value clears it.
	Assign(field string, raw *string) error

	// SetDerived stores a system-derived value for field.
	SetDerived(field, raw string) error

	Tags() []Tag
	SetTags(tags []Tag)
}

// Address returns the record's address, or "" when unset.
func Address(c Content) string {
	if v := c.Raw(FieldAddress); v != nil {
		return *v
	}
	return ""
}

// ContentFactory builds an empty record of one class.
type ContentFactory func() Content

// ClassRegistry maps content class names to factories. The content store
// supplies it; the engine only resolves names through it.
type ClassRegistry struct {
	factories map[string]ContentFactory
	slug      func(string) string
}

// NewClassRegistry creates an empty registry. slug turns a title into the
// last segment of an address.
func NewClassRegistry(slug func(string) string) *ClassRegistry {
	return &ClassRegistry{
		factories: make(map[string]ContentFactory),
		slug:      slug,
	}
}

// Register adds or replaces a class.
func (r *ClassRegistry) Register(name string, f ContentFactory) {
	r.factories[name] = f
}

// New builds an empty record for the named class.
func (r *ClassRegistry) New(name string) (Content, bool) {
	f, ok := r.factories[name]
	if !ok {
		return nil, false
	}
	return f(), true
}

// Names returns the registered class names, sorted.
func (r *ClassRegistry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Slug converts a title into an address segment.
func (r *ClassRegistry) Slug(title string) string {
	if r.slug == nil {
		return strings.ToLower(strings.Join(strings.Fields(title), "-"))
	}
	return r.slug(title)
}

// MergeInto copies every field of src except the id onto dst. System-derived
// values stay derived. When withTags is set the tag list is copied too.
func MergeInto(dst, src Content, withTags bool) error {
	for _, field := range src.Fields() {
		if field == FieldID {
			continue
		}
		raw := src.Raw(field)
		if src.IsSystem(field) {
			if raw == nil {
				continue
			}
			if err := dst.SetDerived(field, *raw); err != nil {
				return err
			}
			continue
		}
		if err := dst.Assign(field, raw); err != nil {
			return err
		}
	}
	if withTags {
		dst.SetTags(slices.Clone(src.Tags()))
	}
	return nil
}
