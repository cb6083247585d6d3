package csync

import (
	"fmt"
	"slices"
)

// Changes lists what Diff copied from the database record onto the file side.
type Changes struct {
	Fields []string
	Tags   bool
}

// Changed reports whether anything differed.
func (c Changes) Changed() bool {
	return len(c.Fields) > 0 || c.Tags
}

// Diff compares every non-system field of db with file and copies each
// differing database value onto file. Tags are compared as whole lists.
func Diff(db, file Content) (Changes, error) {
	var ch Changes
	for _, field := range db.Fields() {
		if db.IsSystem(field) {
			continue
		}
		dv := db.Raw(field)
		if deref(dv) == deref(file.Raw(field)) {
			continue
		}
		if err := file.Assign(field, dv); err != nil {
			return ch, fmt.Errorf("copying %s to file: %w", field, err)
		}
		ch.Fields = append(ch.Fields, field)
	}

	if !slices.Equal(TagNames(db.Tags()), TagNames(file.Tags())) {
		file.SetTags(slices.Clone(db.Tags()))
		ch.Tags = true
	}
	return ch, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
