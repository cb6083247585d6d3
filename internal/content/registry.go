package content

import (
	"github.com/gosimple/slug"

	"csync/internal/csync"
)

// Classes lists every built-in content class.
var Classes = []*Schema{Post, Page}

// Registry returns a class registry holding every built-in class.
func Registry() *csync.ClassRegistry {
	reg := csync.NewClassRegistry(slug.Make)
	for _, schema := range Classes {
		reg.Register(schema.Class, func() csync.Content { return NewRecord(schema) })
	}
	return reg
}
