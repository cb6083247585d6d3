package csync

import "context"

// ContentStore is the content management system that owns Content records.
// Lookups that find nothing return (nil, nil).
type ContentStore interface {
	ContentByID(ctx context.Context, id int64) (Content, error)
	ContentByAddress(ctx context.Context, address string) (Content, error)

	// ContentClasses returns the registry used to build records of each class.
	ContentClasses() *ClassRegistry

	// GetOrAddTagsByName resolves tag names, creating missing ones. The result
	// preserves the order of names.
	GetOrAddTagsByName(ctx context.Context, names []string) ([]Tag, error)

	// SaveContent inserts or updates a record and its tags. New records get
	// their id assigned.
	SaveContent(ctx context.Context, c Content) error
	DeleteContent(ctx context.Context, c Content) error
}

// Index persists ContentFile bookkeeping rows.
type Index interface {
	// ContentFileList returns every row, ordered by path then mtime descending.
	ContentFileList(ctx context.Context) (*FileList, error)

	// RegisterFileRename moves the row at oldPath to newPath.
	RegisterFileRename(ctx context.Context, oldPath, newPath string) error

	// SaveContentFile validates and inserts or updates a row. New rows get
	// their id assigned.
	SaveContentFile(ctx context.Context, cf *ContentFile) error
	DeleteContentFile(ctx context.Context, cf *ContentFile) error

	// PathIsUnique reports whether no other row uses cf's path.
	PathIsUnique(ctx context.Context, cf *ContentFile) (bool, error)

	// ContentIDIsUnique reports whether no other row manages cf's content id.
	ContentIDIsUnique(ctx context.Context, cf *ContentFile) (bool, error)
}
