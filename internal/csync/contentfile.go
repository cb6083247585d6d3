package csync

import (
	"iter"
	"slices"
	"strings"
	"time"
)

// ContentFile links a root-relative file path to the Content record it manages.
// Mtime is the file's modification time as of the last synchronization, not the
// live value on disk.
type ContentFile struct {
	ID        int64
	Path      string
	Mtime     time.Time
	ContentID int64
}

// SetMtime stores t at seconds resolution.
func (cf *ContentFile) SetMtime(t time.Time) {
	cf.Mtime = time.Unix(t.Unix(), 0).UTC()
}

// Persisted reports whether the row has been assigned an id by the index.
func (cf *ContentFile) Persisted() bool {
	return cf.ID != 0
}

// Validate checks that every required field is set.
func (cf *ContentFile) Validate() error {
	switch {
	case cf.Path == "":
		return &ValidationError{Field: "path", Reason: "a path is required"}
	case cf.Mtime.IsZero():
		return &ValidationError{Field: "mtime", Reason: "a modification time is required"}
	case cf.ContentID <= 0:
		return &ValidationError{Field: "contentId", Reason: "a content id is required"}
	}
	return nil
}

// FileList is an immutable snapshot of the ContentFile rows held by the index,
// ordered by path ascending then mtime descending. Callers get a fresh list back
// from every mutating operation and pass it into the next one.
type FileList struct {
	files  []ContentFile
	byPath map[string]int
}

// NewFileList builds a snapshot from rows. The rows are copied and sorted.
func NewFileList(rows []ContentFile) *FileList {
	files := slices.Clone(rows)
	slices.SortStableFunc(files, func(a, b ContentFile) int {
		if c := strings.Compare(a.Path, b.Path); c != 0 {
			return c
		}
		return b.Mtime.Compare(a.Mtime)
	})

	byPath := make(map[string]int, len(files))
	for i := len(files) - 1; i >= 0; i-- {
		byPath[files[i].Path] = i
	}
	return &FileList{files: files, byPath: byPath}
}

// Len returns the number of rows.
func (l *FileList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.files)
}

// ByPath returns a copy of the first row for dbPath, or nil.
func (l *FileList) ByPath(dbPath string) *ContentFile {
	if l == nil {
		return nil
	}
	i, ok := l.byPath[dbPath]
	if !ok {
		return nil
	}
	cf := l.files[i]
	return &cf
}

// ByContentID returns copies of every row managing the given content id.
func (l *FileList) ByContentID(id int64) []*ContentFile {
	if l == nil {
		return nil
	}
	var out []*ContentFile
	for _, f := range l.files {
		if f.ContentID == id {
			cf := f
			out = append(out, &cf)
		}
	}
	return out
}

// All yields a copy of each row in list order.
func (l *FileList) All() iter.Seq[*ContentFile] {
	return func(yield func(*ContentFile) bool) {
		if l == nil {
			return
		}
		for _, f := range l.files {
			cf := f
			if !yield(&cf) {
				return
			}
		}
	}
}

// Paths returns the path of every row in list order.
func (l *FileList) Paths() []string {
	if l == nil {
		return nil
	}
	paths := make([]string, len(l.files))
	for i, f := range l.files {
		paths[i] = f.Path
	}
	return paths
}
