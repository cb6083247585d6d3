package csync

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// PlanState is what SyncContent would do with a path.
type PlanState string

const (
	PlanNew       PlanState = "new"
	PlanStaleDB   PlanState = "stale_db"
	PlanWriteBack PlanState = "write_back"
	PlanFresh     PlanState = "fresh"
	PlanRename    PlanState = "rename"
	PlanDuplicate PlanState = "duplicate"
	PlanOrphan    PlanState = "orphan"
	PlanInvalid   PlanState = "invalid"
)

// Indicator returns the one-character marker used by `csync status`.
func (s PlanState) Indicator() string {
	switch s {
	case PlanNew:
		return "N"
	case PlanStaleDB:
		return "M"
	case PlanWriteBack:
		return "W"
	case PlanFresh:
		return "="
	case PlanRename:
		return "R"
	case PlanDuplicate:
		return "!"
	case PlanOrphan:
		return "D"
	default:
		return "?"
	}
}

// PlanEntry is the predicted outcome for one path.
type PlanEntry struct {
	Path   string
	State  PlanState
	Detail string
}

// Plan is a dry run of SyncContent.
type Plan struct {
	Entries []PlanEntry
}

// Count returns the number of entries in state.
func (p *Plan) Count(state PlanState) int {
	n := 0
	for _, e := range p.Entries {
		if e.State == state {
			n++
		}
	}
	return n
}

// Plan classifies every file under the root and every orphaned row without
// mutating the store, the index or the tree. Tags are compared by name only.
func (s *Synchronizer) Plan(ctx context.Context, list *FileList) (*Plan, error) {
	plan := &Plan{}
	seen := make(map[string]bool)

	for entry, err := range s.fs.Scan(s.root) {
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", s.root, err)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		full := entry.Path()
		dbPath := s.norm.ToDBPath(full)
		seen[dbPath] = true

		pe, err := s.planFile(ctx, list, entry)
		if err != nil {
			return nil, err
		}
		if pe.State == PlanRename {
			// The old row moves with the file and is not swept.
			seen[pe.Detail] = true
		}
		plan.Entries = append(plan.Entries, pe)
	}

	for cf := range list.All() {
		if seen[cf.Path] {
			continue
		}
		exists, err := s.fs.Exists(s.norm.ToFullPath(cf.Path))
		if err != nil {
			return nil, fmt.Errorf("checking %s: %w", cf.Path, err)
		}
		if !exists {
			plan.Entries = append(plan.Entries, PlanEntry{Path: cf.Path, State: PlanOrphan})
		}
	}
	return plan, nil
}

func (s *Synchronizer) planFile(ctx context.Context, list *FileList, entry ScanEntry) (PlanEntry, error) {
	full := entry.Path()
	dbPath := s.norm.ToDBPath(full)
	pe := PlanEntry{Path: dbPath}

	row := list.ByPath(dbPath)
	if row != nil && entry.ModTime.Unix() > row.Mtime.Unix() {
		pe.State = PlanStaleDB
		return pe, nil
	}

	obj, err := s.previewFile(full)
	if err == nil && row == nil {
		return s.planNew(ctx, list, pe, obj)
	}
	if err == nil {
		return s.planFresh(ctx, row, pe, obj)
	}

	var (
		malformed *MalformedFileError
		unknown   *UnknownContentClassError
	)
	if errors.As(err, &malformed) || errors.As(err, &unknown) {
		pe.State = PlanInvalid
		pe.Detail = err.Error()
		return pe, nil
	}
	return pe, err
}

func (s *Synchronizer) planNew(ctx context.Context, list *FileList, pe PlanEntry, obj Content) (PlanEntry, error) {
	pe.State = PlanNew
	address := Address(obj)
	existing, err := s.store.ContentByAddress(ctx, address)
	if err != nil {
		return pe, fmt.Errorf("looking up content at %s: %w", address, err)
	}
	if existing == nil {
		return pe, nil
	}

	reuse, _, err := s.resolveManagers(list, existing.ID(), address, pe.Path)
	var dup *DuplicateManagementError
	switch {
	case errors.As(err, &dup):
		pe.State = PlanDuplicate
		pe.Detail = dup.ExistingPath
	case err != nil:
		return pe, err
	case reuse != nil:
		pe.State = PlanRename
		pe.Detail = reuse.Path
	default:
		pe.Detail = "adopts existing content at " + address
	}
	return pe, nil
}

func (s *Synchronizer) planFresh(ctx context.Context, row *ContentFile, pe PlanEntry, fileObj Content) (PlanEntry, error) {
	pe.State = PlanFresh
	dbObj, err := s.store.ContentByID(ctx, row.ContentID)
	if err != nil {
		return pe, fmt.Errorf("loading content %d for %s: %w", row.ContentID, pe.Path, err)
	}
	if dbObj == nil {
		pe.State = PlanInvalid
		pe.Detail = fmt.Sprintf("content %d does not exist", row.ContentID)
		return pe, nil
	}

	changes, err := Diff(dbObj, fileObj)
	if err != nil {
		return pe, fmt.Errorf("diffing %s: %w", pe.Path, err)
	}
	if changes.Changed() {
		pe.State = PlanWriteBack
		fields := changes.Fields
		if changes.Tags {
			fields = append(fields, FieldTags)
		}
		pe.Detail = strings.Join(fields, ", ")
	}
	return pe, nil
}

// PreviewFile parses the file at path like GetObjectFromFile but leaves the
// store untouched. Tags carry names only.
func (s *Synchronizer) PreviewFile(path string) (Content, error) {
	return s.previewFile(s.norm.ToFullPath(path))
}

func (s *Synchronizer) previewFile(full string) (Content, error) {
	data, err := s.readFile(full)
	if err != nil {
		return nil, err
	}
	if raw, ok := data.Header.Get(FieldTags); ok {
		data.HasTags = true
		for _, name := range SplitTags(deref(raw)) {
			data.Tags = append(data.Tags, Tag{Name: name})
		}
	}
	return s.buildContentObject(data, full)
}
