package csync

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// Options configures a Synchronizer.
type Options struct {
	// Root is the content directory on disk.
	Root  string
	Store ContentStore
	Index Index
	FS    FilesystemManager

	Hooks  *Hooks
	Logger Logger
	Clock  Clock

	// SkipMalformed makes SyncContent log and skip files with a malformed
	// header instead of aborting the run.
	SkipMalformed bool
}

// SyncOptions controls one SyncContent pass.
type SyncOptions struct {
	// WriteDBToFile routes fresh files through UpdateFileFromDb. When false,
	// only the file-to-database direction runs.
	WriteDBToFile bool
}

// DefaultSyncOptions synchronizes in both directions.
func DefaultSyncOptions() SyncOptions {
	return SyncOptions{WriteDBToFile: true}
}

// FileData is the parsed contents of a content file with its tags resolved.
type FileData struct {
	Header  Header
	Body    string
	HasBody bool

	// Tags is only meaningful when HasTags is set.
	Tags    []Tag
	HasTags bool
}

// Synchronizer reconciles a directory of content files with the content store.
// It processes one file at a time and holds no state between calls: the
// caller passes the current FileList in and gets the refreshed one back.
type Synchronizer struct {
	root          string
	norm          PathNormalizer
	store         ContentStore
	index         Index
	fs            FilesystemManager
	registry      *ClassRegistry
	hooks         *Hooks
	logger        Logger
	clock         Clock
	skipMalformed bool
}

// NewSynchronizer creates a Synchronizer and fires EventCreated.
func NewSynchronizer(opts Options) (*Synchronizer, error) {
	switch {
	case opts.Root == "":
		return nil, fmt.Errorf("content root is required")
	case opts.Store == nil:
		return nil, fmt.Errorf("content store is required")
	case opts.Index == nil:
		return nil, fmt.Errorf("index is required")
	case opts.FS == nil:
		return nil, fmt.Errorf("filesystem manager is required")
	}

	registry := opts.Store.ContentClasses()
	if registry == nil {
		return nil, fmt.Errorf("content store has no class registry")
	}

	s := &Synchronizer{
		root:          filepath.Clean(opts.Root),
		norm:          NewPathNormalizer(opts.Root),
		store:         opts.Store,
		index:         opts.Index,
		fs:            opts.FS,
		registry:      registry,
		hooks:         opts.Hooks,
		logger:        opts.Logger,
		clock:         opts.Clock,
		skipMalformed: opts.SkipMalformed,
	}
	if s.hooks == nil {
		s.hooks = NewHooks()
	}
	if s.logger == nil {
		s.logger = NewNopLogger()
	}
	if s.clock == nil {
		s.clock = RealClock{}
	}

	if err := s.hooks.Fire(Event{Name: EventCreated, FullPath: s.root}); err != nil {
		return nil, err
	}
	return s, nil
}

// Hooks returns the synchronizer's hook registry.
func (s *Synchronizer) Hooks() *Hooks {
	return s.hooks
}

// Normalizer returns the path normalizer for the content root.
func (s *Synchronizer) Normalizer() PathNormalizer {
	return s.norm
}

// SyncContent runs one reconciliation pass: every file under the root is
// routed to UpdateDbFromFile or UpdateFileFromDb, then rows whose files are
// gone are deleted along with their content. ctx is checked between files.
func (s *Synchronizer) SyncContent(ctx context.Context, opts SyncOptions) (*SyncReport, error) {
	report := &SyncReport{StartedAt: s.clock.Now()}
	s.logger.Info("sync started", "root", s.root, "write_db_to_file", opts.WriteDBToFile)

	list, err := s.index.ContentFileList(ctx)
	if err != nil {
		return report, fmt.Errorf("loading content file list: %w", err)
	}

	processed := make(map[string]bool)
	for entry, err := range s.fs.Scan(s.root) {
		if err != nil {
			return report, fmt.Errorf("scanning %s: %w", s.root, err)
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		dbPath := s.norm.ToDBPath(entry.Path())
		processed[dbPath] = true

		list, err = s.processFile(ctx, list, entry, opts, report)
		if err != nil {
			return report, err
		}
	}

	list, err = s.index.ContentFileList(ctx)
	if err != nil {
		return report, fmt.Errorf("reloading content file list: %w", err)
	}
	if _, err := s.sweepOrphans(ctx, list, processed, report); err != nil {
		return report, err
	}

	report.FinishedAt = s.clock.Now()
	s.logger.Info("sync finished",
		"created", report.Created,
		"updated", report.Updated,
		"renamed", report.Renamed,
		"written_back", report.WrittenBack,
		"deleted", report.Deleted,
		"skipped", report.Skipped,
	)

	if err := s.hooks.Fire(Event{Name: EventSyncComplete, FullPath: s.root, Counts: report.Counts}); err != nil {
		return report, err
	}
	return report, nil
}

// processFile decides the state of one scanned file and acts on it.
func (s *Synchronizer) processFile(ctx context.Context, list *FileList, entry ScanEntry, opts SyncOptions, report *SyncReport) (*FileList, error) {
	full := entry.Path()
	dbPath := s.norm.ToDBPath(full)
	if err := s.hooks.Fire(Event{Name: EventBeforeProcessFile, Path: dbPath, FullPath: full}); err != nil {
		return list, err
	}

	var (
		fa  FileAction
		err error
	)
	row := list.ByPath(dbPath)
	switch {
	case row == nil || entry.ModTime.Unix() > row.Mtime.Unix():
		list, fa, err = s.updateDbFromFile(ctx, list, full)
	case !opts.WriteDBToFile:
		fa = FileAction{Path: dbPath, Action: ActionUnchanged, ContentID: row.ContentID}
	default:
		list, fa, err = s.updateFileFromDb(ctx, list, full)
	}
	if err != nil {
		var malformed *MalformedFileError
		if !s.skipMalformed || !errors.As(err, &malformed) {
			return list, err
		}
		s.logger.Warn("skipping malformed content file", "path", dbPath, "line", malformed.Line, "content", malformed.Content)
		fa = FileAction{Path: dbPath, Action: ActionSkip}
	}
	report.record(fa)

	return list, s.hooks.Fire(Event{
		Name:      EventAfterProcessFile,
		Path:      dbPath,
		FullPath:  full,
		ContentID: fa.ContentID,
		Action:    fa.Action,
	})
}

// sweepOrphans deletes every row that was not processed in this pass and whose
// file no longer exists.
func (s *Synchronizer) sweepOrphans(ctx context.Context, list *FileList, processed map[string]bool, report *SyncReport) (*FileList, error) {
	var orphans []*ContentFile
	for cf := range list.All() {
		if processed[cf.Path] {
			continue
		}
		exists, err := s.fs.Exists(s.norm.ToFullPath(cf.Path))
		if err != nil {
			return list, fmt.Errorf("checking %s: %w", cf.Path, err)
		}
		if !exists {
			orphans = append(orphans, cf)
		}
	}

	if err := s.hooks.Fire(Event{Name: EventBeforeOrphanSweep, FullPath: s.root, Counts: report.Counts}); err != nil {
		return list, err
	}
	for _, cf := range orphans {
		var err error
		list, err = s.DeleteFromDb(ctx, list, cf.Path)
		if err != nil {
			return list, err
		}
		report.record(FileAction{Path: cf.Path, Action: ActionDelete, ContentID: cf.ContentID})
	}
	if err := s.hooks.Fire(Event{Name: EventAfterOrphanSweep, FullPath: s.root, Counts: report.Counts}); err != nil {
		return list, err
	}
	return list, nil
}

// UpdateDbFromFile parses the file at path and creates or updates its Content
// record and ContentFile row. A file whose address already belongs to content
// managed by a missing file is treated as a rename of that file.
func (s *Synchronizer) UpdateDbFromFile(ctx context.Context, list *FileList, path string) (*FileList, error) {
	list, _, err := s.updateDbFromFile(ctx, list, s.norm.ToFullPath(path))
	return list, err
}

func (s *Synchronizer) updateDbFromFile(ctx context.Context, list *FileList, full string) (*FileList, FileAction, error) {
	dbPath := s.norm.ToDBPath(full)
	fa := FileAction{Path: dbPath, Action: ActionUpdate}

	obj, data, err := s.objectFromFile(ctx, full)
	if err != nil {
		return list, fa, err
	}

	row := list.ByPath(dbPath)
	var record Content
	if row != nil {
		record, err = s.store.ContentByID(ctx, row.ContentID)
		if err != nil {
			return list, fa, fmt.Errorf("loading content %d for %s: %w", row.ContentID, dbPath, err)
		}
		if record != nil {
			record, err = mergeFile(record, obj, data.HasTags)
			if err != nil {
				return list, fa, fmt.Errorf("merging %s into content %d: %w", dbPath, row.ContentID, err)
			}
			if err := s.checkAddressConflict(ctx, list, record, dbPath); err != nil {
				return list, fa, err
			}
		}
	} else {
		row = &ContentFile{Path: dbPath}
	}

	if record == nil {
		address := Address(obj)
		existing, err := s.store.ContentByAddress(ctx, address)
		if err != nil {
			return list, fa, fmt.Errorf("looking up content at %s: %w", address, err)
		}

		if existing == nil {
			record = obj
			fa.Action = ActionCreate
		} else {
			reuse, extras, err := s.resolveManagers(list, existing.ID(), address, dbPath)
			if err != nil {
				return list, fa, err
			}
			if reuse != nil && row.Persisted() {
				extras = append(extras, reuse)
				reuse = nil
			}

			if reuse != nil {
				if err := s.index.RegisterFileRename(ctx, reuse.Path, dbPath); err != nil {
					return list, fa, fmt.Errorf("registering rename %s -> %s: %w", reuse.Path, dbPath, err)
				}
				s.logger.Info("file rename detected", "from", reuse.Path, "to", dbPath, "address", address)
				reuse.Path = dbPath
				row = reuse
				fa.Action = ActionRename
			}
			for _, extra := range extras {
				if err := s.index.DeleteContentFile(ctx, extra); err != nil {
					return list, fa, fmt.Errorf("deleting stale content file %s: %w", extra.Path, err)
				}
				s.logger.Info("stale content file removed", "path", extra.Path, "content_id", extra.ContentID)
			}

			record, err = mergeFile(existing, obj, true)
			if err != nil {
				return list, fa, fmt.Errorf("merging %s into content %d: %w", dbPath, existing.ID(), err)
			}
		}
	}

	if err := s.saveContent(ctx, record, dbPath, full); err != nil {
		return list, fa, err
	}
	fa.ContentID = record.ID()

	mtime, err := s.fs.ModTime(full)
	if err != nil {
		return list, fa, fmt.Errorf("stat %s: %w", full, err)
	}
	row.ContentID = record.ID()
	row.SetMtime(mtime)
	if err := s.index.SaveContentFile(ctx, row); err != nil {
		return list, fa, fmt.Errorf("saving content file %s: %w", dbPath, err)
	}
	s.logger.Debug("database updated from file", "path", dbPath, "content_id", fa.ContentID, "action", string(fa.Action))

	list, err = s.index.ContentFileList(ctx)
	if err != nil {
		return list, fa, fmt.Errorf("reloading content file list: %w", err)
	}
	return list, fa, nil
}

// mergeFile folds the parsed file object into the stored record and returns
// the record to save. When the file names another content class the parsed
// object replaces the record under the same id; without a tags line it keeps
// the stored tags.
func mergeFile(record, obj Content, withTags bool) (Content, error) {
	if record.Class() == obj.Class() {
		if err := MergeInto(record, obj, withTags); err != nil {
			return nil, err
		}
		return record, nil
	}
	obj.SetID(record.ID())
	if !withTags {
		obj.SetTags(slices.Clone(record.Tags()))
	}
	return obj, nil
}

// resolveManagers inspects every row managing contentID other than dbPath.
// It fails on the first one whose file still exists, so a conflict mutates
// nothing. Otherwise the first row is returned for reuse and the rest as extras.
func (s *Synchronizer) resolveManagers(list *FileList, contentID int64, address, dbPath string) (*ContentFile, []*ContentFile, error) {
	var (
		reuse  *ContentFile
		extras []*ContentFile
	)
	for _, cf := range list.ByContentID(contentID) {
		if cf.Path == dbPath {
			continue
		}
		exists, err := s.fs.Exists(s.norm.ToFullPath(cf.Path))
		if err != nil {
			return nil, nil, fmt.Errorf("checking %s: %w", cf.Path, err)
		}
		if exists {
			return nil, nil, &DuplicateManagementError{Address: address, ExistingPath: cf.Path, DuplicatePath: dbPath}
		}
		if reuse == nil {
			reuse = cf
		} else {
			extras = append(extras, cf)
		}
	}
	return reuse, extras, nil
}

// checkAddressConflict fails when record's address now belongs to a different
// content record.
func (s *Synchronizer) checkAddressConflict(ctx context.Context, list *FileList, record Content, dbPath string) error {
	address := Address(record)
	other, err := s.store.ContentByAddress(ctx, address)
	if err != nil {
		return fmt.Errorf("looking up content at %s: %w", address, err)
	}
	if other == nil || other.ID() == record.ID() {
		return nil
	}
	existing := fmt.Sprintf("content #%d", other.ID())
	if rows := list.ByContentID(other.ID()); len(rows) > 0 {
		existing = rows[0].Path
	}
	return &DuplicateManagementError{Address: address, ExistingPath: existing, DuplicatePath: dbPath}
}

func (s *Synchronizer) saveContent(ctx context.Context, record Content, dbPath, full string) error {
	ev := Event{
		Name:      EventBeforeSaveContent,
		Path:      dbPath,
		FullPath:  full,
		ContentID: record.ID(),
		Address:   Address(record),
		Class:     record.Class(),
	}
	if err := s.hooks.Fire(ev); err != nil {
		return err
	}
	if err := s.store.SaveContent(ctx, record); err != nil {
		return fmt.Errorf("saving content for %s: %w", dbPath, err)
	}
	ev.Name = EventAfterSaveContent
	ev.ContentID = record.ID()
	return s.hooks.Fire(ev)
}

// UpdateFileFromDb copies database values that differ from the file back into
// the file. The file is only rewritten, and its row's mtime only refreshed,
// when something differs. It reports whether the file was written.
func (s *Synchronizer) UpdateFileFromDb(ctx context.Context, list *FileList, path string) (*FileList, bool, error) {
	list, fa, err := s.updateFileFromDb(ctx, list, s.norm.ToFullPath(path))
	return list, fa.Action == ActionWriteBack, err
}

func (s *Synchronizer) updateFileFromDb(ctx context.Context, list *FileList, full string) (*FileList, FileAction, error) {
	const op = "updateFileFromDb"
	dbPath := s.norm.ToDBPath(full)
	fa := FileAction{Path: dbPath, Action: ActionUnchanged}

	row := list.ByPath(dbPath)
	if row == nil {
		return list, fa, &InvariantViolationError{Op: op, Path: dbPath, Reason: "no content file row exists for this path"}
	}
	fa.ContentID = row.ContentID

	dbObj, err := s.store.ContentByID(ctx, row.ContentID)
	if err != nil {
		return list, fa, fmt.Errorf("loading content %d for %s: %w", row.ContentID, dbPath, err)
	}
	if dbObj == nil {
		return list, fa, &InvariantViolationError{Op: op, Path: dbPath, Reason: fmt.Sprintf("content %d does not exist", row.ContentID)}
	}

	fileObj, data, err := s.objectFromFile(ctx, full)
	if err != nil {
		return list, fa, err
	}

	extra := unknownHeader(fileObj, data.Header)
	var changes Changes
	if dbObj.Class() != fileObj.Class() {
		// The class changed in the store; the file is rewritten from the record.
		changes = Changes{Fields: []string{FieldClass}}
		fileObj = dbObj
	} else if changes, err = Diff(dbObj, fileObj); err != nil {
		return list, fa, fmt.Errorf("diffing %s: %w", dbPath, err)
	}
	if !changes.Changed() {
		return list, fa, nil
	}

	ev := Event{
		Name:      EventBeforeWriteFile,
		Path:      dbPath,
		FullPath:  full,
		ContentID: dbObj.ID(),
		Address:   Address(dbObj),
		Class:     dbObj.Class(),
	}
	if err := s.hooks.Fire(ev); err != nil {
		return list, fa, err
	}
	if err := s.fs.WriteFile(full, serialize(fileObj, extra)); err != nil {
		return list, fa, fmt.Errorf("writing %s: %w", full, err)
	}
	ev.Name = EventAfterWriteFile
	if err := s.hooks.Fire(ev); err != nil {
		return list, fa, err
	}
	fa.Action = ActionWriteBack
	s.logger.Info("file updated from database", "path", dbPath, "fields", strings.Join(changes.Fields, ","), "tags", changes.Tags)

	mtime, err := s.fs.ModTime(full)
	if err != nil {
		return list, fa, fmt.Errorf("stat %s: %w", full, err)
	}
	row.SetMtime(mtime)
	if err := s.index.SaveContentFile(ctx, row); err != nil {
		return list, fa, fmt.Errorf("saving content file %s: %w", dbPath, err)
	}

	list, err = s.index.ContentFileList(ctx)
	if err != nil {
		return list, fa, fmt.Errorf("reloading content file list: %w", err)
	}
	return list, fa, nil
}

// DeleteFromDb deletes the Content record managed by path and the row itself.
// A path with no row is a no-op.
func (s *Synchronizer) DeleteFromDb(ctx context.Context, list *FileList, path string) (*FileList, error) {
	full := s.norm.ToFullPath(path)
	dbPath := s.norm.ToDBPath(full)
	row := list.ByPath(dbPath)
	if row == nil {
		return list, nil
	}

	record, err := s.store.ContentByID(ctx, row.ContentID)
	if err != nil {
		return list, fmt.Errorf("loading content %d for %s: %w", row.ContentID, dbPath, err)
	}

	ev := Event{Name: EventBeforeDelete, Path: dbPath, FullPath: full, ContentID: row.ContentID}
	if record != nil {
		ev.Address = Address(record)
		ev.Class = record.Class()
	}
	if err := s.hooks.Fire(ev); err != nil {
		return list, err
	}

	if record != nil {
		if err := s.store.DeleteContent(ctx, record); err != nil {
			return list, fmt.Errorf("deleting content %d: %w", row.ContentID, err)
		}
	}
	if err := s.index.DeleteContentFile(ctx, row); err != nil {
		return list, fmt.Errorf("deleting content file %s: %w", dbPath, err)
	}
	s.logger.Info("content deleted", "path", dbPath, "content_id", row.ContentID)

	ev.Name = EventAfterDelete
	if err := s.hooks.Fire(ev); err != nil {
		return list, err
	}

	list, err = s.index.ContentFileList(ctx)
	if err != nil {
		return list, fmt.Errorf("reloading content file list: %w", err)
	}
	return list, nil
}

// GetObjectFromFile parses the file at path into a Content record of the class
// named by its contentClass header. The record is not saved.
func (s *Synchronizer) GetObjectFromFile(ctx context.Context, path string) (Content, error) {
	obj, _, err := s.objectFromFile(ctx, s.norm.ToFullPath(path))
	return obj, err
}

// GetDataFromFile reads and parses the file at path. Tag names are resolved
// against the content store, creating any that are missing.
func (s *Synchronizer) GetDataFromFile(ctx context.Context, path string) (*FileData, error) {
	full := s.norm.ToFullPath(path)
	data, err := s.readFile(full)
	if err != nil {
		return nil, err
	}

	raw, ok := data.Header.Get(FieldTags)
	if !ok {
		return data, nil
	}
	data.HasTags = true
	if names := SplitTags(deref(raw)); len(names) > 0 {
		data.Tags, err = s.store.GetOrAddTagsByName(ctx, names)
		if err != nil {
			return nil, fmt.Errorf("resolving tags for %s: %w", s.norm.ToDBPath(full), err)
		}
	}
	return data, nil
}

// readFile parses a file without touching the store.
func (s *Synchronizer) readFile(full string) (*FileData, error) {
	raw, err := s.fs.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", full, err)
	}
	parsed, err := ParseHeaderAndBody(raw)
	if err != nil {
		var malformed *MalformedFileError
		if errors.As(err, &malformed) {
			malformed.Path = s.norm.ToDBPath(full)
		}
		return nil, err
	}
	return &FileData{Header: parsed.Header, Body: parsed.Body, HasBody: parsed.HasBody}, nil
}

func (s *Synchronizer) objectFromFile(ctx context.Context, full string) (Content, *FileData, error) {
	data, err := s.GetDataFromFile(ctx, full)
	if err != nil {
		return nil, nil, err
	}
	obj, err := s.buildContentObject(data, full)
	if err != nil {
		return nil, nil, err
	}
	return obj, data, nil
}

// buildContentObject resolves the content class and assigns every header
// field. Fields the class does not define are skipped with a warning.
func (s *Synchronizer) buildContentObject(data *FileData, full string) (Content, error) {
	dbPath := s.norm.ToDBPath(full)

	classRaw, _ := data.Header.Get(FieldClass)
	class := deref(classRaw)
	obj, ok := s.registry.New(class)
	if !ok {
		return nil, &UnknownContentClassError{Class: class, DBPath: dbPath, FullPath: full}
	}

	for _, field := range data.Header {
		switch field.Name {
		case FieldClass, FieldTags:
			continue
		}
		err := obj.Assign(field.Name, field.Value)
		if errors.Is(err, ErrUnknownField) || errors.Is(err, ErrReadOnlyField) {
			s.logger.Warn("ignoring header field", "path", dbPath, "field", field.Name, "reason", err.Error())
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", dbPath, err)
		}
	}

	body := data.Body
	if err := obj.Assign(FieldBody, &body); err != nil {
		return nil, fmt.Errorf("%s: %w", dbPath, err)
	}
	obj.SetTags(data.Tags)

	if parent := obj.Raw(FieldParent); parent != nil && obj.IsSystem(FieldAddress) {
		title := deref(obj.Raw(FieldTitle))
		address := strings.TrimRight(*parent, "/") + "/" + s.registry.Slug(title)
		if err := obj.SetDerived(FieldAddress, address); err != nil {
			return nil, fmt.Errorf("%s: %w", dbPath, err)
		}
	}
	return obj, nil
}
