package csync

import (
	"errors"
	"fmt"
)

// ErrNotTracked is returned when a path lies outside the content root.
var ErrNotTracked = errors.New("path is outside the content root")

// MalformedFileError reports a header line without a colon delimiter.
type MalformedFileError struct {
	Path    string
	Line    int
	Content string
}

func (e *MalformedFileError) Error() string {
	prefix := "malformed header"
	if e.Path != "" {
		prefix = fmt.Sprintf("malformed header in %s", e.Path)
	}
	return fmt.Sprintf("%s: no colon delimiter in header #%d, %q", prefix, e.Line, e.Content)
}

// UnknownContentClassError reports a missing or unregistered contentClass header.
type UnknownContentClassError struct {
	Class    string
	DBPath   string
	FullPath string
}

func (e *UnknownContentClassError) Error() string {
	if e.Class == "" {
		return fmt.Sprintf("content file %s (%s) has no contentClass header", e.DBPath, e.FullPath)
	}
	return fmt.Sprintf("unknown content class %q in %s (%s)", e.Class, e.DBPath, e.FullPath)
}

// DuplicateManagementError reports two files on disk that resolve to the same
// content address. It needs operator action: one of the files must go.
type DuplicateManagementError struct {
	Address       string
	ExistingPath  string
	DuplicatePath string
}

func (e *DuplicateManagementError) Error() string {
	return fmt.Sprintf("content at %s is already managed by %s; %s is a duplicate and should be removed",
		e.Address, e.ExistingPath, e.DuplicatePath)
}

// InvariantViolationError signals engine misuse or a bug rather than bad data.
type InvariantViolationError struct {
	Op     string
	Path   string
	Reason string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("%s %s: invariant violated: %s", e.Op, e.Path, e.Reason)
}

// InadequateSchemaError means the database was never initialized by the
// content management application.
type InadequateSchemaError struct {
	Err error
}

func (e *InadequateSchemaError) Error() string {
	return fmt.Sprintf("database does not implement the content schema (run the CMS migrations first): %v", e.Err)
}

func (e *InadequateSchemaError) Unwrap() error { return e.Err }

// ValidationError reports a ContentFile that cannot be persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid content file %s: %s", e.Field, e.Reason)
}
