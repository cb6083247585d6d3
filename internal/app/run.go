package app

import (
	"fmt"

	"csync/internal/csync"
)

// Sync run statuses, as stored in sync_runs.status.
const (
	RunRunning = "running"
	RunSuccess = "success"
	RunError   = "error"
)

// SyncRun tracks one reconciliation pass. Runs are created in memory with
// ID=0 and get an auto-increment ID once recorded in the index.
type SyncRun struct {
	ID         int64
	UUID       string
	Operation  string
	Parameters string
	Status     string
	Counts     csync.Counts
	Err        error
}

// NewSyncRun creates a new in-memory sync run.
func NewSyncRun(operation string, opts csync.SyncOptions, skipMalformed bool, ids csync.IDGenerator) *SyncRun {
	return &SyncRun{
		UUID:       ids.New(),
		Operation:  operation,
		Parameters: fmt.Sprintf("write_db_to_file=%t skip_malformed=%t", opts.WriteDBToFile, skipMalformed),
		Status:     RunRunning,
	}
}

// Persisted returns true if this run has been saved to the database.
func (r *SyncRun) Persisted() bool {
	return r.ID != 0
}

// Finish records the outcome of the pass.
func (r *SyncRun) Finish(report *csync.SyncReport, err error) {
	if report != nil {
		r.Counts = report.Counts
	}
	r.Err = err
	r.Status = RunSuccess
	if err != nil {
		r.Status = RunError
	}
}

// ErrorText returns the run's error message, or "".
func (r *SyncRun) ErrorText() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
