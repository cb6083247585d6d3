package csync

import "time"

// Action is what the engine did with one file.
type Action string

const (
	ActionCreate    Action = "create"
	ActionUpdate    Action = "update"
	ActionRename    Action = "rename"
	ActionWriteBack Action = "write_back"
	ActionUnchanged Action = "unchanged"
	ActionDelete    Action = "delete"
	ActionSkip      Action = "skip"
)

// FileAction records the outcome for one path.
type FileAction struct {
	Path      string
	Action    Action
	ContentID int64
}

// Counts tallies actions over a run.
type Counts struct {
	Created     int
	Updated     int
	Renamed     int
	WrittenBack int
	Unchanged   int
	Deleted     int
	Skipped     int
}

// Mutated reports whether the run changed the database or the tree.
func (c Counts) Mutated() bool {
	return c.Created+c.Updated+c.Renamed+c.WrittenBack+c.Deleted > 0
}

// SyncReport summarizes one reconciliation pass.
type SyncReport struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Counts
	Actions []FileAction
}

func (r *SyncReport) record(fa FileAction) {
	r.Actions = append(r.Actions, fa)
	switch fa.Action {
	case ActionCreate:
		r.Created++
	case ActionUpdate:
		r.Updated++
	case ActionRename:
		r.Renamed++
	case ActionWriteBack:
		r.WrittenBack++
	case ActionUnchanged:
		r.Unchanged++
	case ActionDelete:
		r.Deleted++
	case ActionSkip:
		r.Skipped++
	}
}
