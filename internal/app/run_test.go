package app

import (
	"errors"
	"testing"

	"csync/internal/csync"
	"csync/internal/testutil"
)

func TestNewSyncRun(t *testing.T) {
	ids := &testutil.StubIDGenerator{}
	run := NewSyncRun(OpSync, csync.SyncOptions{WriteDBToFile: false}, true, ids)

	if run.Persisted() {
		t.Error("new run should not be persisted")
	}
	if run.UUID == "" {
		t.Error("UUID is empty")
	}
	if run.Status != RunRunning {
		t.Errorf("Status = %q, want %q", run.Status, RunRunning)
	}
	if want := "write_db_to_file=false skip_malformed=true"; run.Parameters != want {
		t.Errorf("Parameters = %q, want %q", run.Parameters, want)
	}
}

func TestSyncRun_Finish(t *testing.T) {
	ids := &testutil.StubIDGenerator{}

	t.Run("success", func(t *testing.T) {
		run := NewSyncRun(OpSync, csync.DefaultSyncOptions(), false, ids)
		run.Finish(&csync.SyncReport{Counts: csync.Counts{Created: 2, Deleted: 1}}, nil)

		if run.Status != RunSuccess {
			t.Errorf("Status = %q, want %q", run.Status, RunSuccess)
		}
		if run.Counts.Created != 2 || run.Counts.Deleted != 1 {
			t.Errorf("Counts = %+v", run.Counts)
		}
		if run.ErrorText() != "" {
			t.Errorf("ErrorText() = %q, want empty", run.ErrorText())
		}
	})

	t.Run("error keeps partial counts", func(t *testing.T) {
		run := NewSyncRun(OpSync, csync.DefaultSyncOptions(), false, ids)
		run.Finish(&csync.SyncReport{Counts: csync.Counts{Updated: 3}}, errors.New("disk full"))

		if run.Status != RunError {
			t.Errorf("Status = %q, want %q", run.Status, RunError)
		}
		if run.Counts.Updated != 3 {
			t.Errorf("Counts.Updated = %d, want 3", run.Counts.Updated)
		}
		if run.ErrorText() != "disk full" {
			t.Errorf("ErrorText() = %q", run.ErrorText())
		}
	})

	t.Run("nil report", func(t *testing.T) {
		run := NewSyncRun(OpSync, csync.DefaultSyncOptions(), false, ids)
		run.Finish(nil, errors.New("boom"))
		if run.Counts != (csync.Counts{}) {
			t.Errorf("Counts = %+v, want zero", run.Counts)
		}
	})
}
