package csync

import (
	"context"
	"io"
)

// SnapshotStore keeps the latest copy of an instance's database off-host.
// Each snapshot carries a version (the id of the sync run that produced it)
// so a host can refuse to run against a database older than its snapshot.
type SnapshotStore interface {
	// Put replaces the instance's snapshot. size is the number of bytes
	// that will be read from r.
	Put(ctx context.Context, instanceID string, r io.Reader, size int64, version int64) error

	// Get writes the instance's snapshot to w.
	Get(ctx context.Context, instanceID string, w io.Writer) error

	// Version returns the stored snapshot's version, or 0 if there is none.
	Version(ctx context.Context, instanceID string) (int64, error)

	// ValidateSetup verifies that the store is reachable and usable.
	ValidateSetup(ctx context.Context) error
}
