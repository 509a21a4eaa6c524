// Package tracker maintains the persisted revision table and computes the
// set of changed paths between ingestion runs. The revision table is the
// only durable ingestion state; it is mutated exclusively through a
// transactional per-run commit so a crash mid-run leaves the previous
// table intact.
package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/docscout/docscout/internal/remote"
)

// Status is the terminal outcome of the most recent indexing attempt for a path.
type Status string

const (
	// StatusOK means extraction and indexing fully succeeded.
	StatusOK Status = "ok"
	// StatusPartial means text was indexed but truncated or low-confidence.
	StatusPartial Status = "partial"
	// StatusFailed means the revision's content produced no usable text.
	// Terminal for that revision: only a new revision triggers another
	// attempt.
	StatusFailed Status = "failed"
	// StatusRetry means the attempt hit a transient fault (fetch or index
	// write) before the content could be judged. The path is re-attempted
	// on every run until an attempt reaches a content outcome, even when
	// an incremental listing omits it.
	StatusRetry Status = "retry"
	// StatusRemoving means the path's deletion was observed but the index
	// delete has not succeeded yet. The removal is re-attempted on every
	// run; the tombstone itself is consumed with the listing cursor and
	// never re-listed.
	StatusRemoving Status = "removing"
)

// RevisionRecord tracks the last known state of one remote path.
// Records are never silently dropped; removal requires a deletion detected
// in a ChangeSet.
type RevisionRecord struct {
	Path string

	// LastSeenRevision is the revision of the most recent attempt: the
	// indexed revision for ok/partial/failed outcomes, the listing-time
	// revision for retry outcomes (so a re-attempt has something to fetch
	// and re-check against).
	LastSeenRevision string

	// LastIndexedAt is the time of the most recent attempt, success or not.
	LastIndexedAt time.Time

	// LastStatus is the outcome of the most recent attempt.
	LastStatus Status
}

// ChangeSet is the per-run diff between the remote listing and the
// committed revision table. It is computed once per run and discarded.
type ChangeSet struct {
	Added   []remote.File
	Updated []remote.File
	Removed []string
}

// Empty reports whether the change set contains no work.
func (c *ChangeSet) Empty() bool {
	return len(c.Added) == 0 && len(c.Updated) == 0 && len(c.Removed) == 0
}

// ErrNotFound is returned when a path has no revision record.
var ErrNotFound = errors.New("revision record not found")

// RevisionStore persists RevisionRecords and the listing cursor.
// Implementations: SQLiteStore (durable) and MemoryStore (tests).
type RevisionStore interface {
	// Get returns the record for a path, or ErrNotFound.
	Get(ctx context.Context, path string) (*RevisionRecord, error)

	// All returns every record keyed by path.
	All(ctx context.Context) (map[string]*RevisionRecord, error)

	// Cursor returns the last committed listing cursor ("" before any run).
	Cursor(ctx context.Context) (string, error)

	// CommitRun atomically applies a run's outcomes: record upserts,
	// removals, and the new listing cursor. Either everything is applied
	// or nothing is.
	CommitRun(ctx context.Context, upserts []*RevisionRecord, removals []string, cursor string) error

	// Close releases resources.
	Close() error
}
