// Package ingest orchestrates one synchronization run: list the remote
// store, diff against the revision table, pipeline each changed file
// through fetch, extract, normalize, and index, then commit the outcomes
// in a single transaction.
package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	scouterrors "github.com/docscout/docscout/internal/errors"
	"github.com/docscout/docscout/internal/extract"
	"github.com/docscout/docscout/internal/index"
	"github.com/docscout/docscout/internal/normalize"
	"github.com/docscout/docscout/internal/remote"
	"github.com/docscout/docscout/internal/tracker"
)

// Config holds run parameters.
type Config struct {
	// Workers bounds the per-path pipeline fan-out.
	Workers int

	// FetchTimeout bounds a single remote fetch.
	FetchTimeout time.Duration

	// LockDir is the directory the run lock lives in. Empty disables
	// locking (tests).
	LockDir string
}

// Summary reports what a run did.
type Summary struct {
	RunID    string
	Added    int
	Updated  int
	Removed  int
	Indexed  int
	Partial  int
	Failed   int
	Deferred int
	Duration time.Duration
}

// Index is the mutating slice of the search index the orchestrator drives.
type Index interface {
	Upsert(ctx context.Context, rec index.Record) error
	Delete(ctx context.Context, path string) error
}

// Orchestrator wires the pipeline stages together. It is the only writer
// of the revision table.
type Orchestrator struct {
	client     remote.Client
	store      tracker.RevisionStore
	trk        *tracker.Tracker
	extractor  *extract.Extractor
	normalizer *normalize.Normalizer
	idx        Index
	cfg        Config
	onCommit   func()
	log        *slog.Logger
}

// New creates an Orchestrator. onCommit runs after a successful commit and
// may be nil; the query service hooks its cache invalidation there.
func New(client remote.Client, store tracker.RevisionStore, extractor *extract.Extractor,
	normalizer *normalize.Normalizer, idx Index, cfg Config, onCommit func()) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 2 * time.Minute
	}
	return &Orchestrator{
		client:     client,
		store:      store,
		trk:        tracker.New(store),
		extractor:  extractor,
		normalizer: normalizer,
		idx:        idx,
		cfg:        cfg,
		onCommit:   onCommit,
		log:        slog.Default().With("component", "ingest"),
	}
}

// outcome is the terminal state of one per-path pipeline.
type outcome struct {
	record *tracker.RevisionRecord
	status tracker.Status
}

// Run executes one full synchronization run. A listing failure aborts with
// zero mutation; per-path failures are recorded, never fatal.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := o.log.With("run_id", runID)

	if o.cfg.LockDir != "" {
		lock := NewRunLock(o.cfg.LockDir)
		acquired, err := lock.TryLock()
		if err != nil {
			return nil, scouterrors.Wrap(scouterrors.ErrCodeRunLocked, err)
		}
		if !acquired {
			return nil, scouterrors.New(scouterrors.ErrCodeRunLocked,
				"another ingest run holds the lock", nil)
		}
		defer func() { _ = lock.Unlock() }()
	}

	cursor, err := o.store.Cursor(ctx)
	if err != nil {
		return nil, err
	}

	log.Info("run started", "cursor_present", cursor != "")
	listing, err := o.client.List(ctx, cursor)
	if err != nil {
		return nil, scouterrors.Wrap(scouterrors.ErrCodeListingFailed, err)
	}

	changes, err := o.trk.Diff(ctx, listing)
	if err != nil {
		return nil, err
	}
	log.Info("diff computed",
		"added", len(changes.Added),
		"updated", len(changes.Updated),
		"removed", len(changes.Removed))

	summary := &Summary{
		RunID:   runID,
		Added:   len(changes.Added),
		Updated: len(changes.Updated),
	}

	var (
		mu      sync.Mutex
		upserts []*tracker.RevisionRecord
	)
	record := func(out outcome) {
		mu.Lock()
		defer mu.Unlock()
		if out.record != nil {
			upserts = append(upserts, out.record)
		}
		switch out.status {
		case tracker.StatusOK:
			summary.Indexed++
		case tracker.StatusPartial:
			summary.Indexed++
			summary.Partial++
		case tracker.StatusFailed, tracker.StatusRetry:
			summary.Failed++
		default:
			summary.Deferred++
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)
	for _, file := range append(changes.Added, changes.Updated...) {
		file := file
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			record(o.process(gctx, log, file))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Removals run strictly after all upserts have reached a terminal
	// state. A failed index delete flips the record to the removing state;
	// the tombstone is consumed with the cursor, so the record is the only
	// thing that carries the removal to the next run.
	var removals []string
	now := time.Now().UTC()
	for _, path := range changes.Removed {
		if err := o.idx.Delete(ctx, path); err != nil {
			log.Warn("index delete failed, removal queued for retry",
				"path", path, "error", err)
			upserts = append(upserts, &tracker.RevisionRecord{
				Path:          path,
				LastIndexedAt: now,
				LastStatus:    tracker.StatusRemoving,
			})
			continue
		}
		removals = append(removals, path)
		summary.Removed++
	}

	if err := o.store.CommitRun(ctx, upserts, removals, listing.Cursor); err != nil {
		return nil, err
	}
	if o.onCommit != nil {
		o.onCommit()
	}

	summary.Duration = time.Since(start)
	log.Info("run committed",
		"indexed", summary.Indexed,
		"partial", summary.Partial,
		"failed", summary.Failed,
		"removed", summary.Removed,
		"duration", summary.Duration)
	return summary, nil
}

// process runs the per-path pipeline to a terminal outcome. Transient
// faults record a retry entry against the listed revision so the path
// surfaces again on the next run even when the remote reports no change;
// content failures record a terminal failed entry for that revision.
func (o *Orchestrator) process(ctx context.Context, log *slog.Logger, file remote.File) outcome {
	now := time.Now().UTC()

	fetchCtx, cancel := context.WithTimeout(ctx, o.cfg.FetchTimeout)
	defer cancel()

	data, fetchedRev, err := o.client.Fetch(fetchCtx, file.Path)
	if err != nil {
		log.Warn("fetch failed", "path", file.Path, "error", err)
		return retryable(file, now)
	}

	// The remote moved under us between listing and fetch. Indexing the
	// fetched bytes under the listed revision would lie about what the
	// index holds, so leave the table untouched and let the next run pick
	// the path up again.
	if fetchedRev != "" && fetchedRev != file.Revision {
		log.Info("revision changed mid-run, deferring", "path", file.Path,
			"listed", file.Revision, "fetched", fetchedRev)
		return outcome{}
	}

	res := o.extractor.Extract(ctx, file.Path, data)
	rec := o.normalizer.Normalize(res, file.Revision, now)

	if err := o.idx.Upsert(ctx, rec); err != nil {
		log.Warn("index upsert failed", "path", file.Path, "error", err)
		return retryable(file, now)
	}

	status := tracker.Status(res.Status)
	if status == tracker.StatusFailed {
		log.Warn("extraction failed", "path", file.Path, "detail", res.ErrorDetail)
	}

	return outcome{
		status: status,
		record: &tracker.RevisionRecord{
			Path:             file.Path,
			LastSeenRevision: file.Revision,
			LastIndexedAt:    now,
			LastStatus:       status,
		},
	}
}

// retryable builds the outcome for a transient fault. The record carries
// the listed revision in the retry state, which the next diff turns back
// into an update whether the listing is full or incremental.
func retryable(file remote.File, now time.Time) outcome {
	return outcome{
		status: tracker.StatusRetry,
		record: &tracker.RevisionRecord{
			Path:             file.Path,
			LastSeenRevision: file.Revision,
			LastIndexedAt:    now,
			LastStatus:       tracker.StatusRetry,
		},
	}
}
