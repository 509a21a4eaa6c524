package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scouterrors "github.com/docscout/docscout/internal/errors"
	"github.com/docscout/docscout/internal/extract"
	"github.com/docscout/docscout/internal/index"
	"github.com/docscout/docscout/internal/normalize"
	"github.com/docscout/docscout/internal/query"
	"github.com/docscout/docscout/internal/remote"
	"github.com/docscout/docscout/internal/tracker"
)

type harness struct {
	client *remote.MemoryClient
	store  *tracker.MemoryStore
	idx    *index.Index
	orch   *Orchestrator
	svc    *query.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	client := remote.NewMemoryClient()
	store := tracker.NewMemoryStore()
	idx, err := index.NewMemOnly()
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	svc, err := query.New(idx, query.Config{CacheSize: 16})
	require.NoError(t, err)

	extractor := extract.New(extract.Config{
		MaxFileBytes:           600000,
		OCRConfidenceThreshold: 0.60,
	}, nil)

	orch := New(client, store, extractor, normalize.New(200000), idx,
		Config{Workers: 4}, svc.Invalidate)

	return &harness{client: client, store: store, idx: idx, orch: orch, svc: svc}
}

func TestRun_IngestSearchDeleteCycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.client.Put("/invoices/april.txt", []byte("invoice 4821 was paid in full"))
	h.client.Put("/notes/groceries.txt", []byte("buy milk and bread"))

	summary, err := h.orch.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Added)
	assert.Equal(t, 2, summary.Indexed)
	assert.Zero(t, summary.Failed)

	matches, err := h.svc.Search(ctx, "invoice 4821", query.Options{})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "/invoices/april.txt", matches[0].Path)

	// Deleting remotely removes the document from search results.
	h.client.Delete("/invoices/april.txt")
	summary, err = h.orch.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Removed)

	matches, err = h.svc.Search(ctx, "invoice 4821", query.Options{})
	require.NoError(t, err)
	assert.Empty(t, matches)

	_, err = h.store.Get(ctx, "/invoices/april.txt")
	assert.ErrorIs(t, err, tracker.ErrNotFound)
}

func TestRun_UnchangedFilesSkipped(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.client.Put("/stable.txt", []byte("nothing changes here"))

	summary, err := h.orch.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Added)

	// Second run sees the same revision and does nothing.
	summary, err = h.orch.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Added)
	assert.Zero(t, summary.Updated)
	assert.Zero(t, summary.Indexed)
}

func TestRun_UpdatedContentReindexed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.client.Put("/doc.txt", []byte("first draft"))
	_, err := h.orch.Run(ctx)
	require.NoError(t, err)

	h.client.Put("/doc.txt", []byte("final version with invoice 4821"))
	summary, err := h.orch.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)

	matches, err := h.svc.Search(ctx, "final version", query.Options{})
	require.NoError(t, err)
	require.Len(t, matches, 1)

	count, err := h.idx.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestRun_ListingFailureAbortsWithZeroMutation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.client.Put("/doc.txt", []byte("content"))
	_, err := h.orch.Run(ctx)
	require.NoError(t, err)

	h.client.Put("/new.txt", []byte("new content"))
	h.client.ListErr = assert.AnError

	_, err = h.orch.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, scouterrors.ErrCodeListingFailed, scouterrors.CodeOf(err))

	// The revision table is untouched: only the first file is known.
	all, err := h.store.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRun_FetchFailureRetriedNextRun(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	rev := h.client.Put("/flaky.txt", []byte("eventually reachable"))
	h.client.FetchErr = assert.AnError

	summary, err := h.orch.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)

	rec, err := h.store.Get(ctx, "/flaky.txt")
	require.NoError(t, err)
	assert.Equal(t, tracker.StatusRetry, rec.LastStatus)
	assert.Equal(t, rev, rec.LastSeenRevision)

	// The next run re-attempts the path despite the committed cursor.
	h.client.FetchErr = nil
	summary, err = h.orch.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 1, summary.Indexed)

	matches, err := h.svc.Search(ctx, "eventually reachable", query.Options{})
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestRun_IncrementalListingRetriesFailedFetch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	// Establish a committed cursor so later runs list incrementally.
	h.client.Put("/base.txt", []byte("baseline document"))
	_, err := h.orch.Run(ctx)
	require.NoError(t, err)

	h.client.Put("/flaky.txt", []byte("eventually reachable"))
	h.client.FetchErr = assert.AnError

	summary, err := h.orch.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)

	// The hiccup clears. The incremental listing no longer mentions the
	// path, so only the retry record can bring it back.
	h.client.FetchErr = nil
	summary, err = h.orch.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 1, summary.Indexed)

	matches, err := h.svc.Search(ctx, "eventually reachable", query.Options{})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "/flaky.txt", matches[0].Path)
}

// flakyIndex fails deletes on demand while delegating everything else.
type flakyIndex struct {
	*index.Index
	deleteErr error
}

func (f *flakyIndex) Delete(ctx context.Context, path string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.Index.Delete(ctx, path)
}

func TestRun_RemovalRetriedAfterDeleteFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	flaky := &flakyIndex{Index: h.idx}
	h.orch = New(h.client, h.store, extract.New(extract.Config{MaxFileBytes: 600000}, nil),
		normalize.New(200000), flaky, Config{Workers: 2}, h.svc.Invalidate)

	h.client.Put("/doomed.txt", []byte("short lived document"))
	_, err := h.orch.Run(ctx)
	require.NoError(t, err)

	// The tombstone is consumed while the index delete fails.
	h.client.Delete("/doomed.txt")
	flaky.deleteErr = assert.AnError

	summary, err := h.orch.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Removed)

	rec, err := h.store.Get(ctx, "/doomed.txt")
	require.NoError(t, err)
	assert.Equal(t, tracker.StatusRemoving, rec.LastStatus)

	// The next run's listing is empty, yet the removal completes.
	flaky.deleteErr = nil
	summary, err = h.orch.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Removed)

	_, err = h.store.Get(ctx, "/doomed.txt")
	assert.ErrorIs(t, err, tracker.ErrNotFound)

	matches, err := h.svc.Search(ctx, "short lived document", query.Options{})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestRun_FailedNeverOverwritesSuccessfulRecord(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.client.Put("/doc.png", []byte("good searchable text"))
	// The .png path sniffs as plain text here, so the first run indexes ok.
	_, err := h.orch.Run(ctx)
	require.NoError(t, err)

	// The update is unreadable binary junk: extraction fails.
	h.client.Put("/doc.png", []byte{0x00, 0x01, 0xFF, 0xFE, 0x7F, 0x00})
	summary, err := h.orch.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)

	// The earlier text still answers queries.
	matches, err := h.svc.Search(ctx, "good searchable text", query.Options{})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "ok", matches[0].Status)
}

func TestRun_OversizedCSVPartial(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	extractor := extract.New(extract.Config{MaxFileBytes: 64}, nil)
	h.orch = New(h.client, h.store, extractor, normalize.New(200000), h.idx,
		Config{Workers: 2}, h.svc.Invalidate)

	rows := "item,price\nwidget,9\n" + strings.Repeat("filler,1\n", 50)
	h.client.Put("/big.csv", []byte(rows))

	summary, err := h.orch.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Indexed)
	assert.Equal(t, 1, summary.Partial)

	rec, err := h.idx.Get(ctx, "/big.csv")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "partial", rec.Status)
	assert.NotEmpty(t, rec.Text)
	assert.Contains(t, rec.Text, "widget 9")
}

func TestRun_ConcurrentRunBlockedByLock(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	dir := t.TempDir()

	lock := NewRunLock(dir)
	acquired, err := lock.TryLock()
	require.NoError(t, err)
	require.True(t, acquired)
	defer lock.Unlock()

	h.orch.cfg.LockDir = dir
	_, err = h.orch.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, scouterrors.ErrCodeRunLocked, scouterrors.CodeOf(err))
}

func TestRun_CancelledContext(t *testing.T) {
	h := newHarness(t)
	h.client.Put("/doc.txt", []byte("content"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.orch.Run(ctx)
	require.Error(t, err)
}
