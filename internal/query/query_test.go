package query

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scouterrors "github.com/docscout/docscout/internal/errors"
	"github.com/docscout/docscout/internal/index"
)

func newTestService(t *testing.T, records ...index.Record) *Service {
	t.Helper()
	idx, err := index.NewMemOnly()
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	ctx := context.Background()
	for _, rec := range records {
		require.NoError(t, idx.Upsert(ctx, rec))
	}

	svc, err := New(idx, Config{DefaultLimit: 10, MaxLimit: 100, CacheSize: 16})
	require.NoError(t, err)
	return svc
}

func doc(path, text, kind, status string, indexedAt time.Time) index.Record {
	return index.Record{
		DocumentID: index.DocumentID(path),
		Path:       path,
		Text:       text,
		Kind:       kind,
		Status:     status,
		Revision:   "r1",
		IndexedAt:  indexedAt,
	}
}

func TestSearch_EmptyQueryRejected(t *testing.T) {
	svc := newTestService(t)

	for _, q := range []string{"", "   ", "\t\n"} {
		_, err := svc.Search(context.Background(), q, Options{})
		require.Error(t, err)
		assert.Equal(t, scouterrors.ErrCodeQueryEmpty, scouterrors.CodeOf(err))
	}
}

func TestSearch_FindsMatches(t *testing.T) {
	now := time.Now().UTC()
	svc := newTestService(t,
		doc("/invoices/april.txt", "invoice 4821 was paid in april", "text", "ok", now),
		doc("/notes/todo.txt", "buy milk and bread", "text", "ok", now),
	)

	matches, err := svc.Search(context.Background(), "invoice 4821", Options{})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "/invoices/april.txt", matches[0].Path)
	assert.Equal(t, "text", matches[0].Kind)
	assert.Greater(t, matches[0].Score, 0.0)
}

func TestSearch_PhraseRanksAboveScatteredTokens(t *testing.T) {
	now := time.Now().UTC()
	svc := newTestService(t,
		doc("/scattered.txt", "the invoice arrived and later 4821 other words", "text", "ok", now),
		doc("/exact.txt", "payment for invoice 4821 received", "text", "ok", now),
	)

	matches, err := svc.Search(context.Background(), "invoice 4821", Options{})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "/exact.txt", matches[0].Path)
	assert.Greater(t, matches[0].Score, matches[1].Score)
}

func TestSearch_Snippets(t *testing.T) {
	now := time.Now().UTC()
	svc := newTestService(t,
		doc("/report.txt", "quarterly report mentions invoice 4821 near the end", "text", "ok", now),
	)

	matches, err := svc.Search(context.Background(), "invoice", Options{})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.NotEmpty(t, matches[0].Snippets)
	assert.LessOrEqual(t, len(matches[0].Snippets), 3)
	assert.Contains(t, matches[0].Snippets[0], "<mark>")
}

func TestSearch_KindFilter(t *testing.T) {
	now := time.Now().UTC()
	svc := newTestService(t,
		doc("/a.txt", "shared keyword contract", "text", "ok", now),
		doc("/b.pdf", "shared keyword contract", "pdf", "ok", now),
	)

	matches, err := svc.Search(context.Background(), "contract", Options{Kind: "pdf"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "/b.pdf", matches[0].Path)
}

func TestSearch_PathPrefixFilter(t *testing.T) {
	now := time.Now().UTC()
	svc := newTestService(t,
		doc("/invoices/a.txt", "contract terms", "text", "ok", now),
		doc("/drafts/b.txt", "contract terms", "text", "ok", now),
	)

	matches, err := svc.Search(context.Background(), "contract", Options{PathPrefix: "/invoices/"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "/invoices/a.txt", matches[0].Path)
}

func TestSearch_ExcludeFailed(t *testing.T) {
	now := time.Now().UTC()
	svc := newTestService(t,
		doc("/good.txt", "contract terms apply", "text", "ok", now),
		doc("/bad.txt", "", "text", "failed", now),
	)

	matches, err := svc.Search(context.Background(), "contract", Options{ExcludeFailed: true})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "/good.txt", matches[0].Path)
}

func TestSearch_LimitClamped(t *testing.T) {
	now := time.Now().UTC()
	var records []index.Record
	for _, p := range []string{"/1.txt", "/2.txt", "/3.txt", "/4.txt"} {
		records = append(records, doc(p, "common term here", "text", "ok", now))
	}
	svc := newTestService(t, records...)

	matches, err := svc.Search(context.Background(), "common", Options{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	// Limits above the maximum are clamped, not rejected.
	matches, err = svc.Search(context.Background(), "common", Options{Limit: 10000})
	require.NoError(t, err)
	assert.Len(t, matches, 4)
}

func TestSearch_CacheInvalidation(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	idx, err := index.NewMemOnly()
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	require.NoError(t, idx.Upsert(ctx, doc("/a.txt", "cached contract", "text", "ok", now)))

	svc, err := New(idx, Config{CacheSize: 16})
	require.NoError(t, err)

	matches, err := svc.Search(ctx, "contract", Options{})
	require.NoError(t, err)
	require.Len(t, matches, 1)

	// A new document is invisible until the cache generation moves.
	require.NoError(t, idx.Upsert(ctx, doc("/b.txt", "another contract", "text", "ok", now)))
	matches, err = svc.Search(ctx, "contract", Options{})
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	svc.Invalidate()
	matches, err = svc.Search(ctx, "contract", Options{})
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestHealth(t *testing.T) {
	svc := newTestService(t)
	assert.NoError(t, svc.Health(context.Background()))
}

func TestSearch_RecencyBreaksTies(t *testing.T) {
	old := time.Now().UTC().Add(-24 * time.Hour)
	recent := time.Now().UTC()
	text := strings.Repeat("identical contract text ", 3)
	svc := newTestService(t,
		doc("/old.txt", text, "text", "ok", old),
		doc("/recent.txt", text, "text", "ok", recent),
	)

	matches, err := svc.Search(context.Background(), "contract", Options{})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "/recent.txt", matches[0].Path)
}
