package remote

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MemoryClient is an in-memory Client used by tests and the ingest
// end-to-end suite. Revisions advance automatically on Put, and listings
// honor cursors the way a provider does: a valid cursor yields only
// entries changed since it, including deletion tombstones.
type MemoryClient struct {
	mu    sync.Mutex
	files map[string]memoryFile
	rev   int

	// FetchErr, when set, is returned by every Fetch call.
	FetchErr error

	// ListErr, when set, is returned by every List call.
	ListErr error
}

type memoryFile struct {
	data     []byte
	revision string
	modTime  time.Time
	seq      int
	deleted  bool
}

// Verify interface implementation at compile time.
var _ Client = (*MemoryClient)(nil)

// NewMemoryClient creates an empty in-memory remote store.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{files: make(map[string]memoryFile)}
}

// Put stores content under path, assigning a fresh revision.
func (m *MemoryClient) Put(path string, data []byte) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rev++
	rev := "rev-" + strconv.Itoa(m.rev)
	m.files[path] = memoryFile{
		data:     append([]byte(nil), data...),
		revision: rev,
		modTime:  time.Now().UTC(),
		seq:      m.rev,
	}
	return rev
}

// Delete removes a path from the store, leaving a tombstone for
// incremental listings.
func (m *MemoryClient) Delete(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.files[path]
	if !ok {
		return
	}
	m.rev++
	f.data = nil
	f.deleted = true
	f.seq = m.rev
	m.files[path] = f
}

// List enumerates stored files in path order. An empty or unparsable
// cursor yields a full listing; otherwise only entries changed since the
// cursor are returned, with deletions as tombstones.
func (m *MemoryClient) List(ctx context.Context, cursor string) (*Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ListErr != nil {
		return nil, m.ListErr
	}

	since, incremental := parseMemCursor(cursor)
	listing := &Listing{
		Cursor:      "mem-" + strconv.Itoa(m.rev),
		Incremental: incremental,
	}
	for path, f := range m.files {
		if incremental && f.seq <= since {
			continue
		}
		if f.deleted {
			if incremental {
				listing.Files = append(listing.Files, File{Path: path, Deleted: true})
			}
			continue
		}
		listing.Files = append(listing.Files, File{
			Path:         path,
			Revision:     f.revision,
			Size:         int64(len(f.data)),
			ModifiedTime: f.modTime,
			DeclaredKind: DeclaredKindOf(path),
		})
	}
	sort.Slice(listing.Files, func(i, j int) bool {
		return listing.Files[i].Path < listing.Files[j].Path
	})
	return listing, nil
}

func parseMemCursor(cursor string) (since int, ok bool) {
	rest, found := strings.CutPrefix(cursor, "mem-")
	if !found {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Fetch returns the stored content and its current revision.
func (m *MemoryClient) Fetch(ctx context.Context, path string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FetchErr != nil {
		return nil, "", m.FetchErr
	}

	f, ok := m.files[path]
	if !ok || f.deleted {
		return nil, "", fmt.Errorf("not found: %s", path)
	}
	return append([]byte(nil), f.data...), f.revision, nil
}
