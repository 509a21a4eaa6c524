package tracker

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory RevisionStore for tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*RevisionRecord
	cursor  string

	// CommitErr, when set, is returned by CommitRun.
	CommitErr error
}

// Verify interface implementation at compile time.
var _ RevisionStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory revision store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*RevisionRecord)}
}

// Get returns the record for a path, or ErrNotFound.
func (m *MemoryStore) Get(ctx context.Context, path string) (*RevisionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[path]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// All returns every record keyed by path.
func (m *MemoryStore) All(ctx context.Context) (map[string]*RevisionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]*RevisionRecord, len(m.records))
	for path, rec := range m.records {
		cp := *rec
		out[path] = &cp
	}
	return out, nil
}

// Cursor returns the last committed listing cursor.
func (m *MemoryStore) Cursor(ctx context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cursor, nil
}

// CommitRun applies upserts, removals, and the cursor atomically.
func (m *MemoryStore) CommitRun(ctx context.Context, upserts []*RevisionRecord, removals []string, cursor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CommitErr != nil {
		return m.CommitErr
	}

	for _, rec := range upserts {
		cp := *rec
		m.records[rec.Path] = &cp
	}
	for _, path := range removals {
		delete(m.records, path)
	}
	if cursor != "" {
		m.cursor = cursor
	}
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
