// Package index wraps the bleve search index that stores one record per
// remote path.
package index

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	scouterrors "github.com/docscout/docscout/internal/errors"
)

// Field names in the document mapping. The query package builds its
// requests against these.
const (
	FieldText      = "text"
	FieldPath      = "path"
	FieldKind      = "kind"
	FieldStatus    = "status"
	FieldRevision  = "revision"
	FieldIndexedAt = "indexed_at"
)

// Index is the document index. A single writer (the ingest run) and any
// number of readers share it.
type Index struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// validateIntegrity checks a bleve index directory before opening it. A
// missing directory is fine; a present one with damaged metadata is not.
func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

// isCorruptionError checks if an error from bleve.Open indicates
// corruption rather than a transient failure.
func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "unexpected end of JSON") ||
		strings.Contains(errStr, "error parsing mapping JSON") ||
		strings.Contains(errStr, "failed to load segment") ||
		strings.Contains(errStr, "error opening bolt") ||
		strings.Contains(errStr, "no such file or directory") ||
		err == bleve.ErrorIndexMetaCorrupt
}

// Open opens or creates the index at path. A corrupted index is cleared
// and recreated; the revision store still holds what was indexed, so a
// fresh run rebuilds it. If path is empty an in-memory index is created.
func Open(path string) (*Index, error) {
	indexMapping := buildMapping()

	var (
		idx bleve.Index
		err error
	)
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, scouterrors.Wrap(scouterrors.ErrCodeIndexWrite, mkErr)
		}

		if validErr := validateIntegrity(path); validErr != nil {
			slog.Warn("index corrupted, clearing",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, scouterrors.Wrap(scouterrors.ErrCodeIndexCorrupt,
					fmt.Errorf("cannot clear corrupted index at %s: %w", path, removeErr))
			}
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		} else if err != nil && isCorruptionError(err) {
			slog.Warn("index open failed, recreating",
				slog.String("path", path),
				slog.String("error", err.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, scouterrors.Wrap(scouterrors.ErrCodeIndexCorrupt,
					fmt.Errorf("cannot clear corrupted index: %w", removeErr))
			}
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, scouterrors.Wrap(scouterrors.ErrCodeIndexWrite, err)
	}

	return &Index{index: idx, path: path}, nil
}

// NewMemOnly creates an in-memory index for tests.
func NewMemOnly() (*Index, error) {
	return Open("")
}

// buildMapping defines the document mapping: analyzed text stored for
// highlighting, keyword fields for exact filtering, a datetime for
// recency ordering.
func buildMapping() *mapping.IndexMappingImpl {
	textField := bleve.NewTextFieldMapping()
	textField.Store = true
	textField.IncludeTermVectors = true

	keywordField := bleve.NewTextFieldMapping()
	keywordField.Analyzer = keyword.Name
	keywordField.Store = true

	dateField := bleve.NewDateTimeFieldMapping()
	dateField.Store = true

	doc := bleve.NewDocumentMapping()
	doc.Dynamic = false
	doc.AddFieldMappingsAt(FieldText, textField)
	doc.AddFieldMappingsAt(FieldPath, keywordField)
	doc.AddFieldMappingsAt(FieldKind, keywordField)
	doc.AddFieldMappingsAt(FieldStatus, keywordField)
	doc.AddFieldMappingsAt(FieldRevision, keywordField)
	doc.AddFieldMappingsAt(FieldIndexedAt, dateField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = doc
	indexMapping.DefaultAnalyzer = standard.Name

	return indexMapping
}

// Upsert writes the record, replacing any previous record for the same
// path. A failed record never overwrites a previously successful one;
// that earlier text is still the best answer for the path.
func (i *Index) Upsert(ctx context.Context, rec Record) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return scouterrors.New(scouterrors.ErrCodeIndexWrite, "index is closed", nil)
	}
	if rec.DocumentID == "" {
		rec.DocumentID = DocumentID(rec.Path)
	}

	if rec.Status == "failed" {
		existing, err := i.getLocked(ctx, rec.DocumentID)
		if err != nil {
			return err
		}
		if existing != nil && existing.Status != "failed" {
			return nil
		}
	}

	if err := i.index.Index(rec.DocumentID, rec); err != nil {
		return scouterrors.Wrap(scouterrors.ErrCodeIndexWrite, err)
	}
	return nil
}

// Delete removes the record for a path. Deleting an absent path is not an
// error.
func (i *Index) Delete(ctx context.Context, path string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return scouterrors.New(scouterrors.ErrCodeIndexWrite, "index is closed", nil)
	}
	if err := i.index.Delete(DocumentID(path)); err != nil {
		return scouterrors.Wrap(scouterrors.ErrCodeIndexWrite, err)
	}
	return nil
}

// Get returns the stored record for a path, or nil if the path is not
// indexed.
func (i *Index) Get(ctx context.Context, path string) (*Record, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if i.closed {
		return nil, scouterrors.New(scouterrors.ErrCodeSearchFailed, "index is closed", nil)
	}
	return i.getLocked(ctx, DocumentID(path))
}

func (i *Index) getLocked(ctx context.Context, docID string) (*Record, error) {
	req := bleve.NewSearchRequest(bleve.NewDocIDQuery([]string{docID}))
	req.Fields = []string{FieldPath, FieldRevision, FieldText, FieldKind, FieldStatus, FieldIndexedAt}

	result, err := i.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, scouterrors.Wrap(scouterrors.ErrCodeSearchFailed, err)
	}
	if len(result.Hits) == 0 {
		return nil, nil
	}
	rec := recordFromFields(result.Hits[0].ID, result.Hits[0].Fields)
	return &rec, nil
}

// Search executes a prepared request against the index. Request building
// lives in the query package; this layer only guards the handle.
func (i *Index) Search(ctx context.Context, req *bleve.SearchRequest) (*bleve.SearchResult, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if i.closed {
		return nil, scouterrors.New(scouterrors.ErrCodeSearchFailed, "index is closed", nil)
	}
	result, err := i.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, scouterrors.Wrap(scouterrors.ErrCodeSearchFailed, err)
	}
	return result, nil
}

// DocCount returns the number of indexed records.
func (i *Index) DocCount() (uint64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if i.closed {
		return 0, scouterrors.New(scouterrors.ErrCodeSearchFailed, "index is closed", nil)
	}
	return i.index.DocCount()
}

// Close closes the index. Further calls fail.
func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return nil
	}
	i.closed = true
	return i.index.Close()
}

// recordFromFields rebuilds a Record from stored search-hit fields.
func recordFromFields(docID string, fields map[string]interface{}) Record {
	rec := Record{DocumentID: docID}
	if v, ok := fields[FieldPath].(string); ok {
		rec.Path = v
	}
	if v, ok := fields[FieldRevision].(string); ok {
		rec.Revision = v
	}
	if v, ok := fields[FieldText].(string); ok {
		rec.Text = v
	}
	if v, ok := fields[FieldKind].(string); ok {
		rec.Kind = v
	}
	if v, ok := fields[FieldStatus].(string); ok {
		rec.Status = v
	}
	if v, ok := fields[FieldIndexedAt].(string); ok {
		if ts, err := parseIndexedAt(v); err == nil {
			rec.IndexedAt = ts
		}
	}
	return rec
}
