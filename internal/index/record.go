package index

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Record is the indexed form of one remote file. There is exactly one
// current record per path; an upsert for the same path replaces it.
type Record struct {
	// DocumentID is the stable index key, derived from the path.
	DocumentID string `json:"-"`

	// Path is the remote path.
	Path string `json:"path"`

	// Revision is the remote revision the text was extracted from.
	Revision string `json:"revision"`

	// Text is the normalized document text.
	Text string `json:"text"`

	// Kind is the sniffed content kind.
	Kind string `json:"kind"`

	// Status is the extraction status: ok, partial, or failed.
	Status string `json:"status"`

	// IndexedAt is when the record was written.
	IndexedAt time.Time `json:"indexed_at"`
}

// DocumentID derives the stable document id for a remote path. The same
// path always maps to the same id, so re-indexing replaces instead of
// duplicating.
func DocumentID(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:])
}

// parseIndexedAt parses the stored datetime field, which bleve returns as
// an RFC3339 string.
func parseIndexedAt(v string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, v)
}
