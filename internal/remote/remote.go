// Package remote provides access to the cloud-storage account being indexed.
// It exposes cursor-based listing and revision-stamped fetch; the rest of the
// pipeline depends only on the interfaces here, never on a provider SDK.
package remote

import (
	"context"
	"path"
	"strings"
	"time"
)

// Kind is the declared content kind of a remote file, derived from its
// extension. Extraction re-checks the actual bytes; this value is only a hint
// and a query filter dimension.
type Kind string

const (
	KindImage   Kind = "image"
	KindPDF     Kind = "pdf"
	KindText    Kind = "text"
	KindCSV     Kind = "csv"
	KindUnknown Kind = "unknown"
)

// File is an immutable snapshot of one remote file from a single listing call.
type File struct {
	// Path uniquely identifies the file within the account (lowercased,
	// leading slash, provider-normalized).
	Path string

	// Revision is the provider's opaque version token. Equal revisions
	// imply unchanged content.
	Revision string

	// Size in bytes as reported by the provider.
	Size int64

	// ModifiedTime is the provider's server-side modification time.
	ModifiedTime time.Time

	// DeclaredKind is the kind suggested by the file extension.
	DeclaredKind Kind

	// Deleted marks a tombstone entry in an incremental listing.
	Deleted bool
}

// Listing is the result of one List call.
type Listing struct {
	// Files are the listed entries. For a full listing this is every file in
	// the account; for an incremental listing it is only entries changed
	// since the cursor, including Deleted tombstones.
	Files []File

	// Cursor is the opaque resume marker for the next incremental listing.
	Cursor string

	// Incremental is true when Files holds only changes since a prior cursor.
	Incremental bool
}

// Client lists and fetches remote files.
type Client interface {
	// List enumerates files. An empty cursor requests a full listing; a
	// non-empty cursor requests changes since that cursor. Providers that
	// cannot resume from the given cursor fall back to a full listing.
	List(ctx context.Context, cursor string) (*Listing, error)

	// Fetch downloads a file's content and reports the revision actually
	// fetched, which may be newer than the revision seen at listing time.
	Fetch(ctx context.Context, filePath string) (data []byte, revision string, err error)
}

// DeclaredKindOf maps a file extension to its declared kind.
func DeclaredKindOf(filePath string) Kind {
	switch strings.ToLower(path.Ext(filePath)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".tif", ".tiff", ".bmp", ".webp":
		return KindImage
	case ".pdf":
		return KindPDF
	case ".csv":
		return KindCSV
	case ".txt", ".md", ".log", ".text":
		return KindText
	default:
		return KindUnknown
	}
}
