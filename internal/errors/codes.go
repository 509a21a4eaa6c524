// Package errors provides structured error handling for docscout.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (file, disk)
//   - 3XX: Remote storage / network errors
//   - 4XX: Content and validation errors
//   - 5XX: Index engine errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and disk I/O errors.
	CategoryIO Category = "IO"
	// CategoryRemote indicates remote storage and network errors.
	CategoryRemote Category = "REMOTE"
	// CategoryContent indicates content extraction and validation errors.
	CategoryContent Category = "CONTENT"
	// CategoryIndex indicates search index engine errors.
	CategoryIndex Category = "INDEX"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeStateStore = "ERR_201_STATE_STORE"
	ErrCodeRunLocked  = "ERR_202_RUN_LOCKED"

	// Remote storage errors (300-399)
	ErrCodeTransientIO   = "ERR_301_TRANSIENT_IO"
	ErrCodeListingFailed = "ERR_302_LISTING_FAILED"
	ErrCodeFetchFailed   = "ERR_303_FETCH_FAILED"

	// Content errors (400-499)
	ErrCodeUnsupportedContent = "ERR_401_UNSUPPORTED_CONTENT"
	ErrCodeCorruptContent     = "ERR_402_CORRUPT_CONTENT"
	ErrCodeQueryEmpty         = "ERR_403_QUERY_EMPTY"
	ErrCodeInvalidInput       = "ERR_404_INVALID_INPUT"

	// Index errors (500-599)
	ErrCodeIndexWrite   = "ERR_501_INDEX_WRITE"
	ErrCodeIndexCorrupt = "ERR_502_INDEX_CORRUPT"
	ErrCodeSearchFailed = "ERR_503_SEARCH_FAILED"
	ErrCodeInternal     = "ERR_504_INTERNAL"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryRemote
	case '4':
		return CategoryContent
	case '5':
		return CategoryIndex
	default:
		return CategoryInternal
	}
}

// isRetryableCode reports whether an error code represents a condition
// worth retrying on the next scheduled run. Unsupported and corrupt
// content are terminal for a given revision and are never retried.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeTransientIO, ErrCodeListingFailed, ErrCodeFetchFailed, ErrCodeIndexWrite:
		return true
	}
	return false
}
