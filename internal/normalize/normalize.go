// Package normalize turns extraction results into index-ready records.
package normalize

import (
	"strings"
	"time"
	"unicode"

	"github.com/docscout/docscout/internal/extract"
	"github.com/docscout/docscout/internal/index"
)

// Normalizer cleans extracted text and builds index records.
type Normalizer struct {
	// MaxTextRunes caps stored text at a head window.
	MaxTextRunes int
}

// New creates a Normalizer with the given head-window size. Zero means no
// cap.
func New(maxTextRunes int) *Normalizer {
	return &Normalizer{MaxTextRunes: maxTextRunes}
}

// Normalize builds the index record for an extraction result. Failed
// extractions still produce a record, with empty text and failed status: a
// file that was seen but could not be read is not the same as a file never
// seen.
func (n *Normalizer) Normalize(res extract.Result, revision string, now time.Time) index.Record {
	text := ""
	if res.Status != extract.StatusFailed {
		text = n.Clean(res.Text)
	}
	return index.Record{
		DocumentID: index.DocumentID(res.Path),
		Path:       res.Path,
		Revision:   revision,
		Text:       text,
		Kind:       string(res.Kind),
		Status:     string(res.Status),
		IndexedAt:  now.UTC(),
	}
}

// Clean collapses runs of spaces and tabs, strips control characters other
// than newline and tab, drops blank-only lines down to single newlines,
// and cuts the result at the head window.
func (n *Normalizer) Clean(text string) string {
	var (
		sb        strings.Builder
		lastSpace bool
		lastNL    bool
	)
	sb.Grow(len(text))

	for _, r := range text {
		switch {
		case r == '\n' || r == '\r':
			if !lastNL && sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			lastNL = true
			lastSpace = false
		case r == '\t' || unicode.IsSpace(r):
			if !lastSpace && !lastNL && sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			lastSpace = true
		case unicode.IsControl(r):
			// drop
		default:
			sb.WriteRune(r)
			lastSpace = false
			lastNL = false
		}
	}

	out := strings.TrimRight(sb.String(), " \n")
	if n.MaxTextRunes > 0 {
		runes := []rune(out)
		if len(runes) > n.MaxTextRunes {
			out = strings.TrimRight(string(runes[:n.MaxTextRunes]), " \n")
		}
	}
	return out
}
