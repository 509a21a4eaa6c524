// Package extract turns raw file bytes into plain text. Each content kind
// has its own strategy: OCR for images, per-page extraction with OCR
// fallback for PDFs, charset-aware decoding for text, row-wise reading for
// CSV. Extraction never returns an error to the caller; every outcome is a
// Result with a status the orchestrator can act on.
package extract

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/docscout/docscout/internal/remote"
)

// Status describes how an extraction attempt ended.
type Status string

const (
	// StatusOK means the full text was extracted.
	StatusOK Status = "ok"

	// StatusPartial means text was extracted but is incomplete or low
	// confidence (truncated input, weak OCR, malformed CSV rows).
	StatusPartial Status = "partial"

	// StatusFailed means no usable text could be produced.
	StatusFailed Status = "failed"
)

// Result is the outcome of extracting one file.
type Result struct {
	// Path is the remote path the bytes came from.
	Path string

	// Text is the extracted plain text. Empty for failed extractions.
	Text string

	// Kind is the sniffed content kind.
	Kind remote.Kind

	// Status is ok, partial, or failed.
	Status Status

	// Confidence is the OCR confidence in [0,1] when OCR ran, 1.0 otherwise.
	Confidence float64

	// ErrorDetail explains a partial or failed outcome.
	ErrorDetail string
}

// Config holds extraction limits and OCR settings.
type Config struct {
	// MaxFileBytes caps the input size. Oversized text and CSV inputs are
	// truncated; oversized PDF and image inputs are indexed without
	// content, since clipping a binary format corrupts it. Either way the
	// result is partial.
	MaxFileBytes int64

	// OCRConfidenceThreshold below which an image result is partial.
	OCRConfidenceThreshold float64
}

// Extractor sniffs content kinds and dispatches to the per-kind strategies.
type Extractor struct {
	cfg Config
	ocr OCR
	pdf pdfReader
	log *slog.Logger
}

// New creates an Extractor. The OCR collaborator may be nil, in which case
// images and scanned PDF pages extract as failed.
func New(cfg Config, ocr OCR) *Extractor {
	return &Extractor{
		cfg: cfg,
		ocr: ocr,
		pdf: newPDFCPUReader(),
		log: slog.Default().With("component", "extract"),
	}
}

// Sniff determines the content kind from the leading bytes. The file
// extension only breaks the tie between plain text and CSV, which share a
// byte-level signature.
func Sniff(path string, data []byte) remote.Kind {
	if len(data) == 0 {
		return remote.KindUnknown
	}
	if bytes.HasPrefix(data, []byte("%PDF-")) {
		return remote.KindPDF
	}

	contentType := http.DetectContentType(data)
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return remote.KindImage
	case contentType == "application/pdf":
		return remote.KindPDF
	case strings.HasPrefix(contentType, "text/"):
		if remote.DeclaredKindOf(path) == remote.KindCSV {
			return remote.KindCSV
		}
		return remote.KindText
	}
	return remote.KindUnknown
}

// Extract produces a Result for the given bytes. It never panics and never
// returns an error; corrupt or unsupported input yields a failed Result.
func (e *Extractor) Extract(ctx context.Context, path string, data []byte) Result {
	kind := Sniff(path, data)

	truncated := false
	if e.cfg.MaxFileBytes > 0 && int64(len(data)) > e.cfg.MaxFileBytes {
		if kind == remote.KindPDF || kind == remote.KindImage {
			e.log.Warn("input exceeds size limit, content skipped",
				"path", path, "kind", kind, "limit", e.cfg.MaxFileBytes)
			return Result{
				Path:        path,
				Kind:        kind,
				Status:      StatusPartial,
				Confidence:  1.0,
				ErrorDetail: "input exceeds size limit, content not extracted",
			}
		}
		data = clipAtRuneBoundary(data, e.cfg.MaxFileBytes)
		truncated = true
		e.log.Warn("input truncated", "path", path, "limit", e.cfg.MaxFileBytes)
	}

	var res Result
	switch kind {
	case remote.KindImage:
		res = e.extractImage(ctx, data)
	case remote.KindPDF:
		res = e.extractPDF(ctx, data)
	case remote.KindText:
		res = e.extractText(data)
	case remote.KindCSV:
		res = e.extractCSV(data)
	default:
		res = Result{
			Status:      StatusFailed,
			ErrorDetail: "unsupported content type",
		}
	}

	res.Path = path
	res.Kind = kind
	if truncated && res.Status == StatusOK {
		res.Status = StatusPartial
		res.ErrorDetail = "input truncated at size limit"
	}
	if res.Status != StatusFailed && res.Confidence == 0 {
		res.Confidence = 1.0
	}
	return res
}

// clipAtRuneBoundary cuts data at limit without splitting a UTF-8 sequence.
func clipAtRuneBoundary(data []byte, limit int64) []byte {
	clipped := data[:limit]
	for i := 0; i < utf8.UTFMax-1 && len(clipped) > 0; i++ {
		if r, size := utf8.DecodeLastRune(clipped); r != utf8.RuneError || size != 1 {
			break
		}
		clipped = clipped[:len(clipped)-1]
	}
	return clipped
}

func (e *Extractor) extractImage(ctx context.Context, data []byte) Result {
	if e.ocr == nil {
		return Result{Status: StatusFailed, ErrorDetail: "no OCR engine configured"}
	}

	text, confidence, err := e.ocr.Recognize(ctx, data)
	if err != nil {
		return Result{Status: StatusFailed, ErrorDetail: "ocr: " + err.Error()}
	}

	res := Result{Text: text, Status: StatusOK, Confidence: confidence}
	if confidence < e.cfg.OCRConfidenceThreshold {
		res.Status = StatusPartial
		res.ErrorDetail = "ocr confidence below threshold"
	}
	return res
}
