package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var pageNrRe = regexp.MustCompile(`page_(\d+)`)

// pdfReader is the page-level surface of PDF parsing that extraction
// drives. pdfcpuReader is the production implementation.
type pdfReader interface {
	PageCount(srcPath string) (int, error)
	PageText(srcPath, workDir string) (map[int]string, error)
	PageImages(srcPath, workDir string, pageNr int) ([][]byte, error)
}

type pdfcpuReader struct {
	conf *model.Configuration
}

func newPDFCPUReader() *pdfcpuReader {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &pdfcpuReader{conf: conf}
}

func (r *pdfcpuReader) PageCount(srcPath string) (int, error) {
	return api.PageCountFile(srcPath)
}

// PageText dumps the decoded content streams and scans each for
// text-showing operators.
func (r *pdfcpuReader) PageText(srcPath, workDir string) (map[int]string, error) {
	contentDir := filepath.Join(workDir, "content")
	if err := os.Mkdir(contentDir, 0o700); err != nil {
		return nil, err
	}
	if err := api.ExtractContentFile(srcPath, contentDir, nil, r.conf); err != nil {
		return nil, err
	}
	return textByPage(contentDir)
}

// PageImages extracts the page's embedded images in name order.
func (r *pdfcpuReader) PageImages(srcPath, workDir string, pageNr int) ([][]byte, error) {
	imageDir := filepath.Join(workDir, fmt.Sprintf("images-%d", pageNr))
	if err := os.Mkdir(imageDir, 0o700); err != nil {
		return nil, err
	}
	pages := []string{strconv.Itoa(pageNr)}
	if err := api.ExtractImagesFile(srcPath, imageDir, pages, r.conf); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(imageDir)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	images := make([][]byte, 0, len(entries))
	for _, entry := range entries {
		image, err := os.ReadFile(filepath.Join(imageDir, entry.Name()))
		if err != nil {
			return nil, err
		}
		images = append(images, image)
	}
	return images, nil
}

// extractPDF pulls per-page text out of the PDF's content streams. Pages
// that yield no text fall back to OCR on the page's embedded images, which
// is how scanned PDFs get covered.
func (e *Extractor) extractPDF(ctx context.Context, data []byte) Result {
	tempDir, err := os.MkdirTemp("", "docscout-pdf-*")
	if err != nil {
		return Result{Status: StatusFailed, ErrorDetail: "pdf: " + err.Error()}
	}
	defer os.RemoveAll(tempDir)

	srcPath := filepath.Join(tempDir, "source.pdf")
	if err := os.WriteFile(srcPath, data, 0o600); err != nil {
		return Result{Status: StatusFailed, ErrorDetail: "pdf: " + err.Error()}
	}

	pageCount, err := e.pdf.PageCount(srcPath)
	if err != nil {
		return Result{Status: StatusFailed, ErrorDetail: "pdf: " + err.Error()}
	}
	if pageCount == 0 {
		return Result{Status: StatusFailed, ErrorDetail: "pdf: no pages"}
	}

	pageText, err := e.pdf.PageText(srcPath, tempDir)
	if err != nil {
		return Result{Status: StatusFailed, ErrorDetail: "pdf content: " + err.Error()}
	}

	var (
		pages      = make([]string, 0, pageCount)
		ocrPages   int
		confSum    float64
		failed     []int
		emptyPages []int
	)
	for nr := 1; nr <= pageCount; nr++ {
		if err := ctx.Err(); err != nil {
			return Result{Status: StatusFailed, ErrorDetail: "pdf: " + err.Error()}
		}

		if text := pageText[nr]; strings.TrimSpace(text) != "" {
			pages = append(pages, text)
			continue
		}

		// Empty page: likely scanned, or text encoded with CID fonts the
		// content scanner cannot decode without font CMaps. OCR the page's
		// embedded images.
		text, confidence, err := e.ocrPage(ctx, srcPath, tempDir, nr)
		switch {
		case err != nil:
			failed = append(failed, nr)
		case text == "":
			emptyPages = append(emptyPages, nr)
		default:
			pages = append(pages, text)
			ocrPages++
			confSum += confidence
		}
	}

	res := Result{Text: strings.Join(pages, "\n")}
	if ocrPages > 0 {
		res.Confidence = confSum / float64(ocrPages)
	}

	switch {
	case len(pages) == 0 && len(failed) > 0:
		res.Status = StatusFailed
		res.ErrorDetail = fmt.Sprintf("pdf: ocr failed on pages %v", failed)
	case len(failed) > 0:
		res.Status = StatusPartial
		res.ErrorDetail = fmt.Sprintf("pdf: ocr failed on pages %v", failed)
	case ocrPages > 0 && res.Confidence < e.cfg.OCRConfidenceThreshold:
		res.Status = StatusPartial
		res.ErrorDetail = "ocr confidence below threshold"
	default:
		res.Status = StatusOK
	}
	if res.Status == StatusOK && len(pages) == 0 && len(emptyPages) == pageCount {
		// Nothing extractable anywhere: distinguishable from a corrupt file,
		// so keep it ok with empty text rather than failing.
		res.ErrorDetail = "pdf: no extractable text"
	}
	return res
}

// ocrPage extracts the page's embedded images and OCRs each one. Returns
// the concatenated text and the mean confidence across images.
func (e *Extractor) ocrPage(ctx context.Context, srcPath, tempDir string, pageNr int) (string, float64, error) {
	if e.ocr == nil {
		return "", 0, fmt.Errorf("no OCR engine configured")
	}

	images, err := e.pdf.PageImages(srcPath, tempDir, pageNr)
	if err != nil {
		return "", 0, err
	}
	if len(images) == 0 {
		return "", 0, nil
	}

	var (
		texts   []string
		confSum float64
	)
	for _, image := range images {
		text, confidence, err := e.ocr.Recognize(ctx, image)
		if err != nil {
			return "", 0, err
		}
		if text != "" {
			texts = append(texts, text)
		}
		confSum += confidence
	}
	return strings.Join(texts, "\n"), confSum / float64(len(images)), nil
}

// textByPage reads the extracted content-stream files and scans each for
// text-showing operators. Files are keyed by the page number embedded in
// their names.
func textByPage(contentDir string) (map[int]string, error) {
	entries, err := os.ReadDir(contentDir)
	if err != nil {
		return nil, err
	}

	pages := make(map[int]string, len(entries))
	for _, entry := range entries {
		m := pageNrRe.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		nr, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		content, err := os.ReadFile(filepath.Join(contentDir, entry.Name()))
		if err != nil {
			return nil, err
		}
		pages[nr] = scanContentText(content)
	}
	return pages, nil
}
