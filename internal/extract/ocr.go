package extract

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// OCR recognizes text in an image. Confidence is the mean per-word
// confidence in [0,1].
type OCR interface {
	Recognize(ctx context.Context, image []byte) (text string, confidence float64, err error)
}

// TesseractOCR runs the external tesseract binary. TSV output mode gives
// per-word confidence, which plain text output does not.
type TesseractOCR struct {
	// Command is the tesseract binary, default "tesseract".
	Command string

	// Language is the tesseract language model, default "eng".
	Language string
}

// NewTesseractOCR creates a tesseract runner with the given command and
// language, falling back to defaults for empty values.
func NewTesseractOCR(command, language string) *TesseractOCR {
	if command == "" {
		command = "tesseract"
	}
	if language == "" {
		language = "eng"
	}
	return &TesseractOCR{Command: command, Language: language}
}

// Recognize feeds the image to tesseract on stdin and parses the TSV
// result. The image bytes never touch disk.
func (t *TesseractOCR) Recognize(ctx context.Context, image []byte) (string, float64, error) {
	cmd := exec.CommandContext(ctx, t.Command, "-", "stdout", "-l", t.Language, "tsv")
	cmd.Stdin = bytes.NewReader(image)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", 0, fmt.Errorf("tesseract: %s", msg)
	}
	text, confidence := parseTesseractTSV(stdout.String())
	return text, confidence, nil
}

// parseTesseractTSV extracts words and mean confidence from tesseract's TSV
// output. Column 11 is the word confidence (0-100, -1 for non-word rows),
// column 12 the word itself. Level 4 rows mark line boundaries.
func parseTesseractTSV(tsv string) (string, float64) {
	var (
		words    []string
		confSum  float64
		confRows int
	)

	lines := strings.Split(tsv, "\n")
	for i, line := range lines {
		if i == 0 {
			continue // header
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 12 {
			continue
		}
		conf, err := strconv.ParseFloat(fields[10], 64)
		if err != nil || conf < 0 {
			// Level rows for pages, blocks, and lines carry no word.
			if fields[0] == "4" && len(words) > 0 {
				words = append(words, "\n")
			}
			continue
		}
		word := strings.TrimSpace(fields[11])
		if word == "" {
			continue
		}
		words = append(words, word)
		confSum += conf
		confRows++
	}

	if confRows == 0 {
		return "", 0
	}
	text := strings.Join(words, " ")
	text = strings.ReplaceAll(text, " \n ", "\n")
	return strings.TrimSpace(text), confSum / float64(confRows) / 100.0
}
