package extract

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"
)

// extractCSV reads rows in order and joins cells with single spaces, one
// row per line. Rows the parser rejects are kept as raw text so a single
// bad quote cannot lose a whole file; their presence makes the result
// partial.
func (e *Extractor) extractCSV(data []byte) Result {
	text, err := decodeText(data)
	if err != nil {
		return Result{Status: StatusFailed, ErrorDetail: "decode: " + err.Error()}
	}

	var (
		lines     []string
		malformed int
	)
	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				if raw := rawCSVLine(text, parseErr.Line); raw != "" {
					lines = append(lines, raw)
				}
				malformed++
				continue
			}
			return Result{Status: StatusFailed, ErrorDetail: "csv: " + err.Error()}
		}
		lines = append(lines, strings.Join(row, " "))
	}

	res := Result{Text: strings.Join(lines, "\n"), Status: StatusOK}
	if malformed > 0 {
		res.Status = StatusPartial
		res.ErrorDetail = "malformed csv rows kept as raw text"
	}
	return res
}

// rawCSVLine returns the 1-based line from the original text.
func rawCSVLine(text string, line int) string {
	all := strings.Split(text, "\n")
	if line < 1 || line > len(all) {
		return ""
	}
	return strings.TrimRight(all[line-1], "\r")
}
