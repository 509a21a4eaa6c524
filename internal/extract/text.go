package extract

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// extractText decodes bytes into UTF-8 text. BOMs select UTF-8 or UTF-16;
// without a BOM, valid UTF-8 passes through and anything else is read as
// Latin-1 so that no byte sequence can fail.
func (e *Extractor) extractText(data []byte) Result {
	text, err := decodeText(data)
	if err != nil {
		return Result{Status: StatusFailed, ErrorDetail: "decode: " + err.Error()}
	}
	return Result{Text: text, Status: StatusOK}
}

func decodeText(data []byte) (string, error) {
	var dec *encoding.Decoder
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		data = data[len(bomUTF8):]
	case bytes.HasPrefix(data, bomUTF16LE):
		dec = unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
	case bytes.HasPrefix(data, bomUTF16BE):
		dec = unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
	case !utf8.Valid(data):
		dec = charmap.ISO8859_1.NewDecoder()
	}

	if dec == nil {
		return string(data), nil
	}
	decoded, err := dec.Bytes(data)
	if err != nil {
		// Replace what cannot be decoded rather than dropping the file.
		return strings.ToValidUTF8(string(decoded), "�"), nil
	}
	return string(decoded), nil
}
