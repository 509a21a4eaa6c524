package extract

import (
	"strings"
)

// scanContentText walks a decoded PDF content stream and collects the
// operands of the text-showing operators Tj, TJ, ' and ". Only literal
// strings are decoded; hex strings usually carry CID-encoded text that
// cannot be mapped without the font's CMap, and pages relying on them come
// back empty here and get OCRed instead.
func scanContentText(content []byte) string {
	var (
		out      strings.Builder
		pending  []string
		lastByte byte
	)

	// Segments of one show operation concatenate directly; separate show
	// operations get a space between them unless a line break or an
	// explicit space is already there.
	flush := func() {
		seg := strings.Join(pending, "")
		pending = pending[:0]
		if seg == "" {
			return
		}
		if out.Len() > 0 && lastByte != '\n' && lastByte != ' ' && seg[0] != ' ' {
			out.WriteByte(' ')
		}
		out.WriteString(seg)
		lastByte = seg[len(seg)-1]
	}

	i := 0
	for i < len(content) {
		c := content[i]
		switch {
		case c == '(':
			s, next := parseLiteralString(content, i)
			pending = append(pending, s)
			i = next
		case c == '<' && i+1 < len(content) && content[i+1] != '<':
			// Hex string: skip, see above.
			i = skipHexString(content, i)
			pending = append(pending, "")
		case c == '%':
			i = skipComment(content, i)
		case c == '\'' || c == '"':
			flush()
			i++
		case isRegular(c):
			start := i
			for i < len(content) && isRegular(content[i]) {
				i++
			}
			switch token := string(content[start:i]); token {
			case "Tj", "TJ":
				flush()
			case "Td", "TD", "T*", "ET":
				flush()
				if out.Len() > 0 && lastByte != '\n' {
					out.WriteByte('\n')
					lastByte = '\n'
				}
			default:
				// Kerning numbers inside a TJ array sit between its strings
				// and must not discard them.
				if !isNumber(token) {
					pending = pending[:0]
				}
			}
		default:
			i++
		}
	}
	flush()

	return strings.TrimSpace(collapseBlankLines(out.String()))
}

// parseLiteralString decodes a PDF literal string starting at the opening
// paren, honoring escapes and balanced nested parens. Returns the decoded
// text and the index past the closing paren.
func parseLiteralString(content []byte, start int) (string, int) {
	var sb strings.Builder
	depth := 0
	i := start
	for i < len(content) {
		c := content[i]
		switch c {
		case '\\':
			if i+1 >= len(content) {
				return sb.String(), i + 1
			}
			esc := content[i+1]
			switch esc {
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case 'b', 'f':
				// no textual value
			case '(', ')', '\\':
				sb.WriteByte(esc)
			case '\n':
				// line continuation
			default:
				if esc >= '0' && esc <= '7' {
					code, consumed := parseOctal(content, i+1)
					sb.WriteRune(rune(code))
					i += consumed - 1
				} else {
					sb.WriteByte(esc)
				}
			}
			i += 2
		case '(':
			depth++
			if depth > 1 {
				sb.WriteByte('(')
			}
			i++
		case ')':
			depth--
			if depth == 0 {
				return sb.String(), i + 1
			}
			sb.WriteByte(')')
			i++
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String(), i
}

// parseOctal reads up to three octal digits and returns the byte value and
// the digit count.
func parseOctal(content []byte, start int) (int, int) {
	code, n := 0, 0
	for ; n < 3 && start+n < len(content); n++ {
		d := content[start+n]
		if d < '0' || d > '7' {
			break
		}
		code = code*8 + int(d-'0')
	}
	return code & 0xFF, n
}

func skipHexString(content []byte, start int) int {
	for i := start + 1; i < len(content); i++ {
		if content[i] == '>' {
			return i + 1
		}
	}
	return len(content)
}

func skipComment(content []byte, start int) int {
	for i := start; i < len(content); i++ {
		if content[i] == '\n' || content[i] == '\r' {
			return i
		}
	}
	return len(content)
}

func isNumber(token string) bool {
	if token == "" {
		return false
	}
	for i := 0; i < len(token); i++ {
		switch c := token[i]; {
		case c >= '0' && c <= '9':
		case c == '+' || c == '-' || c == '.':
		default:
			return false
		}
	}
	return true
}

// isRegular reports whether c can appear in a PDF operator token.
func isRegular(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0,
		'(', ')', '<', '>', '[', ']', '{', '}', '/', '%', '\'', '"':
		return false
	}
	return true
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.TrimRight(line, " ")
		if line == "" && len(out) > 0 && out[len(out)-1] == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
