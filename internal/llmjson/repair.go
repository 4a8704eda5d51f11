package llmjson

import "strings"

// RepairEscapes rewrites a JSON document so that backslash sequences JSON
// does not allow (LaTeX such as \sigma or \frac) survive decoding as a single
// literal backslash. Literal CR/LF characters become spaces first, since raw
// newlines are illegal inside JSON strings.
//
// Already-valid escapes, including an escaped backslash, are left as they
// are, so the function is idempotent on valid input.
func RepairEscapes(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")

	var b strings.Builder
	b.Grow(len(s) + 16)

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(s) {
			b.WriteString(`\\`)
			continue
		}
		next := s[i+1]
		if isLegalEscape(s, i+1) {
			b.WriteByte('\\')
			b.WriteByte(next)
		} else {
			b.WriteString(`\\`)
			b.WriteByte(next)
		}
		i++
	}
	return b.String()
}

// isLegalEscape reports whether the byte at s[i] may follow a backslash.
func isLegalEscape(s string, i int) bool {
	switch s[i] {
	case '"', '\\', '/', 'b', 'f', 'n', 'r', 't':
		return true
	case 'u':
		// \uXXXX only; \underline and \uparrow are notation.
		if i+4 >= len(s) {
			return false
		}
		for _, h := range s[i+1 : i+5] {
			if !isHex(byte(h)) {
				return false
			}
		}
		return true
	}
	return false
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
