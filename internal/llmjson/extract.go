package llmjson

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"
)

const excerptLen = 300

// ErrExtraction matches every *ExtractionError via errors.Is.
var ErrExtraction = errors.New("json extraction failed")

// ExtractionError reports that no parseable JSON value of the expected kind
// could be located in a completion.
type ExtractionError struct {
	Reason  string
	Excerpt string // leading part of the raw completion
	Err     error  // last parse error, if a candidate span was found
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract json: %s: %v (input: %q)", e.Reason, e.Err, e.Excerpt)
	}
	return fmt.Sprintf("extract json: %s (input: %q)", e.Reason, e.Excerpt)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func (e *ExtractionError) Is(target error) bool { return target == ErrExtraction }

var fencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?[ \t]*\r?\n?(.*?)```")

// Extract returns the span of raw holding a single JSON value of the given
// kind (KindArray or KindObject). It never returns a partial span.
func Extract(raw string, want Kind) (string, error) {
	span, _, err := locate(raw, want)
	return span, err
}

// Decode extracts and parses the JSON value of the given kind from raw.
// Each candidate span is parsed directly first and only run through
// RepairEscapes when that fails.
func Decode(raw string, want Kind) (Value, error) {
	_, v, err := locate(raw, want)
	return v, err
}

func locate(raw string, want Kind) (string, Value, error) {
	open, closing, err := delimiters(want)
	if err != nil {
		return "", Value{}, err
	}

	trimmed := strings.TrimSpace(raw)
	var lastErr error

	// 1. The whole completion is the value.
	if strings.HasPrefix(trimmed, string(open)) {
		v, err := parseCandidate(trimmed)
		if err == nil {
			return trimmed, v, nil
		}
		lastErr = err
	}

	// 2. The first fenced code block.
	if m := fencePattern.FindStringSubmatch(trimmed); m != nil {
		payload := strings.TrimSpace(m[1])
		if strings.HasPrefix(payload, string(open)) {
			v, err := parseCandidate(payload)
			if err == nil {
				return payload, v, nil
			}
			lastErr = err
		}
	}

	// 3. Delimiter-depth scan. A balanced span that does not parse is prose
	// such as "[Note]", so scanning resumes after it. Spans nested inside a
	// rejected span are never tried.
	found := false
	for from := 0; from < len(trimmed); {
		i := strings.IndexByte(trimmed[from:], open)
		if i == -1 {
			break
		}
		start := from + i
		found = true
		end := matchDelimiter(trimmed, start, open, closing)
		if end == -1 {
			return "", Value{}, newExtractionError(raw, fmt.Sprintf("unbalanced %q delimiters", string(open)), lastErr)
		}
		span := trimmed[start : end+1]
		v, err := parseCandidate(span)
		if err == nil {
			return span, v, nil
		}
		lastErr = err
		from = end + 1
	}
	if !found {
		return "", Value{}, newExtractionError(raw, fmt.Sprintf("no %s found", want), lastErr)
	}
	return "", Value{}, newExtractionError(raw, "invalid JSON", lastErr)
}

func parseCandidate(s string) (Value, error) {
	v, err := Parse(s)
	if err == nil {
		return v, nil
	}
	repaired := RepairEscapes(s)
	v, rerr := Parse(repaired)
	if rerr != nil {
		return Value{}, err
	}
	slog.Debug("json parsed after escape repair", "error", err)
	return v, nil
}

// matchDelimiter returns the index of the delimiter closing s[start], or -1.
// Delimiters inside JSON string literals are not counted.
func matchDelimiter(s string, start int, open, closing byte) int {
	depth := 0
	inString := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func delimiters(want Kind) (byte, byte, error) {
	switch want {
	case KindArray:
		return '[', ']', nil
	case KindObject:
		return '{', '}', nil
	}
	return 0, 0, fmt.Errorf("extract json: unsupported kind %s", want)
}

func newExtractionError(raw, reason string, cause error) *ExtractionError {
	return &ExtractionError{Reason: reason, Excerpt: excerpt(raw), Err: cause}
}

func excerpt(s string) string {
	if len(s) <= excerptLen {
		return s
	}
	cut := excerptLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
