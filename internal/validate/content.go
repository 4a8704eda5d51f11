package validate

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/p-n-ai/pai-learnpath/internal/learning"
	"github.com/p-n-ai/pai-learnpath/internal/llmjson"
)

const (
	questionCount   = 3
	minReferences   = 2
	minKeyConcepts  = 3
	maxKeyConcepts  = 5
	defaultMinWords = 300
	defaultTailSize = 50
)

// ContentRules tunes the truncation heuristic.
type ContentRules struct {
	MinWords   int // word counts below this are flagged
	TailWindow int // characters at the end searched for an ellipsis
}

// DefaultContentRules targets modules of 600 to 700 words.
func DefaultContentRules() ContentRules {
	return ContentRules{MinWords: defaultMinWords, TailWindow: defaultTailSize}
}

// ContentResult is a validated bundle plus any non-fatal findings.
type ContentResult struct {
	Bundle   learning.ContentBundle
	Warnings []Warning
}

// Content validates a decoded module with DefaultContentRules.
func Content(v llmjson.Value) (ContentResult, error) {
	return DefaultContentRules().Content(v)
}

// Content validates a decoded module bundle. Every cardinality problem is
// collected before failing. Likely truncation is reported as a warning.
func (r ContentRules) Content(v llmjson.Value) (ContentResult, error) {
	if v.Kind() != llmjson.KindObject {
		return ContentResult{}, &SchemaViolationError{
			Subject:  "content",
			Problems: []string{"content must be an object, got " + v.Kind().String()},
		}
	}

	var probs problems
	for _, field := range []string{"module_name", "content", "key_concepts", "questions", "references"} {
		if !v.Has(field) {
			probs.add("missing %q", field)
		}
	}
	if err := probs.err("content"); err != nil {
		return ContentResult{}, err
	}

	var b learning.ContentBundle
	b.ModuleName = requireText(v, "module_name", &probs)
	b.Content = requireText(v, "content", &probs)
	b.KeyConcepts = keyConcepts(v, &probs)
	b.Questions = questions(v, &probs)
	b.References = references(v, &probs)
	if err := probs.err("content"); err != nil {
		return ContentResult{}, err
	}

	res := ContentResult{Bundle: b}
	if w, truncated := r.truncation(b.Content); truncated {
		slog.Warn("possible truncation", "module", b.ModuleName, "words", w.Words, "reasons", w.Reasons)
		res.Warnings = append(res.Warnings, w)
	}
	return res, nil
}

func requireText(v llmjson.Value, field string, probs *problems) string {
	f, _ := v.Field(field)
	s, ok := f.Text()
	if !ok {
		probs.add("%q must be a string, got %s", field, f.Kind())
		return ""
	}
	return s
}

func keyConcepts(v llmjson.Value, probs *problems) []string {
	f, _ := v.Field("key_concepts")
	items, ok := f.Array()
	if !ok {
		probs.add("key_concepts must be an array, got %s", f.Kind())
		return nil
	}
	if len(items) < minKeyConcepts || len(items) > maxKeyConcepts {
		probs.add("key_concepts must have %d-%d entries, got %d", minKeyConcepts, maxKeyConcepts, len(items))
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.Text()
		if !ok || strings.TrimSpace(s) == "" {
			probs.add("key_concepts[%d] must be a non-empty string", i)
			continue
		}
		out = append(out, s)
	}
	return out
}

func questions(v llmjson.Value, probs *problems) []learning.Question {
	f, _ := v.Field("questions")
	items, ok := f.Array()
	if !ok {
		probs.add("questions must be an array, got %s", f.Kind())
		return nil
	}
	if len(items) != questionCount {
		probs.add("questions must have exactly %d entries, got %d", questionCount, len(items))
	}

	out := make([]learning.Question, 0, len(items))
	for i, item := range items {
		if item.Kind() != llmjson.KindObject {
			probs.add("questions[%d] must be an object, got %s", i, item.Kind())
			continue
		}
		q := learning.Question{
			ID:            questionField(item, i, "id", probs),
			Text:          questionField(item, i, "text", probs),
			CorrectAnswer: questionField(item, i, "correct_answer", probs),
			Explanation:   questionField(item, i, "explanation", probs),
		}
		out = append(out, q)
	}
	return out
}

// questionField accepts numeric ids ("id": 1) as well as strings.
func questionField(q llmjson.Value, i int, field string, probs *problems) string {
	f, ok := q.Field(field)
	if !ok {
		probs.add("questions[%d] missing %q", i, field)
		return ""
	}
	s, isText := f.Text()
	if !isText && field == "id" {
		if n, isInt := f.Int(); isInt {
			s, isText = fmt.Sprint(n), true
		}
	}
	if !isText || strings.TrimSpace(s) == "" {
		probs.add("questions[%d].%s must be a non-empty string", i, field)
		return ""
	}
	return s
}

func references(v llmjson.Value, probs *problems) []learning.Reference {
	f, _ := v.Field("references")
	items, ok := f.Array()
	if !ok {
		probs.add("references must be an array, got %s", f.Kind())
		return nil
	}
	if len(items) < minReferences {
		probs.add("references must have at least %d entries, got %d", minReferences, len(items))
	}

	out := make([]learning.Reference, 0, len(items))
	for i, item := range items {
		switch item.Kind() {
		case llmjson.KindString:
			// Legacy bare-string citation. It carries no URL, so it never
			// survives reference resolution as-is.
			s, _ := item.Text()
			out = append(out, learning.Reference{Text: s})
		case llmjson.KindObject:
			textVal, hasText := item.Field("text")
			urlVal, hasURL := item.Field("url")
			text, textOK := textVal.Text()
			url, urlOK := urlVal.Text()
			switch {
			case !hasText || !textOK:
				probs.add("references[%d] missing text", i)
			case !hasURL || !urlOK:
				probs.add("references[%d] missing url", i)
			case !hasHTTPScheme(url):
				probs.add("references[%d] url must start with http:// or https://, got %q", i, url)
			default:
				out = append(out, learning.Reference{Text: text, URL: url})
			}
		default:
			probs.add("references[%d] must be an object or string, got %s", i, item.Kind())
		}
	}
	return out
}

func hasHTTPScheme(u string) bool {
	u = strings.ToLower(strings.TrimSpace(u))
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

func (r ContentRules) truncation(content string) (TruncationWarning, bool) {
	words := len(strings.Fields(content))
	trimmed := strings.TrimSpace(content)

	var reasons []string
	if tail := lastRunes(trimmed, r.TailWindow); strings.Contains(tail, "...") || strings.Contains(tail, "…") {
		reasons = append(reasons, "ellipsis near end")
	}
	if strings.HasSuffix(trimmed, ",") || strings.HasSuffix(trimmed, ":") ||
		strings.HasSuffix(trimmed, "-") || strings.HasSuffix(trimmed, "(") {
		reasons = append(reasons, "ends mid-sentence")
	}
	if words < r.MinWords {
		reasons = append(reasons, fmt.Sprintf("below %d words", r.MinWords))
	}
	if len(reasons) == 0 {
		return TruncationWarning{}, false
	}
	return TruncationWarning{Words: words, Reasons: reasons}, true
}

func lastRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
