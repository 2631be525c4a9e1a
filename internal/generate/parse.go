package generate

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
)

// Parse reads model output as JSON. Markdown code fences are stripped; when
// the remaining text is not JSON, the span from the first opening bracket to
// the last matching closer is tried. Object key order is preserved.
func Parse(text string) (json.RawMessage, error) {
	cleaned := stripFences(text)
	if cleaned == "" {
		return nil, &ParseError{Raw: text, Err: eris.New("empty response")}
	}
	if gjson.Valid(cleaned) {
		return compact(cleaned)
	}
	if candidate := extractCandidate(cleaned); candidate != "" && gjson.Valid(candidate) {
		return compact(candidate)
	}
	return nil, &ParseError{Raw: text, Err: eris.New("no valid JSON value found")}
}

func compact(s string) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(s)); err != nil {
		return nil, &ParseError{Raw: s, Err: eris.Wrap(err, "compact")}
	}
	return buf.Bytes(), nil
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return ""
	}
	// Drop the opening fence line, which may carry a language tag.
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func extractCandidate(text string) string {
	objectStart := strings.Index(text, "{")
	arrayStart := strings.Index(text, "[")

	start := -1
	closeChar := ""
	switch {
	case objectStart >= 0 && (arrayStart < 0 || objectStart < arrayStart):
		start, closeChar = objectStart, "}"
	case arrayStart >= 0:
		start, closeChar = arrayStart, "]"
	default:
		return ""
	}

	end := strings.LastIndex(text, closeChar)
	if end < start {
		return ""
	}
	return text[start : end+1]
}
