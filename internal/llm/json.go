package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dusk-indust/deepresearch/internal/research"
)

// ExtractJSON decodes the first JSON object or array found in text into v.
// Models often wrap JSON in prose or markdown fences; both are tolerated.
func ExtractJSON(text string, v any) error {
	body := strings.TrimSpace(stripFences(text))
	if body == "" {
		return fmt.Errorf("%w: empty output", research.ErrMalformedOutput)
	}
	if err := json.Unmarshal([]byte(body), v); err == nil {
		return nil
	}

	start := strings.IndexAny(body, "{[")
	if start < 0 {
		return fmt.Errorf("%w: no JSON value in output", research.ErrMalformedOutput)
	}
	closer := byte('}')
	if body[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(body, closer)
	if end <= start {
		return fmt.Errorf("%w: unterminated JSON value", research.ErrMalformedOutput)
	}
	if err := json.Unmarshal([]byte(body[start:end+1]), v); err != nil {
		return fmt.Errorf("%w: %v", research.ErrMalformedOutput, err)
	}
	return nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:] // drop the language tag line
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return s
}
