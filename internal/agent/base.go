package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dusk-indust/deepresearch/internal/research"
)

// subtopicList is the reply shape for decomposition and refinement. Models
// sometimes return objects instead of bare strings; both are accepted.
type subtopicList struct {
	Subtopics []subtopicItem `json:"subtopics"`

	min int
}

// UnmarshalJSON accepts {"subtopics": [...]} or a bare array.
func (l *subtopicList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, &l.Subtopics)
	}
	var obj struct {
		Subtopics []subtopicItem `json:"subtopics"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	l.Subtopics = obj.Subtopics
	return nil
}

type subtopicItem string

// UnmarshalJSON accepts "text" or {"subtopic": "text"} / {"title": "text"}.
func (s *subtopicItem) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*s = subtopicItem(text)
		return nil
	}
	var obj struct {
		Subtopic string `json:"subtopic"`
		Title    string `json:"title"`
		Text     string `json:"text"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*s = subtopicItem(firstNonEmpty(obj.Subtopic, obj.Title, obj.Text))
	return nil
}

func (l *subtopicList) texts() []string {
	out := make([]string, 0, len(l.Subtopics))
	for _, s := range l.Subtopics {
		out = append(out, string(s))
	}
	return out
}

// Validate rejects replies with fewer than min distinct subtopics.
func (l *subtopicList) Validate() error {
	if n := len(dedupeTexts(l.texts(), nil)); n < l.min {
		return fmt.Errorf("got %d distinct subtopics, need at least %d", n, l.min)
	}
	return nil
}

// normalizeText is the comparison key for subtopic text.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// dedupeTexts trims, drops empties and removes duplicates of each other and
// of anything in existing.
func dedupeTexts(texts []string, existing []research.Subtopic) []string {
	seen := make(map[string]bool, len(texts)+len(existing))
	for _, s := range existing {
		seen[normalizeText(s.Text)] = true
	}
	var out []string
	for _, t := range texts {
		t = strings.TrimSpace(t)
		key := normalizeText(t)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// formatSources renders search results for a prompt.
func formatSources(results []research.SearchResult) string {
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] %s\n    URL: %s\n", i+1, r.Title, r.URL)
		if r.Snippet != "" {
			fmt.Fprintf(&b, "    %s\n", r.Snippet)
		}
	}
	return b.String()
}

// formatSourcesWithContent renders search results followed by the page
// text fetched for them, when there is any.
func formatSourcesWithContent(results []research.SearchResult, pages map[string]string) string {
	if len(pages) == 0 {
		return formatSources(results)
	}
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] %s\n    URL: %s\n", i+1, r.Title, r.URL)
		if r.Snippet != "" {
			fmt.Fprintf(&b, "    %s\n", r.Snippet)
		}
		if text := pages[r.URL]; text != "" {
			fmt.Fprintf(&b, "    Page content:\n%s\n", indent(text, "      "))
		}
	}
	return b.String()
}

func indent(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}

// formatReports renders subtopic reports for a prompt.
func formatReports(reports []research.Report) string {
	var b strings.Builder
	for _, r := range reports {
		fmt.Fprintf(&b, "### %s\n%s\n", r.Subtopic, r.Narrative)
		for _, c := range r.Citations {
			fmt.Fprintf(&b, "- %s (%s)\n", c.Title, c.URL)
		}
		b.WriteString("\n")
	}
	return b.String()
}
