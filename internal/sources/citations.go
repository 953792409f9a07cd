package sources

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dusk-indust/deepresearch/internal/research"
)

// markerRe matches [1], [2, 5] and similar numbered citation markers.
var markerRe = regexp.MustCompile(`\[(\d+(?:\s*,\s*\d+)*)\]`)

// leadingMarkerRe matches a marker at the start of the remaining text.
var leadingMarkerRe = regexp.MustCompile(`^\s*\[\d+(?:\s*,\s*\d+)*\]`)

// Markers returns the distinct citation numbers referenced in text, sorted.
func Markers(text string) []int {
	seen := make(map[int]bool)
	for _, m := range markerRe.FindAllStringSubmatch(text, -1) {
		for _, n := range splitMarker(m[1]) {
			seen[n] = true
		}
	}
	out := make([]int, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

func splitMarker(inner string) []int {
	var out []int
	for _, part := range strings.Split(inner, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err == nil {
			out = append(out, n)
		}
	}
	return out
}

// Renumber rewrites every marker in text through mapping. Numbers that map
// to zero or are absent from mapping are removed; a marker left empty is
// removed entirely.
func Renumber(text string, mapping map[int]int) string {
	return markerRe.ReplaceAllStringFunc(text, func(m string) string {
		inner := m[1 : len(m)-1]
		var kept []string
		seen := make(map[int]bool)
		for _, n := range splitMarker(inner) {
			to := mapping[n]
			if to == 0 || seen[to] {
				continue
			}
			seen[to] = true
			kept = append(kept, strconv.Itoa(to))
		}
		if len(kept) == 0 {
			return ""
		}
		return "[" + strings.Join(kept, ", ") + "]"
	})
}

// Dedupe merges citations that point at the same normalized URL and
// renumbers them 1..n in first-appearance order. The returned mapping sends
// every old index to its new index.
func Dedupe(citations []research.Citation) ([]research.Citation, map[int]int) {
	byURL := make(map[string]int)
	mapping := make(map[int]int)
	var out []research.Citation
	for i, c := range citations {
		if strings.TrimSpace(c.URL) == "" {
			continue
		}
		old := c.Index
		if old == 0 {
			old = i + 1
		}
		key := NormalizeURL(c.URL)
		if idx, ok := byURL[key]; ok {
			mapping[old] = idx
			if out[idx-1].Title == "" {
				out[idx-1].Title = c.Title
			}
			continue
		}
		c.Index = len(out) + 1
		byURL[key] = c.Index
		mapping[old] = c.Index
		out = append(out, c)
	}
	return out, mapping
}

// StripUnretrieved removes every citation of m whose URL is not in
// retrieved. A sentence whose markers all refer to removed citations is
// deleted; other sentences lose only the removed markers. The surviving
// citations are renumbered. It returns the URLs that were removed.
func StripUnretrieved(m *research.MasterReport, retrieved Set) []string {
	drop := make(map[int]bool)
	var removed []string
	var kept []research.Citation
	for _, c := range m.Citations {
		if retrieved.Has(c.URL) {
			kept = append(kept, c)
			continue
		}
		drop[c.Index] = true
		removed = append(removed, c.URL)
	}
	if len(drop) == 0 {
		return nil
	}

	narrative := dropSentences(m.Narrative, drop)

	mapping := make(map[int]int, len(kept))
	for i := range kept {
		mapping[kept[i].Index] = i + 1
		kept[i].Index = i + 1
	}
	m.Narrative = Renumber(narrative, mapping)
	m.Citations = kept
	return removed
}

// Sentences splits text into trimmed sentences, line by line.
func Sentences(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		for _, s := range splitSentences(line) {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// splitSentences cuts one line into sentences. The pieces concatenate back
// to line exactly. A sentence ends at a run of '.', '!' or '?' plus any
// markers that trail it, provided the run is followed by whitespace, a
// marker or the end of the line. A '.' between two digits never ends a
// sentence, so "3.5%" and "v1.2" stay whole.
func splitSentences(line string) []string {
	var out []string
	start := 0
	for i := 0; i < len(line); {
		if !isTerminal(line[i]) || decimalPoint(line, i) {
			i++
			continue
		}
		j := i
		for j < len(line) && isTerminal(line[j]) {
			j++
		}
		marked := false
		for {
			loc := leadingMarkerRe.FindStringIndex(line[j:])
			if loc == nil {
				break
			}
			j += loc[1]
			marked = true
		}
		if marked || j == len(line) || isSpace(line[j]) {
			out = append(out, line[start:j])
			start = j
		}
		i = j
	}
	if start < len(line) {
		out = append(out, line[start:])
	}
	return out
}

func isTerminal(c byte) bool { return c == '.' || c == '!' || c == '?' }

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\r' }

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func decimalPoint(line string, i int) bool {
	return line[i] == '.' && i > 0 && i+1 < len(line) && isDigit(line[i-1]) && isDigit(line[i+1])
}

// dropSentences deletes sentences that cite only numbers in drop.
func dropSentences(text string, drop map[int]bool) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if !markerRe.MatchString(line) {
			continue
		}
		var b strings.Builder
		for _, sentence := range splitSentences(line) {
			nums := Markers(sentence)
			if len(nums) > 0 && allIn(nums, drop) {
				continue
			}
			b.WriteString(sentence)
		}
		lines[i] = strings.TrimSpace(b.String())
	}
	return strings.Join(lines, "\n")
}

func allIn(nums []int, set map[int]bool) bool {
	for _, n := range nums {
		if !set[n] {
			return false
		}
	}
	return true
}

// Uncited returns the retrieved results whose URLs are not cited by m, in
// retrieval order and without duplicates.
func Uncited(m *research.MasterReport, retrieved []research.SearchResult) []string {
	cited := NewSet(m.CitedURLs()...)
	seen := make(Set)
	var out []string
	for _, r := range retrieved {
		if r.URL == "" || cited.Has(r.URL) || seen.Has(r.URL) {
			continue
		}
		seen.Add(r.URL)
		out = append(out, r.URL)
	}
	return out
}
