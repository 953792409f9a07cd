package export

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/dusk-indust/deepresearch/internal/research"
	"github.com/dusk-indust/deepresearch/internal/sources"
)

// GenerateMermaid produces a Mermaid graph TD diagram of a job: the topic,
// its subtopics, and the sources each subtopic retrieved. Sources the master
// report cites, according to the source graph, are styled as cited; failed
// subtopics are styled as failed.
func GenerateMermaid(ctx context.Context, store sources.Store, job *research.Job) (string, error) {
	tracked, err := store.Sources(ctx, job.ID)
	if err != nil {
		return "", fmt.Errorf("get sources: %w", err)
	}
	cited := make(map[string]bool, len(tracked))
	for _, s := range tracked {
		if s.Cited {
			cited[sources.CanonicalURL(s.URL)] = true
		}
	}

	// Build node → ID mapping for Mermaid (alphanumeric only).
	nodeIDs := make(map[string]string)
	nextID := 0
	getID := func(key string) string {
		if id, ok := nodeIDs[key]; ok {
			return id
		}
		id := fmt.Sprintf("N%d", nextID)
		nextID++
		nodeIDs[key] = id
		return id
	}

	reports := make(map[string]research.Report, len(job.Reports))
	for _, r := range job.Reports {
		reports[r.SubtopicID] = r
	}
	failed := make(map[string]bool, len(job.Failures))
	for _, f := range job.Failures {
		failed[f.Subtopic.ID] = true
	}

	var sb strings.Builder
	sb.WriteString("graph TD\n")

	root := getID("job:" + job.ID)
	sb.WriteString(fmt.Sprintf("  %s[\"%s\"]\n", root, label(job.Topic, 60)))

	var citedIDs, failedIDs []string
	emitted := make(map[string]bool)
	for _, s := range job.Subtopics {
		sid := getID("subtopic:" + s.ID)
		sb.WriteString(fmt.Sprintf("  %s --> %s[\"%s\"]\n", root, sid, label(s.Text, 40)))
		if failed[s.ID] {
			failedIDs = append(failedIDs, sid)
			continue
		}
		for _, src := range reports[s.ID].Sources {
			key := sources.CanonicalURL(src.URL)
			nid := getID("source:" + key)
			if !emitted[nid] {
				emitted[nid] = true
				sb.WriteString(fmt.Sprintf("  %s[\"%s\"]\n", nid, label(shortURL(src.URL), 40)))
				if cited[key] {
					citedIDs = append(citedIDs, nid)
				}
			}
			sb.WriteString(fmt.Sprintf("  %s --> %s\n", sid, nid))
		}
	}

	if len(citedIDs) > 0 {
		sb.WriteString("  classDef cited fill:#d4edda,stroke:#28a745\n")
		sb.WriteString(fmt.Sprintf("  class %s cited\n", strings.Join(citedIDs, ",")))
	}
	if len(failedIDs) > 0 {
		sb.WriteString("  classDef failed fill:#f8d7da,stroke:#dc3545\n")
		sb.WriteString(fmt.Sprintf("  class %s failed\n", strings.Join(failedIDs, ",")))
	}
	return sb.String(), nil
}

// shortURL returns host and last path segment for readability.
func shortURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) == 0 || parts[len(parts)-1] == "" {
		return u.Host
	}
	return u.Host + "/…/" + parts[len(parts)-1]
}

// label escapes quotes and truncates s to n runes.
func label(s string, n int) string {
	s = strings.ReplaceAll(s, `"`, "'")
	r := []rune(s)
	if len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}
