package orchestrator

import (
	"fmt"
	"strings"

	"github.com/dusk-indust/deepresearch/internal/research"
)

// FormatReport renders a master report as markdown: the narrative, the
// numbered sources it cites and the retrieved sources it does not.
func FormatReport(m *research.MasterReport) string {
	if m == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(strings.TrimSpace(m.Narrative))
	b.WriteString("\n")

	if len(m.Citations) > 0 {
		b.WriteString("\n## Sources\n\n")
		for _, c := range m.Citations {
			if c.Title != "" {
				fmt.Fprintf(&b, "[%d] %s - %s\n", c.Index, c.Title, c.URL)
			} else {
				fmt.Fprintf(&b, "[%d] %s\n", c.Index, c.URL)
			}
		}
	}

	if len(m.AdditionalSources) > 0 {
		b.WriteString("\n## Additional Research Sources\n\n")
		b.WriteString("The following sources were also consulted during research but are not cited above:\n\n")
		for _, u := range m.AdditionalSources {
			fmt.Fprintf(&b, "- %s\n", u)
		}
		fmt.Fprintf(&b, "\nAdditional sources: %d | Total sources consulted: %d\n",
			len(m.AdditionalSources), len(m.Citations)+len(m.AdditionalSources))
	}
	return b.String()
}
