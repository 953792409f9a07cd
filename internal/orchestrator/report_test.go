package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dusk-indust/deepresearch/internal/research"
)

func TestFormatReport(t *testing.T) {
	m := &research.MasterReport{
		Narrative: "Heat pumps raise winter peaks [1]. Upgrades help [2].\n",
		Citations: []research.Citation{
			{Index: 1, URL: "https://grid.example/peaks", Title: "Winter peaks"},
			{Index: 2, URL: "https://grid.example/upgrades"},
		},
		AdditionalSources: []string{"https://other.example"},
	}

	want := "Heat pumps raise winter peaks [1]. Upgrades help [2].\n" +
		"\n## Sources\n\n" +
		"[1] Winter peaks - https://grid.example/peaks\n" +
		"[2] https://grid.example/upgrades\n" +
		"\n## Additional Research Sources\n\n" +
		"The following sources were also consulted during research but are not cited above:\n\n" +
		"- https://other.example\n" +
		"\nAdditional sources: 1 | Total sources consulted: 3\n"
	assert.Equal(t, want, FormatReport(m))
}

func TestFormatReport_NarrativeOnly(t *testing.T) {
	got := FormatReport(&research.MasterReport{Narrative: "Nothing cited."})
	assert.Equal(t, "Nothing cited.\n", got)
	assert.NotContains(t, got, "## Sources")
}

func TestFormatReport_Nil(t *testing.T) {
	assert.Empty(t, FormatReport(nil))
}
