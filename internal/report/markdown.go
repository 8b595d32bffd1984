package report

import (
	"fmt"
	"strings"

	"github.com/lvonguyen/stagezero/internal/ioc"
)

// markdownIOCPreview caps the indicator values shown inline per kind.
const markdownIOCPreview = 10

// Markdown renders the report in its Markdown rendition: a headline block
// followed by the Narrative, Tactics Breakdown, Top Techniques and IOC
// Summary sections.
func (r Report) Markdown() string {
	var b strings.Builder
	b.WriteString("# Deep Incident Report\n")
	fmt.Fprintf(&b, "- Generated: %s\n", r.GeneratedAt)
	fmt.Fprintf(&b, "- Total Logs: %d\n", r.Summary.TotalLogs)
	fmt.Fprintf(&b, "- Distinct Techniques: %d\n", r.Summary.DistinctTechniques)
	fmt.Fprintf(&b, "- Tactics Observed: %d\n", r.Summary.TacticsObserved)
	fmt.Fprintf(&b, "- Overall Risk: %s (%d%%)\n", r.Summary.OverallSeverity, r.Summary.RiskPercent)

	b.WriteString("\n## Narrative\n")
	b.WriteString(r.Narrative)
	b.WriteString("\n")

	b.WriteString("\n## Tactics Breakdown\n")
	for _, t := range r.TacticsBreakdown {
		fmt.Fprintf(&b, "- **%s**: %d hits\n", titleWords(t.Tactic), t.Count)
	}

	b.WriteString("\n## Top Techniques\n")
	for _, t := range r.TopTechniques {
		fmt.Fprintf(&b, "- **%s** — %s: %d hits\n", t.ID, t.Name, t.Count)
	}

	b.WriteString("\n## IOC Summary\n")
	for _, kind := range ioc.Kinds {
		vals := r.IOCSummary[kind]
		if len(vals) == 0 {
			continue
		}
		preview := vals
		suffix := ""
		if len(preview) > markdownIOCPreview {
			preview = preview[:markdownIOCPreview]
			suffix = " ..."
		}
		fmt.Fprintf(&b, "- **%s** (%d): %s%s\n",
			strings.ToUpper(string(kind)), len(vals), strings.Join(preview, ", "), suffix)
	}

	return b.String()
}

// dehyphenate turns a tactic label into prose, e.g. "credential-access"
// into "credential access".
func dehyphenate(s string) string {
	return strings.ReplaceAll(s, "-", " ")
}

// titleWords capitalizes each hyphen-separated word of a tactic label.
func titleWords(s string) string {
	words := strings.Split(dehyphenate(s), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
