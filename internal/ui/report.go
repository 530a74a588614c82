// Package ui renders feedback reports for terminals.
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/abhisek/radgrade/internal/feedback"
	"github.com/abhisek/radgrade/internal/scoring"
	"github.com/abhisek/radgrade/internal/ui/theme"
)

// RenderReport writes r as colored pillar sections.
func RenderReport(w io.Writer, r *feedback.Report) error {
	var b strings.Builder

	summary := r.Summary()
	head := fmt.Sprintf("Submission %s  case %s", r.SubmissionID(), r.CaseID())
	if summary.Computed {
		head += "  score " + theme.Score(float64(summary.Score)).Render(fmt.Sprintf("%d/100", summary.Score))
	}
	b.WriteString(theme.Banner.Render(head))
	b.WriteString("\n\n")

	section(&b, theme.Heading(theme.Correct).Render("Pillar 1 · Correct observations"), len(r.Pillar1()))
	for _, o := range r.Pillar1() {
		line := fmt.Sprintf("%s (%s)", o.Name, o.Polarity)
		if len(o.Evidence) > 0 {
			line += theme.Hint.Render(fmt.Sprintf("  %q", o.Evidence[0].Text))
		}
		item(&b, line)
	}

	section(&b, theme.Heading(theme.Missed).Render("Pillar 2 · Missed findings"), len(r.Pillar2()))
	for _, o := range r.Pillar2() {
		item(&b, fmt.Sprintf("%s, expected %s [%s, severity %.2f]", o.Name, o.Expected, o.Criticality, o.Severity))
	}

	section(&b, theme.Heading(theme.Misinterpreted).Render("Pillar 3 · Misinterpretations"), len(r.Pillar3()))
	for _, m := range r.Pillar3() {
		item(&b, fmt.Sprintf("%s: %s, reported %s [%s, severity %.2f]", m.Kind, m.Name, m.Reported, m.Criticality, m.Severity))
	}

	clarity(&b, r.Pillar4())

	section(&b, theme.Heading(theme.Recommend).Render("Pillar 5 · Recommendations"), len(r.Pillar5()))
	for i, rec := range r.Pillar5() {
		b.WriteString(fmt.Sprintf("  %d. %s\n", i+1, theme.Body.Render(rec.Text)))
	}

	prov := r.Provenance()
	b.WriteString("\n")
	b.WriteString(theme.Hint.Render(fmt.Sprintf("vocabulary %s · latency %dms", prov.VocabularyVersion, r.Latency().Milliseconds())))
	b.WriteString("\n")
	if len(prov.Degraded) > 0 {
		b.WriteString(theme.Hint.Render("degraded: "+strings.Join(prov.Degraded, ", ")) + "\n")
	}
	if len(prov.Partial) > 0 {
		b.WriteString(theme.Hint.Render("partial: "+strings.Join(prov.Partial, ", ")) + "\n")
	}
	for _, n := range prov.Notes {
		b.WriteString(theme.Hint.Render("note: "+n) + "\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func section(b *strings.Builder, heading string, n int) {
	b.WriteString(heading)
	b.WriteString("\n")
	if n == 0 {
		b.WriteString(theme.Hint.Render("  none") + "\n")
	}
}

func item(b *strings.Builder, s string) {
	b.WriteString("  • ")
	b.WriteString(s)
	b.WriteString("\n")
}

func clarity(b *strings.Builder, c scoring.Clarity) {
	b.WriteString(theme.Heading(theme.Clarity).Render("Pillar 4 · Clarity"))
	b.WriteString("\n")
	if !c.Computed {
		b.WriteString(theme.Hint.Render("  not computed") + "\n")
		return
	}
	item(b, "score "+theme.Score(c.Score).Render(fmt.Sprintf("%.1f", c.Score)))
	item(b, fmt.Sprintf("length %.3f · template %.3f · vocabulary %.3f", c.LengthScore, c.TemplateScore, c.VocabularyScore))
	item(b, fmt.Sprintf("%d sentences, %d words", c.Sentences, c.Words))
	if len(c.MissingSections) > 0 {
		item(b, "missing sections: "+strings.Join(c.MissingSections, ", "))
	}
	for _, n := range c.StyleNotes {
		item(b, n)
	}
}
