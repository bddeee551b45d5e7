package democmder

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/finvisor/finvisor/pkg/wizard"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	botStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	userStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	flagStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	doneStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
)

// pending reports whether ev is the first phase of an item that will be
// emitted again once it settles.
func pending(ev wizard.Event) bool {
	if ev.Kind != wizard.KindItem {
		return false
	}
	switch ev.Phase {
	case "thinking", "searching", "running":
		return true
	}
	return false
}

// describe turns one script event into display lines. The done event has
// none.
func describe(ev wizard.Event) []string {
	switch ev.Kind {
	case wizard.KindTyping:
		return []string{mutedStyle.Render("Finnie is typing…")}

	case wizard.KindMessage:
		m, _ := ev.Payload.(map[string]string)
		if m["role"] == "user" {
			return []string{userStyle.Render("You:") + " " + m["text"]}
		}
		return []string{botStyle.Render("Finnie:") + " " + m["text"]}

	case wizard.KindPhase:
		return []string{mutedStyle.Render("· " + ev.Phase)}

	case wizard.KindItem:
		return []string{describeItem(ev)}

	case wizard.KindLine:
		switch p := ev.Payload.(type) {
		case wizard.TranscriptLine:
			return []string{botStyle.Render(p.Speaker+":") + " " + p.Text}
		case string:
			return []string{p}
		}

	case wizard.KindInsight:
		s, _ := ev.Payload.(string)
		return []string{doneStyle.Render("insight:") + " " + s}

	case wizard.KindPlan:
		steps, _ := ev.Payload.([]string)
		out := []string{titleStyle.Render("Plan")}
		for i, s := range steps {
			out = append(out, fmt.Sprintf("  %d. %s", i+1, s))
		}
		return out

	case wizard.KindResult:
		return describeResult(ev.Payload)
	}
	return nil
}

func describeItem(ev wizard.Event) string {
	mark := doneStyle.Render("✓")
	if pending(ev) {
		mark = mutedStyle.Render("…")
	}

	switch p := ev.Payload.(type) {
	case wizard.ReasoningItem:
		if pending(ev) {
			return fmt.Sprintf("%s %s", mark, p.Label)
		}
		return fmt.Sprintf("%s %s: %s", mark, p.Label, p.Result)
	case wizard.ResearchItem:
		if pending(ev) {
			return fmt.Sprintf("%s %s", mark, p.Query)
		}
		return fmt.Sprintf("%s %s → %s %s", mark, p.Query, p.Result, mutedStyle.Render("("+p.Source+")"))
	case wizard.Action:
		return fmt.Sprintf("%s %s %s", mark, p.Icon, p.Text)
	}
	return fmt.Sprintf("%s %v", mark, ev.Payload)
}

func describeResult(payload any) []string {
	switch p := payload.(type) {
	case wizard.ParsedDocument:
		out := []string{titleStyle.Render("Parsed " + p.Type)}
		for _, f := range p.Fields {
			line := fmt.Sprintf("  %s: %s", f.Key, f.Value)
			if f.Flag {
				line += " " + flagStyle.Render("flagged")
			}
			out = append(out, line)
		}
		return out

	case wizard.SubmitResult:
		return []string{
			doneStyle.Render("Submitted") + " " + p.Confirmation,
			mutedStyle.Render("Decision expected: " + p.Estimate),
		}

	case wizard.DashboardView:
		out := []string{titleStyle.Render("Your case")}
		for _, s := range p.Stats {
			out = append(out, fmt.Sprintf("  %-24s %s", s.Label, s.Value))
		}
		out = append(out, "", titleStyle.Render("Plans"))
		for _, t := range p.Tiers {
			name := t.Name
			if t.Popular {
				name += " " + doneStyle.Render("popular")
			}
			out = append(out, fmt.Sprintf("  %s  %s", name, t.Price))
		}
		names := make([]string, 0, len(p.Sponsors))
		for _, s := range p.Sponsors {
			names = append(names, s.Name)
		}
		return append(out, "", mutedStyle.Render("Built with "+strings.Join(names, ", ")))
	}
	return nil
}

// renderLetter formats the appeal letter as markdown. A failed render falls
// back to the raw text.
func renderLetter(lines []string, width int, tty bool) string {
	style := "notty"
	if tty {
		style = "dark"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return strings.Join(lines, "\n")
	}

	// The script separates paragraphs with blank lines already.
	out, err := r.Render(strings.Join(lines, "\n"))
	if err != nil {
		return strings.Join(lines, "\n")
	}
	return out
}
