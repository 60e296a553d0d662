package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/alitavanaali/MusiComb/pkg/arrange"
	"github.com/alitavanaali/MusiComb/pkg/runs"
)

// Theme is the report color scheme.
type Theme struct {
	Primary lipgloss.Color
	Dim     lipgloss.Color
	Warn    lipgloss.Color
}

// DefaultTheme is bright green on the terminal default.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
	Warn:    lipgloss.Color("#ffb454"),
}

// Styles are derived from a Theme.
type Styles struct {
	Title  lipgloss.Style
	Label  lipgloss.Style
	Border lipgloss.Style
	Dim    lipgloss.Style
	Warn   lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Label:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Border: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(t.Primary).Padding(0, 1),
		Dim:    lipgloss.NewStyle().Foreground(t.Dim),
		Warn:   lipgloss.NewStyle().Foreground(t.Warn),
	}
}

// Section is a labeled block of report lines.
type Section struct {
	Label string
	Lines []string
}

// Report is a boxed summary.
type Report struct {
	Styles   Styles
	Title    string
	Status   string
	Sections []Section
}

// Render draws the report. Sections without lines are left out.
func (r Report) Render() string {
	var b strings.Builder
	b.WriteString(r.Styles.Title.Render(r.Title))
	if r.Status != "" {
		b.WriteString(" " + r.Styles.Dim.Render("["+r.Status+"]"))
	}
	for _, sec := range r.Sections {
		if len(sec.Lines) == 0 {
			continue
		}
		b.WriteString("\n\n" + r.Styles.Label.Render(sec.Label))
		for _, line := range sec.Lines {
			b.WriteString("\n  " + line)
		}
	}
	return r.Styles.Border.Render(b.String())
}

// ArrangeReport summarizes a finished arrangement.
func ArrangeReport(styles Styles, res *arrange.Result) Report {
	sol, plan := res.Solution, res.Plan
	rep := Report{
		Styles: styles,
		Title:  "musicomb " + res.RunID,
		Status: sol.Status.String(),
	}

	song := []string{
		fmt.Sprintf("tempo      %s", FormatTempo(res.Tempo)),
		fmt.Sprintf("meter      %s, %d measures per region (%s)", plan.Params.Signature, plan.Params.Measures, FormatMs(plan.BarMs)),
		fmt.Sprintf("length     %s", FormatMs(plan.Params.LengthMs)),
		fmt.Sprintf("placed     %d of %d repeats (bound %d)", sol.Objective, len(plan.Slots), sol.Bound),
		fmt.Sprintf("search     %d nodes in %s", sol.Nodes, FormatDuration(sol.Elapsed)),
		fmt.Sprintf("seed       %d", res.Seed),
	}
	rep.Sections = append(rep.Sections, Section{Label: "Song", Lines: song})

	var windows []string
	for c, name := range plan.Windows {
		cu := plan.Model.Cumulatives[c]
		windows = append(windows, fmt.Sprintf("%-8s capacity %d in [%d, %d], %d repeats billed",
			name, sol.Capacity[c], cu.CapacityMin, cu.CapacityMax, len(cu.Intervals)))
	}
	rep.Sections = append(rep.Sections, Section{Label: "Windows", Lines: windows})

	if res.Output != nil {
		var tracks []string
		for _, tr := range res.Output.Tracks {
			line := fmt.Sprintf("%-16s %2d repeats", tr.Family, tr.Repeats)
			if tr.Stats.Dropped > 0 {
				line += styles.Dim.Render(fmt.Sprintf(", %d events past the end", tr.Stats.Dropped))
			}
			if tr.Stats.Clamped > 0 {
				line += styles.Warn.Render(fmt.Sprintf(", %d clamped", tr.Stats.Clamped))
			}
			tracks = append(tracks, line)
		}
		rep.Sections = append(rep.Sections,
			Section{Label: "Tracks", Lines: tracks},
			Section{Label: "Files", Lines: []string{res.Output.TuneURI, res.Output.UnmergedURI}},
		)
	}
	return rep
}

// RunsReport lists recorded runs, newest first.
func RunsReport(styles Styles, recs []*runs.Record) Report {
	rep := Report{Styles: styles, Title: "musicomb runs", Status: fmt.Sprintf("%d", len(recs))}
	var lines []string
	for _, r := range recs {
		outcome := r.Outcome
		if !strings.EqualFold(outcome, "optimal") && !strings.EqualFold(outcome, "feasible") {
			outcome = styles.Warn.Render(outcome)
		}
		lines = append(lines, fmt.Sprintf("%s  %s  %-11s %3d/%-3d %d BPM %s",
			r.CreatedAt.Format("2006-01-02 15:04:05"), r.ID, outcome, r.Present, r.Slots, r.BPM, r.TimeSignature))
	}
	rep.Sections = append(rep.Sections, Section{Label: "Runs", Lines: lines})
	return rep
}
