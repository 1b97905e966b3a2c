package digest

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/david/anansi/internal/models"
)

// PreviewTable writes a terminal table of opps, used by dry runs.
func PreviewTable(w io.Writer, opps []models.Opportunity) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"ID", "Donor", "Deadline", "Status", "Theme", "Title"})
	for _, o := range opps {
		t.AppendRow(table.Row{o.ID, o.Donor, orDash(o.Deadline), orDash(o.Status), o.Theme(), truncate(o.Title, 70)})
	}
	t.AppendFooter(table.Row{"", "", "", "", "Total", len(opps)})
	t.Render()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
