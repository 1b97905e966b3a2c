// Package digest formats new opportunities as a Slack message and delivers it.
package digest

import (
	"fmt"
	"strings"
	"time"

	"github.com/david/anansi/internal/models"
)

// DefaultMaxLines bounds the message: the header plus item lines.
const DefaultMaxLines = 14

const fallbackTheme = "Open Government"

// Digest is a rendered message ready to publish.
type Digest struct {
	Text  string
	Shown int // item lines included
	Total int // items the digest announces
}

// Capacity is the number of item lines that fit under maxLines. At least one
// item is always shown.
func Capacity(maxLines int) int {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	return max(1, maxLines-1)
}

// Render builds the header, up to Capacity(maxLines) item lines and, when
// items were left out, a "+N more" footer.
func Render(opps []models.Opportunity, maxLines int, today time.Time) Digest {
	capacity := Capacity(maxLines)
	shown := min(capacity, len(opps))

	lines := make([]string, 0, shown+2)
	lines = append(lines, fmt.Sprintf("*New funding opportunities (%d)* — %s", len(opps), today.UTC().Format("2006-01-02")))
	for _, o := range opps[:shown] {
		lines = append(lines, Line(o))
	}
	if rest := len(opps) - shown; rest > 0 {
		lines = append(lines, fmt.Sprintf("+%d more new items", rest))
	}

	return Digest{Text: strings.Join(lines, "\n"), Shown: shown, Total: len(opps)}
}

// Line formats one opportunity as a bullet holding the linked title, donor,
// deadline and theme. The scope prefix is omitted when the title already starts with it.
func Line(o models.Opportunity) string {
	title := o.Title
	if title == "" {
		title = "Untitled"
	}
	donor := o.Donor
	if donor == "" {
		donor = "Unknown"
	}
	deadline := o.Deadline
	if deadline == "" {
		deadline = "N/A"
	}
	theme := o.Theme()
	if theme == "" {
		theme = fallbackTheme
	}

	label := title
	if loc := strings.Join(o.CountryScope, " / "); loc != "" && !strings.HasPrefix(strings.ToLower(title), strings.ToLower(loc)) {
		label = loc + " — " + title
	}

	link := escape(label)
	if o.URL != "" {
		link = "<" + o.URL + "|" + link + ">"
	}
	return fmt.Sprintf("• %s (%s) — deadline: %s — %s", link, escape(donor), deadline, theme)
}

var slackEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// escape applies Slack's control-character escaping.
func escape(s string) string {
	return slackEscaper.Replace(s)
}
