package ingest

import (
	"crypto/sha1"
	"encoding/hex"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"github.com/david/anansi/internal/models"
)

const unknownDonor = "Unknown"

// titleJunkPatterns catch scraper leaks such as stylesheet links and nav labels.
var titleJunkPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\.css\b`),
	regexp.MustCompile(`(?i)\.js\b`),
	regexp.MustCompile(`(?i)site[-_ ]header`),
	regexp.MustCompile(`(?i)^\s*(home|menu|language)\s*$`),
}

var titlePolicy = bluemonday.StrictPolicy()

// NormalizeOptions controls the record-level filters.
type NormalizeOptions struct {
	FutureOnly      bool
	RequireDeadline bool
	Today           time.Time // zero means now
}

// HTMLToText converts HTML to plain text, collapsing whitespace.
func HTMLToText(markup string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return normalizeSpace(markup)
	}
	return normalizeSpace(doc.Text())
}

// CleanTitle unescapes entities, strips markup and stray delimiters. Titles
// that look like scraper leaks come back empty.
func CleanTitle(raw string) string {
	t := html.UnescapeString(raw)
	t = html.UnescapeString(titlePolicy.Sanitize(t))
	t = strings.TrimSpace(t)
	if t == "" {
		return ""
	}
	for _, rx := range titleJunkPatterns {
		if rx.MatchString(t) {
			return ""
		}
	}
	t = normalizeSpace(t)
	return strings.Trim(t, " -|>:–—")
}

// Fingerprint derives the stable record id from donor, url (or title when
// the url is empty) and the ISO deadline.
func Fingerprint(donor, urlOrTitle, deadline string) string {
	var parts []string
	for _, p := range []string{donor, urlOrTitle, deadline} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	sum := sha1.Sum([]byte(strings.Join(parts, "::")))
	return hex.EncodeToString(sum[:])[:16]
}

// Normalize turns raw connector output into deduplicated canonical records
// sorted by urgency.
func Normalize(raws []RawOpportunity, opts NormalizeOptions) []models.Opportunity {
	ref := opts.Today
	if ref.IsZero() {
		ref = time.Now()
	}
	today := truncateDay(ref).Format(isoDate)

	out := make([]models.Opportunity, 0, len(raws))
	for _, raw := range raws {
		opp, ok := normalizeRecord(raw, ref, today)
		if !ok || !passesFilters(raw, opp, opts, today) {
			continue
		}
		out = append(out, opp)
	}

	return SortByUrgency(Dedupe(out))
}

func normalizeRecord(raw RawOpportunity, ref time.Time, today string) (models.Opportunity, bool) {
	title := CleanTitle(raw.Title)
	if title == "" {
		return models.Opportunity{}, false
	}

	donor := normalizeSpace(raw.Donor)
	if donor == "" {
		donor = unknownDonor
	}
	url := strings.TrimSpace(raw.URL)
	deadline := ParseDate(raw.Deadline, ref)
	amountMin, amountMax, currency := ParseAmount(raw.Amount)

	idSource := url
	if idSource == "" {
		idSource = title
	}

	return models.Opportunity{
		ID:            Fingerprint(donor, idSource, deadline),
		Title:         title,
		Donor:         donor,
		URL:           url,
		Deadline:      deadline,
		PublishedDate: ParseDate(raw.PublishedDate, ref),
		Status:        deriveStatus(raw.Status, deadline, today),
		Themes:        []string{ClassifyTheme(raw.Tags, title, raw.CountryScope)},
		CountryScope:  splitScope(raw.CountryScope),
		AmountMin:     amountMin,
		AmountMax:     amountMax,
		Currency:      currency,
		SourceTags:    append([]string{}, raw.Tags...),
	}, true
}

// passesFilters applies requireDeadline and futureOnly. A raw deadline that
// did not parse counts as missing for requireDeadline and as not-future for
// futureOnly.
func passesFilters(raw RawOpportunity, opp models.Opportunity, opts NormalizeOptions, today string) bool {
	if opts.RequireDeadline && !opp.HasDeadline() {
		return false
	}
	if opts.FutureOnly {
		if opp.HasDeadline() && opp.Deadline <= today {
			return false
		}
		if !opp.HasDeadline() && strings.TrimSpace(raw.Deadline) != "" {
			return false
		}
	}
	return true
}
