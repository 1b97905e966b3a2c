package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david/anansi/internal/models"
)

var normalizeToday = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"  Call   for\nproposals  ", "Call for proposals"},
		{"<b>Civic &amp; open data</b> grants", "Civic & open data grants"},
		{"Call for proposals – ", "Call for proposals"},
		{"  ", ""},
		{"nav.css", ""},
		{"assets/app.js?v=2", ""},
		{"Home", ""},
		{"site-header", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanTitle(tt.raw), tt.raw)
	}
}

func TestFingerprintStable(t *testing.T) {
	a := Fingerprint("EU F&T", "https://a/1", "2025-03-01")
	b := Fingerprint("EU F&T", "https://a/1", "2025-03-01")
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)
	assert.NotEqual(t, a, Fingerprint("EU F&T", "https://a/1", "2025-03-02"))
	assert.Equal(t, Fingerprint("A", "x", ""), Fingerprint(" A ", "x", "  "))
}

func TestNormalizeIdempotentID(t *testing.T) {
	raw := RawOpportunity{Title: "Grant for open data", URL: "https://a/1", Deadline: "1 March 2025", Donor: "A"}
	first := Normalize([]RawOpportunity{raw}, NormalizeOptions{Today: normalizeToday})
	second := Normalize([]RawOpportunity{raw}, NormalizeOptions{Today: normalizeToday})
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, Fingerprint("A", "https://a/1", "2025-03-01"), first[0].ID)
}

func TestNormalizeDedup(t *testing.T) {
	t.Run("same donor and url", func(t *testing.T) {
		out := Normalize([]RawOpportunity{
			{Title: "Open data grant", URL: "https://a/1", Donor: "A", Deadline: "2025-03-01"},
			{Title: "Open Data Grant (updated)", URL: "https://a/1", Donor: "A", Deadline: "2025-03-05"},
		}, NormalizeOptions{Today: normalizeToday})
		require.Len(t, out, 1)
		assert.Equal(t, "Open data grant", out[0].Title)
	})

	t.Run("same donor title and deadline", func(t *testing.T) {
		out := Normalize([]RawOpportunity{
			{Title: "Grant for open data", URL: "https://a/1", Donor: "A", Deadline: "2025-03-01"},
			{Title: "grant for OPEN data", URL: "https://b/1", Donor: "a", Deadline: "01/03/2025"},
			{Title: "Grant for open data", Donor: "A", Deadline: "2025-03-01"},
		}, NormalizeOptions{Today: normalizeToday})
		require.Len(t, out, 1)
		assert.Equal(t, "https://a/1", out[0].URL)
	})

	t.Run("different deadlines are distinct", func(t *testing.T) {
		out := Normalize([]RawOpportunity{
			{Title: "Grant for open data", Donor: "A", Deadline: "2025-03-01"},
			{Title: "Grant for open data", Donor: "A", Deadline: "2025-09-01"},
		}, NormalizeOptions{Today: normalizeToday})
		assert.Len(t, out, 2)
	})
}

func TestNormalizeDropsGarbageTitles(t *testing.T) {
	out := Normalize([]RawOpportunity{
		{Title: "  ", URL: "https://a/1"},
		{Title: "nav.css", URL: "https://a/2"},
		{Title: "Menu", URL: "https://a/3"},
		{Title: "Real call", URL: "https://a/4"},
	}, NormalizeOptions{Today: normalizeToday})
	require.Len(t, out, 1)
	assert.Equal(t, "Real call", out[0].Title)
}

func TestNormalizeFutureOnly(t *testing.T) {
	out := Normalize([]RawOpportunity{
		{Title: "Past", URL: "https://a/past", Deadline: "2024-05-01"},
		{Title: "Today", URL: "https://a/today", Deadline: "2024-06-01"},
		{Title: "Future", URL: "https://a/future", Deadline: "2024-07-01"},
		{Title: "Unparseable", URL: "https://a/soon", Deadline: "soon-ish"},
		{Title: "No deadline", URL: "https://a/none"},
	}, NormalizeOptions{FutureOnly: true, Today: normalizeToday})

	titles := make([]string, 0, len(out))
	for _, o := range out {
		titles = append(titles, o.Title)
	}
	assert.Equal(t, []string{"Future", "No deadline"}, titles)
}

func TestNormalizeRequireDeadline(t *testing.T) {
	out := Normalize([]RawOpportunity{
		{Title: "With", URL: "https://a/1", Deadline: "2024-07-01"},
		{Title: "Without", URL: "https://a/2"},
		{Title: "Garbled", URL: "https://a/3", Deadline: "tbc"},
	}, NormalizeOptions{RequireDeadline: true, Today: normalizeToday})
	require.Len(t, out, 1)
	assert.Equal(t, "With", out[0].Title)
}

func TestNormalizeSortOrder(t *testing.T) {
	out := Normalize([]RawOpportunity{
		{Title: "July", URL: "https://a/1", Deadline: "2024-07-01"},
		{Title: "Mid June", URL: "https://a/2", Deadline: "2024-06-15"},
		{Title: "Open ended", URL: "https://a/3"},
	}, NormalizeOptions{Today: normalizeToday})
	require.Len(t, out, 3)
	assert.Equal(t, "2024-06-15", out[0].Deadline)
	assert.Equal(t, "2024-07-01", out[1].Deadline)
	assert.Equal(t, "", out[2].Deadline)
}

func TestNormalizeFields(t *testing.T) {
	out := Normalize([]RawOpportunity{{
		Title:         "Budget transparency &amp; climate",
		URL:           " https://a/1 ",
		Deadline:      "Deadline: 30 June 2024",
		PublishedDate: "2024-05-02",
		Tags:          []string{TagBudget},
		CountryScope:  "Kenya; Uganda / Tanzania||",
		Amount:        "USD 10,000 - 50,000",
	}}, NormalizeOptions{Today: normalizeToday})
	require.Len(t, out, 1)
	o := out[0]

	assert.Equal(t, "Budget transparency & climate", o.Title)
	assert.Equal(t, "Unknown", o.Donor)
	assert.Equal(t, "https://a/1", o.URL)
	assert.Equal(t, "2024-06-30", o.Deadline)
	assert.Equal(t, "2024-05-02", o.PublishedDate)
	assert.Equal(t, models.StatusOpen, o.Status)
	assert.Equal(t, []string{ThemeFiscal}, o.Themes)
	assert.Equal(t, []string{"Kenya", "Uganda", "Tanzania"}, o.CountryScope)
	require.NotNil(t, o.AmountMin)
	require.NotNil(t, o.AmountMax)
	assert.Equal(t, 10000.0, *o.AmountMin)
	assert.Equal(t, 50000.0, *o.AmountMax)
	assert.Equal(t, "USD", o.Currency)
	assert.Equal(t, []string{TagBudget}, o.SourceTags)
}

func TestNormalizeStatusWithoutDeadline(t *testing.T) {
	out := Normalize([]RawOpportunity{
		{Title: "Hinted", URL: "https://a/1", Status: "Forthcoming"},
		{Title: "Silent", URL: "https://a/2"},
		{Title: "Lapsed", URL: "https://a/3", Deadline: "2024-01-10"},
	}, NormalizeOptions{Today: normalizeToday})
	require.Len(t, out, 3)

	byTitle := map[string]models.Opportunity{}
	for _, o := range out {
		byTitle[o.Title] = o
	}
	assert.Equal(t, models.StatusOpen, byTitle["Hinted"].Status)
	assert.Equal(t, "", byTitle["Silent"].Status)
	assert.Equal(t, models.StatusClosed, byTitle["Lapsed"].Status)
	assert.Empty(t, byTitle["Silent"].CountryScope)
}

func TestSortByUrgencyTiebreak(t *testing.T) {
	opps := []models.Opportunity{
		{ID: "a", Deadline: "2024-07-01"},
		{ID: "b", Deadline: "2024-07-01", PublishedDate: "2024-05-01"},
		{ID: "c", Deadline: "2024-07-01", PublishedDate: "2024-05-20"},
		{ID: "d"},
		{ID: "e", PublishedDate: "2024-05-01"},
	}
	SortByUrgency(opps)

	ids := make([]string, 0, len(opps))
	for _, o := range opps {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []string{"c", "b", "a", "e", "d"}, ids)
}

func TestHTMLToText(t *testing.T) {
	assert.Equal(t, "Call for proposals Open now", HTMLToText("<div><h1>Call for proposals</h1>\n<p>Open now</p></div>"))
}
