package ingest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDeps(m *MockFetcher) Deps {
	return Deps{HTTP: m, Now: fixedNow}
}

func TestDefaultFactoryStrategies(t *testing.T) {
	assert.Equal(t,
		[]string{"api_eu_ft", "api_worldbank", "html_afd", "html_afdb", "html_listing"},
		DefaultFactory.Strategies())

	reg, err := LoadRegistry("")
	require.NoError(t, err)
	deps := Deps{HTTP: &MockFetcher{}, Scraper: func(SourceConfig) ListScraper { return &stubScraper{} }}
	for _, src := range reg.Sources {
		c, err := DefaultFactory.Build(src, deps)
		require.NoError(t, err, src.ID)
		assert.Equal(t, src.ID, c.Name())
	}
}

func TestFactoryUnknownStrategy(t *testing.T) {
	_, err := DefaultFactory.Build(SourceConfig{ID: "x", Strategy: "ftp"}, Deps{})
	assert.ErrorContains(t, err, "strategy not found")
}

func TestFactoryBuilderError(t *testing.T) {
	_, err := DefaultFactory.Build(SourceConfig{ID: "undp", Strategy: "html_listing"}, Deps{HTTP: &MockFetcher{}})
	assert.ErrorContains(t, err, "container")
}

type recordingConnector struct {
	calls   []FetchOptions
	results [][]RawOpportunity
	err     error
}

func (r *recordingConnector) Name() string { return "rec" }

func (r *recordingConnector) Fetch(_ context.Context, opts FetchOptions) ([]RawOpportunity, error) {
	r.calls = append(r.calls, opts)
	if r.err != nil {
		return nil, r.err
	}
	i := len(r.calls) - 1
	if i < len(r.results) {
		return r.results[i], nil
	}
	return nil, nil
}

func TestBroadFallback(t *testing.T) {
	narrow := FetchOptions{SinceDays: 120, OGPOnly: true, MaxItems: 10}

	t.Run("retries once when empty", func(t *testing.T) {
		inner := &recordingConnector{results: [][]RawOpportunity{nil, {{Title: "x"}}}}
		items, err := WithBroadFallback(inner, nil).Fetch(context.Background(), narrow)
		require.NoError(t, err)
		assert.Len(t, items, 1)
		require.Len(t, inner.calls, 2)
		assert.Equal(t, FetchOptions{MaxItems: 10}, inner.calls[1])
	})

	t.Run("no retry with results", func(t *testing.T) {
		inner := &recordingConnector{results: [][]RawOpportunity{{{Title: "x"}}}}
		_, err := WithBroadFallback(inner, nil).Fetch(context.Background(), narrow)
		require.NoError(t, err)
		assert.Len(t, inner.calls, 1)
	})

	t.Run("no retry on error", func(t *testing.T) {
		inner := &recordingConnector{err: errors.New("boom")}
		_, err := WithBroadFallback(inner, nil).Fetch(context.Background(), narrow)
		assert.Error(t, err)
		assert.Len(t, inner.calls, 1)
	})

	t.Run("already broad", func(t *testing.T) {
		inner := &recordingConnector{}
		items, err := WithBroadFallback(inner, nil).Fetch(context.Background(), FetchOptions{})
		require.NoError(t, err)
		assert.Empty(t, items)
		assert.Len(t, inner.calls, 1)
	})

	t.Run("not double wrapped", func(t *testing.T) {
		c := WithBroadFallback(&recordingConnector{}, nil)
		assert.Same(t, c, WithBroadFallback(c, nil))
	})
}

const euFixture = `{
  "totalResults": 3,
  "results": [
    {
      "title": "HORIZON-X-01",
      "url": "https://ec.europa.eu/info/funding-tenders/opportunities/data/topicDetails/HORIZON-X-01.json",
      "summary": "Open data for accountability",
      "metadata": {
        "identifier": ["HORIZON-X-01"],
        "title": ["Open data for accountability"],
        "deadlineDate": ["2025-09-17T17:00:00.000+0200"],
        "status": ["31094502"],
        "publicationDate": ["2025-04-01T00:00:00.000+0200"],
        "budget": [2500000]
      }
    },
    {
      "title": "Road construction tender",
      "url": "https://ec.europa.eu/tender/2",
      "metadata": {"status": ["31094502"]}
    },
    {
      "title": "Civic participation in local budgets",
      "url": "https://ec.europa.eu/call/3",
      "metadata": {
        "teaser": ["Deadline: 30 September 2025. Apply online."],
        "status": ["31094501"],
        "geographicalZonesText": ["Senegal", "Mali"]
      }
    }
  ]
}`

func TestEUFundingTendersFetch(t *testing.T) {
	m := &MockFetcher{Data: map[string][]byte{"https://eu.test/search*": []byte(euFixture)}}
	c, err := NewEUFundingTenders(SourceConfig{ID: "eu", Name: "EU F&T", BaseURL: "https://eu.test/search"}, testDeps(m))
	require.NoError(t, err)

	items, err := c.Fetch(context.Background(), FetchOptions{SinceDays: 120, OGPOnly: true})
	require.NoError(t, err)
	require.Len(t, items, 2)

	first := items[0]
	assert.Equal(t, "Open data for accountability", first.Title)
	assert.Equal(t, euTopicURLPrefix+"horizon-x-01", first.URL)
	assert.Equal(t, "2025-09-17T17:00:00.000+0200", first.Deadline)
	assert.Equal(t, "open", first.Status)
	assert.Equal(t, "EU F&T", first.Donor)
	assert.Equal(t, "2500000", first.Amount)

	second := items[1]
	assert.Equal(t, "30 September 2025", second.Deadline)
	assert.Equal(t, "forthcoming", second.Status)
	assert.Equal(t, "Senegal; Mali", second.CountryScope)
	assert.Equal(t, "https://ec.europa.eu/call/3", second.URL)

	reqs := m.Requests()
	require.Len(t, reqs, 1)
	req := reqs[0]
	assert.Equal(t, "POST", req.Method)
	assert.Contains(t, req.URL, "apiKey=SEDIA")
	assert.Contains(t, req.URL, "pageNumber=1")
	assert.Contains(t, req.URL, "governance")

	mediaType, params, err := mime.ParseMediaType(req.ContentType)
	require.NoError(t, err)
	assert.Equal(t, "multipart/form-data", mediaType)

	parts := map[string]string{}
	mr := multipart.NewReader(bytes.NewReader(req.Body), params["boundary"])
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		body, _ := io.ReadAll(p)
		assert.Equal(t, "application/json", p.Header.Get("Content-Type"))
		assert.Equal(t, "blob", p.FileName())
		parts[p.FormName()] = string(body)
	}
	assert.Contains(t, parts["query"], `"gte":"2025-02-01"`)
	assert.Contains(t, parts["query"], euStatusUpcoming)
	assert.JSONEq(t, `["en"]`, parts["languages"])
	assert.JSONEq(t, `{"field":"sortStatus","order":"ASC"}`, parts["sort"])
}

func TestEUFundingTendersBroadQuery(t *testing.T) {
	m := &MockFetcher{Data: map[string][]byte{"https://eu.test/search*": []byte(`{"results":[]}`)}}
	c, err := NewEUFundingTenders(SourceConfig{ID: "eu", BaseURL: "https://eu.test/search", APIKey: "k1"}, testDeps(m))
	require.NoError(t, err)

	items, err := c.Fetch(context.Background(), FetchOptions{})
	require.NoError(t, err)
	assert.Empty(t, items)

	req := m.Requests()[0]
	assert.Contains(t, req.URL, "apiKey=k1")
	assert.Contains(t, req.URL, "text=%2A")
	assert.NotContains(t, string(req.Body), "publicationDate")
}

func TestEUFundingTendersError(t *testing.T) {
	c, err := NewEUFundingTenders(SourceConfig{ID: "eu", BaseURL: "https://eu.test/search"}, testDeps(&MockFetcher{}))
	require.NoError(t, err)
	_, err = c.Fetch(context.Background(), FetchOptions{})
	assert.ErrorContains(t, err, "eu search page 1")
}

const wbFixture = `{
  "procnotices": [
    {"id": "OP001", "bid_description": "Consultancy for open budget portal", "project_name": "PFM reform",
     "notice_type": "Request for Expression of Interest", "noticedate": "03-May-2025",
     "submission_deadline_date": "2025-07-15T00:00:00Z", "project_ctry_name": "Kenya", "notice_status": "Published"},
    {"id": "OP002", "bid_description": "Civic tech audit", "noticedate": "10-Jan-2025"},
    {"id": "OP003", "bid_description": "Supply of road vehicles", "noticedate": "20-May-2025"},
    {"id": "", "bid_description": "Transparency study", "noticedate": "20-May-2025"}
  ]
}`

func TestWorldBankFetch(t *testing.T) {
	m := &MockFetcher{Data: map[string][]byte{"https://wb.test/api*": []byte(wbFixture)}}
	c, err := NewWorldBank(SourceConfig{ID: "wb", Name: "World Bank", BaseURL: "https://wb.test/api"}, testDeps(m))
	require.NoError(t, err)

	items, err := c.Fetch(context.Background(), FetchOptions{SinceDays: 120, OGPOnly: true})
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, "Consultancy for open budget portal", items[0].Title)
	assert.Equal(t, wbDetailPrefix+"OP001", items[0].URL)
	assert.Equal(t, "World Bank", items[0].Donor)
	assert.Equal(t, "Kenya", items[0].CountryScope)
	assert.Equal(t, "2025-07-15T00:00:00Z", items[0].Deadline)

	req := m.Requests()[0]
	assert.Equal(t, "GET", req.Method)
	assert.Contains(t, req.URL, "strdate=2025-02-01")
	assert.Contains(t, req.URL, "rows=100")
	assert.Contains(t, req.URL, "format=json")
}

func TestWorldBankDecodeError(t *testing.T) {
	m := &MockFetcher{Data: map[string][]byte{"https://wb.test/api*": []byte(`<html>maintenance</html>`)}}
	c, err := NewWorldBank(SourceConfig{ID: "wb", BaseURL: "https://wb.test/api"}, testDeps(m))
	require.NoError(t, err)
	_, err = c.Fetch(context.Background(), FetchOptions{})
	assert.ErrorContains(t, err, "wb decode")
}

func TestAFDFetch(t *testing.T) {
	scraper := &stubScraper{items: []ListPageItem{
		{Title: "Appel à projets gouvernance locale", Link: "https://afd.test/call/1"},
		{Title: "Open data challenge", Link: "https://afd.test/call/2"},
		{Title: "Old call on participation", Link: "https://afd.test/call/3"},
		{Title: "Missing page civic", Link: "https://afd.test/call/4"},
		{Title: "Open data challenge", Link: "https://afd.test/call/2"},
	}}
	m := &MockFetcher{Data: map[string][]byte{
		"https://afd.test/call/1": []byte(`<html><body><h1>Appel à projets gouvernance locale</h1>
			<div class="field--name-field-country">Senegal</div>
			<p>Opening date: 01/05/2025</p><p>Closing date: 30/09/2025</p></body></html>`),
		"https://afd.test/call/2": []byte(`<html><body><h1>Open data challenge</h1><p>Ouverture : 15 mai 2025</p></body></html>`),
		"https://afd.test/call/3": []byte(`<html><body><p>Opening: 2024-01-01</p><p>Closing: 2024-03-01</p></body></html>`),
	}}
	deps := testDeps(m)
	deps.Scraper = func(SourceConfig) ListScraper { return scraper }

	c, err := NewAFD(SourceConfig{ID: "afd", Name: "AFD", BaseURL: "https://afd.test", Seeds: []string{"/en/calls"}}, deps)
	require.NoError(t, err)

	items, err := c.Fetch(context.Background(), FetchOptions{SinceDays: 365, OGPOnly: true})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, []string{"https://afd.test/en/calls"}, scraper.urls)

	assert.Equal(t, "30/09/2025", items[0].Deadline)
	assert.Equal(t, "01/05/2025", items[0].PublishedDate)
	assert.Equal(t, "Senegal", items[0].CountryScope)
	assert.Empty(t, items[0].Status)
	assert.Equal(t, "AFD", items[0].Donor)

	assert.Empty(t, items[1].Deadline)
	assert.Equal(t, "forthcoming", items[1].Status)
}

func TestAFDListingFailure(t *testing.T) {
	deps := testDeps(&MockFetcher{})
	deps.Scraper = func(SourceConfig) ListScraper { return &stubScraper{err: errors.New("timeout")} }
	c, err := NewAFD(SourceConfig{ID: "afd", BaseURL: "https://afd.test", Seeds: []string{"/en/calls"}}, deps)
	require.NoError(t, err)
	_, err = c.Fetch(context.Background(), FetchOptions{})
	assert.ErrorContains(t, err, "afd listing")
}

func TestAfDBFetch(t *testing.T) {
	m := &MockFetcher{Data: map[string][]byte{
		"https://afdb.test/": []byte(`<html><body>
			<a href="/prog/open_data_call/">Open data</a>
			<a href="https://other.test/prog/x/">Elsewhere</a>
			<a href="/prog/old_call/">Old</a>
			<a href="/about">About</a></body></html>`),
		"https://afdb.test/prog/open_data_call/": []byte(`<html><head><title>Portal</title></head><body>
			<h1>Open Data Call for Proposals</h1><p>Application deadline: 30 September 2025</p></body></html>`),
		"https://afdb.test/prog/old_call/": []byte(`<html><body><h1>Civic participation grants</h1>
			<p>Deadline: 01 March 2024</p></body></html>`),
		"https://afdb.test/prog/civic_fund/": []byte(`<html><head><title>Civic Space Fund</title></head><body><p>Rolling</p></body></html>`),
	}}
	c, err := NewAfDB(SourceConfig{
		ID: "afdb", Name: "AfDB", BaseURL: "https://afdb.test/",
		Seeds: []string{"/prog/open_data_call/", "/prog/civic_fund/"},
	}, testDeps(m))
	require.NoError(t, err)

	items, err := c.Fetch(context.Background(), FetchOptions{SinceDays: 365, OGPOnly: true})
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "Open Data Call for Proposals", items[0].Title)
	assert.Equal(t, "https://afdb.test/prog/open_data_call/", items[0].URL)
	assert.Equal(t, "30 September 2025", items[0].Deadline)
	assert.Equal(t, "Civic Space Fund", items[1].Title)
	assert.Empty(t, items[1].Deadline)

	for _, r := range m.Requests() {
		assert.NotContains(t, r.URL, "other.test")
	}
	assert.True(t, strings.HasPrefix(items[0].URL, "https://afdb.test/"))
}

const listingFixture = `<html><body>
<a class="row" href="/view_notice.cfm?notice_id=1">
  <div class="title"><span>Digital governance consultancy</span></div>
  <div class="office"><span>UNDP Kenya</span></div>
  <div class="deadline"><span>30 September 2025</span></div>
  <div class="posted"><span>01 May 2025</span></div>
</a>
<a class="row" href="/view_notice.cfm?notice_id=2">
  <div class="title"><span>Open data: sale of vehicles by auction</span></div>
</a>
<a class="row" href="/view_notice.cfm?notice_id=3">
  <div class="title"><span>Open data survey</span></div>
  <div class="posted"><span>01 January 2025</span></div>
</a>
<a class="row" href="/view_notice.cfm?notice_id=1">
  <div class="title"><span>Digital governance consultancy (copy)</span></div>
</a>
<a class="row" href="#">
  <div class="title"><span>Broken link transparency</span></div>
</a>
</body></html>`

func TestHTMLListingFetch(t *testing.T) {
	m := &MockFetcher{Data: map[string][]byte{"https://undp.test/": []byte(listingFixture)}}
	src := SourceConfig{
		ID: "undp", Name: "UNDP", BaseURL: "https://undp.test/",
		Selectors: SelectorConfig{
			Container: "a.row", Link: ".", Title: ".title span",
			Country: ".office span", Deadline: ".deadline span", Published: ".posted span",
		},
	}
	c, err := NewHTMLListing(src, testDeps(m))
	require.NoError(t, err)

	items, err := c.Fetch(context.Background(), FetchOptions{SinceDays: 120, OGPOnly: true})
	require.NoError(t, err)
	require.Len(t, items, 1)

	got := items[0]
	assert.Equal(t, "Digital governance consultancy", got.Title)
	assert.Equal(t, "https://undp.test/view_notice.cfm?notice_id=1", got.URL)
	assert.Equal(t, "UNDP Kenya", got.CountryScope)
	assert.Equal(t, "30 September 2025", got.Deadline)
	assert.Equal(t, "01 May 2025", got.PublishedDate)
	assert.Equal(t, "UNDP", got.Donor)
}

func TestHTMLListingMaxItems(t *testing.T) {
	m := &MockFetcher{Data: map[string][]byte{"https://undp.test/": []byte(listingFixture)}}
	src := SourceConfig{ID: "undp", BaseURL: "https://undp.test/", Selectors: SelectorConfig{Container: "a.row", Title: ".title span"}}
	c, err := NewHTMLListing(src, testDeps(m))
	require.NoError(t, err)

	items, err := c.Fetch(context.Background(), FetchOptions{MaxItems: 2})
	require.NoError(t, err)
	assert.Len(t, items, 2)
}
