package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	euDefaultAPIKey  = "SEDIA"
	euPageSize       = 50
	euStatusOpen     = "31094502"
	euStatusUpcoming = "31094501"
	euTopicURLPrefix = "https://ec.europa.eu/info/funding-tenders/opportunities/portal/screen/opportunities/topic-details/"
)

var (
	euDeadlineKeys = []string{"deadlineDate", "submissionDeadlineDate", "tenderDeadlineDate", "endDate", "deadline", "closingDate"}
	euDeadlineText = regexp.MustCompile(`(?i)(?:Deadline|Closing)\s*[:\-]?\s*(\d{1,2}\s+\w+\s+\d{4}|\d{4}-\d{2}-\d{2})`)
)

// EUFundingTenders queries the EU Funding & Tenders search API for open and
// forthcoming grants and tenders.
type EUFundingTenders struct {
	src  SourceConfig
	http HTTPClient
	now  func() time.Time
}

func NewEUFundingTenders(src SourceConfig, deps Deps) (Connector, error) {
	if deps.HTTP == nil {
		return nil, fmt.Errorf("eu: http client required")
	}
	if src.BaseURL == "" {
		return nil, fmt.Errorf("eu: base_url required")
	}
	return &EUFundingTenders{src: src, http: deps.HTTP, now: deps.now}, nil
}

func (c *EUFundingTenders) Name() string { return c.src.ID }

type euSearchResponse struct {
	TotalResults int        `json:"totalResults"`
	Results      []euResult `json:"results"`
}

type euResult struct {
	Reference string                     `json:"reference"`
	Title     string                     `json:"title"`
	Summary   string                     `json:"summary"`
	Content   string                     `json:"content"`
	URL       string                     `json:"url"`
	Metadata  map[string]json.RawMessage `json:"metadata"`
}

func (c *EUFundingTenders) Fetch(ctx context.Context, opts FetchOptions) ([]RawOpportunity, error) {
	limit := maxItems(opts)
	cutoff := cutoffDate(c.now(), opts.SinceDays)

	var out []RawOpportunity
	for page := 1; len(out) < limit; page++ {
		resp, err := c.search(ctx, page, opts, cutoff)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			break
		}
		for _, r := range resp.Results {
			raw, ok := c.toRaw(r)
			if !ok || !keepForOptions(raw.Title+" "+r.Summary+" "+r.Content, opts) {
				continue
			}
			out = append(out, raw)
			if len(out) >= limit {
				break
			}
		}
		if len(resp.Results) < euPageSize || page*euPageSize >= resp.TotalResults {
			break
		}
	}
	return out, nil
}

func (c *EUFundingTenders) search(ctx context.Context, page int, opts FetchOptions, cutoff string) (*euSearchResponse, error) {
	apiKey := c.src.APIKey
	if apiKey == "" {
		apiKey = euDefaultAPIKey
	}
	text := "*"
	if opts.OGPOnly {
		text = strings.Join(ogpSearchTerms, " OR ")
	}
	q := url.Values{}
	q.Set("apiKey", apiKey)
	q.Set("text", text)
	q.Set("pageSize", strconv.Itoa(euPageSize))
	q.Set("pageNumber", strconv.Itoa(page))
	endpoint := c.src.BaseURL + "?" + q.Encode()

	body, contentType, err := euQueryBody(cutoff)
	if err != nil {
		return nil, err
	}
	doc, err := c.http.Post(ctx, endpoint, contentType, body)
	if err != nil {
		return nil, fmt.Errorf("eu search page %d: %w", page, err)
	}
	defer doc.Body.Close()

	data, err := io.ReadAll(doc.Body)
	if err != nil {
		return nil, fmt.Errorf("eu read page %d: %w", page, err)
	}
	var resp euSearchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("eu decode page %d: %w", page, err)
	}
	return &resp, nil
}

// ogpSearchTerms is the short keyword list sent as the API full-text query.
var ogpSearchTerms = []string{
	"governance", "transparency", "accountability", "open data", "civic",
	"anti-corruption", "integrity", "public finance", "digital", "participation",
}

// euQueryBody builds the multipart form the search API expects: query,
// languages and sort parts, each a JSON blob.
func euQueryBody(cutoff string) ([]byte, string, error) {
	must := []any{
		map[string]any{"terms": map[string]any{"type": []string{"1", "2"}}},
		map[string]any{"terms": map[string]any{"status": []string{euStatusOpen, euStatusUpcoming}}},
	}
	if cutoff != "" {
		must = append(must, map[string]any{"range": map[string]any{"publicationDate": map[string]string{"gte": cutoff}}})
	}
	parts := []struct {
		name  string
		value any
	}{
		{"query", map[string]any{"bool": map[string]any{"must": must}}},
		{"languages", []string{"en"}},
		{"sort", map[string]string{"field": "sortStatus", "order": "ASC"}},
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename="blob"`, p.name))
		h.Set("Content-Type", "application/json")
		pw, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if err := json.NewEncoder(pw).Encode(p.value); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func (c *EUFundingTenders) toRaw(r euResult) (RawOpportunity, bool) {
	title := metaString(r.Metadata, "title")
	if title == "" {
		title = r.Title
	}
	if title == "" {
		title = r.Content
	}
	if strings.TrimSpace(title) == "" {
		return RawOpportunity{}, false
	}

	deadline := metaString(r.Metadata, euDeadlineKeys...)
	if deadline == "" {
		for _, text := range []string{metaString(r.Metadata, "teaser"), title, r.Summary} {
			if m := euDeadlineText.FindStringSubmatch(text); m != nil {
				deadline = m[1]
				break
			}
		}
	}

	link := r.URL
	if id := metaString(r.Metadata, "identifier"); id != "" && (link == "" || strings.HasSuffix(link, ".json")) {
		link = euTopicURLPrefix + strings.ToLower(id)
	}

	var status string
	switch metaString(r.Metadata, "status") {
	case euStatusOpen:
		status = "open"
	case euStatusUpcoming:
		status = "forthcoming"
	}

	scope := metaString(r.Metadata, "geographicalZonesText", "geographicalZones")

	return RawOpportunity{
		Title:         title,
		URL:           link,
		Donor:         c.src.Name,
		Deadline:      deadline,
		PublishedDate: metaString(r.Metadata, "publicationDate", "startDate"),
		Status:        status,
		Tags:          ClassifyTags(title + " " + r.Summary),
		CountryScope:  scope,
		Amount:        metaString(r.Metadata, "budget", "budgetOverview"),
	}, true
}

// metaString returns the first non-empty value among keys. Metadata values
// arrive as strings, numbers or arrays of either; arrays are joined with "; ".
func metaString(meta map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		raw, ok := meta[k]
		if !ok {
			continue
		}
		if s := rawJSONString(raw); s != "" {
			return s
		}
	}
	return ""
}

func rawJSONString(raw json.RawMessage) string {
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		var parts []string
		for _, item := range list {
			if s := rawJSONString(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
