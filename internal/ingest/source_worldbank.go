package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	wbPageSize     = 100
	wbDetailPrefix = "https://projects.worldbank.org/en/projects-operations/procurement-detail/"
	wbFieldList    = "id,bid_description,project_name,notice_type,noticedate,submission_deadline_date,project_ctry_name,notice_status"
)

// WorldBank reads procurement notices from the World Bank search API.
type WorldBank struct {
	src  SourceConfig
	http HTTPClient
	now  func() time.Time
}

func NewWorldBank(src SourceConfig, deps Deps) (Connector, error) {
	if deps.HTTP == nil {
		return nil, fmt.Errorf("wb: http client required")
	}
	if src.BaseURL == "" {
		return nil, fmt.Errorf("wb: base_url required")
	}
	return &WorldBank{src: src, http: deps.HTTP, now: deps.now}, nil
}

func (c *WorldBank) Name() string { return c.src.ID }

type wbResponse struct {
	ProcNotices []wbNotice `json:"procnotices"`
}

type wbNotice struct {
	ID             string `json:"id"`
	BidDescription string `json:"bid_description"`
	ProjectName    string `json:"project_name"`
	NoticeType     string `json:"notice_type"`
	NoticeDate     string `json:"noticedate"`
	Deadline       string `json:"submission_deadline_date"`
	Country        string `json:"project_ctry_name"`
	Status         string `json:"notice_status"`
}

func (c *WorldBank) Fetch(ctx context.Context, opts FetchOptions) ([]RawOpportunity, error) {
	limit := maxItems(opts)
	ref := c.now()
	cutoff := cutoffDate(ref, opts.SinceDays)

	var out []RawOpportunity
	for offset := 0; len(out) < limit; offset += wbPageSize {
		resp, err := c.page(ctx, offset, cutoff)
		if err != nil {
			if offset == 0 {
				return nil, err
			}
			break
		}
		for _, n := range resp.ProcNotices {
			if cutoff != "" {
				if iso := ParseDate(n.NoticeDate, ref); iso != "" && iso < cutoff {
					continue
				}
			}
			raw, ok := c.toRaw(n)
			if !ok || !keepForOptions(raw.Title+" "+n.ProjectName+" "+n.NoticeType, opts) {
				continue
			}
			out = append(out, raw)
			if len(out) >= limit {
				break
			}
		}
		if len(resp.ProcNotices) < wbPageSize {
			break
		}
	}
	return out, nil
}

func (c *WorldBank) page(ctx context.Context, offset int, cutoff string) (*wbResponse, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("rows", strconv.Itoa(wbPageSize))
	q.Set("os", strconv.Itoa(offset))
	q.Set("fl", wbFieldList)
	if cutoff != "" {
		q.Set("strdate", cutoff)
	}
	endpoint := c.src.BaseURL + "?" + q.Encode()

	doc, err := c.http.Fetch(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("wb fetch offset %d: %w", offset, err)
	}
	defer doc.Body.Close()
	data, err := io.ReadAll(doc.Body)
	if err != nil {
		return nil, fmt.Errorf("wb read offset %d: %w", offset, err)
	}
	var resp wbResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("wb decode offset %d: %w", offset, err)
	}
	return &resp, nil
}

func (c *WorldBank) toRaw(n wbNotice) (RawOpportunity, bool) {
	title := strings.TrimSpace(n.BidDescription)
	if title == "" {
		title = strings.TrimSpace(n.ProjectName)
	}
	if title == "" || n.ID == "" {
		return RawOpportunity{}, false
	}
	return RawOpportunity{
		Title:         title,
		URL:           wbDetailPrefix + n.ID,
		Donor:         c.src.Name,
		Deadline:      n.Deadline,
		PublishedDate: n.NoticeDate,
		Status:        n.Status,
		Tags:          ClassifyTags(title + " " + n.ProjectName),
		CountryScope:  n.Country,
	}, true
}
