package ingest

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/david/anansi/internal/logger"
)

var afdbDeadlineRegex = regexp.MustCompile(`(?i)(?:Deadline|Closing|Closes|Application deadline)\s*(?:date|time|:)?\s*:?\s*(\d{1,2}\s+\p{L}+\s+\d{4}|\d{4}-\d{2}-\d{2})`)

// AfDB crawls African Development Bank programme pages on the SurveyMonkey
// Apply portal. Program links are discovered from the landing page and
// merged with the configured seed slugs.
type AfDB struct {
	src  SourceConfig
	http HTTPClient
	log  logger.Logger
	now  func() time.Time
}

func NewAfDB(src SourceConfig, deps Deps) (Connector, error) {
	if deps.HTTP == nil {
		return nil, fmt.Errorf("afdb: http client required")
	}
	if src.BaseURL == "" {
		return nil, fmt.Errorf("afdb: base_url required")
	}
	return &AfDB{
		src:  src,
		http: deps.HTTP,
		log:  deps.log().With(logger.String("source", src.ID)),
		now:  deps.now,
	}, nil
}

func (c *AfDB) Name() string { return c.src.ID }

func (c *AfDB) Fetch(ctx context.Context, opts FetchOptions) ([]RawOpportunity, error) {
	limit := maxItems(opts)
	ref := c.now()
	cutoff := cutoffDate(ref, opts.SinceDays)

	links := c.programLinks(ctx)
	if len(links) == 0 {
		return nil, fmt.Errorf("afdb: no program links found at %s", c.src.BaseURL)
	}

	var out []RawOpportunity
	for _, link := range links {
		if len(out) >= limit {
			break
		}
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		raw, ok := c.program(ctx, link, ref, cutoff, opts)
		if ok {
			out = append(out, raw)
		}
	}
	return out, nil
}

// programLinks returns landing-page program links followed by seed slugs,
// restricted to the portal host and deduplicated.
func (c *AfDB) programLinks(ctx context.Context) []string {
	var candidates []string
	if doc, err := c.http.Fetch(ctx, c.src.BaseURL); err != nil {
		c.log.Warn("Landing page fetch failed", logger.Err(err))
	} else if dom, _, err := readDocument(doc); err == nil && dom != nil {
		dom.Find("a[href*='/prog/']").Each(func(_ int, s *goquery.Selection) {
			href, _ := s.Attr("href")
			candidates = append(candidates, href)
		})
	}
	candidates = append(candidates, c.src.Seeds...)

	seen := make(map[string]struct{})
	var links []string
	for _, href := range candidates {
		abs := resolveURL(c.src.BaseURL, href)
		if abs == "" || !sameHost(abs, c.src.BaseURL) {
			continue
		}
		if _, dup := seen[abs]; dup {
			continue
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
	}
	return links
}

func (c *AfDB) program(ctx context.Context, link string, ref time.Time, cutoff string, opts FetchOptions) (RawOpportunity, bool) {
	doc, err := c.http.Fetch(ctx, link)
	if err != nil {
		c.log.Debug("Program fetch failed", logger.String("url", link), logger.Err(err))
		return RawOpportunity{}, false
	}
	dom, text, err := readDocument(doc)
	if err != nil || dom == nil {
		return RawOpportunity{}, false
	}

	title := normalizeSpace(dom.Find("h1, .program-title, .title").First().Text())
	if title == "" {
		title = normalizeSpace(dom.Find("title").First().Text())
	}
	if title == "" || !keepForOptions(title+" "+text, opts) {
		return RawOpportunity{}, false
	}

	var deadline string
	if m := afdbDeadlineRegex.FindStringSubmatch(text); m != nil {
		deadline = m[1]
	}
	if cutoff != "" && deadline != "" {
		if iso := ParseDate(deadline, ref); iso != "" && iso < cutoff {
			return RawOpportunity{}, false
		}
	}

	var status string
	lower := strings.ToLower(text)
	if strings.Contains(lower, "this program is closed") || strings.Contains(lower, "no longer accepting") {
		status = "closed"
	}

	return RawOpportunity{
		Title:    title,
		URL:      link,
		Donor:    c.src.Name,
		Deadline: deadline,
		Status:   status,
		Tags:     ClassifyTags(title + " " + text),
	}, true
}
