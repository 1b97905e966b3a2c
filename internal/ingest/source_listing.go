package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/david/anansi/internal/logger"
)

// HTMLListing extracts records from a listing page using the CSS selectors
// configured for the source. Each container match becomes one record.
type HTMLListing struct {
	src  SourceConfig
	http HTTPClient
	log  logger.Logger
	now  func() time.Time
}

func NewHTMLListing(src SourceConfig, deps Deps) (Connector, error) {
	if deps.HTTP == nil {
		return nil, fmt.Errorf("%s: http client required", src.ID)
	}
	if src.Selectors.Container == "" {
		return nil, fmt.Errorf("%s: selector 'container' is required for html_listing strategy", src.ID)
	}
	return &HTMLListing{
		src:  src,
		http: deps.HTTP,
		log:  deps.log().With(logger.String("source", src.ID)),
		now:  deps.now,
	}, nil
}

func (c *HTMLListing) Name() string { return c.src.ID }

func (c *HTMLListing) Fetch(ctx context.Context, opts FetchOptions) ([]RawOpportunity, error) {
	limit := maxItems(opts)
	ref := c.now()
	cutoff := cutoffDate(ref, opts.SinceDays)

	pages := c.src.Seeds
	if len(pages) == 0 {
		pages = []string{c.src.BaseURL}
	}

	seen := make(map[string]struct{})
	var (
		out      []RawOpportunity
		firstErr error
	)
	for _, page := range pages {
		if len(out) >= limit {
			break
		}
		pageURL := resolveURL(c.src.BaseURL, page)
		if pageURL == "" {
			pageURL = page
		}
		doc, err := c.http.Fetch(ctx, pageURL)
		if err != nil {
			c.log.Warn("Listing fetch failed", logger.String("url", pageURL), logger.Err(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		dom, _, err := readDocument(doc)
		if err != nil || dom == nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("listing %s is not html", pageURL)
			}
			continue
		}

		container := dom.Find(c.src.Selectors.Container)
		c.log.Debug("Listing page parsed", logger.String("url", pageURL), logger.Int("items", container.Length()))

		container.EachWithBreak(func(_ int, s *goquery.Selection) bool {
			raw, ok := c.extract(s, pageURL)
			if !ok {
				return true
			}
			if _, dup := seen[raw.URL]; dup {
				return true
			}
			seen[raw.URL] = struct{}{}
			if cutoff != "" && raw.PublishedDate != "" {
				if iso := ParseDate(raw.PublishedDate, ref); iso != "" && iso < cutoff {
					return true
				}
			}
			if !keepForOptions(raw.Title+" "+normalizeSpace(s.Text()), opts) {
				return true
			}
			out = append(out, raw)
			return len(out) < limit
		})
	}
	if len(out) == 0 && firstErr != nil {
		return nil, fmt.Errorf("%s listing: %w", c.src.ID, firstErr)
	}
	return out, nil
}

func (c *HTMLListing) extract(s *goquery.Selection, pageURL string) (RawOpportunity, bool) {
	sel := c.src.Selectors

	title := childText(s, sel.Title)
	linkAttr := sel.LinkAttr
	if linkAttr == "" {
		linkAttr = "href"
	}
	var link string
	if sel.Link == "" || sel.Link == "." {
		link, _ = s.Attr(linkAttr)
	} else {
		link, _ = s.Find(sel.Link).First().Attr(linkAttr)
		if title == "" {
			title = normalizeSpace(s.Find(sel.Link).First().Text())
		}
	}
	link = resolveURL(pageURL, link)
	if title == "" || link == "" {
		return RawOpportunity{}, false
	}

	return RawOpportunity{
		Title:         title,
		URL:           link,
		Donor:         c.src.Name,
		Deadline:      childText(s, sel.Deadline),
		PublishedDate: childText(s, sel.Published),
		Status:        childText(s, sel.Status),
		Tags:          ClassifyTags(title + " " + normalizeSpace(s.Text())),
		CountryScope:  childText(s, sel.Country),
		Amount:        childText(s, sel.Amount),
	}, true
}

// childText returns the normalized text of the first match of selector under
// s. An empty selector yields "".
func childText(s *goquery.Selection, selector string) string {
	if strings.TrimSpace(selector) == "" {
		return ""
	}
	return normalizeSpace(s.Find(selector).First().Text())
}
