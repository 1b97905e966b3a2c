package ingest

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/david/anansi/internal/logger"
)

var (
	afdOpeningRegex = regexp.MustCompile(`(?i)(?:Opening|Ouverture)[^:]{0,40}:\s*(\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4}|\d{4}-\d{2}-\d{2}|\d{1,2}\s+\p{L}+\.?\s+\d{4})`)
	afdClosingRegex = regexp.MustCompile(`(?i)(?:Closing|Clôture|Cloture|Deadline|Date limite)[^:]{0,40}:\s*(\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4}|\d{4}-\d{2}-\d{2}|\d{1,2}\s+\p{L}+\.?\s+\d{4})`)
)

const afdScopeSelector = ".field--name-field-country, .field--name-field-geographical-area, .chips, .tags"

var afdListSelectors = ListSelectors{Container: "article, div.card, div.views-row", Link: "a"}

// AFD scrapes the Agence Française de Développement calls-for-projects
// listing and reads opening and closing dates from each detail page.
type AFD struct {
	src     SourceConfig
	http    HTTPClient
	scraper ListScraper
	log     logger.Logger
	now     func() time.Time
}

func NewAFD(src SourceConfig, deps Deps) (Connector, error) {
	if deps.HTTP == nil {
		return nil, fmt.Errorf("afd: http client required")
	}
	if len(src.Seeds) == 0 {
		return nil, fmt.Errorf("afd: at least one listing seed_url required")
	}
	return &AFD{
		src:     src,
		http:    deps.HTTP,
		scraper: deps.scraper(src),
		log:     deps.log().With(logger.String("source", src.ID)),
		now:     deps.now,
	}, nil
}

func (c *AFD) Name() string { return c.src.ID }

func (c *AFD) Fetch(ctx context.Context, opts FetchOptions) ([]RawOpportunity, error) {
	limit := maxItems(opts)
	ref := c.now()
	cutoff := cutoffDate(ref, opts.SinceDays)

	seen := make(map[string]struct{})
	var (
		out     []RawOpportunity
		listErr error
	)
	for _, seed := range c.src.Seeds {
		listing := resolveURL(c.src.BaseURL, seed)
		if listing == "" {
			listing = seed
		}
		cards, err := c.scraper.ScrapeListPage(ctx, listing, afdListSelectors)
		if err != nil {
			c.log.Warn("Listing scrape failed", logger.String("url", listing), logger.Err(err))
			listErr = err
			continue
		}
		for _, card := range cards {
			if len(out) >= limit {
				return out, nil
			}
			if _, dup := seen[card.Link]; dup {
				continue
			}
			seen[card.Link] = struct{}{}
			if !keepForOptions(card.Title+" "+card.Text, opts) {
				continue
			}
			raw, ok := c.detail(ctx, card, ref, cutoff)
			if ok {
				out = append(out, raw)
			}
		}
	}
	if len(out) == 0 && listErr != nil {
		return nil, fmt.Errorf("afd listing: %w", listErr)
	}
	return out, nil
}

// detail fetches one call page. Calls that opened before the cutoff and
// pages that fail to load are skipped.
func (c *AFD) detail(ctx context.Context, card ListPageItem, ref time.Time, cutoff string) (RawOpportunity, bool) {
	doc, err := c.http.Fetch(ctx, card.Link)
	if err != nil {
		c.log.Debug("Detail fetch failed", logger.String("url", card.Link), logger.Err(err))
		return RawOpportunity{}, false
	}
	dom, text, err := readDocument(doc)
	if err != nil {
		c.log.Debug("Detail parse failed", logger.String("url", card.Link), logger.Err(err))
		return RawOpportunity{}, false
	}

	var opening, closing string
	if m := afdOpeningRegex.FindStringSubmatch(text); m != nil {
		opening = m[1]
	}
	if m := afdClosingRegex.FindStringSubmatch(text); m != nil {
		closing = m[1]
	}
	if cutoff != "" && opening != "" {
		if iso := ParseDate(opening, ref); iso != "" && iso < cutoff {
			return RawOpportunity{}, false
		}
	}

	var status string
	if opening != "" && closing == "" {
		status = "forthcoming"
	}

	var scope string
	if dom != nil {
		scope = normalizeSpace(dom.Find(afdScopeSelector).First().Text())
	}

	return RawOpportunity{
		Title:         card.Title,
		URL:           card.Link,
		Donor:         c.src.Name,
		Deadline:      closing,
		PublishedDate: opening,
		Status:        status,
		Tags:          ClassifyTags(card.Title + " " + text),
		CountryScope:  scope,
	}, true
}
