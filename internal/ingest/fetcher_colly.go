package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
)

// CollyScraperConfig provides configuration for listing crawls.
type CollyScraperConfig struct {
	AllowedDomains  []string
	DomainDelay     time.Duration
	ParallelThreads int
	IgnoreRobotsTxt bool
	UserAgent       string
	RequestTimeout  time.Duration
	Headers         map[string]string
	ProxyURL        string
	MaxRetries      int
}

// CollyScraperConfigFrom maps a source FetchConfig onto scraper settings.
func CollyScraperConfigFrom(cfg FetchConfig) CollyScraperConfig {
	out := CollyScraperConfig{
		UserAgent:  cfg.UserAgent,
		ProxyURL:   cfg.ProxyURL,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.TimeoutSeconds > 0 {
		out.RequestTimeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	if cfg.RateLimitRPS > 0 {
		out.DomainDelay = time.Duration(float64(time.Second) / cfg.RateLimitRPS)
	}
	if cfg.AcceptLanguage != "" {
		out.Headers = map[string]string{"Accept-Language": cfg.AcceptLanguage}
	}
	return out
}

// ListSelectors locate cards on a listing page.
type ListSelectors struct {
	Container string
	Link      string // "" or "." means the container itself
	Title     string // "" means the link text
}

// ListPageItem represents an item extracted from a list page.
type ListPageItem struct {
	Title string
	Link  string
	Text  string // full card text, used for relevance checks
}

// ListScraper extracts cards from a listing page.
type ListScraper interface {
	ScrapeListPage(ctx context.Context, pageURL string, sel ListSelectors) ([]ListPageItem, error)
}

// CollyScraper crawls listing pages with politeness limits.
type CollyScraper struct {
	config CollyScraperConfig
}

// NewCollyScraper creates a new scraper with the given configuration.
func NewCollyScraper(config CollyScraperConfig) *CollyScraper {
	if config.UserAgent == "" {
		config.UserAgent = defaultUserAgent
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 30 * time.Second
	}
	if config.DomainDelay == 0 {
		config.DomainDelay = 1 * time.Second
	}
	if config.ParallelThreads == 0 {
		config.ParallelThreads = 2
	}
	return &CollyScraper{config: config}
}

func (s *CollyScraper) newCollector() *colly.Collector {
	opts := []colly.CollectorOption{
		colly.UserAgent(s.config.UserAgent),
		colly.MaxDepth(1),
		colly.DetectCharset(),
		colly.AllowURLRevisit(),
	}
	if len(s.config.AllowedDomains) > 0 {
		opts = append(opts, colly.AllowedDomains(s.config.AllowedDomains...))
	}
	if s.config.IgnoreRobotsTxt {
		opts = append(opts, colly.IgnoreRobotsTxt())
	}

	c := colly.NewCollector(opts...)
	_ = c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: s.config.ParallelThreads,
		Delay:       s.config.DomainDelay,
		RandomDelay: s.config.DomainDelay / 2,
	})
	c.SetRequestTimeout(s.config.RequestTimeout)

	if len(s.config.Headers) > 0 {
		c.OnRequest(func(r *colly.Request) {
			for k, v := range s.config.Headers {
				r.Headers.Set(k, v)
			}
		})
	}
	if s.config.ProxyURL != "" {
		_ = c.SetProxy(s.config.ProxyURL)
	}
	return c
}

// ScrapeListPage visits pageURL once and extracts one item per container match.
func (s *CollyScraper) ScrapeListPage(ctx context.Context, pageURL string, sel ListSelectors) ([]ListPageItem, error) {
	c := s.newCollector()

	var (
		mu        sync.Mutex
		items     []ListPageItem
		scrapeErr error
		retries   int
	)

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})

	c.OnHTML(sel.Container, func(e *colly.HTMLElement) {
		item := ListPageItem{Text: normalizeSpace(e.Text)}

		if sel.Link != "" && sel.Link != "." {
			item.Link = e.ChildAttr(sel.Link, "href")
			if sel.Title == "" {
				item.Title = normalizeSpace(e.DOM.Find(sel.Link).First().Text())
			}
		} else {
			item.Link = e.Attr("href")
			if sel.Title == "" {
				item.Title = item.Text
			}
		}
		if sel.Title != "" {
			item.Title = normalizeSpace(e.ChildText(sel.Title))
		}
		if item.Link != "" {
			item.Link = e.Request.AbsoluteURL(item.Link)
		}
		if item.Title == "" || item.Link == "" {
			return
		}

		mu.Lock()
		items = append(items, item)
		mu.Unlock()
	})

	c.OnError(func(r *colly.Response, err error) {
		if retries < s.config.MaxRetries && ctx.Err() == nil {
			retries++
			time.Sleep(time.Duration(retries) * time.Second)
			if rerr := r.Request.Retry(); rerr == nil {
				return
			}
		}
		mu.Lock()
		scrapeErr = fmt.Errorf("scrape %s: %w", r.Request.URL, err)
		mu.Unlock()
	})

	if err := c.Visit(pageURL); err != nil {
		return nil, fmt.Errorf("visit %s: %w", pageURL, err)
	}
	c.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if scrapeErr != nil {
		return nil, scrapeErr
	}
	return items, nil
}
