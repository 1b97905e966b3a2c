package ingest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/david/anansi/internal/logger"
)

const defaultMaxItems = 60

// HTTPClient is the transport connectors use. RateLimitedFetcher implements it.
type HTTPClient interface {
	Fetcher
	Post(ctx context.Context, url, contentType string, body []byte) (*FetchedDocument, error)
}

// Deps are the shared collaborators handed to connector constructors.
type Deps struct {
	HTTP    HTTPClient
	Scraper func(SourceConfig) ListScraper // nil uses a colly scraper
	Log     logger.Logger
	Now     func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Deps) log() logger.Logger {
	if d.Log != nil {
		return d.Log
	}
	return logger.NewNop()
}

func (d Deps) scraper(src SourceConfig) ListScraper {
	if d.Scraper != nil {
		return d.Scraper(src)
	}
	return NewCollyScraper(CollyScraperConfigFrom(src.Fetch))
}

// ConnectorBuilder constructs a connector for one registry entry.
type ConnectorBuilder func(src SourceConfig, deps Deps) (Connector, error)

// ConnectorFactory maps strategy IDs (from sources.yaml) to builders.
type ConnectorFactory struct {
	builders map[string]ConnectorBuilder
}

func NewConnectorFactory() *ConnectorFactory {
	return &ConnectorFactory{builders: make(map[string]ConnectorBuilder)}
}

func (f *ConnectorFactory) Register(strategy string, b ConnectorBuilder) {
	f.builders[strategy] = b
}

// Strategies lists registered strategy IDs.
func (f *ConnectorFactory) Strategies() []string {
	out := make([]string, 0, len(f.builders))
	for k := range f.builders {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Build returns the connector for src wrapped with the broad-query fallback.
func (f *ConnectorFactory) Build(src SourceConfig, deps Deps) (Connector, error) {
	b, ok := f.builders[src.Strategy]
	if !ok {
		return nil, fmt.Errorf("strategy not found: %s", src.Strategy)
	}
	c, err := b(src, deps)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", src.ID, err)
	}
	return WithBroadFallback(c, deps.log()), nil
}

// DefaultFactory knows every built-in strategy.
var DefaultFactory = NewConnectorFactory()

func init() {
	DefaultFactory.Register("api_eu_ft", NewEUFundingTenders)
	DefaultFactory.Register("api_worldbank", NewWorldBank)
	DefaultFactory.Register("html_afdb", NewAfDB)
	DefaultFactory.Register("html_afd", NewAFD)
	DefaultFactory.Register("html_listing", NewHTMLListing)
}

// broadFallback retries a connector once with relaxed options when the
// first fetch succeeds but returns nothing.
type broadFallback struct {
	inner Connector
	log   logger.Logger
}

// WithBroadFallback wraps c so an empty result triggers one broader query.
func WithBroadFallback(c Connector, log logger.Logger) Connector {
	if _, ok := c.(*broadFallback); ok {
		return c
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &broadFallback{inner: c, log: log}
}

func (b *broadFallback) Name() string { return b.inner.Name() }

func (b *broadFallback) Fetch(ctx context.Context, opts FetchOptions) ([]RawOpportunity, error) {
	items, err := b.inner.Fetch(ctx, opts)
	if err != nil || len(items) > 0 {
		return items, err
	}
	broad := FetchOptions{MaxItems: opts.MaxItems}
	if broad == opts {
		return items, nil
	}
	b.log.Info("No results, retrying with broader query",
		logger.String("source", b.inner.Name()),
		logger.Int("since_days", opts.SinceDays),
		logger.Bool("ogp_only", opts.OGPOnly))
	return b.inner.Fetch(ctx, broad)
}

func maxItems(opts FetchOptions) int {
	if opts.MaxItems > 0 {
		return opts.MaxItems
	}
	return defaultMaxItems
}

// cutoffDate returns the ISO lower bound for a lookback window, or "".
func cutoffDate(now time.Time, sinceDays int) string {
	if sinceDays <= 0 {
		return ""
	}
	return truncateDay(now).AddDate(0, 0, -sinceDays).Format(isoDate)
}
