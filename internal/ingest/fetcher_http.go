package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const (
	defaultUserAgent = "Mozilla/5.0 (compatible; anansi/1.0; +https://github.com/david/anansi)"
	maxBodyBytes     = 10 << 20
)

var blockedPrefixStrings = []string{
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
}

var blockedPrefixes = func() []netip.Prefix {
	prefixes := make([]netip.Prefix, 0, len(blockedPrefixStrings))
	for _, s := range blockedPrefixStrings {
		if p, err := netip.ParsePrefix(s); err == nil {
			prefixes = append(prefixes, p)
		}
	}
	return prefixes
}()

type cachedResponse struct {
	body        []byte
	contentType string
	headers     http.Header
}

// RateLimitedFetcher provides per-domain rate limiting, retries with backoff
// and a short-lived GET cache so a run never downloads the same page twice.
type RateLimitedFetcher struct {
	clients       map[string]*http.Client
	limiters      map[string]*rate.Limiter
	configs       map[string]FetchConfig
	defaultConfig FetchConfig
	cache         *gocache.Cache
	allowPrivate  bool
	mu            sync.RWMutex
}

// FetcherOption customises a RateLimitedFetcher.
type FetcherOption func(*RateLimitedFetcher)

// WithPrivateNetworks disables the private-address guard. Only tests and
// local development need this.
func WithPrivateNetworks() FetcherOption {
	return func(f *RateLimitedFetcher) { f.allowPrivate = true }
}

// WithCacheTTL sets how long successful GET responses are reused. Zero disables caching.
func WithCacheTTL(ttl time.Duration) FetcherOption {
	return func(f *RateLimitedFetcher) {
		if ttl <= 0 {
			f.cache = nil
			return
		}
		f.cache = gocache.New(ttl, 2*ttl)
	}
}

// NewRateLimitedFetcher creates a new rate-limited fetcher with default config.
func NewRateLimitedFetcher(defaultConfig FetchConfig, opts ...FetcherOption) *RateLimitedFetcher {
	defaultConfig = withFetchDefaults(defaultConfig)
	f := &RateLimitedFetcher{
		clients:       make(map[string]*http.Client),
		limiters:      make(map[string]*rate.Limiter),
		configs:       make(map[string]FetchConfig),
		defaultConfig: defaultConfig,
		cache:         gocache.New(10*time.Minute, 20*time.Minute),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func withFetchDefaults(cfg FetchConfig) FetchConfig {
	if cfg.TimeoutSeconds == 0 {
		cfg.TimeoutSeconds = 30
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 1.0
	}
	if cfg.AcceptLanguage == "" {
		cfg.AcceptLanguage = "en-US,en;q=0.8,fr;q=0.6"
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	return cfg
}

// Configure registers source-specific fetch settings for the host of rawURL.
func (f *RateLimitedFetcher) Configure(rawURL string, cfg FetchConfig) {
	domain, err := getDomain(rawURL)
	if err != nil || domain == "" {
		return
	}
	cfg = withFetchDefaults(cfg)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs[domain] = cfg
	delete(f.clients, domain)
	f.limiters[domain] = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), 1)
}

// ConfigureSource applies src.Fetch to the hosts of its base URL and seeds.
func (f *RateLimitedFetcher) ConfigureSource(src SourceConfig) {
	if src.BaseURL != "" {
		f.Configure(src.BaseURL, src.Fetch)
	}
	for _, seed := range src.Seeds {
		if abs := resolveURL(src.BaseURL, seed); abs != "" {
			f.Configure(abs, src.Fetch)
		}
	}
}

func getDomain(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return u.Host, nil
}

func (f *RateLimitedFetcher) configFor(domain string) FetchConfig {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if cfg, ok := f.configs[domain]; ok {
		return cfg
	}
	return f.defaultConfig
}

// getClient returns or creates the HTTP client and limiter for a domain.
func (f *RateLimitedFetcher) getClient(domain string, config FetchConfig) (*http.Client, *rate.Limiter) {
	f.mu.RLock()
	client, exists := f.clients[domain]
	limiter := f.limiters[domain]
	f.mu.RUnlock()
	if exists && limiter != nil {
		return client, limiter
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if client, exists := f.clients[domain]; exists && f.limiters[domain] != nil {
		return client, f.limiters[domain]
	}

	dial := safeDialContext
	checkRedirect := safeCheckRedirect
	if f.allowPrivate {
		dial = (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext
		checkRedirect = nil
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dial,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if config.ProxyURL != "" {
		if proxyURL, err := url.Parse(config.ProxyURL); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	client = &http.Client{
		Timeout:       time.Duration(config.TimeoutSeconds) * time.Second,
		Transport:     transport,
		CheckRedirect: checkRedirect,
	}
	f.clients[domain] = client

	if f.limiters[domain] == nil {
		f.limiters[domain] = rate.NewLimiter(rate.Limit(config.RateLimitRPS), 1)
	}
	return client, f.limiters[domain]
}

// safeDialContext wraps the default dialer to block private IPs
func safeDialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	d := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	for _, ip := range ips {
		if isPrivateIP(ip.IP) {
			return nil, fmt.Errorf("blocked private IP: %s", ip.IP)
		}
	}

	return d.DialContext(ctx, network, addr)
}

// isPrivateIP checks if an IP is in a private range or loopback/link-local
func isPrivateIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	if ip.IsLoopback() || ip.IsLinkLocalMulticast() || ip.IsLinkLocalUnicast() || ip.IsMulticast() || ip.IsPrivate() || ip.IsUnspecified() {
		return true
	}
	if addr, ok := netip.AddrFromSlice(ip); ok {
		for _, prefix := range blockedPrefixes {
			if prefix.Contains(addr.Unmap()) {
				return true
			}
		}
	}
	return false
}

// safeCheckRedirect limits redirects and validates destinations
func safeCheckRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return fmt.Errorf("stopped after 10 redirects")
	}
	if req.URL == nil {
		return fmt.Errorf("invalid redirect URL")
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return fmt.Errorf("redirect scheme blocked")
	}

	host := req.URL.Hostname()
	if host == "" {
		return fmt.Errorf("redirect host missing")
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".local") {
		return fmt.Errorf("redirect to internal host blocked")
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return err
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return fmt.Errorf("redirect to private IP blocked: %s", ip)
		}
	}
	return nil
}

// shouldRetry determines if an error or status code should trigger a retry
func shouldRetry(err error, statusCode int) bool {
	if err != nil {
		netErr, ok := err.(interface{ Timeout() bool })
		return ok && netErr.Timeout()
	}
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Fetch implements Fetcher with a GET request.
func (f *RateLimitedFetcher) Fetch(ctx context.Context, rawURL string) (*FetchedDocument, error) {
	if f.cache != nil {
		if v, ok := f.cache.Get(rawURL); ok {
			c := v.(cachedResponse)
			return &FetchedDocument{
				URL:         rawURL,
				StatusCode:  http.StatusOK,
				ContentType: c.contentType,
				Body:        io.NopCloser(bytes.NewReader(c.body)),
				FetchedAt:   time.Now(),
				Headers:     c.headers,
			}, nil
		}
	}

	doc, body, err := f.do(ctx, http.MethodGet, rawURL, "", nil)
	if err != nil {
		return nil, err
	}
	if f.cache != nil {
		f.cache.SetDefault(rawURL, cachedResponse{body: body, contentType: doc.ContentType, headers: doc.Headers})
	}
	return doc, nil
}

// Post sends body to rawURL with the rate limit and retry policy of Fetch.
// Responses are never cached.
func (f *RateLimitedFetcher) Post(ctx context.Context, rawURL, contentType string, body []byte) (*FetchedDocument, error) {
	doc, _, err := f.do(ctx, http.MethodPost, rawURL, contentType, body)
	return doc, err
}

func (f *RateLimitedFetcher) do(ctx context.Context, method, rawURL, contentType string, payload []byte) (*FetchedDocument, []byte, error) {
	domain, err := getDomain(rawURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid URL: %w", err)
	}
	config := f.configFor(domain)
	client, limiter := f.getClient(domain, config)

	var lastErr error
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 0.5s, 1s, 2s + jitter
			backoff := time.Duration(500*(1<<uint(attempt-1))) * time.Millisecond
			jitter := time.Duration(rand.Intn(100)) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-time.After(backoff + jitter):
			}
		}
		if err := limiter.Wait(ctx); err != nil {
			return nil, nil, err
		}

		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", config.UserAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json,application/pdf;q=0.9,*/*;q=0.8")
		req.Header.Set("Accept-Language", config.AcceptLanguage)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			if shouldRetry(err, 0) {
				continue
			}
			return nil, nil, fmt.Errorf("failed to execute request: %w", err)
		}

		if resp.StatusCode == http.StatusOK {
			body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
			resp.Body.Close()
			if err != nil {
				return nil, nil, fmt.Errorf("read body: %w", err)
			}
			return &FetchedDocument{
				URL:         rawURL,
				StatusCode:  resp.StatusCode,
				ContentType: resp.Header.Get("Content-Type"),
				Body:        io.NopCloser(bytes.NewReader(body)),
				FetchedAt:   time.Now(),
				Headers:     resp.Header,
			}, body, nil
		}

		resp.Body.Close()
		if shouldRetry(nil, resp.StatusCode) {
			lastErr = fmt.Errorf("status code %d", resp.StatusCode)
			continue
		}
		return nil, nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil, nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
