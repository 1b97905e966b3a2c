package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// MockFetcher serves canned bodies keyed by URL. Keys ending in "*" match
// any URL with that prefix.
type MockFetcher struct {
	Data        map[string][]byte
	ContentType map[string]string

	mu       sync.Mutex
	requests []mockRequest
}

type mockRequest struct {
	Method      string
	URL         string
	ContentType string
	Body        []byte
}

func (m *MockFetcher) Fetch(_ context.Context, url string) (*FetchedDocument, error) {
	return m.serve(mockRequest{Method: http.MethodGet, URL: url})
}

func (m *MockFetcher) Post(_ context.Context, url, contentType string, body []byte) (*FetchedDocument, error) {
	return m.serve(mockRequest{Method: http.MethodPost, URL: url, ContentType: contentType, Body: body})
}

func (m *MockFetcher) serve(req mockRequest) (*FetchedDocument, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	content, key, ok := m.lookup(req.URL)
	if !ok {
		return nil, fmt.Errorf("mock 404: %s", req.URL)
	}
	ct := m.ContentType[key]
	if ct == "" {
		ct = "text/html; charset=utf-8"
	}
	return &FetchedDocument{
		URL:         req.URL,
		StatusCode:  http.StatusOK,
		ContentType: ct,
		Body:        io.NopCloser(bytes.NewReader(content)),
		Headers:     make(http.Header),
		FetchedAt:   time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
	}, nil
}

func (m *MockFetcher) lookup(url string) ([]byte, string, bool) {
	if content, ok := m.Data[url]; ok {
		return content, url, true
	}
	for k, v := range m.Data {
		if strings.HasSuffix(k, "*") && strings.HasPrefix(url, strings.TrimSuffix(k, "*")) {
			return v, k, true
		}
	}
	return nil, "", false
}

func (m *MockFetcher) Requests() []mockRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockRequest(nil), m.requests...)
}

// stubScraper returns fixed cards for every listing URL.
type stubScraper struct {
	items []ListPageItem
	err   error
	urls  []string
}

func (s *stubScraper) ScrapeListPage(_ context.Context, pageURL string, _ ListSelectors) ([]ListPageItem, error) {
	s.urls = append(s.urls, pageURL)
	return s.items, s.err
}

// fixedNow pins connector clocks to 2025-06-01.
func fixedNow() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) }
