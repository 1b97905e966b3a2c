package ingest

import (
	"context"
	"io"
	"time"
)

// RawOpportunity is the untrusted, unnormalized record a connector emits.
// Optional free-form fields are empty when the source did not provide them.
type RawOpportunity struct {
	Title         string
	URL           string
	Donor         string
	Deadline      string
	PublishedDate string
	Status        string // connector hint, not authoritative
	Tags          []string
	CountryScope  string
	Amount        string
}

// FetchOptions are best-effort hints passed to every connector.
type FetchOptions struct {
	SinceDays int  // lookback window, 0 means unbounded
	OGPOnly   bool // keep only open-government relevant items
	MaxItems  int  // 0 means connector default
}

// Connector fetches raw opportunities from one source. An empty result is
// not an error; transport and parse failures are.
type Connector interface {
	Name() string
	Fetch(ctx context.Context, opts FetchOptions) ([]RawOpportunity, error)
}

// FetchedDocument represents the raw result of a fetch operation.
type FetchedDocument struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        io.ReadCloser
	FetchedAt   time.Time
	Headers     map[string][]string
}

// Fetcher retrieves raw content from a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchedDocument, error)
}
