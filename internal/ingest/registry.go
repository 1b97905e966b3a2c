package ingest

import (
	"embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed config/sources.yaml
var sourcesYAML embed.FS

// Registry holds the configuration for all data sources.
type Registry struct {
	Sources []SourceConfig `yaml:"sources"`
}

// FetchConfig defines HTTP fetching configuration for a source.
type FetchConfig struct {
	TimeoutSeconds int     `yaml:"timeout_seconds,omitempty"` // Default: 30
	MaxRetries     int     `yaml:"max_retries,omitempty"`     // Default: 2
	RateLimitRPS   float64 `yaml:"rate_limit_rps,omitempty"`  // Requests per second, default: 1.0
	ProxyURL       string  `yaml:"proxy_url,omitempty"`
	AcceptLanguage string  `yaml:"accept_language,omitempty"` // e.g., "en,fr;q=0.9"
	UserAgent      string  `yaml:"user_agent,omitempty"`
}

// SourceConfig defines a single data source.
type SourceConfig struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`     // donor label stamped on records
	Strategy string   `yaml:"strategy"` // "api_eu_ft", "html_afd", "html_afdb", "api_worldbank", "html_listing"
	BaseURL  string   `yaml:"base_url,omitempty"`
	APIKey   string   `yaml:"api_key,omitempty"`
	Seeds    []string `yaml:"seed_urls,omitempty"`
	Disabled bool     `yaml:"disabled,omitempty"`

	SinceDays       int  `yaml:"since_days,omitempty"`
	OGPOnly         bool `yaml:"ogp_only,omitempty"`
	MaxItems        int  `yaml:"max_items,omitempty"`
	RequireDeadline bool `yaml:"require_deadline,omitempty"` // drop this source's records that lack a deadline

	Fetch     FetchConfig    `yaml:"fetch,omitempty"`
	Selectors SelectorConfig `yaml:"selectors,omitempty"`
}

// SelectorConfig drives the selector-based listing strategy.
type SelectorConfig struct {
	Container string `yaml:"container,omitempty"` // CSS selector for the list item wrapper
	Link      string `yaml:"link,omitempty"`
	LinkAttr  string `yaml:"link_attr,omitempty"` // Attribute to extract link from (default: href)
	Title     string `yaml:"title,omitempty"`
	Deadline  string `yaml:"deadline,omitempty"`
	Published string `yaml:"published,omitempty"`
	Country   string `yaml:"country,omitempty"`
	Status    string `yaml:"status,omitempty"`
	Amount    string `yaml:"amount,omitempty"`
}

// Options returns the fetch hints configured for the source.
func (s SourceConfig) Options() FetchOptions {
	return FetchOptions{SinceDays: s.SinceDays, OGPOnly: s.OGPOnly, MaxItems: s.MaxItems}
}

// Enabled returns the sources not marked disabled, in registry order.
func (r *Registry) Enabled() []SourceConfig {
	out := make([]SourceConfig, 0, len(r.Sources))
	for _, s := range r.Sources {
		if !s.Disabled {
			out = append(out, s)
		}
	}
	return out
}

// Find returns the source with the given id.
func (r *Registry) Find(id string) (*SourceConfig, bool) {
	for i := range r.Sources {
		if r.Sources[i].ID == id {
			return &r.Sources[i], true
		}
	}
	return nil, false
}

// LoadRegistry reads the embedded sources.yaml, or the file at path when it
// is non-empty, and expands ${ENV} references.
func LoadRegistry(path string) (*Registry, error) {
	var (
		data []byte
		err  error
	)
	if path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = sourcesYAML.ReadFile("config/sources.yaml")
	}
	if err != nil {
		return nil, fmt.Errorf("read source registry: %w", err)
	}
	return ParseRegistry(data)
}

// ParseRegistry decodes registry YAML after environment expansion.
func ParseRegistry(data []byte) (*Registry, error) {
	expanded := os.ExpandEnv(string(data))

	var reg Registry
	if err := yaml.Unmarshal([]byte(expanded), &reg); err != nil {
		return nil, fmt.Errorf("parse source registry: %w", err)
	}
	for i, s := range reg.Sources {
		if s.ID == "" || s.Strategy == "" {
			return nil, fmt.Errorf("source %d: id and strategy are required", i)
		}
		if s.Name == "" {
			reg.Sources[i].Name = s.ID
		}
	}
	return &reg, nil
}
