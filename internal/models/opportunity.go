package models

// Status values derived by the normalizer.
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// Opportunity is the canonical, immutable record produced from one or more
// raw connector records. Empty Deadline, PublishedDate and Status mean unknown.
type Opportunity struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Donor         string   `json:"donor"`
	URL           string   `json:"url"`
	Deadline      string   `json:"deadline,omitempty"`       // YYYY-MM-DD
	PublishedDate string   `json:"published_date,omitempty"` // YYYY-MM-DD
	Status        string   `json:"status,omitempty"`
	Themes        []string `json:"themes"`
	CountryScope  []string `json:"country_scope"`
	AmountMin     *float64 `json:"amount_min"`
	AmountMax     *float64 `json:"amount_max"`
	Currency      string   `json:"currency,omitempty"`
	SourceTags    []string `json:"source_tags"`
}

// Theme returns the primary theme.
func (o Opportunity) Theme() string {
	if len(o.Themes) == 0 {
		return ""
	}
	return o.Themes[0]
}

// HasDeadline reports whether a parsed deadline is present.
func (o Opportunity) HasDeadline() bool {
	return o.Deadline != ""
}
