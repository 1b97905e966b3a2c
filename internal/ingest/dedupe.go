package ingest

import (
	"sort"
	"strings"

	"github.com/david/anansi/internal/models"
)

type dedupeKey struct {
	donor, title, deadline string
}

// Dedupe keeps the first record per non-empty URL, then the first record per
// (donor, title, deadline) compared case-insensitively.
func Dedupe(opps []models.Opportunity) []models.Opportunity {
	seenURLs := make(map[string]struct{}, len(opps))
	byURL := make([]models.Opportunity, 0, len(opps))
	for _, o := range opps {
		if o.URL != "" {
			if _, dup := seenURLs[o.URL]; dup {
				continue
			}
			seenURLs[o.URL] = struct{}{}
		}
		byURL = append(byURL, o)
	}

	seenKeys := make(map[dedupeKey]struct{}, len(byURL))
	out := make([]models.Opportunity, 0, len(byURL))
	for _, o := range byURL {
		k := dedupeKey{strings.ToLower(o.Donor), strings.ToLower(o.Title), o.Deadline}
		if _, dup := seenKeys[k]; dup {
			continue
		}
		seenKeys[k] = struct{}{}
		out = append(out, o)
	}
	return out
}

// SortByUrgency orders by deadline ascending, then publication date
// descending. Missing dates sort last in both keys. The sort is stable.
func SortByUrgency(opps []models.Opportunity) []models.Opportunity {
	sort.SliceStable(opps, func(i, j int) bool {
		a, b := opps[i], opps[j]
		if a.Deadline != b.Deadline {
			return dateBefore(a.Deadline, b.Deadline)
		}
		if a.PublishedDate != b.PublishedDate {
			return dateAfter(a.PublishedDate, b.PublishedDate)
		}
		return false
	})
	return opps
}

// dateBefore compares ISO dates with "" treated as infinitely late.
func dateBefore(a, b string) bool {
	switch {
	case a == "":
		return false
	case b == "":
		return true
	default:
		return a < b
	}
}

// dateAfter compares ISO dates with "" treated as infinitely old.
func dateAfter(a, b string) bool {
	switch {
	case a == "":
		return false
	case b == "":
		return true
	default:
		return a > b
	}
}
