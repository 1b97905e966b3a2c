package ingest

import (
	"net/url"
	"strings"
)

// normalizeSpace collapses runs of whitespace into one space and trims the string.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// containsAny reports whether the lowercased text contains any of the needles.
func containsAny(text string, needles []string) bool {
	t := strings.ToLower(text)
	for _, n := range needles {
		if strings.Contains(t, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

// splitScope splits a separator-joined country/region string.
func splitScope(block string) []string {
	parts := strings.FieldsFunc(block, func(r rune) bool {
		switch r {
		case ';', ',', '/', '|':
			return true
		}
		return false
	})

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := normalizeSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// resolveURL resolves href against base, returning "" for unusable links.
func resolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return b.ResolveReference(ref).String()
}

func sameHost(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return strings.EqualFold(ua.Host, ub.Host)
}
