package ingest

import "regexp"

// Canonical themes.
const (
	ThemeOpenGovernment = "Open Government"
	ThemeDigital        = "Digital Governance"
	ThemeAntiCorruption = "Anti-Corruption"
	ThemeCivicSpace     = "Civic Space"
	ThemeFiscal         = "Fiscal Openness"
	ThemeJustice        = "Justice and Rule of Law"
	ThemeGender         = "Gender and Inclusion"
	ThemeClimate        = "Climate and Environment"
	ThemeMedia          = "Media Freedom"
)

// Themes lists the taxonomy in display order.
var Themes = []string{
	ThemeOpenGovernment, ThemeDigital, ThemeAntiCorruption, ThemeCivicSpace, ThemeFiscal,
	ThemeJustice, ThemeGender, ThemeClimate, ThemeMedia,
}

// tagThemes maps connector tags to themes.
var tagThemes = map[string]string{
	TagDigital:        ThemeDigital,
	TagAntiCorruption: ThemeAntiCorruption,
	TagCivic:          ThemeCivicSpace,
	TagBudget:         ThemeFiscal,
	TagJustice:        ThemeJustice,
	TagGovernance:     ThemeOpenGovernment,
}

type keywordRule struct {
	pattern *regexp.Regexp
	theme   string
}

// keywordRules are checked in order; specific themes come before the broad
// governance rule that would otherwise shadow them.
var keywordRules = []keywordRule{
	{regexp.MustCompile(`(?i)\b(media|press|journalis[mt]\w*|broadcast\w*)\b`), ThemeMedia},
	{regexp.MustCompile(`(?i)\b(gender|women|girls|GBV|SGBV)\b`), ThemeGender},
	{regexp.MustCompile(`(?i)\b(climate|environment\w*|biodivers\w*|resilienc\w*|adaptation|mitigation)\b`), ThemeClimate},
	{regexp.MustCompile(`(?i)\b(open data|digital|e-?gov\w*|ICT|AI|data|cybersecurity)\b`), ThemeDigital},
	{regexp.MustCompile(`(?i)\b(anti-?corruption|integrity|illicit|brib\w*|procuremen\w*|transparen\w*|accountab\w*)\b`), ThemeAntiCorruption},
	{regexp.MustCompile(`(?i)\b(civic|participation|civil society|freedom of assembly|association)\b`), ThemeCivicSpace},
	{regexp.MustCompile(`(?i)\b(budget\w*|public finance|PFM|audit\w*|revenue|tax)\b`), ThemeFiscal},
	{regexp.MustCompile(`(?i)\b(justice|rule of law|courts?|legal aid|ADR|judici\w*)\b`), ThemeJustice},
	{regexp.MustCompile(`(?i)\b(governance|open government|accountable institutions?)\b`), ThemeOpenGovernment},
}

// ClassifyTheme picks one theme: the first tag with a mapping wins, then the
// first keyword rule matching title and scope text, then Open Government.
func ClassifyTheme(tags []string, title, scope string) string {
	for _, t := range tags {
		if theme, ok := tagThemes[t]; ok {
			return theme
		}
	}

	text := title + " " + scope
	for _, rule := range keywordRules {
		if rule.pattern.MatchString(text) {
			return rule.theme
		}
	}

	return ThemeOpenGovernment
}
