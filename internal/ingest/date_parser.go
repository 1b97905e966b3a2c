package ingest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const isoDate = "2006-01-02"

// monthNames maps lowercased English, French, Spanish and Arabic month names
// and common abbreviations to their month.
var monthNames = map[string]time.Month{
	"january": time.January, "jan": time.January, "janvier": time.January, "janv": time.January, "enero": time.January, "ene": time.January, "يناير": time.January,
	"february": time.February, "feb": time.February, "février": time.February, "fevrier": time.February, "févr": time.February, "fevr": time.February, "fév": time.February, "febrero": time.February, "فبراير": time.February,
	"march": time.March, "mar": time.March, "mars": time.March, "marzo": time.March, "مارس": time.March,
	"april": time.April, "apr": time.April, "avril": time.April, "avr": time.April, "abril": time.April, "abr": time.April, "أبريل": time.April, "ابريل": time.April,
	"may": time.May, "mai": time.May, "mayo": time.May, "مايو": time.May,
	"june": time.June, "jun": time.June, "juin": time.June, "junio": time.June, "يونيو": time.June,
	"july": time.July, "jul": time.July, "juillet": time.July, "juil": time.July, "julio": time.July, "يوليو": time.July,
	"august": time.August, "aug": time.August, "août": time.August, "aout": time.August, "agosto": time.August, "ago": time.August, "أغسطس": time.August,
	"september": time.September, "sep": time.September, "sept": time.September, "septembre": time.September, "septiembre": time.September, "setiembre": time.September, "سبتمبر": time.September,
	"october": time.October, "oct": time.October, "octobre": time.October, "octubre": time.October, "أكتوبر": time.October,
	"november": time.November, "nov": time.November, "novembre": time.November, "noviembre": time.November, "نوفمبر": time.November,
	"december": time.December, "dec": time.December, "décembre": time.December, "decembre": time.December, "déc": time.December, "diciembre": time.December, "dic": time.December, "ديسمبر": time.December,
}

var (
	epochMillisRegex = regexp.MustCompile(`^\d{12,13}$`)
	isoDateRegex     = regexp.MustCompile(`(\d{4})[-/](\d{1,2})[-/](\d{1,2})`)
	numericDateRegex = regexp.MustCompile(`(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{4}|\d{2})`)
	// 15 March 2026, 1er mars 2026, 17 de junio del 2025, 03-Sep-2025
	dayMonthYearRegex = regexp.MustCompile(`(?i)(\d{1,2})(?:st|nd|rd|th|er)?[\s\-]+(?:de\s+)?(\p{L}+)\.?,?[\s\-]+(?:de\s+|del\s+)?(\d{4})`)
	// March 15, 2026
	monthDayYearRegex = regexp.MustCompile(`(?i)(\p{L}+)\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})`)
	dayMonthRegex     = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th|er)?\s+(?:de\s+)?(\p{L}+)`)
	monthDayRegex     = regexp.MustCompile(`(?i)(\p{L}+)\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b`)
)

// ParseDate converts a free-form date into YYYY-MM-DD. Day-month-year order
// is preferred; on ambiguity, and for dates without a year, the reading on or
// after ref wins. Unparseable input yields "".
func ParseDate(raw string, ref time.Time) string {
	t, err := parseDateRobust(raw, ref)
	if err != nil {
		return ""
	}
	return t.Format(isoDate)
}

func parseDateRobust(text string, ref time.Time) (time.Time, error) {
	text = cleanDateString(text)
	if text == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	today := truncateDay(ref)

	if epochMillisRegex.MatchString(text) {
		ms, _ := strconv.ParseInt(text, 10, 64)
		return truncateDay(time.UnixMilli(ms)), nil
	}

	if m := isoDateRegex.FindStringSubmatch(text); m != nil {
		if t, ok := makeDate(atoi(m[1]), atoi(m[2]), atoi(m[3])); ok {
			return t, nil
		}
	}

	if m := numericDateRegex.FindStringSubmatch(text); m != nil {
		if t, ok := resolveNumeric(atoi(m[1]), atoi(m[2]), expandYear(m[3]), today); ok {
			return t, nil
		}
	}

	lower := strings.ToLower(text)

	for _, m := range dayMonthYearRegex.FindAllStringSubmatch(lower, -1) {
		if month, ok := lookupMonth(m[2]); ok {
			if t, ok := makeDate(atoi(m[3]), int(month), atoi(m[1])); ok {
				return t, nil
			}
		}
	}
	for _, m := range monthDayYearRegex.FindAllStringSubmatch(lower, -1) {
		if month, ok := lookupMonth(m[1]); ok {
			if t, ok := makeDate(atoi(m[3]), int(month), atoi(m[2])); ok {
				return t, nil
			}
		}
	}

	// No year: roll forward to the next occurrence.
	for _, m := range dayMonthRegex.FindAllStringSubmatch(lower, -1) {
		if month, ok := lookupMonth(m[2]); ok {
			if t, ok := nextOccurrence(month, atoi(m[1]), today); ok {
				return t, nil
			}
		}
	}
	for _, m := range monthDayRegex.FindAllStringSubmatch(lower, -1) {
		if month, ok := lookupMonth(m[1]); ok {
			if t, ok := nextOccurrence(month, atoi(m[2]), today); ok {
				return t, nil
			}
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse date: %s", text)
}

// resolveNumeric picks between the DD/MM and MM/DD readings of a numeric date.
func resolveNumeric(a, b, year int, today time.Time) (time.Time, bool) {
	dmy, dmyOK := makeDate(year, b, a)
	mdy, mdyOK := makeDate(year, a, b)
	switch {
	case dmyOK && !mdyOK:
		return dmy, true
	case mdyOK && !dmyOK:
		return mdy, true
	case !dmyOK && !mdyOK:
		return time.Time{}, false
	}
	if dmy.Before(today) && !mdy.Before(today) {
		return mdy, true
	}
	return dmy, true
}

func nextOccurrence(month time.Month, day int, today time.Time) (time.Time, bool) {
	for year := today.Year(); year <= today.Year()+4; year++ {
		t, ok := makeDate(year, int(month), day)
		if ok && !t.Before(today) {
			return t, true
		}
	}
	return time.Time{}, false
}

// makeDate builds a UTC date and refuses values time.Date would normalize.
func makeDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 || year < 1900 || year > 2200 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}

func lookupMonth(word string) (time.Month, bool) {
	m, ok := monthNames[strings.TrimSuffix(word, ".")]
	return m, ok
}

func expandYear(s string) int {
	y := atoi(s)
	if len(s) == 2 {
		y += 2000
	}
	return y
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

var datePrefixes = []string{
	"application deadline", "closing date", "deadline", "closing", "closes", "due date", "expires", "ends",
	"publication date", "published", "opening", "open",
	"date limite", "clôture", "cloture", "ouverture",
	"fecha límite", "fecha de cierre", "cierre",
}

// cleanDateString strips a leading label such as "Deadline:" and collapses whitespace.
func cleanDateString(s string) string {
	s = normalizeSpace(s)
	lower := strings.ToLower(s)
	for _, p := range datePrefixes {
		if strings.HasPrefix(lower, p) {
			rest := strings.TrimLeft(s[len(p):], " :-–")
			if rest != s[len(p):] || rest == "" {
				return strings.TrimSpace(rest)
			}
		}
	}
	return s
}
