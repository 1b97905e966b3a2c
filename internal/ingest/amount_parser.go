package ingest

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	currencyCodeRegex = regexp.MustCompile(`(?i)\b(USD|EUR|GBP|MAD|CAD|AUD|CHF|JPY|XOF|XAF|ZAR|KES|NGN)\b`)
	// Grouped digits with space separators (French style) come first so
	// "1 000 000" is one token.
	amountNumberRegex = regexp.MustCompile(`(?i)(\d{1,3}(?:[ \x{00A0}\x{202F}]\d{3})+(?:[.,]\d+)?|\d[\d,.]*)\s*(k|mn|m|million|millions|bn|billion|billions|milliard|milliards)?\b`)
)

var currencySymbols = []struct {
	symbol string
	code   string
}{
	{"US$", "USD"},
	{"FCFA", "XOF"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"$", "USD"},
}

var amountMultipliers = map[string]float64{
	"k":         1e3,
	"m":         1e6,
	"mn":        1e6,
	"million":   1e6,
	"millions":  1e6,
	"bn":        1e9,
	"billion":   1e9,
	"billions":  1e9,
	"milliard":  1e9,
	"milliards": 1e9,
}

// ParseAmount extracts up to two numbers and a currency from free-form
// amount text. One number yields min == max. When no number is found every
// result is empty.
func ParseAmount(raw string) (min, max *float64, currency string) {
	values := parseAmountNumbers(raw)
	if len(values) == 0 {
		return nil, nil, ""
	}

	lo, hi := values[0], values[0]
	if len(values) > 1 {
		hi = values[1]
		if lo > hi {
			lo, hi = hi, lo
		}
	}
	return &lo, &hi, detectCurrency(raw)
}

func detectCurrency(text string) string {
	if m := currencyCodeRegex.FindString(text); m != "" {
		return strings.ToUpper(m)
	}
	for _, s := range currencySymbols {
		if strings.Contains(text, s.symbol) {
			return s.code
		}
	}
	return ""
}

func parseAmountNumbers(text string) []float64 {
	type token struct {
		value    float64
		mult     float64
		yearLike bool
	}
	var tokens []token
	for _, m := range amountNumberRegex.FindAllStringSubmatch(text, -1) {
		digits := strings.TrimRight(m[1], ".,")
		val, ok := parseNumberToken(digits)
		if !ok || val <= 0 {
			continue
		}
		mult, ok := amountMultipliers[strings.ToLower(m[2])]
		if !ok {
			mult = 1
		}
		yearLike := m[2] == "" && len(digits) == 4 && val >= 1900 && val <= 2100
		tokens = append(tokens, token{value: val * mult, mult: mult, yearLike: yearLike})
	}

	// "2025 call, EUR 50,000 - 100,000": drop year-like tokens when they
	// would crowd out real amounts.
	if len(tokens) > 2 {
		kept := tokens[:0]
		for _, t := range tokens {
			if !t.yearLike {
				kept = append(kept, t)
			}
		}
		tokens = kept
	}

	// "USD 1-3M": a bare lower bound inherits the upper bound's magnitude.
	if len(tokens) >= 2 && tokens[0].mult == 1 && tokens[1].mult > 1 && tokens[0].value*tokens[1].mult <= tokens[1].value {
		tokens[0].value *= tokens[1].mult
	}

	var out []float64
	for _, t := range tokens {
		out = append(out, t.value)
		if len(out) == 2 {
			break
		}
	}
	return out
}

// parseNumberToken resolves thousands and decimal separators in one token.
func parseNumberToken(s string) (float64, bool) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f':
			return -1
		}
		return r
	}, s)
	if s == "" {
		return 0, false
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		s = resolveSingleSeparator(s, ",")
	case lastDot >= 0:
		s = resolveSingleSeparator(s, ".")
	}

	val, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return val, true
}

// resolveSingleSeparator treats sep as a thousands separator when it repeats
// or is followed by exactly three digits, otherwise as the decimal point.
func resolveSingleSeparator(s, sep string) string {
	if strings.Count(s, sep) > 1 || len(s)-strings.LastIndex(s, sep)-1 == 3 {
		return strings.ReplaceAll(s, sep, "")
	}
	return strings.Replace(s, sep, ".", 1)
}
