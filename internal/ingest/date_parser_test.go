package ingest

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseDate(t *testing.T) {
	ref := time.Date(2025, 6, 1, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"iso", "2025-03-15", "2025-03-15"},
		{"iso with time", "2025-09-17T17:00:00.000+0200", "2025-09-17"},
		{"iso slashes", "2025/9/7", "2025-09-07"},
		{"english day month year", "15 March 2026", "2026-03-15"},
		{"ordinal suffix", "1st July 2025", "2025-07-01"},
		{"french", "1er mars 2026", "2026-03-01"},
		{"french accents", "12 décembre 2025", "2025-12-12"},
		{"spanish", "17 de junio del 2025", "2025-06-17"},
		{"month first", "March 15, 2026", "2026-03-15"},
		{"abbreviated month", "Sept. 30, 2025", "2025-09-30"},
		{"hyphenated", "03-Sep-2025", "2025-09-03"},
		{"labelled", "Deadline: 30 September 2025", "2025-09-30"},
		{"french label", "Date limite : 15/10/2025", "2025-10-15"},
		{"numeric day first", "05/04/2025", "2025-04-05"},
		{"numeric prefers future reading", "08/05/2025", "2025-08-05"},
		{"numeric only month first valid", "04/25/2025", "2025-04-25"},
		{"two digit year", "15.10.25", "2025-10-15"},
		{"no year upcoming", "15 June", "2025-06-15"},
		{"no year rolls over", "15 May", "2026-05-15"},
		{"embedded in sentence", "Applications close on 30 November 2025 at noon", "2025-11-30"},
		{"arabic month", "15 مارس 2026", "2026-03-15"},
		{"invalid numeric", "13/25/2025", ""},
		{"impossible day", "31 February 2025", ""},
		{"words only", "soon-ish", ""},
		{"empty", "", ""},
		{"whitespace", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseDate(tt.raw, ref))
		})
	}
}

func TestParseDateEpochMillis(t *testing.T) {
	ms := time.Date(2025, 10, 1, 8, 0, 0, 0, time.UTC).UnixMilli()
	assert.Equal(t, "2025-10-01", ParseDate(strconv.FormatInt(ms, 10), time.Now()))
}

func TestCleanDateString(t *testing.T) {
	assert.Equal(t, "30 June 2025", cleanDateString("  Closing date:   30 June 2025 "))
	assert.Equal(t, "12 May 2025", cleanDateString("Opening 12 May 2025"))
	assert.Equal(t, "openness index", cleanDateString("openness index"))
}
