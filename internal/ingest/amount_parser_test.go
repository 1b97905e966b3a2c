package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		min, max float64
		currency string
	}{
		{"range with code", "USD 50,000 - 100,000", 50000, 100000, "USD"},
		{"single value", "EUR 250,000", 250000, 250000, "EUR"},
		{"euro symbol with million", "€1.5 million", 1.5e6, 1.5e6, "EUR"},
		{"french grouping", "1 000 000 FCFA", 1e6, 1e6, "XOF"},
		{"european decimals", "EUR 1.250.000,50", 1250000.5, 1250000.5, "EUR"},
		{"lower bound inherits magnitude", "USD 1-3M", 1e6, 3e6, "USD"},
		{"reversed range", "up to 100,000 from 50,000", 50000, 100000, ""},
		{"year dropped when crowded", "2025 call: EUR 50,000 - 100,000", 50000, 100000, "EUR"},
		{"dollar symbol", "$75k", 75000, 75000, "USD"},
		{"pound", "£2bn", 2e9, 2e9, "GBP"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			min, max, currency := ParseAmount(tt.raw)
			require.NotNil(t, min)
			require.NotNil(t, max)
			assert.InDelta(t, tt.min, *min, 0.001)
			assert.InDelta(t, tt.max, *max, 0.001)
			assert.Equal(t, tt.currency, currency)
		})
	}
}

func TestParseAmountWithoutNumbers(t *testing.T) {
	for _, raw := range []string{"", "to be confirmed", "USD"} {
		min, max, currency := ParseAmount(raw)
		assert.Nil(t, min, raw)
		assert.Nil(t, max, raw)
		assert.Empty(t, currency, raw)
	}
}
