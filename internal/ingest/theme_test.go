package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyTheme(t *testing.T) {
	tests := []struct {
		name  string
		tags  []string
		title string
		scope string
		want  string
	}{
		{"tag beats keyword", []string{TagBudget}, "Climate resilience fund", "", ThemeFiscal},
		{"first mapped tag wins", []string{"unknown", TagJustice, TagDigital}, "", "", ThemeJustice},
		{"governance tag", []string{TagGovernance}, "Independent media", "", ThemeOpenGovernment},
		{"media before governance", nil, "Media and governance programme", "", ThemeMedia},
		{"gender", nil, "Women's leadership in local councils", "", ThemeGender},
		{"climate", nil, "Biodiversity monitoring", "", ThemeClimate},
		{"digital", nil, "Open data platform", "", ThemeDigital},
		{"anti-corruption", nil, "E-procurement reform", "", ThemeAntiCorruption},
		{"civic", nil, "Civil society small grants", "", ThemeCivicSpace},
		{"fiscal", nil, "Participatory budgeting pilot", "", ThemeFiscal},
		{"justice", nil, "Legal aid for rural courts", "", ThemeJustice},
		{"scope text counts", nil, "Small grants", "Press freedom hubs", ThemeMedia},
		{"default", nil, "Rural roads", "Kenya", ThemeOpenGovernment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyTheme(tt.tags, tt.title, tt.scope)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, Themes, got)
		})
	}
}

func TestClassifyTags(t *testing.T) {
	assert.Equal(t, []string{TagAntiCorruption, TagBudget}, ClassifyTags("Budget transparency initiative"))
	assert.Equal(t, []string{TagDigital}, ClassifyTags("Données ouvertes"))
	assert.Equal(t, []string{TagGovernance}, ClassifyTags("Rural roads"))
}

func TestRelevanceFilters(t *testing.T) {
	assert.True(t, OGPRelevant("Open data for transparency"))
	assert.True(t, OGPRelevant("Appel à projets société civile"))
	assert.True(t, OGPRelevant("Gobierno abierto"))
	assert.False(t, OGPRelevant("Road rehabilitation works"))

	assert.True(t, Excluded("Auction of used equipment"))
	assert.True(t, Excluded("Vente aux enchères de véhicules"))
	assert.False(t, Excluded("Open data call"))

	assert.False(t, keepForOptions("Sale of vehicles and open data", FetchOptions{}))
	assert.False(t, keepForOptions("Road rehabilitation works", FetchOptions{OGPOnly: true}))
	assert.True(t, keepForOptions("Road rehabilitation works", FetchOptions{}))
}

func TestDeriveStatus(t *testing.T) {
	const today = "2025-06-01"
	tests := []struct {
		name, hint, deadline, want string
	}{
		{"future deadline", "", "2025-07-01", "open"},
		{"deadline today", "", today, "open"},
		{"past deadline", "", "2025-05-01", "closed"},
		{"nothing known", "", "", ""},
		{"forthcoming hint", "Forthcoming", "", "open"},
		{"hint beats deadline", "Closed", "2099-01-01", "closed"},
		{"french closed hint", "Clôturé", "", "closed"},
		{"unknown hint falls back", "pending review", "2025-05-01", "closed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, deriveStatus(tt.hint, tt.deadline, today))
		})
	}
}
