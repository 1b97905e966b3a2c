package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmbeddedRegistry(t *testing.T) {
	reg, err := LoadRegistry("")
	require.NoError(t, err)

	ids := make([]string, 0, len(reg.Sources))
	for _, s := range reg.Sources {
		ids = append(ids, s.ID)
		assert.True(t, s.OGPOnly, s.ID)
		assert.Positive(t, s.SinceDays, s.ID)
	}
	assert.Equal(t, []string{"eu", "undp", "afdb", "wb", "afd"}, ids)

	afdb, ok := reg.Find("afdb")
	require.True(t, ok)
	assert.True(t, afdb.RequireDeadline)
	assert.Equal(t, 365, afdb.Options().SinceDays)
	assert.Len(t, afdb.Seeds, 5)

	_, ok = reg.Find("nope")
	assert.False(t, ok)
}

func TestParseRegistryExpandsEnv(t *testing.T) {
	t.Setenv("ANANSI_TEST_KEY", "secret-key")
	reg, err := ParseRegistry([]byte(`
sources:
  - id: eu
    strategy: api_eu_ft
    api_key: ${ANANSI_TEST_KEY}
  - id: off
    strategy: html_listing
    disabled: true
`))
	require.NoError(t, err)
	require.Len(t, reg.Sources, 2)
	assert.Equal(t, "secret-key", reg.Sources[0].APIKey)
	assert.Equal(t, "eu", reg.Sources[0].Name)

	enabled := reg.Enabled()
	require.Len(t, enabled, 1)
	assert.Equal(t, "eu", enabled[0].ID)
}

func TestParseRegistryValidation(t *testing.T) {
	_, err := ParseRegistry([]byte("sources:\n  - id: eu\n"))
	assert.ErrorContains(t, err, "id and strategy are required")

	_, err = ParseRegistry([]byte("sources: [unclosed"))
	assert.ErrorContains(t, err, "parse source registry")
}

func TestLoadRegistryFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sources:\n  - id: wb\n    strategy: api_worldbank\n    name: World Bank\n"), 0o600))

	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	require.Len(t, reg.Sources, 1)
	assert.Equal(t, "World Bank", reg.Sources[0].Name)

	_, err = LoadRegistry(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read source registry")
}
