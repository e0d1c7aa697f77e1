package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnknownKeys_GlobalSuggestion(t *testing.T) {
	_, err := Load(writeTestConfig(t, `tenant = "x"`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown config key "tenant", did you mean "tenant_id"?`)
}

func TestUnknownKeys_GlobalNoSuggestion(t *testing.T) {
	_, err := Load(writeTestConfig(t, `completely_unrelated_key = 1`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown config key "completely_unrelated_key"`)
	assert.NotContains(t, err.Error(), "did you mean")
}

func TestUnknownKeys_DriveSection(t *testing.T) {
	_, err := Load(writeTestConfig(t, `
[drives.work]
sites = "Work"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown key "sites" in drive "work", did you mean "site"?`)
}

func TestUnknownKeys_UnknownTableReportedOnce(t *testing.T) {
	_, err := Load(writeTestConfig(t, `
[proxy]
host = "a"
port = 8080
`))
	require.Error(t, err)
	assert.Equal(t, 1, countOccurrences(err.Error(), `unknown config key "proxy"`))
}

func TestUnknownKeys_MultipleReported(t *testing.T) {
	_, err := Load(writeTestConfig(t, `
log_levle = "debug"
graph_ulr = "https://x"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"log_level"`)
	assert.Contains(t, err.Error(), `"graph_url"`)
}

func TestClosestMatch(t *testing.T) {
	assert.Equal(t, "chunk_size", closestMatch("chunksize", knownGlobalKeysList))
	assert.Equal(t, "site", closestMatch("stie", knownDriveKeysList))
	assert.Empty(t, closestMatch("zzzzzzzzzz", knownDriveKeysList))
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"site", "site", 0},
		{"drive", "drives", 1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, levenshtein(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
	}
}

func countOccurrences(s, sub string) int {
	n := 0

	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			n++
		}
	}

	return n
}
